package stream

import (
	"sync"
	"time"
)

// Task is a scheduled repeating job.
type Task interface {
	// Cancel stops the task and returns once it can no longer run.
	// Safe to call multiple times; must not be called from the task itself.
	Cancel()
}

// Scheduler runs fn every d until the returned task is cancelled.
type Scheduler interface {
	Every(d time.Duration, fn func(time.Time)) Task
}

// TickerScheduler schedules tasks on time.Ticker goroutines.
type TickerScheduler struct{}

// Every starts a goroutine calling fn on each tick.
func (TickerScheduler) Every(d time.Duration, fn func(time.Time)) Task {
	t := &tickerTask{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case now := <-ticker.C:
				fn(now)
			}
		}
	}()
	return t
}

type tickerTask struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
