package stream

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultHeartbeatInterval keeps connections alive through idle-timeout proxies.
const DefaultHeartbeatInterval = 25 * time.Second

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("broadcaster closed")

// Event is a named message. Data is written verbatim.
type Event struct {
	Name string
	Data []byte
}

// Subscriber is a delivery sink. Errors are logged and otherwise ignored;
// a failing sink stays subscribed until its owner unsubscribes.
type Subscriber interface {
	Send(Event) error
	Heartbeat(time.Time) error
}

// Broadcaster delivers events to every active subscriber.
type Broadcaster struct {
	scheduler Scheduler
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	pubMu sync.Mutex // serializes Publish and first heartbeats

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithScheduler replaces the heartbeat scheduler.
func WithScheduler(s Scheduler) BroadcasterOption {
	return func(b *Broadcaster) { b.scheduler = s }
}

// WithHeartbeatInterval sets the heartbeat period. Non-positive values are ignored.
func WithHeartbeatInterval(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) { b.logger = l }
}

// WithNow overrides the clock used for the initial heartbeat.
func WithNow(now func() time.Time) BroadcasterOption {
	return func(b *Broadcaster) { b.now = now }
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		scheduler: TickerScheduler{},
		interval:  DefaultHeartbeatInterval,
		now:       time.Now,
		logger:    slog.Default(),
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is the handle for one subscriber.
type Subscription struct {
	b    *Broadcaster
	sub  Subscriber
	task Task
	once sync.Once
	done chan struct{}
}

// Subscribe registers sub, sends it one heartbeat immediately and schedules
// the rest. A closed broadcaster writes nothing to sub.
func (b *Broadcaster) Subscribe(sub Subscriber) (*Subscription, error) {
	s := &Subscription{b: b, sub: sub, done: make(chan struct{})}

	// pubMu keeps the first heartbeat ahead of any published event.
	b.pubMu.Lock()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.pubMu.Unlock()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	s.heartbeat(b.now())
	b.pubMu.Unlock()

	task := b.scheduler.Every(b.interval, s.heartbeat)
	b.mu.Lock()
	_, live := b.subs[s]
	if live {
		s.task = task
	}
	b.mu.Unlock()
	if !live {
		// Closed while the task was being scheduled.
		task.Cancel()
		return nil, ErrClosed
	}
	return s, nil
}

func (s *Subscription) heartbeat(t time.Time) {
	if err := s.sub.Heartbeat(t); err != nil {
		s.b.logger.Debug("heartbeat write failed", slog.String("error", err.Error()))
	}
}

// Unsubscribe cancels the heartbeat and removes the subscriber. It returns
// after the heartbeat task has stopped. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		task := s.task
		s.task = nil
		s.b.mu.Unlock()
		if task != nil {
			task.Cancel()
		}
		close(s.done)
	})
}

// Done is closed once the subscription has been torn down, whether by
// Unsubscribe or by the broadcaster closing.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Publish delivers ev synchronously to every current subscriber and
// returns how many subscribers it was offered to. Concurrent publishes are
// serialized.
func (b *Broadcaster) Publish(ev Event) int {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		if err := s.sub.Send(ev); err != nil {
			b.logger.Debug("event write failed",
				slog.String("event", ev.Name),
				slog.String("error", err.Error()))
		}
	}
	return len(targets)
}

// Len returns the number of active subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone and rejects new subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
