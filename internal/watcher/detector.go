package watcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/kbpulse/internal/content"
)

// SignalKind is the coarse change reported for an article.
type SignalKind int

const (
	// SignalUpdated means the article was created or modified.
	SignalUpdated SignalKind = iota
	// SignalDeleted means the article file went away.
	SignalDeleted
)

func (k SignalKind) String() string {
	if k == SignalDeleted {
		return "deleted"
	}
	return "updated"
}

// Signal is a raw article change. The reported kind is a hint; consumers
// re-read the store to learn the final state.
type Signal struct {
	Kind       SignalKind
	Slug       string
	DetectedAt time.Time
}

// SignalHandler receives signals. Handlers run sequentially on the
// detector's dispatch goroutine and must not block.
type SignalHandler interface {
	HandleSignal(Signal)
}

// HandlerFunc adapts a function to SignalHandler.
type HandlerFunc func(Signal)

// HandleSignal calls f(s).
func (f HandlerFunc) HandleSignal(s Signal) { f(s) }

// source is the underlying watch resource. HybridWatcher implements it.
type source interface {
	Start(ctx context.Context, root string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Detector fans article signals out to subscribers. The watch on the
// content root exists only while there is at least one subscriber.
type Detector struct {
	root      string
	ext       string
	logger    *slog.Logger
	newSource func() source

	mu       sync.Mutex
	handlers map[uint64]SignalHandler
	nextID   uint64
	active   *activeWatch
}

type activeWatch struct {
	src    source
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDetectorLogger sets the logger.
func WithDetectorLogger(l *slog.Logger) DetectorOption {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a detector for markdown files with extension ext under
// root.
func NewDetector(root, ext string, opts Options, options ...DetectorOption) *Detector {
	if ext == "" {
		ext = ".md"
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	d := &Detector{
		root:     root,
		ext:      ext,
		logger:   slog.Default(),
		handlers: make(map[uint64]SignalHandler),
	}
	for _, o := range options {
		o(d)
	}
	d.newSource = func() source { return NewHybridWatcher(opts, d.logger) }
	return d
}

// Subscribe registers h and returns its unsubscribe function. The first
// subscriber starts the watch; the last unsubscribe stops it and waits for
// the dispatch goroutine to exit, so it must not be called from a handler.
// Unsubscribe is idempotent.
func (d *Detector) Subscribe(h SignalHandler) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = h
	if d.active == nil {
		d.active = d.startLocked()
	}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.unsubscribe(id) })
	}
}

func (d *Detector) unsubscribe(id uint64) {
	d.mu.Lock()
	delete(d.handlers, id)
	var stopping *activeWatch
	if len(d.handlers) == 0 && d.active != nil {
		stopping = d.active
		d.active = nil
	}
	d.mu.Unlock()

	if stopping != nil {
		stopping.cancel()
		_ = stopping.src.Stop()
		stopping.wg.Wait()
		d.logger.Debug("content watch released", slog.String("root", d.root))
	}
}

// Active reports whether the underlying watch is held.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Subscribers returns the number of registered handlers.
func (d *Detector) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

func (d *Detector) startLocked() *activeWatch {
	ctx, cancel := context.WithCancel(context.Background())
	aw := &activeWatch{src: d.newSource(), cancel: cancel}

	aw.wg.Add(2)
	go func() {
		defer aw.wg.Done()
		err := aw.src.Start(ctx, d.root)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("content watch stopped", slog.String("root", d.root), slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer aw.wg.Done()
		d.dispatch(aw.src)
	}()

	d.logger.Debug("content watch acquired", slog.String("root", d.root))
	return aw
}

// dispatch runs until the source closes its channels.
func (d *Detector) dispatch(src source) {
	events, errs := src.Events(), src.Errors()
	for events != nil || errs != nil {
		select {
		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			for _, ev := range batch {
				if sig, ok := d.toSignal(ev); ok {
					d.deliver(sig)
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("content watch error", slog.String("error", err.Error()))
		}
	}
}

func (d *Detector) toSignal(ev FileEvent) (Signal, bool) {
	if ev.IsDir {
		return Signal{}, false
	}
	slug, ok := content.SlugFromPath(d.root, filepath.Join(d.root, ev.Path), d.ext)
	if !ok {
		return Signal{}, false
	}
	kind := SignalUpdated
	if ev.Operation == OpDelete || ev.Operation == OpRename {
		kind = SignalDeleted
	}
	return Signal{Kind: kind, Slug: slug, DetectedAt: ev.Timestamp}, true
}

func (d *Detector) deliver(sig Signal) {
	d.mu.Lock()
	ids := make([]uint64, 0, len(d.handlers))
	for id := range d.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]SignalHandler, len(ids))
	for i, id := range ids {
		handlers[i] = d.handlers[id]
	}
	d.mu.Unlock()

	d.logger.Debug("article change detected",
		slog.String("slug", sig.Slug),
		slog.String("kind", sig.Kind.String()))

	for _, h := range handlers {
		h.HandleSignal(sig)
	}
}
