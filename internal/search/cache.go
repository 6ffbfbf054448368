package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

// DefaultTTL is how long a dataset is served before an unforced Get rebuilds.
const DefaultTTL = 5 * time.Minute

// BuildFunc produces a fresh dataset. It runs detached from the caller's
// cancellation.
type BuildFunc func(ctx context.Context) (*Dataset, error)

// State is the cache's coordination state.
type State int

const (
	// StateIdle means no dataset and no rebuild in progress.
	StateIdle State = iota
	// StateRebuilding means at least one rebuild is running.
	StateRebuilding
	// StateReady means a dataset is installed and nothing is running.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRebuilding:
		return "rebuilding"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry is an installed dataset. GeneratedAt is epoch milliseconds, stamped
// when its rebuild started, and strictly increases across rebuilds. The TTL
// runs from that stamp, so a slow build shortens the entry's fresh window.
type Entry struct {
	Dataset     *Dataset
	GeneratedAt int64
}

// Result is returned by Get.
type Result struct {
	Dataset     *Dataset
	GeneratedAt int64
	// Cached is false only for the caller that started the rebuild.
	Cached bool
}

// Observer receives cache lifecycle callbacks. Implementations must not block.
type Observer interface {
	CacheHit()
	RebuildStarted(forced bool)
	RebuildFinished(forced bool, elapsed time.Duration, err error)
}

// Cache is a TTL-bound, single-flight cache around a BuildFunc.
//
// Unforced rebuilds share a singleflight key per invalidation epoch and run
// one at a time, so repeated invalidation leaves at most one unforced rebuild
// building and one queued behind it.
type Cache struct {
	build    BuildFunc
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer Observer

	group  singleflight.Group
	serial sync.Mutex // held by the building unforced rebuild

	mu      sync.Mutex
	current *Entry
	running int
	stamp   int64 // last issued generation stamp
	floor   int64 // rebuilds stamped below this predate an invalidation
	epoch   uint64
	started bool // the current epoch's unforced rebuild has taken its stamp
	forced  uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the freshness window. Non-positive values are ignored.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// WithObserver registers lifecycle callbacks.
func WithObserver(o Observer) CacheOption {
	return func(c *Cache) { c.observer = o }
}

// NewCache creates an empty cache.
func NewCache(build BuildFunc, opts ...CacheOption) *Cache {
	c := &Cache{
		build:  build,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the dataset.
//
// Unforced calls return a fresh entry if there is one, otherwise join the
// pending unforced rebuild, otherwise start one. Forced calls always start
// their own rebuild. A failed rebuild leaves the previous entry in place and
// reports ERR_502 to every caller sharing it. If ctx ends first the caller
// stops waiting but the rebuild continues.
func (c *Cache) Get(ctx context.Context, force bool) (Result, error) {
	c.mu.Lock()
	var key string
	if force {
		c.forced++
		key = fmt.Sprintf("forced:%d", c.forced)
	} else {
		if e := c.current; e != nil && c.fresh(e) {
			c.mu.Unlock()
			if c.observer != nil {
				c.observer.CacheHit()
			}
			return Result{Dataset: e.Dataset, GeneratedAt: e.GeneratedAt, Cached: true}, nil
		}
		key = c.unforcedKeyLocked()
	}
	buildCtx := context.WithoutCancel(ctx)
	var leader bool
	ch := c.group.DoChan(key, func() (any, error) {
		leader = true
		return c.rebuild(buildCtx, key, force)
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		e := res.Val.(*Entry)
		return Result{Dataset: e.Dataset, GeneratedAt: e.GeneratedAt, Cached: !leader}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Invalidate drops the current entry. Rebuilds already building still answer
// their waiters but are not installed. A queued unforced rebuild stays
// joinable since it stamps after the invalidation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.floor = c.stamp + 1
	if c.started {
		c.epoch++
		c.started = false
	}
}

// Peek returns the installed generation stamp without triggering work.
func (c *Cache) Peek() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0, false
	}
	return c.current.GeneratedAt, true
}

// State reports the coordination state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.running > 0:
		return StateRebuilding
	case c.current != nil:
		return StateReady
	default:
		return StateIdle
	}
}

func (c *Cache) fresh(e *Entry) bool {
	return c.now().UnixMilli()-e.GeneratedAt < c.ttl.Milliseconds()
}

// nextStampLocked issues a strictly increasing millisecond stamp.
func (c *Cache) nextStampLocked() int64 {
	s := c.now().UnixMilli()
	if s <= c.stamp {
		s = c.stamp + 1
	}
	c.stamp = s
	return s
}

func (c *Cache) unforcedKeyLocked() string {
	return fmt.Sprintf("unforced:%d", c.epoch)
}

func (c *Cache) rebuild(ctx context.Context, key string, force bool) (*Entry, error) {
	c.mu.Lock()
	c.running++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running--
		c.mu.Unlock()
	}()

	if !force {
		c.serial.Lock()
		defer c.serial.Unlock()
	}

	c.mu.Lock()
	stamp := c.nextStampLocked()
	if !force && key == c.unforcedKeyLocked() {
		c.started = true
	}
	c.mu.Unlock()
	if c.observer != nil {
		c.observer.RebuildStarted(force)
	}

	start := time.Now()
	ds, err := c.safeBuild(ctx)
	elapsed := time.Since(start)

	var entry *Entry
	c.mu.Lock()
	if !force && key == c.unforcedKeyLocked() {
		// later Gets must not join a flight that is about to return
		c.epoch++
		c.started = false
	}
	if err == nil {
		entry = &Entry{Dataset: ds, GeneratedAt: stamp}
		switch {
		case stamp < c.floor:
			c.logger.Debug("search dataset predates invalidation, not installed",
				slog.Int64("generated_at", stamp))
		case c.current != nil && c.current.GeneratedAt >= stamp:
			c.logger.Debug("newer search dataset already installed",
				slog.Int64("generated_at", stamp),
				slog.Int64("current", c.current.GeneratedAt))
		default:
			c.current = entry
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("search dataset rebuild failed",
			slog.Bool("forced", force),
			slog.String("error", err.Error()))
	} else {
		c.logger.Debug("search dataset rebuilt",
			slog.Bool("forced", force),
			slog.Int("documents", len(ds.Documents)),
			slog.Duration("elapsed", elapsed))
	}
	if c.observer != nil {
		c.observer.RebuildFinished(force, elapsed, err)
	}
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeRebuildFailed, "search dataset rebuild failed", err)
	}
	return entry, nil
}

func (c *Cache) safeBuild(ctx context.Context) (ds *Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during rebuild: %v", r)
		}
	}()
	ds, err = c.build(ctx)
	if err == nil && ds == nil {
		err = fmt.Errorf("build returned no dataset")
	}
	return ds, err
}
