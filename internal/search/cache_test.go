package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
	"github.com/Aman-CERP/kbpulse/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingBuilder counts builds and optionally blocks until released.
type countingBuilder struct {
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	started   chan struct{}
	gate      chan struct{}
	fail      atomic.Bool
}

func newCountingBuilder(blocking bool) *countingBuilder {
	b := &countingBuilder{started: make(chan struct{}, 16)}
	if blocking {
		b.gate = make(chan struct{})
	}
	return b
}

func (b *countingBuilder) build(ctx context.Context) (*Dataset, error) {
	b.calls.Add(1)
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		m := b.maxActive.Load()
		if n <= m || b.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	b.started <- struct{}{}
	if b.gate != nil {
		<-b.gate
	}
	if b.fail.Load() {
		return nil, errors.New("disk on fire")
	}
	return Build(nil, BuildOptions{}), nil
}

func newTestCache(b *countingBuilder, clock *fakeClock) *Cache {
	return NewCache(b.build, WithClock(clock.Now), WithCacheLogger(logging.Discard()))
}

func TestCache_ConcurrentUnforcedGets_ShareOneRebuild(t *testing.T) {
	// Given: a cache whose build blocks
	b := newCountingBuilder(true)
	c := newTestCache(b, newFakeClock())

	const callers = 8
	results := make([]Result, callers)
	var wg sync.WaitGroup

	// When: one caller starts the rebuild and the rest arrive while it runs
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := c.Get(context.Background(), false)
		assert.NoError(t, err)
		results[0] = r
	}()
	<-b.started
	assert.Equal(t, StateRebuilding, c.State())
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Get(context.Background(), false)
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(b.gate)
	wg.Wait()

	// Then: exactly one build ran and everyone saw the same dataset
	assert.Equal(t, int32(1), b.calls.Load())
	assert.False(t, results[0].Cached)
	for i := 1; i < callers; i++ {
		assert.True(t, results[i].Cached)
		assert.Same(t, results[0].Dataset, results[i].Dataset)
		assert.Equal(t, results[0].GeneratedAt, results[i].GeneratedAt)
	}
	assert.Equal(t, StateReady, c.State())
}

func TestCache_WithinTTL_IsCached(t *testing.T) {
	b := newCountingBuilder(false)
	clock := newFakeClock()
	c := newTestCache(b, clock)
	ctx := context.Background()

	first, err := c.Get(ctx, false)
	require.NoError(t, err)
	clock.Advance(DefaultTTL - time.Millisecond)
	second, err := c.Get(ctx, false)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestCache_AfterTTL_Rebuilds(t *testing.T) {
	b := newCountingBuilder(false)
	clock := newFakeClock()
	c := newTestCache(b, clock)
	ctx := context.Background()

	first, err := c.Get(ctx, false)
	require.NoError(t, err)
	clock.Advance(DefaultTTL)
	second, err := c.Get(ctx, false)
	require.NoError(t, err)

	assert.False(t, second.Cached)
	assert.Greater(t, second.GeneratedAt, first.GeneratedAt)
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestCache_Forced_AlwaysRebuilds(t *testing.T) {
	// Given: a warm cache
	b := newCountingBuilder(false)
	c := newTestCache(b, newFakeClock())
	ctx := context.Background()
	warm, err := c.Get(ctx, false)
	require.NoError(t, err)

	// When: forcing twice without the clock moving
	f1, err := c.Get(ctx, true)
	require.NoError(t, err)
	f2, err := c.Get(ctx, true)
	require.NoError(t, err)

	// Then: each forced call rebuilt, uncached, with strictly increasing stamps
	assert.Equal(t, int32(3), b.calls.Load())
	assert.False(t, f1.Cached)
	assert.False(t, f2.Cached)
	assert.Greater(t, f1.GeneratedAt, warm.GeneratedAt)
	assert.Greater(t, f2.GeneratedAt, f1.GeneratedAt)

	gen, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, f2.GeneratedAt, gen)
}

func TestCache_Failure_KeepsPreviousEntry(t *testing.T) {
	// Given: a cache with an installed entry
	b := newCountingBuilder(false)
	clock := newFakeClock()
	c := newTestCache(b, clock)
	ctx := context.Background()
	good, err := c.Get(ctx, false)
	require.NoError(t, err)

	// When: the next rebuild fails
	b.fail.Store(true)
	_, err = c.Get(ctx, true)

	// Then: the error carries the rebuild code and the old entry survives
	require.Error(t, err)
	assert.True(t, errors.Is(err, kberrors.New(kberrors.ErrCodeRebuildFailed, "", nil)))
	gen, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, good.GeneratedAt, gen)

	again, err := c.Get(ctx, false)
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestCache_Failure_PropagatesToAllSharers(t *testing.T) {
	b := newCountingBuilder(true)
	b.fail.Store(true)
	c := newTestCache(b, newFakeClock())

	errs := make(chan error, 3)
	go func() {
		_, err := c.Get(context.Background(), false)
		errs <- err
	}()
	<-b.started
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Get(context.Background(), false)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(b.gate)

	for i := 0; i < 3; i++ {
		err := <-errs
		assert.Equal(t, kberrors.ErrCodeRebuildFailed, kberrors.GetCode(err))
	}
	assert.Equal(t, int32(1), b.calls.Load(), "no automatic retry")
	assert.Equal(t, StateIdle, c.State())
}

func TestCache_CallerCancellation_DoesNotCancelRebuild(t *testing.T) {
	// Given: a blocking build
	b := newCountingBuilder(true)
	c := newTestCache(b, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())

	// When: the caller gives up mid-rebuild
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, false)
		errCh <- err
	}()
	<-b.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	close(b.gate)

	// Then: the rebuild still completes and installs
	require.Eventually(t, func() bool {
		_, ok := c.Peek()
		return ok
	}, time.Second, 5*time.Millisecond)
	r, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, r.Cached)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestCache_OlderRebuildNeverOverwritesNewer(t *testing.T) {
	// Given: a slow forced rebuild followed by a fast one
	var calls atomic.Int32
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	build := func(ctx context.Context) (*Dataset, error) {
		if calls.Add(1) == 1 {
			close(slowStarted)
			<-releaseSlow
		}
		return Build(nil, BuildOptions{}), nil
	}
	c := NewCache(build, WithClock(newFakeClock().Now), WithCacheLogger(logging.Discard()))

	slow := make(chan Result, 1)
	go func() {
		r, err := c.Get(context.Background(), true)
		assert.NoError(t, err)
		slow <- r
	}()
	<-slowStarted
	fast, err := c.Get(context.Background(), true)
	require.NoError(t, err)

	// When: the slow rebuild finishes last
	close(releaseSlow)
	slowResult := <-slow

	// Then: the newer stamp stays installed
	assert.Less(t, slowResult.GeneratedAt, fast.GeneratedAt)
	gen, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, fast.GeneratedAt, gen)
}

func TestCache_Invalidate(t *testing.T) {
	t.Run("drops the current entry", func(t *testing.T) {
		b := newCountingBuilder(false)
		c := newTestCache(b, newFakeClock())
		ctx := context.Background()
		_, err := c.Get(ctx, false)
		require.NoError(t, err)

		c.Invalidate()

		_, ok := c.Peek()
		assert.False(t, ok)
		r, err := c.Get(ctx, false)
		require.NoError(t, err)
		assert.False(t, r.Cached)
		assert.Equal(t, int32(2), b.calls.Load())
	})

	t.Run("in-flight rebuild answers waiters but is not installed", func(t *testing.T) {
		b := newCountingBuilder(true)
		c := newTestCache(b, newFakeClock())

		done := make(chan Result, 1)
		go func() {
			r, err := c.Get(context.Background(), false)
			assert.NoError(t, err)
			done <- r
		}()
		<-b.started
		c.Invalidate()
		close(b.gate)

		r := <-done
		assert.NotNil(t, r.Dataset)
		_, ok := c.Peek()
		assert.False(t, ok)
	})

	t.Run("repeated invalidation queues at most one follow-up rebuild", func(t *testing.T) {
		// Given: an unforced rebuild blocked in the builder
		b := newCountingBuilder(true)
		c := newTestCache(b, newFakeClock())
		var wg sync.WaitGroup
		get := func() {
			defer wg.Done()
			r, err := c.Get(context.Background(), false)
			assert.NoError(t, err)
			assert.NotNil(t, r.Dataset)
		}
		wg.Add(1)
		go get()
		<-b.started

		// When: unforced Gets and invalidations interleave while it runs
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go get()
			time.Sleep(5 * time.Millisecond)
			c.Invalidate()
		}
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), b.calls.Load(), "follow-up waits for the running build")
		close(b.gate)
		wg.Wait()

		// Then: builds never overlapped and only one follow-up ran and installed
		assert.Equal(t, int32(1), b.maxActive.Load())
		assert.Equal(t, int32(2), b.calls.Load())
		_, ok := c.Peek()
		assert.True(t, ok)
		assert.Equal(t, StateReady, c.State())
	})

	t.Run("completed rebuild is not joined after invalidation", func(t *testing.T) {
		b := newCountingBuilder(false)
		c := newTestCache(b, newFakeClock())
		ctx := context.Background()
		_, err := c.Get(ctx, false)
		require.NoError(t, err)

		c.Invalidate()
		c.Invalidate()
		r, err := c.Get(ctx, false)

		require.NoError(t, err)
		assert.False(t, r.Cached)
		assert.Equal(t, int32(2), b.calls.Load())
	})
}

func TestCache_PanickingBuild_ReturnsError(t *testing.T) {
	c := NewCache(func(ctx context.Context) (*Dataset, error) {
		panic("boom")
	}, WithCacheLogger(logging.Discard()))

	_, err := c.Get(context.Background(), false)

	assert.Equal(t, kberrors.ErrCodeRebuildFailed, kberrors.GetCode(err))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "rebuilding", StateRebuilding.String())
	assert.Equal(t, "ready", StateReady.String())
}
