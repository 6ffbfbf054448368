package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Aman-CERP/kbpulse/internal/activity"
	"github.com/Aman-CERP/kbpulse/internal/logging"
	"github.com/Aman-CERP/kbpulse/internal/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	_ activity.Metrics     = (*Recorder)(nil)
	_ search.Observer      = (*Recorder)(nil)
	_ search.QueryObserver = (*Recorder)(nil)
)

// memStore collects flushed deltas.
type memStore struct {
	mu       sync.Mutex
	counters map[string]int64
	lat      map[LatencyBucket]int64
	slugs    map[string]int64
	terms    map[string]int64
	fail     error
	closed   bool
}

func newMemStore() *memStore {
	return &memStore{
		counters: map[string]int64{},
		lat:      map[LatencyBucket]int64{},
		slugs:    map[string]int64{},
		terms:    map[string]int64{},
	}
}

func (m *memStore) SaveCounters(_ context.Context, _ string, c map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	merge(m.counters, c)
	return nil
}

func (m *memStore) SaveLatencyCounts(_ context.Context, _ string, c map[LatencyBucket]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merge(m.lat, c)
	return nil
}

func (m *memStore) UpsertSlugCounts(_ context.Context, c map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merge(m.slugs, c)
	return nil
}

func (m *memStore) UpsertTermCounts(_ context.Context, c map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merge(m.terms, c)
	return nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func newTestRecorder(store Store) *Recorder {
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	return NewRecorder(store, cfg, logging.Discard())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"deploy", "the", "service"}, ExtractTerms("  Deploy the SERVICE to k8 "))
	assert.Nil(t, ExtractTerms("   "))
}

func TestRecorder_ActivityCounters(t *testing.T) {
	r := newTestRecorder(nil)

	r.RecordEmitted(string(activity.KindSaved), "a")
	r.RecordEmitted(string(activity.KindSaved), "a")
	r.RecordEmitted(string(activity.KindDeleted), "b")
	r.RecordSuppressed(string(activity.KindSaved))
	r.SignalDropped()
	r.NormalizeFailed()
	r.StreamOpened()
	r.StreamOpened()
	r.StreamClosed()

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.Counters[CounterRecordsSaved])
	assert.Equal(t, int64(1), snap.Counters[CounterRecordsDeleted])
	assert.Equal(t, int64(1), snap.Counters[CounterRecordsSuppressed])
	assert.Equal(t, int64(1), snap.Counters[CounterSignalsDropped])
	assert.Equal(t, int64(1), snap.Counters[CounterNormalizeFailed])
	assert.Equal(t, int64(1), snap.ActiveStreams)
	require.Len(t, snap.HotSlugs, 2)
	assert.Equal(t, Count{Key: "a", Count: 2}, snap.HotSlugs[0])
	assert.Nil(t, snap.LastFlush)
}

func TestRecorder_CacheObserver(t *testing.T) {
	r := newTestRecorder(nil)

	r.CacheHit()
	r.RebuildStarted(true)
	r.RebuildFinished(true, 20*time.Millisecond, nil)
	r.RebuildStarted(false)
	r.RebuildFinished(false, time.Second, errors.New("boom"))

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Counters[CounterCacheHits])
	assert.Equal(t, int64(1), snap.Counters[CounterRebuildsForced])
	assert.Equal(t, int64(1), snap.Counters[CounterRebuildsUnforced])
	assert.Equal(t, int64(1), snap.Counters[CounterRebuildsFailed])
	assert.Equal(t, map[LatencyBucket]int64{BucketP50: 1}, snap.RebuildLatency)
}

func TestRecorder_QueryObserver(t *testing.T) {
	r := newTestRecorder(nil)

	r.QueryServed("kafka setup", 3, time.Millisecond)
	r.QueryServed("kafka", 0, time.Millisecond)

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.Counters[CounterQueries])
	assert.Equal(t, int64(1), snap.Counters[CounterZeroResultQueries])
	assert.Equal(t, []string{"kafka"}, snap.ZeroResultQueries)
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, Count{Key: "kafka", Count: 2}, snap.TopTerms[0])
}

func TestRecorder_Flush_WritesDeltasOnce(t *testing.T) {
	// Given: a recorder with some activity
	store := newMemStore()
	r := newTestRecorder(store)
	r.RecordEmitted(string(activity.KindSaved), "a")
	r.QueryServed("setup guide", 1, 0)

	// When: flushing twice with one more event in between
	require.NoError(t, r.Flush(context.Background()))
	r.RecordEmitted(string(activity.KindSaved), "a")
	require.NoError(t, r.Flush(context.Background()))

	// Then: the store holds the sum, not a double count
	assert.Equal(t, int64(2), store.counter(CounterRecordsSaved))
	assert.Equal(t, int64(2), store.slugs["a"])
	assert.Equal(t, int64(1), store.terms["setup"])
	// In-memory totals are unaffected by flushing.
	assert.Equal(t, int64(2), r.Snapshot().Counters[CounterRecordsSaved])
	assert.NotNil(t, r.Snapshot().LastFlush)
}

func TestRecorder_Flush_FailureKeepsDeltas(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk full")
	r := newTestRecorder(store)
	r.CacheHit()

	require.Error(t, r.Flush(context.Background()))

	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, int64(1), store.counter(CounterCacheHits))
}

func TestRecorder_AutoFlushAndClose(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	r := NewRecorder(store, cfg, logging.Discard())
	r.CacheHit()

	assert.Eventually(t, func() bool { return store.counter(CounterCacheHits) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, store.closed)

	// Hooks after Close are ignored.
	r.CacheHit()
	assert.Equal(t, int64(1), r.Snapshot().Counters[CounterCacheHits])
}

func TestRecorder_WithSQLiteStore(t *testing.T) {
	store := setupTestStore(t)
	r := newTestRecorder(store)
	r.RebuildStarted(false)
	r.RebuildFinished(false, time.Millisecond, nil)

	require.NoError(t, r.Flush(context.Background()))

	today := time.Now().Format("2006-01-02")
	counters, err := store.GetCounters(context.Background(), today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[CounterRebuildsUnforced])
	lat, err := store.GetLatencyCounts(context.Background(), today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lat[BucketP10])
}
