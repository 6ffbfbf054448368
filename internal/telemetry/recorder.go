// Package telemetry keeps local counters for the activity pipeline, the
// search cache and queries. Nothing is reported externally; counters are
// flushed to a local SQLite database.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Counter names.
const (
	CounterRecordsSaved      = "records_saved"
	CounterRecordsDeleted    = "records_deleted"
	CounterRecordsSuppressed = "records_suppressed"
	CounterSignalsDropped    = "signals_dropped"
	CounterNormalizeFailed   = "normalize_failed"
	CounterStreamsOpened     = "streams_opened"
	CounterStreamsClosed     = "streams_closed"
	CounterCacheHits         = "cache_hits"
	CounterRebuildsForced    = "rebuilds_forced"
	CounterRebuildsUnforced  = "rebuilds_unforced"
	CounterRebuildsFailed    = "rebuilds_failed"
	CounterQueries           = "queries"
	CounterZeroResultQueries = "queries_zero_result"
)

// CounterNames lists every counter in display order.
var CounterNames = []string{
	CounterRecordsSaved, CounterRecordsDeleted, CounterRecordsSuppressed,
	CounterSignalsDropped, CounterNormalizeFailed,
	CounterStreamsOpened, CounterStreamsClosed,
	CounterCacheHits, CounterRebuildsForced, CounterRebuildsUnforced, CounterRebuildsFailed,
	CounterQueries, CounterZeroResultQueries,
}

// LatencyBucket is a rebuild latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyBuckets lists the buckets from fastest to slowest.
var LatencyBuckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// ExtractTerms lowercases query and keeps words of at least 3 bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// Count is a ranked key such as a slug or a query term.
type Count struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time view of the in-memory totals.
type Snapshot struct {
	Counters          map[string]int64        `json:"counters"`
	RebuildLatency    map[LatencyBucket]int64 `json:"rebuild_latency"`
	HotSlugs          []Count                 `json:"hot_slugs"`
	TopTerms          []Count                 `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	ActiveStreams     int64                   `json:"active_streams"`
	Since             time.Time               `json:"since"`
	LastFlush         *time.Time              `json:"last_flush,omitempty"`
}

// Config configures a Recorder.
type Config struct {
	HotSlugsCapacity    int           // default 50
	TopTermsCapacity    int           // default 100
	ZeroResultsCapacity int           // default 100
	FlushInterval       time.Duration // 0 disables auto-flush
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HotSlugsCapacity:    50,
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		FlushInterval:       time.Minute,
	}
}

// Recorder aggregates telemetry in memory. It implements the activity
// metrics hook, the search cache observer and the query observer.
// Thread-safe; every hook is non-blocking.
type Recorder struct {
	mu sync.Mutex

	// Totals since start, for Snapshot.
	counters  map[string]int64
	latencies map[LatencyBucket]int64
	hotSlugs  *lru.Cache[string, int64]
	topTerms  *lru.Cache[string, int64]
	zero      *CircularBuffer[string]
	active    int64
	startTime time.Time
	lastFlush time.Time

	// Deltas since the last successful flush.
	pendingCounters  map[string]int64
	pendingLatencies map[LatencyBucket]int64
	pendingSlugs     map[string]int64
	pendingTerms     map[string]int64

	store  Store
	now    func() time.Time
	logger *slog.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewRecorder creates a recorder. store may be nil, in which case Flush
// only drops the deltas.
func NewRecorder(store Store, cfg Config, logger *slog.Logger) *Recorder {
	if cfg.HotSlugsCapacity <= 0 {
		cfg.HotSlugsCapacity = 50
	}
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	hot, _ := lru.New[string, int64](cfg.HotSlugsCapacity)
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	r := &Recorder{
		counters:         make(map[string]int64),
		latencies:        make(map[LatencyBucket]int64),
		hotSlugs:         hot,
		topTerms:         terms,
		zero:             NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		startTime:        time.Now(),
		pendingCounters:  make(map[string]int64),
		pendingLatencies: make(map[LatencyBucket]int64),
		pendingSlugs:     make(map[string]int64),
		pendingTerms:     make(map[string]int64),
		store:            store,
		now:              time.Now,
		logger:           logger,
		interval:         cfg.FlushInterval,
		stopCh:           make(chan struct{}),
	}

	if r.interval > 0 && store != nil {
		r.wg.Add(1)
		go r.flushLoop()
	}
	return r
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Warn("telemetry flush failed", slog.String("error", err.Error()))
			}
		case <-r.stopCh:
			return
		}
	}
}

func (r *Recorder) incLocked(name string, n int64) {
	r.counters[name] += n
	r.pendingCounters[name] += n
}

func (r *Recorder) inc(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.incLocked(name, 1)
}

// RecordEmitted counts a published activity record.
func (r *Recorder) RecordEmitted(kind, slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if strings.HasSuffix(kind, "deleted") {
		r.incLocked(CounterRecordsDeleted, 1)
	} else {
		r.incLocked(CounterRecordsSaved, 1)
	}
	n, _ := r.hotSlugs.Get(slug)
	r.hotSlugs.Add(slug, n+1)
	r.pendingSlugs[slug]++
}

// RecordSuppressed counts a duplicate record.
func (r *Recorder) RecordSuppressed(string) { r.inc(CounterRecordsSuppressed) }

// SignalDropped counts a signal lost to a full queue.
func (r *Recorder) SignalDropped() { r.inc(CounterSignalsDropped) }

// NormalizeFailed counts a signal whose metadata could not be read.
func (r *Recorder) NormalizeFailed() { r.inc(CounterNormalizeFailed) }

// StreamOpened counts a new stream connection.
func (r *Recorder) StreamOpened() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active++
	if !r.closed {
		r.incLocked(CounterStreamsOpened, 1)
	}
}

// StreamClosed counts a closed stream connection.
func (r *Recorder) StreamClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	if !r.closed {
		r.incLocked(CounterStreamsClosed, 1)
	}
}

// CacheHit counts a dataset request served from the cache.
func (r *Recorder) CacheHit() { r.inc(CounterCacheHits) }

// RebuildStarted counts a dataset rebuild.
func (r *Recorder) RebuildStarted(forced bool) {
	if forced {
		r.inc(CounterRebuildsForced)
	} else {
		r.inc(CounterRebuildsUnforced)
	}
}

// RebuildFinished records rebuild latency and failures.
func (r *Recorder) RebuildFinished(_ bool, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if err != nil {
		r.incLocked(CounterRebuildsFailed, 1)
		return
	}
	b := LatencyToBucket(elapsed)
	r.latencies[b]++
	r.pendingLatencies[b]++
}

// QueryServed records a full-text query.
func (r *Recorder) QueryServed(query string, hits int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.incLocked(CounterQueries, 1)
	for _, term := range ExtractTerms(query) {
		n, _ := r.topTerms.Get(term)
		r.topTerms.Add(term, n+1)
		r.pendingTerms[term]++
	}
	if hits == 0 {
		r.incLocked(CounterZeroResultQueries, 1)
		r.zero.Add(query)
	}
}

// Snapshot returns the totals since start.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(r.latencies))
	for k, v := range r.latencies {
		latencies[k] = v
	}

	s := &Snapshot{
		Counters:          counters,
		RebuildLatency:    latencies,
		HotSlugs:          ranked(r.hotSlugs),
		TopTerms:          ranked(r.topTerms),
		ZeroResultQueries: r.zero.Items(),
		ActiveStreams:     r.active,
		Since:             r.startTime,
	}
	if !r.lastFlush.IsZero() {
		t := r.lastFlush
		s.LastFlush = &t
	}
	return s
}

func ranked(c *lru.Cache[string, int64]) []Count {
	out := make([]Count, 0, c.Len())
	for _, k := range c.Keys() {
		if n, ok := c.Peek(k); ok {
			out = append(out, Count{Key: k, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Flush writes the deltas since the last flush to the store. On failure the
// deltas are kept for the next attempt.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	counters, latencies, slugs, terms := r.pendingCounters, r.pendingLatencies, r.pendingSlugs, r.pendingTerms
	r.pendingCounters = make(map[string]int64)
	r.pendingLatencies = make(map[LatencyBucket]int64)
	r.pendingSlugs = make(map[string]int64)
	r.pendingTerms = make(map[string]int64)
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}

	today := r.now().Format("2006-01-02")
	err := r.store.SaveCounters(ctx, today, counters)
	if err == nil {
		err = r.store.SaveLatencyCounts(ctx, today, latencies)
	}
	if err == nil {
		err = r.store.UpsertSlugCounts(ctx, slugs)
	}
	if err == nil {
		err = r.store.UpsertTermCounts(ctx, terms)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		// Transactions are per table, so a partial write may repeat some
		// counts on retry. Acceptable for local telemetry.
		merge(r.pendingCounters, counters)
		merge(r.pendingLatencies, latencies)
		merge(r.pendingSlugs, slugs)
		merge(r.pendingTerms, terms)
		return err
	}
	r.lastFlush = r.now()
	return nil
}

func merge[K comparable](dst, src map[K]int64) {
	for k, v := range src {
		dst[k] += v
	}
}

// Close stops auto-flush, flushes once more and closes the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()

	err := r.Flush(context.Background())
	if r.store != nil {
		if cerr := r.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
