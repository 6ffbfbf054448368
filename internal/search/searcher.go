package search

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

const (
	// DefaultLimit is used when a query does not give one.
	DefaultLimit = 20
	// MaxLimit caps the number of hits per query.
	MaxLimit = 100
	// DefaultQueryCacheSize is the default number of cached query results.
	DefaultQueryCacheSize = 256
)

// Hit is one full-text search result.
type Hit struct {
	Slug     string  `json:"slug"`
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Excerpt  string  `json:"excerpt"`
	Score    float64 `json:"score"`
}

// Results is the answer to a query.
type Results struct {
	Query       string `json:"query"`
	Hits        []Hit  `json:"hits"`
	Total       uint64 `json:"total"`
	GeneratedAt int64  `json:"generatedAt"`
}

type queryKey struct {
	generation int64
	query      string
	limit      int
}

// QueryObserver is told about every answered query, memoized or not.
type QueryObserver interface {
	QueryServed(query string, hits int, elapsed time.Duration)
}

// Searcher answers full-text queries against the cached dataset. Results are
// memoized per dataset generation, so a rebuild implicitly expires them.
type Searcher struct {
	cache        *Cache
	results      *lru.Cache[queryKey, *Results]
	defaultLimit int
	observer     QueryObserver
}

// NewSearcher creates a searcher over cache.
func NewSearcher(cache *Cache, cacheSize, defaultLimit int) (*Searcher, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	results, err := lru.New[queryKey, *Results](cacheSize)
	if err != nil {
		return nil, kberrors.InternalError("failed to create query cache", err)
	}
	return &Searcher{cache: cache, results: results, defaultLimit: defaultLimit}, nil
}

// SetQueryObserver installs o. Call it before the first Search.
func (s *Searcher) SetQueryObserver(o QueryObserver) {
	s.observer = o
}

// Search runs query and returns up to limit hits. limit <= 0 means the
// default, and it is capped at MaxLimit.
func (s *Searcher) Search(ctx context.Context, query string, limit int) (*Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, kberrors.New(kberrors.ErrCodeQueryEmpty, "search query is empty", nil).
			WithSuggestion("Pass a query with ?q=")
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	start := time.Now()

	res, err := s.cache.Get(ctx, false)
	if err != nil {
		return nil, err
	}

	key := queryKey{generation: res.GeneratedAt, query: query, limit: limit}
	if cached, ok := s.results.Get(key); ok {
		s.served(query, cached, start)
		return cached, nil
	}

	matches, total, err := res.Dataset.Query(ctx, query, limit)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeSearchFailed, "search failed", err).
			WithDetail("query", query)
	}

	out := &Results{Query: query, Hits: make([]Hit, 0, len(matches)), Total: total, GeneratedAt: res.GeneratedAt}
	for _, m := range matches {
		doc, ok := res.Dataset.Document(m.Slug)
		if !ok {
			continue
		}
		out.Hits = append(out.Hits, Hit{
			Slug:     doc.Slug,
			Title:    doc.Title,
			Category: doc.Category,
			Excerpt:  doc.Excerpt,
			Score:    m.Score,
		})
	}
	s.results.Add(key, out)
	s.served(query, out, start)
	return out, nil
}

func (s *Searcher) served(query string, r *Results, start time.Time) {
	if s.observer != nil {
		s.observer.QueryServed(query, len(r.Hits), time.Since(start))
	}
}

// Purge drops memoized results.
func (s *Searcher) Purge() {
	s.results.Purge()
}
