package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"
)

// Store persists aggregated telemetry.
type Store interface {
	// SaveCounters adds counts to the totals for date.
	SaveCounters(ctx context.Context, date string, counts map[string]int64) error
	// SaveLatencyCounts adds rebuild latency bucket counts for date.
	SaveLatencyCounts(ctx context.Context, date string, counts map[LatencyBucket]int64) error
	// UpsertSlugCounts adds per-article activity counts.
	UpsertSlugCounts(ctx context.Context, counts map[string]int64) error
	// UpsertTermCounts adds query term counts.
	UpsertTermCounts(ctx context.Context, counts map[string]int64) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the telemetry database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create telemetry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the telemetry tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	-- Pipeline counters (aggregated daily)
	CREATE TABLE IF NOT EXISTS counter_stats (
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, name)
	);

	-- Rebuild latency histogram
	CREATE TABLE IF NOT EXISTS rebuild_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	-- Most active articles
	CREATE TABLE IF NOT EXISTS slug_activity (
		slug TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_slug_activity_count ON slug_activity(count DESC);

	-- Query terms
	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// SaveCounters upserts daily counters.
func (s *SQLiteStore) SaveCounters(ctx context.Context, date string, counts map[string]int64) error {
	return s.upsertDaily(ctx, `
		INSERT INTO counter_stats (date, name, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, name) DO UPDATE SET count = count + excluded.count
	`, date, counts)
}

// SaveLatencyCounts upserts daily rebuild latency counts.
func (s *SQLiteStore) SaveLatencyCounts(ctx context.Context, date string, counts map[LatencyBucket]int64) error {
	named := make(map[string]int64, len(counts))
	for b, n := range counts {
		named[string(b)] = n
	}
	return s.upsertDaily(ctx, `
		INSERT INTO rebuild_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, date, named)
}

func (s *SQLiteStore) upsertDaily(ctx context.Context, query, date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for name, count := range counts {
		if _, err := stmt.ExecContext(ctx, date, name, count); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertSlugCounts adds per-article activity counts.
func (s *SQLiteStore) UpsertSlugCounts(ctx context.Context, counts map[string]int64) error {
	return s.upsertRanked(ctx, `
		INSERT INTO slug_activity (slug, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slug) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, counts)
}

// UpsertTermCounts adds query term counts.
func (s *SQLiteStore) UpsertTermCounts(ctx context.Context, counts map[string]int64) error {
	return s.upsertRanked(ctx, `
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, counts)
}

func (s *SQLiteStore) upsertRanked(ctx context.Context, query string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range counts {
		if _, err := stmt.ExecContext(ctx, key, count); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetCounters sums counters over a date range, inclusive.
func (s *SQLiteStore) GetCounters(ctx context.Context, from, to string) (map[string]int64, error) {
	return s.sumDaily(ctx, `
		SELECT name, SUM(count) AS total
		FROM counter_stats
		WHERE date >= ? AND date <= ?
		GROUP BY name
	`, from, to)
}

// GetLatencyCounts sums rebuild latency buckets over a date range.
func (s *SQLiteStore) GetLatencyCounts(ctx context.Context, from, to string) (map[LatencyBucket]int64, error) {
	named, err := s.sumDaily(ctx, `
		SELECT bucket, SUM(count) AS total
		FROM rebuild_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[LatencyBucket]int64, len(named))
	for k, v := range named {
		counts[LatencyBucket(k)] = v
	}
	return counts, nil
}

func (s *SQLiteStore) sumDaily(ctx context.Context, query, from, to string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

// GetHotSlugs returns the most active articles.
func (s *SQLiteStore) GetHotSlugs(ctx context.Context, limit int) ([]Count, error) {
	return s.topN(ctx, `SELECT slug, count FROM slug_activity ORDER BY count DESC, slug LIMIT ?`, limit)
}

// GetTopTerms returns the most frequent query terms.
func (s *SQLiteStore) GetTopTerms(ctx context.Context, limit int) ([]Count, error) {
	return s.topN(ctx, `SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?`, limit)
}

func (s *SQLiteStore) topN(ctx context.Context, query string, limit int) ([]Count, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
