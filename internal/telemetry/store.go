// Package telemetry persists a longitudinal query log in SQLite so
// getIndexStats can report recent query volume and latency percentiles.
// Query text is stored hashed, never verbatim.
package telemetry

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doclex/doclex/internal/observe"
)

// Store is the sqlite-backed query log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the telemetry database at path. An
// empty path uses an in-memory database (tests).
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	// The query log is written from one process; a single connection
	// avoids SQLITE_BUSY churn under the pure-Go driver.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		method TEXT NOT NULL,
		query_hash TEXT NOT NULL,
		latency_ms REAL NOT NULL,
		total_hits INTEGER NOT NULL DEFAULT 0,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_log_recorded_at ON query_log(recorded_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// retention bounds how far back the log is kept; Record prunes
// opportunistically.
const retention = 7 * 24 * time.Hour

// Record appends one query observation. queryText is hashed before it
// touches disk.
func (s *Store) Record(method, queryText string, latency time.Duration, totalHits uint64) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO query_log (method, query_hash, latency_ms, total_hits, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		method, hashQuery(queryText), float64(latency.Microseconds())/1000.0, int64(totalHits), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	_, _ = s.db.Exec(`DELETE FROM query_log WHERE recorded_at < ?`, now.Add(-retention).UnixMilli())
	return nil
}

func hashQuery(q string) string {
	sum := sha256.Sum256([]byte(q))
	return hex.EncodeToString(sum[:8])
}

// RecentStats summarizes the window ending now: query count plus p50 and
// p95 latency. Implements observe.QueryStatsSource.
func (s *Store) RecentStats(window time.Duration) (*observe.RecentQueryStats, error) {
	since := time.Now().Add(-window).UnixMilli()

	rows, err := s.db.Query(
		`SELECT latency_ms FROM query_log WHERE recorded_at >= ? ORDER BY latency_ms`, since)
	if err != nil {
		return nil, fmt.Errorf("recent stats: %w", err)
	}
	defer rows.Close()

	var latencies []float64
	for rows.Next() {
		var l float64
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		latencies = append(latencies, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := &observe.RecentQueryStats{Count: len(latencies)}
	if len(latencies) > 0 {
		stats.P50Ms = percentile(latencies, 0.50)
		stats.P95Ms = percentile(latencies, 0.95)
	}
	return stats, nil
}

// percentile reads the p-th percentile from an ascending-sorted slice
// using nearest-rank.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted)) + 0.5)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// MethodCounts returns per-method query counts inside the window, used
// by the stats CLI.
func (s *Store) MethodCounts(window time.Duration) (map[string]int, error) {
	since := time.Now().Add(-window).UnixMilli()
	rows, err := s.db.Query(
		`SELECT method, COUNT(*) FROM query_log WHERE recorded_at >= ? GROUP BY method`, since)
	if err != nil {
		return nil, fmt.Errorf("method counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var method string
		var n int
		if err := rows.Scan(&method, &n); err != nil {
			return nil, err
		}
		out[method] = n
	}
	return out, rows.Err()
}

// ZeroHitCount returns how many recorded searches found nothing, a
// cheap signal for the stats CLI that include patterns or analyzers are
// misconfigured.
func (s *Store) ZeroHitCount(window time.Duration) (int, error) {
	since := time.Now().Add(-window).UnixMilli()
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM query_log WHERE recorded_at >= ? AND total_hits = 0 AND method = 'search'`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("zero-hit count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
