// Package indexstore owns the writer/NRT-searcher lifecycle over the
// on-disk inverted index: schema versioning, lock recovery, commit policy,
// and the language distribution cache.
package indexstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/doclex/doclex/internal/docfields"
	"github.com/doclex/doclex/internal/doclexerr"
)

// Config configures the index service (lucene.index.* + the crawler's
// bulk-index threshold, which the NRT refresher also consults).
type Config struct {
	// Path is the index directory. Empty means an in-memory index (tests).
	Path string

	SchemaMismatchAction SchemaMismatchAction

	// CommitTimeout is the timer-triggered commit interval (default 5s).
	CommitTimeout time.Duration

	// FastRefreshInterval / SlowRefreshInterval / BulkIndexThreshold drive
	// the adaptive refresh-interval bookkeeping below.
	FastRefreshInterval time.Duration
	SlowRefreshInterval time.Duration
	BulkIndexThreshold   int
}

// DefaultConfig returns the out-of-the-box timing and threshold values.
func DefaultConfig(path string) Config {
	return Config{
		Path:                 path,
		SchemaMismatchAction: SchemaFail,
		CommitTimeout:        5 * time.Second,
		FastRefreshInterval:  100 * time.Millisecond,
		SlowRefreshInterval:  5 * time.Second,
		BulkIndexThreshold:   1000,
	}
}

// Store is the index service: the single exclusive writer, the NRT
// refresh loop, and the language distribution cache.
type Store struct {
	mu    sync.RWMutex
	index bleve.Index
	dir   string
	lock  *dirLock
	cfg   Config

	pendingBatch *bleve.Batch
	pendingCount int
	poisoned     error

	langDist  atomic.Value // *LanguageDistribution
	commitSeq atomic.Int64

	refreshInterval atomic.Int64 // nanoseconds, read by the refresh loop

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open creates or opens the index directory at cfg.Path, performing
// schema reconciliation and lock recovery, or builds an in-memory index
// when cfg.Path is empty (test/bench use).
func Open(cfg Config) (*Store, error) {
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 5 * time.Second
	}
	if cfg.FastRefreshInterval <= 0 {
		cfg.FastRefreshInterval = 100 * time.Millisecond
	}
	if cfg.SlowRefreshInterval <= 0 {
		cfg.SlowRefreshInterval = 5 * time.Second
	}
	if cfg.BulkIndexThreshold <= 0 {
		cfg.BulkIndexThreshold = 1000
	}
	if cfg.SchemaMismatchAction == "" {
		cfg.SchemaMismatchAction = SchemaFail
	}

	indexMapping, err := BuildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}

	s := &Store{cfg: cfg, stopCh: make(chan struct{})}
	s.langDist.Store(&LanguageDistribution{Counts: map[string]int{}})
	s.refreshInterval.Store(int64(cfg.FastRefreshInterval))

	if cfg.Path == "" {
		idx, err := bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		s.index = idx
		s.pendingBatch = idx.NewBatch()
		s.startBackgroundLoops()
		return s, nil
	}

	dir := cfg.Path
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, doclexerr.IndexUnavailable("cannot create/write index directory", err)
	}
	s.dir = dir

	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}
	s.lock = lock

	wipe := func() error {
		if err := s.index.Close(); err != nil {
			slog.Warn("error closing index before reindex", slog.String("error", err.Error()))
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Name() == lockFileName {
				continue
			}
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
		idx, err := bleve.New(dir, indexMapping)
		if err != nil {
			return err
		}
		s.index = idx
		return nil
	}

	idx, err := openBleveIndex(dir, indexMapping)
	if err != nil {
		_ = s.lock.release()
		return nil, err
	}
	s.index = idx

	if err := openSchema(dir, cfg.SchemaMismatchAction, wipe); err != nil {
		_ = s.index.Close()
		_ = s.lock.release()
		return nil, err
	}

	s.pendingBatch = s.index.NewBatch()
	s.startBackgroundLoops()
	return s, nil
}

// openBleveIndex opens an existing index or creates a new one, recovering
// from a corrupted index_meta.json by wiping and recreating the directory.
func openBleveIndex(dir string, m mapping.IndexMapping) (bleve.Index, error) {
	metaPath := filepath.Join(dir, "index_meta.json")
	if _, err := os.Stat(metaPath); err == nil {
		if verr := validateIndexMeta(dir); verr != nil {
			slog.Warn("index corrupted, clearing and recreating", slog.String("path", dir), slog.String("error", verr.Error()))
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				return nil, doclexerr.IndexUnavailable(fmt.Sprintf("index corrupted at %s and could not be removed", dir), rmErr)
			}
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, doclexerr.IndexUnavailable("failed to recreate index directory", mkErr)
			}
			idx, err := bleve.New(dir, m)
			if err != nil {
				return nil, doclexerr.IndexUnavailable("failed to create index after corruption recovery", err)
			}
			return idx, nil
		}
	}

	idx, err := bleve.Open(dir)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(dir, m)
		if err != nil {
			return nil, doclexerr.IndexUnavailable("failed to create new index", err)
		}
		return idx, nil
	}
	if err != nil {
		return nil, doclexerr.IndexUnavailable("failed to open existing index", err)
	}
	return idx, nil
}

// validateIndexMeta checks index_meta.json exists, is non-empty, and
// parses as JSON.
func validateIndexMeta(dir string) error {
	metaPath := filepath.Join(dir, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return nil // index doesn't exist yet, nothing to validate
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}
	var meta map[string]interface{}
	return json.Unmarshal(data, &meta)
}

// AddOrReplace deletes any existing document at path then indexes fields,
// so a document is never left with two entries after an update.
func (s *Store) AddOrReplace(path string, fields docfields.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return doclexerr.IndexUnavailable("writer is poisoned", s.poisoned)
	}

	s.pendingBatch.Delete(path)
	if err := s.pendingBatch.Index(path, map[string]interface{}(fields)); err != nil {
		return doclexerr.Internal("failed to stage document", err)
	}
	s.pendingCount++
	return nil
}

// Delete stages a deletion of the document keyed by path.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return doclexerr.IndexUnavailable("writer is poisoned", s.poisoned)
	}
	s.pendingBatch.Delete(path)
	s.pendingCount++
	return nil
}

// PendingCount returns the number of staged (uncommitted) operations,
// used to drive the adaptive NRT refresh interval.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingCount
}

// Commit flushes the pending batch. A retried-and-exhausted failure
// poisons the writer; a poisoned writer never accepts further staged ops.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.poisoned != nil {
		s.mu.Unlock()
		return doclexerr.IndexUnavailable("writer is poisoned", s.poisoned)
	}
	if s.pendingCount == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pendingBatch
	s.pendingBatch = s.index.NewBatch()
	s.pendingCount = 0
	s.mu.Unlock()

	err := doclexerr.Retry(ctx, doclexerr.DefaultRetryConfig(), func() error {
		if err := s.index.Batch(batch); err != nil {
			return doclexerr.TransientIO("commit batch", err)
		}
		return nil
	})
	if err != nil {
		s.mu.Lock()
		s.poisoned = err
		s.mu.Unlock()
		return doclexerr.IndexUnavailable("commit failed after retries, writer poisoned", err)
	}

	s.commitSeq.Add(1)
	if derr := s.refreshLanguageDistribution(ctx); derr != nil {
		slog.Warn("failed to refresh language distribution cache", slog.String("error", derr.Error()))
	}
	return nil
}

// Index exposes the underlying bleve index for the query executor and
// observability components. Bleve's scorch backend already gives
// near-real-time read semantics (writes are visible to the next search
// without an explicit reopen call), so queryexec/observe read through
// this handle directly rather than through a separate snapshot type.
func (s *Store) Index() bleve.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Dir returns the index directory, or "" for an in-memory index.
func (s *Store) Dir() string {
	return s.dir
}

// CommitSequence returns the number of commits applied so far, used by
// callers that want to detect "has anything changed" without polling
// DocCount.
func (s *Store) CommitSequence() int64 {
	return s.commitSeq.Load()
}

// DocCount returns the current document count.
func (s *Store) DocCount() (uint64, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()
	return idx.DocCount()
}

// Poisoned reports whether the writer has been poisoned by an
// unrecoverable commit failure, and the causing error.
func (s *Store) Poisoned() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poisoned != nil, s.poisoned
}

// startBackgroundLoops starts the commit-timeout ticker and the adaptive
// refresh-interval updater.
func (s *Store) startBackgroundLoops() {
	s.wg.Add(2)
	go s.commitTimeoutLoop()
	go s.adaptiveRefreshLoop()
}

func (s *Store) commitTimeoutLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CommitTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.PendingCount() == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommitTimeout)
			if err := s.Commit(ctx); err != nil {
				slog.Error("timer-triggered commit failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// adaptiveRefreshLoop tracks whether the pending-change count is above
// BulkIndexThreshold and publishes the interval a caller (e.g. the CLI
// stats command) should treat as the current searcher staleness bound.
// Bleve itself refreshes on every batch; this loop only models the
// adaptive-interval decision, since the underlying engine needs no
// explicit reopen call.
func (s *Store) adaptiveRefreshLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.PendingCount() > s.cfg.BulkIndexThreshold {
				s.refreshInterval.Store(int64(s.cfg.SlowRefreshInterval))
			} else {
				s.refreshInterval.Store(int64(s.cfg.FastRefreshInterval))
			}
		}
	}
}

// RefreshInterval returns the currently active NRT refresh interval.
func (s *Store) RefreshInterval() time.Duration {
	return time.Duration(s.refreshInterval.Load())
}

// Close drains background loops, issues a final commit, closes the
// index, and releases the directory lock.
func (s *Store) Close() error {
	close(s.stopCh)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Commit(ctx); err != nil && !strings.Contains(err.Error(), "poisoned") {
		slog.Warn("final commit failed during shutdown", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			firstErr = err
		}
	}
	if s.lock != nil {
		if err := s.lock.release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
