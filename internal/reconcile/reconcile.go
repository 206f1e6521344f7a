// Package reconcile is the reconciler and the shared indexer entry
// point: it diffs the filesystem against the index, batches the result
// into ADD/UPDATE/DELETE operations, and drives them through the index
// service's writer.
package reconcile

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/doclex/doclex/internal/crawl"
	"github.com/doclex/doclex/internal/docfields"
	"github.com/doclex/doclex/internal/doclexerr"
	"github.com/doclex/doclex/internal/extract"
	"github.com/doclex/doclex/internal/indexstore"
)

// Action is the classification a reconciled path receives.
type Action string

const (
	ActionAdd    Action = "ADD"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionSkip   Action = "SKIP"
)

// Op is one classified path awaiting indexing.
type Op struct {
	Path   string
	Action Action
}

// Config controls batching and worker concurrency (lucene.crawler.batch-*
// and thread-pool-size).
type Config struct {
	BatchSize      int
	BatchTimeout   time.Duration
	Workers        int
	ProgressEvery  int
	ProgressPeriod time.Duration
}

// DefaultConfig returns the stock batching and progress defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      100,
		BatchTimeout:   5 * time.Second,
		Workers:        4,
		ProgressEvery:  100,
		ProgressPeriod: 30 * time.Second,
	}
}

// Progress is emitted at most every ProgressEvery files or ProgressPeriod,
// whichever comes first.
type Progress struct {
	FilesProcessed int
	Added          int
	Updated        int
	Deleted        int
	Skipped        int
	Errors         int
}

// ProgressFunc receives progress snapshots; it must not block.
type ProgressFunc func(Progress)

// Indexer is the reconciler and the shared classify-then-apply pipeline
// that both startup reconciliation and the watch processor dispatch
// through.
type Indexer struct {
	store     *indexstore.Store
	extractor extract.Extractor
	cfg       Config

	mu       sync.Mutex
	progress Progress
}

// New builds an Indexer over store using extractor for content extraction.
func New(store *indexstore.Store, extractor extract.Extractor, cfg Config) *Indexer {
	return &Indexer{store: store, extractor: extractor, cfg: cfg}
}

// Classify inspects one eligible on-disk file (as reported by the
// crawler) against the index and returns its Action. A
// caller that already knows a path is gone (e.g. a watch DELETE) should
// skip Classify and call Apply directly with ActionDelete.
func (ix *Indexer) Classify(path string, size, modTimeMillis int64) (Action, error) {
	stored, ok, err := ix.store.LookupFields(path)
	if err != nil {
		return "", doclexerr.Internal("lookup failed during reconciliation", err)
	}
	if !ok {
		return ActionAdd, nil
	}

	storedSize, _ := toInt64(stored[docfields.FieldFileSize])
	storedModified, _ := toInt64(stored[docfields.FieldModifiedDate])

	if storedSize == size && storedModified == modTimeMillis {
		return ActionSkip, nil
	}
	return ActionUpdate, nil
}

// ClassifyMissing reports ActionDelete for every indexed file_path with no
// corresponding eligible on-disk file, by diffing the index's path set
// against the set the crawl just observed.
func (ix *Indexer) ClassifyMissing(seen map[string]bool) ([]Op, error) {
	var ops []Op
	err := ix.store.AllPaths(func(path string) error {
		if !seen[path] {
			ops = append(ops, Op{Path: path, Action: ActionDelete})
		}
		return nil
	})
	if err != nil {
		return nil, doclexerr.Internal("failed to enumerate indexed paths", err)
	}
	return ops, nil
}

// Apply stages op against the writer: ADD/UPDATE extract and index,
// DELETE stages a deletion, SKIP is a no-op. It does not commit; callers
// batch several Apply calls per Commit.
func (ix *Indexer) Apply(op Op) error {
	switch op.Action {
	case ActionSkip:
		return nil

	case ActionDelete:
		if err := ix.store.Delete(op.Path); err != nil {
			return err
		}
		ix.record(op.Action, nil)
		return nil

	case ActionAdd, ActionUpdate:
		fi, err := os.Stat(op.Path)
		if err != nil {
			if os.IsNotExist(err) {
				// Disappeared between classification and apply: treat as
				// a delete rather than failing the batch.
				if derr := ix.store.Delete(op.Path); derr != nil {
					return derr
				}
				ix.record(ActionDelete, nil)
				return nil
			}
			ix.record(op.Action, err)
			return doclexerr.TransientIO("stat failed during apply", err)
		}

		extracted, err := ix.extractor.Extract(op.Path)
		if err != nil {
			ix.record(op.Action, err)
			return doclexerr.TransientIO("extraction failed for "+op.Path, err)
		}

		// os.FileInfo exposes no portable file-creation time, so ModTime
		// doubles as created_date.
		fields := docfields.Build(op.Path, docfields.FileStat{
			Path:       op.Path,
			Size:       fi.Size(),
			CreatedAt:  fi.ModTime(),
			ModifiedAt: fi.ModTime(),
		}, extracted, time.Now())

		if err := ix.store.AddOrReplace(op.Path, fields); err != nil {
			ix.record(op.Action, err)
			return err
		}
		ix.record(op.Action, nil)
		return nil

	default:
		return doclexerr.Internal("unknown reconcile action: "+string(op.Action), nil)
	}
}

func (ix *Indexer) record(action Action, applyErr error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.progress.FilesProcessed++
	if applyErr != nil {
		ix.progress.Errors++
		return
	}
	switch action {
	case ActionAdd:
		ix.progress.Added++
	case ActionUpdate:
		ix.progress.Updated++
	case ActionDelete:
		ix.progress.Deleted++
	case ActionSkip:
		ix.progress.Skipped++
	}
}

// Snapshot returns the progress counters accumulated so far.
func (ix *Indexer) Snapshot() Progress {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.progress
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Reconcile walks roots, classifies every eligible path plus any indexed
// path no longer present, batches the result across ix.cfg.Workers worker
// goroutines, and commits after each drained batch.
func Reconcile(ctx context.Context, ix *Indexer, roots []string, matcher *crawl.Matcher, onProgress ProgressFunc) error {
	results := crawl.JoinRoots(ctx, roots, matcher)

	seen := make(map[string]bool)
	var seenMu sync.Mutex

	ops := make(chan Op, ix.cfg.BatchSize*2)
	var walkErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(ops)
		for r := range results {
			if r.Err != nil {
				walkErr = r.Err
				continue
			}
			fi, err := os.Stat(r.File.Path)
			if err != nil {
				continue
			}
			seenMu.Lock()
			seen[r.File.Path] = true
			seenMu.Unlock()

			action, err := ix.Classify(r.File.Path, fi.Size(), fi.ModTime().UnixMilli())
			if err != nil {
				slog.Warn("classify failed", slog.String("path", r.File.Path), slog.Any("error", err))
				continue
			}
			if action == ActionSkip {
				ix.record(ActionSkip, nil)
				continue
			}
			select {
			case ops <- Op{Path: r.File.Path, Action: action}:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := runBatched(ctx, ix, ops, onProgress); err != nil {
		return err
	}
	wg.Wait()
	if walkErr != nil {
		return doclexerr.TransientIO("crawl walk encountered an error", walkErr)
	}

	missing, err := ix.ClassifyMissing(seen)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	missingCh := make(chan Op, len(missing))
	for _, op := range missing {
		missingCh <- op
	}
	close(missingCh)
	return runBatched(ctx, ix, missingCh, onProgress)
}

// runBatched drains ops across ix.cfg.Workers goroutines, batching
// Commit calls so a single commit follows each drained batch rather than
// one commit per document.
func runBatched(ctx context.Context, ix *Indexer, ops <-chan Op, onProgress ProgressFunc) error {
	workers := ix.cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	batchDone := make(chan struct{})
	var pending int
	var pendingMu sync.Mutex

	lastProgress := time.Now()
	progressTicker := time.NewTicker(ix.cfg.ProgressPeriod)
	defer progressTicker.Stop()

	reportIfDue := func(force bool) {
		if onProgress == nil {
			return
		}
		snap := ix.Snapshot()
		if force || snap.FilesProcessed%ix.cfg.ProgressEvery == 0 || time.Since(lastProgress) >= ix.cfg.ProgressPeriod {
			onProgress(snap)
			lastProgress = time.Now()
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for op := range ops {
				if err := ix.Apply(op); err != nil {
					errCh <- err
				}
				pendingMu.Lock()
				pending++
				shouldCommit := pending >= ix.cfg.BatchSize
				if shouldCommit {
					pending = 0
				}
				pendingMu.Unlock()
				if shouldCommit {
					if err := ix.store.Commit(ctx); err != nil {
						errCh <- err
					}
				}
				reportIfDue(false)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(batchDone)
	}()

	select {
	case <-batchDone:
	case <-ctx.Done():
		<-batchDone
	}

	if err := ix.store.Commit(ctx); err != nil {
		return err
	}
	reportIfDue(true)

	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
