// Package watch is the watch processor: it subscribes to filesystem
// notifications for each configured root, coalesces rapid event bursts
// per path, and applies the surviving operations to the index in one
// batch per drain.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/doclex/doclex/internal/crawl"
	"github.com/doclex/doclex/internal/indexstore"
	"github.com/doclex/doclex/internal/reconcile"
)

// Kind is the coalesced pending-event kind for a path.
type Kind int

const (
	KindAdd Kind = iota
	KindModify
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "ADD"
	case KindModify:
		return "MODIFY"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one filesystem notification attributed to the root it was
// observed under (the root is needed to evaluate eligibility globs,
// which are relative to it).
type Event struct {
	Path string
	Root string
	Kind Kind
}

// Config controls debounce timing and the backpressure cap.
type Config struct {
	// Debounce is the quiet interval after which the buffer drains
	// (lucene.crawler.watch-debounce-ms, default 200ms).
	Debounce time.Duration

	// HardCap is the buffer size above which the processor stops
	// draining and schedules a full reconciliation instead.
	HardCap int
}

// DefaultConfig returns the default debounce window and buffer cap.
func DefaultConfig() Config {
	return Config{Debounce: 200 * time.Millisecond, HardCap: 10000}
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 200 * time.Millisecond
	}
	if c.HardCap <= 0 {
		c.HardCap = 10000
	}
	return c
}

// Processor owns the fsnotify subscriptions and the coalescing buffer.
// Per the dependency rules it calls into the indexer and the index
// service only; a backpressure overflow is signalled to whoever drives
// startup reconciliation over ReconcileRequests, never by reference.
type Processor struct {
	cfg     Config
	ix      *reconcile.Indexer
	store   *indexstore.Store
	matcher *crawl.Matcher

	buf *buffer

	reconcileCh chan struct{}

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	roots   map[string]string // watched dir -> configured root
	stopped bool
}

// New builds a Processor over the given indexer and index service.
func New(ix *reconcile.Indexer, store *indexstore.Store, matcher *crawl.Matcher, cfg Config) *Processor {
	cfg = cfg.withDefaults()
	p := &Processor{
		cfg:         cfg,
		ix:          ix,
		store:       store,
		matcher:     matcher,
		reconcileCh: make(chan struct{}, 1),
		roots:       make(map[string]string),
	}
	p.buf = newBuffer(cfg.Debounce, cfg.HardCap)
	return p
}

// ReconcileRequests delivers a signal whenever the buffer overflowed and
// a full reconciliation should replace incremental catch-up.
func (p *Processor) ReconcileRequests() <-chan struct{} {
	return p.reconcileCh
}

// Run subscribes to every root and processes events until ctx is done.
// It returns the ctx error on cancellation, or the subscription error if
// fsnotify itself fails to start.
func (p *Processor) Run(ctx context.Context, roots []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	p.mu.Lock()
	p.watcher = w
	p.mu.Unlock()
	defer w.Close()

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve watch root %s: %w", root, err)
		}
		if err := p.addRecursive(abs, abs); err != nil {
			return fmt.Errorf("subscribe to %s: %w", root, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			p.buf.stop()
			return ctx.Err()
		case batch, ok := <-p.buf.drained:
			if !ok {
				return nil
			}
			p.drain(ctx, batch)
		case ev, ok := <-w.Events:
			if !ok {
				p.buf.stop()
				return nil
			}
			p.handle(ev)
		case werr, ok := <-w.Errors:
			if !ok {
				p.buf.stop()
				return nil
			}
			slog.Warn("watch subscription error", slog.String("error", werr.Error()))
		}
	}
}

// handle translates one raw fsnotify event into the buffer. Eligibility
// is deliberately NOT checked here: non-matching paths are dropped at
// the drain boundary instead.
func (p *Processor) handle(ev fsnotify.Event) {
	root := p.rootFor(ev.Name)
	if root == "" {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		// A new directory extends the subscription; files go to the buffer.
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := p.addRecursive(ev.Name, root); err != nil {
				slog.Warn("failed to watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			return
		}
		p.add(Event{Path: ev.Name, Root: root, Kind: KindAdd})
	case ev.Op.Has(fsnotify.Write):
		p.add(Event{Path: ev.Name, Root: root, Kind: KindModify})
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// A rename is observed as the old path disappearing; the new path
		// arrives as its own Create event.
		p.add(Event{Path: ev.Name, Root: root, Kind: KindDelete})
	}
}

func (p *Processor) add(ev Event) {
	if !p.buf.add(ev) {
		// Overflow: drop the incremental buffer and ask for a full
		// reconciliation instead of dispatching thousands of small ops.
		slog.Warn("watch buffer overflow, scheduling full reconciliation",
			slog.Int("cap", p.cfg.HardCap))
		select {
		case p.reconcileCh <- struct{}{}:
		default:
		}
	}
}

// drain applies a coalesced batch: ineligible paths are dropped here,
// each survivor dispatches one indexer action, and a single commit
// covers the whole drain.
func (p *Processor) drain(ctx context.Context, batch []Event) {
	applied := 0
	for _, ev := range batch {
		rel, err := filepath.Rel(ev.Root, ev.Path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if !p.matcher.Eligible(rel) {
			continue
		}

		var op reconcile.Op
		switch ev.Kind {
		case KindDelete:
			op = reconcile.Op{Path: ev.Path, Action: reconcile.ActionDelete}
		case KindAdd:
			op = reconcile.Op{Path: ev.Path, Action: reconcile.ActionAdd}
		case KindModify:
			op = reconcile.Op{Path: ev.Path, Action: reconcile.ActionUpdate}
		}
		if err := p.ix.Apply(op); err != nil {
			slog.Warn("watch apply failed",
				slog.String("path", ev.Path),
				slog.String("kind", ev.Kind.String()),
				slog.String("error", err.Error()))
			continue
		}
		applied++
	}
	if applied == 0 {
		return
	}
	if err := p.store.Commit(ctx); err != nil {
		slog.Error("watch drain commit failed", slog.String("error", err.Error()))
	}
}

// rootFor returns the configured root a path falls under.
func (p *Processor) rootFor(path string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	dir := filepath.Dir(path)
	for {
		if root, ok := p.roots[dir]; ok {
			return root
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// addRecursive subscribes dir and every subdirectory, pruning subtrees
// the matcher excludes wholesale.
func (p *Processor) addRecursive(dir, root string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, rerr := filepath.Rel(root, path); rerr == nil && rel != "." {
			if p.matcher.ExcludesDir(filepath.ToSlash(rel)) {
				return fs.SkipDir
			}
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.watcher == nil {
			return fmt.Errorf("watcher not started")
		}
		if err := p.watcher.Add(path); err != nil {
			return nil
		}
		p.roots[path] = root
		return nil
	})
}
