// Package engine assembles the subsystems into one running process:
// index service, extractor, indexer, startup reconciliation, watch
// processor, query executor, observability, telemetry, and the MCP
// server. Call edges are one-directional (crawler/watcher -> indexer ->
// index service); the watch processor reaches the reconciler only over
// its request channel.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doclex/doclex/internal/config"
	"github.com/doclex/doclex/internal/crawl"
	"github.com/doclex/doclex/internal/extract"
	"github.com/doclex/doclex/internal/indexstore"
	"github.com/doclex/doclex/internal/mcpserver"
	"github.com/doclex/doclex/internal/observe"
	"github.com/doclex/doclex/internal/queryexec"
	"github.com/doclex/doclex/internal/reconcile"
	"github.com/doclex/doclex/internal/telemetry"
	"github.com/doclex/doclex/internal/watch"
)

// Engine owns the process lifecycle.
type Engine struct {
	cfg *config.Config

	store     *indexstore.Store
	extractor extract.Extractor
	indexer   *reconcile.Indexer
	matcher   *crawl.Matcher
	watchProc *watch.Processor
	exec      *queryexec.Executor
	obs       *observe.Observer
	metrics   *telemetry.Store
	server    *mcpserver.Server

	paused           atomic.Bool
	pendingReconcile atomic.Bool
	crawling         atomic.Bool
	watchActive      atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// New builds the full dependency graph from cfg. The returned engine
// holds the index directory lock until Close.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storeCfg := indexstore.Config{
		Path:                 cfg.Index.Path,
		SchemaMismatchAction: indexstore.SchemaMismatchAction(cfg.Index.SchemaMismatchAction),
		CommitTimeout:        time.Duration(cfg.Index.CommitTimeoutMs) * time.Millisecond,
		FastRefreshInterval:  time.Duration(cfg.Index.FastRefreshIntervalMs) * time.Millisecond,
		SlowRefreshInterval:  time.Duration(cfg.Crawler.SlowNRTRefreshIntervalMs) * time.Millisecond,
		BulkIndexThreshold:   cfg.Crawler.BulkIndexThreshold,
	}
	store, err := indexstore.Open(storeCfg)
	if err != nil {
		return nil, err
	}

	matcher, err := crawl.NewMatcher(cfg.Crawler.IncludePatterns, cfg.Crawler.ExcludePatterns)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	extractor := extract.NewDefault(cfg.Crawler.MaxContentLength, cfg.Crawler.DetectLanguage)

	indexer := reconcile.New(store, extractor, reconcile.Config{
		BatchSize:      cfg.Crawler.BatchSize,
		BatchTimeout:   time.Duration(cfg.Crawler.BatchTimeoutMs) * time.Millisecond,
		Workers:        cfg.Crawler.ThreadPoolSize,
		ProgressEvery:  cfg.Crawler.ProgressNotificationFiles,
		ProgressPeriod: time.Duration(cfg.Crawler.ProgressNotificationIntervalMs) * time.Millisecond,
	})

	watchProc := watch.New(indexer, store, matcher, watch.Config{
		Debounce: time.Duration(cfg.Crawler.WatchDebounceMs) * time.Millisecond,
	})

	exec := queryexec.NewExecutor(store)

	var metrics *telemetry.Store
	if cfg.Index.Path != "" {
		metrics, err = telemetry.Open(filepath.Join(filepath.Dir(cfg.Index.Path), "telemetry.db"))
		if err != nil {
			slog.Warn("telemetry disabled", slog.String("error", err.Error()))
			metrics = nil
		}
	}

	var statsSource observe.QueryStatsSource
	if metrics != nil {
		statsSource = metrics
	}
	obs := observe.New(store, exec, statsSource)

	e := &Engine{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		indexer:   indexer,
		matcher:   matcher,
		watchProc: watchProc,
		exec:      exec,
		obs:       obs,
		metrics:   metrics,
	}

	server, err := mcpserver.NewServer(exec, obs, e, metrics)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.server = server
	return e, nil
}

// Store exposes the index service for CLI commands that bypass the MCP
// surface (stats, doctor).
func (e *Engine) Store() *indexstore.Store { return e.store }

// Observer exposes the observability component for CLI commands.
func (e *Engine) Observer() *observe.Observer { return e.obs }

// Executor exposes the query executor for CLI commands.
func (e *Engine) Executor() *queryexec.Executor { return e.exec }

// Metrics exposes the telemetry store; may be nil.
func (e *Engine) Metrics() *telemetry.Store { return e.metrics }

// Run starts the background components and serves MCP over stdio until
// ctx is cancelled. It returns once everything has wound down.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if e.cfg.Crawler.WatchEnabled && len(e.cfg.Crawler.Directories) > 0 {
		e.watchActive.Store(true)
		g.Go(func() error {
			defer e.watchActive.Store(false)
			err := e.watchProc.Run(gctx, e.cfg.Crawler.Directories)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		e.reconcileLoop(gctx)
		return nil
	})

	g.Go(func() error {
		err := e.server.Serve(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	return g.Wait()
}

// reconcileLoop runs the startup catch-up crawl and then serves
// watch-overflow reconciliation requests.
func (e *Engine) reconcileLoop(ctx context.Context) {
	if e.cfg.Crawler.CrawlOnStartup && e.cfg.Crawler.ReconciliationEnabled {
		e.runReconciliation(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.watchProc.ReconcileRequests():
			if e.paused.Load() {
				e.pendingReconcile.Store(true)
				continue
			}
			e.runReconciliation(ctx)
		}
	}
}

func (e *Engine) runReconciliation(ctx context.Context) {
	if e.paused.Load() {
		e.pendingReconcile.Store(true)
		return
	}
	if len(e.cfg.Crawler.Directories) == 0 {
		return
	}

	e.crawling.Store(true)
	defer e.crawling.Store(false)

	start := time.Now()
	err := reconcile.Reconcile(ctx, e.indexer, e.cfg.Crawler.Directories, e.matcher, func(p reconcile.Progress) {
		slog.Info("reconciliation progress",
			slog.Int("processed", p.FilesProcessed),
			slog.Int("added", p.Added),
			slog.Int("updated", p.Updated),
			slog.Int("deleted", p.Deleted),
			slog.Int("skipped", p.Skipped),
			slog.Int("errors", p.Errors))
	})
	if err != nil {
		slog.Error("reconciliation failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("reconciliation complete", slog.Duration("elapsed", time.Since(start)))
}

// PauseCrawler stops new crawl/reconcile work from being picked up;
// in-flight batches finish.
func (e *Engine) PauseCrawler() {
	e.paused.Store(true)
	slog.Info("crawler paused")
}

// ResumeCrawler re-enables crawling and immediately serves any
// reconciliation request that arrived while paused.
func (e *Engine) ResumeCrawler() {
	e.paused.Store(false)
	slog.Info("crawler resumed")
	if e.pendingReconcile.CompareAndSwap(true, false) {
		go e.runReconciliation(context.Background())
	}
}

// CrawlerStatus reports the crawler state and progress counters.
func (e *Engine) CrawlerStatus() mcpserver.CrawlerStatus {
	state := "idle"
	switch {
	case e.paused.Load():
		state = "paused"
	case e.crawling.Load():
		state = "crawling"
	case e.watchActive.Load():
		state = "watching"
	}
	snap := e.indexer.Snapshot()
	return mcpserver.CrawlerStatus{
		State:          state,
		FilesProcessed: snap.FilesProcessed,
		Added:          snap.Added,
		Updated:        snap.Updated,
		Deleted:        snap.Deleted,
		Skipped:        snap.Skipped,
		Errors:         snap.Errors,
		WatchActive:    e.watchActive.Load(),
	}
}

// Close issues the final commit, releases the index lock, and closes
// the telemetry store. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.store != nil {
			e.closeErr = e.store.Close()
		}
		if e.metrics != nil {
			if err := e.metrics.Close(); err != nil && e.closeErr == nil {
				e.closeErr = err
			}
		}
	})
	return e.closeErr
}
