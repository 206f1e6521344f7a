package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/doclex/doclex/internal/crawl"
	"github.com/doclex/doclex/internal/extract"
	"github.com/doclex/doclex/internal/indexstore"
	"github.com/doclex/doclex/internal/reconcile"
	"github.com/doclex/doclex/internal/ui"
)

// newIndexCmd creates the index command: a one-shot crawl + reconcile.
func newIndexCmd() *cobra.Command {
	var dirs []string
	var plain bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "index [directories...]",
		Short: "Crawl the configured directories once and update the index",
		Long: `Walk every configured (or explicitly given) directory, diff it against
the index, and apply the resulting ADD/UPDATE/DELETE operations. Files
already up to date are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			roots := cfg.Crawler.Directories
			if len(args) > 0 {
				roots = args
			}
			if len(dirs) > 0 {
				roots = dirs
			}
			if len(roots) == 0 {
				return &configError{cause: fmt.Errorf("no directories configured; pass them as arguments or set crawler.directories")}
			}

			matcher, err := crawl.NewMatcher(cfg.Crawler.IncludePatterns, cfg.Crawler.ExcludePatterns)
			if err != nil {
				return &configError{cause: err}
			}

			store, err := indexstore.Open(indexstore.Config{
				Path:                 cfg.Index.Path,
				SchemaMismatchAction: indexstore.SchemaMismatchAction(cfg.Index.SchemaMismatchAction),
				CommitTimeout:        time.Duration(cfg.Index.CommitTimeoutMs) * time.Millisecond,
				BulkIndexThreshold:   cfg.Crawler.BulkIndexThreshold,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			extractor := extract.NewDefault(cfg.Crawler.MaxContentLength, cfg.Crawler.DetectLanguage)
			indexer := reconcile.New(store, extractor, reconcile.Config{
				BatchSize:      cfg.Crawler.BatchSize,
				BatchTimeout:   time.Duration(cfg.Crawler.BatchTimeoutMs) * time.Millisecond,
				Workers:        cfg.Crawler.ThreadPoolSize,
				ProgressEvery:  cfg.Crawler.ProgressNotificationFiles,
				ProgressPeriod: time.Duration(cfg.Crawler.ProgressNotificationIntervalMs) * time.Millisecond,
			})

			renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(plain),
				ui.WithNoColor(noColor)))
			if err := renderer.Start(cmd.Context()); err != nil {
				return err
			}
			defer renderer.Stop()

			start := time.Now()
			err = reconcile.Reconcile(cmd.Context(), indexer, roots, matcher, func(p reconcile.Progress) {
				renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   ui.StageIndexing,
					Current: p.FilesProcessed,
					Message: fmt.Sprintf("+%d ~%d -%d =%d", p.Added, p.Updated, p.Deleted, p.Skipped),
				})
			})
			if err != nil {
				return err
			}

			snap := indexer.Snapshot()
			renderer.Complete(ui.CompletionStats{
				Files:     snap.FilesProcessed,
				Documents: snap.Added + snap.Updated,
				Duration:  time.Since(start),
				Errors:    snap.Errors,
			})
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "Directory to crawl (repeatable; overrides config)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Force plain (non-interactive) output")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
