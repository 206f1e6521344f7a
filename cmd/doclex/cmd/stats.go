package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/doclex/doclex/internal/indexstore"
	"github.com/doclex/doclex/internal/observe"
	"github.com/doclex/doclex/internal/queryexec"
	"github.com/doclex/doclex/internal/telemetry"
	"github.com/doclex/doclex/internal/ui"
)

// newStatsCmd creates the stats command: print getIndexStats.
func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print index statistics",
		Long: `Open the index read-side and print document counts, disk usage, facet
value breakdowns, date ranges, and recent query latency. Fails if a
running server holds the index lock.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := indexstore.Open(indexstore.DefaultConfig(cfg.Index.Path))
			if err != nil {
				return err
			}
			defer store.Close()

			var statsSource observe.QueryStatsSource
			if metrics, merr := telemetry.Open(telemetryPath(cfg.Index.Path)); merr == nil {
				defer metrics.Close()
				statsSource = metrics
			}

			obs := observe.New(store, queryexec.NewExecutor(store), statsSource)
			stats, err := obs.GetIndexStats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			renderer := ui.NewStatusRenderer(out, noColor)
			if err := renderer.Render(ui.StatusInfo{
				ProjectName:   cfg.Index.Path,
				TotalFiles:    int(stats.DocumentCount),
				DocumentCount: int(stats.DocumentCount),
				SegmentCount:  stats.SegmentCount,
				DiskBytes:     stats.DiskBytes,
			}); err != nil {
				return err
			}

			for _, ft := range stats.FacetTops {
				fmt.Fprintf(out, "  %s:\n", ft.Field)
				for _, v := range ft.Values {
					fmt.Fprintf(out, "    %-24s %d\n", v.Term, v.DocFreq)
				}
			}
			for _, h := range stats.DateHints {
				fmt.Fprintf(out, "  %s: %s .. %s\n", h.Field,
					time.UnixMilli(h.Min).UTC().Format("2006-01-02"),
					time.UnixMilli(h.Max).UTC().Format("2006-01-02"))
			}
			if rq := stats.RecentQueries; rq != nil && rq.Count > 0 {
				fmt.Fprintf(out, "  queries (24h): %d, p50 %.1fms, p95 %.1fms\n", rq.Count, rq.P50Ms, rq.P95Ms)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
