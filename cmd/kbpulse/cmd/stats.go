package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbpulse/internal/config"
	"github.com/Aman-CERP/kbpulse/internal/telemetry"
)

// persistedStats is the JSON shape of `stats --json`.
type persistedStats struct {
	From           string                            `json:"from"`
	To             string                            `json:"to"`
	Counters       map[string]int64                  `json:"counters"`
	RebuildLatency map[telemetry.LatencyBucket]int64 `json:"rebuildLatency"`
	HotSlugs       []telemetry.Count                 `json:"hotSlugs"`
	TopTerms       []telemetry.Count                 `json:"topTerms"`
}

// newStatsCmd creates the stats command.
func newStatsCmd() *cobra.Command {
	var (
		days       int
		top        int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted usage telemetry",
		Long: `Show counters flushed by 'kbpulse serve' to the local telemetry
database: records emitted, streams opened, rebuilds, queries, the most
active articles and the most searched terms.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stats, err := loadStats(cmd.Context(), cfg, time.Now(), days, top)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			p := newPrinter(cmd)
			p.Header(fmt.Sprintf("Telemetry %s to %s", stats.From, stats.To))
			for _, name := range telemetry.CounterNames {
				p.Info(fmt.Sprintf("%-20s %d", name, stats.Counters[name]))
			}
			p.Header("Rebuild latency")
			for _, b := range telemetry.LatencyBuckets {
				p.Info(fmt.Sprintf("%-20s %d", b, stats.RebuildLatency[b]))
			}
			p.Header("Most active articles")
			for _, c := range stats.HotSlugs {
				p.Info(fmt.Sprintf("%-40s %d", c.Key, c.Count))
			}
			p.Header("Top search terms")
			for _, c := range stats.TopTerms {
				p.Info(fmt.Sprintf("%-40s %d", c.Key, c.Count))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to aggregate")
	cmd.Flags().IntVar(&top, "top", 10, "Number of slugs and terms to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func loadStats(ctx context.Context, cfg *config.Config, now time.Time, days, top int) (*persistedStats, error) {
	if days < 1 {
		days = 1
	}
	store, err := telemetry.OpenSQLiteStore(telemetryPath(cfg))
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	to := now.Format(time.DateOnly)
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)

	stats := &persistedStats{From: from, To: to}
	if stats.Counters, err = store.GetCounters(ctx, from, to); err != nil {
		return nil, err
	}
	if stats.RebuildLatency, err = store.GetLatencyCounts(ctx, from, to); err != nil {
		return nil, err
	}
	if stats.HotSlugs, err = store.GetHotSlugs(ctx, top); err != nil {
		return nil, err
	}
	if stats.TopTerms, err = store.GetTopTerms(ctx, top); err != nil {
		return nil, err
	}
	return stats, nil
}
