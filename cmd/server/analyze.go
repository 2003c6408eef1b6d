package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fleet-insights-service/internal/cache"
	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/engine"
	"fleet-insights-service/internal/filter"
	"fleet-insights-service/internal/models"
	"fleet-insights-service/internal/store"
)

// analyzeCmd печатает отчет анализа для фильтра в stdout
func analyzeCmd() *cobra.Command {
	var (
		clients, vehicles []string
		start, end, asOf  string
		metric            string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print a one-shot JSON analysis report for a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			f, err := filter.Parse(clients, vehicles, start, end)
			if err != nil {
				return err
			}
			var at time.Time
			if asOf != "" {
				if at, err = time.Parse(time.RFC3339, asOf); err != nil {
					return fmt.Errorf("--as-of must be RFC3339: %w", err)
				}
			}

			ctx := cmd.Context()
			source, closeSource, err := openSource(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer closeSource()

			logger := newLogger()
			eng := engine.New(cfg.Thresholds, store.NewHolder(source, logger), cache.NewMemoryStore(nil), cfg.Cache.TTL,
				engine.WithLogger(logger), engine.WithWorkers(cfg.Server.Workers))
			if _, err := eng.Reload(ctx); err != nil {
				return err
			}

			report, err := analyze(ctx, eng, f, at, metric)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringSliceVar(&clients, "client", nil, "Client ids (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&vehicles, "vehicle", nil, "Vehicle ids (repeatable or comma separated)")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "End date, inclusive (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference time for trend rules (RFC3339, default: latest record)")
	cmd.Flags().StringVar(&metric, "compare", "", "Also rank vehicles by this metric")
	return cmd
}

type analyzeReport struct {
	engine.Analysis
	Comparison *models.ComparisonResult `json:"comparison,omitempty"`
}

func analyze(ctx context.Context, eng *engine.Engine, f models.Filter, asOf time.Time, metric string) (analyzeReport, error) {
	a, err := eng.Analyze(ctx, f, asOf)
	if err != nil {
		return analyzeReport{}, err
	}
	out := analyzeReport{Analysis: a}
	if metric != "" {
		res, err := eng.Compare(ctx, f, metric)
		if err != nil {
			return analyzeReport{}, err
		}
		out.Comparison = &res
	}
	return out, nil
}
