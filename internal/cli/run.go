//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retailkpi/internal/logging"
	"github.com/pgEdge/pgedge-retailkpi/internal/metrics"
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/reconcile"
	"github.com/pgEdge/pgedge-retailkpi/internal/store"
)

var (
	runFrom        string
	runTo          string
	runWorkers     int
	runMetricsFile string
	runDryRun      bool
	runThreshold   string
	runUnguarded   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute KPIs from the input tables and publish them",
	Long: `Load orders, line items and payments from the configured backend,
run the pipeline (price baselines, discount classification, order
aggregation, reconciliation, reports) and replace the published KPI
tables in one transaction.

Example:
  pgedge-retailkpi run --backend postgres --connection "postgres://..."
  pgedge-retailkpi run --from 2017-01 --to 2017-12 --dry-run
  pgedge-retailkpi run --metrics-file /var/lib/node_exporter/retailkpi.prom`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFrom, "from", "",
		"first purchase month to load (YYYY-MM)")
	runCmd.Flags().StringVar(&runTo, "to", "",
		"last purchase month to load (YYYY-MM)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0,
		"number of reports computed concurrently")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "",
		"write Prometheus metrics to this file after the run")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false,
		"compute and summarize without publishing")
	runCmd.Flags().StringVar(&runThreshold, "discount-threshold", "",
		"fraction below the baseline median that counts as a discount")
	runCmd.Flags().BoolVar(&runUnguarded, "unguarded", false,
		"disable the purchase window and price/freight floors")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if runFrom != "" {
		cfg.Run.From = runFrom
	}
	if runTo != "" {
		cfg.Run.To = runTo
	}
	if runWorkers > 0 {
		cfg.Run.Workers = runWorkers
	}
	if runMetricsFile != "" {
		cfg.Run.MetricsFile = runMetricsFile
	}
	if runDryRun {
		cfg.Run.DryRun = true
	}
	if runThreshold != "" {
		cfg.Params.DiscountThreshold = runThreshold
	}
	if runUnguarded {
		cfg.Params.Guarded = false
	}

	// Validate configuration
	if err := cfg.ValidateRun(); err != nil {
		return err
	}
	p, err := cfg.Params.ToParameters()
	if err != nil {
		return err
	}
	from, to, err := cfg.Run.Range()
	if err != nil {
		return err
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	m := metrics.NewPipelineMetrics(reg)

	err = execute(ctx, p, store.Filter{From: from, To: to}, m)

	if cfg.Run.MetricsFile != "" {
		if werr := metrics.WriteTextfile(cfg.Run.MetricsFile, reg); werr != nil {
			logging.Warn().
				Err(werr).
				Str("path", cfg.Run.MetricsFile).
				Msg("Failed to write metrics file")
		}
	}
	return err
}

func execute(ctx context.Context, p params.Parameters, f store.Filter, m *metrics.PipelineMetrics) error {
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	start := time.Now()
	ds, err := b.Load(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}
	m.ObserveStage("load", time.Since(start))

	current := params.NewStore(p)
	runner := pipeline.NewRunner(
		pipeline.WithMetrics(m),
		pipeline.WithWorkers(cfg.Run.Workers),
	)
	out, err := runner.Run(ctx, ds, current.Snapshot())
	if err != nil {
		return err
	}

	printSummary(out)

	if cfg.Run.DryRun {
		logging.Info().
			Str("run_id", out.RunID).
			Msg("Dry run, nothing published")
		return nil
	}

	start = time.Now()
	if err := b.Publish(ctx, out); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	m.ObserveStage("publish", time.Since(start))
	return nil
}

// printSummary logs the row counts of a completed run.
func printSummary(out *pipeline.Output) {
	logging.Info().
		Str("run_id", out.RunID).
		Str("params_fingerprint", out.ParamsFingerprint).
		Int("orders", len(out.Orders)).
		Int("clean_orders", len(out.Clean())).
		Int("excluded_orders", len(out.Reconciliation.Excluded)).
		Msg("Final summary")

	summary := out.Reconciliation.Summary()
	reasons := make([]string, 0, len(summary))
	for reason := range summary {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		logging.Info().
			Str("reason", reason).
			Int("orders", summary[reconcile.Reason(reason)]).
			Msg("Excluded")
	}

	counts := out.RowCounts()
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		logging.Info().
			Str("table", table).
			Int("rows", counts[table]).
			Msg("Output")
	}
}
