//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline runs the KPI stages in order over one dataset.
//
// The stages are baseline estimation, discount classification, order
// aggregation, reconciliation and reporting. Each stage is a pure
// function of the previous stage's output and one Parameters snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-retailkpi/internal/logging"
	"github.com/pgEdge/pgedge-retailkpi/internal/metrics"
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/aggregate"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/baseline"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/classify"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/reconcile"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/report"
)

// Stage names, in execution order.
const (
	StageValidate  = "validate"
	StageBaseline  = "baseline"
	StageClassify  = "classify"
	StageAggregate = "aggregate"
	StageReconcile = "reconcile"
	StageReport    = "report"
)

// ErrParamsChanged is returned when the parameter snapshot of a run was
// modified while the run was in progress.
var ErrParamsChanged = errors.New("parameters changed during run")

// Output holds everything a run produces. Slices are sorted and never
// shared with the input.
type Output struct {
	RunID             string                   `json:"-"`
	Params            params.Parameters        `json:"-"`
	ParamsFingerprint string                   `json:"params_fingerprint"`
	Baselines         []model.PriceBaseline    `json:"baselines"`
	Items             []model.EnrichedLineItem `json:"items"`
	Orders            []model.OrderKPI         `json:"orders"`
	Reconciliation    reconcile.Result         `json:"reconciliation"`
	Monthly           []report.MonthlyRow      `json:"monthly"`
	Promo             []report.PromoRow        `json:"promo"`
	Rollup            report.Rollup            `json:"rollup"`
	Cohorts           []model.CohortRecord     `json:"cohorts"`
	Retention         []report.RetentionRow    `json:"retention"`
}

// Clean returns the orders that passed reconciliation.
func (o *Output) Clean() []model.OrderKPI {
	return o.Reconciliation.Clean
}

// StageHook is called after each stage completes.
type StageHook func(stage string)

// Runner executes the pipeline.
type Runner struct {
	metrics  *metrics.PipelineMetrics
	hook     StageHook
	workers  int
	newRunID func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records stage timings and output sizes on m.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithStageHook registers a callback invoked after every stage.
func WithStageHook(h StageHook) Option {
	return func(r *Runner) { r.hook = h }
}

// WithWorkers bounds how many reports are computed concurrently.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithRunID overrides run id generation.
func WithRunID(f func() string) Option {
	return func(r *Runner) { r.newRunID = f }
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		workers:  4,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	return r
}

// Run executes every stage over ds with the parameter snapshot p. Either
// the complete output is returned or an error; there is no partial result.
func (r *Runner) Run(ctx context.Context, ds *model.Dataset, p *params.Parameters) (*Output, error) {
	out, err := r.run(ctx, ds, p)
	if err != nil {
		r.metrics.IncRun("failure")
		logging.Error().Err(err).Msg("Pipeline run failed")
		return nil, err
	}
	r.metrics.IncRun("success")
	return out, nil
}

func (r *Runner) run(ctx context.Context, ds *model.Dataset, p *params.Parameters) (*Output, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	if p == nil {
		return nil, fmt.Errorf("parameters are required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out := &Output{
		RunID:             r.newRunID(),
		Params:            *p,
		ParamsFingerprint: p.Fingerprint(),
	}

	logging.Info().
		Str("run_id", out.RunID).
		Str("params", out.ParamsFingerprint).
		Int("orders", len(ds.Orders)).
		Int("items", len(ds.Items)).
		Int("payments", len(ds.Payments)).
		Msg("Starting pipeline run")

	if err := r.stage(ctx, StageValidate, out, p, func() (int, error) {
		return len(ds.Items), ValidateDataset(ds)
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageBaseline, out, p, func() (n int, err error) {
		out.Baselines, err = baseline.Estimate(ds.Items)
		return len(out.Baselines), err
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageClassify, out, p, func() (n int, err error) {
		if p.Guarded {
			out.Items, err = classify.Guarded(ds.Items, out.Baselines, p)
		} else {
			out.Items, err = classify.Classify(ds.Items, out.Baselines, p)
		}
		return len(out.Items), err
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageAggregate, out, p, func() (n int, err error) {
		out.Orders, err = aggregate.Orders(out.Items, ds.Orders, ds.Payments)
		if err != nil {
			return 0, err
		}
		return len(out.Orders), aggregate.CheckCardinality(out.Items, out.Orders)
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageReconcile, out, p, func() (int, error) {
		out.Reconciliation = reconcile.Filter(out.Orders, p)
		return len(out.Clean()), nil
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageReport, out, p, func() (int, error) {
		err := r.reports(ctx, ds, out, p)
		return len(out.Monthly) + len(out.Promo) + len(out.Rollup.Categories) +
			len(out.Rollup.SKUs) + len(out.Retention), err
	}); err != nil {
		return nil, err
	}

	r.record(out)
	return out, nil
}

// reports runs the independent reductions concurrently. Each goroutine
// writes a distinct field of out.
func (r *Runner) reports(ctx context.Context, ds *model.Dataset, out *Output, p *params.Parameters) error {
	clean := out.Clean()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	g.Go(func() error {
		out.Monthly = report.MonthlyOverview(clean)
		return nil
	})
	g.Go(func() error {
		out.Promo = report.PromoSplit(clean)
		return nil
	})
	g.Go(func() error {
		out.Rollup = report.CategoryRollup(out.Items, clean, ds.Products, p)
		return nil
	})
	g.Go(func() error {
		out.Cohorts = report.Cohorts(clean, ds.Customers)
		out.Retention = report.FilterRetention(report.Retention(out.Cohorts), p.MinCohortSize)
		return nil
	})
	return g.Wait()
}

func (r *Runner) stage(ctx context.Context, name string, out *Output, p *params.Parameters, fn func() (int, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	rows, err := fn()
	elapsed := time.Since(start)
	r.metrics.ObserveStage(name, elapsed)

	if err != nil {
		return fmt.Errorf("%s stage: %w", name, err)
	}
	if p.Fingerprint() != out.ParamsFingerprint {
		return fmt.Errorf("%s stage: %w", name, ErrParamsChanged)
	}

	logging.Info().
		Str("stage", name).
		Int("rows", rows).
		Dur("elapsed", elapsed).
		Msg("Stage complete")

	if r.hook != nil {
		r.hook(name)
	}
	return nil
}

func (r *Runner) record(out *Output) {
	summary := out.Reconciliation.Summary()
	for reason, n := range summary {
		r.metrics.SetExcluded(string(reason), n)
	}
	for table, n := range out.RowCounts() {
		r.metrics.SetRows(table, n)
	}

	logging.Info().
		Str("run_id", out.RunID).
		Int("baselines", len(out.Baselines)).
		Int("items", len(out.Items)).
		Int("orders", len(out.Orders)).
		Int("clean_orders", len(out.Clean())).
		Int("excluded_orders", len(out.Reconciliation.Excluded)).
		Int("negative_margin", summary[reconcile.NegativeMargin]).
		Int("payment_mismatch", summary[reconcile.PaymentMismatch]).
		Msg("Pipeline run complete")
}

// RowCounts returns the number of rows per published table.
func (o *Output) RowCounts() map[string]int {
	return map[string]int{
		"enriched_items":   len(o.Items),
		"clean_orders":     len(o.Clean()),
		"monthly_overview": len(o.Monthly),
		"promo_split":      len(o.Promo),
		"category_rollup":  len(o.Rollup.Categories),
		"sku_rollup":       len(o.Rollup.SKUs),
		"cohort_retention": len(o.Retention),
	}
}
