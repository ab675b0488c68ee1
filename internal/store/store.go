//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package store defines where the pipeline reads its input streams from
// and where it publishes its output tables.
package store

import (
	"context"
	"time"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline"
)

// Input tables, in load order.
const (
	TableCustomers = "customers"
	TableSellers   = "sellers"
	TableProducts  = "products"
	TableOrders    = "orders"
	TableItems     = "order_items"
	TablePayments  = "order_payments"
)

// Output tables, in publish order.
const (
	TableBaselines      = "kpi_price_baseline"
	TableEnrichedItems  = "kpi_enriched_items"
	TableOrderKPIs      = "kpi_orders"
	TableExclusions     = "kpi_order_exclusions"
	TableMonthly        = "kpi_monthly_overview"
	TablePromo          = "kpi_promo_split"
	TableCategoryRollup = "kpi_category_rollup"
	TableSKURollup      = "kpi_sku_rollup"
	TableCohorts        = "kpi_cohort_orders"
	TableRetention      = "kpi_cohort_retention"
	TableMetadata       = "kpi_metadata"
)

// InputTables lists the input tables in dependency order.
var InputTables = []string{
	TableCustomers, TableSellers, TableProducts, TableOrders, TableItems, TablePayments,
}

// OutputTables lists the published tables.
var OutputTables = []string{
	TableBaselines, TableEnrichedItems, TableOrderKPIs, TableExclusions,
	TableMonthly, TablePromo, TableCategoryRollup, TableSKURollup,
	TableCohorts, TableRetention,
}

// Filter restricts which orders are loaded. Zero bounds are open.
type Filter struct {
	From model.Period
	To   model.Period
}

// Bounds returns the half-open purchase time range [lo, hi) the filter
// admits. A zero time means unbounded on that side.
func (f Filter) Bounds() (lo, hi time.Time) {
	if !f.From.IsZero() {
		lo = f.From.Start()
	}
	if !f.To.IsZero() {
		hi = f.To.End()
	}
	return lo, hi
}

// Contains reports whether a purchase at t passes the filter.
func (f Filter) Contains(t time.Time) bool {
	lo, hi := f.Bounds()
	t = t.UTC()
	if !lo.IsZero() && t.Before(lo) {
		return false
	}
	if !hi.IsZero() && !t.Before(hi) {
		return false
	}
	return true
}

// Source loads the input record streams.
type Source interface {
	// Load reads all six streams. Orders are restricted by f; items and
	// payments follow their orders; reference streams are always complete.
	Load(ctx context.Context, f Filter) (*model.Dataset, error)
}

// Sink publishes a run's output.
type Sink interface {
	// Publish replaces every output table with the contents of out in a
	// single transaction and records the run in the metadata table.
	Publish(ctx context.Context, out *pipeline.Output) error
}

// RunMetadata describes the last published run.
type RunMetadata struct {
	RunID             string
	Version           string
	ParamsFingerprint string
	PublishedAt       time.Time
}

// Backend is an opened storage backend.
type Backend interface {
	Source
	Sink

	// EnsureSchema creates all input, output and metadata tables if they
	// do not exist.
	EnsureSchema(ctx context.Context) error

	// DropSchema drops every table the backend owns.
	DropSchema(ctx context.Context) error

	// Seed writes ds into the input tables, replacing their contents.
	Seed(ctx context.Context, ds *model.Dataset) error

	// LastRun returns the metadata of the last published run.
	LastRun(ctx context.Context) (RunMetadata, error)

	// Close releases the backend's connections.
	Close() error
}

// Driver opens backends of one kind.
type Driver interface {
	// Name returns the backend name used in configuration.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Open connects to the backend described by conn.
	Open(ctx context.Context, conn string) (Backend, error)
}
