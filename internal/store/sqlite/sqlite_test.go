//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/datagen"
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline"
	"github.com/pgEdge/pgedge-retailkpi/internal/store"
)

func openTest(t *testing.T) *Backend {
	t.Helper()
	ctx := context.Background()

	b, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	if err := b.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return b
}

func generate(t *testing.T) *model.Dataset {
	t.Helper()
	cfg := datagen.DefaultConfig()
	cfg.Customers = 30
	cfg.Orders = 150
	cfg.Seed = 7
	ds, err := datagen.NewGenerator(cfg).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return ds
}

func count(t *testing.T, b *Backend, table string) int {
	t.Helper()
	var n int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestRegistered(t *testing.T) {
	d, err := store.Get(Name)
	if err != nil {
		t.Fatalf("sqlite driver not registered: %v", err)
	}
	if d.Description() == "" {
		t.Error("Driver description should not be empty")
	}
}

func TestSeedAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	ds := generate(t)

	if err := b.Seed(ctx, ds); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	got, err := b.Load(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(got.Orders) != len(ds.Orders) {
		t.Errorf("Expected %d orders, got %d", len(ds.Orders), len(got.Orders))
	}
	if len(got.Items) != len(ds.Items) {
		t.Errorf("Expected %d items, got %d", len(ds.Items), len(got.Items))
	}
	if len(got.Payments) != len(ds.Payments) {
		t.Errorf("Expected %d payments, got %d", len(ds.Payments), len(got.Payments))
	}
	if len(got.Products) != len(ds.Products) {
		t.Errorf("Expected %d products, got %d", len(ds.Products), len(got.Products))
	}
	if len(got.Customers) != len(ds.Customers) {
		t.Errorf("Expected %d customers, got %d", len(ds.Customers), len(got.Customers))
	}
	if len(got.Sellers) != len(ds.Sellers) {
		t.Errorf("Expected %d sellers, got %d", len(ds.Sellers), len(got.Sellers))
	}

	want := make(map[model.ItemKey]model.LineItem, len(ds.Items))
	for _, li := range ds.Items {
		want[li.Key()] = li
	}
	for _, li := range got.Items {
		w, ok := want[li.Key()]
		if !ok {
			t.Fatalf("Unexpected item %s", li.Key())
		}
		if !li.Price.Equal(w.Price) || !li.Freight.Equal(w.Freight) {
			t.Errorf("Item %s money mismatch: got %s/%s, want %s/%s",
				li.Key(), li.Price, li.Freight, w.Price, w.Freight)
		}
		if !li.Timestamp.Equal(w.Timestamp) {
			t.Errorf("Item %s timestamp mismatch: got %v, want %v", li.Key(), li.Timestamp, w.Timestamp)
		}
	}
}

func TestSeedReplacesPreviousData(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	ds := generate(t)

	if err := b.Seed(ctx, ds); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := b.Seed(ctx, ds); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}
	if n := count(t, b, store.TableOrders); n != len(ds.Orders) {
		t.Errorf("Expected %d orders after reseed, got %d", len(ds.Orders), n)
	}
}

func TestLoadFilter(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	ds := generate(t)
	if err := b.Seed(ctx, ds); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	f := store.Filter{From: model.MustParsePeriod("2017-01"), To: model.MustParsePeriod("2017-06")}
	got, err := b.Load(ctx, f)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	wantOrders := 0
	kept := make(map[string]bool)
	for _, o := range ds.Orders {
		if f.Contains(o.PurchasedAt) {
			wantOrders++
			kept[o.OrderID] = true
		}
	}
	if len(got.Orders) != wantOrders {
		t.Errorf("Expected %d orders in range, got %d", wantOrders, len(got.Orders))
	}
	for _, li := range got.Items {
		if !kept[li.OrderID] {
			t.Errorf("Item %s belongs to a filtered order", li.Key())
		}
	}
	for _, p := range got.Payments {
		if !kept[p.OrderID] {
			t.Errorf("Payment for %s belongs to a filtered order", p.OrderID)
		}
	}
	if len(got.Products) != len(ds.Products) {
		t.Error("Reference tables should not be filtered")
	}
}

func TestPublishAndLastRun(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	ds := generate(t)
	if err := b.Seed(ctx, ds); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	loaded, err := b.Load(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p := params.Defaults()
	p.CategoryMinLines, p.SKUMinLines, p.MinCohortSize = 1, 1, 1
	out, err := pipeline.NewRunner().Run(ctx, loaded, &p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := b.Publish(ctx, out); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, tr := range store.OutputRows(out) {
		if n := count(t, b, tr.Table.Name); n != len(tr.Rows) {
			t.Errorf("Table %s: expected %d rows, got %d", tr.Table.Name, len(tr.Rows), n)
		}
	}
	if n := count(t, b, store.TableOrderKPIs); n != len(out.Orders) {
		t.Errorf("Expected one KPI row per order, got %d for %d orders", n, len(out.Orders))
	}

	meta, err := b.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if meta.RunID != out.RunID {
		t.Errorf("Expected run id %s, got %s", out.RunID, meta.RunID)
	}
	if meta.ParamsFingerprint != p.Fingerprint() {
		t.Errorf("Expected fingerprint %s, got %s", p.Fingerprint(), meta.ParamsFingerprint)
	}
	if !meta.PublishedAt.Equal(fixed) {
		t.Errorf("Expected published_at %v, got %v", fixed, meta.PublishedAt)
	}

	// Publishing again replaces rather than appends.
	if err := b.Publish(ctx, out); err != nil {
		t.Fatalf("second Publish failed: %v", err)
	}
	if n := count(t, b, store.TableEnrichedItems); n != len(out.Items) {
		t.Errorf("Expected %d enriched items after republish, got %d", len(out.Items), n)
	}
}

func TestPublishIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	ds := generate(t)
	p := params.Defaults()
	out, err := pipeline.NewRunner().Run(ctx, ds, &p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := b.Publish(ctx, out); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	before := count(t, b, store.TableBaselines)

	// A duplicate baseline violates the primary key midway through publish.
	var bad pipeline.Output
	raw, _ := json.Marshal(out)
	if err := json.Unmarshal(raw, &bad); err != nil {
		t.Fatalf("copy output: %v", err)
	}
	bad.RunID = "broken"
	bad.Baselines = append(bad.Baselines, bad.Baselines[0])
	bad.Monthly = nil

	if err := b.Publish(ctx, &bad); err == nil {
		t.Fatal("Expected publish to fail on duplicate key")
	}

	if n := count(t, b, store.TableBaselines); n != before {
		t.Errorf("Expected %d baselines after failed publish, got %d", before, n)
	}
	if n := count(t, b, store.TableMonthly); n != len(out.Monthly) {
		t.Errorf("Expected monthly overview untouched, got %d rows", n)
	}
	meta, err := b.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if meta.RunID != out.RunID {
		t.Errorf("Expected run id %s to survive failed publish, got %s", out.RunID, meta.RunID)
	}
}

func TestLoadRejectsNullPrice(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close()

	// Tables created by another tool may allow NULL money columns.
	for _, stmt := range []string{
		`CREATE TABLE customers (customer_id TEXT, customer_unique_id TEXT, city TEXT, state TEXT)`,
		`CREATE TABLE sellers (seller_id TEXT, city TEXT, state TEXT)`,
		`CREATE TABLE products (product_id TEXT, category TEXT)`,
		`CREATE TABLE orders (order_id TEXT, customer_id TEXT, status TEXT, purchased_at TEXT)`,
		`CREATE TABLE order_items (order_id TEXT, line_no INTEGER, product_id TEXT, seller_id TEXT,
            price TEXT, freight TEXT, shipping_limit_at TEXT)`,
		`CREATE TABLE order_payments (order_id TEXT, sequential INTEGER, payment_type TEXT,
            installments INTEGER, amount TEXT)`,
		`INSERT INTO orders VALUES ('o1', 'c1', 'delivered', '2017-05-02 10:00:00')`,
		`INSERT INTO order_items VALUES ('o1', 1, 'p1', 's1', NULL, '3.10', '2017-05-04 10:00:00')`,
	} {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}

	_, err = b.Load(ctx, store.Filter{})
	var dq *model.DataQualityError
	if !errors.As(err, &dq) {
		t.Fatalf("Expected DataQualityError, got %v", err)
	}
	if dq.Key != "o1#1" {
		t.Errorf("Expected key o1#1, got %s", dq.Key)
	}
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kpi.db")

	b, err := store.Open(ctx, Name, path)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	if err := b.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	ds := &model.Dataset{
		Orders: []model.Order{{OrderID: "o1", CustomerID: "c1", PurchasedAt: time.Date(2017, 5, 2, 10, 0, 0, 0, time.UTC)}},
		Items: []model.LineItem{{
			OrderID: "o1", LineNo: 1, ProductID: "p1",
			Price: decimal.RequireFromString("19.90"), Freight: decimal.RequireFromString("3.10"),
			Timestamp: time.Date(2017, 5, 4, 10, 0, 0, 0, time.UTC),
		}},
	}
	if err := b.Seed(ctx, ds); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Price.String() != "19.9" {
		t.Errorf("Expected one item priced 19.9, got %+v", got.Items)
	}

	if err := reopened.DropSchema(ctx); err != nil {
		t.Fatalf("DropSchema failed: %v", err)
	}
	if _, err := reopened.Load(ctx, store.Filter{}); err == nil {
		t.Error("Expected Load to fail after DropSchema")
	}
}
