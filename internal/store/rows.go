//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline"
)

// TableRows is a batch of rows destined for one table. Row values follow
// the ColumnType conventions.
type TableRows struct {
	Table Table
	Rows  [][]any
}

// InputRows converts a dataset into rows for the input tables.
func InputRows(ds *model.Dataset) []TableRows {
	customers := make([][]any, 0, len(ds.Customers))
	for _, c := range ds.Customers {
		customers = append(customers, []any{c.CustomerID, c.CustomerUniqueID, nullText(c.City), nullText(c.State)})
	}
	sellers := make([][]any, 0, len(ds.Sellers))
	for _, s := range ds.Sellers {
		sellers = append(sellers, []any{s.SellerID, nullText(s.City), nullText(s.State)})
	}
	products := make([][]any, 0, len(ds.Products))
	for _, p := range ds.Products {
		products = append(products, []any{p.ProductID, nullText(p.Category)})
	}
	orders := make([][]any, 0, len(ds.Orders))
	for _, o := range ds.Orders {
		orders = append(orders, []any{o.OrderID, o.CustomerID, nullText(o.Status), o.PurchasedAt.UTC()})
	}
	items := make([][]any, 0, len(ds.Items))
	for _, li := range ds.Items {
		items = append(items, []any{
			li.OrderID, int64(li.LineNo), li.ProductID, nullText(li.SellerID),
			li.Price, li.Freight, li.Timestamp.UTC(),
		})
	}
	payments := make([][]any, 0, len(ds.Payments))
	for _, p := range ds.Payments {
		payments = append(payments, []any{
			p.OrderID, int64(p.Sequential), nullText(p.Type), int64(p.Installments), p.Amount,
		})
	}

	return []TableRows{
		{Table: MustLookup(TableCustomers), Rows: customers},
		{Table: MustLookup(TableSellers), Rows: sellers},
		{Table: MustLookup(TableProducts), Rows: products},
		{Table: MustLookup(TableOrders), Rows: orders},
		{Table: MustLookup(TableItems), Rows: items},
		{Table: MustLookup(TablePayments), Rows: payments},
	}
}

// OutputRows converts a run's output into rows for the output tables.
func OutputRows(out *pipeline.Output) []TableRows {
	baselines := make([][]any, 0, len(out.Baselines))
	for _, b := range out.Baselines {
		baselines = append(baselines, []any{b.ProductID, b.Period.String(), b.MedianPrice, int64(b.SampleSize)})
	}

	items := make([][]any, 0, len(out.Items))
	for _, it := range out.Items {
		var median, n any
		if it.Baseline != nil {
			median, n = it.Baseline.MedianPrice, int64(it.Baseline.SampleSize)
		}
		items = append(items, []any{
			it.OrderID, int64(it.LineNo), it.ProductID, nullText(it.SellerID),
			it.Price, it.Freight, it.Timestamp.UTC(), median, n,
			it.IsDiscounted, it.IsLowConfidence, it.IsTrustedDiscount,
		})
	}

	clean := make(map[string]bool, len(out.Clean()))
	for _, k := range out.Clean() {
		clean[k.OrderID] = true
	}
	orders := make([][]any, 0, len(out.Orders))
	for _, k := range out.Orders {
		orders = append(orders, []any{
			k.OrderID, k.CustomerID, k.Timestamp.UTC(),
			k.ItemsRevenue, k.FreightTotal, k.PaymentValue, k.MarginProxy,
			k.AnyDiscount, k.AnyTrustedDiscount, k.FreeShipping, clean[k.OrderID],
		})
	}

	var exclusions [][]any
	for _, e := range out.Reconciliation.Excluded {
		for _, reason := range e.Reasons {
			exclusions = append(exclusions, []any{e.Order.OrderID, string(reason)})
		}
	}

	monthly := make([][]any, 0, len(out.Monthly))
	for _, m := range out.Monthly {
		monthly = append(monthly, []any{
			m.Period.String(), int64(m.Orders), m.Revenue, m.Freight, m.Payment,
			m.Margin, m.AOV, m.MarginPerOrder,
		})
	}

	promo := make([][]any, 0, len(out.Promo))
	for _, p := range out.Promo {
		promo = append(promo, []any{
			p.Period.String(), p.TrustedDiscount, int64(p.Orders), p.Revenue, p.Margin, p.Share,
		})
	}

	categories := make([][]any, 0, len(out.Rollup.Categories))
	for _, r := range out.Rollup.Categories {
		categories = append(categories, []any{
			r.Category, int64(r.LineCount), int64(r.Orders), r.Revenue, r.Freight, r.AvgPrice,
			int64(r.DiscountedLines), int64(r.TrustedDiscountLines), r.TrustedDiscountShare,
		})
	}
	skus := make([][]any, 0, len(out.Rollup.SKUs))
	for _, r := range out.Rollup.SKUs {
		skus = append(skus, []any{
			r.ProductID, r.Category, int64(r.LineCount), int64(r.Orders), r.Revenue, r.Freight, r.AvgPrice,
			int64(r.DiscountedLines), int64(r.TrustedDiscountLines), r.TrustedDiscountShare,
		})
	}

	cohorts := make([][]any, 0, len(out.Cohorts))
	for _, c := range out.Cohorts {
		cohorts = append(cohorts, []any{
			c.CustomerUniqueID, c.OrderID, c.CohortPeriod.String(), c.OrderMonth.String(),
			int64(c.MonthOffset), c.Revenue, c.MarginProxy,
		})
	}

	retention := make([][]any, 0, len(out.Retention))
	for _, r := range out.Retention {
		retention = append(retention, []any{
			r.CohortPeriod.String(), int64(r.MonthOffset), int64(r.CohortSize),
			int64(r.ActiveCustomers), r.RetentionPct, r.Revenue, r.MarginProxy,
		})
	}

	return []TableRows{
		{Table: MustLookup(TableBaselines), Rows: baselines},
		{Table: MustLookup(TableEnrichedItems), Rows: items},
		{Table: MustLookup(TableOrderKPIs), Rows: orders},
		{Table: MustLookup(TableExclusions), Rows: exclusions},
		{Table: MustLookup(TableMonthly), Rows: monthly},
		{Table: MustLookup(TablePromo), Rows: promo},
		{Table: MustLookup(TableCategoryRollup), Rows: categories},
		{Table: MustLookup(TableSKURollup), Rows: skus},
		{Table: MustLookup(TableCohorts), Rows: cohorts},
		{Table: MustLookup(TableRetention), Rows: retention},
	}
}

// AppendRow decodes one input table row and appends it to ds.
func AppendRow(ds *model.Dataset, table string, vals []any) error {
	switch table {
	case TableCustomers:
		ds.Customers = append(ds.Customers, model.Customer{
			CustomerID:       text(vals[0]),
			CustomerUniqueID: text(vals[1]),
			City:             text(vals[2]),
			State:            text(vals[3]),
		})
	case TableSellers:
		ds.Sellers = append(ds.Sellers, model.Seller{
			SellerID: text(vals[0]),
			City:     text(vals[1]),
			State:    text(vals[2]),
		})
	case TableProducts:
		ds.Products = append(ds.Products, model.Product{
			ProductID: text(vals[0]),
			Category:  text(vals[1]),
		})
	case TableOrders:
		ds.Orders = append(ds.Orders, model.Order{
			OrderID:     text(vals[0]),
			CustomerID:  text(vals[1]),
			Status:      text(vals[2]),
			PurchasedAt: timestamp(vals[3]),
		})
	case TableItems:
		li := model.LineItem{
			OrderID:   text(vals[0]),
			LineNo:    int(integer(vals[1])),
			ProductID: text(vals[2]),
			SellerID:  text(vals[3]),
			Timestamp: timestamp(vals[6]),
		}
		var err error
		if li.Price, err = money(table, li.Key().String(), "price", vals[4]); err != nil {
			return err
		}
		if li.Freight, err = money(table, li.Key().String(), "freight", vals[5]); err != nil {
			return err
		}
		ds.Items = append(ds.Items, li)
	case TablePayments:
		p := model.Payment{
			OrderID:      text(vals[0]),
			Sequential:   int(integer(vals[1])),
			Type:         text(vals[2]),
			Installments: int(integer(vals[3])),
		}
		var err error
		key := fmt.Sprintf("%s#%d", p.OrderID, p.Sequential)
		if p.Amount, err = money(table, key, "amount", vals[4]); err != nil {
			return err
		}
		ds.Payments = append(ds.Payments, p)
	default:
		return fmt.Errorf("unknown input table: %s", table)
	}
	return nil
}

// FilterClause returns a WHERE clause restricting an input table to f.
// ph renders the nth (1-based) placeholder and enc converts a bound to a
// driver value. Reference tables are never filtered.
func FilterClause(table string, f Filter, ph func(n int) string, enc func(time.Time) any) (string, []any) {
	lo, hi := f.Bounds()
	var conds []string
	var args []any
	if !lo.IsZero() {
		args = append(args, enc(lo))
		conds = append(conds, "purchased_at >= "+ph(len(args)))
	}
	if !hi.IsZero() {
		args = append(args, enc(hi))
		conds = append(conds, "purchased_at < "+ph(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	orderCond := strings.Join(conds, " AND ")

	switch table {
	case TableOrders:
		return " WHERE " + orderCond, args
	case TableItems, TablePayments:
		return fmt.Sprintf(" WHERE order_id IN (SELECT order_id FROM %s WHERE %s)", TableOrders, orderCond), args
	default:
		return "", nil
	}
}

// Metadata keys in the metadata table.
const (
	MetaRunID             = "run_id"
	MetaVersion           = "version"
	MetaParamsFingerprint = "params_fingerprint"
	MetaPublishedAt       = "published_at"
)

// MetadataRows converts run metadata to key/value rows.
func MetadataRows(m RunMetadata) [][]any {
	return [][]any{
		{MetaRunID, m.RunID},
		{MetaVersion, m.Version},
		{MetaParamsFingerprint, m.ParamsFingerprint},
		{MetaPublishedAt, m.PublishedAt.UTC().Format(time.RFC3339Nano)},
	}
}

// ParseMetadata builds run metadata from key/value pairs.
func ParseMetadata(kv map[string]string) (RunMetadata, error) {
	if kv[MetaRunID] == "" {
		return RunMetadata{}, fmt.Errorf("no published run found")
	}
	m := RunMetadata{
		RunID:             kv[MetaRunID],
		Version:           kv[MetaVersion],
		ParamsFingerprint: kv[MetaParamsFingerprint],
	}
	if s := kv[MetaPublishedAt]; s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return RunMetadata{}, fmt.Errorf("invalid %s %q: %w", MetaPublishedAt, s, err)
		}
		m.PublishedAt = t
	}
	return m, nil
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func text(v any) string {
	s, _ := v.(string)
	return s
}

func integer(v any) int64 {
	n, _ := v.(int64)
	return n
}

func timestamp(v any) time.Time {
	t, _ := v.(time.Time)
	return t.UTC()
}

func money(table, key, column string, v any) (decimal.Decimal, error) {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return decimal.Zero, &model.DataQualityError{
			Entity: table,
			Key:    key,
			Reason: "null " + column,
		}
	}
	return d, nil
}
