//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

// Cohorts places every clean order relative to its customer's first
// purchase month. Customers are identified by their unique id; an order
// whose customer is not in customers falls back to the per-order
// customer id.
func Cohorts(clean []model.OrderKPI, customers []model.Customer) []model.CohortRecord {
	uniqueOf := make(map[string]string, len(customers))
	for _, c := range customers {
		uniqueOf[c.CustomerID] = c.CustomerUniqueID
	}
	personOf := func(k model.OrderKPI) string {
		if u := uniqueOf[k.CustomerID]; u != "" {
			return u
		}
		return k.CustomerID
	}

	first := make(map[string]model.Period)
	for _, k := range clean {
		person, p := personOf(k), k.Period()
		if cur, ok := first[person]; !ok || p.Before(cur) {
			first[person] = p
		}
	}

	out := make([]model.CohortRecord, 0, len(clean))
	for _, k := range clean {
		person := personOf(k)
		cohort, month := first[person], k.Period()
		out = append(out, model.CohortRecord{
			CustomerUniqueID: person,
			OrderID:          k.OrderID,
			CohortPeriod:     cohort,
			OrderMonth:       month,
			MonthOffset:      model.MonthsBetween(cohort, month),
			Revenue:          k.ItemsRevenue,
			MarginProxy:      k.MarginProxy,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.CohortPeriod.Compare(b.CohortPeriod); c != 0 {
			return c < 0
		}
		if a.CustomerUniqueID != b.CustomerUniqueID {
			return a.CustomerUniqueID < b.CustomerUniqueID
		}
		if c := a.OrderMonth.Compare(b.OrderMonth); c != 0 {
			return c < 0
		}
		return a.OrderID < b.OrderID
	})
	return out
}

// RetentionRow is one cohort at one month offset.
type RetentionRow struct {
	CohortPeriod    model.Period    `json:"cohort_period"`
	MonthOffset     int             `json:"month_offset"`
	CohortSize      int             `json:"cohort_size"`
	ActiveCustomers int             `json:"active_customers"`
	RetentionPct    decimal.Decimal `json:"retention_pct"`
	Revenue         decimal.Decimal `json:"revenue"`
	MarginProxy     decimal.Decimal `json:"margin_proxy"`
}

type retentionKey struct {
	cohort model.Period
	offset int
}

// Retention counts distinct active customers per cohort and month offset.
// RetentionPct is active customers at the offset over active customers at
// offset 0, as a percentage.
func Retention(cohorts []model.CohortRecord) []RetentionRow {
	active := make(map[retentionKey]map[string]struct{})
	rows := make(map[retentionKey]*RetentionRow)
	for _, c := range cohorts {
		key := retentionKey{cohort: c.CohortPeriod, offset: c.MonthOffset}
		row, ok := rows[key]
		if !ok {
			row = &RetentionRow{CohortPeriod: c.CohortPeriod, MonthOffset: c.MonthOffset}
			rows[key] = row
			active[key] = make(map[string]struct{})
		}
		active[key][c.CustomerUniqueID] = struct{}{}
		row.Revenue = row.Revenue.Add(c.Revenue)
		row.MarginProxy = row.MarginProxy.Add(c.MarginProxy)
	}

	out := make([]RetentionRow, 0, len(rows))
	for key, row := range rows {
		row.ActiveCustomers = len(active[key])
		row.CohortSize = len(active[retentionKey{cohort: key.cohort}])
		if row.CohortSize > 0 {
			row.RetentionPct = decimal.NewFromInt(int64(row.ActiveCustomers)).Mul(hundred).
				DivRound(decimal.NewFromInt(int64(row.CohortSize)), percentPlaces)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CohortPeriod.Compare(out[j].CohortPeriod); c != 0 {
			return c < 0
		}
		return out[i].MonthOffset < out[j].MonthOffset
	})
	return out
}

// FilterRetention drops every row of cohorts whose offset-0 size is below
// minSize.
func FilterRetention(rows []RetentionRow, minSize int) []RetentionRow {
	out := make([]RetentionRow, 0, len(rows))
	for _, r := range rows {
		if r.CohortSize >= minSize {
			out = append(out, r)
		}
	}
	return out
}
