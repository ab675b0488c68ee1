//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package report produces the BI-facing rollups from clean order KPIs.
//
// Money ratios are rounded half away from zero to 2 places, shares to 4
// places and percentages to 2 places. Every result is sorted so that
// identical input gives identical output.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

const (
	moneyPlaces   = 2
	sharePlaces   = 4
	percentPlaces = 2
)

var hundred = decimal.NewFromInt(100)

// MonthlyRow is one period of the monthly overview.
type MonthlyRow struct {
	Period         model.Period    `json:"period"`
	Orders         int             `json:"orders"`
	Revenue        decimal.Decimal `json:"revenue"`
	Freight        decimal.Decimal `json:"freight"`
	Payment        decimal.Decimal `json:"payment"`
	Margin         decimal.Decimal `json:"margin"`
	AOV            decimal.Decimal `json:"aov"`
	MarginPerOrder decimal.Decimal `json:"margin_per_order"`
}

// MonthlyOverview groups clean orders by the month they were placed in.
func MonthlyOverview(clean []model.OrderKPI) []MonthlyRow {
	byPeriod := make(map[model.Period]*MonthlyRow)
	for _, k := range clean {
		p := k.Period()
		row, ok := byPeriod[p]
		if !ok {
			row = &MonthlyRow{Period: p}
			byPeriod[p] = row
		}
		row.Orders++
		row.Revenue = row.Revenue.Add(k.ItemsRevenue)
		row.Freight = row.Freight.Add(k.FreightTotal)
		row.Payment = row.Payment.Add(k.PaymentValue)
		row.Margin = row.Margin.Add(k.MarginProxy)
	}

	out := make([]MonthlyRow, 0, len(byPeriod))
	for _, row := range byPeriod {
		n := decimal.NewFromInt(int64(row.Orders))
		row.AOV = row.Revenue.DivRound(n, moneyPlaces)
		row.MarginPerOrder = row.Margin.DivRound(n, moneyPlaces)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}

// PromoRow is one period split by whether the order had a trusted discount.
type PromoRow struct {
	Period          model.Period    `json:"period"`
	TrustedDiscount bool            `json:"trusted_discount"`
	Orders          int             `json:"orders"`
	Revenue         decimal.Decimal `json:"revenue"`
	Margin          decimal.Decimal `json:"margin"`
	Share           decimal.Decimal `json:"share"`
}

type promoKey struct {
	period  model.Period
	trusted bool
}

// PromoSplit groups clean orders by period and trusted-discount flag.
// Share is the split's fraction of the period's order count.
func PromoSplit(clean []model.OrderKPI) []PromoRow {
	totals := make(map[model.Period]int)
	rows := make(map[promoKey]*PromoRow)
	for _, k := range clean {
		key := promoKey{period: k.Period(), trusted: k.AnyTrustedDiscount}
		row, ok := rows[key]
		if !ok {
			row = &PromoRow{Period: key.period, TrustedDiscount: key.trusted}
			rows[key] = row
		}
		row.Orders++
		row.Revenue = row.Revenue.Add(k.ItemsRevenue)
		row.Margin = row.Margin.Add(k.MarginProxy)
		totals[key.period]++
	}

	out := make([]PromoRow, 0, len(rows))
	for key, row := range rows {
		row.Share = decimal.NewFromInt(int64(row.Orders)).
			DivRound(decimal.NewFromInt(int64(totals[key.period])), sharePlaces)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Period.Compare(out[j].Period); c != 0 {
			return c < 0
		}
		return !out[i].TrustedDiscount && out[j].TrustedDiscount
	})
	return out
}
