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
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
)

// UnknownCategory is used for items whose product has no category.
const UnknownCategory = "unknown"

// RollupRow aggregates line items of clean orders. ProductID is empty on
// category rows.
type RollupRow struct {
	Category             string          `json:"category"`
	ProductID            string          `json:"product_id,omitempty"`
	LineCount            int             `json:"line_count"`
	Orders               int             `json:"orders"`
	Revenue              decimal.Decimal `json:"revenue"`
	Freight              decimal.Decimal `json:"freight"`
	AvgPrice             decimal.Decimal `json:"avg_price"`
	DiscountedLines      int             `json:"discounted_lines"`
	TrustedDiscountLines int             `json:"trusted_discount_lines"`
	TrustedDiscountShare decimal.Decimal `json:"trusted_discount_share"`
}

// Rollup holds the two levels of the category rollup.
type Rollup struct {
	Categories []RollupRow `json:"categories"`
	SKUs       []RollupRow `json:"skus"`
}

type rollupAcc struct {
	row    RollupRow
	orders map[string]struct{}
}

func (a *rollupAcc) add(item model.EnrichedLineItem) {
	a.row.LineCount++
	a.row.Revenue = a.row.Revenue.Add(item.Price)
	a.row.Freight = a.row.Freight.Add(item.Freight)
	if item.IsDiscounted {
		a.row.DiscountedLines++
	}
	if item.IsTrustedDiscount {
		a.row.TrustedDiscountLines++
	}
	a.orders[item.OrderID] = struct{}{}
}

func (a *rollupAcc) finish() RollupRow {
	n := decimal.NewFromInt(int64(a.row.LineCount))
	a.row.Orders = len(a.orders)
	a.row.AvgPrice = a.row.Revenue.DivRound(n, moneyPlaces)
	a.row.TrustedDiscountShare = decimal.NewFromInt(int64(a.row.TrustedDiscountLines)).DivRound(n, sharePlaces)
	return a.row
}

// CategoryRollup aggregates enriched items that belong to clean orders by
// category and by category plus product. Groups below the configured
// line-count floors are left out entirely.
func CategoryRollup(items []model.EnrichedLineItem, clean []model.OrderKPI, products []model.Product, p *params.Parameters) Rollup {
	isClean := make(map[string]struct{}, len(clean))
	for _, k := range clean {
		isClean[k.OrderID] = struct{}{}
	}
	categoryOf := make(map[string]string, len(products))
	for _, prod := range products {
		categoryOf[prod.ProductID] = prod.Category
	}

	type skuKey struct{ category, product string }
	categories := make(map[string]*rollupAcc)
	skus := make(map[skuKey]*rollupAcc)

	for _, item := range items {
		if _, ok := isClean[item.OrderID]; !ok {
			continue
		}
		category := categoryOf[item.ProductID]
		if category == "" {
			category = UnknownCategory
		}

		c, ok := categories[category]
		if !ok {
			c = &rollupAcc{row: RollupRow{Category: category}, orders: make(map[string]struct{})}
			categories[category] = c
		}
		c.add(item)

		k := skuKey{category, item.ProductID}
		s, ok := skus[k]
		if !ok {
			s = &rollupAcc{row: RollupRow{Category: category, ProductID: item.ProductID}, orders: make(map[string]struct{})}
			skus[k] = s
		}
		s.add(item)
	}

	var out Rollup
	for _, acc := range categories {
		if acc.row.LineCount >= p.CategoryMinLines {
			out.Categories = append(out.Categories, acc.finish())
		}
	}
	for _, acc := range skus {
		if acc.row.LineCount >= p.SKUMinLines {
			out.SKUs = append(out.SKUs, acc.finish())
		}
	}
	sort.Slice(out.Categories, func(i, j int) bool { return out.Categories[i].Category < out.Categories[j].Category })
	sort.Slice(out.SKUs, func(i, j int) bool {
		if out.SKUs[i].Category != out.SKUs[j].Category {
			return out.SKUs[i].Category < out.SKUs[j].Category
		}
		return out.SKUs[i].ProductID < out.SKUs[j].ProductID
	})
	return out
}
