//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package baseline computes per-product, per-month median prices.
package baseline

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

var two = decimal.NewFromInt(2)

// Key identifies a baseline group.
type Key struct {
	ProductID string
	Period    model.Period
}

// Median returns the median of prices. For an even count it is the mean
// of the two central values. The input slice is not modified. Median of
// an empty slice is zero.
func Median(prices []decimal.Decimal) decimal.Decimal {
	n := len(prices)
	if n == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, n)
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(two)
}

// Estimate groups items by product and calendar month and returns one
// baseline per group, sorted by product then period. A negative price
// fails the whole estimate.
func Estimate(items []model.LineItem) ([]model.PriceBaseline, error) {
	groups := make(map[Key][]decimal.Decimal)
	for _, item := range items {
		if item.Price.IsNegative() {
			return nil, &model.InvalidInputError{
				Stage:  "baseline",
				Key:    item.Key().String(),
				Reason: "negative price " + item.Price.String(),
			}
		}
		k := Key{ProductID: item.ProductID, Period: item.Period()}
		groups[k] = append(groups[k], item.Price)
	}

	out := make([]model.PriceBaseline, 0, len(groups))
	for k, prices := range groups {
		out = append(out, model.PriceBaseline{
			ProductID:   k.ProductID,
			Period:      k.Period,
			MedianPrice: Median(prices),
			SampleSize:  len(prices),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Period.Before(out[j].Period)
	})
	return out, nil
}

// Index is a lookup table over baselines.
type Index map[Key]model.PriceBaseline

// NewIndex builds an index from baselines.
func NewIndex(baselines []model.PriceBaseline) Index {
	idx := make(Index, len(baselines))
	for _, b := range baselines {
		idx[Key{ProductID: b.ProductID, Period: b.Period}] = b
	}
	return idx
}

// Lookup returns the baseline of the item's product in the item's period.
func (idx Index) Lookup(item model.LineItem) (model.PriceBaseline, bool) {
	b, ok := idx[Key{ProductID: item.ProductID, Period: item.Period()}]
	return b, ok
}
