//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package classify flags discounted line items against their baselines.
package classify

import (
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/baseline"
)

// Classify joins every item with its baseline and sets the discount flags.
// Items without a baseline keep all flags false.
func Classify(items []model.LineItem, baselines []model.PriceBaseline, p *params.Parameters) ([]model.EnrichedLineItem, error) {
	idx := baseline.NewIndex(baselines)
	out := make([]model.EnrichedLineItem, 0, len(items))
	for _, item := range items {
		enriched, err := classifyOne(item, idx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, enriched)
	}
	return out, nil
}

// Guarded is Classify restricted to items whose period lies inside the
// parameter window and whose price and freight reach the configured
// floors. Other items are left out of the result.
func Guarded(items []model.LineItem, baselines []model.PriceBaseline, p *params.Parameters) ([]model.EnrichedLineItem, error) {
	idx := baseline.NewIndex(baselines)
	out := make([]model.EnrichedLineItem, 0, len(items))
	for _, item := range items {
		if item.Timestamp.IsZero() {
			return nil, missingTimestamp(item)
		}
		if !Eligible(item, p) {
			continue
		}
		enriched, err := classifyOne(item, idx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, enriched)
	}
	return out, nil
}

// Eligible reports whether the guarded classifier keeps item.
func Eligible(item model.LineItem, p *params.Parameters) bool {
	if !item.Period().Within(p.WindowStart, p.WindowEnd) {
		return false
	}
	return item.Price.GreaterThanOrEqual(p.MinPrice) && item.Freight.GreaterThanOrEqual(p.MinFreight)
}

func classifyOne(item model.LineItem, idx baseline.Index, p *params.Parameters) (model.EnrichedLineItem, error) {
	if item.Timestamp.IsZero() {
		return model.EnrichedLineItem{}, missingTimestamp(item)
	}

	enriched := model.EnrichedLineItem{LineItem: item}
	b, ok := idx.Lookup(item)
	if !ok {
		return enriched, nil
	}

	enriched.Baseline = &model.BaselineRef{MedianPrice: b.MedianPrice, SampleSize: b.SampleSize}

	// price < (1 - threshold) * median, strictly.
	below := item.Price.LessThan(p.DiscountCutoff().Mul(b.MedianPrice))
	confident := b.SampleSize >= p.MinBaselineN

	enriched.IsDiscounted = below
	enriched.IsLowConfidence = !confident
	enriched.IsTrustedDiscount = below && confident
	return enriched, nil
}

func missingTimestamp(item model.LineItem) error {
	return &model.DataQualityError{
		Entity: "line_item",
		Key:    item.Key().String(),
		Reason: "missing timestamp",
	}
}
