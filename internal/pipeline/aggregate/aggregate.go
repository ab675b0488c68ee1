//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package aggregate rolls enriched line items up to one KPI row per order.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

// PaymentTotals sums payment amounts per order.
func PaymentTotals(payments []model.Payment) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, p := range payments {
		totals[p.OrderID] = totals[p.OrderID].Add(p.Amount)
	}
	return totals
}

// Orders builds one OrderKPI per order that has at least one enriched
// item. Orders without payments get a zero payment value. Every item's
// order must be present in orders. The result is sorted by order id.
func Orders(items []model.EnrichedLineItem, orders []model.Order, payments []model.Payment) ([]model.OrderKPI, error) {
	headers := make(map[string]model.Order, len(orders))
	for _, o := range orders {
		headers[o.OrderID] = o
	}
	paid := PaymentTotals(payments)

	byOrder := make(map[string]*model.OrderKPI)
	for _, item := range items {
		kpi, ok := byOrder[item.OrderID]
		if !ok {
			header, found := headers[item.OrderID]
			if !found {
				return nil, &model.DataQualityError{
					Entity: "line_item",
					Key:    item.Key().String(),
					Reason: "order header not found",
				}
			}
			kpi = &model.OrderKPI{
				OrderID:      item.OrderID,
				CustomerID:   header.CustomerID,
				Timestamp:    header.PurchasedAt,
				PaymentValue: paid[item.OrderID],
			}
			byOrder[item.OrderID] = kpi
		}
		kpi.ItemsRevenue = kpi.ItemsRevenue.Add(item.Price)
		kpi.FreightTotal = kpi.FreightTotal.Add(item.Freight)
		kpi.AnyDiscount = kpi.AnyDiscount || item.IsDiscounted
		kpi.AnyTrustedDiscount = kpi.AnyTrustedDiscount || item.IsTrustedDiscount
	}

	out := make([]model.OrderKPI, 0, len(byOrder))
	for _, kpi := range byOrder {
		kpi.MarginProxy = kpi.ItemsRevenue.Sub(kpi.FreightTotal)
		kpi.FreeShipping = kpi.FreightTotal.IsZero()
		out = append(out, *kpi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

// CheckCardinality verifies that kpis holds exactly one row for every
// distinct order among items and nothing else.
func CheckCardinality(items []model.EnrichedLineItem, kpis []model.OrderKPI) error {
	expected := make(map[string]struct{})
	for _, item := range items {
		expected[item.OrderID] = struct{}{}
	}

	seen := make(map[string]int, len(kpis))
	for _, k := range kpis {
		seen[k.OrderID]++
	}

	for id, n := range seen {
		if n != 1 {
			return &model.CardinalityError{Entity: "order_kpi", Key: id, Count: n}
		}
		if _, ok := expected[id]; !ok {
			return &model.CardinalityError{Entity: "order_kpi", Key: id, Count: 0}
		}
	}
	if len(seen) != len(expected) {
		for id := range expected {
			if _, ok := seen[id]; !ok {
				return &model.CardinalityError{Entity: "order_kpi", Key: id, Count: 0}
			}
		}
	}
	return nil
}
