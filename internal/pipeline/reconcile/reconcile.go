//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package reconcile separates clean orders from orders whose totals do
// not add up.
package reconcile

import (
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
)

// Reason explains why an order was excluded.
type Reason string

const (
	// NegativeMargin means items revenue was below the freight total.
	NegativeMargin Reason = "negative_margin"

	// PaymentMismatch means payments differ from revenue plus freight by
	// more than the reconciliation tolerance.
	PaymentMismatch Reason = "payment_mismatch"
)

// Reasons lists every exclusion reason in reporting order.
var Reasons = []Reason{NegativeMargin, PaymentMismatch}

// Exclusion is an order that failed reconciliation.
type Exclusion struct {
	Order   model.OrderKPI `json:"order"`
	Reasons []Reason       `json:"reasons"`
}

// Has reports whether r is one of the exclusion's reasons.
func (e Exclusion) Has(r Reason) bool {
	for _, got := range e.Reasons {
		if got == r {
			return true
		}
	}
	return false
}

// Result splits the input into clean and excluded orders. Input order is
// preserved in both slices.
type Result struct {
	Clean    []model.OrderKPI `json:"clean"`
	Excluded []Exclusion      `json:"excluded"`
}

// Summary counts excluded orders per reason. An order with two reasons
// is counted under both.
func (r Result) Summary() map[Reason]int {
	counts := make(map[Reason]int, len(Reasons))
	for _, reason := range Reasons {
		counts[reason] = 0
	}
	for _, e := range r.Excluded {
		for _, reason := range e.Reasons {
			counts[reason]++
		}
	}
	return counts
}

// Check returns the reasons kpi would be excluded for, or nil if it is
// clean.
func Check(kpi model.OrderKPI, p *params.Parameters) []Reason {
	var reasons []Reason
	if kpi.MarginProxy.IsNegative() {
		reasons = append(reasons, NegativeMargin)
	}
	if kpi.ReconciliationGap().GreaterThan(p.ReconcileEpsilon) {
		reasons = append(reasons, PaymentMismatch)
	}
	return reasons
}

// Filter applies Check to every order.
func Filter(kpis []model.OrderKPI, p *params.Parameters) Result {
	res := Result{Clean: make([]model.OrderKPI, 0, len(kpis))}
	for _, kpi := range kpis {
		if reasons := Check(kpi, p); len(reasons) > 0 {
			res.Excluded = append(res.Excluded, Exclusion{Order: kpi, Reasons: reasons})
			continue
		}
		res.Clean = append(res.Clean, kpi)
	}
	return res
}
