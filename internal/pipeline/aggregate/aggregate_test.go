//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package aggregate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

var purchased = time.Date(2017, time.June, 2, 14, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func enriched(order string, line int, price, freight string, discounted, trusted bool) model.EnrichedLineItem {
	return model.EnrichedLineItem{
		LineItem: model.LineItem{
			OrderID: order, LineNo: line, ProductID: "p", SellerID: "s",
			Price: d(price), Freight: d(freight), Timestamp: purchased,
		},
		IsDiscounted:      discounted,
		IsTrustedDiscount: trusted,
	}
}

func header(id, customer string) model.Order {
	return model.Order{OrderID: id, CustomerID: customer, Status: "delivered", PurchasedAt: purchased}
}

func TestOrdersSumsAndFlags(t *testing.T) {
	items := []model.EnrichedLineItem{
		enriched("o1", 1, "60", "8", false, false),
		enriched("o1", 2, "40", "2", true, false),
		enriched("o2", 1, "25", "0", true, true),
	}
	orders := []model.Order{header("o1", "c1"), header("o2", "c2"), header("o3", "c3")}
	payments := []model.Payment{
		{OrderID: "o1", Sequential: 1, Amount: d("100")},
		{OrderID: "o1", Sequential: 2, Amount: d("10")},
	}

	kpis, err := Orders(items, orders, payments)
	require.NoError(t, err)
	require.Len(t, kpis, 2, "orders without items produce no row")

	o1 := kpis[0]
	assert.Equal(t, "o1", o1.OrderID)
	assert.Equal(t, "c1", o1.CustomerID)
	assert.Equal(t, purchased, o1.Timestamp)
	assert.True(t, o1.ItemsRevenue.Equal(d("100")))
	assert.True(t, o1.FreightTotal.Equal(d("10")))
	assert.True(t, o1.PaymentValue.Equal(d("110")))
	assert.True(t, o1.MarginProxy.Equal(d("90")))
	assert.True(t, o1.AnyDiscount)
	assert.False(t, o1.AnyTrustedDiscount)
	assert.False(t, o1.FreeShipping)

	o2 := kpis[1]
	assert.True(t, o2.PaymentValue.IsZero(), "no payments recorded means zero")
	assert.True(t, o2.AnyDiscount)
	assert.True(t, o2.AnyTrustedDiscount)
	assert.True(t, o2.FreeShipping)
}

func TestOrdersMissingHeader(t *testing.T) {
	_, err := Orders([]model.EnrichedLineItem{enriched("ghost", 1, "1", "1", false, false)}, nil, nil)

	var dq *model.DataQualityError
	require.True(t, errors.As(err, &dq), "expected DataQualityError, got %v", err)
	assert.Equal(t, "ghost#1", dq.Key)
}

func TestOrderCardinality(t *testing.T) {
	var items []model.EnrichedLineItem
	var orders []model.Order
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("o%03d", i)
		orders = append(orders, header(id, "c"))
		for line := 1; line <= i%4+1; line++ {
			items = append(items, enriched(id, line, "10", "1", false, false))
		}
	}

	kpis, err := Orders(items, orders, nil)
	require.NoError(t, err)

	distinct := make(map[string]struct{})
	for _, it := range items {
		distinct[it.OrderID] = struct{}{}
	}
	assert.Len(t, kpis, len(distinct))
	assert.NoError(t, CheckCardinality(items, kpis))
}

func TestCheckCardinalityDetectsViolations(t *testing.T) {
	items := []model.EnrichedLineItem{
		enriched("o1", 1, "1", "1", false, false),
		enriched("o2", 1, "1", "1", false, false),
	}
	kpiFor := func(ids ...string) []model.OrderKPI {
		out := make([]model.OrderKPI, len(ids))
		for i, id := range ids {
			out[i] = model.OrderKPI{OrderID: id}
		}
		return out
	}

	tests := []struct {
		name string
		kpis []model.OrderKPI
		key  string
	}{
		{"duplicate", kpiFor("o1", "o1", "o2"), "o1"},
		{"missing", kpiFor("o1"), "o2"},
		{"unexpected", kpiFor("o1", "o2", "o3"), "o3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCardinality(items, tt.kpis)
			var ce *model.CardinalityError
			require.True(t, errors.As(err, &ce), "expected CardinalityError, got %v", err)
			assert.Equal(t, tt.key, ce.Key)
		})
	}
}
