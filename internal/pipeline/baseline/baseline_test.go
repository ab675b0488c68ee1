//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package baseline

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

func decs(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func item(order string, line int, product, price string, ts time.Time) model.LineItem {
	return model.LineItem{
		OrderID:   order,
		LineNo:    line,
		ProductID: product,
		SellerID:  "s1",
		Price:     decimal.RequireFromString(price),
		Freight:   decimal.RequireFromString("5"),
		Timestamp: ts,
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		prices []decimal.Decimal
		want   string
	}{
		{"single", decs("42.50"), "42.5"},
		{"odd", decs("10", "20", "30"), "20"},
		{"even", decs("10", "20", "30", "40"), "25"},
		{"unsorted odd", decs("30", "10", "20"), "20"},
		{"unsorted even", decs("40", "10", "30", "20"), "25"},
		{"even with cents", decs("9.99", "10.00"), "9.995"},
		{"duplicates", decs("100", "100", "100"), "100"},
		{"empty", nil, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Median(tt.prices)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"expected %s, got %s", tt.want, got)
		})
	}
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	prices := decs("3", "1", "2")
	Median(prices)
	assert.Equal(t, "3", prices[0].String())
	assert.Equal(t, "1", prices[1].String())
}

func TestEstimateGroupsByProductAndMonth(t *testing.T) {
	jan := time.Date(2017, time.January, 10, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2017, time.February, 3, 9, 0, 0, 0, time.UTC)

	items := []model.LineItem{
		item("o1", 1, "p1", "10", jan),
		item("o2", 1, "p1", "20", jan),
		item("o3", 1, "p1", "30", jan),
		item("o4", 1, "p1", "40", feb),
		item("o4", 2, "p2", "7", jan),
		item("o5", 1, "p2", "9", jan),
	}

	got, err := Estimate(items)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "p1", got[0].ProductID)
	assert.Equal(t, "2017-01", got[0].Period.String())
	assert.Equal(t, 3, got[0].SampleSize)
	assert.True(t, got[0].MedianPrice.Equal(decimal.NewFromInt(20)))

	assert.Equal(t, "p1", got[1].ProductID)
	assert.Equal(t, "2017-02", got[1].Period.String())
	assert.Equal(t, 1, got[1].SampleSize)
	assert.True(t, got[1].MedianPrice.Equal(decimal.NewFromInt(40)))

	assert.Equal(t, "p2", got[2].ProductID)
	assert.Equal(t, 2, got[2].SampleSize)
	assert.True(t, got[2].MedianPrice.Equal(decimal.NewFromInt(8)))
}

func TestEstimateEmptyInputYieldsNoRows(t *testing.T) {
	got, err := Estimate(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEstimateRejectsNegativePrice(t *testing.T) {
	ts := time.Date(2017, time.March, 1, 0, 0, 0, 0, time.UTC)
	_, err := Estimate([]model.LineItem{
		item("o1", 1, "p1", "10", ts),
		item("o9", 3, "p1", "-1", ts),
	})

	var invalid *model.InvalidInputError
	require.True(t, errors.As(err, &invalid), "expected InvalidInputError, got %v", err)
	assert.Equal(t, "o9#3", invalid.Key)
}

func TestIndexLookup(t *testing.T) {
	ts := time.Date(2017, time.March, 15, 0, 0, 0, 0, time.UTC)
	baselines, err := Estimate([]model.LineItem{item("o1", 1, "p1", "10", ts)})
	require.NoError(t, err)

	idx := NewIndex(baselines)
	_, ok := idx.Lookup(item("o2", 1, "p1", "12", ts.AddDate(0, 0, 5)))
	assert.True(t, ok, "same product and month should match")

	_, ok = idx.Lookup(item("o3", 1, "p1", "12", ts.AddDate(0, 1, 0)))
	assert.False(t, ok, "next month should not match")

	_, ok = idx.Lookup(item("o4", 1, "p2", "12", ts))
	assert.False(t, ok, "other product should not match")
}
