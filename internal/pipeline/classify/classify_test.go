//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package classify

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
	"github.com/pgEdge/pgedge-retailkpi/internal/pipeline/baseline"
)

var march = time.Date(2017, time.March, 12, 10, 0, 0, 0, time.UTC)

func lineItem(order, product, price, freight string, ts time.Time) model.LineItem {
	return model.LineItem{
		OrderID:   order,
		LineNo:    1,
		ProductID: product,
		SellerID:  "s1",
		Price:     decimal.RequireFromString(price),
		Freight:   decimal.RequireFromString(freight),
		Timestamp: ts,
	}
}

// scenarioItems is product P with three items at 100 and a fourth at 90,
// all in the same month.
func scenarioItems() []model.LineItem {
	return []model.LineItem{
		lineItem("o1", "P", "100", "10", march),
		lineItem("o2", "P", "100", "10", march),
		lineItem("o3", "P", "100", "10", march),
		lineItem("o4", "P", "90", "10", march),
	}
}

func withThreshold(th string) *params.Parameters {
	p := params.Defaults()
	p.DiscountThreshold = decimal.RequireFromString(th)
	return &p
}

func classifyWith(t *testing.T, items []model.LineItem, p *params.Parameters) map[string]model.EnrichedLineItem {
	t.Helper()
	baselines, err := baseline.Estimate(items)
	require.NoError(t, err)
	enriched, err := Classify(items, baselines, p)
	require.NoError(t, err)
	require.Len(t, enriched, len(items))

	byOrder := make(map[string]model.EnrichedLineItem, len(enriched))
	for _, e := range enriched {
		byOrder[e.OrderID] = e
	}
	return byOrder
}

func TestScenarioDiscountAtFivePercent(t *testing.T) {
	// Baseline over the four items is median(90,100,100,100) = 100, n = 4.
	got := classifyWith(t, scenarioItems(), withThreshold("0.05"))["o4"]

	require.NotNil(t, got.Baseline)
	assert.True(t, got.Baseline.MedianPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.IsDiscounted, "90 < 95")
	assert.True(t, got.IsTrustedDiscount, "n >= 3")
	assert.False(t, got.IsLowConfidence)
}

func TestScenarioBoundaryIsStrict(t *testing.T) {
	// 90 < 0.90 * 100 is false.
	got := classifyWith(t, scenarioItems(), withThreshold("0.10"))["o4"]

	assert.False(t, got.IsDiscounted)
	assert.False(t, got.IsTrustedDiscount)
}

func TestLowConfidenceBaseline(t *testing.T) {
	items := []model.LineItem{
		lineItem("o1", "P", "100", "10", march),
		lineItem("o2", "P", "50", "10", march),
	}
	got := classifyWith(t, items, withThreshold("0.05"))

	// median(50,100) = 75, n = 2 < 3
	cheap := got["o2"]
	assert.True(t, cheap.IsDiscounted)
	assert.True(t, cheap.IsLowConfidence)
	assert.False(t, cheap.IsTrustedDiscount)

	pricey := got["o1"]
	assert.False(t, pricey.IsDiscounted)
	assert.True(t, pricey.IsLowConfidence)
}

func TestMissingBaselineLeavesFlagsFalse(t *testing.T) {
	items := scenarioItems()
	stray := lineItem("o9", "Q", "1", "1", march)

	baselines, err := baseline.Estimate(items)
	require.NoError(t, err)

	enriched, err := Classify(append(items, stray), baselines, withThreshold("0.05"))
	require.NoError(t, err)

	last := enriched[len(enriched)-1]
	assert.Equal(t, "o9", last.OrderID)
	assert.Nil(t, last.Baseline)
	assert.False(t, last.IsDiscounted)
	assert.False(t, last.IsLowConfidence)
	assert.False(t, last.IsTrustedDiscount)
}

func TestMissingTimestampIsDataQualityError(t *testing.T) {
	items := []model.LineItem{lineItem("o1", "P", "10", "1", time.Time{})}

	for name, fn := range map[string]func([]model.LineItem, []model.PriceBaseline, *params.Parameters) ([]model.EnrichedLineItem, error){
		"Classify": Classify,
		"Guarded":  Guarded,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fn(items, nil, withThreshold("0.05"))
			var dq *model.DataQualityError
			require.True(t, errors.As(err, &dq), "expected DataQualityError, got %v", err)
			assert.Equal(t, "o1#1", dq.Key)
		})
	}
}

func TestGuardedFiltersWindowAndFloors(t *testing.T) {
	p := withThreshold("0.05")
	before := time.Date(2016, time.August, 31, 23, 0, 0, 0, time.UTC)
	after := time.Date(2018, time.October, 1, 0, 0, 0, 0, time.UTC)
	lastIn := time.Date(2018, time.September, 30, 23, 59, 0, 0, time.UTC)

	items := []model.LineItem{
		lineItem("in", "P", "10", "2", march),
		lineItem("free-ship", "P", "10", "0", march),
		lineItem("early", "P", "10", "2", before),
		lineItem("late", "P", "10", "2", after),
		lineItem("edge", "P", "10", "2", lastIn),
		lineItem("zero-price", "P", "0", "2", march),
		lineItem("tiny-price", "P", "0.01", "2", march),
	}

	baselines, err := baseline.Estimate(items)
	require.NoError(t, err)
	enriched, err := Guarded(items, baselines, p)
	require.NoError(t, err)

	var kept []string
	for _, e := range enriched {
		kept = append(kept, e.OrderID)
	}
	assert.Equal(t, []string{"in", "free-ship", "edge", "tiny-price"}, kept)
}

func TestFlagInvariantsAcrossThresholds(t *testing.T) {
	var items []model.LineItem
	for i := 0; i < 12; i++ {
		product := fmt.Sprintf("p%d", i%3)
		price := decimal.NewFromInt(int64(50 + i*7%40))
		items = append(items, model.LineItem{
			OrderID: fmt.Sprintf("o%d", i), LineNo: 1, ProductID: product,
			Price: price, Freight: decimal.NewFromInt(3), Timestamp: march,
		})
	}

	for _, th := range []string{"0", "0.01", "0.05", "0.2", "0.5"} {
		for _, n := range []int{1, 3, 5} {
			p := withThreshold(th)
			p.MinBaselineN = n
			for _, e := range classifyWith(t, items, p) {
				if e.IsTrustedDiscount {
					assert.True(t, e.IsDiscounted, "trusted implies discounted (%s, n=%d)", th, n)
					assert.False(t, e.IsLowConfidence, "trusted implies confident (%s, n=%d)", th, n)
				}
			}
		}
	}
}
