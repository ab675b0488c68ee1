//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

// ValidateDataset checks the input invariants the stages rely on and
// returns the first violation found.
func ValidateDataset(ds *model.Dataset) error {
	orders := make(map[string]int, len(ds.Orders))
	for _, o := range ds.Orders {
		orders[o.OrderID]++
		if n := orders[o.OrderID]; n > 1 {
			return &model.CardinalityError{Entity: "order", Key: o.OrderID, Count: n}
		}
		if o.PurchasedAt.IsZero() {
			return &model.DataQualityError{Entity: "order", Key: o.OrderID, Reason: "missing purchase timestamp"}
		}
	}

	items := make(map[model.ItemKey]int, len(ds.Items))
	for _, item := range ds.Items {
		key := item.Key()
		items[key]++
		if n := items[key]; n > 1 {
			return &model.CardinalityError{Entity: "line_item", Key: key.String(), Count: n}
		}
		switch {
		case item.Price.IsNegative():
			return &model.DataQualityError{Entity: "line_item", Key: key.String(), Reason: "negative price " + item.Price.String()}
		case item.Freight.IsNegative():
			return &model.DataQualityError{Entity: "line_item", Key: key.String(), Reason: "negative freight " + item.Freight.String()}
		case item.Timestamp.IsZero():
			return &model.DataQualityError{Entity: "line_item", Key: key.String(), Reason: "missing timestamp"}
		}
	}
	return nil
}
