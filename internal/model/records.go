//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is an order header.
type Order struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	Status      string    `json:"status"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// LineItem is one priced line of an order.
type LineItem struct {
	OrderID   string          `json:"order_id"`
	LineNo    int             `json:"line_no"`
	ProductID string          `json:"product_id"`
	SellerID  string          `json:"seller_id"`
	Price     decimal.Decimal `json:"price"`
	Freight   decimal.Decimal `json:"freight"`
	Timestamp time.Time       `json:"timestamp"`
}

// Key returns the item's unique key.
func (li LineItem) Key() ItemKey {
	return ItemKey{OrderID: li.OrderID, LineNo: li.LineNo}
}

// Period returns the calendar month of the item's timestamp.
func (li LineItem) Period() Period {
	return PeriodOf(li.Timestamp)
}

// ItemKey identifies a line item.
type ItemKey struct {
	OrderID string
	LineNo  int
}

// String formats the key as "order_id#line_no".
func (k ItemKey) String() string {
	return fmt.Sprintf("%s#%d", k.OrderID, k.LineNo)
}

// Payment is one recorded payment instalment for an order.
type Payment struct {
	OrderID      string          `json:"order_id"`
	Sequential   int             `json:"sequential"`
	Type         string          `json:"type"`
	Installments int             `json:"installments"`
	Amount       decimal.Decimal `json:"amount"`
}

// Product is a catalog entry.
type Product struct {
	ProductID string `json:"product_id"`
	Category  string `json:"category"`
}

// Customer maps a per-order customer id to the person behind it.
type Customer struct {
	CustomerID       string `json:"customer_id"`
	CustomerUniqueID string `json:"customer_unique_id"`
	City             string `json:"city"`
	State            string `json:"state"`
}

// Seller is a marketplace seller.
type Seller struct {
	SellerID string `json:"seller_id"`
	City     string `json:"city"`
	State    string `json:"state"`
}

// Dataset bundles the six input record streams.
type Dataset struct {
	Orders    []Order
	Items     []LineItem
	Payments  []Payment
	Products  []Product
	Customers []Customer
	Sellers   []Seller
}

// PriceBaseline is the robust central price of a product within a period.
type PriceBaseline struct {
	ProductID   string          `json:"product_id"`
	Period      Period          `json:"period"`
	MedianPrice decimal.Decimal `json:"median_price"`
	SampleSize  int             `json:"sample_size"`
}

// BaselineRef is the part of a baseline carried on an enriched item.
type BaselineRef struct {
	MedianPrice decimal.Decimal `json:"median_price"`
	SampleSize  int             `json:"sample_size"`
}

// EnrichedLineItem is a line item annotated with its baseline and
// discount flags. Baseline is nil when the product had no baseline in
// the item's period.
type EnrichedLineItem struct {
	LineItem
	Baseline          *BaselineRef `json:"baseline"`
	IsDiscounted      bool         `json:"is_discounted"`
	IsLowConfidence   bool         `json:"is_low_confidence"`
	IsTrustedDiscount bool         `json:"is_trusted_discount"`
}

// OrderKPI is one row per order with at least one enriched line item.
type OrderKPI struct {
	OrderID            string          `json:"order_id"`
	CustomerID         string          `json:"customer_id"`
	Timestamp          time.Time       `json:"timestamp"`
	ItemsRevenue       decimal.Decimal `json:"items_revenue"`
	FreightTotal       decimal.Decimal `json:"freight_total"`
	PaymentValue       decimal.Decimal `json:"payment_value"`
	MarginProxy        decimal.Decimal `json:"margin_proxy"`
	AnyDiscount        bool            `json:"any_discount"`
	AnyTrustedDiscount bool            `json:"any_trusted_discount"`
	FreeShipping       bool            `json:"free_shipping"`
}

// Period returns the calendar month the order was placed in.
func (k OrderKPI) Period() Period {
	return PeriodOf(k.Timestamp)
}

// ReconciliationGap is |payment - (revenue + freight)|.
func (k OrderKPI) ReconciliationGap() decimal.Decimal {
	return k.PaymentValue.Sub(k.ItemsRevenue.Add(k.FreightTotal)).Abs()
}

// CohortRecord places one clean order of a customer relative to that
// customer's first purchase month.
type CohortRecord struct {
	CustomerUniqueID string          `json:"customer_unique_id"`
	OrderID          string          `json:"order_id"`
	CohortPeriod     Period          `json:"cohort_period"`
	OrderMonth       Period          `json:"order_month"`
	MonthOffset      int             `json:"month_offset"`
	Revenue          decimal.Decimal `json:"revenue"`
	MarginProxy      decimal.Decimal `json:"margin_proxy"`
}
