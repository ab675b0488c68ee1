//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/logging"
	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

// Config controls the shape of a generated marketplace.
type Config struct {
	// Customers is the number of distinct people placing orders.
	Customers int

	// Orders is the number of orders to generate.
	Orders int

	// Seed makes generation reproducible. Zero picks a random seed.
	Seed uint64

	// Start and End bound purchase timestamps.
	Start time.Time
	End   time.Time

	// MarkdownRate is the share of line items sold below list price.
	MarkdownRate float64

	// MismatchRate is the share of orders whose payments do not add up.
	MismatchRate float64

	// FreeShippingRate is the share of line items with zero freight.
	FreeShippingRate float64

	// RepeatRate is the chance an order comes from a returning customer.
	RepeatRate float64

	// ProgressInterval is how often to log progress (in rows).
	ProgressInterval int64
}

// DefaultConfig returns a small marketplace spanning the default
// classifier window.
func DefaultConfig() Config {
	return Config{
		Customers:        2000,
		Orders:           5000,
		Start:            time.Date(2016, time.October, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2018, time.August, 31, 23, 59, 59, 0, time.UTC),
		MarkdownRate:     0.15,
		MismatchRate:     0.03,
		FreeShippingRate: 0.05,
		RepeatRate:       0.25,
		ProgressInterval: 10000,
	}
}

// Validate checks that the configuration can produce a dataset.
func (c Config) Validate() error {
	if c.Customers < 1 {
		return fmt.Errorf("customers must be at least 1")
	}
	if c.Orders < 1 {
		return fmt.Errorf("orders must be at least 1")
	}
	if !c.End.After(c.Start) {
		return fmt.Errorf("end must be after start")
	}
	for name, rate := range map[string]float64{
		"markdown_rate":      c.MarkdownRate,
		"mismatch_rate":      c.MismatchRate,
		"free_shipping_rate": c.FreeShippingRate,
		"repeat_rate":        c.RepeatRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	return nil
}

// Reference data
var productCategories = []string{
	"bed_bath_table", "health_beauty", "sports_leisure", "furniture_decor",
	"computers_accessories", "housewares", "watches_gifts", "telephony",
	"garden_tools", "auto", "toys", "cool_stuff", "perfumery", "baby",
}

var categoryWeights = []int{12, 11, 10, 9, 8, 8, 7, 6, 6, 5, 5, 5, 4, 4}

var orderStatuses = []string{"delivered", "shipped", "canceled", "invoiced"}

var statusWeights = []int{94, 3, 2, 1}

var paymentTypes = []string{"credit_card", "boleto", "voucher", "debit_card"}

var paymentWeights = []int{74, 19, 5, 2}

// Generator generates synthetic marketplace datasets.
type Generator struct {
	faker *Faker
	cfg   Config
}

// NewGenerator creates a generator. A zero seed uses a random one.
func NewGenerator(cfg Config) *Generator {
	faker := NewFaker()
	if cfg.Seed != 0 {
		faker = NewFakerWithSeed(cfg.Seed)
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultConfig().ProgressInterval
	}
	return &Generator{faker: faker, cfg: cfg}
}

type listing struct {
	product model.Product
	list    decimal.Decimal
}

type person struct {
	uniqueID string
	city     string
	state    string
}

// Generate builds a complete dataset.
func (g *Generator) Generate(ctx context.Context) (*model.Dataset, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}

	numSellers := max(1, g.cfg.Customers/50)
	numProducts := max(1, g.cfg.Orders/20)

	logging.Info().
		Int("customers", g.cfg.Customers).
		Int("orders", g.cfg.Orders).
		Int("products", numProducts).
		Int("sellers", numSellers).
		Msg("Generating marketplace data")

	ds := &model.Dataset{}

	for i := 0; i < numSellers; i++ {
		ds.Sellers = append(ds.Sellers, model.Seller{
			SellerID: g.faker.UUID(),
			City:     g.faker.City(),
			State:    g.faker.State(),
		})
	}

	listings := make([]listing, 0, numProducts)
	for i := 0; i < numProducts; i++ {
		p := model.Product{ProductID: g.faker.UUID()}
		// A small share of the catalog has no category.
		if !g.faker.Chance(0.02) {
			p.Category = ChooseWeighted(g.faker, productCategories, categoryWeights)
		}
		ds.Products = append(ds.Products, p)
		listings = append(listings, listing{product: p, list: g.faker.Money(5, 500)})
	}

	people := make([]person, 0, g.cfg.Customers)
	for i := 0; i < g.cfg.Customers; i++ {
		people = append(people, person{
			uniqueID: g.faker.UUID(),
			city:     g.faker.City(),
			state:    g.faker.State(),
		})
	}

	progress := NewProgressReporter("orders", int64(g.cfg.Orders), g.cfg.ProgressInterval)
	next := 0
	for i := 0; i < g.cfg.Orders; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// New customers first, then a mix of returning and new.
		var who person
		if next < len(people) && (next == 0 || !g.faker.Chance(g.cfg.RepeatRate)) {
			who = people[next]
			next++
		} else {
			who = people[g.faker.Int(0, max(0, next-1))]
		}

		g.order(ds, i, who, listings)
		progress.Update(1)
	}
	progress.Done()

	return ds, nil
}

func (g *Generator) order(ds *model.Dataset, seq int, who person, listings []listing) {
	orderID := fmt.Sprintf("ord-%08d", seq+1)
	customer := model.Customer{
		CustomerID:       g.faker.UUID(),
		CustomerUniqueID: who.uniqueID,
		City:             who.city,
		State:            who.state,
	}
	ds.Customers = append(ds.Customers, customer)

	purchased := g.faker.DateRange(g.cfg.Start, g.cfg.End).Truncate(time.Second)
	ds.Orders = append(ds.Orders, model.Order{
		OrderID:     orderID,
		CustomerID:  customer.CustomerID,
		Status:      ChooseWeighted(g.faker, orderStatuses, statusWeights),
		PurchasedAt: purchased,
	})

	lines := ChooseWeighted(g.faker, []int{1, 2, 3}, []int{85, 12, 3})
	total := decimal.Zero
	for line := 1; line <= lines; line++ {
		l := Choose(g.faker, listings)
		price := g.price(l.list)
		freight := decimal.Zero
		if !g.faker.Chance(g.cfg.FreeShippingRate) {
			freight = price.Mul(decimal.NewFromFloat(g.faker.Float64(0.05, 0.30))).Round(2)
		}
		ds.Items = append(ds.Items, model.LineItem{
			OrderID:   orderID,
			LineNo:    line,
			ProductID: l.product.ProductID,
			SellerID:  Choose(g.faker, ds.Sellers).SellerID,
			Price:     price,
			Freight:   freight,
			Timestamp: purchased.Add(time.Duration(g.faker.Int(24, 24*7)) * time.Hour),
		})
		total = total.Add(price).Add(freight)
	}

	if g.faker.Chance(g.cfg.MismatchRate) {
		total = total.Sub(g.faker.Money(1, 20))
		if total.IsNegative() {
			total = decimal.Zero
		}
	}
	g.payments(ds, orderID, total)
}

// price applies either a markdown or a small jitter to a list price.
func (g *Generator) price(list decimal.Decimal) decimal.Decimal {
	var factor float64
	if g.faker.Chance(g.cfg.MarkdownRate) {
		factor = 1 - g.faker.Float64(0.10, 0.40)
	} else {
		factor = 1 + g.faker.Float64(-0.02, 0.02)
	}
	p := list.Mul(decimal.NewFromFloat(factor)).Round(2)
	if p.LessThan(decimal.New(1, -2)) {
		return decimal.New(1, -2)
	}
	return p
}

// payments splits total across one or two payment records.
func (g *Generator) payments(ds *model.Dataset, orderID string, total decimal.Decimal) {
	method := ChooseWeighted(g.faker, paymentTypes, paymentWeights)
	installments := 1
	if method == "credit_card" {
		installments = g.faker.Int(1, 10)
	}

	if method != "voucher" && total.GreaterThan(decimal.NewFromInt(20)) && g.faker.Chance(0.05) {
		voucher := g.faker.Money(5, 20)
		ds.Payments = append(ds.Payments,
			model.Payment{OrderID: orderID, Sequential: 1, Type: "voucher", Installments: 1, Amount: voucher},
			model.Payment{OrderID: orderID, Sequential: 2, Type: method, Installments: installments, Amount: total.Sub(voucher)},
		)
		return
	}
	ds.Payments = append(ds.Payments, model.Payment{
		OrderID: orderID, Sequential: 1, Type: method, Installments: installments, Amount: total,
	})
}

// ProgressReporter tracks and reports data generation progress.
type ProgressReporter struct {
	tableName        string
	totalRows        int64
	currentRow       int64
	progressInterval int64
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter(tableName string, totalRows int64, interval int64) *ProgressReporter {
	return &ProgressReporter{
		tableName:        tableName,
		totalRows:        totalRows,
		progressInterval: interval,
	}
}

// Update updates the progress and logs if necessary.
func (p *ProgressReporter) Update(rowsInserted int64) {
	oldRow := p.currentRow
	p.currentRow += rowsInserted

	// Check if we crossed a progress interval
	if p.currentRow/p.progressInterval > oldRow/p.progressInterval {
		pct := float64(p.currentRow) / float64(p.totalRows) * 100
		logging.Info().
			Str("table", p.tableName).
			Int64("rows", p.currentRow).
			Int64("total", p.totalRows).
			Float64("percent", pct).
			Msg("Generating data")
	}
}

// Done logs completion.
func (p *ProgressReporter) Done() {
	logging.Info().
		Str("table", p.tableName).
		Int64("rows", p.currentRow).
		Msg("Table complete")
}
