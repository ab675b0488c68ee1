//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retailkpi/internal/datagen"
	"github.com/pgEdge/pgedge-retailkpi/internal/logging"
)

var (
	seedCustomers    int
	seedOrders       int
	seedSeed         uint64
	seedDropExisting bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the input tables with synthetic marketplace data",
	Long: `Generate a synthetic marketplace (customers, sellers, products,
orders, line items and payments) and load it into the configured
backend, replacing any existing input data. A fixed --seed produces
the same dataset every time.

Example:
  pgedge-retailkpi seed --backend sqlite --connection kpi.db --orders 10000 --seed 42`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCustomers, "customers", 0,
		"number of distinct customers")
	seedCmd.Flags().IntVar(&seedOrders, "orders", 0,
		"number of orders")
	seedCmd.Flags().Uint64Var(&seedSeed, "seed", 0,
		"random seed (0 = random)")
	seedCmd.Flags().BoolVar(&seedDropExisting, "drop-existing", false,
		"drop all tables, including published KPIs, before seeding")
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if seedCustomers > 0 {
		cfg.Seed.Customers = seedCustomers
	}
	if seedOrders > 0 {
		cfg.Seed.Orders = seedOrders
	}
	if seedSeed > 0 {
		cfg.Seed.Seed = seedSeed
	}
	if seedDropExisting {
		cfg.Seed.DropExisting = true
	}

	// Validate configuration
	if err := cfg.ValidateSeed(); err != nil {
		return err
	}

	genCfg := datagen.DefaultConfig()
	genCfg.Customers = cfg.Seed.Customers
	genCfg.Orders = cfg.Seed.Orders
	genCfg.Seed = cfg.Seed.Seed
	if err := genCfg.Validate(); err != nil {
		return err
	}

	logging.Info().
		Str("backend", cfg.Backend).
		Int("customers", genCfg.Customers).
		Int("orders", genCfg.Orders).
		Msg("Seeding database")

	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	// Drop existing schema if requested
	if cfg.Seed.DropExisting {
		logging.Info().Msg("Dropping existing schema")
		if err := b.DropSchema(ctx); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
		if err := b.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	ds, err := datagen.NewGenerator(genCfg).Generate(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate data: %w", err)
	}

	if err := b.Seed(ctx, ds); err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}

	logging.Info().
		Int("customers", len(ds.Customers)).
		Int("products", len(ds.Products)).
		Int("orders", len(ds.Orders)).
		Int("items", len(ds.Items)).
		Int("payments", len(ds.Payments)).
		Msg("Seeding complete")

	return nil
}
