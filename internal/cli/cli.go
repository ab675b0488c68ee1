//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-retailkpi.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retailkpi/internal/config"
	"github.com/pgEdge/pgedge-retailkpi/internal/logging"
	"github.com/pgEdge/pgedge-retailkpi/internal/store"
	"github.com/pgEdge/pgedge-retailkpi/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	backend    string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-retailkpi",
		Short: "Discount detection and KPI pipeline for marketplace orders",
		Long: `pgedge-retailkpi reads marketplace orders, line items and payments,
detects discounted sales against a per-product monthly median price,
reconciles order revenue against payments, and publishes monthly,
category, SKU and cohort KPIs back to the database.

Each run recomputes every output table from the input tables and
replaces the previous results in a single transaction.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-retailkpi.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"backend connection string (PostgreSQL URL or SQLite file)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "",
		"storage backend (postgres, sqlite)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(statusCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

// openBackend opens the configured backend and makes sure its tables exist.
func openBackend(ctx context.Context) (store.Backend, error) {
	b, err := store.Open(ctx, cfg.Backend, cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}
	if err := b.EnsureSchema(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the effective pipeline parameters",
	Long: `Print the pipeline parameters after applying the config file, along
with the fingerprint recorded in run metadata. Two runs with the same
fingerprint over the same input produce identical outputs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := cfg.Params.ToParameters()
		if err != nil {
			return err
		}
		cmd.Printf("discount_threshold: %s\n", p.DiscountThreshold)
		cmd.Printf("min_baseline_n:     %d\n", p.MinBaselineN)
		cmd.Printf("window:             %s .. %s\n", p.WindowStart, p.WindowEnd)
		cmd.Printf("min_price:          %s\n", p.MinPrice)
		cmd.Printf("min_freight:        %s\n", p.MinFreight)
		cmd.Printf("reconcile_epsilon:  %s\n", p.ReconcileEpsilon)
		cmd.Printf("category_min_lines: %d\n", p.CategoryMinLines)
		cmd.Printf("sku_min_lines:      %d\n", p.SKUMinLines)
		cmd.Printf("min_cohort_size:    %d\n", p.MinCohortSize)
		cmd.Printf("guarded:            %t\n", p.Guarded)
		cmd.Println()
		cmd.Printf("fingerprint: %s\n", p.Fingerprint())
		return nil
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available storage backends",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Available backends:")
		cmd.Println()
		for _, d := range store.All() {
			cmd.Printf("  %-10s - %s\n", d.Name(), d.Description())
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last published run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := context.Background()
		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		meta, err := b.LastRun(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("run_id:       %s\n", meta.RunID)
		cmd.Printf("version:      %s\n", meta.Version)
		cmd.Printf("fingerprint:  %s\n", meta.ParamsFingerprint)
		cmd.Printf("published_at: %s\n", meta.PublishedAt.Format(time.RFC3339))
		return nil
	},
}
