//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-retailkpi.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
	"github.com/pgEdge/pgedge-retailkpi/internal/params"
)

// Config holds all configuration for pgedge-retailkpi.
type Config struct {
	// Backend selects the storage backend (postgres, sqlite).
	Backend string `mapstructure:"backend"`

	// Connection is the backend connection string. For sqlite it is a
	// file path or DSN.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Params holds the pipeline parameters.
	Params ParamsConfig `mapstructure:"params"`

	// Run holds configuration for the run subcommand.
	Run RunConfig `mapstructure:"run"`

	// Seed holds configuration for the seed subcommand.
	Seed SeedConfig `mapstructure:"seed"`
}

// ParamsConfig is the YAML form of params.Parameters. Decimal values are
// kept as strings so they are parsed exactly.
type ParamsConfig struct {
	DiscountThreshold string `mapstructure:"discount_threshold"`
	MinBaselineN      int    `mapstructure:"min_baseline_n"`
	WindowStart       string `mapstructure:"window_start"`
	WindowEnd         string `mapstructure:"window_end"`
	MinPrice          string `mapstructure:"min_price"`
	MinFreight        string `mapstructure:"min_freight"`
	ReconcileEpsilon  string `mapstructure:"reconcile_epsilon"`
	CategoryMinLines  int    `mapstructure:"category_min_lines"`
	SKUMinLines       int    `mapstructure:"sku_min_lines"`
	MinCohortSize     int    `mapstructure:"min_cohort_size"`
	Guarded           bool   `mapstructure:"guarded"`
}

// RunConfig holds configuration for a pipeline run.
type RunConfig struct {
	// From and To restrict the loaded data to a month range (YYYY-MM,
	// inclusive). Empty means unbounded.
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`

	// Workers bounds concurrent report computation.
	Workers int `mapstructure:"workers"`

	// MetricsFile, when set, receives Prometheus metrics in text format.
	MetricsFile string `mapstructure:"metrics_file"`

	// DryRun computes outputs without publishing them.
	DryRun bool `mapstructure:"dry_run"`
}

// SeedConfig holds configuration for synthetic data generation.
type SeedConfig struct {
	// Customers is the number of customer accounts to generate.
	Customers int `mapstructure:"customers"`

	// Orders is the number of orders to generate.
	Orders int `mapstructure:"orders"`

	// Seed makes generation reproducible. Zero picks a random seed.
	Seed uint64 `mapstructure:"seed"`

	// DropExisting drops existing schema before seeding.
	DropExisting bool `mapstructure:"drop_existing"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Backend:  "postgres",
		LogLevel: "info",
		Params:   ParamsFromParameters(params.Defaults()),
		Run: RunConfig{
			Workers: 4,
		},
		Seed: SeedConfig{
			Customers:    2000,
			Orders:       5000,
			DropExisting: false,
		},
	}
}

// ParamsFromParameters converts typed parameters to their config form.
func ParamsFromParameters(p params.Parameters) ParamsConfig {
	return ParamsConfig{
		DiscountThreshold: p.DiscountThreshold.String(),
		MinBaselineN:      p.MinBaselineN,
		WindowStart:       p.WindowStart.String(),
		WindowEnd:         p.WindowEnd.String(),
		MinPrice:          p.MinPrice.String(),
		MinFreight:        p.MinFreight.String(),
		ReconcileEpsilon:  p.ReconcileEpsilon.String(),
		CategoryMinLines:  p.CategoryMinLines,
		SKUMinLines:       p.SKUMinLines,
		MinCohortSize:     p.MinCohortSize,
		Guarded:           p.Guarded,
	}
}

// ToParameters parses and validates the parameter section.
func (pc ParamsConfig) ToParameters() (params.Parameters, error) {
	var p params.Parameters
	var err error

	decimals := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"discount_threshold", pc.DiscountThreshold, &p.DiscountThreshold},
		{"min_price", pc.MinPrice, &p.MinPrice},
		{"min_freight", pc.MinFreight, &p.MinFreight},
		{"reconcile_epsilon", pc.ReconcileEpsilon, &p.ReconcileEpsilon},
	}
	for _, f := range decimals {
		if *f.dst, err = decimal.NewFromString(f.value); err != nil {
			return params.Parameters{}, fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
	}

	if p.WindowStart, err = model.ParsePeriod(pc.WindowStart); err != nil {
		return params.Parameters{}, fmt.Errorf("invalid window_start: %w", err)
	}
	if p.WindowEnd, err = model.ParsePeriod(pc.WindowEnd); err != nil {
		return params.Parameters{}, fmt.Errorf("invalid window_end: %w", err)
	}

	p.MinBaselineN = pc.MinBaselineN
	p.CategoryMinLines = pc.CategoryMinLines
	p.SKUMinLines = pc.SKUMinLines
	p.MinCohortSize = pc.MinCohortSize
	p.Guarded = pc.Guarded

	if err := p.Validate(); err != nil {
		return params.Parameters{}, err
	}
	return p, nil
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-retailkpi.yaml
// 3. ~/.config/pgedge-retailkpi/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-retailkpi")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-retailkpi"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateRun checks configuration required for run command.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	from, to, err := c.Run.Range()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("run.to %s is before run.from %s", to, from)
	}
	if _, err := c.Params.ToParameters(); err != nil {
		return err
	}
	return nil
}

// ValidateSeed checks configuration required for seed command.
func (c *Config) ValidateSeed() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Seed.Customers < 1 {
		return fmt.Errorf("seed.customers must be at least 1")
	}
	if c.Seed.Orders < 1 {
		return fmt.Errorf("seed.orders must be at least 1")
	}
	return nil
}

// Range parses the optional from/to months. Unset bounds are returned
// as zero periods.
func (rc RunConfig) Range() (from, to model.Period, err error) {
	if rc.From != "" {
		if from, err = model.ParsePeriod(rc.From); err != nil {
			return from, to, fmt.Errorf("invalid run.from: %w", err)
		}
	}
	if rc.To != "" {
		if to, err = model.ParsePeriod(rc.To); err != nil {
			return from, to, fmt.Errorf("invalid run.to: %w", err)
		}
	}
	return from, to, nil
}
