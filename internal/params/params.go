//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package params holds the parameter set shared by every pipeline stage.
//
// A run reads one immutable Parameters snapshot from the Store and hands
// the same pointer to every stage. Updates replace the whole snapshot
// atomically and are only observed by runs that start afterwards.
package params

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

// Parameters is the run-wide configuration of the pipeline.
type Parameters struct {
	// DiscountThreshold is the fraction below the baseline median at which
	// an item counts as discounted.
	DiscountThreshold decimal.Decimal `validate:"gte=0,lt=1"`

	// MinBaselineN is the minimum baseline sample size for a trusted discount.
	MinBaselineN int `validate:"gte=1"`

	// WindowStart and WindowEnd bound the guarded classifier (inclusive).
	WindowStart model.Period
	WindowEnd   model.Period

	// MinPrice and MinFreight are sanity floors for the guarded classifier.
	MinPrice   decimal.Decimal `validate:"gte=0"`
	MinFreight decimal.Decimal `validate:"gte=0"`

	// ReconcileEpsilon is the absolute tolerance between payment and
	// revenue plus freight.
	ReconcileEpsilon decimal.Decimal `validate:"gte=0"`

	// CategoryMinLines and SKUMinLines are the rollup support floors.
	CategoryMinLines int `validate:"gte=0"`
	SKUMinLines      int `validate:"gte=0"`

	// MinCohortSize drops small cohorts from the filtered retention view.
	MinCohortSize int `validate:"gte=0"`

	// Guarded selects the window/floor filtered classifier.
	Guarded bool
}

// Defaults returns the default parameter set.
func Defaults() Parameters {
	return Parameters{
		DiscountThreshold: decimal.RequireFromString("0.05"),
		MinBaselineN:      3,
		WindowStart:       model.MustParsePeriod("2016-09"),
		WindowEnd:         model.MustParsePeriod("2018-09"),
		MinPrice:          decimal.RequireFromString("0.01"),
		MinFreight:        decimal.Zero,
		ReconcileEpsilon:  decimal.RequireFromString("0.01"),
		CategoryMinLines:  100,
		SKUMinLines:       50,
		MinCohortSize:     30,
		Guarded:           true,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks that the parameters are usable.
func (p Parameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid parameters: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if p.WindowStart.IsZero() || p.WindowEnd.IsZero() {
		return fmt.Errorf("invalid parameters: window_start and window_end are required")
	}
	if p.WindowEnd.Before(p.WindowStart) {
		return fmt.Errorf("invalid parameters: window_end %s is before window_start %s",
			p.WindowEnd, p.WindowStart)
	}
	return nil
}

// DiscountCutoff returns the multiplier (1 - threshold) applied to the
// baseline median.
func (p Parameters) DiscountCutoff() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.DiscountThreshold)
}

// Fingerprint returns a stable hash of the parameter values.
func (p Parameters) Fingerprint() string {
	canonical := fmt.Sprintf(
		"discount_threshold=%s;min_baseline_n=%d;window=%s..%s;min_price=%s;min_freight=%s;"+
			"reconcile_epsilon=%s;category_min_lines=%d;sku_min_lines=%d;min_cohort_size=%d;guarded=%t",
		p.DiscountThreshold.String(), p.MinBaselineN, p.WindowStart, p.WindowEnd,
		p.MinPrice.String(), p.MinFreight.String(), p.ReconcileEpsilon.String(),
		p.CategoryMinLines, p.SKUMinLines, p.MinCohortSize, p.Guarded,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}

// Store holds the process-wide current parameter set.
type Store struct {
	current atomic.Pointer[Parameters]
}

// NewStore creates a store initialized with p. It panics if p is invalid,
// which only happens on programmer error.
func NewStore(p Parameters) *Store {
	if err := p.Validate(); err != nil {
		panic(err)
	}
	s := &Store{}
	s.current.Store(&p)
	return s
}

// Snapshot returns the current parameters. The returned value is shared
// and must be treated as read-only.
func (s *Store) Snapshot() *Parameters {
	return s.current.Load()
}

// Update validates p and replaces the current snapshot in one step.
func (s *Store) Update(p Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.current.Store(&p)
	return nil
}
