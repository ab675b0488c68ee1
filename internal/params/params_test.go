//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package params

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailkpi/internal/model"
)

func TestDefaults(t *testing.T) {
	p := Defaults()

	if !p.DiscountThreshold.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Expected DiscountThreshold 0.05, got %s", p.DiscountThreshold)
	}
	if p.MinBaselineN != 3 {
		t.Errorf("Expected MinBaselineN 3, got %d", p.MinBaselineN)
	}
	if p.WindowStart.String() != "2016-09" || p.WindowEnd.String() != "2018-09" {
		t.Errorf("Expected window 2016-09..2018-09, got %s..%s", p.WindowStart, p.WindowEnd)
	}
	if !p.MinPrice.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Expected MinPrice 0.01, got %s", p.MinPrice)
	}
	if !p.MinFreight.IsZero() {
		t.Errorf("Expected MinFreight 0, got %s", p.MinFreight)
	}
	if !p.ReconcileEpsilon.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Expected ReconcileEpsilon 0.01, got %s", p.ReconcileEpsilon)
	}
	if p.CategoryMinLines != 100 || p.SKUMinLines != 50 {
		t.Errorf("Expected floors 100/50, got %d/%d", p.CategoryMinLines, p.SKUMinLines)
	}
	if p.MinCohortSize != 30 {
		t.Errorf("Expected MinCohortSize 30, got %d", p.MinCohortSize)
	}
	if !p.Guarded {
		t.Error("Expected Guarded true")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Defaults should validate, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *Parameters)
		wantError bool
	}{
		{"defaults", func(p *Parameters) {}, false},
		{"threshold of one", func(p *Parameters) { p.DiscountThreshold = decimal.NewFromInt(1) }, true},
		{"negative threshold", func(p *Parameters) { p.DiscountThreshold = decimal.RequireFromString("-0.1") }, true},
		{"zero min baseline", func(p *Parameters) { p.MinBaselineN = 0 }, true},
		{"negative epsilon", func(p *Parameters) { p.ReconcileEpsilon = decimal.RequireFromString("-0.01") }, true},
		{"negative sku floor", func(p *Parameters) { p.SKUMinLines = -1 }, true},
		{"reversed window", func(p *Parameters) {
			p.WindowStart, p.WindowEnd = p.WindowEnd, p.WindowStart
		}, true},
		{"missing window", func(p *Parameters) { p.WindowEnd = model.Period{} }, true},
		{"single month window", func(p *Parameters) { p.WindowEnd = p.WindowStart }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Defaults()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a, b := Defaults(), Defaults()
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Equal parameters should share a fingerprint")
	}

	// Trailing zeros do not change the value.
	b.DiscountThreshold = decimal.RequireFromString("0.050")
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("0.050 and 0.05 should share a fingerprint")
	}

	b = Defaults()
	b.MinBaselineN = 4
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Different parameters should not share a fingerprint")
	}
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	s := NewStore(Defaults())
	before := s.Snapshot()

	next := Defaults()
	next.DiscountThreshold = decimal.RequireFromString("0.10")
	next.MinBaselineN = 5
	if err := s.Update(next); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if before.MinBaselineN != 3 {
		t.Error("Update must not mutate a snapshot already handed out")
	}
	after := s.Snapshot()
	if after.MinBaselineN != 5 || !after.DiscountThreshold.Equal(decimal.RequireFromString("0.10")) {
		t.Errorf("Expected updated snapshot, got %+v", after)
	}

	bad := Defaults()
	bad.MinBaselineN = 0
	if err := s.Update(bad); err == nil {
		t.Error("Expected invalid update to be rejected")
	}
	if s.Snapshot() != after {
		t.Error("Rejected update must leave the current snapshot in place")
	}
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore(Defaults())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					p := Defaults()
					p.MinBaselineN = 3 + j%3
					_ = s.Update(p)
					continue
				}
				snap := s.Snapshot()
				// Fields of one snapshot always belong together.
				if snap.Fingerprint() != snap.Fingerprint() {
					t.Error("Snapshot changed while being read")
				}
			}
		}(i)
	}
	wg.Wait()
}
