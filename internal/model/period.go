//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package model defines the record types that flow through the KPI pipeline.
package model

import (
	"fmt"
	"time"
)

// Period is a calendar year-month bucket.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the UTC calendar month containing t.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Year: u.Year(), Month: u.Month()}
}

// NewPeriod builds a period, normalizing out-of-range months.
func NewPeriod(year int, month time.Month) Period {
	return PeriodOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// ParsePeriod parses a "YYYY-MM" string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return PeriodOf(t), nil
}

// MustParsePeriod is ParsePeriod for constants; it panics on bad input.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String formats the period as "YYYY-MM".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following period in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Index returns a monotonically increasing month number.
func (p Period) Index() int {
	return p.Year*12 + int(p.Month) - 1
}

// Compare returns -1, 0 or +1 depending on whether p is before, equal to
// or after q.
func (p Period) Compare(q Period) int {
	switch a, b := p.Index(), q.Index(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether p is strictly before q.
func (p Period) Before(q Period) bool { return p.Compare(q) < 0 }

// After reports whether p is strictly after q.
func (p Period) After(q Period) bool { return p.Compare(q) > 0 }

// Within reports whether p lies in the inclusive range [from, to].
func (p Period) Within(from, to Period) bool {
	return !p.Before(from) && !p.After(to)
}

// AddMonths returns the period n months after p.
func (p Period) AddMonths(n int) Period {
	return NewPeriod(p.Year, p.Month+time.Month(n))
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// MonthsBetween returns the number of whole calendar months from a to b.
// The result is negative when b is before a.
func MonthsBetween(a, b Period) int {
	return b.Index() - a.Index()
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
