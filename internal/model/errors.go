//-------------------------------------------------------------------------
//
// pgEdge Retail KPI Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package model

import "fmt"

// DataQualityError reports a malformed input record. The pipeline never
// coerces such records; the run fails.
type DataQualityError struct {
	Entity string
	Key    string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s %s: %s", e.Entity, e.Key, e.Reason)
}

// InvalidInputError is returned by a stage that receives input its
// upstream was supposed to reject.
type InvalidInputError struct {
	Stage  string
	Key    string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input to %s: %s: %s", e.Stage, e.Key, e.Reason)
}

// CardinalityError reports a broken uniqueness invariant. Output must not
// be published when one occurs.
type CardinalityError struct {
	Entity string
	Key    string
	Count  int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("cardinality violation: %s %s appears %d times", e.Entity, e.Key, e.Count)
}
