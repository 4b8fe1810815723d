// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

package core

import "fmt"

// SchemaError reports a required column that is absent from an input table.
type SchemaError struct {
	Table  string // which input ("peaks", "reference", "matched")
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s table is missing required column %q", e.Table, e.Column)
}

// DivisionDomainError reports a reference row whose theoretical mass is zero.
// A zero mass makes the PPM difference undefined; this is a data-quality
// fault in the reference table, not a tolerable condition.
type DivisionDomainError struct {
	Row    int // zero-based row index in the reference table
	Column string
}

func (e *DivisionDomainError) Error() string {
	return fmt.Sprintf("reference row %d has zero %q; PPM difference is undefined", e.Row, e.Column)
}

// MissingShiftError reports a matched row whose sample has no shift
// estimate. Estimation and correction run over the same matched set, so
// this indicates a broken internal invariant rather than bad user input.
type MissingShiftError struct {
	Sample string
}

func (e *MissingShiftError) Error() string {
	return fmt.Sprintf("no shift estimate for sample %q", e.Sample)
}
