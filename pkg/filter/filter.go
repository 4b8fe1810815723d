// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package filter provides quality pre-filters applied to peak tables
// before matching.
package filter

import "github.com/glycomics/glycoprep/pkg/core"

// Config holds filtering configuration.
type Config struct {
	MinSN    *float64 // minimum signal-to-noise ratio (nil = no filter)
	SNColumn string   // signal-to-noise column, default "sn"
}

// Result reports what a filter pass did.
type Result struct {
	Table   core.Table
	Before  int
	After   int
	Applied bool // false when no filter was configured or the column is absent
}

// Apply runs all configured filters over the table and returns the
// surviving rows. Rows whose S/N cell is missing or non-numeric are
// dropped by an active S/N filter: a >= comparison against an undefined
// value cannot hold.
func (c *Config) Apply(t core.Table) Result {
	res := Result{Table: t, Before: t.Len(), After: t.Len()}
	if c.MinSN == nil {
		return res
	}
	snCol := c.SNColumn
	if snCol == "" {
		snCol = "sn"
	}
	if !t.HasColumn(snCol) {
		return res
	}

	kept := core.NewTable(t.Columns...)
	for _, row := range t.Rows {
		sn, defined := row.Float(snCol)
		if defined && sn >= *c.MinSN {
			kept.Append(row)
		}
	}
	res.Table = kept
	res.After = kept.Len()
	res.Applied = true
	return res
}
