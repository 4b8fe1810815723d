// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package core provides the tabular data model shared by the matching and
// calibration stages, together with the error taxonomy for malformed input.
//
// Peak and reference data arrive as loosely typed tables: a fixed set of
// required columns plus an arbitrary number of pass-through columns that the
// pipeline must carry unmodified. Cells hold either a string (as read from a
// spreadsheet) or a float64 (computed by the pipeline).
package core

import (
	"math"
	"strconv"
	"strings"
)

// Row is a single tabular record, keyed by column name.
type Row map[string]any

// Table is an ordered sequence of rows with a stable column order.
// Column order determines output order; rows may omit cells for any column.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable returns an empty table with the given column order.
func NewTable(columns ...string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// EnsureColumns appends any columns not yet declared, preserving the order
// in which they are first seen.
func (t *Table) EnsureColumns(names ...string) {
	for _, n := range names {
		if !t.HasColumn(n) {
			t.Columns = append(t.Columns, n)
		}
	}
}

// Append adds a row. Cells for undeclared columns are kept but not
// rendered until the column is declared via EnsureColumns.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// Clone returns a copy of the row. Cell values are shared (cells are
// immutable value types).
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Float extracts a numeric cell. String cells are parsed after trimming
// whitespace. Absent, empty, unparseable, and NaN cells report ok=false;
// these model "no measurement" rather than an error.
func (r Row) Float(col string) (float64, bool) {
	v, present := r[col]
	if !present || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text renders a cell for use as a grouping key or display value.
// Absent cells render as the empty string.
func (r Row) Text(col string) string {
	v, present := r[col]
	if !present || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}
