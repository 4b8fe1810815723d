// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package tsv writes result tables as tab-separated values with the
// canonical glycoprep column ordering.
package tsv

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/glycomics/glycoprep/pkg/core"
)

// Canonical output ordering: known peak columns first, then whatever
// metadata the run carried, then reference columns, then computed columns,
// then anything left over. Underscore-prefixed helper columns are dropped.
var (
	PeakColumns = []string{
		"sample_sheet", "m_z", "observed_mz", "intens", "sn", "rel_intens",
		"area", "quality_fac", "res", "fwhm", "chi_2", "time", "bk_peak",
	}
	ReferenceColumns = []string{"Mass", "Composition", "Sialylation", "Fucosylation", "Sulfation"}
	ComputedColumns  = []string{
		"ppm_difference", "ppm_difference_corrected",
		"sample_shift_estimate", "confidence", "confidence_corrected",
	}
)

// OrderColumns returns the table's columns in canonical output order.
func OrderColumns(t core.Table) []string {
	known := make(map[string]bool)
	for _, c := range PeakColumns {
		known[c] = true
	}
	for _, c := range ReferenceColumns {
		known[c] = true
	}
	for _, c := range ComputedColumns {
		known[c] = true
	}

	var metadata []string
	for _, c := range t.Columns {
		if !known[c] && !strings.HasPrefix(c, "_") {
			metadata = append(metadata, c)
		}
	}

	var ordered []string
	seen := make(map[string]bool)
	appendPresent := func(cols []string) {
		for _, c := range cols {
			if t.HasColumn(c) && !seen[c] {
				ordered = append(ordered, c)
				seen[c] = true
			}
		}
	}
	appendPresent(PeakColumns)
	appendPresent(metadata)
	appendPresent(ReferenceColumns)
	appendPresent(ComputedColumns)
	for _, c := range t.Columns {
		if !seen[c] && !strings.HasPrefix(c, "_") {
			ordered = append(ordered, c)
			seen[c] = true
		}
	}
	return ordered
}

// Write writes the table as TSV in canonical column order.
func Write(w io.Writer, t core.Table) error {
	bw := bufio.NewWriter(w)
	cols := OrderColumns(t)
	if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
		return err
	}
	fields := make([]string, len(cols))
	for _, row := range t.Rows {
		for i, c := range cols {
			fields[i] = formatCell(row[c])
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the table to path and returns the row count.
func WriteFile(path string, t core.Table) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return t.Len(), nil
}

// formatCell renders one cell. NaN and absent cells become empty fields;
// embedded tabs and newlines in string cells are flattened to spaces so a
// row always occupies one line.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		r := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")
		return r.Replace(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}
