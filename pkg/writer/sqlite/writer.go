// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package sqlite exports pipeline results to a single-file SQLite
// database: one table of matched rows and one table of per-sample shift
// estimates.
package sqlite

import (
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/glycomics/glycoprep/pkg/calib"
	"github.com/glycomics/glycoprep/pkg/core"
	"github.com/glycomics/glycoprep/pkg/writer/tsv"
)

// Writer handles writing pipeline results to a SQLite database file.
type Writer struct {
	db         *sql.DB
	outputPath string
}

var identRe = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// NewWriter opens (or creates) the database file.
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Writer{db: db, outputPath: outputPath}, nil
}

// Close closes the underlying database.
func (w *Writer) Close() error {
	return w.db.Close()
}

// WriteMatches creates the matches table from the table's columns (in
// canonical output order) and inserts every row in one transaction.
// Returns the number of rows written.
func (w *Writer) WriteMatches(t core.Table) (int, error) {
	cols := tsv.OrderColumns(t)
	if len(cols) == 0 {
		return 0, nil
	}
	idents := make([]string, len(cols))
	defs := make([]string, len(cols))
	for i, c := range cols {
		idents[i] = sanitizeIdent(c)
		defs[i] = fmt.Sprintf("%s %s", idents[i], columnAffinity(t, c))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS matches (%s)", strings.Join(defs, ", "))
	if _, err := w.db.Exec(ddl); err != nil {
		return 0, fmt.Errorf("failed to create matches table: %w", err)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO matches (%s) VALUES (%s)",
		strings.Join(idents, ", "), placeholders))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for _, row := range t.Rows {
		for i, c := range cols {
			args[i] = sqlValue(row[c])
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert match row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit matches: %w", err)
	}
	return t.Len(), nil
}

// WriteShifts writes the per-sample shift estimates, including the derived
// severity assessment.
func (w *Writer) WriteShifts(shifts []calib.ShiftEstimate) error {
	ddl := `CREATE TABLE IF NOT EXISTS sample_shifts (
		sample TEXT PRIMARY KEY,
		shift_median REAL,
		shift_mean REAL,
		shift_std REAL,
		n_peaks INTEGER,
		assessment TEXT
	)`
	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create sample_shifts table: %w", err)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO sample_shifts
		(sample, shift_median, shift_mean, shift_std, n_peaks, assessment)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range shifts {
		var std any
		if !math.IsNaN(s.Std) {
			std = s.Std
		}
		if _, err := stmt.Exec(s.Sample, s.Median, s.Mean, std, s.NPeaks, calib.Severity(s.Median)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert shift for %q: %w", s.Sample, err)
		}
	}
	return tx.Commit()
}

// sanitizeIdent converts an arbitrary column name into a safe SQL
// identifier.
func sanitizeIdent(name string) string {
	s := identRe.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "col"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "c_" + s
	}
	return strings.ToLower(s)
}

// columnAffinity picks REAL for columns whose first defined cell is
// numeric, TEXT otherwise.
func columnAffinity(t core.Table, col string) string {
	for _, row := range t.Rows {
		v, present := row[col]
		if !present || v == nil {
			continue
		}
		if _, isFloat := v.(float64); isFloat {
			return "REAL"
		}
		return "TEXT"
	}
	return "TEXT"
}

// sqlValue maps a table cell to a driver value; NaN becomes NULL.
func sqlValue(v any) any {
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return nil
	}
	return v
}
