// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package xlsx reads the three Excel inputs of the pipeline: the
// multi-sheet peak workbook, the sample metadata sheet, and the reference
// glycan database.
package xlsx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/glycomics/glycoprep/pkg/core"
)

// Column names the readers introduce.
const (
	ColSampleSheet = "sample_sheet"
	// colKeyNorm holds the normalized metadata join key. Underscore-prefixed
	// columns are treated as helpers and dropped from all outputs.
	colKeyNorm = "_key_norm"
)

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanColumnName lowercases a header cell and replaces runs of
// non-alphanumeric characters with a single underscore.
func CleanColumnName(s string) string {
	return strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// NormalizeKey canonicalizes a string for sheet-to-metadata matching:
// trimmed, internal whitespace collapsed, lowercased.
func NormalizeKey(s string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// Sheet is one worksheet of the peak workbook, converted to a table.
type Sheet struct {
	Name  string
	Table core.Table
}

// ReadPeaks reads every sheet of a MALDI peak workbook. The first skipRows
// rows of each sheet are discarded (instrument exports lead with a spectrum
// path and a blank line), the next row is the header. Header names are
// cleaned and a sample_sheet column holding the sheet name is added to
// every row.
func ReadPeaks(path string, skipRows int) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening peaks workbook: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", name, err)
		}
		if len(rows) <= skipRows {
			sheets = append(sheets, Sheet{Name: name, Table: core.NewTable(ColSampleSheet)})
			continue
		}
		rows = rows[skipRows:]
		header := cleanHeader(rows[0])
		t := core.NewTable(append([]string{ColSampleSheet}, header...)...)
		for _, cells := range rows[1:] {
			if emptyRow(cells) {
				continue
			}
			row := core.Row{ColSampleSheet: name}
			fillRow(row, header, cells)
			t.Append(row)
		}
		sheets = append(sheets, Sheet{Name: name, Table: t})
	}
	return sheets, nil
}

// ReadMetadata reads the metadata workbook. sheetName selects a specific
// sheet; empty means the first sheet. The table must contain a
// sample_sheet column; a normalized join key is added as a helper column.
func ReadMetadata(path, sheetName string) (core.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return core.Table{}, fmt.Errorf("opening metadata workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return core.Table{}, fmt.Errorf("metadata workbook has no sheets")
		}
		sheetName = list[0]
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return core.Table{}, fmt.Errorf("reading metadata sheet %q: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return core.Table{}, &core.SchemaError{Table: "metadata", Column: ColSampleSheet}
	}
	header := cleanHeader(rows[0])
	t := core.NewTable(header...)
	if !t.HasColumn(ColSampleSheet) {
		return core.Table{}, &core.SchemaError{Table: "metadata", Column: ColSampleSheet}
	}
	t.EnsureColumns(colKeyNorm)
	for _, cells := range rows[1:] {
		if emptyRow(cells) {
			continue
		}
		row := core.Row{}
		fillRow(row, header, cells)
		row[colKeyNorm] = NormalizeKey(row.Text(ColSampleSheet))
		t.Append(row)
	}
	return t, nil
}

// ReadReference reads the reference glycan database from the first sheet.
// Column names are kept verbatim (the canonical database uses capitalized
// headers such as Mass and Composition); a mass and a composition column
// must be present, checked case-insensitively.
func ReadReference(path string) (core.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return core.Table{}, fmt.Errorf("opening reference workbook: %w", err)
	}
	defer f.Close()

	list := f.GetSheetList()
	if len(list) == 0 {
		return core.Table{}, fmt.Errorf("reference workbook has no sheets")
	}
	rows, err := f.GetRows(list[0])
	if err != nil {
		return core.Table{}, fmt.Errorf("reading reference sheet %q: %w", list[0], err)
	}
	if len(rows) == 0 {
		return core.Table{}, &core.SchemaError{Table: "reference", Column: "mass"}
	}
	header := uniqueHeader(rows[0])
	t := core.NewTable(header...)
	for _, required := range []string{"mass", "composition"} {
		if !hasColumnFold(t, required) {
			return core.Table{}, &core.SchemaError{Table: "reference", Column: required}
		}
	}
	for _, cells := range rows[1:] {
		if emptyRow(cells) {
			continue
		}
		row := core.Row{}
		fillRow(row, header, cells)
		t.Append(row)
	}
	return t, nil
}

// JoinMetadata broadcasts metadata cells onto every peak row of the
// matching sheet and concatenates all sheets into one table, in sheet
// order. Sheets without a metadata row are kept without metadata and
// reported in the second return value. When several metadata rows share a
// key, the first wins.
func JoinMetadata(sheets []Sheet, metadata core.Table) (core.Table, []string) {
	byKey := make(map[string]core.Row)
	for _, row := range metadata.Rows {
		key := row.Text(colKeyNorm)
		if _, dup := byKey[key]; !dup {
			byKey[key] = row
		}
	}
	metaCols := make([]string, 0, len(metadata.Columns))
	for _, c := range metadata.Columns {
		if c == ColSampleSheet || strings.HasPrefix(c, "_") {
			continue
		}
		metaCols = append(metaCols, c)
	}

	var combined core.Table
	var unmatched []string
	for _, sheet := range sheets {
		combined.EnsureColumns(sheet.Table.Columns...)
		meta, ok := byKey[NormalizeKey(sheet.Name)]
		if !ok {
			unmatched = append(unmatched, sheet.Name)
			combined.Rows = append(combined.Rows, sheet.Table.Rows...)
			continue
		}
		combined.EnsureColumns(metaCols...)
		for _, row := range sheet.Table.Rows {
			merged := row.Clone()
			for _, c := range metaCols {
				if v, present := meta[c]; present {
					merged[c] = v
				}
			}
			combined.Append(merged)
		}
	}
	return combined, unmatched
}

// cleanHeader cleans every header cell and disambiguates duplicates with a
// numeric suffix.
func cleanHeader(cells []string) []string {
	names := make([]string, len(cells))
	for i, c := range cells {
		names[i] = CleanColumnName(c)
	}
	return dedupe(names)
}

// uniqueHeader keeps header names verbatim, only disambiguating duplicates.
func uniqueHeader(cells []string) []string {
	return dedupe(append([]string(nil), cells...))
}

func dedupe(names []string) []string {
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			n = fmt.Sprintf("column_%d", i+1)
		}
		if count := seen[n]; count > 0 {
			seen[n] = count + 1
			n = fmt.Sprintf("%s_%d", n, count+1)
		}
		seen[n]++
		names[i] = n
	}
	return names
}

func fillRow(row core.Row, header []string, cells []string) {
	for i, col := range header {
		if i < len(cells) {
			row[col] = cells[i]
		}
	}
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func hasColumnFold(t core.Table, name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
