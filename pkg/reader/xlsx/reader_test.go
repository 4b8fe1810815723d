// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

package xlsx

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/glycomics/glycoprep/pkg/core"
)

func TestCleanColumnName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"m/z", "m_z"},
		{"Intens.", "intens"},
		{"S/N", "s_n"},
		{"Rel. Intens.", "rel_intens"},
		{"Quality Fac.", "quality_fac"},
		{"FWHM", "fwhm"},
		{"Chi^2", "chi_2"},
		{"  Sample  Sheet  ", "sample_sheet"},
		{"already_clean", "already_clean"},
		{"___", ""},
	}
	for _, c := range cases {
		if got := CleanColumnName(c.in); got != c.want {
			t.Errorf("CleanColumnName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Sample 1", "sample 1"},
		{"  Sample   1  ", "sample 1"},
		{"SAMPLE\t1", "sample 1"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := NormalizeKey(c.in); got != c.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"a", "", "a", "b", "a"})
	want := []string{"a", "column_2", "a_2", "b", "a_3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dedupe mismatch (-want +got):\n%s", diff)
	}
}

// writeWorkbook builds an xlsx file whose sheets hold the given rows.
func writeWorkbook(t *testing.T, path string, sheets map[string][][]any, order []string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatal(err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				t.Fatal(err)
			}
		}
		for r, cells := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetSheetRow(name, cell, &cells); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func TestReadPeaks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peaks.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sample 1": {
			{"C:\\spectra\\run1"},
			{},
			{"m/z", "Intens.", "SN"},
			{1000.1, 250.0, 12.5},
			{},
			{2000.2, 80.0, 3.1},
		},
		"Sample 2": {
			{"C:\\spectra\\run2"},
			{},
			{"m/z", "Intens.", "SN"},
			{1500.5, 40.0, 2.0},
		},
	}, []string{"Sample 1", "Sample 2"})

	sheets, err := ReadPeaks(path, 2)
	if err != nil {
		t.Fatalf("ReadPeaks: %v", err)
	}
	if len(sheets) != 2 {
		t.Fatalf("got %d sheets, want 2", len(sheets))
	}

	s1 := sheets[0]
	if s1.Name != "Sample 1" {
		t.Errorf("first sheet name = %q", s1.Name)
	}
	wantCols := []string{"sample_sheet", "m_z", "intens", "sn"}
	if diff := cmp.Diff(wantCols, s1.Table.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	// The blank spacer row between data rows is dropped.
	if s1.Table.Len() != 2 {
		t.Fatalf("sheet 1 rows = %d, want 2", s1.Table.Len())
	}
	row := s1.Table.Rows[0]
	if row.Text(ColSampleSheet) != "Sample 1" {
		t.Errorf("sample_sheet = %q", row.Text(ColSampleSheet))
	}
	mz, ok := row.Float("m_z")
	if !ok || mz != 1000.1 {
		t.Errorf("m_z = %v, %v", mz, ok)
	}

	if sheets[1].Table.Len() != 1 {
		t.Errorf("sheet 2 rows = %d, want 1", sheets[1].Table.Len())
	}
}

func TestReadPeaksShortSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peaks.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Empty": {{"only one row"}},
	}, []string{"Empty"})

	sheets, err := ReadPeaks(path, 2)
	if err != nil {
		t.Fatalf("ReadPeaks: %v", err)
	}
	if len(sheets) != 1 || sheets[0].Table.Len() != 0 {
		t.Errorf("short sheet should yield an empty table, got %+v", sheets)
	}
}

func TestReadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {
			{"Sample Sheet", "Group", "Batch"},
			{"Sample 1", "control", "A"},
			{"  SAMPLE   2 ", "treated", "B"},
		},
	}, []string{"Sheet1"})

	meta, err := ReadMetadata(path, "")
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Len() != 2 {
		t.Fatalf("rows = %d, want 2", meta.Len())
	}
	if !meta.HasColumn("sample_sheet") || !meta.HasColumn("group") {
		t.Errorf("columns = %v", meta.Columns)
	}
	if got := meta.Rows[1].Text(colKeyNorm); got != "sample 2" {
		t.Errorf("normalized key = %q, want %q", got, "sample 2")
	}
}

func TestReadMetadataMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {
			{"Name", "Group"},
			{"x", "y"},
		},
	}, []string{"Sheet1"})

	_, err := ReadMetadata(path, "")
	if _, ok := err.(*core.SchemaError); !ok {
		t.Errorf("got %v, want SchemaError", err)
	}
}

func TestReadReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {
			{"Mass", "Composition", "Sialylation"},
			{1579.58, "H5N4", "none"},
			{2040.72, "H5N4F1S1", "mono"},
		},
	}, []string{"Sheet1"})

	ref, err := ReadReference(path)
	if err != nil {
		t.Fatalf("ReadReference: %v", err)
	}
	// Reference headers stay verbatim.
	wantCols := []string{"Mass", "Composition", "Sialylation"}
	if diff := cmp.Diff(wantCols, ref.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if ref.Len() != 2 {
		t.Fatalf("rows = %d, want 2", ref.Len())
	}
	m, ok := ref.Rows[0].Float("Mass")
	if !ok || m != 1579.58 {
		t.Errorf("Mass = %v, %v", m, ok)
	}
}

func TestReadReferenceMissingMass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {
			{"Weight", "Composition"},
			{1579.58, "H5N4"},
		},
	}, []string{"Sheet1"})

	_, err := ReadReference(path)
	if _, ok := err.(*core.SchemaError); !ok {
		t.Errorf("got %v, want SchemaError", err)
	}
}

func TestJoinMetadata(t *testing.T) {
	s1 := core.NewTable(ColSampleSheet, "m_z")
	s1.Append(core.Row{ColSampleSheet: "Sample 1", "m_z": "1000"})
	s1.Append(core.Row{ColSampleSheet: "Sample 1", "m_z": "2000"})
	s2 := core.NewTable(ColSampleSheet, "m_z")
	s2.Append(core.Row{ColSampleSheet: "Orphan", "m_z": "1500"})
	sheets := []Sheet{
		{Name: "Sample 1", Table: s1},
		{Name: "Orphan", Table: s2},
	}

	meta := core.NewTable(ColSampleSheet, "group", colKeyNorm)
	meta.Append(core.Row{ColSampleSheet: "Sample 1", "group": "control", colKeyNorm: "sample 1"})
	// Duplicate key: the first metadata row wins.
	meta.Append(core.Row{ColSampleSheet: "sample 1", "group": "treated", colKeyNorm: "sample 1"})

	combined, unmatched := JoinMetadata(sheets, meta)

	if diff := cmp.Diff([]string{"Orphan"}, unmatched); diff != "" {
		t.Errorf("unmatched sheets mismatch (-want +got):\n%s", diff)
	}
	if combined.Len() != 3 {
		t.Fatalf("combined rows = %d, want 3", combined.Len())
	}
	if got := combined.Rows[0].Text("group"); got != "control" {
		t.Errorf("group = %q, want first metadata row to win", got)
	}
	if _, present := combined.Rows[2]["group"]; present {
		t.Errorf("orphan sheet received metadata: %v", combined.Rows[2])
	}
	// Helper columns never reach the combined table.
	if combined.HasColumn(colKeyNorm) {
		t.Errorf("helper column leaked into combined columns: %v", combined.Columns)
	}
}
