// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package pipeline runs the full glycoprep workflow: read inputs, join
// metadata, filter, match, calibrate, write outputs. It is shared by the
// CLI and the web server; progress is reported through a caller-supplied
// emit function and never influences results.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/glycomics/glycoprep/pkg/calib"
	"github.com/glycomics/glycoprep/pkg/core"
	"github.com/glycomics/glycoprep/pkg/filter"
	"github.com/glycomics/glycoprep/pkg/match"
	"github.com/glycomics/glycoprep/pkg/reader/xlsx"
	"github.com/glycomics/glycoprep/pkg/writer/sqlite"
	"github.com/glycomics/glycoprep/pkg/writer/tsv"
)

// TotalSteps is the number of pipeline steps reported through Events.
const TotalSteps = 7

// Event describes pipeline progress. Status is "running" when a step
// starts and "done" when it completes, with Detail summarizing the
// outcome.
type Event struct {
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
	Label      string `json:"label"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
}

// EmitFunc receives progress events. It may be nil.
type EmitFunc func(Event)

// Options configure one pipeline run.
type Options struct {
	PeaksPath     string
	MetadataPath  string
	ReferencePath string

	OutputPath    string // matched TSV; empty skips writing
	UnmatchedPath string // unmatched TSV; empty skips writing
	SQLitePath    string // optional SQLite export

	PPMThreshold  float64
	SkipRows      int
	MinSN         *float64
	MetadataSheet string
	Workers       int
}

// SampleMatchCount summarizes match coverage for one sample.
type SampleMatchCount struct {
	Sample     string  `json:"sample"`
	TotalPeaks int     `json:"total_peaks"`
	Matched    int     `json:"matched"`
	MatchRate  float64 `json:"match_rate"`
}

// Result carries everything a front-end needs to present a finished run.
type Result struct {
	Matched   core.Table
	Unmatched core.Table
	Shifts    []calib.ShiftEstimate
	Stats     match.Stats
	PerSample []SampleMatchCount
	Downloads []string // file names written under the output directory
	Warnings  []string
}

// Run executes all steps. The context is checked between steps; the
// individual stages have no cancellation of their own.
func Run(ctx context.Context, opt Options, emit EmitFunc) (*Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	step := func(n int, label string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(Event{Step: n, TotalSteps: TotalSteps, Label: label, Status: "running"})
		return nil
	}
	done := func(n int, label, detail string) {
		emit(Event{Step: n, TotalSteps: TotalSteps, Label: label, Status: "done", Detail: detail})
	}

	res := &Result{}

	// Step 1: peaks workbook.
	const readPeaks = "Reading peaks file"
	if err := step(1, readPeaks); err != nil {
		return nil, err
	}
	sheets, err := xlsx.ReadPeaks(opt.PeaksPath, opt.SkipRows)
	if err != nil {
		return nil, fmt.Errorf("reading peaks: %w", err)
	}
	nPeaks := 0
	for _, s := range sheets {
		nPeaks += s.Table.Len()
	}
	done(1, readPeaks, fmt.Sprintf("%d sheets, %d peaks", len(sheets), nPeaks))

	// Step 2: metadata.
	const readMeta = "Reading metadata"
	if err := step(2, readMeta); err != nil {
		return nil, err
	}
	metadata, err := xlsx.ReadMetadata(opt.MetadataPath, opt.MetadataSheet)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	done(2, readMeta, fmt.Sprintf("%d rows", metadata.Len()))

	// Step 3: join.
	const joinMeta = "Joining metadata"
	if err := step(3, joinMeta); err != nil {
		return nil, err
	}
	combined, unmatchedSheets := xlsx.JoinMetadata(sheets, metadata)
	for _, name := range unmatchedSheets {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no metadata found for sheet %q", name))
	}
	done(3, joinMeta, fmt.Sprintf("%d combined peaks", combined.Len()))

	// Step 4: S/N filter.
	const snFilter = "Applying S/N filter"
	if err := step(4, snFilter); err != nil {
		return nil, err
	}
	cfg := filter.Config{MinSN: opt.MinSN}
	fres := cfg.Apply(combined)
	combined = fres.Table
	detail := "No filter applied"
	if fres.Applied && fres.After < fres.Before {
		detail = fmt.Sprintf("%d -> %d peaks", fres.Before, fres.After)
	}
	if !fres.Applied && opt.MinSN != nil {
		res.Warnings = append(res.Warnings, "no S/N column found, skipping S/N filter")
	}
	done(4, snFilter, detail)

	// Step 5: matching.
	const matching = "Matching peaks to glycans"
	if err := step(5, matching); err != nil {
		return nil, err
	}
	reference, err := xlsx.ReadReference(opt.ReferencePath)
	if err != nil {
		return nil, fmt.Errorf("reading reference database: %w", err)
	}
	matched, unmatched, stats, err := match.Peaks(combined, reference, match.Options{
		PPMThreshold: opt.PPMThreshold,
		Workers:      opt.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("matching peaks: %w", err)
	}
	res.Matched, res.Unmatched, res.Stats = matched, unmatched, stats
	res.PerSample = perSampleCounts(combined, matched)
	done(5, matching, fmt.Sprintf("%.1f%% match rate (%d/%d)",
		stats.MatchRate*100, stats.MatchedPeaks, stats.TotalPeaks))

	// Step 6: calibration.
	const calibration = "Calibration shift correction"
	if err := step(6, calibration); err != nil {
		return nil, err
	}
	copt := calib.Options{PPMThreshold: opt.PPMThreshold}
	shifts, err := calib.EstimateShifts(res.Matched, copt)
	if err != nil {
		return nil, fmt.Errorf("estimating shifts: %w", err)
	}
	if err := calib.Correct(&res.Matched, shifts, copt); err != nil {
		return nil, fmt.Errorf("applying shift correction: %w", err)
	}
	res.Shifts = shifts
	done(6, calibration, fmt.Sprintf("%d sample shifts estimated", len(shifts)))

	// Step 7: outputs.
	const writing = "Writing output files"
	if err := step(7, writing); err != nil {
		return nil, err
	}
	written := 0
	if opt.OutputPath != "" {
		n, err := tsv.WriteFile(opt.OutputPath, res.Matched)
		if err != nil {
			return nil, err
		}
		written = n
		res.Downloads = append(res.Downloads, filepath.Base(opt.OutputPath))
	}
	if opt.UnmatchedPath != "" && res.Unmatched.Len() > 0 {
		if _, err := tsv.WriteFile(opt.UnmatchedPath, res.Unmatched); err != nil {
			return nil, err
		}
		res.Downloads = append(res.Downloads, filepath.Base(opt.UnmatchedPath))
	}
	if opt.SQLitePath != "" {
		if err := writeSQLite(opt.SQLitePath, res); err != nil {
			return nil, err
		}
		res.Downloads = append(res.Downloads, filepath.Base(opt.SQLitePath))
	}
	done(7, writing, fmt.Sprintf("%d matched rows written", written))

	return res, nil
}

func writeSQLite(path string, res *Result) error {
	w, err := sqlite.NewWriter(path)
	if err != nil {
		return err
	}
	defer w.Close()
	if _, err := w.WriteMatches(res.Matched); err != nil {
		return err
	}
	return w.WriteShifts(res.Shifts)
}

// perSampleCounts computes per-sample coverage: total peaks from the
// combined input, matched peaks as distinct observed m/z values per sample
// in the matched output.
func perSampleCounts(combined, matched core.Table) []SampleMatchCount {
	if !combined.HasColumn(xlsx.ColSampleSheet) {
		return nil
	}
	totals := make(map[string]int)
	var order []string
	for _, row := range combined.Rows {
		s := row.Text(xlsx.ColSampleSheet)
		if _, seen := totals[s]; !seen {
			order = append(order, s)
		}
		totals[s]++
	}
	matchedMz := make(map[string]map[float64]bool)
	for _, row := range matched.Rows {
		s := row.Text(xlsx.ColSampleSheet)
		mz, defined := row.Float(match.ColObservedMz)
		if !defined {
			continue
		}
		if matchedMz[s] == nil {
			matchedMz[s] = make(map[float64]bool)
		}
		matchedMz[s][mz] = true
	}

	counts := make([]SampleMatchCount, 0, len(order))
	for _, s := range order {
		total := totals[s]
		m := len(matchedMz[s])
		rate := 0.0
		if total > 0 {
			rate = float64(m) / float64(total)
		}
		counts = append(counts, SampleMatchCount{Sample: s, TotalPeaks: total, Matched: m, MatchRate: rate})
	}
	return counts
}
