// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package calib estimates and removes per-sample systematic mass
// calibration drift from a matched peak table.
//
// The shift estimate is the median of the signed PPM differences within a
// sample: matched rows contaminated by mismatches or near-ambiguous pairs
// act as outliers, and the median tolerates them where the mean does not.
// Mean and standard deviation are reported as diagnostics only.
package calib

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/glycomics/glycoprep/pkg/core"
	"github.com/glycomics/glycoprep/pkg/match"
)

// Column names added to matched rows by Correct.
const (
	ColShiftEstimate = "sample_shift_estimate"
	ColPPMCorrected  = "ppm_difference_corrected"
	ColConfCorrected = "confidence_corrected"
	defaultPPMColumn = match.ColPPM
	defaultSampleCol = "sample_sheet"
)

// Options control shift estimation and correction.
type Options struct {
	PPMColumn    string  // signed PPM column to estimate from, default "ppm_difference"
	SampleColumn string  // sample identifier column, default "sample_sheet"
	PPMThreshold float64 // tolerance used for matching; required by Correct
}

func (o Options) ppmColumn() string {
	if o.PPMColumn == "" {
		return defaultPPMColumn
	}
	return o.PPMColumn
}

func (o Options) sampleColumn() string {
	if o.SampleColumn == "" {
		return defaultSampleCol
	}
	return o.SampleColumn
}

// ShiftEstimate holds the calibration statistics for one sample.
type ShiftEstimate struct {
	Sample string
	Median float64 // shift point estimate, subtracted during correction
	Mean   float64 // diagnostic only
	Std    float64 // sample standard deviation; NaN when NPeaks < 2
	NPeaks int
}

// EstimateShifts computes one ShiftEstimate per distinct sample in the
// matched table, ordered by sample identifier. Samples with zero usable
// rows produce no estimate. An empty table yields an empty slice.
func EstimateShifts(matched core.Table, opt Options) ([]ShiftEstimate, error) {
	if matched.Len() == 0 {
		return nil, nil
	}
	sampleCol := opt.sampleColumn()
	ppmCol := opt.ppmColumn()
	if !matched.HasColumn(sampleCol) {
		return nil, &core.SchemaError{Table: "matched", Column: sampleCol}
	}
	if !matched.HasColumn(ppmCol) {
		return nil, &core.SchemaError{Table: "matched", Column: ppmCol}
	}

	groups := make(map[string][]float64)
	for _, row := range matched.Rows {
		ppm, defined := row.Float(ppmCol)
		if !defined {
			continue
		}
		sample := row.Text(sampleCol)
		groups[sample] = append(groups[sample], ppm)
	}

	samples := make([]string, 0, len(groups))
	for s := range groups {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	estimates := make([]ShiftEstimate, 0, len(samples))
	for _, s := range samples {
		vals := groups[s]
		estimates = append(estimates, ShiftEstimate{
			Sample: s,
			Median: median(vals),
			Mean:   stat.Mean(vals, nil),
			Std:    stat.StdDev(vals, nil),
			NPeaks: len(vals),
		})
	}
	return estimates, nil
}

// Correct subtracts each sample's estimated shift from the PPM differences
// and recomputes confidence against the same matching tolerance. Three
// columns are added to every row; existing cells are never modified or
// dropped. An empty table is a valid no-op.
//
// Correction is all-or-nothing: if any row's sample lacks an estimate, the
// table is left untouched and a MissingShiftError is returned.
func Correct(matched *core.Table, shifts []ShiftEstimate, opt Options) error {
	if matched.Len() == 0 {
		return nil
	}
	sampleCol := opt.sampleColumn()
	ppmCol := opt.ppmColumn()
	if !matched.HasColumn(sampleCol) {
		return &core.SchemaError{Table: "matched", Column: sampleCol}
	}
	if !matched.HasColumn(ppmCol) {
		return &core.SchemaError{Table: "matched", Column: ppmCol}
	}

	bySample := make(map[string]float64, len(shifts))
	for _, s := range shifts {
		bySample[s.Sample] = s.Median
	}
	// Validate every row before touching any of them.
	for _, row := range matched.Rows {
		sample := row.Text(sampleCol)
		if _, ok := bySample[sample]; !ok {
			return &core.MissingShiftError{Sample: sample}
		}
	}

	for _, row := range matched.Rows {
		shift := bySample[row.Text(sampleCol)]
		ppm, defined := row.Float(ppmCol)
		row[ColShiftEstimate] = shift
		if !defined {
			continue
		}
		corrected := ppm - shift
		row[ColPPMCorrected] = corrected
		row[ColConfCorrected] = match.Confidence(corrected, opt.PPMThreshold)
	}
	matched.EnsureColumns(ColShiftEstimate, ColPPMCorrected, ColConfCorrected)
	return nil
}

// Severity buckets an absolute shift median into the fixed assessment
// labels used by the shift report. The thresholds are business constants.
func Severity(shiftMedian float64) string {
	abs := math.Abs(shiftMedian)
	switch {
	case abs < 10:
		return "Excellent"
	case abs < 30:
		return "Good"
	case abs < 50:
		return "Moderate"
	}
	return "High"
}

// median returns the midpoint median (average of the two central values
// for even-length input). The input slice is not modified.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
