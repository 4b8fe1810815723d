// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package match pairs observed peaks with reference entries whose masses
// agree within a PPM tolerance.
//
// Every accepted (peak, reference) pair becomes its own output row; a peak
// near two reference masses legitimately yields two rows and no best-match
// selection is performed. Ambiguity resolution belongs to downstream
// consumers.
package match

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/glycomics/glycoprep/pkg/core"
)

// Column names added to matched rows.
const (
	ColObservedMz = "observed_mz"
	ColPPM        = "ppm_difference"
	ColConfidence = "confidence"
)

// Relative slack applied to the binary-search window bounds so that pairs
// lying exactly on the tolerance boundary are never lost to floating point
// rounding. The exact |ppm| <= threshold test decides acceptance.
const windowGuard = 1e-9

var ErrThreshold = errors.New("ppm threshold must be positive")

// Options control a matching run. The zero value is not usable: a positive
// PPMThreshold is required.
type Options struct {
	PPMThreshold float64 // tolerance in PPM, required
	MzColumn     string  // observed m/z column in the peaks table, default "m_z"
	MassColumn   string  // theoretical mass column in the reference table, default: case-insensitive "mass"
	Workers      int     // parallel workers; <= 1 runs serially
	// Progress, if set, is called after each peak is processed. With
	// Workers > 1 it may be called from multiple goroutines. It has no
	// effect on results.
	Progress func(done, total int)
}

// Stats summarizes a matching run.
type Stats struct {
	TotalPeaks        int     // rows in the input peaks table (including skipped)
	MatchedPeaks      int     // peaks with at least one accepted pair
	UnmatchedPeaks    int     // peaks with a defined mass and zero accepted pairs
	SkippedPeaks      int     // peaks without a defined mass
	MatchRows         int     // total accepted pairs
	MatchRate         float64 // MatchedPeaks / TotalPeaks
	AvgMatchesPerPeak float64 // MatchRows / MatchedPeaks
}

// PPMDifference returns the signed relative mass error in parts per million.
// Positive means the observed mass is heavier than the theoretical one.
func PPMDifference(observed, theoretical float64) float64 {
	return (observed - theoretical) / theoretical * 1e6
}

// Confidence maps a PPM error to [0,1]: 1 at zero error, linearly decaying
// to 0 at the threshold boundary, clamped at 0 beyond it.
func Confidence(ppmDiff, threshold float64) float64 {
	return math.Max(0, 1-math.Abs(ppmDiff)/threshold)
}

// refEntry is one usable reference row, indexed for window search.
type refEntry struct {
	mass float64
	idx  int // row index in the reference table
}

// Peaks matches every peak against every reference entry within the PPM
// tolerance and partitions the peaks table into matched and unmatched
// outputs.
//
// Matched rows carry all peak cells, the parsed observed m/z, all reference
// cells (reference cells win on column collisions), the signed PPM
// difference, and the confidence score. Unmatched rows are the original
// peak rows, untouched. Peaks without a defined m/z appear in neither
// output.
//
// Output ordering is deterministic: peak-major in input order, reference
// order within a peak.
func Peaks(peaks, ref core.Table, opt Options) (matched, unmatched core.Table, stats Stats, err error) {
	if !(opt.PPMThreshold > 0) {
		return matched, unmatched, stats, ErrThreshold
	}
	mzCol := opt.MzColumn
	if mzCol == "" {
		mzCol = "m_z"
	}
	if !peaks.HasColumn(mzCol) {
		return matched, unmatched, stats, &core.SchemaError{Table: "peaks", Column: mzCol}
	}
	massCol, ok := massColumn(ref, opt.MassColumn)
	if !ok {
		want := opt.MassColumn
		if want == "" {
			want = "mass"
		}
		return matched, unmatched, stats, &core.SchemaError{Table: "reference", Column: want}
	}

	// Scan the whole reference table before emitting anything so that a
	// zero mass fails the run with no partial output.
	index := make([]refEntry, 0, ref.Len())
	for i, r := range ref.Rows {
		m, defined := r.Float(massCol)
		if !defined {
			// A reference row without a numeric mass can never match;
			// mirror the matcher's leniency for undefined peak masses.
			continue
		}
		if m == 0 {
			return matched, unmatched, stats, &core.DivisionDomainError{Row: i, Column: massCol}
		}
		index = append(index, refEntry{mass: m, idx: i})
	}
	sort.Slice(index, func(i, j int) bool { return index[i].mass < index[j].mass })

	matched = core.NewTable(peaks.Columns...)
	matched.EnsureColumns(ColObservedMz)
	matched.EnsureColumns(ref.Columns...)
	matched.EnsureColumns(ColPPM, ColConfidence)
	unmatched = core.NewTable(peaks.Columns...)

	workers := opt.Workers
	if workers > len(peaks.Rows) {
		workers = len(peaks.Rows)
	}
	var parts []chunkResult
	if workers <= 1 {
		parts = []chunkResult{matchChunk(peaks.Rows, ref, index, mzCol, massCol, opt, newCounter(len(peaks.Rows), opt.Progress))}
	} else {
		parts = matchParallel(peaks.Rows, ref, index, mzCol, massCol, opt, workers)
	}

	for _, p := range parts {
		matched.Rows = append(matched.Rows, p.matched...)
		unmatched.Rows = append(unmatched.Rows, p.unmatched...)
		stats.MatchedPeaks += p.matchedPeaks
		stats.SkippedPeaks += p.skipped
	}
	stats.TotalPeaks = peaks.Len()
	stats.UnmatchedPeaks = unmatched.Len()
	stats.MatchRows = matched.Len()
	if stats.TotalPeaks > 0 {
		stats.MatchRate = float64(stats.MatchedPeaks) / float64(stats.TotalPeaks)
	}
	if stats.MatchedPeaks > 0 {
		stats.AvgMatchesPerPeak = float64(stats.MatchRows) / float64(stats.MatchedPeaks)
	}
	return matched, unmatched, stats, nil
}

type chunkResult struct {
	matched      []core.Row
	unmatched    []core.Row
	matchedPeaks int
	skipped      int
}

// counter funnels per-peak progress from one or more workers into the
// user's callback.
type counter struct {
	done     atomic.Int64
	total    int
	progress func(done, total int)
}

func newCounter(total int, progress func(done, total int)) *counter {
	return &counter{total: total, progress: progress}
}

func (c *counter) tick() {
	n := c.done.Add(1)
	if c.progress != nil {
		c.progress(int(n), c.total)
	}
}

// matchChunk runs the per-peak candidate search over a contiguous slice of
// peak rows. Each peak is independent, so chunks can run concurrently and
// be concatenated afterwards without changing the output.
func matchChunk(rows []core.Row, ref core.Table, index []refEntry, mzCol, massCol string, opt Options, prog *counter) chunkResult {
	var res chunkResult
	for _, row := range rows {
		mz, defined := row.Float(mzCol)
		if !defined {
			// Not a real measurement; neither matched nor unmatched.
			res.skipped++
			prog.tick()
			continue
		}
		hits := candidates(mz, index, opt.PPMThreshold)
		if len(hits) == 0 {
			res.unmatched = append(res.unmatched, row)
			prog.tick()
			continue
		}
		res.matchedPeaks++
		for _, refIdx := range hits {
			refRow := ref.Rows[refIdx]
			m, _ := refRow.Float(massCol)
			ppm := PPMDifference(mz, m)

			combined := row.Clone()
			combined[ColObservedMz] = mz
			for _, col := range ref.Columns {
				if v, present := refRow[col]; present {
					combined[col] = v
				}
			}
			combined[ColPPM] = ppm
			combined[ColConfidence] = Confidence(ppm, opt.PPMThreshold)
			res.matched = append(res.matched, combined)
		}
		prog.tick()
	}
	return res
}

func matchParallel(rows []core.Row, ref core.Table, index []refEntry, mzCol, massCol string, opt Options, workers int) []chunkResult {
	parts := make([]chunkResult, workers)
	prog := newCounter(len(rows), opt.Progress)
	var g errgroup.Group
	chunk := (len(rows) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(rows) {
			hi = len(rows)
		}
		if lo >= hi {
			break
		}
		w := w
		sub := rows[lo:hi]
		g.Go(func() error {
			parts[w] = matchChunk(sub, ref, index, mzCol, massCol, opt, prog)
			return nil
		})
	}
	// Workers cannot fail; the reference table was validated up front.
	_ = g.Wait()
	return parts
}

// candidates returns the reference row indices whose mass lies within the
// PPM tolerance of mz, in original reference-table order.
//
// The index is sorted by mass, so the candidate region is located with two
// binary searches over the inverted tolerance bounds
// (|ppm| <= t  <=>  mass in [mz/(1+t/1e6), mz/(1-t/1e6)]) and each
// candidate is confirmed with the exact test. This is an optimization over
// the all-pairs scan and accepts exactly the same set.
func candidates(mz float64, index []refEntry, threshold float64) []int {
	tol := threshold / 1e6
	lo := mz / (1 + tol) * (1 - windowGuard)
	hi := math.Inf(1)
	if tol < 1 {
		hi = mz / (1 - tol) * (1 + windowGuard)
	}
	i1 := sort.Search(len(index), func(i int) bool { return index[i].mass >= lo })
	i2 := sort.Search(len(index), func(i int) bool { return index[i].mass > hi })

	var hits []int
	for i := i1; i < i2; i++ {
		if math.Abs(PPMDifference(mz, index[i].mass)) <= threshold {
			hits = append(hits, index[i].idx)
		}
	}
	sort.Ints(hits)
	return hits
}

// massColumn resolves the reference mass column: an explicit name must
// exist verbatim; otherwise any column spelled "mass" case-insensitively
// is used.
func massColumn(ref core.Table, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, ref.HasColumn(explicit)
	}
	for _, c := range ref.Columns {
		if strings.EqualFold(c, "mass") {
			return c, true
		}
	}
	return "", false
}
