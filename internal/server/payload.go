// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

package server

import (
	"math"
	"sort"

	"github.com/glycomics/glycoprep/pkg/calib"
	"github.com/glycomics/glycoprep/pkg/pipeline"
)

const topCompositions = 20

// MatchStatsPayload mirrors match.Stats with wire-format field names.
type MatchStatsPayload struct {
	TotalPeaks        int     `json:"total_peaks"`
	MatchedPeaks      int     `json:"matched_peaks"`
	UnmatchedPeaks    int     `json:"unmatched_peaks"`
	TotalMatchRows    int     `json:"total_match_rows"`
	AvgMatchesPerPeak float64 `json:"avg_matches_per_peak"`
	MatchRate         float64 `json:"match_rate"`
}

// ShiftRowPayload is one sample's shift estimate with its assessment.
type ShiftRowPayload struct {
	Sample      string  `json:"sample"`
	ShiftMedian float64 `json:"shift_median"`
	ShiftMean   float64 `json:"shift_mean"`
	ShiftStd    float64 `json:"shift_std"`
	NPeaks      int     `json:"n_peaks"`
	Assessment  string  `json:"assessment"`
}

// HistogramPayload carries raw values; the front-end bins them.
type HistogramPayload struct {
	Values   []float64 `json:"values"`
	BinCount int       `json:"bin_count"`
}

// CompositionCountPayload is one reference composition with its match count.
type CompositionCountPayload struct {
	Composition string `json:"composition"`
	Count       int    `json:"count"`
}

// ResultPayload is the completed-run response body.
type ResultPayload struct {
	SessionID              string                      `json:"session_id"`
	Stats                  MatchStatsPayload           `json:"stats"`
	PerSample              []pipeline.SampleMatchCount `json:"per_sample"`
	Shifts                 []ShiftRowPayload           `json:"shifts"`
	PPMDistribution        HistogramPayload            `json:"ppm_distribution"`
	ConfidenceDistribution HistogramPayload            `json:"confidence_distribution"`
	CompositionCounts      []CompositionCountPayload   `json:"composition_counts"`
	Downloads              []string                    `json:"downloads"`
}

// buildPayload converts a pipeline result into the wire format. NaN
// diagnostics are rendered as 0 so the payload is valid JSON.
func buildPayload(sessionID string, res *pipeline.Result) *ResultPayload {
	p := &ResultPayload{
		SessionID: sessionID,
		Stats: MatchStatsPayload{
			TotalPeaks:        res.Stats.TotalPeaks,
			MatchedPeaks:      res.Stats.MatchedPeaks,
			UnmatchedPeaks:    res.Stats.UnmatchedPeaks,
			TotalMatchRows:    res.Stats.MatchRows,
			AvgMatchesPerPeak: res.Stats.AvgMatchesPerPeak,
			MatchRate:         res.Stats.MatchRate,
		},
		PerSample: res.PerSample,
		Downloads: res.Downloads,
	}

	for _, s := range res.Shifts {
		std := s.Std
		if math.IsNaN(std) {
			std = 0
		}
		p.Shifts = append(p.Shifts, ShiftRowPayload{
			Sample:      s.Sample,
			ShiftMedian: s.Median,
			ShiftMean:   s.Mean,
			ShiftStd:    std,
			NPeaks:      s.NPeaks,
			Assessment:  calib.Severity(s.Median),
		})
	}

	p.PPMDistribution = HistogramPayload{BinCount: 50}
	p.ConfidenceDistribution = HistogramPayload{BinCount: 50}
	comps := make(map[string]int)
	for _, row := range res.Matched.Rows {
		if v, ok := row.Float(calib.ColPPMCorrected); ok {
			p.PPMDistribution.Values = append(p.PPMDistribution.Values, v)
		}
		if v, ok := row.Float(calib.ColConfCorrected); ok {
			p.ConfidenceDistribution.Values = append(p.ConfidenceDistribution.Values, v)
		}
		if c := row.Text("Composition"); c != "" {
			comps[c]++
		}
	}
	p.CompositionCounts = topCounts(comps, topCompositions)
	return p
}

func topCounts(counts map[string]int, n int) []CompositionCountPayload {
	out := make([]CompositionCountPayload, 0, len(counts))
	for c, k := range counts {
		out = append(out, CompositionCountPayload{Composition: c, Count: k})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Composition < out[j].Composition
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
