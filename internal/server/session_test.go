// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

package server

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/glycomics/glycoprep/pkg/calib"
	"github.com/glycomics/glycoprep/pkg/core"
	"github.com/glycomics/glycoprep/pkg/match"
	"github.com/glycomics/glycoprep/pkg/pipeline"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	tr.Create("abc", "/tmp/abc")

	s, ok := tr.Get("abc")
	if !ok || s.Status != StatusRunning {
		t.Fatalf("Get after Create = %+v, %v", s, ok)
	}
	if tr.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", tr.ActiveCount())
	}

	tr.Complete("abc", &ResultPayload{SessionID: "abc"})
	s, _ = tr.Get("abc")
	if s.Status != StatusDone || s.Result == nil {
		t.Errorf("session after Complete = %+v", s)
	}
	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount after Complete = %d, want 0", tr.ActiveCount())
	}

	if _, ok := tr.Get("missing"); ok {
		t.Error("Get returned a session that was never created")
	}
}

func TestTrackerFail(t *testing.T) {
	tr := NewTracker()
	tr.Create("abc", "/tmp/abc")
	ch, _ := tr.Subscribe("abc")

	tr.Fail("abc", 5, "matching peaks: boom")

	s, _ := tr.Get("abc")
	if s.Status != StatusError || s.Error != "matching peaks: boom" {
		t.Errorf("session after Fail = %+v", s)
	}
	ev := <-ch
	if ev.Type != "error" || ev.Step != 5 || ev.Message != "matching peaks: boom" {
		t.Errorf("error event = %+v", ev)
	}
}

func TestTrackerPublishFanout(t *testing.T) {
	tr := NewTracker()
	tr.Create("abc", "/tmp/abc")
	ch1, _ := tr.Subscribe("abc")
	ch2, _ := tr.Subscribe("abc")

	tr.Publish("abc", StreamEvent{Type: "progress", Step: 1})
	for i, ch := range []chan StreamEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != "progress" || ev.Step != 1 {
				t.Errorf("subscriber %d got %+v", i, ev)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}

	tr.Unsubscribe("abc", ch1)
	tr.Publish("abc", StreamEvent{Type: "progress", Step: 2})
	select {
	case ev := <-ch1:
		t.Errorf("unsubscribed channel still received %+v", ev)
	default:
	}
	if ev := <-ch2; ev.Step != 2 {
		t.Errorf("remaining subscriber got %+v", ev)
	}
}

func TestSubscribeSeesTerminalTransition(t *testing.T) {
	tr := NewTracker()
	tr.Create("abc", "/tmp/abc")

	// A poller observes the session running, then the run finishes before
	// the poller registers its channel. The terminal event went to zero
	// subscribers, so the snapshot is the only way to learn the outcome.
	if s, _ := tr.Get("abc"); s.Status != StatusRunning {
		t.Fatalf("status before completion = %v", s.Status)
	}
	tr.Complete("abc", &ResultPayload{SessionID: "abc"})

	ch, snapshot := tr.Subscribe("abc")
	if snapshot.Status != StatusDone || snapshot.Result == nil {
		t.Errorf("snapshot = %+v, want done with a result", snapshot)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected buffered event %+v; the channel was registered after completion", ev)
	default:
	}

	// An unknown session yields a zero snapshot.
	_, snapshot = tr.Subscribe("ghost")
	if snapshot.ID != "" || snapshot.Status != "" {
		t.Errorf("snapshot for unknown session = %+v", snapshot)
	}
}

func TestTrackerRemove(t *testing.T) {
	tr := NewTracker()
	tr.Create("abc", "/tmp/abc")
	ch, _ := tr.Subscribe("abc")

	tr.Remove("abc")
	if _, ok := tr.Get("abc"); ok {
		t.Error("session still present after Remove")
	}
	tr.Publish("abc", StreamEvent{Type: "progress"})
	select {
	case ev := <-ch:
		t.Errorf("removed session still delivered %+v", ev)
	default:
	}
}

func TestTrackerSlowSubscriberDropsEvents(t *testing.T) {
	tr := NewTracker()
	tr.Create("abc", "/tmp/abc")
	ch, _ := tr.Subscribe("abc")

	// Publishing past the buffer must not block.
	for i := 0; i < 40; i++ {
		tr.Publish("abc", StreamEvent{Type: "progress", Step: i})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered events = %d, want a full buffer of %d", len(ch), cap(ch))
	}
}

func TestBuildPayload(t *testing.T) {
	matched := core.NewTable("sample_sheet", "Composition", calib.ColPPMCorrected, calib.ColConfCorrected)
	matched.Append(core.Row{
		"sample_sheet": "s1", "Composition": "H5N2",
		calib.ColPPMCorrected: 2.0, calib.ColConfCorrected: 0.98,
	})
	matched.Append(core.Row{
		"sample_sheet": "s1", "Composition": "H5N2",
		calib.ColPPMCorrected: -2.0, calib.ColConfCorrected: 0.98,
	})
	matched.Append(core.Row{
		"sample_sheet": "s1", "Composition": "H6N3",
		calib.ColPPMCorrected: 0.0, calib.ColConfCorrected: 1.0,
	})

	res := &pipeline.Result{
		Matched: matched,
		Stats:   match.Stats{TotalPeaks: 3, MatchedPeaks: 3, MatchRows: 3, MatchRate: 1},
		Shifts: []calib.ShiftEstimate{
			{Sample: "s1", Median: 12.0, Mean: 12.5, Std: math.NaN(), NPeaks: 1},
		},
		Downloads: []string{"matched_glycans.tsv"},
	}

	p := buildPayload("sess-1", res)
	if p.SessionID != "sess-1" {
		t.Errorf("session id = %q", p.SessionID)
	}
	if p.Stats.TotalMatchRows != 3 || p.Stats.MatchRate != 1 {
		t.Errorf("stats = %+v", p.Stats)
	}
	if len(p.Shifts) != 1 {
		t.Fatalf("shifts = %+v", p.Shifts)
	}
	// NaN diagnostics must not leak into the JSON payload.
	if p.Shifts[0].ShiftStd != 0 {
		t.Errorf("shift std = %v, want 0 in place of NaN", p.Shifts[0].ShiftStd)
	}
	if p.Shifts[0].Assessment != "Good" {
		t.Errorf("assessment = %q, want Good", p.Shifts[0].Assessment)
	}
	if len(p.PPMDistribution.Values) != 3 || len(p.ConfidenceDistribution.Values) != 3 {
		t.Errorf("distributions = %d/%d values, want 3/3",
			len(p.PPMDistribution.Values), len(p.ConfidenceDistribution.Values))
	}
	wantComps := []CompositionCountPayload{
		{Composition: "H5N2", Count: 2},
		{Composition: "H6N3", Count: 1},
	}
	if diff := cmp.Diff(wantComps, p.CompositionCounts); diff != "" {
		t.Errorf("composition counts mismatch (-want +got):\n%s", diff)
	}
}

func TestTopCounts(t *testing.T) {
	counts := map[string]int{"a": 1, "b": 3, "c": 3, "d": 2}
	got := topCounts(counts, 3)
	want := []CompositionCountPayload{
		{Composition: "b", Count: 3},
		{Composition: "c", Count: 3},
		{Composition: "d", Count: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("topCounts mismatch (-want +got):\n%s", diff)
	}
}
