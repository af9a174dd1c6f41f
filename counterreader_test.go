// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func countersInfo(event, modifier string, value uint64) CountersInfo {
	return CountersInfo{
		Event:    event,
		Modifier: modifier,
		Readings: []CounterCellReading{
			{
				Count: Count{
					Value:       value,
					TimeEnabled: time.Second,
					TimeRunning: time.Second,
				},
			},
		},
	}
}

func TestSummarizeAutoGeneratedTotalFromUandK(t *testing.T) {
	infos := []CountersInfo{
		countersInfo("cache-misses", "u", 30),
		countersInfo("cache-misses", "k", 70),
	}
	summaries := NewSummariser().Summarize(infos, time.Second)

	var total *Summary
	for i := range summaries {
		if summaries[i].Modifier == "" {
			total = &summaries[i]
		}
	}
	if total == nil {
		t.Fatal("expected a synthesized empty-modifier total summary")
	}
	if !total.AutoGenerated {
		t.Fatal("synthesized total must be marked AutoGenerated")
	}
	if total.Value != 100 {
		t.Fatalf("total.Value = %v, want 100", total.Value)
	}
}

func TestSummarizeUserSuppliedTotalWinsOverSynthesis(t *testing.T) {
	infos := []CountersInfo{
		countersInfo("cache-misses", "u", 30),
		countersInfo("cache-misses", "k", 70),
		countersInfo("cache-misses", "", 999),
	}
	summaries := NewSummariser().Summarize(infos, time.Second)

	var totals int
	for _, s := range summaries {
		if s.Modifier == "" {
			totals++
			if s.AutoGenerated {
				t.Fatal("user-supplied total must not be overwritten by synthesis")
			}
			if s.Value != 999 {
				t.Fatalf("Value = %v, want 999", s.Value)
			}
		}
	}
	if totals != 1 {
		t.Fatalf("expected exactly one empty-modifier summary, got %d", totals)
	}
}

func TestAttachCommentsKnownRatio(t *testing.T) {
	infos := []CountersInfo{
		countersInfo("cache-misses", "", 25),
		countersInfo("cache-references", "", 100),
	}
	summaries := NewSummariser().Summarize(infos, time.Second)
	var got string
	for _, s := range summaries {
		if s.Event == "cache-misses" {
			got = s.Comment
		}
	}
	if !strings.Contains(got, "25.00%") || !strings.Contains(got, "miss rate") {
		t.Fatalf("comment = %q, want a 25%% miss rate", got)
	}
}

func TestAttachCommentsCyclesPerInstruction(t *testing.T) {
	infos := []CountersInfo{
		countersInfo("cpu-cycles", "", 200),
		countersInfo("instructions", "", 100),
	}
	summaries := NewSummariser().Summarize(infos, time.Second)
	var got string
	for _, s := range summaries {
		if s.Event == "instructions" {
			got = s.Comment
		}
	}
	if want := "2.000 cycles per instruction"; got != want {
		t.Fatalf("comment = %q, want %q", got, want)
	}
}

func TestAttachCommentsSuffixHeuristic(t *testing.T) {
	// "itlb-misses" has no knownRatios entry; the suffix heuristic pairs it
	// against "itlbs" (stem + "s").
	infos := []CountersInfo{
		countersInfo("itlb-misses", "", 4),
		countersInfo("itlbs", "", 200),
	}
	summaries := NewSummariser().Summarize(infos, time.Second)
	var got string
	for _, s := range summaries {
		if s.Event == "itlb-misses" {
			got = s.Comment
		}
	}
	if !strings.Contains(got, "2.00%") {
		t.Fatalf("comment = %q, want a 2%% miss rate via the suffix heuristic", got)
	}
}

func TestSummarizeMarksNotRunWhenCounterNeverScheduled(t *testing.T) {
	infos := []CountersInfo{
		{
			Event: "cpu-cycles",
			Readings: []CounterCellReading{
				{Count: Count{Value: 0, TimeEnabled: time.Second, TimeRunning: 0}},
			},
		},
	}
	summaries := NewSummariser().Summarize(infos, time.Second)
	if !summaries[0].NotRun {
		t.Fatal("expected NotRun=true for a counter with zero TimeRunning")
	}
}

func TestFormatRate(t *testing.T) {
	cases := []struct {
		v    float64
		want string
	}{
		{500, "500.000"},
		{1500, "1.500K"},
		{2_500_000, "2.500M"},
		{3_500_000_000, "3.500G"},
	}
	for _, c := range cases {
		if got := formatRate(c.v); got != c.want {
			t.Errorf("formatRate(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestDeltaComputesDifferenceFromPrevious(t *testing.T) {
	s := NewSummariser()
	sum := Summary{Event: "instructions"}
	got, err := s.Delta(sum, 100)
	if err != nil {
		t.Fatalf("first Delta() error = %v", err)
	}
	if got != 0 {
		t.Fatalf("first Delta() = %v, want 0 (no prior snapshot)", got)
	}
	got, err = s.Delta(sum, 150)
	if err != nil {
		t.Fatalf("second Delta() error = %v", err)
	}
	if got != 50 {
		t.Fatalf("second Delta() = %v, want 50", got)
	}
}

func TestDeltaRejectsCumulativeDecrease(t *testing.T) {
	s := NewSummariser()
	sum := Summary{Event: "instructions"}
	if _, err := s.Delta(sum, 100); err != nil {
		t.Fatalf("first Delta() error = %v", err)
	}
	_, err := s.Delta(sum, 50)
	if err == nil {
		t.Fatal("Delta() with a decreasing cumulative value: got nil error, want one")
	}
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Delta() error = %v (%T), want *RuntimeError", err, err)
	}
}

func TestAddAutoGeneratedTotalsSkipsMismatchedWindows(t *testing.T) {
	infos := []CountersInfo{
		{
			Event:    "cache-misses",
			Modifier: "u",
			Readings: []CounterCellReading{
				{Count: Count{Value: 30, TimeEnabled: 10 * time.Second, TimeRunning: 10 * time.Second}},
			},
		},
		{
			Event:    "cache-misses",
			Modifier: "k",
			Readings: []CounterCellReading{
				{Count: Count{Value: 70, TimeEnabled: time.Second, TimeRunning: time.Second}},
			},
		},
	}
	summaries := NewSummariser().Summarize(infos, time.Second)
	for _, s := range summaries {
		if s.Modifier == "" {
			t.Fatalf("expected no synthesized total for mismatched time_enabled windows, got %+v", s)
		}
	}
}

func TestWriteCSVFormatsRow(t *testing.T) {
	var buf strings.Builder
	summaries := []Summary{{Event: "cpu-cycles", Modifier: "u", Value: 42, Comment: "test"}}
	if err := WriteCSV(&buf, summaries); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if !strings.Contains(got, "42") || !strings.Contains(got, "cpu-cycles:u") || !strings.Contains(got, "test") {
		t.Fatalf("WriteCSV output = %q, missing expected fields", got)
	}
}
