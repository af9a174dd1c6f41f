// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"testing"

	"github.com/simpleperf/coreperf"
)

func TestRecordKind(t *testing.T) {
	cases := []struct {
		rec  simpleperf.Record
		want string
	}{
		{&simpleperf.SampleRecord{}, "sample"},
		{&simpleperf.MmapRecord{}, "mmap"},
		{&simpleperf.Mmap2Record{}, "mmap"},
		{&simpleperf.CommRecord{}, "comm"},
		{&simpleperf.ForkRecord{}, "fork"},
		{&simpleperf.ExitRecord{}, "exit"},
		{&simpleperf.SwitchRecord{}, "switch"},
		{&simpleperf.LostRecord{}, "lost"},
		{&simpleperf.ThrottleRecord{}, "other"},
	}
	for _, c := range cases {
		if got := recordKind(c.rec); got != c.want {
			t.Errorf("recordKind(%T) = %q, want %q", c.rec, got, c.want)
		}
	}
}

func TestIsNormalStop(t *testing.T) {
	if !isNormalStop(nil) {
		t.Error("isNormalStop(nil) = false, want true")
	}
	if !isNormalStop(&simpleperf.TargetGone{}) {
		t.Error("isNormalStop(*TargetGone) = false, want true")
	}
	if !isNormalStop(&simpleperf.Cancelled{Reason: "signal"}) {
		t.Error("isNormalStop(*Cancelled) = false, want true")
	}
	if isNormalStop(errors.New("boom")) {
		t.Error("isNormalStop(generic error) = true, want false")
	}
}
