// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import "testing"

func TestReaderThreadDrainDeliversInOrder(t *testing.T) {
	rt := newReaderThread(8)
	defer rt.stop()

	sel := &EventSelection{Name: "cpu-cycles"}
	rt.push(queuedRecord{rec: &CommRecord{Pid: 1}, sel: sel})
	rt.push(queuedRecord{rec: &CommRecord{Pid: 2}, sel: sel})

	var got []uint32
	rt.drain(func(rec Record, _ *EventSelection) {
		got = append(got, rec.(*CommRecord).Pid)
	})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("drained order = %v, want [1 2]", got)
	}
}

func TestReaderThreadDropsWhenQueueFull(t *testing.T) {
	rt := newReaderThread(1)
	defer rt.stop()

	sel := &EventSelection{Name: "cpu-cycles"}
	rt.push(queuedRecord{rec: &CommRecord{Pid: 1}, sel: sel})
	rt.push(queuedRecord{rec: &CommRecord{Pid: 2}, sel: sel}) // queue full, dropped

	lost := rt.LostRecords()
	if lost["cpu-cycles"] != 1 {
		t.Fatalf("LostRecords()[cpu-cycles] = %d, want 1", lost["cpu-cycles"])
	}

	var got []uint32
	rt.drain(func(rec Record, _ *EventSelection) {
		got = append(got, rec.(*CommRecord).Pid)
	})
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("drained = %v, want [1] (the second push was dropped)", got)
	}
}

func TestReaderThreadExcludesConfiguredPid(t *testing.T) {
	rt := newReaderThread(8)
	defer rt.stop()
	rt.SetExcludePerf(1234)

	if !rt.excludedByPid(&CommRecord{Pid: 1234}) {
		t.Fatal("expected record from the excluded pid to be filtered")
	}
	if rt.excludedByPid(&CommRecord{Pid: 5678}) {
		t.Fatal("expected record from a different pid to pass through")
	}
}

func TestReaderThreadExcludeDisabledByDefault(t *testing.T) {
	rt := newReaderThread(8)
	defer rt.stop()

	if rt.excludedByPid(&CommRecord{Pid: 1234}) {
		t.Fatal("expected no filtering before SetExcludePerf is called")
	}
}
