// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import "testing"

func TestOpenReadCloseTaskClock(t *testing.T) {
	attr := &EventAttr{
		Type:        SoftwareEvent,
		Config:      1, // task-clock
		CountFormat: CountFormat{TotalTimeEnabled: true, TotalTimeRunning: true},
	}
	cf, err := Open(attr, CallingThread, AnyCPU, nil, NoGroup)
	if err != nil {
		t.Fatal(err)
	}
	defer cf.Close()

	if err := cf.Enable(); err != nil {
		t.Fatal(err)
	}
	count, err := cf.ReadCounter()
	if err != nil {
		t.Fatal(err)
	}
	if count.TimeEnabled == 0 {
		t.Fatal("expected a non-zero TimeEnabled after Enable")
	}
	if err := cf.Disable(); err != nil {
		t.Fatal(err)
	}
}

func TestGroupCountScaleMatchesUnscaledWhenFullyRunning(t *testing.T) {
	gc := GroupCount{
		TimeEnabled: 1000,
		TimeRunning: 1000,
		Values: []struct {
			Value uint64
			ID    uint64
		}{{Value: 42, ID: 1}},
	}
	values, ok := gc.Scale()
	if !ok {
		t.Fatal("Scale() ok = false, want true")
	}
	if len(values) != 1 || values[0] != 42 {
		t.Fatalf("Scale() = %v, want [42]", values)
	}
}
