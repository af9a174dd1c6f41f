// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import "testing"

func TestAtomRemapNoopForNonRawEvent(t *testing.T) {
	attr := EventAttr{Type: HardwareEvent, Config: 0}
	want := attr
	atomRemap(&attr, 0)
	if attr != want {
		t.Fatalf("atomRemap must not touch a non-raw event: got %+v, want %+v", attr, want)
	}
}

func TestAtomRemapRawEventWithoutAtomPMU(t *testing.T) {
	// This repo's test host is not expected to expose a "cpu_atom" PMU, so
	// a raw event's type must survive unchanged.
	attr := EventAttr{Type: RawEvent, Config: 0x1a8}
	atomRemap(&attr, 0)
	if attr.Type != RawEvent {
		t.Fatalf("Type = %v, want unchanged RawEvent when no cpu_atom PMU exists", attr.Type)
	}
}
