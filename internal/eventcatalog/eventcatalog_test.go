// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eventcatalog

import (
	"reflect"
	"testing"
)

func TestLookupHardwareEvent(t *testing.T) {
	c := &staticCatalog{tracingRoot: "/nonexistent"}
	d, ok := c.Lookup("cpu-cycles")
	if !ok {
		t.Fatal("expected cpu-cycles to resolve")
	}
	if d.Type != typeHardware || d.Config != 0 {
		t.Fatalf("got %+v", d)
	}
}

func TestLookupHardwareEventAlias(t *testing.T) {
	c := &staticCatalog{tracingRoot: "/nonexistent"}
	cycles, _ := c.Lookup("cycles")
	canonical, _ := c.Lookup("cpu-cycles")
	if !reflect.DeepEqual(cycles, canonical) {
		t.Fatalf("alias %+v should resolve identically to canonical %+v", cycles, canonical)
	}
}

func TestLookupSoftwareEvent(t *testing.T) {
	c := &staticCatalog{tracingRoot: "/nonexistent"}
	d, ok := c.Lookup("task-clock")
	if !ok || d.Type != typeSoftware || d.Config != 1 {
		t.Fatalf("Lookup(task-clock) = %+v, %v", d, ok)
	}
}

func TestLookupCacheEventDefaultOp(t *testing.T) {
	c := &staticCatalog{tracingRoot: "/nonexistent"}
	d, ok := c.Lookup("l1d-misses")
	if !ok {
		t.Fatal("expected l1d-misses to resolve")
	}
	want := uint64(0) | (0 << 8) | (1 << 16) // l1d, load (default), misses
	if d.Config != want {
		t.Fatalf("Config = %#x, want %#x", d.Config, want)
	}
}

func TestLookupCacheEventExplicitOp(t *testing.T) {
	c := &staticCatalog{tracingRoot: "/nonexistent"}
	d, ok := c.Lookup("l1d-store-refs")
	if !ok {
		t.Fatal("expected l1d-store-refs to resolve")
	}
	want := uint64(0) | (1 << 8) | (0 << 16)
	if d.Config != want {
		t.Fatalf("Config = %#x, want %#x", d.Config, want)
	}
}

func TestLookupRawEvent(t *testing.T) {
	c := &staticCatalog{tracingRoot: "/nonexistent"}
	d, ok := c.Lookup("r1a8")
	if !ok || d.Type != typeRaw || d.Config != 0x1a8 {
		t.Fatalf("Lookup(r1a8) = %+v, %v", d, ok)
	}
}

func TestLookupUnknownEvent(t *testing.T) {
	c := &staticCatalog{tracingRoot: "/nonexistent"}
	if _, ok := c.Lookup("not-a-real-event"); ok {
		t.Fatal("expected unknown event to fail lookup")
	}
}

func TestUnknownWrapsName(t *testing.T) {
	err := Unknown("bogus-event")
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected a non-empty error message")
	}
}
