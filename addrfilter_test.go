// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import "testing"

func TestAddrFilterString(t *testing.T) {
	f := AddrFilter{Kind: AddrFilterRange, Start: 0x1000, Len: 0x20}
	if got, want := f.String(), "filter 0x1000/0x20"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	f.File = "libfoo.so"
	if got, want := f.String(), "filter 0x1000/0x20@libfoo.so"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestAddAddrFilterRequiresAUXTarget(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	if err := set.AddAddrFilter(AddrFilter{Kind: AddrFilterStart, Start: 1}); err == nil {
		t.Fatal("expected error: no aux trace event added yet")
	}
}

func TestAddAddrFilterAppendsToMostRecentAUXTarget(t *testing.T) {
	cat := fakeCatalog{
		"cs_etm/autofilter": {Type: 9, Config: 0, IsAUXTrace: true},
	}
	set := NewSelectionSet(cat)
	if _, err := set.AddEventGroup([]string{"cs_etm/autofilter"}, true); err != nil {
		t.Fatal(err)
	}
	if err := set.AddAddrFilter(AddrFilter{Kind: AddrFilterStart, Start: 0x400000}); err != nil {
		t.Fatal(err)
	}
	if err := set.AddAddrFilter(AddrFilter{Kind: AddrFilterStop, Start: 0x500000}); err != nil {
		t.Fatal(err)
	}
	got := addrFilterString(set.auxTarget)
	want := "start 0x400000/0x0,stop 0x500000/0x0"
	if got != want {
		t.Fatalf("addrFilterString() = %q, want %q", got, want)
	}
}
