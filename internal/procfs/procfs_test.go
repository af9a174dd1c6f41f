// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procfs

import (
	"os"
	"testing"
)

func TestParseCPUList(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"", nil},
		{"0", []int{0}},
		{"0-3", []int{0, 1, 2, 3}},
		{"0-3,5,7-8", []int{0, 1, 2, 3, 5, 7, 8}},
	}
	for _, c := range cases {
		got, err := parseCPUList(c.in)
		if err != nil {
			t.Fatalf("parseCPUList(%q) error: %v", c.in, err)
		}
		if !intSliceEqual(got, c.want) {
			t.Errorf("parseCPUList(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseCPUListRejectsGarbage(t *testing.T) {
	if _, err := parseCPUList("not-a-cpu-list"); err == nil {
		t.Fatal("expected error for unparseable cpu list")
	}
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIsThreadAliveForSelf(t *testing.T) {
	if !IsThreadAlive(os.Getpid()) {
		t.Fatal("IsThreadAlive(os.Getpid()) = false, want true")
	}
	if IsThreadAlive(1 << 30) {
		t.Fatal("IsThreadAlive(huge bogus pid) = true, want false")
	}
}
