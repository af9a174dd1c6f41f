// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import "testing"

// These probes open real perf_event_open file descriptors, so their boolean
// result depends on the kernel and privilege level running the test; what
// this test actually checks is that each probe is memoized and stable
// across repeated calls, not a particular true/false outcome.
func TestFeatureProbesAreMemoized(t *testing.T) {
	probes := []func() bool{
		IsBranchSamplingSupported,
		IsDwarfCallChainSamplingSupported,
		IsSettingClockIdSupported,
		IsMmap2Supported,
		IsSwitchRecordSupported,
	}
	for _, probe := range probes {
		first := probe()
		second := probe()
		if first != second {
			t.Fatalf("probe result changed across calls: %v then %v", first, second)
		}
	}
}

func TestIsHardwareEventSupportedCPUCycles(t *testing.T) {
	// cpu-cycles (config 0) is the one generic hardware event expected to
	// exist on effectively every target this repo runs on.
	t.Logf("cpu-cycles supported: %v", IsHardwareEventSupported(0))
}

func TestIsKernelEventSupportedRuns(t *testing.T) {
	t.Logf("kernel event counting supported: %v", IsKernelEventSupported())
}
