// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"sync"

	"golang.org/x/sys/unix"
)

// featureProbe memoizes the result of opening one throwaway counter file,
// mirroring event_selection_set.cpp's static-int memoization of each
// IsXSupported() check: the kernel's answer to "is this attr combination
// legal" never changes for the lifetime of the process, so the expensive
// probe open only ever runs once per feature.
type featureProbe struct {
	once sync.Once
	ok   bool
}

func (p *featureProbe) check(attr EventAttr) bool {
	p.once.Do(func() {
		cf, err := Open(&attr, CallingThread, AnyCPU, nil, NoGroup)
		if err != nil {
			return
		}
		p.ok = true
		cf.Close()
	})
	return p.ok
}

var (
	branchSamplingProbe featureProbe
	dwarfCallChainProbe featureProbe
	settingClockIDProbe featureProbe
	mmap2Probe          featureProbe
	switchRecordProbe   featureProbe
)

func probeAttr() EventAttr {
	// task-clock always exists; every probe rides on it so a failure can
	// only be attributed to the feature flag under test, not to the base
	// event itself being unsupported.
	return EventAttr{Type: SoftwareEvent, Config: 1}
}

// IsBranchSamplingSupported reports whether the running kernel accepts
// sample_type PERF_SAMPLE_BRANCH_STACK. Lets SetBranchSampling fail with a
// clear CapabilityError instead of surfacing the kernel's bare EINVAL from
// SelectionSet.OpenEventFiles much later.
func IsBranchSamplingSupported() bool {
	attr := probeAttr()
	attr.SampleFormat.BranchStack = true
	attr.BranchSampleType = BranchAny
	return branchSamplingProbe.check(attr)
}

// IsDwarfCallChainSamplingSupported reports whether the running kernel
// accepts a user-stack dump alongside PERF_SAMPLE_CALLCHAIN.
func IsDwarfCallChainSamplingSupported() bool {
	attr := probeAttr()
	attr.SampleFormat.Callchain = true
	attr.SampleFormat.UserStack = true
	attr.SampleStackUser = 8192
	return dwarfCallChainProbe.check(attr)
}

// IsSettingClockIdSupported reports whether the running kernel accepts
// perf_event_attr::use_clockid, added in Linux 4.1.
func IsSettingClockIdSupported() bool {
	attr := probeAttr()
	attr.Options.UseClockID = true
	attr.ClockID = unix.CLOCK_MONOTONIC
	return settingClockIDProbe.check(attr)
}

// IsMmap2Supported reports whether the running kernel emits PERF_RECORD_MMAP2
// side-band records, added in Linux 3.16.
func IsMmap2Supported() bool {
	attr := probeAttr()
	attr.Options.Mmap2 = true
	return mmap2Probe.check(attr)
}

// IsSwitchRecordSupported reports whether the running kernel emits
// PERF_RECORD_SWITCH side-band records, added in Linux 4.3.
func IsSwitchRecordSupported() bool {
	attr := probeAttr()
	attr.Options.ContextSwitch = true
	return switchRecordProbe.check(attr)
}

// IsHardwareEventSupported reports whether a generic hardware event with the
// given config opens successfully on this cpu, the most direct way to
// discover a core has no pinned counter for it before a group is built
// around it.
func IsHardwareEventSupported(config uint64) bool {
	cf, err := Open(&EventAttr{Type: HardwareEvent, Config: config}, CallingThread, AnyCPU, nil, NoGroup)
	if err != nil {
		return false
	}
	cf.Close()
	return true
}

// IsKernelEventSupported reports whether kernel-space counting is permitted
// for the calling process, i.e. whether an attr with ExcludeUser=false,
// ExcludeKernel=false opens without EACCES. A restrictive
// perf_event_paranoid level is the common reason this is false for
// unprivileged callers.
func IsKernelEventSupported() bool {
	attr := probeAttr()
	cf, err := Open(&attr, CallingThread, AnyCPU, nil, NoGroup)
	if err != nil {
		return false
	}
	cf.Close()
	return true
}
