// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Special pid values for CounterFile.Open.
const (
	// CallingThread configures the event to measure the calling thread.
	CallingThread = 0

	// AllThreads configures the event to measure all threads on the
	// specified CPU.
	AllThreads = -1
)

// AnyCPU configures the specified process/thread to be measured on any CPU.
const AnyCPU = -1

// EventAttr is the bit-exact kernel counter descriptor described in the
// perf_event_open(2) man page. It must round-trip across open and read:
// every EventAttr opened within one SelectionSet ends up with an identical
// SampleFormat, via SelectionSet's sample type union (see unionSampleType).
type EventAttr struct {
	// Type is the major class of the event: hardware, software,
	// tracepoint, hardware-cache, raw, PMU-dynamic, or breakpoint.
	Type EventType

	// Config is the type-specific event configuration.
	Config uint64

	// Sample configures the sample period or sample frequency for
	// overflow packets, based on Options.Freq: if Options.Freq is set,
	// Sample is interpreted as "sample frequency", otherwise it is
	// interpreted as "sample period".
	Sample uint64

	// SampleFormat configures the payload bitmask for overflow packets
	// read from the ring buffer associated with the event.
	SampleFormat SampleFormat

	// CountFormat specifies the read-format bitmask used when reading
	// counts via CounterFile.ReadCounter.
	CountFormat CountFormat

	// Options contains the remaining low-level event flags: inherit,
	// disabled, enable-on-exec, exclude-user/kernel/hv/host/guest,
	// mmap/mmap2/comm/context-switch toggles, precise-ip, and friends.
	Options Options

	// Wakeup configures event wakeup. If Options.Watermark is set,
	// Wakeup is interpreted as the number of bytes before wakeup.
	// Otherwise, it is interpreted as "wake up every n events".
	Wakeup uint32

	// BreakpointType is the breakpoint type, if Type == BreakpointEvent.
	BreakpointType uint32

	// Config1 extends Config; for kprobes, the kprobe function, for
	// breakpoints, the breakpoint address.
	Config1 uint64

	// Config2 further extends Config1; for breakpoints, the breakpoint
	// length, for probes, the probe offset.
	Config2 uint64

	// BranchSampleType specifies what branches to include in the branch
	// record, if SampleFormat.BranchStack is set.
	BranchSampleType BranchSampleFormat

	// SampleRegsUser is the set of user registers to dump on samples.
	SampleRegsUser uint64

	// SampleStackUser is the size of the user stack to dump on samples.
	SampleStackUser uint32

	// ClockID is the clock ID to use for sample timestamps, if
	// Options.UseClockID is set.
	ClockID int32

	// SampleRegsIntr is the set of registers to dump for each sample.
	SampleRegsIntr uint64

	// AuxWatermark is the watermark for the AUX area (ETM/trace events).
	AuxWatermark uint32

	// SampleMaxStack bounds the number of frame pointers in a call chain.
	SampleMaxStack uint16
}

// sysAttr converts attr into the kernel-facing unix.PerfEventAttr.
func (a *EventAttr) sysAttr() *unix.PerfEventAttr {
	return &unix.PerfEventAttr{
		Type:               uint32(a.Type),
		Size:               uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config:             a.Config,
		Sample:             a.Sample,
		Sample_type:        a.SampleFormat.marshal(),
		Read_format:        a.CountFormat.marshal(),
		Bits:               a.Options.marshal(),
		Wakeup:             a.Wakeup,
		Bp_type:            a.BreakpointType,
		Ext1:               a.Config1,
		Ext2:               a.Config2,
		Branch_sample_type: a.BranchSampleType.marshal(),
		Sample_regs_user:   a.SampleRegsUser,
		Sample_stack_user:  a.SampleStackUser,
		Clockid:            a.ClockID,
		Sample_regs_intr:   a.SampleRegsIntr,
		Aux_watermark:      a.AuxWatermark,
		Sample_max_stack:   a.SampleMaxStack,
	}
}

// SetSamplePeriod configures the sampling period for the event.
func (a *EventAttr) SetSamplePeriod(p uint64) {
	a.Sample = p
	a.Options.Freq = false
}

// SetSampleFreq configures the sampling frequency for the event.
func (a *EventAttr) SetSampleFreq(f uint64) {
	a.Sample = f
	a.Options.Freq = true
}

// EventType is the overall type of a performance event.
type EventType uint32

// Supported event types.
const (
	HardwareEvent      EventType = unix.PERF_TYPE_HARDWARE
	SoftwareEvent      EventType = unix.PERF_TYPE_SOFTWARE
	TracepointEvent    EventType = unix.PERF_TYPE_TRACEPOINT
	HardwareCacheEvent EventType = unix.PERF_TYPE_HW_CACHE
	RawEvent           EventType = unix.PERF_TYPE_RAW
	BreakpointEvent    EventType = unix.PERF_TYPE_BREAKPOINT
)

// SampleFormat configures information requested in overflow packets.
// This is the per-set union described in spec.md §3: within a SelectionSet,
// every EventAttr ends up with an identical SampleFormat, so record parsing
// is uniform across every event in the set.
type SampleFormat struct {
	IP              bool
	Tid             bool
	Time            bool
	Addr            bool
	Count           bool
	Callchain       bool
	ID              bool
	CPU             bool
	Period          bool
	StreamID        bool
	Raw             bool
	BranchStack     bool
	UserRegisters   bool
	UserStack       bool
	Weight          bool
	DataSource      bool
	Identifier      bool
	Transaction     bool
	IntrRegisters   bool
	PhysicalAddress bool
}

func (sf SampleFormat) marshal() uint64 {
	return marshalBitwiseUint64([]bool{
		sf.IP, sf.Tid, sf.Time, sf.Addr, sf.Count, sf.Callchain, sf.ID, sf.CPU,
		sf.Period, sf.StreamID, sf.Raw, sf.BranchStack, sf.UserRegisters,
		sf.UserStack, sf.Weight, sf.DataSource, sf.Identifier, sf.Transaction,
		sf.IntrRegisters, sf.PhysicalAddress,
	})
}

func (sf *SampleFormat) union(other SampleFormat) {
	sf.IP = sf.IP || other.IP
	sf.Tid = sf.Tid || other.Tid
	sf.Time = sf.Time || other.Time
	sf.Addr = sf.Addr || other.Addr
	sf.Count = sf.Count || other.Count
	sf.Callchain = sf.Callchain || other.Callchain
	sf.ID = sf.ID || other.ID
	sf.CPU = sf.CPU || other.CPU
	sf.Period = sf.Period || other.Period
	sf.StreamID = sf.StreamID || other.StreamID
	sf.Raw = sf.Raw || other.Raw
	sf.BranchStack = sf.BranchStack || other.BranchStack
	sf.UserRegisters = sf.UserRegisters || other.UserRegisters
	sf.UserStack = sf.UserStack || other.UserStack
	sf.Weight = sf.Weight || other.Weight
	sf.DataSource = sf.DataSource || other.DataSource
	sf.Identifier = sf.Identifier || other.Identifier
	sf.Transaction = sf.Transaction || other.Transaction
	sf.IntrRegisters = sf.IntrRegisters || other.IntrRegisters
	sf.PhysicalAddress = sf.PhysicalAddress || other.PhysicalAddress
}

// CountFormat configures the read-format bitmask for CounterFile.ReadCounter.
type CountFormat struct {
	TotalTimeEnabled bool
	TotalTimeRunning bool
	ID               bool
	Group            bool
}

func (f CountFormat) marshal() uint64 {
	return marshalBitwiseUint64([]bool{
		f.TotalTimeEnabled, f.TotalTimeRunning, f.ID, f.Group,
	})
}

func (f CountFormat) readSize() int {
	size := 8
	if f.TotalTimeEnabled {
		size += 8
	}
	if f.TotalTimeRunning {
		size += 8
	}
	if f.ID {
		size += 8
	}
	return size
}

func (f CountFormat) groupReadHeaderSize() int {
	size := 8
	if f.TotalTimeEnabled {
		size += 8
	}
	if f.TotalTimeRunning {
		size += 8
	}
	return size
}

func (f CountFormat) groupReadCountSize() int {
	size := 8
	if f.ID {
		size += 8
	}
	return size
}

// Skid is the precise-ip constraint on how many instructions may separate
// the event of interest from the kernel being able to stop and record it.
type Skid uint8

const (
	SkidArbitrary    Skid = 0
	SkidConstant     Skid = 1
	SkidRequestZero  Skid = 2
	SkidZero         Skid = 3
)

// Options contains low level event options, matching perf_event_attr's
// bitfield region.
type Options struct {
	Disabled               bool
	Inherit                bool
	Pinned                 bool
	Exclusive              bool
	ExcludeUser            bool
	ExcludeKernel          bool
	ExcludeHypervisor      bool
	ExcludeIdle            bool
	Mmap                   bool
	Comm                   bool
	Freq                   bool
	InheritStat            bool
	EnableOnExec           bool
	Task                   bool
	Watermark              bool
	PreciseIP              Skid
	MmapData               bool
	SampleIDAll            bool
	ExcludeHost            bool
	ExcludeGuest           bool
	ExcludeKernelCallchain bool
	ExcludeUserCallchain   bool
	Mmap2                  bool
	CommExec               bool
	UseClockID             bool
	ContextSwitch          bool
	Namespaces             bool
}

func (opt Options) marshal() uint64 {
	skidLo := opt.PreciseIP&1 != 0
	skidHi := opt.PreciseIP&2 != 0
	return marshalBitwiseUint64([]bool{
		opt.Disabled, opt.Inherit, opt.Pinned, opt.Exclusive,
		opt.ExcludeUser, opt.ExcludeKernel, opt.ExcludeHypervisor, opt.ExcludeIdle,
		opt.Mmap, opt.Comm, opt.Freq, opt.InheritStat,
		opt.EnableOnExec, opt.Task, opt.Watermark, skidLo, skidHi,
		opt.MmapData, opt.SampleIDAll, opt.ExcludeHost, opt.ExcludeGuest,
		opt.ExcludeKernelCallchain, opt.ExcludeUserCallchain, opt.Mmap2,
		opt.CommExec, opt.UseClockID, opt.ContextSwitch, false, opt.Namespaces,
	})
}

// BranchSampleFormat specifies what branches to include in a branch record.
type BranchSampleFormat uint64

func (b BranchSampleFormat) marshal() uint64 { return uint64(b) }

// Known branch sample bits (PERF_SAMPLE_BRANCH_*).
const (
	BranchUser       BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_USER
	BranchKernel     BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_KERNEL
	BranchHV         BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_HV
	BranchAny        BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_ANY
	BranchAnyCall    BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_ANY_CALL
	BranchAnyReturn  BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_ANY_RETURN
	BranchIndCall    BranchSampleFormat = unix.PERF_SAMPLE_BRANCH_IND_CALL
)
