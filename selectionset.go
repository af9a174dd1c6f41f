// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/simpleperf/coreperf/internal/eventcatalog"
	"github.com/simpleperf/coreperf/internal/platform"
	"github.com/simpleperf/coreperf/internal/procfs"
)

// minOpenFiles is the rlimit RaiseFileLimit asks for before opening, sized
// for a handful of event groups across every online cpu and thread of a
// busy target; event_selection_set.cpp raises the same kind of headroom
// before MmapEventFds.
const minOpenFiles = 4096

// sentinelCounterPeriod is the sample period given to counter-only events
// added via AddCounters, chosen large enough that they never themselves
// overflow during any realistic run.
const sentinelCounterPeriod = ^uint64(0)

// CallChainMode selects what, if anything, SelectionSet records for call
// chains.
type CallChainMode int

const (
	CallChainNone CallChainMode = iota
	CallChainFramePointer
	CallChainDwarf
)

// SelectionSet owns an ordered list of EventGroups plus the global policies
// applied uniformly to every EventAttr in the set, and opens and closes the
// whole matrix of CounterFiles those groups and policies describe.
type SelectionSet struct {
	catalog eventcatalog.Catalog

	mu     sync.Mutex
	groups []*EventGroup
	names  map[string]bool

	inherit          bool
	clockIDSet       bool
	clockID          int32
	sampleRate       uint64
	sampleFreq       bool
	sampleRateSet    bool
	defaultCPUs      []int
	branchSampleType BranchSampleFormat
	branchSamplingOn bool
	callChain        CallChainMode
	dwarfStackSize   uint32
	enableOnOpen     bool
	enableOnExec     bool
	switchRecord     bool
	recordNotExecMaps bool
	wakeupPerSample  bool
	sampleIDAll      bool
	tracepointTarget *EventSelection
	auxTarget        *EventSelection

	opened bool

	reader *readerThread
	loop   *EventLoop

	platform platform.Capability
}

// NewSelectionSet creates an empty set resolving event names through catalog.
func NewSelectionSet(catalog eventcatalog.Catalog) *SelectionSet {
	return &SelectionSet{
		catalog:      catalog,
		names:        make(map[string]bool),
		enableOnOpen: true,
		platform:     platform.Default(),
	}
}

// AddEventGroup parses "event[:modifier]" names, builds each EventAttr from
// the event catalog, enforces name uniqueness across the set, and appends a
// new EventGroup. If check is true, an unknown event name fails the call;
// otherwise unknown names are silently skipped along with a warning left to
// the caller's logging layer.
func (s *SelectionSet) AddEventGroup(names []string, check bool) (*EventGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group := &EventGroup{}
	for _, spec := range names {
		name, modifier := splitEventModifier(spec)
		if s.names[name] {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate event name %q", name)}
		}
		desc, ok := s.catalog.Lookup(name)
		if !ok {
			if check {
				return nil, &ConfigError{Reason: eventcatalog.Unknown(name).Error()}
			}
			continue
		}
		attr := EventAttr{
			Type:   EventType(desc.Type),
			Config: desc.Config,
			Config1: desc.Config1,
		}
		if err := applyModifier(&attr, modifier); err != nil {
			return nil, err
		}
		s.applyGlobalPolicy(&attr)
		sel := &EventSelection{
			Name:             name,
			Modifier:         modifier,
			Attr:             attr,
			AllowedCPUs:      desc.AllowedCPUs,
			TracepointFilter: "",
			IsAUXTrace:       desc.IsAUXTrace,
		}
		if desc.IsTracepoint {
			s.tracepointTarget = sel
		}
		if desc.IsAUXTrace {
			s.auxTarget = sel
		}
		group.Selections = append(group.Selections, sel)
		s.names[name] = true
	}
	if len(group.Selections) == 0 {
		return nil, &ConfigError{Reason: "event group resolved to zero events"}
	}
	if len(s.groups) == 0 {
		// Only the first selection of the first group carries the
		// side-band toggles; every group monitors the same target set,
		// so duplicating them per group would duplicate side-band
		// records.
		leader := group.Selections[0]
		leader.Attr.Options.Mmap = true
		leader.Attr.Options.Comm = true
		leader.Attr.Options.Mmap2 = true
		leader.Attr.Options.MmapData = s.recordNotExecMaps
		leader.Attr.Options.ContextSwitch = s.switchRecord
	}
	s.groups = append(s.groups, group)
	return group, nil
}

// AddCounters opens additional events in the sole existing group, each
// configured with a sentinel sample period so none of them generates
// samples on its own; their value is only ever read out as part of another
// event's grouped sample payload. Legal only when exactly one group exists.
func (s *SelectionSet) AddCounters(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.groups) != 1 {
		return &ConfigError{Reason: "add_counters requires exactly one existing group"}
	}
	group := s.groups[0]
	for _, spec := range names {
		name, modifier := splitEventModifier(spec)
		if s.names[name] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate event name %q", name)}
		}
		desc, ok := s.catalog.Lookup(name)
		if !ok {
			return &ConfigError{Reason: eventcatalog.Unknown(name).Error()}
		}
		attr := EventAttr{Type: EventType(desc.Type), Config: desc.Config, Config1: desc.Config1}
		if err := applyModifier(&attr, modifier); err != nil {
			return err
		}
		s.applyGlobalPolicy(&attr)
		attr.SetSamplePeriod(sentinelCounterPeriod)
		group.Selections = append(group.Selections, &EventSelection{
			Name: name, Modifier: modifier, Attr: attr,
			AllowedCPUs: desc.AllowedCPUs, IsCounterOnly: true,
		})
		s.names[name] = true
	}
	return nil
}

func (s *SelectionSet) applyGlobalPolicy(attr *EventAttr) {
	attr.Options.Inherit = s.inherit
	attr.Options.EnableOnExec = s.enableOnExec
	attr.Options.Disabled = !s.enableOnOpen
	// ReadCounters reports time enabled/running with every value so the
	// Summariser can scale multiplexed counts.
	attr.CountFormat.TotalTimeEnabled = true
	attr.CountFormat.TotalTimeRunning = true
	if s.clockIDSet {
		attr.Options.UseClockID = true
		attr.ClockID = s.clockID
	}
	if s.sampleRateSet {
		if s.sampleFreq {
			attr.SetSampleFreq(s.sampleRate)
		} else {
			attr.SetSamplePeriod(s.sampleRate)
		}
	}
	if s.branchSamplingOn {
		attr.SampleFormat.BranchStack = true
		attr.BranchSampleType = s.branchSampleType
	}
	switch s.callChain {
	case CallChainFramePointer:
		attr.SampleFormat.Callchain = true
	case CallChainDwarf:
		attr.SampleFormat.Callchain = true
		attr.SampleFormat.UserStack = true
		attr.SampleStackUser = s.dwarfStackSize
	}
	if s.wakeupPerSample {
		attr.Options.Watermark = false
		attr.Wakeup = 1
	}
	if s.sampleIDAll {
		attr.Options.SampleIDAll = true
	}
}

// SetInherit configures whether newly-added events propagate to children of
// the monitored thread at fork time. Applies to events added afterward;
// already-added events are unaffected, matching add-time policy capture.
func (s *SelectionSet) SetInherit(inherit bool) { s.mu.Lock(); s.inherit = inherit; s.mu.Unlock() }

// SetClockID selects the clock used for sample timestamps. Fails with a
// CapabilityError on kernels older than 4.1, which predate use_clockid.
func (s *SelectionSet) SetClockID(id int32) error {
	if !IsSettingClockIdSupported() {
		return &CapabilityError{Reason: "use_clockid not supported by this kernel"}
	}
	s.mu.Lock()
	s.clockIDSet, s.clockID = true, id
	s.mu.Unlock()
	return nil
}

// SetSampleRateForNewEvents configures the sample period (freq=false) or
// sample frequency (freq=true) applied to events added from now on.
func (s *SelectionSet) SetSampleRateForNewEvents(rate uint64, freq bool) {
	s.mu.Lock()
	s.sampleRate, s.sampleFreq, s.sampleRateSet = rate, freq, true
	s.mu.Unlock()
}

// SetCPUsForNewEvents configures the default cpu list used by OpenEventFiles
// for groups that do not override their own cpu set.
func (s *SelectionSet) SetCPUsForNewEvents(cpus []int) {
	s.mu.Lock()
	s.defaultCPUs = cpus
	s.mu.Unlock()
}

// SetBranchSampling enables branch-stack sampling with the given mask.
// Fails with a CapabilityError if the running kernel predates
// PERF_SAMPLE_BRANCH_STACK (Linux 3.4) or lacks the requisite hardware LBR
// support.
func (s *SelectionSet) SetBranchSampling(mask BranchSampleFormat) error {
	if !IsBranchSamplingSupported() {
		return &CapabilityError{Reason: "branch sampling not supported by this kernel/cpu"}
	}
	s.mu.Lock()
	s.branchSamplingOn, s.branchSampleType = true, mask
	s.mu.Unlock()
	return nil
}

// EnableFPCallchain requests frame-pointer call chains on every event.
func (s *SelectionSet) EnableFPCallchain() {
	s.mu.Lock()
	s.callChain = CallChainFramePointer
	s.mu.Unlock()
}

// EnableDwarfCallchain requests DWARF-based call chains, dumping up to
// stackSize bytes of user stack per sample. Fails with a CapabilityError on
// kernels that predate PERF_SAMPLE_STACK_USER (Linux 3.7).
func (s *SelectionSet) EnableDwarfCallchain(stackSize uint32) error {
	if !IsDwarfCallChainSamplingSupported() {
		return &CapabilityError{Reason: "dwarf call chain sampling not supported by this kernel"}
	}
	s.mu.Lock()
	s.callChain, s.dwarfStackSize = CallChainDwarf, stackSize
	s.mu.Unlock()
	return nil
}

// SetEnableCondition configures whether events start enabled at open time
// and/or become enabled at the monitored process's next exec.
func (s *SelectionSet) SetEnableCondition(enableOnOpen, enableOnExec bool) {
	s.mu.Lock()
	s.enableOnOpen, s.enableOnExec = enableOnOpen, enableOnExec
	s.mu.Unlock()
}

// EnableSwitchRecord requests PERF_RECORD_SWITCH side-band records on the
// set's leader event. Fails with a CapabilityError on kernels older than
// 4.3, which predate PERF_RECORD_SWITCH.
func (s *SelectionSet) EnableSwitchRecord() error {
	if !IsSwitchRecordSupported() {
		return &CapabilityError{Reason: "PERF_RECORD_SWITCH not supported by this kernel"}
	}
	s.mu.Lock()
	s.switchRecord = true
	if len(s.groups) > 0 {
		s.groups[0].Selections[0].Attr.Options.ContextSwitch = true
	}
	s.mu.Unlock()
	return nil
}

// SetRecordNotExecutableMaps requests mmap records for non-executable
// mappings in addition to executable ones.
func (s *SelectionSet) SetRecordNotExecutableMaps(on bool) {
	s.mu.Lock()
	s.recordNotExecMaps = on
	if len(s.groups) > 0 {
		s.groups[0].Selections[0].Attr.Options.MmapData = on
	}
	s.mu.Unlock()
}

// SetTracepointFilter binds filter to the single most-recently-added
// tracepoint event. Fails if no tracepoint event has been added.
func (s *SelectionSet) SetTracepointFilter(filter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracepointTarget == nil {
		return &ConfigError{Reason: "set_tracepoint_filter with no tracepoint event added"}
	}
	s.tracepointTarget.TracepointFilter = filter
	return nil
}

// WakeupPerSample configures wake-every-1-event semantics instead of a byte
// watermark.
func (s *SelectionSet) WakeupPerSample() {
	s.mu.Lock()
	s.wakeupPerSample = true
	s.mu.Unlock()
}

// SampleIDAll requests that every record, not only samples, carry the
// (pid, tid, time, id, stream_id, cpu) identification tuple.
func (s *SelectionSet) SampleIDAll() {
	s.mu.Lock()
	s.sampleIDAll = true
	s.mu.Unlock()
}

// unionSampleType enforces the data-model invariant that within one set,
// the sample_type of every EventAttr is the union of all individual
// requests, so record parsing is uniform across every event in the set.
func (s *SelectionSet) unionSampleType() {
	var union SampleFormat
	for _, g := range s.groups {
		for _, sel := range g.Selections {
			union.union(sel.Attr.SampleFormat)
		}
	}
	for _, g := range s.groups {
		for _, sel := range g.Selections {
			sel.Attr.SampleFormat = union
		}
	}
}

// OpenEventFiles opens every group on the set's default cpu selection
// (each group's own cpu list, else its leader's PMU-pinned mask, else every
// online cpu) for every thread running on those cpus (tid = AllThreads).
func (s *SelectionSet) OpenEventFiles() error {
	return s.open(nil)
}

// OpenEventFilesForThreads opens every group for exactly the given tids.
func (s *SelectionSet) OpenEventFilesForThreads(tids []int) error {
	if len(tids) == 0 {
		return &ConfigError{Reason: "open_event_files_for_threads with no tids"}
	}
	return s.open(tids)
}

func (s *SelectionSet) open(tids []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.groups) == 0 {
		return &ConfigError{Reason: "no event groups configured"}
	}
	if err := s.checkCapability(); err != nil {
		return err
	}
	if err := s.platform.Prepare(); err != nil {
		log.Debug().Err(err).Msg("platform.Prepare failed, continuing without it")
	}
	s.unionSampleType()

	defaultCPUs := s.defaultCPUs
	if defaultCPUs == nil {
		online, err := procfs.GetOnlineCPUs()
		if err != nil {
			return &ResourceError{Reason: "enumerate online cpus", Err: err}
		}
		defaultCPUs = online
	}
	targetTids := tids
	if targetTids == nil {
		targetTids = []int{AllThreads}
	}

	for _, group := range s.groups {
		opened := 0
		var lastErr error
		cpus := group.effectiveCPUs(defaultCPUs)
		for _, tid := range targetTids {
			for _, cpu := range cpus {
				if err := s.openCell(group, tid, cpu); err == nil {
					opened++
				} else {
					lastErr = err
					log.Debug().Err(err).Ints("cpus", cpus).Msg("open_event_files: cell failed to open")
				}
			}
		}
		if opened == 0 {
			if lastErr != nil {
				return lastErr
			}
			return &ConfigError{Reason: fmt.Sprintf("event group %v: no (thread, cpu) cell to open", group.names())}
		}
	}
	s.opened = true
	return nil
}

// checkCapability raises the open-file rlimit and reads
// perf_event_paranoid before opening any counter, so a non-root process
// under a restrictive paranoid level gets a CapabilityError
// with a remediation hint instead of the kernel's bare EACCES once opens
// start failing cell by cell.
func (s *SelectionSet) checkCapability() error {
	if err := procfs.RaiseFileLimit(minOpenFiles); err != nil {
		log.Debug().Err(err).Msg("raise open-file rlimit failed, continuing with current limit")
	}
	level, err := procfs.ParanoidLevel()
	if err != nil {
		log.Debug().Err(err).Msg("read perf_event_paranoid failed, assuming unrestricted")
		return nil
	}
	if level > 2 && os.Geteuid() != 0 {
		return &CapabilityError{
			Reason: fmt.Sprintf("perf_event_paranoid is %d", level),
			Hint:   "run as root, or: echo 2 > /proc/sys/kernel/perf_event_paranoid",
		}
	}
	return nil
}

func (s *SelectionSet) openCell(group *EventGroup, tid, cpu int) error {
	setFilters := func(sel *EventSelection, cf *CounterFile) error {
		if sel.TracepointFilter != "" {
			if err := cf.SetFilter(sel.TracepointFilter); err != nil {
				return err
			}
		}
		if sel.IsAUXTrace {
			if filter := addrFilterString(sel); filter != "" {
				return cf.SetFilter(filter)
			}
		}
		return nil
	}
	leader := group.Selections[0]
	leaderFd, err := Open(&leader.Attr, tid, cpu, nil, NoGroup)
	if err != nil {
		return &OpenError{Tid: tid, CPU: cpu, Event: leader.Name, Err: err}
	}
	leader.counters = append(leader.counters, leaderFd)
	group.leaders = append(group.leaders, leaderFd)

	for _, sel := range group.Selections[1:] {
		cf, err := Open(&sel.Attr, tid, cpu, leaderFd, 0)
		if err != nil {
			// Partial group failure: this cell's other members stay
			// open, mirroring "a group with zero successful cells is
			// fatal; otherwise partial failure is tolerated".
			log.Debug().Err(err).Str("event", sel.Name).Int("tid", tid).Int("cpu", cpu).
				Msg("open_event_files: group member failed to open, leader stays open")
			continue
		}
		sel.counters = append(sel.counters, cf)
		if err := setFilters(sel, cf); err != nil {
			return err
		}
	}
	return setFilters(leader, leaderFd)
}

// ReadCounters reads every open CounterFile's cumulative reading and
// returns one CountersInfo per EventSelection.
func (s *SelectionSet) ReadCounters() ([]CountersInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []CountersInfo
	for gi, group := range s.groups {
		for _, sel := range group.Selections {
			info := CountersInfo{
				GroupID:  gi,
				Event:    sel.Name,
				Modifier: sel.Modifier,
			}
			for _, cf := range sel.counters {
				c, err := cf.ReadCounter()
				if err != nil {
					return nil, &RuntimeError{Op: "read_counter", Err: err}
				}
				info.Readings = append(info.Readings, CounterCellReading{
					Tid: cf.tid, CPU: cf.cpu, Count: c,
				})
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// CloseEventFiles stops the reader thread (if one was started by
// PrepareSampleReading), joins it, then drops every CounterFile. Safe to
// call more than once.
func (s *SelectionSet) CloseEventFiles() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader != nil {
		s.reader.stop()
		s.reader = nil
	}
	if err := s.platform.Restore(); err != nil {
		log.Debug().Err(err).Msg("platform.Restore failed")
	}
	var firstErr error
	for _, group := range s.groups {
		for _, sel := range group.Selections {
			for _, cf := range sel.counters {
				if err := cf.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			sel.counters = nil
		}
		group.leaders = nil
	}
	s.opened = false
	return firstErr
}

// PrepareSampleReading hands every open descriptor to a new reader thread,
// registers its data-available notification with loop, and arranges for cb
// to be invoked with each parsed record as it is pulled off the record
// queue.
func (s *SelectionSet) PrepareSampleReading(loop *EventLoop, cb func(Record, *EventSelection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return &ConfigError{Reason: "prepare_sample_reading before open_event_files"}
	}
	rt := newReaderThread(defaultRecordBufferCapacity)
	for _, group := range s.groups {
		for _, sel := range group.Selections {
			for _, cf := range sel.counters {
				rt.watch(cf, sel)
			}
		}
	}
	s.reader = rt
	s.loop = loop
	rt.start()
	return loop.AddReadEvent(rt.wakeFd(), PriorityHigh, func() LoopAction {
		rt.drain(func(rec Record, sel *EventSelection) {
			cb(rec, sel)
		})
		return LoopContinue
	})
}

// StopWhenNoMoreTargets schedules a periodic check that exits loop when
// every tid in tids is no longer live.
func (s *SelectionSet) StopWhenNoMoreTargets(loop *EventLoop, tids []int, interval time.Duration) error {
	if len(tids) == 0 {
		return nil
	}
	return loop.AddPeriodicTimer(interval, func() LoopAction {
		for _, tid := range tids {
			if procfs.IsThreadAlive(tid) {
				return LoopContinue
			}
		}
		loop.Exit(&TargetGone{})
		return LoopContinue
	})
}

// CountersInfo is one event's set of per-cell counter readings, as produced
// by ReadCounters.
type CountersInfo struct {
	GroupID  int
	Event    string
	Modifier string
	Readings []CounterCellReading
	// AutoGenerated is false on every CountersInfo ReadCounters returns; the
	// Summariser marks its synthesized u+k totals on Summary.AutoGenerated.
	AutoGenerated bool
}

// CounterCellReading is one (thread, cpu) cell's reading for an event.
type CounterCellReading struct {
	Tid, CPU int
	Count    Count
}
