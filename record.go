// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"fmt"
	"math/bits"

	"golang.org/x/sys/unix"
)

// Record is the interface implemented by all record types read off a
// CounterFile's mapped ring buffer.
type Record interface {
	Header() RecordHeader
	DecodeFrom(*RawRecord, *EventAttr)
}

// RecordType is the type of an overflow record.
type RecordType uint32

// Known record types.
const (
	RecordTypeMmap          RecordType = unix.PERF_RECORD_MMAP
	RecordTypeLost          RecordType = unix.PERF_RECORD_LOST
	RecordTypeComm          RecordType = unix.PERF_RECORD_COMM
	RecordTypeExit          RecordType = unix.PERF_RECORD_EXIT
	RecordTypeThrottle      RecordType = unix.PERF_RECORD_THROTTLE
	RecordTypeUnthrottle    RecordType = unix.PERF_RECORD_UNTHROTTLE
	RecordTypeFork          RecordType = unix.PERF_RECORD_FORK
	RecordTypeRead          RecordType = unix.PERF_RECORD_READ
	RecordTypeSample        RecordType = unix.PERF_RECORD_SAMPLE
	RecordTypeMmap2         RecordType = unix.PERF_RECORD_MMAP2
	RecordTypeAux           RecordType = unix.PERF_RECORD_AUX
	RecordTypeItraceStart   RecordType = unix.PERF_RECORD_ITRACE_START
	RecordTypeLostSamples   RecordType = unix.PERF_RECORD_LOST_SAMPLES
	RecordTypeSwitch        RecordType = unix.PERF_RECORD_SWITCH
	RecordTypeSwitchCPUWide RecordType = unix.PERF_RECORD_SWITCH_CPU_WIDE
	RecordTypeNamespaces    RecordType = unix.PERF_RECORD_NAMESPACES
)

func (rt RecordType) known() bool {
	return rt >= RecordTypeMmap && rt <= RecordTypeNamespaces
}

func (rt RecordType) String() string {
	switch rt {
	case RecordTypeMmap:
		return "mmap"
	case RecordTypeLost:
		return "lost"
	case RecordTypeComm:
		return "comm"
	case RecordTypeExit:
		return "exit"
	case RecordTypeThrottle:
		return "throttle"
	case RecordTypeUnthrottle:
		return "unthrottle"
	case RecordTypeFork:
		return "fork"
	case RecordTypeRead:
		return "read"
	case RecordTypeSample:
		return "sample"
	case RecordTypeMmap2:
		return "mmap2"
	case RecordTypeAux:
		return "aux"
	case RecordTypeItraceStart:
		return "itrace-start"
	case RecordTypeLostSamples:
		return "lost-samples"
	case RecordTypeSwitch:
		return "switch"
	case RecordTypeSwitchCPUWide:
		return "switch-cpu-wide"
	case RecordTypeNamespaces:
		return "namespaces"
	default:
		return "unknown"
	}
}

// RecordHeader is the header present in every overflow record.
type RecordHeader struct {
	Type RecordType
	Misc uint16
	Size uint16
}

// Header returns rh itself, so that types which embed a RecordHeader
// automatically implement a part of the Record interface.
func (rh RecordHeader) Header() RecordHeader { return rh }

// CPUMode returns the CPU mode in use when the sample happened.
func (rh RecordHeader) CPUMode() CPUMode {
	return CPUMode(rh.Misc & cpuModeMask)
}

// CPUMode is a CPU operation mode.
type CPUMode uint8

const cpuModeMask = 7

// Known CPU modes.
const (
	UnknownMode     CPUMode = 0
	KernelMode      CPUMode = 1
	UserMode        CPUMode = 2
	HypervisorMode  CPUMode = 3
	GuestKernelMode CPUMode = 4
	GuestUserMode   CPUMode = 5
)

// RawRecord is a raw overflow record, read from the memory mapped ring
// buffer associated with a CounterFile.
//
// Header is the 8 byte record header. Data contains the rest of the record.
type RawRecord struct {
	Header RecordHeader
	Data   []byte
}

func (raw RawRecord) fields() fields { return fields(raw.Data) }

var newRecordFuncs = [...]func(attr *EventAttr) Record{
	RecordTypeMmap:          func(_ *EventAttr) Record { return &MmapRecord{} },
	RecordTypeLost:          func(_ *EventAttr) Record { return &LostRecord{} },
	RecordTypeComm:          func(_ *EventAttr) Record { return &CommRecord{} },
	RecordTypeExit:          func(_ *EventAttr) Record { return &ExitRecord{} },
	RecordTypeThrottle:      func(_ *EventAttr) Record { return &ThrottleRecord{} },
	RecordTypeUnthrottle:    func(_ *EventAttr) Record { return &UnthrottleRecord{} },
	RecordTypeFork:          func(_ *EventAttr) Record { return &ForkRecord{} },
	RecordTypeRead:          newReadRecord,
	RecordTypeSample:        newSampleRecord,
	RecordTypeMmap2:         func(_ *EventAttr) Record { return &Mmap2Record{} },
	RecordTypeAux:           func(_ *EventAttr) Record { return &AuxRecord{} },
	RecordTypeItraceStart:   func(_ *EventAttr) Record { return &ItraceStartRecord{} },
	RecordTypeLostSamples:   func(_ *EventAttr) Record { return &LostSamplesRecord{} },
	RecordTypeSwitch:        func(_ *EventAttr) Record { return &SwitchRecord{} },
	RecordTypeSwitchCPUWide: func(_ *EventAttr) Record { return &SwitchCPUWideRecord{} },
	RecordTypeNamespaces:    func(_ *EventAttr) Record { return &NamespacesRecord{} },
}

func newReadRecord(attr *EventAttr) Record {
	if attr.CountFormat.Group {
		return &ReadGroupRecord{}
	}
	return &ReadRecord{}
}

func newSampleRecord(attr *EventAttr) Record {
	if attr.CountFormat.Group {
		return &SampleGroupRecord{}
	}
	return &SampleRecord{}
}

// newRecord returns an empty Record of the given type, tailored for the
// specified EventAttr.
func newRecord(attr *EventAttr, rt RecordType) (Record, error) {
	if !rt.known() {
		return nil, fmt.Errorf("simpleperf: unknown record type %d", rt)
	}
	return newRecordFuncs[rt](attr), nil
}

// mmapDataBit is PERF_RECORD_MISC_MMAP_DATA
const mmapDataBit = 1 << 13

// MmapRecord (PERF_RECORD_MMAP) records PROT_EXEC mappings such that
// user-space IPs can be correlated to code.
type MmapRecord struct {
	RecordHeader
	Pid        uint32 // process ID
	Tid        uint32 // thread ID
	Addr       uint64 // address of the allocated memory
	Len        uint64 // length of the allocated memory
	PageOffset uint64 // page offset of the allocated memory
	Filename   string // describes backing of allocated memory
	RecordID
}

func (mr *MmapRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	mr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&mr.Pid, &mr.Tid)
	f.uint64(&mr.Addr)
	f.uint64(&mr.Len)
	f.uint64(&mr.PageOffset)
	f.string(&mr.Filename)
	f.id(&mr.RecordID, attr)
}

// Executable returns a boolean indicating whether the mapping is executable.
func (mr *MmapRecord) Executable() bool {
	// The data bit is set when the mapping is _not_ executable.
	return mr.RecordHeader.Misc&mmapDataBit == 0
}

// LostRecord (PERF_RECORD_LOST) indicates when events are lost.
type LostRecord struct {
	RecordHeader
	ID   uint64 // the unique ID for the lost events
	Lost uint64 // the number of lost events
	RecordID
}

func (lr *LostRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	lr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint64(&lr.ID)
	f.uint64(&lr.Lost)
	f.id(&lr.RecordID, attr)
}

// CommRecord (PERF_RECORD_COMM) indicates a change in the process name.
type CommRecord struct {
	RecordHeader
	Pid     uint32 // process ID
	Tid     uint32 // thread ID
	NewName string // the new name of the process
	RecordID
}

func (cr *CommRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	cr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&cr.Pid, &cr.Tid)
	f.string(&cr.NewName)
	f.id(&cr.RecordID, attr)
}

// commExecBit is PERF_RECORD_MISC_COMM_EXEC
const commExecBit = 1 << 13

// WasExec returns a boolean indicating whether a process name change
// was caused by an exec(2) system call.
func (cr *CommRecord) WasExec() bool {
	return cr.RecordHeader.Misc&commExecBit != 0
}

// ExitRecord (PERF_RECORD_EXIT) indicates a process exit event.
type ExitRecord struct {
	RecordHeader
	Pid  uint32 // process ID
	Ppid uint32 // parent process ID
	Tid  uint32 // thread ID
	Ptid uint32 // parent thread ID
	Time uint64 // time when the process exited
	RecordID
}

func (er *ExitRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	er.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&er.Pid, &er.Ppid)
	f.uint32(&er.Tid, &er.Ptid)
	f.uint64(&er.Time)
	f.id(&er.RecordID, attr)
}

// ThrottleRecord (PERF_RECORD_THROTTLE) indicates a throttle event: the
// kernel stopped sampling this event because its overflow rate was
// dominating the CPU.
type ThrottleRecord struct {
	RecordHeader
	Time     uint64
	ID       uint64
	StreamID uint64
	RecordID
}

func (tr *ThrottleRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	tr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint64(&tr.Time)
	f.uint64(&tr.ID)
	f.uint64(&tr.StreamID)
	f.id(&tr.RecordID, attr)
}

// UnthrottleRecord (PERF_RECORD_UNTHROTTLE) indicates an unthrottle event.
type UnthrottleRecord struct {
	RecordHeader
	Time     uint64
	ID       uint64
	StreamID uint64
	RecordID
}

func (ur *UnthrottleRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	ur.RecordHeader = raw.Header
	f := raw.fields()
	f.uint64(&ur.Time)
	f.uint64(&ur.ID)
	f.uint64(&ur.StreamID)
	f.id(&ur.RecordID, attr)
}

// ForkRecord (PERF_RECORD_FORK) indicates a fork event.
type ForkRecord struct {
	RecordHeader
	Pid  uint32 // process ID
	Ppid uint32 // parent process ID
	Tid  uint32 // thread ID
	Ptid uint32 // parent thread ID
	Time uint64 // time when the fork occurred
	RecordID
}

func (fr *ForkRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	fr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&fr.Pid, &fr.Ppid)
	f.uint32(&fr.Tid, &fr.Ptid)
	f.uint64(&fr.Time)
	f.id(&fr.RecordID, attr)
}

// ReadRecord (PERF_RECORD_READ) indicates a read event, from a non-group
// EventAttr configured with the Task and Read options.
type ReadRecord struct {
	RecordHeader
	Pid   uint32 // process ID
	Tid   uint32 // thread ID
	Count Count  // count value
	RecordID
}

func (rr *ReadRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	rr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&rr.Pid, &rr.Tid)
	f.count(&rr.Count, attr)
}

// ReadGroupRecord (PERF_RECORD_READ) indicates a read event on a group.
type ReadGroupRecord struct {
	RecordHeader
	Pid        uint32     // process ID
	Tid        uint32     // thread ID
	GroupCount GroupCount // group count values
	RecordID
}

func (rr *ReadGroupRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	rr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&rr.Pid, &rr.Tid)
	f.groupCount(&rr.GroupCount, attr)
}

// SampleRecord indicates a sample.
//
// All the fields up to and including Callchain represent ABI bits. All the
// fields starting with Raw are non-ABI and have no compatibility guarantees.
//
// Fields on SampleRecord are set according to the SampleFormat the event
// was configured with. A boolean flag in SampleFormat typically enables
// the homonymous field in SampleRecord.
type SampleRecord struct {
	RecordHeader
	Identifier uint64
	IP         uint64
	Pid        uint32
	Tid        uint32
	Time       uint64
	Addr       uint64
	ID         uint64
	StreamID   uint64
	CPU        uint32
	Res        uint32
	Period     uint64
	Count      Count
	Callchain  []uint64

	Raw                  []byte
	BranchStack          []BranchEntry
	UserRegisterABI      uint64
	UserRegisters        []uint64
	UserStack            []byte
	UserStackDynamicSize uint64
	Weight               uint64
	DataSource           DataSource
	Transaction          Transaction
	IntrRegisterABI      uint64
	IntrRegisters        []uint64
	PhysicalAddress      uint64
}

func (sr *SampleRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	sr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint64Cond(attr.SampleFormat.Identifier, &sr.Identifier)
	f.uint64Cond(attr.SampleFormat.IP, &sr.IP)
	f.uint32Cond(attr.SampleFormat.Tid, &sr.Pid, &sr.Tid)
	f.uint64Cond(attr.SampleFormat.Time, &sr.Time)
	f.uint64Cond(attr.SampleFormat.Addr, &sr.Addr)
	f.uint64Cond(attr.SampleFormat.ID, &sr.ID)
	f.uint64Cond(attr.SampleFormat.StreamID, &sr.StreamID)
	f.uint32Cond(attr.SampleFormat.CPU, &sr.CPU, &sr.Res)
	f.uint64Cond(attr.SampleFormat.Period, &sr.Period)
	if attr.SampleFormat.Count {
		f.count(&sr.Count, attr)
	}
	if attr.SampleFormat.Callchain {
		var nr uint64
		f.uint64(&nr)
		sr.Callchain = make([]uint64, nr)
		for i := range sr.Callchain {
			f.uint64(&sr.Callchain[i])
		}
	}
	if attr.SampleFormat.Raw {
		f.uint32sizeBytes(&sr.Raw)
	}
	if attr.SampleFormat.BranchStack {
		decodeBranchStack(&f, &sr.BranchStack)
	}
	if attr.SampleFormat.UserRegisters {
		f.uint64(&sr.UserRegisterABI)
		sr.UserRegisters = make([]uint64, bits.OnesCount64(attr.SampleRegsUser))
		for i := range sr.UserRegisters {
			f.uint64(&sr.UserRegisters[i])
		}
	}
	if attr.SampleFormat.UserStack {
		f.uint64sizeBytes(&sr.UserStack)
		if len(sr.UserStack) > 0 {
			f.uint64(&sr.UserStackDynamicSize)
		}
	}
	f.uint64Cond(attr.SampleFormat.Weight, &sr.Weight)
	if attr.SampleFormat.DataSource {
		var ds uint64
		f.uint64(&ds)
		sr.DataSource = DataSource(ds)
	}
	if attr.SampleFormat.Transaction {
		var tx uint64
		f.uint64(&tx)
		sr.Transaction = Transaction(tx)
	}
	if attr.SampleFormat.IntrRegisters {
		f.uint64(&sr.IntrRegisterABI)
		sr.IntrRegisters = make([]uint64, bits.OnesCount64(attr.SampleRegsIntr))
		for i := range sr.IntrRegisters {
			f.uint64(&sr.IntrRegisters[i])
		}
	}
	f.uint64Cond(attr.SampleFormat.PhysicalAddress, &sr.PhysicalAddress)
}

// exactIPBit is PERF_RECORD_MISC_EXACT_IP
const exactIPBit = 1 << 14

// ExactIP indicates that sr.IP points to the actual instruction that
// triggered the event. See also Options.PreciseIP.
func (sr *SampleRecord) ExactIP() bool {
	return sr.RecordHeader.Misc&exactIPBit != 0
}

// SampleGroupRecord indicates a sample from an event group.
//
// Fields are populated exactly as on SampleRecord, except that Count holds
// a GroupCount rather than a Count.
type SampleGroupRecord struct {
	RecordHeader
	Identifier uint64
	IP         uint64
	Pid        uint32
	Tid        uint32
	Time       uint64
	Addr       uint64
	ID         uint64
	StreamID   uint64
	CPU        uint32
	Res        uint32
	Period     uint64
	Count      GroupCount
	Callchain  []uint64

	Raw                  []byte
	BranchStack          []BranchEntry
	UserRegisterABI      uint64
	UserRegisters        []uint64
	UserStack            []byte
	UserStackDynamicSize uint64
	Weight               uint64
	DataSource           DataSource
	Transaction          Transaction
	IntrRegisterABI      uint64
	IntrRegisters        []uint64
	PhysicalAddress      uint64
}

func (sr *SampleGroupRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	sr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint64Cond(attr.SampleFormat.Identifier, &sr.Identifier)
	f.uint64Cond(attr.SampleFormat.IP, &sr.IP)
	f.uint32Cond(attr.SampleFormat.Tid, &sr.Pid, &sr.Tid)
	f.uint64Cond(attr.SampleFormat.Time, &sr.Time)
	f.uint64Cond(attr.SampleFormat.Addr, &sr.Addr)
	f.uint64Cond(attr.SampleFormat.ID, &sr.ID)
	f.uint64Cond(attr.SampleFormat.StreamID, &sr.StreamID)
	f.uint32Cond(attr.SampleFormat.CPU, &sr.CPU, &sr.Res)
	f.uint64Cond(attr.SampleFormat.Period, &sr.Period)
	if attr.SampleFormat.Count {
		f.groupCount(&sr.Count, attr)
	}
	if attr.SampleFormat.Callchain {
		var nr uint64
		f.uint64(&nr)
		sr.Callchain = make([]uint64, nr)
		for i := range sr.Callchain {
			f.uint64(&sr.Callchain[i])
		}
	}
	if attr.SampleFormat.Raw {
		f.uint32sizeBytes(&sr.Raw)
	}
	if attr.SampleFormat.BranchStack {
		decodeBranchStack(&f, &sr.BranchStack)
	}
	if attr.SampleFormat.UserRegisters {
		f.uint64(&sr.UserRegisterABI)
		sr.UserRegisters = make([]uint64, bits.OnesCount64(attr.SampleRegsUser))
		for i := range sr.UserRegisters {
			f.uint64(&sr.UserRegisters[i])
		}
	}
	if attr.SampleFormat.UserStack {
		f.uint64sizeBytes(&sr.UserStack)
		if len(sr.UserStack) > 0 {
			f.uint64(&sr.UserStackDynamicSize)
		}
	}
	f.uint64Cond(attr.SampleFormat.Weight, &sr.Weight)
	if attr.SampleFormat.DataSource {
		var ds uint64
		f.uint64(&ds)
		sr.DataSource = DataSource(ds)
	}
	if attr.SampleFormat.Transaction {
		var tx uint64
		f.uint64(&tx)
		sr.Transaction = Transaction(tx)
	}
	if attr.SampleFormat.IntrRegisters {
		f.uint64(&sr.IntrRegisterABI)
		sr.IntrRegisters = make([]uint64, bits.OnesCount64(attr.SampleRegsIntr))
		for i := range sr.IntrRegisters {
			f.uint64(&sr.IntrRegisters[i])
		}
	}
	f.uint64Cond(attr.SampleFormat.PhysicalAddress, &sr.PhysicalAddress)
}

// ExactIP indicates that sr.IP points to the actual instruction that
// triggered the event. See also Options.PreciseIP.
func (sr *SampleGroupRecord) ExactIP() bool {
	return sr.RecordHeader.Misc&exactIPBit != 0
}

// decodeBranchStack decodes a PERF_SAMPLE_BRANCH_STACK entry list shared by
// SampleRecord and SampleGroupRecord.
func decodeBranchStack(f *fields, out *[]BranchEntry) {
	var nr uint64
	f.uint64(&nr)
	entries := make([]BranchEntry, nr)
	for i := range entries {
		var from, to, tmp uint64
		f.uint64(&from)
		f.uint64(&to)
		f.uint64(&tmp)
		entries[i] = BranchEntry{
			From:             from,
			To:               to,
			Mispredicted:     tmp&(1<<0) != 0,
			Predicted:        tmp&(1<<1) != 0,
			InTransaction:    tmp&(1<<2) != 0,
			TransactionAbort: tmp&(1<<3) != 0,
			Cycles:           uint16((tmp << 44) >> 48),
			BranchType:       uint8((tmp << 40) >> 44),
		}
	}
	*out = entries
}

// BranchEntry is one entry in a branch record, as requested by
// SampleFormat.BranchStack.
type BranchEntry struct {
	From             uint64
	To               uint64
	Mispredicted     bool
	Predicted        bool
	InTransaction    bool
	TransactionAbort bool
	Cycles           uint16
	BranchType       uint8
}

// Mmap2Record (PERF_RECORD_MMAP2) includes extended information on mmap(2)
// calls returning executable mappings. It is similar to MmapRecord, but
// includes extra values, allowing unique identification of shared mappings.
type Mmap2Record struct {
	RecordHeader
	Pid             uint32 // process ID
	Tid             uint32 // thread ID
	Addr            uint64 // address of the allocated memory
	Len             uint64 // length of the allocated memory
	PageOffset      uint64 // page offset of the allocated memory
	MajorID         uint32 // major ID of the underlying device
	MinorID         uint32 // minor ID of the underlying device
	Inode           uint64 // inode number
	InodeGeneration uint64 // inode generation
	Prot            uint32 // protection information
	Flags           uint32 // flags information
	Filename        string // describes the backing of the allocated memory
	RecordID
}

func (mr *Mmap2Record) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	mr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&mr.Pid, &mr.Tid)
	f.uint64(&mr.Addr)
	f.uint64(&mr.Len)
	f.uint64(&mr.PageOffset)
	f.uint32(&mr.MajorID, &mr.MinorID)
	f.uint64(&mr.Inode)
	f.uint64(&mr.InodeGeneration)
	f.uint32(&mr.Prot, &mr.Flags)
	f.string(&mr.Filename)
	f.id(&mr.RecordID, attr)
}

// Executable returns a boolean indicating whether the mapping is executable.
func (mr *Mmap2Record) Executable() bool {
	// The data bit is set when the mapping is _not_ executable.
	return mr.RecordHeader.Misc&mmapDataBit == 0
}

// AuxRecord (PERF_RECORD_AUX) reports that new data is available in the
// AUX buffer region. See SelectionSet.AddAddrFilter for address-range
// filtering of what lands in this region.
type AuxRecord struct {
	RecordHeader
	Offset uint64  // offset in the AUX mmap region where the new data begins
	Size   uint64  // size of data made available
	Flags  AuxFlag // describes the update
	RecordID
}

// AuxFlag describes an update to a record in the AUX buffer region.
type AuxFlag uint64

// AuxFlag bits.
const (
	AuxTruncated AuxFlag = 0x01 // record was truncated to fit
	AuxOverwrite AuxFlag = 0x02 // snapshot from overwrite mode
	AuxPartial   AuxFlag = 0x04 // record contains gaps
	AuxCollision AuxFlag = 0x08 // sample collided with another
)

func (ar *AuxRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	ar.RecordHeader = raw.Header
	f := raw.fields()
	f.uint64(&ar.Offset)
	f.uint64(&ar.Size)
	var flag uint64
	f.uint64(&flag)
	ar.Flags = AuxFlag(flag)
	f.id(&ar.RecordID, attr)
}

// ItraceStartRecord (PERF_RECORD_ITRACE_START) indicates which process
// has initiated an instruction trace event, allowing tools to correlate
// instruction addresses in the AUX buffer with the proper executable.
type ItraceStartRecord struct {
	RecordHeader
	Pid uint32 // process ID of the thread starting an instruction trace
	Tid uint32 // thread ID of the thread starting an instruction trace
	RecordID
}

func (ir *ItraceStartRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	ir.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&ir.Pid, &ir.Tid)
	f.id(&ir.RecordID, attr)
}

// LostSamplesRecord (PERF_RECORD_LOST_SAMPLES) indicates some number of
// samples that may have been lost, when using hardware sampling such as
// Intel PEBS.
type LostSamplesRecord struct {
	RecordHeader
	Lost uint64 // the number of potentially lost samples
	RecordID
}

func (lr *LostSamplesRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	lr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint64(&lr.Lost)
	f.id(&lr.RecordID, attr)
}

// SwitchRecord (PERF_RECORD_SWITCH) indicates that a context switch has
// happened.
type SwitchRecord struct {
	RecordHeader
	RecordID
}

func (sr *SwitchRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	sr.RecordHeader = raw.Header
	f := raw.fields()
	f.id(&sr.RecordID, attr)
}

// switchOutBit is PERF_RECORD_MISC_SWITCH_OUT
const switchOutBit = 1 << 13

// switchOutPreemptBit is PERF_RECORD_MISC_SWITCH_OUT_PREEMPT
const switchOutPreemptBit = 1 << 14

// Out returns a boolean indicating whether the context switch was
// out of the current process, or into the current process.
func (sr *SwitchRecord) Out() bool {
	return sr.RecordHeader.Misc&switchOutBit != 0
}

// Preempted indicates whether the thread was preempted in TASK_RUNNING state.
func (sr *SwitchRecord) Preempted() bool {
	return sr.RecordHeader.Misc&switchOutPreemptBit != 0
}

// SwitchCPUWideRecord (PERF_RECORD_SWITCH_CPU_WIDE) indicates a context
// switch, but only occurs when sampling in CPU-wide mode. It provides
// information on the process being switched to / from.
type SwitchCPUWideRecord struct {
	RecordHeader
	Pid uint32
	Tid uint32
	RecordID
}

func (sr *SwitchCPUWideRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	sr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&sr.Pid, &sr.Tid)
	f.id(&sr.RecordID, attr)
}

// Out returns a boolean indicating whether the context switch was
// out of the current process, or into the current process.
func (sr *SwitchCPUWideRecord) Out() bool {
	return sr.RecordHeader.Misc&switchOutBit != 0
}

// Preempted indicates whether the thread was preempted in TASK_RUNNING state.
func (sr *SwitchCPUWideRecord) Preempted() bool {
	return sr.RecordHeader.Misc&switchOutPreemptBit != 0
}

// NamespacesRecord (PERF_RECORD_NAMESPACES) reports the namespaces
// associated with a task.
type NamespacesRecord struct {
	RecordHeader
	Pid        uint32
	Tid        uint32
	Namespaces []struct {
		Dev   uint64
		Inode uint64
	}
	RecordID
}

func (nr *NamespacesRecord) DecodeFrom(raw *RawRecord, attr *EventAttr) {
	nr.RecordHeader = raw.Header
	f := raw.fields()
	f.uint32(&nr.Pid, &nr.Tid)
	var num uint64
	f.uint64(&num)
	nr.Namespaces = make([]struct{ Dev, Inode uint64 }, num)
	for i := 0; i < int(num); i++ {
		f.uint64(&nr.Namespaces[i].Dev)
		f.uint64(&nr.Namespaces[i].Inode)
	}
	f.id(&nr.RecordID, attr)
}

// DataSource describes the provenance of a sampled memory access.
type DataSource uint64

// MemOp is a memory operation.
type MemOp uint8

// Known memory operations.
const (
	MemOpNA MemOp = 1 << iota
	MemOpLoad
	MemOpStore
	MemOpPrefetch
	MemOpExec

	memOpShift = 0
)

// MemLevel is a memory level.
type MemLevel uint32

// Known memory levels.
const (
	MemLevelNA MemLevel = 1 << iota
	MemLevelHit
	MemLevelMiss
	MemLevelL1
	MemLevelLFB
	MemLevelL2
	MemLevelL3
	MemLevelLocalDRAM
	MemLevelRemoteDRAM1
	MemLevelRemoteDRAM2
	MemLevelRemoteCache1
	MemLevelRemoteCache2
	MemLevelIO
	MemLevelUncached

	memLevelShift = 5
)

const memRemoteShift = 37

// MemLevelNumber is a memory level number.
type MemLevelNumber uint8

// Known memory level numbers.
const (
	MemLevelNumberL1 MemLevelNumber = iota
	MemLevelNumberL2
	MemLevelNumberL3
	MemLevelNumberL4

	MemLevelNumberAnyCache MemLevelNumber = iota + 0x0b
	MemLevelNumberLFB
	MemLevelNumberRAM
	MemLevelNumberPMem
	MemLevelNumberNA

	memLevelNumShift = 33
)

// MemSnoopMode is a memory snoop mode.
type MemSnoopMode uint8

// Known memory snoop modes.
const (
	MemSnoopModeNA MemSnoopMode = 1 << iota
	MemSnoopModeNone
	MemSnoopModeHit
	MemSnoopModeMiss
	MemSnoopModeHitModified

	memSnoopModeShift = 19
)

// Transaction describes a transactional memory abort.
type Transaction uint64

// Transaction bits: values should be &-ed with Transaction values.
const (
	// TransactionElision indicates an abort from an elision type
	// transaction (Intel CPU specific).
	TransactionElision Transaction = 1 << iota

	// TransactionGeneric indicates an abort from a generic transaction.
	TransactionGeneric

	// TransactionSync indicates a synchronous abort (related to the
	// reported instruction).
	TransactionSync

	// TransactionAsync indicates an asynchronous abort (unrelated to
	// the reported instruction).
	TransactionAsync

	// TransactionRetryable indicates whether retrying the transaction
	// may have succeeded.
	TransactionRetryable

	// TransactionConflict indicates an abort due to memory conflicts
	// with other threads.
	TransactionConflict

	// TransactionWriteCapacity indicates an abort due to write capacity
	// overflow.
	TransactionWriteCapacity

	// TransactionReadCapacity indicates an abort due to read capacity
	// overflow.
	TransactionReadCapacity
)

const txnAbortMask = 0xffffffff
const txnAbortShift = 32

// UserAbortCode returns the user-specified abort code associated with
// the transaction.
func (txn Transaction) UserAbortCode() uint32 {
	return uint32((txn >> txnAbortShift) & txnAbortMask)
}

// pidOf exposes each record type's originating process id to
// readerThread's exclude_perf filter, without requiring every Record
// implementation to carry a Pid field.
func (mr *MmapRecord) pidOf() (uint32, bool)          { return mr.Pid, true }
func (cr *CommRecord) pidOf() (uint32, bool)          { return cr.Pid, true }
func (er *ExitRecord) pidOf() (uint32, bool)          { return er.Pid, true }
func (fr *ForkRecord) pidOf() (uint32, bool)          { return fr.Pid, true }
func (rr *ReadRecord) pidOf() (uint32, bool)          { return rr.Pid, true }
func (rr *ReadGroupRecord) pidOf() (uint32, bool)     { return rr.Pid, true }
func (sr *SampleRecord) pidOf() (uint32, bool)        { return sr.Pid, true }
func (sr *SampleGroupRecord) pidOf() (uint32, bool)   { return sr.Pid, true }
func (mr *Mmap2Record) pidOf() (uint32, bool)         { return mr.Pid, true }
func (ir *ItraceStartRecord) pidOf() (uint32, bool)   { return ir.Pid, true }
func (sr *SwitchCPUWideRecord) pidOf() (uint32, bool) { return sr.Pid, true }
func (nr *NamespacesRecord) pidOf() (uint32, bool)    { return nr.Pid, true }
