// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Flag is a set of flags for CounterFile.Open. Values are or-ed together.
type Flag int

// Flags for calls to Open.
const (
	// NoGroup configures the event to ignore the group parameter
	// except for the purpose of setting up output redirection using
	// the FDOutput flag.
	NoGroup Flag = unix.PERF_FLAG_FD_NO_GROUP

	// FDOutput re-routes the event's sampled output to be included in the
	// memory mapped buffer of the event specified by the group parameter.
	FDOutput Flag = unix.PERF_FLAG_FD_OUTPUT

	// PidCGroup activates per-container system-wide monitoring. In this
	// case, a file descriptor opened on /dev/group/<x> must be passed
	// as the pid parameter.
	PidCGroup Flag = unix.PERF_FLAG_PID_CGROUP

	// cloexec configures the event file descriptor to be opened in
	// close-on-exec mode. Every CounterFile is opened with this flag set.
	cloexec Flag = unix.PERF_FLAG_FD_CLOEXEC
)

// CounterFile states.
const (
	counterFileUninitialized = 0
	counterFileOK            = 1
	counterFileClosed        = 2
)

// numRingPages is the number of pages mapped for the ring buffer, excluding
// the metadata page. perf(1) uses this value on 4KiB-page systems.
const numRingPages = 128

// CounterFile is a single kernel perf_event file descriptor: the unit an
// EventSelection opens per (thread, CPU) cell. It owns the mapped ring
// buffer backing ReadRecord, and the ioctls that enable, disable, reset
// and reconfigure the underlying kernel counter.
type CounterFile struct {
	state int32

	fd int

	// tid and cpu record the target cell this CounterFile was opened for,
	// for attribution in CountersInfo and lost-record accounting.
	tid, cpu int

	// group holds the other file descriptors in the event group, if this
	// CounterFile is the group leader.
	group []*CounterFile

	// attr is a clone of the EventAttr the CounterFile was opened with.
	attr *EventAttr

	ring     []byte
	ringdata []byte
	meta     *unix.PerfEventMmapPage

	// evfd unblocks ppoll(2) on fd; see poll/doPoll.
	evfd int

	pollreq  chan pollreq
	pollresp chan pollresp
}

// Open opens the kernel counter described by attr.
//
// The pid and cpu parameters specify which thread and CPU to monitor:
//
//   - pid == CallingThread, cpu == AnyCPU: the calling thread, any CPU
//   - pid == CallingThread, cpu >= 0: the calling thread, pinned to cpu
//   - pid > 0, cpu == AnyCPU: the specified thread, any CPU
//   - pid > 0, cpu >= 0: the specified thread, pinned to cpu
//   - pid == AllThreads, cpu >= 0: every thread running on cpu
//
// The pid == AllThreads, cpu == AnyCPU combination is invalid.
//
// If group is non-nil, the returned CounterFile joins group's event group.
// Unless NoGroup or FDOutput is set, attr.Options.Disabled is then ignored:
// the group leader alone controls when the whole group is enabled.
func Open(attr *EventAttr, pid, cpu int, group *CounterFile, flags Flag) (*CounterFile, error) {
	if cpu >= 0 {
		// Remap a copy so the caller's attr keeps its generic type for
		// opens on other cpus.
		remapped := *attr
		atomRemap(&remapped, cpu)
		attr = &remapped
	}
	groupfd := -1
	if group != nil {
		if err := group.ok(); err != nil {
			return nil, err
		}
		groupfd = group.fd
	}
	flags |= cloexec
	fd, err := unix.PerfEventOpen(attr.sysAttr(), pid, cpu, groupfd, int(flags))
	if err != nil {
		return nil, errors.Wrap(err, "perf_event_open")
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "setnonblock")
	}
	size := (1 + numRingPages) * unix.Getpagesize()
	ring, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "mmap ring buffer")
	}
	meta := (*unix.PerfEventMmapPage)(unsafe.Pointer(&ring[0]))
	ringdata := ring[meta.Data_offset:]
	evfd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Munmap(ring)
		unix.Close(fd)
		return nil, errors.Wrap(err, "eventfd")
	}
	attrClone := new(EventAttr)
	*attrClone = *attr
	cf := &CounterFile{
		state:    counterFileOK,
		fd:       fd,
		tid:      pid,
		cpu:      cpu,
		attr:     attrClone,
		ring:     ring,
		ringdata: ringdata,
		meta:     meta,
		evfd:     evfd,
		pollreq:  make(chan pollreq),
		pollresp: make(chan pollresp),
	}
	if group != nil {
		group.group = append(group.group, cf)
	}
	go cf.poll()
	return cf, nil
}

func (cf *CounterFile) ok() error {
	if cf == nil {
		return errors.New("simpleperf: nil CounterFile")
	}
	switch atomic.LoadInt32(&cf.state) {
	case counterFileUninitialized:
		return errors.New("simpleperf: use of uninitialized CounterFile")
	case counterFileOK:
		return nil
	default:
		return errors.New("simpleperf: use of closed CounterFile")
	}
}

// Attr returns a copy of the EventAttr cf was opened with.
func (cf *CounterFile) Attr() EventAttr {
	return *cf.attr
}

// Enable enables the counter.
func (cf *CounterFile) Enable() error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlEnable(cf.fd)
}

// Disable disables the counter.
func (cf *CounterFile) Disable() error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlDisable(cf.fd)
}

// Reset resets the counter value to zero.
func (cf *CounterFile) Reset() error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlReset(cf.fd)
}

// UpdatePeriod updates the overflow sample period. On older kernels, the
// new period does not take effect until after the next overflow.
func (cf *CounterFile) UpdatePeriod(p uint64) error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlPeriod(cf.fd, &p)
}

// SetOutput tells the kernel to route cf's ring buffer notifications to
// target instead. cf and target must be bound to the same CPU. A nil
// target silences output from cf.
func (cf *CounterFile) SetOutput(target *CounterFile) error {
	if err := cf.ok(); err != nil {
		return err
	}
	if target == nil {
		return ioctlSetOutput(cf.fd, -1)
	}
	if err := target.ok(); err != nil {
		return err
	}
	return ioctlSetOutput(cf.fd, target.fd)
}

// ID returns the kernel-assigned unique event ID for cf.
func (cf *CounterFile) ID() (uint64, error) {
	if err := cf.ok(); err != nil {
		return 0, err
	}
	var val uint64
	err := ioctlID(cf.fd, &val)
	return val, err
}

// SetBPF attaches a BPF program to cf, which must be a kprobe tracepoint
// counter. progfd is the file descriptor of the BPF program.
func (cf *CounterFile) SetBPF(progfd uint32) error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlSetBPF(cf.fd, progfd)
}

// PauseOutput pauses ring buffer output from cf.
func (cf *CounterFile) PauseOutput() error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlPauseOutput(cf.fd, 1)
}

// ResumeOutput resumes ring buffer output from cf.
func (cf *CounterFile) ResumeOutput() error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlPauseOutput(cf.fd, 0)
}

// QueryBPF queries cf for the file descriptors of BPF programs attached to
// the same tracepoint. max bounds the number of descriptors returned.
func (cf *CounterFile) QueryBPF(max uint32) ([]uint32, error) {
	if err := cf.ok(); err != nil {
		return nil, err
	}
	return ioctlQueryBPF(cf.fd, max)
}

// SetFilter attaches a tracepoint filter expression, or an ETM
// address-range filter string, to cf.
func (cf *CounterFile) SetFilter(filter string) error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlSetFilter(cf.fd, filter)
}

// ModifyAttributes updates the attributes of cf in place.
func (cf *CounterFile) ModifyAttributes(attr EventAttr) error {
	if err := cf.ok(); err != nil {
		return err
	}
	return ioctlModifyAttributes(cf.fd, attr.sysAttr())
}

// Count is a measurement taken by a CounterFile.
//
// Value is always populated. TimeEnabled and TimeRunning are populated if
// CountFormat.TotalTimeEnabled/TotalTimeRunning is set. ID is populated if
// CountFormat.ID is set.
type Count struct {
	Value       uint64
	TimeEnabled time.Duration
	TimeRunning time.Duration
	ID          uint64
}

// Scale returns the value of c, extrapolated to what it would have been
// had the counter run for the entire TimeEnabled window rather than just
// TimeRunning. This is the standard PMU multiplexing correction: when the
// kernel time-shares counters across more events than hardware slots, a
// counter that was only scheduled for a fraction of the measurement window
// reports a proportionally scaled-up estimate.
//
// If TimeRunning is zero, Scale reports ok == false: the counter never
// ran, and any value is meaningless.
func (c Count) Scale() (value float64, ok bool) {
	if c.TimeRunning == 0 {
		return 0, false
	}
	if c.TimeEnabled == c.TimeRunning {
		return float64(c.Value), true
	}
	return float64(c.Value) * (float64(c.TimeEnabled) / float64(c.TimeRunning)), true
}

// ReadCounter reads the measurement associated with cf. ReadCounter returns
// an error if cf was configured with CountFormat.Group.
func (cf *CounterFile) ReadCounter() (Count, error) {
	var c Count
	if err := cf.ok(); err != nil {
		return c, err
	}
	if cf.attr.CountFormat.Group {
		return c, errors.New("simpleperf: ReadCounter called on a group CounterFile")
	}
	buf := make([]byte, cf.attr.CountFormat.readSize())
	if _, err := unix.Read(cf.fd, buf); err != nil {
		return c, errors.Wrap(err, "read counter")
	}
	f := fields(buf)
	f.count(&c, cf.attr)
	return c, nil
}

// GroupCount is a group of measurements taken by a CounterFile group.
type GroupCount struct {
	TimeEnabled time.Duration
	TimeRunning time.Duration
	Values      []struct {
		Value uint64
		ID    uint64
	}
}

// Scale returns the scaled values of gc, applying the same multiplexing
// correction as Count.Scale uniformly to every value in the group (every
// counter in a group shares one TimeEnabled/TimeRunning pair, since the
// kernel schedules the whole group atomically).
func (gc GroupCount) Scale() (values []float64, ok bool) {
	if gc.TimeRunning == 0 {
		return nil, false
	}
	factor := 1.0
	if gc.TimeEnabled != gc.TimeRunning {
		factor = float64(gc.TimeEnabled) / float64(gc.TimeRunning)
	}
	values = make([]float64, len(gc.Values))
	for i, v := range gc.Values {
		values[i] = float64(v.Value) * factor
	}
	return values, true
}

// ReadGroupCounter reads the measurements associated with cf. ReadGroupCounter
// returns an error if cf was not configured with CountFormat.Group.
func (cf *CounterFile) ReadGroupCounter() (GroupCount, error) {
	var gc GroupCount
	if err := cf.ok(); err != nil {
		return gc, err
	}
	if !cf.attr.CountFormat.Group {
		return gc, errors.New("simpleperf: ReadGroupCounter called on a non-group CounterFile")
	}
	headerSize := cf.attr.CountFormat.groupReadHeaderSize()
	countsSize := (1 + len(cf.group)) * cf.attr.CountFormat.groupReadCountSize()
	buf := make([]byte, headerSize+countsSize)
	if _, err := unix.Read(cf.fd, buf); err != nil {
		return gc, errors.Wrap(err, "read group counter")
	}
	f := fields(buf)
	f.groupCount(&gc, cf.attr)
	return gc, nil
}

// RecordID contains identifiers for when and where a record was collected.
//
// A RecordID is included with a Record if Options.SampleIDAll is set on the
// associated EventAttr. Fields are present based on SampleFormat options.
type RecordID struct {
	Pid        uint32
	Tid        uint32
	Time       uint64
	ID         uint64
	StreamID   uint64
	CPU        uint32
	Res        uint32
	Identifier uint64
}

// ReadRecord reads and decodes one record from cf's ring buffer.
//
// ReadRecord may be called concurrently with ReadCounter or ReadGroupCounter,
// but not concurrently with itself, ReadRawRecord, Close, or any other
// CounterFile method.
func (cf *CounterFile) ReadRecord(ctx context.Context) (Record, error) {
	if err := cf.ok(); err != nil {
		return nil, err
	}
	var raw RawRecord
	if err := cf.ReadRawRecord(ctx, &raw); err != nil {
		return nil, err
	}
	rec, err := newRecord(cf.attr, raw.Header.Type)
	if err != nil {
		return nil, err
	}
	rec.DecodeFrom(&raw, cf.attr)
	return rec, nil
}

// ReadRawRecord reads one undecoded record from cf's ring buffer into raw.
// Callers must not retain raw.Data past the next call to ReadRawRecord.
//
// ReadRawRecord may be called concurrently with ReadCounter or
// ReadGroupCounter, but not concurrently with itself, ReadRecord, Close,
// or any other CounterFile method.
func (cf *CounterFile) ReadRawRecord(ctx context.Context, raw *RawRecord) error {
	if err := cf.ok(); err != nil {
		return err
	}
	if cf.readRawRecordNonblock(raw) {
		return nil
	}
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			<-ctx.Done()
			return ctx.Err()
		}
	}
	cf.pollreq <- pollreq{timeout: timeout}
	select {
	case <-ctx.Done():
		active := false
		err := ctx.Err()
		if err == context.Canceled {
			val := uint64(1)
			buf := (*[8]byte)(unsafe.Pointer(&val))[:]
			unix.Write(cf.evfd, buf)
			active = true
		}
		<-cf.pollresp
		if active {
			var buf [8]byte
			unix.Read(cf.evfd, buf[:])
		}
		return err
	case resp := <-cf.pollresp:
		if resp.err != nil {
			return resp.err
		}
		if !resp.perfready {
			<-ctx.Done()
			return ctx.Err()
		}
		cf.readRawRecordNonblock(raw)
		return nil
	}
}

// readRawRecordNonblock reads a raw record into raw, if one is available.
func (cf *CounterFile) readRawRecordNonblock(raw *RawRecord) bool {
	head := atomic.LoadUint64(&cf.meta.Data_head)
	tail := atomic.LoadUint64(&cf.meta.Data_tail)
	if head == tail {
		return false
	}
	start := tail % uint64(len(cf.ringdata))
	raw.Header = *(*RecordHeader)(unsafe.Pointer(&cf.ringdata[start]))
	end := (tail + uint64(raw.Header.Size)) % uint64(len(cf.ringdata))
	var data []byte
	if end < start {
		data = make([]byte, raw.Header.Size)
		n := copy(data, cf.ringdata[start:])
		copy(data[n:], cf.ringdata[:int(raw.Header.Size)-n])
	} else {
		data = cf.ringdata[start:end]
	}
	raw.Data = data[unsafe.Sizeof(raw.Header):]
	atomic.AddUint64(&cf.meta.Data_tail, uint64(raw.Header.Size))
	return true
}

// poll services requests from cf.pollreq and sends responses on cf.pollresp.
// It runs for the lifetime of cf, stopping once pollreq is closed by Close.
func (cf *CounterFile) poll() {
	defer close(cf.pollresp)

	for req := range cf.pollreq {
		cf.pollresp <- cf.doPoll(req)
	}
}

// doPoll executes one round of polling on cf.fd and cf.evfd. A req.timeout
// value of zero means no timeout.
func (cf *CounterFile) doPoll(req pollreq) pollresp {
	var systimeout *unix.Timespec
	if req.timeout > 0 {
		sec := req.timeout / time.Second
		nsec := req.timeout - sec*time.Second
		systimeout = &unix.Timespec{Sec: int64(sec), Nsec: int64(nsec)}
	}
	pollfds := []unix.PollFd{
		{Fd: int32(cf.fd), Events: unix.POLLIN},
		{Fd: int32(cf.evfd), Events: unix.POLLIN},
	}
	var err error
	for {
		_, err = unix.Ppoll(pollfds, systimeout, nil)
		if err != unix.EINTR {
			break
		}
	}
	if pollfds[1].Revents&unix.POLLIN != 0 {
		var buf [8]byte
		unix.Read(cf.evfd, buf[:])
	}
	var wrapped error
	if err != nil {
		wrapped = errors.Wrap(err, "ppoll")
	}
	return pollresp{
		perfready: pollfds[0].Revents&unix.POLLIN != 0,
		err:       wrapped,
	}
}

type pollreq struct {
	// timeout is the timeout for ppoll(2); zero means no timeout.
	timeout time.Duration
}

type pollresp struct {
	// perfready indicates whether cf.fd was ready.
	perfready bool
	err       error
}

// Close closes cf, unmapping its ring buffer and closing its file
// descriptors. Close must not be called concurrently with any other
// CounterFile method.
func (cf *CounterFile) Close() error {
	atomic.StoreInt32(&cf.state, counterFileClosed)
	close(cf.pollreq)
	<-cf.pollresp
	muerr := unix.Munmap(cf.ring)
	evfderr := unix.Close(cf.evfd)
	cerr := unix.Close(cf.fd)
	if muerr != nil {
		return muerr
	}
	if evfderr != nil {
		return evfderr
	}
	return cerr
}
