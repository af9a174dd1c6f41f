// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// defaultRecordBufferCapacity bounds the number of parsed-but-undelivered
// records readerThread holds before it starts dropping the newest arrivals
// rather than blocking the kernel's ring-buffer writer.
const defaultRecordBufferCapacity = 4096

// recordDrainSlice is the maximum time drain spends handing records to its
// callback before returning control to the reactor, per the "configurable
// time slice (e.g. 100 ms)" pull-API contract.
const recordDrainSlice = 100 * time.Millisecond

type queuedRecord struct {
	rec Record
	sel *EventSelection
}

// readerThread drains every watched CounterFile's mapped ring buffer into a
// bounded in-memory queue on its own goroutine per file descriptor, and
// wakes the main reactor through an eventfd once records are available.
// It is the parallel-thread half of the two-thread concurrency model: the
// reader thread mutates only its own queue, never the SelectionSet that
// created it.
type readerThread struct {
	mu       sync.Mutex
	queue    []queuedRecord
	capacity int

	lost        map[string]int
	excludePerf bool
	perfPid     int

	wakeR int // eventfd read/write end used to notify the main reactor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newReaderThread creates a reader thread with the given queue capacity.
// Each descriptor handed to watch is read from as soon as it is registered;
// start itself does nothing.
func newReaderThread(capacity int) *readerThread {
	ctx, cancel := context.WithCancel(context.Background())
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		// An eventfd exhaustion here means the process is already deep
		// into EMFILE territory; fall back to an invalid fd so wakeFd
		// registration fails loudly instead of silently dropping wakes.
		fd = -1
	}
	return &readerThread{
		capacity: capacity,
		lost:     make(map[string]int),
		wakeR:    fd,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// watch adds cf to the set of ring buffers this reader thread drains,
// attributing every record it yields to sel.
func (rt *readerThread) watch(cf *CounterFile, sel *EventSelection) {
	rt.wg.Add(1)
	go rt.readLoop(cf, sel)
}

// SetExcludePerf configures self-filtering: records whose originating pid
// equals pid are dropped at ingress rather than queued.
func (rt *readerThread) SetExcludePerf(pid int) {
	rt.mu.Lock()
	rt.excludePerf, rt.perfPid = true, pid
	rt.mu.Unlock()
}

func (rt *readerThread) readLoop(cf *CounterFile, sel *EventSelection) {
	defer rt.wg.Done()
	for {
		var raw RawRecord
		if err := cf.ReadRawRecord(rt.ctx, &raw); err != nil {
			return
		}
		rec, err := newRecord(cf.attr, raw.Header.Type)
		if err != nil {
			continue
		}
		rec.DecodeFrom(&raw, cf.attr)
		if rt.excludedByPid(rec) {
			continue
		}
		rt.push(queuedRecord{rec: rec, sel: sel})
	}
}

func (rt *readerThread) excludedByPid(rec Record) bool {
	rt.mu.Lock()
	exclude, pid := rt.excludePerf, rt.perfPid
	rt.mu.Unlock()
	if !exclude {
		return false
	}
	type pidCarrier interface{ pidOf() (uint32, bool) }
	if pc, ok := rec.(pidCarrier); ok {
		if got, ok := pc.pidOf(); ok {
			return int(got) == pid
		}
	}
	return false
}

func (rt *readerThread) push(qr queuedRecord) {
	rt.mu.Lock()
	full := len(rt.queue) >= rt.capacity
	if !full {
		rt.queue = append(rt.queue, qr)
	} else {
		rt.lost[qr.sel.Name]++
	}
	rt.mu.Unlock()
	rt.wake()
}

func (rt *readerThread) wake() {
	if rt.wakeR < 0 {
		return
	}
	val := uint64(1)
	buf := (*[8]byte)(unsafe.Pointer(&val))[:]
	unix.Write(rt.wakeR, buf)
}

// wakeFd returns the descriptor the main reactor should register as a read
// event: it becomes readable whenever the queue has records available.
func (rt *readerThread) wakeFd() int { return rt.wakeR }

// start is a no-op retained for symmetry with stop; watch already launches
// each per-descriptor goroutine as it is registered.
func (rt *readerThread) start() {}

// drain hands queued records to fn one at a time until the queue is empty
// or recordDrainSlice has elapsed, whichever comes first.
// Called from the main reactor's callback on wakeFd readability.
func (rt *readerThread) drain(fn func(Record, *EventSelection)) {
	if rt.wakeR >= 0 {
		var buf [8]byte
		unix.Read(rt.wakeR, buf[:])
	}
	deadline := time.Now().Add(recordDrainSlice)
	for {
		rt.mu.Lock()
		if len(rt.queue) == 0 {
			rt.mu.Unlock()
			return
		}
		qr := rt.queue[0]
		rt.queue = rt.queue[1:]
		rt.mu.Unlock()

		fn(qr.rec, qr.sel)
		if time.Now().After(deadline) {
			return
		}
	}
}

// LostRecords reports the number of records dropped per event name because
// the queue was full when they arrived.
func (rt *readerThread) LostRecords() map[string]int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make(map[string]int, len(rt.lost))
	for k, v := range rt.lost {
		out[k] = v
	}
	return out
}

// stop cancels every per-descriptor goroutine, joins them, and does a final
// drain so any record already copied out of the kernel ring is not lost.
// Safe to call once; the reader thread cannot be restarted.
func (rt *readerThread) stop() {
	rt.cancel()
	rt.wg.Wait()
	if rt.wakeR >= 0 {
		unix.Close(rt.wakeR)
		rt.wakeR = -1
	}
}
