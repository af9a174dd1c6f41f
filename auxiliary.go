// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/simpleperf/coreperf/internal/procfs"
)

// newThreadScanMinInterval and newThreadScanMaxInterval bound the
// exponential backoff applied to the new-thread scanner. The original
// 1-microsecond poll interval is preserved as the starting point so every
// thread created just after a scan is still picked up almost immediately;
// backoff only kicks in once a process goes quiet, to avoid burning CPU
// polling /proc/<pid>/task forever.
const (
	newThreadScanMinInterval = time.Microsecond
	newThreadScanMaxInterval = 200 * time.Millisecond
)

// NewThreadMonitor periodically rescans a process's /proc/<pid>/task set
// for newly appeared tids and opens per-thread counter files for each one
// as it appears. It backs off exponentially from newThreadScanMinInterval
// up to newThreadScanMaxInterval while no new thread is found, and resets
// to the minimum interval the moment one is, so every thread created
// before process exit eventually receives its counter files without
// pinning a CPU core spinning on an idle target.
type NewThreadMonitor struct {
	set     *SelectionSet
	pid     int
	known   map[int]bool
	current time.Duration
}

// NewNewThreadMonitor creates a monitor for pid's threads, registered on
// loop. Threads that already exist when the monitor is created are recorded
// as known without opening anything for them; only tids that appear in later
// scans get counter files. The first rescan runs after
// newThreadScanMinInterval.
func NewNewThreadMonitor(loop *EventLoop, set *SelectionSet, pid int) (*NewThreadMonitor, error) {
	m := &NewThreadMonitor{
		set:     set,
		pid:     pid,
		known:   make(map[int]bool),
		current: newThreadScanMinInterval,
	}
	if tids, err := procfs.ThreadsOfProcess(pid); err == nil {
		for _, tid := range tids {
			m.known[tid] = true
		}
	}
	if err := loop.AddOneShotTimer(m.current, PriorityLow, m.scan(loop)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *NewThreadMonitor) scan(loop *EventLoop) loopCallback {
	return func() LoopAction {
		tids, err := procfs.ThreadsOfProcess(m.pid)
		if err != nil {
			// The process is gone; the liveness watchdog handles exit,
			// this monitor just stops rescheduling itself.
			return LoopContinue
		}
		var fresh []int
		for _, tid := range tids {
			if !m.known[tid] {
				m.known[tid] = true
				fresh = append(fresh, tid)
			}
		}
		if len(fresh) > 0 {
			// Partial open failures are expected here: a freshly
			// discovered tid may have already exited by the time we
			// try to open it.
			m.set.OpenEventFilesForThreads(fresh)
			m.current = newThreadScanMinInterval
		} else {
			m.current *= 2
			if m.current > newThreadScanMaxInterval {
				m.current = newThreadScanMaxInterval
			}
		}
		loop.AddOneShotTimer(m.current, PriorityLow, m.scan(loop))
		return LoopContinue
	}
}

// AddLivenessWatchdog registers a periodic probe of /proc/<tid> for every
// tid in tids; once none remain alive, it exits loop with a TargetGone
// error.
func AddLivenessWatchdog(loop *EventLoop, tids []int, interval time.Duration) error {
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

// AddStopDescriptor registers fd as a read event; its readability exits
// loop with a Cancelled error.
func AddStopDescriptor(loop *EventLoop, fd int) error {
	return loop.AddReadEvent(fd, PriorityHigh, func() LoopAction {
		var buf [1]byte
		unix.Read(fd, buf[:])
		loop.Exit(&Cancelled{Reason: "stop descriptor"})
		return LoopContinue
	})
}

// AddDurationTimer registers a one-shot timer that exits loop with a clean
// status after d elapses.
func AddDurationTimer(loop *EventLoop, d time.Duration) error {
	return loop.AddOneShotTimer(d, PriorityHigh, func() LoopAction {
		loop.Exit(nil)
		return LoopContinue
	})
}

// AddSignalHandlers binds SIGCHLD, SIGINT, SIGTERM, and SIGHUP to "exit the
// reactor", matching the graceful-shutdown signal set.
func AddSignalHandlers(loop *EventLoop) error {
	return loop.AddSignalEvent(
		[]unix.Signal{unix.SIGCHLD, unix.SIGINT, unix.SIGTERM, unix.SIGHUP},
		PriorityHigh,
		func() LoopAction {
			loop.Exit(&Cancelled{Reason: "signal"})
			return LoopContinue
		},
	)
}

// AddIntervalTimer registers a periodic counter-read-and-report timer. If
// intervalOnlyValues is set, each report's values are deltas against the
// previous snapshot rather than cumulative totals.
func AddIntervalTimer(loop *EventLoop, set *SelectionSet, s *Summariser, interval time.Duration, intervalOnlyValues bool, emit func([]Summary)) error {
	start := time.Now()
	return loop.AddPeriodicTimer(interval, func() LoopAction {
		infos, err := set.ReadCounters()
		if err != nil {
			loop.Exit(err)
			return LoopContinue
		}
		summaries := s.Summarize(infos, time.Since(start))
		if intervalOnlyValues {
			for i := range summaries {
				cumulative := uint64(summaries[i].Value)
				delta, err := s.Delta(summaries[i], cumulative)
				if err != nil {
					loop.Exit(err)
					return LoopContinue
				}
				summaries[i].Value = delta
			}
		}
		emit(summaries)
		return LoopContinue
	})
}
