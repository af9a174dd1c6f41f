// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// LoopAction is the return value of a reactor callback: whether the loop
// should keep running or terminate with an error status.
type LoopAction int

const (
	// LoopContinue keeps the reactor running.
	LoopContinue LoopAction = iota
	// LoopFail terminates the reactor with an error status.
	LoopFail
)

// Priority orders callback delivery within one wake-up pass: all
// PriorityHigh callbacks with pending events fire before any PriorityLow
// callback. Order among callbacks at the same priority is unspecified.
type Priority int

const (
	PriorityHigh Priority = 0
	PriorityLow  Priority = 1
)

type loopCallback func() LoopAction

type eventSource struct {
	fd       int
	priority Priority
	cb       loopCallback
	disabled bool
	// closeFn releases any resource (timerfd, signalfd) backing this
	// source; nil for caller-owned descriptors such as the stop fd.
	closeFn func()
}

// EventLoop is a single-threaded cooperative reactor over file-descriptor
// readability, signals, and timers. Only one Run may execute at a time; the
// loop exits when a callback invokes Exit, or returns LoopFail.
type EventLoop struct {
	epfd int

	mu      sync.Mutex
	sources map[int]*eventSource
	running bool

	exitErr error
	exitCh  chan struct{}
}

// NewEventLoop creates an empty reactor backed by epoll(7).
func NewEventLoop() (*EventLoop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &EventLoop{
		epfd:    epfd,
		sources: make(map[int]*eventSource),
		exitCh:  make(chan struct{}),
	}, nil
}

func (l *EventLoop) addSource(fd int, events uint32, priority Priority, cb loopCallback, closeFn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := &unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return errors.Wrap(err, "epoll_ctl add")
	}
	l.sources[fd] = &eventSource{fd: fd, priority: priority, cb: cb, closeFn: closeFn}
	return nil
}

// AddReadEvent registers cb to run when fd becomes readable.
func (l *EventLoop) AddReadEvent(fd int, priority Priority, cb loopCallback) error {
	return l.addSource(fd, unix.EPOLLIN, priority, cb, nil)
}

// AddWriteEvent registers cb to run when fd becomes writable.
func (l *EventLoop) AddWriteEvent(fd int, priority Priority, cb loopCallback) error {
	return l.addSource(fd, unix.EPOLLOUT, priority, cb, nil)
}

// AddSignalEvent registers cb to run at most once per receipt of any signal
// in sigs. Multiple calls with overlapping signal sets are not supported;
// each signal must be claimed by exactly one AddSignalEvent call.
func (l *EventLoop) AddSignalEvent(sigs []unix.Signal, priority Priority, cb loopCallback) error {
	var mask unix.Sigset_t
	wordBits := uint(unsafe.Sizeof(mask.Val[0])) * 8
	for _, s := range sigs {
		bit := uint(s) - 1
		mask.Val[bit/wordBits] |= 1 << (bit % wordBits)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return errors.Wrap(err, "pthread_sigmask")
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return errors.Wrap(err, "signalfd")
	}
	drain := func() {
		var info unix.SignalfdSiginfo
		buf := (*[unsafe.Sizeof(info)]byte)(unsafe.Pointer(&info))[:]
		unix.Read(fd, buf)
	}
	wrapped := func() LoopAction {
		drain()
		return cb()
	}
	if err := l.addSource(fd, unix.EPOLLIN, priority, wrapped, func() { unix.Close(fd) }); err != nil {
		unix.Close(fd)
		return err
	}
	return nil
}

// AddOneShotTimer registers cb to run once after d elapses.
func (l *EventLoop) AddOneShotTimer(d time.Duration, priority Priority, cb loopCallback) error {
	return l.addTimer(d, 0, priority, cb)
}

// AddPeriodicTimer registers cb to run every d.
func (l *EventLoop) AddPeriodicTimer(d time.Duration, cb loopCallback) error {
	return l.addTimer(d, d, PriorityLow, cb)
}

func (l *EventLoop) addTimer(initial, interval time.Duration, priority Priority, cb loopCallback) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return errors.Wrap(err, "timerfd_create")
	}
	spec := &unix.ItimerSpec{
		Value:    durationToTimespec(initial),
		Interval: durationToTimespec(interval),
	}
	if err := unix.TimerfdSettime(fd, 0, spec, nil); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "timerfd_settime")
	}
	drain := func() {
		var buf [8]byte
		unix.Read(fd, buf[:])
	}
	wrapped := func() LoopAction {
		drain()
		return cb()
	}
	if err := l.addSource(fd, unix.EPOLLIN, priority, wrapped, func() { unix.Close(fd) }); err != nil {
		unix.Close(fd)
		return err
	}
	return nil
}

func durationToTimespec(d time.Duration) unix.Timespec {
	if d <= 0 {
		// A zero Value disarms a timerfd; encode "fire immediately" as
		// the smallest representable nonzero duration instead.
		d = time.Nanosecond
	}
	sec := d / time.Second
	nsec := d - sec*time.Second
	return unix.Timespec{Sec: int64(sec), Nsec: int64(nsec)}
}

// DisableEvent suspends delivery for fd without removing its registration.
func (l *EventLoop) DisableEvent(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.sources[fd]
	if !ok {
		return errors.Errorf("simpleperf: no such event source: fd %d", fd)
	}
	src.disabled = true
	return nil
}

// EnableEvent resumes delivery for a previously disabled fd.
func (l *EventLoop) EnableEvent(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.sources[fd]
	if !ok {
		return errors.Errorf("simpleperf: no such event source: fd %d", fd)
	}
	src.disabled = false
	return nil
}

// DelEvent removes fd's registration, releasing any resource the loop
// allocated for it (signalfd, timerfd). The fd itself becomes invalid for
// further use with this loop.
func (l *EventLoop) DelEvent(fd int) error {
	l.mu.Lock()
	src, ok := l.sources[fd]
	if !ok {
		l.mu.Unlock()
		return errors.Errorf("simpleperf: no such event source: fd %d", fd)
	}
	delete(l.sources, fd)
	l.mu.Unlock()

	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if src.closeFn != nil {
		src.closeFn()
	}
	return nil
}

// Exit terminates the loop after the current wake-up pass, with err as the
// error Run returns (nil for a clean exit).
func (l *EventLoop) Exit(err error) {
	l.mu.Lock()
	if l.exitErr == nil {
		l.exitErr = err
		if l.exitErr == nil {
			l.exitErr = errClean
		}
	}
	l.mu.Unlock()
	select {
	case <-l.exitCh:
	default:
		close(l.exitCh)
	}
}

// errClean is a private sentinel distinguishing "Exit(nil) was called" from
// "Exit was never called", so Run can return nil in the former case.
var errClean = errors.New("simpleperf: clean exit")

// Run drives the reactor until a callback calls Exit or returns LoopFail.
func (l *EventLoop) Run() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("simpleperf: event loop already running")
	}
	l.running = true
	l.exitErr = nil
	l.exitCh = make(chan struct{})
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	events := make([]unix.EpollEvent, 64)
	for {
		select {
		case <-l.exitCh:
			if l.exitErr == errClean {
				return nil
			}
			return l.exitErr
		default:
		}

		n, err := unix.EpollWait(l.epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "epoll_wait")
		}
		ready := make([]*eventSource, 0, n)
		l.mu.Lock()
		for i := 0; i < n; i++ {
			src, ok := l.sources[int(events[i].Fd)]
			if ok && !src.disabled {
				ready = append(ready, src)
			}
		}
		l.mu.Unlock()

		for _, pass := range []Priority{PriorityHigh, PriorityLow} {
			for _, src := range ready {
				if src.priority != pass {
					continue
				}
				if src.cb() == LoopFail {
					l.Exit(errors.New("simpleperf: event loop callback failed"))
				}
			}
		}
	}
}

// Close releases the epoll instance and every registered timer/signal fd.
func (l *EventLoop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for fd, src := range l.sources {
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if src.closeFn != nil {
			src.closeFn()
		}
	}
	l.sources = make(map[int]*eventSource)
	return unix.Close(l.epfd)
}
