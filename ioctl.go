// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

// Perf file descriptor ioctls. See man 2 ioctl_perf_event.

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func ioctlEnable(fd int) error {
	return wrapIoctlError("PERF_EVENT_IOC_ENABLE", ioctlNoArg(fd, unix.PERF_EVENT_IOC_ENABLE))
}

func ioctlDisable(fd int) error {
	return wrapIoctlError("PERF_EVENT_IOC_DISABLE", ioctlNoArg(fd, unix.PERF_EVENT_IOC_DISABLE))
}

func ioctlReset(fd int) error {
	return wrapIoctlError("PERF_EVENT_IOC_RESET", ioctlNoArg(fd, unix.PERF_EVENT_IOC_RESET))
}

func ioctlRefresh(fd int, n int) error {
	return wrapIoctlError("PERF_EVENT_IOC_REFRESH", ioctlInt(fd, unix.PERF_EVENT_IOC_REFRESH, n))
}

func ioctlPeriod(fd int, period *uint64) error {
	err := ioctlPointer(fd, unix.PERF_EVENT_IOC_PERIOD, unsafe.Pointer(period))
	return wrapIoctlError("PERF_EVENT_IOC_PERIOD", err)
}

func ioctlSetOutput(fd int, outfd int) error {
	return wrapIoctlError("PERF_EVENT_IOC_SET_OUTPUT", ioctlInt(fd, unix.PERF_EVENT_IOC_SET_OUTPUT, outfd))
}

func ioctlSetFilter(fd int, filter string) error {
	cstr, err := unix.BytePtrFromString(filter)
	if err != nil {
		return err
	}
	ierr := ioctlPointer(fd, unix.PERF_EVENT_IOC_SET_FILTER, unsafe.Pointer(cstr))
	return wrapIoctlError("PERF_EVENT_IOC_SET_FILTER", ierr)
}

func ioctlID(fd int, id *uint64) error {
	err := ioctlPointer(fd, unix.PERF_EVENT_IOC_ID, unsafe.Pointer(id))
	return wrapIoctlError("PERF_EVENT_IOC_ID", err)
}

func ioctlSetBPF(fd int, progfd uint32) error {
	return wrapIoctlError("PERF_EVENT_IOC_SET_BPF", ioctlInt(fd, unix.PERF_EVENT_IOC_SET_BPF, int(progfd)))
}

func ioctlPauseOutput(fd int, pause int) error {
	return wrapIoctlError("PERF_EVENT_IOC_PAUSE_OUTPUT", ioctlInt(fd, unix.PERF_EVENT_IOC_PAUSE_OUTPUT, pause))
}

func ioctlQueryBPF(fd int, max uint32) ([]uint32, error) {
	// query_bpf_prog_ids is a struct { ids_len uint32; prog_cnt uint32; ids [max]uint32 }.
	buf := make([]uint32, 2+max)
	buf[0] = max
	err := ioctlPointer(fd, unix.PERF_EVENT_IOC_QUERY_BPF, unsafe.Pointer(&buf[0]))
	if err != nil {
		return nil, wrapIoctlError("PERF_EVENT_IOC_QUERY_BPF", err)
	}
	count := buf[1]
	if count > max {
		count = max
	}
	return append([]uint32(nil), buf[2:2+count]...), nil
}

func ioctlModifyAttributes(fd int, attr *unix.PerfEventAttr) error {
	err := ioctlPointer(fd, unix.PERF_EVENT_IOC_MODIFY_ATTRIBUTES, unsafe.Pointer(attr))
	return wrapIoctlError("PERF_EVENT_IOC_MODIFY_ATTRIBUTES", err)
}

func ioctlNoArg(fd, number int) error {
	return ioctlInt(fd, number, 0)
}

func ioctlInt(fd int, number int, arg int) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(number), uintptr(arg))
	if e != 0 {
		return e
	}
	return nil
}

func ioctlPointer(fd int, number int, arg unsafe.Pointer) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(number), uintptr(arg))
	if e != 0 {
		return e
	}
	return nil
}

func wrapIoctlError(ioctl string, err error) error {
	if err == nil {
		return nil
	}
	return &ioctlError{ioctl: ioctl, err: err}
}

type ioctlError struct {
	ioctl string
	err   error
}

func (e *ioctlError) Error() string {
	return fmt.Sprintf("%s: %v", e.ioctl, e.err)
}

func (e *ioctlError) Unwrap() error { return e.err }
