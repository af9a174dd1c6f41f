// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package procfs reads the /proc and /sys surfaces simpleperf needs to
// enumerate targets and probe kernel capabilities: online CPUs, per-process
// thread sets, kernel version, the perf_event_open rlimit, and PMU metadata
// under /sys/bus/event_source/devices.
//
// This is the Go-native reimplementation of the environment probes a
// profiler written against Android's base library would get from
// libbase/liblog; there is no cgo dependency and no Android-only path here,
// matching the requirement that the Linux-only surface be fully operational
// on its own.
package procfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// GetOnlineCPUs parses /sys/devices/system/cpu/online, which lists CPU
// numbers as a comma-separated list of ranges, e.g. "0-3,5,7-8".
func GetOnlineCPUs() ([]int, error) {
	return readCPUList("/sys/devices/system/cpu/online")
}

func readCPUList(path string) ([]int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return parseCPUList(strings.TrimSpace(string(content)))
}

func parseCPUList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var cpus []int
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(lo)
			if err != nil {
				return nil, errors.Wrapf(err, "parse cpu range %q", part)
			}
			end, err := strconv.Atoi(hi)
			if err != nil {
				return nil, errors.Wrapf(err, "parse cpu range %q", part)
			}
			for c := start; c <= end; c++ {
				cpus = append(cpus, c)
			}
		} else {
			c, err := strconv.Atoi(part)
			if err != nil {
				return nil, errors.Wrapf(err, "parse cpu %q", part)
			}
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}

// ThreadsOfProcess enumerates the thread ids of pid by reading
// /proc/<pid>/task.
func ThreadsOfProcess(pid int) ([]int, error) {
	dir := filepath.Join("/proc", strconv.Itoa(pid), "task")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", dir)
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// ThreadName reads the command name of tid from /proc/<tid>/comm.
func ThreadName(tid int) (string, error) {
	path := filepath.Join("/proc", strconv.Itoa(tid), "comm")
	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	return strings.TrimSpace(string(content)), nil
}

// IsThreadAlive reports whether tid is still a live thread, by checking for
// the existence of /proc/<tid>.
func IsThreadAlive(tid int) bool {
	_, err := os.Stat(filepath.Join("/proc", strconv.Itoa(tid)))
	return err == nil
}

// KernelVersion reports the running kernel's release string, as returned by
// uname(2), e.g. "6.6.30-generic".
func KernelVersion() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", errors.Wrap(err, "uname")
	}
	end := 0
	for end < len(uts.Release) && uts.Release[end] != 0 {
		end++
	}
	b := make([]byte, end)
	for i := 0; i < end; i++ {
		b[i] = byte(uts.Release[i])
	}
	return string(b), nil
}

// ParanoidLevel reads /proc/sys/kernel/perf_event_paranoid. Lower values
// grant broader access to performance monitoring; -1 means unrestricted.
// A missing file (some hardened kernels remove it entirely) is reported as
// level 3, the most restrictive documented value, so callers fail closed.
func ParanoidLevel() (int, error) {
	content, err := os.ReadFile("/proc/sys/kernel/perf_event_paranoid")
	if err != nil {
		if os.IsNotExist(err) {
			return 3, nil
		}
		return 0, errors.Wrap(err, "read perf_event_paranoid")
	}
	level, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, errors.Wrap(err, "parse perf_event_paranoid")
	}
	return level, nil
}

// RaiseFileLimit raises the process's RLIMIT_NOFILE soft limit to at least
// want, up to the hard limit. Opening events scales as
// events × threads × cpus, so callers with wide target matrices should call
// this before OpenEventFiles.
func RaiseFileLimit(want uint64) error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return errors.Wrap(err, "getrlimit")
	}
	if rlim.Cur >= want {
		return nil
	}
	newCur := want
	if rlim.Max != unix.RLIM_INFINITY && newCur > rlim.Max {
		newCur = rlim.Max
	}
	rlim.Cur = newCur
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return errors.Wrap(err, "setrlimit")
	}
	return nil
}

// PMU describes the sysfs metadata for a dynamic PMU registered under
// /sys/bus/event_source/devices/<name>.
type PMU struct {
	Name string
	Type uint32
	// CPUs is the PMU's pinned CPU mask, or nil if the PMU is not
	// CPU-pinned (in which case events may be opened on any online CPU).
	CPUs []int
}

// LookupPMU reads a dynamic PMU's type and, if present, its cpumask.
func LookupPMU(name string) (PMU, error) {
	base := filepath.Join("/sys/bus/event_source/devices", name)
	typeContent, err := os.ReadFile(filepath.Join(base, "type"))
	if err != nil {
		return PMU{}, errors.Wrapf(err, "read %s type", name)
	}
	typeVal, err := strconv.ParseUint(strings.TrimSpace(string(typeContent)), 10, 32)
	if err != nil {
		return PMU{}, errors.Wrapf(err, "parse %s type", name)
	}
	pmu := PMU{Name: name, Type: uint32(typeVal)}
	cpumaskPath := filepath.Join(base, "cpumask")
	if content, err := os.ReadFile(cpumaskPath); err == nil {
		cpus, err := parseCPUList(strings.TrimSpace(string(content)))
		if err != nil {
			return PMU{}, errors.Wrapf(err, "parse %s cpumask", name)
		}
		pmu.CPUs = cpus
	}
	return pmu, nil
}

// ListPMUs enumerates every dynamic PMU registered under
// /sys/bus/event_source/devices.
func ListPMUs() ([]string, error) {
	entries, err := os.ReadDir("/sys/bus/event_source/devices")
	if err != nil {
		return nil, errors.Wrap(err, "read event_source devices")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
