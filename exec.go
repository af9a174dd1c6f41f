// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"fmt"
	"os/exec"
	"syscall"
)

// command runs cmd under ptrace, stopping it at the post-exec trap so
// setupCounters can open per-thread counter files against the tracee's pid
// before any of its instructions run, then detaches and lets it continue.
// This is how "simpleperf stat -- workload" and "simpleperf record --
// workload" launch and immediately attach to a target process.
func command(cmd *exec.Cmd, setupCounters func() error) error {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Ptrace = true

	if err := cmd.Start(); err != nil {
		return err
	}

	state, err := cmd.Process.Wait()
	if err != nil {
		_ = cmd.Process.Kill()
		return err
	}
	if state.Sys().(syscall.WaitStatus).TrapCause() == -1 {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("simpleperf: tracee did not trap as expected")
	}

	// Unusual error flow: whether or not setupCounters succeeds, the
	// tracee must be detached and waited on to avoid leaking a process.
	errCounters := setupCounters()

	if err := syscall.PtraceDetach(cmd.Process.Pid); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	err = cmd.Wait()
	if errCounters != nil {
		return errCounters
	}
	return err
}

// RunUnderPtrace starts cmd under ptrace, calls setup with the tracee's pid
// once it has stopped at its post-exec trap, then detaches and blocks until
// the tracee exits. Unlike LaunchAndCount, setup is free to register the
// tracee with an EventLoop for concurrent sample reading rather than only
// reading a final counter snapshot; the record subcommand uses this to
// overlap sampling with the workload's run instead of only counting it.
func RunUnderPtrace(cmd *exec.Cmd, setup func(pid int) error) error {
	return command(cmd, func() error {
		return setup(cmd.Process.Pid)
	})
}

// LaunchAndCount starts cmd under ptrace, opens set's event groups against
// the tracee's pid once it has stopped at its post-exec trap, resumes it,
// waits for it to exit, then returns a final read of every counter. This is
// the per-process counting mode of the stat command: the workload to
// measure is the target's entire lifetime, from just after exec to exit.
func LaunchAndCount(set *SelectionSet, cmd *exec.Cmd, cpu int) ([]CountersInfo, error) {
	if cpu != AnyCPU {
		set.SetCPUsForNewEvents([]int{cpu})
	}
	err := command(cmd, func() error {
		return set.OpenEventFilesForThreads([]int{cmd.Process.Pid})
	})
	if err != nil {
		return nil, err
	}
	defer set.CloseEventFiles()
	return set.ReadCounters()
}
