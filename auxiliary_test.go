// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestAddDurationTimerExitsClean(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	if err := AddDurationTimer(loop, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := loop.Run(); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
}

func TestAddStopDescriptorExitsCancelled(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	if err := AddStopDescriptor(loop, int(r.Fd())); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		w.Write([]byte{1})
	}()

	err = loop.Run()
	if _, ok := err.(*Cancelled); !ok {
		t.Fatalf("Run() = %v (%T), want *Cancelled", err, err)
	}
}

func TestAddLivenessWatchdogExitsTargetGoneWhenNoTidsAlive(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	// A pid this large is never alive on a real system.
	if err := AddLivenessWatchdog(loop, []int{1 << 30}, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	err = loop.Run()
	if _, ok := err.(*TargetGone); !ok {
		t.Fatalf("Run() = %v (%T), want *TargetGone", err, err)
	}
}

func TestAddLivenessWatchdogNoTidsIsNoop(t *testing.T) {
	if err := AddLivenessWatchdog(nil, nil, time.Second); err != nil {
		t.Fatalf("AddLivenessWatchdog with no tids = %v, want nil", err)
	}
}

func TestAddSignalHandlersExitsCancelledOnSIGTERM(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	if err := AddSignalHandlers(loop); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		unix.Kill(os.Getpid(), unix.SIGTERM)
	}()

	err = loop.Run()
	if _, ok := err.(*Cancelled); !ok {
		t.Fatalf("Run() = %v (%T), want *Cancelled", err, err)
	}
}
