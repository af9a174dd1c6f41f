// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"errors"
	"testing"
	"time"
)

func TestEventLoopOneShotTimerExits(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	fired := false
	if err := loop.AddOneShotTimer(10*time.Millisecond, PriorityHigh, func() LoopAction {
		fired = true
		loop.Exit(nil)
		return LoopContinue
	}); err != nil {
		t.Fatal(err)
	}

	if err := loop.Run(); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if !fired {
		t.Fatal("timer callback never fired")
	}
}

func TestEventLoopPropagatesCallbackError(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	if err := loop.AddOneShotTimer(5*time.Millisecond, PriorityHigh, func() LoopAction {
		return LoopFail
	}); err != nil {
		t.Fatal(err)
	}

	if err := loop.Run(); err == nil {
		t.Fatal("expected Run() to return an error after LoopFail")
	}
}

func TestEventLoopExitWithCustomError(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	wantErr := errors.New("boom")
	if err := loop.AddOneShotTimer(5*time.Millisecond, PriorityHigh, func() LoopAction {
		loop.Exit(wantErr)
		return LoopContinue
	}); err != nil {
		t.Fatal(err)
	}

	if err := loop.Run(); err != wantErr {
		t.Fatalf("Run() = %v, want %v", err, wantErr)
	}
}

func TestEventLoopHighPriorityBeforeLow(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	var order []string
	if err := loop.AddOneShotTimer(5*time.Millisecond, PriorityLow, func() LoopAction {
		order = append(order, "low")
		return LoopContinue
	}); err != nil {
		t.Fatal(err)
	}
	if err := loop.AddOneShotTimer(5*time.Millisecond, PriorityHigh, func() LoopAction {
		order = append(order, "high")
		loop.Exit(nil)
		return LoopContinue
	}); err != nil {
		t.Fatal(err)
	}

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	if len(order) < 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("dispatch order = %v, want high before low", order)
	}
}

func TestEventLoopRejectsConcurrentRun(t *testing.T) {
	loop, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Close()

	done := make(chan struct{})
	if err := loop.AddOneShotTimer(50*time.Millisecond, PriorityHigh, func() LoopAction {
		loop.Exit(nil)
		return LoopContinue
	}); err != nil {
		t.Fatal(err)
	}
	go func() {
		loop.Run()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	if err := loop.Run(); err == nil {
		t.Fatal("expected a second concurrent Run() to fail")
	}
	<-done
}
