// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf_test

import (
	"os/exec"
	"testing"

	"github.com/simpleperf/coreperf"
	"github.com/simpleperf/coreperf/internal/eventcatalog"
)

func TestLaunchAndCount(t *testing.T) {
	cmd := exec.Command("echo", "hello world")

	set := simpleperf.NewSelectionSet(eventcatalog.NewDefault())
	if _, err := set.AddEventGroup([]string{"instructions"}, true); err != nil {
		t.Fatal(err)
	}

	infos, err := simpleperf.LaunchAndCount(set, cmd, simpleperf.AnyCPU)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || len(infos[0].Readings) == 0 {
		t.Fatalf("expected one event with at least one reading, got %+v", infos)
	}
	t.Logf("instructions = %d", infos[0].Readings[0].Count.Value)
}
