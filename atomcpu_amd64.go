// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build amd64

package simpleperf

import (
	"sync"

	"github.com/simpleperf/coreperf/internal/procfs"
)

var atomPMU = struct {
	once sync.Once
	pmu  procfs.PMU
	ok   bool
}{}

func lookupAtomPMU() (procfs.PMU, bool) {
	atomPMU.once.Do(func() {
		pmu, err := procfs.LookupPMU("cpu_atom")
		if err != nil {
			return
		}
		atomPMU.pmu, atomPMU.ok = pmu, true
	})
	return atomPMU.pmu, atomPMU.ok
}

func remapForAtomCPU(attr *EventAttr, cpu int) {
	if attr.Type != RawEvent {
		return
	}
	pmu, ok := lookupAtomPMU()
	if !ok {
		return
	}
	for _, c := range pmu.CPUs {
		if c == cpu {
			attr.Type = EventType(pmu.Type)
			return
		}
	}
}
