// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

// atomRemap adjusts a raw event's perf_event_attr.type for x86 hybrid
// (Intel Atom + Core) systems when opening on one of the Atom cpus: those
// cpus expose a second, "cpu_atom"-named PMU with its own numeric type, and
// a raw event opened with the generic PERF_TYPE_RAW type on an Atom cpu
// counts the wrong thing. Detection is by cpu membership in the PMU's
// pinned cpu mask, per event_selection_set.cpp's cpu_types_ table. A no-op
// on every architecture but amd64, and a no-op there too on non-hybrid
// hardware, where no "cpu_atom" PMU exists to remap to.
func atomRemap(attr *EventAttr, cpu int) {
	remapForAtomCPU(attr, cpu)
}
