// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

// EventGroup is an ordered list of EventSelections the kernel schedules
// atomically: all selections in a group are counted simultaneously or not
// at all, and every CounterFile in a group shares one group-leader
// descriptor per (thread, cpu) cell.
type EventGroup struct {
	// Selections holds every event in this group, in add order. The
	// first selection is the group leader once opened.
	Selections []*EventSelection

	// CPUs, if non-empty, overrides the set's default cpu selection for
	// this group only.
	CPUs []int

	// SampleRate, when SampleRateSet is true, overrides the set's default
	// sample rate for every selection in this group.
	SampleRate    uint64
	SampleRateSet bool

	// leaders holds the group-leader CounterFile for every (thread, cpu)
	// cell opened for this group, keyed by cell index matching each
	// selection's counters slice.
	leaders []*CounterFile
}

// effectiveCPUs resolves the cpu set a group should open on, per the
// "group's own, else the first selection's PMU-pinned mask, else all online
// cpus" precedence.
func (g *EventGroup) effectiveCPUs(defaultCPUs []int) []int {
	if len(g.CPUs) > 0 {
		return g.CPUs
	}
	if len(g.Selections) > 0 && len(g.Selections[0].AllowedCPUs) > 0 {
		return g.Selections[0].AllowedCPUs
	}
	return defaultCPUs
}

// names returns the event names in this group, for uniqueness checks.
func (g *EventGroup) names() []string {
	names := make([]string, len(g.Selections))
	for i, sel := range g.Selections {
		names[i] = sel.Name
	}
	return names
}
