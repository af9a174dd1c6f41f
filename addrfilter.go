// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import "fmt"

// AddrFilterKind is the ETM/AUX address-range filter verb, matching the
// kernel's PMU_FORMAT_ATTR filter grammar.
type AddrFilterKind string

const (
	AddrFilterRange     AddrFilterKind = "filter"
	AddrFilterStart     AddrFilterKind = "start"
	AddrFilterStop      AddrFilterKind = "stop"
	AddrFilterTraceStop AddrFilterKind = "tracestop"
)

// AddrFilter is one address-range filter entry attached to an AUX
// trace-generating event (ETM/coresight), restricting which regions of the
// target's address space the hardware tracer actually records. This repo
// never decodes the resulting AUX trace; the plumbing exists so a caller
// that does decode it elsewhere can still configure the filter here.
type AddrFilter struct {
	Kind       AddrFilterKind
	Start, Len uint64
	// File, if non-empty, is resolved by the kernel relative to this
	// binary's load address rather than an absolute address.
	File string
}

func (f AddrFilter) String() string {
	if f.File != "" {
		return fmt.Sprintf("%s 0x%x/0x%x@%s", f.Kind, f.Start, f.Len, f.File)
	}
	return fmt.Sprintf("%s 0x%x/0x%x", f.Kind, f.Start, f.Len)
}

// AddAddrFilter appends an address-range filter to the most recently added
// AUX trace-generating event. Fails if no such event has been added yet;
// address filters have no meaning without an AUX ring to apply them to.
func (s *SelectionSet) AddAddrFilter(f AddrFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auxTarget == nil {
		return &ConfigError{Reason: "add_addr_filter with no aux trace event added"}
	}
	s.auxTarget.AddrFilters = append(s.auxTarget.AddrFilters, f)
	return nil
}

// addrFilterString joins every filter attached to sel into the single
// comma-separated string the kernel's PERF_EVENT_IOC_SET_FILTER ioctl
// expects, or "" if none were configured.
func addrFilterString(sel *EventSelection) string {
	if len(sel.AddrFilters) == 0 {
		return ""
	}
	s := ""
	for i, f := range sel.AddrFilters {
		if i > 0 {
			s += ","
		}
		s += f.String()
	}
	return s
}
