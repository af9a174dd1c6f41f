// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import "strings"

// EventSelection is one selected event within a SelectionSet: its kernel
// attribute record, display name and modifier, the cpu set it is allowed to
// run on, an optional tracepoint filter string, and the CounterFiles opened
// for it, one per (thread, cpu) cell of the active target matrix.
type EventSelection struct {
	// Name is the event name as given to add_event_group, without any
	// ":modifier" suffix, e.g. "cpu-cycles".
	Name string

	// Modifier is the trailing "u"/"k"/... string, or "" if none was
	// given.
	Modifier string

	// Attr is the kernel-facing descriptor built from Name by the event
	// catalog, then mutated uniformly by SelectionSet's global mutators.
	Attr EventAttr

	// AllowedCPUs restricts this selection to a PMU's pinned cpu mask.
	// Nil means the event may be opened on any online cpu.
	AllowedCPUs []int

	// TracepointFilter is the ioctl filter string applied after open, if
	// this selection is a tracepoint event.
	TracepointFilter string

	// IsCounterOnly events are opened with a sentinel sample period so
	// they never themselves overflow; their value is only ever read out
	// as part of another event's grouped read. Set by add_counters.
	IsCounterOnly bool

	// IsAUXTrace marks an ETM/coresight-style event, the only kind
	// address-range filters configured via AddAddrFilter apply to.
	IsAUXTrace bool

	// AddrFilters is the ordered list of address-range filter entries
	// attached to this selection, applied after open alongside any
	// tracepoint filter.
	AddrFilters []AddrFilter

	// counters holds one CounterFile per (thread, cpu) cell successfully
	// opened for this selection.
	counters []*CounterFile
}

// modifierChars are the only characters splitEventModifier recognizes as a
// trailing modifier suffix.
const modifierChars = "ukh"

// splitEventModifier splits "event:modifier" into its two parts. Event names
// such as tracepoints ("sched:sched_switch") are themselves colon-separated,
// so the substring after the last colon is only treated as a modifier if it
// consists entirely of recognized modifier characters; otherwise the whole
// spec is the event name and the modifier is empty.
func splitEventModifier(spec string) (name, modifier string) {
	i := strings.LastIndex(spec, ":")
	if i < 0 {
		return spec, ""
	}
	suffix := spec[i+1:]
	if suffix == "" || strings.Trim(suffix, modifierChars) != "" {
		return spec, ""
	}
	return spec[:i], suffix
}

// applyModifier applies the u/k/h modifier characters to attr's
// exclude-user/kernel/hypervisor flags. An empty modifier leaves attr
// unrestricted (both user and kernel space counted).
func applyModifier(attr *EventAttr, modifier string) error {
	if modifier == "" {
		return nil
	}
	var excludeUser, excludeKernel, excludeHV = true, true, true
	for _, c := range modifier {
		switch c {
		case 'u':
			excludeUser = false
		case 'k':
			excludeKernel = false
		case 'h':
			excludeHV = false
		default:
			return &ConfigError{Reason: "unknown modifier character '" + string(c) + "'"}
		}
	}
	attr.Options.ExcludeUser = excludeUser
	attr.Options.ExcludeKernel = excludeKernel
	attr.Options.ExcludeHypervisor = excludeHV
	return nil
}

// CounterFiles returns the CounterFiles opened for this selection. The
// returned slice must not be mutated by the caller.
func (sel *EventSelection) CounterFiles() []*CounterFile {
	return sel.counters
}
