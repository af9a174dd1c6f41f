// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eventcatalog is the injectable, process-wide event-type catalog:
// a name such as "cpu-cycles", "cache-misses", or "sched:sched_switch"
// resolves to the numeric (type, config) pair the kernel's counter-create
// syscall expects. The catalog is built once, from a static table plus a
// scan of /sys/bus/event_source/devices, resolves tracepoint names on demand
// from /sys/kernel/tracing/events, and is handed to a SelectionSet as a dependency rather than reached for as a
// global, per the injectable-service design this package exists to satisfy.
package eventcatalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/simpleperf/coreperf/internal/procfs"
)

// Descriptor is the numeric event reference a Catalog resolves a name to.
// It deliberately mirrors only the fields a counter-create call needs, so
// this package never has to import the root package's EventAttr type.
type Descriptor struct {
	Type   uint32
	Config uint64
	// Config1 is a second config word (breakpoint address, kprobe
	// function) for events that need one. The default catalog leaves it
	// zero for every event it resolves.
	Config1 uint64
	// AllowedCPUs is the PMU's pinned cpu mask, or nil if the event may be
	// opened on any online cpu.
	AllowedCPUs []int
	// IsTracepoint marks events whose filter string may be set via
	// set_tracepoint_filter.
	IsTracepoint bool
	// IsAUXTrace marks events that generate an AUX ring (ETM/coresight
	// style trace PMUs), the only kind address-range filters apply to.
	IsAUXTrace bool
}

// Catalog resolves event names to kernel-facing descriptors.
type Catalog interface {
	// Lookup resolves name (without any ":modifier" suffix) to a
	// Descriptor. ok is false if the name is not known to this catalog.
	Lookup(name string) (Descriptor, bool)

	// Names lists event names this catalog can resolve, for tab-completion
	// and "unknown event, did you mean" diagnostics. An implementation may
	// resolve names it does not list.
	Names() []string
}

// perf_type_id values, mirrored here rather than imported from the root
// package to avoid a dependency cycle (the root package imports this
// package to build EventAttrs from catalog lookups).
const (
	typeHardware   uint32 = 0
	typeSoftware   uint32 = 1
	typeTracepoint uint32 = 2
	typeHWCache    uint32 = 3
	typeRaw        uint32 = 4
)

// Hardware generic counters (PERF_COUNT_HW_*).
var hardwareEvents = map[string]uint64{
	"cpu-cycles":              0,
	"cycles":                  0,
	"instructions":            1,
	"cache-references":        2,
	"cache-misses":            3,
	"branch-instructions":     4,
	"branches":                4,
	"branch-misses":           5,
	"bus-cycles":              6,
	"stalled-cycles-frontend": 7,
	"idle-cycles-frontend":    7,
	"stalled-cycles-backend":  8,
	"idle-cycles-backend":     8,
	"ref-cycles":              9,
}

// Software generic counters (PERF_COUNT_SW_*).
var softwareEvents = map[string]uint64{
	"cpu-clock":        0,
	"task-clock":       1,
	"page-faults":      2,
	"faults":           2,
	"context-switches": 3,
	"cs":               3,
	"cpu-migrations":   4,
	"migrations":       4,
	"minor-faults":     5,
	"major-faults":     6,
	"alignment-faults": 7,
	"emulation-faults":  8,
	"dummy":            9,
	"bpf-output":       10,
}

// cacheOps and cacheResults encode PERF_COUNT_HW_CACHE_OP_* and
// PERF_COUNT_HW_CACHE_RESULT_* for the hyphenated cache event names
// ("l1d-load-misses" etc).
var cacheIDs = map[string]uint64{
	"l1d": 0, "l1i": 1, "ll": 2, "dtlb": 3, "itlb": 4, "branch": 5, "node": 6,
}
var cacheOps = map[string]uint64{"load": 0, "store": 1, "prefetch": 2}
var cacheResults = map[string]uint64{"refs": 0, "misses": 1}

func lookupCacheEvent(name string) (Descriptor, bool) {
	parts := strings.Split(name, "-")
	if len(parts) < 2 {
		return Descriptor{}, false
	}
	id, ok := cacheIDs[parts[0]]
	if !ok {
		return Descriptor{}, false
	}
	op := uint64(0) // load is the default op when omitted, e.g. "l1d-misses"
	resultPart := parts[len(parts)-1]
	if len(parts) >= 3 {
		if o, ok := cacheOps[parts[1]]; ok {
			op = o
		} else {
			return Descriptor{}, false
		}
	}
	result, ok := cacheResults[resultPart]
	if !ok {
		return Descriptor{}, false
	}
	config := id | (op << 8) | (result << 16)
	return Descriptor{Type: typeHWCache, Config: config}, true
}

// staticCatalog is the default Catalog: the generic hardware/software/cache
// tables plus the dynamic PMUs NewDefault scans once; tracepoints are read
// from tracingRoot on each lookup.
type staticCatalog struct {
	pmus        map[string]procfs.PMU
	tracingRoot string
}

// NewDefault builds the default catalog, probing /sys for dynamic PMUs.
// Failure to probe dynamic PMUs is not fatal: the generic tables still
// resolve the overwhelming majority of event names used in practice.
func NewDefault() Catalog {
	c := &staticCatalog{
		pmus:        make(map[string]procfs.PMU),
		tracingRoot: tracingEventsRoot(),
	}
	names, err := procfs.ListPMUs()
	if err != nil {
		return c
	}
	for _, name := range names {
		pmu, err := procfs.LookupPMU(name)
		if err != nil {
			continue
		}
		c.pmus[name] = pmu
	}
	return c
}

func tracingEventsRoot() string {
	for _, candidate := range []string{
		"/sys/kernel/tracing/events",
		"/sys/kernel/debug/tracing/events",
	} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "/sys/kernel/tracing/events"
}

func (c *staticCatalog) Lookup(name string) (Descriptor, bool) {
	if cfg, ok := hardwareEvents[name]; ok {
		return Descriptor{Type: typeHardware, Config: cfg}, true
	}
	if cfg, ok := softwareEvents[name]; ok {
		return Descriptor{Type: typeSoftware, Config: cfg}, true
	}
	if d, ok := lookupCacheEvent(name); ok {
		return d, true
	}
	if cat, event, ok := strings.Cut(name, ":"); ok {
		if d, ok := c.lookupTracepoint(cat, event); ok {
			return d, true
		}
		if pmu, ok := c.pmus[cat]; ok {
			if cfg, err := strconv.ParseUint(event, 0, 64); err == nil {
				return Descriptor{
					Type:        pmu.Type,
					Config:      cfg,
					AllowedCPUs: pmu.CPUs,
					IsAUXTrace:  strings.Contains(pmu.Name, "etm"),
				}, true
			}
		}
	}
	if strings.HasPrefix(name, "r") {
		if cfg, err := strconv.ParseUint(name[1:], 16, 64); err == nil {
			return Descriptor{Type: typeRaw, Config: cfg}, true
		}
	}
	return Descriptor{}, false
}

func (c *staticCatalog) lookupTracepoint(category, event string) (Descriptor, bool) {
	idPath := filepath.Join(c.tracingRoot, category, event, "id")
	content, err := os.ReadFile(idPath)
	if err != nil {
		return Descriptor{}, false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(content)), 10, 64)
	if err != nil {
		return Descriptor{}, false
	}
	return Descriptor{Type: typeTracepoint, Config: id, IsTracepoint: true}, true
}

// Names lists the generic hardware and software event names and the names
// of the dynamic PMUs found by NewDefault. Cache, tracepoint, raw and
// "pmu:config" names resolve through Lookup but are not listed.
func (c *staticCatalog) Names() []string {
	names := make([]string, 0, len(hardwareEvents)+len(softwareEvents)+len(c.pmus))
	for n := range hardwareEvents {
		names = append(names, n)
	}
	for n := range softwareEvents {
		names = append(names, n)
	}
	for n := range c.pmus {
		names = append(names, n)
	}
	return names
}

// ErrUnknownEvent is wrapped with the offending name by callers that need a
// typed sentinel for "event name not found in catalog".
var ErrUnknownEvent = errors.New("unknown event name")

// Unknown formats a message for an unresolved name. This package cannot
// return the root package's *ConfigError directly without an import cycle
// (the root package imports eventcatalog to build EventAttrs from catalog
// lookups); callers in the same ConfigError taxonomy as "duplicate event
// name" wrap this error's text into a *ConfigError themselves.
func Unknown(name string) error {
	return errors.Wrapf(ErrUnknownEvent, "%q", name)
}
