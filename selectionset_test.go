// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"errors"
	"testing"

	"github.com/simpleperf/coreperf/internal/eventcatalog"
)

type fakeCatalog map[string]eventcatalog.Descriptor

func (c fakeCatalog) Lookup(name string) (eventcatalog.Descriptor, bool) {
	d, ok := c[name]
	return d, ok
}

func (c fakeCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	return names
}

func testCatalog() fakeCatalog {
	return fakeCatalog{
		"cpu-cycles":   {Type: 0, Config: 0},
		"instructions": {Type: 0, Config: 1},
		"sched:sched_switch": {Type: 2, Config: 42, IsTracepoint: true},
	}
}

func TestAddEventGroupRejectsUnknown(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	_, err := set.AddEventGroup([]string{"not-a-real-event"}, true)
	if err == nil {
		t.Fatal("expected error for unknown event name with check=true")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v (%T), want *ConfigError, matching the duplicate-name case", err, err)
	}
}

func TestAddEventGroupRejectsDuplicateNames(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	if _, err := set.AddEventGroup([]string{"cpu-cycles"}, true); err != nil {
		t.Fatal(err)
	}
	if _, err := set.AddEventGroup([]string{"cpu-cycles"}, true); err == nil {
		t.Fatal("expected error for duplicate event name across groups")
	}
}

func TestAddEventGroupSetsSideBandOnlyOnFirstSelectionOfFirstGroup(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	g1, err := set.AddEventGroup([]string{"cpu-cycles", "instructions"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if !g1.Selections[0].Attr.Options.Mmap || !g1.Selections[0].Attr.Options.Comm {
		t.Fatal("first selection of first group must carry mmap=1, comm=1")
	}
	if g1.Selections[1].Attr.Options.Mmap || g1.Selections[1].Attr.Options.Comm {
		t.Fatal("second selection of first group must not carry side-band toggles")
	}
}

func TestAddEventGroupModifierExcludesKernelForUserOnly(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	g, err := set.AddEventGroup([]string{"cpu-cycles:u"}, true)
	if err != nil {
		t.Fatal(err)
	}
	attr := g.Selections[0].Attr
	if !attr.Options.ExcludeKernel || attr.Options.ExcludeUser {
		t.Fatalf("modifier 'u' should exclude kernel, include user: %+v", attr.Options)
	}
}

func TestAddCountersRequiresExactlyOneGroup(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	if err := set.AddCounters([]string{"instructions"}); err == nil {
		t.Fatal("expected error: add_counters with zero existing groups")
	}
	if _, err := set.AddEventGroup([]string{"cpu-cycles"}, true); err != nil {
		t.Fatal(err)
	}
	if err := set.AddCounters([]string{"instructions"}); err != nil {
		t.Fatal(err)
	}
	if _, err := set.AddEventGroup([]string{}, true); err == nil {
		t.Fatal("expected error: empty group")
	}
}

func TestSetTracepointFilterRequiresTracepointEvent(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	if err := set.SetTracepointFilter("foo"); err == nil {
		t.Fatal("expected error: no tracepoint event added yet")
	}
	if _, err := set.AddEventGroup([]string{"sched:sched_switch"}, true); err != nil {
		t.Fatal(err)
	}
	if err := set.SetTracepointFilter("common_pid == 1234"); err != nil {
		t.Fatal(err)
	}
}

func TestUnionSampleTypeAppliesAcrossGroups(t *testing.T) {
	set := NewSelectionSet(testCatalog())
	set.EnableFPCallchain()
	if _, err := set.AddEventGroup([]string{"cpu-cycles"}, true); err != nil {
		t.Fatal(err)
	}
	set.branchSamplingOn = true
	if _, err := set.AddEventGroup([]string{"instructions"}, true); err != nil {
		t.Fatal(err)
	}
	set.unionSampleType()
	for _, g := range set.groups {
		for _, sel := range g.Selections {
			if !sel.Attr.SampleFormat.Callchain {
				t.Fatalf("expected union'd Callchain bit on every selection, got %+v", sel.Attr.SampleFormat)
			}
		}
	}
}
