// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// callChainConfig selects none/fp/dwarf(stack_size) the way spec.md §6.3
// enumerates it for a scripted invocation's config file.
type callChainConfig struct {
	Mode      string `yaml:"mode"`       // "none" (default), "fp", "dwarf"
	StackSize uint32 `yaml:"stack_size"` // only meaningful for "dwarf"
}

// config holds the settings a "-f config.yaml" invocation may carry, so
// scripted runs don't need a twenty-flag command line. applyConfig pushes
// the inherit, clock, sample-rate, cpu-list, call-chain, enable-condition,
// not-executable-maps and wakeup fields into SelectionSet's mutators; the
// branch_sample_type, exclude_perf, min_mmap_pages, max_mmap_pages,
// aux_buffer_size and record_buffer_size fields are parsed but not applied.
// A file only overrides the fields it names, on top of defaultConfig, so an
// absent config file behaves identically to an empty one.
type config struct {
	Inherit                bool            `yaml:"inherit"`
	ClockID                int32           `yaml:"clock_id"`
	SampleRate             uint64          `yaml:"sample_rate"`
	SampleFreq             bool            `yaml:"sample_freq"`
	CPUList                []int           `yaml:"cpu_list"`
	CallChain              callChainConfig `yaml:"call_chain"`
	BranchSampleType       uint64          `yaml:"branch_sample_type"`
	EnableOnOpen           bool            `yaml:"enable_on_open"`
	EnableOnExec           bool            `yaml:"enable_on_exec"`
	ExcludePerf            bool            `yaml:"exclude_perf"`
	RecordNotExecutableMaps bool           `yaml:"record_not_executable_maps"`
	WakeupPerSample        bool            `yaml:"wakeup_per_sample"`
	MinMmapPages           uint32          `yaml:"min_mmap_pages"`
	MaxMmapPages           uint32          `yaml:"max_mmap_pages"`
	AuxBufferSize          uint32          `yaml:"aux_buffer_size"`
	RecordBufferSize       uint32          `yaml:"record_buffer_size"`
}

// defaultConfig matches SelectionSet's own defaults: events run
// from open time, count both user and kernel space, no call chains.
func defaultConfig() config {
	return config{EnableOnOpen: true}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
