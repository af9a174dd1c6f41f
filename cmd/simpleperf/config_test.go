// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	want := defaultConfig()
	if cfg.EnableOnOpen != want.EnableOnOpen || cfg.Inherit != want.Inherit || len(cfg.CPUList) != 0 {
		t.Fatalf("loadConfig(\"\") = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "inherit: true\nsample_rate: 4000\ncall_chain:\n  mode: dwarf\n  stack_size: 16384\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Inherit {
		t.Fatal("expected Inherit=true")
	}
	if cfg.SampleRate != 4000 {
		t.Fatalf("SampleRate = %d, want 4000", cfg.SampleRate)
	}
	if cfg.CallChain.Mode != "dwarf" || cfg.CallChain.StackSize != 16384 {
		t.Fatalf("CallChain = %+v, want mode=dwarf stack_size=16384", cfg.CallChain)
	}
	// EnableOnOpen isn't overridden by the file, so the default survives.
	if !cfg.EnableOnOpen {
		t.Fatal("expected EnableOnOpen default (true) to survive an unmarshal that doesn't mention it")
	}
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a nonexistent config path")
	}
}
