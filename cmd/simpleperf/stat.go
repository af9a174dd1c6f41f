// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/simpleperf/coreperf"
	"github.com/simpleperf/coreperf/internal/eventcatalog"
)

var errNoWorkload = errors.New("simpleperf: no workload given after --")

func newStatCommand() *cobra.Command {
	var (
		events []string
		csv    bool
	)
	cmd := &cobra.Command{
		Use:   "stat -- workload [args...]",
		Short: "count events over a workload's entire lifetime",
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 0 || dash >= len(args) {
				return errNoWorkload
			}
			workload := args[dash:]

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			set := simpleperf.NewSelectionSet(eventcatalog.NewDefault())
			applyConfig(set, cfg)
			if _, err := set.AddEventGroup(events, true); err != nil {
				return err
			}

			started := time.Now()
			workloadCmd := exec.Command(workload[0], workload[1:]...)
			workloadCmd.Stdout = os.Stdout
			workloadCmd.Stderr = os.Stderr
			infos, err := simpleperf.LaunchAndCount(set, workloadCmd, simpleperf.AnyCPU)
			if err != nil {
				return err
			}
			duration := time.Since(started)

			summaries := simpleperf.NewSummariser().Summarize(infos, duration)
			if csv {
				return simpleperf.WriteCSV(os.Stdout, summaries)
			}
			return simpleperf.WriteTable(os.Stdout, summaries)
		},
	}
	cmd.Flags().StringSliceVarP(&events, "event", "e", []string{"task-clock", "cpu-cycles", "instructions"}, "event[:modifier] names, comma separated")
	cmd.Flags().BoolVar(&csv, "csv", false, "emit CSV instead of a human-readable table")
	return cmd
}

// applyConfig pushes the loaded config's fields into set's mutators,
// logging rather than failing on the fields that require kernel support
// this host may not have, matching the "fail fast with a clear message,
// not an opaque EINVAL" posture of the feature-probe functions.
func applyConfig(set *simpleperf.SelectionSet, cfg config) {
	set.SetInherit(cfg.Inherit)
	if cfg.ClockID != 0 {
		if err := set.SetClockID(cfg.ClockID); err != nil {
			log.Warn().Err(err).Msg("clock_id from config not applied")
		}
	}
	if len(cfg.CPUList) > 0 {
		set.SetCPUsForNewEvents(cfg.CPUList)
	}
	if cfg.SampleRate > 0 {
		set.SetSampleRateForNewEvents(cfg.SampleRate, cfg.SampleFreq)
	}
	switch cfg.CallChain.Mode {
	case "fp":
		set.EnableFPCallchain()
	case "dwarf":
		if err := set.EnableDwarfCallchain(cfg.CallChain.StackSize); err != nil {
			log.Warn().Err(err).Msg("dwarf call chain from config not applied")
		}
	}
	set.SetEnableCondition(cfg.EnableOnOpen, cfg.EnableOnExec)
	set.SetRecordNotExecutableMaps(cfg.RecordNotExecutableMaps)
	if cfg.WakeupPerSample {
		set.WakeupPerSample()
	}
}
