// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/simpleperf/coreperf"
	"github.com/simpleperf/coreperf/internal/eventcatalog"
)

// recordKind names a Record's concrete type for the tally this subcommand
// prints. There is no perf.data writer in this repo (spec.md's Non-goals
// exclude it); this subcommand exists to drive PrepareSampleReading's
// reactor loop end to end, not to produce a file another tool could read.
func recordKind(rec simpleperf.Record) string {
	switch rec.(type) {
	case *simpleperf.SampleRecord:
		return "sample"
	case *simpleperf.SampleGroupRecord:
		return "sample"
	case *simpleperf.MmapRecord, *simpleperf.Mmap2Record:
		return "mmap"
	case *simpleperf.CommRecord:
		return "comm"
	case *simpleperf.ForkRecord:
		return "fork"
	case *simpleperf.ExitRecord:
		return "exit"
	case *simpleperf.SwitchRecord, *simpleperf.SwitchCPUWideRecord:
		return "switch"
	case *simpleperf.LostRecord, *simpleperf.LostSamplesRecord:
		return "lost"
	default:
		return "other"
	}
}

// isNormalStop reports whether err is nil or one of the event loop's
// normal-termination sentinels (target exited, signal/stop-descriptor
// cancellation) rather than an actual failure.
func isNormalStop(err error) bool {
	if err == nil {
		return true
	}
	switch err.(type) {
	case *simpleperf.TargetGone, *simpleperf.Cancelled:
		return true
	default:
		return false
	}
}

func newRecordCommand() *cobra.Command {
	var events []string
	var freq uint64
	cmd := &cobra.Command{
		Use:   "record -- workload [args...]",
		Short: "sample a workload's execution and tally the records seen",
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
			set.SetSampleRateForNewEvents(freq, true)
			if _, err := set.AddEventGroup(events, true); err != nil {
				return err
			}

			loop, err := simpleperf.NewEventLoop()
			if err != nil {
				return err
			}
			defer loop.Close()

			var mu sync.Mutex
			counts := make(map[string]int)

			workloadCmd := exec.Command(workload[0], workload[1:]...)
			workloadCmd.Stdout = os.Stdout
			workloadCmd.Stderr = os.Stderr

			launchErr := make(chan error, 1)
			pid := make(chan int, 1)
			go func() {
				launchErr <- simpleperf.RunUnderPtrace(workloadCmd, func(tracee int) error {
					pid <- tracee
					if err := set.OpenEventFilesForThreads([]int{tracee}); err != nil {
						return err
					}
					return set.PrepareSampleReading(loop, func(rec simpleperf.Record, sel *simpleperf.EventSelection) {
						mu.Lock()
						counts[recordKind(rec)]++
						mu.Unlock()
					})
				})
			}()

			tracee := <-pid
			if err := simpleperf.AddSignalHandlers(loop); err != nil {
				return err
			}
			if err := set.StopWhenNoMoreTargets(loop, []int{tracee}, 200*time.Millisecond); err != nil {
				return err
			}

			runErr := loop.Run()
			setupErr := <-launchErr
			closeErr := set.CloseEventFiles()
			if setupErr != nil {
				return setupErr
			}
			if !isNormalStop(runErr) {
				return runErr
			}
			if closeErr != nil {
				return closeErr
			}

			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("%-10s %d\n", k, counts[k])
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&events, "event", "e", []string{"cpu-cycles"}, "event[:modifier] names, comma separated")
	cmd.Flags().Uint64Var(&freq, "freq", 1000, "sample frequency in Hz")
	return cmd
}
