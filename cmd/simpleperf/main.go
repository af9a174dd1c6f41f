// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command simpleperf is a thin cobra driver over the simpleperf core
// package: it proves out the public SelectionSet/EventLoop contract with
// "stat" and "record" subcommands, not a reimplementation of the original
// tool's full flag surface. The command-line parser is one of the external
// collaborators the core itself deliberately excludes.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "simpleperf",
		Short: "profile a workload's CPU performance counters and events",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).With().Timestamp().Logger()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "f", "", "path to a config.yaml overriding SelectionSet defaults")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	root.AddCommand(newStatCommand())
	root.AddCommand(newRecordCommand())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("simpleperf")
	}
}
