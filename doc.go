// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package simpleperf implements the profiling core of a system-level CPU
// profiler for Linux: event selection, kernel counter file descriptors,
// an event-loop reactor over their readiness notifications, a reader
// thread draining ring buffers into a bounded record queue, and counter
// aggregation and reporting.
//
// The package does not parse command lines, write perf.data files, resolve
// symbols, or unwind call stacks; it hands a stream of parsed Records and
// periodic CountersInfo snapshots to whatever does.
package simpleperf
