// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpleperf

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
)

// Summary is one reportable line of counter output: an event, its modifier,
// the (possibly scaled) aggregate value across every cell it was read from,
// and a derived comment.
type Summary struct {
	GroupID       int
	Event         string
	Modifier      string
	Value         float64
	Scale         float64
	NotRun        bool
	AutoGenerated bool
	Comment       string

	// TimeEnabled and TimeRunning are the summed nanosecond counters
	// across every cell this Summary aggregates, carried through from
	// Count so addAutoGeneratedTotals can check that a "u" and "k"
	// reading cover the same measurement window before summing them.
	TimeEnabled time.Duration
	TimeRunning time.Duration
}

// knownRatio describes a miss-event/reference-event pair the Summariser
// reports as a percentage, e.g. cache-misses against cache-references.
type knownRatio struct {
	miss, ref, desc string
}

var knownRatios = []knownRatio{
	{"cache-misses", "cache-references", "miss rate"},
	{"branch-misses", "branch-instructions", "miss rate"},
	{"raw-l1-dcache-load-misses", "raw-l1-dcache-loads", "miss rate"},
	{"raw-l1-icache-load-misses", "raw-l1-icache-loads", "miss rate"},
	{"raw-dtlb-load-misses", "raw-dtlb-loads", "miss rate"},
}

// Summariser turns raw CountersInfo readings into display-ready Summaries:
// it applies the multiplexing scale factor, synthesizes u+k totals, and
// attaches the derived-comment precedence chain described for counter
// reporting (task-clock CPU-equivalents, cpu-cycles GHz, CPI, known miss
// ratios, suffix-heuristic miss rate, SI-suffixed rate).
type Summariser struct {
	// previous holds the last cumulative value passed to Delta per (groupID,
	// event, modifier), for interval-only-values delta mode.
	previous map[string]uint64
}

// NewSummariser creates an empty Summariser.
func NewSummariser() *Summariser {
	return &Summariser{previous: make(map[string]uint64)}
}

func summaryKey(groupID int, event, modifier string) string {
	return fmt.Sprintf("%d/%s/%s", groupID, event, modifier)
}

// Summarize aggregates infos into one Summary per event (summed across
// every cell it was read from), synthesizes auto-generated u+k totals, and
// attaches derived comments. duration is the measurement window, used for
// the task-clock and SI-suffixed-rate comments.
func (s *Summariser) Summarize(infos []CountersInfo, duration time.Duration) []Summary {
	summaries := make([]Summary, 0, len(infos))
	byNameModifier := make(map[string]int) // "event/modifier" -> index into summaries

	for _, info := range infos {
		var total float64
		var anyRan bool
		var scale float64 = 1
		var enabled, running time.Duration
		for _, reading := range info.Readings {
			enabled += reading.Count.TimeEnabled
			running += reading.Count.TimeRunning
			v, ok := reading.Count.Scale()
			if !ok {
				continue
			}
			anyRan = true
			total += v
			if reading.Count.TimeRunning > 0 {
				f := float64(reading.Count.TimeEnabled) / float64(reading.Count.TimeRunning)
				if f > scale {
					scale = f
				}
			}
		}
		sum := Summary{
			GroupID:     info.GroupID,
			Event:       info.Event,
			Modifier:    info.Modifier,
			Value:       total,
			Scale:       scale,
			NotRun:      !anyRan,
			TimeEnabled: enabled,
			TimeRunning: running,
		}
		byNameModifier[info.Event+"/"+info.Modifier] = len(summaries)
		summaries = append(summaries, sum)
	}

	s.addAutoGeneratedTotals(&summaries, byNameModifier)
	s.attachComments(summaries, duration)
	return summaries
}

// addAutoGeneratedTotals appends a synthetic empty-modifier summary for
// every event with both a "u" and "k" reading, unless a user-supplied total
// already exists: "FindSummary(type, "", ...) already non-null" means "do
// not replace", so user-supplied totals always win over synthesis.
func (s *Summariser) addAutoGeneratedTotals(summaries *[]Summary, byNameModifier map[string]int) {
	type pair struct{ u, k *Summary }
	pairs := make(map[string]*pair)
	for i := range *summaries {
		sum := &(*summaries)[i]
		p := pairs[sum.Event]
		if p == nil {
			p = &pair{}
			pairs[sum.Event] = p
		}
		switch sum.Modifier {
		case "u":
			p.u = sum
		case "k":
			p.k = sum
		}
	}
	for event, p := range pairs {
		if p.u == nil || p.k == nil {
			continue
		}
		if _, hasTotal := byNameModifier[event+"/"]; hasTotal {
			continue
		}
		if !timeWindowsOverlap(p.u.TimeEnabled, p.k.TimeEnabled) {
			continue
		}
		*summaries = append(*summaries, Summary{
			GroupID:       p.u.GroupID,
			Event:         event,
			Modifier:      "",
			Value:         p.u.Value + p.k.Value,
			Scale:         1,
			AutoGenerated: true,
			TimeEnabled:   p.u.TimeEnabled,
			TimeRunning:   p.u.TimeRunning + p.k.TimeRunning,
		})
	}
}

// overlapTolerance bounds how much a "u" reading's time_enabled window may
// diverge from its paired "k" reading's before addAutoGeneratedTotals
// refuses to synthesize a total for them. Readings taken in the same
// ReadCounters pass share an end instant, so the shorter window is always a
// suffix of the longer one; this only rejects pairs where one side was
// opened, or ran, for a much shorter span than the other (e.g. a counter
// added well after the group was already running), where adding the two
// values together would misrepresent the combined rate.
const overlapTolerance = 0.99

// timeWindowsOverlap reports whether a and b's enabled windows overlap by
// at least the full shorter of the two, within overlapTolerance.
func timeWindowsOverlap(a, b time.Duration) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	shorter, longer := a, b
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(shorter)/float64(longer) >= overlapTolerance
}

func (s *Summariser) attachComments(summaries []Summary, duration time.Duration) {
	byEventModifier := make(map[string]*Summary, len(summaries))
	for i := range summaries {
		byEventModifier[summaries[i].Event+"/"+summaries[i].Modifier] = &summaries[i]
	}
	seconds := duration.Seconds()

	for i := range summaries {
		sum := &summaries[i]
		switch {
		case sum.Event == "task-clock":
			if seconds > 0 {
				sum.Comment = fmt.Sprintf("%.3f CPUs utilized", sum.Value/1e9/seconds)
			}
		case sum.Event == "cpu-clock":
			// no comment, per the derived-comment table.
		case sum.Event == "cpu-cycles" && sum.Value > 0 && seconds > 0:
			sum.Comment = fmt.Sprintf("%.3f GHz", sum.Value/1e9/seconds)
		case sum.Event == "instructions":
			if cyc := byEventModifier["cpu-cycles/"+sum.Modifier]; cyc != nil && sum.Value > 0 {
				sum.Comment = fmt.Sprintf("%.3f cycles per instruction", cyc.Value/sum.Value)
			}
		default:
			if c, ok := s.knownRatioComment(sum, byEventModifier); ok {
				sum.Comment = c
			} else if c, ok := suffixHeuristicComment(sum, byEventModifier); ok {
				sum.Comment = c
			} else if seconds > 0 {
				sum.Comment = formatRate(sum.Value/seconds) + " per second"
			}
		}
	}
}

func (s *Summariser) knownRatioComment(sum *Summary, byEventModifier map[string]*Summary) (string, bool) {
	for _, kr := range knownRatios {
		if kr.miss != sum.Event {
			continue
		}
		ref := byEventModifier[kr.ref+"/"+sum.Modifier]
		if ref == nil || ref.Value == 0 {
			return "", false
		}
		return fmt.Sprintf("%.2f%% %s", 100*sum.Value/ref.Value, kr.desc), true
	}
	return "", false
}

// suffixHeuristicComment pairs an event name ending in "-misses" with its
// pluralised stem, e.g. "foo-misses" against "foos", when no static
// knownRatios entry covers it.
func suffixHeuristicComment(sum *Summary, byEventModifier map[string]*Summary) (string, bool) {
	if !strings.HasSuffix(sum.Event, "-misses") {
		return "", false
	}
	stem := strings.TrimSuffix(sum.Event, "-misses")
	ref := byEventModifier[stem+"s/"+sum.Modifier]
	if ref == nil || ref.Value == 0 {
		return "", false
	}
	return fmt.Sprintf("%.2f%% miss rate", 100*sum.Value/ref.Value), true
}

// formatRate renders v with an SI suffix (G/M/K), matching the CSV and
// human-readable table's rate formatting.
func formatRate(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.3fG", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.3fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.3fK", v/1e3)
	default:
		return fmt.Sprintf("%.3f", v)
	}
}

// Delta computes the interval-only-values reading for sum relative to the
// last cumulative value seen for the same (groupID, event, modifier), per
// "subtracting each counter's previous cumulative snapshot". A cumulative
// value lower than the last one seen is not a legitimate reset: counters
// only ever accumulate between reads, so a decrease means the caller fed
// Delta readings out of order or recycled a (groupID, event, modifier) key
// across unrelated counters. That is a bug in the caller, not a condition
// Delta can recover from, so it is reported rather than papered over with a
// silent 0.
func (s *Summariser) Delta(sum Summary, cumulative uint64) (float64, error) {
	key := summaryKey(sum.GroupID, sum.Event, sum.Modifier)
	prev, ok := s.previous[key]
	s.previous[key] = cumulative
	if !ok {
		return 0, nil
	}
	if cumulative < prev {
		return 0, &RuntimeError{
			Op:  "counter delta",
			Err: fmt.Errorf("%s: cumulative value went backwards: %d < %d", key, cumulative, prev),
		}
	}
	return float64(cumulative - prev), nil
}

// WriteTable renders summaries as a human-readable, auto-width table with a
// '#'-prefixed comment column.
func WriteTable(w io.Writer, summaries []Summary) error {
	width := 80
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = cols
		}
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, sum := range summaries {
		name := sum.Event
		if sum.Modifier != "" {
			name += ":" + sum.Modifier
		}
		if sum.AutoGenerated {
			name += " (generated)"
		}
		value := fmt.Sprintf("%.0f", sum.Value)
		if sum.NotRun {
			value = "<not run>"
		}
		line := fmt.Sprintf("%s\t%s", value, name)
		if sum.Comment != "" {
			line += "\t# " + truncate(sum.Comment, width)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}

// WriteCSV renders summaries as fixed-column CSV: thread-name, pid, tid,
// cpu, count, event-name, comment, generated-flag. The per-cell identity
// columns are left blank here since Summarize already aggregates across
// cells; callers that need per-cell rows should iterate CountersInfo
// directly instead of calling Summarize first.
func WriteCSV(w io.Writer, summaries []Summary) error {
	for _, sum := range summaries {
		name := sum.Event
		if sum.Modifier != "" {
			name += ":" + sum.Modifier
		}
		value := fmt.Sprintf("%.0f", sum.Value)
		if sum.NotRun {
			value = ""
		}
		generated := ""
		if sum.AutoGenerated {
			generated = "true"
		}
		fmt.Fprintf(w, ",,,,%s,%s,%s,%s\n", value, name, sum.Comment, generated)
	}
	return nil
}
