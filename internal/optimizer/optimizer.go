// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package optimizer runs a small set of textual peephole passes over
// emitted WAT source. Every pass operates line-by-line and never moves
// code across a block boundary, a call, or a branch target: the emitted
// shape (one "if pc==K" guard per guest instruction) makes that safe to
// assume but also means a pass must be conservative about resetting its
// state whenever it crosses one of those boundaries.
package optimizer

import "strings"

// Level selects which passes run and how many times.
type Level int

const (
	None Level = iota
	Basic
	Moderate
	Aggressive
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Basic:
		return "basic"
	case Moderate:
		return "moderate"
	case Aggressive:
		return "aggressive"
	default:
		return "level(?)"
	}
}

// ParseLevel maps a CLI flag value to a Level.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(s) {
	case "none":
		return None, true
	case "basic":
		return Basic, true
	case "moderate":
		return Moderate, true
	case "aggressive":
		return Aggressive, true
	default:
		return None, false
	}
}

// Pass is one peephole transformation over a WAT line list.
type Pass interface {
	Name() string
	// Apply returns the transformed lines and how many times the
	// transformation fired.
	Apply(lines []string) ([]string, int)
}

// Stats accumulates per-pass counters across an Optimize call.
type Stats struct {
	counts map[string]int
}

func newStats() Stats {
	return Stats{counts: map[string]int{}}
}

// Count reports how many times the named pass fired.
func (s Stats) Count(name string) int {
	return s.counts[name]
}

// Total sums every pass's counter.
func (s Stats) Total() int {
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}

func (s Stats) add(name string, n int) {
	if n > 0 {
		s.counts[name] += n
	}
}

// passesFor returns the pass list active at level, in application order.
// Basic is redundant-load/store elimination plus local peephole rewrites:
// purely intra-line-pair transformations safe to run unconditionally.
// Moderate adds constant propagation, branch simplification, and
// dead-code elimination, each of which must track state across more than
// a pair of lines. Aggressive reruns the Moderate set until a fixed
// point (capped at three iterations, per the emitted shape's guarantee
// that each pass is monotone non-increasing in line count).
func passesFor(level Level) []Pass {
	switch level {
	case None:
		return nil
	case Basic:
		return []Pass{peepholePass{}, redundantLoadPass{}, redundantStorePass{}}
	case Moderate, Aggressive:
		return []Pass{
			peepholePass{},
			redundantLoadPass{},
			redundantStorePass{},
			constantPropagationPass{},
			branchSimplificationPass{},
			deadCodePass{},
		}
	default:
		return nil
	}
}

// Optimize runs the passes for level over wat and returns the rewritten
// text plus the statistics gathered while doing so. At None it is a
// verbatim pass-through with an all-zero Stats.
func Optimize(wat string, level Level) (string, Stats) {
	stats := newStats()
	if level == None {
		return wat, stats
	}

	lines := strings.Split(wat, "\n")
	passes := passesFor(level)

	iterations := 1
	if level == Aggressive {
		iterations = 3
	}

	for i := 0; i < iterations; i++ {
		changed := false
		for _, p := range passes {
			next, n := p.Apply(lines)
			stats.add(p.Name(), n)
			if n > 0 {
				changed = true
			}
			lines = next
		}
		if !changed {
			break
		}
	}

	return strings.Join(lines, "\n"), stats
}
