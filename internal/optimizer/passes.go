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

package optimizer

import (
	"strconv"
	"strings"
)

func constValue(line string) (int64, bool) {
	const prefix = "i64.const "
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(line[len(prefix):]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseGet(line string) (reg string, ok bool) {
	const prefix = "global.get $x"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimPrefix(line, "global.get "), true
}

func parseSet(line string) (reg string, ok bool) {
	const prefix = "global.set $x"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimPrefix(line, "global.set "), true
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// isBoundary reports whether line is a control construct that must reset
// any cross-line tracking state a pass is carrying (labels, calls,
// branches): constant propagation and redundant-load tracking are only
// valid within a straight-line run of code.
func isBoundary(line string) bool {
	switch firstWord(line) {
	case "if", "else", "end", "loop", "block", "br", "br_if", "br_table", "call", "return", "unreachable":
		return true
	}
	return false
}

// peepholePass collapses local constant/register idioms: additive and
// multiplicative identities, constant-constant folding ahead of add/mul,
// and get-then-set-to-self pairs.
type peepholePass struct{}

func (peepholePass) Name() string { return "peephole" }

func (peepholePass) Apply(lines []string) ([]string, int) {
	out := make([]string, 0, len(lines))
	count := 0
	i := 0
	for i < len(lines) {
		a := strings.TrimSpace(lines[i])

		if n, ok := constValue(a); ok && i+1 < len(lines) {
			b := strings.TrimSpace(lines[i+1])
			if n == 0 && (b == "i64.add" || b == "i64.or" || b == "i64.xor") {
				count++
				i += 2
				continue
			}
			if n == 1 && b == "i64.mul" {
				count++
				i += 2
				continue
			}
			if m, ok2 := constValue(b); ok2 && i+2 < len(lines) {
				c := strings.TrimSpace(lines[i+2])
				switch c {
				case "i64.add":
					out = append(out, "i64.const "+strconv.FormatInt(n+m, 10))
					count++
					i += 3
					continue
				case "i64.mul":
					out = append(out, "i64.const "+strconv.FormatInt(n*m, 10))
					count++
					i += 3
					continue
				}
			}
		}

		if reg, ok := parseGet(a); ok && i+1 < len(lines) {
			b := strings.TrimSpace(lines[i+1])
			if setTo, ok2 := parseSet(b); ok2 && setTo == reg {
				count++
				i += 2
				continue
			}
		}

		out = append(out, lines[i])
		i++
	}
	return out, count
}

// redundantLoadPass drops a repeated global.get of a register that has
// no intervening write, clearing its tracked validity on any set or
// control-flow boundary.
type redundantLoadPass struct{}

func (redundantLoadPass) Name() string { return "redundant-load" }

func (redundantLoadPass) Apply(lines []string) ([]string, int) {
	out := make([]string, 0, len(lines))
	valid := map[string]bool{}
	count := 0
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if reg, ok := parseGet(line); ok {
			if valid[reg] {
				count++
				continue
			}
			valid[reg] = true
			out = append(out, raw)
			continue
		}
		if reg, ok := parseSet(line); ok {
			valid[reg] = false
			out = append(out, raw)
			continue
		}
		if isBoundary(line) {
			valid = map[string]bool{}
		}
		out = append(out, raw)
	}
	return out, count
}

// redundantStorePass drops the first of two immediately consecutive
// writes to the same register, since nothing can have observed the
// first value.
type redundantStorePass struct{}

func (redundantStorePass) Name() string { return "redundant-store" }

func (redundantStorePass) Apply(lines []string) ([]string, int) {
	out := make([]string, 0, len(lines))
	count := 0
	i := 0
	for i < len(lines) {
		a := strings.TrimSpace(lines[i])
		if regA, ok := parseSet(a); ok && i+1 < len(lines) {
			b := strings.TrimSpace(lines[i+1])
			if regB, ok2 := parseSet(b); ok2 && regA == regB {
				count++
				i++
				continue
			}
		}
		out = append(out, lines[i])
		i++
	}
	return out, count
}

// constantPropagationPass tracks which registers currently hold a known
// compile-time constant (set immediately after an i64.const push) and
// substitutes later reads of that register with the constant directly,
// until the register is overwritten with an unknown value or a control
// boundary is crossed.
type constantPropagationPass struct{}

func (constantPropagationPass) Name() string { return "constant-propagation" }

func (constantPropagationPass) Apply(lines []string) ([]string, int) {
	out := make([]string, 0, len(lines))
	known := map[string]int64{}
	count := 0
	prevWasConst := false
	var prevConst int64

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if reg, ok := parseGet(line); ok {
			if v, ok2 := known[reg]; ok2 {
				out = append(out, "i64.const "+strconv.FormatInt(v, 10))
				count++
				prevWasConst, prevConst = true, v
				continue
			}
			out = append(out, raw)
			prevWasConst = false
			continue
		}

		if reg, ok := parseSet(line); ok {
			if prevWasConst {
				known[reg] = prevConst
			} else {
				delete(known, reg)
			}
			out = append(out, raw)
			prevWasConst = false
			continue
		}

		if v, ok := constValue(line); ok {
			prevWasConst, prevConst = true, v
			out = append(out, raw)
			continue
		}

		if isBoundary(line) {
			known = map[string]int64{}
		}
		prevWasConst = false
		out = append(out, raw)
	}
	return out, count
}

// deadCodePass drops everything between an unconditional return/br/
// unreachable and the end or else that closes its enclosing block,
// tracking nested if/loop/block depth so it never reaches past the
// block that actually contains the unreachable code.
type deadCodePass struct{}

func (deadCodePass) Name() string { return "dead-code" }

func (deadCodePass) Apply(lines []string) ([]string, int) {
	out := make([]string, 0, len(lines))
	count := 0
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		out = append(out, lines[i])
		first := firstWord(line)
		if first != "return" && first != "unreachable" && first != "br" {
			i++
			continue
		}

		i++
		depth := 0
		dropped := false
		for i < len(lines) {
			inner := strings.TrimSpace(lines[i])
			switch firstWord(inner) {
			case "end":
				if depth == 0 {
					goto doneSkip
				}
				depth--
			case "else":
				if depth == 0 {
					goto doneSkip
				}
			case "if", "loop", "block":
				depth++
			}
			i++
			dropped = true
		}
	doneSkip:
		if dropped {
			count++
		}
	}
	return out, count
}

// branchSimplificationPass resolves an "if" whose condition is a
// compile-time-known i64.const 0 or 1 guard, keeping only the taken arm.
type branchSimplificationPass struct{}

func (branchSimplificationPass) Name() string { return "branch-simplification" }

func (branchSimplificationPass) Apply(lines []string) ([]string, int) {
	out := make([]string, 0, len(lines))
	count := 0
	i := 0
	for i < len(lines) {
		a := strings.TrimSpace(lines[i])
		v, ok := constValue(a)
		if ok && (v == 0 || v == 1) && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == "if" {
			thenStart := i + 2
			elseIdx, endIdx := findElseEnd(lines, thenStart)
			if endIdx >= 0 {
				var kept []string
				if v == 1 {
					if elseIdx >= 0 {
						kept = lines[thenStart:elseIdx]
					} else {
						kept = lines[thenStart:endIdx]
					}
				} else if elseIdx >= 0 {
					kept = lines[elseIdx+1 : endIdx]
				}
				out = append(out, kept...)
				count++
				i = endIdx + 1
				continue
			}
		}
		out = append(out, lines[i])
		i++
	}
	return out, count
}

// findElseEnd scans from start (immediately after the opening "if", at
// nesting depth 1) for the top-level "else" (-1 if absent) and the "end"
// that closes the same "if".
func findElseEnd(lines []string, start int) (elseIdx, endIdx int) {
	depth := 1
	elseIdx = -1
	for j := start; j < len(lines); j++ {
		switch firstWord(strings.TrimSpace(lines[j])) {
		case "if", "loop", "block":
			depth++
		case "end":
			depth--
			if depth == 0 {
				return elseIdx, j
			}
		case "else":
			if depth == 1 {
				elseIdx = j
			}
		}
	}
	return -1, -1
}
