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

// Package emitter lowers decoded RISC-V instructions to WebAssembly text.
// The emission strategy is a threaded interpreter realized as a
// straight-line dispatched sequence: one "if (pc == K)" guard per decoded
// instruction, wrapped in a loop that branches back so long as the
// guest-visible exit flag is zero.
package emitter

import (
	"fmt"
	"strings"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/decoder"
)

// Emitter accumulates the body of the $translated_code function. It emits
// only that body — the runtime glue wraps it in the full module prelude
// (imports, globals, memory, $main/_start), since vaddr_base and
// memory_base are known only to the runtime.
type Emitter struct {
	buf        strings.Builder
	instrCount int
	depth      int
}

// New returns an Emitter ready for StartFunction.
func New() *Emitter {
	return &Emitter{}
}

// StartFunction opens a function definition.
func (e *Emitter) StartFunction(name string) {
	fmt.Fprintf(&e.buf, "  (func $%s\n", name)
	e.depth++
}

// StartLoop opens the dispatch loop.
func (e *Emitter) StartLoop() {
	e.writeLine("(loop $dispatch")
	e.depth++
}

// EndLoopWithExitCheck closes the loop: branch back iff $exit_flag == 0
// and the instruction budget ($max_instr == 0 means unlimited) has not
// been reached.
func (e *Emitter) EndLoopWithExitCheck() {
	e.writeLine("global.get $exit_flag")
	e.writeLine("i32.eqz")
	e.writeLine("if (result i32)")
	e.depth++
	e.writeLine("global.get $max_instr")
	e.writeLine("i64.const 0")
	e.writeLine("i64.eq")
	e.writeLine("if (result i32)")
	e.depth++
	e.writeLine("i32.const 1")
	e.depth--
	e.writeLine("else")
	e.depth++
	e.writeLine("global.get $instr_count")
	e.writeLine("global.get $max_instr")
	e.writeLine("i64.lt_u")
	e.depth--
	e.writeLine("end")
	e.depth--
	e.writeLine("else")
	e.depth++
	e.writeLine("i32.const 0")
	e.depth--
	e.writeLine("end")
	e.writeLine("br_if $dispatch")
	e.depth--
	e.writeLine(")")
}

// EndFunction closes the function definition.
func (e *Emitter) EndFunction() {
	e.depth--
	e.buf.WriteString("  )\n")
}

// Finalize renders the accumulated body.
func (e *Emitter) Finalize() string {
	return e.buf.String()
}

// InstrCount reports how many instructions EmitInstruction has lowered.
func (e *Emitter) InstrCount() int {
	return e.instrCount
}

func (e *Emitter) writeLine(s string) {
	e.buf.WriteString(strings.Repeat("  ", e.depth+1))
	e.buf.WriteString(s)
	e.buf.WriteByte('\n')
}

func (e *Emitter) writeLines(lines []string) {
	for _, l := range lines {
		e.writeLine(l)
	}
}

// EmitInstruction appends one dispatch guard for in, decoded at pc.
func (e *Emitter) EmitInstruction(pc uint64, in decoder.Instruction) error {
	e.writeLine(fmt.Sprintf(";; pc=%#x %s", pc, mnemonic(in)))
	e.writeLine("global.get $pc")
	e.writeLine(fmt.Sprintf("i64.const %d", int64(pc)))
	e.writeLine("i64.eq")
	e.writeLine("if")
	e.depth++
	e.writeLine("global.get $instr_count")
	e.writeLine("i64.const 1")
	e.writeLine("i64.add")
	e.writeLine("global.set $instr_count")

	body, err := lower(pc, in)
	if err != nil {
		return fmt.Errorf("pc=%#x: %w", pc, err)
	}
	e.writeLines(body)

	if !in.IsControlFlow() {
		e.writeLine(fmt.Sprintf("i64.const %d", int64(pc)+int64(in.Size)))
		e.writeLine("global.set $pc")
	}
	e.depth--
	e.writeLine("end")
	e.instrCount++
	return nil
}

func mnemonic(in decoder.Instruction) string {
	if in.IsUnsupported() {
		return fmt.Sprintf("UNSUPPORTED(%s raw=%#x)", in.Family, in.Raw)
	}
	return fmt.Sprintf("%s family=%s rd=%d rs1=%d rs2=%d", opName(in.Op), in.Family, in.Rd, in.Rs1, in.Rs2)
}
