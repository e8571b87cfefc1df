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

package rvruntime

import (
	"fmt"
	"strings"
)

// wasmPageSize mirrors internal/addrmap's page granularity; duplicated
// here because page accounting for the stack/TLS region and the header
// prefix belongs to the runtime, not to the address map.
const wasmPageSize = 64 * 1024

// memInitializer is the common (offset, bytes) shape internal/addrmap
// and internal/guestimage both produce, unified here so preludeWAT can
// walk one combined list regardless of which package built each entry.
type memInitializer struct {
	LinearOffset uint64
	Bytes        []byte
}

func pagesFor(endOffset uint64) uint32 {
	if endOffset == 0 {
		return 1
	}
	return uint32((endOffset + wasmPageSize - 1) / wasmPageSize)
}

// preludeWAT wraps body (the $translated_code function text produced by
// internal/emitter) in the full module: imports, memory and its data
// segments, the register/control globals, the $vaddr_to_offset and
// $set_reg helpers, and $main/_start.
func preludeWAT(body string, vaddrBase, memoryBase uint64, pageCount uint32, entryPoint uint64, inits []memInitializer) string {
	var b strings.Builder

	b.WriteString("(module\n")
	b.WriteString(`  (import "env" "syscall" (func $syscall (param i64 i64 i64 i64 i64 i64 i64) (result i64)))` + "\n")
	b.WriteString(`  (import "env" "debug_print" (func $debug_print (param i32)))` + "\n")
	b.WriteString(`  (import "wasi_snapshot_preview1" "fd_write" (func $fd_write (param i32 i32 i32 i32) (result i32)))` + "\n")
	b.WriteString(`  (import "wasi_snapshot_preview1" "fd_read" (func $fd_read (param i32 i32 i32 i32) (result i32)))` + "\n")
	b.WriteString(`  (import "wasi_snapshot_preview1" "proc_exit" (func $proc_exit (param i32)))` + "\n")

	fmt.Fprintf(&b, "  (memory (export \"memory\") %d)\n", pageCount)
	for _, in := range inits {
		if len(in.Bytes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  (data (i32.const %d) %s)\n", in.LinearOffset, watString(in.Bytes))
	}

	for i := 0; i < 32; i++ {
		fmt.Fprintf(&b, "  (global $x%d (mut i64) (i64.const 0))\n", i)
	}
	b.WriteString("  (global $pc (mut i64) (i64.const 0))\n")
	b.WriteString("  (global $vl (mut i64) (i64.const 0))\n")
	b.WriteString("  (global $vtype (mut i64) (i64.const 0))\n")
	b.WriteString("  (global $vstart (mut i64) (i64.const 0))\n")
	b.WriteString("  (global $vlenb (mut i64) (i64.const 256))\n") // VLEN=2048 bits / 8, see internal/emitter's vlenBits
	b.WriteString("  (global $exit_flag (mut i32) (i32.const 0))\n")
	b.WriteString("  (global $instr_count (mut i64) (i64.const 0))\n")
	b.WriteString("  (global $max_instr (mut i64) (i64.const 0))\n")
	fmt.Fprintf(&b, "  (global $vaddr_offset i64 (i64.const %d))\n", int64(vaddrBase))
	fmt.Fprintf(&b, "  (global $memory_base i64 (i64.const %d))\n", int64(memoryBase))

	b.WriteString("  (func $vaddr_to_offset (param $v i64) (result i32)\n")
	b.WriteString("    local.get $v\n    global.get $vaddr_offset\n    i64.sub\n")
	b.WriteString("    global.get $memory_base\n    i64.add\n    i32.wrap_i64)\n")

	b.WriteString("  (func $set_reg (export \"set_reg\") (param $i i32) (param $v i64)\n")
	for i := 1; i < 32; i++ { // x0 stays hardwired to zero, per invariant
		fmt.Fprintf(&b, "    local.get $i\n    i32.const %d\n    i32.eq\n    if\n      local.get $v\n      global.set $x%d\n    end\n", i, i)
	}
	b.WriteString("  )\n")

	b.WriteString(body)

	b.WriteString("  (func $main (export \"main\") (export \"_start\")\n")
	fmt.Fprintf(&b, "    i64.const %d\n    global.set $pc\n", int64(entryPoint))
	b.WriteString("    call $translated_code)\n")

	b.WriteString("  (func (export \"get_instr_count\") (result i64) global.get $instr_count)\n")
	b.WriteString("  (func (export \"get_exit_flag\") (result i32) global.get $exit_flag)\n")
	b.WriteString("  (func (export \"set_exit_flag\") (param $v i32) local.get $v global.set $exit_flag)\n")
	b.WriteString("  (func (export \"set_max_instructions\") (param $v i64) local.get $v global.set $max_instr)\n")

	b.WriteString(")\n")
	return b.String()
}

// watString renders bs as a WAT string literal, escaping every byte so
// the result never depends on whether the bytes happen to be printable
// ASCII.
func watString(bs []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range bs {
		fmt.Fprintf(&sb, "\\%02x", c)
	}
	sb.WriteByte('"')
	return sb.String()
}
