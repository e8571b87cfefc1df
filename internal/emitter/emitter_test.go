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

package emitter

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/decoder"
)

// decodeWord little-endian-encodes word and runs it through the real
// decoder, so tests exercise lower() against Instructions shaped exactly
// as decode.go would produce — including Immediate values, whose
// internal representation isn't constructible from this package.
func decodeWord(word uint32) decoder.Instruction {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], word)
	return decoder.Decode(b[:])
}

func encVSetVLI(rd, rs1 uint32, zimm int64) uint32 {
	return uint32(zimm&0x7ff)<<20 | rs1<<15 | 0x7<<12 | rd<<7 | 0x57
}

func encVSetIVLI(rd uint32, uimm, zimm int64) uint32 {
	return 0b11<<30 | uint32(zimm&0x3ff)<<20 | uint32(uimm&0x1f)<<15 | 0x7<<12 | rd<<7 | 0x57
}

func TestEmitInstructionGuardsOnPC(t *testing.T) {
	e := New()
	e.StartFunction("translated_code")
	e.StartLoop()
	require.NoError(t, e.EmitInstruction(0x10000, decoder.Instruction{
		Op: decoder.OpADD, Rd: 5, Rs1: 6, Rs2: 7, Size: 4,
	}))
	e.EndLoopWithExitCheck()
	e.EndFunction()

	out := e.Finalize()
	assert.Contains(t, out, "global.get $pc")
	assert.Contains(t, out, "i64.const 65536")
	assert.Contains(t, out, "global.get $x6")
	assert.Contains(t, out, "global.get $x7")
	assert.Contains(t, out, "i64.add")
	assert.Contains(t, out, "global.set $x5")
	assert.Equal(t, 1, e.InstrCount())
}

func TestEndLoopWithExitCheckGuardsOnExitFlagAndMaxInstr(t *testing.T) {
	e := New()
	e.StartFunction("translated_code")
	e.StartLoop()
	e.EndLoopWithExitCheck()
	e.EndFunction()

	out := e.Finalize()
	assert.Contains(t, out, "global.get $exit_flag")
	assert.Contains(t, out, "global.get $max_instr")
	assert.Contains(t, out, "global.get $instr_count")
	assert.Contains(t, out, "i64.lt_u")
	assert.Contains(t, out, "br_if $dispatch")

	// Two nested "if (result i32)" blocks each need a matching "end".
	assert.Equal(t, 2, strings.Count(out, "if (result i32)"))
	endLines := 0
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) == "end" {
			endLines++
		}
	}
	assert.Equal(t, 2, endLines)
}

func TestEmitInstructionAdvancesPCForNonControlFlow(t *testing.T) {
	e := New()
	e.StartFunction("f")
	require.NoError(t, e.EmitInstruction(100, decoder.Instruction{Op: decoder.OpADDI, Rd: 1, Rs1: 0, Size: 4}))
	e.EndFunction()
	out := e.Finalize()
	assert.Contains(t, out, "i64.const 104")
}

func TestEmitInstructionDoesNotDoublyAdvancePCForBranches(t *testing.T) {
	e := New()
	e.StartFunction("f")
	require.NoError(t, e.EmitInstruction(100, decoder.Instruction{
		Op: decoder.OpBEQ, Rs1: 1, Rs2: 2,
		Imm:  decoder.Immediate{},
		Size: 4,
	}))
	e.EndFunction()
	out := e.Finalize()
	// A branch writes $pc itself in both arms; it must not also get the
	// uniform +Size advance appended after lower() returns.
	lines := strings.Split(out, "\n")
	setPCCount := 0
	for _, l := range lines {
		if strings.Contains(l, "global.set $pc") {
			setPCCount++
		}
	}
	assert.Equal(t, 2, setPCCount) // once per branch arm, no extra advance
}

func TestEmitInstructionSuppressesX0Writes(t *testing.T) {
	e := New()
	e.StartFunction("f")
	require.NoError(t, e.EmitInstruction(0, decoder.Instruction{Op: decoder.OpADD, Rd: 0, Rs1: 1, Rs2: 2, Size: 4}))
	e.EndFunction()
	out := e.Finalize()
	assert.Contains(t, out, "drop")
	assert.NotContains(t, out, "global.set $x0")
}

func TestEmitInstructionUnsupportedIsNoOp(t *testing.T) {
	e := New()
	e.StartFunction("f")
	require.NoError(t, e.EmitInstruction(0, decoder.Instruction{
		Family: decoder.FamilyUnknown, Op: decoder.OpUnsupported, Raw: 0xdeadbeef, Size: 4,
	}))
	e.EndFunction()
	out := e.Finalize()
	assert.Contains(t, out, ";; unsupported instruction")
	assert.Contains(t, out, "i64.const 4") // PC still advances past an unsupported word
}

func TestLowerJALWritesLinkAndTarget(t *testing.T) {
	lines, err := lower(0x1000, decoder.Instruction{
		Op: decoder.OpJAL, Rd: 1,
		Imm: decoder.Immediate{}, // Signed() == 0, target == pc
	})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "i64.const 4100") // pc+4 link value
	assert.Contains(t, joined, "global.set $x1")
	assert.Contains(t, joined, "global.set $pc")
}

func TestLowerJALZeroRdSkipsLink(t *testing.T) {
	lines, err := lower(0x1000, decoder.Instruction{Op: decoder.OpJAL, Rd: 0})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.NotContains(t, joined, "global.set $x0")
}

func TestLowerDivByZeroChecksDivisor(t *testing.T) {
	lines, err := lower(0, decoder.Instruction{Op: decoder.OpDIV, Rd: 1, Rs1: 2, Rs2: 3})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "i64.eqz")
	assert.Contains(t, joined, "i64.const -1")
	assert.Contains(t, joined, "i64.div_s")
}

func TestLowerRemByZeroReturnsDividend(t *testing.T) {
	lines, err := lower(0, decoder.Instruction{Op: decoder.OpREMU, Rd: 1, Rs1: 2, Rs2: 3})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "global.get $x2") // dividend, on the zero-divisor arm
	assert.Contains(t, joined, "i64.rem_u")
}

func TestLowerECALLPassesSevenRegisters(t *testing.T) {
	lines, err := lower(0, decoder.Instruction{Op: decoder.OpECALL})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "global.get $x17") // a7: syscall number
	assert.Contains(t, joined, "global.get $x10") // a0
	assert.Contains(t, joined, "global.get $x15") // a5
	assert.Contains(t, joined, "call $syscall")
	assert.Contains(t, joined, "global.set $x10") // return value
}

func TestLowerLoadStoreCallAddressTranslation(t *testing.T) {
	lines, err := lower(0, decoder.Instruction{Op: decoder.OpLW, Rd: 1, Rs1: 2})
	require.NoError(t, err)
	assert.Contains(t, strings.Join(lines, "\n"), "call $vaddr_to_offset")

	lines, err = lower(0, decoder.Instruction{Op: decoder.OpSD, Rs1: 2, Rs2: 3})
	require.NoError(t, err)
	assert.Contains(t, strings.Join(lines, "\n"), "call $vaddr_to_offset")
}

func TestLowerMULHComputesSignedHighProductViaPartialProducts(t *testing.T) {
	lines, err := lower(0, decoder.Instruction{Op: decoder.OpMULH, Rd: 1, Rs1: 2, Rs2: 3})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "i64.mul")
	assert.Contains(t, joined, "i64.shr_u")
	assert.Contains(t, joined, "i64.lt_s") // sign-correction term for both operands
	assert.Contains(t, joined, "global.set $x1")
	// two correction terms subtracted (rs1 and rs2 both signed)
	assert.Equal(t, 2, strings.Count(joined, "i64.sub"))
}

func TestLowerMULHUHasNoSignCorrection(t *testing.T) {
	lines, err := lower(0, decoder.Instruction{Op: decoder.OpMULHU, Rd: 1, Rs1: 2, Rs2: 3})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.NotContains(t, joined, "i64.lt_s")
	assert.NotContains(t, joined, "i64.sub")
}

func TestLowerMULHSUAppliesOneSignCorrectionTerm(t *testing.T) {
	lines, err := lower(0, decoder.Instruction{Op: decoder.OpMULHSU, Rd: 1, Rs1: 2, Rs2: 3})
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Equal(t, 1, strings.Count(joined, "i64.sub"))
}

func TestVTypeVLMaxMatchesSEWLMULEncoding(t *testing.T) {
	// sew field 2 (bits 5:3) encodes SEW = 8<<2 = 32; lmul field (bits
	// 2:0) selects the multiplier. VLMAX = (VLEN/SEW) * LMUL.
	const sewField2 = 2 << 3
	assert.Equal(t, int64(64), vtypeVLMax(sewField2|0))  // lmul field 0b000 -> x1: 2048/32
	assert.Equal(t, int64(128), vtypeVLMax(sewField2|1)) // lmul field 0b001 -> x2
	assert.Equal(t, int64(32), vtypeVLMax(sewField2|7))  // lmul field 0b111 -> x0.5
}

func TestVTypeVLMaxReservedLMULIsZero(t *testing.T) {
	assert.Equal(t, int64(0), vtypeVLMax(0b100)) // lmul field 0b100 is reserved
}

func TestVSetVLIWritesComputedVLAndVType(t *testing.T) {
	// sew field 0 (SEW=8), lmul field 0 (x1): vlmax = 2048/8 = 256.
	// rs1 != 0 so avl is read from x6 at runtime and clamped to vlmax.
	in := decodeWord(encVSetVLI(5, 6, 0))
	require.Equal(t, decoder.OpVSetVLI, in.Op)
	lines, err := lower(0, in)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "global.get $x6")
	assert.Contains(t, joined, "i64.const 256")
	assert.Contains(t, joined, "global.set $vl")
	assert.Contains(t, joined, "global.set $x5")
}

func TestVSetVLIRS1ZeroRDZeroKeepsClampedVL(t *testing.T) {
	in := decodeWord(encVSetVLI(0, 0, 0))
	lines, err := lower(0, in)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "global.get $vl")
	assert.Contains(t, joined, "drop") // rd==0: result dropped, not written
}

func TestVSetVLIRS1ZeroRDNonzeroSetsVLMax(t *testing.T) {
	in := decodeWord(encVSetVLI(5, 0, 0))
	lines, err := lower(0, in)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "i64.const 256")
	assert.Contains(t, joined, "global.set $vl")
	assert.Contains(t, joined, "global.set $x5")
}

func TestVSetIVLIClampsImmediateAVLToVLMax(t *testing.T) {
	// vtype = sew field 3 << 3 (SEW=64), lmul field 0b111 (x0.5): vlmax =
	// 2048/64/2 = 16. uimm (5 bits, carried in Rs1) requests 20, above
	// vlmax — expect the clamp.
	in := decodeWord(encVSetIVLI(5, 20, 3<<3|7))
	require.Equal(t, decoder.OpVSetIVLI, in.Op)
	lines, err := lower(0, in)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "i64.const 16")
	assert.NotContains(t, joined, "i64.const 20")
}

func TestOpNameCoversEveryOp(t *testing.T) {
	for op := decoder.OpADD; op <= decoder.OpUnsupported; op++ {
		assert.NotEqual(t, "INVALID", opName(op), "op %d should have a name", op)
	}
}
