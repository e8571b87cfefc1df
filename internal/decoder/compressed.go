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

package decoder

// decodeCompressed decodes a single 16-bit (RVC) instruction, expanding it
// to the equivalent base Instruction with Size=2. Every compressed form
// folds onto one of the RV32I/RV64I/RV32M ops already in the Op enum, so
// the emitter needs no RVC-specific lowering rules (spec.md §9: "the
// decoder contract already accommodates it").
//
// riscv-spec-v2.2.pdf; Table 12.5; Pages 82-83. Grounded on the teacher's
// rvc.go, generalized from a closure-dispatch table to tagged Instructions.
func decodeCompressed(in uint16) Instruction {
	raw := uint64(in)
	if in == 0 {
		return Instruction{Family: FamilyUnknown, Raw: raw, Size: 2}
	}

	switch in>>11&0x1c | in&0x3 {
	case 0x00: // C.ADDI4SPN (RES, nzuimm=0)
		imm, r := decodeCIW(in)
		imm = imm&0xc0>>2 | imm&0x3c<<4 | imm&0x2<<1 | imm&0x1<<3
		return Instruction{Family: FamilyRV32I, Op: OpADDI, Rd: uint8(r), Rs1: RegSP, Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x08: // C.LW
		imm, r1, r2 := decodeCL(in)
		imm = (imm<<5 | imm) & 0x3e << 1
		return Instruction{Family: FamilyRV32I, Op: OpLW, Rd: uint8(r2), Rs1: uint8(r1), Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x0C: // C.LD (RV64)
		imm, r1, r2 := decodeCL(in)
		imm = (imm<<6 | imm<<1) & 0xf8
		return Instruction{Family: FamilyRV64I, Op: OpLD, Rd: uint8(r2), Rs1: uint8(r1), Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x18: // C.SW
		imm, r1, r2 := decodeCS(in)
		imm = (imm<<5 | imm) << 1 & 0x7c
		return Instruction{Family: FamilyRV32I, Op: OpSW, Rs1: uint8(r1), Rs2: uint8(r2), Imm: Immediate{Kind: ImmS, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x1C: // C.SD (RV64)
		imm, r1, r2 := decodeCS(in)
		imm = (imm<<5 | imm) << 1 & 0xf8
		return Instruction{Family: FamilyRV64I, Op: OpSD, Rs1: uint8(r1), Rs2: uint8(r2), Imm: Immediate{Kind: ImmS, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x01: // C.NOP; C.ADDI (HINT, nzimm=0)
		imm, r := decodeCI(in)
		if r == RegZero {
			return Instruction{Family: FamilyNOP, Op: OpNOP, Raw: raw, Size: 2}
		}
		return Instruction{Family: FamilyRV32I, Op: OpADDI, Rd: uint8(r), Rs1: uint8(r), Imm: Immediate{Kind: ImmI, value: signExtend(imm, 5)}, Raw: raw, Size: 2}
	case 0x05: // C.ADDIW (RV64/128; RES, rd=0)
		imm, r := decodeCI(in)
		return Instruction{Family: FamilyRV64I, Op: OpADDIW, Rd: uint8(r), Rs1: uint8(r), Imm: Immediate{Kind: ImmI, value: signExtend(imm, 5)}, Raw: raw, Size: 2}
	case 0x09: // C.LI (HINT, rd=0)
		imm, r := decodeCI(in)
		return Instruction{Family: FamilyRV32I, Op: OpADDI, Rd: uint8(r), Rs1: RegZero, Imm: Immediate{Kind: ImmI, value: signExtend(imm, 5)}, Raw: raw, Size: 2}
	case 0x0D: // C.ADDI16SP (RES, nzimm=0); C.LUI (RES, nzimm=0; HINT, rd=0)
		imm, r := decodeCI(in)
		if r != RegSP {
			nz20 := uint64(signExtend(imm, 5)) & 0xFFFFF
			return Instruction{Family: FamilyRV32I, Op: OpLUI, Rd: uint8(r), Imm: Immediate{Kind: ImmU, value: int64(nz20)}, Raw: raw, Size: 2}
		}
		imm = imm&0x20<<4 | imm&0x10 | imm&0x8<<3 | imm&0x6<<6 | imm&0x1<<5
		return Instruction{Family: FamilyRV32I, Op: OpADDI, Rd: RegSP, Rs1: RegSP, Imm: Immediate{Kind: ImmI, value: signExtend(imm, 9)}, Raw: raw, Size: 2}
	case 0x11:
		imm, r := decodeShiftCB(in)
		switch in >> 10 & 0x3 {
		case 0x00: // C.SRLI
			return Instruction{Family: FamilyRV32I, Op: OpSRLI, Rd: uint8(r), Rs1: uint8(r), Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
		case 0x01: // C.SRAI
			return Instruction{Family: FamilyRV32I, Op: OpSRAI, Rd: uint8(r), Rs1: uint8(r), Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
		case 0x02: // C.ANDI
			return Instruction{Family: FamilyRV32I, Op: OpANDI, Rd: uint8(r), Rs1: uint8(r), Imm: Immediate{Kind: ImmI, value: signExtend(imm, 5)}, Raw: raw, Size: 2}
		}
		_, r1, r2 := decodeCS(in)
		switch (in >> 8 & 0x1c) | (in >> 5 & 0x3) {
		case 0xc: // C.SUB
			return Instruction{Family: FamilyRV32I, Op: OpSUB, Rd: uint8(r1), Rs1: uint8(r1), Rs2: uint8(r2), Raw: raw, Size: 2}
		case 0xd: // C.XOR
			return Instruction{Family: FamilyRV32I, Op: OpXOR, Rd: uint8(r1), Rs1: uint8(r1), Rs2: uint8(r2), Raw: raw, Size: 2}
		case 0xe: // C.OR
			return Instruction{Family: FamilyRV32I, Op: OpOR, Rd: uint8(r1), Rs1: uint8(r1), Rs2: uint8(r2), Raw: raw, Size: 2}
		case 0xf: // C.AND
			return Instruction{Family: FamilyRV32I, Op: OpAND, Rd: uint8(r1), Rs1: uint8(r1), Rs2: uint8(r2), Raw: raw, Size: 2}
		case 0x1c: // C.SUBW
			return Instruction{Family: FamilyRV64I, Op: OpSUBW, Rd: uint8(r1), Rs1: uint8(r1), Rs2: uint8(r2), Raw: raw, Size: 2}
		case 0x1d: // C.ADDW
			return Instruction{Family: FamilyRV64I, Op: OpADDW, Rd: uint8(r1), Rs1: uint8(r1), Rs2: uint8(r2), Raw: raw, Size: 2}
		default: // reserved
			return Instruction{Family: FamilyUnknown, Raw: raw, Size: 2}
		}
	case 0x15: // C.J
		imm := decodeCJ(in)
		imm = imm&0x200>>5 | imm&0x40<<4 | imm&0x5a0<<1 | imm&0x10<<3 | imm&0xe | imm&1<<5
		return Instruction{Family: FamilyRV32I, Op: OpJAL, Rd: RegZero, Imm: Immediate{Kind: ImmJ, value: signExtend(imm, 11)}, Raw: raw, Size: 2}
	case 0x19: // C.BEQZ
		imm, r := decodeCB(in)
		imm = imm&0x80<<1 | imm&0x60>>2 | imm&0x18<<3 | imm&0x6 | imm&0x1<<5
		return Instruction{Family: FamilyRV32I, Op: OpBEQ, Rs1: uint8(r), Rs2: RegZero, Imm: Immediate{Kind: ImmB, value: signExtend(imm, 8)}, Raw: raw, Size: 2}
	case 0x1D: // C.BNEZ
		imm, r := decodeCB(in)
		imm = imm&0x80<<1 | imm&0x60>>2 | imm&0x18<<3 | imm&0x6 | imm&0x1<<5
		return Instruction{Family: FamilyRV32I, Op: OpBNE, Rs1: uint8(r), Rs2: RegZero, Imm: Immediate{Kind: ImmB, value: signExtend(imm, 8)}, Raw: raw, Size: 2}
	case 0x02: // C.SLLI
		imm, r := decodeCI(in)
		return Instruction{Family: FamilyRV32I, Op: OpSLLI, Rd: uint8(r), Rs1: uint8(r), Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x0A: // C.LWSP (RES, rd=0)
		imm, r := decodeCI(in)
		imm = (imm<<6 | imm) & 0xfc
		return Instruction{Family: FamilyRV32I, Op: OpLW, Rd: uint8(r), Rs1: RegSP, Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x0E: // C.LDSP (RV64/128; RES, rd=0)
		imm, r := decodeCI(in)
		imm = (imm<<6 | imm) & 0x1f8
		return Instruction{Family: FamilyRV64I, Op: OpLD, Rd: uint8(r), Rs1: RegSP, Imm: Immediate{Kind: ImmI, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x12:
		r1, r2 := decodeCR(in)
		b := in & 0x1000
		switch {
		case b == 0 && r2 == 0: // C.JR
			return Instruction{Family: FamilyRV32I, Op: OpJALR, Rd: RegZero, Rs1: uint8(r1), Raw: raw, Size: 2}
		case b == 0: // C.MV
			return Instruction{Family: FamilyRV32I, Op: OpADD, Rd: uint8(r1), Rs1: RegZero, Rs2: uint8(r2), Raw: raw, Size: 2}
		case b == 0x1000 && r1 == 0 && r2 == 0: // C.EBREAK
			return Instruction{Family: FamilyRV32I, Op: OpEBREAK, Raw: raw, Size: 2}
		case b == 0x1000 && r2 == 0: // C.JALR
			return Instruction{Family: FamilyRV32I, Op: OpJALR, Rd: RegRA, Rs1: uint8(r1), Raw: raw, Size: 2}
		default: // C.ADD
			return Instruction{Family: FamilyRV32I, Op: OpADD, Rd: uint8(r1), Rs1: uint8(r1), Rs2: uint8(r2), Raw: raw, Size: 2}
		}
	case 0x1A: // C.SWSP
		imm, r := decodeCSS(in)
		imm = (imm<<6 | imm) & 0xfc
		return Instruction{Family: FamilyRV32I, Op: OpSW, Rs1: RegSP, Rs2: uint8(r), Imm: Immediate{Kind: ImmS, value: int64(imm)}, Raw: raw, Size: 2}
	case 0x1E: // C.SDSP (RV64/128)
		imm, r := decodeCSS(in)
		imm = (imm<<6 | imm) & 0x1f8
		return Instruction{Family: FamilyRV64I, Op: OpSD, Rs1: RegSP, Rs2: uint8(r), Imm: Immediate{Kind: ImmS, value: int64(imm)}, Raw: raw, Size: 2}
	default: // C.FLD/C.FLW/C.FSD/C.FSW/C.FLDSP/C.FSDSP and reserved encodings
		return Instruction{Family: FamilyUnknown, Raw: raw, Size: 2}
	}
}

func decodeCR(in uint16) (r1, r2 uint64) {
	return uint64(in >> 7 & 0x1f), uint64(in >> 2 & 0x1f)
}

func decodeCI(in uint16) (imm, r uint64) {
	return uint64(in>>7&0x20 | in>>2&0x1f), uint64(in >> 7 & 0x1f)
}

func decodeCSS(in uint16) (imm, r uint64) {
	return uint64(in >> 7 & 0x3f), uint64(in >> 2 & 0x1f)
}

// rvcRegOffset maps a 3-bit RVC register number (x8..x15) onto the full
// 5-bit register space.
const rvcRegOffset = 8

func decodeCIW(in uint16) (imm, r uint64) {
	return uint64(in >> 5 & 0xff), uint64(in>>2&0x7) + rvcRegOffset
}

func decodeCL(in uint16) (imm, r1, r2 uint64) {
	return uint64(in>>8&0x1c | in>>5&0x3), uint64(in>>7&0x7) + rvcRegOffset, uint64(in>>2&0x7) + rvcRegOffset
}

func decodeCS(in uint16) (imm, r1, r2 uint64) {
	return uint64(in>>8&0x1c | in>>5&0x3), uint64(in>>7&0x7) + rvcRegOffset, uint64(in>>2&0x7) + rvcRegOffset
}

func decodeCB(in uint16) (imm, r uint64) {
	return uint64(in>>5&0xe0 | in>>2&0x1f), uint64(in>>7&0x7) + rvcRegOffset
}

func decodeShiftCB(in uint16) (offset, r uint64) {
	return uint64(in&0x1000>>7 | in>>2&0x1f), uint64(in>>7&0x7) + rvcRegOffset
}

func decodeCJ(in uint16) (offset uint64) {
	return uint64((in >> 2) & 0x7ff)
}
