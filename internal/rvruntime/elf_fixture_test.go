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
	"encoding/binary"
	"testing"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/elfreader"
)

// rvSection is one allocated section of a fixture ELF built by buildRVELF64.
type rvSection struct {
	name  string
	flags uint64
	addr  uint64
	data  []byte
}

// buildRVELF64 assembles a minimal but real ELF64/RISC-V file: a valid
// header, the given allocated sections (each readable via f.Sections()),
// and a .shstrtab naming them, with e_phoff/e_phnum left at zero (an
// empty program header table, which guestimage.LoadHeaderPrefix handles
// as a zero-length, not an error — see internal/guestimage).
func buildRVELF64(t *testing.T, entry uint64, secs []rvSection) []byte {
	t.Helper()

	var names []byte
	names = append(names, 0)
	nameOff := make([]uint32, len(secs))
	for i, s := range secs {
		nameOff[i] = uint32(len(names))
		names = append(names, []byte(s.name)...)
		names = append(names, 0)
	}
	shstrtabNameOff := uint32(len(names))
	names = append(names, []byte(".shstrtab")...)
	names = append(names, 0)

	const ehsize = 64
	const shentsize = 64

	var body []byte
	offsets := make([]uint64, len(secs))
	for i, s := range secs {
		offsets[i] = ehsize + uint64(len(body))
		body = append(body, s.data...)
	}
	strtabOffset := ehsize + uint64(len(body))
	body = append(body, names...)

	shoff := ehsize + uint64(len(body))
	shnum := len(secs) + 1

	hdr := make([]byte, ehsize)
	hdr[0], hdr[1], hdr[2], hdr[3] = 0x7f, 'E', 'L', 'F'
	hdr[4] = byte(elfreader.Class64)
	hdr[5] = 1
	binary.LittleEndian.PutUint16(hdr[18:20], uint16(elfreader.MachineRISCV))
	binary.LittleEndian.PutUint64(hdr[24:32], entry)
	binary.LittleEndian.PutUint64(hdr[40:48], shoff)
	binary.LittleEndian.PutUint16(hdr[58:60], shentsize)
	binary.LittleEndian.PutUint16(hdr[60:62], uint16(shnum))
	binary.LittleEndian.PutUint16(hdr[62:64], uint16(len(secs)))

	out := append(hdr, body...)
	for i, s := range secs {
		sh := make([]byte, shentsize)
		binary.LittleEndian.PutUint32(sh[0:4], nameOff[i])
		binary.LittleEndian.PutUint32(sh[4:8], 1) // SHT_PROGBITS
		binary.LittleEndian.PutUint64(sh[8:16], s.flags)
		binary.LittleEndian.PutUint64(sh[16:24], s.addr)
		binary.LittleEndian.PutUint64(sh[24:32], offsets[i])
		binary.LittleEndian.PutUint64(sh[32:40], uint64(len(s.data)))
		out = append(out, sh...)
	}
	shstrtabSh := make([]byte, shentsize)
	binary.LittleEndian.PutUint32(shstrtabSh[0:4], shstrtabNameOff)
	binary.LittleEndian.PutUint32(shstrtabSh[4:8], 1)
	binary.LittleEndian.PutUint64(shstrtabSh[24:32], strtabOffset)
	binary.LittleEndian.PutUint64(shstrtabSh[32:40], uint64(len(names)))
	out = append(out, shstrtabSh...)
	return out
}

// --- RV64 instruction encoders, used only to build fixture .text bytes. ---

func rType(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func iType(imm, rs1, funct3, rd, opcode uint32) uint32 {
	return (imm&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func uType(imm, rd, opcode uint32) uint32 {
	return (imm&0xfffff)<<12 | rd<<7 | opcode
}

func bType(imm, rs2, rs1, funct3, opcode uint32) uint32 {
	b12 := (imm >> 12) & 0x1
	b10_5 := (imm >> 5) & 0x3f
	b4_1 := (imm >> 1) & 0xf
	b11 := (imm >> 11) & 0x1
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | b4_1<<8 | b11<<7 | opcode
}

func jType(imm, rd, opcode uint32) uint32 {
	j20 := (imm >> 20) & 0x1
	j10_1 := (imm >> 1) & 0x3ff
	j11 := (imm >> 11) & 0x1
	j19_12 := (imm >> 12) & 0xff
	return j20<<31 | j10_1<<21 | j11<<20 | j19_12<<12 | rd<<7 | opcode
}

func encADDI(rd, rs1 uint32, imm int32) uint32 { return iType(uint32(imm), rs1, 0x0, rd, 0x13) }
func encADD(rd, rs1, rs2 uint32) uint32        { return rType(0x00, rs2, rs1, 0x0, rd, 0x33) }
func encECALL() uint32                         { return 0x00000073 }
func encBEQ(rs1, rs2 uint32, imm int32) uint32 { return bType(uint32(imm), rs2, rs1, 0x0, 0x63) }
func encJAL(rd uint32, imm int32) uint32       { return jType(uint32(imm), rd, 0x6f) }
func encJALR(rd, rs1 uint32, imm int32) uint32 { return iType(uint32(imm), rs1, 0x0, rd, 0x67) }
func encLUI(rd uint32, imm20 uint32) uint32    { return uType(imm20, rd, 0x37) }
func encLD(rd, rs1 uint32, imm int32) uint32   { return iType(uint32(imm), rs1, 0x3, rd, 0x03) }

// asBytes concatenates little-endian words into a .text byte slice.
func asBytes(words ...uint32) []byte {
	out := make([]byte, 0, len(words)*4)
	for _, w := range words {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		out = append(out, b[:]...)
	}
	return out
}
