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

package addrmap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/elfreader"
)

type sectionSpec struct {
	name  string
	typ   uint32
	flags uint64
	addr  uint64
	data  []byte
	size  uint64 // sh_size for SHT_NOBITS sections, which carry no data
}

func buildELF64(t *testing.T, entry uint64, specs []sectionSpec) []byte {
	t.Helper()

	var names []byte
	names = append(names, 0)
	nameOff := map[string]uint32{}
	for _, s := range specs {
		nameOff[s.name] = uint32(len(names))
		names = append(names, []byte(s.name)...)
		names = append(names, 0)
	}
	shstrtabNameOff := uint32(len(names))
	names = append(names, []byte(".shstrtab")...)
	names = append(names, 0)

	const ehsize = 64
	const shentsize = 64

	var body []byte
	sectionOffsets := make([]uint64, len(specs))
	for i, s := range specs {
		if s.typ == 8 {
			sectionOffsets[i] = ehsize
			continue
		}
		sectionOffsets[i] = ehsize + uint64(len(body))
		body = append(body, s.data...)
	}
	strtabOffset := ehsize + uint64(len(body))
	body = append(body, names...)

	shoff := ehsize + uint64(len(body))
	shnum := len(specs) + 1

	hdr := make([]byte, ehsize)
	hdr[0], hdr[1], hdr[2], hdr[3] = 0x7f, 'E', 'L', 'F'
	hdr[4] = byte(elfreader.Class64)
	hdr[5] = 1
	binary.LittleEndian.PutUint16(hdr[18:20], uint16(elfreader.MachineRISCV))
	binary.LittleEndian.PutUint64(hdr[24:32], entry)
	binary.LittleEndian.PutUint64(hdr[40:48], shoff)
	binary.LittleEndian.PutUint16(hdr[58:60], shentsize)
	binary.LittleEndian.PutUint16(hdr[60:62], uint16(shnum))
	binary.LittleEndian.PutUint16(hdr[62:64], uint16(len(specs)))

	out := append(hdr, body...)
	for i, s := range specs {
		sh := make([]byte, shentsize)
		binary.LittleEndian.PutUint32(sh[0:4], nameOff[s.name])
		binary.LittleEndian.PutUint32(sh[4:8], s.typ)
		binary.LittleEndian.PutUint64(sh[8:16], s.flags)
		binary.LittleEndian.PutUint64(sh[16:24], s.addr)
		binary.LittleEndian.PutUint64(sh[24:32], sectionOffsets[i])
		size := uint64(len(s.data))
		if s.typ == 8 {
			size = s.size
		}
		binary.LittleEndian.PutUint64(sh[32:40], size)
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

func TestBuildCollectsCandidateSegments(t *testing.T) {
	data := buildELF64(t, 0x10000, []sectionSpec{
		{name: ".text", typ: 1, flags: elfreader.SHFAlloc | elfreader.SHFExecInstr, addr: 0x10000, data: []byte{1, 2, 3, 4}},
		{name: ".rodata", typ: 1, flags: elfreader.SHFAlloc, addr: 0x11000, data: []byte{5, 6}},
		{name: ".data", typ: 1, flags: elfreader.SHFAlloc | elfreader.SHFWrite, addr: 0x12000, data: []byte{7}},
		{name: ".bss", typ: 8, flags: elfreader.SHFAlloc | elfreader.SHFWrite, addr: 0x13000, data: nil, size: 0x100},
		{name: ".symtab", typ: 2, flags: 0, addr: 0, data: []byte("ignored")},
	})
	f, err := elfreader.New(data)
	require.NoError(t, err)

	m, err := Build(f, 0x100000)
	require.NoError(t, err)

	assert.Len(t, m.Segments, 4)
	assert.EqualValues(t, 0, m.VaddrBase)
	assert.EqualValues(t, 0x100000, m.MemoryBase)

	var names []string
	for _, s := range m.Segments {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{".text", ".rodata", ".data", ".bss"}, names)

	for _, s := range m.Segments {
		if s.Name == ".bss" {
			assert.Nil(t, s.Data)
		}
		if s.Name == ".data" {
			assert.True(t, s.Writable)
		}
		if s.Name == ".text" {
			assert.True(t, s.Executable)
		}
	}
}

func TestBuildInitializersAndLinearOffsets(t *testing.T) {
	data := buildELF64(t, 0x10000, []sectionSpec{
		{name: ".text", typ: 1, flags: elfreader.SHFAlloc | elfreader.SHFExecInstr, addr: 0x10000, data: []byte{1, 2, 3, 4}},
		{name: ".bss", typ: 8, flags: elfreader.SHFAlloc | elfreader.SHFWrite, addr: 0x20000, data: nil, size: 0x100},
	})
	f, err := elfreader.New(data)
	require.NoError(t, err)

	const memoryBase = 0x40000
	m, err := Build(f, memoryBase)
	require.NoError(t, err)

	require.Len(t, m.Initializers, 2)
	for _, init := range m.Initializers {
		switch len(init.Bytes) {
		case 4:
			assert.Equal(t, []byte{1, 2, 3, 4}, init.Bytes)
			assert.EqualValues(t, 0x10000+memoryBase, init.LinearOffset)
		default: // BSS: zero-filled, size from its section header
			for _, b := range init.Bytes {
				assert.Zero(t, b)
			}
		}
	}

	assert.EqualValues(t, m.VaddrToLinear(0x10000), 0x10000+memoryBase)
}

func TestBuildPageCountRoundsUp(t *testing.T) {
	data := buildELF64(t, 0, []sectionSpec{
		{name: ".data", typ: 1, flags: elfreader.SHFAlloc | elfreader.SHFWrite, addr: 0, data: make([]byte, 70*1024)},
	})
	f, err := elfreader.New(data)
	require.NoError(t, err)

	m, err := Build(f, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.PageCount) // 70KiB needs 2 64KiB pages
}

func TestBuildIgnoresNonCandidateOrZeroSizeSections(t *testing.T) {
	data := buildELF64(t, 0, []sectionSpec{
		{name: ".text", typ: 1, flags: elfreader.SHFAlloc | elfreader.SHFExecInstr, addr: 0, data: nil},
		{name: ".note", typ: 1, flags: elfreader.SHFAlloc, addr: 0x1000, data: []byte{1}},
	})
	f, err := elfreader.New(data)
	require.NoError(t, err)

	m, err := Build(f, 0)
	require.NoError(t, err)
	assert.Empty(t, m.Segments) // .text has size 0, .note doesn't match candidate names
}
