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

// Package addrmap collects the loadable sections of an ELF file into a
// linear-memory layout: one virtual-address-to-linear-offset mapping, a
// page count, and the memory initializers needed to reproduce the
// program's initial image.
package addrmap

import (
	"strings"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/elfreader"
)

// wasmPageSize is the WebAssembly linear memory page size (64 KiB).
const wasmPageSize = 64 * 1024

// Segment is one loadable region of the guest address space.
type Segment struct {
	Name       string
	Vaddr      uint64
	Size       uint64
	Data       []byte // nil for BSS
	Writable   bool
	Executable bool
}

// Initializer is one (offset, bytes) pair to be written into linear memory
// before execution starts.
type Initializer struct {
	LinearOffset uint64
	Bytes        []byte
}

// Map is the address-space layout derived from an ElfFile.
type Map struct {
	Segments     []Segment
	VaddrBase    uint64
	MemoryBase   uint64
	PageCount    uint32
	Initializers []Initializer
}

// candidateNames names that must be present in a section's name for it to
// be treated as a loadable segment (spec §4.3).
var candidateNames = []string{"text", "data", "rodata", "bss"}

func isCandidate(name string) bool {
	for _, n := range candidateNames {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

// Build derives a Map from f. memoryBase is the linear-memory offset at
// which the guest's virtual address space begins; vaddr_base is fixed at
// 0 per the construction algorithm (so a NULL guest pointer reads as
// linear offset memoryBase, letting the host detect null derefs without
// a vaddr rebase — see DESIGN.md's Open Question note).
func Build(f *elfreader.ElfFile, memoryBase uint64) (*Map, error) {
	secs, err := f.Sections()
	if err != nil {
		return nil, err
	}

	type candidate struct {
		name string
		sec  elfreader.Section
	}
	var candidates []candidate
	for _, s := range secs {
		if !s.Alloc() || s.Size == 0 {
			continue
		}
		name, err := f.SectionName(s)
		if err != nil {
			return nil, err
		}
		if !isCandidate(name) {
			continue
		}
		candidates = append(candidates, candidate{name: name, sec: s})
	}

	m := &Map{VaddrBase: 0, MemoryBase: memoryBase}

	var maxEnd uint64
	for _, c := range candidates {
		data, err := f.Bytes(c.sec)
		if err != nil {
			return nil, err
		}
		linearOffset := c.sec.Addr - m.VaddrBase + memoryBase

		seg := Segment{
			Name:       c.name,
			Vaddr:      c.sec.Addr,
			Size:       c.sec.Size,
			Data:       data,
			Writable:   c.sec.Writable(),
			Executable: c.sec.Executable(),
		}
		m.Segments = append(m.Segments, seg)

		if data != nil {
			padded := make([]byte, c.sec.Size)
			copy(padded, data)
			m.Initializers = append(m.Initializers, Initializer{LinearOffset: linearOffset, Bytes: padded})
		} else {
			m.Initializers = append(m.Initializers, Initializer{LinearOffset: linearOffset, Bytes: make([]byte, c.sec.Size)})
		}

		if end := linearOffset + c.sec.Size; end > maxEnd {
			maxEnd = end
		}
	}

	m.PageCount = pageCount(maxEnd)
	return m, nil
}

func pageCount(bytes uint64) uint32 {
	if bytes == 0 {
		return 1
	}
	pages := (bytes + wasmPageSize - 1) / wasmPageSize
	return uint32(pages)
}

// VaddrToLinear performs the host-side equivalent of the emitted module's
// $vaddr_to_offset helper, used only for initial memory loading (spec
// §4.3 — the emitted module itself does this translation inline).
func (m *Map) VaddrToLinear(vaddr uint64) uint64 {
	return vaddr - m.VaddrBase + m.MemoryBase
}
