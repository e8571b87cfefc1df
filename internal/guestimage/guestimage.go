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

// Package guestimage builds the initial process image a RISC-V Linux
// binary expects to find on entry: the argv/envp/auxv stack frame and
// the thread-local-storage block that tp points at. internal/rvruntime
// supplies the laid-out bytes as ordinary memory initializers and the
// computed sp/tp values as the two registers it pre-seeds before
// calling into the guest.
//
// The stack is built by decrementing a cursor from a high address and
// writing downward, the same shape LMMilewski-riscv-emu's argv/envp
// setup uses for pushCString/pushUint64 — generalized here with the
// auxiliary vector, platform string, and AT_RANDOM block a real libc
// start routine also expects.
package guestimage

import "encoding/binary"

// Auxiliary vector type numbers (elf.h, RISC-V and generic Linux share
// these values).
const (
	atNull     = 0
	atPhdr     = 3
	atPhent    = 4
	atPhnum    = 5
	atPagesz   = 6
	atBase     = 7
	atFlags    = 8
	atEntry    = 9
	atUID      = 11
	atEUID     = 12
	atGID      = 13
	atEGID     = 14
	atPlatform = 15
	atHWCap    = 16
	atClktck   = 17
	atSecure   = 23
	atRandom   = 25
	atExecFn   = 31
)

// Linux user-space constants this image assumes for the guest libc.
// These describe the guest's virtual machine, not the host's; they are
// unrelated to wasmPageSize in internal/addrmap.
const (
	GuestPageSize = 4096

	// HeaderPrefixVaddr is where the ELF header and program header
	// table prefix is loaded so AT_PHDR resolves into valid guest
	// memory, per the runtime's header-loading step.
	HeaderPrefixVaddr = 0x10000

	elf64HeaderSize = 0x40

	tlsSize       = 4096
	tlsGap        = 256
	defaultStack  = 8 * 1024 * 1024
	stackAlign    = 16
	regionPadding = GuestPageSize
)

// Params describes the one guest process an Image is built for.
type Params struct {
	Argv []string
	Envp []string

	EntryPoint uint64
	PhdrVaddr  uint64
	PhentSize  uint64
	PhNum      uint64

	// RegionBase is the first free linear address above every loaded
	// ELF segment; the TLS block and stack are placed starting here.
	RegionBase uint64

	UID, EUID, GID, EGID uint64
}

// Initializer is one (offset, bytes) memory write, matching
// internal/addrmap.Initializer's shape so the runtime can append both
// lists before handing them to the compiled module.
type Initializer struct {
	LinearOffset uint64
	Bytes        []byte
}

// Image is the built stack/TLS region plus the register values the
// runtime must pre-seed.
type Image struct {
	Initializers []Initializer

	SP uint64 // points at the argc slot
	TP uint64 // end of the TLS area

	// RegionEnd is the first linear address above the whole stack/TLS
	// region, so the runtime can size the guest's linear memory.
	RegionEnd uint64
}

func alignDown(v, n uint64) uint64 { return v &^ (n - 1) }
func alignUp(v, n uint64) uint64   { return (v + n - 1) &^ (n - 1) }

// builder accumulates a downward-growing stack image starting at top.
type builder struct {
	sp   uint64
	init []Initializer
}

func (b *builder) write(addr uint64, bs []byte) {
	b.init = append(b.init, Initializer{LinearOffset: addr, Bytes: bs})
}

// pushCString writes s followed by a NUL terminator and returns the
// address the string now starts at.
func (b *builder) pushCString(s string) uint64 {
	bs := []byte(s)
	b.sp -= uint64(len(bs) + 1)
	buf := make([]byte, len(bs)+1)
	copy(buf, bs)
	b.write(b.sp, buf)
	return b.sp
}

// pushZeroBlock reserves n zero bytes and returns their start address.
func (b *builder) pushZeroBlock(n uint64) uint64 {
	b.sp -= n
	return b.sp
}

// pushUint64 pushes one 8-byte little-endian word.
func (b *builder) pushUint64(v uint64) {
	b.sp -= 8
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	b.write(b.sp, buf)
}

// pushAux pushes one (type, value) auxv pair so that type ends up at
// the lower address of the two words, matching Elf64_auxv_t's layout.
func (b *builder) pushAux(typ, val uint64) {
	b.pushUint64(val)
	b.pushUint64(typ)
}

// Build lays out the stack, TLS block, and return register values for
// one guest process invocation.
func Build(p Params) *Image {
	argv := p.Argv
	if len(argv) == 0 {
		argv = []string{"a.out"}
	}

	tlsBase := alignUp(p.RegionBase, 16)
	tlsEnd := tlsBase + tlsSize
	stackBase := tlsEnd + tlsGap
	stackTop := alignUp(stackBase+defaultStack, GuestPageSize)

	b := &builder{sp: stackTop}

	envAddrs := make([]uint64, len(p.Envp))
	for i := len(p.Envp) - 1; i >= 0; i-- {
		envAddrs[i] = b.pushCString(p.Envp[i])
	}
	argvAddrs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		argvAddrs[i] = b.pushCString(argv[i])
	}
	b.sp = alignDown(b.sp, stackAlign)

	randomAddr := b.pushZeroBlock(16)
	b.write(randomAddr, make([]byte, 16))

	platformAddr := b.pushCString("riscv64")
	progNameAddr := argvAddrs[0]

	// Pushed in the reverse of the forward (low-to-high) layout: the
	// first call here lands at the highest address in the block, the
	// last call lands adjacent to the envp terminator below it. The
	// forward reading order a libc start routine sees is therefore
	// AT_EXECFN, AT_FLAGS, AT_BASE, AT_PLATFORM, AT_CLKTCK, AT_HWCAP,
	// AT_SECURE, AT_EGID, AT_GID, AT_EUID, AT_UID, AT_ENTRY, AT_PHNUM,
	// AT_PHENT, AT_PHDR, AT_RANDOM, AT_PAGESZ, AT_NULL.
	b.pushAux(atNull, 0)
	b.pushAux(atPagesz, GuestPageSize)
	b.pushAux(atRandom, randomAddr)
	b.pushAux(atPhdr, p.PhdrVaddr)
	b.pushAux(atPhent, p.PhentSize)
	b.pushAux(atPhnum, p.PhNum)
	b.pushAux(atEntry, p.EntryPoint)
	b.pushAux(atUID, p.UID)
	b.pushAux(atEUID, p.EUID)
	b.pushAux(atGID, p.GID)
	b.pushAux(atEGID, p.EGID)
	b.pushAux(atSecure, 0)
	b.pushAux(atHWCap, 0)
	b.pushAux(atClktck, 100)
	b.pushAux(atPlatform, platformAddr)
	b.pushAux(atBase, 0)
	b.pushAux(atFlags, 0)
	b.pushAux(atExecFn, progNameAddr)

	b.pushUint64(0) // envp terminator
	for i := len(envAddrs) - 1; i >= 0; i-- {
		b.pushUint64(envAddrs[i])
	}
	b.pushUint64(0) // argv terminator
	for i := len(argvAddrs) - 1; i >= 0; i-- {
		b.pushUint64(argvAddrs[i])
	}
	b.pushUint64(uint64(len(argv))) // argc

	return &Image{
		Initializers: b.init,
		SP:           b.sp,
		TP:           tlsEnd,
		RegionEnd:    stackTop + regionPadding,
	}
}

// elfFile is the subset of *elfreader.ElfFile this package needs,
// narrowed to keep guestimage from importing elfreader's error types
// for a single call.
type elfFile interface {
	HeaderPrefix() ([]byte, error)
}

// LoadHeaderPrefix returns the memory initializer that places the ELF
// header and program header table at HeaderPrefixVaddr, so that
// HeaderPrefixVaddr+elf64HeaderSize (0x10040) is a valid AT_PHDR for
// the guest's libc to read.
func LoadHeaderPrefix(f elfFile) (Initializer, error) {
	prefix, err := f.HeaderPrefix()
	if err != nil {
		return Initializer{}, err
	}
	buf := make([]byte, len(prefix))
	copy(buf, prefix)
	return Initializer{LinearOffset: HeaderPrefixVaddr, Bytes: buf}, nil
}

// PhdrVaddr is the guest address AT_PHDR should carry for a binary
// whose header prefix was loaded via LoadHeaderPrefix.
func PhdrVaddr() uint64 { return HeaderPrefixVaddr + elf64HeaderSize }
