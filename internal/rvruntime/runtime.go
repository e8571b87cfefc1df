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

// Package rvruntime is the glue that turns an ELF file into a running
// guest: it builds the address map, drives internal/emitter over every
// text section, wraps the result in a full module via the runtime's
// own prelude, lays out the argv/envp/auxv/TLS image, compiles and
// instantiates through internal/wasmhost, seeds registers, and runs
// the guest to completion.
package rvruntime

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/addrmap"
	"github.com/Multi-V-VM/DoubleJIT-VM/internal/decoder"
	"github.com/Multi-V-VM/DoubleJIT-VM/internal/elfreader"
	"github.com/Multi-V-VM/DoubleJIT-VM/internal/emitter"
	"github.com/Multi-V-VM/DoubleJIT-VM/internal/guestimage"
	"github.com/Multi-V-VM/DoubleJIT-VM/internal/optimizer"
	"github.com/Multi-V-VM/DoubleJIT-VM/internal/wasmhost"
)

// Options configures one Run invocation.
type Options struct {
	Argv           []string
	Envp           []string
	OptimizerLevel optimizer.Level

	// PrintWAT, when set, writes the fully assembled module text to
	// Stderr before compiling it — the PRINT_WAT=1 escape hatch.
	PrintWAT bool

	Stdout io.Writer
	Stderr io.Writer
	Log    *zap.Logger

	// UID/GID answer getuid/getgid and friends; StartTime seeds the
	// clock syscalls. Both default to harmless constants when zero.
	UID, GID  uint64
	StartTime int64

	// MaxInstructions caps the guest dispatch loop; 0 means unlimited.
	MaxInstructions uint64
}

func (o *Options) setDefaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

// Result is what a completed Run reports back.
type Result struct {
	ExitCode   int32
	InstrCount uint64
	WAT        string
	Stats      optimizer.Stats
}

// Run implements the ten-step translate/load/execute sequence: parse
// the ELF, build the address map, emit WAT for every text section,
// wrap it in the module prelude, optimize, compile, instantiate, lay
// out the guest stack, seed registers, and run to exit.
func Run(ctx context.Context, elfPath string, opts Options) (Result, error) {
	opts.setDefaults()

	data, err := os.ReadFile(elfPath)
	if err != nil {
		return Result{}, fmt.Errorf("rvruntime: read %s: %w", elfPath, err)
	}

	f, err := elfreader.New(data)
	if err != nil {
		return Result{}, fmt.Errorf("rvruntime: parse elf: %w", err)
	}

	const memoryBase = 0
	amap, err := addrmap.Build(f, memoryBase)
	if err != nil {
		return Result{}, fmt.Errorf("rvruntime: build address map: %w", err)
	}

	em := emitter.New()
	em.StartFunction("translated_code")
	em.StartLoop()
	var maxVaddrEnd, maxSegEnd uint64
	for _, seg := range amap.Segments {
		if end := seg.Vaddr + seg.Size; end > maxSegEnd {
			maxSegEnd = end
		}
		if !strings.Contains(seg.Name, "text") || seg.Data == nil {
			continue
		}
		if end := seg.Vaddr + seg.Size; end > maxVaddrEnd {
			maxVaddrEnd = end
		}
		offset := uint64(0)
		for offset < uint64(len(seg.Data)) {
			in := decoder.Decode(seg.Data[offset:])
			pc := seg.Vaddr + offset
			if err := em.EmitInstruction(pc, in); err != nil {
				return Result{}, &UnsupportedInstructionError{PC: pc, Op: fmt.Sprintf("%v", in.Op), Err: err}
			}
			advance := uint64(in.Size)
			if advance == 0 {
				advance = 2
			}
			offset += advance
		}
	}
	em.EndLoopWithExitCheck()
	em.EndFunction()

	phoff, phentsize, phnum := f.ProgramHeaderInfo()
	_ = phoff
	headerInit, err := guestimage.LoadHeaderPrefix(f)
	if err != nil {
		return Result{}, fmt.Errorf("rvruntime: load header prefix: %w", err)
	}

	// regionBase must clear every loaded segment, not just the text
	// segments maxVaddrEnd tracks above (nothing after the decode walk
	// reads it) — a data/rodata/bss segment above the last
	// text segment, the ordinary case, would otherwise sit underneath
	// the guest stack/TLS region this placement reserves.
	regionBase := alignUp(headerInit.LinearOffset+uint64(len(headerInit.Bytes)), wasmPageSize)
	if amap.MemoryBase+maxSegEnd > regionBase {
		regionBase = alignUp(amap.MemoryBase+maxSegEnd, wasmPageSize)
	}

	img := guestimage.Build(guestimage.Params{
		Argv:       opts.Argv,
		Envp:       opts.Envp,
		EntryPoint: f.Entry,
		PhdrVaddr:  guestimage.PhdrVaddr(),
		PhentSize:  uint64(phentsize),
		PhNum:      uint64(phnum),
		RegionBase: regionBase,
		UID:        opts.UID,
		EUID:       opts.UID,
		GID:        opts.GID,
		EGID:       opts.GID,
	})

	// amap.PageCount already covers every loadable segment (text, data,
	// rodata, bss), not just the text segments maxVaddrEnd tracks above —
	// sizing memory from maxVaddrEnd alone would leave data/rodata
	// initializers writing past the declared memory when they sit at a
	// higher address than the last text segment.
	pageCount := amap.PageCount
	if p := pagesFor(img.RegionEnd); p > pageCount {
		pageCount = p
	}
	if p := pagesFor(headerInit.LinearOffset + uint64(len(headerInit.Bytes))); p > pageCount {
		pageCount = p
	}

	inits := make([]memInitializer, 0, len(amap.Initializers)+len(img.Initializers)+1)
	for _, in := range amap.Initializers {
		inits = append(inits, memInitializer{LinearOffset: in.LinearOffset, Bytes: in.Bytes})
	}
	inits = append(inits, memInitializer{LinearOffset: headerInit.LinearOffset, Bytes: headerInit.Bytes})
	for _, in := range img.Initializers {
		inits = append(inits, memInitializer{LinearOffset: in.LinearOffset, Bytes: in.Bytes})
	}

	wat := preludeWAT(em.Finalize(), amap.VaddrBase, amap.MemoryBase, pageCount, f.Entry, inits)
	wat, stats := optimizer.Optimize(wat, opts.OptimizerLevel)

	if opts.PrintWAT {
		fmt.Fprintln(opts.Stderr, wat)
	}

	cm, err := wasmhost.Compile(ctx, wat)
	if err != nil {
		return Result{}, fmt.Errorf("rvruntime: compile: %w", err)
	}
	defer cm.Close(ctx)

	handler := NewHandler(opts.Log, opts.Stdout, opts.Stderr, opts.UID, opts.GID, opts.StartTime)
	inst, err := wasmhost.Instantiate(ctx, cm, wasmhost.HostImports{
		Syscall:    handler.Syscall,
		DebugPrint: handler.DebugPrint,
		FDWrite:    handler.FDWrite,
		FDRead:     handler.FDRead,
		ProcExit:   handler.ProcExit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("rvruntime: instantiate: %w", err)
	}
	defer inst.Close(ctx)

	if err := inst.SetReg(ctx, decoder.RegSP, img.SP); err != nil {
		return Result{}, fmt.Errorf("rvruntime: seed sp: %w", err)
	}
	if err := inst.SetReg(ctx, decoder.RegTP, img.TP); err != nil {
		return Result{}, fmt.Errorf("rvruntime: seed tp: %w", err)
	}
	if opts.MaxInstructions > 0 {
		if err := inst.SetMaxInstructions(ctx, opts.MaxInstructions); err != nil {
			return Result{}, fmt.Errorf("rvruntime: set instruction budget: %w", err)
		}
	}

	if err := inst.CallMain(ctx); err != nil && !handler.Exited() {
		return Result{}, &TrapError{Underlying: err}
	}

	instrCount, err := inst.GetInstrCount(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("rvruntime: read instr_count: %w", err)
	}

	exitCode := handler.ExitCode()
	if flagSet, err := inst.GetExitFlag(ctx); err == nil && !flagSet && !handler.Exited() {
		opts.Log.Warn("guest loop ended without setting exit_flag")
	}

	return Result{ExitCode: exitCode, InstrCount: instrCount, WAT: wat, Stats: stats}, nil
}

func alignUp(v, n uint64) uint64 { return (v + n - 1) &^ (n - 1) }
