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

// Package wasmhost compiles and instantiates the WAT module produced by
// internal/emitter. It is the only package that imports the embedded
// WebAssembly engine, so the orchestration in internal/rvruntime never
// has to know wazero's or wasmer-go's APIs directly.
//
// wasmer-go contributes exactly one function: textual assembly of WAT
// into a WASM binary. wazero does everything downstream of that —
// compilation, host imports, instantiation, and the call surface used to
// drive the guest program.
package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// SyscallFunc answers one guest ECALL: num is a7, a0..a5 are the six
// argument registers, and the return value becomes the guest's a0. mod
// gives the handler access to the guest's own linear memory, which
// several syscalls (write, uname, getrandom, fstat, ...) read or fill.
type SyscallFunc func(ctx context.Context, mod api.Module, num, a0, a1, a2, a3, a4, a5 int64) int64

// DebugPrintFunc answers env.debug_print(i32), a diagnostic hook with no
// guest-visible effect on registers or memory.
type DebugPrintFunc func(ctx context.Context, v int32)

// FDWriteFunc, FDReadFunc, and ProcExitFunc answer the three WASI
// preview1 imports named in the module contract. Signatures match the
// WASI calling convention: pointers and lengths are i32 offsets into the
// guest's own linear memory.
type (
	FDWriteFunc func(ctx context.Context, mod api.Module, fd, iovs, iovsLen, nwritten int32) int32
	FDReadFunc  func(ctx context.Context, mod api.Module, fd, iovs, iovsLen, nread int32) int32
	// ProcExitFunc receives mod (the guest module) so it can flip the
	// guest's own $exit_flag export before terminating.
	ProcExitFunc func(ctx context.Context, mod api.Module, code int32)
)

// HostImports supplies every function the emitted module imports. All
// fields are required; Instantiate does not check them, and a guest call
// to an import whose field is unset panics with a nil function call,
// which is treated as a programmer error rather than a runtime condition
// worth a typed error.
type HostImports struct {
	Syscall    SyscallFunc
	DebugPrint DebugPrintFunc
	FDWrite    FDWriteFunc
	FDRead     FDReadFunc
	ProcExit   ProcExitFunc
}

// CompiledModule owns both the wazero Runtime and the module compiled
// within it; the Runtime must stay alive for the lifetime of any Instance
// created from this module, so Close() releases both together.
type CompiledModule struct {
	runtime wazero.Runtime
	module  wazero.CompiledModule
}

// Compile assembles watText to a WASM binary via wasmer-go, then compiles
// that binary with a fresh wazero runtime.
func Compile(ctx context.Context, watText string) (*CompiledModule, error) {
	wasmBytes, err := wasmer.Wat2Wasm(watText)
	if err != nil {
		return nil, fmt.Errorf("wasmhost: wat2wasm: %w", err)
	}

	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("wasmhost: compile module: %w", err)
	}
	return &CompiledModule{runtime: rt, module: compiled}, nil
}

// Close releases the runtime and every module instantiated from it.
func (c *CompiledModule) Close(ctx context.Context) error {
	return c.runtime.Close(ctx)
}

// Instance wraps an instantiated guest module with typed accessors for
// the register, instruction-count, exit-flag and instruction-budget
// exports the runtime glue needs.
type Instance struct {
	mod api.Module
}

// Instantiate registers imports as the env and wasi_snapshot_preview1
// host modules, then instantiates cm against them.
func Instantiate(ctx context.Context, cm *CompiledModule, imports HostImports) (*Instance, error) {
	env := cm.runtime.NewHostModuleBuilder("env")
	env.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, num, a0, a1, a2, a3, a4, a5 int64) int64 {
			return imports.Syscall(ctx, mod, num, a0, a1, a2, a3, a4, a5)
		}).
		Export("syscall")
	env.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, v int32) {
			imports.DebugPrint(ctx, v)
		}).
		Export("debug_print")
	if _, err := env.Instantiate(ctx); err != nil {
		return nil, fmt.Errorf("wasmhost: instantiate env: %w", err)
	}

	wasi := cm.runtime.NewHostModuleBuilder("wasi_snapshot_preview1")
	wasi.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, iovs, iovsLen, nwritten int32) int32 {
			return imports.FDWrite(ctx, mod, fd, iovs, iovsLen, nwritten)
		}).
		Export("fd_write")
	wasi.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, iovs, iovsLen, nread int32) int32 {
			return imports.FDRead(ctx, mod, fd, iovs, iovsLen, nread)
		}).
		Export("fd_read")
	wasi.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, code int32) {
			imports.ProcExit(ctx, mod, code)
		}).
		Export("proc_exit")
	if _, err := wasi.Instantiate(ctx); err != nil {
		return nil, fmt.Errorf("wasmhost: instantiate wasi_snapshot_preview1: %w", err)
	}

	mod, err := cm.runtime.InstantiateModule(ctx, cm.module, wazero.NewModuleConfig())
	if err != nil {
		return nil, fmt.Errorf("wasmhost: instantiate guest module: %w", err)
	}
	return &Instance{mod: mod}, nil
}

func (in *Instance) exported(name string) (api.Function, error) {
	fn := in.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("wasmhost: module does not export %q", name)
	}
	return fn, nil
}

// SetReg calls the guest's set_reg(i, v) export, writing register i.
func (in *Instance) SetReg(ctx context.Context, i uint32, v uint64) error {
	fn, err := in.exported("set_reg")
	if err != nil {
		return err
	}
	_, err = fn.Call(ctx, uint64(i), v)
	return err
}

// GetInstrCount reads the guest's running instruction counter.
func (in *Instance) GetInstrCount(ctx context.Context) (uint64, error) {
	fn, err := in.exported("get_instr_count")
	if err != nil {
		return 0, err
	}
	res, err := fn.Call(ctx)
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

// GetExitFlag reads whether the guest has requested a stop.
func (in *Instance) GetExitFlag(ctx context.Context) (bool, error) {
	fn, err := in.exported("get_exit_flag")
	if err != nil {
		return false, err
	}
	res, err := fn.Call(ctx)
	if err != nil {
		return false, err
	}
	return res[0] != 0, nil
}

// SetExitFlag forces the guest's exit flag, used to halt execution from
// the host side (e.g. on an instruction-count budget).
func (in *Instance) SetExitFlag(ctx context.Context, v bool) error {
	fn, err := in.exported("set_exit_flag")
	if err != nil {
		return err
	}
	val := uint64(0)
	if v {
		val = 1
	}
	_, err = fn.Call(ctx, val)
	return err
}

// SetMaxInstructions caps the guest's dispatch loop at n instructions (0
// means unlimited), used to enforce the --max-instructions CLI budget.
func (in *Instance) SetMaxInstructions(ctx context.Context, n uint64) error {
	fn, err := in.exported("set_max_instructions")
	if err != nil {
		return err
	}
	_, err = fn.Call(ctx, n)
	return err
}

// Memory returns the guest's exported linear memory.
func (in *Instance) Memory() api.Memory {
	return in.mod.Memory()
}

// CallMain invokes the guest's entry export, preferring "main" (the name
// used in the module contract) and falling back to "_start" (the
// WASI-convention name original_source also exports).
func (in *Instance) CallMain(ctx context.Context) error {
	fn := in.mod.ExportedFunction("main")
	if fn == nil {
		fn = in.mod.ExportedFunction("_start")
	}
	if fn == nil {
		return fmt.Errorf("wasmhost: module exports neither main nor _start")
	}
	_, err := fn.Call(ctx)
	return err
}

// Close releases this instance only; the CompiledModule and its Runtime
// must be closed separately once no Instance still references them.
func (in *Instance) Close(ctx context.Context) error {
	return in.mod.Close(ctx)
}
