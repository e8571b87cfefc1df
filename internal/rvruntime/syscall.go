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
	"context"
	"encoding/binary"
	"io"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// RISC-V Linux syscall numbers this runtime answers.
const (
	sysGetcwd         = 17
	sysAccess         = 21
	sysClose          = 57
	sysLseek          = 62
	sysRead           = 63
	sysWrite          = 64
	sysWritev         = 66
	sysReadlink       = 89
	sysFstat          = 80
	sysExit           = 93
	sysExitGroup      = 94
	sysSetTidAddress  = 96
	sysFutex          = 98
	sysSetRobustList  = 99
	sysClockGettime   = 113
	sysRtSigaction    = 134
	sysRtSigprocmask  = 135
	sysSigaltstack    = 131
	sysUname          = 160
	sysGetpid         = 172
	sysGetuid         = 174
	sysGeteuid        = 175
	sysGetgid         = 176
	sysGetegid        = 177
	sysSysinfo        = 179
	sysGettimeofday   = 169
	sysGettid         = 178
	sysBrk            = 214
	sysMmap           = 222
	sysMprotect       = 226
	sysPrlimit64      = 261
	sysClockGettime64 = 403
	sysArchPrctl      = 158
	sysGetrandom278   = 278
	sysGetrandom318   = 318
	sysRseq293        = 293
	sysRseq334        = 334

	errENOSYS = -38
)

const (
	fdStdin  = 0
	fdStdout = 1
	fdStderr = 2
)

// Handler answers env.syscall for one guest process. It owns the
// brk pointer (set to whatever non-zero value brk requests) and the identity the guest sees from
// getuid/getgid and friends; everything else is read or written
// straight from the guest's own linear memory via the api.Module
// wazero hands the import function.
type Handler struct {
	log *zap.Logger

	stdout io.Writer
	stderr io.Writer

	brk       uint64
	uid       uint64
	gid       uint64
	exitCode  int32
	exited    bool
	startTime int64 // seconds, supplied by the caller since time.Now is host nondeterminism the guest shouldn't see twice differently across runs
}

// NewHandler returns a Handler with brk starting at the conventional
// heap base and guest fds 1 and 2 wired to stdout and stderr.
func NewHandler(log *zap.Logger, stdout, stderr io.Writer, uid, gid uint64, startTime int64) *Handler {
	return &Handler{
		log:       log,
		stdout:    stdout,
		stderr:    stderr,
		brk:       0x100000,
		uid:       uid,
		gid:       gid,
		startTime: startTime,
	}
}

// Exited reports whether the guest called exit/exit_group/proc_exit.
func (h *Handler) Exited() bool { return h.exited }

// ExitCode reports the guest's requested exit status.
func (h *Handler) ExitCode() int32 { return h.exitCode }

// Syscall implements wasmhost.SyscallFunc.
func (h *Handler) Syscall(ctx context.Context, mod api.Module, num, a0, a1, a2, a3, a4, a5 int64) int64 {
	mem := mod.Memory()
	switch num {
	case sysExit, sysExitGroup:
		h.exited = true
		h.exitCode = int32(a0)
		h.forceExitFlag(ctx, mod)
		return 0
	case sysWrite:
		return h.write(mem, int32(a0), uint32(a1), uint32(a2))
	case sysWritev:
		return h.writev(mem, int32(a0), uint32(a1), uint32(a2))
	case sysRead:
		return 0 // EOF stub
	case sysClose:
		return 0
	case sysLseek:
		return a1
	case sysFstat:
		return h.fstat(mem, uint32(a1))
	case sysBrk:
		return int64(h.sbrk(uint64(a0)))
	case sysMmap:
		return a0
	case sysMprotect:
		return 0
	case sysFutex, sysSetTidAddress, sysSetRobustList:
		return 0
	case sysUname:
		return h.uname(mem, uint32(a0))
	case sysGettimeofday:
		return h.gettimeofday(mem, uint32(a0))
	case sysClockGettime, sysClockGettime64:
		return h.clockGettime(mem, uint32(a1))
	case sysGetuid:
		return int64(h.uid)
	case sysGeteuid:
		return int64(h.uid)
	case sysGetgid:
		return int64(h.gid)
	case sysGetegid:
		return int64(h.gid)
	case sysRtSigaction, sysRtSigprocmask, sysSigaltstack:
		return 0
	case sysGetpid, sysGettid:
		return 1
	case sysGetrandom278, sysGetrandom318:
		return h.getrandom(mem, uint32(a0), uint32(a1))
	case sysArchPrctl:
		return 0
	case sysRseq293, sysRseq334:
		return 0
	case sysReadlink:
		return -2 // ENOENT
	case sysAccess:
		return -2 // ENOENT
	case sysGetcwd:
		return h.getcwd(mem, uint32(a0), uint32(a1))
	case sysSysinfo:
		return 0
	case sysPrlimit64:
		return 0
	}

	if num > 500 || num < 0 {
		h.log.Warn("syscall: register contains garbage", zap.Int64("num", num))
	} else {
		h.log.Debug("syscall: unimplemented", zap.Int64("num", num))
	}
	return errENOSYS
}

func (h *Handler) sbrk(requested uint64) uint64 {
	if requested == 0 {
		return h.brk
	}
	h.brk = requested
	return h.brk
}

func (h *Handler) fdWriter(fd int32) io.Writer {
	switch fd {
	case fdStdout:
		return h.stdout
	case fdStderr:
		return h.stderr
	default:
		return h.stdout
	}
}

func (h *Handler) write(mem api.Memory, fd int32, buf, count uint32) int64 {
	bs, ok := mem.Read(buf, count)
	if !ok {
		return -14 // EFAULT
	}
	n, err := h.fdWriter(fd).Write(bs)
	if err != nil {
		return -5 // EIO
	}
	return int64(n)
}

// writev reads an iovec array of (base u32, len u32) pairs and writes
// each in turn, matching fd_write's contract at the syscall() surface
// a libc without WASI plumbing would still use.
func (h *Handler) writev(mem api.Memory, fd int32, iovs, iovsLen uint32) int64 {
	var total int64
	w := h.fdWriter(fd)
	for i := uint32(0); i < iovsLen; i++ {
		entry, ok := mem.Read(iovs+i*8, 8)
		if !ok {
			break
		}
		base := binary.LittleEndian.Uint32(entry[0:4])
		length := binary.LittleEndian.Uint32(entry[4:8])
		bs, ok := mem.Read(base, length)
		if !ok {
			break
		}
		n, err := w.Write(bs)
		total += int64(n)
		if err != nil {
			break
		}
	}
	return total
}

// FDWrite implements wasmhost.FDWriteFunc for the WASI preview1 import,
// sharing write's fdWriter selection.
func (h *Handler) FDWrite(ctx context.Context, mod api.Module, fd, iovs, iovsLen, nwritten int32) int32 {
	mem := mod.Memory()
	n := h.writev(mem, fd, uint32(iovs), uint32(iovsLen))
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(n))
	mem.Write(uint32(nwritten), buf)
	return 0
}

// FDRead implements wasmhost.FDReadFunc as an EOF stub.
func (h *Handler) FDRead(ctx context.Context, mod api.Module, fd, iovs, iovsLen, nread int32) int32 {
	mod.Memory().Write(uint32(nread), make([]byte, 4))
	return 0
}

// ProcExit implements wasmhost.ProcExitFunc.
func (h *Handler) ProcExit(ctx context.Context, mod api.Module, code int32) {
	h.exited = true
	h.exitCode = code
	h.forceExitFlag(ctx, mod)
}

// forceExitFlag flips the calling guest module's own $exit_flag export so
// its dispatch loop's exit check stops it on the next iteration, rather
// than relying solely on host-side bookkeeping the guest never observes.
func (h *Handler) forceExitFlag(ctx context.Context, mod api.Module) {
	if fn := mod.ExportedFunction("set_exit_flag"); fn != nil {
		_, _ = fn.Call(ctx, 1)
	}
}

// DebugPrint implements wasmhost.DebugPrintFunc.
func (h *Handler) DebugPrint(ctx context.Context, v int32) {
	h.log.Debug("guest debug_print", zap.Int32("value", v))
}

// fstat writes a minimal synthetic struct stat (Linux riscv64 layout:
// enough leading fields for a libc isatty/fstat check to see a
// character device, not a regular file).
func (h *Handler) fstat(mem api.Memory, statBuf uint32) int64 {
	buf := make([]byte, 144)
	const sIFCHR = 0o020000
	binary.LittleEndian.PutUint32(buf[24:28], sIFCHR|0o666) // st_mode
	mem.Write(statBuf, buf)
	return 0
}

// uname fills a synthetic struct utsname (6 x 65-byte fields).
func (h *Handler) uname(mem api.Memory, buf uint32) int64 {
	const fieldLen = 65
	write := func(i int, s string) {
		b := make([]byte, fieldLen)
		copy(b, s)
		mem.Write(buf+uint32(i*fieldLen), b)
	}
	write(0, "Linux")
	write(1, "riscv64")
	write(2, "6.0.0")
	write(3, "#1 SMP")
	write(4, "riscv64")
	write(5, "")
	return 0
}

func (h *Handler) gettimeofday(mem api.Memory, tv uint32) int64 {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.startTime))
	mem.Write(tv, buf)
	return 0
}

func (h *Handler) clockGettime(mem api.Memory, ts uint32) int64 {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.startTime))
	mem.Write(ts, buf)
	return 0
}

// getrandom fills buf with a fixed, non-cryptographic pattern: good
// enough for a guest libc's "seed the stack canary" read, wrong for
// anything that actually needs entropy.
func (h *Handler) getrandom(mem api.Memory, buf, length uint32) int64 {
	bs := make([]byte, length)
	for i := range bs {
		bs[i] = byte(i * 2654435761 % 251)
	}
	mem.Write(buf, bs)
	return int64(length)
}

func (h *Handler) getcwd(mem api.Memory, buf, size uint32) int64 {
	const cwd = "/\x00"
	if size < uint32(len(cwd)) {
		return -34 // ERANGE
	}
	mem.Write(buf, []byte(cwd))
	return int64(len(cwd))
}
