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

import "fmt"

// TrapError reports a fatal guest trap: a WASM bounds check, an unguarded
// division, an unreachable reached at runtime. Underlying is the trap
// message the embedded engine returned.
type TrapError struct {
	Underlying error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("guest trap: %s", e.Underlying)
}

func (e *TrapError) Unwrap() error { return e.Underlying }

// UnsupportedInstructionError reports that translation reached an
// instruction family the lowerer has no rule for at all (distinct from
// the RVV/F/D placeholder path, which never errors — see
// internal/emitter's unsupportedComment). In practice this only fires for
// a decoder bug: every Op the decoder can produce has a lowering rule or
// a placeholder.
type UnsupportedInstructionError struct {
	PC  uint64
	Op  string
	Err error
}

func (e *UnsupportedInstructionError) Error() string {
	return fmt.Sprintf("unsupported instruction at pc=%#x (%s): %s", e.PC, e.Op, e.Err)
}

func (e *UnsupportedInstructionError) Unwrap() error { return e.Err }
