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

package elfreader

import "fmt"

// MalformedError reports a short or structurally invalid input.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed ELF: %s", e.Reason)
}

// BadMagicError reports an input that does not start with the ELF magic.
type BadMagicError struct {
	Got [4]byte
}

func (e *BadMagicError) Error() string {
	return fmt.Sprintf("bad ELF magic: got %x", e.Got)
}

// AddressError reports a header field that references bytes outside the
// input slice.
type AddressError struct {
	Addr   uint64
	Reason string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("address error at %#x: %s", e.Addr, e.Reason)
}
