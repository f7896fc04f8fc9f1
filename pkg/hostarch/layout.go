// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hostarch

import (
	"encoding/binary"
)

// Sv39 addressing and the fixed layout shared by every address space.
const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the page size in bytes.
	PageSize = 1 << PageShift

	// VAWidth is the number of significant bits in a virtual address.
	VAWidth = 39

	// PAWidth is the number of significant bits in a physical address.
	PAWidth = 56

	// PPNWidth is the number of bits in a physical page number.
	PPNWidth = PAWidth - PageShift

	vaMask = 1<<VAWidth - 1
	paMask = 1<<PAWidth - 1
)

const (
	// Trampoline is the virtual address of the page holding the trap entry
	// and exit code. It is the highest page of every address space.
	Trampoline Addr = ^Addr(0) - PageSize + 1

	// TrapContextBase is the virtual address of the per-process trap context
	// page, directly below the trampoline.
	TrapContextBase Addr = Trampoline - PageSize

	// MaxUserAddr is one past the highest address a user image may occupy:
	// the top of the lower half of the Sv39 address space.
	MaxUserAddr Addr = 1 << (VAWidth - 1)

	// UserStackSize is the size of a user stack.
	UserStackSize = 2 * PageSize

	// KernelStackSize is the size of a task's kernel stack.
	KernelStackSize = 2 * PageSize
)

// ByteOrder is the native byte order (little endian).
var ByteOrder = binary.LittleEndian
