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

package pagetables

import (
	"strings"

	"github.com/rvkernel/rvkernel/pkg/bits"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
)

// PTEFlags are the low eight bits of an Sv39 page table entry.
type PTEFlags uint8

// Sv39 entry flags.
const (
	// V marks the entry valid.
	V PTEFlags = 1 << iota
	// R permits loads.
	R
	// W permits stores.
	W
	// X permits instruction fetch.
	X
	// U permits access from user mode.
	U
	// G marks a global mapping.
	G
	// A is set by hardware on access.
	A
	// D is set by hardware on store.
	D
)

// String implements fmt.Stringer.String. It renders the flags in the order
// "DAGUXWRV", with '-' for clear bits.
func (f PTEFlags) String() string {
	const names = "VRWXUGAD"
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		if bits.IsOn(f, PTEFlags(1)<<i) {
			b.WriteByte(names[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

const (
	ppnShift = 10
	entries  = 512
	pteBytes = 8
	levels   = 3
)

// PTE is an Sv39 page table entry: PPN in bits [10, 54), flags in [0, 8).
type PTE uint64

// NewPTE returns the entry pointing at ppn with the given flags.
func NewPTE(ppn hostarch.PPN, flags PTEFlags) PTE {
	return PTE(uint64(ppn)<<ppnShift | uint64(flags))
}

// PPN returns the physical page the entry points at.
func (p PTE) PPN() hostarch.PPN {
	return hostarch.PPN(bits.Field(uint64(p), ppnShift, hostarch.PPNWidth))
}

// Flags returns the entry's flags.
func (p PTE) Flags() PTEFlags {
	return PTEFlags(p & 0xff)
}

// Valid returns true if the V bit is set.
func (p PTE) Valid() bool {
	return bits.IsOn(p.Flags(), V)
}

// Readable returns true if the R bit is set.
func (p PTE) Readable() bool {
	return bits.IsOn(p.Flags(), R)
}

// Writable returns true if the W bit is set.
func (p PTE) Writable() bool {
	return bits.IsOn(p.Flags(), W)
}

// Executable returns true if the X bit is set.
func (p PTE) Executable() bool {
	return bits.IsOn(p.Flags(), X)
}

// User returns true if the U bit is set.
func (p PTE) User() bool {
	return bits.IsOn(p.Flags(), U)
}

// leaf returns true for entries that map a page rather than point at the next
// level of the table.
func (p PTE) leaf() bool {
	return bits.IsAnyOn(p.Flags(), R|W|X)
}
