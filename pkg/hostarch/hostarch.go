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

// Package hostarch describes the addressing model of the machine: virtual and
// physical addresses, page numbers derived from them, and the fixed layout of
// the top of every address space.
package hostarch

import (
	"fmt"
)

// Addr represents a virtual address.
type Addr uint64

// PhysAddr represents a physical address.
type PhysAddr uint64

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uint64(v))
}

// String implements fmt.Stringer.String.
func (p PhysAddr) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v & ^Addr(PageSize-1)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageSize - 1).RoundDown()
	ok = addr >= v
	return
}

// MustRoundUp is equivalent to RoundUp, but panics if rounding up wraps
// around.
func (v Addr) MustRoundUp() Addr {
	addr, ok := v.RoundUp()
	if !ok {
		panic(fmt.Sprintf("hostarch.Addr(%d).RoundUp() wraps", v))
	}
	return addr
}

// PageOffset returns the offset of v into the current page.
func (v Addr) PageOffset() uint64 {
	return uint64(v & Addr(PageSize-1))
}

// IsPageAligned returns true if v.PageOffset() == 0.
func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
//
// Note: This function is usually used to get the end of an address range
// defined by its start address and length. Since the resulting end is
// exclusive, end == 0 is technically valid, and corresponds to a range that
// extends to the end of the address space, but ok will be false. This isn't
// expected to ever come up in practice.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// Floor returns the number of the page containing v.
func (v Addr) Floor() VPN {
	return VPN((uint64(v) & vaMask) >> PageShift)
}

// Ceil returns the number of the first page at or above v.
func (v Addr) Ceil() VPN {
	m := uint64(v) & vaMask
	if m == 0 {
		return 0
	}
	return VPN((m-1)>>PageShift) + 1
}

// Floor returns the number of the physical page containing p.
func (p PhysAddr) Floor() PPN {
	return PPN((uint64(p) & paMask) >> PageShift)
}

// Ceil returns the number of the first physical page at or above p.
func (p PhysAddr) Ceil() PPN {
	m := uint64(p) & paMask
	if m == 0 {
		return 0
	}
	return PPN((m-1)>>PageShift) + 1
}

// PageOffset returns the offset of p into the current page.
func (p PhysAddr) PageOffset() uint64 {
	return uint64(p) & (PageSize - 1)
}
