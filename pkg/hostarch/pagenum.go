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

import "fmt"

// VPN is a virtual page number: a virtual address shifted right by PageShift.
type VPN uint64

// PPN is a physical page number: a physical address shifted right by
// PageShift.
type PPN uint64

// Addr returns the address of the first byte of the page.
func (vpn VPN) Addr() Addr {
	return Addr(vpn << PageShift)
}

// Indexes returns the three Sv39 page-table indexes of vpn, root level first.
func (vpn VPN) Indexes() [3]int {
	var idx [3]int
	for i := 2; i >= 0; i-- {
		idx[i] = int(vpn & 0x1ff)
		vpn >>= 9
	}
	return idx
}

// String implements fmt.Stringer.String.
func (vpn VPN) String() string {
	return fmt.Sprintf("VPN(%#x)", uint64(vpn))
}

// Addr returns the physical address of the first byte of the page.
func (ppn PPN) Addr() PhysAddr {
	return PhysAddr(ppn << PageShift)
}

// String implements fmt.Stringer.String.
func (ppn PPN) String() string {
	return fmt.Sprintf("PPN(%#x)", uint64(ppn))
}

// VPNRange is a half-open range of virtual page numbers [Start, End).
type VPNRange struct {
	// Start is the first page in the range.
	Start VPN

	// End is one past the last page in the range.
	End VPN
}

// NewVPNRange returns [start, end). It panics if end precedes start.
func NewVPNRange(start, end VPN) VPNRange {
	if start > end {
		panic(fmt.Sprintf("invalid page range [%#x, %#x)", uint64(start), uint64(end)))
	}
	return VPNRange{start, end}
}

// AddrRangeOf returns the pages covering [start, end): start is rounded down
// and end is rounded up to a page boundary.
func AddrRangeOf(start, end Addr) VPNRange {
	return NewVPNRange(start.Floor(), end.Ceil())
}

// Len returns the number of pages in r.
func (r VPNRange) Len() uint64 {
	return uint64(r.End - r.Start)
}

// Empty returns true if r contains no pages.
func (r VPNRange) Empty() bool {
	return r.Start == r.End
}

// Contains returns true if vpn lies in r.
func (r VPNRange) Contains(vpn VPN) bool {
	return r.Start <= vpn && vpn < r.End
}

// Overlaps returns true if r and r2 share at least one page.
func (r VPNRange) Overlaps(r2 VPNRange) bool {
	return r.Start < r2.End && r2.Start < r.End
}

// StartAddr returns the address of the first byte of r.
func (r VPNRange) StartAddr() Addr {
	return r.Start.Addr()
}

// EndAddr returns the address one past the last byte of r.
func (r VPNRange) EndAddr() Addr {
	return r.End.Addr()
}

// String implements fmt.Stringer.String.
func (r VPNRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", uint64(r.Start), uint64(r.End))
}
