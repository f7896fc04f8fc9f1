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

package mm

import (
	"fmt"
	"strings"

	"github.com/rvkernel/rvkernel/pkg/bits"
	"github.com/rvkernel/rvkernel/pkg/ring0/pagetables"
)

// MapPermission is the set of accesses a mapping allows. The bits coincide
// with the corresponding page table entry flags.
type MapPermission uint8

const (
	// Read permits loads.
	Read = MapPermission(pagetables.R)

	// Write permits stores.
	Write = MapPermission(pagetables.W)

	// Execute permits instruction fetch.
	Execute = MapPermission(pagetables.X)

	// User permits access from user mode.
	User = MapPermission(pagetables.U)

	allPermissions = Read | Write | Execute | User
)

// Any returns true if any access is permitted.
func (p MapPermission) Any() bool {
	return bits.IsAnyOn(p, Read|Write|Execute)
}

// String implements fmt.Stringer.String, e.g. "rw-u".
func (p MapPermission) String() string {
	var b strings.Builder
	for _, c := range []struct {
		bit  MapPermission
		name byte
	}{{Read, 'r'}, {Write, 'w'}, {Execute, 'x'}, {User, 'u'}} {
		if bits.IsOn(p, c.bit) {
			b.WriteByte(c.name)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// pteFlags returns the page table entry flags for p. V is added by the page
// table.
func (p MapPermission) pteFlags() pagetables.PTEFlags {
	return pagetables.PTEFlags(p & allPermissions)
}

// portPermission converts the protection argument of mmap, in which bit 0
// requests read, bit 1 write and bit 2 execute, into a user permission.
func portPermission(port uint64) MapPermission {
	perm := User
	if port&0x1 != 0 {
		perm |= Read
	}
	if port&0x2 != 0 {
		perm |= Write
	}
	if port&0x4 != 0 {
		perm |= Execute
	}
	return perm
}

// MapType selects how the pages of a MapArea are backed.
type MapType int

const (
	// Identical maps each virtual page to the physical page with the same
	// number. No frames are owned.
	Identical MapType = iota

	// Framed backs each virtual page with a freshly allocated frame owned by
	// the area.
	Framed
)

// String implements fmt.Stringer.String.
func (t MapType) String() string {
	switch t {
	case Identical:
		return "identical"
	case Framed:
		return "framed"
	default:
		return fmt.Sprintf("MapType(%d)", int(t))
	}
}
