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

// Package physmem provides the physical memory the kernel manages.
//
// The machine's RAM is modelled as one contiguous range of physical addresses
// backed by an anonymous host mapping, so that page frames can be read and
// written through the same PPN arithmetic the page tables use.
package physmem

import (
	"fmt"

	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"golang.org/x/sys/unix"
)

// Memory is the physical address range [Base, End).
type Memory struct {
	base hostarch.PhysAddr
	data []byte
}

// New maps size bytes of zeroed memory appearing at physical address base.
//
// Preconditions: base and size are page-aligned, size > 0.
func New(base hostarch.PhysAddr, size uint64) (*Memory, error) {
	if base.PageOffset() != 0 || size%hostarch.PageSize != 0 || size == 0 {
		return nil, fmt.Errorf("physical memory [%v, +%#x) is not page-aligned", base, size)
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mapping %#x bytes of physical memory: %w", size, err)
	}
	return &Memory{base: base, data: data}, nil
}

// Base returns the lowest physical address.
func (m *Memory) Base() hostarch.PhysAddr {
	return m.base
}

// End returns one past the highest physical address.
func (m *Memory) End() hostarch.PhysAddr {
	return m.base + hostarch.PhysAddr(len(m.data))
}

// Contains returns true if the page ppn is backed by m.
func (m *Memory) Contains(ppn hostarch.PPN) bool {
	return ppn >= m.base.Floor() && ppn < m.End().Floor()
}

// PageBytes returns the contents of the physical page ppn. Writes through the
// returned slice are writes to physical memory.
func (m *Memory) PageBytes(ppn hostarch.PPN) []byte {
	if !m.Contains(ppn) {
		panic(fmt.Sprintf("physical page %v outside [%v, %v)", ppn, m.base, m.End()))
	}
	off := uint64(ppn.Addr() - m.base)
	return m.data[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// ZeroPage clears the physical page ppn.
func (m *Memory) ZeroPage(ppn hostarch.PPN) {
	clear(m.PageBytes(ppn))
}

// Release unmaps the backing memory. m must not be used afterwards.
func (m *Memory) Release() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
