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

// Package mm builds and mutates address spaces.
//
// A MemorySet owns one set of page tables together with the areas mapped
// into them and the pages mapped by MMap outside of any area. Every address
// space maps the trampoline page at the top of virtual memory; it belongs to
// no area.
//
// Lock order:
//
//	KernelSpace.mu
//	  pgalloc.Allocator.mu
package mm

import (
	"fmt"
	"time"

	"github.com/rvkernel/rvkernel/pkg/errors/linuxerr"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/pgalloc"
	"github.com/rvkernel/rvkernel/pkg/ring0"
	"github.com/rvkernel/rvkernel/pkg/ring0/pagetables"
)

// conflictLog reports mmap and munmap requests that hit the wrong state.
// User programs can trigger these at will.
var conflictLog = log.BasicRateLimitedLogger(time.Second)

// Memory is the physical memory address spaces are built from.
type Memory struct {
	// Frames provides page table nodes and the frames of Framed areas.
	Frames *pgalloc.Allocator

	// Trampoline is the physical page holding the trap entry and exit code.
	Trampoline hostarch.PPN
}

// MemorySet is an address space.
//
// A MemorySet is not safe for concurrent use. The kernel's own address space
// is shared through KernelSpace.
type MemorySet struct {
	mf *Memory
	pt *pagetables.PageTables

	// areas are kept in insertion order. No two areas overlap.
	areas []*MapArea

	// mmapFrames backs the pages mapped by MMap. They belong to no area.
	mmapFrames frameArena

	// trampoline is set once the trampoline page is mapped.
	trampoline bool
}

// NewBare returns an address space with nothing mapped.
func NewBare(mf *Memory) (*MemorySet, error) {
	pt, err := pagetables.New(mf.Frames)
	if err != nil {
		return nil, fmt.Errorf("allocating root page table: %w", err)
	}
	return &MemorySet{mf: mf, pt: pt}, nil
}

// Token returns the satp value that selects this address space.
func (ms *MemorySet) Token() uint64 {
	return ms.pt.Token()
}

// Translate returns the page table entry for vpn. ok is false if vpn has no
// valid translation.
func (ms *MemorySet) Translate(vpn hostarch.VPN) (pte pagetables.PTE, ok bool) {
	return ms.pt.Translate(vpn)
}

// PageBytes returns the physical page vpn translates to, or false if vpn is
// not mapped.
func (ms *MemorySet) PageBytes(vpn hostarch.VPN) ([]byte, bool) {
	pte, ok := ms.pt.Translate(vpn)
	if !ok {
		return nil, false
	}
	return ms.mf.Frames.Memory().PageBytes(pte.PPN()), true
}

// Activate makes ms the address space of h.
//
// Precondition: the caller runs from memory that is identity mapped in both
// the current address space and ms.
func (ms *MemorySet) Activate(h ring0.Hart) {
	ring0.SwitchPageTables(h, ms.Token())
}

// mapTrampoline maps the trampoline page. It belongs to no area.
func (ms *MemorySet) mapTrampoline() error {
	if err := ms.pt.Map(hostarch.Trampoline.Floor(), ms.mf.Trampoline, pagetables.R|pagetables.X); err != nil {
		return fmt.Errorf("mapping trampoline: %w", err)
	}
	ms.trampoline = true
	return nil
}

// push maps area, copies data into it if data is non-nil, and adds it to ms.
// If area cannot be fully mapped, the pages it did map are unmapped again and
// ms is unchanged.
func (ms *MemorySet) push(area *MapArea, data []byte) error {
	if failed, err := area.mapRange(ms.pt, area.r); err != nil {
		area.unmapRange(ms.pt, hostarch.NewVPNRange(area.r.Start, failed))
		return fmt.Errorf("mapping area %v: %w", area, err)
	}
	if data != nil {
		if err := area.CopyData(data); err != nil {
			area.Unmap(ms.pt)
			return fmt.Errorf("copying into area %v: %w", area, err)
		}
	}
	ms.areas = append(ms.areas, area)
	return nil
}

// InsertFramedArea maps a new Framed area covering [start, end) with
// permissions perm. Its pages are zero.
//
// Precondition: no page of [start, end) is mapped in ms.
func (ms *MemorySet) InsertFramedArea(start, end hostarch.Addr, perm MapPermission) error {
	return ms.push(NewMapArea(start, end, Framed, perm), nil)
}

// findArea returns the area starting at the page containing start.
func (ms *MemorySet) findArea(start hostarch.Addr) (int, *MapArea) {
	vpn := start.Floor()
	for i, area := range ms.areas {
		if area.r.Start == vpn {
			return i, area
		}
	}
	return -1, nil
}

// ShrinkTo shrinks the area starting at the page containing start so that it
// ends at the page containing newEnd, rounded up. It returns false if no area
// starts there.
//
// Precondition: the area's start <= newEnd.Ceil() <= the area's end.
func (ms *MemorySet) ShrinkTo(start, newEnd hostarch.Addr) bool {
	_, area := ms.findArea(start)
	if area == nil {
		return false
	}
	area.ShrinkTo(ms.pt, newEnd.Ceil())
	return true
}

// GrowTo grows the area starting at the page containing start so that it ends
// at the page containing newEnd, rounded up. found is false if no area starts
// there. If the new pages cannot be allocated, GrowTo returns an error and the
// area is unchanged.
//
// Precondition: newEnd.Ceil() >= the area's end.
func (ms *MemorySet) GrowTo(start, newEnd hostarch.Addr) (found bool, err error) {
	_, area := ms.findArea(start)
	if area == nil {
		return false, nil
	}
	return true, area.GrowTo(ms.pt, newEnd.Ceil())
}

// RemoveAreaWithStart unmaps and drops the area starting at the page
// containing start. It returns false if no area starts there.
func (ms *MemorySet) RemoveAreaWithStart(start hostarch.Addr) bool {
	i, area := ms.findArea(start)
	if area == nil {
		return false
	}
	area.Unmap(ms.pt)
	ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
	return true
}

// MMap maps fresh zeroed frames at every page of [start, end), in ascending
// order. port selects the permissions: bit 0 read, bit 1 write, bit 2
// execute. The pages are always user accessible.
//
// MMap stops at the first page that is already mapped, returning an error
// wrapping linuxerr.EEXIST, or that cannot be backed, returning an error
// wrapping linuxerr.ENOMEM. Pages mapped earlier in the same call stay mapped.
func (ms *MemorySet) MMap(start, end hostarch.VPN, port uint64) error {
	perm := portPermission(port)
	for vpn := start; vpn < end; vpn++ {
		if pte, ok := ms.pt.Translate(vpn); ok {
			conflictLog.Warningf("mmap of %v: already mapped with flags %v", vpn, pte.Flags())
			return fmt.Errorf("mmap of %v: %w", vpn, linuxerr.EEXIST)
		}
		f, err := ms.mf.Frames.Allocate()
		if err != nil {
			return fmt.Errorf("mmap of %v: %w", vpn, err)
		}
		if err := ms.pt.Map(vpn, f.PPN(), perm.pteFlags()); err != nil {
			f.Release()
			return fmt.Errorf("mmap of %v: %w", vpn, err)
		}
		log.Debugf("mmap %v -> %v %v", vpn, f.PPN(), perm)
		ms.mmapFrames.insert(vpn, f)
	}
	return nil
}

// MUnmap removes the translation of every page of [start, end), in ascending
// order, and releases the frames MMap backed them with.
//
// MUnmap stops at the first page that is not mapped, returning an error
// wrapping linuxerr.EFAULT. Pages unmapped earlier in the same call stay
// unmapped.
//
// MUnmap does not check who mapped a page. Unmapping a page that belongs to an
// area leaves the area believing the page is mapped; callers must keep mmap
// ranges and areas apart.
func (ms *MemorySet) MUnmap(start, end hostarch.VPN) error {
	for vpn := start; vpn < end; vpn++ {
		if _, ok := ms.pt.Translate(vpn); !ok {
			conflictLog.Warningf("munmap of %v: not mapped", vpn)
			return fmt.Errorf("munmap of %v: %w", vpn, linuxerr.EFAULT)
		}
		ms.pt.Unmap(vpn)
		ms.mmapFrames.remove(vpn)
		log.Debugf("munmap %v", vpn)
	}
	return nil
}

// AreaInfo describes one area of an address space.
type AreaInfo struct {
	Range      hostarch.VPNRange
	Type       MapType
	Permission MapPermission
}

// Areas returns the areas of ms in insertion order.
func (ms *MemorySet) Areas() []AreaInfo {
	infos := make([]AreaInfo, 0, len(ms.areas))
	for _, area := range ms.areas {
		infos = append(infos, AreaInfo{area.r, area.mt, area.perm})
	}
	return infos
}

// MMapPages returns the number of pages currently mapped by MMap.
func (ms *MemorySet) MMapPages() int {
	return ms.mmapFrames.len()
}

// Release tears down the address space: every area, every MMap page and the
// trampoline are unmapped, their frames released, and the page tables freed.
// ms must not be used afterwards.
//
// Precondition: ms is not active on any hart.
func (ms *MemorySet) Release() {
	for _, area := range ms.areas {
		area.release(ms.pt)
	}
	ms.areas = nil
	var mapped []hostarch.VPN
	ms.mmapFrames.forEach(func(vpn hostarch.VPN, _ *pgalloc.Frame) {
		mapped = append(mapped, vpn)
	})
	for _, vpn := range mapped {
		if _, ok := ms.pt.Translate(vpn); ok {
			ms.pt.Unmap(vpn)
		}
		ms.mmapFrames.remove(vpn)
	}
	if ms.trampoline {
		if _, ok := ms.pt.Translate(hostarch.Trampoline.Floor()); ok {
			ms.pt.Unmap(hostarch.Trampoline.Floor())
		}
		ms.trampoline = false
	}
	ms.pt.Release()
}
