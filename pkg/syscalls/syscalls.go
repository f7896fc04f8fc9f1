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

// Package syscalls implements the memory management system calls on top of
// a task's address space.
//
// Each call returns the value handed back to user mode: 0 or a non-negative
// result on success and -1 on any failure. The reason for a failure is
// logged at debug level only.
package syscalls

import (
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/kernel"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/mm"
)

// portMask is the set of valid bits of the mmap protection argument.
const portMask = 0x7

// failed is returned to user mode on error.
const failed = -1

// Mmap implements sys_mmap: it maps fresh zeroed pages over
// [start, start+length) with the protection port, in which bit 0 requests
// read, bit 1 write and bit 2 execute access.
//
// start must be page aligned, port must request at least one access and no
// other bits, and the range must not touch an area of the address space.
// length is rounded up to whole pages.
func Mmap(t *kernel.Task, start hostarch.Addr, length uint64, port uint64) int64 {
	if !start.IsPageAligned() {
		log.Debugf("mmap: unaligned start %v", start)
		return failed
	}
	if port&^portMask != 0 || port&portMask == 0 {
		log.Debugf("mmap: invalid port %#x", port)
		return failed
	}
	r, ok := pageRange(start, length)
	if !ok {
		log.Debugf("mmap: [%v, +%#x) outside user memory", start, length)
		return failed
	}
	if area, ok := overlappingArea(t, r); ok {
		log.Debugf("mmap: %v overlaps area %v", r, area.Range)
		return failed
	}
	if err := t.MemorySet().MMap(r.Start, r.End, port); err != nil {
		log.Debugf("mmap: task %d: %v", t.PID(), err)
		return failed
	}
	return 0
}

// Munmap implements sys_munmap: it unmaps the pages of
// [start, start+length) that Mmap mapped. Pages of the image, stack, heap or
// trap context cannot be unmapped.
func Munmap(t *kernel.Task, start hostarch.Addr, length uint64) int64 {
	if !start.IsPageAligned() {
		log.Debugf("munmap: unaligned start %v", start)
		return failed
	}
	r, ok := pageRange(start, length)
	if !ok {
		log.Debugf("munmap: [%v, +%#x) outside user memory", start, length)
		return failed
	}
	if area, ok := overlappingArea(t, r); ok {
		log.Debugf("munmap: %v overlaps area %v", r, area.Range)
		return failed
	}
	if err := t.MemorySet().MUnmap(r.Start, r.End); err != nil {
		log.Debugf("munmap: task %d: %v", t.PID(), err)
		return failed
	}
	return 0
}

// Sbrk implements sys_sbrk: it moves the program break by size bytes and
// returns the old break.
func Sbrk(t *kernel.Task, size int64) int64 {
	old, err := t.ChangeProgramBrk(size)
	if err != nil {
		log.Debugf("sbrk: task %d: %v", t.PID(), err)
		return failed
	}
	return int64(old)
}

// pageRange returns the pages overlapping [start, start+length). ok is false
// if the range wraps or leaves user memory.
func pageRange(start hostarch.Addr, length uint64) (hostarch.VPNRange, bool) {
	end, ok := start.AddLength(length)
	if !ok || end > hostarch.MaxUserAddr {
		return hostarch.VPNRange{}, false
	}
	return hostarch.AddrRangeOf(start, end), true
}

// overlappingArea returns an area of t's address space sharing a page with r.
// Areas own their pages; raw mmap pages must stay outside them.
func overlappingArea(t *kernel.Task, r hostarch.VPNRange) (mm.AreaInfo, bool) {
	for _, area := range t.MemorySet().Areas() {
		if area.Range.Overlaps(r) {
			return area, true
		}
	}
	return mm.AreaInfo{}, false
}
