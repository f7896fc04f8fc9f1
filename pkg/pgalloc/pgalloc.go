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

// Package pgalloc allocates physical page frames.
//
// Frames are handed out as *Frame handles. A handle owns its page until
// Release is called, at which point the page returns to the allocator; a
// handle must be released exactly once.
package pgalloc

import (
	"fmt"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/rvkernel/rvkernel/pkg/errors/linuxerr"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/physmem"
	"github.com/rvkernel/rvkernel/pkg/sync"
)

// Allocator hands out the physical pages [start, end) of a physmem.Memory.
//
// Pages are taken from recycled first, lowest number first, and otherwise
// from the never-used watermark current.
type Allocator struct {
	mem *physmem.Memory

	mu sync.Mutex

	// current is the lowest page that has never been allocated.
	//
	// +checklocks:mu
	current hostarch.PPN

	// end is one past the last allocatable page.
	end hostarch.PPN

	// start is the first allocatable page.
	start hostarch.PPN

	// recycled holds pages below current that have been released.
	//
	// +checklocks:mu
	recycled *btree.BTreeG[hostarch.PPN]
}

// New returns an allocator for the pages [start, end) of mem.
func New(mem *physmem.Memory, start, end hostarch.PPN) (*Allocator, error) {
	if start > end || !mem.Contains(start) || (end > start && !mem.Contains(end-1)) {
		return nil, fmt.Errorf("frame range [%v, %v) is outside physical memory [%v, %v)", start, end, mem.Base(), mem.End())
	}
	log.Debugf("Frame allocator: [%v, %v), %d frames", start, end, end-start)
	return &Allocator{
		mem:      mem,
		start:    start,
		current:  start,
		end:      end,
		recycled: btree.NewG(2, func(a, b hostarch.PPN) bool { return a < b }),
	}, nil
}

// Memory returns the physical memory frames are carved from.
func (a *Allocator) Memory() *physmem.Memory {
	return a.mem
}

// Allocate returns a zeroed frame, or linuxerr.ENOMEM if none is left.
func (a *Allocator) Allocate() (*Frame, error) {
	a.mu.Lock()
	ppn, ok := a.recycled.DeleteMin()
	if !ok {
		if a.current == a.end {
			a.mu.Unlock()
			return nil, linuxerr.ENOMEM
		}
		ppn = a.current
		a.current++
	}
	a.mu.Unlock()

	a.mem.ZeroPage(ppn)
	return &Frame{ppn: ppn, a: a}, nil
}

// dealloc returns ppn to the free pool.
func (a *Allocator) dealloc(ppn hostarch.PPN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ppn < a.start || ppn >= a.current || a.recycled.Has(ppn) {
		panic(fmt.Sprintf("frame %v has not been allocated", ppn))
	}
	a.recycled.ReplaceOrInsert(ppn)
}

// FreeFrames returns the number of frames that can still be allocated.
func (a *Allocator) FreeFrames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(a.end-a.current) + uint64(a.recycled.Len())
}

// UsedFrames returns the number of frames currently owned by handles.
func (a *Allocator) UsedFrames() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(a.current-a.start) - uint64(a.recycled.Len())
}

// Frame is the owning handle of one physical page.
type Frame struct {
	ppn      hostarch.PPN
	a        *Allocator
	released atomic.Bool
}

// PPN returns the frame's physical page number.
func (f *Frame) PPN() hostarch.PPN {
	return f.ppn
}

// Bytes returns the frame's contents.
//
// Precondition: the frame has not been released.
func (f *Frame) Bytes() []byte {
	return f.a.mem.PageBytes(f.ppn)
}

// Release returns the frame to its allocator. It panics if called twice.
func (f *Frame) Release() {
	if f.released.Swap(true) {
		panic(fmt.Sprintf("frame %v released twice", f.ppn))
	}
	f.a.dealloc(f.ppn)
}
