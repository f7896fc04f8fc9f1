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

	"github.com/rvkernel/rvkernel/pkg/errors/linuxerr"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/loader"
)

// FromELF builds the address space of a new process from img: the trampoline,
// one Framed user area per loadable segment holding the segment's file
// contents, a guard page, the user stack, an empty heap area directly above the
// stack, and the trap context page below the trampoline.
//
// It returns the address space, the initial user stack pointer and the entry
// point. On error nothing is left allocated.
func FromELF(mf *Memory, img *loader.Image) (*MemorySet, hostarch.Addr, hostarch.Addr, error) {
	ms, err := NewBare(mf)
	if err != nil {
		return nil, 0, 0, err
	}
	userSP, err := ms.loadELF(img)
	if err != nil {
		ms.Release()
		return nil, 0, 0, err
	}
	return ms, userSP, img.Entry, nil
}

func (ms *MemorySet) loadELF(img *loader.Image) (hostarch.Addr, error) {
	if err := ms.mapTrampoline(); err != nil {
		return 0, err
	}

	var maxEnd hostarch.VPN
	for _, seg := range img.Segments {
		perm := User
		if seg.Read {
			perm |= Read
		}
		if seg.Write {
			perm |= Write
		}
		if seg.Execute {
			perm |= Execute
		}
		area := NewMapArea(seg.Vaddr, seg.End(), Framed, perm)
		for _, other := range ms.areas {
			if area.r.Overlaps(other.r) {
				return 0, fmt.Errorf("segment %v overlaps area %v: %w", seg, other, linuxerr.ENOEXEC)
			}
		}
		if area.r.End > maxEnd {
			maxEnd = area.r.End
		}
		data := img.FileBytes(seg)
		if off := seg.Vaddr.PageOffset(); off != 0 {
			// CopyData fills an area from offset 0 of its first page. Pad so
			// the bytes land at vaddr, not at the page boundary below it.
			data = append(make([]byte, off, off+uint64(len(data))), data...)
		}
		if err := ms.push(area, data); err != nil {
			return 0, fmt.Errorf("loading segment %v: %w", seg, err)
		}
	}

	// One unmapped guard page separates the image from the stack.
	stackBottom := maxEnd.Addr() + hostarch.PageSize
	stackTop := stackBottom + hostarch.UserStackSize
	if err := ms.push(NewMapArea(stackBottom, stackTop, Framed, Read|Write|User), nil); err != nil {
		return 0, fmt.Errorf("mapping user stack: %w", err)
	}
	// The heap starts empty and is grown through GrowTo.
	if err := ms.push(NewMapArea(stackTop, stackTop, Framed, Read|Write|User), nil); err != nil {
		return 0, fmt.Errorf("mapping heap: %w", err)
	}
	if err := ms.push(NewMapArea(hostarch.TrapContextBase, hostarch.Trampoline, Framed, Read|Write), nil); err != nil {
		return 0, fmt.Errorf("mapping trap context: %w", err)
	}
	return stackTop, nil
}

// FromELFBytes parses data as an executable image and builds its address
// space as FromELF does. A malformed image yields an error wrapping
// linuxerr.ENOEXEC before anything is allocated.
func FromELFBytes(mf *Memory, data []byte) (*MemorySet, hostarch.Addr, hostarch.Addr, error) {
	img, err := loader.Parse(data)
	if err != nil {
		return nil, 0, 0, err
	}
	return FromELF(mf, img)
}
