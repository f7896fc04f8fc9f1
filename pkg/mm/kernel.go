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

	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/sync"
)

// Section is the address range [Start, End) of one part of the kernel image.
type Section struct {
	Start hostarch.Addr
	End   hostarch.Addr
}

// String implements fmt.Stringer.String.
func (s Section) String() string {
	return fmt.Sprintf("[%v, %v)", s.Start, s.End)
}

// KernelLayout is the physical layout of the kernel image and the memory
// above it. The kernel runs identity mapped, so these are also its virtual
// addresses.
type KernelLayout struct {
	Text   Section
	ROData Section
	Data   Section

	// BSS includes the boot stack.
	BSS Section

	// End is the end of the kernel image. Physical memory from End to
	// MemoryEnd is free for frames.
	End hostarch.Addr

	// MemoryEnd is one past the highest physical address.
	MemoryEnd hostarch.Addr
}

// kernelSection is one identity mapped area of the kernel address space.
type kernelSection struct {
	name string
	s    Section
	perm MapPermission
}

func (l *KernelLayout) sections() []kernelSection {
	return []kernelSection{
		{".text", l.Text, Read | Execute},
		{".rodata", l.ROData, Read},
		{".data", l.Data, Read | Write},
		{".bss", l.BSS, Read | Write},
		{"physical memory", Section{l.End, l.MemoryEnd}, Read | Write},
	}
}

// NewKernel returns the kernel address space: the trampoline, then the kernel
// image sections and all physical memory above the image, identity mapped.
// Table nodes are allocated from mf.Frames; no other frames are used.
func NewKernel(mf *Memory, layout KernelLayout) (*MemorySet, error) {
	ms, err := NewBare(mf)
	if err != nil {
		return nil, err
	}
	if err := ms.mapTrampoline(); err != nil {
		ms.Release()
		return nil, err
	}
	for _, ks := range layout.sections() {
		log.Infof("mapping %s %v", ks.name, ks.s)
		if err := ms.push(NewMapArea(ks.s.Start, ks.s.End, Identical, ks.perm), nil); err != nil {
			ms.Release()
			return nil, fmt.Errorf("mapping %s: %w", ks.name, err)
		}
	}
	return ms, nil
}

// CheckKernelPermissions verifies that every page of the kernel image is
// identity mapped and that code and read-only data are not writable and data
// is not executable.
func CheckKernelPermissions(ms *MemorySet, layout KernelLayout) error {
	for _, ks := range layout.sections() {
		r := hostarch.AddrRangeOf(ks.s.Start, ks.s.End)
		for vpn := r.Start; vpn < r.End; vpn++ {
			pte, ok := ms.Translate(vpn)
			switch {
			case !ok:
				return fmt.Errorf("%s: %v is not mapped", ks.name, vpn)
			case uint64(pte.PPN()) != uint64(vpn):
				return fmt.Errorf("%s: %v maps to %v", ks.name, vpn, pte.PPN())
			case pte.Writable() && ks.perm&Write == 0:
				return fmt.Errorf("%s: %v is writable", ks.name, vpn)
			case pte.Executable() && ks.perm&Execute == 0:
				return fmt.Errorf("%s: %v is executable", ks.name, vpn)
			case pte.User():
				return fmt.Errorf("%s: %v is user accessible", ks.name, vpn)
			}
		}
	}
	return nil
}

// KernelSpace is the kernel's address space, built on first use and shared
// by every task. All access goes through Exclusive.
type KernelSpace struct {
	get func() (*MemorySet, error)

	// mu serializes access to the address space.
	mu sync.Mutex
}

// NewKernelSpace returns a KernelSpace that builds its address space from mf
// and layout on first use.
func NewKernelSpace(mf *Memory, layout KernelLayout) *KernelSpace {
	return &KernelSpace{
		get: sync.OnceValues(func() (*MemorySet, error) {
			return NewKernel(mf, layout)
		}),
	}
}

// Exclusive calls fn with the kernel address space while holding exclusive
// access to it. If the address space cannot be built, the construction error
// is returned on this and every later call and fn is not called.
//
// fn must not block and must not retain ms after returning.
func (ks *KernelSpace) Exclusive(fn func(ms *MemorySet) error) error {
	ms, err := ks.get()
	if err != nil {
		return fmt.Errorf("building kernel address space: %w", err)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return fn(ms)
}

// KernelStackPosition returns the kernel stack [bottom, top) of task id. Stacks
// are laid out downward from the trampoline, with one unmapped guard page
// between the trampoline and the first stack and between any two stacks.
func KernelStackPosition(id int) (bottom, top hostarch.Addr) {
	top = hostarch.Trampoline - hostarch.PageSize - hostarch.Addr(id)*(hostarch.KernelStackSize+hostarch.PageSize)
	bottom = top - hostarch.KernelStackSize
	return bottom, top
}
