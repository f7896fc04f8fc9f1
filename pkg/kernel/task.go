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

package kernel

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rvkernel/rvkernel/pkg/errors/linuxerr"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/mm"
)

// TrapContext is the register state saved on a trap from user mode, as laid
// out in the trap context page.
type TrapContext struct {
	// X holds the general purpose registers x0-x31.
	X [32]uint64

	SStatus uint64
	SEPC    uint64

	// KernelSATP selects the kernel address space on trap entry.
	KernelSATP uint64

	// KernelSP is the top of the task's kernel stack.
	KernelSP uint64

	// TrapHandler is the kernel address trap entry jumps to.
	TrapHandler uint64
}

// regSP is the index of the stack pointer in TrapContext.X.
const regSP = 2

// Task is a user process.
type Task struct {
	k   *Kernel
	pid int

	// ms is the task's address space. It is only used from the task's own
	// control path.
	ms *mm.MemorySet

	// trapCx is the physical page holding the TrapContext.
	trapCx hostarch.PPN

	kstackBottom hostarch.Addr
	kstackTop    hostarch.Addr

	// userSP is the initial user stack pointer.
	userSP hostarch.Addr

	// heapBottom is the start of the heap area; programBrk is its current
	// end.
	heapBottom hostarch.Addr
	programBrk hostarch.Addr
}

// NewTask creates a task running the executable image. The task gets the
// lowest free PID, a kernel stack at the position derived from it and an
// initial trap context that enters the image at its entry point.
func (k *Kernel) NewTask(image []byte) (*Task, error) {
	ms, userSP, entry, err := mm.FromELFBytes(k.mf, image)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	pte, ok := ms.Translate(hostarch.TrapContextBase.Floor())
	if !ok {
		panic("trap context page not mapped")
	}

	pid := k.allocPID()
	bottom, top := mm.KernelStackPosition(pid)
	var kernelSATP uint64
	err = k.space.Exclusive(func(kms *mm.MemorySet) error {
		kernelSATP = kms.Token()
		return kms.InsertFramedArea(bottom, top, mm.Read|mm.Write)
	})
	if err != nil {
		k.freePID(pid)
		ms.Release()
		return nil, fmt.Errorf("mapping kernel stack: %w", err)
	}

	t := &Task{
		k:            k,
		pid:          pid,
		ms:           ms,
		trapCx:       pte.PPN(),
		kstackBottom: bottom,
		kstackTop:    top,
		userSP:       userSP,
		heapBottom:   userSP,
		programBrk:   userSP,
	}
	cx := TrapContext{
		// SPP is clear: sret returns to user mode.
		SStatus:     0,
		SEPC:        uint64(entry),
		KernelSATP:  kernelSATP,
		KernelSP:    uint64(top),
		TrapHandler: k.conf.TrapHandler,
	}
	cx.X[regSP] = uint64(userSP)
	t.SetTrapContext(&cx)
	log.Debugf("Task %d: entry %v, user sp %v, kernel stack [%v, %v)", pid, entry, userSP, bottom, top)
	return t, nil
}

// PID returns the task's ID.
func (t *Task) PID() int {
	return t.pid
}

// MemorySet returns the task's address space.
func (t *Task) MemorySet() *mm.MemorySet {
	return t.ms
}

// Token returns the satp value of the task's address space.
func (t *Task) Token() uint64 {
	return t.ms.Token()
}

// KernelStack returns the task's kernel stack [bottom, top).
func (t *Task) KernelStack() (bottom, top hostarch.Addr) {
	return t.kstackBottom, t.kstackTop
}

// UserSP returns the initial user stack pointer.
func (t *Task) UserSP() hostarch.Addr {
	return t.userSP
}

// ProgramBrk returns the current program break.
func (t *Task) ProgramBrk() hostarch.Addr {
	return t.programBrk
}

// trapContextBytes returns the trap context page.
func (t *Task) trapContextBytes() []byte {
	return t.k.ram.PageBytes(t.trapCx)
}

// TrapContext returns the saved register state.
func (t *Task) TrapContext() TrapContext {
	var cx TrapContext
	if err := binary.Read(bytes.NewReader(t.trapContextBytes()), hostarch.ByteOrder, &cx); err != nil {
		panic(fmt.Sprintf("decoding trap context: %v", err))
	}
	return cx
}

// SetTrapContext replaces the saved register state.
func (t *Task) SetTrapContext(cx *TrapContext) {
	if _, err := binary.Encode(t.trapContextBytes(), hostarch.ByteOrder, cx); err != nil {
		panic(fmt.Sprintf("encoding trap context: %v", err))
	}
}

// Activate switches the kernel's hart to the task's address space.
func (t *Task) Activate() {
	t.ms.Activate(t.k.hart)
}

// ChangeProgramBrk moves the program break by size bytes and returns the old
// break. The break cannot move below the heap bottom or into the trap
// context page, and the heap cannot grow over pages that are already mapped.
// On error the break is unchanged.
func (t *Task) ChangeProgramBrk(size int64) (hostarch.Addr, error) {
	old := t.programBrk
	newBrk := hostarch.Addr(int64(old) + size)
	if (size < 0 && newBrk > old) || (size > 0 && newBrk < old) {
		return old, fmt.Errorf("break %v%+d overflows: %w", old, size, linuxerr.EINVAL)
	}
	if newBrk < t.heapBottom || newBrk > hostarch.MaxUserAddr {
		return old, fmt.Errorf("break %v outside [%v, %v]: %w", newBrk, t.heapBottom, hostarch.MaxUserAddr, linuxerr.EINVAL)
	}
	if size < 0 {
		if !t.ms.ShrinkTo(t.heapBottom, newBrk) {
			panic(fmt.Sprintf("task %d has no heap area at %v", t.pid, t.heapBottom))
		}
		t.programBrk = newBrk
		return old, nil
	}
	for vpn := old.Ceil(); vpn < newBrk.Ceil(); vpn++ {
		if _, ok := t.ms.Translate(vpn); ok {
			return old, fmt.Errorf("heap growth to %v hits mapped %v: %w", newBrk, vpn, linuxerr.EEXIST)
		}
	}
	found, err := t.ms.GrowTo(t.heapBottom, newBrk)
	if !found {
		panic(fmt.Sprintf("task %d has no heap area at %v", t.pid, t.heapBottom))
	}
	if err != nil {
		return old, err
	}
	t.programBrk = newBrk
	return old, nil
}

// Release destroys the task: its kernel stack is removed from the kernel
// address space and its user address space is freed.
//
// Precondition: the task's address space is not active.
func (t *Task) Release() error {
	err := t.k.space.Exclusive(func(kms *mm.MemorySet) error {
		if !kms.RemoveAreaWithStart(t.kstackBottom) {
			return fmt.Errorf("task %d: no kernel stack at %v: %w", t.pid, t.kstackBottom, linuxerr.ENOENT)
		}
		return nil
	})
	t.ms.Release()
	t.k.freePID(t.pid)
	return err
}
