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

// Package kernel wires the address space subsystem into a running kernel: it
// boots the kernel address space from a Config and creates tasks, each with
// its own user address space, a kernel stack in the kernel address space and
// a trap context page.
package kernel

import (
	"fmt"

	"github.com/google/btree"
	"github.com/rvkernel/rvkernel/pkg/config"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/mm"
	"github.com/rvkernel/rvkernel/pkg/pgalloc"
	"github.com/rvkernel/rvkernel/pkg/physmem"
	"github.com/rvkernel/rvkernel/pkg/ring0"
	"github.com/rvkernel/rvkernel/pkg/sync"
)

// Kernel is a booted kernel.
type Kernel struct {
	conf *config.Config
	ram  *physmem.Memory
	mf   *mm.Memory
	hart ring0.Hart

	// space is the kernel address space shared by all tasks.
	space *mm.KernelSpace

	mu sync.Mutex

	// nextPID is the lowest PID never handed out.
	//
	// +checklocks:mu
	nextPID int

	// freePIDs holds released PIDs below nextPID.
	//
	// +checklocks:mu
	freePIDs *btree.BTreeG[int]
}

// Boot brings up physical memory as described by conf, builds the kernel
// address space, checks its permissions and activates it on hart.
func Boot(conf *config.Config, hart ring0.Hart) (*Kernel, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ram, err := physmem.New(hostarch.PhysAddr(conf.RAMBase), conf.MemoryEnd-conf.RAMBase)
	if err != nil {
		return nil, err
	}
	start, end := conf.FrameRange()
	frames, err := pgalloc.New(ram, start, end)
	if err != nil {
		ram.Release()
		return nil, err
	}
	mf := &mm.Memory{
		Frames:     frames,
		Trampoline: hostarch.PhysAddr(conf.Trampoline).Floor(),
	}
	k := &Kernel{
		conf:     conf,
		ram:      ram,
		mf:       mf,
		hart:     hart,
		space:    mm.NewKernelSpace(mf, conf.Layout()),
		freePIDs: btree.NewOrderedG[int](2),
	}
	err = k.space.Exclusive(func(ms *mm.MemorySet) error {
		if err := mm.CheckKernelPermissions(ms, conf.Layout()); err != nil {
			return err
		}
		log.Infof("remap check passed")
		ms.Activate(hart)
		return nil
	})
	if err != nil {
		ram.Release()
		return nil, err
	}
	log.Infof("Kernel booted: %d frames free", frames.FreeFrames())
	return k, nil
}

// Space returns the kernel address space.
func (k *Kernel) Space() *mm.KernelSpace {
	return k.space
}

// Frames returns the frame allocator.
func (k *Kernel) Frames() *pgalloc.Allocator {
	return k.mf.Frames
}

// Hart returns the hart the kernel runs on.
func (k *Kernel) Hart() ring0.Hart {
	return k.hart
}

// KernelToken returns the satp value of the kernel address space.
func (k *Kernel) KernelToken() (uint64, error) {
	var token uint64
	err := k.space.Exclusive(func(ms *mm.MemorySet) error {
		token = ms.Token()
		return nil
	})
	return token, err
}

// Release frees physical memory. k and all its tasks must not be used
// afterwards.
func (k *Kernel) Release() error {
	return k.ram.Release()
}

// allocPID returns the lowest free PID.
func (k *Kernel) allocPID() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pid, ok := k.freePIDs.DeleteMin(); ok {
		return pid
	}
	pid := k.nextPID
	k.nextPID++
	return pid
}

// freePID makes pid available again.
func (k *Kernel) freePID(pid int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.freePIDs.ReplaceOrInsert(pid)
}
