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
	"testing"

	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/pgalloc"
	"github.com/rvkernel/rvkernel/pkg/physmem"
	"github.com/rvkernel/rvkernel/pkg/ring0/pagetables"
)

const ramBase = hostarch.PhysAddr(0x80000000)

// newTestMemory returns physical memory whose first page holds the trampoline
// and whose remaining frames pages are allocatable.
func newTestMemory(t *testing.T, frames uint64) *Memory {
	t.Helper()
	mem, err := physmem.New(ramBase, (frames+1)*hostarch.PageSize)
	if err != nil {
		t.Fatalf("physmem.New failed: %v", err)
	}
	t.Cleanup(func() { mem.Release() })
	a, err := pgalloc.New(mem, ramBase.Floor()+1, ramBase.Floor()+1+hostarch.PPN(frames))
	if err != nil {
		t.Fatalf("pgalloc.New failed: %v", err)
	}
	return &Memory{Frames: a, Trampoline: ramBase.Floor()}
}

func newTestSet(t *testing.T, mf *Memory) *MemorySet {
	t.Helper()
	ms, err := NewBare(mf)
	if err != nil {
		t.Fatalf("NewBare failed: %v", err)
	}
	return ms
}

// checkMapped verifies that every page of r is mapped with exactly perm.
func checkMapped(t *testing.T, ms *MemorySet, r hostarch.VPNRange, perm MapPermission) {
	t.Helper()
	want := perm.pteFlags() | pagetables.V
	for vpn := r.Start; vpn < r.End; vpn++ {
		pte, ok := ms.Translate(vpn)
		if !ok {
			t.Errorf("Translate(%v) absent, want present", vpn)
			continue
		}
		if pte.Flags() != want {
			t.Errorf("Translate(%v) flags = %v, want %v", vpn, pte.Flags(), want)
		}
	}
}

// checkUnmapped verifies that no page of r is mapped.
func checkUnmapped(t *testing.T, ms *MemorySet, r hostarch.VPNRange) {
	t.Helper()
	for vpn := r.Start; vpn < r.End; vpn++ {
		if pte, ok := ms.Translate(vpn); ok {
			t.Errorf("Translate(%v) = %#x, want absent", vpn, uint64(pte))
		}
	}
}

func pages(start, end uint64) hostarch.VPNRange {
	return hostarch.NewVPNRange(hostarch.VPN(start), hostarch.VPN(end))
}
