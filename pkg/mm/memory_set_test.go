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

	"github.com/google/go-cmp/cmp"
	"github.com/rvkernel/rvkernel/pkg/errors/linuxerr"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/ring0"
	"github.com/rvkernel/rvkernel/pkg/ring0/pagetables"
)

func TestInsertFramedArea(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)

	if err := ms.InsertFramedArea(0x1000, 0x3000, Read|Write); err != nil {
		t.Fatalf("InsertFramedArea failed: %v", err)
	}
	want := []AreaInfo{{Range: pages(1, 3), Type: Framed, Permission: Read | Write}}
	if diff := cmp.Diff(want, ms.Areas()); diff != "" {
		t.Errorf("Areas mismatch (-want +got):\n%s", diff)
	}
	for _, vpn := range []hostarch.VPN{1, 2} {
		pte, ok := ms.Translate(vpn)
		if !ok {
			t.Fatalf("Translate(%v) absent", vpn)
		}
		if !pte.Writable() || pte.Executable() || pte.User() {
			t.Errorf("Translate(%v) flags = %v, want writable, not executable, not user", vpn, pte.Flags())
		}
	}
	checkMapped(t, ms, pages(1, 3), Read|Write)
	checkUnmapped(t, ms, pages(0, 1))
	checkUnmapped(t, ms, pages(3, 4))
}

func TestToken(t *testing.T) {
	mf := newTestMemory(t, 4)
	ms := newTestSet(t, mf)
	if got, want := ms.Token(), uint64(8)<<60|uint64(ms.pt.Root()); got != want {
		t.Errorf("Token = %#x, want %#x", got, want)
	}
}

func TestActivate(t *testing.T) {
	mf := newTestMemory(t, 4)
	ms := newTestSet(t, mf)
	h := ring0.NewEmulatedHart()

	ms.Activate(h)
	if got, want := h.SATP(), ms.Token(); got != want {
		t.Errorf("SATP = %#x, want %#x", got, want)
	}
	if got := h.Flushes(); got != 1 {
		t.Errorf("Flushes = %d, want 1", got)
	}
	if !h.InterruptsEnabled() {
		t.Errorf("interrupts left disabled")
	}
}

func TestGrowShrink(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)
	if err := ms.InsertFramedArea(0x10000, 0x12000, Read|Write|User); err != nil {
		t.Fatalf("InsertFramedArea failed: %v", err)
	}
	used := mf.Frames.UsedFrames()

	found, err := ms.GrowTo(0x10800, 0x13800)
	if !found || err != nil {
		t.Fatalf("GrowTo = (%t, %v), want (true, nil)", found, err)
	}
	checkMapped(t, ms, pages(0x10, 0x14), Read|Write|User)
	if got, want := mf.Frames.UsedFrames(), used+2; got != want {
		t.Errorf("UsedFrames after GrowTo = %d, want %d", got, want)
	}

	if !ms.ShrinkTo(0x10000, 0x11000) {
		t.Fatalf("ShrinkTo = false, want true")
	}
	checkMapped(t, ms, pages(0x10, 0x11), Read|Write|User)
	checkUnmapped(t, ms, pages(0x11, 0x14))
	if got, want := mf.Frames.UsedFrames(), used-1; got != want {
		t.Errorf("UsedFrames after ShrinkTo = %d, want %d", got, want)
	}
	want := []AreaInfo{{Range: pages(0x10, 0x11), Type: Framed, Permission: Read | Write | User}}
	if diff := cmp.Diff(want, ms.Areas()); diff != "" {
		t.Errorf("Areas mismatch (-want +got):\n%s", diff)
	}
}

func TestGrowShrinkNoArea(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)
	if err := ms.InsertFramedArea(0x10000, 0x12000, Read); err != nil {
		t.Fatalf("InsertFramedArea failed: %v", err)
	}
	if found, err := ms.GrowTo(0x11000, 0x14000); found || err != nil {
		t.Errorf("GrowTo of a non-start page = (%t, %v), want (false, nil)", found, err)
	}
	if ms.ShrinkTo(0x20000, 0x20000) {
		t.Errorf("ShrinkTo of an unknown area = true, want false")
	}
	checkMapped(t, ms, pages(0x10, 0x12), Read)
	checkUnmapped(t, ms, pages(0x12, 0x14))
}

func TestGrowToExhaustion(t *testing.T) {
	// Root, two nodes, one area page and one spare frame.
	mf := newTestMemory(t, 5)
	ms := newTestSet(t, mf)
	if err := ms.InsertFramedArea(0x1000, 0x2000, Read|Write); err != nil {
		t.Fatalf("InsertFramedArea failed: %v", err)
	}

	found, err := ms.GrowTo(0x1000, 0x4000)
	if !found || !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Fatalf("GrowTo = (%t, %v), want (true, ENOMEM)", found, err)
	}
	checkUnmapped(t, ms, pages(2, 4))
	if got, want := mf.Frames.FreeFrames(), uint64(1); got != want {
		t.Errorf("FreeFrames = %d, want %d", got, want)
	}
	if diff := cmp.Diff(pages(1, 2), ms.Areas()[0].Range); diff != "" {
		t.Errorf("area range changed (-want +got):\n%s", diff)
	}
}

func TestInsertFramedAreaRollback(t *testing.T) {
	mf := newTestMemory(t, 5)
	ms := newTestSet(t, mf)
	free := mf.Frames.FreeFrames()

	if err := ms.InsertFramedArea(0x1000, 0x9000, Read); !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Fatalf("InsertFramedArea = %v, want ENOMEM", err)
	}
	if got := len(ms.Areas()); got != 0 {
		t.Errorf("%d areas after failed insert, want 0", got)
	}
	checkUnmapped(t, ms, pages(1, 9))
	// The intermediate table nodes stay with the page tables.
	if got, want := mf.Frames.FreeFrames(), free-2; got != want {
		t.Errorf("FreeFrames = %d, want %d", got, want)
	}
}

func TestMMapMUnmap(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)

	if err := ms.MMap(0x100, 0x104, 0b011); err != nil {
		t.Fatalf("MMap failed: %v", err)
	}
	checkMapped(t, ms, pages(0x100, 0x104), Read|Write|User)
	if got, want := ms.MMapPages(), 4; got != want {
		t.Errorf("MMapPages = %d, want %d", got, want)
	}
	if got := len(ms.Areas()); got != 0 {
		t.Errorf("MMap created %d areas, want 0", got)
	}
	used := mf.Frames.UsedFrames()

	if err := ms.MUnmap(0x100, 0x104); err != nil {
		t.Fatalf("MUnmap failed: %v", err)
	}
	checkUnmapped(t, ms, pages(0x100, 0x104))
	if got := ms.MMapPages(); got != 0 {
		t.Errorf("MMapPages after MUnmap = %d, want 0", got)
	}
	if got, want := mf.Frames.UsedFrames(), used-4; got != want {
		t.Errorf("UsedFrames after MUnmap = %d, want %d", got, want)
	}
}

func TestMMapExecute(t *testing.T) {
	mf := newTestMemory(t, 8)
	ms := newTestSet(t, mf)
	if err := ms.MMap(0x10, 0x11, 0b100); err != nil {
		t.Fatalf("MMap failed: %v", err)
	}
	pte, _ := ms.Translate(0x10)
	if got, want := pte.Flags(), pagetables.V|pagetables.X|pagetables.U; got != want {
		t.Errorf("flags = %v, want %v", got, want)
	}
}

func TestMMapConflict(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)
	if err := ms.MMap(0x12, 0x13, 0b001); err != nil {
		t.Fatalf("MMap failed: %v", err)
	}

	if err := ms.MMap(0x10, 0x14, 0b011); !linuxerr.Equals(linuxerr.EEXIST, err) {
		t.Fatalf("MMap over a mapped page = %v, want EEXIST", err)
	}
	// Pages before the conflict keep their new mappings.
	checkMapped(t, ms, pages(0x10, 0x12), Read|Write|User)
	checkMapped(t, ms, pages(0x12, 0x13), Read|User)
	checkUnmapped(t, ms, pages(0x13, 0x14))
	if got, want := ms.MMapPages(), 3; got != want {
		t.Errorf("MMapPages = %d, want %d", got, want)
	}
}

func TestMMapOverArea(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)
	if err := ms.InsertFramedArea(0x3000, 0x4000, Read); err != nil {
		t.Fatalf("InsertFramedArea failed: %v", err)
	}
	if err := ms.MMap(3, 4, 0b001); !linuxerr.Equals(linuxerr.EEXIST, err) {
		t.Errorf("MMap over an area = %v, want EEXIST", err)
	}
}

func TestMMapExhaustion(t *testing.T) {
	// Root, two nodes and two pages.
	mf := newTestMemory(t, 5)
	ms := newTestSet(t, mf)
	if err := ms.MMap(0x10, 0x14, 0b011); !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Fatalf("MMap = %v, want ENOMEM", err)
	}
	checkMapped(t, ms, pages(0x10, 0x12), Read|Write|User)
	checkUnmapped(t, ms, pages(0x12, 0x14))
}

func TestMUnmapAbsent(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)
	if err := ms.MMap(0x10, 0x12, 0b011); err != nil {
		t.Fatalf("MMap failed: %v", err)
	}
	if err := ms.MMap(0x13, 0x14, 0b011); err != nil {
		t.Fatalf("MMap failed: %v", err)
	}

	if err := ms.MUnmap(0x10, 0x14); !linuxerr.Equals(linuxerr.EFAULT, err) {
		t.Fatalf("MUnmap over a hole = %v, want EFAULT", err)
	}
	// Pages before the hole stay unmapped; pages after it are untouched.
	checkUnmapped(t, ms, pages(0x10, 0x13))
	checkMapped(t, ms, pages(0x13, 0x14), Read|Write|User)
	if got, want := ms.MMapPages(), 1; got != want {
		t.Errorf("MMapPages = %d, want %d", got, want)
	}
}

func TestRemoveAreaWithStart(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)
	for _, r := range []struct{ start, end hostarch.Addr }{{0x1000, 0x2000}, {0x3000, 0x5000}, {0x6000, 0x7000}} {
		if err := ms.InsertFramedArea(r.start, r.end, Read|Write); err != nil {
			t.Fatalf("InsertFramedArea failed: %v", err)
		}
	}
	if !ms.RemoveAreaWithStart(0x3000) {
		t.Fatalf("RemoveAreaWithStart = false, want true")
	}
	if ms.RemoveAreaWithStart(0x3000) {
		t.Errorf("second RemoveAreaWithStart = true, want false")
	}
	checkUnmapped(t, ms, pages(3, 5))
	want := []AreaInfo{
		{Range: pages(1, 2), Type: Framed, Permission: Read | Write},
		{Range: pages(6, 7), Type: Framed, Permission: Read | Write},
	}
	if diff := cmp.Diff(want, ms.Areas()); diff != "" {
		t.Errorf("Areas mismatch (-want +got):\n%s", diff)
	}
}

func TestRelease(t *testing.T) {
	mf := newTestMemory(t, 32)
	ms := newTestSet(t, mf)
	if err := ms.mapTrampoline(); err != nil {
		t.Fatalf("mapTrampoline failed: %v", err)
	}
	if err := ms.InsertFramedArea(0x1000, 0x4000, Read|Write); err != nil {
		t.Fatalf("InsertFramedArea failed: %v", err)
	}
	if err := ms.MMap(0x100, 0x102, 0b001); err != nil {
		t.Fatalf("MMap failed: %v", err)
	}
	if mf.Frames.UsedFrames() == 0 {
		t.Fatalf("no frames in use before Release")
	}

	ms.Release()
	if got := mf.Frames.UsedFrames(); got != 0 {
		t.Errorf("UsedFrames after Release = %d, want 0", got)
	}
}

func TestReleaseAfterMUnmapOfArea(t *testing.T) {
	mf := newTestMemory(t, 16)
	ms := newTestSet(t, mf)
	if err := ms.InsertFramedArea(0x1000, 0x3000, Read|Write); err != nil {
		t.Fatalf("InsertFramedArea failed: %v", err)
	}
	// munmap does not know about areas, so the area loses a page behind its
	// back.
	if err := ms.MUnmap(1, 2); err != nil {
		t.Fatalf("MUnmap failed: %v", err)
	}
	checkUnmapped(t, ms, pages(1, 2))

	ms.Release()
	if got := mf.Frames.UsedFrames(); got != 0 {
		t.Errorf("UsedFrames after Release = %d, want 0", got)
	}
}
