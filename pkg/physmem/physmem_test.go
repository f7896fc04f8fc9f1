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

package physmem

import (
	"testing"

	"github.com/rvkernel/rvkernel/pkg/hostarch"
)

func TestPageBytes(t *testing.T) {
	m, err := New(0x80000000, 4*hostarch.PageSize)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Release()

	ppn := hostarch.PhysAddr(0x80002000).Floor()
	page := m.PageBytes(ppn)
	if len(page) != hostarch.PageSize {
		t.Fatalf("len(PageBytes) = %d, want %d", len(page), hostarch.PageSize)
	}
	for i, b := range page {
		if b != 0 {
			t.Fatalf("fresh page byte %d = %#x, want 0", i, b)
		}
	}
	page[10] = 0xaa
	if got := m.PageBytes(ppn)[10]; got != 0xaa {
		t.Errorf("write not visible through a second view: got %#x", got)
	}
	if got := m.PageBytes(ppn + 1)[10]; got != 0 {
		t.Errorf("write leaked into the next page: got %#x", got)
	}
	m.ZeroPage(ppn)
	if got := m.PageBytes(ppn)[10]; got != 0 {
		t.Errorf("ZeroPage left %#x", got)
	}
}

func TestBounds(t *testing.T) {
	m, err := New(0x80000000, hostarch.PageSize)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Release()

	if m.Contains(hostarch.PhysAddr(0x80001000).Floor()) {
		t.Errorf("Contains reports the page past the end")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("PageBytes outside memory did not panic")
		}
	}()
	m.PageBytes(hostarch.PhysAddr(0x80001000).Floor())
}

func TestUnaligned(t *testing.T) {
	if _, err := New(0x80000010, hostarch.PageSize); err == nil {
		t.Errorf("New with unaligned base succeeded")
	}
}
