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

	"github.com/google/btree"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/pgalloc"
)

// frameEntry is one owned frame, keyed by the virtual page it backs.
type frameEntry struct {
	vpn   hostarch.VPN
	frame *pgalloc.Frame
}

func frameEntryLess(a, b frameEntry) bool {
	return a.vpn < b.vpn
}

// frameArena owns a set of frames indexed by virtual page number. Removing an
// entry is the only place its frame is released; frames never leave the arena
// any other way.
//
// The zero value is an empty arena.
type frameArena struct {
	t *btree.BTreeG[frameEntry]
}

func (a *frameArena) tree() *btree.BTreeG[frameEntry] {
	if a.t == nil {
		a.t = btree.NewG(8, frameEntryLess)
	}
	return a.t
}

// insert takes ownership of f as the frame backing vpn.
//
// Precondition: vpn has no frame in a.
func (a *frameArena) insert(vpn hostarch.VPN, f *pgalloc.Frame) {
	if old, ok := a.tree().ReplaceOrInsert(frameEntry{vpn, f}); ok {
		panic(fmt.Sprintf("%v already backed by %v", vpn, old.frame.PPN()))
	}
}

// get returns the frame backing vpn.
func (a *frameArena) get(vpn hostarch.VPN) (*pgalloc.Frame, bool) {
	e, ok := a.tree().Get(frameEntry{vpn: vpn})
	return e.frame, ok
}

// remove drops vpn from the arena and releases its frame. It returns false if
// vpn had no frame.
func (a *frameArena) remove(vpn hostarch.VPN) bool {
	e, ok := a.tree().Delete(frameEntry{vpn: vpn})
	if ok {
		e.frame.Release()
	}
	return ok
}

// len returns the number of owned frames.
func (a *frameArena) len() int {
	if a.t == nil {
		return 0
	}
	return a.t.Len()
}

// forEach calls fn for every owned frame in ascending vpn order.
func (a *frameArena) forEach(fn func(vpn hostarch.VPN, f *pgalloc.Frame)) {
	if a.t == nil {
		return
	}
	a.t.Ascend(func(e frameEntry) bool {
		fn(e.vpn, e.frame)
		return true
	})
}
