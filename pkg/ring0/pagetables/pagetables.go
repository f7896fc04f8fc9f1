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

// Package pagetables implements Sv39 page tables.
//
// Table nodes live in physical frames taken from a pgalloc.Allocator and are
// read and written through physical memory, exactly as the MMU sees them. The
// PageTables owns its node frames; the frames that leaf entries point at are
// owned by whoever installed the mapping.
package pagetables

import (
	"fmt"

	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/pgalloc"
)

// satpModeSv39 is the MODE field of satp selecting Sv39 translation.
const satpModeSv39 = uint64(8) << 60

// PageTables is a set of page tables.
type PageTables struct {
	// Allocator provides node frames.
	Allocator *pgalloc.Allocator

	// root is the physical page of the root table.
	root hostarch.PPN

	// nodes owns the frames backing the root and every intermediate table.
	nodes []*pgalloc.Frame
}

// New returns an empty set of page tables.
func New(a *pgalloc.Allocator) (*PageTables, error) {
	f, err := a.Allocate()
	if err != nil {
		return nil, err
	}
	return &PageTables{
		Allocator: a,
		root:      f.PPN(),
		nodes:     []*pgalloc.Frame{f},
	}, nil
}

// load reads entry idx of the table in page node.
func (p *PageTables) load(node hostarch.PPN, idx int) PTE {
	page := p.Allocator.Memory().PageBytes(node)
	return PTE(hostarch.ByteOrder.Uint64(page[idx*pteBytes:]))
}

// store writes entry idx of the table in page node.
func (p *PageTables) store(node hostarch.PPN, idx int, pte PTE) {
	page := p.Allocator.Memory().PageBytes(node)
	hostarch.ByteOrder.PutUint64(page[idx*pteBytes:], uint64(pte))
}

// walk finds the leaf slot for vpn, returning the table page and index that
// hold it. If alloc is set, missing intermediate tables are allocated;
// otherwise ok is false when one is missing.
func (p *PageTables) walk(vpn hostarch.VPN, alloc bool) (node hostarch.PPN, idx int, ok bool, err error) {
	indexes := vpn.Indexes()
	node = p.root
	for level := 0; level < levels-1; level++ {
		pte := p.load(node, indexes[level])
		if pte.Valid() {
			if pte.leaf() {
				panic(fmt.Sprintf("superpage entry %#x at level %d for %v", uint64(pte), level, vpn))
			}
			node = pte.PPN()
			continue
		}
		if !alloc {
			return 0, 0, false, nil
		}
		f, err := p.Allocator.Allocate()
		if err != nil {
			return 0, 0, false, err
		}
		p.nodes = append(p.nodes, f)
		p.store(node, indexes[level], NewPTE(f.PPN(), V))
		node = f.PPN()
	}
	return node, indexes[levels-1], true, nil
}

// Map installs a translation from vpn to ppn. V is always set in addition to
// flags.
//
// Map returns an error only if a table node could not be allocated.
//
// Precondition: vpn is not mapped.
func (p *PageTables) Map(vpn hostarch.VPN, ppn hostarch.PPN, flags PTEFlags) error {
	node, idx, _, err := p.walk(vpn, true)
	if err != nil {
		return err
	}
	if old := p.load(node, idx); old.Valid() {
		panic(fmt.Sprintf("%v is mapped before mapping (entry %#x)", vpn, uint64(old)))
	}
	p.store(node, idx, NewPTE(ppn, flags|V))
	return nil
}

// Unmap removes the translation of vpn.
//
// Precondition: vpn is mapped.
func (p *PageTables) Unmap(vpn hostarch.VPN) {
	node, idx, ok, _ := p.walk(vpn, false)
	if !ok || !p.load(node, idx).Valid() {
		panic(fmt.Sprintf("%v is invalid before unmapping", vpn))
	}
	p.store(node, idx, 0)
}

// Translate returns the entry mapping vpn. ok is false if vpn has no valid
// entry.
func (p *PageTables) Translate(vpn hostarch.VPN) (pte PTE, ok bool) {
	node, idx, found, _ := p.walk(vpn, false)
	if !found {
		return 0, false
	}
	pte = p.load(node, idx)
	return pte, pte.Valid()
}

// TranslateAddr returns the physical address addr maps to.
func (p *PageTables) TranslateAddr(addr hostarch.Addr) (hostarch.PhysAddr, bool) {
	pte, ok := p.Translate(addr.Floor())
	if !ok {
		return 0, false
	}
	return pte.PPN().Addr() + hostarch.PhysAddr(addr.PageOffset()), true
}

// Token returns the satp value selecting these tables.
func (p *PageTables) Token() uint64 {
	return satpModeSv39 | uint64(p.root)
}

// Root returns the physical page of the root table.
func (p *PageTables) Root() hostarch.PPN {
	return p.root
}

// ForEachMapping calls fn for every valid leaf entry in ascending vpn order.
// Iteration stops early if fn returns false.
func (p *PageTables) ForEachMapping(fn func(vpn hostarch.VPN, pte PTE) bool) {
	p.forEach(p.root, 0, 0, fn)
}

func (p *PageTables) forEach(node hostarch.PPN, level int, prefix hostarch.VPN, fn func(hostarch.VPN, PTE) bool) bool {
	for i := 0; i < entries; i++ {
		pte := p.load(node, i)
		if !pte.Valid() {
			continue
		}
		vpn := prefix<<9 | hostarch.VPN(i)
		if level == levels-1 {
			if !fn(vpn, pte) {
				return false
			}
			continue
		}
		if !p.forEach(pte.PPN(), level+1, vpn, fn) {
			return false
		}
	}
	return true
}

// Release frees every table node. Leaf entries are not inspected: frames they
// point at belong to their mappers.
func (p *PageTables) Release() {
	for _, f := range p.nodes {
		f.Release()
	}
	p.nodes = nil
}
