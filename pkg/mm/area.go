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
	"errors"
	"fmt"

	"github.com/rvkernel/rvkernel/pkg/errors/linuxerr"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/ring0/pagetables"
)

// ErrNotFramed is returned when data is copied into an area that owns no
// frames.
var ErrNotFramed = errors.New("area is not framed")

// MapArea is a contiguous range of virtual pages with one mapping type and
// one permission set.
//
// A MapArea does not remember which page tables it was mapped into; every
// operation that touches translations takes them as an argument.
type MapArea struct {
	r    hostarch.VPNRange
	mt   MapType
	perm MapPermission

	// frames backs every mapped page of a Framed area.
	frames frameArena
}

// NewMapArea returns an unmapped area covering the pages that overlap
// [start, end).
func NewMapArea(start, end hostarch.Addr, mt MapType, perm MapPermission) *MapArea {
	return &MapArea{
		r:    hostarch.AddrRangeOf(start, end),
		mt:   mt,
		perm: perm,
	}
}

// Range returns the pages covered by the area.
func (a *MapArea) Range() hostarch.VPNRange {
	return a.r
}

// Type returns the area's mapping type.
func (a *MapArea) Type() MapType {
	return a.mt
}

// Permission returns the area's permissions.
func (a *MapArea) Permission() MapPermission {
	return a.perm
}

// String implements fmt.Stringer.String.
func (a *MapArea) String() string {
	return fmt.Sprintf("%v %v %v", a.r, a.perm, a.mt)
}

// mapOne installs the translation of vpn.
func (a *MapArea) mapOne(pt *pagetables.PageTables, vpn hostarch.VPN) error {
	var ppn hostarch.PPN
	switch a.mt {
	case Identical:
		ppn = hostarch.PPN(vpn)
	case Framed:
		f, err := pt.Allocator.Allocate()
		if err != nil {
			return err
		}
		if err := pt.Map(vpn, f.PPN(), a.perm.pteFlags()); err != nil {
			f.Release()
			return err
		}
		a.frames.insert(vpn, f)
		return nil
	default:
		panic(fmt.Sprintf("unknown map type %v", a.mt))
	}
	return pt.Map(vpn, ppn, a.perm.pteFlags())
}

// unmapOne removes the translation of vpn and releases its frame.
func (a *MapArea) unmapOne(pt *pagetables.PageTables, vpn hostarch.VPN) {
	switch a.mt {
	case Identical:
	case Framed:
		if !a.frames.remove(vpn) {
			panic(fmt.Sprintf("%v of framed area %v has no frame", vpn, a.r))
		}
	default:
		panic(fmt.Sprintf("unknown map type %v", a.mt))
	}
	pt.Unmap(vpn)
}

// mapRange maps r in ascending order. On failure it returns the page that
// could not be mapped; pages below it stay mapped.
func (a *MapArea) mapRange(pt *pagetables.PageTables, r hostarch.VPNRange) (hostarch.VPN, error) {
	for vpn := r.Start; vpn < r.End; vpn++ {
		if err := a.mapOne(pt, vpn); err != nil {
			return vpn, fmt.Errorf("mapping %v: %w", vpn, err)
		}
	}
	return r.End, nil
}

// unmapRange unmaps r.
func (a *MapArea) unmapRange(pt *pagetables.PageTables, r hostarch.VPNRange) {
	for vpn := r.Start; vpn < r.End; vpn++ {
		a.unmapOne(pt, vpn)
	}
}

// Map installs translations for every page of the area in ascending order.
// Frames for a Framed area are allocated from pt.Allocator.
//
// If a frame or table node cannot be allocated, Map returns an error wrapping
// linuxerr.ENOMEM and the pages mapped before the failure remain mapped.
func (a *MapArea) Map(pt *pagetables.PageTables) error {
	_, err := a.mapRange(pt, a.r)
	return err
}

// Unmap removes every translation of the area and releases its frames.
//
// Precondition: the area is mapped in pt.
func (a *MapArea) Unmap(pt *pagetables.PageTables) {
	a.unmapRange(pt, a.r)
}

// release unmaps whatever pages of the area are still translated in pt and
// releases every frame the area owns. Unlike Unmap it tolerates pages that
// were unmapped behind the area's back.
func (a *MapArea) release(pt *pagetables.PageTables) {
	for vpn := a.r.Start; vpn < a.r.End; vpn++ {
		if _, ok := pt.Translate(vpn); ok {
			pt.Unmap(vpn)
		}
		if a.mt == Framed {
			a.frames.remove(vpn)
		}
	}
}

// ShrinkTo unmaps the pages [newEnd, end) and makes newEnd the end of the
// area.
//
// Precondition: start <= newEnd <= end.
func (a *MapArea) ShrinkTo(pt *pagetables.PageTables, newEnd hostarch.VPN) {
	if newEnd > a.r.End || newEnd < a.r.Start {
		panic(fmt.Sprintf("cannot shrink %v to end %#x", a.r, uint64(newEnd)))
	}
	a.unmapRange(pt, hostarch.NewVPNRange(newEnd, a.r.End))
	a.r.End = newEnd
}

// GrowTo maps the pages [end, newEnd) and makes newEnd the end of the area.
//
// If allocation fails the pages added by this call are unmapped again and the
// area is unchanged.
//
// Precondition: newEnd >= end.
func (a *MapArea) GrowTo(pt *pagetables.PageTables, newEnd hostarch.VPN) error {
	if newEnd < a.r.End {
		panic(fmt.Sprintf("cannot grow %v to end %#x", a.r, uint64(newEnd)))
	}
	grown := hostarch.NewVPNRange(a.r.End, newEnd)
	if failed, err := a.mapRange(pt, grown); err != nil {
		a.unmapRange(pt, hostarch.NewVPNRange(grown.Start, failed))
		return err
	}
	a.r.End = newEnd
	return nil
}

// CopyData writes data to the start of the area, filling one page after
// another from offset 0. Bytes of the last touched page past the end of data
// keep their previous contents, which for a freshly mapped area is zero.
//
// It returns ErrNotFramed for an Identical area and an error wrapping
// linuxerr.EFAULT if data does not fit in the area.
//
// Precondition: the area is mapped.
func (a *MapArea) CopyData(data []byte) error {
	if a.mt != Framed {
		return ErrNotFramed
	}
	if uint64(len(data)) > a.r.Len()*hostarch.PageSize {
		return fmt.Errorf("%d bytes do not fit in %v: %w", len(data), a.r, linuxerr.EFAULT)
	}
	for vpn := a.r.Start; len(data) > 0; vpn++ {
		f, ok := a.frames.get(vpn)
		if !ok {
			panic(fmt.Sprintf("copy into unmapped %v of %v", vpn, a.r))
		}
		n := copy(f.Bytes(), data)
		data = data[n:]
	}
	return nil
}

// frameCount returns the number of frames the area owns.
func (a *MapArea) frameCount() int {
	return a.frames.len()
}
