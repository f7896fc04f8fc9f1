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

package hostarch

import (
	"testing"
)

func TestPageNumbers(t *testing.T) {
	for _, test := range []struct {
		name  string
		addr  Addr
		floor VPN
		ceil  VPN
	}{
		{name: "zero", addr: 0, floor: 0, ceil: 0},
		{name: "aligned", addr: 0x3000, floor: 3, ceil: 3},
		{name: "unaligned", addr: 0x3001, floor: 3, ceil: 4},
		{name: "last byte of page", addr: 0x3fff, floor: 3, ceil: 4},
		{name: "trampoline", addr: Trampoline, floor: 0x7ffffff, ceil: 0x7ffffff},
		{name: "trap context", addr: TrapContextBase, floor: 0x7fffffe, ceil: 0x7fffffe},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := test.addr.Floor(); got != test.floor {
				t.Errorf("%v.Floor() = %v, want %v", test.addr, got, test.floor)
			}
			if got := test.addr.Ceil(); got != test.ceil {
				t.Errorf("%v.Ceil() = %v, want %v", test.addr, got, test.ceil)
			}
		})
	}
}

func TestSamePageSharesNumber(t *testing.T) {
	base := Addr(0x80200000)
	for off := Addr(0); off < PageSize; off += 0x111 {
		if got, want := (base + off).Floor(), base.Floor(); got != want {
			t.Fatalf("(%v).Floor() = %v, want %v", base+off, got, want)
		}
	}
}

func TestRoundUp(t *testing.T) {
	if got, ok := Addr(0x1001).RoundUp(); !ok || got != 0x2000 {
		t.Errorf("RoundUp(0x1001) = %v, %t, want 0x2000, true", got, ok)
	}
	if _, ok := (^Addr(0)).RoundUp(); ok {
		t.Errorf("RoundUp(max) did not report wrap-around")
	}
}

func TestVPNRange(t *testing.T) {
	r := AddrRangeOf(0x1800, 0x3001)
	if r.Start != 1 || r.End != 4 {
		t.Fatalf("AddrRangeOf(0x1800, 0x3001) = %v, want [0x1, 0x4)", r)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	if !r.Contains(3) || r.Contains(4) {
		t.Errorf("Contains is not half-open: %v", r)
	}
	if !r.Overlaps(VPNRange{3, 10}) || r.Overlaps(VPNRange{4, 10}) {
		t.Errorf("Overlaps is not half-open: %v", r)
	}
	if empty := AddrRangeOf(0x5000, 0x5000); !empty.Empty() {
		t.Errorf("AddrRangeOf(0x5000, 0x5000) = %v, want empty", empty)
	}
}

func TestNewVPNRangeRejectsInverted(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("NewVPNRange(2, 1) did not panic")
		}
	}()
	NewVPNRange(2, 1)
}

func TestIndexes(t *testing.T) {
	vpn := VPN(0x7ffffff)
	if got, want := vpn.Indexes(), [3]int{0x1ff, 0x1ff, 0x1ff}; got != want {
		t.Errorf("%v.Indexes() = %v, want %v", vpn, got, want)
	}
	vpn = VPN(1<<18 | 2<<9 | 3)
	if got, want := vpn.Indexes(), [3]int{1, 2, 3}; got != want {
		t.Errorf("%v.Indexes() = %v, want %v", vpn, got, want)
	}
}
