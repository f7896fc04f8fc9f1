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

package cmd

import (
	"flag"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadFlags(t *testing.T) {
	var l Load
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	l.SetFlags(fs)
	args := []string{
		"-mmap", "0x10000000:0x2000:3",
		"-mmap", "0x20000000:4096:0b1",
		"-munmap", "0x10000000:0x1000",
		"-sbrk", "0x1000",
		"-sbrk", "-16",
		"prog.elf",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	wantMmaps := rangeList{{0x10000000, 0x2000, 3}, {0x20000000, 4096, 1}}
	if diff := cmp.Diff(wantMmaps, l.mmaps, cmp.AllowUnexported(mmapRequest{})); diff != "" {
		t.Errorf("mmaps mismatch (-want +got):\n%s", diff)
	}
	wantMunmaps := rangeList{{0x10000000, 0x1000, 0}}
	if diff := cmp.Diff(wantMunmaps, l.munmaps, cmp.AllowUnexported(mmapRequest{})); diff != "" {
		t.Errorf("munmaps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(intList{0x1000, -16}, l.sbrks); diff != "" {
		t.Errorf("sbrks mismatch (-want +got):\n%s", diff)
	}
	if got := fs.Arg(0); got != "prog.elf" {
		t.Errorf("Arg(0) = %q, want prog.elf", got)
	}
}

func TestRangeListErrors(t *testing.T) {
	for _, s := range []string{"0x1000", "1:2:3:4", "x:0x1000", "0x1000:-1"} {
		var r rangeList
		if err := r.Set(s); err == nil {
			t.Errorf("Set(%q) succeeded, want error", s)
		}
	}
}
