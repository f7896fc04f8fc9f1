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
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/mm"
	"github.com/rvkernel/rvkernel/pkg/syscalls"
)

// Load implements subcommands.Command for the "load" command.
type Load struct {
	output  string
	mmaps   rangeList
	munmaps rangeList
	sbrks   intList
}

// Name implements subcommands.Command.Name.
func (*Load) Name() string {
	return "load"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Load) Synopsis() string {
	return "Load an ELF executable into a new task and print its address space."
}

// Usage implements subcommands.Command.Usage.
func (*Load) Usage() string {
	return `load [options] <executable> - creates a task from a RISC-V ELF executable.

The -mmap, -sbrk and -munmap requests are issued in that order, each group in
command line order, and their return values printed.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Load) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.output, "o", "table", "output format (table, json).")
	f.Var(&l.mmaps, "mmap", "start:length:port mmap request; may be repeated.")
	f.Var(&l.munmaps, "munmap", "start:length munmap request; may be repeated.")
	f.Var(&l.sbrks, "sbrk", "sbrk request in bytes; may be repeated.")
}

// Execute implements subcommands.Command.Execute.
func (l *Load) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	image, err := os.ReadFile(f.Arg(0))
	if err != nil {
		Fatalf("reading executable: %v", err)
	}
	k, hart := bootKernel(args)
	defer k.Release()

	t, err := k.NewTask(image)
	if err != nil {
		Fatalf("creating task: %v", err)
	}
	defer t.Release()

	for _, r := range l.mmaps {
		printf("mmap(%v, %#x, %#x) = %d\n", r.start, r.length, r.port, syscalls.Mmap(t, r.start, r.length, r.port))
	}
	for _, n := range l.sbrks {
		printf("sbrk(%d) = %#x\n", n, syscalls.Sbrk(t, n))
	}
	for _, r := range l.munmaps {
		printf("munmap(%v, %#x) = %d\n", r.start, r.length, syscalls.Munmap(t, r.start, r.length))
	}

	if err := printAreas(os.Stdout, l.output, t.MemorySet().Areas()); err != nil {
		Fatalf("%v", err)
	}
	if l.output != "table" {
		return subcommands.ExitSuccess
	}
	t.Activate()
	cx := t.TrapContext()
	bottom, top := t.KernelStack()
	printf("\npid: %d\nsatp: %#x\nentry: %#x\nuser sp: %v\nbrk: %v\nmmap pages: %d\nkernel stack: [%v, %v)\n",
		t.PID(), hart.SATP(), cx.SEPC, t.UserSP(), t.ProgramBrk(), t.MemorySet().MMapPages(), bottom, top)

	// Switch back before the task's address space is released.
	if err := k.Space().Exclusive(func(ms *mm.MemorySet) error {
		ms.Activate(hart)
		return nil
	}); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// mmapRequest is one parsed -mmap or -munmap flag.
type mmapRequest struct {
	start  hostarch.Addr
	length uint64
	port   uint64
}

// rangeList implements flag.Value for repeated start:length[:port] flags.
type rangeList []mmapRequest

// String implements flag.Value.String.
func (r *rangeList) String() string {
	var parts []string
	for _, req := range *r {
		parts = append(parts, fmt.Sprintf("%v:%#x:%#x", req.start, req.length, req.port))
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.Set.
func (r *rangeList) Set(s string) error {
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return fmt.Errorf("%q is not start:length[:port]", s)
	}
	var vals [3]uint64
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 0, 64)
		if err != nil {
			return fmt.Errorf("%q: %w", s, err)
		}
		vals[i] = v
	}
	*r = append(*r, mmapRequest{hostarch.Addr(vals[0]), vals[1], vals[2]})
	return nil
}

// intList implements flag.Value for repeated integer flags.
type intList []int64

// String implements flag.Value.String.
func (l *intList) String() string {
	var parts []string
	for _, v := range *l {
		parts = append(parts, strconv.FormatInt(v, 10))
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.Set.
func (l *intList) Set(s string) error {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return err
	}
	*l = append(*l, v)
	return nil
}
