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
	"os"

	"github.com/google/subcommands"
	"github.com/rvkernel/rvkernel/pkg/mm"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	output string
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "Boot the kernel address space and print its layout."
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [options] - builds the kernel address space, verifies its permissions and prints its areas.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.output, "o", "table", "output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k, hart := bootKernel(args)
	defer k.Release()

	var areas []mm.AreaInfo
	if err := k.Space().Exclusive(func(ms *mm.MemorySet) error {
		areas = ms.Areas()
		return nil
	}); err != nil {
		Fatalf("%v", err)
	}
	if err := printAreas(os.Stdout, b.output, areas); err != nil {
		Fatalf("%v", err)
	}
	if b.output == "table" {
		os.Stdout.WriteString("\n")
		printf("satp: %#x\nfree frames: %d\n", hart.SATP(), k.Frames().FreeFrames())
	}
	return subcommands.ExitSuccess
}
