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

	"github.com/google/subcommands"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/mm"
)

// KStack implements subcommands.Command for the "kstack" command.
type KStack struct {
	count int
}

// Name implements subcommands.Command.Name.
func (*KStack) Name() string {
	return "kstack"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*KStack) Synopsis() string {
	return "Print the kernel stack positions of the first tasks."
}

// Usage implements subcommands.Command.Usage.
func (*KStack) Usage() string {
	return `kstack [-n count] - prints the kernel stack range of tasks 0 to count-1.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (k *KStack) SetFlags(f *flag.FlagSet) {
	f.IntVar(&k.count, "n", 4, "number of tasks.")
}

// Execute implements subcommands.Command.Execute.
func (k *KStack) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || k.count < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	printf("trampoline: %v\n", hostarch.Trampoline)
	for id := 0; id < k.count; id++ {
		bottom, top := mm.KernelStackPosition(id)
		printf("task %d: [%v, %v)\n", id, bottom, top)
	}
	return subcommands.ExitSuccess
}
