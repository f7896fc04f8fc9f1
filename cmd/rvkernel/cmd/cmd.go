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

// Package cmd holds implementations of the rvkernel commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rvkernel/rvkernel/pkg/config"
	"github.com/rvkernel/rvkernel/pkg/kernel"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/mm"
	"github.com/rvkernel/rvkernel/pkg/ring0"
)

// Fatalf logs the same message as log.Warningf, prints it to stderr and exits
// with status 128.
func Fatalf(format string, args ...any) {
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}

// bootKernel boots a kernel from the configuration passed to Execute.
func bootKernel(args []any) (*kernel.Kernel, *ring0.EmulatedHart) {
	conf := args[0].(*config.Config)
	hart := ring0.NewEmulatedHart()
	k, err := kernel.Boot(conf, hart)
	if err != nil {
		Fatalf("booting kernel: %v", err)
	}
	return k, hart
}

// areaJSON is the JSON form of an mm.AreaInfo.
type areaJSON struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Type  string `json:"type"`
	Perm  string `json:"perm"`
}

// printAreas writes areas as a table or as JSON.
func printAreas(w io.Writer, format string, areas []mm.AreaInfo) error {
	switch format {
	case "table":
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintf(tw, "START\tEND\tPAGES\tTYPE\tPERM\n")
		for _, a := range areas {
			fmt.Fprintf(tw, "%v\t%v\t%d\t%v\t%v\n", a.Range.StartAddr(), a.Range.EndAddr(), a.Range.Len(), a.Type, a.Permission)
		}
		return tw.Flush()
	case "json":
		out := make([]areaJSON, 0, len(areas))
		for _, a := range areas {
			out = append(out, areaJSON{
				Start: uint64(a.Range.StartAddr()),
				End:   uint64(a.Range.EndAddr()),
				Type:  a.Type.String(),
				Perm:  a.Permission.String(),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// printf writes to stdout.
func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
