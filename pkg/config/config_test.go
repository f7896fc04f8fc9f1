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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/mm"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rvkernel.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() failed: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
memory_end = 0x80800000
ekernel = 0x80280000
debug = true
log_format = "json"
`)
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	want := Default()
	want.MemoryEnd = 0x80800000
	want.KernelEnd = 0x80280000
	want.Debug = true
	want.LogFormat = "json"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadFile mismatch (-want +got):\n%s", diff)
	}
	if got.LogLevel() != log.Debug {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel(), log.Debug)
	}
}

func TestLoadFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
		want     string
	}{
		{"unknown key", "swap = true\n", "unknown keys"},
		{"syntax", "memory_end = \n", "reading config"},
		{"invalid", "etext = 0x80100000\n", "etext"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tc.contents))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("LoadFile = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"unaligned section", func(c *Config) { c.DataStart += 0x10 }, "sdata"},
		{"sections out of order", func(c *Config) { c.RODataStart = c.TextStart }, "srodata"},
		{"kernel above memory", func(c *Config) { c.MemoryEnd = c.BSSStart }, "memory_end"},
		{"no free memory", func(c *Config) { c.MemoryEnd = c.KernelEnd }, "no memory"},
		{"trampoline outside text", func(c *Config) { c.Trampoline = c.RODataStart }, "strampoline"},
		{"unaligned trampoline", func(c *Config) { c.Trampoline += 8 }, "strampoline"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestNewFromFlags(t *testing.T) {
	path := writeFile(t, "memory_end = 0x80800000\nlog_format = \"json\"\n")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--config", path, "--log-format=text", "--ekernel=0x80300000", "--debug"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got, err := NewFromFlags(fs)
	if err != nil {
		t.Fatalf("NewFromFlags failed: %v", err)
	}
	want := Default()
	want.MemoryEnd = 0x80800000
	want.KernelEnd = 0x80300000
	want.Debug = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewFromFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFromFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got, err := NewFromFlags(fs)
	if err != nil {
		t.Fatalf("NewFromFlags failed: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("NewFromFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout(t *testing.T) {
	c := Default()
	want := mm.KernelLayout{
		Text:      mm.Section{Start: 0x80200000, End: 0x80220000},
		ROData:    mm.Section{Start: 0x80220000, End: 0x80228000},
		Data:      mm.Section{Start: 0x80228000, End: 0x80230000},
		BSS:       mm.Section{Start: 0x80230000, End: 0x80270000},
		End:       0x80270000,
		MemoryEnd: 0x88000000,
	}
	if diff := cmp.Diff(want, c.Layout()); diff != "" {
		t.Errorf("Layout mismatch (-want +got):\n%s", diff)
	}
	start, end := c.FrameRange()
	if start != hostarch.PPN(0x80270) || end != hostarch.PPN(0x88000) {
		t.Errorf("FrameRange = [%v, %v), want [0x80270, 0x88000)", start, end)
	}
}
