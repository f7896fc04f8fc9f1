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

// Package config holds the machine and kernel image configuration the kernel
// boots with.
//
// A Config starts from Default, may be replaced by a TOML file, and is then
// overridden by any command line flags that were set explicitly.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/rvkernel/rvkernel/pkg/hostarch"
	"github.com/rvkernel/rvkernel/pkg/log"
	"github.com/rvkernel/rvkernel/pkg/mm"
)

// Config holds the boot configuration. Addresses are physical; the kernel
// image runs identity mapped, so they double as kernel virtual addresses.
type Config struct {
	// RAMBase is the lowest physical address of RAM.
	RAMBase uint64 `toml:"ram_base" flag:"ram-base"`

	// MemoryEnd is one past the highest physical address of RAM.
	MemoryEnd uint64 `toml:"memory_end" flag:"memory-end"`

	// Kernel image sections, each [start, end).
	TextStart   uint64 `toml:"stext" flag:"stext"`
	TextEnd     uint64 `toml:"etext" flag:"etext"`
	RODataStart uint64 `toml:"srodata" flag:"srodata"`
	RODataEnd   uint64 `toml:"erodata" flag:"erodata"`
	DataStart   uint64 `toml:"sdata" flag:"sdata"`
	DataEnd     uint64 `toml:"edata" flag:"edata"`
	BSSStart    uint64 `toml:"sbss" flag:"sbss"`
	BSSEnd      uint64 `toml:"ebss" flag:"ebss"`

	// KernelEnd is the end of the kernel image. Frames are allocated from
	// [KernelEnd, MemoryEnd).
	KernelEnd uint64 `toml:"ekernel" flag:"ekernel"`

	// Trampoline is the physical address of the trap entry and exit code. It
	// must be a page inside .text.
	Trampoline uint64 `toml:"strampoline" flag:"strampoline"`

	// TrapHandler is the kernel address traps from user mode are handled at.
	TrapHandler uint64 `toml:"trap_handler" flag:"trap-handler"`

	// Debug enables debug logging.
	Debug bool `toml:"debug" flag:"debug"`

	// LogFilename is where log messages are written. Empty means stderr.
	LogFilename string `toml:"log" flag:"log"`

	// LogFormat is the log format: text or json.
	LogFormat string `toml:"log_format" flag:"log-format"`
}

// Default returns the configuration of the reference machine: 128 MiB of RAM
// at 0x80000000 with the kernel loaded at 0x80200000.
func Default() *Config {
	return &Config{
		RAMBase:     0x80000000,
		MemoryEnd:   0x88000000,
		TextStart:   0x80200000,
		TextEnd:     0x80220000,
		RODataStart: 0x80220000,
		RODataEnd:   0x80228000,
		DataStart:   0x80228000,
		DataEnd:     0x80230000,
		BSSStart:    0x80230000,
		BSSEnd:      0x80270000,
		KernelEnd:   0x80270000,
		Trampoline:  0x8021f000,
		TrapHandler: 0x80200100,
		LogFormat:   "text",
	}
}

// LoadFile reads a TOML configuration. Keys missing from the file keep their
// default values; unknown keys are an error.
func LoadFile(path string) (*Config, error) {
	conf, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

func decodeFile(path string) (*Config, error) {
	conf := Default()
	md, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
	}
	log.Debugf("Loaded config from %s", path)
	return conf, nil
}

// Validate checks that the sections are page aligned and ordered within RAM
// and that the trampoline lies in .text.
func (c *Config) Validate() error {
	bounds := []struct {
		name string
		addr uint64
	}{
		{"ram_base", c.RAMBase},
		{"stext", c.TextStart},
		{"etext", c.TextEnd},
		{"srodata", c.RODataStart},
		{"erodata", c.RODataEnd},
		{"sdata", c.DataStart},
		{"edata", c.DataEnd},
		{"sbss", c.BSSStart},
		{"ebss", c.BSSEnd},
		{"ekernel", c.KernelEnd},
		{"memory_end", c.MemoryEnd},
	}
	for i, b := range bounds {
		if !hostarch.Addr(b.addr).IsPageAligned() {
			return fmt.Errorf("%s %#x is not page aligned", b.name, b.addr)
		}
		if i > 0 && b.addr < bounds[i-1].addr {
			return fmt.Errorf("%s %#x is below %s %#x", b.name, b.addr, bounds[i-1].name, bounds[i-1].addr)
		}
	}
	if c.KernelEnd == c.MemoryEnd {
		return fmt.Errorf("no memory above the kernel image at %#x", c.KernelEnd)
	}
	if !hostarch.Addr(c.Trampoline).IsPageAligned() || c.Trampoline < c.TextStart || c.Trampoline >= c.TextEnd {
		return fmt.Errorf("strampoline %#x is not a page of .text [%#x, %#x)", c.Trampoline, c.TextStart, c.TextEnd)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be text or json", c.LogFormat)
	}
	return nil
}

// Layout returns the kernel image layout.
func (c *Config) Layout() mm.KernelLayout {
	return mm.KernelLayout{
		Text:      mm.Section{Start: hostarch.Addr(c.TextStart), End: hostarch.Addr(c.TextEnd)},
		ROData:    mm.Section{Start: hostarch.Addr(c.RODataStart), End: hostarch.Addr(c.RODataEnd)},
		Data:      mm.Section{Start: hostarch.Addr(c.DataStart), End: hostarch.Addr(c.DataEnd)},
		BSS:       mm.Section{Start: hostarch.Addr(c.BSSStart), End: hostarch.Addr(c.BSSEnd)},
		End:       hostarch.Addr(c.KernelEnd),
		MemoryEnd: hostarch.Addr(c.MemoryEnd),
	}
}

// FrameRange returns the physical pages available for frame allocation.
func (c *Config) FrameRange() (start, end hostarch.PPN) {
	return hostarch.PhysAddr(c.KernelEnd).Ceil(), hostarch.PhysAddr(c.MemoryEnd).Floor()
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() log.Level {
	if c.Debug {
		return log.Debug
	}
	return log.Info
}
