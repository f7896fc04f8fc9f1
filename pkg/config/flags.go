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
	"fmt"
	"reflect"
)

// RegisterFlags registers flags used to populate Config. Flag defaults are
// the values of Default.
func RegisterFlags(flagSet *flag.FlagSet) {
	d := Default()

	flagSet.String("config", "", "path to a TOML file providing the configuration. Flags that are set explicitly override it.")

	// Machine.
	flagSet.Uint64("ram-base", d.RAMBase, "physical address of the start of RAM.")
	flagSet.Uint64("memory-end", d.MemoryEnd, "physical address one past the end of RAM.")

	// Kernel image layout.
	flagSet.Uint64("stext", d.TextStart, "start of the kernel .text section.")
	flagSet.Uint64("etext", d.TextEnd, "end of the kernel .text section.")
	flagSet.Uint64("srodata", d.RODataStart, "start of the kernel .rodata section.")
	flagSet.Uint64("erodata", d.RODataEnd, "end of the kernel .rodata section.")
	flagSet.Uint64("sdata", d.DataStart, "start of the kernel .data section.")
	flagSet.Uint64("edata", d.DataEnd, "end of the kernel .data section.")
	flagSet.Uint64("sbss", d.BSSStart, "start of the kernel .bss section, including the boot stack.")
	flagSet.Uint64("ebss", d.BSSEnd, "end of the kernel .bss section.")
	flagSet.Uint64("ekernel", d.KernelEnd, "end of the kernel image. Memory above it is used for frames.")
	flagSet.Uint64("strampoline", d.Trampoline, "physical page holding the trap entry and exit code.")
	flagSet.Uint64("trap-handler", d.TrapHandler, "kernel address of the user trap handler.")

	// Logging.
	flagSet.Bool("debug", d.Debug, "enable debug logging.")
	flagSet.String("log", d.LogFilename, "file path where log messages are written, default is stderr.")
	flagSet.String("log-format", d.LogFormat, "log format: text (default) or json.")
}

// NewFromFlags creates a new Config from the file named by --config, if any,
// overridden by every flag that was set explicitly.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := Default()
	if fl := flagSet.Lookup("config"); fl != nil && fl.Value.String() != "" {
		var err error
		if conf, err = decodeFile(fl.Value.String()); err != nil {
			return nil, err
		}
	}

	fields := make(map[string]int)
	st := reflect.TypeOf(conf).Elem()
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok {
			fields[name] = i
		}
	}
	obj := reflect.ValueOf(conf).Elem()
	flagSet.Visit(func(fl *flag.Flag) {
		i, ok := fields[fl.Name]
		if !ok {
			// Not a configuration flag.
			return
		}
		getter, ok := fl.Value.(flag.Getter)
		if !ok {
			panic(fmt.Sprintf("flag %q has no value getter", fl.Name))
		}
		obj.Field(i).Set(reflect.ValueOf(getter.Get()))
	})

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
