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

// Binary rvkernel boots the kernel address space on a simulated machine and
// loads executables into it.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/rvkernel/rvkernel/cmd/rvkernel/cmd"
	"github.com/rvkernel/rvkernel/pkg/config"
	"github.com/rvkernel/rvkernel/pkg/log"
)

// logFileOpts expands %COMMAND% and %TIMESTAMP% in the --log path.
type logFileOpts struct {
	command string
	start   time.Time
}

// Build implements log.FileOpts.Build.
func (o logFileOpts) Build(pattern string) string {
	return strings.NewReplacer(
		"%COMMAND%", o.command,
		"%TIMESTAMP%", o.start.Format("20060102-150405.000000"),
	).Replace(pattern)
}

func newEmitter(format string, w io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: w}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: w}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Boot), "")
	subcommands.Register(new(cmd.Load), "")
	subcommands.Register(new(cmd.KStack), "")

	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	var out io.Writer = os.Stderr
	if conf.LogFilename != "" {
		opts := logFileOpts{command: flag.CommandLine.Arg(0), start: time.Now()}
		f, err := log.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, opts)
		if err != nil {
			cmd.Fatalf("%v", err)
		}
		out = f
	}
	log.SetTarget(newEmitter(conf.LogFormat, out))
	log.SetLevel(conf.LogLevel())

	log.Infof("rvkernel %s/%s, %s, PID %d", runtime.GOOS, runtime.GOARCH, runtime.Version(), os.Getpid())
	log.Infof("Args: %v", os.Args)
	log.Debugf("Config: %+v", *conf)

	status := subcommands.Execute(context.Background(), conf)
	if status != subcommands.ExitSuccess {
		log.Warningf("Failure to execute command, status: %v", status)
	}
	os.Exit(int(status))
}
