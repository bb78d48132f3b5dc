// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Command rvpipe replays a decoded (pc, insn) trace against a configured
// validator, the way the host emulator spec.md §6 describes would drive one
// instruction at a time. It is a reference harness, not the validator
// itself: everything it does is reachable through the exported validator,
// policy, tagbus, and taginfo packages.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/probechain/rv-pipe/internal/xlog"
)

var app = cli.NewApp()

func init() {
	app.Name = "rvpipe"
	app.Usage = "replay a (pc, insn) trace against a tag-based reference monitor"
	app.Version = "0.1.0"
	app.Action = run
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to the validator config YAML",
		},
		cli.StringFlag{
			Name:  "trace",
			Usage: "path to the (pc, insn[, mem_addr]) trace file",
		},
		cli.BoolFlag{
			Name:  "firmware",
			Usage: "treat the configured tags file as the firmware (index-based) shape, not the simulation shape",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "debug, info, warn, or error",
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error surfaced from run to the exit codes spec.md §6
// names: 0 success (never reaches here), 1 configuration error, 2 tag-load
// error. Anything else (a CLI usage error, a trace parse failure) also
// exits 1, since those are effectively misconfiguration of this run.
func exitCodeFor(err error) int {
	if _, ok := err.(*tagLoadError); ok {
		return 2
	}
	return 1
}

func run(ctx *cli.Context) error {
	xlog.SetLevel(ctx.String("log-level"))

	configPath := ctx.String("config")
	tracePath := ctx.String("trace")
	if configPath == "" || tracePath == "" {
		return cli.NewExitError("both -config and -trace are required", 1)
	}

	v, err := buildValidator(configPath, ctx.Bool("firmware"))
	if err != nil {
		return err
	}

	return replay(v, tracePath)
}

// tagLoadError marks a tag failure (exit 2): the tags file failing to load,
// or a Validate/Commit error, such as an address the tag bus does not map,
// while the trace replays. Every other failure this command reports exits 1.
type tagLoadError struct{ err error }

func (e *tagLoadError) Error() string { return e.err.Error() }
func (e *tagLoadError) Unwrap() error { return e.err }
