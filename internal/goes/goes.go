// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package goes dispatches a multi-call program to its named commands.
package goes

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/platinasystems/dptx/cmd"
	"github.com/platinasystems/dptx/lang"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
)

type Goes struct {
	NAME    string
	APROPOS lang.Alt
	USAGE   string
	ByName  map[string]cmd.Cmd

	// Output receives helper text; nil is os.Stdout.
	Output io.Writer
}

func (g *Goes) String() string { return g.NAME }

func (g *Goes) Apropos() lang.Alt {
	if g.APROPOS == nil {
		return lang.Alt{lang.EnUS: "displayport transmitter tools"}
	}
	return g.APROPOS
}

func (g *Goes) Usage() string {
	if len(g.USAGE) == 0 {
		return g.NAME + ` COMMAND [ ARGS ]...
	` + g.NAME + ` COMMAND -[-]HELPER
	` + g.NAME + ` HELPER [ COMMAND ]

	HELPER := { apropos | help | usage }`
	}
	return g.USAGE
}

func (g *Goes) Names() []string {
	names := make([]string, 0, len(g.ByName))
	for name := range g.ByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Goes) output() io.Writer {
	if g.Output == nil {
		return os.Stdout
	}
	return g.Output
}

// Main runs the command named by args[0], or by the program's own name if
// it is linked as one of its commands.
func (g *Goes) Main(args ...string) error {
	if len(args) > 0 {
		if _, found := g.ByName[filepath.Base(args[0])]; found {
			args[0] = filepath.Base(args[0])
		} else {
			args = args[1:]
		}
	}
	if len(args) == 0 {
		return g.usage()
	}
	name, args := args[0], args[1:]
	flag, args := flags.New(args,
		[]string{"-h", "-help", "--help"},
		[]string{"-apropos", "--apropos"},
		[]string{"-usage", "--usage"})
	switch {
	case flag.ByName["-h"]:
		args, name = []string{name}, "help"
	case flag.ByName["-apropos"]:
		args, name = []string{name}, "apropos"
	case flag.ByName["-usage"]:
		args, name = []string{name}, "usage"
	}
	switch name {
	case "apropos":
		return g.apropos(args...)
	case "help", "usage":
		return g.usage(args...)
	}
	v, found := g.ByName[name]
	if !found {
		return fmt.Errorf("%s: command not found", name)
	}
	if cmd.WhatKind(v).IsDaemon() {
		if closer, ok := v.(io.Closer); ok {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGTERM)
			defer signal.Stop(sig)
			go func() {
				if _, ok := <-sig; ok {
					if err := closer.Close(); err != nil {
						log.Print("daemon", "err", name, ": ", err)
					}
				}
			}()
		}
	}
	err := v.Main(args...)
	if err == io.EOF {
		err = nil
	}
	if err != nil && !cmd.WhatKind(v).IsDaemon() {
		err = fmt.Errorf("%s: %v", name, err)
	}
	return err
}

func (g *Goes) apropos(args ...string) error {
	w := g.output()
	if len(args) == 0 {
		args = g.Names()
	}
	for _, name := range args {
		v, found := g.ByName[name]
		if !found {
			return fmt.Errorf("%s: not found", name)
		}
		fmt.Fprintf(w, "%-16s%s\n", name, v.Apropos())
	}
	return nil
}

func (g *Goes) usage(args ...string) error {
	u := g.Usage()
	if len(args) > 0 {
		v, found := g.ByName[args[0]]
		if !found {
			return fmt.Errorf("%s: not found", args[0])
		}
		u = v.Usage()
	}
	fmt.Fprint(g.output(), "usage:\t", strings.TrimSpace(u), "\n")
	return nil
}
