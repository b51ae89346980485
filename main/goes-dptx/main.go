// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This is the DisplayPort transmitter machine: the dptxd daemon and its
// command line client in one binary.
package main

import (
	"fmt"
	"os"

	"github.com/platinasystems/dptx/cmd"
	"github.com/platinasystems/dptx/cmd/dptx"
	"github.com/platinasystems/dptx/cmd/dptxd"
	"github.com/platinasystems/dptx/internal/goes"
	"github.com/platinasystems/dptx/lang"
)

func Goes() *goes.Goes {
	return &goes.Goes{
		NAME: "goes-dptx",
		APROPOS: lang.Alt{
			lang.EnUS: "displayport transmitter daemon and client",
		},
		ByName: map[string]cmd.Cmd{
			dptx.Name:  dptx.Command{},
			dptxd.Name: &dptxd.Command{},
		},
	}
}

func main() {
	if err := Goes().Main(os.Args...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
