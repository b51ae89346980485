// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package cmd defines what the goes dispatcher needs of a command.
package cmd

import "github.com/platinasystems/dptx/lang"

// Cmd is a named command. Commands may also implement io.Closer, to stop
// a daemon, and Kind() Kind.
type Cmd interface {
	Apropos() lang.Alt
	Main(...string) error
	String() string
	Usage() string
}
