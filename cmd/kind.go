// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package cmd

// Kind tells the dispatcher how a command runs. A daemon runs until
// closed and reports its own errors.
type Kind uint8

const (
	Interactive Kind = iota
	Daemon
)

// WhatKind returns the command's Kind; Interactive unless it has a
// Kind method saying otherwise.
func WhatKind(v Cmd) Kind {
	if k, found := v.(interface{ Kind() Kind }); found {
		return k.Kind()
	}
	return Interactive
}

func (k Kind) IsDaemon() bool { return k == Daemon }

func (k Kind) String() string {
	switch k {
	case Interactive:
		return "interactive"
	case Daemon:
		return "daemon"
	}
	return "unknown"
}
