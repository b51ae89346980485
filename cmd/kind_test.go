// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package cmd

import (
	"testing"

	"github.com/platinasystems/dptx/lang"
)

type plain struct{}

func (plain) Apropos() lang.Alt    { return lang.Alt{lang.EnUS: "plain"} }
func (plain) Main(...string) error { return nil }
func (plain) String() string       { return "plain" }
func (plain) Usage() string        { return "plain" }

type daemon struct{ plain }

func (daemon) Kind() Kind { return Daemon }

func TestWhatKind(t *testing.T) {
	for _, x := range []struct {
		v    Cmd
		want string
	}{
		{plain{}, "interactive"},
		{daemon{}, "daemon"},
	} {
		k := WhatKind(x.v)
		if k.String() != x.want {
			t.Errorf("%s is %v, want %s", x.v, k, x.want)
		}
		if k.IsDaemon() != (x.want == "daemon") {
			t.Errorf("%s: IsDaemon %v", x.v, k.IsDaemon())
		}
	}
	if s := Kind(7).String(); s != "unknown" {
		t.Errorf("kind 7 is %s", s)
	}
}
