// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import (
	"bytes"
	"strings"
	"testing"

	"github.com/platinasystems/dptx/cmd"
	"github.com/platinasystems/dptx/lang"
)

type echo struct{ got []string }

func (*echo) String() string { return "echo" }
func (*echo) Usage() string  { return "echo [ARG]..." }
func (*echo) Apropos() lang.Alt {
	return lang.Alt{lang.EnUS: "print arguments"}
}
func (e *echo) Main(args ...string) error {
	e.got = args
	return nil
}

func newGoes() (*Goes, *echo, *bytes.Buffer) {
	e := new(echo)
	buf := new(bytes.Buffer)
	return &Goes{
		NAME:   "goes-test",
		ByName: map[string]cmd.Cmd{"echo": e},
		Output: buf,
	}, e, buf
}

func TestDispatch(t *testing.T) {
	g, e, _ := newGoes()
	if err := g.Main("goes-test", "echo", "a", "b"); err != nil {
		t.Fatal(err)
	}
	if strings.Join(e.got, " ") != "a b" {
		t.Errorf("got %q", e.got)
	}
	if err := g.Main("/usr/bin/echo", "c"); err != nil {
		t.Fatal(err)
	}
	if strings.Join(e.got, " ") != "c" {
		t.Errorf("linked name got %q", e.got)
	}
	if err := g.Main("goes-test", "cat"); err == nil {
		t.Error("unknown command ran")
	}
}

func TestHelpers(t *testing.T) {
	g, e, buf := newGoes()
	ut := func(want string, args ...string) {
		t.Helper()
		buf.Reset()
		if err := g.Main(args...); err != nil {
			t.Fatal(err)
		}
		if s := buf.String(); s != want {
			t.Errorf("%q: %q, want %q", args, s, want)
		}
	}
	ut("usage:\techo [ARG]...\n", "goes-test", "echo", "-h")
	ut("usage:\techo [ARG]...\n", "goes-test", "usage", "echo")
	ut("echo            print arguments\n", "goes-test", "apropos")
	ut("echo            print arguments\n", "goes-test", "echo", "--apropos")
	if e.got != nil {
		t.Errorf("helper ran the command with %q", e.got)
	}
}
