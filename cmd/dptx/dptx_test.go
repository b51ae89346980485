// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dptx

import (
	"bytes"
	"testing"

	"github.com/platinasystems/dptx/dpaux"
)

func TestParseAux(t *testing.T) {
	ut := func(want dpaux.Request, args ...string) {
		t.Helper()
		req, err := ParseAux(args...)
		if err != nil {
			t.Fatal(args, ": ", err)
		}
		if req.Command != want.Command || req.Address != want.Address ||
			req.Size != want.Size || !bytes.Equal(req.Data, want.Data) {
			t.Errorf("%q: %v, want %v", args, req, want)
		}
	}
	ut(dpaux.Request{Command: dpaux.NativeRead, Size: 16},
		"-addr", "0", "-len", "16")
	ut(dpaux.Request{Command: dpaux.NativeWrite, Address: 0x600,
		Data: []byte{1}}, "-addr", "0x600", "1")
	ut(dpaux.Request{Command: dpaux.I2CRead | dpaux.MOT, Address: 0x50,
		Size: 1}, "-i2c", "-mot", "-addr", "0x50", "-len", "1")
	ut(dpaux.Request{Command: dpaux.I2CWrite, Address: 0x50,
		Data: []byte{0, 0x80}}, "-i2c", "-addr", "0x50", "0", "0x80")

	for _, args := range [][]string{
		{"-len", "1"},
		{"-addr", "0x100000", "-len", "1"},
		{"-addr", "0"},
		{"-addr", "0", "256"},
		{"-addr", "0", "-len", "1", "2"},
	} {
		if _, err := ParseAux(args...); err == nil {
			t.Errorf("%q accepted", args)
		}
	}
}

func TestUnknownSubcommand(t *testing.T) {
	if err := (Command{}).Main("frobnicate"); err == nil {
		t.Error("unknown subcommand accepted")
	}
}
