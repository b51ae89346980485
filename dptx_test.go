// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dptx

import (
	"errors"
	"fmt"
	"testing"
)

func TestRate(t *testing.T) {
	for _, x := range []struct {
		r    Rate
		code uint8
	}{
		{RBR, 0x06}, {HBR, 0x0a}, {HBR2, 0x14}, {HBR3, 0x1e},
	} {
		if c := x.r.Code(); c != x.code {
			t.Errorf("%v: code %#x", x.r, c)
		}
		if r, ok := RateOfCode(x.code); !ok || r != x.r {
			t.Errorf("%#x: %v", x.code, r)
		}
	}
	if r, ok := HBR3.Lower(); !ok || r != HBR2 {
		t.Errorf("below HBR3: %v", r)
	}
	if _, ok := RBR.Lower(); ok {
		t.Error("below RBR")
	}
	if Rate(300000).Valid() {
		t.Error("300 MHz valid")
	}
}

func TestCapacity(t *testing.T) {
	ut := func(cfg LinkConfig, want uint64) {
		t.Helper()
		if c := cfg.Capacity(); c != want {
			t.Errorf("%v: %d, want %d", cfg, c, want)
		}
	}
	ut(LinkConfig{Rate: RBR, Lanes: 1}, 1296000)
	ut(LinkConfig{Rate: HBR2, Lanes: 2}, 8640000)
	ut(LinkConfig{Rate: HBR3, Lanes: 4}, 25920000)
}

func TestRequired(t *testing.T) {
	ut := func(b Bandwidth, want uint64) {
		t.Helper()
		if r := b.Required(); r != want {
			t.Errorf("%+v: %d, want %d", b, r, want)
		}
	}
	ut(Bandwidth{PixelClock: 148500}, 3564000)
	ut(Bandwidth{PixelClock: 148500, BPC: 10}, 4455000)
	ut(Bandwidth{PixelClock: 148500, BPC: 8, Color: YCbCr422}, 2376000)
	ut(Bandwidth{PixelClock: 148500, BPC: 8, Color: YCbCr420}, 1782000)
	if (Bandwidth{}).Known() {
		t.Error("zero bandwidth known")
	}
}

func TestSignal(t *testing.T) {
	for _, x := range []struct {
		in, want Signal
	}{
		{Signal{Swing: 4, PreEmphasis: 1}, Signal{Swing: 3}},
		{Signal{Swing: 2, PreEmphasis: 3}, Signal{Swing: 2, PreEmphasis: 1}},
		{Signal{Swing: 1, PreEmphasis: 2}, Signal{Swing: 1, PreEmphasis: 2}},
	} {
		got := x.in.Clamp()
		if got != x.want || !got.Valid() {
			t.Errorf("%v: %v, want %v", x.in, got, x.want)
		}
	}
	if (Signal{Swing: 2, PreEmphasis: 2}).Valid() {
		t.Error("sw2/pe2 valid")
	}
}

func TestLaneMask(t *testing.T) {
	m := LaneCount(2).Mask()
	if m != 3 || m.Count() != 2 || m.String() != "[0,1]" {
		t.Errorf("mask %v", m)
	}
}

func TestErrors(t *testing.T) {
	err := fmt.Errorf("enable: %w", &TrainingError{Phase: ChannelEqualization,
		Iterations: 6})
	if phase, ok := TrainingPhase(err); !ok || phase != ChannelEqualization {
		t.Errorf("phase %v", phase)
	}
	if IsFatal(err) {
		t.Error("training failure fatal")
	}
	if !IsFatal(&SignalError{Lane: 1}) ||
		!IsFatal(&ConfigMissingError{Key: "drv-table"}) {
		t.Error("fatal errors not fatal")
	}
	te := &TrainingError{Phase: ClockRecovery, Iterations: 1,
		Err: ErrTimeout}
	if !errors.Is(te, ErrTimeout) {
		t.Error("cause lost")
	}
}
