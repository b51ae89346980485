// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dptxd

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/board"
	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/dptx/dpcd"
	"github.com/platinasystems/dptx/internal/fakesink"
	"github.com/platinasystems/dptx/mac"
	"github.com/platinasystems/dptx/signal"
	"github.com/platinasystems/redis/rpc/args"
	"github.com/platinasystems/redis/rpc/reply"
)

type recorder struct{ lines []string }

func (r *recorder) Print(a ...interface{}) (int, error) {
	s := fmt.Sprint(a...)
	r.lines = append(r.lines, s)
	return len(s), nil
}

func (r *recorder) has(line string) bool {
	for _, s := range r.lines {
		if s == line {
			return true
		}
	}
	return false
}

func table() *signal.Table {
	tab := signal.NewTable()
	for sw := uint8(0); sw < 4; sw++ {
		for pe := uint8(0); pe < 4; pe++ {
			s := dptx.Signal{Swing: sw, PreEmphasis: pe}
			if !s.Valid() {
				continue
			}
			for _, tier := range []signal.Tier{signal.TierLow,
				signal.TierHigh} {
				tab.Levels[signal.Key{Tier: tier, Swing: sw,
					PreEmphasis: pe}] = [signal.LevelFields]uint32{1,
					uint32(sw), uint32(pe), 0}
			}
			tab.Drv[s] = [signal.DrvFields]uint32{1, uint32(sw),
				uint32(pe)}
		}
	}
	return tab
}

func newInfo(t *testing.T, caps dpcd.Caps) (*Info, *fakesink.Sink, *recorder) {
	t.Helper()
	cfg := board.Default(dptx.FullSize)
	sink := fakesink.New(cfg.Layout.Aux, caps, fakesink.Behavior{})
	port, _, err := assemble(cfg, sink, table())
	if err != nil {
		t.Fatal(err)
	}
	port.Trainer.CRSettle = time.Microsecond
	rec := &recorder{}
	i := &Info{
		Retry:   &backoff.Backoff{Min: time.Microsecond, Max: time.Microsecond},
		Retries: 2,
	}
	i.init(context.Background(), port, rec)
	return i, sink, rec
}

func hset(i *Info, field, value string) error {
	var r reply.Hset
	err := i.Hset(args.Hset{Field: field, Value: []byte(value)}, &r)
	if err == nil && r != 1 {
		return fmt.Errorf("reply %d", r)
	}
	return err
}

func TestHsetTarget(t *testing.T) {
	i, _, _ := newInfo(t, fakesink.Caps(dptx.HBR2, 4, true, false))
	for _, x := range [][2]string{
		{"dptx0.target.pixel-clock", "297000"},
		{"dptx0.target.bpc", "10"},
		{"dptx0.target.color", "ycbcr422"},
	} {
		if err := hset(i, x[0], x[1]); err != nil {
			t.Fatal(x[0], ": ", err)
		}
	}
	want := dptx.Bandwidth{PixelClock: 297000, BPC: 10,
		Color: dptx.YCbCr422}
	if i.request.Target != want {
		t.Errorf("target %+v", i.request.Target)
	}
	for _, x := range [][2]string{
		{"dptx0.target.color", "cmyk"},
		{"dptx0.target.bpc", "many"},
		{"dptx0.speed", "fast"},
		{"edp0.enable", "true"},
		{"dptx0.config", "hbr2"},
		{"dptx0.config", "hbr2 3"},
		{"dptx0.enable", "maybe"},
	} {
		if err := hset(i, x[0], x[1]); err == nil {
			t.Errorf("%s %s accepted", x[0], x[1])
		}
	}
}

func TestHsetEnable(t *testing.T) {
	i, _, _ := newInfo(t, fakesink.Caps(dptx.HBR2, 4, true, false))
	if err := (handler{i}).HandleLongPulse(i.ctx, true); err != nil {
		t.Fatal(err)
	}
	if st := i.port.Status(); !st.Active || st.Config.Lanes != 4 {
		t.Fatalf("status %+v", st)
	}
	if err := hset(i, "dptx0.enable", "false"); err != nil {
		t.Fatal(err)
	}
	if i.port.Status().Active {
		t.Error("still active")
	}
	if err := hset(i, "dptx0.retrain", ""); err != nil {
		t.Fatal(err)
	}
	if i.port.Status().Active {
		t.Error("retrained while disabled")
	}
	if err := hset(i, "dptx0.config", "HBR 1"); err != nil {
		t.Fatal(err)
	}
	if err := hset(i, "dptx0.enable", "true"); err != nil {
		t.Fatal(err)
	}
	st := i.port.Status()
	if !st.Active || st.Config.Rate != dptx.HBR || st.Config.Lanes != 1 {
		t.Errorf("status %+v", st)
	}
}

func TestUpdate(t *testing.T) {
	i, _, rec := newInfo(t, fakesink.Caps(dptx.HBR2, 2, true, false))
	i.update()
	if !rec.has("dptx0.state: disconnected") {
		t.Errorf("published %q", rec.lines)
	}
	rec.lines = nil
	i.update()
	if len(rec.lines) != 0 {
		t.Errorf("republished %q", rec.lines)
	}
	if err := (handler{i}).HandleLongPulse(i.ctx, true); err != nil {
		t.Fatal(err)
	}
	i.update()
	for _, s := range []string{
		"dptx0.state: trained",
		"dptx0.active: true",
		"dptx0.rate: HBR2",
		"dptx0.lanes: 2",
		"dptx0.lane1.signal: sw0/pe0",
	} {
		if !rec.has(s) {
			t.Errorf("missing %q in %q", s, rec.lines)
		}
	}
	for _, s := range rec.lines {
		if strings.HasPrefix(s, "dptx0.lane2") {
			t.Errorf("inactive lane published: %q", s)
		}
	}
}

func TestBringUpRetries(t *testing.T) {
	i, sink, _ := newInfo(t, dpcd.Caps{})
	sink.Clear()
	err := (handler{i}).HandleLongPulse(i.ctx, true)
	if err != dptx.ErrNoCapability {
		t.Fatalf("got %v, want %v", err, dptx.ErrNoCapability)
	}
	n := 0
	for _, req := range sink.Requests {
		if req.Command == dpaux.NativeRead && req.Address == dpcd.Rev {
			n++
		}
	}
	// one read on connect then one per attempt
	if want := 1 + i.Retries + 1; n != want {
		t.Errorf("%d capability reads, want %d", n, want)
	}
}

func TestAux(t *testing.T) {
	i, _, _ := newInfo(t, fakesink.Caps(dptx.HBR2, 4, true, false))
	var r dpaux.Reply
	req := dpaux.Request{Command: dpaux.NativeRead, Address: dpcd.Rev, Size: 1}
	if err := i.Aux(req, &r); err != dptx.ErrNotConnected {
		t.Errorf("disconnected: %v", err)
	}
	i.port.HandleLongPulse(i.ctx, true)
	if err := i.Aux(req, &r); err != nil {
		t.Fatal(err)
	}
	if len(r.Data) != 1 || r.Data[0] != 0x14 {
		t.Errorf("reply %+v", r)
	}
}

func TestAssembleMissingPin(t *testing.T) {
	cfg := board.Default(dptx.Embedded)
	cfg.HPD, cfg.HPDPin = board.HPDGPIO, "no_such_pin"
	sink := fakesink.New(cfg.Layout.Aux, dpcd.Caps{}, fakesink.Behavior{})
	_, _, err := assemble(cfg, sink, table())
	if _, ok := err.(*dptx.ConfigMissingError); !ok {
		t.Errorf("got %v, want config missing", err)
	}
}

func TestAssembleLaneFlip(t *testing.T) {
	tab := table()
	tab.Lanes, tab.Flipped = []int{0, 1, 2, 3}, []int{3, 2, 1, 0}
	for _, x := range []struct {
		flip bool
		want uint32
	}{
		{false, 0x3},
		{true, 0xc},
	} {
		cfg := board.Default(dptx.FullSize)
		cfg.LaneFlip = x.flip
		sink := fakesink.New(cfg.Layout.Aux, dpcd.Caps{},
			fakesink.Behavior{})
		port, _, err := assemble(cfg, sink, tab)
		if err != nil {
			t.Fatal(err)
		}
		port.MAC.EnableLanes(dptx.LaneCount(2).Mask())
		got := sink.Read(cfg.Layout.Mac + mac.LaneEnable)
		if got != x.want {
			t.Errorf("flip %v: lane enable %#x, want %#x", x.flip,
				got, x.want)
		}
	}
}
