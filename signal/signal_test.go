// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package signal

import (
	"fmt"
	"testing"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/internal/fdttest"
	"github.com/platinasystems/dptx/reg"
	"github.com/platinasystems/i2c"
)

// testTable fills every valid cell with a value identifying its key.
func testTable(tiers ...Tier) *Table {
	tab := NewTable()
	eachValid(func(s dptx.Signal, i int) {
		for t, tier := range tiers {
			v := uint32(t<<4 | i)
			tab.Levels[Key{tier, s.Swing, s.PreEmphasis}] =
				[LevelFields]uint32{1, v & 0xf, v & 0x1f, v}
		}
		tab.Drv[s] = [DrvFields]uint32{1, uint32(s.Swing), uint32(s.PreEmphasis)}
	})
	return tab
}

func levels(sw, pe uint8) (s [dptx.MaxLanes]dptx.Signal) {
	for i := range s {
		s[i] = dptx.Signal{Swing: sw, PreEmphasis: pe}
	}
	return
}

func touched(spy *reg.Spy) map[uint32]bool {
	m := make(map[uint32]bool)
	for _, w := range spy.Writes {
		m[w.Addr] = true
	}
	return m
}

func TestFullSizeEnabledLanesOnly(t *testing.T) {
	var mac, phy reg.Spy
	c := &FullSize{Mac: &mac, Phy: &phy, Table: testTable(TierLow, TierHigh)}
	if err := c.Program(dptx.HBR2, dptx.LaneCount(2).Mask(),
		levels(1, 1)); err != nil {
		t.Fatal(err)
	}
	w := touched(&phy)
	for lane := 0; lane < dptx.MaxLanes; lane++ {
		addr := uint32(PhyLane0Level + lane*PhyLaneStride)
		if want := lane < 2; w[addr] != want {
			t.Errorf("lane %d programmed %v, want %v", lane, w[addr],
				want)
		}
	}
	if v := mac.Read(MacRiv0); v&(1<<18|1<<19) != 0 {
		t.Errorf("riv0 %#x has disabled lane bits", v)
	}
	if v := mac.Read(MacRiv0); v&(1<<16|1<<17) != 1<<16|1<<17 {
		t.Errorf("riv0 %#x missing enabled lane bits", v)
	}
}

func TestFullSizeTier(t *testing.T) {
	var mac, phy reg.Spy
	tab := testTable(TierLow, TierHigh)
	c := &FullSize{Mac: &mac, Phy: &phy, Table: tab}
	for _, x := range []struct {
		rate dptx.Rate
		tier Tier
	}{
		{dptx.RBR, TierLow},
		{dptx.HBR, TierLow},
		{dptx.HBR2, TierHigh},
		{dptx.HBR3, TierHigh},
	} {
		if err := c.Program(x.rate, 1, levels(2, 1)); err != nil {
			t.Fatal(err)
		}
		want, _ := pack(&fullSizeFields, tab.Levels[Key{x.tier, 2, 1}])
		if v := phy.Read(PhyLane0Level); v != want {
			t.Errorf("%v: level %#x, want %#x", x.rate, v, want)
		}
	}
}

func TestInvalidSignalRejected(t *testing.T) {
	var mac, phy reg.Spy
	for _, c := range []Controller{
		&FullSize{Mac: &mac, Phy: &phy, Table: testTable(TierLow, TierHigh)},
		&Embedded{Mac: &mac, Phy: &phy, Table: testTable(TierRBR, TierHBR, TierHBR2)},
	} {
		s := levels(0, 0)
		s[1] = dptx.Signal{Swing: 2, PreEmphasis: 2}
		err := c.Program(dptx.HBR, 3, s)
		se, ok := err.(*dptx.SignalError)
		if !ok || se.Lane != 1 {
			t.Errorf("%T: got %v", c, err)
		}
	}
	if n := mac.NWrites() + phy.NWrites(); n != 0 {
		t.Errorf("%d writes before rejection", n)
	}
}

func TestMissingEntry(t *testing.T) {
	var mac, phy reg.Spy
	tab := testTable(TierLow)
	c := &FullSize{Mac: &mac, Phy: &phy, Table: tab}
	err := c.Program(dptx.HBR3, 1, levels(0, 0))
	if _, ok := err.(*dptx.ConfigMissingError); !ok {
		t.Fatalf("got %v, want ConfigMissingError", err)
	}
	delete(tab.Drv, dptx.Signal{Swing: 1})
	err = c.Program(dptx.RBR, 3, levels(1, 0))
	if _, ok := err.(*dptx.ConfigMissingError); !ok {
		t.Fatalf("got %v, want ConfigMissingError", err)
	}
	if n := mac.NWrites() + phy.NWrites(); n != 0 {
		t.Errorf("%d writes with a missing entry", n)
	}
}

func TestFlippedLanes(t *testing.T) {
	var mac, phy reg.Spy
	tab := testTable(TierLow, TierHigh)
	tab.Lanes = []int{0, 1, 2, 3}
	tab.Flipped = []int{3, 2, 1, 0}
	c := &FullSize{Mac: &mac, Phy: &phy, Table: tab, Flipped: true}
	if err := c.Program(dptx.HBR, 1, levels(0, 0)); err != nil {
		t.Fatal(err)
	}
	w := touched(&phy)
	if !w[PhyLane0Level+3*PhyLaneStride] || w[PhyLane0Level] {
		t.Errorf("flipped lane 0 wrote %v", phy.Writes)
	}
}

func TestEmbeddedShared(t *testing.T) {
	var mac, phy reg.Spy
	tab := testTable(TierRBR, TierHBR, TierHBR2)
	c := &Embedded{Mac: &mac, Phy: &phy, Table: tab}
	s := levels(0, 0)
	s[0] = dptx.Signal{Swing: 3}
	if err := c.Program(dptx.HBR2, 3, s); err != nil {
		t.Fatal(err)
	}
	want, _ := pack(&embeddedFields, tab.Levels[Key{TierHBR2, 3, 0}])
	if v := phy.Read(PhySharedLevel); v != want {
		t.Errorf("shared level %#x, want %#x", v, want)
	}
	if n := len(touched(&phy)); n != 1 {
		t.Errorf("%d phy registers written, want 1", n)
	}
}

type fakeBus struct {
	writes map[uint8]uint8
	err    error
}

func (b *fakeBus) Do(rw i2c.RW, cmd uint8, size i2c.SMBusSize,
	data *i2c.SMBusData) error {
	if b.err != nil {
		return b.err
	}
	if rw == i2c.Write && size == i2c.ByteData {
		b.writes[cmd] = data[0]
	}
	return nil
}

func TestRedriver(t *testing.T) {
	var mac, phy reg.Spy
	tab := testTable(TierLow, TierHigh)
	bus := &fakeBus{writes: make(map[uint8]uint8)}
	next := &FullSize{Mac: &mac, Phy: &phy, Table: tab}
	c := &Redriver{Bus: bus, Table: tab, Next: next}
	if err := c.Program(dptx.HBR3, 3, levels(0, 2)); err != nil {
		t.Fatal(err)
	}
	want := uint8(tab.Levels[Key{TierHigh, 0, 2}][0])
	for lane := uint8(0); lane < 4; lane++ {
		v, found := bus.writes[RedriverLane0+lane]
		if lane < 2 && (!found || v != want) {
			t.Errorf("lane %d: %#x, want %#x", lane, v, want)
		}
		if lane >= 2 && found {
			t.Errorf("disabled lane %d written", lane)
		}
	}
	if phy.NWrites() == 0 {
		t.Error("next controller not programmed")
	}
	bus.err = fmt.Errorf("nak")
	if err := c.Program(dptx.HBR, 1, levels(0, 0)); err == nil {
		t.Error("bus error ignored")
	}
}

func TestRedriverNextMissing(t *testing.T) {
	var mac, phy reg.Spy
	bus := &fakeBus{writes: make(map[uint8]uint8)}
	next := &FullSize{Mac: &mac, Phy: &phy, Table: testTable(TierLow)}
	c := &Redriver{Bus: bus, Table: testTable(TierLow, TierHigh),
		Next: next}
	err := c.Program(dptx.HBR3, 3, levels(1, 1))
	if _, ok := err.(*dptx.ConfigMissingError); !ok {
		t.Fatalf("got %v, want config missing", err)
	}
	if len(bus.writes) != 0 {
		t.Errorf("redriver written: %v", bus.writes)
	}
	if n := mac.NWrites() + phy.NWrites(); n != 0 {
		t.Errorf("%d register writes", n)
	}
}

func TestLoadTable(t *testing.T) {
	var low, drv []uint32
	for i := 0; i < 16; i++ {
		low = append(low, 1, uint32(i), uint32(i+1), uint32(i+2))
		drv = append(drv, uint32(i), 2, 3)
	}
	blob := fdttest.Blob(&fdttest.Node{
		Children: []*fdttest.Node{{
			Name: "dptx@9c000000",
			Props: map[string][]byte{
				"hbr-rbr-sw-emp-table": fdttest.Cells(low...),
				DrvProp:                fdttest.Cells(drv...),
				NormalLanes:            fdttest.Cells(0, 1, 2, 3),
				FlipLanes:              fdttest.Cells(2, 3, 0, 1),
			},
		}},
	})
	tab, err := LoadTable(blob, "dptx@9c000000")
	if err != nil {
		t.Fatal(err)
	}
	// cell [1][2] is the 7th entry
	if v := tab.Levels[Key{TierLow, 1, 2}]; v != [LevelFields]uint32{1, 6, 7, 8} {
		t.Errorf("[1][2] = %v", v)
	}
	if _, found := tab.Levels[Key{TierLow, 2, 2}]; found {
		t.Error("loaded invalid cell [2][2]")
	}
	if _, found := tab.Levels[Key{TierHigh, 0, 0}]; found {
		t.Error("absent tier loaded")
	}
	if v := tab.Drv[dptx.Signal{Swing: 3}]; v[0] != 12 {
		t.Errorf("drv[3][0] = %v", v)
	}
	if p, _ := tab.Physical(0, true); p != 2 {
		t.Errorf("flipped lane 0 -> %d", p)
	}
	if _, err = LoadTable(blob, "edp"); err == nil {
		t.Error("missing node loaded")
	}
	if _, err = LoadTable([]byte("not a tree"), "dptx"); err == nil {
		t.Error("garbage parsed")
	}
}
