// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package signal

import (
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/reg"
)

// The panel PHY has one analog level shared by its lanes.
const PhySharedLevel = 0x0a0

var embeddedFields = [LevelFields]field{{0, 1}, {1, 6}, {7, 6}, {13, 6}}

// Embedded drives the two lane panel transmitter. MAC driver strength is
// per lane; the analog level follows lane 0 and is keyed per rate.
type Embedded struct {
	Mac, Phy reg.Surface
	Table    *Table
}

func (Embedded) Tier(rate dptx.Rate) Tier {
	switch rate {
	case dptx.RBR:
		return TierRBR
	case dptx.HBR:
		return TierHBR
	}
	return TierHBR2
}

func (c *Embedded) Program(rate dptx.Rate, lanes dptx.LaneMask,
	s [dptx.MaxLanes]dptx.Signal) error {
	if err := check(lanes, &s); err != nil {
		return err
	}
	if lanes == 0 {
		return nil
	}
	var drv [dptx.MaxLanes][DrvFields]uint32
	var err error
	lanes.Foreach(func(lane int) {
		if err == nil {
			drv[lane], err = c.Table.drv(s[lane])
		}
	})
	if err != nil {
		return err
	}
	first := 0
	for !lanes.Has(first) {
		first++
	}
	level, err := c.Table.level(Key{c.Tier(rate), s[first].Swing,
		s[first].PreEmphasis})
	if err != nil {
		return err
	}
	lanes.Foreach(func(lane int) {
		programDrv(c.Mac, lane, drv[lane])
	})
	value, mask := pack(&embeddedFields, level)
	reg.Modify(c.Phy, PhySharedLevel, value, mask)
	trace("edp", first, s[first], level[:])
	return nil
}
