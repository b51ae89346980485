// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package signal

import (
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/reg"
)

// MAC driver strength registers; each lane has a bit in the upper half of
// RIV0 and a nibble in the lower halves of RIV0 and RIV1.
const (
	MacRiv0 = 0x180
	MacRiv1 = 0x184

	riv0Fixed = 0x00300000
	riv1Fixed = 0x1f000000
	riv1Top   = 0xff000000
)

func programDrv(mac reg.Surface, lane int, dv [DrvFields]uint32) {
	l := uint(lane)
	reg.Modify(mac, MacRiv0,
		dv[0]<<(16+l)|dv[1]<<(4*l)|riv0Fixed,
		1<<(16+l)|0xf<<(4*l)|riv0Fixed)
	reg.Modify(mac, MacRiv1,
		dv[2]<<(4*l)|riv1Fixed,
		0xf<<(4*l)|riv1Top)
}

// field is a bit range within a register.
type field struct{ shift, width uint }

func (f field) mask() uint32 { return (1<<f.width - 1) << f.shift }

func pack(fields *[LevelFields]field, v [LevelFields]uint32) (value, mask uint32) {
	for i, f := range fields {
		value |= v[i] << f.shift & f.mask()
		mask |= f.mask()
	}
	return
}

// Analog lane level registers of the four lane PHY, one per physical
// lane: LDO enable, LDO reference, main de-emphasis, post cursor amplitude.
const (
	PhyLane0Level = 0x280
	PhyLaneStride = 0x100
)

var fullSizeFields = [LevelFields]field{{0, 1}, {1, 4}, {5, 5}, {10, 6}}

// FullSize drives the four lane transmitter: per lane MAC driver strength
// followed by per lane analog level, from the RBR/HBR or HBR2/HBR3 tier.
type FullSize struct {
	Mac, Phy reg.Surface
	Table    *Table
	// Flipped selects the reversed lane map of a flipped connector.
	Flipped bool
}

func (FullSize) Tier(rate dptx.Rate) Tier {
	if rate.HighTier() {
		return TierHigh
	}
	return TierLow
}

type laneLevels struct {
	lane, phys int
	drv        [DrvFields]uint32
	level      [LevelFields]uint32
}

func (c *FullSize) resolve(rate dptx.Rate, lanes dptx.LaneMask,
	s *[dptx.MaxLanes]dptx.Signal) (v []laneLevels, err error) {
	tier := c.Tier(rate)
	lanes.Foreach(func(lane int) {
		if err != nil {
			return
		}
		x := laneLevels{lane: lane}
		if x.phys, err = c.Table.Physical(lane, c.Flipped); err != nil {
			return
		}
		if x.drv, err = c.Table.drv(s[lane]); err != nil {
			return
		}
		x.level, err = c.Table.level(Key{tier, s[lane].Swing,
			s[lane].PreEmphasis})
		v = append(v, x)
	})
	return
}

func (c *FullSize) Program(rate dptx.Rate, lanes dptx.LaneMask,
	s [dptx.MaxLanes]dptx.Signal) error {
	if err := check(lanes, &s); err != nil {
		return err
	}
	v, err := c.resolve(rate, lanes, &s)
	if err != nil {
		return err
	}
	for _, x := range v {
		programDrv(c.Mac, x.phys, x.drv)
	}
	for _, x := range v {
		value, mask := pack(&fullSizeFields, x.level)
		reg.Modify(c.Phy, PhyLane0Level+uint32(x.phys)*PhyLaneStride,
			value, mask)
		trace("dptx", x.lane, s[x.lane], x.level[:])
	}
	return nil
}
