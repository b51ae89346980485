// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package signal

import (
	"fmt"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/i2c"
)

// SMBus is the subset of an i2c bus the redriver needs.
type SMBus interface {
	Do(rw i2c.RW, cmd uint8, size i2c.SMBusSize, data *i2c.SMBusData) error
}

// Redriver lane registers hold the equalizer code in the low byte of the
// first calibration field.
const RedriverLane0 = 0x10

// Redriver programs an external linear redriver placed between the
// transmitter and the connector, one register per lane. Next, if set,
// is programmed before the redriver so that its table misses leave the
// redriver untouched.
type Redriver struct {
	Bus   SMBus
	Table *Table
	Next  Controller
}

func (c *Redriver) Program(rate dptx.Rate, lanes dptx.LaneMask,
	s [dptx.MaxLanes]dptx.Signal) error {
	if err := check(lanes, &s); err != nil {
		return err
	}
	tier := TierLow
	if rate.HighTier() {
		tier = TierHigh
	}
	var codes [dptx.MaxLanes]uint8
	var err error
	lanes.Foreach(func(lane int) {
		if err != nil {
			return
		}
		var lv [LevelFields]uint32
		lv, err = c.Table.level(Key{tier, s[lane].Swing,
			s[lane].PreEmphasis})
		codes[lane] = uint8(lv[0])
	})
	if err != nil {
		return err
	}
	if c.Next != nil {
		if err = c.Next.Program(rate, lanes, s); err != nil {
			return err
		}
	}
	lanes.Foreach(func(lane int) {
		if err != nil {
			return
		}
		var data i2c.SMBusData
		data[0] = codes[lane]
		if err = c.Bus.Do(i2c.Write, RedriverLane0+uint8(lane),
			i2c.ByteData, &data); err != nil {
			err = fmt.Errorf("redriver lane %d: %v", lane, err)
		}
	})
	return err
}

// Bus opens a redriver on an i2c bus.
type Bus struct {
	Index, Addr int
}

// Do opens the bus for each access so that other clients may share it.
func (b Bus) Do(rw i2c.RW, cmd uint8, size i2c.SMBusSize,
	data *i2c.SMBusData) error {
	var bus i2c.Bus
	if err := bus.Open(b.Index); err != nil {
		return err
	}
	defer bus.Close()
	if err := bus.ForceSlaveAddress(b.Addr); err != nil {
		return err
	}
	return bus.Do(rw, cmd, size, data)
}
