// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package board describes where a transmitter lives and how it is wired:
// its register window, hot-plug source, connector limits and ceiling. A
// Default is overlaid with the board's device tree node.
package board

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/signal"
	"github.com/platinasystems/fdt"
)

// Sub-block offsets within the register window.
type Layout struct {
	Mac, Aux, Phy, Hpd uint32
}

var DefaultLayout = Layout{
	Mac: 0x0000,
	Aux: 0x1000,
	Phy: 0x2000,
	Hpd: 0x3000,
}

const (
	HPDRegister = "reg"
	HPDGPIO     = "gpio"
)

// Device tree properties read by Load.
const (
	PropTopology       = "topology"
	PropMaxLinkRate    = "max-link-rate"
	PropMaxLaneCount   = "max-lane-count"
	PropTPS4           = "tps4"
	PropReg            = "reg"
	PropHPDGPIO        = "hpd-gpio"
	PropLaneFlip       = "lane-flip"
	PropRedriver       = "redriver"
	PropConnectorLimit = "connector-limit"
)

type Config struct {
	Port     string
	Topology dptx.Topology

	Base, Size uint32
	Layout     Layout

	DTB  string
	Node string

	HPD    string
	HPDPin string

	// HPDPoll samples the hot-plug source; Publish updates redis.
	HPDPoll time.Duration
	Publish time.Duration

	Limits   map[string]int
	LaneFlip bool

	// Redriver is the optional i2c retimer between PHY and connector.
	Redriver *signal.Bus

	Target dptx.Bandwidth
}

// Default returns the configuration of a board with no device tree.
func Default(topo dptx.Topology) *Config {
	return &Config{
		Port:     topo.Name + "0",
		Topology: topo,
		Base:     0x9c000000,
		Size:     0x4000,
		Layout:   DefaultLayout,
		DTB:      "/boot/linux.dtb",
		Node:     topo.Name,
		HPD:      HPDRegister,
		HPDPoll:  time.Millisecond,
		Publish:  time.Second,
		Limits:   map[string]int{},
	}
}

// LoadFile overlays the named node of a device tree file on c.
func (c *Config) LoadFile(fn string) error {
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		return fmt.Errorf("%s: %v", fn, err)
	}
	c.DTB = fn
	return c.Load(b)
}

// Load overlays properties of c.Node in dtb. Absent properties keep their
// current value.
func (c *Config) Load(dtb []byte) error {
	t, err := signal.ParseTree(dtb)
	if err != nil {
		return err
	}
	n := signal.FindNode(t, c.Node)
	if n == nil {
		return &dptx.ConfigMissingError{Key: c.Node}
	}
	prop := func(name string) ([]byte, bool) {
		b, found := n.Properties[name]
		return b, found
	}
	if b, found := prop(PropTopology); found {
		name := t.PropString(b)
		topo, found := dptx.TopologyByName[name]
		if !found {
			return fmt.Errorf("%s: %q unknown", PropTopology, name)
		}
		c.Topology = topo
	}
	if b, found := prop(PropMaxLinkRate); found {
		name := t.PropString(b)
		r, found := dptx.RateByName[name]
		if !found {
			return fmt.Errorf("%s: %q unknown", PropMaxLinkRate, name)
		}
		if r < c.Topology.MaxRate {
			c.Topology.MaxRate = r
		}
	}
	if b, found := prop(PropMaxLaneCount); found {
		v, err := cell(t, PropMaxLaneCount, b)
		if err != nil {
			return err
		}
		lanes := dptx.LaneCount(v)
		if !lanes.Valid() {
			return fmt.Errorf("%s: %d lanes", PropMaxLaneCount, v)
		}
		if lanes < c.Topology.MaxLanes {
			c.Topology.MaxLanes = lanes
		}
	}
	if _, found := prop(PropTPS4); found {
		c.Topology.TPS4 = true
	}
	if b, found := prop(PropReg); found {
		v := t.PropUint32Slice(b)
		if len(v) != 2 {
			return fmt.Errorf("%s: %d cells, want 2", PropReg, len(v))
		}
		c.Base, c.Size = v[0], v[1]
	}
	if b, found := prop(PropHPDGPIO); found {
		c.HPD, c.HPDPin = HPDGPIO, t.PropString(b)
	}
	if _, found := prop(PropLaneFlip); found {
		c.LaneFlip = true
	}
	if b, found := prop(PropRedriver); found {
		v := t.PropUint32Slice(b)
		if len(v) != 2 {
			return fmt.Errorf("%s: %d cells, want 2", PropRedriver,
				len(v))
		}
		c.Redriver = &signal.Bus{Index: int(v[0]), Addr: int(v[1])}
	}
	if b, found := prop(PropConnectorLimit); found {
		v, err := cell(t, PropConnectorLimit, b)
		if err != nil {
			return err
		}
		c.Limits[c.Topology.Name] = int(v)
	}
	if c.HPD == HPDGPIO {
		Pins(t)
	}
	return nil
}

func cell(t *fdt.Tree, name string, b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%s: %d bytes, want 4", name, len(b))
	}
	return t.PropUint32(b), nil
}
