// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package signal

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/fdt"
)

// Tier names a calibration table; device tree properties are named
// TIER-sw-emp-table.
type Tier string

const (
	TierLow  Tier = "hbr-rbr"
	TierHigh Tier = "hbr2-hbr3"
	TierRBR  Tier = "rbr"
	TierHBR  Tier = "hbr"
	TierHBR2 Tier = "hbr2"
)

var Tiers = []Tier{TierLow, TierHigh, TierRBR, TierHBR, TierHBR2}

// Key selects one calibration entry.
type Key struct {
	Tier        Tier
	Swing       uint8
	PreEmphasis uint8
}

func (k Key) String() string {
	return fmt.Sprintf("%s-sw-emp-table[%d][%d]", k.Tier, k.Swing,
		k.PreEmphasis)
}

const (
	LevelFields = 4
	DrvFields   = 3

	DrvProp     = "drv-table"
	NormalLanes = "normal-lane-table"
	FlipLanes   = "flipped-lane-table"
)

// Table holds the board's analog calibration. Levels are keyed by rate
// tier; driver values are rate independent.
type Table struct {
	Levels map[Key][LevelFields]uint32
	Drv    map[dptx.Signal][DrvFields]uint32
	// Lanes maps logical to physical lane for the normal and flipped
	// connector orientation.
	Lanes, Flipped []int
}

func NewTable() *Table {
	return &Table{
		Levels: make(map[Key][LevelFields]uint32),
		Drv:    make(map[dptx.Signal][DrvFields]uint32),
	}
}

func (t *Table) level(k Key) ([LevelFields]uint32, error) {
	v, found := t.Levels[k]
	if !found {
		return v, &dptx.ConfigMissingError{Key: k.String()}
	}
	return v, nil
}

func (t *Table) drv(s dptx.Signal) ([DrvFields]uint32, error) {
	v, found := t.Drv[s]
	if !found {
		return v, &dptx.ConfigMissingError{
			Key: fmt.Sprintf("%s[%d][%d]", DrvProp, s.Swing,
				s.PreEmphasis),
		}
	}
	return v, nil
}

// Physical returns the physical lane of a logical one.
func (t *Table) Physical(lane int, flipped bool) (int, error) {
	m, name := t.Lanes, NormalLanes
	if flipped {
		m, name = t.Flipped, FlipLanes
	}
	if m == nil {
		return lane, nil
	}
	if lane >= len(m) {
		return 0, &dptx.ConfigMissingError{
			Key: fmt.Sprintf("%s[%d]", name, lane),
		}
	}
	return m[lane], nil
}

const fdtMagic = 0xd00dfeed

// ParseTree parses a flattened device tree blob.
func ParseTree(b []byte) (*fdt.Tree, error) {
	if len(b) < 40 || binary.BigEndian.Uint32(b) != fdtMagic {
		return nil, errors.New("not a flattened device tree")
	}
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err := t.Parse(b); err != nil {
		return nil, err
	}
	if t.RootNode == nil {
		return nil, errors.New("device tree has no root")
	}
	return t, nil
}

// FindNode returns the first node named name.
func FindNode(t *fdt.Tree, name string) (n *fdt.Node) {
	t.MatchNode(name, func(m *fdt.Node) {
		if n == nil {
			n = m
		}
	})
	return
}

// LoadTable reads calibration properties from the named device tree node.
// Absent properties leave their entries missing; a property of the wrong
// size is an error.
func LoadTable(dtb []byte, node string) (*Table, error) {
	t, err := ParseTree(dtb)
	if err != nil {
		return nil, err
	}
	n := FindNode(t, node)
	if n == nil {
		return nil, &dptx.ConfigMissingError{Key: node}
	}
	tab := NewTable()
	for _, tier := range Tiers {
		prop := string(tier) + "-sw-emp-table"
		b, found := n.Properties[prop]
		if !found {
			continue
		}
		v := t.PropUint32Slice(b)
		if len(v) != 4*4*LevelFields {
			return nil, fmt.Errorf("%s: %d cells, want %d", prop,
				len(v), 4*4*LevelFields)
		}
		eachValid(func(s dptx.Signal, i int) {
			var lv [LevelFields]uint32
			copy(lv[:], v[i*LevelFields:])
			tab.Levels[Key{tier, s.Swing, s.PreEmphasis}] = lv
		})
	}
	if b, found := n.Properties[DrvProp]; found {
		v := t.PropUint32Slice(b)
		if len(v) != 4*4*DrvFields {
			return nil, fmt.Errorf("%s: %d cells, want %d", DrvProp,
				len(v), 4*4*DrvFields)
		}
		eachValid(func(s dptx.Signal, i int) {
			var dv [DrvFields]uint32
			copy(dv[:], v[i*DrvFields:])
			tab.Drv[s] = dv
		})
	}
	for _, x := range []struct {
		prop string
		m    *[]int
	}{
		{NormalLanes, &tab.Lanes},
		{FlipLanes, &tab.Flipped},
	} {
		b, found := n.Properties[x.prop]
		if !found {
			continue
		}
		for _, p := range t.PropUint32Slice(b) {
			if p >= dptx.MaxLanes {
				return nil, fmt.Errorf("%s: lane %d", x.prop, p)
			}
			*x.m = append(*x.m, int(p))
		}
	}
	return tab, nil
}

// eachValid visits the swing/pre-emphasis cells in table order, skipping
// combinations that may never be programmed.
func eachValid(f func(s dptx.Signal, i int)) {
	for sw := uint8(0); sw < 4; sw++ {
		for pe := uint8(0); pe < 4; pe++ {
			s := dptx.Signal{Swing: sw, PreEmphasis: pe}
			if s.Valid() {
				f(s, int(sw)*4+int(pe))
			}
		}
	}
}
