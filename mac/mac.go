// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mac controls the transmitter's link layer: rate and lane
// configuration, the training pattern generator, scrambling, lane enables
// and the video arbiter.
package mac

import (
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/reg"
)

// Link layer registers.
const (
	LinkRate   = 0x000
	LaneCount  = 0x004
	Pattern    = 0x008
	Scramble   = 0x00c
	LaneEnable = 0x010
	Arbiter    = 0x014
	Power      = 0x018
)

// LaneCount bits.
const (
	LaneCountMask   = 0x7
	EnhancedFraming = 1 << 4
)

// Pattern field values.
const (
	PatternMask  = 0x7
	PatternVideo = 0x0
)

// Scramble bits.
const ScrambleEn = 1 << 0

// Arbiter bits.
const (
	ArbiterEn  = 1 << 0
	VactiveMd  = 1 << 1
	DvSyncInte = 1 << 2
)

// Power bits.
const (
	PowerPll   = 1 << 0
	PowerLanes = 0xf << 4
	PowerAux   = 1 << 8
)

// MAC is the link layer of one port.
type MAC struct {
	Regs reg.Surface
	// Lanes maps logical lanes to physical lanes; nil is the identity.
	Lanes []int
}

func New(regs reg.Surface) *MAC { return &MAC{Regs: regs} }

// SetLinkConfig programs rate and lane count.
func (m *MAC) SetLinkConfig(cfg dptx.LinkConfig, enhanced bool) {
	m.Regs.Write(LinkRate, uint32(cfg.Rate.Code()))
	v := uint32(cfg.Lanes) & LaneCountMask
	if enhanced {
		v |= EnhancedFraming
	}
	reg.Modify(m.Regs, LaneCount, v, LaneCountMask|EnhancedFraming)
	m.EnableLanes(cfg.Lanes.Mask())
}

// EnableLanes powers and enables the physical lanes backing the logical
// lane mask.
func (m *MAC) EnableLanes(lanes dptx.LaneMask) {
	var phys uint32
	lanes.Foreach(func(lane int) {
		p := lane
		if lane < len(m.Lanes) {
			p = m.Lanes[lane]
		}
		phys |= 1 << uint(p)
	})
	m.Regs.Write(LaneEnable, phys)
	reg.Modify(m.Regs, Power, phys<<4|PowerPll|PowerAux,
		PowerLanes|PowerPll|PowerAux)
}

func (m *MAC) SetPattern(p dptx.Pattern) {
	reg.Modify(m.Regs, Pattern, uint32(p), PatternMask)
}

func (m *MAC) SetScramble(enable bool) {
	if enable {
		reg.Set(m.Regs, Scramble, ScrambleEn)
	} else {
		reg.Clear(m.Regs, Scramble, ScrambleEn)
	}
}

// StartVideo switches the lanes from training patterns to scrambled video.
func (m *MAC) StartVideo() {
	m.SetScramble(true)
	m.SetPattern(dptx.PatternNone)
	reg.Set(m.Regs, Arbiter, ArbiterEn|VactiveMd|DvSyncInte)
}

func (m *MAC) StopVideo() {
	reg.Clear(m.Regs, Arbiter, ArbiterEn|VactiveMd|DvSyncInte)
}

// PowerDown disables every lane and the PLL; the AUX channel stays
// powered for hot plug and EDID access.
func (m *MAC) PowerDown() {
	m.StopVideo()
	m.SetPattern(dptx.PatternNone)
	m.Regs.Write(LaneEnable, 0)
	reg.Modify(m.Regs, Power, PowerAux, PowerLanes|PowerPll|PowerAux)
}

// Active reports whether video is enabled.
func (m *MAC) Active() bool { return m.Regs.Read(Arbiter)&ArbiterEn != 0 }
