// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dptx provides the types shared by the DisplayPort transmitter
// link core: link configuration, per-lane training signals, the port
// topology descriptor and the connection lifecycle.
//
// The sub-packages build on these:
//
//	reg		register surface and backends
//	dpaux		AUX channel transaction engine
//	dpcd		sink capability/status block layout
//	signal		swing/pre-emphasis calibration and programming
//	mac		local link layer control
//	train		clock recovery and channel equalization
//	negotiate	rate/lane selection, compliance override, connector limits
//	fallback	post-training health check and degradation
//	link		port container and entry points
//	hpd		hot-plug event channel
package dptx

import (
	"fmt"
	"strings"
)

// Rate is a main link symbol clock in kHz.
type Rate uint32

const (
	RBR  Rate = 162000
	HBR  Rate = 270000
	HBR2 Rate = 540000
	HBR3 Rate = 810000
)

// Rates lists the supported rate tiers, slowest first.
var Rates = []Rate{RBR, HBR, HBR2, HBR3}

// RateOfCode returns the rate for a LINK_BW_SET/MAX_LINK_RATE code.
func RateOfCode(code uint8) (Rate, bool) {
	for _, r := range Rates {
		if r.Code() == code {
			return r, true
		}
	}
	return 0, false
}

// RateByName maps the names accepted on command lines and in device trees.
var RateByName = map[string]Rate{
	"rbr":  RBR,
	"1.62": RBR,
	"hbr":  HBR,
	"2.7":  HBR,
	"hbr2": HBR2,
	"5.4":  HBR2,
	"hbr3": HBR3,
	"8.1":  HBR3,
}

// Code is the DPCD link bandwidth code, the rate in units of 0.27 Gbps.
func (r Rate) Code() uint8 { return uint8(r / 27000) }

// Lower returns the next slower tier, false at RBR.
func (r Rate) Lower() (Rate, bool) {
	for i := len(Rates) - 1; i > 0; i-- {
		if Rates[i] == r {
			return Rates[i-1], true
		}
	}
	return r, false
}

func (r Rate) Valid() bool {
	_, ok := RateOfCode(r.Code())
	return ok && r%27000 == 0
}

// HighTier reports whether the rate uses the HBR2/HBR3 calibration tier.
func (r Rate) HighTier() bool { return r >= HBR2 }

func (r Rate) String() string {
	switch r {
	case RBR:
		return "RBR"
	case HBR:
		return "HBR"
	case HBR2:
		return "HBR2"
	case HBR3:
		return "HBR3"
	}
	return fmt.Sprint(uint32(r), "kHz")
}

// LaneCount is the number of active main link lanes.
type LaneCount uint8

func (n LaneCount) Valid() bool { return n == 1 || n == 2 || n == 4 }

// Mask returns the mask of logical lanes 0 through n-1.
func (n LaneCount) Mask() LaneMask { return LaneMask(1)<<n - 1 }

// LaneMask has bit N set for each enabled logical lane N.
type LaneMask uint8

const MaxLanes = 4

func (m LaneMask) Has(lane int) bool { return m&(1<<uint(lane)) != 0 }

func (m LaneMask) Foreach(f func(lane int)) {
	for lane := 0; lane < MaxLanes; lane++ {
		if m.Has(lane) {
			f(lane)
		}
	}
}

func (m LaneMask) Count() (n int) {
	m.Foreach(func(int) { n++ })
	return
}

func (m LaneMask) String() string {
	var lanes []string
	m.Foreach(func(lane int) { lanes = append(lanes, fmt.Sprint(lane)) })
	return "[" + strings.Join(lanes, ",") + "]"
}

// Color is the pixel encoding carried by the main link.
type Color uint8

const (
	RGB Color = iota
	YCbCr444
	YCbCr422
	YCbCr420
)

// halfComponents returns twice the components per pixel so that 4:2:0 stays
// integral.
func (c Color) halfComponents() uint64 {
	switch c {
	case YCbCr422:
		return 4
	case YCbCr420:
		return 3
	}
	return 6
}

func (c Color) String() string {
	switch c {
	case RGB:
		return "rgb"
	case YCbCr444:
		return "ycbcr444"
	case YCbCr422:
		return "ycbcr422"
	case YCbCr420:
		return "ycbcr420"
	}
	return "unknown"
}

// LinkConfig is the negotiated main link configuration.
type LinkConfig struct {
	Rate  Rate
	Lanes LaneCount
	BPC   uint8
	Color Color
}

// Capacity is the payload bandwidth in kbps after 8b/10b line coding.
func (c LinkConfig) Capacity() uint64 {
	return uint64(c.Rate) * 10 * uint64(c.Lanes) * 8 / 10
}

func (c LinkConfig) String() string {
	return fmt.Sprintf("%v x%d", c.Rate, c.Lanes)
}

// Bandwidth describes a video stream's demand on the link.
type Bandwidth struct {
	PixelClock uint32 // kHz, zero if unknown
	BPC        uint8
	Color      Color
}

// Required returns the stream bandwidth in kbps.
func (b Bandwidth) Required() uint64 {
	bpc := uint64(b.BPC)
	if bpc == 0 {
		bpc = 8
	}
	return uint64(b.PixelClock) * bpc * b.Color.halfComponents() / 2
}

func (b Bandwidth) Known() bool { return b.PixelClock > 0 }

// Signal is one lane's transmit drive level.
type Signal struct {
	Swing       uint8
	PreEmphasis uint8
}

const (
	MaxSwing       = 3
	MaxPreEmphasis = 3
)

// Valid reports whether the combination may be written to hardware.
func (s Signal) Valid() bool {
	return s.Swing <= MaxSwing && s.PreEmphasis <= MaxPreEmphasis &&
		s.Swing+s.PreEmphasis <= 3
}

// Clamp limits swing to its maximum then trims pre-emphasis so that the
// sum does not exceed 3.
func (s Signal) Clamp() Signal {
	if s.Swing > MaxSwing {
		s.Swing = MaxSwing
	}
	if s.PreEmphasis > 3-s.Swing {
		s.PreEmphasis = 3 - s.Swing
	}
	return s
}

func (s Signal) MaxSwingReached() bool       { return s.Swing == MaxSwing }
func (s Signal) MaxPreEmphasisReached() bool { return s.PreEmphasis == MaxPreEmphasis }

func (s Signal) String() string {
	return fmt.Sprintf("sw%d/pe%d", s.Swing, s.PreEmphasis)
}

// Pattern is a link training pattern sequence.
type Pattern uint8

const (
	PatternNone Pattern = iota
	TPS1
	TPS2
	TPS3
	TPS4
)

func (p Pattern) String() string {
	if p == PatternNone {
		return "none"
	}
	return fmt.Sprint("TPS", uint8(p))
}

// Phase names a link training phase.
type Phase uint8

const (
	ClockRecovery Phase = 1 + iota
	ChannelEqualization
)

func (p Phase) String() string {
	switch p {
	case ClockRecovery:
		return "clock recovery"
	case ChannelEqualization:
		return "channel equalization"
	}
	return "idle"
}

// State is a port's connection lifecycle.
type State uint8

const (
	Disconnected State = iota
	CapabilityUnknown
	Trained
	Degraded
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case CapabilityUnknown:
		return "capability-unknown"
	case Trained:
		return "trained"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Topology describes a transmitter variant's ceiling.
type Topology struct {
	Name     string
	MaxRate  Rate
	MaxLanes LaneCount
	TPS4     bool
}

var (
	// FullSize is the four lane transmitter.
	FullSize = Topology{
		Name:     "dptx",
		MaxRate:  HBR3,
		MaxLanes: 4,
		TPS4:     true,
	}
	// Embedded is the two lane panel transmitter.
	Embedded = Topology{
		Name:     "edp",
		MaxRate:  HBR2,
		MaxLanes: 2,
	}
)

// TopologyByName maps board names to presets.
var TopologyByName = map[string]Topology{
	FullSize.Name: FullSize,
	Embedded.Name: Embedded,
}
