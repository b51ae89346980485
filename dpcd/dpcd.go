// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dpcd describes the sink's capability and status register block
// as seen through native AUX transactions.
package dpcd

import (
	"time"

	"github.com/platinasystems/dptx"
)

// Receiver capability field.
const (
	Rev                   = 0x000
	MaxLinkRate           = 0x001
	MaxLaneCount          = 0x002
	MaxDownspread         = 0x003
	DownstreamPortPresent = 0x005
	TrainingAuxRdInterval = 0x00e

	CapsSize = 16
)

// MaxLaneCount bits.
const (
	MaxLaneCountMask = 0x1f
	TPS3Supported    = 1 << 6
	EnhancedFrameCap = 1 << 7
)

// MaxDownspread bits.
const TPS4Supported = 1 << 7

// DownstreamPortPresent bits.
const (
	DwnStrmPortPresent   = 1 << 0
	DwnStrmPortTypeMask  = 3 << 1
	DwnStrmPortTypeShift = 1
)

// TrainingAuxRdInterval bits.
const (
	AuxRdIntervalMask       = 0x7f
	ExtendedReceiverCapPres = 1 << 7
)

// Link configuration field.
const (
	LinkBwSet                  = 0x100
	LaneCountSet               = 0x101
	TrainingPatternSet         = 0x102
	TrainingLane0Set           = 0x103
	MainLinkChannelCodingSet   = 0x108
	ChannelCoding8b10b         = 0x01
	LaneCountEnhancedFrameEn   = 1 << 7
	TrainingPatternMask        = 0x0f
	TrainingPatternDisable     = 0x00
	TrainingPattern1           = 0x01
	TrainingPattern2           = 0x02
	TrainingPattern3           = 0x03
	TrainingPattern4           = 0x07
	LinkScramblingDisable      = 1 << 5
	TrainVoltageSwingShift     = 0
	TrainMaxSwingReached       = 1 << 2
	TrainPreEmphasisShift      = 3
	TrainMaxPreEmphasisReached = 1 << 5
)

// Link/sink status field.
const (
	SinkCount              = 0x200
	DeviceServiceIrqVector = 0x201
	Lane0_1Status          = 0x202
	Lane2_3Status          = 0x203
	LaneAlignStatusUpdated = 0x204
	SinkStatus             = 0x205
	AdjustRequestLane0_1   = 0x206
	AdjustRequestLane2_3   = 0x207

	LinkStatusSize = 6
)

// DeviceServiceIrqVector bits.
const (
	AutomatedTestRequest = 1 << 1
	CPIrq                = 1 << 2
	MCCSIrq              = 1 << 3
	SinkSpecificIrq      = 1 << 6
)

// SinkCount bits.
const (
	SinkCountMask = 0x3f | 1<<7
	SinkCPReady   = 1 << 6
)

// Per lane status nibble.
const (
	LaneCRDone         = 1 << 0
	LaneChannelEQDone  = 1 << 1
	LaneSymbolLocked   = 1 << 2
	InterlaneAlignDone = 1 << 0
)

// Automated test field.
const (
	TestRequest      = 0x218
	TestLinkRate     = 0x219
	TestLaneCount    = 0x220
	TestResponse     = 0x260
	TestLinkTraining = 1 << 0
	TestAck          = 1 << 0
	TestNak          = 1 << 1
)

// Sink power field.
const (
	SetPower   = 0x600
	SetPowerD0 = 0x1
	SetPowerD3 = 0x2
)

// Caps is the receiver capability block read from address 0.
type Caps [CapsSize]byte

// IsZero reports a capability block of all zeros, as returned by an absent
// or unpowered sink.
func (c *Caps) IsZero() bool {
	for _, b := range c {
		if b != 0 {
			return false
		}
	}
	return true
}

func (c *Caps) Rev() (major, minor uint8) { return c[Rev] >> 4, c[Rev] & 0xf }

// MaxRate returns the highest advertised rate. Unknown codes round down to
// the nearest known tier.
func (c *Caps) MaxRate() (dptx.Rate, bool) {
	code := c[MaxLinkRate]
	var best dptx.Rate
	for _, r := range dptx.Rates {
		if r.Code() <= code {
			best = r
		}
	}
	return best, best != 0
}

// MaxLanes returns the advertised lane count rounded down to 1, 2 or 4.
func (c *Caps) MaxLanes() dptx.LaneCount {
	n := c[MaxLaneCount] & MaxLaneCountMask
	switch {
	case n >= 4:
		return 4
	case n >= 2:
		return 2
	case n == 1:
		return 1
	}
	return 0
}

func (c *Caps) EnhancedFraming() bool { return c[MaxLaneCount]&EnhancedFrameCap != 0 }
func (c *Caps) TPS3() bool            { return c[MaxLaneCount]&TPS3Supported != 0 }
func (c *Caps) TPS4() bool            { return c[MaxDownspread]&TPS4Supported != 0 }

// DownstreamPort returns the branch descriptor: whether a downstream port
// is present and its type field.
func (c *Caps) DownstreamPort() (present bool, kind uint8) {
	b := c[DownstreamPortPresent]
	return b&DwnStrmPortPresent != 0,
		(b & DwnStrmPortTypeMask) >> DwnStrmPortTypeShift
}

const (
	MinEQInterval = 400 * time.Microsecond
	auxRdUnit     = 4 * time.Millisecond
)

// EQInterval is the wait between channel equalization status reads.
func (c *Caps) EQInterval() time.Duration {
	d := time.Duration(c[TrainingAuxRdInterval]&AuxRdIntervalMask) * auxRdUnit
	if d < MinEQInterval {
		d = MinEQInterval
	}
	return d
}

// LinkStatus is the six byte block from LANE0_1_STATUS through
// ADJUST_REQUEST_LANE2_3.
type LinkStatus [LinkStatusSize]byte

func (s *LinkStatus) lane(lane int) uint8 {
	return s[lane/2] >> (4 * uint(lane&1)) & 0xf
}

// CRDone reports clock recovery on every lane of mask.
func (s *LinkStatus) CRDone(mask dptx.LaneMask) bool {
	ok := true
	mask.Foreach(func(lane int) {
		ok = ok && s.lane(lane)&LaneCRDone != 0
	})
	return ok
}

// EQDone reports channel equalization and symbol lock on every lane of
// mask.
func (s *LinkStatus) EQDone(mask dptx.LaneMask) bool {
	const want = LaneChannelEQDone | LaneSymbolLocked
	ok := true
	mask.Foreach(func(lane int) {
		ok = ok && s.lane(lane)&want == want
	})
	return ok
}

func (s *LinkStatus) Aligned() bool {
	return s[LaneAlignStatusUpdated-Lane0_1Status]&InterlaneAlignDone != 0
}

// AdjustRequest returns the drive level the sink asks for on lane.
func (s *LinkStatus) AdjustRequest(lane int) dptx.Signal {
	b := s[AdjustRequestLane0_1-Lane0_1Status+lane/2] >> (4 * uint(lane&1))
	return dptx.Signal{
		Swing:       b & 3,
		PreEmphasis: (b >> 2) & 3,
	}
}

// LaneSet encodes a TRAINING_LANEx_SET byte.
func LaneSet(s dptx.Signal) byte {
	b := s.Swing<<TrainVoltageSwingShift | s.PreEmphasis<<TrainPreEmphasisShift
	if s.MaxSwingReached() {
		b |= TrainMaxSwingReached
	}
	if s.MaxPreEmphasisReached() {
		b |= TrainMaxPreEmphasisReached
	}
	return b
}

// PatternSet encodes a TRAINING_PATTERN_SET byte. Scrambling is disabled
// for every pattern but TPS4 and normal video.
func PatternSet(p dptx.Pattern) byte {
	switch p {
	case dptx.TPS1:
		return TrainingPattern1 | LinkScramblingDisable
	case dptx.TPS2:
		return TrainingPattern2 | LinkScramblingDisable
	case dptx.TPS3:
		return TrainingPattern3 | LinkScramblingDisable
	case dptx.TPS4:
		return TrainingPattern4
	}
	return TrainingPatternDisable
}

// Accessor reads and writes the sink's register block.
type Accessor interface {
	ReadDPCD(addr uint32, b []byte) error
	WriteDPCD(addr uint32, b []byte) error
}

// Readb reads one register.
func Readb(a Accessor, addr uint32) (byte, error) {
	var b [1]byte
	err := a.ReadDPCD(addr, b[:])
	return b[0], err
}

// Writeb writes one register.
func Writeb(a Accessor, addr uint32, v byte) error {
	return a.WriteDPCD(addr, []byte{v})
}

// ReadCaps fetches the receiver capability block.
func ReadCaps(a Accessor) (c Caps, err error) {
	err = a.ReadDPCD(Rev, c[:])
	return
}

// ReadLinkStatus fetches the lane status and adjust request block.
func ReadLinkStatus(a Accessor) (s LinkStatus, err error) {
	err = a.ReadDPCD(Lane0_1Status, s[:])
	return
}
