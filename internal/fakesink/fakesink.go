// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package fakesink simulates a DisplayPort sink behind the transmitter's
// AUX register block for tests.
package fakesink

import (
	"sync"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/dptx/dpcd"
	"github.com/platinasystems/dptx/reg"
)

// Fault replaces the outcome of the next transaction.
type Fault int

const (
	FaultNone Fault = iota
	FaultTimeout
	FaultRxError
	FaultDefer
	FaultNack
	FaultSilent
)

// Behavior scripts the sink's link training responses.
type Behavior struct {
	// CRAfter and EQAfter are the number of failing status reads before
	// the phase locks; negative never locks.
	CRAfter int
	EQAfter int
	// Adjust returns the drive request for lane on the n'th status read
	// of the current phase. Nil requests the current drive level.
	Adjust func(n, lane int) dptx.Signal
	// Supports, if set, further restricts which configurations lock.
	Supports func(dptx.LinkConfig) (cr, eq bool)
	// Lose drops a phase's lock on the next status read with training
	// patterns off.
	Lose dptx.Phase
}

// Sink is a reg.Surface whose AUX block is answered by a simulated sink.
// Register accesses outside the AUX block fall through to the embedded Spy.
type Sink struct {
	reg.Spy
	Base uint32

	mutex     sync.Mutex
	connected bool
	dpcd      map[uint32]byte
	i2c       map[uint8][]byte
	i2cOffset map[uint8]int
	faults    []Fault
	rx        []byte
	tx        []byte
	behavior  Behavior

	crReads, eqReads int
	crDone, eqDone   bool

	// Requests logs every started transaction.
	Requests []dpaux.Request
	// LaneSets logs each TRAINING_LANEx_SET burst.
	LaneSets [][]byte
	// StatusReads counts link status block reads.
	StatusReads int
}

// New returns a connected sink with the given capabilities and behavior.
func New(base uint32, caps dpcd.Caps, b Behavior) *Sink {
	s := &Sink{
		Base:      base,
		connected: true,
		dpcd:      make(map[uint32]byte),
		i2c:       make(map[uint8][]byte),
		i2cOffset: make(map[uint8]int),
		behavior:  b,
	}
	s.SetCaps(caps)
	s.dpcd[dpcd.SinkCount] = 1
	return s
}

// Caps returns a capability block for rate, lanes and optional patterns.
func Caps(rate dptx.Rate, lanes dptx.LaneCount, tps3, tps4 bool) (c dpcd.Caps) {
	c[dpcd.Rev] = 0x14
	c[dpcd.MaxLinkRate] = rate.Code()
	c[dpcd.MaxLaneCount] = byte(lanes) | dpcd.EnhancedFrameCap
	if tps3 {
		c[dpcd.MaxLaneCount] |= dpcd.TPS3Supported
	}
	if tps4 {
		c[dpcd.MaxDownspread] |= dpcd.TPS4Supported
	}
	return
}

func (s *Sink) SetCaps(c dpcd.Caps) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i, b := range c {
		s.dpcd[uint32(i)] = b
	}
}

func (s *Sink) SetBehavior(b Behavior) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.behavior = b
}

// SetConnected plugs or unplugs the sink; an unplugged sink never replies.
func (s *Sink) SetConnected(v bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connected = v
}

func (s *Sink) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.connected
}

// SetI2C attaches an i2c device image at addr.
func (s *Sink) SetI2C(addr uint8, b []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.i2c[addr] = b
}

// Inject queues faults for the next transactions.
func (s *Sink) Inject(f ...Fault) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.faults = append(s.faults, f...)
}

// DPCD returns the sink's register.
func (s *Sink) DPCD(addr uint32) byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.dpcd[addr]
}

// SetDPCD stores a sink register as if the sink changed it.
func (s *Sink) SetDPCD(addr uint32, v byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.dpcd[addr] = v
}

// Clear forgets transaction and register write logs.
func (s *Sink) Clear() {
	s.mutex.Lock()
	s.Requests = nil
	s.LaneSets = nil
	s.StatusReads = 0
	s.mutex.Unlock()
	s.Spy.Reset()
}

// NRequests returns the number of transactions started.
func (s *Sink) NRequests() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.Requests)
}

func (s *Sink) Read(addr uint32) uint32 {
	switch addr - s.Base {
	case dpaux.RxData:
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if len(s.rx) == 0 {
			return 0
		}
		b := s.rx[0]
		s.rx = s.rx[1:]
		return uint32(b)
	case dpaux.FifoPtr:
		s.mutex.Lock()
		defer s.mutex.Unlock()
		return uint32(len(s.rx)) & dpaux.WrPtrMask
	}
	return s.Spy.Read(addr)
}

func (s *Sink) Write(addr, v uint32) {
	switch addr - s.Base {
	case dpaux.IrqEvent:
		old := s.Spy.Read(addr)
		s.Spy.Write(addr, v)
		s.Spy.Poke(addr, old&^v)
		return
	case dpaux.TxData:
		s.Spy.Write(addr, v)
		s.mutex.Lock()
		s.tx = append(s.tx, byte(v))
		s.mutex.Unlock()
		return
	case dpaux.FifoCtrl:
		s.Spy.Write(addr, v)
		if v&(dpaux.NaFifoRst|dpaux.I2CFifoRst) != 0 {
			s.mutex.Lock()
			s.tx, s.rx = s.tx[:0], s.rx[:0]
			s.mutex.Unlock()
		}
		return
	case dpaux.TxCtrl:
		s.Spy.Write(addr, v)
		// the strobe self-clears
		s.Spy.Poke(addr, v&^dpaux.TxStart)
		if v&dpaux.TxStart != 0 {
			s.start(v)
		}
		return
	}
	s.Spy.Write(addr, v)
}

func (s *Sink) start(ctl uint32) {
	treq := s.Spy.Read(s.Base + dpaux.TxReq)
	cmd := dpaux.Command(treq >> dpaux.TxReqCmdShift & 0xf)
	addr := treq & dpaux.AddressMask
	n := 0
	if ctl&dpaux.TxAddrOnly == 0 {
		n = int(ctl&dpaux.TxLenMask>>dpaux.TxLenShift) + 1
	}

	s.mutex.Lock()
	req := dpaux.Request{Command: cmd, Address: addr}
	if cmd.IsRead() {
		req.Size = n
	} else {
		req.Data = append([]byte(nil), s.tx...)
	}
	s.Requests = append(s.Requests, req)
	fault := FaultNone
	if len(s.faults) > 0 {
		fault, s.faults = s.faults[0], s.faults[1:]
	}
	if !s.connected {
		fault = FaultSilent
	}
	var code dpaux.ReplyCode
	irq := uint32(dpaux.IrqDone)
	switch fault {
	case FaultTimeout:
		irq = dpaux.IrqTimeout
	case FaultRxError:
		irq = dpaux.IrqRxError
	case FaultSilent:
		irq = 0
	case FaultDefer:
		code = dpaux.Defer
		if !cmd.IsNative() {
			code = dpaux.I2CDefer
		}
	case FaultNack:
		irq |= dpaux.IrqNack
		code = dpaux.Nack
		if !cmd.IsNative() {
			code = dpaux.I2CNack
		}
	default:
		if cmd.IsNative() {
			s.native(&req)
		} else {
			code = s.i2cTransfer(&req)
		}
	}
	s.mutex.Unlock()

	s.Spy.Poke(s.Base+dpaux.ReplyCmd, uint32(code))
	s.Spy.Poke(s.Base+dpaux.IrqEvent, s.Spy.Read(s.Base+dpaux.IrqEvent)|irq)
}

func (s *Sink) native(req *dpaux.Request) {
	if req.Command.IsRead() {
		s.rx = s.rx[:0]
		for i := 0; i < req.Size; i++ {
			a := req.Address + uint32(i)
			if a >= dpcd.Lane0_1Status &&
				a < dpcd.Lane0_1Status+dpcd.LinkStatusSize {
				if a == req.Address || a == dpcd.Lane0_1Status {
					s.refreshStatus()
				}
			}
			s.rx = append(s.rx, s.dpcd[a])
		}
		return
	}
	for i, b := range req.Data {
		a := req.Address + uint32(i)
		switch a {
		case dpcd.DeviceServiceIrqVector:
			s.dpcd[a] &^= b
			continue
		case dpcd.TrainingPatternSet:
			switch b & dpcd.TrainingPatternMask {
			case dpcd.TrainingPattern1:
				s.crReads, s.crDone, s.eqDone = 0, false, false
			case dpcd.TrainingPattern2, dpcd.TrainingPattern3,
				dpcd.TrainingPattern4:
				s.eqReads, s.eqDone = 0, false
			}
		}
		s.dpcd[a] = b
	}
	if req.Address == dpcd.TrainingLane0Set {
		s.LaneSets = append(s.LaneSets, append([]byte(nil), req.Data...))
	}
}

func (s *Sink) config() dptx.LinkConfig {
	rate, _ := dptx.RateOfCode(s.dpcd[dpcd.LinkBwSet])
	return dptx.LinkConfig{
		Rate:  rate,
		Lanes: dptx.LaneCount(s.dpcd[dpcd.LaneCountSet] & dpcd.MaxLaneCountMask),
	}
}

func (s *Sink) lanes() dptx.LaneMask { return s.config().Lanes.Mask() }

// refreshStatus recomputes the status block for a new status read.
func (s *Sink) refreshStatus() {
	b := &s.behavior
	s.StatusReads++
	crOK, eqOK := true, true
	if b.Supports != nil {
		crOK, eqOK = b.Supports(s.config())
	}
	n := 0
	switch s.dpcd[dpcd.TrainingPatternSet] & dpcd.TrainingPatternMask {
	case dpcd.TrainingPattern1:
		n = s.crReads
		if crOK && b.CRAfter >= 0 && s.crReads >= b.CRAfter {
			s.crDone = true
		}
		s.crReads++
	case dpcd.TrainingPattern2, dpcd.TrainingPattern3,
		dpcd.TrainingPattern4:
		n = s.eqReads
		if s.crDone && eqOK && b.EQAfter >= 0 && s.eqReads >= b.EQAfter {
			s.eqDone = true
		}
		s.eqReads++
	case dpcd.TrainingPatternDisable:
		switch b.Lose {
		case dptx.ClockRecovery:
			s.crDone, s.eqDone = false, false
		case dptx.ChannelEqualization:
			s.eqDone = false
		}
		b.Lose = 0
	}

	var st dpcd.LinkStatus
	nibble := byte(0)
	if s.crDone {
		nibble |= dpcd.LaneCRDone
	}
	if s.eqDone {
		nibble |= dpcd.LaneChannelEQDone | dpcd.LaneSymbolLocked
	}
	s.lanes().Foreach(func(lane int) {
		st[lane/2] |= nibble << (4 * uint(lane&1))
		req := s.current(lane)
		if b.Adjust != nil {
			req = b.Adjust(n, lane)
		}
		st[4+lane/2] |= (req.Swing&3 | (req.PreEmphasis&3)<<2) <<
			(4 * uint(lane&1))
	})
	if s.eqDone {
		st[2] |= dpcd.InterlaneAlignDone
	}
	for i, v := range st {
		s.dpcd[dpcd.Lane0_1Status+uint32(i)] = v
	}
}

func (s *Sink) current(lane int) dptx.Signal {
	v := s.dpcd[dpcd.TrainingLane0Set+uint32(lane)]
	return dptx.Signal{
		Swing:       v & 3,
		PreEmphasis: v >> dpcd.TrainPreEmphasisShift & 3,
	}
}

func (s *Sink) i2cTransfer(req *dpaux.Request) dpaux.ReplyCode {
	addr := uint8(req.Address)
	dev, found := s.i2c[addr]
	if !found {
		return dpaux.I2CNack
	}
	if req.Command.IsRead() {
		s.rx = s.rx[:0]
		off := s.i2cOffset[addr]
		for i := 0; i < req.Size; i++ {
			var b byte
			if off < len(dev) {
				b = dev[off]
			}
			s.rx = append(s.rx, b)
			off++
		}
		s.i2cOffset[addr] = off
		return dpaux.Ack
	}
	if len(req.Data) > 0 {
		s.i2cOffset[addr] = int(req.Data[0])
	}
	return dpaux.Ack
}
