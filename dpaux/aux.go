// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dpaux executes DisplayPort AUX channel transactions through the
// transmitter's request FIFO.
package dpaux

import (
	"fmt"
	"time"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/reg"
	"github.com/platinasystems/log"
)

// MaxPayload is the FIFO depth.
const MaxPayload = 16

// Command is the 4 bit request command; bit 3 selects native, bit 2 is the
// i2c middle-of-transaction flag and bit 0 selects read.
type Command uint8

const (
	I2CWrite    Command = 0x0
	I2CRead     Command = 0x1
	MOT         Command = 0x4
	NativeWrite Command = 0x8
	NativeRead  Command = 0x9
)

func (c Command) IsNative() bool { return c&0x8 != 0 }
func (c Command) IsRead() bool   { return c&0x1 != 0 }

func (c Command) String() string {
	s := "i2c-"
	if c.IsNative() {
		s = "native-"
	}
	if c.IsRead() {
		s += "read"
	} else {
		s += "write"
	}
	if !c.IsNative() && c&MOT != 0 {
		s += "+mot"
	}
	return s
}

// ReplyCode is the reply command nibble; bits 1:0 are the native reply and
// bits 3:2 the i2c reply.
type ReplyCode uint8

const (
	Ack      ReplyCode = 0x0
	Nack     ReplyCode = 0x1
	Defer    ReplyCode = 0x2
	I2CNack  ReplyCode = 0x1 << 2
	I2CDefer ReplyCode = 0x2 << 2
)

func (r ReplyCode) Native() ReplyCode { return r & 3 }
func (r ReplyCode) I2C() ReplyCode    { return r >> 2 & 3 }

func (r ReplyCode) String() string {
	name := func(c ReplyCode) string {
		switch c {
		case Ack:
			return "ack"
		case Nack:
			return "nack"
		case Defer:
			return "defer"
		}
		return "reserved"
	}
	if r.Native() != Ack {
		return name(r.Native())
	}
	if r.I2C() != Ack {
		return "i2c-" + name(r.I2C())
	}
	return "ack"
}

// Request is one AUX transaction. Writes carry Data; reads ask for Size
// bytes. A zero length request is address only.
type Request struct {
	Command Command
	Address uint32
	Data    []byte
	Size    int
}

func (req *Request) len() int {
	if req.Command.IsRead() {
		return req.Size
	}
	return len(req.Data)
}

func (req Request) String() string {
	return fmt.Sprintf("%v %#05x len %d", req.Command, req.Address, req.len())
}

// Reply is the sink's answer; Data holds bytes read.
type Reply struct {
	Code ReplyCode
	Data []byte
}

// Transferer executes AUX requests.
type Transferer interface {
	Transfer(Request) (Reply, error)
}

// Quirk blocks a specific transaction that a known sink mishandles.
type Quirk struct {
	Name    string
	Command Command
	Address uint32
}

// DDCCIWrite blocks i2c writes to the DDC/CI address; some monitors wedge
// their AUX receiver on them.
var DDCCIWrite = Quirk{
	Name:    "ddc/ci write",
	Command: I2CWrite,
	Address: 0x37,
}

func (q Quirk) match(req *Request) bool {
	return !req.Command.IsNative() && req.Command&^MOT == q.Command &&
		req.Address == q.Address
}

type status int

const (
	statusDone status = iota
	statusNack
	statusTimeout
	statusRxError
)

func (s status) String() string {
	return [...]string{"done", "nack", "timeout", "rx error"}[s]
}

const (
	DefaultPollLimit    = 500
	DefaultPollInterval = 2 * time.Microsecond
)

// Engine owns an AUX block. It does not serialize callers.
type Engine struct {
	Regs reg.Surface
	// Present reports the sink connected; nil means always.
	Present func() bool
	Quirks  []Quirk

	PollLimit    int
	PollInterval time.Duration

	// Defer retry policy for the native and i2c helpers.
	DeferRetries int
	DeferMin     time.Duration
	DeferMax     time.Duration

	escalated bool
}

// New enables the AUX block and returns its engine.
func New(regs reg.Surface, present func() bool, quirks ...Quirk) *Engine {
	e := &Engine{
		Regs:    regs,
		Present: present,
		Quirks:  quirks,
	}
	reg.Set(regs, Ctrl, AuxEn)
	return e
}

// Escalated reports whether hardware auto-retry has been armed.
func (e *Engine) Escalated() bool { return e.escalated }

// Transfer executes one request. Transport failures return an error;
// protocol replies, including NACK and DEFER, return in Reply.Code.
func (e *Engine) Transfer(req Request) (Reply, error) {
	if e.Present != nil && !e.Present() {
		return Reply{}, dptx.ErrNotConnected
	}
	if n := req.len(); n > MaxPayload || n < 0 {
		return Reply{}, dptx.ErrSizeViolation
	}
	for _, q := range e.Quirks {
		if q.match(&req) {
			log.Print("daemon", "notice", "aux: ", q.Name,
				" blocked: ", req)
			return Reply{Code: I2CNack}, nil
		}
	}
	reply, st := e.do(&req)
	if st == statusTimeout || st == statusRxError {
		if e.escalated {
			return reply, st.err()
		}
		e.escalate(st)
		if reply, st = e.do(&req); st == statusTimeout ||
			st == statusRxError {
			return reply, st.err()
		}
	}
	return reply, nil
}

func (s status) err() error {
	if s == statusRxError {
		return dptx.ErrChannel
	}
	return dptx.ErrTimeout
}

func (e *Engine) do(req *Request) (Reply, status) {
	r := e.Regs
	n := req.len()

	reg.Set(r, FifoCtrl, NaFifoRst|I2CFifoRst)
	reg.Clear(r, FifoCtrl, NaFifoRst|I2CFifoRst)
	e.unlockRetry()
	r.Write(IrqEvent, IrqAll)

	r.Write(TxReq, uint32(req.Command)<<TxReqCmdShift|
		req.Address&AddressMask)
	if !req.Command.IsRead() {
		for _, b := range req.Data {
			r.Write(TxData, uint32(b))
		}
	}
	ctl := uint32(TxStart)
	if n == 0 {
		ctl |= TxAddrOnly
	} else {
		ctl |= uint32(n-1) << TxLenShift
	}
	r.Write(TxCtrl, ctl)

	st := e.poll()
	r.Write(IrqEvent, IrqAll)
	if st == statusTimeout || st == statusRxError {
		return Reply{}, st
	}
	reply := Reply{Code: ReplyCode(r.Read(ReplyCmd) & 0xf)}
	if st == statusNack && reply.Code == Ack {
		if req.Command.IsNative() {
			reply.Code = Nack
		} else {
			reply.Code = I2CNack
		}
	}
	if req.Command.IsRead() && reply.Code == Ack && n > 0 {
		reply.Data = e.drain(n)
	}
	return reply, st
}

func (e *Engine) poll() status {
	limit := e.PollLimit
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	interval := e.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for i := 0; i < limit; i++ {
		ev := e.Regs.Read(IrqEvent)
		switch {
		case ev&IrqRxError != 0:
			return statusRxError
		case ev&IrqTimeout != 0:
			return statusTimeout
		case ev&IrqNack != 0:
			return statusNack
		case ev&IrqDone != 0:
			return statusDone
		}
		spin(interval)
	}
	return statusTimeout
}

// spin busy waits; AUX replies land well under a scheduler tick.
func spin(d time.Duration) {
	for t0 := time.Now(); time.Since(t0) < d; {
	}
}

func (e *Engine) drain(max int) []byte {
	p := e.Regs.Read(FifoPtr)
	wr := int(p & WrPtrMask)
	rd := int(p&RdPtrMask) >> RdPtrShift
	n := wr - rd
	if n < 0 {
		n += WrPtrMask + 1
	}
	if n > max {
		n = max
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(e.Regs.Read(RxData))
	}
	return b
}

// unlockRetry toggles RETRY_EN to release a retry engine that latched
// after exhausting its attempts.
func (e *Engine) unlockRetry() {
	if e.Regs.Read(Retry1)&RetryLock == 0 {
		return
	}
	reg.Clear(e.Regs, Retry1, RetryEn)
	reg.Set(e.Regs, Retry1, RetryEn)
}

func (e *Engine) escalate(st status) {
	log.Print("daemon", "warning", "aux: ", st,
		", enabling hardware retry")
	reg.Set(e.Regs, Retry2, RetryTimeoutEn|RetryErrorEn)
	reg.Set(e.Regs, Retry1, RetryEn)
	reg.Set(e.Regs, Ctrl, AuxTimeoutEn)
	reg.Set(e.Regs, FifoCtrl, ReadFailAutoEn)
	e.escalated = true
}

// Disarm turns hardware retry back off after a plug event so that the
// next connection's first glitch escalates again.
func (e *Engine) Disarm() {
	if !e.escalated {
		return
	}
	reg.Clear(e.Regs, Retry2, RetryTimeoutEn|RetryErrorEn)
	reg.Clear(e.Regs, Retry1, RetryEn)
	reg.Clear(e.Regs, FifoCtrl, ReadFailAutoEn)
	e.escalated = false
}
