// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dpaux

import (
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/dptx"
)

const (
	DefaultDeferRetries = 7
	DefaultDeferMin     = 400 * time.Microsecond
	DefaultDeferMax     = 4 * time.Millisecond
)

func (e *Engine) backoff() (*backoff.Backoff, int) {
	b := &backoff.Backoff{
		Min:    e.DeferMin,
		Max:    e.DeferMax,
		Factor: 2,
	}
	if b.Min <= 0 {
		b.Min = DefaultDeferMin
	}
	if b.Max <= 0 {
		b.Max = DefaultDeferMax
	}
	retries := e.DeferRetries
	if retries <= 0 {
		retries = DefaultDeferRetries
	}
	return b, retries
}

type deferrer interface {
	backoff() (*backoff.Backoff, int)
}

// Exchange repeats req while the sink defers and maps the remaining
// replies to errors.
func Exchange(t Transferer, req Request) (Reply, error) {
	d, ok := t.(deferrer)
	if !ok {
		d = &Engine{}
	}
	b, retries := d.backoff()
	for attempt := 0; ; attempt++ {
		reply, err := t.Transfer(req)
		if err != nil {
			return reply, err
		}
		code := reply.Code.Native()
		if code == Ack && !req.Command.IsNative() {
			code = reply.Code.I2C()
		}
		switch code {
		case Ack:
			return reply, nil
		case Defer:
			if attempt >= retries {
				return reply, dptx.ErrDefer
			}
			time.Sleep(b.Duration())
		default:
			return reply, dptx.ErrNack
		}
	}
}

// ReadDPCD fills b from consecutive native addresses.
func (e *Engine) ReadDPCD(addr uint32, b []byte) error {
	for off := 0; off < len(b); {
		n := len(b) - off
		if n > MaxPayload {
			n = MaxPayload
		}
		reply, err := Exchange(e, Request{
			Command: NativeRead,
			Address: addr + uint32(off),
			Size:    n,
		})
		if err != nil {
			return err
		}
		if len(reply.Data) == 0 {
			return dptx.ErrChannel
		}
		off += copy(b[off:], reply.Data)
	}
	return nil
}

// WriteDPCD writes b to consecutive native addresses.
func (e *Engine) WriteDPCD(addr uint32, b []byte) error {
	for off := 0; off < len(b); off += MaxPayload {
		end := off + MaxPayload
		if end > len(b) {
			end = len(b)
		}
		_, err := Exchange(e, Request{
			Command: NativeWrite,
			Address: addr + uint32(off),
			Data:    b[off:end],
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ReadDPCDByte(addr uint32) (byte, error) {
	var b [1]byte
	err := e.ReadDPCD(addr, b[:])
	return b[0], err
}

func (e *Engine) WriteDPCDByte(addr uint32, v byte) error {
	return e.WriteDPCD(addr, []byte{v})
}

// ReadI2C reads len(b) bytes from the i2c device at addr over AUX, starting
// at offset, then releases the bus with an address only stop.
func (e *Engine) ReadI2C(addr, offset uint8, b []byte) error {
	return ReadI2C(e, addr, offset, b)
}

// ReadI2C is Engine.ReadI2C through any Transferer.
func ReadI2C(t Transferer, addr, offset uint8, b []byte) error {
	_, err := Exchange(t, Request{
		Command: I2CWrite | MOT,
		Address: uint32(addr),
		Data:    []byte{offset},
	})
	if err == nil {
		for off := 0; off < len(b); {
			n := len(b) - off
			if n > MaxPayload {
				n = MaxPayload
			}
			var reply Reply
			reply, err = Exchange(t, Request{
				Command: I2CRead | MOT,
				Address: uint32(addr),
				Size:    n,
			})
			if err != nil {
				break
			}
			if len(reply.Data) == 0 {
				err = dptx.ErrChannel
				break
			}
			off += copy(b[off:], reply.Data)
		}
	}
	_, stopErr := t.Transfer(Request{
		Command: I2CRead,
		Address: uint32(addr),
	})
	if err == nil {
		err = stopErr
	}
	return err
}
