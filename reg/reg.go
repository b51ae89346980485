// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package reg provides 32 bit register access to the transmitter blocks.
package reg

// Surface reads and writes 32 bit registers at byte offsets from a block
// base. Accesses complete in bounded time and don't fail.
type Surface interface {
	Read(addr uint32) uint32
	Write(addr, v uint32)
}

// Modify replaces the masked bits of the register at addr with value.
func Modify(s Surface, addr, value, mask uint32) {
	s.Write(addr, s.Read(addr)&^mask|value&mask)
}

// Set ORs bits into the register at addr.
func Set(s Surface, addr, bits uint32) { Modify(s, addr, bits, bits) }

// Clear removes bits from the register at addr.
func Clear(s Surface, addr, bits uint32) { Modify(s, addr, 0, bits) }

// Window offsets every access into a sub-block of another surface.
type Window struct {
	Surface
	Base uint32
}

func (w Window) Read(addr uint32) uint32 { return w.Surface.Read(w.Base + addr) }
func (w Window) Write(addr, v uint32)    { w.Surface.Write(w.Base+addr, v) }
