// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hpd

import "github.com/platinasystems/dptx/reg"

// Detector register offsets.
const (
	HpdCtrl  = 0x00
	HpdIrq   = 0x04
	HpdIrqEn = 0x08
)

// HpdCtrl bits.
const (
	CtrlDebounced = 1 << 2
	CtrlClkDiv    = 1 << 5
	CtrlEn        = 1 << 7
)

// HpdIrq and HpdIrqEn bits, write one to clear.
const (
	IrqFall    = 1 << 1
	IrqRise    = 1 << 2
	IrqUnplug  = 1 << 3
	IrqUHPD    = 1 << 4
	IrqLHPD    = 1 << 5
	IrqShort   = 1 << 6
	IrqInitial = 1 << 7
	IrqAll     = IrqFall | IrqRise | IrqUnplug | IrqUHPD | IrqLHPD |
		IrqShort | IrqInitial
)

// RegisterSource reads the transmitter's own debounced detector.
type RegisterSource struct {
	Regs reg.Surface

	connected bool
	primed    bool
}

// NewRegisterSource enables the detector and its event latches.
func NewRegisterSource(regs reg.Surface) *RegisterSource {
	reg.Set(regs, HpdCtrl, CtrlEn)
	regs.Write(HpdIrqEn, IrqAll)
	regs.Write(HpdIrq, IrqAll)
	return &RegisterSource{Regs: regs}
}

func (s *RegisterSource) Poll() (Event, bool, error) {
	level := s.Regs.Read(HpdCtrl)&CtrlDebounced != 0
	irq := s.Regs.Read(HpdIrq)
	if irq&IrqAll != 0 {
		s.Regs.Write(HpdIrq, IrqAll)
	}
	long := irq&(IrqUHPD|IrqLHPD) != 0
	changed := level != s.connected || !s.primed && level
	s.connected, s.primed = level, true
	switch {
	case changed, long:
		if level {
			return Connected, true, nil
		}
		if changed {
			return Disconnected, true, nil
		}
	case irq&IrqShort != 0 && level:
		return ShortPulse, true, nil
	}
	return 0, false, nil
}
