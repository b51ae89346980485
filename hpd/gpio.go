// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hpd

import (
	"time"

	"github.com/platinasystems/gpio"
)

// DefaultShortPulse is the longest low level taken as a sink interrupt
// rather than an unplug.
const DefaultShortPulse = 5 * time.Millisecond

// Level is a sampled input; gpio.Pin is one.
type Level interface {
	Value() (bool, error)
}

var _ Level = gpio.Pin(0)

// GPIOSource classifies an undebounced hot-plug pin by how long it stays
// low.
type GPIOSource struct {
	Pin        Level
	ShortPulse time.Duration

	now       func() time.Time
	connected bool
	low       bool
	lowSince  time.Time
}

// NewGPIOSource looks up a pin discovered from the device tree.
func NewGPIOSource(name string) (*GPIOSource, bool) {
	pin, found := gpio.Pins[name]
	if !found {
		return nil, false
	}
	return &GPIOSource{Pin: pin}, true
}

func (s *GPIOSource) Poll() (Event, bool, error) {
	v, err := s.Pin.Value()
	if err != nil {
		return 0, false, err
	}
	now := s.clock()
	threshold := s.ShortPulse
	if threshold <= 0 {
		threshold = DefaultShortPulse
	}
	switch {
	case !s.connected:
		if v {
			s.connected, s.low = true, false
			return Connected, true, nil
		}
	case !v:
		if !s.low {
			s.low, s.lowSince = true, now
		} else if now.Sub(s.lowSince) > threshold {
			s.connected, s.low = false, false
			return Disconnected, true, nil
		}
	case s.low:
		s.low = false
		if now.Sub(s.lowSince) > threshold {
			// back high, but low too long to be an interrupt
			return Connected, true, nil
		}
		return ShortPulse, true, nil
	}
	return 0, false, nil
}

func (s *GPIOSource) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
