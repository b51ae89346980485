// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package signal programs per lane swing and pre-emphasis into the
// transmitter's analog drivers from board calibration tables.
package signal

import (
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/log"
)

// Controller programs drive levels for the enabled lanes at a link rate.
// Implementations never touch a lane outside the mask and fail without
// writing anything if any entry is invalid or missing.
type Controller interface {
	Program(rate dptx.Rate, lanes dptx.LaneMask, s [dptx.MaxLanes]dptx.Signal) error
}

// Verbose logs every programmed level.
var Verbose bool

// check validates every enabled lane before any register is written.
func check(lanes dptx.LaneMask, s *[dptx.MaxLanes]dptx.Signal) (err error) {
	lanes.Foreach(func(lane int) {
		if err == nil && !s[lane].Valid() {
			err = &dptx.SignalError{Lane: lane, Signal: s[lane]}
		}
	})
	return
}

func trace(who string, lane int, s dptx.Signal, v []uint32) {
	if Verbose {
		log.Printf("daemon", "debug", "%s: lane %d %v levels %x",
			who, lane, s, v)
	}
}
