// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package fallback verifies a trained link and steps its bandwidth down
// when it isn't healthy. Steps only ever lower the rate or lane count; the
// policy is reset by a physical disconnect.
package fallback

import (
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/dpcd"
	"github.com/platinasystems/log"
)

// Policy tracks one port's degraded configuration.
type Policy struct {
	Port string

	active bool
	cfg    dptx.LinkConfig
	steps  int
}

// Check reads the link status once. A link that has lost clock recovery
// failed in that phase; one that has lost lock or alignment failed
// equalization.
func (p *Policy) Check(d dpcd.Accessor,
	cfg dptx.LinkConfig) (ok bool, failed dptx.Phase, err error) {
	st, err := dpcd.ReadLinkStatus(d)
	if err != nil {
		return
	}
	lanes := cfg.Lanes.Mask()
	switch {
	case !st.CRDone(lanes):
		failed = dptx.ClockRecovery
	case !st.EQDone(lanes) || !st.Aligned():
		failed = dptx.ChannelEqualization
	default:
		ok = true
	}
	return
}

// Next returns the configuration to try after cfg failed in phase. Clock
// recovery failures lower the rate first, equalization failures the lane
// count.
func (p *Policy) Next(cfg dptx.LinkConfig,
	failed dptx.Phase) (dptx.LinkConfig, error) {
	next := cfg
	lowerRate := func() bool {
		r, ok := cfg.Rate.Lower()
		next.Rate = r
		return ok
	}
	halveLanes := func() bool {
		if cfg.Lanes <= 1 {
			return false
		}
		next.Lanes = cfg.Lanes / 2
		return true
	}
	var ok bool
	if failed == dptx.ChannelEqualization {
		ok = halveLanes() || lowerRate()
	} else {
		ok = lowerRate() || halveLanes()
	}
	if !ok {
		log.Print("daemon", "err", p.Port, ": ", cfg, " ", failed,
			" failed, no further fallback")
		return cfg, dptx.ErrNoFurtherFallback
	}
	p.active = true
	p.cfg = next
	p.steps++
	log.Print("daemon", "warning", p.Port, ": ", failed, " failed at ",
		cfg, ", falling back to ", next)
	return next, nil
}

// Active reports that a step has been taken since the last Reset. While
// active, negotiation isn't re-applied.
func (p *Policy) Active() bool { return p.active }

// Config returns the current degraded configuration.
func (p *Policy) Config() (dptx.LinkConfig, bool) { return p.cfg, p.active }

// Steps returns the number of steps since the last Reset.
func (p *Policy) Steps() int { return p.steps }

func (p *Policy) Reset() {
	p.active = false
	p.cfg = dptx.LinkConfig{}
	p.steps = 0
}
