// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package negotiate chooses the first link configuration to train after a
// connect, from the sink's capability block and the stream bandwidth.
package negotiate

import (
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/dpcd"
	"github.com/platinasystems/log"
)

// ReadCaps fetches the receiver capability block. A block of zeros, or one
// that can't be read, means there is no usable sink.
func ReadCaps(d dpcd.Accessor) (dpcd.Caps, error) {
	caps, err := dpcd.ReadCaps(d)
	if err == dptx.ErrNotConnected {
		return caps, err
	}
	if err != nil || caps.IsZero() {
		return caps, dptx.ErrNoCapability
	}
	if _, ok := caps.MaxRate(); !ok || caps.MaxLanes() == 0 {
		return caps, dptx.ErrNoCapability
	}
	return caps, nil
}

// Negotiator picks configurations for one port.
type Negotiator struct {
	Topology dptx.Topology
	// Registry, if set, bounds how many ports of each topology may run.
	Registry *Registry
	Port     string

	override *dptx.LinkConfig
}

func New(topo dptx.Topology, registry *Registry, port string) *Negotiator {
	return &Negotiator{
		Topology: topo,
		Registry: registry,
		Port:     port,
	}
}

// Ceiling returns the sink maxima clamped to the transmitter's.
func (n *Negotiator) Ceiling(caps *dpcd.Caps) dptx.LinkConfig {
	rate, _ := caps.MaxRate()
	if rate > n.Topology.MaxRate {
		rate = n.Topology.MaxRate
	}
	lanes := caps.MaxLanes()
	if lanes > n.Topology.MaxLanes {
		lanes = n.Topology.MaxLanes
	}
	return dptx.LinkConfig{Rate: rate, Lanes: lanes}
}

// Negotiate returns the configuration to train first. With a known target
// it is the smallest {rate, lanes} whose capacity covers the stream, fewer
// lanes winning a tie; without one it's the ceiling. A pending compliance
// override takes precedence over both.
func (n *Negotiator) Negotiate(caps *dpcd.Caps,
	target dptx.Bandwidth) (dptx.LinkConfig, error) {
	if caps.IsZero() {
		return dptx.LinkConfig{}, dptx.ErrNoCapability
	}
	max := n.Ceiling(caps)
	if !max.Rate.Valid() || !max.Lanes.Valid() {
		return dptx.LinkConfig{}, dptx.ErrNoCapability
	}
	cfg := max
	if n.override != nil {
		cfg = *n.override
		if cfg.Rate > max.Rate {
			cfg.Rate = max.Rate
		}
		if cfg.Lanes > max.Lanes {
			cfg.Lanes = max.Lanes
		}
	} else if target.Known() {
		cfg = lowest(max, target.Required())
	}
	cfg.BPC, cfg.Color = target.BPC, target.Color
	if cfg.BPC == 0 {
		cfg.BPC = 8
	}
	return cfg, nil
}

// lowest returns the least capacity tier within max that exceeds need, or
// max if none does.
func lowest(max dptx.LinkConfig, need uint64) dptx.LinkConfig {
	best := max
	found := false
	for _, rate := range dptx.Rates {
		if rate > max.Rate {
			break
		}
		for _, lanes := range []dptx.LaneCount{1, 2, 4} {
			if lanes > max.Lanes {
				break
			}
			c := dptx.LinkConfig{Rate: rate, Lanes: lanes}
			if c.Capacity() <= need {
				continue
			}
			if !found || c.Capacity() < best.Capacity() ||
				c.Capacity() == best.Capacity() &&
					c.Lanes < best.Lanes {
				best, found = c, true
			}
		}
	}
	return best
}

// Claim registers the port as connected against its topology's limit.
func (n *Negotiator) Claim() error {
	return n.Registry.Claim(n.Topology.Name, n.Port)
}

func (n *Negotiator) Release() { n.Registry.Release(n.Port) }

// Override returns the pending compliance configuration, if any.
func (n *Negotiator) Override() (dptx.LinkConfig, bool) {
	if n.override == nil {
		return dptx.LinkConfig{}, false
	}
	return *n.override, true
}

// Reset forgets the compliance override; called on a physical disconnect.
func (n *Negotiator) Reset() { n.override = nil }

// ServiceTestRequest answers an automated link training test request by
// pinning the requested rate and lane count. It returns true if a new
// override was accepted.
func (n *Negotiator) ServiceTestRequest(d dpcd.Accessor) (bool, error) {
	req, err := dpcd.Readb(d, dpcd.TestRequest)
	if err != nil {
		return false, err
	}
	if req&dpcd.TestLinkTraining == 0 {
		return false, dpcd.Writeb(d, dpcd.TestResponse, dpcd.TestNak)
	}
	code, err := dpcd.Readb(d, dpcd.TestLinkRate)
	if err != nil {
		return false, err
	}
	lc, err := dpcd.Readb(d, dpcd.TestLaneCount)
	if err != nil {
		return false, err
	}
	rate, ok := dptx.RateOfCode(code)
	lanes := dptx.LaneCount(lc & dpcd.MaxLaneCountMask)
	if !ok || !lanes.Valid() || rate > n.Topology.MaxRate ||
		lanes > n.Topology.MaxLanes {
		log.Print("daemon", "warning", n.Port, ": nak test request ",
			code, " x", lc)
		return false, dpcd.Writeb(d, dpcd.TestResponse, dpcd.TestNak)
	}
	if err = dpcd.Writeb(d, dpcd.TestResponse, dpcd.TestAck); err != nil {
		return false, err
	}
	cfg := dptx.LinkConfig{Rate: rate, Lanes: lanes}
	n.override = &cfg
	log.Print("daemon", "info", n.Port, ": test request ", cfg)
	return true, nil
}
