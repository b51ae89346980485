// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package link owns one transmitter port: its AUX engine, trainer,
// negotiator and fallback policy. Every entry point takes the port lock
// before touching AUX or training registers and holds it across a whole
// training attempt. The connection flag is separate so that a hot-plug
// edge can fail an attempt in progress.
package link

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/ddc"
	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/dptx/dpcd"
	"github.com/platinasystems/dptx/fallback"
	"github.com/platinasystems/dptx/mac"
	"github.com/platinasystems/dptx/negotiate"
	"github.com/platinasystems/dptx/reg"
	"github.com/platinasystems/dptx/signal"
	"github.com/platinasystems/dptx/train"
	"github.com/platinasystems/log"
	uuid "github.com/satori/go.uuid"
)

// Request asks Enable for a stream.
type Request struct {
	Target dptx.Bandwidth
	// Config, if set, is trained instead of the negotiated configuration.
	// It is still clamped to the sink and transmitter maxima.
	Config *dptx.LinkConfig
}

// TrainedLinkInfo describes the link Enable left running.
type TrainedLinkInfo struct {
	Config   dptx.LinkConfig
	Signals  [dptx.MaxLanes]dptx.Signal
	Pattern  dptx.Pattern
	State    dptx.State
	Attempts int
}

// Status is a snapshot for publishing.
type Status struct {
	Port          string
	State         dptx.State
	Session       string
	Active        bool
	Config        dptx.LinkConfig
	Signals       [dptx.MaxLanes]dptx.Signal
	Fallback      bool
	FallbackSteps int
	Override      bool
	SinkCount     uint8
	Escalated     bool
}

type Port struct {
	Name       string
	Engine     *dpaux.Engine
	MAC        *mac.MAC
	Trainer    *train.Trainer
	Negotiator *negotiate.Negotiator
	Policy     *fallback.Policy

	mutex     sync.Mutex
	connected int32

	state     dptx.State
	session   uuid.UUID
	caps      dpcd.Caps
	capsValid bool
	claimErr  error
	active    bool
	powered   bool
	req       Request
	last      TrainedLinkInfo
	sinkCount uint8
}

// New assembles a port from its AUX and MAC register blocks and drive
// level backend. The port starts disconnected.
func New(name string, topo dptx.Topology, auxRegs, macRegs reg.Surface,
	signals signal.Controller, registry *negotiate.Registry,
	quirks ...dpaux.Quirk) *Port {
	p := &Port{
		Name:       name,
		MAC:        mac.New(macRegs),
		Negotiator: negotiate.New(topo, registry, name),
		Policy:     &fallback.Policy{Port: name},
		state:      dptx.Disconnected,
		powered:    true,
	}
	p.Engine = dpaux.New(auxRegs, p.Connected, quirks...)
	p.Trainer = &train.Trainer{
		DPCD:     p.Engine,
		Tx:       p.MAC,
		Signals:  signals,
		Topology: topo,
		Present:  p.Connected,
	}
	return p
}

// Connected reads the connection flag without the port lock.
func (p *Port) Connected() bool { return atomic.LoadInt32(&p.connected) != 0 }

// SetConnected flips the connection flag without the port lock. Hot-plug
// glue calls it as soon as an edge is seen so that training in progress
// stops at its next poll.
func (p *Port) SetConnected(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&p.connected, i)
}

// Enable trains the link, stepping down through the fallback policy until
// it is healthy or nothing lower remains, then starts video.
func (p *Port) Enable(ctx context.Context,
	req Request) (TrainedLinkInfo, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.req = req
	return p.enable(ctx)
}

func (p *Port) enable(ctx context.Context) (info TrainedLinkInfo, err error) {
	if !p.Connected() {
		return info, dptx.ErrNotConnected
	}
	switch {
	case p.state == dptx.Failed:
		return info, dptx.ErrNoFurtherFallback
	case p.claimErr != nil:
		return info, p.claimErr
	}
	if p.state == dptx.Disconnected {
		p.state = dptx.CapabilityUnknown
	}
	if err = p.readCaps(); err != nil {
		return
	}
	cfg, err := p.choose()
	if err != nil {
		return
	}
	if err = dpcd.Writeb(p.Engine, dpcd.SetPower,
		dpcd.SetPowerD0); err != nil {
		return
	}
	if p.active {
		p.MAC.StopVideo()
		p.active = false
	}
	p.powered = true
	for {
		info.Attempts++
		var res train.Result
		res, err = p.Trainer.Train(ctx, cfg, &p.caps)
		if err == nil {
			var ok bool
			var failed dptx.Phase
			ok, failed, err = p.Policy.Check(p.Engine, cfg)
			if err != nil {
				return
			}
			if ok {
				info.Signals, info.Pattern = res.Signals, res.Pattern
				break
			}
			err = &dptx.TrainingError{Phase: failed}
		}
		phase, isTraining := dptx.TrainingPhase(err)
		if !isTraining || ctx.Err() != nil || !p.Connected() {
			return
		}
		next, ferr := p.Policy.Next(cfg, phase)
		if ferr != nil {
			p.state = dptx.Failed
			return info, ferr
		}
		cfg = next
	}
	p.MAC.StartVideo()
	p.active = true
	p.state = dptx.Trained
	if p.Policy.Active() {
		p.state = dptx.Degraded
	}
	info.Config, info.State = cfg, p.state
	p.last = info
	log.Print("daemon", "info", p.Name, ": ", p.state, " at ", cfg,
		" after ", info.Attempts, " attempts")
	return info, nil
}

// choose returns the first configuration to train: the degraded
// configuration, else a compliance override, else the request or
// negotiation. Fallback never climbs back above where it stepped down.
func (p *Port) choose() (dptx.LinkConfig, error) {
	cfg, err := p.Negotiator.Negotiate(&p.caps, p.req.Target)
	if err != nil {
		return cfg, err
	}
	if c, found := p.Policy.Config(); found {
		c.BPC, c.Color = cfg.BPC, cfg.Color
		return c, nil
	}
	if _, found := p.Negotiator.Override(); found {
		return cfg, nil
	}
	if p.req.Config != nil {
		max := p.Negotiator.Ceiling(&p.caps)
		c := *p.req.Config
		if c.Rate > max.Rate || !c.Rate.Valid() {
			c.Rate = max.Rate
		}
		if c.Lanes > max.Lanes || !c.Lanes.Valid() {
			c.Lanes = max.Lanes
		}
		if c.BPC == 0 {
			c.BPC = cfg.BPC
		}
		return c, nil
	}
	return cfg, nil
}

func (p *Port) readCaps() error {
	if p.capsValid {
		return nil
	}
	caps, err := negotiate.ReadCaps(p.Engine)
	if err != nil {
		return err
	}
	p.caps, p.capsValid = caps, true
	return nil
}

// Disable stops video and powers down the lanes, leaving AUX up. It
// writes nothing if the port is already down.
func (p *Port) Disable() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.powered {
		return nil
	}
	p.MAC.StopVideo()
	if p.Connected() {
		if err := dpcd.Writeb(p.Engine, dpcd.SetPower,
			dpcd.SetPowerD3); err != nil {
			log.Print("daemon", "warning", p.Name, ": sink power: ",
				err)
		}
	}
	p.MAC.PowerDown()
	p.active, p.powered = false, false
	if p.state == dptx.Trained || p.state == dptx.Degraded {
		p.state = dptx.CapabilityUnknown
	}
	return nil
}

// HandleShortPulse services a sink interrupt: automated test requests,
// then a link health check. It retrains an active link that has lost
// lock, or one whose test request pinned a new configuration.
func (p *Port) HandleShortPulse(ctx context.Context) (bool, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.Connected() {
		return false, dptx.ErrNotConnected
	}
	vec, err := dpcd.Readb(p.Engine, dpcd.DeviceServiceIrqVector)
	if err != nil {
		return false, err
	}
	var pinned bool
	if vec&dpcd.AutomatedTestRequest != 0 {
		if pinned, err = p.Negotiator.ServiceTestRequest(p.Engine); err != nil {
			return false, err
		}
		if pinned {
			// a newly pinned configuration restarts the fallback ladder
			p.Policy.Reset()
		}
	}
	if vec != 0 {
		if err = dpcd.Writeb(p.Engine, dpcd.DeviceServiceIrqVector,
			vec); err != nil {
			return false, err
		}
	}
	count, err := dpcd.Readb(p.Engine, dpcd.SinkCount)
	if err != nil {
		return false, err
	}
	// bit 7 is the count's sixth bit
	p.sinkCount = count&0x3f | count>>7<<6
	if !p.active {
		return false, nil
	}
	if !pinned {
		ok, failed, err := p.Policy.Check(p.Engine, p.last.Config)
		if err != nil || ok {
			return false, err
		}
		log.Print("daemon", "warning", p.Name, ": lost ", failed,
			", retraining")
	}
	_, err = p.enable(ctx)
	return true, err
}

// HandleLongPulse handles a connect or disconnect edge. A connect starts a
// new session and reads the sink's capabilities; either edge forgets
// everything learned about the previous sink.
func (p *Port) HandleLongPulse(ctx context.Context, connected bool) error {
	p.SetConnected(connected)
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.forget()
	if !connected {
		p.state = dptx.Disconnected
		p.claimErr = nil
		p.Negotiator.Release()
		log.Print("daemon", "info", p.Name, ": disconnected")
		return nil
	}
	p.Engine.Disarm()
	p.state = dptx.CapabilityUnknown
	p.session = uuid.NewV4()
	log.Print("daemon", "info", p.Name, ": connected, session ", p.session)
	if p.claimErr = p.Negotiator.Claim(); p.claimErr != nil {
		log.Print("daemon", "warning", p.Name, ": ", p.claimErr)
		return p.claimErr
	}
	return p.readCaps()
}

func (p *Port) forget() {
	if p.active {
		p.MAC.StopVideo()
	}
	p.active = false
	p.capsValid = false
	p.caps = dpcd.Caps{}
	p.sinkCount = 0
	p.last = TrainedLinkInfo{}
	p.Negotiator.Reset()
	p.Policy.Reset()
}

// AuxTransfer shares the port's AUX engine with other sideband users.
func (p *Port) AuxTransfer(req dpaux.Request) (dpaux.Reply, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.Connected() {
		return dpaux.Reply{}, dptx.ErrNotConnected
	}
	return p.Engine.Transfer(req)
}

// Transfer makes the port an dpaux.Transferer.
func (p *Port) Transfer(req dpaux.Request) (dpaux.Reply, error) {
	return p.AuxTransfer(req)
}

// EDID reads the sink's EDID blocks under one hold of the port lock so
// that a retrain cannot split the offset write from the block reads.
func (p *Port) EDID() ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.Connected() {
		return nil, dptx.ErrNotConnected
	}
	return ddc.Read(p.Engine)
}

// Caps returns the sink capability block, if read.
func (p *Port) Caps() (dpcd.Caps, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.caps, p.capsValid
}

func (p *Port) Status() Status {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	_, override := p.Negotiator.Override()
	s := Status{
		Port:          p.Name,
		State:         p.state,
		Active:        p.active,
		Fallback:      p.Policy.Active(),
		FallbackSteps: p.Policy.Steps(),
		Override:      override,
		SinkCount:     p.sinkCount,
		Escalated:     p.Engine.Escalated(),
	}
	if p.state != dptx.Disconnected {
		s.Session = p.session.String()
	}
	if p.active {
		s.Config, s.Signals = p.last.Config, p.last.Signals
	}
	return s
}
