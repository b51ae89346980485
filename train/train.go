// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package train runs DisplayPort link training: clock recovery followed by
// channel equalization. A Trainer never retries at the same settings;
// choosing different settings after a failure is the caller's job.
package train

import (
	"context"
	"time"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/dpcd"
	"github.com/platinasystems/dptx/signal"
	"github.com/platinasystems/log"
)

const (
	CRIterations = 4
	EQIterations = 6

	DefaultCRSettle = 150 * time.Microsecond
)

// Transmitter is the local side of training: link configuration and the
// pattern generator.
type Transmitter interface {
	SetLinkConfig(cfg dptx.LinkConfig, enhanced bool)
	SetPattern(dptx.Pattern)
	SetScramble(bool)
}

// State is the trainer's position in the sequence.
type State uint8

const (
	Idle State = iota
	InClockRecovery
	InChannelEqualization
	Trained
	Failed
)

func (s State) String() string {
	return [...]string{
		"idle",
		"clock recovery",
		"channel equalization",
		"trained",
		"failed",
	}[s]
}

// Trainer trains one port. It is parameterized by the port's topology and
// its register, sink and drive level backends.
type Trainer struct {
	DPCD     dpcd.Accessor
	Tx       Transmitter
	Signals  signal.Controller
	Topology dptx.Topology
	// Present reports the sink still connected; nil means always.
	Present func() bool

	CRSettle time.Duration
	Verbose  bool

	state State
}

// Result describes a trained link.
type Result struct {
	Config       dptx.LinkConfig
	Signals      [dptx.MaxLanes]dptx.Signal
	Pattern      dptx.Pattern
	CRIterations int
	EQIterations int
}

func (t *Trainer) State() State { return t.state }

// Train runs both phases at cfg. On success the sink and transmitter are
// left sending normal symbols with scrambling enabled.
func (t *Trainer) Train(ctx context.Context, cfg dptx.LinkConfig,
	caps *dpcd.Caps) (res Result, err error) {
	res.Config = cfg
	t.state = Idle
	if err = t.present(); err != nil {
		return
	}
	defer func() {
		if err != nil {
			t.state = Failed
			t.abort()
			if _, ok := dptx.TrainingPhase(err); ok {
				log.Print("daemon", "warning", "train: ", cfg,
					": ", err)
			}
		}
	}()

	lanes := cfg.Lanes.Mask()
	enhanced := caps.EnhancedFraming()
	t.Tx.SetScramble(false)
	t.Tx.SetLinkConfig(cfg, enhanced)
	t.Tx.SetPattern(dptx.TPS1)

	lc := byte(cfg.Lanes)
	if enhanced {
		lc |= dpcd.LaneCountEnhancedFrameEn
	}
	err = t.DPCD.WriteDPCD(dpcd.LinkBwSet, []byte{cfg.Rate.Code(), lc})
	if err == nil {
		err = dpcd.Writeb(t.DPCD, dpcd.MainLinkChannelCodingSet,
			dpcd.ChannelCoding8b10b)
	}
	if err == nil {
		err = dpcd.Writeb(t.DPCD, dpcd.TrainingPatternSet,
			dpcd.PatternSet(dptx.TPS1))
	}
	if err != nil {
		err = t.phaseError(dptx.ClockRecovery, 0, err)
		return
	}

	t.state = InClockRecovery
	if err = t.clockRecovery(ctx, cfg, lanes, &res); err != nil {
		return
	}
	t.state = InChannelEqualization
	if err = t.channelEqualization(ctx, cfg, lanes, caps, &res); err != nil {
		return
	}

	if err = dpcd.Writeb(t.DPCD, dpcd.TrainingPatternSet,
		dpcd.PatternSet(dptx.PatternNone)); err != nil {
		err = t.phaseError(dptx.ChannelEqualization, res.EQIterations,
			err)
		return
	}
	t.Tx.SetPattern(dptx.PatternNone)
	t.Tx.SetScramble(true)
	t.state = Trained
	if t.Verbose {
		log.Print("daemon", "info", "train: ", cfg, " trained, cr ",
			res.CRIterations, " eq ", res.EQIterations, " ",
			res.Pattern)
	}
	return
}

func (t *Trainer) clockRecovery(ctx context.Context, cfg dptx.LinkConfig,
	lanes dptx.LaneMask, res *Result) error {
	var prev dptx.Signal
	var havePrev bool
	for i := 1; i <= CRIterations; i++ {
		res.CRIterations = i
		fail := func(err error) error {
			return t.phaseError(dptx.ClockRecovery, i, err)
		}
		if err := t.present(); err != nil {
			return err
		}
		if err := t.drive(cfg, lanes, &res.Signals); err != nil {
			return fail(err)
		}
		if err := sleep(ctx, t.crSettle()); err != nil {
			return fail(err)
		}
		if err := t.present(); err != nil {
			return err
		}
		st, err := dpcd.ReadLinkStatus(t.DPCD)
		if err != nil {
			return fail(err)
		}
		if st.CRDone(lanes) {
			return nil
		}
		next := requested(&st, lanes)
		// Only lane 0 is checked for a stalled request.
		cur := res.Signals[0]
		if havePrev && next[0] == prev &&
			(cur.MaxSwingReached() || cur.MaxPreEmphasisReached()) {
			if t.Verbose {
				log.Print("daemon", "info", "train: cr stalled at ",
					cur)
			}
			return fail(nil)
		}
		prev, havePrev = next[0], true
		res.Signals = next
	}
	return t.phaseError(dptx.ClockRecovery, CRIterations, nil)
}

// Pattern returns the strongest equalization pattern both sides support.
func (t *Trainer) Pattern(caps *dpcd.Caps) dptx.Pattern {
	switch {
	case t.Topology.TPS4 && caps.TPS4():
		return dptx.TPS4
	case caps.TPS3():
		return dptx.TPS3
	}
	return dptx.TPS2
}

func (t *Trainer) channelEqualization(ctx context.Context,
	cfg dptx.LinkConfig, lanes dptx.LaneMask, caps *dpcd.Caps,
	res *Result) error {
	res.Pattern = t.Pattern(caps)
	t.Tx.SetScramble(res.Pattern == dptx.TPS4)
	t.Tx.SetPattern(res.Pattern)
	if err := dpcd.Writeb(t.DPCD, dpcd.TrainingPatternSet,
		dpcd.PatternSet(res.Pattern)); err != nil {
		return t.phaseError(dptx.ChannelEqualization, 0, err)
	}
	interval := caps.EQInterval()
	for i := 1; i <= EQIterations; i++ {
		res.EQIterations = i
		fail := func(err error) error {
			return t.phaseError(dptx.ChannelEqualization, i, err)
		}
		if err := t.present(); err != nil {
			return err
		}
		st, err := dpcd.ReadLinkStatus(t.DPCD)
		if err != nil {
			return fail(err)
		}
		res.Signals = requested(&st, lanes)
		if err = t.drive(cfg, lanes, &res.Signals); err != nil {
			return fail(err)
		}
		if err = sleep(ctx, interval); err != nil {
			return fail(err)
		}
		if err = t.present(); err != nil {
			return err
		}
		if st, err = dpcd.ReadLinkStatus(t.DPCD); err != nil {
			return fail(err)
		}
		if st.EQDone(lanes) && st.Aligned() {
			return nil
		}
	}
	return t.phaseError(dptx.ChannelEqualization, EQIterations, nil)
}

// drive programs the local drivers then tells the sink what was set.
func (t *Trainer) drive(cfg dptx.LinkConfig, lanes dptx.LaneMask,
	s *[dptx.MaxLanes]dptx.Signal) error {
	if err := t.Signals.Program(cfg.Rate, lanes, *s); err != nil {
		return err
	}
	b := make([]byte, cfg.Lanes)
	for lane := range b {
		b[lane] = dpcd.LaneSet(s[lane])
	}
	return t.DPCD.WriteDPCD(dpcd.TrainingLane0Set, b)
}

// requested returns the sink's adjust requests trimmed to legal levels.
func requested(st *dpcd.LinkStatus,
	lanes dptx.LaneMask) (s [dptx.MaxLanes]dptx.Signal) {
	lanes.Foreach(func(lane int) {
		s[lane] = st.AdjustRequest(lane).Clamp()
	})
	return
}

// phaseError keeps fatal and disconnect errors as they are; anything else
// ends the phase.
func (t *Trainer) phaseError(phase dptx.Phase, i int, err error) error {
	if err == dptx.ErrNotConnected || dptx.IsFatal(err) {
		return err
	}
	return &dptx.TrainingError{Phase: phase, Iterations: i, Err: err}
}

func (t *Trainer) present() error {
	if t.Present != nil && !t.Present() {
		return dptx.ErrNotConnected
	}
	return nil
}

func (t *Trainer) crSettle() time.Duration {
	if t.CRSettle > 0 {
		return t.CRSettle
	}
	return DefaultCRSettle
}

// abort stops training patterns after a failure so the sink isn't left
// expecting them.
func (t *Trainer) abort() {
	t.Tx.SetPattern(dptx.PatternNone)
	if t.present() == nil {
		dpcd.Writeb(t.DPCD, dpcd.TrainingPatternSet,
			dpcd.PatternSet(dptx.PatternNone))
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}
