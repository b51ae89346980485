// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dptxd is the DisplayPort transmitter daemon. It owns the port's
// registers, follows hot plug, trains the link on request and publishes
// link state to redis.
package dptxd

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/rpc"
	"sync"
	"time"

	"github.com/platinasystems/atsock"
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/board"
	"github.com/platinasystems/dptx/cmd"
	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/dptx/hpd"
	"github.com/platinasystems/dptx/lang"
	"github.com/platinasystems/dptx/link"
	"github.com/platinasystems/dptx/negotiate"
	"github.com/platinasystems/dptx/reg"
	"github.com/platinasystems/dptx/signal"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"
)

const Name = "dptxd"

type Command struct {
	Info
	// Init, if set, adjusts Config before the hardware is opened.
	Init func()
	init sync.Once

	Config *board.Config
}

func (*Command) String() string { return Name }

func (*Command) Usage() string { return Name + " [-edp] [-dtb FILE] [-node NAME]" }

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "displayport transmitter daemon, publishes to redis",
	}
}

func (*Command) Kind() cmd.Kind { return cmd.Daemon }

func (c *Command) Main(args ...string) error {
	flag, args := flags.New(args, "-edp")
	parm, args := parms.New(args, "-dtb", "-node")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	if c.Config == nil {
		topo := dptx.FullSize
		if flag.ByName["-edp"] {
			topo = dptx.Embedded
		}
		c.Config = board.Default(topo)
	}
	if s := parm.ByName["-dtb"]; len(s) > 0 {
		c.Config.DTB = s
	}
	if s := parm.ByName["-node"]; len(s) > 0 {
		c.Config.Node = s
	}
	if c.Init != nil {
		c.init.Do(c.Init)
	}

	err := redis.IsReady()
	if err != nil {
		return err
	}

	port, src, mem, err := open(c.Config)
	if err != nil {
		return err
	}
	defer mem.Close()

	pub, err := publisher.New()
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.cancel = cancel
	c.Info.init(ctx, port, pub)
	c.Info.request.Target = c.Config.Target

	if c.rpc, err = atsock.NewRpcServer(Name); err != nil {
		return err
	}
	defer c.rpc.Close()

	rpc.Register(&c.Info)
	err = redis.Assign(redis.DefaultHash+":"+port.Name+".", Name, "Info")
	if err != nil {
		return err
	}

	events := hpd.Watch(ctx, src, c.Config.HPDPoll)
	go hpd.Dispatch(ctx, events, handler{&c.Info})

	t := time.NewTicker(c.Config.Publish)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.update()
		}
	}
}

func (c *Command) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// open maps the register window and assembles the port described by cfg.
func open(cfg *board.Config) (*link.Port, hpd.Source, io.Closer, error) {
	dtb, err := ioutil.ReadFile(cfg.DTB)
	if err != nil {
		return nil, nil, nil, err
	}
	if err = cfg.Load(dtb); err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %v", cfg.DTB, err)
	}
	tab, err := signal.LoadTable(dtb, cfg.Node)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %v", cfg.DTB, err)
	}
	mem, err := reg.OpenDevmem(uintptr(cfg.Base), uintptr(cfg.Size))
	if err != nil {
		return nil, nil, nil, err
	}
	port, src, err := assemble(cfg, mem, tab)
	if err != nil {
		mem.Close()
		return nil, nil, nil, err
	}
	return port, src, mem, nil
}

// assemble builds the port and its hot-plug source over a register window.
func assemble(cfg *board.Config, mem reg.Surface,
	tab *signal.Table) (*link.Port, hpd.Source, error) {
	window := func(off uint32) reg.Surface {
		return reg.Window{Surface: mem, Base: off}
	}
	var ctl signal.Controller
	if cfg.Topology.Name == dptx.Embedded.Name {
		ctl = &signal.Embedded{
			Mac:   window(cfg.Layout.Mac),
			Phy:   window(cfg.Layout.Phy),
			Table: tab,
		}
	} else {
		ctl = &signal.FullSize{
			Mac:     window(cfg.Layout.Mac),
			Phy:     window(cfg.Layout.Phy),
			Table:   tab,
			Flipped: cfg.LaneFlip,
		}
	}
	if cfg.Redriver != nil {
		ctl = &signal.Redriver{Bus: *cfg.Redriver, Table: tab, Next: ctl}
	}
	port := link.New(cfg.Port, cfg.Topology, window(cfg.Layout.Aux),
		window(cfg.Layout.Mac), ctl, negotiate.NewRegistry(cfg.Limits),
		dpaux.DDCCIWrite)
	port.MAC.Lanes = tab.Lanes
	if cfg.LaneFlip && cfg.Topology.Name != dptx.Embedded.Name {
		port.MAC.Lanes = tab.Flipped
	}

	var src hpd.Source
	switch cfg.HPD {
	case board.HPDGPIO:
		s, found := hpd.NewGPIOSource(cfg.HPDPin)
		if !found {
			return nil, nil, &dptx.ConfigMissingError{Key: cfg.HPDPin}
		}
		src = s
	default:
		src = hpd.NewRegisterSource(window(cfg.Layout.Hpd))
	}
	return port, src, nil
}
