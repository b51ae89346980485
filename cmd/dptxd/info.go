// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dptxd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/dptx/link"
	"github.com/platinasystems/log"
	"github.com/platinasystems/redis/rpc/args"
	"github.com/platinasystems/redis/rpc/reply"
)

// Enable attempts after a transient error.
const DefaultRetries = 4

type printer interface {
	Print(...interface{}) (int, error)
}

// Info is the daemon's RPC receiver: redis hset of the port's writable
// fields, raw AUX access and EDID reads.
type Info struct {
	mutex  sync.Mutex
	rpc    *atsock.RpcServer
	pub    printer
	ctx    context.Context
	cancel context.CancelFunc
	port   *link.Port
	last   map[string]string

	request link.Request
	enabled bool

	// Retry paces enable attempts after transient errors.
	Retry   *backoff.Backoff
	Retries int
}

func (i *Info) init(ctx context.Context, port *link.Port, pub printer) {
	i.ctx = ctx
	i.port = port
	i.pub = pub
	i.last = make(map[string]string)
	i.enabled = true
	if i.Retry == nil {
		i.Retry = &backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    5 * time.Second,
			Factor: 2,
		}
	}
	if i.Retries == 0 {
		i.Retries = DefaultRetries
	}
}

// Hset accepts writes to PORT.enable, PORT.retrain, PORT.config and
// PORT.target.{pixel-clock,bpc,color}.
func (i *Info) Hset(args args.Hset, reply *reply.Hset) error {
	field := strings.TrimPrefix(args.Field, i.port.Name+".")
	if field == args.Field {
		return fmt.Errorf("cannot hset: %s", args.Field)
	}
	value := string(args.Value)
	var err error
	switch field {
	case "enable":
		var enable bool
		if enable, err = strconv.ParseBool(value); err != nil {
			return err
		}
		i.mutex.Lock()
		i.enabled = enable
		i.mutex.Unlock()
		if enable {
			err = i.bringUp(i.ctx)
		} else {
			err = i.port.Disable()
		}
	case "retrain":
		err = i.bringUp(i.ctx)
	case "config":
		err = i.setConfig(value)
	case "target.pixel-clock", "target.bpc", "target.color":
		err = i.setTarget(strings.TrimPrefix(field, "target."), value)
	default:
		return fmt.Errorf("cannot hset: %s", args.Field)
	}
	if err == nil {
		*reply = 1
	}
	return err
}

func (i *Info) setTarget(name, value string) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	t := &i.request.Target
	switch name {
	case "pixel-clock":
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return err
		}
		t.PixelClock = uint32(v)
	case "bpc":
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return err
		}
		t.BPC = uint8(v)
	case "color":
		for c := dptx.RGB; c <= dptx.YCbCr420; c++ {
			if c.String() == value {
				t.Color = c
				return nil
			}
		}
		return fmt.Errorf("%s: unknown color", value)
	}
	return nil
}

// setConfig parses "RATE LANES" or "auto".
func (i *Info) setConfig(value string) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if value == "auto" {
		i.request.Config = nil
		return nil
	}
	f := strings.Fields(value)
	if len(f) != 2 {
		return fmt.Errorf("%q: want RATE LANES or auto", value)
	}
	rate, found := dptx.RateByName[strings.ToLower(f[0])]
	if !found {
		return fmt.Errorf("%s: unknown rate", f[0])
	}
	n, err := strconv.Atoi(f[1])
	if err != nil {
		return err
	}
	lanes := dptx.LaneCount(n)
	if !lanes.Valid() {
		return fmt.Errorf("%d: invalid lane count", n)
	}
	i.request.Config = &dptx.LinkConfig{Rate: rate, Lanes: lanes}
	return nil
}

// Aux runs one AUX transaction on behalf of a client.
func (i *Info) Aux(req dpaux.Request, reply *dpaux.Reply) error {
	r, err := i.port.AuxTransfer(req)
	*reply = r
	return err
}

// EDID reads the sink's EDID.
func (i *Info) EDID(_ struct{}, reply *[]byte) (err error) {
	*reply, err = i.port.EDID()
	return
}

// bringUp enables the link if the port is wanted up, retrying errors that
// a sink still waking from sleep may give.
func (i *Info) bringUp(ctx context.Context) error {
	i.mutex.Lock()
	enabled, req := i.enabled, i.request
	i.mutex.Unlock()
	if !enabled || !i.port.Connected() {
		return nil
	}
	b := *i.Retry
	b.Reset()
	for attempt := 0; ; attempt++ {
		_, err := i.port.Enable(ctx, req)
		if err == nil || !transient(err) || attempt >= i.Retries {
			return err
		}
		d := b.Duration()
		log.Print("daemon", "warning", i.port.Name, ": ", err,
			", retry in ", d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

func transient(err error) bool {
	switch err {
	case dptx.ErrNoCapability, dptx.ErrTimeout, dptx.ErrDefer,
		dptx.ErrChannel, dptx.ErrNack:
		return true
	}
	return false
}

// update publishes link status fields that changed.
func (i *Info) update() {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	st := i.port.Status()
	prefix := st.Port + "."
	fields := map[string]string{
		"state":         st.State.String(),
		"session":       st.Session,
		"active":        strconv.FormatBool(st.Active),
		"rate":          "",
		"lanes":         "",
		"fallback":      strconv.FormatBool(st.Fallback),
		"fallback.step": strconv.Itoa(st.FallbackSteps),
		"override":      strconv.FormatBool(st.Override),
		"sink.count":    strconv.Itoa(int(st.SinkCount)),
		"aux.escalated": strconv.FormatBool(st.Escalated),
	}
	if st.Active {
		fields["rate"] = st.Config.Rate.String()
		fields["lanes"] = strconv.Itoa(int(st.Config.Lanes))
		st.Config.Lanes.Mask().Foreach(func(lane int) {
			fields[fmt.Sprint("lane", lane, ".signal")] =
				st.Signals[lane].String()
		})
	}
	for k, v := range fields {
		k = prefix + k
		if last, found := i.last[k]; found && last == v {
			continue
		}
		i.pub.Print(k, ": ", v)
		i.last[k] = v
	}
}

// handler follows hot plug, bringing the link up on connect.
type handler struct{ *Info }

func (h handler) HandleLongPulse(ctx context.Context, connected bool) error {
	err := h.port.HandleLongPulse(ctx, connected)
	if !connected || (err != nil && err != dptx.ErrNoCapability) {
		return err
	}
	return h.bringUp(ctx)
}

func (h handler) HandleShortPulse(ctx context.Context) (bool, error) {
	return h.port.HandleShortPulse(ctx)
}
