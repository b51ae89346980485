// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package hpd turns a hot-plug detect signal into a stream of connect,
// disconnect and short pulse events. Register and gpio sources feed the
// same channel so a port handles them identically.
package hpd

import (
	"context"
	"time"

	"github.com/platinasystems/log"
)

type Event uint8

const (
	Connected Event = iota + 1
	Disconnected
	ShortPulse
)

func (e Event) String() string {
	switch e {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case ShortPulse:
		return "short-pulse"
	}
	return "unknown"
}

// Source is sampled by Watch. Poll returns false if nothing happened
// since the last call.
type Source interface {
	Poll() (Event, bool, error)
}

// DefaultInterval is the poll period; it must stay well below ShortPulse.
const DefaultInterval = time.Millisecond

// Watch polls src every interval until ctx is done, then closes the
// returned channel.
func Watch(ctx context.Context, src Source, every time.Duration) <-chan Event {
	if every <= 0 {
		every = DefaultInterval
	}
	ch := make(chan Event, 4)
	go func() {
		defer close(ch)
		t := time.NewTicker(every)
		defer t.Stop()
		var lastErr string
		for {
			ev, ok, err := src.Poll()
			if err != nil {
				if s := err.Error(); s != lastErr {
					log.Print("daemon", "err", "hpd: ", err)
					lastErr = s
				}
			} else {
				lastErr = ""
			}
			if ok {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return ch
}

// Handler consumes events; link.Port is one.
type Handler interface {
	HandleShortPulse(ctx context.Context) (bool, error)
	HandleLongPulse(ctx context.Context, connected bool) error
}

// Dispatch delivers events to h until the channel closes or ctx is done.
// Handler errors are logged, not returned.
func Dispatch(ctx context.Context, events <-chan Event, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			var err error
			switch ev {
			case Connected, Disconnected:
				err = h.HandleLongPulse(ctx, ev == Connected)
			case ShortPulse:
				_, err = h.HandleShortPulse(ctx)
			}
			if err != nil && ctx.Err() == nil {
				log.Print("daemon", "warning", "hpd: ", ev, ": ", err)
			}
		}
	}
}
