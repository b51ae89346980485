// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hpd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platinasystems/dptx/reg"
)

type pin struct {
	v   bool
	err error
}

func (p *pin) Value() (bool, error) { return p.v, p.err }

func TestGPIOSource(t *testing.T) {
	var now time.Time
	p := &pin{}
	s := &GPIOSource{Pin: p, now: func() time.Time { return now }}
	step := func(level bool, d time.Duration, want Event) {
		t.Helper()
		p.v = level
		now = now.Add(d)
		ev, ok, err := s.Poll()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			ev = 0
		}
		if ev != want {
			t.Fatalf("level %v after %v: %v, want %v", level, d, ev, want)
		}
	}
	step(false, 0, 0)
	step(true, time.Millisecond, Connected)
	step(true, time.Millisecond, 0)
	// interrupt: low for 2ms
	step(false, time.Millisecond, 0)
	step(false, time.Millisecond, 0)
	step(true, time.Millisecond, ShortPulse)
	// unplug: low past the threshold
	step(false, time.Millisecond, 0)
	step(false, 3*time.Millisecond, 0)
	step(false, 3*time.Millisecond, Disconnected)
	step(false, time.Millisecond, 0)
	step(true, time.Millisecond, Connected)

	p.err = errors.New("gpio gone")
	if _, _, err := s.Poll(); err == nil {
		t.Error("pin error dropped")
	}
}

func TestRegisterSource(t *testing.T) {
	spy := &reg.Spy{}
	spy.OnWrite = func(addr, v uint32) {
		if addr == HpdIrq {
			spy.Poke(addr, 0)
		}
	}
	s := NewRegisterSource(spy)
	if v := spy.Read(HpdCtrl); v&CtrlEn == 0 {
		t.Fatalf("detector not enabled: %#x", v)
	}
	if v := spy.Read(HpdIrqEn); v != IrqAll {
		t.Fatalf("irq enable %#x", v)
	}
	poll := func(ctrl, irq uint32, want Event) {
		t.Helper()
		spy.Poke(HpdCtrl, CtrlEn|ctrl)
		spy.Poke(HpdIrq, irq)
		ev, ok, _ := s.Poll()
		if !ok {
			ev = 0
		}
		if ev != want {
			t.Fatalf("ctrl %#x irq %#x: %v, want %v", ctrl, irq, ev, want)
		}
		if v := spy.Read(HpdIrq); v != 0 {
			t.Fatalf("irq %#x not cleared", v)
		}
	}
	poll(0, 0, 0)
	poll(CtrlDebounced, IrqLHPD, Connected)
	poll(CtrlDebounced, 0, 0)
	poll(CtrlDebounced, IrqShort, ShortPulse)
	poll(CtrlDebounced, IrqUHPD|IrqShort, Connected)
	poll(0, IrqUHPD, Disconnected)
	poll(0, IrqShort, 0)

	spy = &reg.Spy{}
	spy.Poke(HpdCtrl, CtrlDebounced)
	if ev, ok, _ := NewRegisterSource(spy).Poll(); !ok || ev != Connected {
		t.Errorf("already plugged at start: %v %v", ev, ok)
	}
}

type script struct {
	events []Event
}

func (s *script) Poll() (Event, bool, error) {
	if len(s.events) == 0 {
		return 0, false, nil
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, ev != 0, nil
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Watch(ctx, &script{events: []Event{Connected, 0, ShortPulse,
		Disconnected}}, 100*time.Microsecond)
	for _, want := range []Event{Connected, ShortPulse, Disconnected} {
		select {
		case ev := <-ch:
			if ev != want {
				t.Fatalf("%v, want %v", ev, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for ", want)
		}
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("event after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

type handler struct {
	calls []string
	err   error
}

func (h *handler) HandleShortPulse(context.Context) (bool, error) {
	h.calls = append(h.calls, "short")
	return false, h.err
}

func (h *handler) HandleLongPulse(_ context.Context, connected bool) error {
	if connected {
		h.calls = append(h.calls, "connect")
	} else {
		h.calls = append(h.calls, "disconnect")
	}
	return h.err
}

func TestDispatch(t *testing.T) {
	ch := make(chan Event, 4)
	ch <- Connected
	ch <- ShortPulse
	ch <- Disconnected
	close(ch)
	h := &handler{err: errors.New("logged only")}
	if err := Dispatch(context.Background(), ch, h); err != nil {
		t.Fatal(err)
	}
	want := []string{"connect", "short", "disconnect"}
	if len(h.calls) != len(want) {
		t.Fatalf("calls %v", h.calls)
	}
	for i := range want {
		if h.calls[i] != want[i] {
			t.Errorf("call %d: %s, want %s", i, h.calls[i], want[i])
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Dispatch(ctx, make(chan Event), h); err != context.Canceled {
		t.Errorf("got %v, want %v", err, context.Canceled)
	}
}
