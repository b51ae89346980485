// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ddc

import (
	"bytes"
	"testing"

	"github.com/platinasystems/dptx"
	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/dptx/internal/fakesink"
)

func block(fill byte) []byte {
	b := make([]byte, BlockSize)
	for i := range b {
		b[i] = fill + byte(i)
	}
	b[BlockSize-1] = 0
	var sum byte
	for _, v := range b {
		sum += v
	}
	b[BlockSize-1] = -sum
	return b
}

func image(extensions int) []byte {
	base := block(0x10)
	copy(base, header)
	base[extensionCount] = byte(extensions)
	base[BlockSize-1] = 0
	var sum byte
	for _, v := range base {
		sum += v
	}
	base[BlockSize-1] = -sum
	b := base
	for i := 0; i < extensions; i++ {
		b = append(b, block(byte(0x40*i))...)
	}
	return b
}

func newEngine(img []byte) (*dpaux.Engine, *fakesink.Sink) {
	sink := fakesink.New(0, fakesink.Caps(dptx.HBR2, 4, false, false),
		fakesink.Behavior{})
	sink.SetI2C(Addr, img)
	return dpaux.New(sink, sink.Connected), sink
}

func TestRead(t *testing.T) {
	img := image(1)
	e, sink := newEngine(img)
	edid, err := Read(e)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(edid, img) {
		t.Errorf("read % x", edid)
	}
	for _, req := range sink.Requests {
		if req.Address == SegmentAddr {
			t.Error("segment pointer written for block 1")
		}
	}
}

func TestBadBlocks(t *testing.T) {
	img := image(0)
	img[0] = 0x55
	e, _ := newEngine(img)
	if _, err := Read(e); err != ErrHeader && err != ErrChecksum {
		t.Errorf("bad header: %v", err)
	}

	img = image(1)
	img[BlockSize+5]++
	e, _ = newEngine(img)
	if _, err := Read(e); err != ErrChecksum {
		t.Errorf("got %v, want %v", err, ErrChecksum)
	}
}

func TestNoSink(t *testing.T) {
	e, sink := newEngine(image(0))
	sink.SetI2C(Addr, nil)
	sink.SetConnected(false)
	if _, err := Read(e); err != dptx.ErrNotConnected {
		t.Errorf("got %v, want %v", err, dptx.ErrNotConnected)
	}
}

func TestValid(t *testing.T) {
	if !Valid(block(3)) {
		t.Error("valid block rejected")
	}
	if Valid(block(3)[:64]) {
		t.Error("short block accepted")
	}
}
