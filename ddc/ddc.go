// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package ddc fetches the sink's EDID over i2c-over-AUX. The blocks are
// returned as opaque bytes; only the header and checksums are checked.
package ddc

import (
	"errors"

	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/log"
)

const (
	Addr        = 0x50
	SegmentAddr = 0x30
	BlockSize   = 128

	// MaxExtensions bounds how many extension blocks are fetched.
	MaxExtensions = 7

	extensionCount = 126
)

var (
	ErrHeader   = errors.New("edid: bad header")
	ErrChecksum = errors.New("edid: bad checksum")
)

var header = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// Read returns the base block followed by its extensions.
func Read(t dpaux.Transferer) ([]byte, error) {
	edid := make([]byte, BlockSize)
	if err := readBlock(t, 0, edid); err != nil {
		return nil, err
	}
	for i := range header {
		if edid[i] != header[i] {
			return nil, ErrHeader
		}
	}
	n := int(edid[extensionCount])
	if n > MaxExtensions {
		log.Print("daemon", "warning", "edid: reading ", MaxExtensions,
			" of ", n, " extensions")
		n = MaxExtensions
	}
	for block := 1; block <= n; block++ {
		b := make([]byte, BlockSize)
		if err := readBlock(t, block, b); err != nil {
			return nil, err
		}
		edid = append(edid, b...)
	}
	return edid, nil
}

// Valid checks one block's checksum.
func Valid(b []byte) bool {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return len(b) == BlockSize && sum == 0
}

func readBlock(t dpaux.Transferer, block int, b []byte) error {
	if seg := block / 2; seg > 0 {
		if _, err := dpaux.Exchange(t, dpaux.Request{
			Command: dpaux.I2CWrite | dpaux.MOT,
			Address: SegmentAddr,
			Data:    []byte{byte(seg)},
		}); err != nil {
			return err
		}
	}
	if err := dpaux.ReadI2C(t, Addr, byte(block%2*BlockSize), b); err != nil {
		return err
	}
	if !Valid(b) {
		return ErrChecksum
	}
	return nil
}
