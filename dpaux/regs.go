// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dpaux

// AUX block registers, byte offsets from the block base.
const (
	Ctrl     = 0x00
	Timeout  = 0x04
	FifoCtrl = 0x08
	TxCtrl   = 0x0c
	IrqEvent = 0x10
	Retry1   = 0x18
	Retry2   = 0x1c
	TxReq    = 0x20
	TxData   = 0x24
	ReplyCmd = 0x28
	RxData   = 0x2c
	FifoPtr  = 0x30
)

// Ctrl bits.
const (
	AuxEn        = 1 << 0
	AuxTimeoutEn = 1 << 1
)

// FifoCtrl bits.
const (
	NaFifoRst      = 1 << 0
	I2CFifoRst     = 1 << 1
	ReadFailAutoEn = 1 << 2
)

// TxCtrl bits. The length field holds the payload size less one.
const (
	TxStart    = 1 << 0
	TxLenShift = 1
	TxLenMask  = 0xf << TxLenShift
	TxAddrOnly = 1 << 5
)

// IrqEvent bits, write one to clear.
const (
	IrqDone    = 1 << 0
	IrqRxError = 1 << 1
	IrqNack    = 1 << 2
	IrqTimeout = 1 << 3
	IrqAll     = IrqDone | IrqRxError | IrqNack | IrqTimeout
)

// Retry1 bits.
const (
	RetryLock = 1 << 6
	RetryEn   = 1 << 7
)

// Retry2 bits.
const (
	RetryTimeoutEn = 1 << 0
	RetryErrorEn   = 1 << 1
)

// TxReq fields: command nibble above the 20 bit address.
const (
	TxReqCmdShift = 20
	AddressMask   = 0xfffff
)

// FifoPtr fields.
const (
	WrPtrMask  = 0x1f
	RdPtrShift = 8
	RdPtrMask  = 0x1f << RdPtrShift
)
