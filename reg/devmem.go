// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

//go:build linux

package reg

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const DevMem = "/dev/mem"

// Devmem is a Surface over a physical register window mapped from /dev/mem.
type Devmem struct {
	Base uintptr
	mem  []byte
}

// OpenDevmem maps size bytes of physical memory starting at the page
// aligned base.
func OpenDevmem(base, size uintptr) (*Devmem, error) {
	if base&uintptr(os.Getpagesize()-1) != 0 {
		return nil, fmt.Errorf("%#x: base not page aligned", base)
	}
	f, err := os.OpenFile(DevMem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mem, err := unix.Mmap(int(f.Fd()), int64(base), int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %#x: %v", base, err)
	}
	return &Devmem{Base: base, mem: mem}, nil
}

func (d *Devmem) word(addr uint32) *uint32 {
	if addr&3 != 0 || int(addr)+4 > len(d.mem) {
		panic(fmt.Errorf("%#x: register offset out of window", addr))
	}
	return (*uint32)(unsafe.Pointer(&d.mem[addr]))
}

func (d *Devmem) Read(addr uint32) uint32 {
	return atomic.LoadUint32(d.word(addr))
}

func (d *Devmem) Write(addr, v uint32) {
	atomic.StoreUint32(d.word(addr), v)
}

func (d *Devmem) Close() error {
	if d.mem == nil {
		return nil
	}
	err := unix.Munmap(d.mem)
	d.mem = nil
	return err
}
