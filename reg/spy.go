// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package reg

import (
	"fmt"
	"sync"
)

// Access is one recorded register write.
type Access struct {
	Addr, Value uint32
}

func (a Access) String() string { return fmt.Sprintf("%#05x=%#x", a.Addr, a.Value) }

// Spy is an in-memory Surface that records every write. OnWrite, if set,
// runs after the value is stored and may update other registers through
// Poke to model hardware side effects.
type Spy struct {
	mutex   sync.Mutex
	regs    map[uint32]uint32
	Writes  []Access
	OnWrite func(addr, v uint32)
}

func (s *Spy) Read(addr uint32) uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.regs[addr]
}

func (s *Spy) Write(addr, v uint32) {
	s.mutex.Lock()
	s.poke(addr, v)
	s.Writes = append(s.Writes, Access{addr, v})
	s.mutex.Unlock()
	if s.OnWrite != nil {
		s.OnWrite(addr, v)
	}
}

// Poke stores a value without recording a write.
func (s *Spy) Poke(addr, v uint32) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.poke(addr, v)
}

func (s *Spy) poke(addr, v uint32) {
	if s.regs == nil {
		s.regs = make(map[uint32]uint32)
	}
	s.regs[addr] = v
}

// NWrites returns the number of recorded writes.
func (s *Spy) NWrites() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.Writes)
}

// Snapshot copies the current register contents.
func (s *Spy) Snapshot() map[uint32]uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	m := make(map[uint32]uint32, len(s.regs))
	for k, v := range s.regs {
		m[k] = v
	}
	return m
}

// Reset forgets recorded writes but keeps register contents.
func (s *Spy) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Writes = s.Writes[:0]
}
