// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package fdttest assembles small flattened device tree blobs for tests.
package fdttest

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Node is a device tree node with raw property values.
type Node struct {
	Name     string
	Props    map[string][]byte
	Children []*Node
}

// Cells encodes big endian 32 bit cells.
func Cells(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint32(b[4*i:], x)
	}
	return b
}

// String encodes a NUL terminated string property.
func String(s string) []byte { return append([]byte(s), 0) }

const (
	beginNode = 1
	endNode   = 2
	prop      = 3
	end       = 9

	headerSize = 40
)

type builder struct {
	dt, strs bytes.Buffer
	offsets  map[string]int
}

func (b *builder) cell(v uint32) {
	binary.Write(&b.dt, binary.BigEndian, v)
}

func (b *builder) pad() {
	for b.dt.Len()%4 != 0 {
		b.dt.WriteByte(0)
	}
}

func (b *builder) str(s string) int {
	if off, found := b.offsets[s]; found {
		return off
	}
	off := b.strs.Len()
	b.strs.WriteString(s)
	b.strs.WriteByte(0)
	b.offsets[s] = off
	return off
}

func (b *builder) node(n *Node) {
	b.cell(beginNode)
	b.dt.WriteString(n.Name)
	b.dt.WriteByte(0)
	b.pad()
	names := make([]string, 0, len(n.Props))
	for name := range n.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := n.Props[name]
		b.cell(prop)
		b.cell(uint32(len(v)))
		b.cell(uint32(b.str(name)))
		b.dt.Write(v)
		b.pad()
	}
	for _, c := range n.Children {
		b.node(c)
	}
	b.cell(endNode)
}

// Blob returns the flattened tree rooted at root.
func Blob(root *Node) []byte {
	b := &builder{offsets: make(map[string]int)}
	b.node(root)
	b.cell(end)
	hdr := []uint32{
		0xd00dfeed,
		uint32(headerSize + b.dt.Len() + b.strs.Len()),
		headerSize,
		uint32(headerSize + b.dt.Len()),
		headerSize,
		17,
		16,
		0,
		uint32(b.strs.Len()),
		uint32(b.dt.Len()),
	}
	blob := Cells(hdr...)
	blob = append(blob, b.dt.Bytes()...)
	return append(blob, b.strs.Bytes()...)
}
