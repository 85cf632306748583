// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/nanoscopic/dapico-tools/dapico/internal/plan"
)

// buildELF assembles a minimal ELF32 LE image with the program-header
// table right after the header and the payloads packed behind it.
func buildELF(entry uint32, addrs []uint32, payloads [][]byte) []byte {
	const headerSize = 52
	le := binary.LittleEndian
	buf := make([]byte, headerSize+32*len(addrs))
	copy(buf, []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 40)
	le.PutUint32(buf[20:], 1)
	le.PutUint32(buf[24:], entry)
	le.PutUint32(buf[28:], headerSize)
	le.PutUint16(buf[42:], 32)
	le.PutUint16(buf[44:], uint16(len(addrs)))
	off := uint32(len(buf))
	for i, addr := range addrs {
		e := buf[headerSize+32*i:]
		le.PutUint32(e[0:], 1) // PT_LOAD
		le.PutUint32(e[4:], off)
		le.PutUint32(e[8:], addr)
		le.PutUint32(e[12:], addr)
		le.PutUint32(e[16:], uint32(len(payloads[i])))
		le.PutUint32(e[20:], uint32(len(payloads[i])))
		off += uint32(len(payloads[i]))
	}
	for _, p := range payloads {
		buf = append(buf, p...)
	}
	return buf
}

func TestReadELF(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{5, 6, 7, 8, 9}
	img := buildELF(0x20000000, []uint32{0x20000000, 0x20001000}, [][]byte{a, b})
	segs, entry, err := ReadELF(bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	if entry != 0x20000000 {
		t.Errorf("entry = %#x", entry)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments", len(segs))
	}
	if segs[0].Addr() != 0x20000000 || !bytes.Equal(segs[0].Data, a) {
		t.Errorf("segment 0 = %#x %x", segs[0].Addr(), segs[0].Data)
	}
	if segs[1].Addr() != 0x20001000 || !bytes.Equal(segs[1].Data, b) {
		t.Errorf("segment 1 = %#x %x", segs[1].Addr(), segs[1].Data)
	}
}

func hexRecord(addr uint16, typ byte, data []byte) string {
	rec := []byte{byte(len(data)), byte(addr >> 8), byte(addr), typ}
	rec = append(rec, data...)
	var sum byte
	for _, b := range rec {
		sum += b
	}
	rec = append(rec, -sum)
	return ":" + strings.ToUpper(hex.EncodeToString(rec))
}

func TestReadHex(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	src := strings.Join([]string{
		hexRecord(0, 4, []byte{0x20, 0x00}),                   // extended linear address 0x2000
		hexRecord(0x0100, 0, data),                            // data at 0x20000100
		hexRecord(0, 5, []byte{0x20, 0x00, 0x01, 0x00}),       // start address
		hexRecord(0, 1, nil),                                  // EOF
	}, "\n") + "\n"

	segs, entry, err := ReadHex(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if entry != 0x20000100 {
		t.Errorf("entry = %#x, want 0x20000100", entry)
	}
	if len(segs) != 1 {
		t.Fatalf("got %d segments", len(segs))
	}
	if segs[0].Addr() != 0x20000100 || !bytes.Equal(segs[0].Data, data) {
		t.Errorf("segment = %#x %x", segs[0].Addr(), segs[0].Data)
	}
}

func TestFlatten(t *testing.T) {
	segs := []plan.Segment{
		{Paddr: 0x1000010a, Data: []byte{'x', 'y'}},
		{Paddr: 0x10000100, Data: []byte{'a', 'b', 'c', 'd'}},
	}
	addr, data, err := Flatten(segs, 0xff)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x10000100 {
		t.Errorf("base = %#x", addr)
	}
	want := append([]byte{'a', 'b', 'c', 'd'}, bytes.Repeat([]byte{0xff}, 6)...)
	want = append(want, 'x', 'y')
	if !bytes.Equal(data, want) {
		t.Errorf("data = %x, want %x", data, want)
	}
}

func TestFlattenOverlap(t *testing.T) {
	segs := []plan.Segment{
		{Paddr: 0x10000100, Data: make([]byte, 8)},
		{Paddr: 0x10000104, Data: make([]byte, 8)},
	}
	if _, _, err := Flatten(segs, 0xff); err == nil {
		t.Error("overlapping segments flattened")
	}

	if _, _, err := Flatten(nil, 0xff); err == nil {
		t.Error("empty segment list flattened")
	}
}
