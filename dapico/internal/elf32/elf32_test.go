// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf32

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// buildELF assembles a minimal ELF32 LE image: the 52-byte header, the
// program-header table right after it and the segment payloads packed
// behind the table.
func buildELF(entry uint32, phs []ProgHeader, payload []byte) []byte {
	le := binary.LittleEndian
	buf := make([]byte, headerSize+32*len(phs))
	copy(buf, []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})
	le.PutUint16(buf[16:], 2)  // ET_EXEC
	le.PutUint16(buf[18:], 40) // EM_ARM
	le.PutUint32(buf[20:], 1)
	le.PutUint32(buf[offEntry:], entry)
	le.PutUint32(buf[offPhoff:], headerSize)
	le.PutUint16(buf[40:], headerSize)
	le.PutUint16(buf[offPhentsize:], 32)
	le.PutUint16(buf[offPhnum:], uint16(len(phs)))
	for i, p := range phs {
		e := buf[headerSize+32*i:]
		le.PutUint32(e[0:], p.Type)
		le.PutUint32(e[4:], p.Off)
		le.PutUint32(e[8:], p.Vaddr)
		le.PutUint32(e[12:], p.Paddr)
		le.PutUint32(e[16:], p.Filesz)
		le.PutUint32(e[20:], p.Memsz)
		le.PutUint32(e[24:], p.Flags)
		le.PutUint32(e[28:], p.Align)
	}
	return append(buf, payload...)
}

func TestRead(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	off := uint32(headerSize + 32)
	img := buildELF(0x20000100, []ProgHeader{
		{Type: ProgLoad, Off: off, Vaddr: 0x20000100, Paddr: 0x20000100,
			Filesz: 512, Memsz: 512, Flags: 5, Align: 4},
	}, data)

	f, err := Read(bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	if f.Header.Entry != 0x20000100 {
		t.Errorf("entry = %#x, want 0x20000100", f.Header.Entry)
	}
	if f.Header.Phnum != 1 || f.Header.Phentsize != 32 {
		t.Errorf("phnum = %d, phentsize = %d", f.Header.Phnum, f.Header.Phentsize)
	}
	if len(f.Progs) != 1 {
		t.Fatalf("got %d program headers, want 1", len(f.Progs))
	}
	p := &f.Progs[0]
	if !p.IsLoad() {
		t.Error("segment not recognized as loadable")
	}
	if p.LoadAddr() != 0x20000100 {
		t.Errorf("load addr = %#x", p.LoadAddr())
	}
	got, err := f.Content(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("segment content does not match the image bytes")
	}
}

func TestLoadAddrFallsBackToVaddr(t *testing.T) {
	p := ProgHeader{Type: ProgLoad, Vaddr: 0x20001000, Filesz: 4}
	if p.LoadAddr() != 0x20001000 {
		t.Errorf("load addr = %#x, want vaddr", p.LoadAddr())
	}
	p.Paddr = 0x10001000
	if p.LoadAddr() != 0x10001000 {
		t.Errorf("load addr = %#x, want paddr", p.LoadAddr())
	}
}

func TestReadErrors(t *testing.T) {
	valid := buildELF(0, []ProgHeader{
		{Type: ProgLoad, Off: 84, Filesz: 4, Vaddr: 0x20000000},
	}, []byte{1, 2, 3, 4})

	corrupt := func(mut func(b []byte)) []byte {
		b := bytes.Clone(valid)
		mut(b)
		return b
	}
	le := binary.LittleEndian

	tests := []struct {
		name string
		img  []byte
		want error
	}{
		{"empty", nil, ErrRead},
		{"truncated header", valid[:40], ErrFormat},
		{"bad magic", corrupt(func(b []byte) { b[0] = 0x7e }), ErrFormat},
		{"elf64", corrupt(func(b []byte) { b[4] = 2 }), ErrFormat},
		{"big endian", corrupt(func(b []byte) { b[5] = 2 }), ErrFormat},
		{"zero phentsize", corrupt(func(b []byte) { le.PutUint16(b[offPhentsize:], 0) }), ErrFormat},
		{"phoff in ident", corrupt(func(b []byte) { le.PutUint32(b[offPhoff:], 8) }), ErrFormat},
		{"ph table truncated", corrupt(func(b []byte) { le.PutUint16(b[offPhnum:], 100) }), ErrFormat},
	}
	for _, tc := range tests {
		_, err := Read(bytes.NewReader(tc.img))
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestContentErrors(t *testing.T) {
	img := buildELF(0, []ProgHeader{
		{Type: ProgLoad, Off: 84, Filesz: 100, Vaddr: 0x20000000},
	}, []byte{1, 2, 3, 4}) // only 4 bytes behind the table
	f, err := Read(bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Content(&f.Progs[0]); !errors.Is(err, ErrFormat) {
		t.Errorf("truncated segment: err = %v, want %v", err, ErrFormat)
	}

	empty := ProgHeader{Type: ProgLoad, Vaddr: 0x20000000}
	got, err := f.Content(&empty)
	if err != nil || len(got) != 0 {
		t.Errorf("empty segment: content = %v, %v", got, err)
	}
}
