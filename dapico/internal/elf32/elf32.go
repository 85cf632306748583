// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elf32 reads 32-bit little-endian ELF executables at the
// program-header level. It decodes only what a boot loader needs: the
// entry point, the program-header table and the file bytes backing the
// loadable segments. Sections, symbols and relocations are ignored.
package elf32

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrFormat reports a malformed or unsupported ELF image.
	ErrFormat = errors.New("bad ELF format")

	// ErrRead reports a failure drawing bytes from the image source.
	ErrRead = errors.New("read failed")
)

// Field offsets in the ELF32 header.
const (
	headerSize = 52
	identSize  = 16

	offEntry     = 24
	offPhoff     = 28
	offPhentsize = 42
	offPhnum     = 44
)

// ProgLoad is the program-header type of a loadable segment.
const ProgLoad = 1

type Header struct {
	Entry     uint32
	Phoff     uint32
	Phentsize uint16
	Phnum     uint16
}

// A ProgHeader is one entry of the program-header table, the first
// 32 bytes of the ELF32 entry format.
type ProgHeader struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

// IsLoad reports whether the segment carries file bytes to place in
// device memory.
func (p *ProgHeader) IsLoad() bool {
	return p.Type == ProgLoad && p.Filesz > 0
}

// LoadAddr returns the address the segment is placed at: Paddr when
// non-zero, Vaddr otherwise. Zero means the segment has no usable load
// address.
func (p *ProgHeader) LoadAddr() uint32 {
	if p.Paddr != 0 {
		return p.Paddr
	}
	return p.Vaddr
}

// A File is an ELF image held fully in memory.
type File struct {
	Header Header
	Progs  []ProgHeader

	data []byte
}

func formatErr(what string) error {
	return fmt.Errorf("elf32: %s: %w", what, ErrFormat)
}

// Read drains r into memory and decodes the ELF32 header and the whole
// program-header table.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("elf32: %w: %w", ErrRead, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("elf32: empty file: %w", ErrRead)
	}
	return parse(data)
}

// Open reads the named file as an ELF32 image.
func Open(name string) (*File, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("elf32: %w: %w", ErrRead, err)
	}
	defer r.Close()
	return Read(r)
}

func parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, formatErr("header truncated")
	}
	if data[0] != 0x7f || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, formatErr("missing magic")
	}
	if data[4] != 1 { // ELFCLASS32
		return nil, formatErr("unsupported class")
	}
	if data[5] != 1 { // ELFDATA2LSB
		return nil, formatErr("unsupported endianness")
	}

	le := binary.LittleEndian
	f := &File{
		Header: Header{
			Entry:     le.Uint32(data[offEntry:]),
			Phoff:     le.Uint32(data[offPhoff:]),
			Phentsize: le.Uint16(data[offPhentsize:]),
			Phnum:     le.Uint16(data[offPhnum:]),
		},
		data: data,
	}
	h := &f.Header
	if h.Phoff < identSize || h.Phentsize == 0 {
		return nil, formatErr("program header table missing")
	}
	tabLen := uint64(h.Phentsize) * uint64(h.Phnum)
	if uint64(h.Phoff)+tabLen > uint64(len(data)) {
		return nil, formatErr("program header table truncated")
	}

	f.Progs = make([]ProgHeader, 0, h.Phnum)
	for i := 0; i < int(h.Phnum); i++ {
		base := uint64(h.Phoff) + uint64(h.Phentsize)*uint64(i)
		if base+32 > uint64(len(data)) {
			return nil, formatErr("program header truncated")
		}
		e := data[base:]
		f.Progs = append(f.Progs, ProgHeader{
			Type:   le.Uint32(e[0:]),
			Off:    le.Uint32(e[4:]),
			Vaddr:  le.Uint32(e[8:]),
			Paddr:  le.Uint32(e[12:]),
			Filesz: le.Uint32(e[16:]),
			Memsz:  le.Uint32(e[20:]),
			Flags:  le.Uint32(e[24:]),
			Align:  le.Uint32(e[28:]),
		})
	}
	return f, nil
}

// Content returns the file bytes of the segment, the exact
// [Off, Off+Filesz) slice of the image. The result is empty for
// Filesz == 0 and must not be modified.
func (f *File) Content(p *ProgHeader) ([]byte, error) {
	if p.Filesz == 0 {
		return nil, nil
	}
	if uint64(p.Off)+uint64(p.Filesz) > uint64(len(f.data)) {
		return nil, formatErr("segment out of range")
	}
	return f.data[p.Off : p.Off+p.Filesz : p.Off+p.Filesz], nil
}
