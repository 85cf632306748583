// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package image turns program image files into load segments. ELF is
// the native format; Intel HEX is accepted as well for images produced
// by other toolchains.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/nanoscopic/dapico-tools/dapico/internal/elf32"
	"github.com/nanoscopic/dapico-tools/dapico/internal/plan"
)

// Load reads the named ELF or Intel HEX file (picked by extension,
// ELF by default) and returns its load segments and entry point. The
// entry point is zero if the file does not name one.
func Load(name string) ([]plan.Segment, uint32, error) {
	if strings.EqualFold(filepath.Ext(name), ".hex") {
		r, err := os.Open(name)
		if err != nil {
			return nil, 0, err
		}
		defer r.Close()
		return ReadHex(r)
	}
	f, err := elf32.Open(name)
	if err != nil {
		return nil, 0, err
	}
	return segments(f)
}

// ReadELF reads an ELF32 image from r.
func ReadELF(r io.Reader) ([]plan.Segment, uint32, error) {
	f, err := elf32.Read(r)
	if err != nil {
		return nil, 0, err
	}
	return segments(f)
}

func segments(f *elf32.File) ([]plan.Segment, uint32, error) {
	var segs []plan.Segment
	for i := range f.Progs {
		ph := &f.Progs[i]
		if !ph.IsLoad() {
			continue
		}
		data, err := f.Content(ph)
		if err != nil {
			return nil, 0, err
		}
		segs = append(segs, plan.Segment{Vaddr: ph.Vaddr, Paddr: ph.Paddr, Data: data})
	}
	return segs, f.Header.Entry, nil
}

// ReadHex reads an Intel HEX image from r. Every data run becomes one
// segment addressed by Paddr; the start address record, when present,
// becomes the entry point.
func ReadHex(r io.Reader) ([]plan.Segment, uint32, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, 0, fmt.Errorf("intel hex: %w", err)
	}
	var segs []plan.Segment
	for _, s := range mem.GetDataSegments() {
		segs = append(segs, plan.Segment{Paddr: s.Address, Data: s.Data})
	}
	entry, ok := mem.GetStartAddress()
	if !ok {
		entry = 0
	}
	return segs, entry, nil
}

// Flatten sorts the segments by load address and joins them into one
// contiguous image, filling the gaps with the pad byte. It returns the
// base address of the image.
func Flatten(segs []plan.Segment, pad byte) (uint32, []byte, error) {
	if len(segs) == 0 {
		return 0, nil, errors.New("flatten: no segments")
	}
	sorted := make([]plan.Segment, len(segs))
	copy(sorted, segs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Addr() < sorted[j].Addr()
	})
	base := sorted[0].Addr()
	var buf bytes.Buffer
	next := base
	for i := range sorted {
		s := &sorted[i]
		addr := s.Addr()
		if addr < next {
			return 0, nil, fmt.Errorf("flatten: overlapping segments at %#x", addr)
		}
		for ; next < addr; next++ {
			buf.WriteByte(pad)
		}
		buf.Write(s.Data)
		next += uint32(len(s.Data))
	}
	return base, buf.Bytes(), nil
}
