// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plan turns the loadable segments of an image into an ordered
// sequence of device operations: flash erases, flash page writes, RAM
// writes and an optional transfer of control. Planning is pure; it
// performs no I/O and is deterministic for a given input.
package plan

import (
	"errors"
	"sort"

	"github.com/nanoscopic/dapico-tools/dapico/internal/picomap"
)

var (
	// ErrEmpty reports that nothing remains to be loaded under the
	// active policy.
	ErrEmpty = errors.New("plan: nothing to do")

	// ErrNoLoadAddress reports a loadable segment whose paddr and vaddr
	// are both zero.
	ErrNoLoadAddress = errors.New("plan: segment has no load address")

	ErrZeroEntry       = errors.New("plan: entry point is zero")
	ErrEntryUnmappable = errors.New("plan: entry point cannot be mirrored into SRAM")
	ErrEntryOutOfRange = errors.New("plan: entry point is not in flash or SRAM")
)

// A Segment is one contiguous run of image bytes with its load address.
type Segment struct {
	Vaddr uint32
	Paddr uint32
	Data  []byte
}

// Addr returns Paddr when non-zero, Vaddr otherwise.
func (s *Segment) Addr() uint32 {
	if s.Paddr != 0 {
		return s.Paddr
	}
	return s.Vaddr
}

// Policy selects what the planner may do with flash-addressed segments
// and whether control is transferred after loading.
type Policy struct {
	AllowFlash bool // write flash instead of mirroring into SRAM
	ExecAfter  bool // finish the plan with an EXEC
}

// An Op is one planned device operation.
type Op interface{ op() }

// ExitXIP leaves execute-in-place mode; required before any flash
// erase or write.
type ExitXIP struct{}

// FlashErase erases the sector-aligned range [Start, End).
type FlashErase struct {
	Start uint32
	End   uint32
}

// RAMWrite places Data at Addr in on-chip memory.
type RAMWrite struct {
	Addr uint32
	Data []byte
}

// FlashWrite programs one full page. Data is always
// picomap.PageSize bytes and PageBase is page-aligned.
type FlashWrite struct {
	PageBase uint32
	Data     []byte
}

// Exec transfers control to Addr.
type Exec struct {
	Addr uint32
}

func (ExitXIP) op()    {}
func (FlashErase) op() {}
func (RAMWrite) op()   {}
func (FlashWrite) op() {}
func (Exec) op()       {}

// A Plan is an ordered operation list: ExitXIP (if any flash write is
// planned), then erases sorted ascending, then RAM writes in segment
// order, then flash pages ascending, then the optional Exec.
type Plan struct {
	Ops []Op

	Mirrored bool // flash segments were diverted into SRAM
	Skipped  bool // flash segments were dropped
}

func alignDown(v, align uint32) uint32 { return v &^ (align - 1) }
func alignUp(v, align uint32) uint32   { return (v + align - 1) &^ (align - 1) }

// Build plans the load of segs under the given memory map and policy.
// entry is the image entry point, used only when pol.ExecAfter is set.
func Build(segs []Segment, m *picomap.Map, pol Policy, entry uint32) (*Plan, error) {
	var (
		ram    []RAMWrite
		erases []FlashErase
		pages  = make(map[uint32][]byte)
	)
	p := new(Plan)

	for i := range segs {
		s := &segs[i]
		if len(s.Data) == 0 {
			continue
		}
		addr := s.Addr()
		if addr == 0 {
			return nil, ErrNoLoadAddress
		}
		size := uint32(len(s.Data))
		switch {
		case m.IsFlash(addr) && !pol.AllowFlash:
			mapped, ok := m.FlashToSRAM(addr, size)
			if !ok {
				p.Skipped = true
				continue
			}
			p.Mirrored = true
			ram = append(ram, RAMWrite{mapped, s.Data})
		case m.IsFlash(addr):
			erases = append(erases, FlashErase{
				alignDown(addr, picomap.SectorSize),
				alignUp(addr+size, picomap.SectorSize),
			})
			// Distribute the bytes over zero-initialized pages. Bytes
			// the segment does not cover stay zero; pages are never
			// read back from live flash.
			for off := uint32(0); off < size; {
				a := addr + off
				base := alignDown(a, picomap.PageSize)
				page := pages[base]
				if page == nil {
					page = make([]byte, picomap.PageSize)
					pages[base] = page
				}
				off += uint32(copy(page[a-base:], s.Data[off:]))
			}
		default:
			ram = append(ram, RAMWrite{addr, s.Data})
		}
	}

	if !pol.AllowFlash && len(pages) == 0 && len(ram) == 0 {
		return nil, ErrEmpty
	}

	if len(pages) != 0 {
		p.Ops = append(p.Ops, ExitXIP{})
		for _, r := range mergeErases(erases) {
			p.Ops = append(p.Ops, r)
		}
	}
	for _, w := range ram {
		p.Ops = append(p.Ops, w)
	}
	bases := make([]uint32, 0, len(pages))
	for base := range pages {
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	for _, base := range bases {
		p.Ops = append(p.Ops, FlashWrite{base, pages[base]})
	}

	if pol.ExecAfter {
		execAddr, err := planExec(m, pol, entry)
		if err != nil {
			return nil, err
		}
		p.Ops = append(p.Ops, Exec{execAddr})
	}
	return p, nil
}

func planExec(m *picomap.Map, pol Policy, entry uint32) (uint32, error) {
	if entry == 0 {
		return 0, ErrZeroEntry
	}
	if !pol.AllowFlash && m.IsFlash(entry) {
		mapped, ok := m.FlashToSRAM(entry, 4)
		if !ok {
			return 0, ErrEntryUnmappable
		}
		return mapped, nil
	}
	if !pol.AllowFlash && !m.IsSRAM(entry) && !m.IsFlash(entry) {
		return 0, ErrEntryOutOfRange
	}
	return entry, nil
}

// mergeErases sorts the recorded ranges and coalesces every pair that
// overlaps or touches, leaving a disjoint ascending list.
func mergeErases(rs []FlashErase) []FlashErase {
	if len(rs) == 0 {
		return rs
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })
	merged := rs[:1]
	for _, r := range rs[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}
