// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package picomap describes the flash and SRAM address windows of the
// RP2040 and RP2350 microcontrollers.
package picomap

// Flash geometry common to both families.
const (
	SectorSize = 4096 // erase granularity
	PageSize   = 256  // write granularity
)

const (
	FlashStart = 0x10000000
	SRAMStart  = 0x20000000

	flashEndRP2040 = 0x11000000
	flashEndRP2350 = 0x14000000
	sramEndRP2040  = 0x20042000
	sramEndRP2350  = 0x20082000
)

// A Map bounds the external flash and on-chip SRAM windows of one
// device family. Both windows are half-open: [start, end).
type Map struct {
	FlashStart uint32
	FlashEnd   uint32
	SRAMStart  uint32
	SRAMEnd    uint32
}

var (
	RP2040 = Map{FlashStart, flashEndRP2040, SRAMStart, sramEndRP2040}
	RP2350 = Map{FlashStart, flashEndRP2350, SRAMStart, sramEndRP2350}
)

func (m *Map) IsFlash(addr uint32) bool {
	return addr >= m.FlashStart && addr < m.FlashEnd
}

func (m *Map) IsSRAM(addr uint32) bool {
	return addr >= m.SRAMStart && addr < m.SRAMEnd
}

// FlashToSRAM maps a flash range onto the SRAM address holding the same
// offset from the start of its window. It reports false if addr is
// below the flash window or the mapped range does not fit in SRAM.
func (m *Map) FlashToSRAM(addr, size uint32) (uint32, bool) {
	if addr < m.FlashStart {
		return 0, false
	}
	mapped := m.SRAMStart + (addr - m.FlashStart)
	if mapped < m.SRAMStart || uint64(mapped)+uint64(size) > uint64(m.SRAMEnd) {
		return 0, false
	}
	return mapped, true
}
