// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uf2

import (
	"encoding/binary"
	"io"
)

const (
	magic0 = 0x0a324655
	magic1 = 0x9e5d5157
	magic2 = 0x0ab16f30

	blockLen   = 512
	payloadLen = 256
)

// Block flags.
const (
	flagNotMainFlash    = 0x00000001
	flagFileContainer   = 0x00001000
	flagFamilyIDPresent = 0x00002000
)

var uf2FamilyMap = map[string]uint32{
	"rp2040":        0xe48bff56,
	"absolute":      0xe48bff57,
	"data":          0xe48bff58,
	"rp2350_arm_s":  0xe48bff59,
	"rp2350_riscv":  0xe48bff5a,
	"rp2350_arm_ns": 0xe48bff5b,
}

// A blockWriter emits a stream of 512-byte UF2 blocks, each carrying
// up to 256 bytes of payload at consecutive addresses.
type blockWriter struct {
	w      io.Writer
	buf    [blockLen]byte
	addr   uint32
	family uint32
	n      int // payload bytes buffered for the current block
	seq    uint32
	total  uint32
}

func newBlockWriter(w io.Writer, addr, family uint32, size int) *blockWriter {
	return &blockWriter{
		w:      w,
		addr:   addr,
		family: family,
		total:  uint32((size + payloadLen - 1) / payloadLen),
	}
}

func (u *blockWriter) Write(p []byte) (n int, err error) {
	for len(p) != 0 {
		m := copy(u.buf[32+u.n:32+payloadLen], p)
		n += m
		p = p[m:]
		u.n += m
		if u.n == payloadLen {
			if err = u.emit(); err != nil {
				return
			}
		}
	}
	return
}

// Flush pads the last partial block with zeros and writes it out.
func (u *blockWriter) Flush() error {
	if u.n == 0 {
		return nil
	}
	clear(u.buf[32+u.n : 32+payloadLen])
	u.n = payloadLen
	return u.emit()
}

func (u *blockWriter) emit() error {
	le := binary.LittleEndian
	le.PutUint32(u.buf[0:], magic0)
	le.PutUint32(u.buf[4:], magic1)
	le.PutUint32(u.buf[8:], flagFamilyIDPresent)
	le.PutUint32(u.buf[12:], u.addr)
	le.PutUint32(u.buf[16:], payloadLen)
	le.PutUint32(u.buf[20:], u.seq)
	le.PutUint32(u.buf[24:], u.total)
	le.PutUint32(u.buf[28:], u.family)
	le.PutUint32(u.buf[blockLen-4:], magic2)
	_, err := u.w.Write(u.buf[:])
	u.addr += payloadLen
	u.seq++
	u.n = 0
	return err
}
