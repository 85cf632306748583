// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package picoboot speaks the PICOBOOT protocol of the RP2040/RP2350
// USB bootloader: the 32-byte command frames exchanged on a pair of
// bulk endpoints and the vendor interface requests beside them.
package picoboot

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic opens every command frame.
const Magic uint32 = 0x431fd10b

// Command IDs. The top bit set means the data phase moves device→host.
const (
	CmdExclusiveAccess uint8 = 0x01
	CmdReboot          uint8 = 0x02
	CmdFlashErase      uint8 = 0x03
	CmdRead            uint8 = 0x84
	CmdWrite           uint8 = 0x05
	CmdExitXIP         uint8 = 0x06
	CmdEnterXIP        uint8 = 0x07
	CmdExec            uint8 = 0x08
	CmdVectorizeFlash  uint8 = 0x09
	CmdReboot2         uint8 = 0x0a
	CmdGetInfo         uint8 = 0x8b
	CmdOTPRead         uint8 = 0x8c
	CmdOTPWrite        uint8 = 0x0d
)

// Vendor interface requests.
const (
	ctrInterfaceReset   uint8 = 0x41
	ctrGetCommandStatus uint8 = 0x42
)

// Reboot2 dFlags values.
const (
	RebootNormal  uint32 = 0x0
	RebootBootsel uint32 = 0x2
)

// CmdLen is the wire size of a command frame.
const CmdLen = 32

// Args is the command-specific tail of a command frame, at most 16
// bytes of it valid.
type Args interface {
	argsLen() int
	encode(p []byte)
}

// RangeArgs address an address range (FLASH_ERASE, WRITE, READ).
type RangeArgs struct {
	Addr uint32
	Size uint32
}

// AddrArgs carry a bare address (EXEC).
type AddrArgs struct {
	Addr uint32
}

// RebootArgs parameterize the RP2040 REBOOT command.
type RebootArgs struct {
	PC      uint32
	SP      uint32
	DelayMS uint32
}

// Reboot2Args parameterize the RP2350 REBOOT2 command.
type Reboot2Args struct {
	Flags   uint32
	DelayMS uint32
	Param0  uint32
	Param1  uint32
}

func (RangeArgs) argsLen() int   { return 8 }
func (AddrArgs) argsLen() int    { return 4 }
func (RebootArgs) argsLen() int  { return 12 }
func (Reboot2Args) argsLen() int { return 16 }

func (a RangeArgs) encode(p []byte) {
	le := binary.LittleEndian
	le.PutUint32(p[0:], a.Addr)
	le.PutUint32(p[4:], a.Size)
}

func (a AddrArgs) encode(p []byte) {
	binary.LittleEndian.PutUint32(p[0:], a.Addr)
}

func (a RebootArgs) encode(p []byte) {
	le := binary.LittleEndian
	le.PutUint32(p[0:], a.PC)
	le.PutUint32(p[4:], a.SP)
	le.PutUint32(p[8:], a.DelayMS)
}

func (a Reboot2Args) encode(p []byte) {
	le := binary.LittleEndian
	le.PutUint32(p[0:], a.Flags)
	le.PutUint32(p[4:], a.DelayMS)
	le.PutUint32(p[8:], a.Param0)
	le.PutUint32(p[12:], a.Param1)
}

// A Cmd is one command frame. TransferLength is the byte count of the
// data phase following the frame (0 for command-only commands). Args
// is nil for commands without arguments.
type Cmd struct {
	Token          uint32
	ID             uint8
	TransferLength uint32
	Args           Args
}

// Encode lays the command out in its 32-byte little-endian wire
// format. Unused argument bytes are zero.
func (c *Cmd) Encode() [CmdLen]byte {
	var buf [CmdLen]byte
	le := binary.LittleEndian
	le.PutUint32(buf[0:], Magic)
	le.PutUint32(buf[4:], c.Token)
	buf[8] = c.ID
	if c.Args != nil {
		buf[9] = uint8(c.Args.argsLen())
		c.Args.encode(buf[16:])
	}
	// buf[10:12] is the reserved wPad field.
	le.PutUint32(buf[12:], c.TransferLength)
	return buf
}

// Decode parses a 32-byte command frame, picking the argument variant
// by the command ID.
func Decode(p []byte) (Cmd, error) {
	var c Cmd
	if len(p) < CmdLen {
		return c, errors.New("picoboot: short command frame")
	}
	le := binary.LittleEndian
	if m := le.Uint32(p[0:]); m != Magic {
		return c, fmt.Errorf("picoboot: bad magic %#x", m)
	}
	c.Token = le.Uint32(p[4:])
	c.ID = p[8]
	c.TransferLength = le.Uint32(p[12:])
	args := p[16:CmdLen]
	switch c.ID {
	case CmdFlashErase, CmdWrite, CmdRead:
		c.Args = RangeArgs{le.Uint32(args[0:]), le.Uint32(args[4:])}
	case CmdExec:
		c.Args = AddrArgs{le.Uint32(args[0:])}
	case CmdReboot:
		c.Args = RebootArgs{le.Uint32(args[0:]), le.Uint32(args[4:]), le.Uint32(args[8:])}
	case CmdReboot2:
		c.Args = Reboot2Args{
			le.Uint32(args[0:]), le.Uint32(args[4:]),
			le.Uint32(args[8:]), le.Uint32(args[12:]),
		}
	case CmdExitXIP, CmdEnterXIP:
		// no arguments
	default:
		return c, fmt.Errorf("picoboot: unknown command %#x", c.ID)
	}
	want := 0
	if c.Args != nil {
		want = c.Args.argsLen()
	}
	if int(p[9]) != want {
		return c, fmt.Errorf("picoboot: bad args size %d for command %#x", p[9], c.ID)
	}
	return c, nil
}

// Status codes reported by the device.
const (
	StatusOK uint32 = iota
	StatusUnknownCmd
	StatusInvalidCmdLength
	StatusInvalidTransferLength
	StatusInvalidAddress
	StatusBadAlignment
	StatusInterleavedWrite
	StatusRebooting
	StatusUnknownError
)

var statusStr = [...]string{
	StatusOK:                    "ok",
	StatusUnknownCmd:            "unknown command",
	StatusInvalidCmdLength:      "invalid command length",
	StatusInvalidTransferLength: "invalid transfer length",
	StatusInvalidAddress:        "invalid address",
	StatusBadAlignment:          "bad alignment",
	StatusInterleavedWrite:      "interleaved write",
	StatusRebooting:             "device rebooting",
	StatusUnknownError:          "unknown error",
}

// A StatusError carries a non-OK device status code.
type StatusError struct {
	Code uint32
}

func (e *StatusError) Error() string {
	if int(e.Code) < len(statusStr) {
		return "device status: " + statusStr[e.Code]
	}
	return fmt.Sprintf("device status: %d", e.Code)
}

// StatusLen is the wire size of a command status frame.
const StatusLen = 16

// A Status is the device's report on the most recent command, obtained
// with the GET_COMMAND_STATUS interface request.
type Status struct {
	Token      uint32
	StatusCode uint32
	CmdID      uint8
	InProgress bool
}

// DecodeStatus parses a 16-byte command status frame.
func DecodeStatus(p []byte) (Status, error) {
	var st Status
	if len(p) < StatusLen {
		return st, errors.New("picoboot: short status frame")
	}
	le := binary.LittleEndian
	st.Token = le.Uint32(p[0:])
	st.StatusCode = le.Uint32(p[4:])
	st.CmdID = p[8]
	st.InProgress = p[9] != 0
	return st, nil
}
