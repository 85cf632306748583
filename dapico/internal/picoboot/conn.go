// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package picoboot

import (
	"errors"
	"sync/atomic"
	"time"
)

// Transport is the narrow view of an open USB device with the PICOBOOT
// interface claimed that a Conn drives. BulkOut and BulkIn transfer as
// much of p as possible before the timeout expires; Vendor issues a
// vendor-type control request addressed to the claimed interface, with
// in selecting the device→host direction.
type Transport interface {
	BulkOut(p []byte, timeout time.Duration) (int, error)
	BulkIn(p []byte, timeout time.Duration) (int, error)
	Vendor(in bool, request uint8, p []byte, timeout time.Duration) (int, error)
}

// Sentinels a Transport implementation wraps its backend errors with,
// so the command state machine can tell a vanished device and an
// expired deadline from other I/O failures.
var (
	ErrDeviceGone = errors.New("device gone")
	ErrTimeout    = errors.New("timeout")
)

const (
	cmdTimeout  = 3 * time.Second
	dataTimeout = 3 * cmdTimeout // data phases only; frames and acks use cmdTimeout
)

// maxWriteChunk bounds the data phase of one WRITE command.
const maxWriteChunk = 1024

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "picoboot: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// A Conn runs PICOBOOT commands over a Transport. Each command carries
// a token from a strictly increasing per-connection counter, starting
// at 1.
type Conn struct {
	t     Transport
	token atomic.Uint32
}

func NewConn(t Transport) *Conn {
	return &Conn{t: t}
}

// cmd runs one command through the request/data/ack state machine:
// write the 32-byte frame, move the data phase in the direction the ID
// selects, then move the ack in the opposite direction: one byte read
// on IN, or a zero-length write on OUT after an IN data phase.
// A failed final ack is followed by one status poll, unless the device
// has gone; an OK status rescues the command.
func (c *Conn) cmd(id uint8, transferLength uint32, args Args, data []byte) error {
	frame := (&Cmd{
		Token:          c.token.Add(1),
		ID:             id,
		TransferLength: transferLength,
		Args:           args,
	}).Encode()
	n, err := c.t.BulkOut(frame[:], cmdTimeout)
	if err != nil {
		return err
	}
	if n != CmdLen {
		return errors.New("short command write")
	}

	if transferLength > 0 {
		if id&0x80 != 0 {
			if err := c.bulkInFull(data[:transferLength]); err != nil {
				return err
			}
		} else {
			n, err := c.t.BulkOut(data[:transferLength], dataTimeout)
			if err != nil {
				return err
			}
			if uint32(n) != transferLength {
				return errors.New("short data write")
			}
		}
	}

	if id&0x80 != 0 {
		_, err = c.t.BulkOut(nil, cmdTimeout)
	} else {
		var ack [1]byte
		_, err = c.t.BulkIn(ack[:], cmdTimeout)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeviceGone) {
		return err
	}
	st, serr := c.CommandStatus()
	switch {
	case serr == nil && st.StatusCode == StatusOK:
		return nil
	case serr == nil:
		return &StatusError{st.StatusCode}
	case errors.Is(serr, ErrDeviceGone):
		return serr
	}
	return err
}

// bulkInFull reads exactly len(p) bytes of an IN data phase.
func (c *Conn) bulkInFull(p []byte) error {
	for len(p) > 0 {
		n, err := c.t.BulkIn(p, dataTimeout)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("short data read")
		}
		p = p[n:]
	}
	return nil
}

// Reset sends the INTERFACE_RESET request, clearing any half-finished
// command state on the device.
func (c *Conn) Reset() (err error) {
	defer wrapErr("Reset", &err)
	_, err = c.t.Vendor(false, ctrInterfaceReset, nil, cmdTimeout)
	return
}

// CommandStatus polls the device for the status of the most recent
// command.
func (c *Conn) CommandStatus() (st Status, err error) {
	defer wrapErr("CommandStatus", &err)
	var buf [StatusLen]byte
	n, err := c.t.Vendor(true, ctrGetCommandStatus, buf[:], cmdTimeout)
	if err != nil {
		return
	}
	return DecodeStatus(buf[:n])
}

// ExitXIP leaves execute-in-place mode. Required before erasing or
// programming flash.
func (c *Conn) ExitXIP() (err error) {
	defer wrapErr("ExitXIP", &err)
	err = c.cmd(CmdExitXIP, 0, nil, nil)
	return
}

// FlashErase erases size bytes of flash starting at addr. Both must be
// sector-aligned.
func (c *Conn) FlashErase(addr, size uint32) (err error) {
	defer wrapErr("FlashErase", &err)
	err = c.cmd(CmdFlashErase, 0, RangeArgs{addr, size}, nil)
	return
}

// Read fills p from device memory starting at addr.
func (c *Conn) Read(addr uint32, p []byte) (err error) {
	defer wrapErr("Read", &err)
	err = c.cmd(CmdRead, uint32(len(p)), RangeArgs{addr, uint32(len(p))}, p)
	return
}

// Write places p at addr, splitting the transfer into WRITE commands
// of at most 1024 bytes. Flash addresses must have been erased first
// and writes to them should cover whole pages.
func (c *Conn) Write(addr uint32, p []byte) (err error) {
	defer wrapErr("Write", &err)
	for len(p) > 0 {
		n := min(len(p), maxWriteChunk)
		err = c.cmd(CmdWrite, uint32(n), RangeArgs{addr, uint32(n)}, p[:n])
		if err != nil {
			return
		}
		addr += uint32(n)
		p = p[n:]
	}
	return
}

// Exec transfers control to addr. The device usually drops off the bus
// before the final ack arrives, so a vanished device, a REBOOTING
// status or an OK status all count as success.
func (c *Conn) Exec(addr uint32) (err error) {
	defer wrapErr("Exec", &err)
	err = c.cmd(CmdExec, 0, AddrArgs{addr}, nil)
	if err == nil || errors.Is(err, ErrDeviceGone) {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == StatusRebooting {
		return nil
	}
	return
}

// Reboot reboots an RP2040 after the delay. pc and sp zero select a
// normal boot.
func (c *Conn) Reboot(pc, sp uint32, delay time.Duration) (err error) {
	defer wrapErr("Reboot", &err)
	err = c.cmd(CmdReboot, 0, RebootArgs{pc, sp, uint32(delay.Milliseconds())}, nil)
	return
}

// Reboot2 reboots an RP2350 after the delay, in the mode selected by
// flags.
func (c *Conn) Reboot2(flags uint32, delay time.Duration, param0, param1 uint32) (err error) {
	defer wrapErr("Reboot2", &err)
	args := Reboot2Args{flags, uint32(delay.Milliseconds()), param0, param1}
	err = c.cmd(CmdReboot2, 0, args, nil)
	return
}
