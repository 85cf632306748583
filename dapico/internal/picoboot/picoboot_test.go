// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package picoboot

import (
	"encoding/binary"
	"reflect"
	"testing"
)

func TestCmdRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Cmd
	}{
		{"exit xip", Cmd{Token: 1, ID: CmdExitXIP}},
		{"enter xip", Cmd{Token: 9, ID: CmdEnterXIP}},
		{
			"flash erase",
			Cmd{Token: 2, ID: CmdFlashErase, Args: RangeArgs{0x10000000, 0x1000}},
		},
		{
			"write",
			Cmd{Token: 3, ID: CmdWrite, TransferLength: 256,
				Args: RangeArgs{0x10000100, 256}},
		},
		{
			"read",
			Cmd{Token: 4, ID: CmdRead, TransferLength: 4,
				Args: RangeArgs{0x00000010, 4}},
		},
		{"exec", Cmd{Token: 5, ID: CmdExec, Args: AddrArgs{0x20000001}}},
		{
			"reboot",
			Cmd{Token: 6, ID: CmdReboot, Args: RebootArgs{0, 0, 500}},
		},
		{
			"reboot2",
			Cmd{Token: 7, ID: CmdReboot2,
				Args: Reboot2Args{RebootNormal, 500, 0, 0}},
		},
	}
	for _, tc := range tests {
		frame := tc.cmd.Encode()
		got, err := Decode(frame[:])
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.cmd) {
			t.Errorf("%s: decode(encode) = %#v, want %#v", tc.name, got, tc.cmd)
		}
	}
}

func TestCmdLayout(t *testing.T) {
	cmd := Cmd{
		Token:          0x11223344,
		ID:             CmdWrite,
		TransferLength: 1024,
		Args:           RangeArgs{0x20000100, 1024},
	}
	frame := cmd.Encode()
	le := binary.LittleEndian
	if got := le.Uint32(frame[0:]); got != Magic {
		t.Errorf("magic = %#x", got)
	}
	if got := le.Uint32(frame[4:]); got != 0x11223344 {
		t.Errorf("token = %#x", got)
	}
	if frame[8] != CmdWrite {
		t.Errorf("cmd id = %#x", frame[8])
	}
	if frame[9] != 8 {
		t.Errorf("cmd size = %d, want 8", frame[9])
	}
	if frame[10] != 0 || frame[11] != 0 {
		t.Error("pad field is not zero")
	}
	if got := le.Uint32(frame[12:]); got != 1024 {
		t.Errorf("transfer length = %d", got)
	}
	if got := le.Uint32(frame[16:]); got != 0x20000100 {
		t.Errorf("args addr = %#x", got)
	}
	if got := le.Uint32(frame[20:]); got != 1024 {
		t.Errorf("args size = %d", got)
	}
	for i := 24; i < CmdLen; i++ {
		if frame[i] != 0 {
			t.Errorf("unused args byte %d is %#x", i, frame[i])
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	good := (&Cmd{Token: 1, ID: CmdExec, Args: AddrArgs{4}}).Encode()

	short := good[:16]
	if _, err := Decode(short); err == nil {
		t.Error("short frame decoded")
	}

	badMagic := good
	badMagic[0] ^= 0xff
	if _, err := Decode(badMagic[:]); err == nil {
		t.Error("bad magic decoded")
	}

	unknown := (&Cmd{Token: 1, ID: CmdExitXIP}).Encode()
	unknown[8] = 0x7f
	if _, err := Decode(unknown[:]); err == nil {
		t.Error("unknown command decoded")
	}

	badSize := (&Cmd{Token: 1, ID: CmdExec, Args: AddrArgs{4}}).Encode()
	badSize[9] = 12
	if _, err := Decode(badSize[:]); err == nil {
		t.Error("wrong args size decoded")
	}
}

func TestDecodeStatus(t *testing.T) {
	var buf [StatusLen]byte
	le := binary.LittleEndian
	le.PutUint32(buf[0:], 42)
	le.PutUint32(buf[4:], StatusRebooting)
	buf[8] = CmdExec
	buf[9] = 0
	st, err := DecodeStatus(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	want := Status{Token: 42, StatusCode: StatusRebooting, CmdID: CmdExec}
	if st != want {
		t.Errorf("status = %#v, want %#v", st, want)
	}

	if _, err := DecodeStatus(buf[:8]); err == nil {
		t.Error("short status frame decoded")
	}
}

func TestStatusErrorText(t *testing.T) {
	err := &StatusError{StatusBadAlignment}
	if err.Error() != "device status: bad alignment" {
		t.Errorf("unexpected text: %s", err.Error())
	}
}
