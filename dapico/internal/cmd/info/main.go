// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package info implements the dapico info command: identify the
// connected BOOTSEL device by reading its chip identity word.
package info

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	usb "github.com/google/gousb"

	"github.com/nanoscopic/dapico-tools/dapico/internal/picoboot"
	"github.com/nanoscopic/dapico-tools/dapico/internal/usbdev"
	"github.com/nanoscopic/dapico-tools/dapico/internal/util"
)

const Descr = "identify the connected BOOTSEL device"

// The bootrom keeps a chip identity word at this address.
const chipIDAddr = 0x0000_0010

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  dapico %s [OPTIONS]\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	busAddr := fs.String("usb", "", "select the USB device by `BUS:ADDR`")
	fs.Parse(args)
	if fs.NArg() != 0 {
		fs.Usage()
		os.Exit(2)
	}
	util.FatalErr("", run(*busAddr))
}

func run(busAddr string) error {
	ctx := usb.NewContext()
	defer ctx.Close()
	m, err := usbdev.Find(ctx, busAddr, false)
	if err != nil {
		return err
	}
	defer m.Close()

	tr, err := m.ClaimBoot()
	if err != nil {
		return err
	}
	conn := picoboot.NewConn(tr)
	if err := conn.Reset(); err != nil {
		util.Warn("warning: %v", err)
	}

	var buf [4]byte
	if err := conn.Read(chipIDAddr, buf[:]); err != nil {
		return err
	}
	devType := "unknown"
	switch binary.LittleEndian.Uint32(buf[:]) & 0xffffff {
	case 0x01754d:
		devType = "RP2040"
	case 0x02754d:
		devType = "RP2350"
	}
	fmt.Printf("device:  %s\n", devType)
	fmt.Printf("product: %s\n", m.Product)
	fmt.Printf("bus:     %d:%d\n", m.Dev.Desc.Bus, m.Dev.Desc.Address)
	return nil
}
