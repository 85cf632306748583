// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reboot implements the dapico reboot command: restart a
// connected device, either back into its flashed program or into
// BOOTSEL mode. Devices in BOOTSEL mode are driven over PICOBOOT,
// running devices over the stdio-USB reset interface.
package reboot

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	usb "github.com/google/gousb"

	"github.com/nanoscopic/dapico-tools/dapico/internal/picoboot"
	"github.com/nanoscopic/dapico-tools/dapico/internal/usbdev"
	"github.com/nanoscopic/dapico-tools/dapico/internal/util"
)

const Descr = "reboot a connected device, optionally into BOOTSEL mode"

const rebootDelay = 500 * time.Millisecond

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  dapico %s [OPTIONS]\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	bootsel := fs.Bool("bootsel", false, "reboot into BOOTSEL mode")
	busAddr := fs.String("usb", "", "select the USB device by `BUS:ADDR`")
	verbose := fs.Bool("verbose", false, "enable USB debug output")
	fs.Parse(args)
	if fs.NArg() != 0 {
		fs.Usage()
		os.Exit(2)
	}
	util.FatalErr("", run(*bootsel, *busAddr, *verbose))
}

func run(bootsel bool, busAddr string, verbose bool) error {
	ctx := usb.NewContext()
	defer ctx.Close()
	if verbose {
		ctx.Debug(3)
	}
	m, err := usbdev.Find(ctx, busAddr, true)
	if err != nil {
		return err
	}
	defer m.Close()

	if bootsel {
		if m.Reset != nil {
			rc, err := m.ClaimReset()
			if err != nil {
				return err
			}
			if err := rc.SendReset(usbdev.ResetRequestBootsel); err != nil {
				return err
			}
			fmt.Println("requested reboot into BOOTSEL mode")
			return nil
		}
		if m.Product == usbdev.ProductRP2350Boot {
			// The RP2350 bootrom can re-enter BOOTSEL mode itself.
			tr, err := m.ClaimBoot()
			if err != nil {
				return err
			}
			conn := picoboot.NewConn(tr)
			if err := conn.Reset(); err != nil {
				util.Warn("warning: %v", err)
			}
			if err := conn.Reboot2(picoboot.RebootBootsel, rebootDelay, 0, 0); err != nil {
				return err
			}
			fmt.Println("requested reboot into BOOTSEL mode")
			return nil
		}
		// An RP2040 exposing PICOBOOT is the bootloader itself.
		fmt.Println("device is already in BOOTSEL mode")
		return nil
	}

	if m.Boot != nil {
		tr, err := m.ClaimBoot()
		if err != nil {
			return err
		}
		conn := picoboot.NewConn(tr)
		if err := conn.Reset(); err != nil {
			util.Warn("warning: %v", err)
		}
		if m.Product == usbdev.ProductRP2350Boot {
			err = conn.Reboot2(picoboot.RebootNormal, rebootDelay, 0, 0)
		} else {
			err = conn.Reboot(0, 0, rebootDelay)
		}
		if err != nil {
			return err
		}
	} else if m.Reset != nil {
		rc, err := m.ClaimReset()
		if err != nil {
			return err
		}
		if err := rc.SendReset(usbdev.ResetRequestFlash); err != nil {
			return err
		}
	} else {
		return errors.New("device exposes neither a PICOBOOT nor a reset interface")
	}
	fmt.Println("reboot request sent")
	return nil
}
