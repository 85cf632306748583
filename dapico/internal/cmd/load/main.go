// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package load implements the dapico load command: place an ELF or
// Intel HEX image into the memory of a device in BOOTSEL mode over the
// PICOBOOT protocol and optionally execute it.
package load

import (
	"flag"
	"fmt"
	"os"

	"github.com/nanoscopic/dapico-tools/dapico/internal/plan"
	"github.com/nanoscopic/dapico-tools/dapico/internal/util"
)

const Descr = "load an ELF or Intel HEX image onto a device in BOOTSEL mode"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  dapico %s [OPTIONS] FILE.{elf,hex}\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	flash := fs.Bool(
		"flash", false,
		"write flash segments instead of mirroring them into SRAM",
	)
	noexec := fs.Bool("noexec", false, "do not execute the loaded image")
	busAddr := fs.String("usb", "", "select the USB device by `BUS:ADDR`")
	verbose := fs.Bool("verbose", false, "print every operation and USB debug output")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	pol := plan.Policy{AllowFlash: *flash, ExecAfter: !*noexec}
	util.FatalErr("", run(fs.Arg(0), pol, *busAddr, *verbose))
}
