// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dryrun implements the dapico dryrun command: print the load
// plan for an image without touching USB.
package dryrun

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/nanoscopic/dapico-tools/dapico/internal/image"
	"github.com/nanoscopic/dapico-tools/dapico/internal/picomap"
	"github.com/nanoscopic/dapico-tools/dapico/internal/plan"
	"github.com/nanoscopic/dapico-tools/dapico/internal/util"
)

const Descr = "print the load plan for an image without touching USB"

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
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	pol := plan.Policy{AllowFlash: *flash, ExecAfter: !*noexec}
	util.FatalErr("", run(fs.Arg(0), pol))
}

func run(file string, pol plan.Policy) error {
	segs, entry, err := image.Load(file)
	if err != nil {
		return err
	}

	// There is no device to identify, so assume the smaller family.
	mm := &picomap.RP2040
	fmt.Printf(
		"dry run: assuming RP2040 memory layout (flash end %#x, SRAM end %#x)\n",
		mm.FlashEnd, mm.SRAMEnd,
	)

	p, err := plan.Build(segs, mm, pol, entry)
	if err != nil {
		if errors.Is(err, plan.ErrEmpty) {
			return errors.New(
				"no loadable RAM segments (flash segments skipped, use -flash to write flash)")
		}
		return err
	}
	if p.Mirrored {
		fmt.Println("mirroring flash segments into SRAM (use -flash to write flash instead)")
	}
	if p.Skipped {
		fmt.Println("skipping flash segments that do not fit in SRAM (use -flash to write flash)")
	}
	for _, op := range p.Ops {
		switch op := op.(type) {
		case plan.ExitXIP:
			fmt.Println("would exit XIP mode")
		case plan.FlashErase:
			fmt.Printf(
				"would erase flash %#x-%#x (%d bytes)\n",
				op.Start, op.End, op.End-op.Start,
			)
		case plan.RAMWrite:
			fmt.Printf("would write RAM %#x (%d bytes)\n", op.Addr, len(op.Data))
		case plan.FlashWrite:
			fmt.Printf("would write flash page %#x (%d bytes)\n", op.PageBase, len(op.Data))
		case plan.Exec:
			fmt.Printf("would execute at %#x\n", op.Addr)
		}
	}
	fmt.Println("dry run complete")
	return nil
}
