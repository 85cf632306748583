// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"errors"
	"fmt"
	"os"

	usb "github.com/google/gousb"

	"github.com/nanoscopic/dapico-tools/dapico/internal/image"
	"github.com/nanoscopic/dapico-tools/dapico/internal/picoboot"
	"github.com/nanoscopic/dapico-tools/dapico/internal/picomap"
	"github.com/nanoscopic/dapico-tools/dapico/internal/plan"
	"github.com/nanoscopic/dapico-tools/dapico/internal/usbdev"
	"github.com/nanoscopic/dapico-tools/dapico/internal/util"
)

func run(file string, pol plan.Policy, busAddr string, verbose bool) error {
	segs, entry, err := image.Load(file)
	if err != nil {
		return err
	}

	ctx := usb.NewContext()
	defer ctx.Close()
	if verbose {
		ctx.Debug(3)
	}
	m, err := usbdev.Find(ctx, busAddr, false)
	if err != nil {
		return err
	}
	defer m.Close()

	mm := &picomap.RP2040
	if m.Product == usbdev.ProductRP2350Boot {
		mm = &picomap.RP2350
	}
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

	tr, err := m.ClaimBoot()
	if err != nil {
		return err
	}
	conn := picoboot.NewConn(tr)
	if err := conn.Reset(); err != nil {
		util.Warn("warning: %v", err)
	}
	if err := execute(conn, p, verbose); err != nil {
		return err
	}
	fmt.Println("load complete")
	return nil
}

func execute(conn *picoboot.Conn, p *plan.Plan, verbose bool) error {
	total := len(p.Ops)
	for i, op := range p.Ops {
		var err error
		switch op := op.(type) {
		case plan.ExitXIP:
			note(verbose, "exit XIP mode")
			err = conn.ExitXIP()
		case plan.FlashErase:
			note(verbose, "erase flash %#x-%#x (%d bytes)", op.Start, op.End, op.End-op.Start)
			err = conn.FlashErase(op.Start, op.End-op.Start)
		case plan.RAMWrite:
			note(verbose, "write RAM %#x (%d bytes)", op.Addr, len(op.Data))
			err = conn.Write(op.Addr, op.Data)
		case plan.FlashWrite:
			note(verbose, "write flash page %#x", op.PageBase)
			err = conn.Write(op.PageBase, op.Data)
		case plan.Exec:
			note(verbose, "execute at %#x", op.Addr)
			err = conn.Exec(op.Addr)
		}
		if err != nil {
			if !verbose {
				os.Stderr.WriteString("\n")
			}
			return err
		}
		if !verbose {
			util.Progress("load", i+1, total, 1, "ops")
		}
	}
	return nil
}

func note(verbose bool, f string, args ...any) {
	if verbose {
		fmt.Printf(f+"\n", args...)
	}
}
