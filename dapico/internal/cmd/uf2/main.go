// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uf2 implements the dapico uf2 command: convert an ELF image
// to the UF2 format understood by the BOOTSEL mass-storage loader.
package uf2

import (
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/nanoscopic/dapico-tools/dapico/internal/image"
	"github.com/nanoscopic/dapico-tools/dapico/internal/util"
)

const Descr = "convert an ELF image to the UF2 format"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  dapico %s [OPTIONS] FILE.elf [OUT.uf2]\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	family := fs.String(
		"family", "rp2040",
		"UF2 family `ID` (32-bit number) or a known family name:\n"+
			strings.Join(slices.Sorted(maps.Keys(uf2FamilyMap)), "\n"),
	)
	pad := fs.Uint("pad", 0xff, "pad `byte` used to fill gaps between segments")
	fs.Parse(args)
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		os.Exit(2)
	}
	fid, ok := uf2FamilyMap[*family]
	if !ok {
		id, err := strconv.ParseUint(*family, 0, 32)
		if err != nil {
			util.Fatal("unknown UF2 family: %s", *family)
		}
		fid = uint32(id)
	}
	elf := fs.Arg(0)
	out := fs.Arg(1)
	if out == "" {
		out = strings.TrimSuffix(elf, ".elf") + ".uf2"
	}
	util.FatalErr("", run(elf, out, fid, byte(*pad)))
}

func run(elf, out string, family uint32, pad byte) error {
	segs, _, err := image.Load(elf)
	if err != nil {
		return err
	}
	addr, data, err := image.Flatten(segs, pad)
	if err != nil {
		return err
	}
	w, err := os.Create(out)
	if err != nil {
		return err
	}
	u := newBlockWriter(w, addr, family, len(data))
	if _, err := u.Write(data); err != nil {
		w.Close()
		return err
	}
	if err := u.Flush(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
