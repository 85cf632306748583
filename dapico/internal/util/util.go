// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"strconv"
)

func Warn(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

func Fatal(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

// FatalErr prints an error description and exits the program if
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	os.Stderr.WriteString(s)
	os.Exit(1)
}

var pbuf = make([]byte, 80)

const (
	ptodo = "                         ] "
	pdone = " [========================="
)

func Progress(pre string, cur, max, scale int, post string) {
	pbuf = pbuf[:0]
	pbuf = append(pbuf, '\r')
	pbuf = append(pbuf, pre...)
	done := 25 * cur / max
	pbuf = append(pbuf, pdone[:2+done]...)
	pbuf = append(pbuf, ptodo[done:]...)
	pbuf = strconv.AppendInt(pbuf, int64(cur/scale), 10)
	pbuf = append(pbuf, ' ')
	pbuf = append(pbuf, post...)
	if cur == max {
		pbuf = append(pbuf, '\n')
	}
	os.Stderr.Write(pbuf)
}
