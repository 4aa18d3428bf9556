// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a listing of f to w.
func Fprint(w io.Writer, f *Func) {
	fmt.Fprintf(w, "%s:\n", f.Name)
	for _, b := range f.Blocks {
		fmt.Fprintf(w, "  %s:", b)
		if b == f.Entry {
			fmt.Fprint(w, " (entry)")
		}
		if len(b.Preds) > 0 {
			fmt.Fprint(w, " <-")
			for _, e := range b.Preds {
				fmt.Fprintf(w, " %s", e.b)
			}
		}
		fmt.Fprintln(w)
		for _, v := range b.Values {
			fmt.Fprintf(w, "    %s\n", v.LongString())
		}
		fmt.Fprintf(w, "    %s\n", b.LongString())
	}
}

// LongString returns a listing of f.
func (f *Func) LongString() string {
	var sb strings.Builder
	Fprint(&sb, f)
	return sb.String()
}
