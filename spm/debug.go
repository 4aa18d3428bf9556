// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

func (s *Pass) dumpBlocks() {
	for _, f := range s.prog.Defined() {
		fs := s.funcs[f]
		for _, b := range f.Blocks {
			bd := fs.bd(b)
			for k, r := range bd.regions {
				s.tr.Printw("region",
					"func", f.Name,
					"block", b,
					"region", k,
					"freq", bd.freq,
					"accesses", fmtAccesses(r))
			}
		}
	}
}

func (s *Pass) dumpAllocs() {
	for _, f := range s.prog.Defined() {
		fs := s.funcs[f]
		for _, b := range f.Blocks {
			for k, r := range fs.bd(b).allocs {
				if r == nil {
					continue
				}
				s.tr.Printw("alloc",
					"func", f.Name,
					"block", b,
					"region", k,
					"free", r.free,
					"layout", fmtLayout(r),
					"in", r.copyIn,
					"out", r.swapOut)
			}
		}
	}
}

func (s *Pass) dumpLoop(l *loopRecord) {
	s.tr.Printw("loop closed",
		"func", l.header.Func.Name,
		"header", l.header,
		"regions", len(l.allocs),
		"vars", l.vars.sorted(),
		"carried", lo.Map(l.carried, func(c slot, _ int) string {
			return fmt.Sprintf("%v@%d", c.v, c.addr)
		}))
}

func fmtAccesses(as []*access) string {
	return strings.Join(lo.Map(as, func(a *access, _ int) string {
		s := fmt.Sprintf("%v*%d", a.v, a.count)
		if a.modified {
			s += "!"
		}
		if a.writeFirst {
			s += "w"
		}
		return s
	}), " ")
}

// fmtLayout prints the layout as var@addr entries, dirty ones marked
// with a star, and free gaps as +n.
func fmtLayout(r *allocResult) string {
	var b strings.Builder
	for i, sl := range r.layout.slots {
		if i != 0 {
			fmt.Fprintf(&b, " %v@%d", sl.v, sl.addr)
			if r.modified[sl.v] {
				b.WriteByte('*')
			}
		}
		if sl.gap != 0 {
			fmt.Fprintf(&b, " +%d", sl.gap)
		}
	}
	return strings.TrimSpace(b.String())
}
