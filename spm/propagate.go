// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"github.com/fkuehnel/golang-spm/ir"
)

// propagate turns local block frequencies into global ones by walking the
// call graph from its roots. A block invoked through several call chains
// keeps the highest frequency seen.
//
// Call edges closing a recursion are only followed into functions not yet
// reached, so the walk terminates. Functions no walk reaches count as
// invoked once.
func (s *Pass) propagate() {
	type item struct {
		f    *ir.Func
		freq float64
	}

	best := map[*ir.Func]float64{}
	var work []item

	run := func() {
		for len(work) > 0 {
			it := work[0]
			work = work[1:]

			if b, ok := best[it.f]; ok && it.freq <= b {
				continue
			}
			best[it.f] = it.freq

			fs := s.funcs[it.f]
			for _, b := range it.f.Blocks {
				bd := fs.bd(b)
				if g := it.freq * s.freq.BlockFreq(b); g > bd.freq {
					bd.freq = g
				}
			}

			for _, e := range s.freq.Callees(it.f) {
				if s.funcs[e.Callee] == nil {
					continue
				}
				g := it.freq * s.freq.BlockFreq(e.Site.Block)
				prev, seen := best[e.Callee]
				if e.Backedge && seen {
					continue
				}
				if !seen || g > prev {
					work = append(work, item{e.Callee, g})
				}
			}
		}
	}

	defined := s.prog.Defined()
	for _, f := range defined {
		if s.freq.IsRoot(f) {
			work = append(work, item{f, 1})
		}
	}
	run()

	for _, f := range defined {
		if _, ok := best[f]; !ok {
			work = append(work, item{f, 1})
			run()
		}
	}
}
