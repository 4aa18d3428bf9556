// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"github.com/fkuehnel/golang-spm/ir"
	"tlog.app/go/errors"
)

// materialize inserts the transfers decided by the walk and redirects
// accesses to resident variables to the scratchpad.
//
// Transfers are derived from the final states only: a region gets what
// turns its in-state into its own state, a block ending in a join gets
// what turns its state into the one the join expects, and calls that were
// not explored are bracketed by transfers to and from the callee's states.
func (s *Pass) materialize() error {
	for _, f := range s.prog.Defined() {
		fs := s.funcs[f]

		changed := false
		for _, b := range f.Blocks {
			if s.materializeBlock(fs, fs.bd(b)) {
				changed = true
			}
		}
		if !changed {
			continue
		}
		s.stats.Funcs++

		if err := s.fix(f); err != nil {
			return errors.Wrap(err, "fix stack of %v", f.Name)
		}
	}
	return nil
}

func (s *Pass) materializeBlock(fs *funcState, bd *blockData) bool {
	if bd.allocs[0] == nil {
		return false
	}
	b := bd.b

	vals := make([]*ir.Value, 0, len(b.Values))
	changed := false

	emit := func(ts []Transfer) {
		for _, t := range ts {
			vals = append(vals, s.transfer(b.Func, t)...)
			s.stats.Transfers++
			changed = true
		}
	}
	region := func(k int) {
		r := bd.allocs[k]
		if r == nil || k == 0 && bd.closed {
			return
		}
		emit(reconcile(r, r.seed, r.dropped, r.writeFirst))
		s.stats.Elided += len(r.writeFirst)
	}

	region(0)

	k := 0
	for _, v := range b.Values {
		if k < len(bd.calls) && v == bd.calls[k] {
			if r := bd.allocs[k]; r != nil {
				s.callSite(bd, k, r, v, &vals, emit)
			} else {
				vals = append(vals, v)
			}
			k++
			region(k)
			continue
		}

		if vr := bd.vars[v]; vr != nil && bd.allocs[k] != nil {
			if addr, ok := bd.allocs[k].layout.addrOf(vr); ok {
				v.Addr = ir.Addr{Kind: ir.AddrSPM, Sym: v.Addr.Sym, Off: s.cfg.Base + addr + v.Addr.Off}
				s.stats.Rewritten++
				changed = true
			}
		}
		vals = append(vals, v)
	}

	if last := bd.last(); last != nil && last.compTo != nil {
		// Frame objects of a function being left are never reloaded.
		// Toward a closed loop header everything its first region holds
		// is brought in, except what that region overwrites unread.
		gone := bd.dead
		skip := gone
		if last.compRegion {
			skip = last.compTo.writeFirst
		}
		emit(reconcile(last.compTo, last, gone, skip))
	}

	b.Values = vals
	for _, v := range vals {
		v.Block = b
	}

	if s.tr.If("spm_blocks") {
		s.tr.Printw("materialized", "func", b.Func.Name, "block", b, "values", len(vals))
	}

	return changed
}

// callSite emits call v, the k-th of bd, with the transfers around it.
// A compensated call brings the scratchpad to the callee's entry state
// before and back from its exit state after; a callee never explored runs
// from main memory, so everything dirty is written back and everything
// resident reloaded.
func (s *Pass) callSite(bd *blockData, k int, r *allocResult, v *ir.Value, vals *[]*ir.Value, emit func([]Transfer)) {
	var in, out *allocResult
	var stack varSet
	if cs := s.funcs[bd.callees[k]]; cs != nil && !bd.opaque[k] {
		in, out, stack = cs.entryIn, cs.exitBase, cs.stack
	}

	switch {
	case bd.compCall[k]:
		emit(reconcile(in, r, nil, nil))
	case bd.enter[k] != nil:
		emit(reconcile(bd.enter[k], r, nil, nil))
	}

	*vals = append(*vals, v)

	if bd.compCall[k] {
		emit(reconcile(r, out, stack, nil))
	}
}

// transfer returns the push and pop values copying t.Var.
// Chunks are pushed in ascending order and popped in descending order.
func (s *Pass) transfer(f *ir.Func, t Transfer) []*ir.Value {
	v := t.Var
	var src, dst func(off int64) ir.Addr

	home := func(off int64) ir.Addr { return ir.SymAddr(v.Home, off) }
	spm := func(base int64) func(off int64) ir.Addr {
		return func(off int64) ir.Addr {
			return ir.Addr{Kind: ir.AddrSPM, Sym: v.Home, Off: s.cfg.Base + base + off}
		}
	}

	switch t.Kind {
	case TransferIn:
		src, dst = home, spm(t.To)
	case TransferOut:
		src, dst = spm(t.From), home
	case TransferMove:
		src, dst = spm(t.From), spm(t.To)
	}

	chunks := s.chunks(v.Size)
	vals := make([]*ir.Value, 0, 2*len(chunks))

	var off int64
	offs := make([]int64, len(chunks))
	for i, w := range chunks {
		offs[i] = off
		p := f.NewDetachedValue(ir.OpPush)
		p.Addr, p.AuxInt = src(off), w
		vals = append(vals, p)
		off += w
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		p := f.NewDetachedValue(ir.OpPop)
		p.Addr, p.AuxInt = dst(offs[i]), chunks[i]
		vals = append(vals, p)
	}

	s.stats.Values += len(vals)
	return vals
}

// chunks splits size bytes into transfer widths. Each step takes the
// widest configured width dividing the bytes left.
func (s *Pass) chunks(size int64) []int64 {
	var r []int64
	for left := size; left > 0; {
		w := int64(1)
		for _, x := range s.cfg.WordSizes {
			if x <= left && left%x == 0 {
				w = x
				break
			}
		}
		r = append(r, w)
		left -= w
	}
	return r
}
