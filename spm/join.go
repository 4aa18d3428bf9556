// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

// reconcile returns the transfers that turn scratchpad state other into
// state base. A nil state is an empty scratchpad.
//
// Variables of other in gone are treated as absent; their contents are no
// longer needed. Variables of other that base does not hold, or holds
// clean, are written back first if they are dirty. Then variables base
// holds at another address are moved, and finally variables missing from
// other are copied in, except those in skip.
func reconcile(base, other *allocResult, gone, skip varSet) []Transfer {
	var outs, moves, ins []Transfer
	written := varSet{}

	out := func(v *Var, from int64) {
		if written[v] {
			return
		}
		written[v] = true
		outs = append(outs, Transfer{Kind: TransferOut, Var: v, From: from})
	}

	has := func(v *Var) bool {
		if other == nil || gone[v] {
			return false
		}
		_, ok := other.layout.addrOf(v)
		return ok
	}

	if other != nil {
		for _, sl := range other.layout.slots[1:] {
			v := sl.v
			if gone[v] {
				continue
			}
			dirty := other.modified[v]

			var (
				to     int64
				inBase bool
			)
			if base != nil {
				to, inBase = base.layout.addrOf(v)
			}

			if dirty && (!inBase || !base.modified[v]) {
				out(v, sl.addr)
			}
			if inBase && to != sl.addr {
				moves = append(moves, Transfer{Kind: TransferMove, Var: v, From: sl.addr, To: to})
			}
		}
	}

	moves, reload := sequentialize(moves)
	for _, m := range reload {
		if other.modified[m.Var] {
			out(m.Var, m.From)
		}
		ins = append(ins, Transfer{Kind: TransferIn, Var: m.Var, To: m.To})
	}

	if base != nil {
		for _, sl := range base.layout.slots[1:] {
			if has(sl.v) || skip[sl.v] {
				continue
			}
			ins = append(ins, Transfer{Kind: TransferIn, Var: sl.v, To: sl.addr})
		}
	}

	r := make([]Transfer, 0, len(outs)+len(moves)+len(ins))
	r = append(r, outs...)
	r = append(r, moves...)
	r = append(r, ins...)
	return r
}

// sequentialize orders parallel scratchpad moves so that no move overwrites
// the source of a move still pending. Moves caught in a cycle are returned
// in reload; they go through main memory instead.
func sequentialize(moves []Transfer) (seq, reload []Transfer) {
	pending := append([]Transfer(nil), moves...)

	for len(pending) > 0 {
		found := -1
		for i, m := range pending {
			if !clobbers(m, pending, i) {
				found = i
				break
			}
		}
		if found < 0 {
			reload = append(reload, pending[0])
			pending = pending[1:]
			continue
		}
		seq = append(seq, pending[found])
		pending = append(pending[:found], pending[found+1:]...)
	}

	return seq, reload
}

// clobbers reports whether m writes over the source of another pending move.
func clobbers(m Transfer, pending []Transfer, self int) bool {
	size := m.Var.Size
	for i, o := range pending {
		if i == self {
			continue
		}
		if m.To < o.From+o.Var.Size && o.From < m.To+size {
			return true
		}
	}
	return false
}
