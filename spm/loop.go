// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"github.com/fkuehnel/golang-spm/ir"
)

// loopRecord tracks a loop while the worklist is inside it.
type loopRecord struct {
	loop   *ir.Loop
	header *ir.Block

	allocs []*allocResult // regions allocated inside the loop, in order
	vars   varSet         // variables accessed inside the loop

	exits  []task // successors outside the loop, released on closing
	closed bool

	// carried are the variables pinned for the whole loop
	// and their addresses.
	carried []slot
}

func (l *loopRecord) add(r *allocResult, bd *blockData) {
	l.allocs = append(l.allocs, r)
	for _, a := range bd.regions[r.region] {
		v := a.v
		if v.Kind == KindStack && v.Func != l.header.Func {
			continue
		}
		l.vars[v] = true
	}
}

// foreign reports whether v is a frame object of another function than
// the one region r belongs to. Regions of callees explored from inside a
// loop are part of the loop, but the caller's frame is written back at the
// call and reloaded after it.
func foreign(v *Var, r *allocResult) bool {
	return v.Kind == KindStack && v.Func != r.b.Func
}

// closeLoop makes the scratchpad contents stable around the loop.
//
// The state final reaching the header through the back edge decides.
// Loop variables it holds are pinned at their final address in every
// region of the loop; whatever overlaps them there is dropped. The header
// then no longer needs transfers of its own: each predecessor adapts to
// the header's first region at its end. Frame objects stay out of the
// regions of other functions.
func (s *Pass) closeLoop(l *loopRecord, final *allocResult) {
	l.closed = true

	for _, sl := range final.layout.slots[1:] {
		if l.vars[sl.v] {
			l.carried = append(l.carried, sl)
		}
	}

	// A pinned variable never leaves the scratchpad inside the loop, so a
	// write anywhere in the loop leaves it dirty everywhere.
	dirty := varSet{}
	for _, r := range l.allocs {
		for _, c := range l.carried {
			if foreign(c.v, r) {
				continue
			}
			if r.modified[c.v] {
				dirty[c.v] = true
			}
		}
	}
	for v := range dirty {
		final.modified[v] = true
	}

	for _, r := range l.allocs {
		if r == final {
			continue
		}
		for _, c := range l.carried {
			v := c.v
			if foreign(v, r) {
				continue
			}
			r.copyIn = dropTransfer(r.copyIn, v)
			r.swapOut = dropTransfer(r.swapOut, v)

			if addr, ok := r.layout.addrOf(v); !ok || addr != c.addr {
				r.layout.removeVar(v)
				ov := r.layout.overlapping(c.addr, v.Size)
				for i := len(ov) - 1; i >= 0; i-- {
					w := r.layout.slots[ov[i]].v
					r.layout.remove(ov[i])
					delete(r.resident, w)
					delete(r.modified, w)
					delete(r.writeFirst, w)
					r.copyIn = dropTransfer(r.copyIn, w)
					r.swapOut = dropTransfer(r.swapOut, w)
				}
				if !r.layout.place(v, c.addr) {
					fatalf("%v: cannot pin %v at %d in region %v.%d", l.header, v, c.addr, r.b, r.region)
				}
				r.resident[v] = true
				delete(r.writeFirst, v)
			}
			if dirty[v] {
				r.modified[v] = true
			}
		}
		r.free = r.layout.free()
		if err := r.check(s.cfg.Size); err != nil {
			fatalf("%v: closing loop: %v", l.header, err)
		}
	}
}
