// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"tlog.app/go/errors"
)

// A slot is a variable placed at addr followed by gap free bytes.
// The first slot of a layout is a sentinel with no variable at address 0.
type slot struct {
	addr int64
	v    *Var
	gap  int64
}

func (s slot) size() int64 {
	if s.v == nil {
		return 0
	}
	return s.v.Size
}

func (s slot) end() int64 { return s.addr + s.size() }

// layout is the address map of the scratchpad, ordered by address.
type layout struct {
	slots []slot
}

func newLayout(capacity int64) layout {
	return layout{slots: []slot{{gap: capacity}}}
}

func (l layout) clone() layout {
	return layout{slots: append([]slot(nil), l.slots...)}
}

// find returns the slot index of v or -1.
func (l *layout) find(v *Var) int {
	for i := 1; i < len(l.slots); i++ {
		if l.slots[i].v == v {
			return i
		}
	}
	return -1
}

func (l *layout) addrOf(v *Var) (int64, bool) {
	i := l.find(v)
	if i < 0 {
		return 0, false
	}
	return l.slots[i].addr, true
}

// vars returns the placed variables in address order.
func (l *layout) vars() []*Var {
	vs := make([]*Var, 0, len(l.slots)-1)
	for _, s := range l.slots[1:] {
		vs = append(vs, s.v)
	}
	return vs
}

// remove frees slot i, giving its bytes to the gap before it.
func (l *layout) remove(i int) {
	if i <= 0 || i >= len(l.slots) {
		fatalf("remove slot %d of %d", i, len(l.slots))
	}
	s := l.slots[i]
	l.slots[i-1].gap += s.size() + s.gap
	l.slots = append(l.slots[:i], l.slots[i+1:]...)
}

func (l *layout) removeVar(v *Var) bool {
	i := l.find(v)
	if i < 0 {
		return false
	}
	l.remove(i)
	return true
}

// insertAfter places v at addr inside the gap following slot i.
func (l *layout) insertAfter(i int, v *Var, addr int64) {
	p := &l.slots[i]
	end := p.end()
	if addr < end || addr+v.Size > end+p.gap {
		fatalf("%v at %d does not fit after slot %d [%d+%d]", v, addr, i, end, p.gap)
	}
	n := slot{addr: addr, v: v, gap: end + p.gap - addr - v.Size}
	p.gap = addr - end
	l.slots = append(l.slots, slot{})
	copy(l.slots[i+2:], l.slots[i+1:])
	l.slots[i+1] = n
}

// place puts v at addr, which must lie in free space.
func (l *layout) place(v *Var, addr int64) bool {
	for i, s := range l.slots {
		if s.end() <= addr && addr+v.Size <= s.end()+s.gap {
			l.insertAfter(i, v, addr)
			return true
		}
	}
	return false
}

// bestFit returns the slot whose following gap is the smallest one holding
// size bytes, or -1. Ties go to the lowest address.
func (l *layout) bestFit(size int64) int {
	best := -1
	for i, s := range l.slots {
		if s.gap < size {
			continue
		}
		if best < 0 || s.gap < l.slots[best].gap {
			best = i
		}
	}
	return best
}

// overlapping returns the indices of the slots intersecting [addr, addr+size).
func (l *layout) overlapping(addr, size int64) []int {
	var r []int
	for i := 1; i < len(l.slots); i++ {
		s := l.slots[i]
		if s.addr < addr+size && addr < s.end() {
			r = append(r, i)
		}
	}
	return r
}

func (l *layout) free() int64 {
	var n int64
	for _, s := range l.slots {
		n += s.gap
	}
	return n
}

// check verifies that the slots tile [0, capacity) exactly.
func (l *layout) check(capacity int64) error {
	if len(l.slots) == 0 || l.slots[0].v != nil || l.slots[0].addr != 0 {
		return errors.New("missing sentinel")
	}
	var at int64
	for i, s := range l.slots {
		if s.addr != at {
			return errors.New("slot %d (%v) at %d, want %d", i, s.v, s.addr, at)
		}
		if i > 0 && s.v == nil {
			return errors.New("slot %d holds no variable", i)
		}
		if s.gap < 0 {
			return errors.New("slot %d (%v) has negative gap %d", i, s.v, s.gap)
		}
		at = s.end() + s.gap
	}
	if at != capacity {
		return errors.New("layout covers %d bytes, want %d", at, capacity)
	}
	return nil
}
