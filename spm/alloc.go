// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"tlog.app/go/errors"

	"github.com/fkuehnel/golang-spm/ir"
)

// TransferKind is the direction of a transfer.
type TransferKind uint8

const (
	TransferIn   TransferKind = iota // main memory to scratchpad
	TransferOut                      // scratchpad to main memory
	TransferMove                     // scratchpad to scratchpad
)

func (k TransferKind) String() string {
	switch k {
	case TransferIn:
		return "in"
	case TransferOut:
		return "out"
	case TransferMove:
		return "move"
	}
	return fmt.Sprintf("TransferKind(%d)", uint8(k))
}

// A Transfer copies one variable between memories.
// From is the scratchpad source of Out and Move, To the scratchpad
// destination of In and Move.
type Transfer struct {
	Kind TransferKind
	Var  *Var
	From int64
	To   int64
}

func (t Transfer) String() string {
	switch t.Kind {
	case TransferIn:
		return fmt.Sprintf("in %v -> %d", t.Var, t.To)
	case TransferOut:
		return fmt.Sprintf("out %v <- %d", t.Var, t.From)
	}
	return fmt.Sprintf("move %v %d -> %d", t.Var, t.From, t.To)
}

func hasTransfer(ts []Transfer, v *Var) bool {
	return lo.ContainsBy(ts, func(t Transfer) bool { return t.Var == v })
}

func dropTransfer(ts []Transfer, v *Var) []Transfer {
	return lo.Reject(ts, func(t Transfer, _ int) bool { return t.Var == v })
}

// allocResult is the scratchpad state at the end of one region.
type allocResult struct {
	b      *ir.Block
	region int

	free       int64
	layout     layout
	resident   varSet
	modified   varSet // resident and newer than main memory
	writeFirst varSet // copied in without loading

	copyIn  []Transfer
	swapOut []Transfer
	retain  varSet // resident variables the region relies on

	// seed is the in-state of the region, nil for an empty scratchpad.
	// dropped are the frame objects of a returned function left out of it.
	seed    *allocResult
	dropped varSet

	// compTo is the state the end of the block must be brought to,
	// if it differs from this one. compRegion is set when compTo is
	// the first region of the successor itself.
	compTo     *allocResult
	compRegion bool
}

func newAlloc(capacity int64) *allocResult {
	return &allocResult{
		free:       capacity,
		layout:     newLayout(capacity),
		resident:   varSet{},
		modified:   varSet{},
		writeFirst: varSet{},
		retain:     varSet{},
		dropped:    varSet{},
	}
}

// seedFrom starts a region from the state prev leaves behind.
// Frame objects in dead are dropped without writing them back.
func seedFrom(prev *allocResult, capacity int64, dead varSet) *allocResult {
	r := newAlloc(capacity)
	r.seed = prev
	if prev == nil {
		return r
	}
	r.free = prev.free
	r.layout = prev.layout.clone()
	r.resident = prev.resident.clone()
	r.modified = prev.modified.clone()

	for _, v := range dead.sorted() {
		if !r.resident[v] {
			continue
		}
		r.layout.removeVar(v)
		delete(r.resident, v)
		delete(r.modified, v)
		r.free += v.Size
		r.dropped[v] = true
	}
	return r
}

// allocRegion decides the scratchpad contents for region k of bd,
// starting from prev. dead is applied when control returns from a call.
func (s *Pass) allocRegion(bd *blockData, k int, prev *allocResult, dead varSet) *allocResult {
	r := seedFrom(prev, s.cfg.Size, dead)
	r.b, r.region = bd.b, k

	for _, a := range bd.regions[k] {
		s.admit(r, bd, k, a)
	}

	r.commit()
	if err := r.check(s.cfg.Size); err != nil {
		fatalf("%v region %d: %v", bd.b, k, err)
	}
	return r
}

// admit tries to make a.v resident for the rest of the region.
func (s *Pass) admit(r *allocResult, bd *blockData, k int, a *access) {
	v := a.v
	if r.resident[v] {
		if hasTransfer(r.swapOut, v) {
			return
		}
		r.retain[v] = true
		if a.modified {
			r.modified[v] = true
		}
		return
	}
	if v.Size > s.cfg.Size {
		return
	}

	gain := bd.freq * float64(a.count) * s.cfg.LatencyDiff
	load := s.cfg.ThroughputSPM * float64(v.Size)
	if gain-load <= 0 {
		return
	}

	if v.Size <= r.free {
		if i := r.layout.bestFit(v.Size); i >= 0 {
			s.copyIn(r, a, i, r.layout.slots[i].end())
			return
		}
	}

	first, last, ok := s.evictionRun(r, bd, k, v.Size)
	if !ok {
		return
	}

	var loss float64
	for i := first; i <= last; i++ {
		w := r.layout.slots[i].v
		loss += bd.freq * float64(bd.countIn(k, w)) * s.cfg.LatencyDiff
		if r.modified[w] {
			loss += s.cfg.ThroughputRAM * float64(w.Size)
		}
	}
	if gain-loss-load <= 0 {
		return
	}

	for i := last; i >= first; i-- {
		sl := r.layout.slots[i]
		r.swapOut = append(r.swapOut, Transfer{Kind: TransferOut, Var: sl.v, From: sl.addr})
		r.layout.remove(i)
		r.free += sl.v.Size
	}
	s.copyIn(r, a, first-1, r.layout.slots[first-1].end())
}

func (s *Pass) copyIn(r *allocResult, a *access, i int, addr int64) {
	v := a.v
	r.layout.insertAfter(i, v, addr)
	r.free -= v.Size
	r.copyIn = append(r.copyIn, Transfer{Kind: TransferIn, Var: v, To: addr})
	r.retain[v] = true
	if a.modified {
		r.modified[v] = true
	}
	if a.writeFirst {
		r.writeFirst[v] = true
	}
}

// evictionRun finds consecutive slots first..last whose variables can be
// swapped out so that, with the free bytes around them, size bytes fit.
// The run wasting the fewest bytes wins. Among equal runs the one whose
// variables are needed latest wins.
func (s *Pass) evictionRun(r *allocResult, bd *blockData, k int, size int64) (first, last int, ok bool) {
	slots := r.layout.slots
	candidate := func(v *Var) bool {
		return !r.retain[v] && !hasTransfer(r.copyIn, v)
	}

	bestLeft := int64(math.MaxInt64)
	var bestNext int32 = -1
	for i := 1; i < len(slots); i++ {
		if !candidate(slots[i].v) {
			continue
		}
		total := slots[i-1].gap + slots[i].size() + slots[i].gap
		j := i
		for total < size && j+1 < len(slots) && candidate(slots[j+1].v) {
			j++
			total += slots[j].size() + slots[j].gap
		}
		if total < size {
			continue
		}

		left := total - size
		next := int32(math.MaxInt32)
		for x := i; x <= j; x++ {
			next = min(next, s.nextUse(bd, k, slots[x].v))
		}
		if left < bestLeft || left == bestLeft && next > bestNext {
			first, last, ok = i, j, true
			bestLeft, bestNext = left, next
		}
	}
	return first, last, ok
}

// nextUse returns the distance from the start of region k of bd to the
// next read of v within the same function.
func (s *Pass) nextUse(bd *blockData, k int, v *Var) int32 {
	fs := s.funcs[bd.b.Func]
	if fs.live == nil {
		fs.live = computeLive(fs.f, fs.uses, s.vars.list)
	}
	return fs.live.nextUse(bd.b, bd.start[k], v)
}

// commit applies the region's transfers to its resident set.
func (r *allocResult) commit() {
	for _, t := range r.copyIn {
		r.resident[t.Var] = true
	}
	var out []Transfer
	for _, t := range r.swapOut {
		delete(r.resident, t.Var)
		if r.modified[t.Var] {
			out = append(out, t)
		}
		delete(r.modified, t.Var)
	}
	r.swapOut = out
	r.retain = varSet{}
}

func (r *allocResult) check(capacity int64) error {
	if err := r.layout.check(capacity); err != nil {
		return err
	}
	if f := r.layout.free(); f != r.free {
		return errors.New("free %d, layout has %d", r.free, f)
	}
	vs := r.layout.vars()
	if len(vs) != len(r.resident) {
		return errors.New("%d placed, %d resident", len(vs), len(r.resident))
	}
	for _, v := range vs {
		if !r.resident[v] {
			return errors.New("%v placed but not resident", v)
		}
	}
	for v := range r.modified {
		if !r.resident[v] {
			return errors.New("%v modified but not resident", v)
		}
	}
	return nil
}

// empty returns a scratchpad state holding nothing.
func (s *Pass) empty() *allocResult {
	return newAlloc(s.cfg.Size)
}
