// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"context"
	"slices"

	"github.com/fkuehnel/golang-spm/ir"
)

// status is the readiness of a task's block.
type status uint8

const (
	statusUnknown        status = iota
	statusNotDone               // a forward predecessor is missing
	statusPredsDone             // single predecessor, or continuing after a call
	statusCondJoin              // several predecessors, all done
	statusUnfinishedLoop        // loop header entered from outside
	statusFinishedLoop          // loop header reached through its last back edge
)

var statusNames = [...]string{
	statusUnknown:        "unknown",
	statusNotDone:        "not-done",
	statusPredsDone:      "preds-done",
	statusCondJoin:       "cond-join",
	statusUnfinishedLoop: "unfinished-loop",
	statusFinishedLoop:   "finished-loop",
}

func (s status) String() string { return statusNames[s] }

// A task asks for the regions of b from region calls on to be allocated.
type task struct {
	b      *ir.Block
	status status
	calls  int

	// lastBlock and lastAlloc are where control comes from.
	lastBlock *ir.Block
	lastAlloc *allocResult

	// caller is resumed when the function of b returns.
	caller *task

	// dead are the frame objects of the function just returned from.
	dead varSet

	loops []*loopRecord // open loops, innermost last
}

func (t *task) innermost() *loopRecord {
	if len(t.loops) == 0 {
		return nil
	}
	return t.loops[len(t.loops)-1]
}

func (s *Pass) push(t task) {
	s.queue = append(s.queue, t)
}

// walk allocates every region reachable from the entry function.
func (s *Pass) walk(ctx context.Context, entry *ir.Func) error {
	fs := s.funcs[entry]
	fs.explored = true
	s.push(task{b: entry.Entry, status: statusPredsDone})

	for len(s.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.step(t)
	}
	return nil
}

func (s *Pass) step(t task) {
	fs := s.funcs[t.b.Func]
	bd := fs.bd(t.b)

	if t.status == statusUnknown {
		t.status = s.predStatus(fs, t.b)
		if t.status == statusNotDone {
			return
		}
	}

	if t.b == t.b.Func.Exit {
		s.leave(t, fs)
		return
	}

	if bd.allocs[t.calls] != nil && t.status != statusFinishedLoop {
		return
	}

	if s.tr.If("spm_walk") {
		s.tr.Printw("visit", "func", t.b.Func.Name, "block", t.b, "region", t.calls, "status", t.status, "freq", bd.freq)
	}

	switch t.status {
	case statusFinishedLoop:
		s.finishLoop(t, fs, bd)
		return
	case statusUnfinishedLoop:
		t = s.enterLoop(t, fs)
	case statusCondJoin:
		s.condJoin(t, fs)
	}

	k := t.calls
	r := s.allocRegion(bd, k, t.lastAlloc, t.dead)
	bd.allocs[k] = r
	for _, l := range t.loops {
		l.add(r, bd)
	}
	s.stats.Regions++

	if k < len(bd.calls) {
		s.call(t, bd, r)
		return
	}

	s.successors(t, fs, r)
}

// predStatus classifies b by the state of its reachable predecessors.
func (s *Pass) predStatus(fs *funcState, b *ir.Block) status {
	ln := b.Func.Loopnest()
	reach := s.reachable(b.Func)

	var fwd, back, backDone int
	for _, e := range b.Preds {
		p := e.Block()
		if !reach[p.ID] {
			continue
		}
		done := fs.bd(p).done()
		if ln.IsBackedge(p, b) {
			back++
			if done {
				backDone++
			}
			continue
		}
		if !done {
			return statusNotDone
		}
		fwd++
	}

	switch {
	case back > 0 && backDone < back:
		return statusUnfinishedLoop
	case back > 0:
		return statusFinishedLoop
	case fwd >= 2:
		return statusCondJoin
	}
	return statusPredsDone
}

func (s *Pass) reachable(f *ir.Func) []bool {
	r := s.reach[f]
	if r == nil {
		r = f.Reachable()
		s.reach[f] = r
	}
	return r
}

// condJoin makes every other predecessor adapt to the state t arrives with.
func (s *Pass) condJoin(t task, fs *funcState) {
	reach := s.reachable(t.b.Func)
	ln := t.b.Func.Loopnest()
	for _, e := range t.b.Preds {
		p := e.Block()
		if p == t.lastBlock || !reach[p.ID] || ln.IsBackedge(p, t.b) {
			continue
		}
		last := fs.bd(p).last()
		last.compTo, last.compRegion = t.lastAlloc, false
		if last.compTo == nil {
			last.compTo = s.empty()
		}
	}
}

// enterLoop opens a loop record for the header t.b.
func (s *Pass) enterLoop(t task, fs *funcState) task {
	l := &loopRecord{
		loop:   t.b.Func.Loopnest().HeaderOf(t.b),
		header: t.b,
		vars:   varSet{},
	}
	s.loops = append(s.loops, l)

	s.condJoin(t, fs)

	t.loops = append(slices.Clone(t.loops), l)
	return t
}

// finishLoop closes the loop headed by t.b once its last back edge is done.
func (s *Pass) finishLoop(t task, fs *funcState, bd *blockData) {
	i := slices.IndexFunc(t.loops, func(l *loopRecord) bool { return l.header == t.b })
	if i < 0 {
		return
	}
	l := t.loops[i]
	if l.closed {
		return
	}

	ln := t.b.Func.Loopnest()
	reach := s.reachable(t.b.Func)

	final := t.lastAlloc
	if t.lastBlock == nil || t.lastBlock.Func != t.b.Func || !ln.IsBackedge(t.lastBlock, t.b) {
		final = nil
		best := -1.0
		for _, e := range t.b.Preds {
			p := e.Block()
			if !reach[p.ID] || !ln.IsBackedge(p, t.b) {
				continue
			}
			if pd := fs.bd(p); pd.freq > best {
				final, best = pd.last(), pd.freq
			}
		}
	}

	s.closeLoop(l, final)

	h0 := bd.allocs[0]
	bd.closed = true
	for _, e := range t.b.Preds {
		p := e.Block()
		if !reach[p.ID] {
			continue
		}
		last := fs.bd(p).last()
		last.compTo, last.compRegion = h0, true
	}

	if s.tr.If("spm_loops") {
		s.dumpLoop(l)
	}

	outer := t.loops[:i]
	for _, x := range l.exits {
		s.release(x, outer)
	}
	l.exits = nil
}

// release pushes a deferred loop exit, or defers it again to the next
// enclosing loop of the same function it also leaves.
func (s *Pass) release(x task, loops []*loopRecord) {
	ln := x.b.Func.Loopnest()
	if n := len(loops); n > 0 {
		top := loops[n-1]
		if top.header.Func == x.b.Func && !ln.Contains(top.loop, x.b) {
			x.loops = loops
			top.exits = append(top.exits, x)
			return
		}
	}
	x.loops = slices.Clone(loops)
	s.push(x)
}

// successors queues the blocks following t.b.
func (s *Pass) successors(t task, fs *funcState, r *allocResult) {
	ln := t.b.Func.Loopnest()
	l := t.innermost()

	for _, e := range t.b.Succs {
		succ := e.Block()
		x := task{
			b:         succ,
			lastBlock: t.b,
			lastAlloc: r,
			caller:    t.caller,
			loops:     t.loops,
		}
		if l != nil && l.header.Func == t.b.Func && !ln.Contains(l.loop, succ) {
			l.exits = append(l.exits, x)
			continue
		}
		x.loops = slices.Clone(t.loops)
		s.push(x)
	}
}

// call continues after call k of bd, exploring the callee first if this is
// its hottest call site.
func (s *Pass) call(t task, bd *blockData, r *allocResult) {
	k := t.calls
	callee := bd.callees[k]

	next := t
	next.calls = k + 1
	next.status = statusPredsDone
	next.lastBlock = t.b
	next.lastAlloc = r
	next.dead = nil
	next.loops = slices.Clone(t.loops)

	cs := s.funcs[callee]
	if bd.opaque[k] {
		bd.compCall[k] = true
		s.stats.Compensated++
		s.push(next)
		return
	}
	if cs == nil {
		// External code does not see placed data.
		s.push(next)
		return
	}

	if callee.Exit == nil {
		// The callee never returns; it keeps running from main memory
		// and the code after the call is only allocated to keep the
		// caller's joins complete.
		bd.compCall[k] = true
		s.stats.Compensated++
		s.push(next)
		return
	}

	if !cs.explored && bd.freq >= cs.bd(callee.Entry).freq*(1-freqTolerance) {
		// The callee cannot address the caller's frame: frame objects are
		// written back and left behind at the call.
		in := seedFrom(r, s.cfg.Size, s.funcs[t.b.Func].stack)
		in.b, in.region = r.b, r.region
		bd.enter[k] = in

		cs.explored = true
		cs.entryIn = in
		caller := next
		s.push(task{
			b:         callee.Entry,
			status:    statusPredsDone,
			lastBlock: t.b,
			lastAlloc: in,
			caller:    &caller,
			loops:     slices.Clone(t.loops),
		})
		s.stats.Explored++
		return
	}

	bd.compCall[k] = true
	s.stats.Compensated++
	s.push(next)
}

const freqTolerance = 1e-9

// leave joins the return blocks of a function and resumes its caller.
func (s *Pass) leave(t task, fs *funcState) {
	if fs.joined {
		return
	}
	fs.joined = true

	exit := t.b
	reach := s.reachable(exit.Func)

	var base *ir.Block
	for _, e := range exit.Preds {
		p := e.Block()
		if !reach[p.ID] {
			continue
		}
		if base == nil || fs.bd(p).freq > fs.bd(base).freq {
			base = p
		}
	}
	if base == nil {
		return
	}
	baseAlloc := fs.bd(base).last()
	fs.exitBase = baseAlloc

	for _, e := range exit.Preds {
		p := e.Block()
		if !reach[p.ID] {
			continue
		}
		last := fs.bd(p).last()
		switch {
		case t.caller == nil:
			// Leaving the program: everything goes back to memory.
			last.compTo, last.compRegion = s.empty(), false
		case p != base:
			last.compTo, last.compRegion = baseAlloc, false
		}
	}

	if t.caller == nil {
		return
	}

	r := *t.caller
	r.lastBlock = base
	r.lastAlloc = baseAlloc
	r.dead = fs.bd(base).dead
	r.status = statusPredsDone
	s.push(r)
}
