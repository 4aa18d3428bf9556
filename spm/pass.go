// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spm places data objects in a scratchpad memory.
//
// The pass decides for every region of code, the stretch of a basic block
// between two calls, which variables live in the small fast scratchpad and
// which stay in main memory. Regions are visited in control flow order
// starting at the entry procedure; callees are walked from their most
// frequent call site, so the scratchpad state flows across calls and
// returns. Where control flow merges the states of the incoming paths are
// reconciled with transfers at the end of the predecessors, and loops keep
// their variables at fixed addresses for all iterations.
//
// Finally the decisions are materialized: transfers become push/pop pairs
// and accesses to resident variables are redirected to the scratchpad.
package spm

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/fkuehnel/golang-spm/freq"
	"github.com/fkuehnel/golang-spm/ir"
)

// ErrIrreducible is returned for control flow with multiple entry loops.
var ErrIrreducible = errors.New("irreducible loop")

// Frequencies provides execution frequency estimates and the call graph.
type Frequencies interface {
	// BlockFreq returns how often b runs per execution of its function.
	BlockFreq(b *ir.Block) float64
	IsRoot(f *ir.Func) bool
	Callees(f *ir.Func) []ir.CallEdge
}

// A StackFixer repairs stack pointer relative operands after pushes and
// pops were inserted into f.
type StackFixer func(f *ir.Func) error

// Result summarizes a run.
type Result struct {
	Funcs       int // functions rewritten
	Regions     int // regions allocated
	Explored    int // calls the walk followed into the callee
	Compensated int // calls bracketed by compensation transfers
	Transfers   int
	Values      int // push and pop values inserted
	Rewritten   int // accesses redirected to the scratchpad
	Elided      int // copy-ins skipped since the region overwrites the variable first

	Loops []LoopInfo
}

// LoopInfo describes a closed loop.
type LoopInfo struct {
	Func   string
	Header *ir.Block

	// Carried variables stay at their address for the whole loop.
	Carried []Placement

	// Preheader are the transfers run when entering the loop.
	Preheader []Transfer
}

// A Placement is a variable at a scratchpad offset.
type Placement struct {
	Var  *Var
	Addr int64
}

func (p Placement) String() string { return fmt.Sprintf("%v@%d", p.Var, p.Addr) }

// Option configures a Pass.
type Option func(*Pass)

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(s *Pass) { s.classify = c }
}

// WithFrequencies replaces the static estimate of package freq.
func WithFrequencies(f Frequencies) Option {
	return func(s *Pass) { s.freq = f }
}

// WithStackFixer replaces ir.FixStack.
func WithStackFixer(fx StackFixer) Option {
	return func(s *Pass) { s.fix = fx }
}

// Pass holds the state of one placement run.
type Pass struct {
	prog *ir.Program
	cfg  Config

	classify Classifier
	freq     Frequencies
	fix      StackFixer

	vars  *varTable
	funcs map[*ir.Func]*funcState
	reach map[*ir.Func][]bool
	loops []*loopRecord
	queue []task

	tr    tlog.Span
	stats Result
}

// New returns a pass placing the data of prog.
func New(prog *ir.Program, cfg Config, opts ...Option) *Pass {
	s := &Pass{
		prog:     prog,
		cfg:      cfg,
		classify: DefaultClassifier,
		fix:      ir.FixStack,
		vars:     newVarTable(),
		funcs:    map[*ir.Func]*funcState{},
		reach:    map[*ir.Func][]bool{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run places the data of prog.
func Run(ctx context.Context, prog *ir.Program, cfg Config, opts ...Option) (*Result, error) {
	return New(prog, cfg, opts...).Run(ctx)
}

// Run performs the placement and rewrites the program.
// A program that was placed before is left alone.
func (s *Pass) Run(ctx context.Context) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "spm placement", "entry", s.cfg.Entry, "size", s.cfg.Size)
	defer tr.Finish("err", &err)

	s.tr = tr

	if s.prog.Placed {
		tr.Printw("already placed")
		return &Result{}, nil
	}

	if err := s.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}

	entry := s.prog.Lookup(s.cfg.Entry)
	if entry == nil || entry.External() {
		return nil, errors.New("entry procedure %q is not defined", s.cfg.Entry)
	}

	for _, f := range s.prog.Defined() {
		if n := ir.SplitCritical(f); n != 0 && tr.If("spm_blocks") {
			tr.Printw("split critical edges", "func", f.Name, "n", n)
		}
		if f.Loopnest().HasIrreducible {
			return nil, errors.Wrap(ErrIrreducible, "%v", f.Name)
		}
	}

	if s.freq == nil {
		s.freq = freq.Estimate(s.prog)
	}

	s.collect()
	s.propagate()

	if tr.If("spm_dump") {
		s.dumpBlocks()
	}

	if err := s.walk(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "walk")
	}

	if tr.If("spm_alloc") {
		s.dumpAllocs()
	}

	s.report()

	if err := s.materialize(); err != nil {
		return nil, err
	}

	s.prog.Placed = true

	tr.Printw("placed",
		"funcs", s.stats.Funcs,
		"regions", s.stats.Regions,
		"transfers", s.stats.Transfers,
		"rewritten", s.stats.Rewritten,
		"elided", s.stats.Elided)

	res = &s.stats

	return res, nil
}

// Layout returns the scratchpad contents at the end of region k of b,
// or nil if the region was never allocated.
func (s *Pass) Layout(b *ir.Block, k int) []Placement {
	r := s.alloc(b, k)
	if r == nil {
		return nil
	}
	return placements(r)
}

// Dirty reports whether v is resident and newer than its home at the end
// of region k of b.
func (s *Pass) Dirty(b *ir.Block, k int, v *Var) bool {
	r := s.alloc(b, k)
	return r != nil && r.modified[v]
}

// Var returns the variable descriptor of key, or nil.
func (s *Pass) Var(key any) *Var {
	return s.vars.byKey[key]
}

func (s *Pass) alloc(b *ir.Block, k int) *allocResult {
	fs := s.funcs[b.Func]
	if fs == nil {
		return nil
	}
	bd := fs.bd(b)
	if bd == nil || k < 0 || k >= len(bd.allocs) {
		return nil
	}
	return bd.allocs[k]
}

func placements(r *allocResult) []Placement {
	ps := make([]Placement, 0, len(r.layout.slots)-1)
	for _, sl := range r.layout.slots[1:] {
		ps = append(ps, Placement{Var: sl.v, Addr: sl.addr})
	}
	return ps
}

// report records the closed loops.
func (s *Pass) report() {
	for _, l := range s.loops {
		if !l.closed {
			continue
		}
		fs := s.funcs[l.header.Func]
		h0 := fs.bd(l.header).allocs[0]
		ln := l.header.Func.Loopnest()

		info := LoopInfo{
			Func:   l.header.Func.Name,
			Header: l.header,
		}
		for _, c := range l.carried {
			info.Carried = append(info.Carried, Placement{Var: c.v, Addr: c.addr})
		}
		for _, e := range l.header.Preds {
			p := e.Block()
			if ln.IsBackedge(p, l.header) {
				continue
			}
			last := fs.bd(p).last()
			if last == nil {
				continue
			}
			info.Preheader = append(info.Preheader, reconcile(h0, last, fs.bd(p).dead, h0.writeFirst)...)
		}
		s.stats.Loops = append(s.stats.Loops, info)
	}
}

func fatalf(format string, args ...any) {
	panic(fmt.Sprintf("spm: "+format, args...))
}
