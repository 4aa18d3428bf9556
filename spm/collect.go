// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"slices"

	"github.com/fkuehnel/golang-spm/ir"
)

// access summarizes the accesses of one region to one variable.
type access struct {
	v          *Var
	count      int
	modified   bool
	writeFirst bool // the first access of the region overwrites all of v
	sawRead    bool
}

func (a *access) density() float64 {
	return float64(a.count) / float64(a.v.Size)
}

// blockData is what the pass knows about one basic block.
//
// A block is split into regions at its calls: region k runs from
// call k-1 (or the block start) up to call k.
type blockData struct {
	b       *ir.Block
	regions [][]*access
	start   []int32 // first value index of each region
	calls   []*ir.Value
	callees []*ir.Func
	vars    map[*ir.Value]*Var // placeable accesses

	freq float64 // highest global frequency over all invocations

	allocs   []*allocResult // one per region, nil until allocated
	enter    []*allocResult // state handed to the callee explored from call k
	compCall []bool         // call k is not explored and needs compensation
	opaque   []bool         // call k may touch any data

	dead   varSet // frame objects dying when leaving through b
	closed bool   // b heads a closed loop, region 0 is its own in-state
}

// last returns the allocation of the final region of b, if done.
func (bd *blockData) last() *allocResult {
	return bd.allocs[len(bd.allocs)-1]
}

func (bd *blockData) done() bool {
	return bd.last() != nil
}

// countIn returns how often region k accesses v.
func (bd *blockData) countIn(k int, v *Var) int {
	for _, a := range bd.regions[k] {
		if a.v == v {
			return a.count
		}
	}
	return 0
}

// funcState is the per function state of a run.
type funcState struct {
	f      *ir.Func
	blocks []*blockData // by block ID
	uses   [][]varUse   // by block ID
	stack  varSet       // frame objects accessed by f

	explored bool
	entryIn  *allocResult // in-state of the entry block, nil for empty
	exitBase *allocResult // scratchpad state when f returns
	joined   bool         // return blocks were joined

	live *liveness
}

func (fs *funcState) bd(b *ir.Block) *blockData {
	return fs.blocks[b.ID]
}

// collect scans every defined function for calls and placeable accesses.
func (s *Pass) collect() {
	for _, f := range s.prog.Defined() {
		fs := &funcState{
			f:      f,
			blocks: make([]*blockData, f.NumBlocks()),
			uses:   make([][]varUse, f.NumBlocks()),
			stack:  varSet{},
		}
		s.funcs[f] = fs

		for _, b := range f.Blocks {
			fs.blocks[b.ID] = s.collectBlock(fs, b)
		}

		if f.Exit != nil {
			for _, e := range f.Exit.Preds {
				fs.bd(e.Block()).dead = fs.stack
			}
		}
	}
}

func (s *Pass) collectBlock(fs *funcState, b *ir.Block) *blockData {
	bd := &blockData{
		b:       b,
		regions: [][]*access{nil},
		start:   []int32{0},
		vars:    map[*ir.Value]*Var{},
	}
	index := map[*Var]*access{}

	for i, v := range b.Values {
		a, ok := s.classify(v)
		if !ok {
			continue
		}

		if a.Kind == KindCallee {
			bd.calls = append(bd.calls, v)
			bd.callees = append(bd.callees, a.Callee)
			bd.opaque = append(bd.opaque, a.Opaque)
			fs.uses[b.ID] = append(fs.uses[b.ID], varUse{idx: int32(i)})

			bd.regions = append(bd.regions, nil)
			bd.start = append(bd.start, int32(i+1))
			index = map[*Var]*access{}
			continue
		}

		if a.Size <= 0 {
			continue
		}

		vr := s.vars.get(a, b.Func)
		if vr.Kind == KindStack && vr.Func == b.Func {
			fs.stack[vr] = true
		}
		bd.vars[v] = vr
		fs.uses[b.ID] = append(fs.uses[b.ID], varUse{idx: int32(i), v: vr, kill: a.WriteFirst})

		k := len(bd.regions) - 1
		acc := index[vr]
		if acc == nil {
			acc = &access{v: vr}
			index[vr] = acc
			bd.regions[k] = append(bd.regions[k], acc)
		}
		acc.count++
		acc.modified = acc.modified || a.Modified
		if a.WriteFirst && !acc.sawRead {
			acc.writeFirst = true
		}
		if !a.Modified {
			acc.sawRead = true
		}
	}

	for _, r := range bd.regions {
		slices.SortStableFunc(r, func(x, y *access) int {
			dx, dy := x.density(), y.density()
			switch {
			case dx > dy:
				return -1
			case dx < dy:
				return 1
			}
			return 0
		})
	}

	bd.allocs = make([]*allocResult, len(bd.regions))
	bd.enter = make([]*allocResult, len(bd.calls))
	bd.compCall = make([]bool, len(bd.calls))

	return bd
}
