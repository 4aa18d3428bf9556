// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"math"
	"slices"

	"github.com/fkuehnel/golang-spm/ir"
)

// Distances in pseudo-instructions used to rank eviction candidates.
const (
	likelyDistance   = 1
	normalDistance   = 10
	unlikelyDistance = 100
)

// A varUse is an access or a call at position idx of a block.
type varUse struct {
	idx  int32
	v    *Var // nil for calls
	kill bool // the access overwrites all of v
}

type liveInfo struct {
	v    *Var
	dist int32 // # of instructions before next use
}

// liveness holds, for one function, the variables live at the end of each
// block together with the distance to their next use.
type liveness struct {
	f    *ir.Func
	uses [][]varUse // block ID -> accesses in value order
	vars []*Var     // seq -> variable
	live [][]liveInfo
}

// computeLive computes a map from block ID to the variables live at the end
// of that block. A variable is live if some path reads it before
// overwriting it completely.
//
// Functions without loops need a single postorder pass. Shallow loop
// nests iterate over the postorder; deeper nests are solved one SCC at a
// time with alternating visiting orders.
func computeLive(f *ir.Func, uses [][]varUse, vars []*Var) *liveness {
	lv := &liveness{
		f:    f,
		uses: uses,
		vars: vars,
		live: make([][]liveInfo, f.NumBlocks()),
	}
	// single block functions do not have variables that are live across
	// branches
	if len(f.Blocks) == 1 {
		return lv
	}
	po := f.Postorder()
	ln := f.Loopnest()

	live := newSparseMap(len(vars))
	t := newSparseMap(len(vars))

	switch {
	case len(ln.Loops) == 0:
		lv.computeLiveAcyclic(po, live, t)
	case ln.HasIrreducible || allLoopsSimple(ln, 3):
		lv.computeLiveIterative(po, live, t)
	default:
		lv.computeLiveWithSccs(live, t)
	}
	return lv
}

// allLoopsSimple reports whether all loops have nesting depth <= maxDepth.
func allLoopsSimple(ln *ir.Loopnest, maxDepth int16) bool {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	for _, l := range ln.Loops {
		if l.Depth > maxDepth {
			return false
		}
	}
	return true
}

func (lv *liveness) computeLiveAcyclic(po []*ir.Block, live, t *sparseMap) {
	// Exits first, entry last: every block is seen after its successors.
	for _, b := range po {
		lv.processBlock(b, live, t)
	}
}

func (lv *liveness) computeLiveIterative(po []*ir.Block, live, t *sparseMap) {
	for {
		changed := false
		for _, b := range po {
			if lv.processBlock(b, live, t) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
}

func (lv *liveness) computeLiveWithSccs(live, t *sparseMap) {
	sccs := slices.Collect(lv.f.SCCs())

	// Process SCCs in reverse topological order
	for j := len(sccs) - 1; j >= 0; j-- {
		scc := sccs[j]
		if len(scc) == 1 {
			lv.processBlock(scc[0], live, t)
			continue
		}
		exitward, entryward := ir.SCCAlternatingOrders(scc)
		for iter := 0; ; iter++ {
			order := exitward
			if iter&1 == 1 {
				order = entryward
			}
			changed := false
			for _, b := range order {
				if lv.processBlock(b, live, t) {
					changed = true
				}
			}
			if !changed {
				break
			}
		}
	}
}

// processBlock propagates the live-at-end set of b to its predecessors.
// Returns true if any predecessor's live set changed.
func (lv *liveness) processBlock(b *ir.Block, live, t *sparseMap) bool {
	// Start with known live variables at the end of the block
	live.clear()
	for _, e := range lv.live[b.ID] {
		live.set(e.v.seq, e.dist)
	}
	// Add len(b.Values) to adjust from end-of-block distance
	// to beginning-of-block distance.
	c := live.contents()
	for i := range c {
		c[i].val += int32(len(b.Values))
	}

	uses := lv.uses[b.ID]
	for i := len(uses) - 1; i >= 0; i-- {
		u := uses[i]
		switch {
		case u.v == nil:
			c := live.contents()
			for i := range c {
				c[i].val += unlikelyDistance
			}
		case u.kill:
			live.remove(u.v.seq)
		default:
			live.set(u.v.seq, u.idx)
		}
	}

	// For each predecessor of b, expand its list of live-at-end variables.
	// invariant: live contains the variables live at the start of b
	changed := false
	for _, e := range b.Preds {
		p := e.Block()
		delta := branchDistance(p, b)

		t.clear()
		for _, e := range lv.live[p.ID] {
			t.set(e.v.seq, e.dist)
		}
		update := false

		for _, e := range live.contents() {
			d := e.val + delta
			if !t.contains(e.key) || d < t.get(e.key) {
				update = true
				t.set(e.key, d)
			}
		}

		if !update {
			continue
		}
		lv.live[p.ID] = lv.updateLive(t, lv.live[p.ID])
		changed = true
	}
	return changed
}

// updateLive updates a given liveInfo slice with the contents of t
func (lv *liveness) updateLive(t *sparseMap, live []liveInfo) []liveInfo {
	live = live[:0]
	if cap(live) < t.size() {
		live = make([]liveInfo, 0, t.size())
	}
	for _, e := range t.contents() {
		live = append(live, liveInfo{lv.vars[e.key], e.val})
	}
	return live
}

// nextUse returns the distance from value index from of b to the next read
// of v, or math.MaxInt32 if v is overwritten or never read again.
func (lv *liveness) nextUse(b *ir.Block, from int32, v *Var) int32 {
	for _, u := range lv.uses[b.ID] {
		if u.idx < from || u.v != v {
			continue
		}
		if u.kill {
			return math.MaxInt32
		}
		return u.idx - from
	}
	for _, e := range lv.live[b.ID] {
		if e.v == v {
			return int32(len(b.Values)) - from + e.dist
		}
	}
	return math.MaxInt32
}

// branchDistance calculates the distance between a block and a
// successor in pseudo-instructions. This is used to indicate
// likeliness
func branchDistance(b *ir.Block, s *ir.Block) int32 {
	if len(b.Succs) == 2 {
		if b.Succs[0].Block() == s && b.Likely == ir.BranchLikely ||
			b.Succs[1].Block() == s && b.Likely == ir.BranchUnlikely {
			return likelyDistance
		}
		if b.Succs[0].Block() == s && b.Likely == ir.BranchUnlikely ||
			b.Succs[1].Block() == s && b.Likely == ir.BranchLikely {
			return unlikelyDistance
		}
	}
	// Note: the branch distance must be at least 1 to distinguish the last
	// use in a block from the first use in a successor block.
	return normalDistance
}
