// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// This file contains the depth-first orderings of a control-flow graph.

// postorder computes a postorder traversal ordering for the
// basic blocks in f. Unreachable blocks will not appear.
func postorder(f *Func) []*Block {
	if f.Entry == nil {
		return nil
	}
	valid := make([]bool, f.NumBlocks())
	for i := range valid {
		valid[i] = true
	}
	return poForValidBlocks(f.Entry, valid, nil)
}

type blockAndIndex struct {
	b     *Block
	index int // index is the number of successor edges of b that have already been explored.
}

// poForValidBlocks does a DFS from entry restricted to valid blocks
// that have not been seen yet, appending the postorder to order.
// seen may be nil.
func poForValidBlocks(entry *Block, valid, seen []bool) []*Block {
	f := entry.Func
	if len(valid) != f.NumBlocks() {
		f.Fatalf("length of valid blocks is expected to be %d", f.NumBlocks())
	}
	if seen == nil {
		seen = make([]bool, f.NumBlocks())
	}

	// result ordering
	order := make([]*Block, 0, len(f.Blocks))

	// stack of blocks and next child to visit
	s := make([]blockAndIndex, 0, 32)
	s = append(s, blockAndIndex{b: entry})
	seen[entry.ID] = true
	for len(s) > 0 {
		tos := len(s) - 1
		x := s[tos]
		b := x.b
		if i := x.index; i < len(b.Succs) {
			s[tos].index++
			bb := b.Succs[i].Block()
			if valid[bb.ID] && !seen[bb.ID] {
				seen[bb.ID] = true
				s = append(s, blockAndIndex{b: bb})
			}
			continue
		}
		s = s[:tos]
		order = append(order, b)
	}
	return order
}

// Reachable reports for each block ID whether the block is reachable from the entry.
func (f *Func) Reachable() []bool {
	r := make([]bool, f.NumBlocks())
	for _, b := range f.Postorder() {
		r[b.ID] = true
	}
	return r
}

// sccAlternatingOrders finds postorder and reverse postorder within an SCC.
func sccAlternatingOrders(scc []*Block) (exitward, entryward []*Block) {
	if len(scc) == 2 {
		// Trivial case: just swap order
		return scc, []*Block{scc[1], scc[0]}
	}
	entry := scc[0]
	f := entry.Func

	// limit the graph to only blocks within the SCC
	valid := make([]bool, f.NumBlocks())
	for _, b := range scc {
		valid[b.ID] = true
	}
	exitward = poForValidBlocks(entry, valid, nil)
	entryward = poForValidBlocks(exitward[0], valid, nil)

	return exitward, entryward
}

// SCCAlternatingOrders returns two visiting orders of the blocks of scc that
// alternate direction, for iterative dataflow inside a cycle.
func SCCAlternatingOrders(scc []*Block) (exitward, entryward []*Block) {
	if len(scc) < 2 {
		return scc, scc
	}
	return sccAlternatingOrders(scc)
}
