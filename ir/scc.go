// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "iter"

// This file implements strongly connected component (SCC) detection for
// control-flow graphs using the Kosaraju-Sharir algorithm.
//
// SCCs returns the strongly connected components of f's control-flow
// graph, topologically sorted by the kernel DAG.
//
// Properties:
//   - The first SCC contains only the entry block.
//   - Unreachable blocks are excluded from the result.
//   - The topological order of the kernel DAG may not be unique.
//   - Block order within each SCC is unspecified.
//
// Example:
//
//	Given:  b1 → b2, b2 → [b3, b4], b3 → b2, b4 → b5
//	Result: [[b1], [b2, b3], [b4], [b5]]
//
// The second pass uses BFS with reversed edges for simplicity.
func (f *Func) SCCs() iter.Seq[[]*Block] {
	return func(yield func([]*Block) bool) {
		// First DFS pass: compute postorder on original edges.
		// The last element is the function entry block.
		po := f.Postorder()

		valid := make([]bool, f.NumBlocks())
		for _, b := range po {
			valid[b.ID] = true
		}
		for scc := range kosaraju(po, valid) {
			if !yield(scc) {
				return
			}
		}
	}
}

// kosaraju runs the second Kosaraju-Sharir pass over reversed edges,
// visiting po in reverse. Only valid blocks take part.
func kosaraju(po []*Block, valid []bool) iter.Seq[[]*Block] {
	return func(yield func([]*Block) bool) {
		if len(po) == 0 {
			return
		}
		seen := make([]bool, len(valid))
		queue := make([]*Block, 0, len(po))

		for i := len(po) - 1; i >= 0; i-- {
			leader := po[i]
			if seen[leader.ID] {
				continue
			}

			// BFS to find all blocks in this SCC.
			scc := make([]*Block, 0, 4)
			queue = append(queue[:0], leader)
			seen[leader.ID] = true

			for len(queue) > 0 {
				b := queue[0]
				queue = queue[1:]
				scc = append(scc, b)

				for _, e := range b.Preds {
					pred := e.b
					if valid[pred.ID] && !seen[pred.ID] {
						seen[pred.ID] = true
						queue = append(queue, pred)
					}
				}
			}

			if !yield(scc) {
				return
			}
		}
	}
}

// sccPartition returns all SCCs as a slice for callers that need random access.
// Prefer [Func.SCCs] when iterating once.
func sccPartition(f *Func) [][]*Block {
	var result [][]*Block
	for scc := range f.SCCs() {
		result = append(result, scc)
	}
	return result
}

// An SCC is a strongly connected component together with its entries.
type SCC struct {
	Blocks []*Block

	header  *Block // single entry block, if any
	entries int    // number of blocks entered from outside
	selfish bool   // the only block branches to itself
}

// IsLoop reports whether the component contains a cycle.
func (s *SCC) IsLoop() bool {
	return len(s.Blocks) > 1 || s.selfish
}

// IsReducible reports whether the component is entered through one block only.
func (s *SCC) IsReducible() bool {
	return s.entries <= 1
}

// Header returns the entry block of a reducible component, or nil.
func (s *SCC) Header() *Block {
	if !s.IsReducible() {
		return nil
	}
	return s.header
}

// newSCC classifies the component blocks. Blocks with a reachable
// predecessor outside the component, and the function entry, are entries.
func newSCC(blocks []*Block, reach []bool) SCC {
	s := SCC{Blocks: blocks}
	in := make(map[*Block]bool, len(blocks))
	for _, b := range blocks {
		in[b] = true
	}
	for _, b := range blocks {
		entered := b == b.Func.Entry
		for _, e := range b.Preds {
			p := e.b
			if p == b {
				s.selfish = true
			}
			if !in[p] && reach[p.ID] {
				entered = true
			}
		}
		if entered {
			s.entries++
			if s.header == nil {
				s.header = b
			}
		}
	}
	if s.entries == 0 {
		// Unreachable from outside the subgraph; the
		// first block is as good a header as any.
		s.header = blocks[0]
	}
	return s
}

// computeSCCs returns the SCCs of f with their headers.
func (f *Func) computeSCCs() []SCC {
	po := f.Postorder()
	valid := make([]bool, f.NumBlocks())
	for _, b := range po {
		valid[b.ID] = true
	}
	var r []SCC
	for blocks := range kosaraju(po, valid) {
		r = append(r, newSCC(blocks, valid))
	}
	return r
}

// sccSubgraph partitions blocks (a loop body with its header removed)
// into SCCs. Edges into the removed header are ignored, which turns the
// inner cycles into separate components.
func sccSubgraph(f *Func, blocks []*Block, header *Block) []SCC {
	valid := make([]bool, f.NumBlocks())
	for _, b := range blocks {
		valid[b.ID] = true
	}
	valid[header.ID] = false

	// First pass: a DFS forest over the subgraph.
	seen := make([]bool, f.NumBlocks())
	var po []*Block
	for _, e := range header.Succs {
		if b := e.b; valid[b.ID] && !seen[b.ID] {
			po = append(po, poForValidBlocks(b, valid, seen)...)
		}
	}
	for _, b := range blocks {
		if valid[b.ID] && !seen[b.ID] {
			po = append(po, poForValidBlocks(b, valid, seen)...)
		}
	}

	reach := f.Reachable()
	var r []SCC
	for sub := range kosaraju(po, valid) {
		r = append(r, newSCC(sub, reach))
	}
	return r
}
