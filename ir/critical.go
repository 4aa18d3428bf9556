// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// SplitCritical splits critical edges (those that go from a block with
// more than one outedge to a block with more than one inedge) by inserting
// an empty block. It returns the number of blocks inserted.
//
// Code placed at the end of a predecessor then runs on exactly one edge.
func SplitCritical(f *Func) int {
	n := 0
	// Blocks appended while iterating are plain and never split.
	for _, b := range f.Blocks[:len(f.Blocks):len(f.Blocks)] {
		if len(b.Preds) <= 1 {
			continue
		}
		for i, e := range b.Preds {
			p := e.b
			if len(p.Succs) <= 1 {
				continue
			}
			d := f.NewBlock(BlockPlain)
			d.Likely = BranchUnknown

			// p.Succs[e.i] = {b, i} becomes {d, 0}; d.Succs = [{b, i}].
			p.Succs[e.i] = Edge{d, 0}
			d.Preds = append(d.Preds, Edge{p, e.i})
			d.Succs = append(d.Succs, Edge{b, i})
			b.Preds[i] = Edge{d, 0}
			n++
		}
	}
	if n > 0 {
		f.invalidateCFG()
	}
	return n
}
