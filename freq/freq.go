// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package freq estimates static execution frequencies of basic blocks.
//
// The estimate is relative to one execution of the enclosing function:
// the entry block runs once, a loop header runs LoopWeight times as often
// as the flow entering its loop, and a two way branch splits its flow by
// its static prediction.
package freq

import (
	"github.com/fkuehnel/golang-spm/ir"
)

const (
	// LoopWeight is the assumed trip count of every loop.
	LoopWeight = 10

	likelyProb   = 0.9
	unlikelyProb = 1 - likelyProb
)

// Info holds local block frequencies and the call graph of a program.
type Info struct {
	local map[*ir.Block]float64
	graph *ir.CallGraph
}

// Estimate computes frequencies for every defined function of p.
func Estimate(p *ir.Program) *Info {
	in := &Info{
		local: map[*ir.Block]float64{},
		graph: p.CallGraph(),
	}
	for _, f := range p.Defined() {
		in.estimate(f)
	}
	return in
}

// BlockFreq returns how often b runs per execution of its function.
// Unreachable blocks have frequency 0.
func (in *Info) BlockFreq(b *ir.Block) float64 {
	return in.local[b]
}

// IsRoot reports whether f has no callers in the program.
func (in *Info) IsRoot(f *ir.Func) bool {
	return in.graph.IsRoot(f)
}

// Callees returns the call edges leaving f.
func (in *Info) Callees(f *ir.Func) []ir.CallEdge {
	return in.graph.Callees(f)
}

// Set overrides the frequency of b.
func (in *Info) Set(b *ir.Block, freq float64) {
	in.local[b] = freq
}

func (in *Info) estimate(f *ir.Func) {
	ln := f.Loopnest()
	po := f.Postorder()

	// Reverse postorder visits every block after its forward predecessors.
	for i := len(po) - 1; i >= 0; i-- {
		b := po[i]
		if b == f.Entry {
			in.local[b] = 1
			continue
		}
		var sum float64
		for _, e := range b.Preds {
			p := e.Block()
			if ln.IsBackedge(p, b) {
				continue
			}
			w := in.local[p] * edgeProb(p, e.Index())
			// Leaving loops gives back their trip counts.
			for d := ln.Depth(p) - ln.Depth(b); d > 0; d-- {
				w /= LoopWeight
			}
			sum += w
		}
		if ln.HeaderOf(b) != nil {
			sum *= LoopWeight
		}
		in.local[b] = sum
	}
}

// edgeProb returns the probability that b leaves through b.Succs[i].
func edgeProb(b *ir.Block, i int) float64 {
	if len(b.Succs) != 2 {
		return 1
	}
	switch b.Likely {
	case ir.BranchLikely:
		if i == 0 {
			return likelyProb
		}
		return unlikelyProb
	case ir.BranchUnlikely:
		if i == 0 {
			return unlikelyProb
		}
		return likelyProb
	}
	return 0.5
}
