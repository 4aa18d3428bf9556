// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package freq

import (
	"math"
	"testing"

	"github.com/fkuehnel/golang-spm/ir"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimateLoop(t *testing.T) {
	p := ir.NewProgram()
	fun := p.Fun("main", "entry",
		ir.Bloc("entry", ir.Goto("header")),
		ir.Bloc("header", ir.If("body", "done")),
		ir.Bloc("body", ir.Goto("header")),
		ir.Bloc("done", ir.Ret()))

	in := Estimate(p)
	for name, want := range map[string]float64{
		"entry":  1,
		"header": LoopWeight,
		"body":   LoopWeight / 2,
		"done":   0.5,
	} {
		if got := in.BlockFreq(fun.Blocks[name]); !near(got, want) {
			t.Errorf("freq(%s) = %v, want %v", name, got, want)
		}
	}
	if !in.IsRoot(fun.F) {
		t.Errorf("main has no callers")
	}
}

func TestEstimateLikely(t *testing.T) {
	p := ir.NewProgram()
	fun := p.Fun("main", "entry",
		ir.Bloc("entry", ir.IfLikely("hot", "cold", ir.BranchLikely)),
		ir.Bloc("hot", ir.Goto("join")),
		ir.Bloc("cold", ir.Goto("join")),
		ir.Bloc("join", ir.Ret()))

	in := Estimate(p)
	hot, cold, join := in.BlockFreq(fun.Blocks["hot"]), in.BlockFreq(fun.Blocks["cold"]), in.BlockFreq(fun.Blocks["join"])
	if !near(hot, likelyProb) || !near(cold, unlikelyProb) {
		t.Errorf("hot=%v cold=%v", hot, cold)
	}
	if !near(join, 1) {
		t.Errorf("join=%v, want 1", join)
	}
}

func TestEstimateUnreachable(t *testing.T) {
	p := ir.NewProgram()
	fun := p.Fun("main", "entry",
		ir.Bloc("entry", ir.Ret()),
		ir.Bloc("dead", ir.Ret()))

	if got := Estimate(p).BlockFreq(fun.Blocks["dead"]); got != 0 {
		t.Errorf("unreachable block has frequency %v", got)
	}
}
