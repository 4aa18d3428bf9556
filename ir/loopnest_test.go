// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"fmt"
	"testing"
)

// buildNestedLoops creates a CFG with depth levels of nested loops:
//
//	entry -> L1_header -> L2_header -> ... -> body -> LN_latch -> LN_header
//	Li_header exits to L(i-1)_latch, L1_header exits to exit.
func buildNestedLoops(p *Program, name string, depth int) Fun {
	blocs := []BlockSpec{Bloc("entry", Goto("L1_header"))}
	for i := 1; i <= depth; i++ {
		trueTarget := fmt.Sprintf("L%d_header", i+1)
		if i == depth {
			trueTarget = "body"
		}
		falseTarget := "exit"
		if i > 1 {
			falseTarget = fmt.Sprintf("L%d_latch", i-1)
		}
		blocs = append(blocs,
			Bloc(fmt.Sprintf("L%d_header", i), If(trueTarget, falseTarget)),
			Bloc(fmt.Sprintf("L%d_latch", i), Goto(fmt.Sprintf("L%d_header", i))))
	}
	blocs = append(blocs,
		Bloc("body", Goto(fmt.Sprintf("L%d_latch", depth))),
		Bloc("exit", Ret()))
	return p.Fun(name, "entry", blocs...)
}

func TestLoopnestSimple(t *testing.T) {
	p := NewProgram()
	fun := p.Fun("f", "entry",
		Bloc("entry", Goto("header")),
		Bloc("header", If("body", "done")),
		Bloc("body", Goto("header")),
		Bloc("done", Ret()))

	ln := fun.F.Loopnest()
	if len(ln.Loops) != 1 {
		t.Fatalf("got %d loops, want 1", len(ln.Loops))
	}
	l := ln.Loops[0]
	if l.Header != fun.Blocks["header"] {
		t.Errorf("header: got %s want %s", l.Header, fun.Blocks["header"])
	}
	if !l.IsInner || l.Depth != 1 || l.NBlocks != 2 {
		t.Errorf("loop %s: inner=%v depth=%d nblocks=%d", l.LongString(), l.IsInner, l.Depth, l.NBlocks)
	}
	if !ln.IsBackedge(fun.Blocks["body"], fun.Blocks["header"]) {
		t.Errorf("body -> header should be a back edge")
	}
	if ln.IsBackedge(fun.Blocks["entry"], fun.Blocks["header"]) {
		t.Errorf("entry -> header should not be a back edge")
	}
	if ln.Contains(l, fun.Blocks["done"]) {
		t.Errorf("done is outside the loop")
	}
	if ln.HasIrreducible {
		t.Errorf("loop is reducible")
	}
}

func TestLoopnestNested(t *testing.T) {
	p := NewProgram()
	const depth = 4
	fun := buildNestedLoops(p, "f", depth)
	ln := fun.F.Loopnest()
	if len(ln.Loops) != depth {
		t.Fatalf("got %d loops, want %d", len(ln.Loops), depth)
	}
	for i := 1; i <= depth; i++ {
		h := fun.Blocks[fmt.Sprintf("L%d_header", i)]
		l := ln.HeaderOf(h)
		if l == nil {
			t.Errorf("%s is not a loop header", h)
			continue
		}
		if l.Depth != int16(i) {
			t.Errorf("loop %s: depth %d, want %d", l, l.Depth, i)
		}
		if l.IsInner != (i == depth) {
			t.Errorf("loop %s: inner=%v", l, l.IsInner)
		}
		latch := fun.Blocks[fmt.Sprintf("L%d_latch", i)]
		if !ln.IsBackedge(latch, h) {
			t.Errorf("%s -> %s should be a back edge", latch, h)
		}
	}
	if d := ln.Depth(fun.Blocks["body"]); d != depth {
		t.Errorf("body depth %d, want %d", d, depth)
	}
	if d := ln.Depth(fun.Blocks["exit"]); d != 0 {
		t.Errorf("exit depth %d, want 0", d)
	}
}

func TestLoopnestIrreducible(t *testing.T) {
	p := NewProgram()
	fun := p.Fun("f", "entry",
		Bloc("entry", If("B", "C")), // Two entries into the cycle!
		Bloc("B", If("C", "done")),
		Bloc("C", If("B", "done")),
		Bloc("done", Ret()))

	if !fun.F.Loopnest().HasIrreducible {
		t.Errorf("B <-> C entered twice should be irreducible")
	}
}

func TestLoopnestSelfLoop(t *testing.T) {
	p := NewProgram()
	fun := p.Fun("f", "entry",
		Bloc("entry", Goto("spin")),
		Bloc("spin", If("spin", "done")),
		Bloc("done", Ret()))

	ln := fun.F.Loopnest()
	if len(ln.Loops) != 1 || ln.Loops[0].Header != fun.Blocks["spin"] {
		t.Fatalf("want a single loop headed by spin, got %v", ln.Loops)
	}
	spin := fun.Blocks["spin"]
	if !ln.IsBackedge(spin, spin) {
		t.Errorf("spin -> spin should be a back edge")
	}
}
