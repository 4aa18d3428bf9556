// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"context"
	"fmt"
	"testing"

	"github.com/fkuehnel/golang-spm/ir"
)

// =============================================================================
// PROGRAM BUILDERS
// =============================================================================

const benchGlobals = 8

// newBenchProgram declares globals g0..g7 of growing sizes.
func newBenchProgram() *ir.Program {
	p := ir.NewProgram()
	for i := 0; i < benchGlobals; i++ {
		p.NewGlobal(fmt.Sprintf("g%d", i), int64(4*(i%4+1)))
	}
	return p
}

func global(i int) string {
	return fmt.Sprintf("g%d", i%benchGlobals)
}

// buildLinearChain creates: entry -> b0 -> b1 -> ... -> bN -> ret
// Every block reads two globals, writes one, and every fourth block calls
// out of the program.
func buildLinearChain(tb testing.TB, numBlocks int) (*ir.Program, ir.Fun) {
	p := newBenchProgram()

	blocs := make([]ir.BlockSpec, 0, numBlocks+2)
	blocs = append(blocs, ir.Bloc("entry", ir.Goto("b0")))

	for i := 0; i < numBlocks; i++ {
		next := fmt.Sprintf("b%d", i+1)
		if i == numBlocks-1 {
			next = "ret"
		}

		vals := []any{
			ir.Load(fmt.Sprintf("l%d_0", i), global(i), 4),
			ir.Load(fmt.Sprintf("l%d_1", i), global(i+3), 4),
		}
		if i%4 == 3 {
			vals = append(vals, ir.Call(fmt.Sprintf("c%d", i), "ext"))
		}
		vals = append(vals,
			ir.Store(fmt.Sprintf("s%d", i), global(i+1), 4),
			ir.Goto(next))
		blocs = append(blocs, ir.Bloc(fmt.Sprintf("b%d", i), vals...))
	}

	blocs = append(blocs, ir.Bloc("ret", ir.Ret()))

	return p, buildFun(tb, p, "entry", blocs)
}

// buildSimpleLoop creates: entry -> header <-> body -> done
//
//	^         |
//	+---------+ (back edge)
func buildSimpleLoop(tb testing.TB, bodyBlocks int) (*ir.Program, ir.Fun) {
	p := newBenchProgram()

	blocs := make([]ir.BlockSpec, 0, bodyBlocks+3)
	blocs = append(blocs,
		ir.Bloc("entry",
			ir.Store("init", global(0), 4),
			ir.Goto("header")),
		ir.Bloc("header",
			ir.Load("i", global(0), 4),
			ir.If("body0", "done")))

	for j := 0; j < bodyBlocks; j++ {
		next := fmt.Sprintf("body%d", j+1)
		if j == bodyBlocks-1 {
			next = "header"
		}

		vals := []any{
			ir.Load(fmt.Sprintf("tmp%d", j), global(j+1), 4),
			ir.Load(fmt.Sprintf("tmp%d_", j), global(j+2), 4),
		}
		if j%3 == 2 {
			vals = append(vals, ir.Call(fmt.Sprintf("c%d", j), "ext"))
		}
		if j == bodyBlocks-1 {
			vals = append(vals, ir.Store("inc", global(0), 4))
		}
		vals = append(vals, ir.Goto(next))
		blocs = append(blocs, ir.Bloc(fmt.Sprintf("body%d", j), vals...))
	}

	blocs = append(blocs, ir.Bloc("done", ir.Ret()))

	return p, buildFun(tb, p, "entry", blocs)
}

// buildNestedLoops creates a CFG with N levels of nested loops:
//
//	entry
//	  │
//	  ▼
//	L1_header ◄─────────┐
//	  │ (cond)          │
//	  ├──► done         │
//	  ▼                 │
//	L2_header ◄───────┐ │
//	  │ (cond)        │ │
//	  ├──► L1_latch ──┘ │
//	  ▼               │ │
//	 ...              │ │
//	  ▼               │ │
//	LN_header ◄─────┐ │ │
//	  │ (cond)      │ │ │
//	  ├──► L(N-1)_latch
//	  ▼             │
//	body            │
//	  │             │
//	  ▼             │
//	LN_latch ───────┘
//
// Each level reads its own global in the header and writes it in the
// latch, so outer variables stay live across the inner loops.
func buildNestedLoops(tb testing.TB, depth int) (*ir.Program, ir.Fun) {
	if depth < 1 {
		depth = 1
	}
	p := newBenchProgram()

	blocs := make([]ir.BlockSpec, 0, 2*depth+3)
	blocs = append(blocs, ir.Bloc("entry", ir.Goto("L1_header")))

	for i := 1; i <= depth; i++ {
		trueTarget := fmt.Sprintf("L%d_header", i+1)
		if i == depth {
			trueTarget = "body"
		}
		falseTarget := fmt.Sprintf("L%d_latch", i-1)
		if i == 1 {
			falseTarget = "done"
		}

		blocs = append(blocs,
			ir.Bloc(fmt.Sprintf("L%d_header", i),
				ir.Load(fmt.Sprintf("i%d", i), global(i), 4),
				ir.If(trueTarget, falseTarget)),
			ir.Bloc(fmt.Sprintf("L%d_latch", i),
				ir.Store(fmt.Sprintf("i%d_inc", i), global(i), 4),
				ir.Goto(fmt.Sprintf("L%d_header", i))))
	}

	body := make([]any, 0, depth+2)
	for i := 1; i <= depth; i++ {
		body = append(body, ir.Load(fmt.Sprintf("sum%d", i), global(i), 4))
	}
	body = append(body,
		ir.Call("work", "ext"),
		ir.Load("result", global(0), 4),
		ir.Goto(fmt.Sprintf("L%d_latch", depth)))
	blocs = append(blocs,
		ir.Bloc("body", body...),
		ir.Bloc("done", ir.Ret()))

	return p, buildFun(tb, p, "entry", blocs)
}

func buildFun(tb testing.TB, p *ir.Program, entry string, blocs []ir.BlockSpec) ir.Fun {
	tb.Helper()
	return p.Fun("main", entry, blocs...)
}

// =============================================================================
// SANITY
// =============================================================================

func TestPlaceShapes(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(testing.TB) (*ir.Program, ir.Fun)
	}{
		{"chain", func(tb testing.TB) (*ir.Program, ir.Fun) { return buildLinearChain(tb, 20) }},
		{"loop", func(tb testing.TB) (*ir.Program, ir.Fun) { return buildSimpleLoop(tb, 6) }},
		{"nested", func(tb testing.TB) (*ir.Program, ir.Fun) { return buildNestedLoops(tb, 3) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, fun := tc.build(t)
			cfg := testConfig(16)

			_, err := Run(context.Background(), p, cfg)
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			for _, b := range fun.F.Blocks {
				for _, v := range b.Values {
					if v.Addr.Kind != ir.AddrSPM {
						continue
					}
					if v.Addr.Off < 0 || v.Addr.Off+v.AuxInt > cfg.Size {
						t.Errorf("%v: %v outside the scratchpad", b, v.LongString())
					}
				}
			}
		})
	}
}

// =============================================================================
// BENCHMARKS
// =============================================================================

func BenchmarkPlace_Chain_500(b *testing.B) {
	benchmarkPlace(b, func() *ir.Program { p, _ := buildLinearChain(b, 500); return p })
}
func BenchmarkPlace_Loop_10(b *testing.B) {
	benchmarkPlace(b, func() *ir.Program { p, _ := buildSimpleLoop(b, 8); return p })
}
func BenchmarkPlace_Loop_100(b *testing.B) {
	benchmarkPlace(b, func() *ir.Program { p, _ := buildSimpleLoop(b, 98); return p })
}
func BenchmarkPlace_Nested_3(b *testing.B) {
	benchmarkPlace(b, func() *ir.Program { p, _ := buildNestedLoops(b, 3); return p })
}
func BenchmarkPlace_Nested_10(b *testing.B) {
	benchmarkPlace(b, func() *ir.Program { p, _ := buildNestedLoops(b, 10); return p })
}

func BenchmarkComputeLive_Chain_500(b *testing.B) {
	p, fun := buildLinearChain(b, 500)
	benchmarkComputeLive(b, p, fun)
}
func BenchmarkComputeLive_Loop_100(b *testing.B) {
	p, fun := buildSimpleLoop(b, 98)
	benchmarkComputeLive(b, p, fun)
}
func BenchmarkComputeLive_Nested_5(b *testing.B) {
	p, fun := buildNestedLoops(b, 5)
	benchmarkComputeLive(b, p, fun)
}
func BenchmarkComputeLive_Nested_10(b *testing.B) {
	p, fun := buildNestedLoops(b, 10)
	benchmarkComputeLive(b, p, fun)
}

// Core benchmark runners

func benchmarkPlace(b *testing.B, build func() *ir.Program) {
	ctx := context.Background()
	cfg := testConfig(64)

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		p := build()
		b.StartTimer()

		if _, err := Run(ctx, p, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkComputeLive(b *testing.B, p *ir.Program, fun ir.Fun) {
	s := New(p, DefaultConfig())
	s.collect()
	fs := s.funcs[fun.F]

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		computeLive(fs.f, fs.uses, s.vars.list)
	}
}
