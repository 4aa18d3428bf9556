// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gossa

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/fkuehnel/golang-spm/ir"
	"github.com/fkuehnel/golang-spm/spm"
)

const src = `package main

var counter int64
var table [4]int32
var hidden int64
var sink *int64

type pair struct {
	a int32
	b int64
}

var pr pair

var hook func()

func bump() { counter++ }

func main() {
	for i := 0; i < 10; i++ {
		bump()
		table[1] = table[2]
	}
	pr.b = 7
	sink = &hidden

	var local [2]int64
	local[0] = counter
	use(local[0])

	hook = bump
	hook()
	println(counter)
}

func use(x int64) { _ = x }
`

func lower(t *testing.T) *Program {
	t.Helper()

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "main.go", src, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	pkg := types.NewPackage("main", "")
	conf := &types.Config{Importer: importer.Default()}
	spkg, _, err := ssautil.BuildPackage(conf, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	p, err := Lower(context.Background(), []*ssa.Package{spkg}, types.SizesFor("gc", "amd64"))
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return p
}

func values(f *ir.Func, op ir.Op, sym string) []*ir.Value {
	var r []*ir.Value
	for _, b := range f.Blocks {
		for _, v := range b.Values {
			if v.Op == op && v.Addr.Sym != nil && v.Addr.Sym.String() == sym {
				r = append(r, v)
			}
		}
	}
	return r
}

func calls(f *ir.Func) map[string]int {
	r := map[string]int{}
	for _, b := range f.Blocks {
		for _, v := range b.Values {
			if v.Op == ir.OpCall {
				r[v.Callee().Name]++
			}
		}
	}
	return r
}

func TestLowerFuncs(t *testing.T) {
	p := lower(t)

	main := p.IR.Lookup("main")
	if main == nil || main.External() {
		t.Fatalf("main not lowered")
	}

	// bump is stored in hook, so it may be entered from anywhere.
	if bump := p.IR.Lookup("main.bump"); bump == nil || !bump.External() {
		t.Errorf("main.bump lowered although its address is taken")
	}
	if use := p.IR.Lookup("main.use"); use == nil || use.External() {
		t.Errorf("main.use not lowered")
	}

	got := calls(main)
	for name, n := range map[string]int{
		"main.bump":       1,
		"main.use":        1,
		"(indirect)":      1,
		"builtin.println": 1,
	} {
		if got[name] != n {
			t.Errorf("%d calls to %s, want %d (calls %v)", got[name], name, n, got)
		}
	}

	if main.Exit == nil {
		t.Errorf("main has no exit")
	}
	if len(main.Entry.Preds) != 0 {
		t.Errorf("entry has predecessors")
	}
}

func TestLowerAccesses(t *testing.T) {
	p := lower(t)
	main := p.IR.Lookup("main")

	loads := values(main, ir.OpLoad, "main.table")
	if len(loads) != 1 || loads[0].Addr.Off != 8 || loads[0].AuxInt != 4 {
		t.Errorf("table loads %v, want one 4 byte load at 8", loads)
	}
	stores := values(main, ir.OpStore, "main.table")
	if len(stores) != 1 || stores[0].Addr.Off != 4 || stores[0].AuxInt != 4 {
		t.Errorf("table stores %v, want one 4 byte store at 4", stores)
	}

	stores = values(main, ir.OpStore, "main.pr")
	if len(stores) != 1 || stores[0].Addr.Off != 8 || stores[0].AuxInt != 8 {
		t.Errorf("pr stores %v, want one 8 byte store at 8", stores)
	}

	if len(main.Locals) != 1 || main.Locals[0].Size != 16 {
		t.Fatalf("locals %v, want one 16 byte array", main.Locals)
	}
	local := main.Locals[0].String()
	if n := len(values(main, ir.OpStore, local)); n != 2 {
		t.Errorf("%d stores to %s, want zeroing and one element", n, local)
	}
	if n := len(values(main, ir.OpLoad, local)); n != 1 {
		t.Errorf("%d loads of %s, want 1", n, local)
	}
}

func TestPinned(t *testing.T) {
	p := lower(t)

	for name, want := range map[string]bool{
		"main.hidden":  true,
		"main.counter": false,
		"main.table":   false,
		"main.sink":    false,
	} {
		s := p.IR.Global(name)
		if s == nil {
			if want {
				t.Errorf("%s not declared", name)
			}
			continue
		}
		if p.Pinned[s] != want {
			t.Errorf("%s pinned %v, want %v", name, p.Pinned[s], want)
		}
	}

	main := p.IR.Lookup("main")
	for _, b := range main.Blocks {
		for _, v := range b.Values {
			a, ok := p.Classify(v)
			if v.Op != ir.OpCall {
				continue
			}
			if !ok || a.Kind != spm.KindCallee {
				t.Errorf("%v not classified as a call", v.LongString())
			}
			if want := v.Callee().External(); a.Opaque != want {
				t.Errorf("call %v opaque %v, want %v", v.Callee(), a.Opaque, want)
			}
		}
	}
}

func TestPlaceLowered(t *testing.T) {
	p := lower(t)

	cfg := spm.DefaultConfig()
	cfg.Size = 64

	res, err := spm.Run(context.Background(), p.IR, cfg, spm.WithClassifier(p.Classify))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Compensated == 0 {
		t.Errorf("opaque calls not compensated: %+v", res)
	}

	for _, f := range p.IR.Defined() {
		ir.CheckFunc(f)

		for _, b := range f.Blocks {
			for _, v := range b.Values {
				if v.Addr.Kind == ir.AddrSPM && (v.Addr.Off < 0 || v.Addr.Off+v.AuxInt > cfg.Size) {
					t.Errorf("%v: %v outside the scratchpad", f, v.LongString())
				}
			}
		}
	}
}
