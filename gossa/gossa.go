// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gossa lowers Go programs in SSA form to the memory access IR of
// package ir, so their globals and frame objects can be placed in a
// scratchpad.
//
// Only the data the IR can track exactly is exposed to placement: package
// level variables and non-escaping frame allocations accessed through
// constant offsets. Every other object whose address is used for anything
// but a load or a store is pinned to main memory.
//
// Functions that may be entered other than through a static call, such as
// closures, functions used as values and methods reachable through
// interfaces, are left external. Calls leaving the lowered code are opaque:
// placement writes back and reloads around them.
package gossa

import (
	"context"
	"go/types"
	"runtime"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/fkuehnel/golang-spm/ir"
	"github.com/fkuehnel/golang-spm/spm"
)

// A Program is the lowered form of a set of Go packages.
type Program struct {
	IR *ir.Program

	// Pinned are objects whose address escapes. They stay in main memory.
	Pinned map[*ir.Sym]bool

	// Funcs maps the lowered functions to their IR.
	Funcs map[*ssa.Function]*ir.Func
}

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedDeps |
	packages.NeedImports |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesSizes |
	packages.NeedTypesInfo

// Load type checks the packages matching patterns in dir, builds their SSA
// form and lowers it.
func Load(ctx context.Context, dir string, patterns ...string) (_ *Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "gossa load", "dir", dir, "patterns", patterns)
	defer tr.Finish("err", &err)

	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Mode:    loadMode,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, errors.Wrap(err, "load packages")
	}
	if len(pkgs) == 0 {
		return nil, errors.New("no packages match %q", patterns)
	}

	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if err == nil && len(p.Errors) != 0 {
			err = errors.New("%s: %s", p.PkgPath, p.Errors[0].Msg)
		}
	})
	if err != nil {
		return nil, err
	}

	prog, spkgs := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	sizes := pkgs[0].TypesSizes
	if sizes == nil {
		sizes = types.SizesFor("gc", runtime.GOARCH)
	}

	tr.Printw("built ssa", "packages", len(spkgs))

	return Lower(ctx, lo.Compact(spkgs), sizes)
}

// Lower translates the functions of pkgs. Functions of other packages
// they call become external functions.
func Lower(ctx context.Context, pkgs []*ssa.Package, sizes types.Sizes) (_ *Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "gossa lower", "packages", len(pkgs))
	defer tr.Finish("err", &err)

	if len(pkgs) == 0 {
		return nil, errors.New("no packages")
	}

	l := &lowerer{
		sizes:   sizes,
		prog:    ir.NewProgram(),
		funcs:   map[*ssa.Function]*ir.Func{},
		globals: map[*ssa.Global]*ir.Sym{},
		locals:  map[*ssa.Alloc]*ir.Sym{},
		pinned:  map[ssa.Value]bool{},
	}

	for _, pkg := range pkgs {
		for _, m := range pkg.Members {
			if g, ok := m.(*ssa.Global); ok {
				l.global(g)
			}
		}
	}

	fns := l.candidates(pkgs)
	fns = l.closed(fns)

	for _, fn := range fns {
		l.funcs[fn] = l.prog.NewFunc(l.funcName(fn))
	}
	for _, fn := range fns {
		l.escapes(fn)
	}
	for _, fn := range fns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.lowerFunc(fn, l.funcs[fn])
		ir.CheckFunc(l.funcs[fn])

		if tr.If("gossa_funcs") {
			tr.Printw("lowered", "func", fn, "blocks", len(l.funcs[fn].Blocks), "values", l.funcs[fn].NumValues())
		}
	}

	p := &Program{
		IR:     l.prog,
		Pinned: map[*ir.Sym]bool{},
		Funcs:  l.funcs,
	}
	for g, s := range l.globals {
		if l.pinned[g] {
			p.Pinned[s] = true
		}
	}
	for a, s := range l.locals {
		if l.pinned[a] {
			p.Pinned[s] = true
		}
	}

	tr.Printw("lowered program", "funcs", len(fns), "globals", len(l.prog.Globals), "pinned", len(p.Pinned))

	return p, nil
}

// Classify reports the accesses of lowered code to placement. Accesses to
// pinned objects are hidden and calls to external functions are opaque.
func (p *Program) Classify(v *ir.Value) (spm.Access, bool) {
	if v.Op == ir.OpCall {
		callee := v.Callee()
		return spm.Access{Kind: spm.KindCallee, Callee: callee, Opaque: callee == nil || callee.External()}, true
	}

	a, ok := spm.DefaultClassifier(v)
	if !ok || p.Pinned[a.Home] {
		return spm.Access{}, false
	}
	return a, true
}

type lowerer struct {
	sizes types.Sizes
	prog  *ir.Program

	funcs   map[*ssa.Function]*ir.Func
	globals map[*ssa.Global]*ir.Sym
	locals  map[*ssa.Alloc]*ir.Sym

	// pinned are root objects, globals or frame allocs, whose address
	// escapes.
	pinned map[ssa.Value]bool

	hasMain bool
}

// candidates returns the functions with bodies that belong to pkgs,
// sorted by name.
func (l *lowerer) candidates(pkgs []*ssa.Package) []*ssa.Function {
	in := map[*ssa.Package]bool{}
	for _, p := range pkgs {
		in[p] = true
	}

	all := ssautil.AllFunctions(pkgs[0].Prog)
	fns := lo.Filter(lo.Keys(all), func(fn *ssa.Function, _ int) bool {
		pkg := fn.Pkg
		if pkg == nil && fn.Origin() != nil {
			pkg = fn.Origin().Pkg
		}
		switch {
		case !in[pkg], len(fn.Blocks) == 0, fn.Synthetic != "":
			return false
		case fn.TypeParams().Len() > 0 && len(fn.TypeArgs()) == 0:
			// generic body; its instances are lowered instead
			return false
		}
		return true
	})

	slices.SortFunc(fns, func(a, b *ssa.Function) int {
		return strings.Compare(a.String(), b.String())
	})
	return fns
}

// closed drops the functions that may be entered without a static call.
func (l *lowerer) closed(fns []*ssa.Function) []*ssa.Function {
	taken := map[*ssa.Function]bool{}
	iface := map[*types.Named]bool{}

	var ops []*ssa.Value
	for _, fn := range fns {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if mi, ok := instr.(*ssa.MakeInterface); ok {
					markIface(iface, mi.X.Type())
				}

				ops = instr.Operands(ops[:0])
				for i, op := range ops {
					f, ok := (*op).(*ssa.Function)
					if !ok {
						continue
					}
					if c, ok := instr.(*ssa.Call); ok && i == 0 && c.Call.Value == f {
						continue
					}
					taken[f] = true
				}
			}
		}
	}

	return lo.Reject(fns, func(fn *ssa.Function, _ int) bool {
		if taken[fn] {
			return true
		}
		recv := fn.Signature.Recv()
		return recv != nil && iface[named(recv.Type())]
	})
}

// markIface records the named type of t, and the types it embeds, as
// converted to an interface.
func markIface(iface map[*types.Named]bool, t types.Type) {
	n := named(t)
	if n == nil || iface[n] {
		return
	}
	iface[n] = true

	st, ok := n.Underlying().(*types.Struct)
	if !ok {
		return
	}
	for i := 0; i < st.NumFields(); i++ {
		if f := st.Field(i); f.Embedded() {
			markIface(iface, f.Type())
		}
	}
}

func named(t types.Type) *types.Named {
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	n, _ := t.(*types.Named)
	if n != nil && n.Origin() != nil {
		n = n.Origin()
	}
	return n
}

// funcName names fn in the IR. The main function of a main package is
// called main.
func (l *lowerer) funcName(fn *ssa.Function) string {
	if !l.hasMain && fn.Name() == "main" && fn.Parent() == nil && fn.Signature.Recv() == nil &&
		fn.Pkg != nil && fn.Pkg.Pkg.Name() == "main" {
		l.hasMain = true
		return "main"
	}
	return fn.String()
}
