// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gossa

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/fkuehnel/golang-spm/ir"
)

// lowerFunc builds the control flow graph of f from fn.
func (l *lowerer) lowerFunc(fn *ssa.Function, f *ir.Func) {
	var entry *ir.Block
	if len(fn.Blocks[0].Preds) != 0 {
		entry = f.NewBlock(ir.BlockPlain)
	}

	blocks := make([]*ir.Block, len(fn.Blocks))
	for i, b := range fn.Blocks {
		blocks[i] = f.NewBlock(blockKind(b))
	}

	if entry != nil {
		entry.AddEdgeTo(blocks[0])
	} else {
		entry = blocks[0]
	}
	f.Entry = entry

	for i, b := range fn.Blocks {
		ib := blocks[i]
		for _, instr := range b.Instrs {
			l.lowerInstr(f, ib, instr)
		}

		if len(b.Succs) == 0 {
			if f.Exit == nil {
				f.NewBlock(ir.BlockExit)
			}
			ib.AddEdgeTo(f.Exit)
			continue
		}
		for _, s := range b.Succs {
			ib.AddEdgeTo(blocks[s.Index])
		}
	}
}

func blockKind(b *ssa.BasicBlock) ir.BlockKind {
	switch len(b.Succs) {
	case 0:
		return ir.BlockRet
	case 1:
		return ir.BlockPlain
	}
	return ir.BlockIf
}

func (l *lowerer) lowerInstr(f *ir.Func, b *ir.Block, instr ssa.Instruction) {
	switch in := instr.(type) {
	case *ssa.Jump, *ssa.If, *ssa.Return, *ssa.Panic, *ssa.Phi, *ssa.DebugRef:
		return

	case *ssa.UnOp:
		if in.Op != token.MUL {
			break
		}
		if a, ok := l.addr(f, in.X); ok && l.access(b, ir.OpLoad, a, in.Type()) {
			return
		}

	case *ssa.Store:
		if a, ok := l.addr(f, in.Addr); ok && l.access(b, ir.OpStore, a, in.Val.Type()) {
			return
		}

	case *ssa.Alloc:
		// A frame alloc zeroes its object.
		if a, ok := l.addr(f, in); ok && l.access(b, ir.OpStore, a, deref(in.Type())) {
			return
		}

	case *ssa.Call:
		l.call(b, l.callee(&in.Call))
		return

	case *ssa.Go:
		l.call(b, l.prog.NewFunc("(go)"))
		return

	case *ssa.RunDefers:
		l.call(b, l.prog.NewFunc("(defers)"))
		return
	}

	b.NewValue(ir.OpOther)
}

func (l *lowerer) access(b *ir.Block, op ir.Op, a ir.Addr, t types.Type) bool {
	w := l.sizes.Sizeof(t)
	if w <= 0 {
		return false
	}
	v := b.NewValue(op)
	v.Addr = a
	v.AuxInt = w
	return true
}

func (l *lowerer) call(b *ir.Block, callee *ir.Func) {
	v := b.NewValue(ir.OpCall)
	v.Aux = callee
}

// callee returns the function called by c. Calls that do not name a
// lowered function go to external functions.
func (l *lowerer) callee(c *ssa.CallCommon) *ir.Func {
	if fn := c.StaticCallee(); fn != nil {
		if f := l.funcs[fn]; f != nil {
			return f
		}
		return l.prog.NewFunc(fn.String())
	}
	if b, ok := c.Value.(*ssa.Builtin); ok {
		return l.prog.NewFunc("builtin." + b.Name())
	}
	return l.prog.NewFunc("(indirect)")
}

// addr returns the memory operand v points to, if v is a constant offset
// into a global or a frame alloc.
func (l *lowerer) addr(f *ir.Func, v ssa.Value) (ir.Addr, bool) {
	var off int64
	for {
		switch x := v.(type) {
		case *ssa.Global:
			return ir.SymAddr(l.global(x), off), true

		case *ssa.Alloc:
			if x.Heap {
				return ir.Addr{}, false
			}
			return ir.SymAddr(l.local(f, x), off), true

		case *ssa.FieldAddr:
			st, ok := deref(x.X.Type()).Underlying().(*types.Struct)
			if !ok {
				return ir.Addr{}, false
			}
			off += l.fieldOffset(st, x.Field)
			v = x.X

		case *ssa.IndexAddr:
			elem, ok := constIndex(x)
			if !ok {
				return ir.Addr{}, false
			}
			off += elem * l.sizes.Sizeof(deref(x.Type()))
			v = x.X

		default:
			return ir.Addr{}, false
		}
	}
}

// root returns the global or frame alloc v points into, or nil.
func root(v ssa.Value) ssa.Value {
	for {
		switch x := v.(type) {
		case *ssa.Global:
			return x
		case *ssa.Alloc:
			if x.Heap {
				return nil
			}
			return x
		case *ssa.FieldAddr:
			v = x.X
		case *ssa.IndexAddr:
			v = x.X
		default:
			return nil
		}
	}
}

// escapes pins the objects whose address fn uses other than to load,
// store or compute a constant offset.
func (l *lowerer) escapes(fn *ssa.Function) {
	var ops []*ssa.Value
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			ops = instr.Operands(ops[:0])
			for _, op := range ops {
				if *op == nil {
					continue
				}
				r := root(*op)
				if r == nil || direct(instr, *op) {
					continue
				}
				l.pinned[r] = true
			}
		}
	}
}

// direct reports whether instr uses the address op only in a way
// the lowered code tracks.
func direct(instr ssa.Instruction, op ssa.Value) bool {
	switch in := instr.(type) {
	case *ssa.UnOp:
		return in.Op == token.MUL
	case *ssa.Store:
		return in.Addr == op && in.Val != op
	case *ssa.FieldAddr, *ssa.DebugRef:
		return true
	case *ssa.IndexAddr:
		_, ok := constIndex(in)
		return ok
	}
	return false
}

// constIndex returns the index of an element of an array addressed
// by a constant.
func constIndex(x *ssa.IndexAddr) (int64, bool) {
	if _, ok := deref(x.X.Type()).Underlying().(*types.Array); !ok {
		return 0, false
	}
	c, ok := x.Index.(*ssa.Const)
	if !ok || c.Value == nil {
		return 0, false
	}
	return c.Int64(), true
}

func (l *lowerer) global(g *ssa.Global) *ir.Sym {
	s := l.globals[g]
	if s == nil {
		s = l.prog.NewGlobal(g.String(), l.sizes.Sizeof(deref(g.Type())))
		l.globals[g] = s
	}
	return s
}

func (l *lowerer) local(f *ir.Func, a *ssa.Alloc) *ir.Sym {
	s := l.locals[a]
	if s == nil {
		name := a.Name()
		if a.Comment != "" {
			name = a.Comment + "." + name
		}
		s = f.NewLocal(name, l.sizes.Sizeof(deref(a.Type())))
		l.locals[a] = s
	}
	return s
}

func (l *lowerer) fieldOffset(st *types.Struct, i int) int64 {
	fields := make([]*types.Var, st.NumFields())
	for j := range fields {
		fields[j] = st.Field(j)
	}
	return l.sizes.Offsetsof(fields)[i]
}

func deref(t types.Type) types.Type {
	if p, ok := t.Underlying().(*types.Pointer); ok {
		return p.Elem()
	}
	return t
}
