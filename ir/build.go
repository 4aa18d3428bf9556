// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// This file contains a compact way of writing functions, mostly for tests.
//
//	fun := p.Fun("main", "entry",
//		Bloc("entry",
//			Local("buf", 16),
//			Load("v1", "g", 4),
//			Call("c1", "helper"),
//			If("loop", "done")),
//		Bloc("loop",
//			Store("v2", "buf", 8),
//			Goto("entry")),
//		Bloc("done",
//			Ret()))
//
// Symbols are looked up in the function's locals first, then among the
// program's globals. Callees that are never given a body stay external.
// A Ret block branches to the procedure exit, which is created on demand
// unless a bloc ends in Exit().

// Fun is a function built from blocs, with lookup by name.
type Fun struct {
	F      *Func
	Blocks map[string]*Block
	Values map[string]*Value
}

// Fun builds the body of the function name.
func (p *Program) Fun(name, entry string, blocs ...BlockSpec) Fun {
	f := p.NewFunc(name)
	if f.Entry != nil {
		p.Fatalf("function %s defined twice", name)
	}
	fun := Fun{F: f, Blocks: map[string]*Block{}, Values: map[string]*Value{}}

	// Frame objects first, values may refer to them from any block.
	for _, bl := range blocs {
		for _, e := range bl.entries {
			if l, ok := e.(local); ok {
				f.NewLocal(l.name, l.size)
			}
		}
	}

	hasRet := false
	ctrls := make([]ctrl, len(blocs))
	for i, bl := range blocs {
		c, ok := bl.control()
		if !ok {
			p.Fatalf("bloc %s of %s must have exactly one control", bl.name, name)
		}
		ctrls[i] = c
		if c.kind == BlockRet {
			hasRet = true
		}
		b := f.NewBlock(c.kind)
		b.Likely = c.likely
		fun.Blocks[bl.name] = b
	}
	f.Entry = fun.Blocks[entry]
	if f.Entry == nil {
		p.Fatalf("entry bloc %s of %s not found", entry, name)
	}
	if hasRet && f.Exit == nil {
		f.NewBlock(BlockExit)
	}

	for i, bl := range blocs {
		b := fun.Blocks[bl.name]
		for _, e := range bl.entries {
			v, ok := e.(valu)
			if !ok {
				continue
			}
			fun.Values[v.name] = fun.newValue(b, v)
		}
		c := ctrls[i]
		if c.kind == BlockRet {
			b.AddEdgeTo(f.Exit)
			continue
		}
		for _, s := range c.succs {
			t := fun.Blocks[s]
			if t == nil {
				p.Fatalf("successor %s of %s not found", s, bl.name)
			}
			b.AddEdgeTo(t)
		}
	}

	CheckFunc(f)
	return fun
}

func (fun Fun) newValue(b *Block, x valu) *Value {
	f := fun.F
	v := b.NewValue(x.op)
	v.AuxInt = x.width
	switch x.op {
	case OpCall:
		v.Aux = f.Prog.NewFunc(x.callee)
	case OpLoad, OpStore:
		s := f.Local(x.sym)
		if s == nil {
			s = f.Prog.Global(x.sym)
		}
		if s == nil {
			f.Fatalf("value %s: unknown symbol %s", x.name, x.sym)
		}
		v.Addr = SymAddr(s, x.off)
	}
	return v
}

// A BlockSpec describes one block of a Fun; see Bloc.
type BlockSpec struct {
	name    string
	entries []any
}

func (bl BlockSpec) control() (ctrl, bool) {
	var c ctrl
	n := 0
	for _, e := range bl.entries {
		if x, ok := e.(ctrl); ok {
			c = x
			n++
		}
	}
	return c, n == 1
}

type valu struct {
	name   string
	op     Op
	sym    string
	off    int64
	width  int64
	callee string
}

type ctrl struct {
	kind   BlockKind
	succs  []string
	likely BranchPrediction
}

type local struct {
	name string
	size int64
}

// Bloc defines a block for Fun. The bloc name should be unique
// across the containing Fun. entries should consist of calls to Local,
// Load, Store, Call, Other, and exactly one control: Goto, If, Ret or Exit.
func Bloc(name string, entries ...any) BlockSpec {
	return BlockSpec{name, entries}
}

// Local declares a frame object of the function.
func Local(name string, size int64) local {
	return local{name, size}
}

// Load reads width bytes of sym.
func Load(name, sym string, width int64) valu {
	return valu{name: name, op: OpLoad, sym: sym, width: width}
}

// LoadAt reads width bytes of sym at offset off.
func LoadAt(name, sym string, off, width int64) valu {
	return valu{name: name, op: OpLoad, sym: sym, off: off, width: width}
}

// Store writes width bytes of sym.
func Store(name, sym string, width int64) valu {
	return valu{name: name, op: OpStore, sym: sym, width: width}
}

// StoreAt writes width bytes of sym at offset off.
func StoreAt(name, sym string, off, width int64) valu {
	return valu{name: name, op: OpStore, sym: sym, off: off, width: width}
}

// Call calls the function callee.
func Call(name, callee string) valu {
	return valu{name: name, op: OpCall, callee: callee}
}

// Other is a value that does not access memory.
func Other(name string) valu {
	return valu{name: name, op: OpOther}
}

// Goto ends the block with a jump to succ.
func Goto(succ string) ctrl {
	return ctrl{kind: BlockPlain, succs: []string{succ}}
}

// If ends the block with a conditional branch.
func If(t, f string) ctrl {
	return ctrl{kind: BlockIf, succs: []string{t, f}}
}

// IfLikely is If with a static prediction.
func IfLikely(t, f string, likely BranchPrediction) ctrl {
	return ctrl{kind: BlockIf, succs: []string{t, f}, likely: likely}
}

// Ret ends the block with a return.
func Ret() ctrl {
	return ctrl{kind: BlockRet}
}

// Exit marks the block as the procedure exit.
func Exit() ctrl {
	return ctrl{kind: BlockExit}
}
