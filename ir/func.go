// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"fmt"
	"slices"
)

// A Program is a collection of functions together with the global data
// objects they access.
type Program struct {
	Funcs   []*Func
	Globals []*Sym

	// Placed is set once scratchpad placement has rewritten the program.
	Placed bool

	// Debug enables printing of analysis results (loop nests etc.)
	// when greater than zero.
	Debug int

	funcs   map[string]*Func
	globals map[string]*Sym
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{
		funcs:   map[string]*Func{},
		globals: map[string]*Sym{},
	}
}

// NewFunc returns the function named name, declaring it if necessary.
// A declared function without blocks is external to the program.
func (p *Program) NewFunc(name string) *Func {
	if f := p.funcs[name]; f != nil {
		return f
	}
	f := &Func{Name: name, Prog: p}
	p.funcs[name] = f
	p.Funcs = append(p.Funcs, f)
	return f
}

// Lookup returns the function named name or nil.
func (p *Program) Lookup(name string) *Func {
	return p.funcs[name]
}

// NewGlobal declares a global data object of size bytes.
func (p *Program) NewGlobal(name string, size int64) *Sym {
	if s := p.globals[name]; s != nil {
		if s.Size != size {
			p.Fatalf("global %s redeclared with size %d (was %d)", name, size, s.Size)
		}
		return s
	}
	s := &Sym{Name: name, Size: size, Kind: SymGlobal}
	p.globals[name] = s
	p.Globals = append(p.Globals, s)
	return s
}

// Global returns the global named name or nil.
func (p *Program) Global(name string) *Sym {
	return p.globals[name]
}

// Defined returns the functions that have a body, in declaration order.
func (p *Program) Defined() []*Func {
	var r []*Func
	for _, f := range p.Funcs {
		if f.Entry != nil {
			r = append(r, f)
		}
	}
	return r
}

func (p *Program) Fatalf(msg string, args ...any) {
	panic(fmt.Sprintf("ir: "+msg, args...))
}

// A Func represents a procedure: a control-flow graph of basic blocks.
type Func struct {
	Name   string
	Prog   *Program
	Blocks []*Block // unordered set of all basic blocks (note: not indexable by ID)
	Entry  *Block   // the entry basic block
	Exit   *Block   // the procedure exit; all returning blocks are its predecessors

	Locals    []*Sym // stack frame objects
	FrameSize int64

	bid ID // block ID allocator
	vid ID // value ID allocator

	cachedPostorder []*Block
	cachedSCCs      []SCC
	cachedLoopnest  *Loopnest
}

// External reports whether f has no body in this program.
func (f *Func) External() bool { return f.Entry == nil }

// NumBlocks returns an integer larger than all block IDs.
func (f *Func) NumBlocks() int { return int(f.bid) }

// NumValues returns an integer larger than all value IDs.
func (f *Func) NumValues() int { return int(f.vid) }

// NewBlock allocates a new Block of the given kind and places it at the end of f.Blocks.
func (f *Func) NewBlock(kind BlockKind) *Block {
	b := &Block{ID: f.bid, Kind: kind, Func: f}
	f.bid++
	f.Blocks = append(f.Blocks, b)
	if kind == BlockExit {
		if f.Exit != nil {
			f.Fatalf("second exit block %s", b)
		}
		f.Exit = b
	}
	f.invalidateCFG()
	return b
}

// NewLocal declares a stack frame object of size bytes.
func (f *Func) NewLocal(name string, size int64) *Sym {
	for _, s := range f.Locals {
		if s.Name == name {
			return s
		}
	}
	s := &Sym{Name: name, Size: size, Kind: SymLocal, FrameOff: f.FrameSize, Func: f}
	f.FrameSize += size
	f.Locals = append(f.Locals, s)
	return s
}

// Local returns the frame object named name or nil.
func (f *Func) Local(name string) *Sym {
	i := slices.IndexFunc(f.Locals, func(s *Sym) bool { return s.Name == name })
	if i < 0 {
		return nil
	}
	return f.Locals[i]
}

func (f *Func) newValue(op Op, b *Block) *Value {
	v := &Value{ID: f.vid, Op: op, Block: b}
	f.vid++
	return v
}

// Postorder returns the reachable blocks of f in postorder.
func (f *Func) Postorder() []*Block {
	if f.cachedPostorder == nil {
		f.cachedPostorder = postorder(f)
	}
	return f.cachedPostorder
}

// sccs returns the cached SCCs for f, computing if necessary.
func (f *Func) sccs() []SCC {
	if f.cachedSCCs == nil {
		f.cachedSCCs = f.computeSCCs()
	}
	return f.cachedSCCs
}

// Loopnest returns the cached loop nest for f, computing if necessary.
func (f *Func) Loopnest() *Loopnest {
	if f.cachedLoopnest == nil {
		f.cachedLoopnest = loopnestfor(f)
	}
	return f.cachedLoopnest
}

// invalidateCFG tells f that its CFG has changed.
func (f *Func) invalidateCFG() {
	f.cachedPostorder = nil
	f.cachedLoopnest = nil
	f.cachedSCCs = nil
}

func (f *Func) Fatalf(msg string, args ...any) {
	panic(fmt.Sprintf("ir: %s: ", f.Name) + fmt.Sprintf(msg, args...))
}

func (f *Func) String() string { return f.Name }
