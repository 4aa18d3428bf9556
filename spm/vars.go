// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/fkuehnel/golang-spm/ir"
)

// VarKind classifies what an instruction refers to.
type VarKind uint8

const (
	KindCallee   VarKind = iota // a call
	KindStack                   // a frame object
	KindNonStack                // static data
)

func (k VarKind) String() string {
	switch k {
	case KindCallee:
		return "callee"
	case KindStack:
		return "stack"
	case KindNonStack:
		return "nonstack"
	}
	return fmt.Sprintf("VarKind(%d)", uint8(k))
}

// Access is what a Classifier reports about one instruction.
type Access struct {
	Kind VarKind

	// Key identifies the data object. Home is where it lives in main memory.
	Key  any
	Home *ir.Sym
	Size int64

	// Modified is set for writes. WriteFirst is set for writes that
	// overwrite the whole object, so its old contents are never needed.
	Modified   bool
	WriteFirst bool

	// Callee is the called function of KindCallee accesses,
	// nil or external for calls leaving the program.
	Callee *ir.Func

	// Opaque calls may reach any data of the program. Dirty variables
	// are written back before them and resident ones reloaded after.
	Opaque bool
}

// A Classifier tells the pass which instructions are calls and which
// access placeable data objects.
type Classifier func(v *ir.Value) (Access, bool)

// DefaultClassifier classifies loads, stores and calls of the ir package.
// Accesses already addressed to the scratchpad and the transfers the pass
// inserts are not reported, so a second run finds nothing to place.
func DefaultClassifier(v *ir.Value) (Access, bool) {
	switch v.Op {
	case ir.OpCall:
		return Access{Kind: KindCallee, Callee: v.Callee()}, true
	case ir.OpLoad, ir.OpStore:
	default:
		return Access{}, false
	}

	a := v.Addr
	if a.Kind != ir.AddrGlobal && a.Kind != ir.AddrStack {
		return Access{}, false
	}

	s := a.Sym
	acc := Access{
		Kind: KindNonStack,
		Key:  s,
		Home: s,
		Size: s.Size,
	}
	if s.Kind == ir.SymLocal {
		acc.Kind = KindStack
	}
	if v.Op == ir.OpStore {
		acc.Modified = true
		acc.WriteFirst = a.Off == 0 && v.AuxInt >= s.Size
	}

	return acc, true
}

// A Var is a data object the pass may place.
type Var struct {
	Key  any
	Home *ir.Sym
	Size int64
	Kind VarKind
	Func *ir.Func // owner of a stack object

	seq int32
}

func (v *Var) String() string {
	if v.Home != nil {
		return v.Home.String()
	}
	return fmt.Sprint(v.Key)
}

// varTable owns the variable descriptors of one run.
type varTable struct {
	byKey map[any]*Var
	list  []*Var
}

func newVarTable() *varTable {
	return &varTable{byKey: map[any]*Var{}}
}

// get returns the descriptor for a, creating it on first sight.
func (t *varTable) get(a Access, f *ir.Func) *Var {
	if v := t.byKey[a.Key]; v != nil {
		if a.Size > v.Size {
			v.Size = a.Size
		}
		return v
	}
	v := &Var{
		Key:  a.Key,
		Home: a.Home,
		Size: a.Size,
		Kind: a.Kind,
		seq:  int32(len(t.list)),
	}
	if a.Kind == KindStack {
		v.Func = f
	}
	t.byKey[a.Key] = v
	t.list = append(t.list, v)
	return v
}

// varSet is a set of variables. Iterate with sorted for a stable order.
type varSet map[*Var]bool

func (s varSet) clone() varSet {
	return lo.Assign(s)
}

func (s varSet) sorted() []*Var {
	vs := lo.Keys(lo.PickBy(s, func(_ *Var, in bool) bool { return in }))
	slices.SortFunc(vs, func(a, b *Var) int { return int(a.seq - b.seq) })
	return vs
}
