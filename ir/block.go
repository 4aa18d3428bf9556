// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// ID is a block or value number, unique within a Func.
type ID int32

// Block represents a basic block in the control flow graph of a function.
type Block struct {
	// A unique identifier for the block. The system will attempt to allocate
	// these IDs densely, but no guarantees.
	ID ID

	// The kind of block this is.
	Kind BlockKind

	// Likely direction for branches.
	// If BranchLikely, Succs[0] is the most likely branch taken.
	// If BranchUnlikely, Succs[1] is the most likely branch taken.
	// Ignored if len(Succs) < 2.
	Likely BranchPrediction

	// Subsequent blocks, if any. The number and order depend on the block kind.
	Succs []Edge

	// Inverse of successors.
	// The order is significant to Phi nodes in the block.
	Preds []Edge

	// The unordered set of Values that define the operation of this block.
	// After the scheduling pass, this list is ordered.
	Values []*Value

	// The containing function
	Func *Func
}

// Edge represents a CFG edge.
// Example edges for b branching to either c or d.
// (c and d have other predecessors.)
//
//	b.Succs = [{c,3}, {d,1}]
//	c.Preds = [?, ?, ?, {b,0}]
//	d.Preds = [?, {b,1}, ?]
//
// These indexes allow us to edit the CFG in constant time.
type Edge struct {
	// block edge goes to (in a Succs list) or from (in a Preds list)
	b *Block
	// index of reverse edge. Invariant:
	//   e := x.Succs[idx]
	//   e.b.Preds[e.i] = Edge{x,idx}
	// and similarly for predecessors.
	i int
}

func (e Edge) Block() *Block {
	return e.b
}
func (e Edge) Index() int {
	return e.i
}
func (e Edge) String() string {
	return fmt.Sprintf("{%v,%d}", e.b, e.i)
}

// BlockKind is the kind of control a block ends with.
//
//	kind     control    successors
//	------------------------------
//	Exit     -          none
//	Plain    -          [next]
//	If       cond       [then, else]
//	Ret      -          [procedure exit]
type BlockKind uint8

const (
	BlockInvalid BlockKind = iota
	BlockPlain
	BlockIf
	BlockRet
	BlockExit
)

var blockKindNames = [...]string{
	BlockInvalid: "Invalid",
	BlockPlain:   "Plain",
	BlockIf:      "If",
	BlockRet:     "Ret",
	BlockExit:    "Exit",
}

func (k BlockKind) String() string {
	if int(k) < len(blockKindNames) {
		return blockKindNames[k]
	}
	return fmt.Sprintf("BlockKind(%d)", k)
}

type BranchPrediction int8

const (
	BranchUnlikely = BranchPrediction(-1)
	BranchUnknown  = BranchPrediction(0)
	BranchLikely   = BranchPrediction(+1)
)

// String returns a short string representation of the block: b%d.
func (b *Block) String() string {
	return fmt.Sprintf("b%d", b.ID)
}

// LongString returns a description of the block including its successors.
func (b *Block) LongString() string {
	s := b.Kind.String()
	if len(b.Succs) > 0 {
		s += " ->"
		for _, c := range b.Succs {
			s += " " + c.b.String()
		}
	}
	switch b.Likely {
	case BranchUnlikely:
		s += " (unlikely)"
	case BranchLikely:
		s += " (likely)"
	}
	return s
}

// AddEdgeTo adds an edge from block b to block c.
func (b *Block) AddEdgeTo(c *Block) {
	i := len(b.Succs)
	j := len(c.Preds)
	b.Succs = append(b.Succs, Edge{c, j})
	c.Preds = append(c.Preds, Edge{b, i})
	b.Func.invalidateCFG()
}

// IsReturn reports whether b transfers control to the procedure exit.
func (b *Block) IsReturn() bool {
	return b.Kind == BlockRet
}

// NewValue appends a value with the given op to the end of b.
func (b *Block) NewValue(op Op) *Value {
	v := b.Func.newValue(op, b)
	b.Values = append(b.Values, v)
	return v
}

// InsertValues inserts vs in front of b.Values[i].
// The values must have been created with Func.NewDetachedValue.
func (b *Block) InsertValues(i int, vs ...*Value) {
	if len(vs) == 0 {
		return
	}
	for _, v := range vs {
		v.Block = b
	}
	rest := append([]*Value(nil), b.Values[i:]...)
	b.Values = append(append(b.Values[:i], vs...), rest...)
}

// NewDetachedValue creates a value of f that belongs to no block yet.
func (f *Func) NewDetachedValue(op Op) *Value {
	return f.newValue(op, nil)
}

func (b *Block) Fatalf(msg string, args ...any) {
	b.Func.Fatalf("%s: "+msg, append([]any{b}, args...)...)
}
