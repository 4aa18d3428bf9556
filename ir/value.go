// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// An Op is the operation a Value performs.
type Op uint8

const (
	OpInvalid Op = iota

	OpLoad  // read AuxInt bytes at Addr
	OpStore // write AuxInt bytes at Addr
	OpCall  // call Aux.(*Func)
	OpOther // computation that does not touch memory

	// Stack transfer pair used to copy between memories.
	OpPush // push AuxInt bytes at Addr onto the machine stack
	OpPop  // pop AuxInt bytes from the machine stack into Addr
)

var opNames = [...]string{
	OpInvalid: "Invalid",
	OpLoad:    "Load",
	OpStore:   "Store",
	OpCall:    "Call",
	OpOther:   "Other",
	OpPush:    "Push",
	OpPop:     "Pop",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// IsMemory reports whether the op reads or writes through an address.
func (o Op) IsMemory() bool {
	switch o {
	case OpLoad, OpStore, OpPush, OpPop:
		return true
	}
	return false
}

// SymKind says where a data object lives by default.
type SymKind uint8

const (
	SymGlobal SymKind = iota // static data
	SymLocal                 // stack frame slot
)

// A Sym is a named data object of fixed size.
type Sym struct {
	Name     string
	Size     int64
	Kind     SymKind
	FrameOff int64 // offset in the frame of Func, SymLocal only
	Func     *Func // owning function, SymLocal only
}

func (s *Sym) String() string {
	if s.Kind == SymLocal {
		return s.Func.Name + "." + s.Name
	}
	return s.Name
}

// AddrKind is the addressing mode of a memory operand.
type AddrKind uint8

const (
	AddrNone   AddrKind = iota
	AddrGlobal          // Sym+Off in static data
	AddrStack           // Sym+Off in the frame, SP relative
	AddrSPM             // Off in the scratchpad
)

// Addr is a memory operand.
type Addr struct {
	Kind AddrKind
	Sym  *Sym
	Off  int64
}

// SymAddr returns the default address of byte off of s.
func SymAddr(s *Sym, off int64) Addr {
	if s.Kind == SymLocal {
		return Addr{Kind: AddrStack, Sym: s, Off: off}
	}
	return Addr{Kind: AddrGlobal, Sym: s, Off: off}
}

// SPMAddr returns the scratchpad address off.
func SPMAddr(off int64) Addr {
	return Addr{Kind: AddrSPM, Off: off}
}

func (a Addr) String() string {
	switch a.Kind {
	case AddrGlobal:
		return fmt.Sprintf("%s+%d(SB)", a.Sym, a.Off)
	case AddrStack:
		return fmt.Sprintf("%s+%d(SP)", a.Sym.Name, a.Off)
	case AddrSPM:
		return fmt.Sprintf("%d(SPM)", a.Off)
	}
	return "_"
}

// A Value is one instruction of a block.
type Value struct {
	// A unique identifier for the value. For performance we allocate these IDs
	// densely starting at 1.  There is no guarantee that there won't be occasional holes, though.
	ID ID

	// The operation that computes this value. See op.go.
	Op Op

	// Memory operand of loads, stores, pushes and pops.
	Addr Addr

	// Auxiliary info for this value. Access width for memory ops.
	AuxInt int64

	// Callee for OpCall.
	Aux any

	// Stack pointer adjustment in effect before this value, set by FixStack.
	SPDelta int64

	// Containing basic block
	Block *Block
}

// String returns the short name of v: v%d.
func (v *Value) String() string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("v%d", v.ID)
}

// LongString returns a description of v.
func (v *Value) LongString() string {
	s := fmt.Sprintf("v%d = %s", v.ID, v.Op)
	switch v.Op {
	case OpCall:
		s += fmt.Sprintf(" %v", v.Aux)
	case OpLoad, OpStore, OpPush, OpPop:
		s += fmt.Sprintf(" <%d> %s", v.AuxInt, v.Addr)
	}
	if v.SPDelta != 0 {
		s += fmt.Sprintf(" [sp%+d]", v.SPDelta)
	}
	return s
}

// Callee returns the called function of an OpCall value.
func (v *Value) Callee() *Func {
	f, _ := v.Aux.(*Func)
	return f
}

// FrameOffset returns the SP relative offset of a stack operand.
func (v *Value) FrameOffset() int64 {
	if v.Addr.Kind != AddrStack {
		v.Block.Fatalf("%s has no stack operand", v.LongString())
	}
	return v.Addr.Sym.FrameOff + v.Addr.Off + v.SPDelta
}
