// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// A Loop is a natural loop found by Bourdoncle's decomposition.
type Loop struct {
	Header  *Block // The header node of this (reducible) loop
	Outer   *Loop  // loop containing this loop
	IsInner bool   // True if never discovered to contain a loop
	NBlocks int32  // Number of blocks in this loop but not within inner loops
	Depth   int16  // Nesting depth of the loop; 1 is outermost.
}

func (l *Loop) String() string {
	return fmt.Sprintf("hdr:%s", l.Header)
}

func (l *Loop) LongString() string {
	i := ""
	o := ""
	if l.IsInner {
		i = ", INNER"
	}
	if l.Outer != nil {
		o = ", o=" + l.Outer.Header.String()
	}
	return fmt.Sprintf("hdr:%s%s%s", l.Header, i, o)
}

// A Loopnest describes the loops of a function.
type Loopnest struct {
	f              *Func
	b2l            []*Loop  // block ID -> innermost containing loop
	po             []*Block // cached postorder
	Loops          []*Loop  // all loops found, outer before inner
	HasIrreducible bool     // true if any irreducible loops detected
}

// loopnestfor computes loop nest information using Bourdoncle's algorithm.
//
// The algorithm:
//  1. Compute SCCs of the CFG (cached)
//  2. Each non-trivial SCC with single entry is a reducible loop; header = entry target
//  3. Remove header and recursively partition to find nested loops
//  4. Build loop tree based on containment
func loopnestfor(f *Func) *Loopnest {
	po := f.Postorder()
	b2l := make([]*Loop, f.NumBlocks())
	loops := make([]*Loop, 0)
	sawIrred := false
	debug := f.Prog != nil && f.Prog.Debug > 2

	if debug {
		fmt.Printf("loop finding (Bourdoncle) in %s\n", f.Name)
	}

	sccs := f.sccs()
	for i, scc := range sccs {
		if !scc.IsLoop() {
			continue
		}
		if !scc.IsReducible() {
			sawIrred = true
			continue
		}
		processLoop(f, &sccs[i], nil, b2l, &loops, &sawIrred)
	}

	computeLoopDepths(loops)

	ln := &Loopnest{
		f:              f,
		b2l:            b2l,
		po:             po,
		Loops:          loops,
		HasIrreducible: sawIrred,
	}

	if f.Prog != nil && f.Prog.Debug > 1 && len(loops) > 0 {
		printLoopnest(f, b2l, loops)
	}
	return ln
}

// processLoop recursively processes an SCC using Bourdoncle's decomposition.
func processLoop(f *Func, scc *SCC, outer *Loop, b2l []*Loop, loops *[]*Loop, sawIrred *bool) {
	if len(scc.Blocks) == 0 {
		return
	}

	header := scc.Header()
	if header == nil {
		// Irreducible, not processing.
		*sawIrred = true
		return
	}

	l := &Loop{
		Header:  header,
		Outer:   outer,
		IsInner: true,
		NBlocks: 1,
	}
	*loops = append(*loops, l)
	b2l[header.ID] = l

	// Mark outer as non-inner since it contains us
	if outer != nil {
		outer.IsInner = false
	}

	remaining := make([]*Block, 0, len(scc.Blocks)-1)
	for _, b := range scc.Blocks {
		if b != header {
			remaining = append(remaining, b)
		}
	}
	if len(remaining) == 0 {
		return
	}

	// Find nested SCCs with header removed
	subSccs := sccSubgraph(f, remaining, header)
	for i := range subSccs {
		sub := &subSccs[i]
		if sub.IsLoop() {
			if !sub.IsReducible() {
				*sawIrred = true
			}
			processLoop(f, sub, l, b2l, loops, sawIrred)
			continue
		}
		// Trivial SCC: blocks belong to current loop
		for _, b := range sub.Blocks {
			if b2l[b.ID] == nil {
				b2l[b.ID] = l
				l.NBlocks++
			}
		}
	}
}

// computeLoopDepths calculates nesting depth for all loops.
func computeLoopDepths(loops []*Loop) {
	for _, l := range loops {
		if l.Depth != 0 {
			// Already computed because it is an ancestor of
			// a previous loop.
			continue
		}
		// Find depth by walking up the loop tree.
		d := int16(0)
		for x := l; x != nil; x = x.Outer {
			if x.Depth != 0 {
				d += x.Depth
				break
			}
			d++
		}
		// Set depth for every ancestor.
		for x := l; x != nil; x = x.Outer {
			if x.Depth != 0 {
				break
			}
			x.Depth = d
			d--
		}
	}
	// Double-check depths.
	for _, l := range loops {
		want := int16(1)
		if l.Outer != nil {
			want = l.Outer.Depth + 1
		}
		if l.Depth != want {
			l.Header.Fatalf("bad depth calculation for loop %s: got %d want %d", l.Header, l.Depth, want)
		}
	}
}

func printLoopnest(f *Func, b2l []*Loop, loops []*Loop) {
	fmt.Printf("Loops in %s:\n", f.Name)
	for _, l := range loops {
		fmt.Printf("%s, b=", l.LongString())
		for _, b := range f.Blocks {
			if b2l[b.ID] == l {
				fmt.Printf(" %s", b)
			}
		}
		fmt.Print("\n")
	}
	fmt.Printf("Nonloop blocks in %s:", f.Name)
	for _, b := range f.Blocks {
		if b2l[b.ID] == nil {
			fmt.Printf(" %s", b)
		}
	}
	fmt.Print("\n")
}

// Innermost returns the innermost loop containing b, or nil.
func (ln *Loopnest) Innermost(b *Block) *Loop {
	if int(b.ID) >= len(ln.b2l) {
		return nil
	}
	return ln.b2l[b.ID]
}

// Depth returns the loop nesting level of block b.
func (ln *Loopnest) Depth(b *Block) int16 {
	if l := ln.Innermost(b); l != nil {
		return l.Depth
	}
	return 0
}

// Contains reports whether b is inside l, directly or through an inner loop.
func (ln *Loopnest) Contains(l *Loop, b *Block) bool {
	for x := ln.Innermost(b); x != nil; x = x.Outer {
		if x == l {
			return true
		}
	}
	return false
}

// IsBackedge reports whether the edge p -> b closes a loop, i.e. b is a
// loop header and p lies inside that loop.
func (ln *Loopnest) IsBackedge(p, b *Block) bool {
	l := ln.Innermost(b)
	if l == nil || l.Header != b {
		return false
	}
	return ln.Contains(l, p)
}

// HeaderOf returns the loop b is the header of, or nil.
func (ln *Loopnest) HeaderOf(b *Block) *Loop {
	if l := ln.Innermost(b); l != nil && l.Header == b {
		return l
	}
	return nil
}
