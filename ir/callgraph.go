// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// A CallEdge is a call site of a function defined in the program.
type CallEdge struct {
	Site     *Value
	Callee   *Func
	Backedge bool // the call closes a recursion cycle
}

// A CallGraph holds the calls between the defined functions of a program.
type CallGraph struct {
	callees map[*Func][]CallEdge
	callers map[*Func]int
	funcs   []*Func
}

// CallGraph computes the call graph of p.
// Calls to external functions are not recorded.
func (p *Program) CallGraph() *CallGraph {
	g := &CallGraph{
		callees: map[*Func][]CallEdge{},
		callers: map[*Func]int{},
		funcs:   p.Defined(),
	}
	for _, f := range g.funcs {
		for _, b := range f.Blocks {
			for _, v := range b.Values {
				if v.Op != OpCall {
					continue
				}
				c := v.Callee()
				if c == nil || c.External() {
					continue
				}
				g.callees[f] = append(g.callees[f], CallEdge{Site: v, Callee: c})
				g.callers[c]++
			}
		}
	}
	g.markBackedges()
	return g
}

type funcAndIndex struct {
	f     *Func
	index int // number of call edges of f already explored
}

// markBackedges does a DFS from the roots, then from whatever is left,
// marking edges to functions on the DFS stack.
func (g *CallGraph) markBackedges() {
	const (
		unseen = iota
		onStack
		done
	)
	state := map[*Func]int{}
	dfs := func(root *Func) {
		s := []funcAndIndex{{f: root}}
		state[root] = onStack
		for len(s) > 0 {
			tos := len(s) - 1
			x := s[tos]
			edges := g.callees[x.f]
			if i := x.index; i < len(edges) {
				s[tos].index++
				c := edges[i].Callee
				switch state[c] {
				case onStack:
					edges[i].Backedge = true
				case unseen:
					state[c] = onStack
					s = append(s, funcAndIndex{f: c})
				}
				continue
			}
			s = s[:tos]
			state[x.f] = done
		}
	}
	for _, f := range g.funcs {
		if g.IsRoot(f) && state[f] == unseen {
			dfs(f)
		}
	}
	for _, f := range g.funcs {
		if state[f] == unseen {
			dfs(f)
		}
	}
}

// Callees returns the call edges leaving f in block order.
func (g *CallGraph) Callees(f *Func) []CallEdge {
	return g.callees[f]
}

// IsRoot reports whether no defined function calls f.
func (g *CallGraph) IsRoot(f *Func) bool {
	return g.callers[f] == 0
}

// Funcs returns the defined functions of the graph.
func (g *CallGraph) Funcs() []*Func {
	return g.funcs
}
