// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// CheckFunc checks f is consistent and panics if it isn't.
func CheckFunc(f *Func) {
	blockMark := make([]bool, f.NumBlocks())
	for _, b := range f.Blocks {
		if blockMark[b.ID] {
			f.Fatalf("block %s appears twice in %s!", b, f.Name)
		}
		blockMark[b.ID] = true
		if b.Func != f {
			f.Fatalf("%s.Func=%s, want %s", b, b.Func.Name, f.Name)
		}

		for i, e := range b.Preds {
			if se := e.b.Succs[e.i]; se.b != b || se.i != i {
				f.Fatalf("block pred/succ not crosslinked correctly %d:%s %d:%s",
					i, b, se.i, se.b)
			}
		}
		for i, e := range b.Succs {
			if pe := e.b.Preds[e.i]; pe.b != b || pe.i != i {
				f.Fatalf("block succ/pred not crosslinked correctly %d:%s %d:%s",
					i, b, pe.i, pe.b)
			}
		}

		switch b.Kind {
		case BlockExit:
			if len(b.Succs) != 0 {
				f.Fatalf("exit block %s has successors", b)
			}
			if b != f.Exit {
				f.Fatalf("exit block %s is not the exit of %s", b, f.Name)
			}
		case BlockPlain:
			if len(b.Succs) != 1 {
				f.Fatalf("plain block %s len(Succs)==%d, want 1", b, len(b.Succs))
			}
		case BlockIf:
			if len(b.Succs) != 2 {
				f.Fatalf("if block %s len(Succs)==%d, want 2", b, len(b.Succs))
			}
		case BlockRet:
			if len(b.Succs) != 1 || b.Succs[0].b != f.Exit {
				f.Fatalf("ret block %s must branch to the exit block", b)
			}
		default:
			f.Fatalf("unknown kind %s for %s", b.Kind, b)
		}

		for _, v := range b.Values {
			if v.Block != b {
				f.Fatalf("%s.block != %s", v, b)
			}
			switch v.Op {
			case OpLoad, OpStore, OpPush, OpPop:
				if v.AuxInt <= 0 {
					f.Fatalf("memory op %s has width %d", v.LongString(), v.AuxInt)
				}
				if v.Addr.Kind == AddrNone {
					f.Fatalf("memory op %s has no address", v.LongString())
				}
			case OpCall:
				if v.Callee() == nil {
					f.Fatalf("call %s has no callee", v)
				}
			}
		}
	}

	if f.Entry == nil {
		f.Fatalf("no entry block")
	}
	if len(f.Entry.Preds) != 0 {
		f.Fatalf("entry block %s of %s has predecessor(s) %v", f.Entry, f.Name, f.Entry.Preds)
	}
	for _, b := range f.Blocks {
		for _, e := range b.Preds {
			if !blockMark[e.b.ID] {
				f.Fatalf("predecessor block %v for %v is missing", e, b)
			}
		}
		for _, e := range b.Succs {
			if !blockMark[e.b.ID] {
				f.Fatalf("successor block %v for %v is missing", e, b)
			}
		}
	}
}
