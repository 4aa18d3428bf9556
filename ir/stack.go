// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "tlog.app/go/errors"

// FixStack recomputes the stack pointer adjustment in effect at every value
// of f. Pushes and pops move the stack pointer, so SP relative operands
// between them need their offsets corrected; see Value.FrameOffset.
//
// Every block must leave the stack pointer where it found it.
func FixStack(f *Func) error {
	for _, b := range f.Blocks {
		var delta int64
		for _, v := range b.Values {
			v.SPDelta = delta
			switch v.Op {
			case OpPush:
				delta += v.AuxInt
			case OpPop:
				delta -= v.AuxInt
				if delta < 0 {
					return errors.New("%v: %v: pop below frame", f.Name, v.LongString())
				}
			}
		}
		if delta != 0 {
			return errors.New("%v: %v: unbalanced stack at block end: %d", f.Name, b, delta)
		}
	}
	return nil
}
