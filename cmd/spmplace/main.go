// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Spmplace places the globals and frame objects of a Go program in a
// scratchpad memory and reports the result.
//
// Usage:
//
//	spmplace [flags] [packages]
//
// The packages default to the one in the current directory. Debug output
// is enabled per topic with -v, e.g. -v spm_walk,spm_loops.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/fkuehnel/golang-spm/gossa"
	"github.com/fkuehnel/golang-spm/ir"
	"github.com/fkuehnel/golang-spm/spm"
)

type options struct {
	config   string
	size     int64
	base     int64
	entry    string
	dir      string
	dump     bool
	patterns []string
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "placement config (yaml)")
	flag.Int64Var(&o.size, "size", 0, "scratchpad size in bytes, overrides the config")
	flag.Int64Var(&o.base, "base", -1, "scratchpad base address, overrides the config")
	flag.StringVar(&o.entry, "entry", "", "entry procedure, overrides the config")
	flag.StringVar(&o.dir, "C", ".", "directory to load the packages from")
	flag.BoolVar(&o.dump, "dump", false, "print the rewritten functions")
	verbose := flag.String("v", "", "comma separated debug topics")
	flag.Parse()

	tlog.SetVerbosity(*verbose)

	o.patterns = flag.Args()
	if len(o.patterns) == 0 {
		o.patterns = []string{"."}
	}

	if err := run(context.Background(), os.Stdout, o); err != nil {
		fmt.Fprintf(os.Stderr, "spmplace: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, o options) (err error) {
	cfg := spm.DefaultConfig()
	if o.config != "" {
		cfg, err = spm.LoadConfig(o.config)
		if err != nil {
			return err
		}
	}
	if o.size != 0 {
		cfg.Size = o.size
	}
	if o.base >= 0 {
		cfg.Base = o.base
	}
	if o.entry != "" {
		cfg.Entry = o.entry
	}

	prog, err := gossa.Load(ctx, o.dir, o.patterns...)
	if err != nil {
		return errors.Wrap(err, "load")
	}

	res, err := spm.Run(ctx, prog.IR, cfg, spm.WithClassifier(prog.Classify))
	if err != nil {
		return errors.Wrap(err, "place")
	}

	report(w, cfg, prog, res)

	if o.dump {
		for _, f := range prog.IR.Defined() {
			fmt.Fprintln(w)
			ir.Fprint(w, f)
		}
	}

	return nil
}

func report(w io.Writer, cfg spm.Config, prog *gossa.Program, res *spm.Result) {
	fmt.Fprintf(w, "scratchpad %d bytes at %#x, entry %s\n", cfg.Size, cfg.Base, cfg.Entry)
	fmt.Fprintf(w, "functions %d, pinned objects %d\n", len(prog.IR.Defined()), len(prog.Pinned))
	fmt.Fprintf(w, "rewritten %d functions: %d regions, %d calls explored, %d compensated\n",
		res.Funcs, res.Regions, res.Explored, res.Compensated)
	fmt.Fprintf(w, "transfers %d (%d values), accesses redirected %d, copy-ins elided %d\n",
		res.Transfers, res.Values, res.Rewritten, res.Elided)

	for _, l := range res.Loops {
		fmt.Fprintf(w, "loop %s %v: carried %v, preheader %v\n", l.Func, l.Header, l.Carried, l.Preheader)
	}
}
