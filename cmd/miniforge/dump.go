// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"

	"github.com/lm-toylang/miniforge/internal/compiler"
	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/lexer"
	"github.com/lm-toylang/miniforge/internal/parser"
	"github.com/lm-toylang/miniforge/internal/token"
)

// dumpFlags bundles the four `--dump-*` switches that make every
// intermediate representation reachable from the command line.
type dumpFlags struct {
	tokens bool
	ast    bool
	cfgs   bool
	asm    bool
}

func addDumpFlags(fs *pflag.FlagSet) *dumpFlags {
	f := &dumpFlags{}
	fs.BoolVar(&f.tokens, "dump-tokens", false, "print the token stream to stderr")
	fs.BoolVar(&f.ast, "dump-ast", false, "print the parsed AST to stderr")
	fs.BoolVar(&f.cfgs, "dump-cfg", false, "print each function's control-flow graph to stderr")
	fs.BoolVar(&f.asm, "dump-asm", false, "print generated assembly to stderr")
	return f
}

func (f *dumpFlags) tokensOf(src string) {
	if !f.tokens {
		return
	}
	toks, _ := lexer.New(src).Run()
	fmt.Fprintln(os.Stderr, "--- tokens ---")
	dumpTokens(toks)
}

func dumpTokens(toks []token.Token) {
	for _, t := range toks {
		fmt.Fprintf(os.Stderr, "%-12v %-10q %s\n", t.Kind, t.Text, t.Pos)
	}
}

func (f *dumpFlags) astOf(src string) {
	if !f.ast {
		return
	}
	toks, _ := lexer.New(src).Run()
	pres := parser.Parse(toks, ctx.New())
	fmt.Fprintln(os.Stderr, "--- ast ---")
	fmt.Fprintln(os.Stderr, spew.Sdump(pres.Program))
}

func (f *dumpFlags) cfgsOf(res compiler.Result) {
	if !f.cfgs {
		return
	}
	fmt.Fprintln(os.Stderr, "--- cfg ---")
	for _, g := range res.CFGs {
		fmt.Fprintln(os.Stderr, spew.Sdump(g))
	}
}

func (f *dumpFlags) asmOf(res compiler.Result) {
	if !f.asm {
		return
	}
	fmt.Fprintln(os.Stderr, "--- assembly ---")
	for _, a := range res.Assembly {
		fmt.Fprintf(os.Stderr, "; %s\n%s\n", a.Name, a.Text)
	}
}
