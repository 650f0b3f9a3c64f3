// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compiler chains the pipeline lexer, parser,
// scope-annotation, cfg and codegen into one pure function: a source
// string in, a result record out; LinkStatic and RunDynamic link and
// run that result. The CLI itself lives in
// cmd/miniforge; reading files and parsing flags are its job, not
// this package's.
package compiler

import (
	"strings"

	"github.com/lm-toylang/miniforge/internal/cfg"
	"github.com/lm-toylang/miniforge/internal/codegen"
	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/lexer"
	"github.com/lm-toylang/miniforge/internal/link"
	"github.com/lm-toylang/miniforge/internal/parser"
	"github.com/lm-toylang/miniforge/internal/scopeannotate"
)

// Result is the outcome of one Compile call.
type Result struct {
	Success  bool
	Errors   []error
	Warnings []string
	CFGs     []*cfg.Graph
	Assembly []codegen.FunctionAsm
}

// Compile runs the full front-end-through-codegen pipeline over
// source. Lexer/parser errors are accumulated rather than aborting
// early; a source with parse errors still returns the CFGs/assembly
// built from the AST the parser recovered, with Success set to false.
// A source with scan errors returns the errors and no CFGs/assembly.
func Compile(source string) Result {
	toks, lexErrs := lexer.New(source).Run()

	c := ctx.New()
	pres := parser.Parse(toks, c)

	res := Result{
		Errors:   append(append([]error{}, lexErrs...), pres.Errors...),
		Warnings: c.Warnings,
	}
	if pres.Program == nil || len(lexErrs) > 0 {
		return res
	}

	for _, fn := range pres.Program.Functions {
		if fn.Body == nil {
			continue // forward declaration, nothing to generate
		}
		fn.Body = scopeannotate.Annotate(c, fn)
		graph := cfg.Build(fn)
		res.CFGs = append(res.CFGs, graph)
		res.Assembly = append(res.Assembly, codegen.GenerateFunction(fn, graph))
	}

	res.Success = len(res.Errors) == 0
	return res
}

// ConcatAssembly joins every function's generated text in compilation
// order, the concatenated form internal/link expects as its two-pass
// input.
func ConcatAssembly(funcs []codegen.FunctionAsm) string {
	var b strings.Builder
	for _, f := range funcs {
		b.WriteString(f.Text)
		if !strings.HasSuffix(f.Text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// LinkStatic links res's assembly as a single static segment 0.
func LinkStatic(res Result) *link.Listing {
	return link.Link(ConcatAssembly(res.Assembly))
}

// FunctionNames reports every function the source declared with a
// body, in declaration order. (The dynamic-link runner picks library
// files with DeclaresFunction, not with this.)
func FunctionNames(res Result) []string {
	names := make([]string, len(res.Assembly))
	for i, f := range res.Assembly {
		names[i] = f.Name
	}
	return names
}

// DeclaresFunction reports whether source, once parsed, declares a
// function named name with a body; the dynamic-link runner uses it to
// pick which library file in its search directory to compile next.
func DeclaresFunction(source, name string) bool {
	toks, lexErrs := lexer.New(source).Run()
	if len(lexErrs) > 0 {
		return false
	}
	pres := parser.Parse(toks, ctx.New())
	if pres.Program == nil {
		return false
	}
	for _, fn := range pres.Program.Functions {
		if fn.Name == name && fn.Body != nil {
			return true
		}
	}
	return false
}
