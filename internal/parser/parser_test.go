// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lm-toylang/miniforge/internal/ast"
	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/lexer"
	"github.com/lm-toylang/miniforge/internal/token"
)

func parse(t *testing.T, src string) Result {
	t.Helper()
	toks, lexErrs := lexer.New(src).Run()
	require.Empty(t, lexErrs)
	return Parse(toks, ctx.New())
}

func TestParseSimpleFunction(t *testing.T) {
	res := parse(t, `int main() { return 7; }`)
	require.Empty(t, res.Errors)
	require.Len(t, res.Program.Functions, 1)
	fn := res.Program.Functions[0]
	require.Equal(t, "main", fn.Name)
	require.Len(t, fn.Body.Stmts, 1)
	ret, ok := fn.Body.Stmts[0].(*ast.ReturnStmt)
	require.True(t, ok)
	num, ok := ret.Value.(*ast.NumberLiteral)
	require.True(t, ok)
	require.Equal(t, int64(7), num.Value)
}

func TestParseStructDeclAndMemberAccess(t *testing.T) {
	src := `
	struct Point { int x; int y; };
	int main() {
		struct Point p;
		p.x = 3;
		return p.x;
	}`
	res := parse(t, src)
	require.Empty(t, res.Errors)
	require.Len(t, res.Program.Structs, 1)
	require.Equal(t, 2, res.Program.Structs[0].Size)

	fn := res.Program.Functions[0]
	assign := fn.Body.Stmts[1].(*ast.AssignmentStmt)
	ma := assign.Target.(*ast.MemberAccess)
	require.Equal(t, "Point", ma.StructName)
	require.Equal(t, "x", ma.Field)
	require.Equal(t, 0, ma.FieldOffset)
}

func TestParseDereferenceAssignmentTarget(t *testing.T) {
	src := `int main() { int* p; *p = 5; return 0; }`
	res := parse(t, src)
	require.Empty(t, res.Errors)
	fn := res.Program.Functions[0]
	assign := fn.Body.Stmts[1].(*ast.AssignmentStmt)
	_, ok := assign.Target.(*ast.Dereference)
	require.True(t, ok)
}

func TestParseDoubleDereferenceAssignmentTarget(t *testing.T) {
	src := `int main() { int** pp; **pp = 9; return 0; }`
	res := parse(t, src)
	require.Empty(t, res.Errors)
	fn := res.Program.Functions[0]
	assign := fn.Body.Stmts[1].(*ast.AssignmentStmt)
	outer, ok := assign.Target.(*ast.Dereference)
	require.True(t, ok)
	_, ok = outer.Inner.(*ast.Dereference)
	require.True(t, ok)
}

func TestPowerOperatorAsExponentInExpression(t *testing.T) {
	src := `int main() { return 2 ** 3; }`
	res := parse(t, src)
	require.Empty(t, res.Errors)
	fn := res.Program.Functions[0]
	ret := fn.Body.Stmts[0].(*ast.ReturnStmt)
	bin, ok := ret.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, token.Power, bin.Op)
}

func TestForLoopExemptFromTDZ(t *testing.T) {
	src := `int main() { int s = 0; for (let i = 0; i < 3; i = i + 1) { s = s + i; } return s; }`
	res := parse(t, src)
	require.Empty(t, res.Errors)
}

func TestTDZErrorOnUseBeforeLetDeclaration(t *testing.T) {
	src := `int main() { int x = y; let y = 1; return x; }`
	res := parse(t, src)
	require.NotEmpty(t, res.Errors)
	var tdzErr *Error
	found := false
	for _, e := range res.Errors {
		if pe, ok := asParserError(e); ok && pe.Kind == TDZErrorKind {
			found = true
			tdzErr = pe
		}
	}
	require.True(t, found)
	require.Contains(t, tdzErr.Msg, "y")
}

func asParserError(err error) (*Error, bool) {
	type causer interface{ Cause() error }
	for err != nil {
		if pe, ok := err.(*Error); ok {
			return pe, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}

func TestUndefinedFunctionCallIsNameError(t *testing.T) {
	src := `int main() { return missing(1); }`
	res := parse(t, src)
	require.NotEmpty(t, res.Errors)
	pe, ok := asParserError(res.Errors[0])
	require.True(t, ok)
	require.Equal(t, NameErrorKind, pe.Kind)
}

func TestUndefinedVariableIsNameError(t *testing.T) {
	src := `int main() { return missing; }`
	res := parse(t, src)
	require.NotEmpty(t, res.Errors)
	pe, ok := asParserError(res.Errors[0])
	require.True(t, ok)
	require.Equal(t, NameErrorKind, pe.Kind)
}

func TestForwardCallIsNotANameError(t *testing.T) {
	src := `int main() { return helper(1); } int helper(int n) { return n; }`
	res := parse(t, src)
	require.Empty(t, res.Errors)
}

func TestStructValueParameterIsTypeError(t *testing.T) {
	src := `struct P { int x; }; int f(struct P p) { return p.x; }`
	res := parse(t, src)
	require.NotEmpty(t, res.Errors)
	pe, ok := asParserError(res.Errors[0])
	require.True(t, ok)
	require.Equal(t, TypeErrorKind, pe.Kind)
}
