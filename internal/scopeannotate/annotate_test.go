// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scopeannotate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lm-toylang/miniforge/internal/ast"
	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/lexer"
	"github.com/lm-toylang/miniforge/internal/parser"
)

func parseFunc(t *testing.T, src string) (*ctx.Context, *ast.FunctionDecl) {
	t.Helper()
	toks, errs := lexer.New(src).Run()
	require.Empty(t, errs)
	c := ctx.New()
	res := parser.Parse(toks, c)
	require.Empty(t, res.Errors)
	return c, res.Program.Functions[0]
}

func TestAnnotateWrapsTopLevelBlock(t *testing.T) {
	c, fn := parseFunc(t, `int main() { int x = 1; int y = 2; return x + y; }`)
	body := Annotate(c, fn)

	require.Len(t, body.Stmts, 5) // start, decl x, decl y, return, end
}

func TestAnnotateCheckpointPairsMatchAndCarryDeclaredNames(t *testing.T) {
	c, fn := parseFunc(t, `int main() { int x = 1; int y = 2; return x + y; }`)
	body := Annotate(c, fn)

	start, ok := body.Stmts[0].(*ast.StartCheckPoint)
	require.True(t, ok)
	end, ok := body.Stmts[len(body.Stmts)-1].(*ast.EndCheckPoint)
	require.True(t, ok)
	require.Equal(t, start.ScopeID, end.ScopeID)
	require.Equal(t, []string{"x", "y"}, start.VarNames)
	require.Equal(t, []int{1, 1}, start.VarSizes)
	require.Equal(t, 1, start.Depth)
}

func TestAnnotateNestedBlockGetsOwnCheckpointAndDeeperDepth(t *testing.T) {
	c, fn := parseFunc(t, `int main() { int x = 1; if (x > 0) { int y = 2; } return x; }`)
	body := Annotate(c, fn)

	var ifStmt *ast.IfStmt
	for _, s := range body.Stmts {
		if v, ok := s.(*ast.IfStmt); ok {
			ifStmt = v
		}
	}
	require.NotNil(t, ifStmt)
	innerStart := ifStmt.Then.Stmts[0].(*ast.StartCheckPoint)
	require.Equal(t, 2, innerStart.Depth)
	require.Equal(t, []string{"y"}, innerStart.VarNames)

	outerStart := body.Stmts[0].(*ast.StartCheckPoint)
	require.NotEqual(t, outerStart.ScopeID, innerStart.ScopeID)
}

func TestAnnotateRegistersForLoopInitVarOnEnclosingCheckpoint(t *testing.T) {
	c, fn := parseFunc(t, `int main() { for (int i = 0; i < 3; i = i + 1) { } return 0; }`)
	body := Annotate(c, fn)

	start := body.Stmts[0].(*ast.StartCheckPoint)
	require.Equal(t, []string{"i"}, start.VarNames)
	require.Equal(t, []int{1}, start.VarSizes)
}

func TestAnnotateDoesNotContributeNestedDeclsToOuterCheckpoint(t *testing.T) {
	c, fn := parseFunc(t, `int main() { if (1) { int y = 2; } return 0; }`)
	body := Annotate(c, fn)
	outerStart := body.Stmts[0].(*ast.StartCheckPoint)
	require.Empty(t, outerStart.VarNames)
}
