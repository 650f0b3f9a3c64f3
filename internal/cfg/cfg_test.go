// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lm-toylang/miniforge/internal/ast"
	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/lexer"
	"github.com/lm-toylang/miniforge/internal/parser"
	"github.com/lm-toylang/miniforge/internal/scopeannotate"
)

func buildGraph(t *testing.T, src string) *Graph {
	t.Helper()
	toks, lexErrs := lexer.New(src).Run()
	require.Empty(t, lexErrs)
	c := ctx.New()
	res := parser.Parse(toks, c)
	require.Empty(t, res.Errors)
	fn := res.Program.Functions[0]
	fn.Body = scopeannotate.Annotate(c, fn)
	return Build(fn)
}

// every live (has a predecessor) non-exit block has at least one
// successor; unlinked dead blocks, such as the merge block of a
// both-branches-return if/else, are exempt.
func checkStructuralInvariants(t *testing.T, g *Graph) {
	t.Helper()
	for _, b := range g.Blocks {
		if !b.IsExit && len(b.Succs) == 0 && len(b.Preds) != 0 {
			t.Errorf("live block %s has no successors", b.ID)
		}
	}
}

func TestBuildStraightLineFunction(t *testing.T) {
	g := buildGraph(t, `int main() { int x = 1; return x; }`)
	require.True(t, g.Entry.IsEntry)
	require.True(t, g.Exit.IsExit)
	require.Contains(t, g.Entry.Succs, g.Exit)
	checkStructuralInvariants(t, g)
}

func TestBuildIfWithoutElseMergesBothBranches(t *testing.T) {
	g := buildGraph(t, `int main() { int x = 0; if (x) { x = 1; } return x; }`)
	checkStructuralInvariants(t, g)
	require.Len(t, g.Entry.Succs, 2)

	merge := g.Entry.Succs[1]
	require.Contains(t, merge.Preds, g.Entry.Succs[0])
	require.Contains(t, merge.Succs, g.Exit)
}

func TestBuildIfElseBothReturnLeavesUnlinkedMergeBlock(t *testing.T) {
	g := buildGraph(t, `int main() { if (1) { return 1; } else { return 0; } }`)
	var orphan *Block
	for _, b := range g.Blocks {
		if b.IsEntry || b.IsExit || len(b.Preds) != 0 || len(b.Succs) != 0 || len(b.Stmts) != 1 {
			continue
		}
		// The merge block receives the function body's closing
		// EndCheckPoint (depth 1), the only statement after the if.
		if end, ok := b.Stmts[0].(*ast.EndCheckPoint); ok && end.Depth == 1 {
			orphan = b
		}
	}
	require.NotNil(t, orphan, "expected an unlinked merge block to remain")
}

func TestBuildWhileLoopBackEdge(t *testing.T) {
	g := buildGraph(t, `int main() { int i = 0; while (i < 3) { i = i + 1; } return i; }`)
	checkStructuralInvariants(t, g)

	var header *Block
	for _, b := range g.Blocks {
		for _, s := range b.Stmts {
			if _, ok := s.(*ast.WhileStmt); ok {
				header = b
			}
		}
	}
	require.NotNil(t, header)
	require.Len(t, header.Succs, 2)
	require.Contains(t, header.Preds, header.Succs[0])
}

func TestBuildForLoopContinueTargetsUpdateBlock(t *testing.T) {
	g := buildGraph(t, `int main() { for (let i = 0; i < 3; i = i + 1) { if (i) { continue; } } return 0; }`)
	checkStructuralInvariants(t, g)
}

func TestBuildBreakConnectsToLoopExit(t *testing.T) {
	g := buildGraph(t, `int main() { while (1) { break; } return 0; }`)
	checkStructuralInvariants(t, g)
	require.Len(t, g.Entry.Succs, 2, "merged header carries the while condition's two branches")
}

func TestEmptyFunctionBodyConnectsEntryToExit(t *testing.T) {
	g := buildGraph(t, `int main() { }`)
	require.Contains(t, g.Entry.Succs, g.Exit)
}

func TestEdgesAreDeduplicated(t *testing.T) {
	g := buildGraph(t, `int main() { if (1) { return 1; } return 0; }`)
	seen := make(map[[2]*Block]bool)
	for _, e := range g.Edges {
		k := [2]*Block{e.From, e.To}
		require.False(t, seen[k], "duplicate edge %s -> %s", e.From.ID, e.To.ID)
		seen[k] = true
	}
}
