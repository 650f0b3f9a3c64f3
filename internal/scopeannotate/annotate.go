// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scopeannotate rewrites every block statement in a function
// body as StartCheckPoint(...), s1', ..., sn', EndCheckPoint(...)
// once per function body. It is a single top-down walk and must run
// exactly once per AST: annotating an already-annotated tree would
// nest markers.
package scopeannotate

import (
	"github.com/lm-toylang/miniforge/internal/ast"
	"github.com/lm-toylang/miniforge/internal/ctx"
)

// Annotate returns the annotated form of fn.Body as a new block; the
// caller assigns it back to fn.Body. Nested if/while/for bodies are
// replaced on their statement nodes in place. depth starts at 1 for
// the function's top-level body.
func Annotate(c *ctx.Context, fn *ast.FunctionDecl) *ast.BlockStmt {
	if fn.Body == nil {
		return nil
	}
	return annotateBlock(c, fn.Body, 1)
}

func annotateBlock(c *ctx.Context, blk *ast.BlockStmt, depth int) *ast.BlockStmt {
	id := c.NextScopeID()

	var names []string
	var sizes []int
	rewritten := make([]ast.Stmt, 0, len(blk.Stmts)+2)

	for _, s := range blk.Stmts {
		switch v := s.(type) {
		case *ast.VariableDecl:
			names = append(names, v.Name)
			sizes = append(sizes, v.Type.Size(c.StructSize))
			rewritten = append(rewritten, v)
		case *ast.LetDecl:
			names = append(names, v.Name)
			sizes = append(sizes, v.Type.Size(c.StructSize))
			rewritten = append(rewritten, v)
		case *ast.ForStmt:
			// The loop's Init decl lives inside v.Init, not as a
			// direct statement of this block, but cfg.buildFor
			// places it in this same block alongside this
			// StartCheckPoint. Reserve its slot here too, or
			// scopemgr never sees it and references to the loop
			// variable silently generate no code.
			if name, size, ok := forLoopVarDecl(c, v.Init); ok {
				names = append(names, name)
				sizes = append(sizes, size)
			}
			rewritten = append(rewritten, annotateStmt(c, v, depth))
		default:
			rewritten = append(rewritten, annotateStmt(c, s, depth))
		}
	}

	start := &ast.StartCheckPoint{Base: blk.Base, ScopeID: id, Depth: depth, VarNames: names, VarSizes: sizes}
	end := &ast.EndCheckPoint{Base: blk.Base, ScopeID: id, Depth: depth, VarNames: names, VarSizes: sizes}

	out := &ast.BlockStmt{Base: blk.Base}
	out.Stmts = append(out.Stmts, start)
	out.Stmts = append(out.Stmts, rewritten...)
	out.Stmts = append(out.Stmts, end)
	return out
}

// forLoopVarDecl reports the name and size of a for-loop's Init
// declaration, if it declares one: `for (int i = ...; ...)`
// introduces i into the scope enclosing the loop, not a scope of its
// own, so it is visible in the condition and body).
func forLoopVarDecl(c *ctx.Context, init ast.Stmt) (string, int, bool) {
	switch v := init.(type) {
	case *ast.VariableDecl:
		return v.Name, v.Type.Size(c.StructSize), true
	case *ast.LetDecl:
		return v.Name, v.Type.Size(c.StructSize), true
	default:
		return "", 0, false
	}
}

// annotateStmt recurses into every nested block-bearing statement so
// every lexical scope in the function gets its own checkpoint pair.
func annotateStmt(c *ctx.Context, s ast.Stmt, depth int) ast.Stmt {
	switch v := s.(type) {
	case *ast.BlockStmt:
		return annotateBlock(c, v, depth+1)
	case *ast.IfStmt:
		v.Then = annotateBlock(c, v.Then, depth+1)
		if v.Else != nil {
			v.Else = annotateStmt(c, v.Else, depth)
		}
		return v
	case *ast.WhileStmt:
		v.Body = annotateBlock(c, v.Body, depth+1)
		return v
	case *ast.ForStmt:
		v.Body = annotateBlock(c, v.Body, depth+1)
		return v
	default:
		return s
	}
}
