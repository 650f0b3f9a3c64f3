// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cfg linearizes an annotated function body into a graph of
// basic blocks connected for structured control flow: an arena of
// blocks cross-referenced by slice, not by owning pointers.
package cfg

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/lm-toylang/miniforge/internal/ast"
)

// Block is a maximal straight-line run of statements with one entry
// and one exit. Successor order is meaningful: index 0 is the *true*
// branch of a trailing condition, the last index is the *false*/
// fall-through branch.
type Block struct {
	ID      string
	Stmts   []ast.Stmt
	Preds   []*Block
	Succs   []*Block
	IsEntry bool
	IsExit  bool
}

func (b *Block) String() string { return b.ID }

// Edge is one directed control-flow edge.
type Edge struct {
	From, To *Block
}

// Graph is one function's control-flow graph.
type Graph struct {
	FunctionName string
	Entry        *Block
	Exit         *Block
	Blocks       []*Block
	Edges        []Edge
}

type loopContext struct {
	exit           *Block
	continueTarget *Block
}

type builder struct {
	funcName string
	counter  int
	blocks   []*Block
	entry    *Block
	exit     *Block
	loops    []loopContext
}

func (b *builder) newBlock() *Block {
	blk := &Block{ID: fmt.Sprintf("%s_block_%d", b.funcName, b.counter)}
	b.counter++
	b.blocks = append(b.blocks, blk)
	return blk
}

// link adds a successor edge from->to if it is not already present,
// preserving the order successors are added in.
func link(from, to *Block) {
	if !lo.Contains(from.Succs, to) {
		from.Succs = append(from.Succs, to)
	}
	if !lo.Contains(to.Preds, from) {
		to.Preds = append(to.Preds, from)
	}
}

// Build constructs the control-flow graph for one already scope-
// annotated function.
func Build(fn *ast.FunctionDecl) *Graph {
	b := &builder{funcName: fn.Name}
	b.entry = b.newBlock()
	b.entry.IsEntry = true
	b.exit = b.newBlock()
	b.exit.IsExit = true

	var body []ast.Stmt
	if fn.Body != nil {
		body = fn.Body.Stmts
	}

	last := b.buildStmtList(b.entry, body)
	// Only wire the implicit end-of-body fallthrough if the block we
	// landed on is actually reachable: a dead block preserved from a
	// both-branches-return if/else must stay unlinked.
	if last != nil && (last == b.entry || len(last.Preds) > 0) {
		link(last, b.exit)
	}

	g := &Graph{FunctionName: fn.Name, Entry: b.entry, Exit: b.exit, Blocks: b.blocks}
	optimize(g)
	finalizeEdges(g)
	return g
}

// buildStmtList appends stmts to cur, opening new blocks across
// control-flow statements, and returns the block execution falls
// through into afterward, or nil if every path out of stmts already
// reached a terminal edge (return/break/continue).
func (b *builder) buildStmtList(cur *Block, stmts []ast.Stmt) *Block {
	for _, s := range stmts {
		if cur == nil {
			// Unreachable code following a terminal statement: give
			// it a home so it is inspectable, but it stays unlinked
			// as its own disconnected component.
			cur = b.newBlock()
		}
		cur = b.addStmt(cur, s)
	}
	if cur != nil && !cur.IsEntry && len(cur.Preds) == 0 {
		// Landed in a block opened for unreachable code (e.g. the
		// EndCheckPoint after a return): nothing falls through.
		return nil
	}
	return cur
}

func (b *builder) addStmt(cur *Block, s ast.Stmt) *Block {
	switch v := s.(type) {
	case *ast.IfStmt:
		return b.buildIf(cur, v)
	case *ast.WhileStmt:
		return b.buildWhile(cur, v)
	case *ast.ForStmt:
		return b.buildFor(cur, v)
	case *ast.ReturnStmt:
		cur.Stmts = append(cur.Stmts, v)
		link(cur, b.exit)
		return nil
	case *ast.BreakStmt:
		cur.Stmts = append(cur.Stmts, v)
		if len(b.loops) > 0 {
			link(cur, b.loops[len(b.loops)-1].exit)
		}
		return nil
	case *ast.ContinueStmt:
		cur.Stmts = append(cur.Stmts, v)
		if len(b.loops) > 0 {
			link(cur, b.loops[len(b.loops)-1].continueTarget)
		}
		return nil
	case *ast.BlockStmt:
		return b.buildStmtList(cur, v.Stmts)
	default:
		cur.Stmts = append(cur.Stmts, v)
		return cur
	}
}

// buildIf builds the condition/then/else diamond, including the
// merge-block handling for both-branches-return and
// only-one-branch-returns.
func (b *builder) buildIf(cur *Block, stmt *ast.IfStmt) *Block {
	cur.Stmts = append(cur.Stmts, stmt) // condition block, trailing expr-stmt

	thenEntry := b.newBlock()
	var elseEntry *Block
	if stmt.Else != nil {
		elseEntry = b.newBlock()
	} else {
		elseEntry = b.newBlock() // synthetic fallthrough/merge target
	}
	link(cur, thenEntry) // position 0: true branch
	link(cur, elseEntry) // last position: false/fall-through branch

	thenExit := b.buildStmtList(thenEntry, stmt.Then.Stmts)

	if stmt.Else == nil {
		if thenExit != nil {
			link(thenExit, elseEntry)
		}
		return elseEntry
	}

	var elseExit *Block
	switch e := stmt.Else.(type) {
	case *ast.IfStmt:
		elseExit = b.buildIf(elseEntry, e)
	case *ast.BlockStmt:
		elseExit = b.buildStmtList(elseEntry, e.Stmts)
	default:
		elseExit = elseEntry
	}

	switch {
	case thenExit == nil && elseExit == nil:
		// both branches return: both already connect to exit; the
		// merge block is created but left unlinked (dead code kept
		// inspectable as its own component).
		return b.newBlock()
	case thenExit == nil:
		return elseExit
	case elseExit == nil:
		return thenExit
	default:
		merge := b.newBlock()
		link(thenExit, merge)
		link(elseExit, merge)
		return merge
	}
}

// buildWhile builds header -> body / loop-exit with the back edge
// from the body's exit.
func (b *builder) buildWhile(cur *Block, stmt *ast.WhileStmt) *Block {
	header := b.newBlock()
	link(cur, header)
	header.Stmts = append(header.Stmts, stmt)

	bodyEntry := b.newBlock()
	loopExit := b.newBlock()
	link(header, bodyEntry) // true
	link(header, loopExit)  // false

	b.loops = append(b.loops, loopContext{exit: loopExit, continueTarget: header})
	bodyExit := b.buildStmtList(bodyEntry, stmt.Body.Stmts)
	b.loops = b.loops[:len(b.loops)-1]

	if bodyExit != nil {
		link(bodyExit, header)
	}
	return loopExit
}

// buildFor builds init -> header -> body / loop-exit, with the body
// funneling through an update block back to the header.
func (b *builder) buildFor(cur *Block, stmt *ast.ForStmt) *Block {
	if stmt.Init != nil {
		cur = b.addStmt(cur, stmt.Init)
	}

	header := b.newBlock()
	link(cur, header)
	header.Stmts = append(header.Stmts, stmt)

	bodyEntry := b.newBlock()
	loopExit := b.newBlock()
	link(header, bodyEntry) // true
	link(header, loopExit)  // false

	update := b.newBlock()
	if stmt.Post != nil {
		update.Stmts = append(update.Stmts, stmt.Post)
	}

	b.loops = append(b.loops, loopContext{exit: loopExit, continueTarget: update})
	bodyExit := b.buildStmtList(bodyEntry, stmt.Body.Stmts)
	b.loops = b.loops[:len(b.loops)-1]

	if bodyExit != nil {
		link(bodyExit, update)
	}
	link(update, header)

	return loopExit
}
