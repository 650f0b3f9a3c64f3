// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codegen walks one function's control-flow graph and emits
// its textual assembly, using internal/scopemgr as the single mutable
// scope-stack owner for the walk.
package codegen

import (
	"fmt"
	"strings"

	"github.com/klauspost/asmfmt"

	"github.com/lm-toylang/miniforge/internal/ast"
	"github.com/lm-toylang/miniforge/internal/cfg"
	"github.com/lm-toylang/miniforge/internal/scopemgr"
	"github.com/lm-toylang/miniforge/internal/token"
)

// FunctionAsm is one function's generated assembly text.
type FunctionAsm struct {
	Name string
	Text string
}

var condJump = map[token.Kind]string{
	token.Lt:  "jl",
	token.Lte: "jle",
	token.Gt:  "jg",
	token.Gte: "jge",
	token.Eq:  "je",
	token.Neq: "jne",
}

var setInstr = map[token.Kind]string{
	token.Lt:  "setl",
	token.Lte: "setle",
	token.Gt:  "setg",
	token.Gte: "setge",
	token.Eq:  "sete",
	token.Neq: "setne",
}

type generator struct {
	fn           *ast.FunctionDecl
	mgr          *scopemgr.Manager
	out          []string
	scratchTotal int
}

// GenerateFunction emits fn's assembly text. fn.Body must already
// carry StartCheckPoint/EndCheckPoint markers (internal/scopeannotate)
// and g must be fn's already-built graph (internal/cfg).
func GenerateFunction(fn *ast.FunctionDecl, g *cfg.Graph) FunctionAsm {
	entryStates := precomputeEntryStates(fn, g)

	gen := &generator{fn: fn, mgr: scopemgr.New()}
	gen.mgr.SetParams(paramNames(fn))
	gen.scratchTotal = reserveScratchSlots(gen.mgr)

	endLabel := fn.Name + "_end"

	for _, b := range g.Blocks {
		if b.IsExit {
			continue
		}
		gen.mgr.RestoreSnapshot(entryStates[b].snap)
		gen.emit(gen.labelFor(b, g) + ":")
		if b == g.Entry {
			// The scratch slots sit between bp and the first block
			// scope; without this reservation an expression temp's
			// push would land on a local's slot.
			gen.emit(fmt.Sprintf("sub esp, %d", gen.scratchTotal))
		}
		for _, s := range b.Stmts {
			gen.emitStmt(s, b, g)
		}
		gen.emitFallthrough(b, g, endLabel)
	}

	// Safety net: every path that falls off the end of the function
	// without an explicit return lands here. Every real lexical scope
	// is closed by this point (the function body's own outer
	// EndCheckPoint always runs first), leaving only the permanently
	// reserved scratch slots to release.
	gen.emit(endLabel + ":")
	gen.emit("mov ax, 0")
	gen.emit(fmt.Sprintf("add esp, %d", gen.scratchTotal))
	gen.emit("ret")

	text := strings.Join(gen.out, "\n") + "\n"
	if formatted, err := asmfmt.Format(strings.NewReader(text)); err == nil {
		text = string(formatted)
	}
	return FunctionAsm{Name: fn.Name, Text: text}
}

// reserveScratchSlots reserves the function-root temporaries emitModulo
// needs, identically on every Manager that will later take or restore
// a snapshot, so the offsets agree between the BFS precompute pass and
// the real emission pass regardless of which blocks use modulo.
func reserveScratchSlots(m *scopemgr.Manager) int {
	m.DeclareFunctionVariable("%mod_n")
	m.DeclareFunctionVariable("%mod_d")
	return 2
}

func paramNames(fn *ast.FunctionDecl) []string {
	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name
	}
	return names
}

// entryState is the scope-stack state a block is entered with: the
// scope manager's snapshot plus the matching stack of open checkpoint
// ids, used to verify Start/End pairing.
type entryState struct {
	snap scopemgr.Snapshot
	ids  []int
}

// precomputeEntryStates runs a BFS scope-stack propagation: the seed
// is the empty scope at entry, each block's checkpoints and
// declarations (which mark their variable initialized) are replayed,
// and a block receiving divergent predecessor states keeps the
// shorter stack. An EndCheckPoint whose
// id does not match the innermost open StartCheckPoint means the
// annotation pass and the block builder disagree about scope nesting;
// generating code from such a graph would unbalance sp, so it is
// fatal.
func precomputeEntryStates(fn *ast.FunctionDecl, g *cfg.Graph) map[*cfg.Block]entryState {
	sim := scopemgr.New()
	sim.SetParams(paramNames(fn))
	reserveScratchSlots(sim)

	states := map[*cfg.Block]entryState{g.Entry: {snap: sim.SaveSnapshot()}}
	queue := []*cfg.Block{g.Entry}

	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]

		state := states[b]
		sim.RestoreSnapshot(state.snap)
		ids := append([]int(nil), state.ids...)
		for _, s := range b.Stmts {
			switch v := s.(type) {
			case *ast.StartCheckPoint:
				_, _ = sim.EnterScope(v.VarNames, v.VarSizes)
				ids = append(ids, v.ScopeID)
			case *ast.EndCheckPoint:
				if len(ids) == 0 || ids[len(ids)-1] != v.ScopeID {
					panic(fmt.Sprintf("scope stack mismatch in %s at block %s: closing scope_%d with open stack %v",
						fn.Name, b.ID, v.ScopeID, ids))
				}
				ids = ids[:len(ids)-1]
				sim.ExitScope()
			case *ast.VariableDecl:
				sim.MarkInitialized(v.Name)
			case *ast.LetDecl:
				sim.MarkInitialized(v.Name)
			}
		}
		exit := entryState{snap: sim.SaveSnapshot(), ids: ids}

		for _, s := range b.Succs {
			existing, ok := states[s]
			if !ok || exit.snap.ScopeLen() < existing.snap.ScopeLen() {
				states[s] = exit
				queue = append(queue, s)
			}
		}
	}
	return states
}

func (g *generator) labelFor(b *cfg.Block, graph *cfg.Graph) string {
	if b == graph.Entry {
		return g.fn.Name
	}
	return b.ID
}

func (g *generator) emit(line string) { g.out = append(g.out, line) }

func blockAlreadyTerminates(b *cfg.Block) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	switch b.Stmts[len(b.Stmts)-1].(type) {
	case *ast.IfStmt, *ast.WhileStmt, *ast.ForStmt, *ast.ReturnStmt:
		return true
	}
	return false
}

func (g *generator) emitFallthrough(b *cfg.Block, graph *cfg.Graph, endLabel string) {
	if blockAlreadyTerminates(b) || len(b.Succs) != 1 {
		return
	}
	target := b.Succs[0]
	if target.IsExit {
		g.emit("jmp " + endLabel)
		return
	}
	g.emit("jmp " + g.labelFor(target, graph))
}

func (g *generator) emitStmt(s ast.Stmt, b *cfg.Block, graph *cfg.Graph) {
	switch v := s.(type) {
	case *ast.StartCheckPoint:
		g.emit(fmt.Sprintf("sub esp, %d", sumSizes(v.VarSizes)))
		_, _ = g.mgr.EnterScope(v.VarNames, v.VarSizes)
	case *ast.EndCheckPoint:
		g.emit(fmt.Sprintf("add esp, %d", sumSizes(v.VarSizes)))
		g.mgr.ExitScope()
	case *ast.VariableDecl:
		g.emitDecl(v.Name, v.Init)
	case *ast.LetDecl:
		g.emitDecl(v.Name, v.Init)
	case *ast.AssignmentStmt:
		g.emitAssignment(v)
	case *ast.ExpressionStmt:
		g.emitExpr(v.X)
	case *ast.ReturnStmt:
		if v.Value != nil {
			g.emitExpr(v.Value)
		} else {
			g.emit("mov ax, 0")
		}
		g.emit(fmt.Sprintf("add esp, %d", g.mgr.TotalAllocated()))
		g.emit("ret")
	case *ast.BreakStmt, *ast.ContinueStmt:
		// Structural only: the block's sole CFG successor is already
		// the right target, emitted by emitFallthrough.
	case *ast.IfStmt:
		g.emitBranch(v.Cond, b, graph)
	case *ast.WhileStmt:
		g.emitBranch(v.Cond, b, graph)
	case *ast.ForStmt:
		if v.Cond != nil {
			g.emitBranch(v.Cond, b, graph)
		} else {
			g.emit("jmp " + g.labelFor(b.Succs[0], graph))
		}
	}
}

func sumSizes(sizes []int) int {
	total := 0
	for _, s := range sizes {
		total += s
	}
	return total
}

func (g *generator) emitBranch(cond ast.Expr, b *cfg.Block, graph *cfg.Graph) {
	trueLabel := g.labelFor(b.Succs[0], graph)
	falseLabel := g.labelFor(b.Succs[len(b.Succs)-1], graph)

	if bin, ok := cond.(*ast.BinaryExpr); ok {
		if mnemonic, ok := condJump[bin.Op]; ok {
			g.emitOperandsToBxAx(bin.Left, bin.Right)
			g.emit("cmp bx, ax")
			g.emit(mnemonic + " " + trueLabel)
			g.emit("jmp " + falseLabel)
			return
		}
	}

	g.emitExpr(cond)
	g.emit("cmp ax, 0")
	g.emit("jne " + trueLabel)
	g.emit("jmp " + falseLabel)
}

// normalizeTruth collapses ax and bx to 0/1 truth values. `&&` and
// `||` combine truthiness, not bit patterns: `2 && 1` is true even
// though 2&1 is 0, and `1 || -1` is true even though the sum is 0.
func (g *generator) normalizeTruth() {
	g.emit("cmp ax, 0")
	g.emit("setne al")
	g.emit("and ax, 1")
	g.emit("cmp bx, 0")
	g.emit("setne bl")
	g.emit("and bx, 1")
}

// emitOperandsToBxAx evaluates left then right, leaving left in bx
// and right in ax: push the left, compute the right, pop the left
// into bx.
func (g *generator) emitOperandsToBxAx(left, right ast.Expr) {
	g.emitExpr(left)
	g.emit("push")
	g.emitExpr(right)
	g.emit("pop bx")
}

func (g *generator) emitExpr(e ast.Expr) {
	switch v := e.(type) {
	case *ast.NumberLiteral:
		g.emit(fmt.Sprintf("mov ax, %d", v.Value))
	case *ast.Identifier:
		if info, ok := g.mgr.Lookup(v.Name); ok {
			g.emit(fmt.Sprintf("li %d", info.Offset))
		}
	case *ast.ParenExpr:
		g.emitExpr(v.Inner)
	case *ast.UnaryExpr:
		g.emitUnary(v)
	case *ast.AddressOf:
		if info, ok := g.mgr.Lookup(v.Name); ok {
			g.emit(fmt.Sprintf("lea %d", info.Offset))
		}
	case *ast.Dereference:
		g.emitExpr(v.Inner)
		g.emit("mov bx, ax")
		g.emit("lir bx")
	case *ast.MemberAccess:
		g.emitMemberAddress(v)
		g.emit("mov bx, ax")
		g.emit("lir bx")
	case *ast.FunctionCall:
		g.emitCall(v)
	case *ast.BinaryExpr:
		g.emitBinaryValue(v)
	}
}

func (g *generator) emitUnary(v *ast.UnaryExpr) {
	switch v.Op {
	case token.Minus:
		g.emitExpr(v.Operand)
		g.emit("mov bx, ax")
		g.emit("mov ax, 0")
		g.emit("sub ax, bx")
	case token.Bang:
		g.emitExpr(v.Operand)
		g.emit("cmp ax, 0")
		g.emit("sete al")
		g.emit("and ax, 1")
	}
}

// emitAddress leaves the address of an lvalue expression in ax.
func (g *generator) emitAddress(e ast.Expr) {
	switch v := e.(type) {
	case *ast.Identifier:
		if info, ok := g.mgr.Lookup(v.Name); ok {
			g.emit(fmt.Sprintf("lea %d", info.Offset))
		}
	case *ast.Dereference:
		// The address of *p is simply p's value.
		g.emitExpr(v.Inner)
	case *ast.MemberAccess:
		g.emitMemberAddress(v)
	}
}

// emitMemberAddress leaves the address of a struct field in ax:
// the base struct's address (its own value if accessed through a
// pointer, its stack address otherwise) plus the field's offset.
func (g *generator) emitMemberAddress(ma *ast.MemberAccess) {
	if ma.ByPointer {
		g.emitExpr(ma.Object)
	} else {
		g.emitAddress(ma.Object)
	}
	if ma.FieldOffset != 0 {
		g.emit(fmt.Sprintf("add ax, %d", ma.FieldOffset))
	}
}

func (g *generator) emitDecl(name string, init ast.Expr) {
	if init != nil {
		g.emitExpr(init)
	} else {
		g.emit("mov ax, 0")
	}
	if info, ok := g.mgr.LookupRaw(name); ok {
		g.emit(fmt.Sprintf("si %d", info.Offset))
	}
	g.mgr.MarkInitialized(name)
}

func (g *generator) emitAssignment(v *ast.AssignmentStmt) {
	switch t := v.Target.(type) {
	case *ast.Identifier:
		g.emitExpr(v.Value)
		if info, ok := g.mgr.LookupRaw(t.Name); ok {
			g.emit(fmt.Sprintf("si %d", info.Offset))
		}
	case *ast.Dereference:
		g.emitExpr(t.Inner)
		g.emit("push")
		g.emitExpr(v.Value)
		g.emit("pop bx")
		g.emit("sir bx")
	case *ast.MemberAccess:
		g.emitMemberAddress(t)
		g.emit("push")
		g.emitExpr(v.Value)
		g.emit("pop bx")
		g.emit("sir bx")
	}
}

func (g *generator) emitCall(call *ast.FunctionCall) {
	switch call.Callee {
	case "alloc":
		if len(call.Args) > 0 {
			g.emitExpr(call.Args[0])
		}
		g.emit("alloc")
		return
	case "free":
		if len(call.Args) > 0 {
			g.emitExpr(call.Args[0])
		}
		g.emit("free")
		return
	}

	// Push right-to-left (cdecl order) so the first parameter ends up
	// closest to the frame: scopemgr.Lookup assigns parameter i the
	// offset bp+2+i, which only holds if arg 0 is pushed last.
	for i := len(call.Args) - 1; i >= 0; i-- {
		g.emitExpr(call.Args[i])
		g.emit("push")
	}
	g.emit("call " + call.Callee)
	if len(call.Args) > 0 {
		g.emit(fmt.Sprintf("add esp, %d", len(call.Args)))
	}
}

func (g *generator) emitBinaryValue(v *ast.BinaryExpr) {
	switch v.Op {
	case token.Lt, token.Lte, token.Gt, token.Gte, token.Eq, token.Neq:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.emit("cmp bx, ax")
		g.emit(setInstr[v.Op] + " al")
		g.emit("and ax, 1")
	case token.Or:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.normalizeTruth()
		g.emit("add ax, bx")
		g.emit("cmp ax, 0")
		g.emit("setne al")
		g.emit("and ax, 1")
	case token.And:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.normalizeTruth()
		g.emit("and ax, bx")
	case token.Plus:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.emit("add ax, bx")
	case token.Minus:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.emit("sub bx, ax")
		g.emit("mov ax, bx")
	case token.Star:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.emit("mul bx, ax")
		g.emit("mov ax, bx")
	case token.Slash:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.emit("div bx, ax")
		g.emit("mov ax, bx")
	case token.Power:
		g.emitOperandsToBxAx(v.Left, v.Right)
		g.emit("power bx, ax")
		g.emit("mov ax, bx")
	case token.Percent:
		g.emitModulo(v.Left, v.Right)
	}
}

// emitModulo synthesizes n % d as n - (n/d)*d: the VM's arithmetic
// instruction set has no dedicated modulo opcode. The left operand is
// parked on the data stack while the right evaluates, and the shared
// scratch slots are written only after both operands are done, so a
// modulo nested inside either operand cannot clobber this one's
// state: the nested occurrence has fully finished with the slots by
// the time the outer one touches them.
func (g *generator) emitModulo(left, right ast.Expr) {
	nSlot := g.mgr.DeclareFunctionVariable("%mod_n")
	dSlot := g.mgr.DeclareFunctionVariable("%mod_d")

	g.emitExpr(left)
	g.emit("push")
	g.emitExpr(right)
	g.emit(fmt.Sprintf("si %d", dSlot))
	g.emit("pop ax")
	g.emit(fmt.Sprintf("si %d", nSlot))

	g.emit("mov bx, ax") // bx = n
	g.emit(fmt.Sprintf("li %d", dSlot))
	g.emit("div bx, ax") // bx = n / d
	g.emit("mul bx, ax") // bx = (n/d) * d
	g.emit(fmt.Sprintf("li %d", nSlot))
	g.emit("sub ax, bx")
}
