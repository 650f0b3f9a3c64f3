// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parser implements a recursive-descent, precedence-climbing
// parser over the miniforge grammar, producing an
// internal/ast tree plus an accumulated error/warning list.
package parser

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lm-toylang/miniforge/internal/ast"
	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/token"
)

// Kind identifies which entry of the flat error taxonomy an Error
// belongs to.
type Kind string

const (
	ParseErrorKind        Kind = "ParseError"
	NameErrorKind         Kind = "NameError"
	TypeErrorKind         Kind = "TypeError"
	TDZErrorKind          Kind = "TDZError"
	RedeclarationErrorKind Kind = "RedeclarationError"
)

// Error is one entry of a Result's error/warning list.
type Error struct {
	Kind Kind
	Msg  string
	Pos  token.Position
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s at %s", e.Kind, e.Msg, e.Pos)
}

// Result is the outcome of Parse: whichever AST was recoverable, plus
// every error encountered (parsing never aborts early).
type Result struct {
	Program *ast.Program
	Errors  []error
}

// Parser holds all mutable state for one parse.
type Parser struct {
	toks []token.Token
	pos  int
	ctx  *ctx.Context

	errs []error

	// tdz is the set of `let` names not yet textually declared within
	// the function currently being parsed.
	tdz map[string]bool

	// locals is a flat (non-scope-aware) name->type map for the
	// function currently being parsed. It exists only so MemberAccess
	// nodes can carry a resolved struct name/offset/size at parse
	// time, matching the AST data model; true scope-aware resolution
	// (shadowing, visibility) is the scope manager's job at codegen
	// time, not the parser's.
	locals map[string]ast.TypeInfo
}

// Parse tokenizes-already tokens into a Program. c must be freshly
// constructed (or reused across files that intentionally share a
// struct/function namespace).
func Parse(toks []token.Token, c *ctx.Context) Result {
	p := &Parser{toks: toks, ctx: c}
	prog := p.parseProgram()
	p.validateCalls(prog)
	p.validateVariables(prog)
	return Result{Program: prog, Errors: p.errs}
}

// ---- token stream helpers ----

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }
func (p *Parser) atEOF() bool       { return p.cur().Kind == token.EOF }

func (p *Parser) lookAhead(n int) token.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[i]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if !p.atEOF() {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k token.Kind) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	p.errorf(ParseErrorKind, p.cur().Pos, "expected %s, found %s", k, p.cur().Kind)
	return p.cur(), false
}

func (p *Parser) errorf(kind Kind, pos token.Position, format string, args ...interface{}) {
	p.errs = append(p.errs, errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Pos: pos}))
}

// syncTo advances past tokens until one of kinds is seen (or EOF), so
// parsing can continue after a malformed construct.
func (p *Parser) syncTo(kinds ...token.Kind) {
	for !p.atEOF() {
		for _, k := range kinds {
			if p.at(k) {
				return
			}
		}
		p.advance()
	}
}

// ---- program / top level ----

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.atEOF() {
		switch {
		case p.at(token.KwStruct) && p.isStructDeclAhead():
			if s := p.parseStructDecl(); s != nil {
				prog.Structs = append(prog.Structs, s)
			}
		case p.isFunctionDeclAhead():
			if fn := p.parseFunctionDecl(); fn != nil {
				prog.Functions = append(prog.Functions, fn)
			}
		default:
			p.errorf(ParseErrorKind, p.cur().Pos, "expected struct or function declaration, found %s", p.cur().Kind)
			p.syncTo(token.KwStruct, token.KwInt, token.EOF)
		}
	}
	return prog
}

// isStructDeclAhead distinguishes `struct Name { ... };` (a
// declaration) from `struct Name *x(...)` / `struct Name x;` (a type
// use) by checking whether a `{` follows the name.
func (p *Parser) isStructDeclAhead() bool {
	return p.lookAhead(2).Kind == token.LBrace
}

// isFunctionDeclAhead performs a fixed lookahead:
// `int IDENT (` or `struct NAME [*]* IDENT (`.
func (p *Parser) isFunctionDeclAhead() bool {
	i := 0
	tok := p.lookAhead(i)
	if tok.Kind == token.KwInt {
		i++
	} else if tok.Kind == token.KwStruct {
		i += 2 // struct NAME
	} else {
		return false
	}
	for p.lookAhead(i).Kind == token.Star || p.lookAhead(i).Kind == token.Power {
		i++
	}
	return p.lookAhead(i).Kind == token.Identifier && p.lookAhead(i+1).Kind == token.LParen
}

func (p *Parser) parseStructDecl() *ast.StructDecl {
	kw, _ := p.expect(token.KwStruct)
	name, _ := p.expect(token.Identifier)
	p.expect(token.LBrace)

	decl := &ast.StructDecl{Base: ast.NewPos(kw.Pos), Name: name.Text}
	seen := map[string]bool{}
	offset := 0
	for !p.at(token.RBrace) && !p.atEOF() {
		ty := p.parseType()
		fname, _ := p.expect(token.Identifier)
		p.expect(token.Semicolon)
		size := ty.Size(p.ctx.StructSize)
		if seen[fname.Text] {
			p.errorf(RedeclarationErrorKind, fname.Pos, "duplicate field %q in struct %q", fname.Text, name.Text)
		}
		seen[fname.Text] = true
		decl.Fields = append(decl.Fields, ast.StructField{Name: fname.Text, Type: ty, Offset: offset, Size: size})
		offset += size
	}
	decl.Size = offset
	p.expect(token.RBrace)
	p.expect(token.Semicolon)
	p.ctx.DeclareStruct(decl)
	return decl
}

// parseType parses `int | struct NAME` followed by zero or more
// `*`/`**` tokens and collapses them into a TypeInfo.
func (p *Parser) parseType() ast.TypeInfo {
	var ty ast.TypeInfo
	switch {
	case p.at(token.KwInt):
		p.advance()
		ty.BaseName = "int"
	case p.at(token.KwStruct):
		p.advance()
		name, _ := p.expect(token.Identifier)
		ty.BaseName = name.Text
		ty.IsStruct = true
	default:
		p.errorf(ParseErrorKind, p.cur().Pos, "expected a type, found %s", p.cur().Kind)
	}
	for {
		switch {
		case p.at(token.Star):
			p.advance()
			ty.PointerLevel++
		case p.at(token.Power):
			p.advance()
			ty.PointerLevel += 2
		default:
			return ty
		}
	}
}

func (p *Parser) parseFunctionDecl() *ast.FunctionDecl {
	pos := p.cur().Pos
	retType := p.parseType()
	name, _ := p.expect(token.Identifier)
	p.expect(token.LParen)

	fn := &ast.FunctionDecl{Base: ast.NewPos(pos), Name: name.Text, ReturnType: retType}
	for !p.at(token.RParen) && !p.atEOF() {
		pty := p.parseType()
		if pty.IsStruct && pty.PointerLevel == 0 {
			p.errorf(TypeErrorKind, p.cur().Pos, "struct-value parameter %q is unsupported", p.cur().Text)
		}
		pname, _ := p.expect(token.Identifier)
		fn.Params = append(fn.Params, ast.Param{Name: pname.Text, Type: pty})
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RParen)

	p.ctx.DeclareFunction(fn)

	if p.at(token.Semicolon) {
		p.advance() // forward declaration, no body
		return fn
	}

	prevTDZ, prevLocals := p.tdz, p.locals
	p.tdz = p.collectLetNames(p.peekBlockTokens())
	p.locals = map[string]ast.TypeInfo{}
	for _, param := range fn.Params {
		p.locals[param.Name] = param.Type
	}
	fn.Body = p.parseBlock()
	p.tdz, p.locals = prevTDZ, prevLocals
	return fn
}

// peekBlockTokens returns the token slice spanning the `{ ... }` body
// about to be parsed, used only to pre-scan `let` names for the TDZ
// check; it does not consume input.
func (p *Parser) peekBlockTokens() []token.Token {
	if !p.at(token.LBrace) {
		return nil
	}
	depth := 0
	start := p.pos
	i := p.pos
	for {
		k := p.toks[i].Kind
		if k == token.LBrace {
			depth++
		} else if k == token.RBrace {
			depth--
			if depth == 0 {
				return p.toks[start : i+1]
			}
		} else if k == token.EOF {
			return p.toks[start:i]
		}
		i++
	}
}

// collectLetNames scans body for `let [*|**]* IDENT` patterns and
// returns the set of names that start the function in the
// temporal-dead-zone.
func (p *Parser) collectLetNames(body []token.Token) map[string]bool {
	names := map[string]bool{}
	for i := 0; i < len(body); i++ {
		if body[i].Kind != token.KwLet {
			continue
		}
		j := i + 1
		for j < len(body) && (body[j].Kind == token.Star || body[j].Kind == token.Power) {
			j++
		}
		if j < len(body) && body[j].Kind == token.Identifier {
			names[body[j].Text] = true
		}
	}
	return names
}

// ---- statements ----

func (p *Parser) parseBlock() *ast.BlockStmt {
	lb, _ := p.expect(token.LBrace)
	blk := &ast.BlockStmt{Base: ast.NewPos(lb.Pos)}
	for !p.at(token.RBrace) && !p.atEOF() {
		blk.Stmts = append(blk.Stmts, p.parseStatement())
	}
	p.expect(token.RBrace)
	return blk
}

func (p *Parser) parseStatement() ast.Stmt {
	switch {
	case p.at(token.Semicolon):
		pos := p.advance().Pos
		return &ast.EmptyStmt{Base: ast.NewPos(pos)}
	case p.at(token.LBrace):
		return p.parseBlock()
	case p.at(token.KwInt):
		return p.parseVarDecl()
	case p.at(token.KwStruct) && !p.isFunctionDeclAhead():
		return p.parseVarDecl()
	case p.at(token.KwLet):
		return p.parseLetDecl()
	case p.at(token.KwIf):
		return p.parseIf()
	case p.at(token.KwWhile):
		return p.parseWhile()
	case p.at(token.KwFor):
		return p.parseFor()
	case p.at(token.KwReturn):
		return p.parseReturn()
	case p.at(token.KwBreak):
		pos := p.advance().Pos
		p.expect(token.Semicolon)
		return &ast.BreakStmt{Base: ast.NewPos(pos)}
	case p.at(token.KwContinue):
		pos := p.advance().Pos
		p.expect(token.Semicolon)
		return &ast.ContinueStmt{Base: ast.NewPos(pos)}
	case p.looksLikeAssignment():
		return p.parseAssignment()
	default:
		return p.parseExpressionStatement()
	}
}

// looksLikeAssignment dispatches on fixed lookahead: `IDENT =`,
// `IDENT -> field =`, `IDENT . field =`, or `*+ IDENT =`.
func (p *Parser) looksLikeAssignment() bool {
	if p.at(token.Star) || p.at(token.Power) {
		i := 0
		for p.lookAhead(i).Kind == token.Star || p.lookAhead(i).Kind == token.Power {
			i++
		}
		return p.lookAhead(i).Kind == token.Identifier && p.lookAhead(i+1).Kind == token.Assign
	}
	if p.at(token.Identifier) {
		n := p.lookAhead(1)
		if n.Kind == token.Assign {
			return true
		}
		if n.Kind == token.Arrow || n.Kind == token.Dot {
			return p.lookAhead(3).Kind == token.Assign
		}
	}
	return false
}

func (p *Parser) parseVarDecl() ast.Stmt {
	pos := p.cur().Pos
	ty := p.parseType()
	name, _ := p.expect(token.Identifier)

	if ty.IsStruct && ty.PointerLevel == 0 {
		// struct-value declarations reserve space but cannot be
		// initialized with a value.
		if p.at(token.Assign) {
			p.errorf(TypeErrorKind, p.cur().Pos, "struct-value initializer for %q is unsupported", name.Text)
			p.advance()
			p.parseExpr()
		}
		p.expect(token.Semicolon)
		p.setLocal(name.Text, ty)
		return &ast.VariableDecl{Base: ast.NewPos(pos), Name: name.Text, Type: ty}
	}

	var init ast.Expr
	if p.at(token.Assign) {
		p.advance()
		init = p.parseExpr()
	}
	p.expect(token.Semicolon)
	p.setLocal(name.Text, ty)
	return &ast.VariableDecl{Base: ast.NewPos(pos), Name: name.Text, Type: ty, Init: init}
}

// setLocal records name's type for later MemberAccess struct-name
// resolution (see Parser.locals).
func (p *Parser) setLocal(name string, ty ast.TypeInfo) {
	if p.locals != nil {
		p.locals[name] = ty
	}
}

func (p *Parser) parseLetDecl() ast.Stmt {
	pos := p.advance().Pos // consume 'let'
	ty := ast.TypeInfo{BaseName: "int"}
	if p.at(token.KwInt) || p.at(token.KwStruct) {
		ty = p.parseType()
	} else {
		for p.at(token.Star) || p.at(token.Power) {
			if p.at(token.Star) {
				ty.PointerLevel++
			} else {
				ty.PointerLevel += 2
			}
			p.advance()
		}
	}
	name, _ := p.expect(token.Identifier)

	var init ast.Expr
	if p.at(token.Assign) {
		p.advance()
		init = p.parseExpr()
	}
	p.expect(token.Semicolon)
	delete(p.tdz, name.Text) // declaration point: name leaves the TDZ
	p.setLocal(name.Text, ty)
	return &ast.LetDecl{Base: ast.NewPos(pos), Name: name.Text, Type: ty, Init: init}
}

// parseBody parses an if/else/while/for body: a braced block, or a
// single statement wrapped in a block of its own.
func (p *Parser) parseBody() *ast.BlockStmt {
	if p.at(token.LBrace) {
		return p.parseBlock()
	}
	blk := &ast.BlockStmt{Base: ast.NewPos(p.cur().Pos)}
	blk.Stmts = append(blk.Stmts, p.parseStatement())
	return blk
}

func (p *Parser) parseIf() ast.Stmt {
	pos := p.advance().Pos
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	then := p.parseBody()
	stmt := &ast.IfStmt{Base: ast.NewPos(pos), Cond: cond, Then: then}
	if p.at(token.KwElse) {
		p.advance()
		if p.at(token.KwIf) {
			stmt.Else = p.parseIf()
		} else {
			stmt.Else = p.parseBody()
		}
	}
	return stmt
}

func (p *Parser) parseWhile() ast.Stmt {
	pos := p.advance().Pos
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	body := p.parseBody()
	return &ast.WhileStmt{Base: ast.NewPos(pos), Cond: cond, Body: body}
}

func (p *Parser) parseFor() ast.Stmt {
	pos := p.advance().Pos
	p.expect(token.LParen)

	stmt := &ast.ForStmt{Base: ast.NewPos(pos)}
	if !p.at(token.Semicolon) {
		if p.at(token.KwInt) || p.at(token.KwLet) {
			if p.at(token.KwInt) {
				stmt.Init = p.parseVarDeclNoSemi()
			} else {
				stmt.Init = p.parseLetDeclNoSemi()
			}
		} else {
			stmt.Init = p.parseAssignmentNoSemi()
		}
	}
	p.expect(token.Semicolon)

	if !p.at(token.Semicolon) {
		stmt.Cond = p.parseExpr()
	}
	p.expect(token.Semicolon)

	if !p.at(token.RParen) {
		stmt.Post = p.parseAssignmentNoSemi()
	}
	p.expect(token.RParen)
	stmt.Body = p.parseBody()
	return stmt
}

// the *NoSemi helpers let `for` reuse decl/assignment parsing without
// consuming the `;`/`)` the for-header itself owns.
func (p *Parser) parseVarDeclNoSemi() ast.Stmt {
	pos := p.cur().Pos
	ty := p.parseType()
	name, _ := p.expect(token.Identifier)
	var init ast.Expr
	if p.at(token.Assign) {
		p.advance()
		init = p.parseExpr()
	}
	p.setLocal(name.Text, ty)
	return &ast.VariableDecl{Base: ast.NewPos(pos), Name: name.Text, Type: ty, Init: init}
}

func (p *Parser) parseLetDeclNoSemi() ast.Stmt {
	pos := p.advance().Pos
	name, _ := p.expect(token.Identifier)
	var init ast.Expr
	if p.at(token.Assign) {
		p.advance()
		init = p.parseExpr()
	}
	delete(p.tdz, name.Text)
	ty := ast.TypeInfo{BaseName: "int"}
	p.setLocal(name.Text, ty)
	return &ast.LetDecl{Base: ast.NewPos(pos), Name: name.Text, Type: ty, Init: init}
}

func (p *Parser) parseAssignmentNoSemi() ast.Stmt {
	pos := p.cur().Pos
	target := p.parseAssignTarget()
	p.expect(token.Assign)
	value := p.parseExpr()
	return &ast.AssignmentStmt{Base: ast.NewPos(pos), Target: target, Value: value}
}

func (p *Parser) parseAssignment() ast.Stmt {
	stmt := p.parseAssignmentNoSemi()
	p.expect(token.Semicolon)
	return stmt
}

// parseAssignTarget counts multi-level dereferences on an
// assignment's left side: `*`/`**` tokens accumulate a deref count,
// then a left-deep chain of Dereference nodes wraps the final
// identifier (or a `.`/`->` member chain).
func (p *Parser) parseAssignTarget() ast.AssignTarget {
	derefs := 0
	pos := p.cur().Pos
	for p.at(token.Star) || p.at(token.Power) {
		if p.at(token.Star) {
			derefs++
		} else {
			derefs += 2
		}
		p.advance()
	}

	name, _ := p.expect(token.Identifier)
	var target ast.AssignTarget = &ast.Identifier{Base: ast.NewPos(name.Pos), Name: name.Text}
	p.checkTDZ(name)

	for p.at(token.Dot) || p.at(token.Arrow) {
		byPointer := p.at(token.Arrow)
		p.advance()
		field, _ := p.expect(token.Identifier)
		target = p.buildMemberAccess(target.(ast.Expr), field, byPointer)
	}

	for i := 0; i < derefs; i++ {
		target = &ast.Dereference{Base: ast.NewPos(pos), Inner: target.(ast.Expr)}
	}
	return target
}

func (p *Parser) buildMemberAccess(obj ast.Expr, field token.Token, byPointer bool) *ast.MemberAccess {
	ma := &ast.MemberAccess{Base: ast.NewPos(field.Pos), Object: obj, Field: field.Text, ByPointer: byPointer}
	structName, ok := p.resolveStructName(obj)
	if !ok {
		p.errorf(TypeErrorKind, field.Pos, "member access on a non-struct expression")
		return ma
	}
	ma.StructName = structName
	if f, ok := p.ctx.StructField(structName, field.Text); ok {
		ma.FieldOffset = f.Offset
		ma.StructSize = p.ctx.StructSize(structName)
	} else {
		p.errorf(TypeErrorKind, field.Pos, "field %q not found in struct %q", field.Text, structName)
	}
	return ma
}

// resolveStructName does a best-effort lookup of the struct type name
// backing obj, using the flat locals map for a plain identifier and
// the struct field table for a chained member access. Dereferences of
// a struct-pointer local are also resolved.
func (p *Parser) resolveStructName(obj ast.Expr) (string, bool) {
	switch v := obj.(type) {
	case *ast.Identifier:
		ty, ok := p.locals[v.Name]
		if !ok || !ty.IsStruct {
			return "", false
		}
		return ty.BaseName, true
	case *ast.Dereference:
		return p.resolveStructName(v.Inner)
	case *ast.MemberAccess:
		f, ok := p.ctx.StructField(v.StructName, v.Field)
		if !ok || !f.Type.IsStruct {
			return "", false
		}
		return f.Type.BaseName, true
	default:
		return "", false
	}
}

func (p *Parser) parseReturn() ast.Stmt {
	pos := p.advance().Pos
	if p.at(token.Semicolon) {
		p.advance()
		return &ast.ReturnStmt{Base: ast.NewPos(pos)}
	}
	val := p.parseExpr()
	p.expect(token.Semicolon)
	return &ast.ReturnStmt{Base: ast.NewPos(pos), Value: val}
}

func (p *Parser) parseExpressionStatement() ast.Stmt {
	pos := p.cur().Pos
	x := p.parseExpr()
	p.expect(token.Semicolon)
	return &ast.ExpressionStmt{Base: ast.NewPos(pos), X: x}
}

// ---- expressions: precedence climbing ----

func (p *Parser) parseExpr() ast.Expr { return p.parseOr() }

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.at(token.Or) {
		op := p.advance()
		right := p.parseAnd()
		left = &ast.BinaryExpr{Base: ast.NewPos(op.Pos), Op: token.Or, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseEquality()
	for p.at(token.And) {
		op := p.advance()
		right := p.parseEquality()
		left = &ast.BinaryExpr{Base: ast.NewPos(op.Pos), Op: token.And, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	left := p.parseRelational()
	for p.at(token.Eq) || p.at(token.Neq) {
		op := p.advance()
		right := p.parseRelational()
		left = &ast.BinaryExpr{Base: ast.NewPos(op.Pos), Op: op.Kind, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseRelational() ast.Expr {
	left := p.parseAdditive()
	for p.at(token.Lt) || p.at(token.Lte) || p.at(token.Gt) || p.at(token.Gte) {
		op := p.advance()
		right := p.parseAdditive()
		left = &ast.BinaryExpr{Base: ast.NewPos(op.Pos), Op: op.Kind, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.at(token.Plus) || p.at(token.Minus) {
		op := p.advance()
		right := p.parseMultiplicative()
		left = &ast.BinaryExpr{Base: ast.NewPos(op.Pos), Op: op.Kind, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parsePower()
	for p.at(token.Star) || p.at(token.Slash) || p.at(token.Percent) {
		op := p.advance()
		right := p.parsePower()
		left = &ast.BinaryExpr{Base: ast.NewPos(op.Pos), Op: op.Kind, Left: left, Right: right}
	}
	return left
}

// parsePower implements the right-associative `**` exponent operator.
// The prefix (double-dereference) role of `**` is resolved one level
// down, in parseUnary, by position: if parseUnary sees a `**` where it
// expects the START of an operand, it is a prefix dereference; here,
// we only ever consume `**` AFTER a left operand has already been
// parsed, which is exactly the infix/exponent role.
func (p *Parser) parsePower() ast.Expr {
	left := p.parseUnary()
	if p.at(token.Power) {
		op := p.advance()
		right := p.parsePower() // right-associative
		return &ast.BinaryExpr{Base: ast.NewPos(op.Pos), Op: token.Power, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	switch {
	case p.at(token.Minus), p.at(token.Bang):
		op := p.advance()
		operand := p.parseUnary()
		return &ast.UnaryExpr{Base: ast.NewPos(op.Pos), Op: op.Kind, Operand: operand}
	case p.at(token.Star):
		op := p.advance()
		operand := p.parseUnary()
		return &ast.Dereference{Base: ast.NewPos(op.Pos), Inner: operand}
	case p.at(token.Power):
		// prefix position: `**expr` is double-dereference.
		op := p.advance()
		operand := p.parseUnary()
		return &ast.Dereference{Base: ast.NewPos(op.Pos), Inner: &ast.Dereference{Base: ast.NewPos(op.Pos), Inner: operand}}
	case p.at(token.Amp):
		op := p.advance()
		name, _ := p.expect(token.Identifier)
		return &ast.AddressOf{Base: ast.NewPos(op.Pos), Name: name.Text}
	default:
		return p.parsePostfix()
	}
}

// parsePostfix parses a primary expression followed by any number of
// `.field` / `->field` accesses.
func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for p.at(token.Dot) || p.at(token.Arrow) {
		byPointer := p.at(token.Arrow)
		p.advance()
		field, _ := p.expect(token.Identifier)
		expr = p.buildMemberAccess(expr, field, byPointer)
	}
	return expr
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur()
	switch tok.Kind {
	case token.Number:
		p.advance()
		return &ast.NumberLiteral{Base: ast.NewPos(tok.Pos), Value: tok.IntValue}
	case token.LParen:
		p.advance()
		inner := p.parseExpr()
		p.expect(token.RParen)
		return &ast.ParenExpr{Base: ast.NewPos(tok.Pos), Inner: inner}
	case token.Identifier:
		p.advance()
		if p.at(token.LParen) {
			return p.parseCallArgs(tok)
		}
		p.checkTDZ(tok)
		return &ast.Identifier{Base: ast.NewPos(tok.Pos), Name: tok.Text}
	default:
		p.errorf(ParseErrorKind, tok.Pos, "unexpected token %s in expression", tok.Kind)
		p.advance()
		return &ast.NumberLiteral{Base: ast.NewPos(tok.Pos), Value: 0}
	}
}

func (p *Parser) parseCallArgs(callee token.Token) ast.Expr {
	p.expect(token.LParen)
	call := &ast.FunctionCall{Base: ast.NewPos(callee.Pos), Callee: callee.Text}
	for !p.at(token.RParen) && !p.atEOF() {
		call.Args = append(call.Args, p.parseExpr())
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RParen)
	return call
}

// checkTDZ raises a TDZError if name is still in the function's
// temporal dead zone.
func (p *Parser) checkTDZ(name token.Token) {
	if p.tdz != nil && p.tdz[name.Text] {
		p.errorf(TDZErrorKind, name.Pos, "%q used before its `let` declaration", name.Text)
	}
}

// validateCalls walks the finished program and raises a NameError for
// any call to a function never declared anywhere in the program (the
// function table is fully populated only after the whole program has
// been parsed, since declarations may follow their first call site).
func (p *Parser) validateCalls(prog *ast.Program) {
	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)

	walkExpr = func(e ast.Expr) {
		switch v := e.(type) {
		case *ast.BinaryExpr:
			walkExpr(v.Left)
			walkExpr(v.Right)
		case *ast.UnaryExpr:
			walkExpr(v.Operand)
		case *ast.ParenExpr:
			walkExpr(v.Inner)
		case *ast.Dereference:
			walkExpr(v.Inner)
		case *ast.MemberAccess:
			walkExpr(v.Object)
		case *ast.FunctionCall:
			if _, ok := p.ctx.Functions[v.Callee]; !ok {
				p.errorf(NameErrorKind, v.Pos(), "undefined function %q", v.Callee)
			}
			for _, a := range v.Args {
				walkExpr(a)
			}
		}
	}

	walkStmt = func(s ast.Stmt) {
		switch v := s.(type) {
		case *ast.VariableDecl:
			if v.Init != nil {
				walkExpr(v.Init)
			}
		case *ast.LetDecl:
			if v.Init != nil {
				walkExpr(v.Init)
			}
		case *ast.AssignmentStmt:
			walkExpr(v.Value)
		case *ast.ExpressionStmt:
			walkExpr(v.X)
		case *ast.IfStmt:
			walkExpr(v.Cond)
			walkStmt(v.Then)
			if v.Else != nil {
				walkStmt(v.Else)
			}
		case *ast.WhileStmt:
			walkExpr(v.Cond)
			walkStmt(v.Body)
		case *ast.ForStmt:
			if v.Init != nil {
				walkStmt(v.Init)
			}
			if v.Cond != nil {
				walkExpr(v.Cond)
			}
			if v.Post != nil {
				walkStmt(v.Post)
			}
			walkStmt(v.Body)
		case *ast.ReturnStmt:
			if v.Value != nil {
				walkExpr(v.Value)
			}
		case *ast.BlockStmt:
			for _, st := range v.Stmts {
				walkStmt(st)
			}
		}
	}

	for _, fn := range prog.Functions {
		if fn.Body != nil {
			walkStmt(fn.Body)
		}
	}
}

// validateVariables walks the finished program and raises a NameError
// for any reference to a variable that resolves to neither a function
// parameter nor an enclosing VariableDecl/LetDecl. It mirrors
// validateCalls' shape, but tracks a stack of lexical scopes instead
// of a flat table, since shadowing means the same name can be valid
// in one block and undefined in its sibling.
func (p *Parser) validateVariables(prog *ast.Program) {
	var scopes []map[string]bool

	push := func() { scopes = append(scopes, map[string]bool{}) }
	pop := func() { scopes = scopes[:len(scopes)-1] }
	declare := func(name string) { scopes[len(scopes)-1][name] = true }
	resolves := func(name string) bool {
		for i := len(scopes) - 1; i >= 0; i-- {
			if scopes[i][name] {
				return true
			}
		}
		return false
	}
	check := func(name string, pos token.Position) {
		if !resolves(name) {
			p.errorf(NameErrorKind, pos, "undefined variable %q", name)
		}
	}

	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)
	var walkBlock func(*ast.BlockStmt)

	walkExpr = func(e ast.Expr) {
		switch v := e.(type) {
		case *ast.Identifier:
			check(v.Name, v.Pos())
		case *ast.AddressOf:
			check(v.Name, v.Pos())
		case *ast.BinaryExpr:
			walkExpr(v.Left)
			walkExpr(v.Right)
		case *ast.UnaryExpr:
			walkExpr(v.Operand)
		case *ast.ParenExpr:
			walkExpr(v.Inner)
		case *ast.Dereference:
			walkExpr(v.Inner)
		case *ast.MemberAccess:
			walkExpr(v.Object)
		case *ast.FunctionCall:
			for _, a := range v.Args {
				walkExpr(a)
			}
		}
	}

	walkTarget := func(t ast.AssignTarget) {
		switch v := t.(type) {
		case *ast.Identifier:
			check(v.Name, v.Pos())
		case *ast.Dereference:
			walkExpr(v.Inner)
		case *ast.MemberAccess:
			walkExpr(v.Object)
		}
	}

	walkBlock = func(b *ast.BlockStmt) {
		push()
		for _, st := range b.Stmts {
			walkStmt(st)
		}
		pop()
	}

	walkStmt = func(s ast.Stmt) {
		switch v := s.(type) {
		case *ast.VariableDecl:
			if v.Init != nil {
				walkExpr(v.Init)
			}
			declare(v.Name)
		case *ast.LetDecl:
			if v.Init != nil {
				walkExpr(v.Init)
			}
			declare(v.Name)
		case *ast.AssignmentStmt:
			walkTarget(v.Target)
			walkExpr(v.Value)
		case *ast.ExpressionStmt:
			walkExpr(v.X)
		case *ast.IfStmt:
			walkExpr(v.Cond)
			walkStmt(v.Then)
			if v.Else != nil {
				walkStmt(v.Else)
			}
		case *ast.WhileStmt:
			walkExpr(v.Cond)
			walkStmt(v.Body)
		case *ast.ForStmt:
			// The loop var lives in the scope enclosing the
			// loop, so Init/Cond/Post/Body all
			// share one pushed scope rather than Body nesting
			// its own on top of a separate Init scope.
			push()
			if v.Init != nil {
				walkStmt(v.Init)
			}
			if v.Cond != nil {
				walkExpr(v.Cond)
			}
			for _, st := range v.Body.Stmts {
				walkStmt(st)
			}
			if v.Post != nil {
				walkStmt(v.Post)
			}
			pop()
		case *ast.ReturnStmt:
			if v.Value != nil {
				walkExpr(v.Value)
			}
		case *ast.BlockStmt:
			walkBlock(v)
		}
	}

	for _, fn := range prog.Functions {
		if fn.Body == nil {
			continue
		}
		push()
		for _, param := range fn.Params {
			declare(param.Name)
		}
		for _, st := range fn.Body.Stmts {
			walkStmt(st)
		}
		pop()
	}
}
