// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ast defines the tagged-variant syntax tree produced by the
// parser. Every node owns its children exclusively; the tree has no
// back-edges. Sum types and type switches, not a class hierarchy.
package ast

import "github.com/lm-toylang/miniforge/internal/token"

// Node is implemented by every AST node. It carries nothing but a
// position so callers can report diagnostics; type switches (not
// virtual dispatch) drive all traversal.
type Node interface {
	Pos() token.Position
}

// Expr is a marker interface for expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a marker interface for statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// AssignTarget restricts the left-hand side of an AssignmentStmt to
// the three syntactically valid forms.
type AssignTarget interface {
	Expr
	assignTargetNode()
}

// Base carries the source position common to every AST node. It is
// embedded, not wrapped, so field access stays flat (n.Pos() not
// n.Base.Pos()).
type Base struct {
	Position token.Position
}

func (b Base) Pos() token.Position { return b.Position }

// ---- expressions ----

type NumberLiteral struct {
	Base
	Value int64
}

type Identifier struct {
	Base
	Name string
}

type BinaryExpr struct {
	Base
	Op          token.Kind
	Left, Right Expr
}

type UnaryExpr struct {
	Base
	Op      token.Kind
	Operand Expr
}

type ParenExpr struct {
	Base
	Inner Expr
}

type AddressOf struct {
	Base
	Name string
}

type Dereference struct {
	Base
	Inner Expr
}

type MemberAccess struct {
	Base
	Object     Expr
	Field      string
	FieldOffset int
	StructName  string
	ByPointer   bool
	StructSize  int
}

type FunctionCall struct {
	Base
	Callee string
	Args   []Expr
}

func (NumberLiteral) exprNode() {}
func (Identifier) exprNode()    {}
func (BinaryExpr) exprNode()    {}
func (UnaryExpr) exprNode()     {}
func (ParenExpr) exprNode()     {}
func (AddressOf) exprNode()     {}
func (Dereference) exprNode()   {}
func (MemberAccess) exprNode()  {}
func (FunctionCall) exprNode()  {}

func (*Identifier) assignTargetNode()  {}
func (*Dereference) assignTargetNode() {}
func (*MemberAccess) assignTargetNode() {}

// ---- types ----

// TypeInfo is the parsed `int | struct NAME` plus trailing `*`/`**`
// tokens, collapsed to a base name and a pointer level.
type TypeInfo struct {
	BaseName     string // "int" or a struct name
	IsStruct     bool
	PointerLevel int
}

// Size is the slot count of a value of this type: 1 for any pointer
// or scalar, the struct's declared size for a non-pointer struct
// value.
func (t TypeInfo) Size(structSize func(name string) int) int {
	if t.PointerLevel > 0 || !t.IsStruct {
		return 1
	}
	return structSize(t.BaseName)
}

// StructField is one member of a StructDecl.
type StructField struct {
	Name   string
	Type   TypeInfo
	Offset int // byte/slot offset within the struct
	Size   int
}

// StructDecl declares a struct layout. Total size is the sum of field
// sizes.
type StructDecl struct {
	Base
	Name   string
	Fields []StructField
	Size   int
}

func (*StructDecl) stmtNode() {}

// ---- statements ----

type VariableDecl struct {
	Base
	Name string
	Type TypeInfo
	Init Expr // nil if uninitialized
}

type LetDecl struct {
	Base
	Name string
	Type TypeInfo
	Init Expr
}

type AssignmentStmt struct {
	Base
	Target AssignTarget
	Value  Expr
}

type ExpressionStmt struct {
	Base
	X Expr
}

type IfStmt struct {
	Base
	Cond       Expr
	Then       *BlockStmt
	Else       Stmt // *BlockStmt, *IfStmt (else-if), or nil
}

type WhileStmt struct {
	Base
	Cond Expr
	Body *BlockStmt
}

type ForStmt struct {
	Base
	Init Stmt // VariableDecl, LetDecl or AssignmentStmt, may be nil
	Cond Expr
	Post Stmt
	Body *BlockStmt
}

type ReturnStmt struct {
	Base
	Value Expr // nil for bare `return;`
}

type BreakStmt struct{ Base }
type ContinueStmt struct{ Base }

type BlockStmt struct {
	Base
	Stmts []Stmt
}

type EmptyStmt struct{ Base }

// Param is one function parameter.
type Param struct {
	Name string
	Type TypeInfo
}

type FunctionDecl struct {
	Base
	Name       string
	ReturnType TypeInfo
	Params     []Param
	Body       *BlockStmt // nil for a forward declaration (`;` body)
}

// StartCheckPoint / EndCheckPoint are the synthetic scope markers
// inserted by the scope-annotation pass. They are not
// produced by the parser.
type StartCheckPoint struct {
	Base
	ScopeID   int
	Depth     int
	VarNames  []string
	VarSizes  []int
}

type EndCheckPoint struct {
	Base
	ScopeID  int
	Depth    int
	VarNames []string
	VarSizes []int
}

func (*VariableDecl) stmtNode()    {}
func (*LetDecl) stmtNode()         {}
func (*AssignmentStmt) stmtNode()  {}
func (*ExpressionStmt) stmtNode()  {}
func (*IfStmt) stmtNode()          {}
func (*WhileStmt) stmtNode()       {}
func (*ForStmt) stmtNode()         {}
func (*ReturnStmt) stmtNode()      {}
func (*BreakStmt) stmtNode()       {}
func (*ContinueStmt) stmtNode()    {}
func (*BlockStmt) stmtNode()       {}
func (*EmptyStmt) stmtNode()       {}
func (*FunctionDecl) stmtNode()    {}
func (*StartCheckPoint) stmtNode() {}
func (*EndCheckPoint) stmtNode()   {}

// NewPos constructs the embeddable position base for a new node.
func NewPos(p token.Position) Base { return Base{Position: p} }

// Program is a whole compilation unit: structs and functions in
// source order.
type Program struct {
	Structs   []*StructDecl
	Functions []*FunctionDecl
}
