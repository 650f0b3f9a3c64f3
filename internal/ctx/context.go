// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctx holds the compilation-wide mutable state (struct
// table, scope-id counter, segment counter) in one explicit struct,
// threaded through every pass instead of living as package-level
// globals.
package ctx

import (
	"fmt"

	"github.com/lm-toylang/miniforge/internal/ast"
)

// FuncSignature records a function's parameter/return shape for call
// resolution, independent of whether a body was ever parsed (forward
// declarations, or the two built-ins).
type FuncSignature struct {
	Name       string
	Params     []ast.Param
	ReturnType ast.TypeInfo
	Builtin    bool
}

// Context is the single owner of state shared across the lexer,
// parser, scope-annotation pass and code generator for one
// compilation. It is not safe for concurrent use; the pipeline is
// single-threaded.
type Context struct {
	Structs   map[string]*ast.StructDecl
	Functions map[string]*FuncSignature
	Warnings  []string

	nextScopeID int
	nextSegment int
}

// New returns a Context pre-populated with the two built-in runtime
// functions, `alloc(int) -> int` and `free(int) -> void`.
func New() *Context {
	c := &Context{
		Structs:   make(map[string]*ast.StructDecl),
		Functions: make(map[string]*FuncSignature),
	}
	c.Functions["alloc"] = &FuncSignature{
		Name:    "alloc",
		Params:  []ast.Param{{Name: "size", Type: ast.TypeInfo{BaseName: "int"}}},
		ReturnType: ast.TypeInfo{BaseName: "int"},
		Builtin: true,
	}
	c.Functions["free"] = &FuncSignature{
		Name:    "free",
		Params:  []ast.Param{{Name: "ptr", Type: ast.TypeInfo{BaseName: "int"}}},
		ReturnType: ast.TypeInfo{BaseName: "void"},
		Builtin: true,
	}
	return c
}

// DeclareStruct interns decl by name. Redefinition is a warning, last
// definition wins.
func (c *Context) DeclareStruct(decl *ast.StructDecl) {
	if _, exists := c.Structs[decl.Name]; exists {
		c.Warnings = append(c.Warnings, fmt.Sprintf(
			"struct %q redefined at %s; last definition wins", decl.Name, decl.Pos()))
	}
	c.Structs[decl.Name] = decl
}

// StructSize looks up the interned byte/slot size of a struct by
// name, returning 0 if unknown (the caller is expected to have
// already raised a TypeError for an undefined struct).
func (c *Context) StructSize(name string) int {
	if s, ok := c.Structs[name]; ok {
		return s.Size
	}
	return 0
}

// StructField looks up field by name within struct structName.
func (c *Context) StructField(structName, field string) (ast.StructField, bool) {
	s, ok := c.Structs[structName]
	if !ok {
		return ast.StructField{}, false
	}
	for _, f := range s.Fields {
		if f.Name == field {
			return f, true
		}
	}
	return ast.StructField{}, false
}

// DeclareFunction registers fn's signature into the global function
// table.
func (c *Context) DeclareFunction(fn *ast.FunctionDecl) {
	c.Functions[fn.Name] = &FuncSignature{
		Name:       fn.Name,
		Params:     fn.Params,
		ReturnType: fn.ReturnType,
	}
}

// NextScopeID returns a fresh, monotonically increasing scope id used
// to name StartCheckPoint/EndCheckPoint pairs ("scope_0", "scope_1", …).
func (c *Context) NextScopeID() int {
	id := c.nextScopeID
	c.nextScopeID++
	return id
}

// NextSegment returns the next dynamic-linking segment index.
func (c *Context) NextSegment() int {
	s := c.nextSegment
	c.nextSegment++
	return s
}
