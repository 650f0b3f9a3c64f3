// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package token defines the lexical tokens of the miniforge source
// language and their positions.
package token

import "fmt"

// Kind identifies the lexical class of a Token.
type Kind int8

const (
	EOF Kind = iota
	Number
	Identifier

	// keywords
	KwIf
	KwElse
	KwWhile
	KwFor
	KwReturn
	KwBreak
	KwContinue
	KwInt
	KwLet
	KwFunction
	KwStruct

	// operators (precedence is defined by the parser, not by this order)
	Assign   // =
	Or       // ||
	And      // &&
	Eq       // ==
	Neq      // !=
	Lt       // <
	Lte      // <=
	Gt       // >
	Gte      // >=
	Plus     // +
	Minus    // -
	Star     // * (multiply or dereference)
	Power    // ** (exponent or double-dereference, see parser)
	Slash    // /
	Percent  // %
	Amp      // & (address-of)
	Bang     // !

	// punctuation
	LParen
	RParen
	LBrace
	RBrace
	Comma
	Semicolon
	Dot   // .
	Arrow // ->
)

var keywords = map[string]Kind{
	"if":       KwIf,
	"else":     KwElse,
	"while":    KwWhile,
	"for":      KwFor,
	"return":   KwReturn,
	"break":    KwBreak,
	"continue": KwContinue,
	"int":      KwInt,
	"let":      KwLet,
	"function": KwFunction,
	"struct":   KwStruct,
}

// Lookup reports the keyword Kind for name, or (Identifier, false) if
// name is not reserved.
func Lookup(name string) (Kind, bool) {
	if k, ok := keywords[name]; ok {
		return k, true
	}
	return Identifier, false
}

var kindNames = map[Kind]string{
	EOF: "EOF", Number: "NUMBER", Identifier: "IDENT",
	KwIf: "if", KwElse: "else", KwWhile: "while", KwFor: "for",
	KwReturn: "return", KwBreak: "break", KwContinue: "continue",
	KwInt: "int", KwLet: "let", KwFunction: "function", KwStruct: "struct",
	Assign: "=", Or: "||", And: "&&", Eq: "==", Neq: "!=",
	Lt: "<", Lte: "<=", Gt: ">", Gte: ">=",
	Plus: "+", Minus: "-", Star: "*", Power: "**", Slash: "/", Percent: "%",
	Amp: "&", Bang: "!",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}",
	Comma: ",", Semicolon: ";", Dot: ".", Arrow: "->",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Position is a 1-based line/column plus a 0-based rune offset into
// the source. It is carried on every Token and AST node that derives
// from one, for diagnostics.
type Position struct {
	Line, Column, Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is an immutable lexical unit. IntValue is populated for
// Number tokens; Text carries the raw identifier/keyword spelling (or
// the numeral's source text, for diagnostics).
type Token struct {
	Kind     Kind
	Text     string
	IntValue int64
	Pos      Position
}

func (t Token) String() string {
	if t.Kind == Number {
		return fmt.Sprintf("%s(%d)@%s", t.Kind, t.IntValue, t.Pos)
	}
	if t.Text != "" {
		return fmt.Sprintf("%s(%q)@%s", t.Kind, t.Text, t.Pos)
	}
	return fmt.Sprintf("%s@%s", t.Kind, t.Pos)
}
