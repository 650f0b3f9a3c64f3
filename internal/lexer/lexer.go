// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lexer turns miniforge source text into a token stream.
package lexer

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/lm-toylang/miniforge/internal/token"
)

// Error is a LexError: an unexpected character at a source position.
type Error struct {
	Char rune
	Pos  token.Position
}

func (e *Error) Error() string {
	return fmt.Sprintf("LexError: unexpected character %q at %s", e.Char, e.Pos)
}

// Lexer performs a one-pass scan of src, tracking line/column.
type Lexer struct {
	src        []rune
	pos        int
	line, col  int
	offset     int
	tokens     []token.Token
	errs       []error
}

// New constructs a Lexer over src. Call Run to produce the token
// stream.
func New(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1, col: 1}
}

// Run scans the entire source and returns the resulting tokens (always
// terminated by an EOF token) plus any LexErrors encountered. Scanning
// does not stop at the first bad character: the offending rune is
// skipped and the scan continues, matching the parser's
// accumulate-and-continue recovery policy.
func (l *Lexer) Run() ([]token.Token, []error) {
	for {
		l.skipSpaceAndComments()
		if l.atEnd() {
			l.tokens = append(l.tokens, token.Token{Kind: token.EOF, Pos: l.here()})
			break
		}
		l.scanOne()
	}
	return l.tokens, l.errs
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src) }

func (l *Lexer) peek() rune {
	if l.atEnd() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	l.offset++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) here() token.Position {
	return token.Position{Line: l.line, Column: l.col, Offset: l.offset}
}

func (l *Lexer) skipSpaceAndComments() {
	for !l.atEnd() {
		r := l.peek()
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.advance()
		case r == '#':
			l.skipLine()
		case r == '/' && l.peekAt(1) == '/':
			l.skipLine()
		default:
			return
		}
	}
}

func (l *Lexer) skipLine() {
	for !l.atEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
func isAlpha(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
func isAlnum(r rune) bool { return isAlpha(r) || isDigit(r) }

func (l *Lexer) scanOne() {
	pos := l.here()
	r := l.peek()

	switch {
	case isDigit(r):
		l.scanNumber(pos)
		return
	case isAlpha(r):
		l.scanIdentifier(pos)
		return
	}

	// two-character operators, disambiguated by one rune of lookahead
	two := map[string]token.Kind{
		"==": token.Eq, "!=": token.Neq, "<=": token.Lte, ">=": token.Gte,
		"&&": token.And, "||": token.Or, "**": token.Power, "->": token.Arrow,
	}
	if l.pos+1 < len(l.src) {
		pair := string([]rune{r, l.peekAt(1)})
		if k, ok := two[pair]; ok {
			l.advance()
			l.advance()
			l.tokens = append(l.tokens, token.Token{Kind: k, Text: pair, Pos: pos})
			return
		}
	}

	single := map[rune]token.Kind{
		'=': token.Assign, '<': token.Lt, '>': token.Gt,
		'+': token.Plus, '-': token.Minus, '*': token.Star,
		'/': token.Slash, '%': token.Percent, '&': token.Amp, '!': token.Bang,
		'(': token.LParen, ')': token.RParen, '{': token.LBrace, '}': token.RBrace,
		',': token.Comma, ';': token.Semicolon, '.': token.Dot,
	}
	if k, ok := single[r]; ok {
		l.advance()
		l.tokens = append(l.tokens, token.Token{Kind: k, Text: string(r), Pos: pos})
		return
	}

	l.advance()
	l.errs = append(l.errs, errors.WithStack(&Error{Char: r, Pos: pos}))
}

func (l *Lexer) scanNumber(pos token.Position) {
	start := l.pos
	for !l.atEnd() && isDigit(l.peek()) {
		l.advance()
	}
	text := string(l.src[start:l.pos])
	var v int64
	for _, r := range text {
		v = v*10 + int64(r-'0')
	}
	l.tokens = append(l.tokens, token.Token{Kind: token.Number, Text: text, IntValue: v, Pos: pos})
}

func (l *Lexer) scanIdentifier(pos token.Position) {
	start := l.pos
	for !l.atEnd() && isAlnum(l.peek()) {
		l.advance()
	}
	text := string(l.src[start:l.pos])

	if text == "true" {
		l.tokens = append(l.tokens, token.Token{Kind: token.Number, IntValue: 1, Text: text, Pos: pos})
		return
	}
	if text == "false" {
		l.tokens = append(l.tokens, token.Token{Kind: token.Number, IntValue: 0, Text: text, Pos: pos})
		return
	}
	if k, ok := token.Lookup(text); ok {
		l.tokens = append(l.tokens, token.Token{Kind: k, Text: text, Pos: pos})
		return
	}
	l.tokens = append(l.tokens, token.Token{Kind: token.Identifier, Text: text, Pos: pos})
}

// Dump renders the token stream for --dump-tokens style inspection.
func Dump(tokens []token.Token) string {
	return spew.Sdump(tokens)
}
