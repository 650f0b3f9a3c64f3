// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lm-toylang/miniforge/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestScanBasicProgram(t *testing.T) {
	src := `int main(){ int x = 3; return x + 4; }`
	toks, errs := New(src).Run()
	require.Empty(t, errs)
	require.Equal(t, []token.Kind{
		token.KwInt, token.Identifier, token.LParen, token.RParen, token.LBrace,
		token.KwInt, token.Identifier, token.Assign, token.Number, token.Semicolon,
		token.KwReturn, token.Identifier, token.Plus, token.Number, token.Semicolon,
		token.RBrace, token.EOF,
	}, kinds(toks))
}

func TestScanTwoCharOperators(t *testing.T) {
	toks, errs := New("a==b!=c&&d||e**f<=g>=h").Run()
	require.Empty(t, errs)
	require.Equal(t, []token.Kind{
		token.Identifier, token.Eq, token.Identifier, token.Neq, token.Identifier,
		token.And, token.Identifier, token.Or, token.Identifier, token.Power,
		token.Identifier, token.Lte, token.Identifier, token.Gte, token.Identifier,
		token.EOF,
	}, kinds(toks))
}

func TestScanComments(t *testing.T) {
	src := "int x = 1; # trailing comment\n// another\nint y = 2;"
	toks, errs := New(src).Run()
	require.Empty(t, errs)
	require.Equal(t, []token.Kind{
		token.KwInt, token.Identifier, token.Assign, token.Number, token.Semicolon,
		token.KwInt, token.Identifier, token.Assign, token.Number, token.Semicolon,
		token.EOF,
	}, kinds(toks))
}

func TestBooleanLiteralsRewritten(t *testing.T) {
	toks, errs := New("true false").Run()
	require.Empty(t, errs)
	require.Equal(t, int64(1), toks[0].IntValue)
	require.Equal(t, int64(0), toks[1].IntValue)
}

func TestLexErrorRecovers(t *testing.T) {
	toks, errs := New("int x = 1 @ 2;").Run()
	require.Len(t, errs, 1)
	var lexErr *Error
	require.ErrorAs(t, errs[0], &lexErr)
	require.Equal(t, '@', lexErr.Char)
	// scanning continues past the bad rune
	require.Equal(t, token.EOF, toks[len(toks)-1].Kind)
}

func TestPositionsAreOneBasedAndAdvancePastNewlines(t *testing.T) {
	toks, _ := New("int\nx;").Run()
	require.Equal(t, 1, toks[0].Pos.Line)
	require.Equal(t, 2, toks[1].Pos.Line)
}
