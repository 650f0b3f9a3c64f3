// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lm-toylang/miniforge/internal/cfg"
	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/lexer"
	"github.com/lm-toylang/miniforge/internal/parser"
	"github.com/lm-toylang/miniforge/internal/scopeannotate"
)

func generate(t *testing.T, src string) FunctionAsm {
	t.Helper()
	toks, lexErrs := lexer.New(src).Run()
	require.Empty(t, lexErrs)
	c := ctx.New()
	res := parser.Parse(toks, c)
	require.Empty(t, res.Errors)
	fn := res.Program.Functions[0]
	fn.Body = scopeannotate.Annotate(c, fn)
	g := cfg.Build(fn)
	return GenerateFunction(fn, g)
}

func TestGenerateReturnsImmediateValue(t *testing.T) {
	asm := generate(t, `int main() { return 7; }`)
	require.Equal(t, "main", asm.Name)
	require.Contains(t, asm.Text, "mov ax, 7")
	require.Contains(t, asm.Text, "ret")
}

func TestGenerateEmitsMainLabel(t *testing.T) {
	asm := generate(t, `int main() { return 0; }`)
	require.Contains(t, asm.Text, "main:")
}

func TestGenerateReservesScratchSlotsAtEntry(t *testing.T) {
	asm := generate(t, `int main() { return 0; }`)
	require.Contains(t, asm.Text, "sub esp, 2",
		"the function-root scratch slots must be reserved on sp before any push")
}

func TestGenerateDeclarationStoresAndMarksInitialized(t *testing.T) {
	// Two function-root scratch slots for modulo synthesis are always
	// reserved first, so the first real local lands at offset -3.
	asm := generate(t, `int main() { int x = 5; return x; }`)
	require.Contains(t, asm.Text, "mov ax, 5")
	require.Contains(t, asm.Text, "si -3")
	require.Contains(t, asm.Text, "li -3")
}

func TestGenerateIfEmitsConditionalAndUnconditionalJumps(t *testing.T) {
	asm := generate(t, `int main() { int x = 1; if (x > 0) { x = 2; } return x; }`)
	require.Contains(t, asm.Text, "cmp bx, ax")
	require.Contains(t, asm.Text, "jg ")
	require.Contains(t, asm.Text, "jmp ")
}

func TestGenerateWhileLoopEmitsBackEdgeJump(t *testing.T) {
	asm := generate(t, `int main() { int i = 0; while (i < 3) { i = i + 1; } return i; }`)
	require.Contains(t, asm.Text, "jl ")
	require.Contains(t, asm.Text, "add ax, bx")
}

func TestGenerateFunctionCallPushesArgsAndCleansUp(t *testing.T) {
	asm := generate(t, `int main() { return helper(1, 2); } int helper(int a, int b) { return a + b; }`)
	require.Contains(t, asm.Text, "call helper")
	require.Contains(t, asm.Text, "add esp, 2")
}

func TestGenerateModuloSynthesizesFromDivMulSub(t *testing.T) {
	asm := generate(t, `int main() { return 7 % 2; }`)
	require.Contains(t, asm.Text, "div bx, ax")
	require.Contains(t, asm.Text, "mul bx, ax")
	require.Contains(t, asm.Text, "sub ax, bx")
}

func TestGenerateAllocCallEmitsSyscallNotCallInstruction(t *testing.T) {
	asm := generate(t, `int main() { int p = alloc(4); return p; }`)
	require.Contains(t, asm.Text, "alloc")
	require.NotContains(t, asm.Text, "call alloc")
}

func TestGenerateDereferenceAssignmentUsesSir(t *testing.T) {
	asm := generate(t, `int main() { int* p; *p = 5; return 0; }`)
	require.Contains(t, asm.Text, "sir bx")
}
