// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lm-toylang/miniforge/internal/link"
)

func load(t *testing.T, asm string, cfg Config) *VM {
	t.Helper()
	ls := link.Link(asm)
	require.Empty(t, ls.HardErrors())

	v := New(cfg)
	v.LoadListing(ls)
	require.NoError(t, v.SetEntry("main"))
	return v
}

func runAsm(t *testing.T, asm string) (*VM, *RunResult) {
	t.Helper()
	v := load(t, asm, DefaultConfig())
	result, err := v.Run()
	require.NoError(t, err)
	return v, result
}

func TestNewSeedsStackPointersAtTop(t *testing.T) {
	v := New(DefaultConfig())
	require.Equal(t, 1023, v.Regs.SP)
	require.Equal(t, 1023, v.Regs.BP)
}

func TestMovAndArithmetic(t *testing.T) {
	_, result := runAsm(t, `
main:
mov ax, 40
mov bx, 2
add ax, bx
ret
`)
	require.Equal(t, HaltRet, result.HaltedReason)
	require.Equal(t, 42, result.Registers.AX)
}

func TestRegisterAliasesResolveToCanonicalNames(t *testing.T) {
	_, result := runAsm(t, `
main:
mov eax, 42
mov ebx, eax
ret
`)
	require.Equal(t, 42, result.Registers.AX)
	require.Equal(t, 42, result.Registers.BX)
}

func TestDivUsesFloorSemantics(t *testing.T) {
	_, result := runAsm(t, `
main:
mov ax, -7
mov bx, 2
div ax, bx
ret
`)
	require.Equal(t, -4, result.Registers.AX)
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	v := load(t, `
main:
mov ax, 1
mov bx, 0
div ax, bx
ret
`, DefaultConfig())
	result, err := v.Run()
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, HaltError, result.HaltedReason)
}

func TestPowerComputesExponent(t *testing.T) {
	_, result := runAsm(t, `
main:
mov ax, 2
power ax, 5
ret
`)
	require.Equal(t, 32, result.Registers.AX)
}

func TestCmpSetsFlagsWithoutWriting(t *testing.T) {
	v, result := runAsm(t, `
main:
mov ax, 5
cmp ax, 3
ret
`)
	require.Equal(t, 5, result.Registers.AX, "cmp must not write its operands")
	require.True(t, v.Flags.Greater)
	require.False(t, v.Flags.Equal)
}

func TestConditionalJumpTakenAndNotTaken(t *testing.T) {
	_, result := runAsm(t, `
main:
cmp 1, 2
jg wrong
jl right
wrong:
mov ax, 0
ret
right:
mov ax, 1
ret
`)
	require.Equal(t, 1, result.Registers.AX)
}

func TestSetOnConditionWritesZeroOrOne(t *testing.T) {
	_, result := runAsm(t, `
main:
cmp 5, 3
setg al
mov bx, ax
sete al
ret
`)
	require.Equal(t, 1, result.Registers.BX)
	require.Equal(t, 0, result.Registers.AX)
}

func TestPushPopRoundTrip(t *testing.T) {
	_, result := runAsm(t, `
main:
push 7
pop bx
ret
`)
	require.Equal(t, 7, result.Registers.BX)
	require.Equal(t, 1023, result.Registers.SP)
}

func TestFrameRelativeStoreLoadAndLea(t *testing.T) {
	v, result := runAsm(t, `
main:
mov ax, 41
si -1
li -1
add ax, 1
lea -2
mov bx, ax
mov ax, 99
sir bx
lir bx
ret
`)
	require.Equal(t, 99, result.Registers.AX)
	require.Equal(t, 41, v.Stack[1022], "si -1 stores at bp-1")
	require.Equal(t, 99, v.Stack[1021], "sir through a stack address writes the data stack")
}

func TestCallRetConventionRestoresFrame(t *testing.T) {
	_, result := runAsm(t, `
main:
mov ax, 5
push
call double
add esp, 1
ret
double:
li 2
add ax, ax
ret
`)
	require.Equal(t, HaltRet, result.HaltedReason)
	require.Equal(t, 10, result.Registers.AX)
	require.Equal(t, 1023, result.Registers.SP, "caller cleanup restores sp to its pre-push value")
	require.Equal(t, 1023, result.Registers.BP)
}

func TestRetWithEmptyCallStackHalts(t *testing.T) {
	_, result := runAsm(t, `
main:
mov ax, 1
ret
`)
	require.True(t, result.Success)
	require.Equal(t, HaltRet, result.HaltedReason)
}

func TestAllocAndRegisterIndirectHeapAccess(t *testing.T) {
	v, result := runAsm(t, `
main:
mov ax, 3
alloc
mov bx, ax
mov ax, 77
sir bx
mov ax, 0
lir bx
ret
`)
	require.Equal(t, 77, result.Registers.AX)
	require.Equal(t, DefaultConfig().HeapStart+2, v.Regs.BX, "first allocation's payload sits past the initial header")
	require.Equal(t, 77, v.Memory[v.Regs.BX], "sir through a heap address writes the memory map, not the stack")
}

func TestFreeOfNonHeapPointerIsError(t *testing.T) {
	v := load(t, `
main:
mov ax, 5
free
ret
`, DefaultConfig())
	result, err := v.Run()
	require.Error(t, err)
	require.Equal(t, HaltError, result.HaltedReason)
}

func TestDoubleFreeIsError(t *testing.T) {
	v := load(t, `
main:
mov ax, 8
alloc
free
free
ret
`, DefaultConfig())
	_, err := v.Run()
	require.Error(t, err)
}

func TestCycleLimitHaltsSuspectedInfiniteLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CycleLimit = 50
	v := load(t, `
main:
jmp main
`, cfg)
	result, err := v.Run()
	require.NoError(t, err)
	require.Equal(t, HaltCycleLimit, result.HaltedReason)
	require.Equal(t, 50, result.CycleCount)
	require.False(t, result.Success)
}

func TestUnknownInstructionIsRuntimeError(t *testing.T) {
	v := load(t, `
main:
frobnicate
`, DefaultConfig())
	_, err := v.Run()
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
}

func TestJumpOutsideProgramIsRuntimeError(t *testing.T) {
	v := load(t, `
main:
jmp 999
`, DefaultConfig())
	_, err := v.Run()
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
}

func TestUnresolvedCallRaisesNotLoadedAndResumesAfterLoad(t *testing.T) {
	v := load(t, `
main:
call helper
ret
`, DefaultConfig())

	_, err := v.Run()
	var nl *NotLoadedError
	require.ErrorAs(t, err, &nl)
	require.Equal(t, "helper", nl.Symbol)
	require.False(t, v.Halted, "a not-loaded call must leave the VM resumable")
	require.Equal(t, 0, v.PC, "pc stays on the failing call so a resumed run retries it")

	seg := link.LinkAt(`
helper:
mov ax, 9
ret
`, link.SegmentBase(1))
	v.LoadListing(seg)

	result, err := v.Run()
	require.NoError(t, err)
	require.Equal(t, HaltRet, result.HaltedReason)
	require.Equal(t, 9, result.Registers.AX)
}
