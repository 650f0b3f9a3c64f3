// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeBus is a plain map-backed MemoryBus for tests, standing in for
// the VM's real heap-segment memory map.
type fakeBus struct {
	mem map[int]int
}

func newFakeBus() *fakeBus { return &fakeBus{mem: make(map[int]int)} }

func (b *fakeBus) Read(addr int) int          { return b.mem[addr] }
func (b *fakeBus) Write(addr int, value int)  { b.mem[addr] = value }

// walk visits every block from heap start by 2+size, asserting it
// terminates exactly at the heap's end.
func walk(t *testing.T, a *Allocator) (blocks int) {
	t.Helper()
	addr := a.start
	for addr < a.end() {
		size := a.bus.Read(addr)
		require.GreaterOrEqual(t, size, 0)
		addr += headerSlots + size
		blocks++
	}
	require.Equal(t, a.end(), addr)
	return blocks
}

func TestAllocSplitsBlock(t *testing.T) {
	bus := newFakeBus()
	a := New(bus, 0, 100)

	p := a.Alloc(10)
	require.Equal(t, headerSlots, p)
	require.Equal(t, 10, bus.Read(0))
	require.Equal(t, 1, bus.Read(1))
	walk(t, a)
}

func TestAllocFirstFit(t *testing.T) {
	bus := newFakeBus()
	a := New(bus, 0, 100)

	p1 := a.Alloc(10)
	_ = a.Alloc(10)
	require.NoError(t, a.Free(p1))

	p3 := a.Alloc(5)
	require.Equal(t, p1, p3, "first-fit should reuse the freed first block")
}

func TestAllocOutOfMemoryReturnsZero(t *testing.T) {
	bus := newFakeBus()
	a := New(bus, 0, 20)

	require.Equal(t, 0, a.Alloc(100))
	require.Equal(t, 18, bus.Read(0), "heap unchanged on failed allocation")
}

func TestFreeCoalescesAdjacentBlocks(t *testing.T) {
	bus := newFakeBus()
	a := New(bus, 0, 100)

	p1 := a.Alloc(10)
	p2 := a.Alloc(10)
	p3 := a.Alloc(10)

	require.NoError(t, a.Free(p1))
	require.NoError(t, a.Free(p2))
	require.NoError(t, a.Free(p3))

	require.Equal(t, 100-headerSlots, bus.Read(0), "three adjacent frees fully coalesce")
	walk(t, a)
}

func TestFreeOfOutOfHeapAddressIsError(t *testing.T) {
	bus := newFakeBus()
	a := New(bus, 0, 100)

	err := a.Free(9999)
	require.Error(t, err)
	var herr *Error
	require.ErrorAs(t, err, &herr)
}

func TestDoubleFreeIsError(t *testing.T) {
	bus := newFakeBus()
	a := New(bus, 0, 100)

	p := a.Alloc(10)
	require.NoError(t, a.Free(p))
	err := a.Free(p)
	require.Error(t, err)
}

func TestAllocThenFreeRestoresLargestFreeBlock(t *testing.T) {
	bus := newFakeBus()
	a := New(bus, 0, 200)

	p := a.Alloc(50)
	require.NotZero(t, p)
	require.NoError(t, a.Free(p))
	require.Equal(t, 200-headerSlots, bus.Read(0))
}
