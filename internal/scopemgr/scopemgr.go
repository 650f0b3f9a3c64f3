// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scopemgr tracks the stack-offset model the code generator
// needs while walking a function's control-flow graph: a stack of
// lexical scopes, the function's parameter list, and the running
// total of stack slots currently reserved. It is the single mutable
// owner of that state for one function's codegen pass.
package scopemgr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which entry of the flat error taxonomy a
// scope-manager failure belongs to.
type Kind string

const (
	RedeclarationErrorKind Kind = "RedeclarationError"
)

// Error is a scope-manager failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// VariableInfo describes one stack-resident name.
type VariableInfo struct {
	Name        string
	Offset      int
	Size        int
	Initialized bool
}

type scopeFrame struct {
	vars      map[string]*VariableInfo
	allocated int // slots this frame reserved, for exact restore on exit
}

func (f scopeFrame) clone() scopeFrame {
	c := scopeFrame{vars: make(map[string]*VariableInfo, len(f.vars)), allocated: f.allocated}
	for k, v := range f.vars {
		cp := *v
		c.vars[k] = &cp
	}
	return c
}

// Manager is the scope stack for one function's code generation.
type Manager struct {
	scopes         []scopeFrame
	params         []string
	totalAllocated int
}

// New returns a manager with an empty scope stack.
func New() *Manager {
	return &Manager{}
}

// SetParams records the function's parameter names, used by Lookup
// as the final fallback (parameter i sits at bp+2+i).
func (m *Manager) SetParams(params []string) {
	m.params = params
}

// Snapshot is a deep copy of the scope stack, taken on block entry so
// a join point can restore the state a predecessor saw.
type Snapshot struct {
	scopes         []scopeFrame
	totalAllocated int
}

// Depth reports how many scopes are currently pushed.
func (m *Manager) Depth() int { return len(m.scopes) }

// EnterScope pushes a new scope for names/sizes (parallel slices),
// returning the scope's base offset (the first slot below everything
// already reserved). Each name claims `sizes[i]` consecutive
// slots working toward more negative offsets. A size-n variable is
// anchored at its most-negative slot, so adding a positive field
// offset to it stays inside the reserved range instead of climbing
// past base toward the saved frame pointer.
func (m *Manager) EnterScope(names []string, sizes []int) (int, error) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return 0, errors.WithStack(&Error{Kind: RedeclarationErrorKind, Msg: fmt.Sprintf("duplicate name %q in the same scope", n)})
		}
		seen[n] = true
	}

	base := -(m.totalAllocated + 1)
	frame := scopeFrame{vars: make(map[string]*VariableInfo, len(names))}
	offset := base
	for i, n := range names {
		size := 1
		if i < len(sizes) {
			size = sizes[i]
		}
		frame.vars[n] = &VariableInfo{Name: n, Offset: offset - (size - 1), Size: size}
		frame.allocated += size
		offset -= size
	}

	m.totalAllocated += frame.allocated
	m.scopes = append(m.scopes, frame)
	return base, nil
}

// ExitScope pops the innermost scope and restores total_allocated to
// its value before the matching EnterScope.
func (m *Manager) ExitScope() {
	if len(m.scopes) == 0 {
		return
	}
	top := m.scopes[len(m.scopes)-1]
	m.scopes = m.scopes[:len(m.scopes)-1]
	m.totalAllocated -= top.allocated
}

// DeclareFunctionVariable reserves one slot in the function's root
// scope (scopes[0]); idempotent, returning the existing offset on a
// repeat call with the same name.
func (m *Manager) DeclareFunctionVariable(name string) int {
	if len(m.scopes) == 0 {
		m.scopes = append(m.scopes, scopeFrame{vars: make(map[string]*VariableInfo)})
	}
	root := &m.scopes[0]
	if v, ok := root.vars[name]; ok {
		return v.Offset
	}
	offset := -(m.totalAllocated + 1)
	root.vars[name] = &VariableInfo{Name: name, Offset: offset, Size: 1}
	root.allocated++
	m.totalAllocated++
	return offset
}

// MarkInitialized flips the first matching entry's Initialized flag,
// searching innermost scope outward. This is the point at which a
// variable becomes visible to Lookup.
func (m *Manager) MarkInitialized(name string) bool {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if v, ok := m.scopes[i].vars[name]; ok {
			v.Initialized = true
			return true
		}
	}
	return false
}

// Lookup searches innermost-first, skipping uninitialized entries,
// then falls back to function parameters (offset = index+2, since
// bp+0 is the saved frame pointer and bp+1 the return address).
func (m *Manager) Lookup(name string) (VariableInfo, bool) {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if v, ok := m.scopes[i].vars[name]; ok && v.Initialized {
			return *v, true
		}
	}
	for i, p := range m.params {
		if p == name {
			return VariableInfo{Name: name, Offset: i + 2, Size: 1, Initialized: true}, true
		}
	}
	return VariableInfo{}, false
}

// LookupRaw searches innermost-first like Lookup, but does not skip
// uninitialized entries. The code generator uses it to find the slot
// a declaration statement is about to initialize, since Lookup itself
// must stay blind to a variable until MarkInitialized runs.
func (m *Manager) LookupRaw(name string) (VariableInfo, bool) {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if v, ok := m.scopes[i].vars[name]; ok {
			return *v, true
		}
	}
	return VariableInfo{}, false
}

// TotalAllocated reports the number of stack slots currently reserved
// by all open scopes, the operand codegen emits on the `add esp` that
// precedes each `ret`.
func (m *Manager) TotalAllocated() int { return m.totalAllocated }

// SaveSnapshot deep-copies the current scope stack.
func (m *Manager) SaveSnapshot() Snapshot {
	cp := make([]scopeFrame, len(m.scopes))
	for i, f := range m.scopes {
		cp[i] = f.clone()
	}
	return Snapshot{scopes: cp, totalAllocated: m.totalAllocated}
}

// RestoreSnapshot replaces the scope stack with a deep copy of snap.
func (m *Manager) RestoreSnapshot(snap Snapshot) {
	cp := make([]scopeFrame, len(snap.scopes))
	for i, f := range snap.scopes {
		cp[i] = f.clone()
	}
	m.scopes = cp
	m.totalAllocated = snap.totalAllocated
}

// ScopeLen reports the number of scopes a snapshot held, used by the
// code generator to pick the "shorter, more conservative" stack when
// two predecessors disagree.
func (s Snapshot) ScopeLen() int { return len(s.scopes) }
