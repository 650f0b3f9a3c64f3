// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package link turns concatenated textual assembly (internal/codegen
// output) into an address-indexed listing: a two-pass label
// resolution, plus segment splitting for dynamic linking. The two
// phases are "collect labels" then "substitute".
package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Error is a LinkError. Soft errors are unresolved
// `call` targets: dynamic-link candidates the runner may still
// resolve by loading a library segment. Any other unresolved branch
// operand is a hard error.
type Error struct {
	SourceLine int
	Op         string
	Operand    string
	Soft       bool
	Msg        string
}

func (e *Error) Error() string { return fmt.Sprintf("LinkError: %s", e.Msg) }

// Line is one instruction of a linked listing: an address, the
// originating block label (for diagnostics), an opcode, and already-
// resolved operands.
type Line struct {
	Address  int
	Block    string
	Op       string
	Operands []string
	Comment  string
}

func (l Line) String() string {
	s := fmt.Sprintf("[%d] %s", l.Address, l.Op)
	if len(l.Operands) > 0 {
		s += " " + strings.Join(l.Operands, ", ")
	}
	if l.Comment != "" {
		s += " ; " + l.Comment
	}
	return s
}

// Listing is the linked output of one compilation unit: an ordered
// instruction list plus the label-to-address map kept for
// diagnostics.
type Listing struct {
	Lines  []Line
	Labels map[string]int
	Errors []*Error
}

func (ls *Listing) String() string {
	parts := make([]string, len(ls.Lines))
	for i, l := range ls.Lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}

// ByAddress indexes ls's lines by their (already absolute, for a
// shifted listing) address, for the VM to load directly.
func (ls *Listing) ByAddress() map[int]Line {
	out := make(map[int]Line, len(ls.Lines))
	for _, l := range ls.Lines {
		out[l.Address] = l
	}
	return out
}

type rawInstr struct {
	label      string
	op         string
	operands   []string
	sourceLine int
}

// registerNames covers both the canonical registers and the aliases
// the VM accepts, so the linker never mistakes a register for an
// unresolved label.
var registerNames = map[string]bool{
	"ax": true, "al": true, "ah": true, "eax": true,
	"bx": true, "bl": true, "bh": true, "ebx": true,
	"sp": true, "esp": true,
	"bp": true, "ebp": true,
}

func isImmediate(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func isMemoryOperand(s string) bool {
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

func needsResolution(operand string) bool {
	if operand == "" {
		return false
	}
	return !registerNames[strings.ToLower(operand)] && !isImmediate(operand) && !isMemoryOperand(operand)
}

// parseLines strips blank lines and comment-only lines, splitting
// each remaining line into a label or an opcode+operands instruction.
func parseLines(src string) []rawInstr {
	var out []rawInstr
	for i, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "//") {
			continue
		}
		if semi := strings.Index(line, ";"); semi >= 0 {
			line = strings.TrimSpace(line[:semi])
		}
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			out = append(out, rawInstr{label: strings.TrimSuffix(line, ":")})
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		instr := rawInstr{op: fields[0], sourceLine: i + 1}
		if len(fields) > 1 {
			for _, part := range strings.Split(fields[1], ",") {
				if part = strings.TrimSpace(part); part != "" {
					instr.operands = append(instr.operands, part)
				}
			}
		}
		out = append(out, instr)
	}
	return out
}

// Link runs the static, single-segment two-pass link over already-
// concatenated function assembly text, equivalent to LinkAt(asmText, 0).
func Link(asmText string) *Listing { return LinkAt(asmText, 0) }

// LinkAt links asmText with every resulting address offset by base,
// so a library compiled for dynamic linking can be placed directly
// at its segment's absolute range [base, base+1000). Label addresses
// in the returned Listing are absolute.
func LinkAt(asmText string, base int) *Listing {
	raws := parseLines(asmText)

	labels := map[string]int{}
	addr := base
	for _, r := range raws {
		if r.label != "" {
			labels[r.label] = addr
			continue
		}
		addr++
	}

	ls := &Listing{Labels: labels}
	addr = base
	block := ""
	for _, r := range raws {
		if r.label != "" {
			block = r.label
			continue
		}

		line := Line{Address: addr, Block: block, Op: r.op}
		for _, operand := range r.operands {
			resolved, comment, err := resolveOperand(labels, block, r, operand)
			if err != nil {
				ls.Errors = append(ls.Errors, err)
			}
			if comment != "" {
				line.Comment = comment
			}
			line.Operands = append(line.Operands, resolved)
		}
		ls.Lines = append(ls.Lines, line)
		addr++
	}
	return ls
}

func resolveOperand(labels map[string]int, block string, r rawInstr, operand string) (resolved, comment string, linkErr *Error) {
	if !needsResolution(operand) {
		return operand, "", nil
	}
	if target, ok := labels[operand]; ok {
		return strconv.Itoa(target), fmt.Sprintf("orig: %s → %s %s", block, r.op, operand), nil
	}
	if r.op == "call" {
		// Unresolved call targets stay symbolic: a dynamic-link
		// candidate the runner may still load.
		return operand, "", &Error{
			SourceLine: r.sourceLine, Op: r.op, Operand: operand, Soft: true,
			Msg: fmt.Sprintf("line %d: call to undefined symbol %q", r.sourceLine, operand),
		}
	}
	return "?", "", &Error{
		SourceLine: r.sourceLine, Op: r.op, Operand: operand,
		Msg: fmt.Sprintf("line %d: unresolved label %q on %s", r.sourceLine, operand, r.op),
	}
}

// HardErrors filters ls.Errors down to the non-soft LinkErrors that
// make the listing unusable; they are collected for the caller to
// report together, matching the parser's accumulate-and-continue
// style.
func (ls *Listing) HardErrors() []*Error {
	var out []*Error
	for _, e := range ls.Errors {
		if !e.Soft {
			out = append(out, e)
		}
	}
	return out
}

// Validate wraps the first hard error, if any, with errors.WithStack
// so callers get a stack trace at the point it surfaces.
func (ls *Listing) Validate() error {
	hard := ls.HardErrors()
	if len(hard) == 0 {
		return nil
	}
	return errors.WithStack(hard[0])
}

// Segment is one compilation unit's listing placed at the absolute
// address range [1000*Index, 1000*(Index+1)) for dynamic linking.
type Segment struct {
	Index   int
	Name    string
	Listing *Listing
}

// SegmentBase returns the absolute base address of segment index.
func SegmentBase(index int) int { return index * 1000 }

// LinkSegment links asmText as the compilation unit named name into
// segment index.
func LinkSegment(index int, name, asmText string) *Segment {
	return &Segment{Index: index, Name: name, Listing: LinkAt(asmText, SegmentBase(index))}
}

// LibEntry is one exported function resolved from a library file: the
// segment it was linked into, its entry address, and the segment's
// listing. Nothing in this module builds one; compiler.RunDynamic
// tracks loaded symbols by name only.
type LibEntry struct {
	Segment int
	EntryAt int
	Listing *Listing
}
