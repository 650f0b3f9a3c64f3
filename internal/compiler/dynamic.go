// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compiler

import (
	"github.com/pkg/errors"

	"github.com/lm-toylang/miniforge/internal/ctx"
	"github.com/lm-toylang/miniforge/internal/link"
	"github.com/lm-toylang/miniforge/internal/vm"
)

// LibraryResolver maps an unresolved call symbol to the library
// source text that declares it, and the name to label the resulting
// segment with for diagnostics. The dynamic-link runner (cmd
// miniforge) is the only caller that knows about a library directory
// on disk; this package only consumes source strings, leaving the
// file scan itself to the CLI layer.
type LibraryResolver func(symbol string) (name, source string, found bool)

// RunStatic statically links res (already Compile'd) as segment 0 and
// runs it to completion, starting at "main".
func RunStatic(res Result, cfg vm.Config) (*vm.RunResult, error) {
	if !res.Success {
		return nil, errors.New("compilation failed, refusing to link")
	}
	ls := LinkStatic(res)
	if err := ls.Validate(); err != nil {
		return nil, err
	}

	machine := vm.New(cfg)
	machine.LoadListing(ls)
	if err := machine.SetEntry("main"); err != nil {
		return nil, err
	}
	result, err := machine.Run()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunDynamic links mainRes as segment 0, then on every `call` the VM
// can't resolve, asks resolve for the library source declaring that
// symbol, compiles and links it as the next segment, and resumes
// execution at the same instruction. It is the one place an error is
// recognized and recovered from rather than reported.
func RunDynamic(mainRes Result, resolve LibraryResolver, cfg vm.Config) (*vm.RunResult, error) {
	if !mainRes.Success {
		return nil, errors.New("compilation failed, refusing to link")
	}

	// The context owns segment numbering: the main unit draws segment
	// 0, each library loaded below draws the next index.
	c := ctx.New()
	mainListing := link.LinkAt(ConcatAssembly(mainRes.Assembly), link.SegmentBase(c.NextSegment()))
	if hard := mainListing.HardErrors(); len(hard) > 0 {
		return nil, hard[0]
	}

	machine := vm.New(cfg)
	machine.LoadListing(mainListing)
	if err := machine.SetEntry("main"); err != nil {
		return nil, err
	}

	loaded := map[string]bool{}

	for {
		result, err := machine.Run()
		if err == nil {
			return result, nil
		}

		notLoaded, ok := err.(*vm.NotLoadedError)
		if !ok {
			return nil, err
		}
		if loaded[notLoaded.Symbol] {
			return nil, errors.Errorf("symbol %q resolved but still not loaded", notLoaded.Symbol)
		}

		name, source, found := resolve(notLoaded.Symbol)
		if !found {
			return nil, errors.Errorf("symbol %q not found in any library", notLoaded.Symbol)
		}

		libRes := Compile(source)
		if !libRes.Success {
			return nil, errors.Errorf("library %q failed to compile", name)
		}

		seg := link.LinkSegment(c.NextSegment(), name, ConcatAssembly(libRes.Assembly))
		if hard := seg.Listing.HardErrors(); len(hard) > 0 {
			return nil, hard[0]
		}

		machine.LoadListing(seg.Listing)
		loaded[notLoaded.Symbol] = true
	}
}
