// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lm-toylang/miniforge/internal/compiler"
	"github.com/lm-toylang/miniforge/internal/vm"
)

func newDynamicLinkRunnerCmd() *cobra.Command {
	var libDir string
	var cycleLimit int

	cmd := &cobra.Command{
		Use:   "dynamic-link-runner <main-file>",
		Short: "Execute a miniforge source file, loading missing symbols from --lib-dir as needed",
		Args:  cobra.ExactArgs(1),
	}
	dump := addDumpFlags(cmd.Flags())
	cmd.Flags().StringVar(&libDir, "lib-dir", "", "directory scanned for library source files on an unresolved call")
	cmd.Flags().IntVar(&cycleLimit, "cycle-limit", 1000, "maximum VM execution cycles before aborting as a suspected infinite loop")
	_ = cmd.MarkFlagRequired("lib-dir")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "reading %s", args[0])
		}
		source := string(src)

		dump.tokensOf(source)
		dump.astOf(source)

		mainRes := compiler.Compile(source)
		dump.cfgsOf(mainRes)
		dump.asmOf(mainRes)
		if !mainRes.Success {
			for _, e := range mainRes.Errors {
				logrus.WithField("source", args[0]).Error(e)
			}
			return errors.New("compilation failed")
		}

		cfg := vm.Config{CycleLimit: cycleLimit, HeapStart: vm.DefaultConfig().HeapStart, HeapSize: vm.DefaultConfig().HeapSize}
		result, err := compiler.RunDynamic(mainRes, dirLibraryResolver(libDir), cfg)
		if err != nil {
			return err
		}

		fmt.Printf("halted: %s\n", result.HaltedReason)
		fmt.Printf("ax=%d bx=%d sp=%d bp=%d\n", result.Registers.AX, result.Registers.BX, result.Registers.SP, result.Registers.BP)
		fmt.Printf("cycles=%d\n", result.CycleCount)

		if !result.Success {
			return errors.Errorf("dynamic-link-runner: halted via %s", result.HaltedReason)
		}
		return nil
	}
	return cmd
}

// dirLibraryResolver scans dir for the first file declaring symbol
// (every non-directory entry is read, whatever its extension), reading
// file contents only as needed. The core never reads
// files itself; that job lives here in the CLI.
func dirLibraryResolver(dir string) compiler.LibraryResolver {
	return func(symbol string) (name, source string, found bool) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logrus.WithError(err).WithField("dir", dir).Warn("reading library directory")
			return "", "", false
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			text := string(data)
			if compiler.DeclaresFunction(text, symbol) {
				return entry.Name(), text, true
			}
		}
		return "", "", false
	}
}
