// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lm-toylang/miniforge/internal/compiler"
	"github.com/lm-toylang/miniforge/internal/vm"
)

func newRunVMCmd() *cobra.Command {
	var cycleLimit, heapStart, heapSize int

	cmd := &cobra.Command{
		Use:   "run-vm <source-file>",
		Short: "Parse, compile, statically link and execute a miniforge source file",
		Args:  cobra.ExactArgs(1),
	}
	dump := addDumpFlags(cmd.Flags())
	cmd.Flags().IntVar(&cycleLimit, "cycle-limit", vm.DefaultConfig().CycleLimit, "maximum VM execution cycles before aborting as a suspected infinite loop")
	cmd.Flags().IntVar(&heapStart, "heap-start", vm.DefaultConfig().HeapStart, "first address of the allocator's heap region")
	cmd.Flags().IntVar(&heapSize, "heap-size", vm.DefaultConfig().HeapSize, "size in slots of the allocator's heap region")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "reading %s", args[0])
		}
		source := string(src)

		dump.tokensOf(source)
		dump.astOf(source)

		res := compiler.Compile(source)
		dump.cfgsOf(res)
		dump.asmOf(res)

		if !res.Success {
			for _, e := range res.Errors {
				logrus.WithField("source", args[0]).Error(e)
			}
			return errors.New("compilation failed")
		}

		cfg := vm.Config{CycleLimit: cycleLimit, HeapStart: heapStart, HeapSize: heapSize}
		result, err := compiler.RunStatic(res, cfg)
		if err != nil {
			return err
		}

		fmt.Printf("halted: %s\n", result.HaltedReason)
		fmt.Printf("ax=%d bx=%d sp=%d bp=%d\n", result.Registers.AX, result.Registers.BX, result.Registers.SP, result.Registers.BP)
		fmt.Printf("cycles=%d\n", result.CycleCount)

		if !result.Success {
			return errors.Errorf("run-vm: halted via %s", result.HaltedReason)
		}
		return nil
	}
	return cmd
}
