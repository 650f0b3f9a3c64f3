// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "miniforge",
		Short:         "Compile, link and execute programs written in the miniforge teaching language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunVMCmd())
	root.AddCommand(newDynamicLinkRunnerCmd())
	return root
}
