// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command miniforge reads a source file, drives the core compile,
// link and execute pipeline, and prints the run result. Reading the
// source text and parsing flags happen here so the core packages
// never touch the filesystem or os.Args.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("miniforge failed")
		os.Exit(1)
	}
}
