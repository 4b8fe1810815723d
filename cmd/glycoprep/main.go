// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// glycoprep - glycan mass spectrometry preprocessing pipeline
package main

import (
	"fmt"
	"os"

	"github.com/glycomics/glycoprep/cmd/glycoprep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
