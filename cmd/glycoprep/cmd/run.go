// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glycomics/glycoprep/pkg/pipeline"
	"github.com/glycomics/glycoprep/pkg/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the matching and calibration pipeline",
	Long: `Run the full pipeline over a peak workbook, metadata file, and reference
database.

Examples:
  # Default settings (100 ppm tolerance)
  glycoprep run -i raw_data.xlsx -m metadata.xlsx -d glycan_db.xlsx

  # Tighter tolerance, S/N filter, SQLite export
  glycoprep run -i raw_data.xlsx -m metadata.xlsx -d glycan_db.xlsx \
      --ppm-threshold 50 --min-sn 3 --sqlite results.db`,
	RunE: runPipeline,
}

func runPipeline(cobraCmd *cobra.Command, args []string) error {
	for _, path := range []string{peaksFile, metadataFile, referenceFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("input file does not exist: %s", path)
		}
	}
	if ppmThreshold <= 0 {
		return fmt.Errorf("ppm-threshold must be positive, got %g", ppmThreshold)
	}

	opt := pipeline.Options{
		PeaksPath:     peaksFile,
		MetadataPath:  metadataFile,
		ReferencePath: referenceFile,
		OutputPath:    outputFile,
		UnmatchedPath: unmatchedOutput,
		SQLitePath:    sqliteOutput,
		PPMThreshold:  ppmThreshold,
		SkipRows:      skipRows,
		MetadataSheet: metadataSheet,
		Workers:       threads,
	}
	if minSN > 0 {
		sn := minSN
		opt.MinSN = &sn
	}

	emit := func(ev pipeline.Event) {
		if quiet {
			return
		}
		switch ev.Status {
		case "running":
			fmt.Fprintf(os.Stderr, "Step %d/%d: %s...\n", ev.Step, ev.TotalSteps, ev.Label)
		case "done":
			if ev.Detail != "" {
				fmt.Fprintf(os.Stderr, "  %s\n", ev.Detail)
			}
		}
	}

	res, err := pipeline.Run(cobraCmd.Context(), opt, emit)
	if err != nil {
		return err
	}

	for _, warning := range res.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	fmt.Println()
	report.WriteMatchStats(os.Stdout, res.Stats)
	fmt.Println()
	if err := report.WriteShiftReport(os.Stdout, res.Shifts); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Complete!")
	fmt.Printf("Matched peaks: %s\n", outputFile)
	if res.Unmatched.Len() > 0 {
		fmt.Printf("Unmatched peaks: %s\n", unmatchedOutput)
	} else {
		fmt.Println("No unmatched peaks to write")
	}
	if sqliteOutput != "" {
		fmt.Printf("SQLite export: %s\n", sqliteOutput)
	}
	return nil
}
