// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package cmd provides CLI command implementations
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Flags for run command
	peaksFile       string
	metadataFile    string
	referenceFile   string
	outputFile      string
	unmatchedOutput string
	sqliteOutput    string
	ppmThreshold    float64
	skipRows        int
	minSN           float64
	metadataSheet   string
	threads         int
	quiet           bool
)

var rootCmd = &cobra.Command{
	Use:   "glycoprep",
	Short: "glycoprep - glycan mass spectrometry preprocessing pipeline",
	Long: `glycoprep matches MALDI-TOF peaks to a reference glycan database with
automatic calibration shift detection and correction.

The pipeline reads a multi-sheet Excel workbook of picked peaks (one sheet
per sample), joins sample metadata, matches every peak against the
reference database within a PPM tolerance, estimates the per-sample
calibration shift from the matched set, and writes corrected results as
TSV (and optionally SQLite).`,
	Version: "1.0.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&peaksFile, "input-peaks", "i", "", "Input Excel file with MALDI peak data, one sheet per sample (required)")
	runCmd.Flags().StringVarP(&metadataFile, "metadata", "m", "", "Metadata Excel file linking sample sheets to experimental conditions (required)")
	runCmd.Flags().StringVarP(&referenceFile, "glycans-db", "d", "", "Reference glycan database Excel file (required)")
	runCmd.Flags().StringVarP(&outputFile, "output", "o", "matched_glycans.tsv", "Output TSV file for matched peaks")
	runCmd.Flags().StringVar(&unmatchedOutput, "unmatched-output", "unmatched_peaks.tsv", "Output TSV file for unmatched peaks")
	runCmd.Flags().StringVar(&sqliteOutput, "sqlite", "", "Also export results to a SQLite database file")
	runCmd.Flags().Float64Var(&ppmThreshold, "ppm-threshold", 100, "PPM tolerance for matching")
	runCmd.Flags().IntVar(&skipRows, "skip-rows", 2, "Header rows to skip in peak sheets")
	runCmd.Flags().Float64Var(&minSN, "min-sn", 0, "Minimum signal-to-noise ratio filter (0 = no filter)")
	runCmd.Flags().StringVar(&metadataSheet, "metadata-sheet", "", "Specific sheet name in the metadata file (default: first sheet)")
	runCmd.Flags().IntVar(&threads, "threads", 1, "Number of matcher worker threads")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress step progress output")

	runCmd.MarkFlagRequired("input-peaks")
	runCmd.MarkFlagRequired("metadata")
	runCmd.MarkFlagRequired("glycans-db")
}
