// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath    string
	crashPath     string
	repoRoot      string
	languages     []string
	seedFiles     []string
	episodeLength int
	backend       string
	useEraser     bool

	rootCmd = &cobra.Command{
		Use:   "mend",
		Short: "Episodic vulnerability crash analysis over a source repository",
		Long: `Mend drives a crash report through an analysis loop: a policy
inspects the report and the source gathered so far, pulls function
definitions by symbol, and proposes a fix or a summary.`,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis episode over a crash report",
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a mend config file (YAML or JSON)")

	analyzeCmd.Flags().StringVar(&crashPath, "crash", "", "Path to the crash report file (required)")
	analyzeCmd.Flags().StringVar(&repoRoot, "repo", "", "Path to the repository checkout (required)")
	analyzeCmd.Flags().StringSliceVar(&languages, "languages", nil, "Languages to analyze (cpp, java); default all")
	analyzeCmd.Flags().StringSliceVar(&seedFiles, "seed", nil, "Repository files to include in the initial observation")
	analyzeCmd.Flags().IntVar(&episodeLength, "episode-length", 0, "Override the configured step budget")
	analyzeCmd.Flags().StringVar(&backend, "backend", "", "Completion backend: openai or local (overrides config)")
	analyzeCmd.Flags().BoolVar(&useEraser, "eraser", false, "Use the trace-reduction policy instead of the LLM policy")
	_ = analyzeCmd.MarkFlagRequired("crash")
	_ = analyzeCmd.MarkFlagRequired("repo")

	rootCmd.AddCommand(analyzeCmd)
}
