// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command patchctl validates, inspects, and applies unified diff patches
// from the command line, using the same engine the patchd server runs.
//
// Usage:
//
//	patchctl validate fix.patch
//	patchctl apply --dir ./myproject fix.patch
//	git diff | patchctl inspect --json
//	patchctl policy dump
//
// Exit codes: 0 on success, 1 when the patch was rejected or conflicted,
// 2 on operational errors.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/futurianh1k/cursorclone-sub001/pkg/logging"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(CLIExitError)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Engine packages log through slog. Keep the CLI quiet unless
		// asked: results go to stdout, diagnostics to stderr.
		level := logging.LevelWarn
		if verboseMode {
			level = logging.LevelDebug
		}
		logger := logging.New(logging.Config{
			Level:   level,
			Service: "patchctl",
		})
		slog.SetDefault(logger.Slog())
	}
}
