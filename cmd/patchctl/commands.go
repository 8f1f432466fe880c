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
	policyPath   string // --policy override for the embedded policy
	jsonOutput   bool
	compactJSON  bool
	quietMode    bool
	verboseMode  bool
	applyDir     string // apply target directory
	dryRun       bool
	makeBackups  bool
	validateRoot string // optional containment root for validate

	rootCmd = &cobra.Command{
		Use:   "patchctl",
		Short: "A cli to validate, inspect, and apply unified diff patches",
		Long: `Patchctl screens unified diff patches against a safety policy and
				applies them to a directory with conflict detection and optional
				backups. It runs the patch engine locally; no server is needed.`,
	}

	// --- Patch Operations ---
	validateCmd = &cobra.Command{
		Use:   "validate [patch-file]",
		Short: "Screen a patch against the policy without touching any files",
		Run:   runValidate, // Defined in cmd_patch.go
	}
	applyCmd = &cobra.Command{
		Use:   "apply [patch-file]",
		Short: "Validate a patch and apply it to the target directory",
		Run:   runApply, // Defined in cmd_patch.go
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect [patch-file]",
		Short: "Parse a patch and print its structure without judging it",
		Run:   runInspect, // Defined in cmd_patch.go
	}

	// --- Policy ---
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Base command to interact with the patch screening policy",
		Long: `Use policy + subcommands to inspect the screening policy that is
				embedded in the patchctl binary, or a policy file supplied with
				--policy.`,
	}
	dumpPolicyCmd = &cobra.Command{
		Use:   "dump",
		Short: "Prints the active policy to stdout",
		Run:   dumpPolicy, // Defined in cmd_policy.go
	}
	checkPathCmd = &cobra.Command{
		Use:   "check [path...]",
		Short: "Test whether file paths pass the policy allowlist",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCheckPath, // Defined in cmd_policy.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "",
		"Policy YAML file; empty uses the embedded policy")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&compactJSON, "compact", false,
		"Compact JSON output (no indentation)")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false,
		"Suppress output, exit code only")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false,
		"Enable debug logging on stderr")

	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateRoot, "dir", "",
		"Directory for workspace containment checks (optional)")

	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&applyDir, "dir", ".",
		"Directory the patch is applied to")
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Stage the patch and report outcomes without writing")
	applyCmd.Flags().BoolVar(&makeBackups, "backup", false,
		"Save each touched file aside with a .orig suffix before writing")

	rootCmd.AddCommand(inspectCmd)

	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(dumpPolicyCmd)
	policyCmd.AddCommand(checkPathCmd)
}
