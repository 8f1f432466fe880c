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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/policy"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/validation"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/workspace"
)

// =============================================================================
// Input Helpers
// =============================================================================

// readPatchInput returns the patch text from the file argument, or from
// stdin when no argument (or "-") is given.
func readPatchInput(args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading patch file: %w", err)
		}
		return string(raw), nil
	}

	// Reading a patch from an interactive terminal is never what the
	// user meant; fail fast instead of hanging on a silent read.
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", errors.New("no patch file given and stdin is a terminal; pass a file or pipe a diff")
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading patch from stdin: %w", err)
	}
	return string(raw), nil
}

// loadPolicy returns the --policy file when given, otherwise the policy
// embedded in the binary.
func loadPolicy() (policy.PathPolicy, error) {
	if policyPath != "" {
		return policy.LoadFile(policyPath)
	}
	return policy.LoadEmbedded()
}

// fileAction names what a patch file does to its target.
func fileAction(f *diff.PatchFile) string {
	switch {
	case f.IsDeleted:
		return "delete"
	case f.IsNew:
		return "create"
	default:
		return "modify"
	}
}

// summarizeFiles flattens parsed patch files into display summaries and
// returns the hunk/added/removed totals.
func summarizeFiles(files []diff.PatchFile) ([]PatchFileSummary, int, int, int) {
	summaries := make([]PatchFileSummary, 0, len(files))
	var hunks, added, removed int
	for i := range files {
		f := &files[i]
		a, r := f.LineStats()
		summaries = append(summaries, PatchFileSummary{
			Path:    f.TargetPath(),
			Action:  fileAction(f),
			Hunks:   len(f.Hunks),
			Added:   a,
			Removed: r,
		})
		hunks += len(f.Hunks)
		added += a
		removed += r
	}
	return summaries, hunks, added, removed
}

// =============================================================================
// Validate
// =============================================================================

// runValidate screens a patch against the policy and reports the verdict.
func runValidate(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := outputConfig()

	patchText, err := readPatchInput(args)
	if err != nil {
		os.Exit(OutputResult(cfg, "validate", start, nil, false, err))
	}

	pol, err := loadPolicy()
	if err != nil {
		os.Exit(OutputResult(cfg, "validate", start, nil, false, err))
	}
	validator, err := validation.NewValidator(pol)
	if err != nil {
		os.Exit(OutputResult(cfg, "validate", start, nil, false, err))
	}

	root := validateRoot
	if root != "" {
		if root, err = filepath.Abs(root); err != nil {
			os.Exit(OutputResult(cfg, "validate", start, nil, false, err))
		}
	}

	res := validator.Validate(patchText, root)
	data := ValidateResult{Valid: res.Valid, ReasonCode: string(res.Reason)}
	if res.Valid {
		data.Files, data.TotalHunks, data.TotalAdded, data.TotalRemoved = summarizeFiles(res.ParsedFiles)
		data.TotalFiles = len(data.Files)
	}

	if !cfg.JSON && !cfg.Quiet {
		printValidate(data)
	}
	os.Exit(OutputResult(cfg, "validate", start, data, !res.Valid, nil))
}

func printValidate(res ValidateResult) {
	if !res.Valid {
		fmt.Printf("rejected: %s\n", res.ReasonCode)
		return
	}
	fmt.Printf("valid: %d file(s), %d hunk(s), +%d/-%d\n",
		res.TotalFiles, res.TotalHunks, res.TotalAdded, res.TotalRemoved)
	for _, f := range res.Files {
		fmt.Printf("  %-6s %s (%d hunks, +%d/-%d)\n",
			f.Action, f.Path, f.Hunks, f.Added, f.Removed)
	}
}

// =============================================================================
// Apply
// =============================================================================

// runApply validates a patch against the target directory and applies it.
func runApply(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := outputConfig()

	patchText, err := readPatchInput(args)
	if err != nil {
		os.Exit(OutputResult(cfg, "apply", start, nil, false, err))
	}

	pol, err := loadPolicy()
	if err != nil {
		os.Exit(OutputResult(cfg, "apply", start, nil, false, err))
	}
	validator, err := validation.NewValidator(pol)
	if err != nil {
		os.Exit(OutputResult(cfg, "apply", start, nil, false, err))
	}

	targetAbs, err := filepath.Abs(applyDir)
	if err != nil {
		os.Exit(OutputResult(cfg, "apply", start, nil, false, err))
	}

	vres := validator.Validate(patchText, targetAbs)
	if !vres.Valid {
		data := ValidateResult{Valid: false, ReasonCode: string(vres.Reason)}
		if !cfg.JSON && !cfg.Quiet {
			fmt.Printf("rejected: %s\n", vres.Reason)
		}
		os.Exit(OutputResult(cfg, "apply", start, data, true, nil))
	}

	store, workspaceID, err := openTargetDir(targetAbs)
	if err != nil {
		os.Exit(OutputResult(cfg, "apply", start, nil, false, err))
	}

	result, err := store.ApplySet(cmd.Context(), workspaceID, vres.ParsedFiles, workspace.ApplyOptions{
		DryRun:      dryRun,
		MakeBackups: makeBackups,
	})
	if err != nil {
		os.Exit(OutputResult(cfg, "apply", start, nil, false, err))
	}

	if !cfg.JSON && !cfg.Quiet {
		printApply(targetAbs, result)
	}
	os.Exit(OutputResult(cfg, "apply", start, result, !result.Clean(), nil))
}

// openTargetDir adapts an arbitrary directory to the workspace store by
// treating its parent as the store root and its name as the workspace ID.
// The directory name must therefore be a filesystem-safe identifier.
func openTargetDir(targetAbs string) (*workspace.Store, string, error) {
	parent := filepath.Dir(targetAbs)
	name := filepath.Base(targetAbs)

	store, err := workspace.NewStore(workspace.DefaultConfig(parent))
	if err != nil {
		return nil, "", fmt.Errorf("opening target directory: %w", err)
	}
	if _, err := store.EnsureWorkspace(name); err != nil {
		return nil, "", fmt.Errorf("opening target directory: %w", err)
	}
	return store, name, nil
}

func printApply(dir string, res *workspace.SetResult) {
	switch {
	case res.Applied:
		fmt.Printf("applied %d file(s) to %s\n", len(res.Files), dir)
	case res.DryRun && res.Clean():
		fmt.Printf("dry run: %d file(s) would apply cleanly to %s\n", len(res.Files), dir)
	default:
		fmt.Printf("patch does not apply cleanly to %s\n", dir)
	}

	for _, f := range res.Files {
		switch {
		case f.Error != "":
			fmt.Printf("  %-6s %s: %s\n", f.Action, f.Path, f.Error)
		case len(f.Conflicts) > 0:
			for _, c := range f.Conflicts {
				if c.HunkIndex >= 0 {
					fmt.Printf("  %-6s %s: hunk %d: %s\n", f.Action, f.Path, c.HunkIndex+1, c.Reason)
				} else {
					fmt.Printf("  %-6s %s: %s\n", f.Action, f.Path, c.Reason)
				}
			}
		default:
			line := fmt.Sprintf("  %-6s %s: %d hunk(s)", f.Action, f.Path, f.AppliedHunks)
			if f.BackupPath != "" {
				line += fmt.Sprintf(", backup %s", f.BackupPath)
			}
			fmt.Println(line)
		}
	}
}

// =============================================================================
// Inspect
// =============================================================================

// runInspect parses a patch and prints its structure without any policy
// judgement.
func runInspect(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := outputConfig()

	patchText, err := readPatchInput(args)
	if err != nil {
		os.Exit(OutputResult(cfg, "inspect", start, nil, false, err))
	}

	files, err := validation.ParseUnifiedDiff(patchText)
	if err != nil {
		os.Exit(OutputResult(cfg, "inspect", start, nil, false, fmt.Errorf("parsing patch: %w", err)))
	}
	if len(files) == 0 {
		os.Exit(OutputResult(cfg, "inspect", start, nil, false, errors.New("no file sections found in patch")))
	}

	var data InspectResult
	data.Files, data.TotalHunks, data.TotalAdded, data.TotalRemoved = summarizeFiles(files)
	data.TotalFiles = len(data.Files)

	if !cfg.JSON && !cfg.Quiet {
		printInspect(data, files)
	}
	os.Exit(OutputResult(cfg, "inspect", start, data, false, nil))
}

func printInspect(res InspectResult, files []diff.PatchFile) {
	fmt.Printf("%d file(s), %d hunk(s), +%d/-%d\n",
		res.TotalFiles, res.TotalHunks, res.TotalAdded, res.TotalRemoved)
	for i := range files {
		f := &files[i]
		fmt.Printf("  %-6s %s (%s)\n", res.Files[i].Action, f.TargetPath(), f.Stats())
		for j := range f.Hunks {
			fmt.Printf("    %s\n", f.Hunks[j].Header())
		}
	}
}
