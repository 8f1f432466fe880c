// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apply turns a parsed patch into new file content.
//
// # Description
//
// The applier is a pure text transformation: it takes original content and
// a parsed patch, and produces the patched content plus a deterministic
// conflict report. It never touches the filesystem; persisting results,
// backups, and per-file locking belong to the workspace layer.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package apply

import (
	"fmt"
	"strings"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/validation"
)

// =============================================================================
// Conflict Reporting
// =============================================================================

// ConflictReason is a machine-readable explanation for a hunk that could
// not be applied. Fixed reasons are constants; context mismatches embed
// the 1-based line number and are matched by prefix.
type ConflictReason string

const (
	// ConflictInvalidLineRange means a hunk's start line falls outside the
	// current buffer.
	ConflictInvalidLineRange ConflictReason = "invalid_line_range"

	// ConflictMultiFilePatch means raw patch text contained more than one
	// file section. The text applier works on exactly one file; multi-file
	// sets go through the workspace layer.
	ConflictMultiFilePatch ConflictReason = "multi_file_patch"

	// ConflictNoFilesInPatch means raw patch text parsed to zero files.
	ConflictNoFilesInPatch ConflictReason = "no_files_in_patch"

	// ConflictContextMismatchPrefix prefixes per-line mismatch reasons of
	// the form "context_mismatch_at_line_<n>".
	ConflictContextMismatchPrefix ConflictReason = "context_mismatch_at_line_"
)

// ContextMismatchAt builds the mismatch reason for a 1-based line number.
func ContextMismatchAt(line int) ConflictReason {
	return ConflictReason(fmt.Sprintf("%s%d", ConflictContextMismatchPrefix, line))
}

// IsContextMismatch reports whether a reason is a per-line context mismatch.
func IsContextMismatch(reason ConflictReason) bool {
	return strings.HasPrefix(string(reason), string(ConflictContextMismatchPrefix))
}

// ConflictInfo describes one hunk that was not applied.
type ConflictInfo struct {
	// File is the target path of the file the hunk belongs to.
	File string `json:"file"`

	// HunkIndex is the hunk's position in the file's original hunk order.
	// It is -1 for patch-level conflicts that are not tied to a hunk.
	HunkIndex int `json:"hunk_index"`

	// Reason explains why the hunk was skipped.
	Reason ConflictReason `json:"reason"`
}

// =============================================================================
// Apply Result
// =============================================================================

// ApplyResult is the outcome of applying one patch to one file's content.
type ApplyResult struct {
	// Success is true iff every hunk applied cleanly.
	Success bool `json:"success"`

	// Content is the fully patched text. It is populated only when
	// Success is true: partially applied text is never handed to callers,
	// so a conflicted result can never be persisted by accident.
	Content string `json:"content,omitempty"`

	// AppliedHunks counts the hunks that applied cleanly, including ones
	// applied before a later hunk conflicted.
	AppliedHunks int `json:"applied_hunks"`

	// Conflicts lists every hunk that was skipped, in application order.
	Conflicts []ConflictInfo `json:"conflicts,omitempty"`
}

// =============================================================================
// Applier
// =============================================================================

// ApplyToText applies a single parsed file's hunks to original content.
//
// # Description
//
// Hunks are applied in reverse order so that each hunk's start line is
// still valid against the original numbering at the moment it is applied:
// hunks later in the file never shift the line numbers of hunks that are
// applied after them. For each hunk, the start line is bounds-checked,
// then every context line is verified against the current buffer before
// any mutation. A hunk that fails either check is skipped whole and
// reported as a conflict; remaining hunks are still attempted.
//
// # Inputs
//
//   - original: The current file content.
//   - file: One parsed patch file.
//
// # Outputs
//
//   - *ApplyResult: Success with patched content, or the conflict list.
//     Content is withheld when any hunk conflicted.
func ApplyToText(original string, file diff.PatchFile) *ApplyResult {
	result := &ApplyResult{}
	lines := strings.Split(original, "\n")
	target := file.TargetPath()

	for i := len(file.Hunks) - 1; i >= 0; i-- {
		hunk := &file.Hunks[i]
		startLine := hunk.OldStart - 1

		if startLine < 0 || startLine >= len(lines) {
			result.Conflicts = append(result.Conflicts, ConflictInfo{
				File:      target,
				HunkIndex: i,
				Reason:    ConflictInvalidLineRange,
			})
			continue
		}

		if mismatch, ok := verifyContext(lines, startLine, hunk); !ok {
			result.Conflicts = append(result.Conflicts, ConflictInfo{
				File:      target,
				HunkIndex: i,
				Reason:    ContextMismatchAt(mismatch),
			})
			continue
		}

		lines = splice(lines, startLine, hunk)
		result.AppliedHunks++
	}

	result.Success = len(result.Conflicts) == 0
	if result.Success {
		result.Content = strings.Join(lines, "\n")
	}
	return result
}

// ApplyRawToText parses raw patch text and applies it to original content.
//
// # Description
//
// Convenience entry point for callers holding unparsed text. The text
// applier operates on exactly one file: text that parses to zero files or
// to more than one file yields a patch-level conflict rather than silently
// dropping data.
//
// # Inputs
//
//   - original: The current file content.
//   - patchText: Unified diff text.
//
// # Outputs
//
//   - *ApplyResult: As for ApplyToText, or a patch-level conflict.
//   - error: Non-nil only when the text is not parseable at all.
func ApplyRawToText(original, patchText string) (*ApplyResult, error) {
	files, err := validation.ParseUnifiedDiff(patchText)
	if err != nil {
		return nil, fmt.Errorf("parsing patch: %w", err)
	}
	if len(files) == 0 {
		return patchConflict(ConflictNoFilesInPatch), nil
	}
	if len(files) > 1 {
		return patchConflict(ConflictMultiFilePatch), nil
	}
	return ApplyToText(original, files[0]), nil
}

// BuildNewFileContent assembles the content of a created file from its
// hunks. Creation patches diff against /dev/null, so the content is the
// added and context lines in order; there is no original to splice into.
func BuildNewFileContent(file diff.PatchFile) string {
	var lines []string
	for _, hunk := range file.Hunks {
		for _, line := range hunk.Lines {
			if line.Kind == diff.LineAdded || line.Kind == diff.LineContext {
				lines = append(lines, line.Content)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// verifyContext walks a hunk's lines and checks every context line against
// the buffer. The buffer offset advances on context and removed lines but
// not on added lines, which do not exist in the original. On mismatch it
// returns the 1-based buffer line number.
func verifyContext(lines []string, startLine int, hunk *diff.Hunk) (int, bool) {
	offset := 0
	for _, hl := range hunk.Lines {
		switch hl.Kind {
		case diff.LineContext:
			idx := startLine + offset
			if idx >= len(lines) || lines[idx] != hl.Content {
				return idx + 1, false
			}
			offset++
		case diff.LineRemoved:
			offset++
		}
	}
	return 0, true
}

// splice replaces the hunk's old line span with its added and context
// lines. The span end is clamped to the buffer so a hunk that overstates
// its old line count degrades to replacing what is actually there.
func splice(lines []string, startLine int, hunk *diff.Hunk) []string {
	replacement := make([]string, 0, len(hunk.Lines))
	for _, hl := range hunk.Lines {
		if hl.Kind == diff.LineAdded || hl.Kind == diff.LineContext {
			replacement = append(replacement, hl.Content)
		}
	}

	end := startLine + hunk.OldLines
	if end > len(lines) {
		end = len(lines)
	}

	next := make([]string, 0, len(lines)-(end-startLine)+len(replacement))
	next = append(next, lines[:startLine]...)
	next = append(next, replacement...)
	next = append(next, lines[end:]...)
	return next
}

func patchConflict(reason ConflictReason) *ApplyResult {
	return &ApplyResult{
		Success:   false,
		Conflicts: []ConflictInfo{{File: "", HunkIndex: -1, Reason: reason}},
	}
}
