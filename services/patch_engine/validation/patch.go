// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/policy"
)

// driveLetterRegex matches Windows drive-letter prefixes such as "C:".
var driveLetterRegex = regexp.MustCompile(`^[A-Za-z]:`)

// Validator screens raw patch text against the path policy before any
// apply work is attempted.
//
// Thread Safety: Safe for concurrent use. The validator holds an
// immutable policy snapshot and keeps no per-call state.
type Validator struct {
	policy policy.PathPolicy
}

// NewValidator creates a patch validator.
//
// Description:
//
//	Creates a Validator bound to a snapshot of the given policy. Callers
//	that hot-reload policy construct a fresh Validator per request; the
//	two-field struct makes that cheap.
//
// Inputs:
//
//	pol - Path policy (size caps, file cap, extension allowlist)
//
// Outputs:
//
//	*Validator - The configured validator
//	error - Non-nil if the policy fails its own consistency checks
//
// Thread Safety: Safe to share between goroutines.
func NewValidator(pol policy.PathPolicy) (*Validator, error) {
	if err := pol.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid path policy: %w", err)
	}
	return &Validator{policy: pol}, nil
}

// Validate screens a raw unified diff.
//
// Description:
//
//	Runs a fixed, cost-ascending pipeline so that adversarial input is
//	rejected before expensive work:
//	1. Minimum size - trimmed text below the floor
//	2. Maximum size - raw text above the cap
//	3. Traversal scan - "../" or "..\" anywhere in the unparsed text
//	4. Diff parsing - malformed or file-less text
//	5. File count cap
//	6. Path shape - absolute, drive-letter, or parent-segment paths
//	7. Workspace containment on resolved paths (when a root is supplied)
//	8. Extension allowlist on target paths
//
//	The first failing check wins; later checks never run.
//
// Inputs:
//
//	patchText - The unified diff text
//	workspaceRoot - Workspace directory for containment checks; empty
//	                skips check 7
//
// Outputs:
//
//	*ValidationResult - Valid=true with file lists, or Valid=false with
//	                    the first failing ReasonCode
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) Validate(patchText, workspaceRoot string) *ValidationResult {
	// 1. Reject trivially small input before any other work.
	if len(strings.TrimSpace(patchText)) < v.policy.MinPatchBytes {
		return rejected(ReasonEmptyOrTooSmall)
	}

	// 2. Cap raw size so parsing cost stays bounded.
	if len(patchText) > v.policy.MaxPatchBytes {
		return rejected(ReasonPatchTooLarge)
	}

	// 3. Traversal scan on the unparsed text. Deliberately conservative:
	// a "../" inside a context line trips it too.
	if strings.Contains(patchText, "../") || strings.Contains(patchText, `..\`) {
		return rejected(ReasonPathTraversalSuspected)
	}

	// 4. Parse. Text with no recognizable file headers is treated the
	// same as malformed text.
	files, err := ParseUnifiedDiff(patchText)
	if err != nil || len(files) == 0 {
		return rejected(ReasonInvalidDiffFormat)
	}

	// 5. File count cap.
	if len(files) > v.policy.MaxFiles {
		return rejected(ReasonTooManyFiles)
	}

	// 6. Path shape. Both sides of every header are normalized; /dev/null
	// markers are exempt because they name no real file.
	normOld := make([]string, len(files))
	normNew := make([]string, len(files))
	for i := range files {
		f := &files[i]
		if f.IsNew && f.IsDeleted {
			return rejected(ReasonInvalidPath)
		}
		if !f.IsNew {
			norm, ok := normalizePath(f.OldPath)
			if !ok {
				return rejected(ReasonInvalidPath)
			}
			normOld[i] = norm
		}
		if !f.IsDeleted {
			norm, ok := normalizePath(f.NewPath)
			if !ok {
				return rejected(ReasonInvalidPath)
			}
			normNew[i] = norm
		}
	}

	// 7. Containment on resolved paths. Resolution makes the check robust
	// to "./" segments and similar residue that survives step 6.
	if workspaceRoot != "" {
		rootAbs, err := filepath.Abs(workspaceRoot)
		if err != nil {
			return rejected(ReasonPathOutsideWorkspace)
		}
		for i := range files {
			for _, norm := range [2]string{normOld[i], normNew[i]} {
				if norm != "" && !containedIn(rootAbs, norm) {
					return rejected(ReasonPathOutsideWorkspace)
				}
			}
		}
	}

	// 8. Extension allowlist on the target path. Deletions carry no new
	// content and are not extension-checked.
	for i := range files {
		if files[i].IsDeleted {
			continue
		}
		if !v.policy.ExtensionAllowed(normNew[i]) {
			return rejected(ReasonExtensionNotAllowed)
		}
	}

	normalized := make([]string, len(files))
	for i := range files {
		if files[i].IsDeleted {
			normalized[i] = normOld[i]
		} else {
			normalized[i] = normNew[i]
		}
	}

	return accepted(normalized, files)
}

// Policy returns the snapshot the validator was built with.
func (v *Validator) Policy() policy.PathPolicy {
	return v.policy
}

func rejected(reason ReasonCode) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason}
}

func accepted(normalized []string, parsed []diff.PatchFile) *ValidationResult {
	return &ValidationResult{Valid: true, NormalizedFiles: normalized, ParsedFiles: parsed}
}

// normalizePath converts a parsed diff path into the canonical form used
// for policy checks: forward slashes only, no duplicate separators. It
// rejects empty paths, absolute paths, drive-letter paths, and any
// remaining parent-directory segment.
func normalizePath(p string) (string, bool) {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if p == "" || strings.HasPrefix(p, "/") || driveLetterRegex.MatchString(p) {
		return "", false
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", false
		}
	}
	return p, true
}

// containedIn reports whether relPath resolves to a location inside root.
func containedIn(rootAbs, relPath string) bool {
	resolved := filepath.Join(rootAbs, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(rootAbs, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
