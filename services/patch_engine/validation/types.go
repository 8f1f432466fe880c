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

import "github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"

// ReasonCode identifies why a patch was rejected.
//
// Codes are stable, machine-readable strings. The API layer maps them to
// HTTP statuses and the audit log records them verbatim, so they must
// never be renamed once released.
type ReasonCode string

const (
	// ReasonEmptyOrTooSmall means the trimmed patch text was below the
	// minimum size and cannot contain a meaningful diff.
	ReasonEmptyOrTooSmall ReasonCode = "empty_or_too_small"

	// ReasonPatchTooLarge means the raw patch text exceeded the size cap.
	ReasonPatchTooLarge ReasonCode = "patch_too_large"

	// ReasonPathTraversalSuspected means the raw text contained a
	// parent-directory sequence. This check runs before parsing and is
	// deliberately conservative.
	ReasonPathTraversalSuspected ReasonCode = "path_traversal_suspected"

	// ReasonInvalidDiffFormat means the text could not be parsed as a
	// unified diff, or parsed to zero files.
	ReasonInvalidDiffFormat ReasonCode = "invalid_diff_format"

	// ReasonTooManyFiles means the patch touches more files than the
	// policy permits.
	ReasonTooManyFiles ReasonCode = "too_many_files"

	// ReasonInvalidPath means a file path was absolute, carried a drive
	// letter, or still contained a parent-directory segment after
	// normalization.
	ReasonInvalidPath ReasonCode = "invalid_path"

	// ReasonPathOutsideWorkspace means a path resolved to a location
	// outside the supplied workspace root.
	ReasonPathOutsideWorkspace ReasonCode = "path_outside_workspace"

	// ReasonExtensionNotAllowed means a target file's extension is not in
	// the policy allowlist.
	ReasonExtensionNotAllowed ReasonCode = "extension_not_allowed"
)

// ValidationResult is the outcome of screening one patch.
//
// The result is never partially filled: either Valid is true and the file
// lists are populated, or Valid is false and Reason carries the first
// failing check.
type ValidationResult struct {
	// Valid indicates whether the patch passed every check.
	Valid bool `json:"valid"`

	// Reason is the machine-readable rejection code. Empty when Valid.
	Reason ReasonCode `json:"reason,omitempty"`

	// NormalizedFiles lists the normalized target path of every file in
	// patch order. Populated only when Valid.
	NormalizedFiles []string `json:"normalized_files,omitempty"`

	// ParsedFiles carries the structured diff for the applier so it never
	// has to re-parse. Not serialized; the API layer builds its own
	// summary representation.
	ParsedFiles []diff.PatchFile `json:"-"`
}
