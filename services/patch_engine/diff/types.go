// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff defines the structured representation of a unified diff.
//
// # Description
//
// This package holds the value types produced by the parser and consumed
// by the validator and the applier: PatchFile -> Hunk -> HunkLine. The
// types carry no behavior beyond cheap accessors; parsing lives in the
// validation package and application in the apply package, so these
// leaves stay dependency-free.
//
// # Thread Safety
//
// All types are plain values. They are never mutated after the parser
// returns them and can be read concurrently without synchronization.
package diff

import "fmt"

// =============================================================================
// Line Kinds
// =============================================================================

// LineKind classifies a single hunk body line.
//
// The kind set is closed: a switch over all four constants is exhaustive.
// Content is stored separately on HunkLine with the one-character unified
// diff prefix already stripped.
type LineKind int

const (
	// LineContext is an unchanged anchor line (prefix " ", or a bare
	// empty line, which the grammar treats as a single space).
	LineContext LineKind = iota

	// LineAdded is a line present only in the new file (prefix "+").
	LineAdded

	// LineRemoved is a line present only in the old file (prefix "-").
	LineRemoved

	// LineNoNewlineMarker is the `\ No newline at end of file` marker
	// (prefix "\"). It anchors nothing and is skipped during apply.
	LineNoNewlineMarker
)

// String returns the canonical one-character prefix for the kind.
func (k LineKind) String() string {
	switch k {
	case LineContext:
		return " "
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	case LineNoNewlineMarker:
		return `\`
	default:
		return "?"
	}
}

// =============================================================================
// Hunk Line
// =============================================================================

// HunkLine is one classified line of a hunk body.
type HunkLine struct {
	// Kind tags the line as context, added, removed, or the
	// no-newline marker.
	Kind LineKind

	// Content is the line text without the one-character prefix.
	Content string
}

// String reassembles the line in unified diff form.
func (l HunkLine) String() string {
	return l.Kind.String() + l.Content
}

// IsAddition returns true if this line exists only in the new file.
func (l HunkLine) IsAddition() bool {
	return l.Kind == LineAdded
}

// IsDeletion returns true if this line exists only in the old file.
func (l HunkLine) IsDeletion() bool {
	return l.Kind == LineRemoved
}

// IsContext returns true if this line is an unchanged anchor.
func (l HunkLine) IsContext() bool {
	return l.Kind == LineContext
}

// =============================================================================
// Hunk
// =============================================================================

// Hunk is one contiguous change region of a unified diff.
//
// # Description
//
// OldStart and NewStart are 1-based line numbers per the unified diff
// convention. OldLines and NewLines default to 1 when the header omitted
// the count group. Lines preserves body order exactly as encountered in
// the source text.
type Hunk struct {
	// OldStart is the 1-based starting line in the old file.
	OldStart int

	// OldLines is the number of old-file lines the hunk spans.
	OldLines int

	// NewStart is the 1-based starting line in the new file.
	NewStart int

	// NewLines is the number of new-file lines the hunk spans.
	NewLines int

	// Lines contains the classified body lines in source order.
	Lines []HunkLine
}

// Header renders the canonical unified diff header for this hunk.
func (h *Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}

// AddedCount returns the number of added lines in the hunk.
func (h *Hunk) AddedCount() int {
	count := 0
	for _, line := range h.Lines {
		if line.IsAddition() {
			count++
		}
	}
	return count
}

// RemovedCount returns the number of removed lines in the hunk.
func (h *Hunk) RemovedCount() int {
	count := 0
	for _, line := range h.Lines {
		if line.IsDeletion() {
			count++
		}
	}
	return count
}

// =============================================================================
// Patch File
// =============================================================================

// PatchFile is the full change set for one file within a diff.
//
// # Description
//
// A multi-file diff parses into one PatchFile per `---`/`+++` header
// pair. Hunks preserves the order hunks appeared in the source text;
// the applier depends on that ordering for its reverse-application
// strategy.
type PatchFile struct {
	// OldPath is the old-file path with the `a/` prefix stripped.
	OldPath string

	// NewPath is the new-file path with the `b/` prefix stripped.
	NewPath string

	// IsNew marks a file creation (old side was /dev/null).
	IsNew bool

	// IsDeleted marks a file deletion (new side was /dev/null).
	IsDeleted bool

	// Hunks contains the change regions in source order.
	Hunks []Hunk
}

// TargetPath returns the path the change lands on: NewPath normally,
// OldPath when the patch deletes the file.
func (f *PatchFile) TargetPath() string {
	if f.IsDeleted {
		return f.OldPath
	}
	return f.NewPath
}

// LineStats returns the total lines added and removed across all hunks.
func (f *PatchFile) LineStats() (added, removed int) {
	for i := range f.Hunks {
		added += f.Hunks[i].AddedCount()
		removed += f.Hunks[i].RemovedCount()
	}
	return
}

// Stats returns a short summary string like "+12 -3".
func (f *PatchFile) Stats() string {
	added, removed := f.LineStats()
	return fmt.Sprintf("+%d -%d", added, removed)
}
