// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation implements the unified diff parser.
//
// # Description
//
// The parser turns raw diff text into the structured types of the diff
// package. It understands the grammar and nothing else: no path checks,
// no size caps, no policy. That separation keeps the parser fuzzable
// with arbitrary input while the validate package layers security on
// top of its output.
//
// # Supported Formats
//
//   - Standard unified diff (diff -u)
//   - Git diff format (`a/`/`b/` prefixes, /dev/null creation/deletion
//     markers, tab-separated timestamp suffixes)
//
// # Thread Safety
//
// Safe for concurrent use (stateless).
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
)

// =============================================================================
// Parse Errors
// =============================================================================

// ParseErrorKind enumerates the ways diff text can be structurally
// malformed. The set is closed: malformed input maps to exactly one of
// these, never to a panic.
type ParseErrorKind int

const (
	// MissingNewFileHeader means a `--- ` line was not immediately
	// followed by a `+++ ` line.
	MissingNewFileHeader ParseErrorKind = iota + 1

	// InvalidHunkHeader means a line opened with `@@ ` but did not
	// match the hunk header grammar.
	InvalidHunkHeader
)

// String returns a stable identifier for the kind.
func (k ParseErrorKind) String() string {
	switch k {
	case MissingNewFileHeader:
		return "missing_new_file_header"
	case InvalidHunkHeader:
		return "invalid_hunk_header"
	default:
		return "unknown"
	}
}

// ParseError reports a grammar violation with its 1-based line number.
//
// Callers that need to branch on the failure mode use errors.As and
// inspect Kind; the rendered message is for internal logs only and is
// never returned to API clients.
type ParseError struct {
	// Kind is the closed failure mode.
	Kind ParseErrorKind

	// Line is the 1-based line number of the offending line.
	Line int

	// Text is the offending line, for internal diagnostics.
	Text string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at line %d: %q", e.Kind, e.Line, e.Text)
}

// =============================================================================
// Parser
// =============================================================================

// hunkHeaderRegex matches hunk headers like "@@ -1,5 +1,7 @@". Trailing
// text after the closing @@ (section heading, CR from CRLF input) is
// ignored; omitted count groups default to 1.
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parser parses unified diff text into structured patch files.
//
// # Description
//
// The parser is a two-state line automaton. It starts out seeking a
// `--- ` file header; once inside a file it accumulates hunks until the
// next `--- ` header or end of input. Hunk body lines classify by their
// first byte: `+` added, `-` removed, `\` no-newline marker, anything
// else context (a bare empty line counts as a single space). The
// one-character prefix is stripped before the content is stored.
//
// File and hunk order, and line order within hunks, are preserved
// exactly as encountered.
//
// # Thread Safety
//
// Safe for concurrent use (stateless).
type Parser struct{}

// NewParser creates a ready-to-use diff parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseUnifiedDiff parses diff text with a default parser.
func ParseUnifiedDiff(text string) ([]diff.PatchFile, error) {
	return NewParser().Parse(text)
}

// Parse parses unified diff text into one PatchFile per header pair.
//
// # Inputs
//
//   - text: raw diff text, any size, any trust level.
//
// # Outputs
//
//   - []diff.PatchFile: parsed files in source order. May be empty when
//     the text contains no file headers at all.
//   - error: a *ParseError when the text violates the grammar; nil
//     otherwise. Never panics, whatever the input.
func (p *Parser) Parse(text string) ([]diff.PatchFile, error) {
	lines := strings.Split(text, "\n")
	// A trailing newline produces one empty split artifact, not a line.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var files []diff.PatchFile
	var current *diff.PatchFile
	var hunk *diff.Hunk

	closeHunk := func() {
		if current != nil && hunk != nil {
			current.Hunks = append(current.Hunks, *hunk)
		}
		hunk = nil
	}
	closeFile := func() {
		closeHunk()
		if current != nil {
			files = append(files, *current)
		}
		current = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "--- "):
			// New file header. This also ends the previous file, so a
			// removed line whose content begins with "-- " cannot be
			// represented; the grammar gives file boundaries priority.
			closeFile()

			oldPath := parseFilePath(line[4:], "a/")
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
				return nil, &ParseError{
					Kind: MissingNewFileHeader,
					Line: i + 2,
					Text: headerFollower(lines, i),
				}
			}
			i++
			newPath := parseFilePath(lines[i][4:], "b/")

			current = &diff.PatchFile{
				OldPath:   oldPath,
				NewPath:   newPath,
				IsNew:     oldPath == devNull,
				IsDeleted: newPath == devNull,
			}

		case current != nil && strings.HasPrefix(line, "@@ "):
			closeHunk()
			parsed, ok := parseHunkHeader(line)
			if !ok {
				return nil, &ParseError{Kind: InvalidHunkHeader, Line: i + 1, Text: line}
			}
			hunk = parsed

		case hunk != nil:
			hunk.Lines = append(hunk.Lines, classifyLine(line))

		default:
			// Preamble (`diff --git`, `index`, mode lines) and anything
			// between the header pair and the first hunk is skipped.
		}
	}
	closeFile()

	return files, nil
}

// devNull marks a nonexistent file side in git-style diffs.
const devNull = "/dev/null"

// classifyLine tags one hunk body line by its first byte and strips the
// one-character prefix. A bare empty line is treated as a single space,
// so it classifies as context with empty content.
func classifyLine(line string) diff.HunkLine {
	if line == "" {
		return diff.HunkLine{Kind: diff.LineContext}
	}
	content := line[1:]
	switch line[0] {
	case '+':
		return diff.HunkLine{Kind: diff.LineAdded, Content: content}
	case '-':
		return diff.HunkLine{Kind: diff.LineRemoved, Content: content}
	case '\\':
		return diff.HunkLine{Kind: diff.LineNoNewlineMarker, Content: content}
	default:
		return diff.HunkLine{Kind: diff.LineContext, Content: content}
	}
}

// parseFilePath extracts the path from a file header payload: strips the
// git prefix for that side (`a/` or `b/`) and any tab-separated
// timestamp suffix from the old `diff -u` format.
func parseFilePath(raw, gitPrefix string) string {
	path := strings.TrimPrefix(raw, gitPrefix)
	if idx := strings.Index(path, "\t"); idx != -1 {
		path = path[:idx]
	}
	return strings.TrimSpace(path)
}

// parseHunkHeader parses "@@ -oldStart[,oldLines] +newStart[,newLines] @@".
// Omitted counts default to 1 per the unified diff convention.
func parseHunkHeader(line string) (*diff.Hunk, bool) {
	matches := hunkHeaderRegex.FindStringSubmatch(line)
	if matches == nil {
		return nil, false
	}

	hunk := &diff.Hunk{OldLines: 1, NewLines: 1}
	hunk.OldStart, _ = strconv.Atoi(matches[1])
	if matches[2] != "" {
		hunk.OldLines, _ = strconv.Atoi(matches[2])
	}
	hunk.NewStart, _ = strconv.Atoi(matches[3])
	if matches[4] != "" {
		hunk.NewLines, _ = strconv.Atoi(matches[4])
	}
	return hunk, true
}

// headerFollower returns the line after index i for error reporting, or
// an empty string when the header pair was cut off by end of input.
func headerFollower(lines []string, i int) string {
	if i+1 < len(lines) {
		return lines[i+1]
	}
	return ""
}
