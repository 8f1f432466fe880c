// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

// generateDiff builds a unified diff between two texts with an external
// generator, so the round-trip tests never depend on our own formatting.
func generateDiff(t *testing.T, before, after string) string {
	t.Helper()
	patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/file.txt",
		ToFile:   "b/file.txt",
		Context:  3,
	})
	if err != nil {
		t.Fatalf("GetUnifiedDiffString() error = %v", err)
	}
	return patch
}

func TestApplyRawToText_RoundTripsGeneratedDiffs(t *testing.T) {
	twentyLines := func(changed map[int]string) string {
		var b strings.Builder
		for i := 1; i <= 20; i++ {
			if line, ok := changed[i]; ok {
				fmt.Fprintf(&b, "%s\n", line)
			} else {
				fmt.Fprintf(&b, "L%02d\n", i)
			}
		}
		return b.String()
	}

	tests := []struct {
		name   string
		before string
		after  string
	}{
		{"replace_first_line", "old\nline2\n", "new\nline2\n"},
		{"insert_middle", "a\nb\nc\n", "a\nb\nnew\nc\n"},
		{"delete_lines", "a\nb\nc\nd\n", "a\nd\n"},
		{"no_trailing_newline", "a\nb", "x\nb"},
		{"append_line", "a\nb", "a\nb\nc"},
		{"drop_trailing_newline", "a\n", "a"},
		{"blank_lines_inside", "a\n\nb\n", "a\n\nc\n"},
		{"rewrite_everything", "one\ntwo\nthree\n", "alpha\nbeta\n"},
		{
			"two_distant_edits",
			twentyLines(nil),
			twentyLines(map[int]string{2: "CHANGED-A", 18: "CHANGED-B"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := generateDiff(t, tt.before, tt.after)

			result := mustApplyRaw(t, tt.before, patch)
			if !result.Success {
				t.Fatalf("Success = false, conflicts = %+v\npatch:\n%s", result.Conflicts, patch)
			}
			if result.Content != tt.after {
				t.Errorf("Round trip diverged:\ngot  %q\nwant %q\npatch:\n%s", result.Content, tt.after, patch)
			}
		})
	}
}

func TestApplyRawToText_DistantEditsProduceTwoHunks(t *testing.T) {
	var before, after strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&before, "L%02d\n", i)
		switch i {
		case 2:
			after.WriteString("CHANGED-A\n")
		case 18:
			after.WriteString("CHANGED-B\n")
		default:
			fmt.Fprintf(&after, "L%02d\n", i)
		}
	}

	patch := generateDiff(t, before.String(), after.String())
	if got := strings.Count(patch, "\n@@"); got != 2 {
		t.Fatalf("Generated patch has %d hunks, want 2:\n%s", got, patch)
	}

	result := mustApplyRaw(t, before.String(), patch)
	if !result.Success || result.AppliedHunks != 2 {
		t.Errorf("Success = %v, AppliedHunks = %d, conflicts = %+v",
			result.Success, result.AppliedHunks, result.Conflicts)
	}
}

func TestApplyRawToText_IdenticalInputsYieldEmptyDiff(t *testing.T) {
	patch := generateDiff(t, "same\n", "same\n")
	if patch != "" {
		t.Fatalf("Expected empty diff for identical inputs, got %q", patch)
	}

	result := mustApplyRaw(t, "same\n", patch)
	if result.Success {
		t.Fatal("Success = true, empty text should be a patch-level rejection")
	}
	if got := result.Conflicts[0].Reason; got != ConflictNoFilesInPatch {
		t.Errorf("Reason = %q, want %q", got, ConflictNoFilesInPatch)
	}
}
