// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"testing"
)

func TestLineKind_String(t *testing.T) {
	tests := []struct {
		name string
		kind LineKind
		want string
	}{
		{"context", LineContext, " "},
		{"added", LineAdded, "+"},
		{"removed", LineRemoved, "-"},
		{"no_newline_marker", LineNoNewlineMarker, `\`},
		{"unknown", LineKind(99), "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("LineKind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHunkLine_KindChecks(t *testing.T) {
	t.Run("addition", func(t *testing.T) {
		line := HunkLine{Kind: LineAdded, Content: "new line"}
		if !line.IsAddition() {
			t.Error("Expected IsAddition() to be true")
		}
		if line.IsDeletion() {
			t.Error("Expected IsDeletion() to be false")
		}
		if line.IsContext() {
			t.Error("Expected IsContext() to be false")
		}
	})

	t.Run("deletion", func(t *testing.T) {
		line := HunkLine{Kind: LineRemoved, Content: "old line"}
		if line.IsAddition() {
			t.Error("Expected IsAddition() to be false")
		}
		if !line.IsDeletion() {
			t.Error("Expected IsDeletion() to be true")
		}
		if line.IsContext() {
			t.Error("Expected IsContext() to be false")
		}
	})

	t.Run("context", func(t *testing.T) {
		line := HunkLine{Kind: LineContext, Content: "unchanged"}
		if line.IsAddition() {
			t.Error("Expected IsAddition() to be false")
		}
		if line.IsDeletion() {
			t.Error("Expected IsDeletion() to be false")
		}
		if !line.IsContext() {
			t.Error("Expected IsContext() to be true")
		}
	})
}

func TestHunkLine_String(t *testing.T) {
	line := HunkLine{Kind: LineAdded, Content: "hello world"}
	want := "+hello world"
	if got := line.String(); got != want {
		t.Errorf("HunkLine.String() = %q, want %q", got, want)
	}
}

func TestHunk_Header(t *testing.T) {
	hunk := &Hunk{
		OldStart: 10,
		OldLines: 5,
		NewStart: 12,
		NewLines: 8,
	}

	want := "@@ -10,5 +12,8 @@"
	if got := hunk.Header(); got != want {
		t.Errorf("Hunk.Header() = %q, want %q", got, want)
	}
}

func TestHunk_Counts(t *testing.T) {
	hunk := &Hunk{
		Lines: []HunkLine{
			{Kind: LineContext, Content: "context1"},
			{Kind: LineRemoved, Content: "old1"},
			{Kind: LineRemoved, Content: "old2"},
			{Kind: LineAdded, Content: "new1"},
			{Kind: LineContext, Content: "context2"},
		},
	}

	if got := hunk.AddedCount(); got != 1 {
		t.Errorf("Hunk.AddedCount() = %d, want 1", got)
	}
	if got := hunk.RemovedCount(); got != 2 {
		t.Errorf("Hunk.RemovedCount() = %d, want 2", got)
	}
}

func TestPatchFile_TargetPath(t *testing.T) {
	tests := []struct {
		name string
		file PatchFile
		want string
	}{
		{
			name: "modification_targets_new_path",
			file: PatchFile{OldPath: "src/app.py", NewPath: "src/app.py"},
			want: "src/app.py",
		},
		{
			name: "deletion_targets_old_path",
			file: PatchFile{OldPath: "src/dead.py", NewPath: "/dev/null", IsDeleted: true},
			want: "src/dead.py",
		},
		{
			name: "creation_targets_new_path",
			file: PatchFile{OldPath: "/dev/null", NewPath: "src/fresh.py", IsNew: true},
			want: "src/fresh.py",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.file.TargetPath(); got != tt.want {
				t.Errorf("TargetPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPatchFile_Stats(t *testing.T) {
	file := &PatchFile{
		Hunks: []Hunk{
			{
				Lines: []HunkLine{
					{Kind: LineAdded, Content: "a"},
					{Kind: LineAdded, Content: "b"},
					{Kind: LineRemoved, Content: "c"},
				},
			},
			{
				Lines: []HunkLine{
					{Kind: LineAdded, Content: "d"},
				},
			},
		},
	}

	want := "+3 -1"
	if got := file.Stats(); got != want {
		t.Errorf("PatchFile.Stats() = %q, want %q", got, want)
	}

	added, removed := file.LineStats()
	if added != 3 || removed != 1 {
		t.Errorf("LineStats() = (%d, %d), want (3, 1)", added, removed)
	}
}
