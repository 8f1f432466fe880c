// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"testing"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/validation"
)

func parseFiles(t *testing.T, patch string) []diff.PatchFile {
	t.Helper()
	files, err := validation.ParseUnifiedDiff(patch)
	if err != nil {
		t.Fatalf("ParseUnifiedDiff() error = %v", err)
	}
	return files
}

func seedWorkspace(t *testing.T, store *Store, id string, files map[string]string) {
	t.Helper()
	if _, err := store.EnsureWorkspace(id); err != nil {
		t.Fatal(err)
	}
	for path, content := range files {
		if _, err := store.WriteFile(id, path, []byte(content), false); err != nil {
			t.Fatal(err)
		}
	}
}

func TestApplySet_ModifyCreateDelete(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store, "ws1", map[string]string{
		"src/app.py": "old\nline2",
		"src/gone.py": "bye\n",
	})

	patch := "--- a/src/app.py\n+++ b/src/app.py\n@@ -1,1 +1,1 @@\n-old\n+new\n" +
		"--- /dev/null\n+++ b/src/fresh.py\n@@ -0,0 +1,2 @@\n+line one\n+line two\n" +
		"--- a/src/gone.py\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-bye\n"

	result, err := store.ApplySet(context.Background(), "ws1", parseFiles(t, patch),
		ApplyOptions{MakeBackups: true})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if !result.Applied || !result.Clean() {
		t.Fatalf("Applied = %v, outcomes = %+v", result.Applied, result.Files)
	}
	if len(result.Files) != 3 {
		t.Fatalf("Files = %d, want 3", len(result.Files))
	}

	if result.Files[0].Action != ActionModify || result.Files[1].Action != ActionCreate ||
		result.Files[2].Action != ActionDelete {
		t.Errorf("Actions = %v %v %v",
			result.Files[0].Action, result.Files[1].Action, result.Files[2].Action)
	}

	modified, _ := store.ReadFile("ws1", "src/app.py")
	if string(modified) != "new\nline2" {
		t.Errorf("Modified content = %q", modified)
	}
	created, _ := store.ReadFile("ws1", "src/fresh.py")
	if string(created) != "line one\nline two" {
		t.Errorf("Created content = %q", created)
	}
	if exists, _ := store.FileExists("ws1", "src/gone.py"); exists {
		t.Error("Deleted file still present")
	}
	if result.Files[0].BackupPath == "" || result.Files[2].BackupPath == "" {
		t.Error("Expected backups for modify and delete")
	}
}

func TestApplySet_ConflictAbortsWholeSet(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store, "ws1", map[string]string{
		"ok.txt":  "a\nb",
		"bad.txt": "unexpected content",
	})

	patch := "--- a/ok.txt\n+++ b/ok.txt\n@@ -1,1 +1,1 @@\n-a\n+A\n" +
		"--- a/bad.txt\n+++ b/bad.txt\n@@ -1,1 +1,1 @@\n-something else\n+changed\n"

	result, err := store.ApplySet(context.Background(), "ws1", parseFiles(t, patch), ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if result.Applied {
		t.Fatal("Applied = true, want abort")
	}
	if result.Files[0].Success != true || result.Files[1].Success != false {
		t.Errorf("Outcomes = %+v", result.Files)
	}
	if len(result.Files[1].Conflicts) == 0 {
		t.Error("Expected conflicts on the failing file")
	}

	// The clean file must not have been written.
	untouched, _ := store.ReadFile("ws1", "ok.txt")
	if string(untouched) != "a\nb" {
		t.Errorf("ok.txt = %q, set must be all-or-nothing", untouched)
	}
}

func TestApplySet_DryRun(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store, "ws1", map[string]string{"f.txt": "a\nb"})

	patch := "--- a/f.txt\n+++ b/f.txt\n@@ -1,1 +1,1 @@\n-a\n+A\n"
	result, err := store.ApplySet(context.Background(), "ws1", parseFiles(t, patch),
		ApplyOptions{DryRun: true})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if result.Applied {
		t.Error("Applied = true for dry run")
	}
	if !result.DryRun || !result.Clean() {
		t.Errorf("DryRun = %v, Clean = %v", result.DryRun, result.Clean())
	}

	content, _ := store.ReadFile("ws1", "f.txt")
	if string(content) != "a\nb" {
		t.Errorf("Dry run wrote to disk: %q", content)
	}
}

func TestApplySet_CreateOnExistingAborts(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store, "ws1", map[string]string{"exists.py": "here\n"})

	patch := "--- /dev/null\n+++ b/exists.py\n@@ -0,0 +1,1 @@\n+clobber\n"
	result, err := store.ApplySet(context.Background(), "ws1", parseFiles(t, patch), ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if result.Applied {
		t.Fatal("Applied = true, creation must not clobber")
	}
	if result.Files[0].Error == "" {
		t.Error("Expected an error outcome")
	}

	content, _ := store.ReadFile("ws1", "exists.py")
	if string(content) != "here\n" {
		t.Errorf("Existing file changed: %q", content)
	}
}

func TestApplySet_DeleteMissingAborts(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store, "ws1", nil)

	patch := "--- a/ghost.py\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-x\n"
	result, err := store.ApplySet(context.Background(), "ws1", parseFiles(t, patch), ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if result.Applied {
		t.Fatal("Applied = true, want abort for missing delete target")
	}
	if result.Files[0].Error == "" {
		t.Error("Expected an error outcome")
	}
}

func TestApplySet_DuplicateTargetAborts(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store, "ws1", map[string]string{"f.txt": "a\nb\nc"})

	patch := "--- a/f.txt\n+++ b/f.txt\n@@ -1,1 +1,1 @@\n-a\n+A\n" +
		"--- a/f.txt\n+++ b/f.txt\n@@ -3,1 +3,1 @@\n-c\n+C\n"

	result, err := store.ApplySet(context.Background(), "ws1", parseFiles(t, patch), ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplySet() error = %v", err)
	}
	if result.Applied {
		t.Fatal("Applied = true, duplicate targets must abort")
	}
	if result.Files[1].Error == "" {
		t.Error("Expected duplicate-target error on second entry")
	}

	content, _ := store.ReadFile("ws1", "f.txt")
	if string(content) != "a\nb\nc" {
		t.Errorf("File changed despite abort: %q", content)
	}
}

func TestApplySet_InvalidWorkspace(t *testing.T) {
	store := newTestStore(t)
	patch := "--- a/f.txt\n+++ b/f.txt\n@@ -1,1 +1,1 @@\n-a\n+A\n"

	if _, err := store.ApplySet(context.Background(), "bad/id", parseFiles(t, patch), ApplyOptions{}); err == nil {
		t.Error("Expected error for invalid workspace id")
	}
}

func TestApplySet_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	seedWorkspace(t, store, "ws1", map[string]string{"f.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	patch := "--- a/f.txt\n+++ b/f.txt\n@@ -1,1 +1,1 @@\n-a\n+A\n"
	if _, err := store.ApplySet(ctx, "ws1", parseFiles(t, patch), ApplyOptions{}); err == nil {
		t.Error("Expected cancellation error")
	}
}
