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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestNewStore(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if _, err := NewStore(DefaultConfig(t.TempDir())); err != nil {
			t.Errorf("NewStore() error = %v", err)
		}
	})

	t.Run("relative_base_rejected", func(t *testing.T) {
		if _, err := NewStore(DefaultConfig("relative/dir")); err == nil {
			t.Error("Expected error for relative base dir")
		}
	})

	t.Run("missing_base_rejected", func(t *testing.T) {
		if _, err := NewStore(DefaultConfig("/nonexistent/dir/12345")); err == nil {
			t.Error("Expected error for missing base dir")
		}
	})
}

func TestStore_WorkspaceDir(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "ws1", false},
		{"with_separators", "team-a.project_2", false},
		{"single_char", "x", false},
		{"empty", "", true},
		{"leading_dot", ".hidden", true},
		{"dotdot", "..", true},
		{"slash", "a/b", true},
		{"too_long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.WorkspaceDir(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("WorkspaceDir(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidWorkspaceID) {
				t.Errorf("error = %v, want ErrInvalidWorkspaceID", err)
			}
		})
	}
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureWorkspace("ws1"); err != nil {
		t.Fatal(err)
	}

	backup, err := store.WriteFile("ws1", "src/deep/app.py", []byte("print('hi')\n"), false)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if backup != "" {
		t.Errorf("BackupPath = %q, want empty for fresh file", backup)
	}

	data, err := store.ReadFile("ws1", "src/deep/app.py")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "print('hi')\n" {
		t.Errorf("ReadFile() = %q", data)
	}
}

func TestStore_WriteFileBackup(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureWorkspace("ws1"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.WriteFile("ws1", "f.txt", []byte("v1"), false); err != nil {
		t.Fatal(err)
	}
	backup, err := store.WriteFile("ws1", "f.txt", []byte("v2"), true)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if backup == "" {
		t.Fatal("Expected a backup path for an overwrite with makeBackup")
	}

	prev, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("Reading backup: %v", err)
	}
	if string(prev) != "v1" {
		t.Errorf("Backup content = %q, want previous version", prev)
	}

	current, _ := store.ReadFile("ws1", "f.txt")
	if string(current) != "v2" {
		t.Errorf("Current content = %q, want v2", current)
	}
}

func TestStore_DeleteFile(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureWorkspace("ws1"); err != nil {
		t.Fatal(err)
	}

	t.Run("existing_with_backup", func(t *testing.T) {
		if _, err := store.WriteFile("ws1", "gone.txt", []byte("bye"), false); err != nil {
			t.Fatal(err)
		}
		backup, err := store.DeleteFile("ws1", "gone.txt", true)
		if err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		if backup == "" {
			t.Error("Expected backup path")
		}
		if exists, _ := store.FileExists("ws1", "gone.txt"); exists {
			t.Error("File still exists after delete")
		}
	})

	t.Run("missing_is_not_error", func(t *testing.T) {
		if _, err := store.DeleteFile("ws1", "never-there.txt", false); err != nil {
			t.Errorf("DeleteFile() error = %v", err)
		}
	})
}

func TestStore_PathEscapeRejected(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.EnsureWorkspace("ws1"); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"../other/f.txt", "a/../../f.txt", ".."} {
		if _, err := store.ReadFile("ws1", path); !errors.Is(err, ErrPathEscape) {
			t.Errorf("ReadFile(%q) error = %v, want ErrPathEscape", path, err)
		}
	}
}

func TestStore_MissingWorkspace(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.ReadFile("nope", "f.txt"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("error = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestStore_EnsureWorkspaceIdempotent(t *testing.T) {
	store := newTestStore(t)

	dir1, err := store.EnsureWorkspace("ws1")
	if err != nil {
		t.Fatal(err)
	}
	dir2, err := store.EnsureWorkspace("ws1")
	if err != nil {
		t.Fatal(err)
	}
	if dir1 != dir2 {
		t.Errorf("EnsureWorkspace returned %q then %q", dir1, dir2)
	}
	if info, err := os.Stat(dir1); err != nil || !info.IsDir() {
		t.Errorf("Workspace dir missing: %v", err)
	}
	if filepath.Dir(dir1) == dir1 {
		t.Error("Workspace dir should be nested under base dir")
	}
}
