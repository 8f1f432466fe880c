// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace owns every filesystem concern the patch engine itself
// stays away from: resolving workspace directories, reading and writing
// files, backups, and the per-file serialization that guarantees at most
// one concurrent apply per target.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidWorkspaceID means the workspace identifier failed the
	// naming rules.
	ErrInvalidWorkspaceID = errors.New("invalid workspace id")

	// ErrPathEscape means a relative path resolved outside its workspace
	// directory.
	ErrPathEscape = errors.New("path escapes workspace")

	// ErrWorkspaceNotFound means the workspace directory does not exist.
	ErrWorkspaceNotFound = errors.New("workspace does not exist")
)

// workspaceIDPattern constrains identifiers to filesystem-safe names: they
// become directory names directly under the store root.
var workspaceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// =============================================================================
// Store
// =============================================================================

// Config configures a Store.
type Config struct {
	// BaseDir is the directory holding one subdirectory per workspace.
	// Must be absolute.
	BaseDir string

	// BackupSuffix is appended to backup file names (default ".orig").
	BackupSuffix string

	// FileMode is the mode for files the store creates (default 0644).
	FileMode os.FileMode

	// DirMode is the mode for directories the store creates (default 0755).
	DirMode os.FileMode

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults rooted at baseDir.
func DefaultConfig(baseDir string) Config {
	return Config{
		BaseDir:      baseDir,
		BackupSuffix: ".orig",
		FileMode:     0644,
		DirMode:      0755,
	}
}

// Store reads and writes workspace files.
//
// # Description
//
// A Store maps (workspaceID, relative path) pairs onto a directory tree
// rooted at BaseDir and keeps every access inside the owning workspace.
// Mutation of a given file is serialized with a per-path lock, so two
// concurrent applies can never interleave a read-modify-write on the same
// target.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type Store struct {
	baseDir      string
	backupSuffix string
	fileMode     os.FileMode
	dirMode      os.FileMode
	logger       *slog.Logger

	// pathLocks serializes mutation per resolved path.
	pathLocks   map[string]*sync.Mutex
	pathLocksMu sync.Mutex
}

// NewStore creates a workspace store.
//
// # Inputs
//
//   - config: Store configuration. BaseDir must be an absolute path to an
//     existing directory.
//
// # Outputs
//
//   - *Store: Ready-to-use store.
//   - error: Non-nil if BaseDir is invalid.
func NewStore(config Config) (*Store, error) {
	if !filepath.IsAbs(config.BaseDir) {
		return nil, fmt.Errorf("base dir must be absolute: %s", config.BaseDir)
	}
	info, err := os.Stat(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("stat base dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base dir is not a directory: %s", config.BaseDir)
	}

	if config.BackupSuffix == "" {
		config.BackupSuffix = ".orig"
	}
	if config.FileMode == 0 {
		config.FileMode = 0644
	}
	if config.DirMode == 0 {
		config.DirMode = 0755
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Store{
		baseDir:      config.BaseDir,
		backupSuffix: config.BackupSuffix,
		fileMode:     config.FileMode,
		dirMode:      config.DirMode,
		logger:       config.Logger,
		pathLocks:    make(map[string]*sync.Mutex),
	}, nil
}

// WorkspaceDir returns the directory for a workspace without touching the
// filesystem.
func (s *Store) WorkspaceDir(workspaceID string) (string, error) {
	if !workspaceIDPattern.MatchString(workspaceID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidWorkspaceID, workspaceID)
	}
	return filepath.Join(s.baseDir, workspaceID), nil
}

// EnsureWorkspace creates the workspace directory if it does not exist.
func (s *Store) EnsureWorkspace(workspaceID string) (string, error) {
	dir, err := s.WorkspaceDir(workspaceID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return "", fmt.Errorf("creating workspace dir: %w", err)
	}
	return dir, nil
}

// ReadFile returns the content of one workspace file.
//
// # Inputs
//
//   - workspaceID: Workspace identifier.
//   - relPath: Path relative to the workspace root, forward slashes.
//
// # Outputs
//
//   - []byte: File content.
//   - error: ErrInvalidWorkspaceID, ErrPathEscape, ErrWorkspaceNotFound,
//     or the underlying read error.
func (s *Store) ReadFile(workspaceID, relPath string) ([]byte, error) {
	full, err := s.resolve(workspaceID, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", relPath, err)
	}
	return data, nil
}

// WriteFile writes content to one workspace file, creating parent
// directories as needed. With makeBackup set and an existing target, the
// previous content is first copied aside with the backup suffix.
//
// # Outputs
//
//   - string: Backup path, empty when no backup was made.
//   - error: Non-nil on resolution or I/O failure.
func (s *Store) WriteFile(workspaceID, relPath string, content []byte, makeBackup bool) (string, error) {
	full, err := s.resolve(workspaceID, relPath)
	if err != nil {
		return "", err
	}

	unlock := s.lockPath(full)
	defer unlock()

	return s.writeLocked(full, relPath, content, makeBackup)
}

// DeleteFile removes one workspace file. Deleting a file that is already
// absent is not an error. With makeBackup set, the content is copied aside
// before removal.
func (s *Store) DeleteFile(workspaceID, relPath string, makeBackup bool) (string, error) {
	full, err := s.resolve(workspaceID, relPath)
	if err != nil {
		return "", err
	}

	unlock := s.lockPath(full)
	defer unlock()

	return s.deleteLocked(full, relPath, makeBackup)
}

// FileExists reports whether a workspace file exists.
func (s *Store) FileExists(workspaceID, relPath string) (bool, error) {
	full, err := s.resolve(workspaceID, relPath)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// =============================================================================
// Internal helpers
// =============================================================================

// resolve maps a (workspaceID, relPath) pair to an absolute path and
// rejects anything that would land outside the workspace.
func (s *Store) resolve(workspaceID, relPath string) (string, error) {
	wsDir, err := s.WorkspaceDir(workspaceID)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(wsDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrWorkspaceNotFound, workspaceID)
	}

	full := filepath.Join(wsDir, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(wsDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, relPath)
	}
	return full, nil
}

// lockPath acquires the per-path mutex and returns its unlock func.
func (s *Store) lockPath(full string) func() {
	s.pathLocksMu.Lock()
	lock, ok := s.pathLocks[full]
	if !ok {
		lock = &sync.Mutex{}
		s.pathLocks[full] = lock
	}
	s.pathLocksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// lockPaths acquires several per-path mutexes in sorted order, so two
// overlapping sets can never deadlock, and returns one combined unlock.
func (s *Store) lockPaths(fulls []string) func() {
	unique := make([]string, 0, len(fulls))
	seen := make(map[string]struct{}, len(fulls))
	for _, p := range fulls {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			unique = append(unique, p)
		}
	}
	sort.Strings(unique)

	unlocks := make([]func(), 0, len(unique))
	for _, p := range unique {
		unlocks = append(unlocks, s.lockPath(p))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (s *Store) writeLocked(full, relPath string, content []byte, makeBackup bool) (string, error) {
	if err := os.MkdirAll(filepath.Dir(full), s.dirMode); err != nil {
		return "", fmt.Errorf("creating parent dirs for %s: %w", relPath, err)
	}

	backupPath := ""
	if makeBackup {
		if prev, err := os.ReadFile(full); err == nil {
			backupPath = full + s.backupSuffix
			if err := os.WriteFile(backupPath, prev, s.fileMode); err != nil {
				return "", fmt.Errorf("writing backup for %s: %w", relPath, err)
			}
		}
	}

	if err := os.WriteFile(full, content, s.fileMode); err != nil {
		return backupPath, fmt.Errorf("writing %s: %w", relPath, err)
	}

	s.logger.Debug("Wrote workspace file",
		"path", relPath,
		"bytes", len(content),
		"backup", backupPath != "")
	return backupPath, nil
}

func (s *Store) deleteLocked(full, relPath string, makeBackup bool) (string, error) {
	backupPath := ""
	if makeBackup {
		if prev, err := os.ReadFile(full); err == nil {
			backupPath = full + s.backupSuffix
			if err := os.WriteFile(backupPath, prev, s.fileMode); err != nil {
				return "", fmt.Errorf("writing backup for %s: %w", relPath, err)
			}
		}
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return backupPath, fmt.Errorf("removing %s: %w", relPath, err)
	}

	s.logger.Debug("Deleted workspace file", "path", relPath, "backup", backupPath != "")
	return backupPath, nil
}
