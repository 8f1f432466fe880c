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
	"fmt"
	"os"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/apply"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
)

// =============================================================================
// Apply Set
// =============================================================================

// Action identifies what applying one patch file does to its target.
type Action string

const (
	ActionModify Action = "modify"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// ApplyOptions configures ApplySet.
type ApplyOptions struct {
	// DryRun stages every file and reports outcomes without writing.
	DryRun bool

	// MakeBackups copies each touched file aside before mutating it.
	MakeBackups bool
}

// FileOutcome reports what happened to one target file.
type FileOutcome struct {
	// Path is the workspace-relative target path.
	Path string `json:"path"`

	// Action is what the patch file does to the target.
	Action Action `json:"action"`

	// Success is true when the file staged cleanly (and, outside dry
	// runs, was written).
	Success bool `json:"success"`

	// AppliedHunks counts hunks that applied cleanly.
	AppliedHunks int `json:"applied_hunks"`

	// Conflicts lists hunks that did not apply.
	Conflicts []apply.ConflictInfo `json:"conflicts,omitempty"`

	// Error describes a non-conflict failure (missing target, I/O).
	Error string `json:"error,omitempty"`

	// BackupPath is where the previous content was saved, if anywhere.
	BackupPath string `json:"backup_path,omitempty"`

	// BytesWritten is the size of the written content.
	BytesWritten int64 `json:"bytes_written,omitempty"`
}

// SetResult is the outcome of one ApplySet call.
type SetResult struct {
	// WorkspaceID identifies the workspace the set targeted.
	WorkspaceID string `json:"workspace_id"`

	// Applied is true when every file was staged cleanly and written.
	// It is false for dry runs and whenever any file failed to stage.
	Applied bool `json:"applied"`

	// DryRun echoes the request option.
	DryRun bool `json:"dry_run"`

	// Files reports per-file outcomes in patch order.
	Files []FileOutcome `json:"files"`
}

// Clean reports whether every file in the set staged without conflicts.
func (r *SetResult) Clean() bool {
	for i := range r.Files {
		if !r.Files[i].Success {
			return false
		}
	}
	return true
}

// stagedOp is one computed mutation awaiting commit.
type stagedOp struct {
	idx     int
	full    string
	relPath string
	action  Action
	content string
}

// ApplySet applies a validated multi-file patch with all-or-nothing
// semantics.
//
// # Description
//
// Runs in two phases. The stage phase reads every target and computes the
// patched content in memory; any conflict, missing target, or read error
// anywhere in the set aborts before a single byte is written, so a
// half-applied set cannot exist. The commit phase then writes every staged
// mutation while per-path locks are held, which also serializes this set
// against any concurrent apply touching the same files.
//
// Creation patches require the target to be absent and deletion patches
// require it to be present; a path may appear only once per set.
//
// # Inputs
//
//   - ctx: Context for cancellation, checked between files.
//   - workspaceID: Workspace identifier.
//   - files: Parsed patch files from a successful validation.
//   - opts: Dry-run and backup switches.
//
// # Outputs
//
//   - *SetResult: Per-file outcomes; Applied=true only after a full commit.
//   - error: Non-nil for caller errors (bad workspace, escaping path,
//     cancellation) and for mid-commit I/O failures.
func (s *Store) ApplySet(ctx context.Context, workspaceID string, files []diff.PatchFile, opts ApplyOptions) (*SetResult, error) {
	result := &SetResult{
		WorkspaceID: workspaceID,
		DryRun:      opts.DryRun,
		Files:       make([]FileOutcome, 0, len(files)),
	}

	// Resolve every target up front. Resolution failures are caller
	// errors, not per-file outcomes: nothing below runs on an unsafe path.
	fulls := make([]string, len(files))
	for i := range files {
		full, err := s.resolve(workspaceID, files[i].TargetPath())
		if err != nil {
			return nil, err
		}
		fulls[i] = full
	}

	unlock := s.lockPaths(fulls)
	defer unlock()

	// Stage phase: compute every mutation without touching disk.
	staged := make([]stagedOp, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	allClean := true
	for i := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, dup := seen[fulls[i]]; dup {
			result.Files = append(result.Files, FileOutcome{
				Path:   files[i].TargetPath(),
				Action: fileAction(&files[i]),
				Error:  "duplicate target in patch set",
			})
			allClean = false
			continue
		}
		seen[fulls[i]] = struct{}{}

		outcome, op := s.stageFile(&files[i], fulls[i])
		op.idx = i
		result.Files = append(result.Files, outcome)
		if !outcome.Success {
			allClean = false
			continue
		}
		staged = append(staged, op)
	}

	if !allClean || opts.DryRun {
		return result, nil
	}

	// Commit phase: every file staged cleanly, write them all.
	for _, op := range staged {
		outcome := &result.Files[op.idx]

		var backup string
		var err error
		switch op.action {
		case ActionDelete:
			backup, err = s.deleteLocked(op.full, op.relPath, opts.MakeBackups)
		default:
			backup, err = s.writeLocked(op.full, op.relPath, []byte(op.content), opts.MakeBackups)
			outcome.BytesWritten = int64(len(op.content))
		}
		outcome.BackupPath = backup

		if err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
			return result, fmt.Errorf("committing %s: %w", op.relPath, err)
		}
	}

	result.Applied = true
	s.logger.Info("Applied patch set",
		"workspace", workspaceID,
		"files", len(files),
		"backups", opts.MakeBackups)
	return result, nil
}

// stageFile computes the mutation for one patch file. The returned op is
// meaningful only when the outcome reports success.
func (s *Store) stageFile(f *diff.PatchFile, full string) (FileOutcome, stagedOp) {
	relPath := f.TargetPath()
	outcome := FileOutcome{Path: relPath, Action: fileAction(f)}

	switch outcome.Action {
	case ActionDelete:
		if _, err := os.Stat(full); err != nil {
			outcome.Error = "target does not exist"
			return outcome, stagedOp{}
		}
		outcome.Success = true
		return outcome, stagedOp{full: full, relPath: relPath, action: ActionDelete}

	case ActionCreate:
		if _, err := os.Stat(full); err == nil {
			outcome.Error = "target already exists"
			return outcome, stagedOp{}
		}
		content := apply.BuildNewFileContent(*f)
		outcome.Success = true
		outcome.AppliedHunks = len(f.Hunks)
		return outcome, stagedOp{full: full, relPath: relPath, action: ActionCreate, content: content}

	default:
		original, err := os.ReadFile(full)
		if err != nil {
			outcome.Error = fmt.Sprintf("reading target: %v", err)
			return outcome, stagedOp{}
		}

		res := apply.ApplyToText(string(original), *f)
		outcome.Success = res.Success
		outcome.AppliedHunks = res.AppliedHunks
		outcome.Conflicts = res.Conflicts
		if !res.Success {
			return outcome, stagedOp{}
		}
		return outcome, stagedOp{full: full, relPath: relPath, action: ActionModify, content: res.Content}
	}
}

func fileAction(f *diff.PatchFile) Action {
	switch {
	case f.IsDeleted:
		return ActionDelete
	case f.IsNew:
		return ActionCreate
	default:
		return ActionModify
	}
}
