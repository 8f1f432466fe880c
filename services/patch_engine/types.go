// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch_engine

import (
	"time"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/audit"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/workspace"
)

// ValidateRequest is the request body for POST /api/v1/patch/validate.
type ValidateRequest struct {
	// Patch is the unified diff text to screen. Required.
	Patch string `json:"patch" binding:"required"`

	// WorkspaceID scopes the containment check. Optional: without it the
	// patch is screened against the policy only.
	WorkspaceID string `json:"workspace_id"`
}

// ValidateResponse is the response for POST /api/v1/patch/validate.
//
// The body is returned for acceptances and rejections alike; rejections
// additionally carry a reason-mapped HTTP status.
type ValidateResponse struct {
	// Valid is true when the patch passed every check.
	Valid bool `json:"valid"`

	// Reason is the machine-readable rejection code. Empty when Valid.
	Reason string `json:"reason,omitempty"`

	// Files summarizes each file the patch touches. Populated only when
	// Valid.
	Files []FileSummary `json:"files,omitempty"`
}

// ApplyRequest is the request body for POST /api/v1/patch/apply.
type ApplyRequest struct {
	// WorkspaceID names the workspace to patch. Required.
	WorkspaceID string `json:"workspace_id" binding:"required"`

	// Patch is the unified diff text to apply. Required.
	Patch string `json:"patch" binding:"required"`

	// DryRun stages every file and reports outcomes without writing.
	DryRun bool `json:"dry_run"`

	// MakeBackup copies each touched file aside before mutating it.
	MakeBackup bool `json:"make_backup"`
}

// ApplyResponse is the response for POST /api/v1/patch/apply.
type ApplyResponse struct {
	// WorkspaceID echoes the request.
	WorkspaceID string `json:"workspace_id"`

	// Applied is true when every file was written. False for dry runs
	// and for conflicted sets, which write nothing.
	Applied bool `json:"applied"`

	// DryRun echoes the request option.
	DryRun bool `json:"dry_run"`

	// Files reports per-file outcomes in patch order.
	Files []workspace.FileOutcome `json:"files"`
}

// InspectRequest is the request body for POST /api/v1/patch/inspect.
type InspectRequest struct {
	// Patch is the unified diff text to summarize. Required.
	Patch string `json:"patch" binding:"required"`
}

// InspectResponse is the response for POST /api/v1/patch/inspect.
type InspectResponse struct {
	// Files summarizes each file section found in the patch.
	Files []FileSummary `json:"files"`

	// TotalHunks is the hunk count across all files.
	TotalHunks int `json:"total_hunks"`

	// TotalAdded is the added-line count across all files.
	TotalAdded int `json:"total_added"`

	// TotalRemoved is the removed-line count across all files.
	TotalRemoved int `json:"total_removed"`
}

// FileSummary is the structural summary of one file within a patch.
type FileSummary struct {
	// Path is the file's target path (old path for deletions).
	Path string `json:"path"`

	// Action is what the patch does to the target: "create", "modify",
	// or "delete".
	Action string `json:"action"`

	// Hunks is the number of change regions.
	Hunks int `json:"hunks"`

	// Added is the number of added lines.
	Added int `json:"added"`

	// Removed is the number of removed lines.
	Removed int `json:"removed"`
}

// PolicyResponse is the response for GET /api/v1/policy.
type PolicyResponse struct {
	// MinPatchBytes is the minimum trimmed patch size.
	MinPatchBytes int `json:"min_patch_bytes"`

	// MaxPatchBytes is the raw size ceiling enforced before parsing.
	MaxPatchBytes int `json:"max_patch_bytes"`

	// MaxFiles caps how many files one patch may touch.
	MaxFiles int `json:"max_files"`

	// AllowedExtensions lists permitted target extensions.
	AllowedExtensions []string `json:"allowed_extensions"`
}

// AuditListRequest is the query params for GET /api/v1/audit.
type AuditListRequest struct {
	// WorkspaceID scopes the listing. Optional: empty lists events that
	// were recorded without a workspace.
	WorkspaceID string `form:"workspace_id"`

	// Limit caps the number of events returned. Default: 50.
	Limit int `form:"limit"`
}

// AuditListResponse is the response for GET /api/v1/audit.
type AuditListResponse struct {
	// WorkspaceID echoes the request.
	WorkspaceID string `json:"workspace_id"`

	// Count is the number of events returned.
	Count int `json:"count"`

	// Events holds the audit events, newest first.
	Events []AuditEvent `json:"events"`
}

// AuditEvent is the wire form of one audit journal entry.
type AuditEvent struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Time is when the event was recorded, RFC 3339 UTC.
	Time string `json:"time"`

	// WorkspaceID scopes the event.
	WorkspaceID string `json:"workspace_id,omitempty"`

	// Operation is the engine entry point ("validate" or "apply").
	Operation string `json:"operation"`

	// Outcome is the terminal result.
	Outcome string `json:"outcome"`

	// Reason is the rejection or conflict reason code, if any.
	Reason string `json:"reason,omitempty"`

	// FilesHash is the SHA-256 of the sorted target file list.
	FilesHash string `json:"files_hash,omitempty"`

	// FileCount is how many files the patch touched.
	FileCount int `json:"file_count"`

	// AppliedHunks is how many hunks applied cleanly.
	AppliedHunks int `json:"applied_hunks,omitempty"`

	// ConflictCount is how many conflicts were reported.
	ConflictCount int `json:"conflict_count,omitempty"`

	// PatchBytes is the raw patch size.
	PatchBytes int `json:"patch_bytes,omitempty"`

	// DryRun marks an apply that wrote nothing.
	DryRun bool `json:"dry_run,omitempty"`
}

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /readyz.
type ReadyResponse struct {
	// Ready is true if the service is ready to accept requests.
	Ready bool `json:"ready"`

	// PolicyOK is true if a normalized policy is loaded.
	PolicyOK bool `json:"policy_ok"`

	// AuditOK is true if the audit journal answers reads.
	AuditOK bool `json:"audit_ok"`

	// WorkspaceOK is true if the workspace base directory is reachable.
	WorkspaceOK bool `json:"workspace_ok"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// FileSummaryFromPatch builds the wire summary for one parsed patch file.
func FileSummaryFromPatch(f *diff.PatchFile) FileSummary {
	action := "modify"
	switch {
	case f.IsDeleted:
		action = "delete"
	case f.IsNew:
		action = "create"
	}

	added, removed := f.LineStats()
	return FileSummary{
		Path:    f.TargetPath(),
		Action:  action,
		Hunks:   len(f.Hunks),
		Added:   added,
		Removed: removed,
	}
}

// fileSummaries converts a parsed file list into wire summaries.
func fileSummaries(files []diff.PatchFile) []FileSummary {
	if len(files) == 0 {
		return nil
	}
	summaries := make([]FileSummary, len(files))
	for i := range files {
		summaries[i] = FileSummaryFromPatch(&files[i])
	}
	return summaries
}

// AuditEventFromRecord converts a journal event to its wire form.
func AuditEventFromRecord(e *audit.Event) AuditEvent {
	return AuditEvent{
		ID:            e.ID,
		Time:          e.Time.UTC().Format(time.RFC3339Nano),
		WorkspaceID:   e.WorkspaceID,
		Operation:     string(e.Operation),
		Outcome:       string(e.Outcome),
		Reason:        e.Reason,
		FilesHash:     e.FilesHash,
		FileCount:     e.FileCount,
		AppliedHunks:  e.AppliedHunks,
		ConflictCount: e.ConflictCount,
		PatchBytes:    e.PatchBytes,
		DryRun:        e.DryRun,
	}
}
