// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch_engine provides the patch HTTP service for workspace
// editing.
//
// The service exposes endpoints for:
//   - Screening unified diffs against the path policy
//   - Applying validated patches to workspace files
//   - Inspecting patch structure without applying
//   - Serving the active policy and the audit trail
package patch_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/apply"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/audit"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/diff"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/policy"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/telemetry"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/validation"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/workspace"
)

var (
	// ErrPatchTooLarge means the patch text exceeds the policy size cap.
	ErrPatchTooLarge = errors.New("patch exceeds policy size limit")

	// ErrNoPatchFiles means the patch text parsed to zero file sections.
	ErrNoPatchFiles = errors.New("patch contains no file sections")
)

// ServiceConfig configures the patch engine service.
type ServiceConfig struct {
	// WorkspaceDir is the base directory holding one subdirectory per
	// workspace. Must be an absolute path to an existing directory.
	WorkspaceDir string

	// PolicyPath is the policy YAML file. Empty serves the stock policy
	// with no hot reload.
	PolicyPath string

	// AuditPath is the audit journal directory. Empty keeps the journal
	// in memory, which suits tests and ephemeral deployments.
	AuditPath string

	// AuditSyncWrites forces an fsync per audit write.
	// Default: true
	AuditSyncWrites bool

	// ApplyTimeout is the maximum time allowed for one apply operation.
	// Default: 30s
	ApplyTimeout time.Duration

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		AuditSyncWrites: true,
		ApplyTimeout:    30 * time.Second,
	}
}

// Service is the patch engine service.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Multiple goroutines can call
//	any combination of methods simultaneously; per-file serialization
//	happens inside the workspace store.
type Service struct {
	config   ServiceConfig
	policies *policy.Provider
	store    *workspace.Store
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewService creates a new patch engine service.
//
// Description:
//
//	Wires the policy provider, the workspace store, and the audit
//	recorder from one configuration. Construction fails fast: a broken
//	policy file, a missing workspace directory, or an unopenable audit
//	journal should stop the process before it takes traffic.
//
// Inputs:
//
//	config - Service configuration
//
// Outputs:
//
//	*Service - The configured service
//	error - Non-nil if any collaborator failed to construct
func NewService(config ServiceConfig) (*Service, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "patch_engine")

	policies, err := policy.NewProvider(config.PolicyPath, logger)
	if err != nil {
		return nil, fmt.Errorf("creating policy provider: %w", err)
	}

	storeConfig := workspace.DefaultConfig(config.WorkspaceDir)
	storeConfig.Logger = logger
	store, err := workspace.NewStore(storeConfig)
	if err != nil {
		policies.Close()
		return nil, fmt.Errorf("creating workspace store: %w", err)
	}

	auditConfig := audit.DefaultRecorderConfig()
	auditConfig.Path = config.AuditPath
	auditConfig.InMemory = config.AuditPath == ""
	auditConfig.SyncWrites = config.AuditSyncWrites
	auditConfig.Logger = logger
	recorder, err := audit.NewRecorder(auditConfig)
	if err != nil {
		policies.Close()
		return nil, fmt.Errorf("creating audit recorder: %w", err)
	}

	logger.Info("Patch engine service ready",
		"workspace_dir", config.WorkspaceDir,
		"policy_path", config.PolicyPath,
		"audit_in_memory", config.AuditPath == "")

	return &Service{
		config:   config,
		policies: policies,
		store:    store,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Validate screens a unified diff against the active policy.
//
// Description:
//
//	Builds a validator from the current policy snapshot and runs the
//	fixed screening pipeline. When a workspace is named, its directory
//	anchors the containment check; the directory does not have to exist
//	because containment is pure path arithmetic. Every verdict is
//	written to the audit journal and the metrics registry.
//
// Inputs:
//
//	ctx - Context for cancellation
//	workspaceID - Workspace scope; empty skips the containment check
//	patchText - The unified diff text
//
// Outputs:
//
//	*validation.ValidationResult - The verdict; rejections are results,
//	                               not errors
//	error - Non-nil only for caller errors (bad workspace id)
//
// Errors:
//
//	workspace.ErrInvalidWorkspaceID - Workspace id fails naming rules
func (s *Service) Validate(ctx context.Context, workspaceID, patchText string) (*validation.ValidationResult, error) {
	ctx, span := otel.Tracer("patch_engine").Start(ctx, "service.Validate",
		trace.WithAttributes(
			attribute.String("workspace_id", workspaceID),
			attribute.Int("patch_bytes", len(patchText)),
		),
	)
	defer span.End()

	verdict, err := s.screen(workspaceID, patchText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("valid", verdict.Valid),
		attribute.String("reason", string(verdict.Reason)),
	)

	event := audit.Event{
		WorkspaceID: workspaceID,
		Operation:   audit.OperationValidate,
		Outcome:     audit.OutcomeAccepted,
		PatchBytes:  len(patchText),
	}
	if verdict.Valid {
		event.FilesHash = audit.HashFileList(verdict.NormalizedFiles)
		event.FileCount = len(verdict.NormalizedFiles)
	} else {
		event.Outcome = audit.OutcomeRejected
		event.Reason = string(verdict.Reason)
	}
	s.record(ctx, event)

	return verdict, nil
}

// Apply validates a patch and applies it to workspace files.
//
// Description:
//
//	Runs the full screening pipeline first; a rejected patch comes back
//	as its verdict with no apply attempted. A valid patch goes to the
//	workspace store, which stages every file in memory and writes only
//	complete sets, so conflicts surface in the per-file outcomes and
//	never leave a half-patched workspace behind.
//
// Inputs:
//
//	ctx - Context for cancellation
//	workspaceID - Workspace to patch; its directory must exist
//	patchText - The unified diff text
//	opts - Dry-run and backup switches
//
// Outputs:
//
//	*workspace.SetResult - Per-file outcomes; nil when the patch was
//	                       rejected at screening
//	*validation.ValidationResult - The screening verdict; always set
//	                               when error is nil
//	error - Non-nil for caller errors and mid-commit I/O failures
//
// Errors:
//
//	workspace.ErrInvalidWorkspaceID - Workspace id fails naming rules
//	workspace.ErrWorkspaceNotFound - Workspace directory does not exist
//	context.DeadlineExceeded - Apply exceeded the configured timeout
func (s *Service) Apply(ctx context.Context, workspaceID, patchText string, opts workspace.ApplyOptions) (*workspace.SetResult, *validation.ValidationResult, error) {
	ctx, span := otel.Tracer("patch_engine").Start(ctx, "service.Apply",
		trace.WithAttributes(
			attribute.String("workspace_id", workspaceID),
			attribute.Int("patch_bytes", len(patchText)),
			attribute.Bool("dry_run", opts.DryRun),
		),
	)
	defer span.End()

	if s.config.ApplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ApplyTimeout)
		defer cancel()
	}

	start := time.Now()

	verdict, err := s.screen(workspaceID, patchText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	if !verdict.Valid {
		span.SetAttributes(attribute.String("reason", string(verdict.Reason)))
		s.record(ctx, audit.Event{
			WorkspaceID: workspaceID,
			Operation:   audit.OperationApply,
			Outcome:     audit.OutcomeRejected,
			Reason:      string(verdict.Reason),
			PatchBytes:  len(patchText),
			DryRun:      opts.DryRun,
		})
		return nil, verdict, nil
	}

	result, err := s.store.ApplySet(ctx, workspaceID, verdict.ParsedFiles, opts)
	if err != nil {
		telemetry.RecordApply(string(audit.OutcomeError), time.Since(start).Seconds(), 0)
		s.record(ctx, s.applyEvent(workspaceID, len(patchText), verdict, result, opts, audit.OutcomeError))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, verdict, err
	}

	outcome := audit.OutcomeApplied
	if !result.Clean() {
		outcome = audit.OutcomeConflict
	}

	appliedHunks, conflictCount := tallyOutcomes(result)
	for i := range result.Files {
		fo := &result.Files[i]
		telemetry.RecordWorkspaceFileOp(string(fo.Action), fo.Success)
		for _, conflict := range fo.Conflicts {
			telemetry.RecordApplyConflict(metricConflictReason(conflict.Reason))
		}
	}
	telemetry.RecordApply(string(outcome), time.Since(start).Seconds(), appliedHunks)
	s.record(ctx, s.applyEvent(workspaceID, len(patchText), verdict, result, opts, outcome))

	span.SetAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Int("applied_hunks", appliedHunks),
		attribute.Int("conflicts", conflictCount),
	)

	telemetry.LoggerWithWorkspace(ctx, s.logger, workspaceID).Info("Apply finished",
		"outcome", outcome,
		"files", len(result.Files),
		"applied_hunks", appliedHunks,
		"conflicts", conflictCount,
		"dry_run", opts.DryRun,
		"duration_ms", time.Since(start).Milliseconds())

	return result, verdict, nil
}

// Inspect parses a patch and reports its structure without applying it.
//
// Description:
//
//	Parse-only entry point for previews. The active policy's size cap
//	still applies, so an oversized body cannot buy unbounded parse work.
//	Inspection is not audited: it neither screens nor mutates anything.
//
// Inputs:
//
//	ctx - Context for cancellation
//	patchText - The unified diff text
//
// Outputs:
//
//	[]diff.PatchFile - Parsed file sections in patch order
//	error - ErrPatchTooLarge, ErrNoPatchFiles, or a parse error
func (s *Service) Inspect(ctx context.Context, patchText string) ([]diff.PatchFile, error) {
	_, span := otel.Tracer("patch_engine").Start(ctx, "service.Inspect",
		trace.WithAttributes(attribute.Int("patch_bytes", len(patchText))),
	)
	defer span.End()

	if maxBytes := s.policies.Current().MaxPatchBytes; len(patchText) > maxBytes {
		span.SetStatus(codes.Error, "patch too large")
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPatchTooLarge, len(patchText), maxBytes)
	}

	files, err := validation.ParseUnifiedDiff(patchText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(files) == 0 {
		span.SetStatus(codes.Error, "no file sections")
		return nil, ErrNoPatchFiles
	}

	span.SetAttributes(attribute.Int("files", len(files)))
	return files, nil
}

// PolicySnapshot returns the active path policy.
func (s *Service) PolicySnapshot() policy.PathPolicy {
	return s.policies.Current()
}

// AuditEvents returns recent audit events for a workspace, newest first.
func (s *Service) AuditEvents(ctx context.Context, workspaceID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.recorder.List(ctx, workspaceID, limit)
}

// Ready reports per-dependency readiness.
//
// Description:
//
//	Checks that the policy snapshot is normalized, the audit journal
//	answers a read, and the workspace base directory is still a
//	directory. Cheap enough for a kubelet probe interval.
func (s *Service) Ready(ctx context.Context) ReadyResponse {
	resp := ReadyResponse{
		PolicyOK: len(s.policies.Current().AllowedExtensions) > 0,
	}

	if _, err := s.recorder.List(ctx, "readyz", 1); err == nil {
		resp.AuditOK = true
	}

	if info, err := os.Stat(s.config.WorkspaceDir); err == nil && info.IsDir() {
		resp.WorkspaceOK = true
	}

	resp.Ready = resp.PolicyOK && resp.AuditOK && resp.WorkspaceOK
	return resp
}

// Close releases the policy watcher and the audit journal.
func (s *Service) Close() error {
	var errs []error
	if err := s.policies.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing policy provider: %w", err))
	}
	if err := s.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing audit recorder: %w", err))
	}
	return errors.Join(errs...)
}

// screen runs the validation pipeline against the active policy and
// records the validation metrics. Audit events belong to the callers,
// which know whether the screening served a validate or an apply.
func (s *Service) screen(workspaceID, patchText string) (*validation.ValidationResult, error) {
	workspaceRoot := ""
	if workspaceID != "" {
		dir, err := s.store.WorkspaceDir(workspaceID)
		if err != nil {
			return nil, err
		}
		workspaceRoot = dir
	}

	validator, err := validation.NewValidator(s.policies.Current())
	if err != nil {
		// The provider normalizes every policy it serves; reaching this
		// means the snapshot was corrupted in flight.
		return nil, fmt.Errorf("building validator: %w", err)
	}

	start := time.Now()
	verdict := validator.Validate(patchText, workspaceRoot)
	telemetry.RecordValidation(verdict.Valid, string(verdict.Reason),
		time.Since(start).Seconds(), len(patchText), len(verdict.NormalizedFiles))

	if !verdict.Valid {
		s.logger.Warn("Patch rejected",
			"workspace_id", workspaceID,
			"reason", verdict.Reason,
			"patch_bytes", len(patchText))
	}
	return verdict, nil
}

// applyEvent builds the audit event for one apply call. Reasons stay
// within the closed code set: free-text stage errors would leak paths
// into the journal.
func (s *Service) applyEvent(workspaceID string, patchBytes int, verdict *validation.ValidationResult, result *workspace.SetResult, opts workspace.ApplyOptions, outcome audit.Outcome) audit.Event {
	event := audit.Event{
		WorkspaceID: workspaceID,
		Operation:   audit.OperationApply,
		Outcome:     outcome,
		FilesHash:   audit.HashFileList(verdict.NormalizedFiles),
		FileCount:   len(verdict.NormalizedFiles),
		PatchBytes:  patchBytes,
		DryRun:      opts.DryRun,
	}

	switch outcome {
	case audit.OutcomeConflict:
		event.Reason = firstConflictReason(result)
		if event.Reason == "" {
			event.Reason = "stage_failed"
		}
	case audit.OutcomeError:
		event.Reason = "apply_failed"
	}

	if result != nil {
		event.AppliedHunks, event.ConflictCount = tallyOutcomes(result)
	}
	return event
}

// record writes one audit event. The operation it describes already
// happened; a journal failure is logged, never surfaced to the client.
func (s *Service) record(ctx context.Context, event audit.Event) {
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Warn("Audit record failed",
			"operation", event.Operation,
			"error", err)
	}
}

// tallyOutcomes sums applied hunks and reported conflicts across files.
func tallyOutcomes(result *workspace.SetResult) (appliedHunks, conflicts int) {
	for i := range result.Files {
		appliedHunks += result.Files[i].AppliedHunks
		conflicts += len(result.Files[i].Conflicts)
	}
	return
}

// firstConflictReason returns the first reported conflict code, in file
// order, or empty when every failure was a stage error.
func firstConflictReason(result *workspace.SetResult) string {
	if result == nil {
		return ""
	}
	for i := range result.Files {
		if len(result.Files[i].Conflicts) > 0 {
			return string(result.Files[i].Conflicts[0].Reason)
		}
	}
	return ""
}

// metricConflictReason collapses per-line mismatch reasons to a single
// label so the conflict counter keeps bounded cardinality. The audit
// journal keeps the exact line-level code.
func metricConflictReason(reason apply.ConflictReason) string {
	if apply.IsContextMismatch(reason) {
		return "context_mismatch"
	}
	return string(reason)
}
