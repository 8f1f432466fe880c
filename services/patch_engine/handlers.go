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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/audit"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/telemetry"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/validation"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/workspace"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServiceVersion is the patch engine service version.
const ServiceVersion = "1.0.0"

// Handlers contains the HTTP handlers for the patch engine.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleValidate handles POST /api/v1/patch/validate.
//
// Description:
//
//	Screens a unified diff against the active policy. Acceptances and
//	rejections both come back as a verdict body; rejections carry the
//	reason-mapped status so clients can branch on the status alone.
//
// Request Body:
//
//	ValidateRequest
//
// Response:
//
//	200 OK: ValidateResponse (valid=true)
//	400 Bad Request: ValidateResponse (malformed patch, bad paths) or
//	  validation error
//	403 Forbidden: ValidateResponse (traversal, containment, extension)
//	413 Request Entity Too Large: ValidateResponse (size cap)
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleValidate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithRequest(c.Request.Context(),
		slog.With("handler", "HandleValidate"), requestID)

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Validating patch",
		"workspace_id", req.WorkspaceID,
		"patch_bytes", len(req.Patch))

	verdict, err := h.svc.Validate(c.Request.Context(), req.WorkspaceID, req.Patch)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "VALIDATE_FAILED"

		if errors.Is(err, workspace.ErrInvalidWorkspaceID) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_WORKSPACE_ID"
		}

		logger.Error("Validate failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	resp := ValidateResponse{
		Valid:  verdict.Valid,
		Reason: string(verdict.Reason),
	}
	if !verdict.Valid {
		logger.Info("Patch rejected", "reason", verdict.Reason)
		c.JSON(statusForReason(verdict.Reason), resp)
		return
	}

	resp.Files = fileSummaries(verdict.ParsedFiles)
	logger.Info("Patch accepted", "files", len(resp.Files))
	c.JSON(http.StatusOK, resp)
}

// HandleApply handles POST /api/v1/patch/apply.
//
// Description:
//
//	Validates a patch and applies it to the named workspace. The
//	workspace store stages every file in memory first, so a conflicted
//	response means nothing was written. Dry runs take the same path and
//	stop short of persistence.
//
// Request Body:
//
//	ApplyRequest
//
// Response:
//
//	200 OK: ApplyResponse (every file applied, or clean dry run)
//	400 Bad Request: Validation rejection or bad workspace id
//	403 Forbidden: Traversal, containment, or extension rejection
//	404 Not Found: Workspace does not exist
//	409 Conflict: ApplyResponse with per-file conflicts, nothing written
//	413 Request Entity Too Large: Size cap rejection
//	504 Gateway Timeout: Apply exceeded the configured timeout
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleApply(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithRequest(c.Request.Context(),
		slog.With("handler", "HandleApply"), requestID)

	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Applying patch",
		"workspace_id", req.WorkspaceID,
		"patch_bytes", len(req.Patch),
		"dry_run", req.DryRun)

	result, verdict, err := h.svc.Apply(c.Request.Context(), req.WorkspaceID, req.Patch,
		workspace.ApplyOptions{
			DryRun:      req.DryRun,
			MakeBackups: req.MakeBackup,
		})
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "APPLY_FAILED"

		if errors.Is(err, workspace.ErrInvalidWorkspaceID) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_WORKSPACE_ID"
		} else if errors.Is(err, workspace.ErrWorkspaceNotFound) {
			statusCode = http.StatusNotFound
			errCode = "WORKSPACE_NOT_FOUND"
		} else if errors.Is(err, workspace.ErrPathEscape) {
			statusCode = http.StatusForbidden
			errCode = "PATH_ESCAPE"
		} else if errors.Is(err, context.DeadlineExceeded) {
			statusCode = http.StatusGatewayTimeout
			errCode = "APPLY_TIMEOUT"
		}

		logger.Error("Apply failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	if !verdict.Valid {
		logger.Info("Patch rejected", "reason", verdict.Reason)
		c.JSON(statusForReason(verdict.Reason), ErrorResponse{
			Error: "Patch rejected by validation",
			Code:  string(verdict.Reason),
		})
		return
	}

	resp := ApplyResponse{
		WorkspaceID: result.WorkspaceID,
		Applied:     result.Applied,
		DryRun:      result.DryRun,
		Files:       result.Files,
	}

	if !result.Clean() {
		logger.Info("Patch conflicted", "files", len(result.Files))
		c.JSON(http.StatusConflict, resp)
		return
	}

	logger.Info("Patch applied",
		"files", len(result.Files),
		"dry_run", result.DryRun)
	c.JSON(http.StatusOK, resp)
}

// HandleInspect handles POST /api/v1/patch/inspect.
//
// Description:
//
//	Parses a patch and returns its structural summary without screening
//	or applying it. Useful for previewing what a patch would touch.
//
// Request Body:
//
//	InspectRequest
//
// Response:
//
//	200 OK: InspectResponse
//	400 Bad Request: Malformed diff text
//	413 Request Entity Too Large: Size cap
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleInspect(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithRequest(c.Request.Context(),
		slog.With("handler", "HandleInspect"), requestID)

	var req InspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	files, err := h.svc.Inspect(c.Request.Context(), req.Patch)
	if err != nil {
		statusCode := http.StatusBadRequest
		errCode := "INVALID_DIFF_FORMAT"

		if errors.Is(err, ErrPatchTooLarge) {
			statusCode = http.StatusRequestEntityTooLarge
			errCode = "PATCH_TOO_LARGE"
		}

		logger.Warn("Inspect failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	resp := InspectResponse{Files: fileSummaries(files)}
	for i := range resp.Files {
		resp.TotalHunks += resp.Files[i].Hunks
		resp.TotalAdded += resp.Files[i].Added
		resp.TotalRemoved += resp.Files[i].Removed
	}

	logger.Info("Patch inspected",
		"files", len(resp.Files),
		"hunks", resp.TotalHunks)
	c.JSON(http.StatusOK, resp)
}

// HandlePolicy handles GET /api/v1/policy.
//
// Description:
//
//	Returns the active policy snapshot. With hot reload configured the
//	response reflects the most recent successful load.
//
// Response:
//
//	200 OK: PolicyResponse
func (h *Handlers) HandlePolicy(c *gin.Context) {
	pol := h.svc.PolicySnapshot()
	c.JSON(http.StatusOK, PolicyResponse{
		MinPatchBytes:     pol.MinPatchBytes,
		MaxPatchBytes:     pol.MaxPatchBytes,
		MaxFiles:          pol.MaxFiles,
		AllowedExtensions: pol.AllowedExtensions,
	})
}

// HandleAuditList handles GET /api/v1/audit.
//
// Description:
//
//	Lists recent audit events for a workspace, newest first. Events
//	carry reason codes and file-list hashes only; patch content is
//	never journaled and so can never be served here.
//
// Query Parameters:
//
//	workspace_id: Workspace scope (optional)
//	limit: Maximum number of events (optional, default 50)
//
// Response:
//
//	200 OK: AuditListResponse
//	503 Service Unavailable: Audit journal closed
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAuditList(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithRequest(c.Request.Context(),
		slog.With("handler", "HandleAuditList"), requestID)

	var req AuditListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	events, err := h.svc.AuditEvents(c.Request.Context(), req.WorkspaceID, req.Limit)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "AUDIT_LIST_FAILED"

		if errors.Is(err, audit.ErrRecorderClosed) {
			statusCode = http.StatusServiceUnavailable
			errCode = "AUDIT_UNAVAILABLE"
		}

		logger.Error("Audit list failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	resp := AuditListResponse{
		WorkspaceID: req.WorkspaceID,
		Count:       len(events),
		Events:      make([]AuditEvent, len(events)),
	}
	for i := range events {
		resp.Events[i] = AuditEventFromRecord(&events[i])
	}

	logger.Info("Listed audit events",
		"workspace_id", req.WorkspaceID,
		"count", len(events))
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /healthz.
//
// Description:
//
//	Returns the health status of the service. Always returns 200 if running.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /readyz.
//
// Description:
//
//	Returns the readiness status of the service including dependency
//	checks: the policy snapshot, the audit journal, and the workspace
//	base directory.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true) - Service is fully ready
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := h.svc.Ready(c.Request.Context())
	if !resp.Ready {
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// statusForReason maps a rejection code to its HTTP status. Containment
// and allowlist violations are forbidden rather than malformed, and the
// size cap gets its dedicated status so clients know to shrink and retry.
func statusForReason(reason validation.ReasonCode) int {
	switch reason {
	case validation.ReasonPathTraversalSuspected,
		validation.ReasonPathOutsideWorkspace,
		validation.ReasonExtensionNotAllowed:
		return http.StatusForbidden
	case validation.ReasonPatchTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadRequest
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
