// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Patch Engine
// =============================================================================

var (
	// validateResults counts validation outcomes.
	// Labels: result (accepted, rejected), reason (reason code, or "none" when accepted)
	validateResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patch_engine",
		Subsystem: "validate",
		Name:      "results_total",
		Help:      "Validation results by outcome and reason code",
	}, []string{"result", "reason"})

	// validateDuration measures end-to-end validation latency.
	// Labels: result (accepted, rejected)
	validateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patch_engine",
		Subsystem: "validate",
		Name:      "duration_seconds",
		Help:      "Patch validation latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"result"})

	// validatePatchBytes tracks the size distribution of submitted patches.
	validatePatchBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "patch_engine",
		Subsystem: "validate",
		Name:      "patch_bytes",
		Help:      "Size distribution of submitted patches in bytes",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MB
	})

	// validatePatchFiles tracks how many files each patch touches.
	validatePatchFiles = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "patch_engine",
		Subsystem: "validate",
		Name:      "patch_files",
		Help:      "Files touched per validated patch",
		Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
	})

	// applyResults counts apply outcomes.
	// Labels: outcome (applied, conflict, error)
	applyResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patch_engine",
		Subsystem: "apply",
		Name:      "results_total",
		Help:      "Apply results by outcome",
	}, []string{"outcome"})

	// applyDuration measures end-to-end apply latency including file I/O.
	// Labels: outcome (applied, conflict, error)
	applyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patch_engine",
		Subsystem: "apply",
		Name:      "duration_seconds",
		Help:      "Patch apply latency in seconds",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"outcome"})

	// applyConflicts counts conflicts by reason.
	// Labels: reason (invalid_line_range, context_mismatch, multi_file_patch, ...)
	// Callers must pass cardinality-bounded reasons: line-specific context
	// mismatches are recorded under the single reason "context_mismatch".
	applyConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patch_engine",
		Subsystem: "apply",
		Name:      "conflicts_total",
		Help:      "Apply conflicts by reason",
	}, []string{"reason"})

	// applyHunks tracks how many hunks applied cleanly per file.
	applyHunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "patch_engine",
		Subsystem: "apply",
		Name:      "hunks_applied",
		Help:      "Hunks applied cleanly per file",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50},
	})

	// workspaceFileOps counts workspace file operations from committed sets.
	// Labels: action (modify, create, delete), status (success, error)
	workspaceFileOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patch_engine",
		Subsystem: "workspace",
		Name:      "file_operations_total",
		Help:      "Workspace file operations by action and status",
	}, []string{"action", "status"})

	// httpInFlight gauges HTTP requests currently being served.
	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "patch_engine",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served",
	})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordValidation records one validation call.
//
// Inputs:
//
//	accepted - Whether the patch passed all checks.
//	reason - The rejection reason code (ignored when accepted).
//	durationSec - Validation duration in seconds.
//	patchBytes - Raw patch size in bytes.
//	fileCount - Files the patch touches (only meaningful when parsed).
func RecordValidation(accepted bool, reason string, durationSec float64, patchBytes, fileCount int) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	} else {
		reason = ""
	}
	if reason == "" {
		reason = "none"
	}

	validateResults.WithLabelValues(result, reason).Inc()
	validateDuration.WithLabelValues(result).Observe(durationSec)
	validatePatchBytes.Observe(float64(patchBytes))
	if fileCount > 0 {
		validatePatchFiles.Observe(float64(fileCount))
	}
}

// RecordApply records one apply call.
//
// Inputs:
//
//	outcome - "applied", "conflict", or "error".
//	durationSec - Apply duration in seconds.
//	hunksApplied - Hunks that applied cleanly.
func RecordApply(outcome string, durationSec float64, hunksApplied int) {
	applyResults.WithLabelValues(outcome).Inc()
	applyDuration.WithLabelValues(outcome).Observe(durationSec)
	applyHunks.Observe(float64(hunksApplied))
}

// RecordApplyConflict records one conflict.
//
// Inputs:
//
//	reason - Cardinality-bounded conflict reason. Callers collapse
//	    line-specific context mismatches to "context_mismatch".
func RecordApplyConflict(reason string) {
	applyConflicts.WithLabelValues(reason).Inc()
}

// RecordWorkspaceFileOp records one committed workspace file operation.
//
// Inputs:
//
//	action - "modify", "create", or "delete".
//	success - Whether the operation succeeded.
func RecordWorkspaceFileOp(action string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	workspaceFileOps.WithLabelValues(action, status).Inc()
}

// TrackHTTPRequest marks one HTTP request in flight.
//
// Outputs:
//
//	done - Must be called when the request finishes.
func TrackHTTPRequest() (done func()) {
	httpInFlight.Inc()
	return httpInFlight.Dec
}
