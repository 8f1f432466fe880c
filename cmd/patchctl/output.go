// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Patch rejected or conflicted
	CLIExitError    = 2 // Operation failed
)

// OutputConfig controls output behavior.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
	Quiet   bool // No output, exit code only
}

// outputConfig builds the OutputConfig from the global flags.
func outputConfig() OutputConfig {
	return OutputConfig{JSON: jsonOutput, Compact: compactJSON, Quiet: quietMode}
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to stdout.
//
// # Inputs
//
//   - data: The data to encode. Must be JSON-serializable.
//   - compact: If true, output without indentation.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

// OutputResult handles all output scenarios with proper formatting.
//
// # Inputs
//
//   - cfg: Output configuration.
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//   - hasFindings: Whether the patch was rejected or conflicted (for exit code).
//   - err: Any error that occurred.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(cfg OutputConfig, cmd string, start time.Time, data interface{}, hasFindings bool, err error) int {
	if cfg.Quiet {
		if err != nil {
			return CLIExitError
		}
		if hasFindings {
			return CLIExitFindings
		}
		return CLIExitSuccess
	}

	if err != nil {
		OutputError(cfg.JSON, "Command failed", err)
		return CLIExitError
	}

	if cfg.JSON {
		result := CommandResult{
			APIVersion: "1.0",
			Command:    cmd,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    true,
			Data:       data,
		}
		if encErr := OutputJSON(result, cfg.Compact); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return CLIExitError
		}
	}

	if hasFindings {
		return CLIExitFindings
	}
	return CLIExitSuccess
}

// ValidateResult holds patch validation output.
type ValidateResult struct {
	Valid        bool               `json:"valid"`
	ReasonCode   string             `json:"reason_code,omitempty"`
	Files        []PatchFileSummary `json:"files,omitempty"`
	TotalFiles   int                `json:"total_files"`
	TotalHunks   int                `json:"total_hunks"`
	TotalAdded   int                `json:"total_added"`
	TotalRemoved int                `json:"total_removed"`
}

// InspectResult holds patch structure output.
type InspectResult struct {
	Files        []PatchFileSummary `json:"files"`
	TotalFiles   int                `json:"total_files"`
	TotalHunks   int                `json:"total_hunks"`
	TotalAdded   int                `json:"total_added"`
	TotalRemoved int                `json:"total_removed"`
}

// PatchFileSummary represents one file in validate/inspect output.
type PatchFileSummary struct {
	Path    string `json:"path"`
	Action  string `json:"action"`
	Hunks   int    `json:"hunks"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// PolicyDumpResult holds the active policy in JSON form.
type PolicyDumpResult struct {
	Source            string   `json:"source"`
	MinPatchBytes     int      `json:"min_patch_bytes"`
	MaxPatchBytes     int      `json:"max_patch_bytes"`
	MaxFiles          int      `json:"max_files"`
	AllowedExtensions []string `json:"allowed_extensions"`
}

// PathCheckResult holds policy check output.
type PathCheckResult struct {
	Checks     []PathCheck `json:"checks"`
	AllAllowed bool        `json:"all_allowed"`
}

// PathCheck represents a single path verdict.
type PathCheck struct {
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
}
