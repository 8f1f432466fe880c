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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// policySource names where the active policy came from, for output.
func policySource() string {
	if policyPath != "" {
		return policyPath
	}
	return "embedded"
}

// dumpPolicy prints the active screening policy.
func dumpPolicy(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := outputConfig()

	pol, err := loadPolicy()
	if err != nil {
		os.Exit(OutputResult(cfg, "policy dump", start, nil, false, err))
	}

	data := PolicyDumpResult{
		Source:            policySource(),
		MinPatchBytes:     pol.MinPatchBytes,
		MaxPatchBytes:     pol.MaxPatchBytes,
		MaxFiles:          pol.MaxFiles,
		AllowedExtensions: pol.AllowedExtensions,
	}

	if !cfg.JSON && !cfg.Quiet {
		fmt.Printf("# policy source: %s\n", data.Source)
		raw, err := yaml.Marshal(pol)
		if err != nil {
			os.Exit(OutputResult(cfg, "policy dump", start, nil, false, err))
		}
		fmt.Print(string(raw))
	}
	os.Exit(OutputResult(cfg, "policy dump", start, data, false, nil))
}

// runCheckPath tests file paths against the policy allowlist.
func runCheckPath(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := outputConfig()

	pol, err := loadPolicy()
	if err != nil {
		os.Exit(OutputResult(cfg, "policy check", start, nil, false, err))
	}

	data := PathCheckResult{AllAllowed: true}
	for _, path := range args {
		allowed := pol.ExtensionAllowed(path)
		if !allowed {
			data.AllAllowed = false
		}
		data.Checks = append(data.Checks, PathCheck{Path: path, Allowed: allowed})
	}

	if !cfg.JSON && !cfg.Quiet {
		for _, c := range data.Checks {
			verdict := "allowed"
			if !c.Allowed {
				verdict = "blocked"
			}
			fmt.Printf("%-8s %s\n", verdict, c.Path)
		}
	}
	os.Exit(OutputResult(cfg, "policy check", start, data, !data.AllAllowed, nil))
}
