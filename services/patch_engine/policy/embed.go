// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	_ "embed"
)

// defaultPolicyYAML holds the raw bytes of default_policy.yaml.
//
// The document is baked into the binary at compile time so every
// deployment carries a known-good policy even when no file is
// configured, and the stock rules cannot be tampered with on the host
// filesystem without rebuilding.
//
//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// LoadEmbedded parses the embedded default policy document.
//
// It exists alongside Default so the YAML document and the Go literal
// can be cross-checked in tests; production callers that just want the
// stock policy should prefer Default, which does no parsing.
func LoadEmbedded() (PathPolicy, error) {
	return Load(defaultPolicyYAML)
}
