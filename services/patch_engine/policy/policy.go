// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy defines the security policy a patch is validated
// against.
//
// # Description
//
// PathPolicy is a plain value: size ceilings, a file-count cap, and an
// extension allowlist. It is injected into the validator explicitly —
// never held as package-global state — so one process can run different
// policies for different workspaces at the same time. The Provider in
// watcher.go layers file loading and hot reload on top of the value
// type without changing that contract.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Policy Value
// =============================================================================

// PathPolicy is the read-only rule set applied to incoming patches.
//
// # Description
//
// Limits bound the work spent on adversarial input before any parsing
// happens; the allowlist bounds what kind of file a patch may touch.
// All fields are plain data so a PathPolicy can be copied, compared,
// and shared across goroutines freely.
//
// # Thread Safety
//
// Immutable after Normalize; safe for concurrent reads.
type PathPolicy struct {
	// MinPatchBytes is the minimum trimmed patch size. Anything
	// shorter cannot be a well-formed diff.
	MinPatchBytes int `yaml:"min_patch_bytes" validate:"min=1"`

	// MaxPatchBytes is the raw size ceiling enforced before parsing.
	MaxPatchBytes int `yaml:"max_patch_bytes" validate:"min=1"`

	// MaxFiles caps how many files one patch may touch.
	MaxFiles int `yaml:"max_files" validate:"min=1"`

	// AllowedExtensions lists permitted target extensions, lowercase
	// with a leading dot. Files without an extension are always
	// permitted (Makefile, Dockerfile, LICENSE).
	AllowedExtensions []string `yaml:"allowed_extensions" validate:"required,min=1"`

	// allowed is the lookup set built from AllowedExtensions.
	allowed map[string]struct{}
}

// structValidator checks the declarative field constraints above.
var structValidator = validator.New()

// Default returns the stock policy. The same values ship as the
// embedded YAML document; TestLoadEmbeddedMatchesDefault keeps the two
// in sync.
func Default() PathPolicy {
	p := PathPolicy{
		MinPatchBytes: 10,
		MaxPatchBytes: 1_000_000,
		MaxFiles:      100,
		AllowedExtensions: []string{
			".bash", ".c", ".cc", ".cfg", ".conf", ".cpp", ".cs", ".css",
			".env", ".go", ".graphql", ".h", ".hpp", ".html", ".ini",
			".java", ".js", ".json", ".jsx", ".kt", ".less", ".md",
			".mod", ".php", ".proto", ".py", ".rb", ".rs", ".rst",
			".scala", ".scss", ".sh", ".sql", ".sum", ".svelte", ".swift",
			".toml", ".tmpl", ".ts", ".tsx", ".txt", ".vue", ".xml",
			".yaml", ".yml", ".zsh",
		},
	}
	if err := p.Normalize(); err != nil {
		// The literal above is build-time data; failing to normalize
		// it is a programmer error, not an input error.
		panic(fmt.Sprintf("policy: default policy invalid: %v", err))
	}
	return p
}

// Normalize validates the policy and builds the extension lookup set.
//
// # Description
//
// Entries are lowercased and must already carry their leading dot; a
// malformed entry (empty, missing dot, embedded separator) fails the
// whole policy rather than being silently skipped, because a typo in an
// allowlist is a security bug.
//
// # Outputs
//
//   - error: non-nil if any limit or allowlist entry is invalid.
func (p *PathPolicy) Normalize() error {
	if err := structValidator.Struct(p); err != nil {
		return fmt.Errorf("policy limits invalid: %w", err)
	}
	if p.MinPatchBytes >= p.MaxPatchBytes {
		return fmt.Errorf("policy limits invalid: min_patch_bytes %d >= max_patch_bytes %d",
			p.MinPatchBytes, p.MaxPatchBytes)
	}

	p.allowed = make(map[string]struct{}, len(p.AllowedExtensions))
	for i, raw := range p.AllowedExtensions {
		ext := strings.ToLower(strings.TrimSpace(raw))
		if ext == "" || !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("allowed_extensions[%d]: %q is not a dotted extension", i, raw)
		}
		if strings.ContainsAny(ext, "/\\") {
			return fmt.Errorf("allowed_extensions[%d]: %q contains a path separator", i, raw)
		}
		p.allowed[ext] = struct{}{}
	}
	return nil
}

// ExtensionAllowed reports whether the policy permits a target path's
// extension. Matching is case-insensitive. Paths without an extension —
// including pure dotfiles like .gitignore, whose name is nothing but
// the "extension" — are permitted.
func (p PathPolicy) ExtensionAllowed(path string) bool {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return true
	}
	if p.allowed == nil {
		// Zero-value policy permits nothing with an extension; callers
		// are expected to start from Default() or a loaded file.
		return false
	}
	_, ok := p.allowed[strings.ToLower(ext)]
	return ok
}

// =============================================================================
// Loading
// =============================================================================

// LoadFile reads and normalizes a policy document from disk.
//
// # Inputs
//
//   - path: YAML file with the PathPolicy fields.
//
// # Outputs
//
//   - PathPolicy: ready to use, lookup set built.
//   - error: non-nil on read, unmarshal, or normalization failure.
func LoadFile(path string) (PathPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PathPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	return Load(raw)
}

// Load unmarshals and normalizes a policy document.
func Load(raw []byte) (PathPolicy, error) {
	var p PathPolicy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return PathPolicy{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	if err := p.Normalize(); err != nil {
		return PathPolicy{}, err
	}
	return p, nil
}
