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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

// Provider hands out the current PathPolicy and hot-reloads it from a
// file.
//
// # Description
//
// The provider holds the active policy behind an atomic pointer:
// readers get a consistent snapshot with a single load, and a reload
// swaps the whole value or nothing. When the provider was built without
// a file path it serves the stock policy and never reloads.
//
// A failed reload (unreadable file, bad YAML, invalid limits) keeps the
// previous policy active and logs the failure; a half-edited file must
// not take down validation.
//
// # Thread Safety
//
// Safe for concurrent use. Current may be called from any goroutine;
// reloads are deduplicated through singleflight.
type Provider struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[PathPolicy]
	watcher *fsnotify.Watcher
	flight  singleflight.Group
	done    chan struct{}
}

// NewProvider builds a provider for the given policy file.
//
// # Inputs
//
//   - path: policy YAML file. Empty means "serve the stock policy,
//     no watching".
//   - logger: destination for reload outcomes. Nil uses slog.Default.
//
// # Outputs
//
//   - *Provider: provider with the initial policy loaded and, when a
//     path was given, a watch goroutine running.
//   - error: non-nil if the initial load or the watcher setup failed.
//     Unlike later reloads, a broken policy at startup is fatal: the
//     operator should notice before traffic does.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}

	if path == "" {
		stock := Default()
		p.current.Store(&stock)
		return p, nil
	}

	initial, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load initial policy: %w", err)
	}
	p.current.Store(&initial)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create policy watcher: %w", err)
	}
	// Watch the directory, not the file: editors and config rollouts
	// replace the file via rename, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch policy directory: %w", err)
	}
	p.watcher = watcher
	go p.watchLoop()

	p.logger.Info("policy provider watching file", "path", path)
	return p, nil
}

// Current returns the active policy snapshot.
func (p *Provider) Current() PathPolicy {
	return *p.current.Load()
}

// Reload re-reads the policy file and swaps it in.
//
// Concurrent calls collapse into one read. With no file configured this
// is a no-op.
func (p *Provider) Reload() error {
	if p.path == "" {
		return nil
	}
	_, err, _ := p.flight.Do("reload", func() (interface{}, error) {
		loaded, err := LoadFile(p.path)
		if err != nil {
			return nil, err
		}
		p.current.Store(&loaded)
		return nil, nil
	})
	return err
}

// Close stops the watch goroutine and releases the watcher.
func (p *Provider) Close() error {
	close(p.done)
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

// watchLoop handles fsnotify events until Close.
func (p *Provider) watchLoop() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			p.handleWatchEvent(event)

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("policy watcher error", "error", err)

		case <-p.done:
			return
		}
	}
}

// handleWatchEvent reloads on writes, creates, and renames that touch
// the policy file. Other files in the watched directory are ignored.
func (p *Provider) handleWatchEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if filepath.Clean(event.Name) != filepath.Clean(p.path) {
		return
	}

	if err := p.Reload(); err != nil {
		p.logger.Warn("policy reload failed, keeping previous policy",
			"path", p.path,
			"error", err)
		return
	}
	current := p.Current()
	p.logger.Info("policy reloaded",
		"path", p.path,
		"max_patch_bytes", current.MaxPatchBytes,
		"max_files", current.MaxFiles,
		"allowed_extensions", len(current.AllowedExtensions))
}
