// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command patchd starts the patch engine API server.
//
// The patch engine validates and applies unified diffs to workspace
// directories with policy screening, conflict detection, and an audit
// trail.
//
// Usage:
//
//	go run ./cmd/patchd
//	go run ./cmd/patchd -port 9090 -workspace-dir /srv/workspaces
//
// Every flag has an environment fallback (PATCHD_PORT,
// PATCHD_WORKSPACE_DIR, PATCHD_POLICY_FILE, PATCHD_AUDIT_DIR,
// PATCHD_LOG_LEVEL, PATCHD_LOG_FORMAT), so containers can configure it
// without argument plumbing.
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/healthz
//
//	# Screen a patch against the policy
//	curl -X POST http://localhost:8080/api/v1/patch/validate \
//	  -H "Content-Type: application/json" \
//	  -d '{"workspace_id": "ws1", "patch": "--- a/main.go\n+++ b/main.go\n@@ -1 +1 @@\n-old\n+new\n"}'
//
//	# Apply it
//	curl -X POST http://localhost:8080/api/v1/patch/apply \
//	  -H "Content-Type: application/json" \
//	  -d '{"workspace_id": "ws1", "patch": "...", "dry_run": true}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/futurianh1k/cursorclone-sub001/pkg/logging"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine"
	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/telemetry"
)

func main() {
	port := flag.Int("port", envInt("PATCHD_PORT", 8080), "Port to listen on")
	workspaceDir := flag.String("workspace-dir", envOr("PATCHD_WORKSPACE_DIR", "/var/lib/patchd/workspaces"),
		"Base directory holding one subdirectory per workspace")
	policyFile := flag.String("policy-file", envOr("PATCHD_POLICY_FILE", ""),
		"Policy YAML file; empty serves the built-in policy")
	auditDir := flag.String("audit-dir", envOr("PATCHD_AUDIT_DIR", ""),
		"Audit journal directory; empty keeps the journal in memory")
	logLevel := flag.String("log-level", envOr("PATCHD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", envOr("PATCHD_LOG_FORMAT", "json"),
		"Log format on stderr: json or text")
	debug := flag.Bool("debug", false, "Enable debug mode (gin request logging)")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(*logLevel),
		JSON:    *logFormat == "json",
		Service: "patchd",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := run(*port, *workspaceDir, *policyFile, *auditDir, *debug); err != nil {
		slog.Error("patchd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(port int, workspaceDir, policyFile, auditDir string, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so every later construction is traced.
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = "patchd"
	tcfg.ServiceVersion = patch_engine.ServiceVersion
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return fmt.Errorf("creating workspace dir: %w", err)
	}

	cfg := patch_engine.DefaultServiceConfig()
	cfg.WorkspaceDir = workspaceDir
	cfg.PolicyPath = policyFile
	cfg.AuditPath = auditDir
	svc, err := patch_engine.NewService(cfg)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("service close failed", slog.String("error", err.Error()))
		}
	}()

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("patchd"))
	router.Use(patch_engine.RequestLogger(slog.Default()))

	handlers := patch_engine.NewHandlers(svc)
	v1 := router.Group("/api/v1")
	patch_engine.RegisterRoutes(v1, handlers)
	patch_engine.RegisterProbeRoutes(router, handlers)
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	printBanner(port, workspaceDir)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting patch engine server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down patch engine server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// envOr returns the environment variable value or the fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the environment variable parsed as int, or the fallback.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func printBanner(port int, workspaceDir string) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                      PATCH ENGINE SERVER                          ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Validates and applies unified diffs to workspace directories.    ║
║  Workspaces: %-52s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/healthz                          │  ║
║  │                                                             │  ║
║  │ # Active policy                                             │  ║
║  │ curl http://localhost:%d/api/v1/policy | jq               │  ║
║  │                                                             │  ║
║  │ # Screen a patch                                            │  ║
║  │ curl -X POST http://localhost:%d/api/v1/patch/validate \  │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"patch": "--- a/x.go\n+++ b/x.go\n..."}'             │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Patch: /validate, /apply, /inspect                           ║
║  ├── Reads: /policy, /audit                                       ║
║  └── Ops: /healthz, /readyz, /metrics                             ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, workspaceDir, port, port, port)
}
