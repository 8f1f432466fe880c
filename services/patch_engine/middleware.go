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
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/telemetry"
)

// RequestLogger returns access-logging middleware.
//
// # Description
//
// Logs one structured line per completed request and tracks the
// in-flight request gauge. Probe and metrics endpoints are logged at
// Debug because orchestrators poll them every few seconds.
//
// # Inputs
//
//   - logger: Destination logger. Must not be nil.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		done := telemetry.TrackHTTPRequest()

		c.Next()

		done()

		path := c.Request.URL.Path
		level := slog.LevelInfo
		switch path {
		case "/healthz", "/readyz", "/metrics":
			level = slog.LevelDebug
		}

		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", c.Writer.Header().Get("X-Request-ID"),
		)
	}
}
