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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all patch engine routes with the router.
//
// Description:
//
//	Registers all /api/v1/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /api/v1)
//	handlers - The handlers instance
//
// Patch Endpoints:
//
//	POST /api/v1/patch/validate - Screen a patch against the policy
//	POST /api/v1/patch/apply - Validate and apply a patch
//	POST /api/v1/patch/inspect - Parse-only structural summary
//
// Policy and Audit Endpoints:
//
//	GET  /api/v1/policy - Active policy snapshot
//	GET  /api/v1/audit - Recent audit events for a workspace
//
// Example:
//
//	config := patch_engine.DefaultServiceConfig()
//	config.WorkspaceDir = "/var/lib/patchd/workspaces"
//	service, err := patch_engine.NewService(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	handlers := patch_engine.NewHandlers(service)
//
//	v1 := router.Group("/api/v1")
//	patch_engine.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	patch := rg.Group("/patch")
	{
		patch.POST("/validate", handlers.HandleValidate)
		patch.POST("/apply", handlers.HandleApply)
		patch.POST("/inspect", handlers.HandleInspect)
	}

	// Policy and audit reads
	rg.GET("/policy", handlers.HandlePolicy)
	rg.GET("/audit", handlers.HandleAuditList)
}

// RegisterProbeRoutes registers the health and readiness probes with the
// router root.
//
// Description:
//
//	Probes live outside the /api/v1 group so orchestrators can hit the
//	conventional /healthz and /readyz paths directly.
//
// Inputs:
//
//	router - Gin router or group to attach the probes to
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET /healthz - Health check
//	GET /readyz - Readiness check including dependency probes
func RegisterProbeRoutes(router gin.IRouter, handlers *Handlers) {
	router.GET("/healthz", handlers.HandleHealth)
	router.GET("/readyz", handlers.HandleReady)
}
