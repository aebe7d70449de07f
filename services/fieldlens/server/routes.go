// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all FieldLens routes with the router.
//
// Description:
//
//	Registers all /v1/fieldlens/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET  /v1/fieldlens/health - Liveness check
//	GET  /v1/fieldlens/ready - Readiness check (upstream token obtainable)
//	GET  /v1/fieldlens/tools - Tool definitions
//	POST /v1/fieldlens/tools/:name - Run a tool
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	fl := rg.Group("/fieldlens")
	{
		fl.GET("/health", handlers.HandleHealth)
		fl.GET("/ready", handlers.HandleReady)

		fl.GET("/tools", handlers.HandleGetTools)
		fl.POST("/tools/:name", handlers.HandleExecuteTool)
	}
}
