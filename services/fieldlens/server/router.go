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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName names the HTTP server in traces.
const ServiceName = "fieldlens"

// NewRouter builds the gin engine with recovery, tracing, the FieldLens
// routes under /v1 and Prometheus metrics on /metrics.
func NewRouter(handlers *Handlers, debug bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	if debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
