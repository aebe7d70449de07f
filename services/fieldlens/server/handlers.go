// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the FieldLens tools over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/audit"
	"github.com/AleutianAI/FieldLens/services/fieldlens/tools"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// ReadyFunc reports whether the upstream can be reached, typically by
// obtaining an access token.
type ReadyFunc func(ctx context.Context) error

// ErrorResponse is the body of every non-tool error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the body of the health and readiness checks.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ToolsResponse lists the tool definitions.
type ToolsResponse struct {
	Tools []tools.ToolDefinition `json:"tools"`
	Count int                    `json:"count"`
}

// ToolResponse wraps one tool result.
type ToolResponse struct {
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	*tools.Result
}

// Handlers serves the FieldLens endpoints.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	registry     *tools.Registry
	auditor      *audit.Auditor
	ready        ReadyFunc
	readyTimeout time.Duration
}

// NewHandlers creates the handlers. ready may be nil, in which case the
// service always reports ready.
func NewHandlers(registry *tools.Registry, auditor *audit.Auditor, ready ReadyFunc) *Handlers {
	return &Handlers{registry: registry, auditor: auditor, ready: ready, readyTimeout: 10 * time.Second}
}

// getOrCreateRequestID returns the caller's request id or a new one, and
// echoes it on the response. Only UUIDs are accepted from callers since the
// id ends up in log lines and ledger keys.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader(RequestIDHeader)
	if !strfmt.IsUUID(id) {
		id = uuid.NewString()
	}
	c.Header(RequestIDHeader, id)
	return id
}

// HandleHealth handles GET /v1/fieldlens/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleReady handles GET /v1/fieldlens/ready.
//
// Response:
//
//	200 OK: HealthResponse with status "ready"
//	503 Service Unavailable: The upstream token could not be obtained
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.ready == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.readyTimeout)
	defer cancel()
	if err := h.ready(ctx); err != nil {
		slog.Warn("readiness check failed",
			slog.String("request_id", getOrCreateRequestID(c)),
			slog.String("error", apierr.SafeError(err)),
		)
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "not_ready", Detail: apierr.UserMessage(err)})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}

// HandleGetTools handles GET /v1/fieldlens/tools.
func (h *Handlers) HandleGetTools(c *gin.Context) {
	defs := h.registry.Definitions()
	c.JSON(http.StatusOK, ToolsResponse{Tools: defs, Count: len(defs)})
}

// HandleExecuteTool handles POST /v1/fieldlens/tools/:name.
//
// Description:
//
//	Decodes a JSON object of named parameters and runs the tool through
//	the auditor. Tool failures are reported in the body with HTTP 200
//	unless they map to a clearer status: validation 400, rate_limit 429
//	with Retry-After, auth 502.
//
// Request Body:
//
//	JSON object of parameters. Empty body means no parameters.
//
// Response:
//
//	200 OK: ToolResponse
//	400 Bad Request: Malformed body or invalid parameters
//	404 Not Found: Unknown tool
//	429 Too Many Requests: Quota exhausted
func (h *Handlers) HandleExecuteTool(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	name := c.Param("name")
	logger := slog.With("request_id", requestID, "handler", "HandleExecuteTool")

	params := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			logger.Warn("malformed tool request", slog.String("tool", name), slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "request body must be a JSON object of parameters",
				Code:  "INVALID_BODY",
			})
			return
		}
	}

	res, _, err := h.auditor.Execute(c.Request.Context(), audit.Call{
		RequestID: requestID,
		Caller:    c.ClientIP(),
		Tool:      name,
		Params:    params,
	})
	if errors.Is(err, tools.ErrUnknownTool) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown tool: " + name, Code: "UNKNOWN_TOOL"})
		return
	}
	if err != nil {
		logger.Error("tool execution failed", slog.String("tool", name), slog.String("error", apierr.SafeError(err)))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: apierr.UserMessage(err), Code: "INTERNAL"})
		return
	}

	status := http.StatusOK
	switch res.ErrorKind {
	case "validation":
		status = http.StatusBadRequest
	case "rate_limit":
		status = http.StatusTooManyRequests
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
		}
	case "auth":
		status = http.StatusBadGateway
	}
	c.JSON(status, ToolResponse{RequestID: requestID, Tool: name, Result: res})
}
