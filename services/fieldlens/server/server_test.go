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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/audit"
	"github.com/AleutianAI/FieldLens/services/fieldlens/tools"
)

// echoTool succeeds with its parameters as output.
type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Category() tools.ToolCategory { return tools.CategoryDirectory }

func (echoTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "echo",
		Description: "Echo parameters",
		Parameters: map[string]tools.ParamDef{
			"word": {Type: tools.ParamTypeString, Required: true},
		},
		Category: tools.CategoryDirectory,
	}
}

func (echoTool) Execute(_ context.Context, p tools.TypedParams) (*tools.Result, error) {
	return &tools.Result{Success: true, Output: p.ToMap(), OutputText: "echo"}, nil
}

func newTestServer(t *testing.T, quota *audit.Quota, ready ReadyFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := tools.NewRegistry(&tools.Env{})
	reg.Register(echoTool{})
	aud := audit.New(reg, audit.Options{Quota: quota})
	return NewRouter(NewHandlers(reg, aud, ready), false)
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	w := do(t, newTestServer(t, nil, nil), http.MethodGet, "/v1/fieldlens/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleReady(t *testing.T) {
	w := do(t, newTestServer(t, nil, func(context.Context) error { return nil }), http.MethodGet, "/v1/fieldlens/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := func(context.Context) error { return errors.New("token endpoint unreachable") }
	w = do(t, newTestServer(t, nil, down), http.MethodGet, "/v1/fieldlens/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
}

func TestHandleGetTools(t *testing.T) {
	w := do(t, newTestServer(t, nil, nil), http.MethodGet, "/v1/fieldlens/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body ToolsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 21, body.Count)
	assert.Len(t, body.Tools, 21)
}

func TestHandleExecuteTool(t *testing.T) {
	r := newTestServer(t, nil, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{name: "success", path: "/v1/fieldlens/tools/echo", body: `{"word":"hi"}`, status: http.StatusOK},
		{name: "missing required", path: "/v1/fieldlens/tools/echo", body: `{}`, status: http.StatusBadRequest, kind: "validation"},
		{name: "undeclared param", path: "/v1/fieldlens/tools/echo", body: `{"word":"hi","x":1}`, status: http.StatusBadRequest, kind: "validation"},
		{name: "malformed body", path: "/v1/fieldlens/tools/echo", body: `[1,2]`, status: http.StatusBadRequest},
		{name: "unknown tool", path: "/v1/fieldlens/tools/nope", body: `{}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
			if tt.kind != "" {
				var body ToolResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				require.NotNil(t, body.Result)
				assert.Equal(t, tt.kind, body.ErrorKind)
			}
		})
	}
}

func TestHandleExecuteTool_EchoesRequestID(t *testing.T) {
	const id = "3f0c8a52-6a0e-4c55-9f63-1f2f4c1d2b7e"
	r := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/fieldlens/tools/echo", strings.NewReader(`{"word":"hi"}`))
	req.Header.Set(RequestIDHeader, id)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, w.Header().Get(RequestIDHeader))
	var body ToolResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, id, body.RequestID)
	assert.True(t, body.Success)
}

func TestHandleExecuteTool_ReplacesMalformedRequestID(t *testing.T) {
	r := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/fieldlens/tools/echo", strings.NewReader(`{"word":"hi"}`))
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	got := w.Header().Get(RequestIDHeader)
	assert.NotEqual(t, "not-a-uuid", got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestHandleExecuteTool_QuotaExceeded(t *testing.T) {
	q, err := audit.NewQuota(audit.QuotaConfig{PerMinute: 1})
	require.NoError(t, err)
	r := newTestServer(t, q, nil)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/fieldlens/tools/echo", `{"word":"a"}`).Code)
	w := do(t, r, http.MethodPost, "/v1/fieldlens/tools/echo", `{"word":"b"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	retry := w.Header().Get("Retry-After")
	require.NotEmpty(t, retry)
	d, err := time.ParseDuration(retry + "s")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, time.Second)
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, newTestServer(t, nil, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
