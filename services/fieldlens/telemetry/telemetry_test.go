// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing(context.Background(), TracingConfig{ServiceName: "fieldlens-test", Stdout: true, Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "probe")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"probe"`)
	assert.Contains(t, buf.String(), "fieldlens-test")
}

func TestSetupTracing_NoExporters(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupMetrics_BridgesToPrometheus(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	reg := prometheus.NewRegistry()
	shutdown, err := SetupMetrics(context.Background(), MetricsConfig{Registerer: reg})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	counter, err := otel.Meter("telemetry_test").Int64Counter("fieldlens.test.calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if strings.HasPrefix(strings.ReplaceAll(f.GetName(), ".", "_"), "fieldlens_test_calls") {
			found = true
			require.NotEmpty(t, f.GetMetric())
			assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "bridged counter not gathered")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_JSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug").Debug("hello", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])
}
