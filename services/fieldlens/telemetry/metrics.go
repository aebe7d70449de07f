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
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig selects the readers of the OpenTelemetry meter provider.
// Instruments are always exposed through a Prometheus registry so they
// appear next to the native collectors on /metrics.
type MetricsConfig struct {
	ServiceName string
	Version     string

	// Registerer receives the bridged instruments. Default:
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Stdout also writes periodic snapshots to Writer (default os.Stderr).
	Stdout   bool
	Writer   io.Writer
	Interval time.Duration
}

// SetupMetrics installs the global meter provider.
//
// Outputs:
//   - ShutdownFunc: Flushes the readers. Always non-nil.
//   - error: An exporter could not be created.
func SetupMetrics(_ context.Context, cfg MetricsConfig) (ShutdownFunc, error) {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promExp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return noopShutdown, fmt.Errorf("telemetry: prometheus bridge: %w", err)
	}
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(newResource(cfg.ServiceName, cfg.Version)),
		sdkmetric.WithReader(promExp),
	}

	if cfg.Stdout {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return noopShutdown, fmt.Errorf("telemetry: stdout metrics: %w", err)
		}
		interval := cfg.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}
