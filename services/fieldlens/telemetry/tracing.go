// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry configures tracing and logging for the FieldLens
// binaries.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

// TracingConfig selects the span exporters. With neither an endpoint nor
// Stdout set, spans are sampled but not exported.
type TracingConfig struct {
	ServiceName string
	Version     string

	// OTLPEndpoint is a host:port gRPC collector address.
	OTLPEndpoint string

	// Insecure disables TLS to the collector.
	Insecure bool

	// Stdout writes spans as JSON to Writer (default os.Stderr).
	Stdout bool
	Writer io.Writer
}

// ShutdownFunc flushes and stops the exporters.
type ShutdownFunc func(context.Context) error

// SetupTracing installs the global tracer provider and W3C propagators.
//
// Outputs:
//   - ShutdownFunc: Flushes pending spans. Always non-nil.
//   - error: An exporter could not be created.
func SetupTracing(ctx context.Context, cfg TracingConfig) (ShutdownFunc, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fieldlens"
	}
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(newResource(cfg.ServiceName, cfg.Version))}

	if cfg.OTLPEndpoint != "" {
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(cfg.ServiceName + "/" + cfg.Version)),
		}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return noopShutdown, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if cfg.Stdout {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return noopShutdown, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

func noopShutdown(context.Context) error { return nil }

func newResource(name, version string) *resource.Resource {
	if name == "" {
		name = "fieldlens"
	}
	return resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	)
}
