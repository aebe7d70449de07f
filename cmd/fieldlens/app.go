// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/audit"
	"github.com/AleutianAI/FieldLens/services/fieldlens/config"
	"github.com/AleutianAI/FieldLens/services/fieldlens/gateway"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/records"
	"github.com/AleutianAI/FieldLens/services/fieldlens/telemetry"
	"github.com/AleutianAI/FieldLens/services/fieldlens/tools"
)

// app is the wired process: configuration, upstream gateway, reports and
// the audit layer.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tokens   *gateway.TokenManager
	registry *tools.Registry
	auditor  *audit.Auditor
	quota    *audit.Quota
	ledger   *audit.Ledger

	shutdownTracing telemetry.ShutdownFunc
	shutdownMetrics telemetry.ShutdownFunc
}

// newApp loads configuration and builds every component.
//
// Description:
//
//	Credentials are sealed into a memguard vault and cleared from the
//	configuration before anything else is built. The ledger lives in
//	memory unless FIELDLENS_AUDIT_DB names a directory.
//
// Outputs:
//   - *app: Close must be called.
//   - error: Configuration or component construction failed.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.LoadFiles(opts.envFiles)
	if err != nil {
		return nil, err
	}
	logger := telemetry.NewLogger(os.Stderr, cfg.Service.LogLevel)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	a.shutdownTracing, err = telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName:  "fieldlens",
		Version:      version,
		OTLPEndpoint: cfg.Service.OTLPEndpoint,
		Insecure:     cfg.Service.OTLPInsecure,
		Stdout:       cfg.Service.TraceStdout,
	})
	if err != nil {
		return nil, err
	}
	a.shutdownMetrics, err = telemetry.SetupMetrics(ctx, telemetry.MetricsConfig{
		ServiceName: "fieldlens",
		Version:     version,
		Stdout:      cfg.Service.TraceStdout,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	vault, err := gateway.NewVault(cfg.Upstream.ClientID, cfg.Upstream.ClientSecret, cfg.Upstream.AppKey)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	cfg.ClearSecrets()

	httpClient := gateway.NewHTTPClient(cfg.Upstream.ConnectTimeout, cfg.Upstream.ReadTimeout)
	a.tokens = gateway.NewTokenManager(
		gateway.NewOAuthExchanger(cfg.Upstream.AuthURL, vault, httpClient),
		gateway.TokenManagerConfig{
			Margin:     cfg.Upstream.TokenMargin,
			DefaultTTL: cfg.Upstream.TokenDefaultTTL,
			Logger:     logger,
		},
	)
	client, err := gateway.NewClient(gateway.ClientConfig{
		APIBase:        cfg.Upstream.APIBase,
		TenantID:       cfg.Upstream.TenantID,
		ConnectTimeout: cfg.Upstream.ConnectTimeout,
		ReadTimeout:    cfg.Upstream.ReadTimeout,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		MaxRetries:     cfg.Upstream.MaxRetries,
		PageSize:       cfg.Upstream.PageSize,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.Upstream.RequestsPerSecond), cfg.Upstream.Burst),
		HTTPClient:     httpClient,
		Logger:         logger,
	}, a.tokens, vault)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	env := &tools.Env{
		Source: records.NewSource(client, records.SourceConfig{
			MaxRecords:    cfg.Policy.MaxRecords,
			FanOut:        cfg.Policy.FanOut,
			BranchTimeout: cfg.Policy.BranchTimeout,
			Logger:        logger,
		}),
		Normalizer:  query.NewNormalizer(cfg.Location(), cfg.Policy.MaxRangeDays, time.Now),
		Attribution: analytics.ParseAttribution(cfg.Policy.RecallAttribution),
		LateWindow:  cfg.Policy.LateCancelWindow,
		Logger:      logger,
	}
	a.registry = tools.NewRegistry(env)

	a.quota, err = audit.NewQuota(audit.QuotaConfig{
		PerMinute: cfg.Policy.QueriesPerMinute,
		PerHour:   cfg.Policy.QueriesPerHour,
		RedisURL:  cfg.Service.RedisURL,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.ledger, err = audit.OpenLedger(cfg.Service.AuditDB, cfg.Service.AuditRetention, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.auditor = audit.New(a.registry, audit.Options{Quota: a.quota, Ledger: a.ledger, Logger: logger})

	logger.Info("fieldlens configured",
		slog.String("version", version),
		slog.String("tenant", cfg.Upstream.TenantID),
		slog.String("business_timezone", cfg.Location().String()),
		slog.Int("max_range_days", cfg.Policy.MaxRangeDays),
		slog.Int("max_records", cfg.Policy.MaxRecords),
		slog.Bool("persistent_audit", cfg.Service.AuditDB != ""),
		slog.Bool("shared_quota", cfg.Service.RedisURL != ""),
	)
	return a, nil
}

// ready reports whether a token can be obtained.
func (a *app) ready(ctx context.Context) error {
	_, err := a.tokens.Token(ctx)
	return err
}

// Close releases the ledger and quota store, then flushes telemetry.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.quota != nil {
		errs = append(errs, a.quota.Close())
	}
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, shutdown := range []telemetry.ShutdownFunc{a.shutdownMetrics, a.shutdownTracing} {
		if shutdown != nil {
			errs = append(errs, shutdown(flushCtx))
		}
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
}

// userMessage renders err for the terminal. Classified errors get their
// plain-language message; anything else, such as a configuration error, is
// shown redacted.
func userMessage(err error) string {
	if apierr.Label(err) == "unknown" {
		return apierr.SafeError(err)
	}
	return apierr.UserMessage(err)
}

// errReported marks an error already printed to the user.
type errReported struct{ err error }

func (e errReported) Error() string { return e.err.Error() }
func (e errReported) Unwrap() error { return e.err }

// fail prints err in plain language and returns it for the exit status.
func fail(err error) error {
	fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
	return errReported{err}
}
