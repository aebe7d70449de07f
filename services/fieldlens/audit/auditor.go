// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit meters and records tool invocations.
//
// An Auditor sits in front of the tool registry: it applies the per-caller
// quota, logs every invocation with a hash of its parameters, and appends
// the same metadata to an optional badger ledger. Parameter values and
// record content never reach the logs or the ledger.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/tools"
)

// Invoker runs a tool by name. *tools.Registry implements it.
type Invoker interface {
	Execute(ctx context.Context, name string, params map[string]any) (*tools.Result, error)
}

// Options configures an Auditor. Quota and Ledger are optional.
type Options struct {
	Quota  *Quota
	Ledger *Ledger
	Logger *slog.Logger

	// Now is the clock stamped on entries. Default: time.Now.
	Now func() time.Time
}

// Call identifies one invocation.
type Call struct {
	// RequestID correlates logs and ledger entries. Empty gets a new UUID.
	RequestID string

	// Caller keys the quota. Empty uses "local".
	Caller string

	Tool   string
	Params map[string]any
}

// Auditor applies quotas and records every invocation.
//
// Thread Safety: Safe for concurrent use.
type Auditor struct {
	invoker Invoker
	quota   *Quota
	ledger  *Ledger
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Auditor in front of inv.
func New(inv Invoker, opts Options) *Auditor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Auditor{
		invoker: inv,
		quota:   opts.Quota,
		ledger:  opts.Ledger,
		logger:  logger.With(slog.String("component", "audit")),
		now:     now,
	}
}

// HashParams returns the SHA-256 of the canonical JSON of params. Map keys
// are marshaled in sorted order, so equal parameter sets hash equally.
func HashParams(params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Execute runs one audited invocation.
//
// Description:
//
//	The quota is checked first; a rejection is returned as a failed Result
//	carrying a local RateLimitError and never reaches the invoker. The
//	outcome is logged and appended to the ledger whether or not the tool
//	succeeded. Ledger failures are logged and do not fail the call.
//
// Outputs:
//   - *tools.Result: The tool result, or the quota rejection.
//   - string: The request id used.
//   - error: Only what the invoker returns, e.g. tools.ErrUnknownTool.
func (a *Auditor) Execute(ctx context.Context, call Call) (*tools.Result, string, error) {
	if call.RequestID == "" {
		call.RequestID = uuid.NewString()
	}
	if call.Caller == "" {
		call.Caller = "local"
	}
	entry := Entry{
		RequestID: call.RequestID,
		Caller:    call.Caller,
		Tool:      call.Tool,
		ParamHash: HashParams(call.Params),
		At:        a.now().UTC(),
	}
	logger := a.logger.With(
		slog.String("request_id", entry.RequestID),
		slog.String("tool", entry.Tool),
		slog.String("param_hash", entry.ParamHash),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(slog.String("trace_id", sc.TraceID().String()), slog.String("span_id", sc.SpanID().String()))
	}
	logger.Info("tool invocation started", slog.String("caller", entry.Caller))

	var (
		res *tools.Result
		err error
	)
	start := a.now()
	if qerr := a.allow(ctx, call.Caller); qerr != nil {
		res = tools.ErrorResult(qerr)
	} else {
		res, err = a.invoker.Execute(ctx, call.Tool, call.Params)
	}
	entry.Duration = a.now().Sub(start)

	switch {
	case err != nil:
		entry.Outcome = apierr.Label(err)
		if entry.Outcome == "unknown" {
			entry.Outcome = "error"
		}
	default:
		entry.Outcome = tools.Outcome(res)
		entry.Truncated = res.Truncated
		entry.Incomplete = len(res.Incomplete)
		entry.Anomalies = len(res.Anomalies)
	}

	level := slog.LevelInfo
	if entry.Outcome != "ok" {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "tool invocation finished",
		slog.String("outcome", entry.Outcome),
		slog.Duration("duration", entry.Duration),
		slog.Bool("truncated", entry.Truncated),
	)

	if a.ledger != nil {
		if lerr := a.ledger.Append(context.WithoutCancel(ctx), entry); lerr != nil {
			logger.Error("audit ledger append failed", slog.String("error", apierr.SafeLogString(lerr.Error())))
		}
	}
	return res, entry.RequestID, err
}

func (a *Auditor) allow(ctx context.Context, caller string) error {
	if a.quota == nil {
		return nil
	}
	err := a.quota.Allow(ctx, caller)
	if err == nil || apierr.IsRateLimited(err) {
		return err
	}
	// The counters are unreachable; the call proceeds unmetered.
	a.logger.Error("quota check failed", slog.String("error", apierr.SafeLogString(err.Error())))
	return nil
}
