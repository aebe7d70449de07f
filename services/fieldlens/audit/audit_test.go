// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/tools"
)

// fakeInvoker returns a canned result and counts calls.
type fakeInvoker struct {
	mu    sync.Mutex
	calls int
	res   *tools.Result
	err   error
}

func (f *fakeInvoker) Execute(_ context.Context, _ string, _ map[string]any) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger("", time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// stepClock advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestHashParams_OrderIndependent(t *testing.T) {
	a := HashParams(map[string]any{"start_date": "2025-03-03", "technician_name": "Alice"})
	b := HashParams(map[string]any{"technician_name": "Alice", "start_date": "2025-03-03"})
	c := HashParams(map[string]any{"technician_name": "Bob", "start_date": "2025-03-03"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Equal(t, HashParams(nil), HashParams(map[string]any{}))
}

func TestQuota_MinuteWindow(t *testing.T) {
	q, err := NewQuota(QuotaConfig{PerMinute: 2, PerHour: 100})
	require.NoError(t, err)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Allow(ctx, "alice"))
	require.NoError(t, q.Allow(ctx, "alice"))
	err = q.Allow(ctx, "alice")
	require.Error(t, err)

	var rl *apierr.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.True(t, rl.Local)
	assert.GreaterOrEqual(t, rl.RetryAfter, time.Second)
	assert.True(t, errors.Is(err, apierr.ErrQuotaExceeded))

	assert.NoError(t, q.Allow(ctx, "bob"), "quotas are per caller")
}

func TestQuota_DisabledWindows(t *testing.T) {
	q, err := NewQuota(QuotaConfig{})
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Allow(context.Background(), "alice"))
	}
}

func TestQuota_BadRedisURL(t *testing.T) {
	_, err := NewQuota(QuotaConfig{PerMinute: 1, RedisURL: "mysql://nope"})
	assert.Error(t, err)
}

func TestLedger_TailNewestFirst(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for i, tool := range []string{"get_recalls", "get_jobs_summary", "compare_technicians"} {
		require.NoError(t, l.Append(ctx, Entry{
			RequestID: "req-" + tool,
			Tool:      tool,
			Outcome:   "ok",
			At:        base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := l.Tail(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "compare_technicians", got[0].Tool)
	assert.Equal(t, "get_jobs_summary", got[1].Tool)

	all, err := l.Tail(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAuditor_RecordsInvocation(t *testing.T) {
	var logs bytes.Buffer
	inv := &fakeInvoker{res: &tools.Result{Success: true, Truncated: true, Incomplete: []string{"Bob Jones"}}}
	l := newTestLedger(t)
	a := New(inv, Options{
		Ledger: l,
		Logger: slog.New(slog.NewJSONHandler(&logs, nil)),
		Now:    stepClock(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)),
	})

	params := map[string]any{"technician_name": "Alice Smith"}
	res, id, err := a.Execute(context.Background(), Call{Tool: "get_technician_jobs", Params: params})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.NotEmpty(t, id)

	entries, err := l.Tail(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, id, e.RequestID)
	assert.Equal(t, "local", e.Caller)
	assert.Equal(t, "ok", e.Outcome)
	assert.Equal(t, HashParams(params), e.ParamHash)
	assert.True(t, e.Truncated)
	assert.Equal(t, 1, e.Incomplete)
	assert.Equal(t, time.Second, e.Duration)

	assert.Contains(t, logs.String(), "tool invocation finished")
	assert.NotContains(t, logs.String(), "Alice Smith", "parameter values must not be logged")
}

func TestAuditor_QuotaRejectionSkipsTool(t *testing.T) {
	inv := &fakeInvoker{res: &tools.Result{Success: true}}
	q, err := NewQuota(QuotaConfig{PerMinute: 1})
	require.NoError(t, err)
	l := newTestLedger(t)
	a := New(inv, Options{Quota: q, Ledger: l, Now: stepClock(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))})
	ctx := context.Background()

	res, _, err := a.Execute(ctx, Call{Caller: "cli", Tool: "get_jobs_summary"})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, _, err = a.Execute(ctx, Call{Caller: "cli", Tool: "get_jobs_summary"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "rate_limit", res.ErrorKind)
	assert.GreaterOrEqual(t, res.RetryAfter, time.Second)
	assert.True(t, strings.HasPrefix(res.OutputText, "Error: "))
	assert.Equal(t, 1, inv.calls)

	entries, err := l.Tail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "rate_limit", entries[0].Outcome)
}

func TestAuditor_UnknownToolError(t *testing.T) {
	inv := &fakeInvoker{err: tools.ErrUnknownTool}
	a := New(inv, Options{})
	_, id, err := a.Execute(context.Background(), Call{RequestID: "fixed", Tool: "nope"})
	assert.ErrorIs(t, err, tools.ErrUnknownTool)
	assert.Equal(t, "fixed", id)
}
