// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/gateway"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	st "github.com/AleutianAI/FieldLens/services/fieldlens/scrub/scrubtest"
)

type call struct {
	resource   string
	params     url.Values
	maxRecords int
}

// fakeFetcher serves canned batches per resource and records every call.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []call
	serve func(ctx context.Context, resource string, params url.Values) (*gateway.Batch, error)
}

func (f *fakeFetcher) FetchAll(ctx context.Context, resource string, params url.Values, maxRecords int) (*gateway.Batch, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{resource, params, maxRecords})
	f.mu.Unlock()
	return f.serve(ctx, resource, params)
}

func (f *fakeFetcher) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func batch(truncated bool, raws ...json.RawMessage) *gateway.Batch {
	return &gateway.Batch{Records: raws, Pages: 1, Truncated: truncated}
}

var est = time.FixedZone("EST", -5*3600)

func march3to9() query.DateRange {
	return query.DateRange{
		Start: time.Date(2025, 3, 3, 0, 0, 0, 0, est),
		End:   time.Date(2025, 3, 9, 0, 0, 0, 0, est),
	}
}

func TestJobParams_WindowInBusinessTimezone(t *testing.T) {
	q := JobParams(march3to9(), 42)
	assert.Equal(t, "2025-03-03T05:00:00Z", q.Get("completedOnOrAfter"))
	assert.Equal(t, "2025-03-10T05:00:00Z", q.Get("completedBefore"))
	assert.Equal(t, "42", q.Get("technicianId"))

	q = AppointmentParams(march3to9(), 0)
	assert.Equal(t, "2025-03-03T05:00:00Z", q.Get("startsOnOrAfter"))
	assert.Equal(t, "2025-03-10T05:00:00Z", q.Get("startsBefore"))
	assert.False(t, q.Has("technicianId"))

	assert.Equal(t, "2025-03-03T05:00:00Z", InvoiceParams(march3to9()).Get("modifiedOnOrAfter"))
}

func TestSource_JobsScrubsAndReportsTruncation(t *testing.T) {
	f := &fakeFetcher{serve: func(_ context.Context, resource string, _ url.Values) (*gateway.Batch, error) {
		raw := st.JobFields{ID: 1, TechnicianID: 42, Total: "10", Extra: map[string]any{
			"customer": map[string]any{"name": "Jane Customer"},
		}}.Raw()
		return batch(true, raw), nil
	}}
	s := NewSource(f, SourceConfig{MaxRecords: 500})

	jobs, fetch, err := s.Jobs(context.Background(), march3to9(), 42)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, fetch.Truncated)
	assert.Equal(t, 1, fetch.Records)

	c := f.last()
	assert.Equal(t, ResourceJobs, c.resource)
	assert.Equal(t, 500, c.maxRecords)
	assert.Equal(t, "42", c.params.Get("technicianId"))

	_, _, err = s.WithMaxRecords(3000).Jobs(context.Background(), march3to9(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3000, f.last().maxRecords)
	assert.Equal(t, 500, s.MaxRecords(), "WithMaxRecords returns a copy")
}

func TestSource_MalformedRecordSkipped(t *testing.T) {
	f := &fakeFetcher{serve: func(context.Context, string, url.Values) (*gateway.Batch, error) {
		return batch(false, json.RawMessage(`{"id": "x"}`), json.RawMessage(`{"id": 7, "jobStatus": "Completed"}`)), nil
	}}
	s := NewSource(f, SourceConfig{})
	jobs, fetch, err := s.Jobs(context.Background(), march3to9(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(7), jobs[0].ID())
	assert.Equal(t, 2, fetch.Records)
	require.Len(t, fetch.Rejected, 1)
	assert.Equal(t, apierr.AnomalyMalformedRecord, fetch.Rejected[0].Kind)

	branches, meta := s.JobsByTechnician(context.Background(), march3to9(), []Branch{{TechnicianID: 42, Name: "Alice"}})
	require.Len(t, branches, 1)
	assert.Len(t, branches[0].Jobs, 1)
	assert.False(t, branches[0].Incomplete)
	assert.Len(t, meta.Rejected, 1)
}

func TestSource_TechniciansActiveOnly(t *testing.T) {
	f := &fakeFetcher{serve: func(context.Context, string, url.Values) (*gateway.Batch, error) {
		return batch(false, json.RawMessage(`{"id": 42, "name": "Alice"}`)), nil
	}}
	techs, _, err := NewSource(f, SourceConfig{}).Technicians(context.Background())
	require.NoError(t, err)
	require.Len(t, techs, 1)
	assert.Equal(t, "true", f.last().params.Get("active"))
	assert.Equal(t, []query.Candidate{{ID: 42, Name: "Alice"}}, TechnicianCandidates(techs))
}

func TestSource_InvoicesFilteredByInvoiceDate(t *testing.T) {
	f := &fakeFetcher{serve: func(context.Context, string, url.Values) (*gateway.Batch, error) {
		return batch(false,
			st.InvoiceFields{ID: 1, InvoiceDate: "2025-03-04T12:00:00Z"}.Raw(),
			st.InvoiceFields{ID: 2, InvoiceDate: "2025-02-20T12:00:00Z"}.Raw(),
			st.InvoiceFields{ID: 3, InvoiceDate: "2025-03-10T06:00:00Z"}.Raw(),
		), nil
	}}
	invs, _, err := NewSource(f, SourceConfig{}).Invoices(context.Background(), march3to9())
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, int64(1), invs[0].ID())
}

func TestSource_ErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeFetcher{serve: func(context.Context, string, url.Values) (*gateway.Batch, error) {
		return nil, boom
	}}
	_, _, err := NewSource(f, SourceConfig{}).JobTypes(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestJobsByTechnician_IncompleteBranches(t *testing.T) {
	f := &fakeFetcher{serve: func(ctx context.Context, _ string, params url.Values) (*gateway.Batch, error) {
		switch params.Get("technicianId") {
		case "43":
			return nil, errors.New("upstream 500")
		case "44":
			<-ctx.Done()
			return nil, ctx.Err()
		case "45":
			return batch(true), nil
		}
		// Embedded technician differs from the branch; the branch wins.
		return batch(false, st.JobFields{ID: 1, TechnicianID: 99, Total: "50"}.Raw()), nil
	}}
	s := NewSource(f, SourceConfig{FanOut: 2, BranchTimeout: 50 * time.Millisecond})

	branches := []Branch{{42, "Alice"}, {43, "Bob"}, {44, "Carla"}, {45, "Dee"}}
	got, meta := s.JobsByTechnician(context.Background(), march3to9(), branches)

	require.Len(t, got, 4)
	assert.Equal(t, int64(42), got[0].TechnicianID)
	require.Len(t, got[0].Jobs, 1)
	assert.False(t, got[0].Incomplete)
	assert.True(t, got[1].Incomplete)
	assert.True(t, got[2].Incomplete, "timed-out branch")
	assert.False(t, got[3].Incomplete)
	assert.Equal(t, []string{"Bob", "Carla"}, meta.Incomplete)
	assert.True(t, meta.Truncated)
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	branches := make([]Branch, 12)
	for i := range branches {
		branches[i] = Branch{TechnicianID: int64(i + 1)}
	}
	results := FanOut(context.Background(), branches, 3, time.Second, func(ctx context.Context, b Branch) (int64, Fetch, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return b.TechnicianID * 10, Fetch{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
	for i, r := range results {
		assert.Equal(t, int64(i+1)*10, r.Value, "results keep branch order")
	}
}
