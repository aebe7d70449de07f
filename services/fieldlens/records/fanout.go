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
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// branchesTotal counts fan-out branches by outcome.
// Labels: resource, outcome (ok, error, timeout)
var branchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fieldlens",
	Subsystem: "records",
	Name:      "fanout_branches_total",
	Help:      "Per-technician fan-out branches by outcome",
}, []string{"resource", "outcome"})

// Branch identifies one per-technician sub-fetch.
type Branch struct {
	TechnicianID int64
	Name         string
}

// BranchResult is the outcome of one branch. Err is set when the branch
// failed or timed out; Value is then the zero value.
type BranchResult[T any] struct {
	Branch
	Value T
	Fetch Fetch
	Err   error
}

// FanOut runs fn for every branch with at most limit in flight.
//
// Description:
//
//	Each branch gets its own timeout derived from ctx. A failing branch
//	does not cancel the others. Results are returned in branch order.
//	A canceled parent context fails the remaining branches.
//
// Inputs:
//   - ctx: Parent context.
//   - branches: Technicians to fetch for.
//   - limit: Concurrency bound. <= 0 means 1.
//   - timeout: Per-branch timeout. <= 0 means none.
//   - fn: The branch body.
//
// Thread Safety: fn is called concurrently.
func FanOut[T any](ctx context.Context, branches []Branch, limit int, timeout time.Duration,
	fn func(ctx context.Context, b Branch) (T, Fetch, error)) []BranchResult[T] {
	if limit <= 0 {
		limit = 1
	}
	results := make([]BranchResult[T], len(branches))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, b := range branches {
		g.Go(func() error {
			bctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			v, f, err := fn(bctx, b)
			results[i] = BranchResult[T]{Branch: b, Value: v, Fetch: f, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Source) logBranches(resource string, n int, failed []Branch, errs []error) {
	for i, b := range failed {
		outcome := "error"
		if errors.Is(errs[i], context.DeadlineExceeded) {
			outcome = "timeout"
		}
		branchesTotal.WithLabelValues(resource, outcome).Inc()
		s.logger.Warn("fan-out branch incomplete",
			slog.String("resource", resource),
			slog.Int64("technician_id", b.TechnicianID),
			slog.String("outcome", outcome),
			slog.String("error", apierr.SafeError(errs[i])),
		)
	}
	branchesTotal.WithLabelValues(resource, "ok").Add(float64(n - len(failed)))
}

// Branches builds one branch per technician.
func Branches(techs []scrub.Technician) []Branch {
	out := make([]Branch, 0, len(techs))
	for _, t := range techs {
		out = append(out, Branch{TechnicianID: t.ID(), Name: t.Name()})
	}
	return out
}

// Fanned summarizes a fan-out for result metadata.
type Fanned struct {
	// Truncated is set when any branch fetch hit the record cap.
	Truncated bool

	// Incomplete names the technicians whose branch failed.
	Incomplete []string

	// Rejected collects the records left out by successful branches.
	Rejected []apierr.DataIntegrityError
}

// JobsByTechnician fetches each technician's jobs with technicianId set
// upstream. Jobs are attributed to the branch, not to the technician field
// embedded in each job.
func (s *Source) JobsByTechnician(ctx context.Context, rng query.DateRange, branches []Branch) ([]analytics.TechnicianJobs, Fanned) {
	results := FanOut(ctx, branches, s.fanOut, s.branchTimeout, func(ctx context.Context, b Branch) ([]scrub.Job, Fetch, error) {
		return s.Jobs(ctx, rng, b.TechnicianID)
	})
	out := make([]analytics.TechnicianJobs, 0, len(results))
	var meta Fanned
	var failed []Branch
	var errs []error
	for _, r := range results {
		tj := analytics.TechnicianJobs{TechnicianID: r.TechnicianID, Name: r.Name, Jobs: r.Value}
		if r.Err != nil {
			tj.Jobs, tj.Incomplete = nil, true
			meta.Incomplete = append(meta.Incomplete, r.Name)
			failed, errs = append(failed, r.Branch), append(errs, r.Err)
		}
		meta.Truncated = meta.Truncated || r.Fetch.Truncated
		meta.Rejected = append(meta.Rejected, r.Fetch.Rejected...)
		out = append(out, tj)
	}
	s.logBranches(ResourceJobs, len(results), failed, errs)
	return out, meta
}

// AppointmentsByTechnician fetches each technician's appointments.
func (s *Source) AppointmentsByTechnician(ctx context.Context, rng query.DateRange, branches []Branch) ([]analytics.TechnicianAppointments, Fanned) {
	results := FanOut(ctx, branches, s.fanOut, s.branchTimeout, func(ctx context.Context, b Branch) ([]scrub.Appointment, Fetch, error) {
		return s.Appointments(ctx, rng, b.TechnicianID)
	})
	out := make([]analytics.TechnicianAppointments, 0, len(results))
	var meta Fanned
	var failed []Branch
	var errs []error
	for _, r := range results {
		ta := analytics.TechnicianAppointments{TechnicianID: r.TechnicianID, Name: r.Name, Appointments: r.Value}
		if r.Err != nil {
			ta.Appointments, ta.Incomplete = nil, true
			meta.Incomplete = append(meta.Incomplete, r.Name)
			failed, errs = append(failed, r.Branch), append(errs, r.Err)
		}
		meta.Truncated = meta.Truncated || r.Fetch.Truncated
		meta.Rejected = append(meta.Rejected, r.Fetch.Rejected...)
		out = append(out, ta)
	}
	s.logBranches(ResourceAppointments, len(results), failed, errs)
	return out, meta
}
