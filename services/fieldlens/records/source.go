// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records fetches upstream resources through the gateway and hands
// back scrubbed records.
//
// Nothing outside this package builds upstream query parameters. Every
// record returned has passed the scrub allow-list; raw JSON never leaves.
package records

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/gateway"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

var sourceTracer = otel.Tracer("fieldlens.records.source")

// Upstream resources.
const (
	ResourceTechnicians   = "settings/technicians"
	ResourceBusinessUnits = "settings/business-units"
	ResourceTagTypes      = "settings/tag-types"
	ResourceJobs          = "jpm/jobs"
	ResourceJobTypes      = "jpm/job-types"
	ResourceAppointments  = "jpm/appointments"
	ResourceInvoices      = "accounting/invoices"
)

// DefaultMaxRecords caps one fetch when SourceConfig leaves it unset.
const DefaultMaxRecords = 2000

// Fetch describes one completed fetch.
type Fetch struct {
	Resource  string
	Records   int
	Pages     int
	Truncated bool

	// Rejected lists records left out because they failed to scrub.
	Rejected []apierr.DataIntegrityError
}

// SourceConfig configures a Source.
type SourceConfig struct {
	// MaxRecords caps each fetch. Default: DefaultMaxRecords.
	MaxRecords int

	// FanOut bounds concurrent per-technician branches. Default: 4.
	FanOut int

	// BranchTimeout bounds one fan-out branch. Default: 45s.
	BranchTimeout time.Duration

	Logger *slog.Logger
}

// Source turns date ranges and ids into upstream queries and scrubs the
// results.
//
// Thread Safety: Safe for concurrent use; immutable after construction.
type Source struct {
	fetcher       gateway.Fetcher
	maxRecords    int
	fanOut        int
	branchTimeout time.Duration
	logger        *slog.Logger
}

// NewSource wraps a fetcher.
func NewSource(f gateway.Fetcher, cfg SourceConfig) *Source {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 4
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = 45 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		fetcher:       f,
		maxRecords:    cfg.MaxRecords,
		fanOut:        cfg.FanOut,
		branchTimeout: cfg.BranchTimeout,
		logger:        logger.With(slog.String("component", "records")),
	}
}

// WithMaxRecords returns a copy of s with a different record cap.
func (s *Source) WithMaxRecords(n int) *Source {
	c := *s
	if n > 0 {
		c.maxRecords = n
	}
	return &c
}

// MaxRecords returns the record cap.
func (s *Source) MaxRecords() int { return s.maxRecords }

// fetch runs one capped paginated fetch under a span.
func (s *Source) fetch(ctx context.Context, resource string, params url.Values) ([]json.RawMessage, Fetch, error) {
	ctx, span := sourceTracer.Start(ctx, "records.Source.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("resource", resource),
		attribute.Int("max_records", s.maxRecords),
	)

	batch, err := s.fetcher.FetchAll(ctx, resource, params, s.maxRecords)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, Fetch{Resource: resource}, err
	}
	f := Fetch{Resource: resource, Records: len(batch.Records), Pages: batch.Pages, Truncated: batch.Truncated}
	span.SetAttributes(
		attribute.Int("records", f.Records),
		attribute.Bool("truncated", f.Truncated),
	)
	span.SetStatus(codes.Ok, "")
	recordFetch(ctx, f)
	return batch.Records, f, nil
}

// scrubbed applies a batch scrubber. Rejected records are logged, counted
// and carried on the returned Fetch.
func scrubbed[T any](ctx context.Context, s *Source, resource string, raws []json.RawMessage, f Fetch, fn func([]json.RawMessage) ([]T, []apierr.DataIntegrityError)) ([]T, Fetch) {
	out, rejected := fn(raws)
	if len(rejected) > 0 {
		recordRejected(ctx, resource, len(rejected))
		s.logger.Warn("scrub rejected upstream records",
			slog.String("resource", resource),
			slog.Int("rejected", len(rejected)),
			slog.Int("kept", len(out)),
		)
		f.Rejected = rejected
	}
	return out, f
}

// windowParams renders the range window as the upstream's after/before pair.
func windowParams(rng query.DateRange, after, before string) url.Values {
	from, to := rng.Window()
	q := url.Values{}
	q.Set(after, from.UTC().Format(time.RFC3339))
	q.Set(before, to.UTC().Format(time.RFC3339))
	return q
}

func setTechnician(q url.Values, technicianID int64) {
	if technicianID != 0 {
		q.Set("technicianId", strconv.FormatInt(technicianID, 10))
	}
}

// JobParams builds the jobs query for a range and optional technician.
func JobParams(rng query.DateRange, technicianID int64) url.Values {
	q := windowParams(rng, "completedOnOrAfter", "completedBefore")
	setTechnician(q, technicianID)
	return q
}

// AppointmentParams builds the appointments query for a range and optional
// technician.
func AppointmentParams(rng query.DateRange, technicianID int64) url.Values {
	q := windowParams(rng, "startsOnOrAfter", "startsBefore")
	setTechnician(q, technicianID)
	return q
}

// InvoiceParams builds the invoices query. The upstream filters invoices by
// modification time only.
func InvoiceParams(rng query.DateRange) url.Values {
	from, _ := rng.Window()
	q := url.Values{}
	q.Set("modifiedOnOrAfter", from.UTC().Format(time.RFC3339))
	return q
}

// Technicians fetches active technicians.
func (s *Source) Technicians(ctx context.Context) ([]scrub.Technician, Fetch, error) {
	q := url.Values{}
	q.Set("active", "true")
	raws, f, err := s.fetch(ctx, ResourceTechnicians, q)
	if err != nil {
		return nil, f, err
	}
	out, f := scrubbed(ctx, s, ResourceTechnicians, raws, f, scrub.ScrubTechnicians)
	return out, f, nil
}

// Jobs fetches jobs completed in the range. A non-zero technicianID narrows
// the query upstream.
func (s *Source) Jobs(ctx context.Context, rng query.DateRange, technicianID int64) ([]scrub.Job, Fetch, error) {
	raws, f, err := s.fetch(ctx, ResourceJobs, JobParams(rng, technicianID))
	if err != nil {
		return nil, f, err
	}
	out, f := scrubbed(ctx, s, ResourceJobs, raws, f, scrub.ScrubJobs)
	return out, f, nil
}

// JobSummaries fetches jobs like Jobs but keeps each job's summary text as a
// scrub.SensitiveSummary.
func (s *Source) JobSummaries(ctx context.Context, rng query.DateRange, technicianID int64) ([]scrub.SensitiveSummary, Fetch, error) {
	raws, f, err := s.fetch(ctx, ResourceJobs, JobParams(rng, technicianID))
	if err != nil {
		return nil, f, err
	}
	out, f := scrubbed(ctx, s, ResourceJobs, raws, f, scrub.ScrubJobSummaries)
	return out, f, nil
}

// Appointments fetches appointments starting in the range.
func (s *Source) Appointments(ctx context.Context, rng query.DateRange, technicianID int64) ([]scrub.Appointment, Fetch, error) {
	raws, f, err := s.fetch(ctx, ResourceAppointments, AppointmentParams(rng, technicianID))
	if err != nil {
		return nil, f, err
	}
	out, f := scrubbed(ctx, s, ResourceAppointments, raws, f, scrub.ScrubAppointments)
	return out, f, nil
}

// Invoices fetches invoices modified since the range start and keeps those
// whose invoice date falls inside the range.
func (s *Source) Invoices(ctx context.Context, rng query.DateRange) ([]scrub.Invoice, Fetch, error) {
	raws, f, err := s.fetch(ctx, ResourceInvoices, InvoiceParams(rng))
	if err != nil {
		return nil, f, err
	}
	all, f := scrubbed(ctx, s, ResourceInvoices, raws, f, scrub.ScrubInvoices)
	kept := all[:0]
	for _, inv := range all {
		if rng.Contains(inv.InvoiceDate()) {
			kept = append(kept, inv)
		}
	}
	return kept, f, nil
}

// JobTypes fetches the job type reference set.
func (s *Source) JobTypes(ctx context.Context) ([]scrub.Reference, Fetch, error) {
	return s.references(ctx, ResourceJobTypes)
}

// BusinessUnits fetches the business unit reference set.
func (s *Source) BusinessUnits(ctx context.Context) ([]scrub.Reference, Fetch, error) {
	return s.references(ctx, ResourceBusinessUnits)
}

// TagTypes fetches the tag type reference set.
func (s *Source) TagTypes(ctx context.Context) ([]scrub.Reference, Fetch, error) {
	return s.references(ctx, ResourceTagTypes)
}

func (s *Source) references(ctx context.Context, resource string) ([]scrub.Reference, Fetch, error) {
	raws, f, err := s.fetch(ctx, resource, url.Values{})
	if err != nil {
		return nil, f, err
	}
	out, f := scrubbed(ctx, s, resource, raws, f, scrub.ScrubReferences)
	return out, f, nil
}

// TechnicianCandidates adapts technicians for name resolution.
func TechnicianCandidates(techs []scrub.Technician) []query.Candidate {
	out := make([]query.Candidate, 0, len(techs))
	for _, t := range techs {
		out = append(out, query.Candidate{ID: t.ID(), Name: t.Name()})
	}
	return out
}

// ReferenceCandidates adapts a reference set for name resolution.
func ReferenceCandidates(refs []scrub.Reference) []query.Candidate {
	out := make([]query.Candidate, 0, len(refs))
	for _, r := range refs {
		out = append(out, query.Candidate{ID: r.ID(), Name: r.Name()})
	}
	return out
}
