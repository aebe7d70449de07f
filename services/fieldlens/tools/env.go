// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/records"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// Env holds the dependencies shared by every tool.
type Env struct {
	Source     *records.Source
	Normalizer *query.Normalizer

	// Attribution selects whether chains and recall summaries credit the
	// original or the recall technician.
	Attribution analytics.Attribution

	// LateWindow is the cancellation notice below which a cancel is late.
	LateWindow time.Duration

	Logger *slog.Logger
}

func (e *Env) loc() *time.Location { return e.Normalizer.Location() }

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// dates resolves a report's date range.
func (e *Env) dates(d DateParams) (query.DateRange, error) {
	return e.Normalizer.DateRange(d.StartDate, d.EndDate)
}

// =============================================================================
// Result Metadata
// =============================================================================

// collector gathers result metadata across the fetches of one invocation.
//
// Thread Safety: Safe for concurrent use.
type collector struct {
	maxRecords int

	mu         sync.Mutex
	truncated  map[string]bool
	incomplete []string
	anomalies  []apierr.DataIntegrityError
	warnings   []string
}

func (e *Env) collect() *collector {
	return &collector{maxRecords: e.Source.MaxRecords(), truncated: make(map[string]bool)}
}

func (c *collector) fetched(f records.Fetch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Truncated {
		c.truncated[f.Resource] = true
	}
	c.anomalies = append(c.anomalies, f.Rejected...)
}

func (c *collector) fanned(resource string, m records.Fanned) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Truncated {
		c.truncated[resource] = true
	}
	c.incomplete = append(c.incomplete, m.Incomplete...)
	c.anomalies = append(c.anomalies, m.Rejected...)
}

func (c *collector) flag(as ...apierr.DataIntegrityError) {
	c.mu.Lock()
	c.anomalies = append(c.anomalies, as...)
	c.mu.Unlock()
}

func (c *collector) warn(msg string) {
	c.mu.Lock()
	c.warnings = append(c.warnings, msg)
	c.mu.Unlock()
}

// result builds a successful Result and appends the metadata notes to the
// text report.
func (c *collector) result(output any, text string) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Result{Success: true, Output: output, Anomalies: c.anomalies}
	warnings := append([]string(nil), c.warnings...)

	if len(c.truncated) > 0 {
		resources := make([]string, 0, len(c.truncated))
		for res := range c.truncated {
			resources = append(resources, res)
		}
		sort.Strings(resources)
		r.Truncated = true
		warnings = append(warnings, fmt.Sprintf(
			"Results were capped at %d records (%s). Narrow the date range for complete figures.",
			c.maxRecords, strings.Join(resources, ", ")))
	}
	if len(c.incomplete) > 0 {
		r.Incomplete = append([]string(nil), c.incomplete...)
		sort.Strings(r.Incomplete)
		warnings = append(warnings, fmt.Sprintf(
			"Data for %s could not be fetched and is excluded from the figures.",
			strings.Join(r.Incomplete, ", ")))
	}
	if n := len(c.anomalies); n > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d record(s) had data inconsistencies; see anomalies in the structured output.", n))
	}

	r.Warnings = warnings
	if len(warnings) > 0 {
		text += "\n\n" + "Note: " + strings.Join(warnings, "\nNote: ")
	}
	r.OutputText = text
	return r
}

// failure converts an error into a failed Result.
func failure(err error) *Result {
	r := &Result{
		Success:   false,
		Error:     apierr.UserMessage(err),
		ErrorKind: apierr.Label(err),
	}
	var rl *apierr.RateLimitError
	if errors.As(err, &rl) {
		r.RetryAfter = rl.RetryAfter
	}
	r.OutputText = "Error: " + r.Error
	return r
}

// ErrorResult converts an error raised outside a tool, such as a quota
// rejection, into the same failed Result a tool would return.
func ErrorResult(err error) *Result { return failure(err) }

// failed records err on span and converts it to a failed Result.
func failed(span trace.Span, err error) (*Result, error) {
	span.RecordError(errors.New(apierr.SafeError(err)))
	span.SetStatus(codes.Error, apierr.Label(err))
	return failure(err), nil
}

// unmatched marks span for a resolution failure.
func unmatched(span trace.Span, res *Result) (*Result, error) {
	span.SetAttributes(attribute.String("outcome", res.ErrorKind))
	span.SetStatus(codes.Error, res.ErrorKind)
	return res, nil
}

// succeeded annotates span with the result metadata.
func succeeded(span trace.Span, res *Result) (*Result, error) {
	span.SetAttributes(
		attribute.Bool("truncated", res.Truncated),
		attribute.Int("incomplete", len(res.Incomplete)),
		attribute.Int("anomalies", len(res.Anomalies)),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// =============================================================================
// Technician Resolution
// =============================================================================

// Resolution failure kinds, reported in Result.ErrorKind.
const (
	KindNotFound  = "not_found"
	KindAmbiguous = "ambiguous"
)

// ResolutionOutput is the structured output of a failed name resolution.
type ResolutionOutput struct {
	Query       string   `json:"query"`
	Ambiguous   []string `json:"ambiguous,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	DidYouMean  []string `json:"did_you_mean,omitempty"`
}

// roster is the active technician list of one invocation.
type roster struct {
	techs []scrub.Technician
	names *query.NameSet
}

func (e *Env) roster(ctx context.Context, c *collector) (*roster, error) {
	techs, f, err := e.Source.Technicians(ctx)
	if err != nil {
		return nil, err
	}
	c.fetched(f)
	return &roster{techs: techs, names: query.NewNameSet(records.TechnicianCandidates(techs))}, nil
}

// resolve finds exactly one technician matching name. The returned Result
// is non-nil when the name matched none or several.
func (r *roster) resolve(name string) (query.Candidate, *Result) {
	res := query.ResolveTechnician(name, records.TechnicianCandidates(r.techs))
	if res.Found() {
		return *res.Match, nil
	}
	return query.Candidate{}, unresolved(res)
}

// resolveOptional is resolve for optional filters; an empty name resolves
// to the zero Candidate.
func (r *roster) resolveOptional(name string) (query.Candidate, *Result) {
	if name == "" {
		return query.Candidate{}, nil
	}
	return r.resolve(name)
}

func unresolved(res query.Resolution) *Result {
	out := ResolutionOutput{Query: res.Query, Suggestions: res.Suggestions, DidYouMean: res.DidYouMean}
	var text, kind string
	if res.IsAmbiguous() {
		for _, c := range res.Ambiguous {
			out.Ambiguous = append(out.Ambiguous, c.Name)
		}
		kind = KindAmbiguous
		text = fmt.Sprintf("%q matches multiple technicians: %s.\nPlease be more specific.",
			res.Query, strings.Join(out.Ambiguous, ", "))
	} else {
		kind = KindNotFound
		text = fmt.Sprintf("No technician found matching %q.", res.Query)
		if len(res.DidYouMean) > 0 {
			text += fmt.Sprintf("\nDid you mean: %s?", strings.Join(res.DidYouMean, ", "))
		}
		if len(res.Suggestions) > 0 {
			text += "\nActive technicians include:\n  " + strings.Join(res.Suggestions, ", ")
		}
	}
	return &Result{Success: false, Output: out, OutputText: text, Error: text, ErrorKind: kind}
}

// =============================================================================
// Reference Names
// =============================================================================

type referenceFetch func(context.Context) ([]scrub.Reference, records.Fetch, error)

// references fetches a reference list and indexes it by id.
func references(ctx context.Context, c *collector, fetch referenceFetch) (*query.NameSet, error) {
	refs, f, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.fetched(f)
	return query.NewNameSet(records.ReferenceCandidates(refs)), nil
}

// parallel runs the fetches of one invocation concurrently and returns
// the first error.
func parallel(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}

// jobsInto returns a fetch that stores the window's jobs in dst.
func (e *Env) jobsInto(c *collector, rng query.DateRange, technicianID int64, dst *[]scrub.Job) func(context.Context) error {
	return func(ctx context.Context) error {
		jobs, f, err := e.Source.Jobs(ctx, rng, technicianID)
		if err != nil {
			return err
		}
		c.fetched(f)
		*dst = jobs
		return nil
	}
}

// appointmentsInto returns a fetch that stores the window's appointments in dst.
func (e *Env) appointmentsInto(c *collector, rng query.DateRange, technicianID int64, dst *[]scrub.Appointment) func(context.Context) error {
	return func(ctx context.Context) error {
		appts, f, err := e.Source.Appointments(ctx, rng, technicianID)
		if err != nil {
			return err
		}
		c.fetched(f)
		*dst = appts
		return nil
	}
}

// namesInto returns a fetch that stores a reference NameSet in dst.
func namesInto(c *collector, fetch referenceFetch, dst **query.NameSet) func(context.Context) error {
	return func(ctx context.Context) error {
		set, err := references(ctx, c, fetch)
		if err != nil {
			return err
		}
		*dst = set
		return nil
	}
}

// rosterInto returns a fetch that stores the technician roster in dst.
func (e *Env) rosterInto(c *collector, dst **roster) func(context.Context) error {
	return func(ctx context.Context) error {
		r, err := e.roster(ctx, c)
		if err != nil {
			return err
		}
		*dst = r
		return nil
	}
}
