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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
)

var jobsSummaryTracer = otel.Tracer("tools.get_jobs_summary")

// JobsSummaryParams contains the validated input for get_jobs_summary.
type JobsSummaryParams struct {
	DateParams
}

// ToolName returns the tool name for TypedParams interface.
func (p JobsSummaryParams) ToolName() string { return "get_jobs_summary" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p JobsSummaryParams) ToMap() map[string]any { return p.put(map[string]any{}) }

type jobsSummaryTool struct {
	env *Env
}

// NewJobsSummaryTool creates the get_jobs_summary tool.
func NewJobsSummaryTool(env *Env) Tool {
	return &jobsSummaryTool{env: env}
}

func (t *jobsSummaryTool) Name() string           { return "get_jobs_summary" }
func (t *jobsSummaryTool) Category() ToolCategory { return CategoryJobs }

func (t *jobsSummaryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_jobs_summary",
		Description: "Count all jobs in a date range across the business, broken down by status.",
		Parameters:  dateParams(nil),
		Category:    CategoryJobs,
		Timeout:     defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"total jobs", "business jobs", "job summary"},
			UseWhen:  "The caller asks about job volume for the whole business.",
		},
	}
}

// Execute runs the get_jobs_summary tool.
func (t *jobsSummaryTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	a := newArgs(params.ToMap())
	p := JobsSummaryParams{DateParams: readDates(a)}
	if err := a.Err(); err != nil {
		return failure(err), nil
	}
	rng, err := t.env.dates(p.DateParams)
	if err != nil {
		return failure(err), nil
	}

	ctx, span := jobsSummaryTracer.Start(ctx, "jobsSummaryTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_jobs_summary"),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	c := t.env.collect()
	jobs, f, err := t.env.Source.Jobs(ctx, rng, 0)
	if err != nil {
		return failed(span, err)
	}
	c.fetched(f)

	out := StatusReportOutput{Range: rng.Label(), Summary: analytics.SummarizeJobs(jobs)}
	c.flag(out.Summary.Anomalies...)
	return succeeded(span, c.result(out, formatStatusReport(out)))
}
