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

var revenueSummaryTracer = otel.Tracer("tools.get_revenue_summary")

type revenueSummaryTool struct {
	env *Env
}

// NewRevenueSummaryTool creates the get_revenue_summary tool.
func NewRevenueSummaryTool(env *Env) Tool {
	return &revenueSummaryTool{env: env}
}

func (t *revenueSummaryTool) Name() string           { return "get_revenue_summary" }
func (t *revenueSummaryTool) Category() ToolCategory { return CategoryRevenue }

func (t *revenueSummaryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_revenue_summary",
		Description: "Total revenue and billed versus no-charge job counts for the whole business.",
		Parameters:  dateParams(nil),
		Category:    CategoryRevenue,
		Timeout:     defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"total revenue", "business revenue", "company sales"},
			UseWhen:  "The caller asks how much the business made in a period.",
		},
	}
}

// Execute runs the get_revenue_summary tool.
func (t *revenueSummaryTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	a := newArgs(params.ToMap())
	d := readDates(a)
	if err := a.Err(); err != nil {
		return failure(err), nil
	}
	rng, err := t.env.dates(d)
	if err != nil {
		return failure(err), nil
	}

	ctx, span := revenueSummaryTracer.Start(ctx, "revenueSummaryTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_revenue_summary"),
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

	out := RevenueReportOutput{Range: rng.Label(), Summary: analytics.SummarizeJobs(jobs)}
	c.flag(out.Summary.Anomalies...)
	return succeeded(span, c.result(out, formatRevenueReport(out)))
}
