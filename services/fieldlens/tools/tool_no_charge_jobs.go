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
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
)

var noChargeJobsTracer = otel.Tracer("tools.get_no_charge_jobs")

// NoChargeOutput contains the structured result.
type NoChargeOutput struct {
	Range     string  `json:"range"`
	TotalJobs int     `json:"total_jobs"`
	NoCharge  int     `json:"no_charge"`
	Pct       float64 `json:"no_charge_pct"`
}

type noChargeJobsTool struct {
	env *Env
}

// NewNoChargeJobsTool creates the get_no_charge_jobs tool.
func NewNoChargeJobsTool(env *Env) Tool {
	return &noChargeJobsTool{env: env}
}

func (t *noChargeJobsTool) Name() string           { return "get_no_charge_jobs" }
func (t *noChargeJobsTool) Category() ToolCategory { return CategoryRevenue }

func (t *noChargeJobsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_no_charge_jobs",
		Description: "Count no-charge jobs and their share of all jobs in a date range.",
		Parameters:  dateParams(nil),
		Category:    CategoryRevenue,
		Timeout:     defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"no charge", "free jobs", "warranty", "unbilled"},
			UseWhen:  "The caller asks how many jobs were done at no charge.",
		},
	}
}

// Execute runs the get_no_charge_jobs tool.
func (t *noChargeJobsTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	a := newArgs(params.ToMap())
	d := readDates(a)
	if err := a.Err(); err != nil {
		return failure(err), nil
	}
	rng, err := t.env.dates(d)
	if err != nil {
		return failure(err), nil
	}

	ctx, span := noChargeJobsTracer.Start(ctx, "noChargeJobsTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_no_charge_jobs"),
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

	s := analytics.SummarizeJobs(jobs)
	c.flag(s.Anomalies...)
	out := NoChargeOutput{Range: rng.Label(), TotalJobs: s.Total, NoCharge: s.NoCharge, Pct: s.NoChargePct}

	var b strings.Builder
	fmt.Fprintf(&b, "No-Charge Jobs  |  %s\n", out.Range)
	b.WriteString(rule(45) + "\n")
	if out.TotalJobs == 0 {
		b.WriteString(noCompletedJobs)
	} else {
		fmt.Fprintf(&b, "No-charge jobs:  %d of %d  (%.1f%%)", out.NoCharge, out.TotalJobs, out.Pct)
	}
	return succeeded(span, c.result(out, b.String()))
}
