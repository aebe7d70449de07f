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
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
)

var technicianJobsTracer = otel.Tracer("tools.get_technician_jobs")

// technicianNameParam is the definition shared by single-technician reports.
var technicianNameParam = ParamDef{
	Type:        ParamTypeString,
	Description: "Technician name or unique part of it, e.g. 'Alice' or 'Smith'",
	Required:    true,
}

// optionalTechnicianParam narrows a company-wide report to one technician.
var optionalTechnicianParam = ParamDef{
	Type:        ParamTypeString,
	Description: "Optional technician name filter; must match exactly one active technician",
}

// TechnicianJobsParams contains the validated input for get_technician_jobs.
type TechnicianJobsParams struct {
	DateParams
	TechnicianName string
}

// ToolName returns the tool name for TypedParams interface.
func (p TechnicianJobsParams) ToolName() string { return "get_technician_jobs" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p TechnicianJobsParams) ToMap() map[string]any {
	return p.put(map[string]any{"technician_name": p.TechnicianName})
}

// StatusReportOutput is the job count report of a technician or the business.
type StatusReportOutput struct {
	// Technician is empty for the business-wide report.
	Technician string               `json:"technician,omitempty"`
	Range      string               `json:"range"`
	Summary    analytics.JobSummary `json:"summary"`
}

type technicianJobsTool struct {
	env *Env
}

// NewTechnicianJobsTool creates the get_technician_jobs tool.
func NewTechnicianJobsTool(env *Env) Tool {
	return &technicianJobsTool{env: env}
}

func (t *technicianJobsTool) Name() string           { return "get_technician_jobs" }
func (t *technicianJobsTool) Category() ToolCategory { return CategoryJobs }

func (t *technicianJobsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_technician_jobs",
		Description: "Count one technician's jobs in a date range, broken down by status.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": technicianNameParam,
		}),
		Category: CategoryJobs,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords:  []string{"how many jobs", "job count", "technician jobs"},
			UseWhen:   "The caller asks how many jobs a specific technician ran.",
			AvoidWhen: "The question is about revenue; use get_technician_revenue.",
		},
	}
}

func (t *technicianJobsTool) parseParams(m map[string]any) (TechnicianJobsParams, query.DateRange, error) {
	d, name, rng, err := parseTechnicianRange(t.env, m)
	return TechnicianJobsParams{DateParams: d, TechnicianName: name}, rng, err
}

// parseTechnicianRange reads the required technician_name and the date
// range shared by single-technician reports.
func parseTechnicianRange(env *Env, m map[string]any) (DateParams, string, query.DateRange, error) {
	a := newArgs(m)
	d, raw := readDates(a), a.str("technician_name")
	if err := a.Err(); err != nil {
		return d, raw, query.DateRange{}, err
	}
	name, err := query.Name("technician_name", raw)
	if err != nil {
		return d, raw, query.DateRange{}, err
	}
	rng, err := env.dates(d)
	return d, name, rng, err
}

// Execute runs the get_technician_jobs tool.
func (t *technicianJobsTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := technicianJobsTracer.Start(ctx, "technicianJobsTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_technician_jobs"),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	c := t.env.collect()
	r, err := t.env.roster(ctx, c)
	if err != nil {
		return failed(span, err)
	}
	tech, miss := r.resolve(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}
	jobs, f, err := t.env.Source.Jobs(ctx, rng, tech.ID)
	if err != nil {
		return failed(span, err)
	}
	c.fetched(f)

	out := StatusReportOutput{Technician: tech.Name, Range: rng.Label(), Summary: analytics.SummarizeJobs(jobs)}
	c.flag(out.Summary.Anomalies...)
	return succeeded(span, c.result(out, formatStatusReport(out)))
}

func formatStatusReport(out StatusReportOutput) string {
	var b strings.Builder
	if out.Technician != "" {
		fmt.Fprintf(&b, "Jobs for %s  |  %s\n", out.Technician, out.Range)
	} else {
		fmt.Fprintf(&b, "Business Job Summary  |  %s\n", out.Range)
	}
	b.WriteString(rule(45) + "\n")
	fmt.Fprintf(&b, "Total jobs:  %d\n", out.Summary.Total)
	if out.Summary.Total == 0 {
		b.WriteString("\n" + noCompletedJobs + "\n")
		return finish(&b)
	}
	b.WriteString("\n")
	for _, sc := range out.Summary.ByStatus {
		fmt.Fprintf(&b, "  %-20s %d\n", sc.Status, sc.Count)
	}
	return finish(&b)
}
