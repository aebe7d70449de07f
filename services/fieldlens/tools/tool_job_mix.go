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
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

var jobMixTracer = otel.Tracer("tools.get_technician_job_mix")

// JobMixParams contains the validated input for get_technician_job_mix.
type JobMixParams struct {
	DateParams
	TechnicianName string
}

// ToolName returns the tool name for TypedParams interface.
func (p JobMixParams) ToolName() string { return "get_technician_job_mix" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p JobMixParams) ToMap() map[string]any {
	return p.put(map[string]any{"technician_name": p.TechnicianName})
}

// JobMixOutput contains the structured result.
type JobMixOutput struct {
	Technician string `json:"technician"`
	Range      string `json:"range"`
	analytics.JobMix
}

type jobMixTool struct {
	env *Env
}

// NewJobMixTool creates the get_technician_job_mix tool.
func NewJobMixTool(env *Env) Tool {
	return &jobMixTool{env: env}
}

func (t *jobMixTool) Name() string           { return "get_technician_job_mix" }
func (t *jobMixTool) Category() ToolCategory { return CategoryRevenue }

func (t *jobMixTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_technician_job_mix",
		Description: "Break one technician's jobs down by job type with billed counts, revenue, and shares of jobs and revenue.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": technicianNameParam,
		}),
		Category: CategoryRevenue,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"job mix", "what kind of jobs", "job types", "specialty"},
			UseWhen:  "The caller asks what kinds of work a technician does.",
		},
	}
}

// Execute runs the get_technician_job_mix tool.
func (t *jobMixTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	_, name, rng, err := parseTechnicianRange(t.env, params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := jobMixTracer.Start(ctx, "jobMixTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_technician_job_mix"),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	var (
		c     = t.env.collect()
		r     *roster
		types *query.NameSet
	)
	if err := parallel(ctx, t.env.rosterInto(c, &r), namesInto(c, t.env.Source.JobTypes, &types)); err != nil {
		return failed(span, err)
	}
	tech, miss := r.resolve(name)
	if miss != nil {
		return unmatched(span, miss)
	}
	var jobs []scrub.Job
	if err := t.env.jobsInto(c, rng, tech.ID, &jobs)(ctx); err != nil {
		return failed(span, err)
	}

	out := JobMixOutput{Technician: tech.Name, Range: rng.Label(), JobMix: analytics.BuildJobMix(jobs, types)}
	c.flag(out.Anomalies...)
	span.SetAttributes(attribute.Int("job_types", len(out.Rows)))
	return succeeded(span, c.result(out, formatJobMix(out)))
}

func formatJobMix(out JobMixOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job Mix for %s  |  %s\n", out.Technician, out.Range)
	if len(out.Rows) == 0 {
		b.WriteString(rule(50) + "\n")
		b.WriteString(noJobs)
		return b.String()
	}

	names := make([]string, 0, len(out.Rows))
	for _, row := range out.Rows {
		names = append(names, row.Name)
	}
	nw := nameWidth(10, "Job Type", names...)
	tab := newTable(&b, fmt.Sprintf("%-*s  %5s  %6s  %6s  %10s  %9s  %6s  %6s",
		nw, "Job Type", "Jobs", "Billed", "No-Chg", "Revenue", "Avg $/Job", "% Jobs", "% Rev"))
	for _, row := range out.Rows {
		tab.line(fmt.Sprintf("%-*s  %5d  %6d  %6d  %10s  %9s  %5.1f%%  %5.1f%%",
			nw, row.Name, row.Jobs, row.Billed, row.NoCharge,
			analytics.Currency(row.Revenue), analytics.Currency(row.Avg), row.PctJobs, row.PctRev))
	}
	tab.rule()

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  %d total jobs  |  %d billed  |  %d no-charge\n", out.TotalJobs, out.TotalBilled, out.TotalNoCharge)
	fmt.Fprintf(&b, "  %s total revenue  |  %s avg/billed job\n",
		analytics.Currency(out.TotalRevenue), analytics.Currency(out.AvgPerBilled))
	fmt.Fprintf(&b, "  %d unique job types\n", len(out.Rows))
	if out.TopByVolume != nil {
		fmt.Fprintf(&b, "  Top by volume: %s (%d)\n", out.TopByVolume.Name, out.TopByVolume.Jobs)
		fmt.Fprintf(&b, "  Top by revenue: %s (%s)\n", out.TopByRevenue.Name, analytics.Currency(out.TopByRevenue.Revenue))
	}
	return finish(&b)
}
