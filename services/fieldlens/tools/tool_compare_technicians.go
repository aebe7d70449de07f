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
	"github.com/AleutianAI/FieldLens/services/fieldlens/records"
)

var compareTechniciansTracer = otel.Tracer("tools.compare_technicians")

// LeaderboardOutput contains the structured result.
type LeaderboardOutput struct {
	Range string `json:"range"`
	analytics.Leaderboard
}

type compareTechniciansTool struct {
	env *Env
}

// NewCompareTechniciansTool creates the compare_technicians tool.
func NewCompareTechniciansTool(env *Env) Tool {
	return &compareTechniciansTool{env: env}
}

func (t *compareTechniciansTool) Name() string           { return "compare_technicians" }
func (t *compareTechniciansTool) Category() ToolCategory { return CategoryRevenue }

func (t *compareTechniciansTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "compare_technicians",
		Description: "Rank every active technician by revenue with job counts, revenue per billed job, and no-charge counts.",
		Parameters:  dateParams(nil),
		Category:    CategoryRevenue,
		Timeout:     fanOutTimeout,
		WhenToUse: WhenToUse{
			Keywords:  []string{"compare", "rank", "leaderboard", "top technician", "best"},
			UseWhen:   "The caller wants technicians side by side.",
			AvoidWhen: "Only one technician is asked about; use get_technician_revenue.",
		},
	}
}

// Execute runs the compare_technicians tool.
//
// Description:
//
//	Jobs are fetched once per active technician with the technician filter
//	applied upstream, so each row matches that technician's own revenue
//	report. A technician whose fetch fails is listed as incomplete.
func (t *compareTechniciansTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	a := newArgs(params.ToMap())
	d := readDates(a)
	if err := a.Err(); err != nil {
		return failure(err), nil
	}
	rng, err := t.env.dates(d)
	if err != nil {
		return failure(err), nil
	}

	ctx, span := compareTechniciansTracer.Start(ctx, "compareTechniciansTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "compare_technicians"),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	c := t.env.collect()
	r, err := t.env.roster(ctx, c)
	if err != nil {
		return failed(span, err)
	}
	branches, meta := t.env.Source.JobsByTechnician(ctx, rng, records.Branches(r.techs))
	c.fanned(records.ResourceJobs, meta)
	if err := ctx.Err(); err != nil {
		return failed(span, err)
	}

	out := LeaderboardOutput{Range: rng.Label(), Leaderboard: analytics.BuildLeaderboard(branches)}
	c.flag(out.Anomalies...)
	span.SetAttributes(attribute.Int("branches", len(branches)), attribute.Int("rows", len(out.Rows)))
	return succeeded(span, c.result(out, formatLeaderboard(out)))
}

func formatLeaderboard(out LeaderboardOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Technician Comparison  |  %s\n", out.Range)
	if len(out.Rows) == 0 {
		b.WriteString(rule(55) + "\n")
		b.WriteString("No jobs with assigned technicians found in this date range.")
		return b.String()
	}

	names := make([]string, 0, len(out.Rows))
	for _, row := range out.Rows {
		names = append(names, row.Name)
	}
	nw := nameWidth(10, "Technician", names...)
	tab := newTable(&b, fmt.Sprintf("%-*s  %5s  %12s  %10s  %9s", nw, "Technician", "Jobs", "Revenue", "$/Job", "No-charge"))
	for _, row := range out.Rows {
		tab.line(fmt.Sprintf("%-*s  %5d  %12s  %10s  %9d", nw, row.Name, row.Jobs,
			analytics.Currency(row.Revenue), analytics.Currency(row.PerBilled), row.NoCharge))
	}
	tab.rule()
	tab.line(fmt.Sprintf("%-*s  %5d  %12s  %10s  %9d", nw, "TOTAL", out.TotalJobs,
		analytics.Currency(out.TotalRevenue), analytics.Currency(out.TotalPerBilled), out.TotalNoCharge))

	if len(out.Idle) > 0 {
		fmt.Fprintf(&b, "\n(No jobs in this range: %s)\n", strings.Join(out.Idle, ", "))
	}
	return finish(&b)
}
