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

var revenueTrendTracer = otel.Tracer("tools.get_revenue_trend")

// monthColumn is the width of a month column in the trend table.
const monthColumn = 8

// RevenueTrendParams contains the validated input for get_revenue_trend.
type RevenueTrendParams struct {
	DateParams

	// GroupBy is job_type or business_unit.
	GroupBy string
}

// ToolName returns the tool name for TypedParams interface.
func (p RevenueTrendParams) ToolName() string { return "get_revenue_trend" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p RevenueTrendParams) ToMap() map[string]any {
	m := map[string]any{}
	if p.GroupBy != "" {
		m["group_by"] = p.GroupBy
	}
	return p.put(m)
}

// TrendOutput contains the structured result.
type TrendOutput struct {
	Range   string `json:"range"`
	GroupBy string `json:"group_by"`
	analytics.Trend
}

type revenueTrendTool struct {
	env *Env
}

// NewRevenueTrendTool creates the get_revenue_trend tool.
func NewRevenueTrendTool(env *Env) Tool {
	return &revenueTrendTool{env: env}
}

func (t *revenueTrendTool) Name() string           { return "get_revenue_trend" }
func (t *revenueTrendTool) Category() ToolCategory { return CategoryRevenue }

func (t *revenueTrendTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_revenue_trend",
		Description: "Monthly revenue per billed job by job type or business unit, with the change from first to last month.",
		Parameters: dateParams(map[string]ParamDef{
			"group_by": {
				Type:        ParamTypeString,
				Description: "Grouping dimension",
				Default:     string(query.GroupJobType),
				Enum:        []any{string(query.GroupJobType), string(query.GroupBusinessUnit)},
			},
		}),
		Category: CategoryRevenue,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"trend", "month over month", "over time", "growing", "declining"},
			UseWhen:  "The caller asks how revenue per job changed across months; 60 to 90 day ranges work best.",
		},
	}
}

// Execute runs the get_revenue_trend tool.
func (t *revenueTrendTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	a := newArgs(params.ToMap())
	p := RevenueTrendParams{DateParams: readDates(a), GroupBy: a.str("group_by")}
	if err := a.Err(); err != nil {
		return failure(err), nil
	}
	group, err := query.ParseGroupBy(p.GroupBy, query.GroupJobType, query.GroupJobType, query.GroupBusinessUnit)
	if err != nil {
		return failure(err), nil
	}
	rng, err := t.env.dates(p.DateParams)
	if err != nil {
		return failure(err), nil
	}

	ctx, span := revenueTrendTracer.Start(ctx, "revenueTrendTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_revenue_trend"),
			attribute.String("group_by", string(group)),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	c := t.env.collect()
	fetchNames := t.env.Source.JobTypes
	if group == query.GroupBusinessUnit {
		fetchNames = t.env.Source.BusinessUnits
	}
	var (
		names *query.NameSet
		jobs  []scrub.Job
	)
	err = parallel(ctx,
		namesInto(c, fetchNames, &names),
		t.env.jobsInto(c, rng, 0, &jobs),
	)
	if err != nil {
		return failed(span, err)
	}

	dim := analytics.ByJobType(names)
	if group == query.GroupBusinessUnit {
		dim = analytics.ByBusinessUnit(names)
	}
	from, to := rng.Window()
	out := TrendOutput{Range: rng.Label(), GroupBy: string(group), Trend: analytics.BuildTrend(jobs, dim, from, to, t.env.loc())}
	span.SetAttributes(attribute.Int("rows", len(out.Rows)), attribute.Int("months", len(out.Months)))
	return succeeded(span, c.result(out, formatTrend(out, dim.Label)))
}

func monthCells(cells []analytics.MonthCell) string {
	parts := make([]string, 0, len(cells))
	for _, mc := range cells {
		v := analytics.Placeholder
		if mc.Billed > 0 {
			v = analytics.CurrencyShort(mc.Avg)
		}
		parts = append(parts, fmt.Sprintf("%*s", monthColumn, v))
	}
	return strings.Join(parts, "  ")
}

func change(row analytics.TrendRow) string {
	if !row.HasChange {
		return analytics.Placeholder
	}
	return analytics.Signed(row.Change)
}

func formatTrend(out TrendOutput, label string) string {
	var b strings.Builder
	if len(out.Rows) == 0 {
		fmt.Fprintf(&b, "Revenue Trend by %s  |  %s\n", label, out.Range)
		b.WriteString(rule(50) + "\n")
		b.WriteString(noJobs)
		return b.String()
	}

	names := make([]string, 0, len(out.Rows))
	for _, row := range out.Rows {
		names = append(names, row.Name)
	}
	nw := nameWidth(10, label, names...)
	months := make([]string, 0, len(out.Months))
	for _, m := range out.Months {
		months = append(months, fmt.Sprintf("%*s", monthColumn, m.Label))
	}

	fmt.Fprintf(&b, "Revenue per Job Trend by %s  |  %s\n", label, out.Range)
	tab := newTable(&b, fmt.Sprintf("%-*s  %5s  %10s  %s  %8s", nw, label, "Jobs", "Avg $/Job", strings.Join(months, "  "), "Change"))
	row := func(r analytics.TrendRow) {
		tab.line(fmt.Sprintf("%-*s  %5d  %10s  %s  %8s", nw, r.Name, r.Jobs,
			analytics.Currency(r.Avg), monthCells(r.Months), change(r)))
	}
	for _, r := range out.Rows {
		row(r)
	}
	tab.rule()
	row(out.Total)

	if len(out.Months) < 2 {
		b.WriteString("\n(Only 1 month in range — use 60-90 days for meaningful trends)\n")
	}
	return finish(&b)
}
