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

var recallSummaryTracer = otel.Tracer("tools.get_recall_summary")

// RecallSummaryParams contains the validated input for get_recall_summary.
type RecallSummaryParams struct {
	DateParams
	GroupBy string
}

// ToolName returns the tool name for TypedParams interface.
func (p RecallSummaryParams) ToolName() string { return "get_recall_summary" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p RecallSummaryParams) ToMap() map[string]any {
	m := map[string]any{}
	if p.GroupBy != "" {
		m["group_by"] = p.GroupBy
	}
	return p.put(m)
}

// RecallSummaryOutput contains the structured result.
type RecallSummaryOutput struct {
	Range       string                `json:"range"`
	GroupBy     string                `json:"group_by"`
	GroupLabel  string                `json:"group_label"`
	Attribution analytics.Attribution `json:"attribution"`
	OverallPct  float64               `json:"overall_recall_pct"`
	analytics.RecallSummary
}

type recallSummaryTool struct {
	env *Env
}

// NewRecallSummaryTool creates the get_recall_summary tool.
func NewRecallSummaryTool(env *Env) Tool {
	return &recallSummaryTool{env: env}
}

func (t *recallSummaryTool) Name() string           { return "get_recall_summary" }
func (t *recallSummaryTool) Category() ToolCategory { return CategoryQuality }

func (t *recallSummaryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_recall_summary",
		Description: "Recall rate per technician, business unit, or job type, with a classification of every GO BACK job.",
		Parameters: dateParams(map[string]ParamDef{
			"group_by": {
				Type:        ParamTypeString,
				Description: "Grouping dimension",
				Default:     string(query.GroupTechnician),
				Enum:        []any{string(query.GroupTechnician), string(query.GroupBusinessUnit), string(query.GroupJobType)},
			},
		}),
		Category: CategoryQuality,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords:  []string{"recall rate", "callback rate", "quality", "go back", "first time fix"},
			UseWhen:   "The caller wants recall rates compared across technicians or units.",
			AvoidWhen: "The caller wants the individual recall jobs; use get_recalls.",
		},
	}
}

func (t *recallSummaryTool) parseParams(m map[string]any) (RecallSummaryParams, query.GroupBy, query.DateRange, error) {
	a := newArgs(m)
	p := RecallSummaryParams{DateParams: readDates(a), GroupBy: a.str("group_by")}
	if err := a.Err(); err != nil {
		return p, "", query.DateRange{}, err
	}
	group, err := query.ParseGroupBy(p.GroupBy, query.GroupTechnician,
		query.GroupTechnician, query.GroupBusinessUnit, query.GroupJobType)
	if err != nil {
		return p, "", query.DateRange{}, err
	}
	rng, err := t.env.dates(p.DateParams)
	return p, group, rng, err
}

// Execute runs the get_recall_summary tool.
func (t *recallSummaryTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	_, group, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := recallSummaryTracer.Start(ctx, "recallSummaryTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_recall_summary"),
			attribute.String("group_by", string(group)),
			attribute.String("attribution", string(t.env.Attribution)),
		),
	)
	defer span.End()

	var (
		c     = t.env.collect()
		r     *roster
		types *query.NameSet
		units *query.NameSet
		tags  *query.NameSet
		jobs  []scrub.Job
	)
	err = parallel(ctx,
		t.env.rosterInto(c, &r),
		namesInto(c, t.env.Source.JobTypes, &types),
		namesInto(c, t.env.Source.BusinessUnits, &units),
		namesInto(c, t.env.Source.TagTypes, &tags),
		t.env.jobsInto(c, rng, 0, &jobs),
	)
	if err != nil {
		return failed(span, err)
	}

	var dim analytics.Dimension
	switch group {
	case query.GroupBusinessUnit:
		dim = analytics.ByBusinessUnit(units)
	case query.GroupJobType:
		dim = analytics.ByJobType(types)
	default:
		dim = analytics.ByTechnician(r.names)
	}

	summary := analytics.BuildRecallSummary(jobs, dim, types, tags, t.env.Attribution)
	c.flag(summary.Anomalies...)
	out := RecallSummaryOutput{
		Range:         rng.Label(),
		GroupBy:       string(group),
		GroupLabel:    dim.Label,
		Attribution:   t.env.Attribution,
		RecallSummary: summary,
	}
	if summary.TotalCompleted > 0 {
		out.OverallPct = float64(summary.TotalRecalls) / float64(summary.TotalCompleted) * 100
	}
	span.SetAttributes(attribute.Int("recalls", summary.TotalRecalls), attribute.Int("groups", len(summary.Rows)))
	return succeeded(span, c.result(out, formatRecallSummary(out)))
}

func formatRecallSummary(out RecallSummaryOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recall Summary  |  %s  |  by %s\n", out.Range, out.GroupLabel)
	b.WriteString(listRule + "\n")
	if out.TotalRecalls == 0 {
		b.WriteString("No recall jobs found in this date range.\n\n")
		fmt.Fprintf(&b, "Total GO BACK jobs: %d\n", out.ExactGoBackJobs)
		b.WriteString("None have recallForId set (no true recalls via Recall action).")
		return b.String()
	}

	groups := make([]string, len(out.Rows))
	for i, row := range out.Rows {
		groups[i] = row.Group
	}
	w := nameWidth(10, "", groups...)
	for _, row := range out.Rows {
		fmt.Fprintf(&b, "%-*s  |  %d %s / %d jobs  |  %s",
			w, row.Group, row.Recalls, plural(row.Recalls, "recall", "recalls"), row.Completed, pct1(row.RatePct))
		if row.Recalls > 0 {
			if row.HasDays {
				fmt.Fprintf(&b, "  |  Avg %dd to recall", row.AvgDays)
			}
			fmt.Fprintf(&b, "  |  ~%s opp cost", analytics.CurrencyShort(row.OpportunityCost))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + listRule + "\n")

	g := out.GoBack
	b.WriteString("GO BACK Classification (all GO BACK jobs in range):\n")
	fmt.Fprintf(&b, "  True Recalls (recallForId set):       %4d  (%s of completed jobs)\n", g.TrueRecalls, pct1(g.RecallPct))
	fmt.Fprintf(&b, "  Set Test (tag-based):                 %4d\n", g.SetTests)
	fmt.Fprintf(&b, "  Other GO BACK / Unclassified:         %4d\n", g.Other)
	fmt.Fprintf(&b, "  Total GO BACK jobs:                   %4d\n\n", g.Total)

	fmt.Fprintf(&b, "Overall Recall Rate:    %s  (%d recalls / %d completed jobs)\n",
		pct1(out.OverallPct), out.TotalRecalls, out.TotalCompleted)
	fmt.Fprintf(&b, "Total Opportunity Cost: ~%s", analytics.CurrencyShort(out.TotalCost))
	return b.String()
}
