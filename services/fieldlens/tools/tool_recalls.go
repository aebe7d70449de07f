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

var recallsTracer = otel.Tracer("tools.get_recalls")

// recallOnlyNote explains which jobs count as recalls.
const recallOnlyNote = "Note: Only jobs booked via Job Actions → 'Recall...' are counted here. " +
	"GO BACK jobs without a recallForId are not true recalls."

// RecallsParams contains the validated input for get_recalls.
type RecallsParams struct {
	DateParams
	TechnicianName string
	BusinessUnit   string
}

// ToolName returns the tool name for TypedParams interface.
func (p RecallsParams) ToolName() string { return "get_recalls" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p RecallsParams) ToMap() map[string]any {
	m := map[string]any{}
	if p.TechnicianName != "" {
		m["technician_name"] = p.TechnicianName
	}
	if p.BusinessUnit != "" {
		m["business_unit"] = p.BusinessUnit
	}
	return p.put(m)
}

// OriginalJob is the job a recall points back to.
type OriginalJob struct {
	JobLine
	Technician string `json:"technician"`
}

// RecallLine is one recall and the job it returns to. Original is nil when
// the original job was completed outside the range.
type RecallLine struct {
	JobLine
	Technician string       `json:"technician"`
	Tags       []string     `json:"tags,omitempty"`
	OriginalID int64        `json:"original_id"`
	Original   *OriginalJob `json:"original,omitempty"`
	DaysLater  int          `json:"days_later,omitempty"`
	HasDays    bool         `json:"has_days"`
}

// RecallsOutput contains the structured result.
type RecallsOutput struct {
	Range        string       `json:"range"`
	Technician   string       `json:"technician,omitempty"`
	BusinessUnit string       `json:"business_unit,omitempty"`
	Recalls      []RecallLine `json:"recalls"`
	Orphans      int          `json:"orphans"`
}

type recallsTool struct {
	env *Env
}

// NewRecallsTool creates the get_recalls tool.
func NewRecallsTool(env *Env) Tool {
	return &recallsTool{env: env}
}

func (t *recallsTool) Name() string           { return "get_recalls" }
func (t *recallsTool) Category() ToolCategory { return CategoryQuality }

func (t *recallsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_recalls",
		Description: "List recall jobs (jobs linked to an earlier job by recallForId) with the original job each one returns to.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": {
				Type:        ParamTypeString,
				Description: "Optional filter on the technician who ran the recall visit",
			},
			"business_unit": {
				Type:        ParamTypeString,
				Description: "Optional business unit filter; matches any unit whose name contains this text",
			},
		}),
		Category: CategoryQuality,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords:  []string{"recall", "callback", "came back", "go back", "warranty visit"},
			UseWhen:   "The caller wants the individual recall jobs and what they returned to.",
			AvoidWhen: "The caller wants recall rates per technician; use get_recall_summary.",
		},
	}
}

func (t *recallsTool) parseParams(m map[string]any) (RecallsParams, query.DateRange, error) {
	a := newArgs(m)
	p := RecallsParams{
		DateParams:     readDates(a),
		TechnicianName: a.str("technician_name"),
		BusinessUnit:   a.str("business_unit"),
	}
	if err := a.Err(); err != nil {
		return p, query.DateRange{}, err
	}
	var err error
	if p.TechnicianName, err = query.OptionalName("technician_name", p.TechnicianName); err != nil {
		return p, query.DateRange{}, err
	}
	if strings.TrimSpace(p.BusinessUnit) != "" {
		if p.BusinessUnit, err = query.SearchText("business_unit", p.BusinessUnit); err != nil {
			return p, query.DateRange{}, err
		}
	}
	rng, err := t.env.dates(p.DateParams)
	return p, rng, err
}

// Execute runs the get_recalls tool.
func (t *recallsTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := recallsTracer.Start(ctx, "recallsTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_recalls"),
			attribute.Bool("technician_filter", p.TechnicianName != ""),
			attribute.Bool("business_unit_filter", p.BusinessUnit != ""),
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
	tech, miss := r.resolveOptional(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}

	opts := analytics.RecallListOptions{TechnicianID: tech.ID}
	if p.BusinessUnit != "" {
		matched := units.ResolveContains(p.BusinessUnit)
		if len(matched) == 0 {
			available := sample(units.Names())
			text := fmt.Sprintf("Unknown business unit: %q.\nAvailable business units (sample): %s",
				p.BusinessUnit, strings.Join(available, ", "))
			return unmatched(span, unknownNames(text, []string{p.BusinessUnit}, available))
		}
		opts.BusinessUnitIDs = make(map[int64]bool, len(matched))
		for _, u := range matched {
			opts.BusinessUnitIDs[u.ID] = true
		}
	}

	list := analytics.BuildRecallList(jobs, opts)
	c.flag(list.Anomalies...)

	names := lookup{loc: t.env.loc(), techs: r.names, types: types, units: units, tags: tags}
	out := RecallsOutput{
		Range:        rng.Label(),
		Technician:   tech.Name,
		BusinessUnit: p.BusinessUnit,
		Recalls:      make([]RecallLine, 0, len(list.Entries)),
		Orphans:      list.Orphans,
	}
	for _, e := range list.Entries {
		line := RecallLine{
			JobLine:    names.line(e.Recall),
			Technician: names.technician(e.Recall),
			Tags:       names.tagNames(e.Recall),
			OriginalID: e.OriginalID,
			DaysLater:  e.DaysLater,
			HasDays:    e.HasDays,
		}
		if !e.Orphaned() {
			line.Original = &OriginalJob{JobLine: names.line(*e.Original), Technician: names.technician(*e.Original)}
		}
		out.Recalls = append(out.Recalls, line)
	}
	span.SetAttributes(attribute.Int("recalls", len(out.Recalls)), attribute.Int("orphans", out.Orphans))
	return succeeded(span, c.result(out, formatRecalls(out)))
}

func formatRecalls(out RecallsOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recall Jobs  |  %s\n", out.Range)
	b.WriteString(listRule + "\n")
	if out.Technician != "" || out.BusinessUnit != "" {
		if out.Technician != "" {
			fmt.Fprintf(&b, "Filter: Recall Tech = %s\n", out.Technician)
		}
		if out.BusinessUnit != "" {
			fmt.Fprintf(&b, "Filter: Business Unit = %s\n", out.BusinessUnit)
		}
		b.WriteString(listRule + "\n")
	}
	if len(out.Recalls) == 0 {
		b.WriteString("No recall jobs found in this date range.\n\n")
		b.WriteString(recallOnlyNote)
		return b.String()
	}

	for _, rc := range out.Recalls {
		fmt.Fprintf(&b, "Recall #%s  |  %s  |  %s  |  %s%s\n",
			orPlaceholder(rc.JobNumber), orPlaceholder(rc.Date), rc.BusinessUnit, analytics.Currency(rc.Total), noChargeSuffix(rc.JobLine))
		fmt.Fprintf(&b, "  Recall Tech:  %s\n", rc.Technician)
		if len(rc.Tags) > 0 {
			fmt.Fprintf(&b, "  Tags:         %s\n", strings.Join(rc.Tags, ", "))
		}
		if o := rc.Original; o != nil {
			fmt.Fprintf(&b, "  Original Job: #%s  |  %s  |  %s  |  %s  |  %s",
				orPlaceholder(o.JobNumber), orPlaceholder(o.Date), o.JobType, analytics.Currency(o.Total), o.Technician)
			if rc.HasDays {
				fmt.Fprintf(&b, "  |  %dd later", rc.DaysLater)
			}
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "  Original Job: ID %d  (outside current date range — widen dates to see details)\n", rc.OriginalID)
		}
		b.WriteString("\n")
	}
	b.WriteString(listRule + "\n")
	fmt.Fprintf(&b, "Total recalls: %d  |  %s", len(out.Recalls), out.Range)
	return b.String()
}
