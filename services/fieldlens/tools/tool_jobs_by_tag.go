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

var jobsByTagTracer = otel.Tracer("tools.get_jobs_by_tag")

// JobsByTagParams contains the validated input for get_jobs_by_tag.
type JobsByTagParams struct {
	DateParams
	TagNames       string
	TechnicianName string
}

// ToolName returns the tool name for TypedParams interface.
func (p JobsByTagParams) ToolName() string { return "get_jobs_by_tag" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p JobsByTagParams) ToMap() map[string]any {
	m := map[string]any{"tag_names": p.TagNames}
	if p.TechnicianName != "" {
		m["technician_name"] = p.TechnicianName
	}
	return p.put(m)
}

// TaggedJobLine is one job in a tag listing.
type TaggedJobLine struct {
	JobLine
	Status     string   `json:"status"`
	Technician string   `json:"technician"`
	Recall     bool     `json:"recall"`
	Matched    []string `json:"matched"`
	Others     []string `json:"others,omitempty"`
}

// JobsByTagOutput contains the structured result.
type JobsByTagOutput struct {
	Range      string          `json:"range"`
	Tags       []string        `json:"tags"`
	Technician string          `json:"technician,omitempty"`
	Jobs       []TaggedJobLine `json:"jobs"`
	Total      int             `json:"total"`
}

type jobsByTagTool struct {
	env *Env
}

// NewJobsByTagTool creates the get_jobs_by_tag tool.
func NewJobsByTagTool(env *Env) Tool {
	return &jobsByTagTool{env: env}
}

func (t *jobsByTagTool) Name() string           { return "get_jobs_by_tag" }
func (t *jobsByTagTool) Category() ToolCategory { return CategoryQuality }

func (t *jobsByTagTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_jobs_by_tag",
		Description: "List jobs carrying any of the given tags, showing matched and other tags on each job.",
		Parameters: dateParams(map[string]ParamDef{
			"tag_names": {
				Type:        ParamTypeString,
				Description: "Comma-separated exact tag names, e.g. 'SET TEST, Warranty'",
				Required:    true,
			},
			"technician_name": optionalTechnicianParam,
		}),
		Category: CategoryQuality,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"tag", "tagged", "set test", "warranty", "label"},
			UseWhen:  "The caller names one or more job tags and wants the jobs carrying them.",
		},
	}
}

func (t *jobsByTagTool) parseParams(m map[string]any) (JobsByTagParams, []string, query.DateRange, error) {
	a := newArgs(m)
	p := JobsByTagParams{
		DateParams:     readDates(a),
		TagNames:       a.list("tag_names"),
		TechnicianName: a.str("technician_name"),
	}
	if err := a.Err(); err != nil {
		return p, nil, query.DateRange{}, err
	}
	wanted, err := query.List("tag_names", p.TagNames)
	if err != nil {
		return p, nil, query.DateRange{}, err
	}
	if p.TechnicianName, err = query.OptionalName("technician_name", p.TechnicianName); err != nil {
		return p, nil, query.DateRange{}, err
	}
	rng, err := t.env.dates(p.DateParams)
	return p, wanted, rng, err
}

// Execute runs the get_jobs_by_tag tool.
func (t *jobsByTagTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, wanted, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := jobsByTagTracer.Start(ctx, "jobsByTagTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_jobs_by_tag"),
			attribute.Int("tags", len(wanted)),
			attribute.Bool("technician_filter", p.TechnicianName != ""),
		),
	)
	defer span.End()

	var (
		c     = t.env.collect()
		r     *roster
		types *query.NameSet
		tags  *query.NameSet
		jobs  []scrub.Job
	)
	err = parallel(ctx,
		t.env.rosterInto(c, &r),
		namesInto(c, t.env.Source.JobTypes, &types),
		namesInto(c, t.env.Source.TagTypes, &tags),
		t.env.jobsInto(c, rng, 0, &jobs),
	)
	if err != nil {
		return failed(span, err)
	}

	found, unknown := tags.Resolve(wanted)
	if len(unknown) > 0 {
		available := tags.Names()
		text := fmt.Sprintf("Unknown tag name(s): %s\n\nAvailable tags: %s",
			strings.Join(unknown, ", "), strings.Join(available, ", "))
		return unmatched(span, unknownNames(text, unknown, available))
	}
	tech, miss := r.resolveOptional(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}

	ids := make([]int64, 0, len(found))
	names := make([]string, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.ID)
		names = append(names, f.Name)
	}
	listing := analytics.JobsByTag(jobs, ids, tech.ID, r.names, types, tags)

	out := JobsByTagOutput{
		Range:      rng.Label(),
		Tags:       names,
		Technician: tech.Name,
		Jobs:       make([]TaggedJobLine, 0, len(listing.Items)),
		Total:      listing.Total,
	}
	loc := t.env.loc()
	for _, it := range listing.Items {
		line := jobLine(it.Job, loc, nil)
		line.JobType = it.JobType
		out.Jobs = append(out.Jobs, TaggedJobLine{
			JobLine:    line,
			Status:     it.Job.Status(),
			Technician: it.Technician,
			Recall:     it.Job.IsRecall(),
			Matched:    it.Matched,
			Others:     it.Others,
		})
	}
	span.SetAttributes(attribute.Int("jobs", out.Total))
	return succeeded(span, c.result(out, formatJobsByTag(out)))
}

func quotedList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(q, ", ")
}

func formatJobsByTag(out JobsByTagOutput) string {
	var b strings.Builder
	tags := quotedList(out.Tags)
	fmt.Fprintf(&b, "Jobs by Tag: %s  |  %s\n", tags, out.Range)
	if out.Technician != "" {
		fmt.Fprintf(&b, "Filter: Technician = %s\n", out.Technician)
	}
	b.WriteString(listRule + "\n")
	if len(out.Jobs) == 0 {
		b.WriteString("No jobs found with the specified tag(s) in this date range.")
		return b.String()
	}

	for _, j := range out.Jobs {
		fmt.Fprintf(&b, "Job #%s  |  %s  |  %s  |  %s  |  %s",
			orPlaceholder(j.JobNumber), orPlaceholder(j.Date), j.JobType, j.Technician, analytics.Currency(j.Total))
		if j.NoCharge {
			b.WriteString("  No-Charge")
		}
		fmt.Fprintf(&b, "  |  %s", orPlaceholder(j.Status))
		if j.Recall {
			b.WriteString("  ← RECALL")
		}
		fmt.Fprintf(&b, "\n  Tags:  [%s]", strings.Join(j.Matched, ", "))
		if len(j.Others) > 0 {
			fmt.Fprintf(&b, "  +%s", strings.Join(j.Others, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + listRule + "\n")
	fmt.Fprintf(&b, "Total: %d %s with tag(s) %s  |  %s", out.Total, plural(out.Total, "job", "jobs"), tags, out.Range)
	return b.String()
}
