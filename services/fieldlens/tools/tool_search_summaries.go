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

var searchSummariesTracer = otel.Tracer("tools.search_job_summaries")

// SearchSummariesParams contains the validated input for search_job_summaries.
type SearchSummariesParams struct {
	DateParams
	SearchText     string
	TechnicianName string
	JobType        string
}

// ToolName returns the tool name for TypedParams interface.
func (p SearchSummariesParams) ToolName() string { return "search_job_summaries" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p SearchSummariesParams) ToMap() map[string]any {
	m := map[string]any{"search_text": p.SearchText}
	if p.TechnicianName != "" {
		m["technician_name"] = p.TechnicianName
	}
	if p.JobType != "" {
		m["job_type"] = p.JobType
	}
	return p.put(m)
}

// SummaryMatch is one job whose summary matched. Summary marshals with the
// sensitivity warning attached.
type SummaryMatch struct {
	JobLine
	Status     string                 `json:"status"`
	Technician string                 `json:"technician"`
	Recall     bool                   `json:"recall"`
	Summary    scrub.SensitiveSummary `json:"summary"`
}

// SearchSummariesOutput contains the structured result.
type SearchSummariesOutput struct {
	Range      string         `json:"range"`
	SearchText string         `json:"search_text"`
	Technician string         `json:"technician,omitempty"`
	JobType    string         `json:"job_type,omitempty"`
	Warning    string         `json:"warning"`
	Matches    []SummaryMatch `json:"matches"`
	Total      int            `json:"total"`
}

type searchSummariesTool struct {
	env *Env
}

// NewSearchSummariesTool creates the search_job_summaries tool.
func NewSearchSummariesTool(env *Env) Tool {
	return &searchSummariesTool{env: env}
}

func (t *searchSummariesTool) Name() string           { return "search_job_summaries" }
func (t *searchSummariesTool) Category() ToolCategory { return CategoryQuality }

func (t *searchSummariesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "search_job_summaries",
		Description: "Search the free-text job summaries for a phrase. Results may contain customer details and always carry a warning.",
		Parameters: dateParams(map[string]ParamDef{
			"search_text": {
				Type:        ParamTypeString,
				Description: "Case-insensitive text to find in job summaries, e.g. 'capacitor'",
				Required:    true,
			},
			"technician_name": optionalTechnicianParam,
			"job_type": {
				Type:        ParamTypeString,
				Description: "Optional exact job type name",
			},
		}),
		Category: CategoryQuality,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords:  []string{"summary", "notes", "mentioned", "search", "description"},
			UseWhen:   "The caller asks which jobs mention a part, symptom, or phrase.",
			AvoidWhen: "A structured field (job type, tag, status) answers the question.",
		},
	}
}

func (t *searchSummariesTool) parseParams(m map[string]any) (SearchSummariesParams, query.DateRange, error) {
	a := newArgs(m)
	p := SearchSummariesParams{
		DateParams:     readDates(a),
		SearchText:     a.str("search_text"),
		TechnicianName: a.str("technician_name"),
		JobType:        a.str("job_type"),
	}
	if err := a.Err(); err != nil {
		return p, query.DateRange{}, err
	}
	var err error
	if p.SearchText, err = query.SearchText("search_text", p.SearchText); err != nil {
		return p, query.DateRange{}, err
	}
	if p.TechnicianName, err = query.OptionalName("technician_name", p.TechnicianName); err != nil {
		return p, query.DateRange{}, err
	}
	if strings.TrimSpace(p.JobType) != "" {
		if p.JobType, err = query.SearchText("job_type", p.JobType); err != nil {
			return p, query.DateRange{}, err
		}
	}
	rng, err := t.env.dates(p.DateParams)
	return p, rng, err
}

// Execute runs the search_job_summaries tool.
func (t *searchSummariesTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	// The search text itself is not recorded; it may carry customer details.
	ctx, span := searchSummariesTracer.Start(ctx, "searchSummariesTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "search_job_summaries"),
			attribute.Bool("technician_filter", p.TechnicianName != ""),
			attribute.Bool("job_type_filter", p.JobType != ""),
		),
	)
	defer span.End()

	var (
		c         = t.env.collect()
		r         *roster
		types     *query.NameSet
		summaries []scrub.SensitiveSummary
	)
	err = parallel(ctx,
		t.env.rosterInto(c, &r),
		namesInto(c, t.env.Source.JobTypes, &types),
		func(ctx context.Context) error {
			v, f, err := t.env.Source.JobSummaries(ctx, rng, 0)
			if err != nil {
				return err
			}
			c.fetched(f)
			summaries = v
			return nil
		},
	)
	if err != nil {
		return failed(span, err)
	}
	tech, miss := r.resolveOptional(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}

	opts := analytics.SearchOptions{Text: p.SearchText, TechnicianID: tech.ID}
	if p.JobType != "" {
		found, unknown := types.Resolve([]string{p.JobType})
		if len(unknown) > 0 {
			available := sample(types.Names())
			text := fmt.Sprintf("Unknown job type: %q.\nAvailable job types (sample): %s",
				p.JobType, strings.Join(available, ", "))
			return unmatched(span, unknownNames(text, unknown, available))
		}
		p.JobType = found[0].Name
		opts.TypeIDs = map[int64]bool{found[0].ID: true}
	}

	search := analytics.SearchSummaries(summaries, opts)
	names := lookup{loc: t.env.loc(), techs: r.names, types: types}
	out := SearchSummariesOutput{
		Range:      rng.Label(),
		SearchText: p.SearchText,
		Technician: tech.Name,
		JobType:    p.JobType,
		Warning:    search.Warning,
		Matches:    make([]SummaryMatch, 0, len(search.Matches)),
		Total:      search.Total,
	}
	for _, s := range search.Matches {
		j := s.Job()
		out.Matches = append(out.Matches, SummaryMatch{
			JobLine:    names.line(j),
			Status:     j.Status(),
			Technician: names.technician(j),
			Recall:     j.IsRecall(),
			Summary:    s,
		})
	}
	span.SetAttributes(attribute.Int("matches", out.Total))
	return succeeded(span, c.result(out, formatSearchSummaries(out)))
}

func formatSearchSummaries(out SearchSummariesOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job Summary Search: %q  |  %s\n", out.SearchText, out.Range)
	b.WriteString(out.Warning + "\n")
	b.WriteString(listRule + "\n")
	if out.Technician != "" || out.JobType != "" {
		if out.Technician != "" {
			fmt.Fprintf(&b, "Filter: Technician = %s\n", out.Technician)
		}
		if out.JobType != "" {
			fmt.Fprintf(&b, "Filter: Job Type = %s\n", out.JobType)
		}
		b.WriteString(listRule + "\n")
	}
	if out.Total == 0 {
		fmt.Fprintf(&b, "No jobs found with %q in the summary.", out.SearchText)
		return b.String()
	}

	for _, m := range out.Matches {
		fmt.Fprintf(&b, "Job #%s  |  %s  |  %s  |  %s  |  %s",
			orPlaceholder(m.JobNumber), orPlaceholder(m.Date), m.JobType, m.Technician, orPlaceholder(m.Status))
		if m.Recall {
			b.WriteString("  ← RECALL")
		}
		fmt.Fprintf(&b, "\n  Summary: %s\n\n", m.Summary.Quoted())
	}
	b.WriteString(listRule + "\n")
	fmt.Fprintf(&b, "Showing %d of %d %s.", len(out.Matches), out.Total, plural(out.Total, "match", "matches"))
	return b.String()
}
