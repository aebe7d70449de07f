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

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

var callbackChainsTracer = otel.Tracer("tools.get_callback_chains")

// CallbackChainsParams contains the validated input for get_callback_chains.
type CallbackChainsParams struct {
	DateParams
	TechnicianName string
	MinChainLength int
}

// ToolName returns the tool name for TypedParams interface.
func (p CallbackChainsParams) ToolName() string { return "get_callback_chains" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p CallbackChainsParams) ToMap() map[string]any {
	m := map[string]any{}
	if p.TechnicianName != "" {
		m["technician_name"] = p.TechnicianName
	}
	if p.MinChainLength != 0 {
		m["min_chain_length"] = p.MinChainLength
	}
	return p.put(m)
}

// ChainVisit is one recall visit in a chain.
type ChainVisit struct {
	JobLine
	Technician string   `json:"technician"`
	Tags       []string `json:"tags,omitempty"`
}

// ChainLine is one rendered callback chain.
type ChainLine struct {
	OriginalID      int64           `json:"original_id"`
	Original        *OriginalJob    `json:"original,omitempty"`
	Recalls         []ChainVisit    `json:"recalls"`
	TruckRolls      int             `json:"truck_rolls"`
	SpanDays        int             `json:"span_days,omitempty"`
	HasSpan         bool            `json:"has_span"`
	OpportunityCost decimal.Decimal `json:"opportunity_cost"`
}

// CallbackChainsOutput contains the structured result.
type CallbackChainsOutput struct {
	Range           string                `json:"range"`
	Technician      string                `json:"technician,omitempty"`
	MinLength       int                   `json:"min_chain_length"`
	Attribution     analytics.Attribution `json:"attribution"`
	Chains          []ChainLine           `json:"chains"`
	AvgRevenue      decimal.Decimal       `json:"avg_revenue_per_completed_job"`
	TotalTruckRolls int                   `json:"total_truck_rolls"`
	TotalCost       decimal.Decimal       `json:"total_opportunity_cost"`
	Orphans         int                   `json:"orphans"`
}

type callbackChainsTool struct {
	env *Env
}

// NewCallbackChainsTool creates the get_callback_chains tool.
func NewCallbackChainsTool(env *Env) Tool {
	return &callbackChainsTool{env: env}
}

func (t *callbackChainsTool) Name() string           { return "get_callback_chains" }
func (t *callbackChainsTool) Category() ToolCategory { return CategoryQuality }

func (t *callbackChainsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_callback_chains",
		Description: "Group recalls into chains rooted at their original job and estimate the opportunity cost of each repeat truck roll.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": optionalTechnicianParam,
			"min_chain_length": {
				Type:        ParamTypeInt,
				Description: "Minimum visits in a chain, counting the original job (2-10)",
				Default:     2,
			},
		}),
		Category: CategoryQuality,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"callback chain", "repeat visit", "truck roll", "opportunity cost", "came back again"},
			UseWhen:  "The caller asks about jobs that needed several return visits or what recalls cost.",
		},
	}
}

func (t *callbackChainsTool) parseParams(m map[string]any) (CallbackChainsParams, query.DateRange, error) {
	a := newArgs(m)
	p := CallbackChainsParams{
		DateParams:     readDates(a),
		TechnicianName: a.str("technician_name"),
		MinChainLength: a.integer("min_chain_length", 0),
	}
	if err := a.Err(); err != nil {
		return p, query.DateRange{}, err
	}
	var err error
	if p.TechnicianName, err = query.OptionalName("technician_name", p.TechnicianName); err != nil {
		return p, query.DateRange{}, err
	}
	if p.MinChainLength, err = query.ChainLength(p.MinChainLength); err != nil {
		return p, query.DateRange{}, err
	}
	rng, err := t.env.dates(p.DateParams)
	return p, rng, err
}

// Execute runs the get_callback_chains tool.
func (t *callbackChainsTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := callbackChainsTracer.Start(ctx, "callbackChainsTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_callback_chains"),
			attribute.Int("min_chain_length", p.MinChainLength),
			attribute.String("attribution", string(t.env.Attribution)),
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
	tech, miss := r.resolveOptional(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}

	chains := analytics.BuildChains(jobs, analytics.ChainOptions{
		MinLength:    p.MinChainLength,
		TechnicianID: tech.ID,
		Attribution:  t.env.Attribution,
	})
	c.flag(chains.Anomalies...)

	names := lookup{loc: t.env.loc(), techs: r.names, types: types, tags: tags}
	out := CallbackChainsOutput{
		Range:           rng.Label(),
		Technician:      tech.Name,
		MinLength:       p.MinChainLength,
		Attribution:     t.env.Attribution,
		Chains:          make([]ChainLine, 0, len(chains.Chains)),
		AvgRevenue:      chains.AvgRevenue,
		TotalTruckRolls: chains.TotalTruckRolls,
		TotalCost:       chains.TotalCost,
		Orphans:         chains.Orphans,
	}
	for _, ch := range chains.Chains {
		line := ChainLine{
			OriginalID:      ch.OriginalID,
			TruckRolls:      ch.TruckRolls,
			SpanDays:        ch.SpanDays,
			HasSpan:         ch.HasSpan,
			OpportunityCost: ch.OpportunityCost,
		}
		if !ch.Orphaned() {
			line.Original = &OriginalJob{JobLine: names.line(*ch.Original), Technician: names.technician(*ch.Original)}
		}
		for _, j := range ch.Recalls {
			line.Recalls = append(line.Recalls, ChainVisit{
				JobLine:    names.line(j),
				Technician: names.technician(j),
				Tags:       names.tagNames(j),
			})
		}
		out.Chains = append(out.Chains, line)
	}
	span.SetAttributes(attribute.Int("chains", len(out.Chains)), attribute.Int("truck_rolls", out.TotalTruckRolls))
	return succeeded(span, c.result(out, formatCallbackChains(out)))
}

func formatCallbackChains(out CallbackChainsOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Callback Chains  |  %s  |  Min length: %d\n", out.Range, out.MinLength)
	if out.Technician != "" {
		fmt.Fprintf(&b, "Filter: Technician = %s\n", out.Technician)
	}
	b.WriteString(listRule + "\n")
	if len(out.Chains) == 0 {
		fmt.Fprintf(&b, "No callback chains with %d+ visits found in this date range.", out.MinLength)
		return b.String()
	}

	for _, ch := range out.Chains {
		fmt.Fprintf(&b, "Chain: Original Job #%d  (%d truck rolls", ch.OriginalID, ch.TruckRolls)
		if ch.HasSpan {
			fmt.Fprintf(&b, "  |  %dd span", ch.SpanDays)
		}
		b.WriteString(")\n")
		if o := ch.Original; o != nil {
			fmt.Fprintf(&b, "  Original  |  %s  |  %s  |  %s  |  %s\n",
				orPlaceholder(o.Date), o.JobType, o.Technician, analytics.Currency(o.Total))
		} else {
			fmt.Fprintf(&b, "  Original Job #%d  (outside date range)\n", ch.OriginalID)
		}
		for i, v := range ch.Recalls {
			fmt.Fprintf(&b, "  Recall %d   |  %s  |  %s  |  %s  |  %s%s",
				i+1, orPlaceholder(v.Date), v.JobType, v.Technician, analytics.Currency(v.Total), noChargeSuffix(v.JobLine))
			if len(v.Tags) > 0 {
				fmt.Fprintf(&b, "  |  Tags: %s", strings.Join(v.Tags, ", "))
			}
			b.WriteString("\n")
		}
		visits := len(ch.Recalls)
		fmt.Fprintf(&b, "  Opportunity Cost: ~%s  (%d recall %s × %s avg/job)\n\n",
			analytics.CurrencyShort(ch.OpportunityCost), visits, plural(visits, "visit", "visits"), analytics.CurrencyShort(out.AvgRevenue))
	}
	b.WriteString(listRule + "\n")
	fmt.Fprintf(&b, "Total chains: %d  |  Total truck rolls: %d  |  Total opportunity cost: ~%s\n",
		len(out.Chains), out.TotalTruckRolls, analytics.CurrencyShort(out.TotalCost))
	b.WriteString("Note: Chains based on recallForId links only. GO BACK jobs without a recall link are not included.")
	return b.String()
}
