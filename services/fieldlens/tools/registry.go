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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// ErrUnknownTool is returned by Registry.Execute for unregistered names.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Registry holds the available tools by name.
//
// Thread Safety: Safe for concurrent use after registration completes.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry builds a registry holding every FieldLens report.
func NewRegistry(env *Env) *Registry {
	r := &Registry{tools: make(map[string]Tool), logger: env.logger()}

	r.Register(NewListTechniciansTool(env))
	r.Register(NewTechnicianJobsTool(env))
	r.Register(NewJobsSummaryTool(env))
	r.Register(NewJobsByTypeTool(env))

	r.Register(NewTechnicianRevenueTool(env))
	r.Register(NewRevenueSummaryTool(env))
	r.Register(NewNoChargeJobsTool(env))
	r.Register(NewCompareTechniciansTool(env))
	r.Register(NewRevenueTrendTool(env))

	r.Register(NewTechnicianScheduleTool(env))
	r.Register(NewCompareHoursTool(env))

	r.Register(NewJobMixTool(env))
	r.Register(NewJobMixMatrixTool(env))
	r.Register(NewCancellationsTool(env))
	r.Register(NewDiscountsTool(env))

	r.Register(NewRecallsTool(env))
	r.Register(NewCallbackChainsTool(env))
	r.Register(NewRecallSummaryTool(env))
	r.Register(NewJobsByTagTool(env))
	r.Register(NewSearchSummariesTool(env))
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns every tool definition, sorted by category then name.
func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition())
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Category != out[k].Category {
			return out[i].Category < out[k].Category
		}
		return out[i].Name < out[k].Name
	})
	return out
}

// Execute runs a tool by name.
//
// Description:
//
//	Parameters not declared by the tool, and missing required parameters,
//	fail validation before the tool runs. The tool's Timeout bounds the
//	invocation. Every failure is reported as an unsuccessful Result; the
//	error return is reserved for unknown tool names.
//
// Inputs:
//   - ctx: Cancels the invocation.
//   - name: Registered tool name.
//   - params: Named parameters. May be nil.
//
// Outputs:
//   - *Result: Never nil when error is nil. Duration is set.
//   - error: ErrUnknownTool.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (*Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	def := t.Definition()
	start := time.Now()

	var res *Result
	if err := checkParams(def, params); err != nil {
		res = failure(err)
	} else {
		if def.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, def.Timeout)
			defer cancel()
		}
		var err error
		res, err = t.Execute(ctx, MapParams{Tool: name, Params: params})
		if err != nil {
			res = failure(err)
		}
	}
	res.Duration = time.Since(start)

	outcome := Outcome(res)
	recordInvocation(name, outcome, res.Duration.Seconds())
	r.logger.Info("tool invocation",
		slog.String("tool", name),
		slog.String("outcome", outcome),
		slog.Duration("duration", res.Duration),
		slog.Bool("truncated", res.Truncated),
		slog.Int("incomplete", len(res.Incomplete)),
		slog.Int("anomalies", len(res.Anomalies)),
	)
	return res, nil
}

// Outcome is the metrics and audit label of a result: "ok" or its
// ErrorKind.
func Outcome(res *Result) string {
	switch {
	case res == nil:
		return "unknown"
	case res.Success:
		return "ok"
	case res.ErrorKind != "":
		return res.ErrorKind
	}
	return "unknown"
}

func checkParams(def ToolDefinition, params map[string]any) error {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if _, ok := def.Parameters[k]; !ok {
			return apierr.Invalid(k, "is not a parameter of "+def.Name)
		}
	}

	required := make([]string, 0, len(def.Parameters))
	for k, p := range def.Parameters {
		if p.Required {
			required = append(required, k)
		}
	}
	sort.Strings(required)
	for _, k := range required {
		if v, ok := params[k]; !ok || v == nil || v == "" {
			return apierr.Invalid(k, "is required")
		}
	}
	return nil
}
