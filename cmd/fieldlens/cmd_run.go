// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FieldLens/services/fieldlens/audit"
	"github.com/AleutianAI/FieldLens/services/fieldlens/tools"
)

func newToolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available reports and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := tools.NewRegistry(&tools.Env{}).Definitions()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}
			return printDefinitions(cmd.OutOrStdout(), defs)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print definitions as JSON")
	return cmd
}

// printDefinitions writes one block per tool: name, category, description
// and parameters with required ones marked.
func printDefinitions(w io.Writer, defs []tools.ToolDefinition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t[%s]\n", d.Name, d.Category)
		fmt.Fprintf(tw, "  %s\n", d.Description)
		names := make([]string, 0, len(d.Parameters))
		for name := range d.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := d.Parameters[name]
			flag := ""
			if p.Required {
				flag = " (required)"
			}
			fmt.Fprintf(tw, "    --param %s=\t%s%s\n", name, p.Description, flag)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		pairs   []string
		asJSON  bool
		caller  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <tool>",
		Short: "Run one report and print it",
		Example: "  fieldlens run technician_revenue --param technician_name=alice\n" +
			"  fieldlens run revenue_trend --param group_by=business_unit --param start_date=2025-01-01",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParamFlags(pairs)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := newApp(ctx, opts)
			if err != nil {
				return fail(err)
			}
			defer a.Close(context.Background())

			res, requestID, err := a.auditor.Execute(ctx, audit.Call{Caller: caller, Tool: args[0], Params: params})
			if err != nil {
				return fail(err)
			}
			return printResult(cmd.OutOrStdout(), requestID, args[0], res, asJSON)
		},
	}
	cmd.Flags().StringArrayVarP(&pairs, "param", "p", nil, "report parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the structured result as JSON")
	cmd.Flags().StringVar(&caller, "caller", "cli", "caller identity for quotas and the audit ledger")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline, e.g. 2m (default: the report's own timeout)")
	return cmd
}

// parseParamFlags turns repeated key=value flags into report parameters.
// Values stay strings; the reports parse them. A repeated key joins its
// values with commas, so --param tag_names=a --param tag_names=b equals
// --param tag_names=a,b.
func parseParamFlags(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", pair)
		}
		if prev, seen := params[key]; seen {
			value = prev.(string) + "," + value
		}
		params[key] = value
	}
	return params, nil
}

// errToolFailed is the exit status of a report that returned a failed
// Result; the Result itself has been printed.
var errToolFailed = errReported{fmt.Errorf("report failed")}

func printResult(w io.Writer, requestID, tool string, res *tools.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			RequestID string `json:"request_id"`
			Tool      string `json:"tool"`
			*tools.Result
		}{requestID, tool, res}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, res.OutputText)
	}
	if !res.Success {
		return errToolFailed
	}
	return nil
}
