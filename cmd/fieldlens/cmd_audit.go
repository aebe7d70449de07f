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
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FieldLens/services/fieldlens/audit"
	"github.com/AleutianAI/FieldLens/services/fieldlens/config"
	"github.com/AleutianAI/FieldLens/services/fieldlens/telemetry"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit ledger",
	}
	cmd.AddCommand(newAuditTailCmd(opts))
	return cmd
}

func newAuditTailCmd(opts *rootOptions) *cobra.Command {
	var (
		dir    string
		n      int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent audited invocations, newest first",
		Long: "Print the most recent audited invocations, newest first.\n\n" +
			"The ledger directory is locked while a server holds it open; stop the server or\n" +
			"query a copy.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				if _, err := config.LoadEnv(opts.envFiles); err != nil {
					return fail(err)
				}
				dir = os.Getenv("FIELDLENS_AUDIT_DB")
			}
			if dir == "" {
				return fail(fmt.Errorf("no ledger directory: pass --dir or set FIELDLENS_AUDIT_DB"))
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			logger := telemetry.NewLogger(os.Stderr, "warn")
			ledger, err := audit.OpenLedger(dir, 0, logger)
			if err != nil {
				return fail(err)
			}
			defer func() {
				if err := ledger.Close(); err != nil {
					logger.Warn("closing ledger", slog.String("error", err.Error()))
				}
			}()

			entries, err := ledger.Tail(ctx, n)
			if err != nil {
				return fail(err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "ledger directory (default FIELDLENS_AUDIT_DB)")
	cmd.Flags().IntVarP(&n, "lines", "n", audit.DefaultTail, "number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func printEntries(w io.Writer, entries []audit.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No audited invocations.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCALLER\tTOOL\tOUTCOME\tDURATION\tFLAGS\tREQUEST")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.At.UTC().Format(time.RFC3339),
			e.Caller,
			e.Tool,
			e.Outcome,
			e.Duration.Round(time.Millisecond),
			entryFlags(e),
			e.RequestID,
		)
	}
	return tw.Flush()
}

// entryFlags summarizes the result metadata of an entry, e.g. "T I2 A1".
func entryFlags(e audit.Entry) string {
	out := ""
	add := func(s string) {
		if out != "" {
			out += " "
		}
		out += s
	}
	if e.Truncated {
		add("T")
	}
	if e.Incomplete > 0 {
		add(fmt.Sprintf("I%d", e.Incomplete))
	}
	if e.Anomalies > 0 {
		add(fmt.Sprintf("A%d", e.Anomalies))
	}
	if out == "" {
		return "-"
	}
	return out
}
