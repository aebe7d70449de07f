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
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCheckAuthCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check-auth",
		Short: "Verify configuration and exchange credentials for a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return fail(err)
			}
			defer a.Close(context.Background())

			if err := a.ready(ctx); err != nil {
				return fail(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication OK for tenant %s. Token valid until %s.\n",
				a.cfg.Upstream.TenantID, a.tokens.Expiry().In(a.cfg.Location()).Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 40*time.Second, "deadline for the token exchange")
	return cmd
}
