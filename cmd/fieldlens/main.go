// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command fieldlens answers field-service reporting questions from a
// read-only upstream tenant.
//
// Usage:
//
//	fieldlens serve                     # HTTP API on FIELDLENS_HTTP_ADDR
//	fieldlens tools                     # list the available reports
//	fieldlens run technician_revenue --param technician_name=alice
//	fieldlens check-auth                # verify the upstream credentials
//	fieldlens audit tail -n 50          # recent audited invocations
//
// Configuration comes from the environment, optionally seeded from .env
// and .env.local. ST_CLIENT_ID, ST_CLIENT_SECRET, ST_APP_KEY and
// ST_TENANT_ID are required by every command that reaches the upstream.
//
// Example requests against a running server:
//
//	curl http://localhost:8090/v1/fieldlens/health
//	curl http://localhost:8090/v1/fieldlens/tools | jq
//	curl -X POST http://localhost:8090/v1/fieldlens/tools/revenue_summary \
//	  -H "Content-Type: application/json" \
//	  -d '{"start_date": "2025-01-01", "end_date": "2025-01-31"}'
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Commands drain on SIGINT/SIGTERM and return, so the sealed credentials
	// are always purged below.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := 0
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var reported errReported
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		code = 1
	}
	stop()
	memguard.Purge()
	os.Exit(code)
}
