// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var sourceMeter = otel.Meter("fieldlens.records")

// fetchSize records how many records each fetch returned. Instruments
// created before the meter provider is installed are forwarded to it.
var fetchSize, _ = sourceMeter.Int64Histogram(
	"fieldlens.records.fetch.size",
	metric.WithDescription("Records returned by one capped upstream fetch"),
	metric.WithUnit("{record}"),
	metric.WithExplicitBucketBoundaries(0, 10, 50, 200, 500, 1000, 2000, 5000),
)

var rejectedRecords, _ = sourceMeter.Int64Counter(
	"fieldlens.records.scrub.rejected",
	metric.WithDescription("Upstream records left out because they failed to scrub"),
	metric.WithUnit("{record}"),
)

func recordFetch(ctx context.Context, f Fetch) {
	fetchSize.Record(ctx, int64(f.Records), metric.WithAttributes(
		attribute.String("resource", f.Resource),
		attribute.Bool("truncated", f.Truncated),
	))
}

func recordRejected(ctx context.Context, resource string, n int) {
	rejectedRecords.Add(ctx, int64(n), metric.WithAttributes(attribute.String("resource", resource)))
}
