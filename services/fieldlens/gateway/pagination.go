// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Batch is the concatenation of every page of a paginated fetch.
type Batch struct {
	Records []json.RawMessage

	// Pages is the number of pages requested.
	Pages int

	// Truncated is true when the record cap stopped the fetch while the
	// upstream still had records to give.
	Truncated bool
}

// Fetcher is the read surface the record layer depends on.
type Fetcher interface {
	FetchAll(ctx context.Context, resource string, params url.Values, maxRecords int) (*Batch, error)
}

// FetchAll requests consecutive pages until hasMore is false or maxRecords
// is reached.
//
// Description:
//
//	The caller's params are copied; page and pageSize are set on the copy.
//	When the cap is hit the records are trimmed to exactly maxRecords and
//	Truncated is set if anything was left behind. A page that returns no
//	records ends the fetch even if it claims hasMore.
//
// Inputs:
//   - ctx: Cancels the fetch.
//   - resource: Module-qualified path, e.g. "jpm/jobs".
//   - params: Filter parameters. Not modified.
//   - maxRecords: Record cap. <= 0 means no cap.
//
// Outputs:
//   - *Batch: The records. Partial pages are never returned on error.
//   - error: The first page error.
func (c *Client) FetchAll(ctx context.Context, resource string, params url.Values, maxRecords int) (*Batch, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	pageSize := c.pageSize
	if maxRecords > 0 && maxRecords < pageSize {
		pageSize = maxRecords
	}
	q.Set("pageSize", strconv.Itoa(pageSize))

	batch := &Batch{}
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		p, err := c.Request(ctx, http.MethodGet, resource, q)
		if err != nil {
			return nil, err
		}
		batch.Pages++
		batch.Records = append(batch.Records, p.Data...)

		if maxRecords > 0 && len(batch.Records) >= maxRecords {
			if len(batch.Records) > maxRecords || p.HasMore {
				batch.Truncated = true
				recordTruncation(resource)
				c.logger.Info("fetch truncated at record cap",
					slog.String("resource", resource),
					slog.Int("max_records", maxRecords),
					slog.Int("pages", batch.Pages),
				)
			}
			batch.Records = batch.Records[:maxRecords]
			return batch, nil
		}
		if !p.HasMore || len(p.Data) == 0 {
			return batch, nil
		}
	}
}
