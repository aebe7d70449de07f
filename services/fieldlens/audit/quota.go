// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// QuotaConfig configures the invocation quotas.
type QuotaConfig struct {
	// PerMinute and PerHour cap tool invocations per caller. Zero disables
	// that window.
	PerMinute int
	PerHour   int

	// RedisURL selects a shared redis store, e.g. "redis://localhost:6379/0".
	// Empty keeps counters in process memory.
	RedisURL string

	// Prefix namespaces the counter keys. Default: "fieldlens:quota".
	Prefix string
}

// window is one rate window of a Quota.
type window struct {
	name    string
	limiter *limiter.Limiter
}

// Quota limits tool invocations per caller over a minute and an hour.
//
// Thread Safety: Safe for concurrent use.
type Quota struct {
	windows []window
	client  *redis.Client
}

// NewQuota builds the quota windows on a memory or redis store.
//
// Outputs:
//   - *Quota: Ready to use. Close releases the redis client, if any.
//   - error: The redis URL could not be parsed or the store not created.
func NewQuota(cfg QuotaConfig) (*Quota, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "fieldlens:quota"
	}
	opts := limiter.StoreOptions{Prefix: cfg.Prefix, MaxRetry: 3, CleanUpInterval: time.Minute}

	q := &Quota{}
	var store limiter.Store
	if cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("audit: parse redis url: %w", err)
		}
		q.client = redis.NewClient(ropts)
		store, err = sredis.NewStoreWithOptions(q.client, opts)
		if err != nil {
			_ = q.client.Close()
			return nil, fmt.Errorf("audit: redis quota store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}

	if cfg.PerMinute > 0 {
		q.windows = append(q.windows, window{"minute", limiter.New(store, limiter.Rate{Period: time.Minute, Limit: int64(cfg.PerMinute)})})
	}
	if cfg.PerHour > 0 {
		q.windows = append(q.windows, window{"hour", limiter.New(store, limiter.Rate{Period: time.Hour, Limit: int64(cfg.PerHour)})})
	}
	return q, nil
}

// Allow counts one invocation for key against every window.
//
// Outputs:
//   - error: *apierr.RateLimitError with Local set when a window is
//     exhausted; a wrapped store error when the counters are unreachable.
func (q *Quota) Allow(ctx context.Context, key string) error {
	for _, w := range q.windows {
		lc, err := w.limiter.Get(ctx, w.name+":"+key)
		if err != nil {
			return fmt.Errorf("audit: quota store: %w", err)
		}
		if lc.Reached {
			quotaRejections.WithLabelValues(w.name).Inc()
			wait := time.Until(time.Unix(lc.Reset, 0)).Round(time.Second)
			if wait < time.Second {
				wait = time.Second
			}
			return &apierr.RateLimitError{RetryAfter: wait, Local: true}
		}
	}
	return nil
}

// Close releases the redis client.
func (q *Quota) Close() error {
	if q.client == nil {
		return nil
	}
	return q.client.Close()
}
