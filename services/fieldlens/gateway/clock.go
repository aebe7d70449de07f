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
	"math/rand/v2"
	"time"
)

// Clock abstracts time for token expiry and retry backoff.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or ctx cancellation.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff computes retry delays as Base * 2^attempt plus up to Jitter of
// random spread.
//
// With the default Base of 1s the first three retries wait 1s, 2s, 4s.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Jitter is the upper bound of the random addition. Zero disables jitter.
	Jitter time.Duration
}

// DefaultBackoff is 1s base with up to 250ms jitter.
var DefaultBackoff = Backoff{Base: time.Second, Jitter: 250 * time.Millisecond}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	d := b.Base << attempt
	if b.Jitter > 0 {
		d += rand.N(b.Jitter)
	}
	return d
}
