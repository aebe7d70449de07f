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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

func newTestClient(t *testing.T, srv *httptest.Server, clock *fakeClock, tokens TokenSource, retries int) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		APIBase:    srv.URL,
		TenantID:   "123456",
		MaxRetries: retries,
		Backoff:    Backoff{Base: time.Second},
		Clock:      clock,
		HTTPClient: srv.Client(),
	}, tokens, staticCreds{})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	tokens := &staticTokens{token: "t"}
	_, err := NewClient(ClientConfig{APIBase: "http://api.example.com", TenantID: "1"}, tokens, staticCreds{})
	assert.Error(t, err, "http base must be rejected")

	_, err = NewClient(ClientConfig{APIBase: "https://api.example.com", TenantID: "abc"}, tokens, staticCreds{})
	assert.Error(t, err, "non numeric tenant must be rejected")

	c, err := NewClient(ClientConfig{APIBase: "https://api.example.com/", TenantID: "42"}, tokens, staticCreds{})
	require.NoError(t, err)
	u, module, err := c.TenantURL("jpm/jobs")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/jpm/v2/tenant/42/jobs", u)
	assert.Equal(t, "jpm", module)

	for _, bad := range []string{"jobs", "JPM/jobs", "jpm/../secrets", "jpm/jobs?x=1", ""} {
		_, _, err := c.TenantURL(bad)
		assert.ErrorIs(t, err, ErrInvalidResource, "resource %q", bad)
	}
}

func TestRequest_RejectsNonGetBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{token: "t"}, 3)
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		_, err := c.Request(context.Background(), m, "jpm/jobs", nil)
		var fo *apierr.ForbiddenOperation
		require.ErrorAs(t, err, &fo)
		assert.Equal(t, m, fo.Method)
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestRequest_HeadersAndURL(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jpm/v2/tenant/123456/jobs", r.URL.Path)
		assert.Equal(t, "2025-03-03T00:00:00Z", r.URL.Query().Get("completedOnOrAfter"))
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		assert.Equal(t, "ak1.test", r.Header.Get("ST-App-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"page":1,"pageSize":200,"hasMore":false,"data":[{"id":1}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{token: "tok-abc"}, 0)
	page, err := c.Request(context.Background(), http.MethodGet, "jpm/jobs", url.Values{"completedOnOrAfter": {"2025-03-03T00:00:00Z"}})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.False(t, page.HasMore)
}

func TestRequest_RetriesServerErrorsWithBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"hasMore":false,"data":[]}`)
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := newTestClient(t, srv, clock, &staticTokens{token: "t"}, 3)
	_, err := c.Request(context.Background(), http.MethodGet, "jpm/jobs", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestRequest_ExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := newTestClient(t, srv, clock, &staticTokens{token: "t"}, 3)
	_, err := c.Request(context.Background(), http.MethodGet, "jpm/jobs", nil)

	var te *apierr.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 4, te.Attempts)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Equal(t, int32(4), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.Sleeps())
}

func TestRequest_NoRetryOnClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"not found", http.StatusNotFound, func(t *testing.T, err error) {
			assert.True(t, apierr.IsNotFound(err))
		}},
		{"forbidden", http.StatusForbidden, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, apierr.ErrPermissionDenied)
		}},
		{"bad request", http.StatusBadRequest, func(t *testing.T, err error) {
			var ue *apierr.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, 400, ue.StatusCode)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			clock := newFakeClock()
			c := newTestClient(t, srv, clock, &staticTokens{token: "t"}, 3)
			_, err := c.Request(context.Background(), http.MethodGet, "jpm/jobs", nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(1), hits.Load())
			assert.Empty(t, clock.Sleeps())
		})
	}
}

func TestRequest_UnauthorizedInvalidatesToken(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "stale"}
	c := newTestClient(t, srv, newFakeClock(), tokens, 3)
	_, err := c.Request(context.Background(), http.MethodGet, "settings/technicians", nil)

	var ae *apierr.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 401, ae.StatusCode)
	assert.Equal(t, int32(1), tokens.invalidated.Load())
	assert.Equal(t, int32(1), hits.Load())
}

func TestRequest_RateLimited(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := newTestClient(t, srv, clock, &staticTokens{token: "t"}, 3)
	_, err := c.Request(context.Background(), http.MethodGet, "jpm/jobs", nil)

	var rl *apierr.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
	assert.False(t, rl.Local)
	assert.Empty(t, clock.Sleeps())
}

func TestRequest_TokenFailureStopsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{err: &apierr.AuthError{StatusCode: 400, Rotate: true}}, 3)
	_, err := c.Request(context.Background(), http.MethodGet, "jpm/jobs", nil)
	var ae *apierr.AuthError
	require.ErrorAs(t, err, &ae)
	assert.True(t, ae.Rotate)
	assert.Equal(t, int32(0), hits.Load())
}

func TestRequest_ContextCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{token: "t"}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Request(ctx, http.MethodGet, "jpm/jobs", nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

// pagedServer serves total records in pages, honoring page and pageSize.
func pagedServer(t *testing.T, total int, seen *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		size, _ := strconv.Atoi(q.Get("pageSize"))
		if seen != nil {
			*seen = append(*seen, q.Get("page")+"/"+q.Get("pageSize"))
		}
		start := (page - 1) * size
		end := min(start+size, total)
		fmt.Fprintf(w, `{"page":%d,"pageSize":%d,"hasMore":%t,"data":[`, page, size, end < total)
		for i := start; i < end; i++ {
			if i > start {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"id":%d}`, i+1)
		}
		fmt.Fprint(w, "]}")
	}))
}

func TestFetchAll_ConcatenatesPages(t *testing.T) {
	var seen []string
	srv := pagedServer(t, 450, &seen)
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{token: "t"}, 0)
	batch, err := c.FetchAll(context.Background(), "jpm/jobs", url.Values{"jobStatus": {"Completed"}}, 2000)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 450)
	assert.Equal(t, 3, batch.Pages)
	assert.False(t, batch.Truncated)
	assert.Equal(t, []string{"1/200", "2/200", "3/200"}, seen)
	assert.JSONEq(t, `{"id":450}`, string(batch.Records[449]))
}

func TestFetchAll_TruncatesAtCap(t *testing.T) {
	srv := pagedServer(t, 1000, nil)
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{token: "t"}, 0)
	batch, err := c.FetchAll(context.Background(), "jpm/jobs", nil, 250)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 250)
	assert.Equal(t, 2, batch.Pages)
	assert.True(t, batch.Truncated)
}

func TestFetchAll_ExactCapNotTruncated(t *testing.T) {
	srv := pagedServer(t, 400, nil)
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{token: "t"}, 0)
	batch, err := c.FetchAll(context.Background(), "jpm/jobs", nil, 400)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 400)
	assert.False(t, batch.Truncated)
}

func TestFetchAll_SmallCapShrinksPageSize(t *testing.T) {
	var seen []string
	srv := pagedServer(t, 100, &seen)
	defer srv.Close()

	c := newTestClient(t, srv, newFakeClock(), &staticTokens{token: "t"}, 0)
	batch, err := c.FetchAll(context.Background(), "jpm/jobs", nil, 10)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 10)
	assert.True(t, batch.Truncated)
	assert.Equal(t, []string{"1/10"}, seen)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"12", 12 * time.Second},
		{"-3", 0},
		{"soon", 0},
		{now.Add(45 * time.Second).Format(http.TimeFormat), 45 * time.Second},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second}
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))

	j := Backoff{Base: time.Second, Jitter: 100 * time.Millisecond}
	for i := 0; i < 20; i++ {
		d := j.Delay(1)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2*time.Second+100*time.Millisecond)
	}
}
