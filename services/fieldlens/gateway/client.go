// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway is the authenticated, read-only client for the upstream
// business-management API.
//
// It owns the credential lifecycle (TokenManager), retry with exponential
// backoff, outbound pacing, pagination, and the GET-only guard. Callers get
// raw JSON records; projection onto safe types happens in package scrub.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

var clientTracer = otel.Tracer("fieldlens.gateway.client")

// MaxPageSize is the largest page the upstream serves.
const MaxPageSize = 200

// maxBodyBytes caps a single response body.
const maxBodyBytes = 32 << 20

var (
	modulePattern  = regexp.MustCompile(`^[a-z]+$`)
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	tenantPattern  = regexp.MustCompile(`^[0-9]+$`)
)

// ErrInvalidResource is returned for malformed resource paths.
var ErrInvalidResource = errors.New("gateway: invalid resource path")

// ClientConfig configures a Client.
type ClientConfig struct {
	// APIBase is the HTTPS API root, e.g. https://api.servicetitan.io.
	APIBase string

	// TenantID is the numeric tenant id.
	TenantID string

	// ConnectTimeout bounds dial and TLS handshake. Default: 5s.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for response headers. Default: 10s.
	ReadTimeout time.Duration

	// RequestTimeout bounds one attempt end to end. Default: 30s.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt. Default: 0.
	MaxRetries int

	// PageSize is the page size requested by FetchAll. Capped at MaxPageSize.
	PageSize int

	// Limiter paces every attempt. nil disables pacing.
	Limiter *rate.Limiter

	// Backoff computes retry delays. Zero value uses DefaultBackoff.
	Backoff Backoff

	// Clock drives backoff sleeps. nil uses SystemClock.
	Clock Clock

	// HTTPClient overrides the transport built from the timeouts.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client issues paced, retried, authenticated GET requests.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	base     string
	tenant   string
	tokens   TokenSource
	creds    CredentialSource
	http     *http.Client
	limiter  *rate.Limiter
	backoff  Backoff
	clock    Clock
	retries  int
	timeout  time.Duration
	pageSize int
	logger   *slog.Logger
}

// NewClient validates the configuration and builds a Client.
//
// Inputs:
//   - cfg: Client configuration. APIBase must be HTTPS; TenantID numeric.
//   - tokens: Source of bearer tokens.
//   - creds: Source of the application key.
//
// Outputs:
//   - *Client: The client.
//   - error: Non-nil for an invalid base URL or tenant.
func NewClient(cfg ClientConfig, tokens TokenSource, creds CredentialSource) (*Client, error) {
	if !strings.HasPrefix(cfg.APIBase, "https://") {
		return nil, fmt.Errorf("gateway: API base must use https")
	}
	if !tenantPattern.MatchString(cfg.TenantID) {
		return nil, fmt.Errorf("gateway: tenant id must be numeric")
	}
	if tokens == nil || creds == nil {
		return nil, errors.New("gateway: token source and credentials are required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:     strings.TrimRight(cfg.APIBase, "/"),
		tenant:   cfg.TenantID,
		tokens:   tokens,
		creds:    creds,
		http:     cfg.HTTPClient,
		limiter:  cfg.Limiter,
		backoff:  cfg.Backoff,
		clock:    cfg.Clock,
		retries:  cfg.MaxRetries,
		timeout:  cfg.RequestTimeout,
		pageSize: cfg.PageSize,
		logger:   logger.With(slog.String("component", "gateway")),
	}, nil
}

// NewHTTPClient builds an http.Client with separate connect and header
// timeouts that never follows redirects.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// TenantURL returns the URL for a resource, e.g. "jpm/jobs" becomes
// {base}/jpm/v2/tenant/{tenant}/jobs.
//
// Outputs:
//   - string: The absolute URL without query.
//   - string: The API module (first path segment).
//   - error: ErrInvalidResource for malformed paths.
func (c *Client) TenantURL(resource string) (string, string, error) {
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	if len(parts) < 2 || !modulePattern.MatchString(parts[0]) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}
	for _, seg := range parts[1:] {
		if !segmentPattern.MatchString(seg) {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidResource, resource)
		}
	}
	return fmt.Sprintf("%s/%s/v2/tenant/%s/%s", c.base, parts[0], c.tenant, strings.Join(parts[1:], "/")), parts[0], nil
}

// Request performs one logical request with retries.
//
// Description:
//
//	Non-GET methods fail with *apierr.ForbiddenOperation before any network
//	activity. Each attempt waits on the shared limiter, obtains a fresh token,
//	and runs under RequestTimeout. Network errors, timeouts and 5xx are
//	retried with exponential backoff; every other failure returns at once.
//
// Inputs:
//   - ctx: Cancels the whole request including backoff sleeps.
//   - method: Must be http.MethodGet.
//   - resource: Module-qualified path, e.g. "jpm/jobs".
//   - params: Query parameters. May be nil.
//
// Outputs:
//   - *Page: The decoded page envelope.
//   - error: One of the apierr types, ErrInvalidResource, or ctx.Err().
func (c *Client) Request(ctx context.Context, method, resource string, params url.Values) (*Page, error) {
	if method != http.MethodGet {
		return nil, &apierr.ForbiddenOperation{Method: method}
	}
	endpoint, module, err := c.TenantURL(resource)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	ctx, span := clientTracer.Start(ctx, "gateway.Client.Request")
	defer span.End()
	span.SetAttributes(
		attribute.String("resource", resource),
		attribute.String("page", params.Get("page")),
	)

	var (
		lastErr    error
		lastStatus int
	)
	attempts := 0
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff.Delay(attempt - 1)
			c.logger.Debug("retrying upstream request",
				slog.String("resource", resource),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if err := c.clock.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		attempts++

		page, status, retryReason, err := c.attempt(ctx, endpoint, module, resource)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempts), attribute.Int("records", len(page.Data)))
			span.SetStatus(codes.Ok, "")
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if retryReason == "" {
			span.RecordError(err)
			span.SetStatus(codes.Error, apierr.Label(err))
			return nil, err
		}
		lastErr, lastStatus = err, status
		if attempt < c.retries {
			recordRetry(retryReason)
		}
	}

	terr := &apierr.TransientError{StatusCode: lastStatus, Attempts: attempts, Err: lastErr}
	span.RecordError(terr)
	span.SetStatus(codes.Error, "transient")
	c.logger.Warn("upstream request failed after retries",
		slog.String("resource", resource),
		slog.Int("attempts", attempts),
		slog.String("error", apierr.SafeError(lastErr)),
	)
	return nil, terr
}

// attempt performs one HTTP round trip. A non-empty retry reason marks the
// error as transient.
func (c *Client) attempt(ctx context.Context, endpoint, module, resource string) (*Page, int, string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, "", err
		}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, "", err
	}
	appKey, err := c.creds.AppKey()
	if err != nil {
		return nil, 0, "", &apierr.AuthError{Err: err}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("ST-App-Key", appKey)
	req.Header.Set("Accept", "application/json")

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		reason := "network"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			reason = "timeout"
		}
		recordAttempt(module, "transient", time.Since(start).Seconds())
		return nil, 0, reason, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		recordAttempt(module, "transient", time.Since(start).Seconds())
		return nil, resp.StatusCode, "network", fmt.Errorf("reading body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		page, err := decodePage(body)
		if err != nil {
			recordAttempt(module, "decode", time.Since(start).Seconds())
			return nil, resp.StatusCode, "", err
		}
		recordAttempt(module, "ok", time.Since(start).Seconds())
		return page, resp.StatusCode, "", nil

	case resp.StatusCode == http.StatusUnauthorized:
		c.tokens.Invalidate()
		recordAttempt(module, "auth", time.Since(start).Seconds())
		return nil, resp.StatusCode, "", &apierr.AuthError{StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusTooManyRequests:
		recordAttempt(module, "rate_limit", time.Since(start).Seconds())
		return nil, resp.StatusCode, "", &apierr.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now()),
		}

	case resp.StatusCode >= 500:
		recordAttempt(module, "transient", time.Since(start).Seconds())
		return nil, resp.StatusCode, "server", fmt.Errorf("upstream status %d", resp.StatusCode)

	default:
		recordAttempt(module, "upstream", time.Since(start).Seconds())
		return nil, resp.StatusCode, "", &apierr.UpstreamError{StatusCode: resp.StatusCode, Resource: resource}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseRetryAfter reads delta-seconds or an HTTP date. Unparseable or
// missing values return zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

// Page is one decoded page envelope.
type Page struct {
	Data       []json.RawMessage `json:"data"`
	HasMore    bool              `json:"hasMore"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalCount *int              `json:"totalCount"`
}

func decodePage(body []byte) (*Page, error) {
	var p Page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("gateway: decoding page: %w", err)
	}
	return &p, nil
}
