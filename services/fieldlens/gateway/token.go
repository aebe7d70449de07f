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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

var tokenTracer = otel.Tracer("fieldlens.gateway.token")

// TokenState is the lifecycle position of the managed credential.
type TokenState int

const (
	// TokenUnset means no exchange has succeeded yet, or the token was invalidated.
	TokenUnset TokenState = iota

	// TokenValid means a token is held and was valid when last served.
	TokenValid

	// TokenRefreshing means an exchange is in flight.
	TokenRefreshing

	// TokenFailed means the last exchange failed. The next call retries.
	TokenFailed
)

// String returns the state name.
func (s TokenState) String() string {
	switch s {
	case TokenUnset:
		return "unset"
	case TokenValid:
		return "valid"
	case TokenRefreshing:
		return "refreshing"
	case TokenFailed:
		return "failed"
	}
	return "unknown"
}

// Grant is the result of one credential exchange.
type Grant struct {
	AccessToken string

	// ExpiresIn is the lifetime reported by the token endpoint; zero when
	// the response carried no expires_in.
	ExpiresIn time.Duration
}

// Exchanger performs one client-credentials exchange.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Exchanger interface {
	Exchange(ctx context.Context) (Grant, error)
}

// TokenSource is what the Client needs from a token manager.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// OAuthExchanger exchanges client credentials at the token endpoint using
// golang.org/x/oauth2/clientcredentials.
//
// Thread Safety: Safe for concurrent use.
type OAuthExchanger struct {
	tokenURL   string
	creds      CredentialSource
	httpClient *http.Client
	clock      Clock
}

// NewOAuthExchanger creates an exchanger.
//
// Inputs:
//   - tokenURL: The HTTPS token endpoint.
//   - creds: Source of client id and secret.
//   - httpClient: Client used for the exchange. nil uses http.DefaultClient.
func NewOAuthExchanger(tokenURL string, creds CredentialSource, httpClient *http.Client) *OAuthExchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthExchanger{tokenURL: tokenURL, creds: creds, httpClient: httpClient, clock: SystemClock{}}
}

// WithClock sets the clock used to turn an absolute expiry into a lifetime.
// It should be the TokenManager's clock.
func (e *OAuthExchanger) WithClock(c Clock) *OAuthExchanger {
	if c != nil {
		e.clock = c
	}
	return e
}

// Exchange posts the client credentials as form parameters and returns the grant.
//
// Outputs:
//   - Grant: The access token and its lifetime.
//   - error: *apierr.AuthError for every failure.
func (e *OAuthExchanger) Exchange(ctx context.Context) (Grant, error) {
	secret, err := e.creds.ClientSecret()
	if err != nil {
		return Grant{}, &apierr.AuthError{Err: err}
	}
	cc := clientcredentials.Config{
		ClientID:     e.creds.ClientID(),
		ClientSecret: secret,
		TokenURL:     e.tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status := re.Response.StatusCode
			return Grant{}, &apierr.AuthError{
				StatusCode: status,
				Rotate:     status == http.StatusBadRequest || status == http.StatusUnauthorized,
				Err:        fmt.Errorf("token endpoint: %s", re.ErrorCode),
			}
		}
		return Grant{}, &apierr.AuthError{Err: err}
	}
	if tok.AccessToken == "" {
		return Grant{}, &apierr.AuthError{Err: errors.New("token response missing access_token")}
	}

	g := Grant{AccessToken: tok.AccessToken}
	switch {
	case tok.ExpiresIn > 0:
		g.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		g.ExpiresIn = tok.Expiry.Sub(e.clock.Now())
	}
	return g, nil
}

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	// Margin is the minimum remaining validity of a served token. Default: 60s.
	Margin time.Duration

	// DefaultTTL applies when a grant carries no lifetime. Default: 900s.
	DefaultTTL time.Duration

	// ExchangeTimeout bounds one exchange. Default: 35s.
	ExchangeTimeout time.Duration

	Clock  Clock
	Logger *slog.Logger
}

// TokenManager serves a bearer token that stays valid for at least the margin
// past each call.
//
// Description:
//
//	Concurrent callers that find the token missing or near expiry share one
//	exchange through singleflight. The exchange runs on a context detached
//	from the triggering caller so a canceled caller does not fail the other
//	waiters. A failed exchange leaves the prior token in place but it is
//	never served again once it is inside the margin.
//
// Thread Safety: Safe for concurrent use.
type TokenManager struct {
	exchanger Exchanger
	cfg       TokenManagerConfig
	logger    *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
	state  TokenState
}

// NewTokenManager creates a manager in the Unset state.
func NewTokenManager(exchanger Exchanger, cfg TokenManagerConfig) *TokenManager {
	if cfg.Margin <= 0 {
		cfg.Margin = 60 * time.Second
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 900 * time.Second
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 35 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		exchanger: exchanger,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "token_manager")),
	}
}

// Token returns a bearer token valid for at least the margin.
//
// Inputs:
//   - ctx: Bounds how long this caller waits. Cancelling it does not cancel
//     an exchange other callers are waiting on.
//
// Outputs:
//   - string: The access token.
//   - error: *apierr.AuthError when the exchange fails, or ctx.Err().
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if tok, ok := m.current(); ok {
		return tok, nil
	}

	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the held token after the upstream rejected it.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiry = time.Time{}
	if m.state != TokenRefreshing {
		m.state = TokenUnset
	}
}

// State returns the current lifecycle state.
func (m *TokenManager) State() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Expiry returns the expiry of the held token, zero if none.
func (m *TokenManager) Expiry() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiry
}

func (m *TokenManager) current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", false
	}
	if m.cfg.Clock.Now().Add(m.cfg.Margin).Before(m.expiry) {
		return m.token, true
	}
	return "", false
}

func (m *TokenManager) refresh(ctx context.Context) (any, error) {
	// A flight that completed just before this one started may already
	// have produced a usable token.
	if tok, ok := m.current(); ok {
		return tok, nil
	}

	m.mu.Lock()
	m.state = TokenRefreshing
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeTimeout)
	defer cancel()
	ctx, span := tokenTracer.Start(ctx, "gateway.TokenManager.refresh")
	defer span.End()

	start := m.cfg.Clock.Now()
	grant, err := m.exchanger.Exchange(ctx)
	recordTokenRefresh(err)
	if err != nil {
		var ae *apierr.AuthError
		if !errors.As(err, &ae) {
			err = &apierr.AuthError{Err: err}
		}
		m.mu.Lock()
		m.state = TokenFailed
		m.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		m.logger.Error("token exchange failed",
			slog.String("error", apierr.SafeError(err)),
			slog.Bool("rotate_credentials", ae != nil && ae.Rotate),
		)
		return nil, err
	}

	ttl := grant.ExpiresIn
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	m.mu.Lock()
	m.token = grant.AccessToken
	m.expiry = start.Add(ttl)
	m.state = TokenValid
	m.mu.Unlock()

	span.SetAttributes(attribute.Int64("ttl_seconds", int64(ttl.Seconds())))
	span.SetStatus(codes.Ok, "")
	m.logger.Debug("token refreshed", slog.Duration("ttl", ttl))
	return grant.AccessToken, nil
}
