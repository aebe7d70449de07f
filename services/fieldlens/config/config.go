// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads FieldLens process configuration.
//
// Configuration is read once at startup from the environment (optionally
// seeded from .env files), overlaid with an optional YAML policy file, and
// validated. It is immutable afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Recall attribution modes.
const (
	// AttributeOriginal credits a recall to the technician of the original job.
	AttributeOriginal = "original"

	// AttributeRecall credits a recall to the technician of the recall visit.
	AttributeRecall = "recall"
)

// DefaultEnvFiles are loaded, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// UpstreamConfig configures the API gateway and token exchange.
type UpstreamConfig struct {
	// ClientID is the OAuth client id. Env: ST_CLIENT_ID (required).
	ClientID string `env:"ST_CLIENT_ID,required" validate:"required"`

	// ClientSecret is the OAuth client secret. Env: ST_CLIENT_SECRET (required).
	// Cleared by ClearSecrets once sealed into the gateway vault.
	ClientSecret string `env:"ST_CLIENT_SECRET,required" validate:"required"`

	// AppKey is sent as the ST-App-Key header. Env: ST_APP_KEY (required).
	AppKey string `env:"ST_APP_KEY,required" validate:"required"`

	// TenantID is the numeric tenant. Env: ST_TENANT_ID (required).
	TenantID string `env:"ST_TENANT_ID,required" validate:"required,numeric"`

	// AuthURL is the token endpoint. Env: ST_AUTH_URL.
	AuthURL string `env:"ST_AUTH_URL" envDefault:"https://auth.servicetitan.io/connect/token" validate:"required,url,startswith=https://"`

	// APIBase is the API root. Env: ST_API_BASE.
	APIBase string `env:"ST_API_BASE" envDefault:"https://api.servicetitan.io" validate:"required,url,startswith=https://"`

	// ConnectTimeout bounds dial + TLS handshake. Env: FIELDLENS_CONNECT_TIMEOUT. Default: 5s.
	ConnectTimeout time.Duration `env:"FIELDLENS_CONNECT_TIMEOUT" envDefault:"5s" validate:"gte=1s,lte=30s"`

	// ReadTimeout bounds the wait for response headers. Env: FIELDLENS_READ_TIMEOUT. Default: 10s.
	ReadTimeout time.Duration `env:"FIELDLENS_READ_TIMEOUT" envDefault:"10s" validate:"gte=1s,lte=60s"`

	// RequestTimeout bounds one attempt end to end. Env: FIELDLENS_REQUEST_TIMEOUT. Default: 30s.
	RequestTimeout time.Duration `env:"FIELDLENS_REQUEST_TIMEOUT" envDefault:"30s" validate:"gte=5s,lte=120s"`

	// MaxRetries is the retry budget for transient failures. Env: FIELDLENS_MAX_RETRIES. Default: 3.
	MaxRetries int `env:"FIELDLENS_MAX_RETRIES" envDefault:"3" validate:"gte=0,lte=5"`

	// TokenMargin is the minimum remaining validity of a served token.
	// Env: FIELDLENS_TOKEN_MARGIN. Default: 60s.
	TokenMargin time.Duration `env:"FIELDLENS_TOKEN_MARGIN" envDefault:"60s" validate:"gte=10s,lte=300s"`

	// TokenDefaultTTL applies when the token response omits expires_in.
	// Env: FIELDLENS_TOKEN_DEFAULT_TTL. Default: 900s.
	TokenDefaultTTL time.Duration `env:"FIELDLENS_TOKEN_DEFAULT_TTL" envDefault:"900s" validate:"gte=60s"`

	// PageSize is the requested page size, capped at 200. Env: FIELDLENS_PAGE_SIZE.
	PageSize int `env:"FIELDLENS_PAGE_SIZE" envDefault:"200" validate:"gte=1,lte=200"`

	// RequestsPerSecond paces all outbound calls. Env: FIELDLENS_UPSTREAM_RPS. Default: 5.
	RequestsPerSecond float64 `env:"FIELDLENS_UPSTREAM_RPS" envDefault:"5" validate:"gt=0"`

	// Burst is the pacing bucket size. Env: FIELDLENS_UPSTREAM_BURST. Default: 5.
	Burst int `env:"FIELDLENS_UPSTREAM_BURST" envDefault:"5" validate:"gte=1"`
}

// PolicyConfig holds the numeric policy constants. Each may be overridden by
// the YAML policy file.
type PolicyConfig struct {
	// MaxRangeDays is the largest accepted end-start span. Default: 90.
	MaxRangeDays int `env:"FIELDLENS_MAX_RANGE_DAYS" envDefault:"90" yaml:"max_range_days" validate:"gte=1,lte=366"`

	// MaxRecords caps one paginated fetch. Default: 2000.
	MaxRecords int `env:"FIELDLENS_MAX_RECORDS" envDefault:"2000" yaml:"max_records" validate:"gte=1,lte=50000"`

	// FanOut bounds concurrent per-technician fetches. Default: 4.
	FanOut int `env:"FIELDLENS_FANOUT" envDefault:"4" yaml:"fan_out" validate:"gte=1,lte=32"`

	// BranchTimeout bounds one fan-out branch. Default: 45s.
	BranchTimeout time.Duration `env:"FIELDLENS_BRANCH_TIMEOUT" envDefault:"45s" yaml:"branch_timeout" validate:"gte=1s"`

	// QueriesPerMinute is the tool invocation quota per minute. Default: 10.
	QueriesPerMinute int `env:"FIELDLENS_QUERIES_PER_MINUTE" envDefault:"10" yaml:"queries_per_minute" validate:"gte=1,lte=100"`

	// QueriesPerHour is the tool invocation quota per hour. Default: 100.
	QueriesPerHour int `env:"FIELDLENS_QUERIES_PER_HOUR" envDefault:"100" yaml:"queries_per_hour" validate:"gte=1,lte=1000"`

	// BusinessTimezone is the IANA zone every timestamp is read in. Default: UTC.
	BusinessTimezone string `env:"FIELDLENS_BUSINESS_TZ" envDefault:"UTC" yaml:"business_timezone" validate:"required"`

	// RecallAttribution is "original" or "recall". Default: original.
	RecallAttribution string `env:"FIELDLENS_RECALL_ATTRIBUTION" envDefault:"original" yaml:"recall_attribution" validate:"oneof=original recall"`

	// LateCancelWindow is the notice below which a cancellation is late. Default: 24h.
	LateCancelWindow time.Duration `env:"FIELDLENS_LATE_CANCEL_WINDOW" envDefault:"24h" yaml:"late_cancel_window" validate:"gte=1h"`
}

// ServiceConfig configures the process surfaces.
type ServiceConfig struct {
	// LogLevel is debug, info, warn, or error. Env: FIELDLENS_LOG_LEVEL.
	LogLevel string `env:"FIELDLENS_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// HTTPAddr is the listen address for `serve`. Env: FIELDLENS_HTTP_ADDR.
	HTTPAddr string `env:"FIELDLENS_HTTP_ADDR" envDefault:":8090"`

	// AuditDB is the badger directory for the invocation ledger; empty disables it.
	AuditDB string `env:"FIELDLENS_AUDIT_DB"`

	// AuditRetention is the ledger entry TTL. Default: 720h.
	AuditRetention time.Duration `env:"FIELDLENS_AUDIT_RETENTION" envDefault:"720h" validate:"gte=1h"`

	// RedisURL selects the redis quota store; empty uses an in-memory store.
	RedisURL string `env:"FIELDLENS_REDIS_URL" validate:"omitempty,url"`

	// OTLPEndpoint enables OTLP/gRPC trace export when set.
	OTLPEndpoint string `env:"FIELDLENS_OTLP_ENDPOINT"`

	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `env:"FIELDLENS_OTLP_INSECURE" envDefault:"false"`

	// TraceStdout writes spans and periodic metric snapshots to stderr.
	TraceStdout bool `env:"FIELDLENS_TRACE_STDOUT" envDefault:"false"`

	// PolicyFile is an optional YAML file overriding PolicyConfig.
	PolicyFile string `env:"FIELDLENS_POLICY_FILE"`
}

// Config is the complete, immutable FieldLens configuration.
type Config struct {
	Upstream UpstreamConfig
	Policy   PolicyConfig
	Service  ServiceConfig

	location *time.Location
}

// LoadEnv loads the given .env files that exist. Variables already present in
// the process environment win.
//
// Outputs:
//   - int: Number of files loaded.
//   - error: Non-nil if an existing file could not be parsed.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if st, err := os.Stat(f); err == nil && !st.IsDir() {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads the process environment (after DefaultEnvFiles), applies the
// policy file, and validates.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Wraps ErrInvalidConfig on validation failure.
func Load() (*Config, error) {
	return LoadFiles(DefaultEnvFiles)
}

// LoadFiles is Load with an explicit list of .env files.
func LoadFiles(files []string) (*Config, error) {
	if _, err := LoadEnv(files); err != nil {
		return nil, fmt.Errorf("config: loading env files: %w", err)
	}
	return parse(env.Options{})
}

// LoadFrom builds a configuration from an explicit variable map instead of
// the process environment. Used by tests and the check-auth command.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Service.PolicyFile != "" {
		if err := cfg.applyPolicyFile(cfg.Service.PolicyFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyPolicyFile overlays the YAML policy file onto Policy. Keys absent from
// the file keep their environment or default values.
func (c *Config) applyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading policy file: %w", err)
	}
	var doc struct {
		Policy *PolicyConfig `yaml:"policy"`
	}
	doc.Policy = &c.Policy
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: policy file: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks field constraints and cross-field rules.
//
// Description:
//
//	Struct tags are checked with go-playground/validator. Then base URLs
//	are normalized (trailing slash trimmed) and the business timezone is
//	resolved.
//
// Outputs:
//   - error: Wraps ErrInvalidConfig naming the first failing field.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c.Upstream.AuthURL = strings.TrimRight(c.Upstream.AuthURL, "/")
	c.Upstream.APIBase = strings.TrimRight(c.Upstream.APIBase, "/")

	loc, err := time.LoadLocation(c.Policy.BusinessTimezone)
	if err != nil {
		return fmt.Errorf("%w: business timezone %q: %v", ErrInvalidConfig, c.Policy.BusinessTimezone, err)
	}
	c.location = loc
	return nil
}

// Location returns the business timezone. UTC before Validate has run.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// ClearSecrets blanks the credential fields once they have been sealed
// elsewhere. Safe to call more than once.
func (c *Config) ClearSecrets() {
	c.Upstream.ClientSecret = ""
	c.Upstream.AppKey = ""
}
