// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apierr defines the error taxonomy shared by the FieldLens gateway,
// query normalizer, analytics engine, and tool handlers.
//
// Every error that can reach a tool boundary maps to exactly one category
// (see Label) and one plain-language message (see UserMessage). Diagnostic
// detail stays in the wrapped error chain and is only ever logged after
// passing through SafeLogString.
package apierr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	// ErrNotFound is matched by UpstreamError for HTTP 404.
	ErrNotFound = errors.New("apierr: resource not found")

	// ErrPermissionDenied is matched by UpstreamError for HTTP 403.
	ErrPermissionDenied = errors.New("apierr: permission denied")

	// ErrQuotaExceeded is returned when a local invocation quota rejects a call.
	ErrQuotaExceeded = errors.New("apierr: local query quota exceeded")
)

// ValidationError reports caller input that failed a normalization rule.
//
// Validation errors are raised before any network call and are never retried.
type ValidationError struct {
	// Field is the parameter name as the caller supplied it (e.g. "start_date").
	Field string

	// Constraint describes the rule that failed (e.g. "must be YYYY-MM-DD").
	Constraint string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Constraint)
}

// Invalid is shorthand for constructing a *ValidationError.
func Invalid(field, constraint string) *ValidationError {
	return &ValidationError{Field: field, Constraint: constraint}
}

// AuthError reports a failed credential exchange or an upstream 401.
//
// Description:
//
//	AuthError is never retried. When Rotate is true the credentials
//	themselves were rejected and should be rotated by an operator; a false
//	value means the token endpoint was unreachable or malformed.
type AuthError struct {
	// StatusCode is the HTTP status observed, 0 for transport failures.
	StatusCode int

	// Rotate is true when the upstream rejected the credentials.
	Rotate bool

	// Err is the underlying cause. May be nil.
	Err error
}

// Error implements error.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError reports an upstream 429 or a local quota rejection.
type RateLimitError struct {
	// RetryAfter is the wait the upstream (or local quota) asked for.
	// Zero when no hint was provided.
	RetryAfter time.Duration

	// Local is true when the rejection came from the local quota, not upstream.
	Local bool
}

// Error implements error.
func (e *RateLimitError) Error() string {
	src := "upstream"
	if e.Local {
		src = "local"
	}
	return fmt.Sprintf("%s rate limit exceeded (retry after %s)", src, e.RetryAfter)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match local rejections.
func (e *RateLimitError) Is(target error) bool {
	return e.Local && target == ErrQuotaExceeded
}

// TransientError reports a network failure, timeout, or 5xx that survived
// every retry attempt.
type TransientError struct {
	// StatusCode is the last HTTP status observed, 0 for transport failures.
	StatusCode int

	// Attempts is the number of attempts made, including the first.
	Attempts int

	// Err is the last underlying cause.
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream unavailable after %d attempts (status %d)", e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("upstream unavailable after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// ForbiddenOperation reports an attempt to issue a non-GET request.
//
// This is a programming defect, never a user error, and is raised before any
// network activity.
type ForbiddenOperation struct {
	Method string
}

// Error implements error.
func (e *ForbiddenOperation) Error() string {
	return fmt.Sprintf("forbidden operation: %s requests are not permitted", e.Method)
}

// UpstreamError reports a non-retryable 4xx response other than 401/429.
type UpstreamError struct {
	StatusCode int
	Resource   string
}

// Error implements error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.Resource)
}

// Is maps 404 and 403 onto ErrNotFound and ErrPermissionDenied.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrPermissionDenied:
		return e.StatusCode == 403
	}
	return false
}

// AnomalyKind enumerates the data-integrity conditions the engine detects.
type AnomalyKind string

const (
	// AnomalyOrphanRecall marks a recall whose original job is outside the window.
	AnomalyOrphanRecall AnomalyKind = "orphan_recall"

	// AnomalyNoChargeRevenue marks a no-charge job carrying non-zero revenue.
	AnomalyNoChargeRevenue AnomalyKind = "no_charge_with_revenue"

	// AnomalyMissingJob marks an invoice whose job cannot be resolved.
	AnomalyMissingJob AnomalyKind = "missing_job"

	// AnomalyMalformedRecord marks an upstream record that failed to decode
	// or had no id and was left out.
	AnomalyMalformedRecord AnomalyKind = "malformed_record"
)

// DataIntegrityError describes one detected inconsistency in upstream data.
//
// Description:
//
//	DataIntegrityError is carried inside successful results as an anomaly.
//	It is never returned as the failure of an operation. It satisfies error
//	so callers can log or wrap it uniformly.
type DataIntegrityError struct {
	Kind AnomalyKind `json:"kind"`

	// RecordID is the upstream id of the affected record.
	RecordID int64 `json:"record_id"`

	// Detail is a short, identifier-free explanation.
	Detail string `json:"detail"`
}

// Error implements error.
func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity (%s) on record %d: %s", e.Kind, e.RecordID, e.Detail)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited reports whether err is a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsRetryable reports whether an operation that failed with err could
// succeed if the caller tried again later without changing its input.
func IsRetryable(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return IsRateLimited(err)
}
