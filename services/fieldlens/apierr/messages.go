// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apierr

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// UserMessage converts an error into a plain-language message that is safe to
// show to an end user.
//
// Description:
//
//	Messages never include record identifiers, credentials, URLs, or stack
//	detail. Unknown errors collapse to a generic message; the caller is
//	expected to log the full (redacted) error separately.
//
// Inputs:
//   - err: Any error. nil returns an empty string.
//
// Outputs:
//   - string: The user-facing message.
//
// Examples:
//
//	UserMessage(&RateLimitError{RetryAfter: 30 * time.Second})
//	// Returns: "Rate limit reached. Try again in 30 seconds."
//
// Thread Safety: This function is safe for concurrent use.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		ve  *ValidationError
		ae  *AuthError
		rl  *RateLimitError
		te  *TransientError
		fo  *ForbiddenOperation
		ue  *UpstreamError
		die *DataIntegrityError
	)

	switch {
	case errors.As(err, &ve):
		return fmt.Sprintf("Invalid input: %s: %s", ve.Field, ve.Constraint)
	case errors.As(err, &ae):
		if ae.Rotate {
			return "Authentication issue. Check credentials; they may need to be rotated."
		}
		return "Authentication issue. Check credentials."
	case errors.As(err, &rl):
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs <= 0 {
			return "Rate limit reached. Try again shortly."
		}
		return fmt.Sprintf("Rate limit reached. Try again in %d seconds.", secs)
	case errors.As(err, &te):
		if te.StatusCode != 0 {
			return fmt.Sprintf("API error (HTTP %d). Please try again.", te.StatusCode)
		}
		return "The service could not be reached. Please try again."
	case errors.As(err, &fo):
		return "This operation is not permitted. Only read access is available."
	case errors.As(err, &ue):
		switch ue.StatusCode {
		case 403:
			return "Access denied for this data. Check the application's permissions."
		case 404:
			return "The requested data was not found."
		default:
			return fmt.Sprintf("API error (HTTP %d). Please try again.", ue.StatusCode)
		}
	case errors.As(err, &die):
		return "Some records were inconsistent and were reported separately."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long. Try a smaller date range."
	case errors.Is(err, context.Canceled):
		return "The request was canceled."
	}
	return "An unexpected error occurred. Please try again."
}

// Label maps an error to a low-cardinality category for metrics labels and
// audit entries.
//
// Outputs:
//   - string: One of "ok", "validation", "auth", "rate_limit", "transient",
//     "forbidden", "not_found", "permission", "upstream", "timeout",
//     "canceled", "unknown".
func Label(err error) string {
	if err == nil {
		return "ok"
	}

	var (
		ve *ValidationError
		ae *AuthError
		rl *RateLimitError
		te *TransientError
		fo *ForbiddenOperation
		ue *UpstreamError
	)

	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &rl):
		return "rate_limit"
	case errors.As(err, &te):
		return "transient"
	case errors.As(err, &fo):
		return "forbidden"
	case errors.As(err, &ue):
		switch ue.StatusCode {
		case 404:
			return "not_found"
		case 403:
			return "permission"
		}
		return "upstream"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "unknown"
}
