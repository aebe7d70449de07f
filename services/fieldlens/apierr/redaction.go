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
	"regexp"
)

// redactionRule pairs a compiled regex with its replacement.
//
// Thread Safety: This type is immutable after construction.
type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactionRules is applied in order. Header and form-field rules come before
// the generic JWT rule so the label names the field that leaked.
var redactionRules = []redactionRule{
	{
		pattern:     regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]{8,}`),
		replacement: "Bearer [REDACTED:bearer_token]",
	},
	{
		pattern:     regexp.MustCompile(`(?i)(ST-App-Key["']?\s*[:=]\s*["']?)[A-Za-z0-9._-]{6,}`),
		replacement: "${1}[REDACTED:app_key]",
	},
	{
		pattern:     regexp.MustCompile(`(?i)(client_secret=)[^\s&"]+`),
		replacement: "${1}[REDACTED]",
	},
	{
		pattern:     regexp.MustCompile(`(?i)(client_id=)[^\s&"]+`),
		replacement: "${1}[REDACTED]",
	},
	{
		pattern:     regexp.MustCompile(`(?i)("(?:access_token|client_secret|refresh_token)"\s*:\s*")[^"]*(")`),
		replacement: "${1}[REDACTED]${2}",
	},
	{
		pattern:     regexp.MustCompile(`eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]*`),
		replacement: "[REDACTED:jwt]",
	},
	{
		pattern:     regexp.MustCompile(`(redis|rediss)://[^\s@]+@`),
		replacement: "${1}://[REDACTED]@",
	},
}

// SafeLogString redacts credentials from a string before it is logged.
//
// Description:
//
//	Covers bearer tokens, the application key header, client-credential
//	form fields, JSON token fields, bare JWTs, and credentials embedded in
//	redis URLs. Each match is replaced with a labeled placeholder.
//
// Inputs:
//   - s: The string to redact. Empty string returns empty string.
//
// Outputs:
//   - string: The input with matched secrets replaced.
//
// Limitations:
//   - Pattern-based only. A secret in an unrecognized shape is not caught,
//     which is why secret values are never passed to loggers directly.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, r := range redactionRules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SafeError returns the redacted text of err, or "" for nil.
func SafeError(err error) string {
	if err == nil {
		return ""
	}
	return SafeLogString(err.Error())
}
