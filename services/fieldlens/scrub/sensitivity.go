// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scrub

import "regexp"

// Sensitivity is the classification level of free text.
type Sensitivity int

const (
	// SensitivityPublic is text with no detected personal data shapes.
	SensitivityPublic Sensitivity = iota

	// SensitivityPII is text containing at least one email, phone number,
	// or street address shape.
	SensitivityPII
)

// String returns the label used in reports and structured output.
func (s Sensitivity) String() string {
	switch s {
	case SensitivityPublic:
		return "public"
	case SensitivityPII:
		return "pii"
	default:
		return "unknown"
	}
}

// PIIKind names one detected shape.
type PIIKind string

const (
	PIIEmail   PIIKind = "email"
	PIIPhone   PIIKind = "phone"
	PIIAddress PIIKind = "street_address"
)

// piiPatterns are checked in order. Matching is shape-based only; text that
// names a person without an address or contact detail is not detected.
var piiPatterns = []struct {
	kind    PIIKind
	pattern *regexp.Regexp
}{
	{PIIEmail, regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)},
	{PIIPhone, regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\b\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)},
	{PIIAddress, regexp.MustCompile(`(?i)\b\d{1,6}\s+(?:[NSEW]\.?\s+)?(?:[A-Z0-9]+\s+){0,3}(?:st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|ct|court|way|pl|place|cir|circle|pkwy|parkway|hwy|highway|ter|terrace)\b\.?`)},
}

// Classify labels text and lists the detected shapes in a fixed order.
//
// Thread Safety: Safe for concurrent use; the patterns are read-only.
func Classify(text string) (Sensitivity, []PIIKind) {
	var kinds []PIIKind
	for _, p := range piiPatterns {
		if p.pattern.MatchString(text) {
			kinds = append(kinds, p.kind)
		}
	}
	if len(kinds) == 0 {
		return SensitivityPublic, nil
	}
	return SensitivityPII, kinds
}
