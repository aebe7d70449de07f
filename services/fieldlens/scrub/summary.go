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

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// SummaryWarning accompanies every rendering of summary text.
const SummaryWarning = "WARNING: Job summaries are free-text dispatcher notes and may contain\n" +
	"    customer names, phone numbers, or addresses."

type rawSummary struct {
	Summary string `json:"summary"`
}

// SensitiveSummary is a scrubbed job together with its free-text summary.
//
// Description:
//
//	The summary field is excluded from Job. It only exists here, labeled
//	with the shapes the classifier found. Text and String always prefix
//	the warning; there is no accessor for the bare summary.
type SensitiveSummary struct {
	job         Job
	text        string
	sensitivity Sensitivity
	kinds       []PIIKind
}

// ScrubJobSummary scrubs a raw job and retains its summary text as a
// SensitiveSummary. This is the only path by which summary text survives
// scrubbing.
func ScrubJobSummary(raw json.RawMessage) (SensitiveSummary, error) {
	job, err := ScrubJob(raw)
	if err != nil {
		return SensitiveSummary{}, err
	}
	var r rawSummary
	if err := decode("job summary", raw, &r); err != nil {
		return SensitiveSummary{}, err
	}
	text := strings.TrimSpace(r.Summary)
	sens, kinds := Classify(text)
	return SensitiveSummary{job: job, text: text, sensitivity: sens, kinds: kinds}, nil
}

// ScrubJobSummaries scrubs a batch of raw jobs with their summaries.
// Records that fail to scrub are skipped and returned as anomalies.
func ScrubJobSummaries(raws []json.RawMessage) ([]SensitiveSummary, []apierr.DataIntegrityError) {
	return scrubAll(raws, ScrubJobSummary)
}

// Job returns the scrubbed job the summary belongs to.
func (s SensitiveSummary) Job() Job { return s.job }

// Sensitivity returns the classifier label of the summary text.
func (s SensitiveSummary) Sensitivity() Sensitivity { return s.sensitivity }

// Detected returns the PII shapes found in the summary.
func (s SensitiveSummary) Detected() []PIIKind { return append([]PIIKind(nil), s.kinds...) }

// Empty reports whether the job has no summary text.
func (s SensitiveSummary) Empty() bool { return s.text == "" }

// Contains reports whether the summary contains needle, case-insensitively.
func (s SensitiveSummary) Contains(needle string) bool {
	return strings.Contains(strings.ToLower(s.text), strings.ToLower(needle))
}

// Quoted renders the summary as a quoted line with its sensitivity label.
// Callers must render SummaryWarning in the same report.
func (s SensitiveSummary) Quoted() string {
	return fmt.Sprintf("[%s] %q", s.sensitivity, s.text)
}

// String renders the warning followed by the quoted summary.
func (s SensitiveSummary) String() string {
	return SummaryWarning + "\n" + s.Quoted()
}

// MarshalJSON emits the summary with its label and the warning so structured
// output carries the same disclosure as text output.
func (s SensitiveSummary) MarshalJSON() ([]byte, error) {
	kinds := s.kinds
	if kinds == nil {
		kinds = []PIIKind{}
	}
	return json.Marshal(struct {
		JobID       int64     `json:"job_id"`
		Warning     string    `json:"warning"`
		Sensitivity string    `json:"sensitivity"`
		Detected    []PIIKind `json:"detected"`
		Summary     string    `json:"summary"`
	}{
		JobID:       s.job.id,
		Warning:     SummaryWarning,
		Sensitivity: s.sensitivity.String(),
		Detected:    kinds,
		Summary:     s.text,
	})
}
