// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

const (
	// maxSuggestions is the length of the fallback name list.
	maxSuggestions = 10

	// maxDidYouMean is the length of the fuzzy-ranked list.
	maxDidYouMean = 3
)

// Candidate is a named reference (technician, job type, tag, business unit).
type Candidate struct {
	ID   int64
	Name string
}

// Resolution is the outcome of matching a name against candidates.
type Resolution struct {
	// Query is the normalized name that was looked up.
	Query string

	// Match is set when exactly one candidate matched.
	Match *Candidate

	// Ambiguous lists every candidate when more than one matched.
	Ambiguous []Candidate

	// Suggestions lists up to ten candidate names, alphabetically, when
	// nothing matched.
	Suggestions []string

	// DidYouMean lists fuzzy-ranked near misses when nothing matched.
	DidYouMean []string
}

// Found reports whether the resolution produced a single match.
func (r Resolution) Found() bool { return r.Match != nil }

// IsAmbiguous reports whether several candidates matched.
func (r Resolution) IsAmbiguous() bool { return len(r.Ambiguous) > 1 }

// ResolveTechnician matches name against candidates by case-insensitive
// substring.
//
// Description:
//
//	One match is returned as Match. Several matches are returned in full as
//	Ambiguous, sorted by name, and no guess is made. An exact (case-insensitive)
//	full-name hit among several substring hits is still ambiguous. With no
//	match, Suggestions and DidYouMean are filled.
//
// Inputs:
//   - name: The already-validated technician name.
//   - candidates: Active technicians.
//
// Outputs:
//   - Resolution: Never an error; the caller renders the condition.
func ResolveTechnician(name string, candidates []Candidate) Resolution {
	res := Resolution{Query: name}
	needle := strings.ToLower(strings.TrimSpace(name))

	var hits []Candidate
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			hits = append(hits, c)
		}
	}
	sortCandidates(hits)

	switch len(hits) {
	case 0:
		res.Suggestions, res.DidYouMean = suggest(needle, candidates)
	case 1:
		m := hits[0]
		res.Match = &m
	default:
		res.Ambiguous = hits
	}
	return res
}

func suggest(needle string, candidates []Candidate) ([]string, []string) {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	sort.Strings(names)

	suggestions := names
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	var didYouMean []string
	if needle != "" {
		ranks := fuzzy.RankFindNormalizedFold(needle, names)
		sort.Sort(ranks)
		for _, r := range ranks {
			if len(didYouMean) == maxDidYouMean {
				break
			}
			didYouMean = append(didYouMean, r.Target)
		}
	}
	return append([]string(nil), suggestions...), didYouMean
}

// NameSet is a case-insensitive name to id index of a reference set.
type NameSet struct {
	byName map[string]Candidate
	byID   map[int64]string
}

// NewNameSet indexes candidates. Later duplicates of a name are ignored.
func NewNameSet(candidates []Candidate) *NameSet {
	s := &NameSet{
		byName: make(map[string]Candidate, len(candidates)),
		byID:   make(map[int64]string, len(candidates)),
	}
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, ok := s.byName[key]; !ok {
			s.byName[key] = c
		}
		s.byID[c.ID] = c.Name
	}
	return s
}

// Name returns the display name for id and whether it is known.
func (s *NameSet) Name(id int64) (string, bool) {
	n, ok := s.byID[id]
	return n, ok
}

// NameOr returns the display name for id, or fallback.
func (s *NameSet) NameOr(id int64, fallback string) string {
	if n, ok := s.byID[id]; ok && n != "" {
		return n
	}
	return fallback
}

// Names returns every name, sorted.
func (s *NameSet) Names() []string {
	out := make([]string, 0, len(s.byName))
	for _, c := range s.byName {
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

// Resolve maps each wanted name to its candidate by exact case-insensitive
// comparison.
//
// Outputs:
//   - []Candidate: Matched candidates in the order requested, deduplicated.
//   - []string: Requested names with no match, in the order requested.
func (s *NameSet) Resolve(wanted []string) ([]Candidate, []string) {
	var (
		found   []Candidate
		unknown []string
		seen    = make(map[int64]bool)
	)
	for _, w := range wanted {
		c, ok := s.byName[strings.ToLower(strings.TrimSpace(w))]
		if !ok {
			unknown = append(unknown, w)
			continue
		}
		if !seen[c.ID] {
			seen[c.ID] = true
			found = append(found, c)
		}
	}
	return found, unknown
}

// ResolveContains returns every candidate whose name contains fragment,
// case-insensitively, sorted by name.
func (s *NameSet) ResolveContains(fragment string) []Candidate {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	var out []Candidate
	for key, c := range s.byName {
		if strings.Contains(key, needle) {
			out = append(out, c)
		}
	}
	sortCandidates(out)
	return out
}

func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].ID < cs[j].ID
	})
}
