// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"sort"
	"time"
)

// AnchorCount is how often an anchor appeared in the summarized records.
type AnchorCount struct {
	Anchor string `json:"anchor"`
	Count  int    `json:"count"`
}

// Summary aggregates a set of query records.
type Summary struct {
	Total          int `json:"total"`
	Hierarchy      int `json:"hierarchy"`
	Path           int `json:"path"`
	PathsFound     int `json:"paths_found"`
	Truncated      int `json:"truncated"`
	GraphTruncated int `json:"graph_truncated"`

	// MeanDuration is the mean query duration.
	MeanDuration time.Duration `json:"mean_duration"`

	// TopAnchors lists the most queried anchors, most frequent first.
	TopAnchors []AnchorCount `json:"top_anchors"`

	// Since is the creation time of the oldest record.
	Since time.Time `json:"since"`
}

// Summarize aggregates records and keeps the top most queried anchors.
//
// # Description
//
// Anchors are counted once per record they appear in. Ties are ordered by
// anchor id so the result is deterministic.
func Summarize(records []QueryRecord, top int) Summary {
	var s Summary
	counts := make(map[string]int)
	var totalMicro int64
	for i := range records {
		r := &records[i]
		s.Total++
		switch r.Kind {
		case KindHierarchy:
			s.Hierarchy++
		case KindPath:
			s.Path++
			if r.Found {
				s.PathsFound++
			}
		}
		if r.Truncated {
			s.Truncated++
		}
		if r.GraphTruncated {
			s.GraphTruncated++
		}
		totalMicro += r.DurationMicro
		if created := r.CreatedAt(); s.Since.IsZero() || created.Before(s.Since) {
			s.Since = created
		}

		seen := make(map[string]bool, len(r.Anchors))
		for _, a := range r.Anchors {
			if !seen[a] {
				seen[a] = true
				counts[a]++
			}
		}
	}
	if s.Total > 0 {
		s.MeanDuration = time.Duration(totalMicro/int64(s.Total)) * time.Microsecond
	}

	for anchor, n := range counts {
		s.TopAnchors = append(s.TopAnchors, AnchorCount{Anchor: anchor, Count: n})
	}
	sort.Slice(s.TopAnchors, func(i, j int) bool {
		if s.TopAnchors[i].Count != s.TopAnchors[j].Count {
			return s.TopAnchors[i].Count > s.TopAnchors[j].Count
		}
		return s.TopAnchors[i].Anchor < s.TopAnchors[j].Anchor
	})
	if top > 0 && len(s.TopAnchors) > top {
		s.TopAnchors = s.TopAnchors[:top]
	}
	return s
}
