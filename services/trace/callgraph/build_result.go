// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgraph

import "fmt"

// UnitError represents a failure to extract call sites from one source unit.
type UnitError struct {
	// UnitPath is the corpus-relative path of the unit.
	UnitPath string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e UnitError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.UnitPath, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e UnitError) Unwrap() error {
	return e.Err
}

// BuildStats contains statistics about a build operation.
type BuildStats struct {
	// UnitsScanned is the number of units whose call sites were processed.
	UnitsScanned int `json:"units_scanned"`

	// UnitsFailed is the number of units extraction failed on.
	UnitsFailed int `json:"units_failed"`

	// UnitsTruncated is the number of units whose call sites were cut at
	// the source's per-unit ceiling.
	UnitsTruncated int `json:"units_truncated"`

	// CallSitesSeen counts every call site offered by the source.
	CallSitesSeen int `json:"call_sites_seen"`

	// EdgesAdded is the number of unique edges added.
	EdgesAdded int `json:"edges_added"`

	// DuplicateEdges counts call sites whose edge key was already present.
	DuplicateEdges int `json:"duplicate_edges"`

	// DroppedExternal counts call sites with an endpoint outside the corpus
	// while external methods were excluded.
	DroppedExternal int `json:"dropped_external"`

	// DroppedUnresolved counts call sites whose caller or callee had no
	// usable identity.
	DroppedUnresolved int `json:"dropped_unresolved"`

	// DroppedObjectCreations counts object-creation call sites filtered out.
	DroppedObjectCreations int `json:"dropped_object_creations"`

	// DurationMicro is the total build time in microseconds.
	DurationMicro int64 `json:"duration_micro"`
}

// BuildResult contains the result of a graph build.
//
// Builds are resilient: a unit whose extraction fails is recorded in
// UnitErrors and the build continues with the next unit.
type BuildResult struct {
	// Graph is the constructed graph. Partial when Truncated is true.
	Graph *CallGraph

	// UnitErrors contains errors for units that failed extraction.
	UnitErrors []UnitError

	// Stats contains build statistics.
	Stats BuildStats

	// Truncated mirrors Graph.TruncatedByEdgeLimit.
	Truncated bool
}

// HasErrors returns true if any unit failed extraction.
func (r *BuildResult) HasErrors() bool {
	return len(r.UnitErrors) > 0
}
