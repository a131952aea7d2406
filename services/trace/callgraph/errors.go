// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callgraph provides the bounded call-relationship engine.
//
// The package builds a directed caller→callee graph between methods from a
// stream of extracted call sites and answers two queries over it: a
// multi-level call hierarchy expansion from an anchor method and a shortest
// call path search between two methods. Both queries run under node, edge
// and depth ceilings and report truncation as flags, never as errors.
//
// # Ownership Model
//
// A CallGraph is built for exactly one query and is never shared or cached.
// Traversal state (visited sets, frontier queues, predecessor maps) lives in
// the query functions and is discarded when they return.
//
// # Thread Safety
//
// CallGraph is NOT safe for concurrent mutation. Build it from a single
// goroutine; after Build returns, concurrent reads are safe as long as no
// further nodes or edges are added.
//
// # Error Taxonomy
//
//   - Input errors (ErrInvalidDirection, ErrInvalidLimit, ErrEmptyAnchor)
//     are returned before any graph work starts.
//   - Resolution errors (ErrAnchorNotFound) mean the request names a method
//     the graph does not know.
//   - Truncation is reported through Truncated flags and caveat strings.
//   - Cancellation returns an error wrapping ErrCancelled and no result.
package callgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for call graph operations.
var (
	// ErrInvalidDirection is returned when a hierarchy direction is not one
	// of incoming, outgoing or both.
	ErrInvalidDirection = errors.New("invalid direction")

	// ErrInvalidLimit is returned when a depth, node or edge limit is outside
	// its accepted range. Limits are rejected, never clamped.
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrEmptyAnchor is returned when a query anchor is empty.
	ErrEmptyAnchor = errors.New("anchor is empty")

	// ErrAnchorNotFound is returned when an anchor id has no node in the graph.
	ErrAnchorNotFound = errors.New("anchor not found in call graph")

	// ErrUnresolvedMethod is returned by Identify when a method reference
	// carries neither a canonical id nor a display string.
	ErrUnresolvedMethod = errors.New("method could not be resolved")

	// ErrEdgeLimitReached is returned by AddEdge once the graph holds its
	// configured maximum number of edges.
	ErrEdgeLimitReached = errors.New("graph edge limit reached")

	// ErrUnitTruncated is wrapped by a CallSiteSource that returns only part
	// of a unit's call sites because it hit a per-unit ceiling.
	ErrUnitTruncated = errors.New("unit call sites truncated")

	// ErrCancelled is returned when a build or search is cancelled via context.
	ErrCancelled = errors.New("call graph operation cancelled")

	// ErrNilGraph is returned when a query is given a nil graph.
	ErrNilGraph = errors.New("call graph is nil")
)

// LimitError describes a single rejected limit value.
type LimitError struct {
	// Field is the name of the offending limit (e.g. "max_depth").
	Field string

	// Value is the rejected value.
	Value int

	// Min and Max are the inclusive bounds of the accepted range.
	Min int
	Max int
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s=%d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// Unwrap returns ErrInvalidLimit for errors.Is support.
func (e *LimitError) Unwrap() error {
	return ErrInvalidLimit
}

// cancelled wraps a context error so callers can match ErrCancelled and the
// original context error.
func cancelled(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCancelled, cause)
}
