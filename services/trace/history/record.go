// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records the call-graph queries that were executed.
//
// Records describe a query and the shape of its answer. Graphs themselves
// are never persisted; every query builds a fresh graph.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	ErrRecordNotFound = errors.New("history record not found")
	ErrNilRecord      = errors.New("history record must not be nil")
	ErrInvalidKind    = errors.New("history record kind must be hierarchy or path")
)

// Kind is the query type of a record.
type Kind string

const (
	KindHierarchy Kind = "hierarchy"
	KindPath      Kind = "path"
)

// QueryParams are the effective parameters of a query.
type QueryParams struct {
	ProjectRoot            string `json:"project_root"`
	Direction              string `json:"direction,omitempty"`
	MaxDepth               int    `json:"max_depth"`
	MaxNodes               int    `json:"max_nodes"`
	MaxEdges               int    `json:"max_edges,omitempty"`
	MaxGraphEdges          int    `json:"max_graph_edges"`
	IncludeExternal        bool   `json:"include_external"`
	IncludeObjectCreations bool   `json:"include_object_creations"`
}

// QueryRecord describes one executed query.
type QueryRecord struct {
	// ID is a UUID assigned by Record when empty.
	ID string `json:"id"`

	Kind Kind `json:"kind"`

	// Anchors holds the resolved anchor ids: one for hierarchy, source and
	// target for path.
	Anchors []string `json:"anchors"`

	Params QueryParams `json:"params"`

	// Found is meaningful for path queries only.
	Found bool `json:"found"`

	Truncated      bool `json:"truncated"`
	GraphTruncated bool `json:"graph_truncated"`

	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`

	DurationMicro  int64 `json:"duration_micro"`
	CreatedAtMilli int64 `json:"created_at_milli"`
}

// CreatedAt returns the creation time.
func (r *QueryRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.CreatedAtMilli)
}

// prepare validates r and fills ID and CreatedAtMilli when unset.
func (r *QueryRecord) prepare(now time.Time) error {
	if r == nil {
		return ErrNilRecord
	}
	if r.Kind != KindHierarchy && r.Kind != KindPath {
		return ErrInvalidKind
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAtMilli == 0 {
		r.CreatedAtMilli = now.UnixMilli()
	}
	return nil
}

// Store persists query records.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Store interface {
	// Record saves r, assigning ID and CreatedAtMilli when unset.
	Record(ctx context.Context, r *QueryRecord) error

	// Get returns the record with the given id or ErrRecordNotFound.
	Get(ctx context.Context, id string) (*QueryRecord, error)

	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]QueryRecord, error)

	// Close releases resources.
	Close() error
}
