// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the call graph queries over HTTP.
//
// Endpoints:
//   - POST /v1/callgraph/hierarchy
//   - POST /v1/callgraph/path
//   - GET /v1/callgraph/history
//   - GET /v1/callgraph/history/:id
//   - GET /v1/health
//   - GET /metrics (when the Prometheus exporter is active)
package api

import (
	"context"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/extract"
	"github.com/AleutianAI/callscope/services/trace/history"
	"github.com/AleutianAI/callscope/services/trace/query"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeSymbolNotFound  = "SYMBOL_NOT_FOUND"
	CodeAmbiguousSymbol = "AMBIGUOUS_SYMBOL"
	CodeNotAMethod      = "NOT_A_METHOD"
	CodeFileNotInCorpus = "FILE_NOT_IN_CORPUS"
	CodeCancelled       = "CANCELLED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeHistoryFailed   = "HISTORY_FAILED"
	CodeRecordNotFound  = "RECORD_NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// StatusClientClosedRequest is the non-standard status used when the
// client went away before the query finished.
const StatusClientClosedRequest = 499

// MaxHistoryLimit caps GET /v1/callgraph/history?limit.
const MaxHistoryLimit = 1000

// Querier is the query surface the handlers need. *query.Service
// implements it.
type Querier interface {
	Hierarchy(ctx context.Context, req query.HierarchyRequest) (*callgraph.HierarchyReport, error)
	Path(ctx context.Context, req query.PathRequest) (*callgraph.PathReport, error)
	History(ctx context.Context, limit int) ([]history.QueryRecord, error)
	HistoryRecord(ctx context.Context, id string) (*history.QueryRecord, error)
}

// ErrorResponse is returned for all API errors.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code"`

	// RequestID echoes the X-Request-ID header.
	RequestID string `json:"request_id,omitempty"`

	// Suggestions lists similar names for SYMBOL_NOT_FOUND.
	Suggestions []string `json:"suggestions,omitempty"`

	// Matches lists the candidates for AMBIGUOUS_SYMBOL.
	Matches []extract.SymbolMatch `json:"matches,omitempty"`
}

// HistoryResponse is returned by GET /v1/callgraph/history.
type HistoryResponse struct {
	Records []history.QueryRecord `json:"records"`
	Count   int                   `json:"count"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
