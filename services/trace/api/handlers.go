// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/extract"
	"github.com/AleutianAI/callscope/services/trace/history"
	"github.com/AleutianAI/callscope/services/trace/query"
	"github.com/AleutianAI/callscope/services/trace/telemetry"
)

// Handlers holds the HTTP handlers.
//
// Thread Safety: Safe for concurrent use if the Querier is.
type Handlers struct {
	svc     Querier
	logger  *slog.Logger
	version string
}

// NewHandlers creates handlers backed by svc. A nil logger uses
// slog.Default().
func NewHandlers(svc Querier, logger *slog.Logger, version string) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger, version: version}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return telemetry.LoggerWithTrace(c.Request.Context(), h.logger).With(
		slog.String("request_id", requestID(c)),
		slog.String("handler", handler),
	)
}

// HandleHierarchy handles POST /v1/callgraph/hierarchy.
//
// Description:
//
//	Expands the call hierarchy around the anchor method. Truncation is
//	reported in the body with status 200.
//
// Request Body:
//
//	query.HierarchyRequest
//
// Response:
//
//	200 OK: callgraph.HierarchyReport
//	400 Bad Request: invalid body, root, anchor, direction or limits
//	404 Not Found: anchor matches no method
//	409 Conflict: anchor matches several methods
//	422 Unprocessable Entity: file:line anchor outside a method or the corpus
func (h *Handlers) HandleHierarchy(c *gin.Context) {
	logger := h.requestLogger(c, "HandleHierarchy")

	var req query.HierarchyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		h.writeError(c, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeInvalidRequest})
		return
	}

	report, err := h.svc.Hierarchy(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}

	logger.Info("hierarchy query served",
		slog.String("anchor", report.Anchor.SymbolID),
		slog.Int("nodes", len(report.Nodes)),
		slog.Bool("truncated", report.Truncated),
	)
	c.JSON(http.StatusOK, report)
}

// HandlePath handles POST /v1/callgraph/path.
//
// Response:
//
//	200 OK: callgraph.PathReport, also when no path exists
//	4xx: as HandleHierarchy
func (h *Handlers) HandlePath(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePath")

	var req query.PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		h.writeError(c, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeInvalidRequest})
		return
	}

	report, err := h.svc.Path(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}

	logger.Info("path query served",
		slog.String("source", report.Source.SymbolID),
		slog.String("target", report.Target.SymbolID),
		slog.Bool("found", report.Found),
	)
	c.JSON(http.StatusOK, report)
}

// HandleHistory handles GET /v1/callgraph/history?limit=N.
func (h *Handlers) HandleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxHistoryLimit {
			h.writeError(c, http.StatusBadRequest, ErrorResponse{
				Error: "limit must be an integer between 1 and " + strconv.Itoa(MaxHistoryLimit),
				Code:  CodeInvalidRequest,
			})
			return
		}
		limit = n
	}

	records, err := h.svc.History(c.Request.Context(), limit)
	if err != nil {
		h.requestLogger(c, "HandleHistory").Error("history listing failed", slog.String("error", err.Error()))
		h.writeError(c, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeHistoryFailed})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Records: records, Count: len(records)})
}

// HandleHistoryRecord handles GET /v1/callgraph/history/:id.
//
// Response:
//
//	200 OK: history.QueryRecord
//	404 Not Found: no record with that id
//	500 Internal Server Error: history store failure
func (h *Handlers) HandleHistoryRecord(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.svc.HistoryRecord(c.Request.Context(), id)
	switch {
	case errors.Is(err, history.ErrRecordNotFound):
		h.writeError(c, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeRecordNotFound})
		return
	case err != nil:
		h.requestLogger(c, "HandleHistoryRecord").Error("history lookup failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		h.writeError(c, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeHistoryFailed})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleHealth handles GET /v1/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// fail maps a query error onto a response.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("query failed", slog.String("error", err.Error()))
	} else {
		logger.Info("query rejected",
			slog.String("code", resp.Code),
			slog.String("error", err.Error()),
		)
	}
	h.writeError(c, status, resp)
}

func (h *Handlers) writeError(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = requestID(c)
	c.AbortWithStatusJSON(status, resp)
}

// errorResponse classifies err into a status and body.
func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var ambiguous *extract.AmbiguousSymbolError
	var notFound *extract.SymbolNotFoundError
	switch {
	case errors.Is(err, callgraph.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		resp.Code = CodeCancelled
		return StatusClientClosedRequest, resp
	case query.IsInputError(err):
		resp.Code = CodeInvalidRequest
		return http.StatusBadRequest, resp
	case errors.As(err, &ambiguous):
		resp.Code = CodeAmbiguousSymbol
		resp.Matches = ambiguous.Matches
		return http.StatusConflict, resp
	case errors.As(err, &notFound):
		resp.Code = CodeSymbolNotFound
		resp.Suggestions = notFound.Suggestions
		return http.StatusNotFound, resp
	case errors.Is(err, extract.ErrSymbolNotFound), errors.Is(err, callgraph.ErrAnchorNotFound):
		resp.Code = CodeSymbolNotFound
		return http.StatusNotFound, resp
	case errors.Is(err, extract.ErrNotAMethod):
		resp.Code = CodeNotAMethod
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, extract.ErrFileNotInCorpus):
		resp.Code = CodeFileNotInCorpus
		return http.StatusUnprocessableEntity, resp
	default:
		resp.Code = CodeInternalError
		return http.StatusInternalServerError, resp
	}
}
