// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query runs call hierarchy and call path queries against a Go
// project on disk.
//
// Every query loads the project, extracts call sites and builds a fresh
// call graph. Nothing is cached between queries; the query history records
// what was asked and what came back, never the graph itself.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/extract"
	"github.com/AleutianAI/callscope/services/trace/history"
	"github.com/AleutianAI/callscope/services/trace/telemetry"
)

var tracer = otel.Tracer("callscope.query")

// ServiceConfig configures the query service.
type ServiceConfig struct {
	// Hierarchy holds the limits used when a request leaves them at zero.
	Hierarchy callgraph.HierarchyLimits

	// Path holds the path limits used when a request leaves them at zero.
	Path callgraph.PathLimits

	// GraphEdges bounds the graph built for hierarchy queries.
	// Default: callgraph.DefaultMaxGraphEdges
	GraphEdges int

	IncludeExternal        bool
	IncludeObjectCreations bool

	// Corpus controls which files are loaded. Its Logger is ignored.
	Corpus extract.CorpusOptions

	// AllowedRoots is an optional list of allowed project root prefixes.
	// If empty, all paths are allowed.
	AllowedRoots []string
}

// DefaultServiceConfig returns the built-in defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Hierarchy:              callgraph.DefaultHierarchyLimits(),
		Path:                   callgraph.DefaultPathLimits(),
		GraphEdges:             callgraph.DefaultMaxGraphEdges,
		IncludeObjectCreations: true,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records every successful query in store.
func WithHistory(store history.Store) Option {
	return func(s *Service) {
		s.history = store
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service answers call graph queries.
//
// Thread Safety:
//
//	Safe for concurrent use. Each query builds its own graph.
type Service struct {
	config  ServiceConfig
	history history.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a query service.
//
// Inputs:
//
//	config - Defaults and corpus settings. Zero limits take the built-in defaults.
//	opts - Optional history store and logger.
//
// Outputs:
//
//	*Service - The service. Never nil.
func NewService(config ServiceConfig, opts ...Option) *Service {
	def := DefaultServiceConfig()
	if config.Hierarchy == (callgraph.HierarchyLimits{}) {
		config.Hierarchy = def.Hierarchy
	}
	if config.Path == (callgraph.PathLimits{}) {
		config.Path = def.Path
	}
	if config.GraphEdges == 0 {
		config.GraphEdges = def.GraphEdges
	}
	s := &Service{config: config, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Hierarchy expands the call hierarchy around one method.
//
// Description:
//
//	Validates the request, loads and parses the project, resolves the
//	anchor against the parsed declarations, and only then builds a graph
//	with the incoming index and runs a bounded breadth-first expansion. An
//	unknown anchor therefore fails before any graph work. An anchor without
//	any calls still resolves; it yields a single-node report.
//
// Outputs:
//
//	*callgraph.HierarchyReport - The assembled report.
//	error - Input errors (ErrInvalidRequest, callgraph.ErrInvalidLimit,
//	  callgraph.ErrInvalidDirection, callgraph.ErrEmptyAnchor), resolution
//	  errors from extract, or callgraph.ErrCancelled.
func (s *Service) Hierarchy(ctx context.Context, req HierarchyRequest) (*callgraph.HierarchyReport, error) {
	start := s.now()
	ctx, span := tracer.Start(ctx, "query.Service.Hierarchy")
	defer span.End()

	p, err := s.hierarchyParams(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("query.anchor", p.anchor),
		attribute.String("query.direction", string(p.direction)),
	)

	sess, err := s.open(ctx, span, p.buildParams)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	refs, err := sess.resolveAnchors(p.anchor)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.build(ctx, span, sess, p.buildParams); err != nil {
		return nil, err
	}
	anchorID, err := sess.materialize(p.anchor, refs[0])
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	res, err := callgraph.Hierarchy(ctx, sess.graph(), anchorID, callgraph.HierarchyOptions{
		Direction: p.direction,
		Limits:    p.limits,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	report := callgraph.AssembleHierarchy(sess.graph(), res, p.limits)

	params := p.queryParams()
	params.Direction = string(p.direction)
	params.MaxDepth = p.limits.MaxDepth
	params.MaxNodes = p.limits.MaxNodes
	params.MaxEdges = p.limits.MaxEdges
	s.record(ctx, &history.QueryRecord{
		Kind:           history.KindHierarchy,
		Anchors:        []string{anchorID},
		Params:         params,
		Truncated:      report.Truncated,
		GraphTruncated: report.GraphTruncated,
		NodeCount:      len(report.Nodes),
		EdgeCount:      len(report.Edges),
		DurationMicro:  s.now().Sub(start).Microseconds(),
	})
	return &report, nil
}

// Path finds the shortest call path between two methods.
//
// Description:
//
//	Same pipeline as Hierarchy without the incoming index. A source equal
//	to the target yields a found path of one node and no edges. Not finding
//	a path is a result, not an error.
func (s *Service) Path(ctx context.Context, req PathRequest) (*callgraph.PathReport, error) {
	start := s.now()
	ctx, span := tracer.Start(ctx, "query.Service.Path")
	defer span.End()

	p, err := s.pathParams(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("query.source", p.source),
		attribute.String("query.target", p.target),
	)

	sess, err := s.open(ctx, span, p.buildParams)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	refs, err := sess.resolveAnchors(p.source, p.target)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.build(ctx, span, sess, p.buildParams); err != nil {
		return nil, err
	}
	sourceID, err := sess.materialize(p.source, refs[0])
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	targetID, err := sess.materialize(p.target, refs[1])
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	res, err := callgraph.ShortestPath(ctx, sess.graph(), sourceID, targetID, callgraph.PathOptions{Limits: p.limits})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	report := callgraph.AssemblePath(sess.graph(), res, p.limits)
	span.SetAttributes(attribute.Bool("query.found", report.Found))

	params := p.queryParams()
	params.MaxDepth = p.limits.MaxDepth
	params.MaxNodes = p.limits.MaxNodes
	s.record(ctx, &history.QueryRecord{
		Kind:           history.KindPath,
		Anchors:        []string{sourceID, targetID},
		Params:         params,
		Found:          report.Found,
		Truncated:      report.Truncated,
		GraphTruncated: report.GraphTruncated,
		NodeCount:      len(report.PathNodes),
		EdgeCount:      len(report.PathEdges),
		DurationMicro:  s.now().Sub(start).Microseconds(),
	})
	return &report, nil
}

// History returns up to limit recent queries, newest first. Without a
// history store it returns an empty list.
func (s *Service) History(ctx context.Context, limit int) ([]history.QueryRecord, error) {
	if s.history == nil {
		return []history.QueryRecord{}, nil
	}
	records, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []history.QueryRecord{}
	}
	return records, nil
}

// HistoryRecord returns one stored query record.
//
// Outputs:
//
//	*history.QueryRecord - The record.
//	error - Wraps history.ErrRecordNotFound when id is unknown or no history
//	        store is configured.
func (s *Service) HistoryRecord(ctx context.Context, id string) (*history.QueryRecord, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: %s", history.ErrRecordNotFound, id)
	}
	return s.history.Get(ctx, id)
}

// record stores rec. Failures are logged and never fail the query.
func (s *Service) record(ctx context.Context, rec *history.QueryRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		telemetry.LoggerWithTrace(ctx, s.logger).Warn("failed to record query history",
			slog.String("kind", string(rec.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

// session holds the per-query corpus, extractor and graph.
type session struct {
	corpus    *extract.Corpus
	extractor *extract.GoExtractor
	result    *callgraph.BuildResult
}

func (ss *session) graph() *callgraph.CallGraph {
	return ss.result.Graph
}

func (ss *session) close() {
	ss.extractor.Close()
}

// resolveAnchors maps anchor strings to method references using the parsed
// declarations only.
func (ss *session) resolveAnchors(inputs ...string) ([]callgraph.MethodRef, error) {
	refs := make([]callgraph.MethodRef, 0, len(inputs))
	for _, input := range inputs {
		ref, err := ss.extractor.ResolveAnchor(input)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// materialize returns the node id of a resolved anchor, creating the node
// when the method takes part in no call.
func (ss *session) materialize(input string, ref callgraph.MethodRef) (string, error) {
	node, err := ss.graph().GetOrCreateNode(ref)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", input, err)
	}
	return node.SymbolID, nil
}

// asCancelled makes context errors from loading and parsing match
// callgraph.ErrCancelled like those from building and searching.
func asCancelled(err error) error {
	if errors.Is(err, callgraph.ErrCancelled) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", callgraph.ErrCancelled, err)
	}
	return err
}

// open loads and parses the project.
func (s *Service) open(ctx context.Context, span trace.Span, p buildParams) (*session, error) {
	logger := telemetry.LoggerWithTrace(ctx, s.logger)

	corpusOpts := s.config.Corpus
	corpusOpts.Logger = logger
	corpus, err := extract.LoadCorpus(ctx, p.root, corpusOpts)
	if err != nil {
		err = asCancelled(fmt.Errorf("load project: %w", err))
		telemetry.RecordError(span, err)
		return nil, err
	}

	x, err := extract.NewGoExtractor(ctx, corpus, extract.ExtractOptions{
		IncludeObjectCreations: p.objects,
		Logger:                 logger,
	})
	if err != nil {
		err = asCancelled(fmt.Errorf("parse project: %w", err))
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("query.module", x.ModulePath()))
	logger.Debug("project parsed",
		slog.String("module", x.ModulePath()),
		slog.Int("units", len(corpus.Units)),
	)
	return &session{corpus: corpus, extractor: x}, nil
}

// build constructs the session's call graph.
func (s *Service) build(ctx context.Context, span trace.Span, sess *session, p buildParams) error {
	logger := telemetry.LoggerWithTrace(ctx, s.logger)

	builder, err := callgraph.NewBuilder(
		callgraph.WithObjectCreations(p.objects),
		callgraph.WithExternal(p.external),
		callgraph.WithMaxGraphEdges(p.maxGraphEdges),
		callgraph.WithIncoming(p.trackIncoming),
		callgraph.WithLogger(logger),
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	result, err := builder.Build(ctx, sess.extractor.UnitPaths(), sess.extractor)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if result.HasErrors() {
		for _, ue := range result.UnitErrors {
			logger.Warn("call site extraction failed",
				slog.String("unit", ue.UnitPath),
				slog.String("error", ue.Err.Error()),
			)
		}
	}
	span.SetAttributes(
		attribute.Int("query.units", len(sess.corpus.Units)),
		attribute.Int("query.graph_edges", result.Graph.TotalEdges()),
		attribute.Bool("query.graph_truncated", result.Truncated),
	)
	sess.result = result
	return nil
}

// validateProjectRoot checks the root and returns it with symlinks
// resolved.
func (s *Service) validateProjectRoot(projectRoot string) (string, error) {
	if strings.TrimSpace(projectRoot) == "" {
		return "", ErrProjectRootRequired
	}
	if !filepath.IsAbs(projectRoot) {
		return "", ErrRelativePath
	}
	for _, part := range strings.Split(filepath.ToSlash(projectRoot), "/") {
		if part == ".." {
			return "", ErrPathTraversal
		}
	}

	resolved, err := filepath.EvalSymlinks(projectRoot)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrRootNotFound, projectRoot)
	}
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}

	if len(s.config.AllowedRoots) > 0 {
		allowed := false
		for _, root := range s.config.AllowedRoots {
			if withinRoot(resolved, root) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("%w: %s", ErrRootNotAllowed, projectRoot)
		}
	}
	return resolved, nil
}

// withinRoot reports whether path equals root or lies below it.
func withinRoot(path, root string) bool {
	root = filepath.Clean(root)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
