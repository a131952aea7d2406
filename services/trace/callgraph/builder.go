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

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"
)

// BuilderOptions configures graph construction.
type BuilderOptions struct {
	// IncludeObjectCreations keeps object-creation call kinds. Default: true.
	IncludeObjectCreations bool

	// IncludeExternal keeps edges whose caller or callee has no in-source
	// declaration. Default: false.
	IncludeExternal bool

	// MaxGraphEdges is the edge ceiling. Default: 30000.
	MaxGraphEdges int

	// TrackIncoming builds the incoming-adjacency index. Hierarchy queries
	// need it; path queries do not.
	TrackIncoming bool

	// Logger receives build diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultBuilderOptions returns the default builder configuration.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		IncludeObjectCreations: true,
		MaxGraphEdges:          DefaultMaxGraphEdges,
	}
}

// BuilderOption is a functional option for configuring a Builder.
type BuilderOption func(*BuilderOptions)

// WithObjectCreations keeps or drops object-creation call kinds.
func WithObjectCreations(include bool) BuilderOption {
	return func(o *BuilderOptions) {
		o.IncludeObjectCreations = include
	}
}

// WithExternal keeps or drops edges touching methods outside the corpus.
func WithExternal(include bool) BuilderOption {
	return func(o *BuilderOptions) {
		o.IncludeExternal = include
	}
}

// WithMaxGraphEdges sets the edge ceiling.
func WithMaxGraphEdges(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxGraphEdges = n
	}
}

// WithIncoming enables the incoming-adjacency index.
func WithIncoming(track bool) BuilderOption {
	return func(o *BuilderOptions) {
		o.TrackIncoming = track
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = logger
	}
}

// Builder assembles a CallGraph from extracted call sites.
//
// A Builder holds configuration only and may be reused; each Build call
// produces an independent graph.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a builder with the given options.
//
// Outputs:
//
//	*Builder - The configured builder.
//	error - A *LimitError if MaxGraphEdges is out of range.
func NewBuilder(opts ...BuilderOption) (*Builder, error) {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if err := ValidateGraphEdges(options.MaxGraphEdges); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Builder{options: options}, nil
}

// Options returns the builder configuration.
func (b *Builder) Options() BuilderOptions {
	return b.options
}

// Build constructs a call graph from the given units.
//
// Description:
//
//	Iterates units in sorted path order and asks the source for each
//	unit's call sites. Every call site is filtered (object creations,
//	external endpoints, unresolved methods), deduplicated and added as an
//	edge. Once the graph holds MaxGraphEdges edges, the next new edge marks
//	the graph truncated and construction stops; the partial graph is
//	returned normally.
//
// Inputs:
//
//	ctx - Checked before each unit and before each call site.
//	unitPaths - Corpus-relative unit paths. Order and duplicates do not matter.
//	source - Call-site extraction collaborator.
//
// Outputs:
//
//	*BuildResult - Graph, per-unit errors and statistics. Nil on cancellation.
//	error - Wraps ErrCancelled when ctx is done.
//
// Thread Safety: Safe to call concurrently; each call builds its own graph.
func (b *Builder) Build(ctx context.Context, unitPaths []string, source CallSiteSource) (*BuildResult, error) {
	start := time.Now()
	opts := b.options

	units := sortedUnique(unitPaths)
	ctx, span := startBuildSpan(ctx, len(units), opts.MaxGraphEdges)
	defer span.End()

	g := NewCallGraph(WithMaxEdges(opts.MaxGraphEdges), WithIncomingIndex(opts.TrackIncoming))
	result := &BuildResult{Graph: g}
	stats := &result.Stats

units:
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			recordBuildMetrics(ctx, time.Since(start), g.TotalEdges(), false, false)
			return nil, cancelled("build", err)
		}

		sites, err := source.CallSites(ctx, unit)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			recordBuildMetrics(ctx, time.Since(start), g.TotalEdges(), false, false)
			return nil, cancelled("build", ctx.Err())
		case errors.Is(err, ErrUnitTruncated):
			opts.Logger.Warn("call sites truncated",
				slog.String("unit", unit),
				slog.Int("kept", len(sites)),
				slog.String("error", err.Error()),
			)
			g.TruncatedUnits = append(g.TruncatedUnits, unit)
			stats.UnitsTruncated++
		default:
			opts.Logger.Warn("call site extraction failed",
				slog.String("unit", unit),
				slog.String("error", err.Error()),
			)
			result.UnitErrors = append(result.UnitErrors, UnitError{UnitPath: unit, Err: err})
			stats.UnitsFailed++
			continue
		}

		g.ScannedUnitCount++
		stats.UnitsScanned++

		for i := range sites {
			if err := ctx.Err(); err != nil {
				recordBuildMetrics(ctx, time.Since(start), g.TotalEdges(), false, false)
				return nil, cancelled("build", err)
			}
			stats.CallSitesSeen++
			if !b.addCallSite(g, unit, &sites[i], stats) {
				break units
			}
		}
	}

	result.Truncated = g.TruncatedByEdgeLimit
	stats.DurationMicro = time.Since(start).Microseconds()

	if result.Truncated {
		opts.Logger.Info("call graph truncated at edge limit",
			slog.Int("max_graph_edges", opts.MaxGraphEdges),
			slog.Int("units_scanned", stats.UnitsScanned),
			slog.Int("units_total", len(units)),
		)
	}
	opts.Logger.Debug("call graph built",
		slog.Int("nodes", g.NodeCount()),
		slog.Int("edges", g.TotalEdges()),
		slog.Int("call_sites", stats.CallSitesSeen),
		slog.Int("duplicates", stats.DuplicateEdges),
		slog.Int64("duration_us", stats.DurationMicro),
	)

	setBuildSpanResult(span, g.NodeCount(), g.TotalEdges(), result.Truncated)
	recordBuildMetrics(ctx, time.Since(start), g.TotalEdges(), result.Truncated, true)
	return result, nil
}

// addCallSite applies filtering and dedup to one call site. It returns false
// when the edge ceiling stops construction.
func (b *Builder) addCallSite(g *CallGraph, unit string, site *CallSite, stats *BuildStats) bool {
	opts := b.options

	if !opts.IncludeObjectCreations && site.Kind.IsObjectCreation() {
		stats.DroppedObjectCreations++
		return true
	}

	caller, err := Identify(site.Caller)
	if err != nil {
		stats.DroppedUnresolved++
		return true
	}
	callee, err := Identify(site.Callee)
	if err != nil {
		stats.DroppedUnresolved++
		return true
	}

	if !opts.IncludeExternal && (!site.Caller.InSource || !site.Callee.InSource) {
		stats.DroppedExternal++
		return true
	}

	edge := Edge{
		FromSymbolID: g.symbolID(caller),
		ToSymbolID:   g.symbolID(callee),
		CallKind:     site.Kind,
		FilePath:     site.Span.FilePath,
		Line:         site.Span.Line,
		Column:       site.Span.Column,
		Snippet:      site.Snippet,
	}
	if edge.FilePath == "" {
		edge.FilePath = unit
	}

	if _, dup := g.edgeKeys[edge.key()]; dup {
		stats.DuplicateEdges++
		return true
	}
	if g.Full() {
		g.TruncatedByEdgeLimit = true
		return false
	}

	from, err := g.GetOrCreateNode(site.Caller)
	if err != nil {
		stats.DroppedUnresolved++
		return true
	}
	to, err := g.GetOrCreateNode(site.Callee)
	if err != nil {
		stats.DroppedUnresolved++
		return true
	}
	edge.FromSymbolID, edge.ToSymbolID = from.SymbolID, to.SymbolID

	added, err := g.AddEdge(edge)
	if errors.Is(err, ErrEdgeLimitReached) {
		return false
	}
	if added {
		stats.EdgesAdded++
	} else {
		stats.DuplicateEdges++
	}
	return true
}

// sortedUnique returns a sorted copy of paths without duplicates.
func sortedUnique(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
