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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for call graph operations.
var (
	tracer = otel.Tracer("callscope.callgraph")
	meter  = otel.Meter("callscope.callgraph")
)

// Metrics for build and query operations.
var (
	buildLatency    metric.Float64Histogram
	buildTotal      metric.Int64Counter
	edgesRetained   metric.Int64Histogram
	queryLatency    metric.Float64Histogram
	queryTotal      metric.Int64Counter
	truncationTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"callgraph_build_duration_seconds",
			metric.WithDescription("Duration of call graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"callgraph_build_total",
			metric.WithDescription("Total number of call graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesRetained, err = meter.Int64Histogram(
			"callgraph_edges_retained",
			metric.WithDescription("Number of unique edges retained per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryLatency, err = meter.Float64Histogram(
			"callgraph_query_duration_seconds",
			metric.WithDescription("Duration of hierarchy and path queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTotal, err = meter.Int64Counter(
			"callgraph_query_total",
			metric.WithDescription("Total number of hierarchy and path queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		truncationTotal, err = meter.Int64Counter(
			"callgraph_truncation_total",
			metric.WithDescription("Builds and queries stopped by a node, edge or depth ceiling"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, duration time.Duration, edgeCount int, truncated, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		edgesRetained.Record(ctx, int64(edgeCount))
	}
	if truncated {
		truncationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "build")))
	}
}

// recordQueryMetrics records metrics for a query operation.
func recordQueryMetrics(ctx context.Context, queryType string, duration time.Duration, truncated bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("query_type", queryType))
	queryLatency.Record(ctx, duration.Seconds(), attrs)
	queryTotal.Add(ctx, 1, attrs)
	if truncated {
		truncationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", queryType)))
	}
}

// startBuildSpan creates a span for a build operation.
func startBuildSpan(ctx context.Context, unitCount, maxEdges int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "callgraph.Builder.Build",
		trace.WithAttributes(
			attribute.Int("callgraph.unit_count", unitCount),
			attribute.Int("callgraph.max_edges", maxEdges),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, nodeCount, edgeCount int, truncated bool) {
	span.SetAttributes(
		attribute.Int("callgraph.node_count", nodeCount),
		attribute.Int("callgraph.edge_count", edgeCount),
		attribute.Bool("callgraph.truncated", truncated),
	)
}

// startQuerySpan creates a span for a query operation.
func startQuerySpan(ctx context.Context, queryType, anchorID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "callgraph."+queryType,
		trace.WithAttributes(
			attribute.String("callgraph.query_type", queryType),
			attribute.String("callgraph.anchor", anchorID),
		),
	)
}
