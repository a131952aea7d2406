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
	"fmt"
	"time"
)

// PathOptions configures a shortest path query. Only MaxDepth and MaxNodes
// of the limits apply to the search; MaxGraphEdges applies to the build.
type PathOptions struct {
	Limits PathLimits
}

// PathResult is the outcome of a shortest path query.
type PathResult struct {
	SourceID string
	TargetID string

	// Found is true if a path was found. False is a normal outcome.
	Found bool

	// PathNodes are the node ids in path order: source first, target last.
	// Empty when not found; just the source when source equals target.
	PathNodes []string

	// PathEdges are the edges of the path in source→target order.
	PathEdges []*Edge

	// VisitedCount is the number of nodes marked visited.
	VisitedCount int

	// ExploredEdgeCount is the number of outgoing edges examined.
	ExploredEdgeCount int

	// Truncated is true if MaxNodes stopped the search.
	Truncated bool

	// DepthLimited is true if a node at the depth ceiling had outgoing
	// edges that were not followed.
	DepthLimited bool

	// Duration is the search time.
	Duration time.Duration
}

// ShortestPath finds a shortest call path from sourceID to targetID.
//
// Description:
//
//	Unweighted breadth-first search over outgoing edges only. The first
//	edge that discovers a node becomes its predecessor, and the search
//	stops as soon as the target is discovered. A newly discovered node
//	arriving with MaxNodes nodes already visited sets Truncated and stops
//	the search. Nodes at depth MaxDepth are not expanded.
//
// Inputs:
//
//	ctx - Checked before every dequeue.
//	g - The graph.
//	sourceID, targetID - Node ids. Both must exist.
//	opts - Limits, validated not clamped.
//
// Outputs:
//
//	*PathResult - Found and Truncated are independent flags.
//	error - Input error, ErrAnchorNotFound, or an error wrapping ErrCancelled.
//	        A missing path is never an error.
func ShortestPath(ctx context.Context, g *CallGraph, sourceID, targetID string, opts PathOptions) (*PathResult, error) {
	start := time.Now()

	if g == nil {
		return nil, ErrNilGraph
	}
	if sourceID == "" || targetID == "" {
		return nil, ErrEmptyAnchor
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	if _, ok := g.Node(sourceID); !ok {
		return nil, fmt.Errorf("%w: source %s", ErrAnchorNotFound, sourceID)
	}
	if _, ok := g.Node(targetID); !ok {
		return nil, fmt.Errorf("%w: target %s", ErrAnchorNotFound, targetID)
	}

	ctx, span := startQuerySpan(ctx, "ShortestPath", sourceID)
	defer span.End()

	result := &PathResult{
		SourceID:  sourceID,
		TargetID:  targetID,
		PathNodes: []string{},
		PathEdges: []*Edge{},
	}

	if sourceID == targetID {
		result.Found = true
		result.PathNodes = []string{sourceID}
		result.VisitedCount = 1
		result.Duration = time.Since(start)
		recordQueryMetrics(ctx, "path", result.Duration, false)
		return result, nil
	}

	limits := opts.Limits
	depth := map[string]int{sourceID: 0}
	predecessor := make(map[string]*Edge)
	queue := []string{sourceID}

search:
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("path", err)
		}

		current := queue[0]
		queue = queue[1:]

		outgoing := g.Outgoing(current)
		if depth[current] >= limits.MaxDepth {
			if len(outgoing) > 0 {
				result.DepthLimited = true
			}
			continue
		}

		for _, edge := range outgoing {
			result.ExploredEdgeCount++
			next := edge.ToSymbolID
			if _, visited := depth[next]; visited {
				continue
			}
			if len(depth) >= limits.MaxNodes {
				result.Truncated = true
				break search
			}
			depth[next] = depth[current] + 1
			predecessor[next] = edge
			if next == targetID {
				result.Found = true
				break search
			}
			queue = append(queue, next)
		}
	}

	result.VisitedCount = len(depth)
	if result.Found {
		result.PathEdges = reconstructPath(predecessor, sourceID, targetID)
		result.PathNodes = make([]string, 0, len(result.PathEdges)+1)
		result.PathNodes = append(result.PathNodes, sourceID)
		for _, e := range result.PathEdges {
			result.PathNodes = append(result.PathNodes, e.ToSymbolID)
		}
	}
	result.Duration = time.Since(start)

	recordQueryMetrics(ctx, "path", result.Duration, result.Truncated)
	return result, nil
}

// reconstructPath walks predecessor edges back from target to source and
// returns them in source→target order.
func reconstructPath(predecessor map[string]*Edge, sourceID, targetID string) []*Edge {
	var edges []*Edge
	for node := targetID; node != sourceID; {
		edge, ok := predecessor[node]
		if !ok {
			break
		}
		edges = append(edges, edge)
		node = edge.FromSymbolID
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return edges
}
