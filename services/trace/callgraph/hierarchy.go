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
	"sort"
	"time"
)

// HierarchyOptions configures a hierarchy query.
type HierarchyOptions struct {
	Direction Direction
	Limits    HierarchyLimits
}

// HierarchyNode is a node selected by a hierarchy query with its BFS depth.
type HierarchyNode struct {
	*Node
	Depth int `json:"depth"`
}

// HierarchyResult is the outcome of a hierarchy query.
type HierarchyResult struct {
	// AnchorID is the node the expansion started from.
	AnchorID string

	// Direction is the direction that was followed.
	Direction Direction

	// Nodes are ordered by (depth, display, id).
	Nodes []HierarchyNode

	// Edges connect selected nodes and are ordered by (file, line, column).
	Edges []*Edge

	// Levels maps depth to the sorted ids discovered at that depth.
	Levels map[int][]string

	// Truncated is true if the node or edge ceiling stopped expansion.
	Truncated bool

	// DepthLimited is true if a node at the depth ceiling had edges that
	// were not followed.
	DepthLimited bool

	// Duration is the search time.
	Duration time.Duration
}

// Hierarchy expands the call hierarchy around an anchor node.
//
// Description:
//
//	Level-synchronous breadth-first search from anchorID. Nodes at depth
//	MaxDepth stay in the result but are not expanded. Each unique edge
//	counts once against MaxEdges, even when it is reached from both of its
//	endpoints in DirectionBoth. Expansion stops and Truncated is set when
//	an unseen edge arrives with MaxEdges edges already accepted, or when a
//	new neighbor arrives with MaxNodes nodes already selected. No node is
//	enqueued twice, so cycles terminate.
//
// Inputs:
//
//	ctx - Checked before every frontier pop.
//	g - The graph. Incoming and both directions need the incoming index.
//	anchorID - Node id to expand from.
//	opts - Direction and limits. Limits are validated, not clamped.
//
// Outputs:
//
//	*HierarchyResult - Selected nodes, connecting edges and levels.
//	error - Input error, ErrAnchorNotFound, or an error wrapping ErrCancelled.
func Hierarchy(ctx context.Context, g *CallGraph, anchorID string, opts HierarchyOptions) (*HierarchyResult, error) {
	start := time.Now()

	if g == nil {
		return nil, ErrNilGraph
	}
	if anchorID == "" {
		return nil, ErrEmptyAnchor
	}
	dir, err := ParseDirection(string(opts.Direction))
	if err != nil {
		return nil, err
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	if dir != DirectionOutgoing && !g.HasIncomingIndex() {
		return nil, fmt.Errorf("%w: %s hierarchy needs a graph built with the incoming index", ErrInvalidDirection, dir)
	}
	if _, ok := g.Node(anchorID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrAnchorNotFound, anchorID)
	}

	ctx, span := startQuerySpan(ctx, "Hierarchy", anchorID)
	defer span.End()

	limits := opts.Limits
	result := &HierarchyResult{
		AnchorID:  anchorID,
		Direction: dir,
		Levels:    map[int][]string{0: {anchorID}},
	}

	type queueItem struct {
		nodeID string
		depth  int
	}

	depth := map[string]int{anchorID: 0}
	accepted := make(map[edgeKey]*Edge)
	queue := []queueItem{{anchorID, 0}}

expand:
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("hierarchy", err)
		}

		item := queue[0]
		queue = queue[1:]

		candidates := g.Adjacent(item.nodeID, dir)
		if item.depth >= limits.MaxDepth {
			if len(candidates) > 0 {
				result.DepthLimited = true
			}
			continue
		}

		for _, edge := range candidates {
			key := edge.key()
			if _, seen := accepted[key]; !seen {
				if len(accepted) >= limits.MaxEdges {
					result.Truncated = true
					break expand
				}
				accepted[key] = edge
			}

			neighbor := neighborOf(edge, item.nodeID, dir)
			if _, known := depth[neighbor]; known {
				continue
			}
			if len(depth) >= limits.MaxNodes {
				result.Truncated = true
				break expand
			}
			depth[neighbor] = item.depth + 1
			result.Levels[item.depth+1] = append(result.Levels[item.depth+1], neighbor)
			queue = append(queue, queueItem{neighbor, item.depth + 1})
		}
	}

	result.Nodes = orderHierarchyNodes(g, depth)
	result.Edges = selectedEdges(accepted, depth)
	for d := range result.Levels {
		sort.Strings(result.Levels[d])
	}
	result.Duration = time.Since(start)

	recordQueryMetrics(ctx, "hierarchy", result.Duration, result.Truncated)
	return result, nil
}

// neighborOf returns the endpoint reached from nodeID by following edge in
// the given direction.
func neighborOf(edge *Edge, nodeID string, dir Direction) string {
	switch dir {
	case DirectionIncoming:
		return edge.FromSymbolID
	case DirectionOutgoing:
		return edge.ToSymbolID
	default:
		return edge.Other(nodeID)
	}
}

// orderHierarchyNodes sorts selected nodes by (depth, display, id).
func orderHierarchyNodes(g *CallGraph, depth map[string]int) []HierarchyNode {
	nodes := make([]HierarchyNode, 0, len(depth))
	for id, d := range depth {
		node, _ := g.Node(id)
		nodes = append(nodes, HierarchyNode{Node: node, Depth: d})
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if a.Display != b.Display {
			return a.Display < b.Display
		}
		return a.SymbolID < b.SymbolID
	})
	return nodes
}

// selectedEdges keeps accepted edges whose endpoints were both selected,
// sorted by position.
func selectedEdges(accepted map[edgeKey]*Edge, selected map[string]int) []*Edge {
	edges := make([]*Edge, 0, len(accepted))
	for _, e := range accepted {
		_, fromOK := selected[e.FromSymbolID]
		_, toOK := selected[e.ToSymbolID]
		if fromOK && toOK {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		return lessByPosition(edges[i], edges[j])
	})
	return edges
}
