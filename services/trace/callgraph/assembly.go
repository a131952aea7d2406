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
	"fmt"
	"sort"
	"strings"
)

// NodeView is a presentation copy of a node.
type NodeView struct {
	SymbolID       string     `json:"symbol_id"`
	Display        string     `json:"display"`
	SymbolKind     SymbolKind `json:"symbol_kind"`
	MethodKind     MethodKind `json:"method_kind"`
	ContainingType string     `json:"containing_type,omitempty"`
	IsExternal     bool       `json:"is_external"`
	Location       *Location  `json:"location,omitempty"`

	// Depth is the BFS depth in a hierarchy, or the hop index in a path.
	Depth int `json:"depth"`
}

// EdgeView is a presentation copy of an edge.
type EdgeView struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	CallKind CallKind `json:"call_kind"`
	FilePath string   `json:"file_path"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Snippet  string   `json:"snippet,omitempty"`
}

// Level is one depth of a hierarchy.
type Level struct {
	Depth   int      `json:"depth"`
	NodeIDs []string `json:"node_ids"`
}

// HierarchyReport is the presentation form of a hierarchy query.
type HierarchyReport struct {
	Anchor         NodeView   `json:"anchor"`
	Direction      Direction  `json:"direction"`
	Nodes          []NodeView `json:"nodes"`
	Edges          []EdgeView `json:"edges"`
	Levels         []Level    `json:"levels"`
	Truncated      bool       `json:"truncated"`
	DepthLimited   bool       `json:"depth_limited"`
	GraphTruncated bool       `json:"graph_truncated"`
	Graph          GraphStats `json:"graph"`
	Caveats        []string   `json:"caveats,omitempty"`
}

// PathReport is the presentation form of a path query.
type PathReport struct {
	Source            NodeView   `json:"source"`
	Target            NodeView   `json:"target"`
	Found             bool       `json:"found"`
	PathNodes         []NodeView `json:"path_nodes"`
	PathEdges         []EdgeView `json:"path_edges"`
	VisitedCount      int        `json:"visited_count"`
	ExploredEdgeCount int        `json:"explored_edge_count"`
	Truncated         bool       `json:"truncated"`
	DepthLimited      bool       `json:"depth_limited"`
	GraphTruncated    bool       `json:"graph_truncated"`
	Graph             GraphStats `json:"graph"`
	Caveats           []string   `json:"caveats,omitempty"`
}

// AssembleHierarchy converts a hierarchy result into a report.
//
// Node and edge ordering is taken from the result. Caveats describe every
// ceiling that was hit, including the graph edge ceiling during the build.
func AssembleHierarchy(g *CallGraph, res *HierarchyResult, limits HierarchyLimits) HierarchyReport {
	anchor, _ := g.Node(res.AnchorID)
	report := HierarchyReport{
		Anchor:         viewOf(anchor, 0),
		Direction:      res.Direction,
		Nodes:          make([]NodeView, 0, len(res.Nodes)),
		Edges:          viewEdges(res.Edges),
		Levels:         make([]Level, 0, len(res.Levels)),
		Truncated:      res.Truncated,
		DepthLimited:   res.DepthLimited,
		GraphTruncated: g.TruncatedByEdgeLimit,
		Graph:          g.Stats(),
	}
	for _, n := range res.Nodes {
		report.Nodes = append(report.Nodes, viewOf(n.Node, n.Depth))
	}

	depths := make([]int, 0, len(res.Levels))
	for d := range res.Levels {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	for _, d := range depths {
		report.Levels = append(report.Levels, Level{Depth: d, NodeIDs: res.Levels[d]})
	}

	if g.TruncatedByEdgeLimit {
		report.Caveats = append(report.Caveats, graphCaveat(g))
	}
	if len(g.TruncatedUnits) > 0 {
		report.Caveats = append(report.Caveats, unitsCaveat(g))
	}
	if res.Truncated {
		report.Caveats = append(report.Caveats, fmt.Sprintf(
			"hierarchy stopped at max_nodes=%d or max_edges=%d; more callers or callees may exist",
			limits.MaxNodes, limits.MaxEdges))
	}
	if res.DepthLimited {
		report.Caveats = append(report.Caveats, fmt.Sprintf(
			"nodes at depth %d were not expanded; raise max_depth to see further levels", limits.MaxDepth))
	}
	return report
}

// AssemblePath converts a path result into a report.
//
// A not-found result is annotated when the search or the graph was cut
// short, so it is never presented as proof that no path exists.
func AssemblePath(g *CallGraph, res *PathResult, limits PathLimits) PathReport {
	source, _ := g.Node(res.SourceID)
	target, _ := g.Node(res.TargetID)
	report := PathReport{
		Source:            viewOf(source, 0),
		Target:            viewOf(target, 0),
		Found:             res.Found,
		PathNodes:         make([]NodeView, 0, len(res.PathNodes)),
		PathEdges:         viewEdges(res.PathEdges),
		VisitedCount:      res.VisitedCount,
		ExploredEdgeCount: res.ExploredEdgeCount,
		Truncated:         res.Truncated,
		DepthLimited:      res.DepthLimited,
		GraphTruncated:    g.TruncatedByEdgeLimit,
		Graph:             g.Stats(),
	}
	for i, id := range res.PathNodes {
		node, _ := g.Node(id)
		report.PathNodes = append(report.PathNodes, viewOf(node, i))
	}

	if g.TruncatedByEdgeLimit {
		report.Caveats = append(report.Caveats, graphCaveat(g))
	}
	if len(g.TruncatedUnits) > 0 {
		report.Caveats = append(report.Caveats, unitsCaveat(g))
	}
	if res.Truncated {
		report.Caveats = append(report.Caveats, fmt.Sprintf(
			"search stopped after visiting max_nodes=%d methods", limits.MaxNodes))
	}
	if !res.Found {
		switch {
		case res.Truncated || res.DepthLimited || g.TruncatedByEdgeLimit || len(g.TruncatedUnits) > 0:
			report.Caveats = append(report.Caveats, fmt.Sprintf(
				"no path found within max_depth=%d; a longer path may exist", limits.MaxDepth))
		default:
			report.Caveats = append(report.Caveats, "no call path exists between the methods in the analyzed corpus")
		}
	}
	return report
}

func graphCaveat(g *CallGraph) string {
	return fmt.Sprintf(
		"call graph truncated at %d edges after %d source units; results may be incomplete",
		g.TotalEdges(), g.ScannedUnitCount)
}

// maxCaveatUnits bounds the unit paths named in a caveat.
const maxCaveatUnits = 3

func unitsCaveat(g *CallGraph) string {
	units := g.TruncatedUnits
	more := ""
	if len(units) > maxCaveatUnits {
		more = fmt.Sprintf(" and %d more", len(units)-maxCaveatUnits)
		units = units[:maxCaveatUnits]
	}
	return fmt.Sprintf(
		"call sites were cut at the per-file limit in %d source units (%s%s); results may be incomplete",
		len(g.TruncatedUnits), strings.Join(units, ", "), more)
}

func viewOf(n *Node, depth int) NodeView {
	if n == nil {
		return NodeView{Depth: depth}
	}
	return NodeView{
		SymbolID:       n.SymbolID,
		Display:        n.Display,
		SymbolKind:     n.SymbolKind,
		MethodKind:     n.MethodKind,
		ContainingType: n.ContainingType,
		IsExternal:     n.IsExternal,
		Location:       n.Location,
		Depth:          depth,
	}
}

func viewEdges(edges []*Edge) []EdgeView {
	views := make([]EdgeView, 0, len(edges))
	for _, e := range edges {
		views = append(views, EdgeView{
			From:     e.FromSymbolID,
			To:       e.ToSymbolID,
			CallKind: e.CallKind,
			FilePath: e.FilePath,
			Line:     e.Line,
			Column:   e.Column,
			Snippet:  e.Snippet,
		})
	}
	return views
}
