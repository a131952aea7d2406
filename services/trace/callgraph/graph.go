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

import "fmt"

// GraphOptions configures a CallGraph.
type GraphOptions struct {
	// MaxEdges is the maximum number of edges the graph will hold.
	// Zero means unbounded.
	MaxEdges int

	// TrackIncoming enables the incoming-adjacency index. Hierarchy queries
	// in the incoming or both direction require it.
	TrackIncoming bool
}

// GraphOption is a functional option for configuring a CallGraph.
type GraphOption func(*GraphOptions)

// WithMaxEdges sets the edge ceiling of the graph.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

// WithIncomingIndex enables or disables the incoming-adjacency index.
func WithIncomingIndex(enabled bool) GraphOption {
	return func(o *GraphOptions) {
		o.TrackIncoming = enabled
	}
}

// CallGraph is a deduplicated directed multigraph of methods and call edges.
//
// Nodes are keyed by the ID of the first identity seen for a method; later
// references whose identity is Equal resolve to the same node. Edges are
// keyed by
// (from, to, file, line, column, call kind) and stored in an outgoing index
// and, optionally, an incoming index.
//
// Thread Safety: NOT safe for concurrent mutation.
type CallGraph struct {
	nodes     map[string]*Node
	nodeOrder []string

	// byDefinition maps canonical definitions to node ids; byDisplay maps
	// normalized display strings to node ids in creation order.
	byDefinition map[string]string
	byDisplay    map[string][]string

	outgoing map[string][]*Edge
	incoming map[string][]*Edge
	edgeKeys map[edgeKey]struct{}
	edges    []*Edge

	options GraphOptions

	// ScannedUnitCount is the number of source units the builder processed.
	ScannedUnitCount int

	// TruncatedByEdgeLimit is true if an edge was rejected because the
	// graph reached MaxEdges.
	TruncatedByEdgeLimit bool

	// TruncatedUnits lists units whose call sites the source cut short.
	TruncatedUnits []string
}

// NewCallGraph creates an empty call graph.
func NewCallGraph(opts ...GraphOption) *CallGraph {
	var options GraphOptions
	for _, opt := range opts {
		opt(&options)
	}
	g := &CallGraph{
		nodes:        make(map[string]*Node),
		byDefinition: make(map[string]string),
		byDisplay:    make(map[string][]string),
		outgoing:     make(map[string][]*Edge),
		edgeKeys:     make(map[edgeKey]struct{}),
		options:      options,
	}
	if options.TrackIncoming {
		g.incoming = make(map[string][]*Edge)
	}
	return g
}

// GetOrCreateNode returns the node for a method, creating it on first use.
//
// Description:
//
//	Nodes are created at most once per identity: a reference whose identity
//	is Equal to an existing node's resolves to that node. A later reference
//	that knows the declaration fills in the location of a node that lacks
//	one and clears IsExternal; a location that is already set is never
//	overwritten.
//
// Outputs:
//
//	*Node - The existing or new node.
//	error - ErrUnresolvedMethod if the reference has no usable identity.
func (g *CallGraph) GetOrCreateNode(ref MethodRef) (*Node, error) {
	id, err := Identify(ref)
	if err != nil {
		return nil, err
	}

	if node, ok := g.FindEquivalent(id); ok {
		g.absorb(node, id)
		enrich(node, ref)
		return node, nil
	}

	display := firstNonEmpty(ref.DefinitionDisplay, ref.Display, id.ID)
	node := &Node{
		SymbolID:       id.ID,
		Display:        display,
		SymbolKind:     ref.SymbolKind,
		MethodKind:     ref.MethodKind,
		ContainingType: ref.ContainingType,
		IsExternal:     true,
		identity:       id,
	}
	if node.SymbolKind == "" {
		node.SymbolKind = SymbolKindMethod
	}
	if node.MethodKind == "" {
		node.MethodKind = MethodKindOrdinary
	}
	enrich(node, ref)

	g.nodes[id.ID] = node
	g.nodeOrder = append(g.nodeOrder, id.ID)
	if id.Canonical {
		g.byDefinition[id.Definition] = id.ID
	}
	if id.Display != "" {
		g.byDisplay[id.Display] = append(g.byDisplay[id.Display], id.ID)
	}
	return node, nil
}

// absorb upgrades a display-only node to the canonical identity merged into
// it, so a second canonical identity with the same display gets its own node.
func (g *CallGraph) absorb(node *Node, id MethodIdentity) {
	if !id.Canonical || node.identity.Canonical {
		return
	}
	node.identity.Canonical = true
	node.identity.Definition = id.Definition
	g.byDefinition[id.Definition] = node.SymbolID
}

// enrich backfills declaration data on a node.
func enrich(node *Node, ref MethodRef) {
	if !ref.InSource || ref.Declaration == nil {
		return
	}
	node.IsExternal = false
	if node.Location == nil {
		loc := *ref.Declaration
		node.Location = &loc
	}
	if node.ContainingType == "" {
		node.ContainingType = ref.ContainingType
	}
}

// AddEdge adds a call edge between two existing nodes.
//
// Outputs:
//
//	bool - True if the edge was new, false if it was a duplicate.
//	error - ErrAnchorNotFound if an endpoint is missing, ErrEdgeLimitReached
//	        if the graph is full. A rejected edge sets TruncatedByEdgeLimit.
func (g *CallGraph) AddEdge(edge Edge) (bool, error) {
	if _, ok := g.nodes[edge.FromSymbolID]; !ok {
		return false, fmt.Errorf("edge source %q: %w", edge.FromSymbolID, ErrAnchorNotFound)
	}
	if _, ok := g.nodes[edge.ToSymbolID]; !ok {
		return false, fmt.Errorf("edge target %q: %w", edge.ToSymbolID, ErrAnchorNotFound)
	}

	key := edge.key()
	if _, dup := g.edgeKeys[key]; dup {
		return false, nil
	}
	if g.options.MaxEdges > 0 && len(g.edges) >= g.options.MaxEdges {
		g.TruncatedByEdgeLimit = true
		return false, ErrEdgeLimitReached
	}

	e := &edge
	g.edgeKeys[key] = struct{}{}
	g.edges = append(g.edges, e)
	g.outgoing[e.FromSymbolID] = append(g.outgoing[e.FromSymbolID], e)
	if g.incoming != nil {
		g.incoming[e.ToSymbolID] = append(g.incoming[e.ToSymbolID], e)
	}
	return true, nil
}

// Full reports whether the graph has reached its edge ceiling.
func (g *CallGraph) Full() bool {
	return g.options.MaxEdges > 0 && len(g.edges) >= g.options.MaxEdges
}

// Node returns the node with the given id.
func (g *CallGraph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// FindEquivalent returns the existing node whose identity is Equal to id.
//
// Lookup order: exact id, canonical definition, then display string. A
// canonical identity only matches a display-only node by display.
func (g *CallGraph) FindEquivalent(id MethodIdentity) (*Node, bool) {
	if n, ok := g.nodes[id.ID]; ok {
		return n, true
	}
	if id.Canonical {
		if nodeID, ok := g.byDefinition[id.Definition]; ok {
			return g.nodes[nodeID], true
		}
	}
	for _, nodeID := range g.byDisplay[id.Display] {
		n := g.nodes[nodeID]
		if Equal(id, n.identity) {
			return n, true
		}
	}
	return nil, false
}

// symbolID returns the id of the node id resolves to, or id.ID when no
// equivalent node exists yet.
func (g *CallGraph) symbolID(id MethodIdentity) string {
	if n, ok := g.FindEquivalent(id); ok {
		return n.SymbolID
	}
	return id.ID
}

// Outgoing returns the edges whose caller is id, in insertion order.
func (g *CallGraph) Outgoing(id string) []*Edge {
	return g.outgoing[id]
}

// Incoming returns the edges whose callee is id, in insertion order.
// Returns nil when the graph was built without an incoming index.
func (g *CallGraph) Incoming(id string) []*Edge {
	return g.incoming[id]
}

// HasIncomingIndex reports whether incoming adjacency is tracked.
func (g *CallGraph) HasIncomingIndex() bool {
	return g.incoming != nil
}

// Adjacent returns the edges touching id in the given direction. For
// DirectionBoth the outgoing edges come first.
func (g *CallGraph) Adjacent(id string, dir Direction) []*Edge {
	switch dir {
	case DirectionOutgoing:
		return g.outgoing[id]
	case DirectionIncoming:
		return g.incoming[id]
	case DirectionBoth:
		out, in := g.outgoing[id], g.incoming[id]
		all := make([]*Edge, 0, len(out)+len(in))
		all = append(all, out...)
		return append(all, in...)
	}
	return nil
}

// Nodes returns all nodes in creation order.
func (g *CallGraph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Edges returns all edges in insertion order.
func (g *CallGraph) Edges() []*Edge {
	return g.edges
}

// NodeCount returns the number of nodes.
func (g *CallGraph) NodeCount() int {
	return len(g.nodes)
}

// TotalEdges returns the number of unique edges.
func (g *CallGraph) TotalEdges() int {
	return len(g.edges)
}

// GraphStats is a snapshot of graph counters.
type GraphStats struct {
	NodeCount            int  `json:"node_count"`
	EdgeCount            int  `json:"edge_count"`
	ExternalNodeCount    int  `json:"external_node_count"`
	ScannedUnitCount     int  `json:"scanned_unit_count"`
	TruncatedByEdgeLimit bool `json:"truncated_by_edge_limit"`
	TruncatedUnitCount   int  `json:"truncated_unit_count,omitempty"`
}

// Stats returns the current graph counters.
func (g *CallGraph) Stats() GraphStats {
	stats := GraphStats{
		NodeCount:            len(g.nodes),
		EdgeCount:            len(g.edges),
		ScannedUnitCount:     g.ScannedUnitCount,
		TruncatedByEdgeLimit: g.TruncatedByEdgeLimit,
		TruncatedUnitCount:   len(g.TruncatedUnits),
	}
	for _, n := range g.nodes {
		if n.IsExternal {
			stats.ExternalNodeCount++
		}
	}
	return stats
}
