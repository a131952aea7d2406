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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hierarchyOpts(dir Direction, depth, nodes, edges int) HierarchyOptions {
	return HierarchyOptions{
		Direction: dir,
		Limits:    HierarchyLimits{MaxDepth: depth, MaxNodes: nodes, MaxEdges: edges},
	}
}

func nodeDepths(res *HierarchyResult) map[string]int {
	out := make(map[string]int, len(res.Nodes))
	for _, n := range res.Nodes {
		out[n.SymbolID] = n.Depth
	}
	return out
}

func TestHierarchy_CycleTerminates(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"}, [2]string{"B", "A"})

	res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionOutgoing, 3, 150, 400))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{id("A"): 0, id("B"): 1}, nodeDepths(res))
	assert.Len(t, res.Edges, 2)
	assert.False(t, res.Truncated)
	assert.Equal(t, map[int][]string{0: {id("A")}, 1: {id("B")}}, res.Levels)
}

func TestHierarchy_DirectionSymmetry(t *testing.T) {
	g := buildGraph(t, [2]string{"B", "A"})

	in, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionIncoming, 2, 150, 400))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{id("A"): 0, id("B"): 1}, nodeDepths(in))

	out, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionOutgoing, 2, 150, 400))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{id("A"): 0}, nodeDepths(out))
	assert.Empty(t, out.Edges)
}

func TestHierarchy_Both(t *testing.T) {
	// C -> A -> B
	g := buildGraph(t, [2]string{"A", "B"}, [2]string{"C", "A"})

	res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionBoth, 2, 150, 400))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{id("A"): 0, id("B"): 1, id("C"): 1}, nodeDepths(res))
	assert.Len(t, res.Edges, 2)
}

func TestHierarchy_BothCountsEachEdgeOnce(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"})

	// A->B is enumerated from A (outgoing) and again from B (incoming).
	res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionBoth, 3, 150, 1))
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Edges, 1)
	assert.Len(t, res.Nodes, 2)
}

func TestHierarchy_AnchorWithoutEdges(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"})
	addIsolated(t, g, "Lonely")

	res, err := Hierarchy(context.Background(), g, id("Lonely"), hierarchyOpts(DirectionBoth, 2, 150, 400))
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, id("Lonely"), res.Nodes[0].SymbolID)
	assert.Empty(t, res.Edges)
}

func TestHierarchy_SelfLoopKept(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "A"})

	res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionOutgoing, 2, 150, 400))
	require.NoError(t, err)
	assert.Len(t, res.Nodes, 1)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, id("A"), res.Edges[0].FromSymbolID)
	assert.Equal(t, id("A"), res.Edges[0].ToSymbolID)
}

func TestHierarchy_DepthLimit(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"}, [2]string{"B", "C"}, [2]string{"C", "D"})

	res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionOutgoing, 2, 150, 400))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{id("A"): 0, id("B"): 1, id("C"): 2}, nodeDepths(res))
	assert.True(t, res.DepthLimited)
	assert.False(t, res.Truncated, "depth limiting is not node/edge truncation")
}

func TestHierarchy_NodeLimit(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"}, [2]string{"A", "C"})

	res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionOutgoing, 2, 2, 400))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, map[string]int{id("A"): 0, id("B"): 1}, nodeDepths(res))
	require.Len(t, res.Edges, 1, "edges to unselected nodes are excluded")
	assert.Equal(t, id("B"), res.Edges[0].ToSymbolID)
}

func TestHierarchy_EdgeLimit(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"}, [2]string{"A", "C"})

	res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionOutgoing, 2, 150, 1))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Edges, 1)
	assert.Len(t, res.Nodes, 2)
}

func TestHierarchy_Ordering(t *testing.T) {
	g := NewCallGraph(WithIncomingIndex(true))
	for _, name := range []string{"Root", "Zed", "Alpha", "Mid"} {
		addIsolated(t, g, name)
	}
	edges := []Edge{
		{FromSymbolID: id("Root"), ToSymbolID: id("Zed"), FilePath: "b.go", Line: 1},
		{FromSymbolID: id("Root"), ToSymbolID: id("Alpha"), FilePath: "a.go", Line: 9},
		{FromSymbolID: id("Alpha"), ToSymbolID: id("Mid"), FilePath: "a.go", Line: 2},
	}
	for _, e := range edges {
		_, err := g.AddEdge(e)
		require.NoError(t, err)
	}

	res, err := Hierarchy(context.Background(), g, id("Root"), hierarchyOpts(DirectionOutgoing, 5, 150, 400))
	require.NoError(t, err)

	var order []string
	for _, n := range res.Nodes {
		order = append(order, n.Display)
	}
	assert.Equal(t, []string{"test.Root", "test.Alpha", "test.Zed", "test.Mid"}, order)

	var positions []string
	for _, e := range res.Edges {
		positions = append(positions, e.ToSymbolID)
	}
	assert.Equal(t, []string{id("Mid"), id("Alpha"), id("Zed")}, positions)
	assert.Equal(t, []string{id("Alpha"), id("Zed")}, res.Levels[1])
}

func TestHierarchy_Deterministic(t *testing.T) {
	pairs := [][2]string{{"A", "B"}, {"A", "C"}, {"B", "D"}, {"C", "D"}, {"D", "A"}, {"E", "A"}}
	var first *HierarchyResult
	for i := 0; i < 5; i++ {
		g := buildGraph(t, pairs...)
		res, err := Hierarchy(context.Background(), g, id("A"), hierarchyOpts(DirectionBoth, 3, 150, 400))
		require.NoError(t, err)
		if first == nil {
			first = res
			continue
		}
		assert.Equal(t, nodeDepths(first), nodeDepths(res))
		assert.Equal(t, first.Levels, res.Levels)
		require.Len(t, res.Edges, len(first.Edges))
		for j := range res.Edges {
			assert.Equal(t, *first.Edges[j], *res.Edges[j])
		}
	}
}

func TestHierarchy_InputErrors(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"})
	ctx := context.Background()

	_, err := Hierarchy(ctx, g, id("A"), hierarchyOpts("up", 2, 150, 400))
	assert.ErrorIs(t, err, ErrInvalidDirection)

	_, err = Hierarchy(ctx, g, id("A"), hierarchyOpts(DirectionOutgoing, 0, 150, 400))
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = Hierarchy(ctx, g, "", hierarchyOpts(DirectionOutgoing, 2, 150, 400))
	assert.ErrorIs(t, err, ErrEmptyAnchor)

	_, err = Hierarchy(ctx, g, id("Nope"), hierarchyOpts(DirectionOutgoing, 2, 150, 400))
	assert.ErrorIs(t, err, ErrAnchorNotFound)

	_, err = Hierarchy(ctx, nil, id("A"), hierarchyOpts(DirectionOutgoing, 2, 150, 400))
	assert.ErrorIs(t, err, ErrNilGraph)

	noIncoming := NewCallGraph()
	addIsolated(t, noIncoming, "A")
	_, err = Hierarchy(ctx, noIncoming, id("A"), hierarchyOpts(DirectionIncoming, 2, 150, 400))
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestHierarchy_Cancellation(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Hierarchy(ctx, g, id("A"), hierarchyOpts(DirectionOutgoing, 2, 150, 400))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCancelled)
}
