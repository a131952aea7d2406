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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleHierarchy(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"}, [2]string{"B", "C"})
	limits := HierarchyLimits{MaxDepth: 1, MaxNodes: 150, MaxEdges: 400}

	res, err := Hierarchy(context.Background(), g, id("A"), HierarchyOptions{Direction: DirectionOutgoing, Limits: limits})
	require.NoError(t, err)

	report := AssembleHierarchy(g, res, limits)
	assert.Equal(t, id("A"), report.Anchor.SymbolID)
	require.Len(t, report.Nodes, 2)
	assert.Equal(t, 1, report.Nodes[1].Depth)
	require.Len(t, report.Levels, 2)
	assert.Equal(t, 0, report.Levels[0].Depth)
	assert.Equal(t, []string{id("B")}, report.Levels[1].NodeIDs)
	assert.True(t, report.DepthLimited)
	require.Len(t, report.Caveats, 1)
	assert.Contains(t, report.Caveats[0], "max_depth")
}

func TestAssemblePath_Caveats(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"})
	addIsolated(t, g, "X")
	limits := DefaultPathLimits()

	res, err := ShortestPath(context.Background(), g, id("A"), id("X"), PathOptions{Limits: limits})
	require.NoError(t, err)
	report := AssemblePath(g, res, limits)
	assert.False(t, report.Found)
	assert.False(t, report.GraphTruncated)
	require.Len(t, report.Caveats, 1)
	assert.Contains(t, report.Caveats[0], "no call path exists")

	res, err = ShortestPath(context.Background(), g, id("A"), id("B"), PathOptions{Limits: limits})
	require.NoError(t, err)
	report = AssemblePath(g, res, limits)
	assert.True(t, report.Found)
	assert.Empty(t, report.Caveats)
	require.Len(t, report.PathNodes, 2)
	assert.Equal(t, 1, report.PathNodes[1].Depth)
}

func TestAssemble_TruncatedUnitsCaveat(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"})
	addIsolated(t, g, "X")
	g.TruncatedUnits = []string{"a.go", "b.go", "c.go", "d.go"}

	hres, err := Hierarchy(context.Background(), g, id("A"), HierarchyOptions{
		Direction: DirectionOutgoing,
		Limits:    DefaultHierarchyLimits(),
	})
	require.NoError(t, err)
	hreport := AssembleHierarchy(g, hres, DefaultHierarchyLimits())
	require.Len(t, hreport.Caveats, 1)
	assert.Contains(t, hreport.Caveats[0], "4 source units (a.go, b.go, c.go and 1 more)")
	assert.Equal(t, 4, hreport.Graph.TruncatedUnitCount)

	pres, err := ShortestPath(context.Background(), g, id("A"), id("X"), PathOptions{Limits: DefaultPathLimits()})
	require.NoError(t, err)
	preport := AssemblePath(g, pres, DefaultPathLimits())
	require.Len(t, preport.Caveats, 2)
	assert.Contains(t, preport.Caveats[0], "per-file limit")
	assert.Contains(t, preport.Caveats[1], "a longer path may exist")
}

func TestReportJSON_CallKindIsNamed(t *testing.T) {
	g := buildGraph(t, [2]string{"A", "B"})
	limits := DefaultHierarchyLimits()
	res, err := Hierarchy(context.Background(), g, id("A"), HierarchyOptions{Direction: DirectionOutgoing, Limits: limits})
	require.NoError(t, err)

	data, err := json.Marshal(AssembleHierarchy(g, res, limits))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"call_kind":"ordinary"`))
}

func TestCallKind_UnmarshalText(t *testing.T) {
	var k CallKind
	require.NoError(t, k.UnmarshalText([]byte("implicit_object_creation")))
	assert.Equal(t, CallKindImplicitObjectCreation, k)
	assert.Error(t, k.UnmarshalText([]byte("teleport")))
}
