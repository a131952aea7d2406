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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify(t *testing.T) {
	tests := []struct {
		name    string
		ref     MethodRef
		wantID  string
		wantErr error
	}{
		{
			name:   "canonical id preferred",
			ref:    MethodRef{DocID: "M:pkg.Run", Display: "pkg.Run"},
			wantID: "M:pkg.Run",
		},
		{
			name:   "definition id wins over instantiation id",
			ref:    MethodRef{DocID: "M:pkg.Map[int]", DefinitionDocID: "M:pkg.Map", Display: "pkg.Map[int]"},
			wantID: "M:pkg.Map",
		},
		{
			name:   "display fallback",
			ref:    MethodRef{Display: "fmt.Println"},
			wantID: "fmt.Println",
		},
		{
			name:   "display fallback strips type arguments",
			ref:    MethodRef{Display: "pkg.Map[int, string]"},
			wantID: "pkg.Map",
		},
		{
			name:   "definition display preferred over display",
			ref:    MethodRef{Display: "pkg.(*List[int]).Push", DefinitionDisplay: "pkg.(*List[T]).Push"},
			wantID: "pkg.(*List).Push",
		},
		{
			name:    "nothing usable",
			ref:     MethodRef{SymbolKind: SymbolKindMethod},
			wantErr: ErrUnresolvedMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Identify(tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.NotEmpty(t, got.Definition)
		})
	}
}

func TestEqual(t *testing.T) {
	identify := func(ref MethodRef) MethodIdentity {
		t.Helper()
		id, err := Identify(ref)
		require.NoError(t, err)
		return id
	}

	tests := []struct {
		name string
		a, b MethodRef
		want bool
	}{
		{
			name: "same canonical id",
			a:    MethodRef{DocID: "F:example.com/m/p.F"},
			b:    MethodRef{DocID: "F:example.com/m/p.F", Display: "p.F"},
			want: true,
		},
		{
			name: "instantiations of one generic definition",
			a:    MethodRef{DocID: "M:pkg.Map[int]", DefinitionDocID: "M:pkg.Map"},
			b:    MethodRef{DocID: "M:pkg.Map[string]"},
			want: true,
		},
		{
			name: "same display in different packages",
			a:    MethodRef{DocID: "F:example.com/m/a/util.Parse", Display: "util.Parse"},
			b:    MethodRef{DocID: "F:example.com/m/b/util.Parse", Display: "util.Parse"},
			want: false,
		},
		{
			name: "canonical and display-only reference",
			a:    MethodRef{DocID: "F:example.com/m/p.F", Display: "p.F"},
			b:    MethodRef{Display: "p.F"},
			want: true,
		},
		{
			name: "display-only references",
			a:    MethodRef{Display: "fmt.Println"},
			b:    MethodRef{Display: "fmt.Printf"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := identify(tt.a), identify(tt.b)
			assert.Equal(t, tt.want, Equal(a, b))
			assert.Equal(t, tt.want, Equal(b, a))
		})
	}

	assert.False(t, Equal(MethodIdentity{}, MethodIdentity{}))
}

func TestGetOrCreateNode_SameDisplayDifferentPackages(t *testing.T) {
	g := NewCallGraph()

	a, err := g.GetOrCreateNode(MethodRef{DocID: "F:example.com/m/a/util.Parse", Display: "util.Parse"})
	require.NoError(t, err)
	b, err := g.GetOrCreateNode(MethodRef{DocID: "F:example.com/m/b/util.Parse", Display: "util.Parse"})
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, g.NodeCount())
}

func TestGetOrCreateNode_CanonicalAndDisplayMerge(t *testing.T) {
	t.Run("canonical first", func(t *testing.T) {
		g := NewCallGraph()
		first, err := g.GetOrCreateNode(MethodRef{DocID: "F:example.com/m/p.F", Display: "p.F"})
		require.NoError(t, err)
		second, err := g.GetOrCreateNode(MethodRef{Display: "p.F"})
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, g.NodeCount())
		assert.Equal(t, "F:example.com/m/p.F", second.SymbolID)
	})

	t.Run("display first", func(t *testing.T) {
		g := NewCallGraph()
		first, err := g.GetOrCreateNode(MethodRef{Display: "util.Parse"})
		require.NoError(t, err)
		merged, err := g.GetOrCreateNode(MethodRef{DocID: "F:example.com/m/a/util.Parse", Display: "util.Parse"})
		require.NoError(t, err)
		assert.Same(t, first, merged)

		// The merged node now belongs to package a; package b gets its own.
		other, err := g.GetOrCreateNode(MethodRef{DocID: "F:example.com/m/b/util.Parse", Display: "util.Parse"})
		require.NoError(t, err)
		assert.NotSame(t, first, other)

		again, err := g.GetOrCreateNode(MethodRef{DocID: "F:example.com/m/a/util.Parse"})
		require.NoError(t, err)
		assert.Same(t, first, again)
		assert.Equal(t, 2, g.NodeCount())
	})
}

func TestBuild_EquivalentReferencesShareNode(t *testing.T) {
	caller := MethodRef{DocID: "F:example.com/m/p.Main", Display: "p.Main", InSource: true}
	src := &staticSource{units: map[string][]CallSite{
		"a.go": {
			{Caller: caller, Callee: MethodRef{DocID: "F:example.com/m/p.F", Display: "p.F", InSource: true}, Span: Location{FilePath: "a.go", Line: 3}},
			{Caller: caller, Callee: MethodRef{Display: "p.F", InSource: true}, Span: Location{FilePath: "a.go", Line: 4}},
		},
	}}

	b, err := NewBuilder()
	require.NoError(t, err)
	res, err := b.Build(context.Background(), src.paths(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Graph.NodeCount())
	assert.Equal(t, 2, res.Graph.TotalEdges())
	for _, e := range res.Graph.Edges() {
		assert.Equal(t, "F:example.com/m/p.F", e.ToSymbolID)
	}
}

func TestGetOrCreateNode_GenericInstantiationsCollapse(t *testing.T) {
	g := NewCallGraph()

	open, err := g.GetOrCreateNode(MethodRef{Display: "pkg.Map", InSource: true, Declaration: &Location{FilePath: "m.go", Line: 3}})
	require.NoError(t, err)
	inst, err := g.GetOrCreateNode(MethodRef{Display: "pkg.Map[int]"})
	require.NoError(t, err)

	assert.Same(t, open, inst)
	assert.Equal(t, 1, g.NodeCount())
}

func TestGetOrCreateNode_LocationBackfill(t *testing.T) {
	g := NewCallGraph()

	first, err := g.GetOrCreateNode(MethodRef{DocID: "M:pkg.Run", Display: "pkg.Run"})
	require.NoError(t, err)
	assert.True(t, first.IsExternal)
	assert.Nil(t, first.Location)

	_, err = g.GetOrCreateNode(MethodRef{
		DocID: "M:pkg.Run", Display: "pkg.Run", InSource: true,
		Declaration: &Location{FilePath: "run.go", Line: 10, Column: 6},
	})
	require.NoError(t, err)
	require.NotNil(t, first.Location)
	assert.False(t, first.IsExternal)
	assert.Equal(t, Location{FilePath: "run.go", Line: 10, Column: 6}, *first.Location)

	// A later declaration never overwrites the first one.
	_, err = g.GetOrCreateNode(MethodRef{
		DocID: "M:pkg.Run", Display: "pkg.Run", InSource: true,
		Declaration: &Location{FilePath: "other.go", Line: 99, Column: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "run.go", first.Location.FilePath)
	assert.Equal(t, 1, g.NodeCount())
}

func TestAddEdge_Dedup(t *testing.T) {
	g := NewCallGraph(WithIncomingIndex(true))
	addIsolated(t, g, "A")
	addIsolated(t, g, "B")

	e := Edge{FromSymbolID: id("A"), ToSymbolID: id("B"), FilePath: "a.go", Line: 4, Column: 2}

	added, err := g.AddEdge(e)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = g.AddEdge(e)
	require.NoError(t, err)
	assert.False(t, added, "exact duplicate must collapse")

	other := e
	other.CallKind = CallKindObjectCreation
	added, err = g.AddEdge(other)
	require.NoError(t, err)
	assert.True(t, added, "different call kind is a different edge")

	assert.Equal(t, 2, g.TotalEdges())
	assert.Len(t, g.Outgoing(id("A")), 2)
	assert.Len(t, g.Incoming(id("B")), 2)
}

func TestAddEdge_MissingEndpoint(t *testing.T) {
	g := NewCallGraph()
	addIsolated(t, g, "A")

	_, err := g.AddEdge(Edge{FromSymbolID: id("A"), ToSymbolID: id("missing")})
	assert.ErrorIs(t, err, ErrAnchorNotFound)
}

func TestAddEdge_Limit(t *testing.T) {
	g := NewCallGraph(WithMaxEdges(1))
	addIsolated(t, g, "A")
	addIsolated(t, g, "B")

	_, err := g.AddEdge(Edge{FromSymbolID: id("A"), ToSymbolID: id("B"), Line: 1})
	require.NoError(t, err)
	assert.False(t, g.TruncatedByEdgeLimit)

	_, err = g.AddEdge(Edge{FromSymbolID: id("A"), ToSymbolID: id("B"), Line: 2})
	assert.True(t, errors.Is(err, ErrEdgeLimitReached))
	assert.True(t, g.TruncatedByEdgeLimit)
	assert.Equal(t, 1, g.TotalEdges())
}

func TestFindEquivalent(t *testing.T) {
	g := NewCallGraph()
	_, err := g.GetOrCreateNode(MethodRef{DocID: "M:pkg.Map", Display: "pkg.Map"})
	require.NoError(t, err)

	inst, err := Identify(MethodRef{DocID: "M:pkg.Map[int]", Display: "pkg.Map[int]"})
	require.NoError(t, err)
	n, ok := g.FindEquivalent(inst)
	require.True(t, ok)
	assert.Equal(t, "M:pkg.Map", n.SymbolID)

	_, ok = g.FindEquivalent(MethodIdentity{ID: "nope", Definition: "nope", Canonical: true})
	assert.False(t, ok)
}

func TestParseDirection(t *testing.T) {
	for _, in := range []string{"incoming", "OUTGOING", " both "} {
		_, err := ParseDirection(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name      string
		limits    HierarchyLimits
		wantField string
	}{
		{"defaults", DefaultHierarchyLimits(), ""},
		{"lower bounds", HierarchyLimits{MaxDepth: 1, MaxNodes: 1, MaxEdges: 1}, ""},
		{"upper bounds", HierarchyLimits{MaxDepth: 40, MaxNodes: 50000, MaxEdges: 200000}, ""},
		{"depth zero", HierarchyLimits{MaxDepth: 0, MaxNodes: 10, MaxEdges: 10}, "max_depth"},
		{"depth too deep", HierarchyLimits{MaxDepth: 41, MaxNodes: 10, MaxEdges: 10}, "max_depth"},
		{"nodes too many", HierarchyLimits{MaxDepth: 2, MaxNodes: 50001, MaxEdges: 10}, "max_nodes"},
		{"edges negative", HierarchyLimits{MaxDepth: 2, MaxNodes: 10, MaxEdges: -1}, "max_edges"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidLimit)
			var le *LimitError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.wantField, le.Field)
		})
	}

	assert.NoError(t, DefaultPathLimits().Validate())
	err := PathLimits{MaxDepth: 8, MaxNodes: 2000, MaxGraphEdges: 200001}.Validate()
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
