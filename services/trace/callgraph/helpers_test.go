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

	"github.com/stretchr/testify/require"
)

// staticSource serves fixed call sites per unit.
type staticSource struct {
	units map[string][]CallSite
	errs  map[string]error

	// onCall runs before each CallSites call, if set.
	onCall func(unit string)

	calls []string
}

func (s *staticSource) CallSites(_ context.Context, unit string) ([]CallSite, error) {
	s.calls = append(s.calls, unit)
	if s.onCall != nil {
		s.onCall(unit)
	}
	return s.units[unit], s.errs[unit]
}

func (s *staticSource) paths() []string {
	paths := make([]string, 0, len(s.units)+len(s.errs))
	for p := range s.units {
		paths = append(paths, p)
	}
	for p := range s.errs {
		if _, ok := s.units[p]; !ok {
			paths = append(paths, p)
		}
	}
	return paths
}

// ref returns an in-source method reference named name.
func ref(name string) MethodRef {
	return MethodRef{
		DocID:          "M:test." + name,
		Display:        "test." + name,
		SymbolKind:     SymbolKindFunction,
		MethodKind:     MethodKindOrdinary,
		InSource:       true,
		Declaration:    &Location{FilePath: "decl.go", Line: 1, Column: 1},
		ContainingType: "",
	}
}

// external returns a method reference with no in-source declaration.
func external(name string) MethodRef {
	return MethodRef{
		Display:    "ext." + name,
		SymbolKind: SymbolKindFunction,
		MethodKind: MethodKindOrdinary,
	}
}

// id returns the node id ref(name) resolves to.
func id(name string) string {
	return "M:test." + name
}

// site builds an ordinary call site at the given line of main.go.
func site(from, to string, line int) CallSite {
	return CallSite{
		Caller: ref(from),
		Callee: ref(to),
		Kind:   CallKindOrdinary,
		Span:   Location{FilePath: "main.go", Line: line, Column: 2},
	}
}

// chain converts "A->B" style pairs into call sites on consecutive lines.
func chain(pairs ...[2]string) []CallSite {
	sites := make([]CallSite, 0, len(pairs))
	for i, p := range pairs {
		sites = append(sites, site(p[0], p[1], i+1))
	}
	return sites
}

// buildGraph builds a graph with the incoming index from one unit of edges.
func buildGraph(t *testing.T, pairs ...[2]string) *CallGraph {
	t.Helper()
	src := &staticSource{units: map[string][]CallSite{"main.go": chain(pairs...)}}
	b, err := NewBuilder(WithIncoming(true))
	require.NoError(t, err)
	res, err := b.Build(context.Background(), src.paths(), src)
	require.NoError(t, err)
	return res.Graph
}

// addIsolated adds an in-source node with no edges.
func addIsolated(t *testing.T, g *CallGraph, name string) {
	t.Helper()
	_, err := g.GetOrCreateNode(ref(name))
	require.NoError(t, err)
}

var errExtract = errors.New("parse failed")
