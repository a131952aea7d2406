// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
)

const orderSrc = `package shop

import (
	"fmt"

	"example.com/shop/store"
)

type Order struct {
	ID string
}

type Service struct {
	db *store.DB
}

func NewService() *Service {
	return &Service{db: store.Open()}
}

func (s *Service) Place(o Order) error {
	if err := s.validate(o); err != nil {
		return err
	}
	fmt.Println("placing", o.ID)
	return s.db.Save(o.ID)
}

func (s *Service) validate(o Order) error {
	return nil
}

func (s *Service) Close() {}
`

const storeSrc = `package store

type DB struct{}

func Open() *DB {
	return new(DB)
}

func (d *DB) Save(key string) error {
	return d.write(key)
}

func (d *DB) write(key string) error {
	return nil
}

func (d *DB) Close() {}
`

const genericSrc = `package store

func Map[T any](in []T, fn func(T) T) []T {
	return in
}

func Use() {
	Map[int](nil, nil)
	Map[string](nil, nil)
}
`

// writeTree writes files under a fresh temp dir and returns it.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func shopTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"go.mod":           "module example.com/shop\n\ngo 1.22\n",
		"order.go":         orderSrc,
		"store/db.go":      storeSrc,
		"store/map.go":     genericSrc,
		"order_test.go":    "package shop\n",
		"vendor/v/v.go":    "package v\n",
		"_hidden/h.go":     "package h\n",
		".git/x.go":        "package x\n",
		"generated/g.go":   "package generated\n",
		"store/db_mock.go": "package store\n",
		".gitignore":       "generated\n",
		"README.md":        "# shop\n",
	})
}

func newExtractor(t *testing.T, root string, objects bool) *GoExtractor {
	t.Helper()
	corpus, err := LoadCorpus(context.Background(), root, CorpusOptions{Exclude: []string{"*_mock.go"}})
	require.NoError(t, err)
	x, err := NewGoExtractor(context.Background(), corpus, ExtractOptions{IncludeObjectCreations: objects})
	require.NoError(t, err)
	t.Cleanup(x.Close)
	return x
}

// lineOf returns the 1-based line holding substr.
func lineOf(t *testing.T, content, substr string) int {
	t.Helper()
	idx := strings.Index(content, substr)
	require.GreaterOrEqual(t, idx, 0, "substring %q not found", substr)
	return strings.Count(content[:idx], "\n") + 1
}

func callees(sites []callgraph.CallSite) []string {
	out := make([]string, len(sites))
	for i, s := range sites {
		id, err := callgraph.Identify(s.Callee)
		if err != nil {
			out[i] = "<unresolved>"
			continue
		}
		out[i] = id.ID
	}
	return out
}

func TestLoadCorpus(t *testing.T) {
	root := shopTree(t)

	t.Run("skips ignored and test files", func(t *testing.T) {
		corpus, err := LoadCorpus(context.Background(), root, CorpusOptions{Exclude: []string{"*_mock.go"}})
		require.NoError(t, err)
		assert.Equal(t, "example.com/shop", corpus.ModulePath)
		assert.Equal(t, []string{"order.go", "store/db.go", "store/map.go"}, corpus.Paths())
	})

	t.Run("includes tests on request", func(t *testing.T) {
		corpus, err := LoadCorpus(context.Background(), root, CorpusOptions{IncludeTests: true})
		require.NoError(t, err)
		assert.Contains(t, corpus.Paths(), "order_test.go")
		assert.Contains(t, corpus.Paths(), "store/db_mock.go")
	})

	t.Run("skips oversized files", func(t *testing.T) {
		corpus, err := LoadCorpus(context.Background(), root, CorpusOptions{MaxFileSize: 64})
		require.NoError(t, err)
		for _, p := range corpus.Paths() {
			assert.NotEqual(t, "order.go", p)
		}
	})

	t.Run("root must be a directory", func(t *testing.T) {
		_, err := LoadCorpus(context.Background(), filepath.Join(root, "order.go"), CorpusOptions{})
		assert.ErrorIs(t, err, ErrRootNotDirectory)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := LoadCorpus(ctx, root, CorpusOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDetectModulePath(t *testing.T) {
	withMod := writeTree(t, map[string]string{"go.mod": "module example.com/a/v2\n"})
	assert.Equal(t, "example.com/a/v2", DetectModulePath(withMod))

	without := writeTree(t, map[string]string{"main.go": "package main\n"})
	assert.Equal(t, filepath.Base(without), DetectModulePath(without))
}

func TestPackagePath(t *testing.T) {
	tests := []struct {
		unit string
		want string
	}{
		{"main.go", "example.com/m"},
		{"a/b.go", "example.com/m/a"},
		{"a/b/c.go", "example.com/m/a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, packagePath("example.com/m", tt.unit), tt.unit)
	}
}

func TestCallSites(t *testing.T) {
	x := newExtractor(t, shopTree(t), true)
	ctx := context.Background()

	t.Run("order.go in source order", func(t *testing.T) {
		sites, err := x.CallSites(ctx, "order.go")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"C:example.com/shop.Service",
			"F:example.com/shop/store.Open",
			"M:example.com/shop.(Service).validate",
			"fmt.Println",
			"M:example.com/shop/store.(DB).Save",
		}, callees(sites))

		assert.Equal(t, callgraph.CallKindObjectCreation, sites[0].Kind)
		assert.Equal(t, "M:example.com/shop.(Service).Place", sites[2].Caller.DocID)
		assert.Equal(t, "shop.(*Service).Place", sites[2].Caller.Display)
		assert.Equal(t, lineOf(t, orderSrc, "s.validate(o)"), sites[2].Span.Line)
		assert.Equal(t, "if err := s.validate(o); err != nil {", sites[2].Snippet)
		assert.False(t, sites[3].Callee.InSource)
	})

	t.Run("new is implicit creation", func(t *testing.T) {
		sites, err := x.CallSites(ctx, "store/db.go")
		require.NoError(t, err)
		require.Len(t, sites, 2)
		assert.Equal(t, callgraph.CallKindImplicitObjectCreation, sites[0].Kind)
		assert.Equal(t, "C:example.com/shop/store.DB", sites[0].Callee.DocID)
		assert.Equal(t, "M:example.com/shop/store.(DB).write", sites[1].Callee.DocID)
	})

	t.Run("generic instantiations collapse", func(t *testing.T) {
		sites, err := x.CallSites(ctx, "store/map.go")
		require.NoError(t, err)
		require.Len(t, sites, 2)
		a, err := callgraph.Identify(sites[0].Callee)
		require.NoError(t, err)
		b, err := callgraph.Identify(sites[1].Callee)
		require.NoError(t, err)
		assert.True(t, callgraph.Equal(a, b))
		assert.Equal(t, "F:example.com/shop/store.Map", sites[0].Callee.DefinitionDocID)
	})

	t.Run("unknown unit", func(t *testing.T) {
		_, err := x.CallSites(ctx, "missing.go")
		assert.ErrorIs(t, err, ErrUnknownUnit)
	})
}

func TestCallSites_NoObjectCreations(t *testing.T) {
	x := newExtractor(t, shopTree(t), false)
	sites, err := x.CallSites(context.Background(), "store/db.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"M:example.com/shop/store.(DB).write"}, callees(sites))
}

const fetchSrc = `package app

import "net/http"

type File struct{}

func (f *File) Close() error { return nil }

type Wrapper struct {
	*File
	backup File
}

type Closer interface {
	Close() error
}

func Fetch(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	f := &File{}
	return f.Close()
}

func Use(w *Wrapper, c Closer) {
	w.Close()
	w.backup.Close()
	w.File.Close()
	c.Close()
}
`

func TestCallSites_ReceiverTypes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod": "module example.com/app\n",
		"app.go": fetchSrc,
	})
	x := newExtractor(t, root, false)
	sites, err := x.CallSites(context.Background(), "app.go")
	require.NoError(t, err)

	byCaller := make(map[string][]string)
	for _, s := range sites {
		id, err := callgraph.Identify(s.Callee)
		require.NoError(t, err)
		byCaller[s.Caller.DocID] = append(byCaller[s.Caller.DocID], id.ID)
	}

	closeID := "M:example.com/app.(File).Close"
	t.Run("unknown operand type is dropped", func(t *testing.T) {
		assert.Equal(t, []string{"net/http.Get", closeID}, byCaller["F:example.com/app.Fetch"])
		assert.Equal(t, lineOf(t, fetchSrc, "return f.Close()"), sites[1].Span.Line)
	})

	t.Run("fields and embedding resolve", func(t *testing.T) {
		assert.Equal(t, []string{closeID, closeID, closeID}, byCaller["F:example.com/app.Use"])
	})
}

func TestCallSites_PerUnitLimit(t *testing.T) {
	corpus, err := LoadCorpus(context.Background(), shopTree(t), CorpusOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	newLimited := func(limit int) *GoExtractor {
		x, err := NewGoExtractor(ctx, corpus, ExtractOptions{IncludeObjectCreations: true, MaxCallSites: limit})
		require.NoError(t, err)
		t.Cleanup(x.Close)
		return x
	}

	t.Run("cut and reported", func(t *testing.T) {
		x := newLimited(2)
		sites, err := x.CallSites(ctx, "order.go")
		assert.ErrorIs(t, err, callgraph.ErrUnitTruncated)
		assert.Equal(t, []string{
			"C:example.com/shop.Service",
			"F:example.com/shop/store.Open",
		}, callees(sites))

		b, err := callgraph.NewBuilder()
		require.NoError(t, err)
		result, err := b.Build(ctx, x.UnitPaths(), x)
		require.NoError(t, err)
		assert.Equal(t, []string{"order.go"}, result.Graph.TruncatedUnits)
		assert.Equal(t, 1, result.Stats.UnitsTruncated)

		res, err := callgraph.Hierarchy(ctx, result.Graph, "F:example.com/shop.NewService", callgraph.HierarchyOptions{
			Direction: callgraph.DirectionOutgoing,
			Limits:    callgraph.DefaultHierarchyLimits(),
		})
		require.NoError(t, err)
		report := callgraph.AssembleHierarchy(result.Graph, res, callgraph.DefaultHierarchyLimits())
		require.NotEmpty(t, report.Caveats)
		assert.Contains(t, report.Caveats[0], "order.go")
	})

	t.Run("exactly at the limit", func(t *testing.T) {
		x := newLimited(5)
		sites, err := x.CallSites(ctx, "order.go")
		require.NoError(t, err)
		assert.Len(t, sites, 5)
	})
}

func TestTruncateSnippet(t *testing.T) {
	short := "s.validate(o)"
	assert.Equal(t, short, truncateSnippet(short))

	ascii := strings.Repeat("a", maxSnippetLen+10)
	assert.Equal(t, strings.Repeat("a", maxSnippetLen)+"...", truncateSnippet(ascii))

	split := strings.Repeat("a", maxSnippetLen-1) + "é" + "tail"
	got := truncateSnippet(split)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxSnippetLen-1)+"...", got)
}

func TestCallSites_MultibyteSnippet(t *testing.T) {
	src := "package app\n\nimport \"fmt\"\n\nfunc Greet() {\n\tfmt.Println(\"" +
		strings.Repeat("é", 100) + "\")\n}\n"
	root := writeTree(t, map[string]string{
		"go.mod": "module example.com/app\n",
		"app.go": src,
	})
	x := newExtractor(t, root, false)
	sites, err := x.CallSites(context.Background(), "app.go")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.True(t, utf8.ValidString(sites[0].Snippet))
	assert.True(t, strings.HasSuffix(sites[0].Snippet, "..."))
	assert.LessOrEqual(t, len(sites[0].Snippet), maxSnippetLen+len("..."))
}

func TestDeclarationIDs_Unique(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":          "module example.com/app\n",
		"a.go":            "package app\n\nfunc init() {}\n\nfunc init() {}\n\nfunc Start() {\n\tOpen()\n}\n",
		"b.go":            "package app\n\nfunc init() {}\n",
		"open_linux.go":   "//go:build linux\n\npackage app\n\nfunc Open() {}\n",
		"open_windows.go": "//go:build windows\n\npackage app\n\nfunc Open() {}\n",
	})
	x := newExtractor(t, root, false)

	seen := make(map[string]bool)
	for _, fd := range x.decls {
		assert.False(t, seen[fd.ref.DocID], "duplicate id %s", fd.ref.DocID)
		seen[fd.ref.DocID] = true
	}
	for _, want := range []string{
		"F:example.com/app.init#a.go:1",
		"F:example.com/app.init#a.go:2",
		"F:example.com/app.init#b.go:1",
		"F:example.com/app.Open#open_linux.go:1",
		"F:example.com/app.Open#open_windows.go:1",
		"F:example.com/app.Start",
	} {
		assert.True(t, seen[want], want)
	}

	sites, err := x.CallSites(context.Background(), "a.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"F:example.com/app.Open#open_linux.go:1"}, callees(sites))

	b, err := callgraph.NewBuilder()
	require.NoError(t, err)
	result, err := b.Build(context.Background(), x.UnitPaths(), x)
	require.NoError(t, err)
	_, ok := result.Graph.Node("F:example.com/app.Open#open_linux.go:1")
	assert.True(t, ok)

	_, err = x.ResolveAnchor("init")
	assert.ErrorIs(t, err, ErrSymbolAmbiguous)
	ref, err := x.ResolveAnchor("F:example.com/app.init#b.go:1")
	require.NoError(t, err)
	assert.Equal(t, "app.init", ref.Display)
}

func TestExtractorFeedsBuilder(t *testing.T) {
	x := newExtractor(t, shopTree(t), true)
	b, err := callgraph.NewBuilder()
	require.NoError(t, err)

	result, err := b.Build(context.Background(), x.UnitPaths(), x)
	require.NoError(t, err)
	assert.False(t, result.HasErrors())

	res, err := callgraph.Hierarchy(context.Background(), result.Graph,
		"M:example.com/shop.(Service).Place", callgraph.HierarchyOptions{
			Direction: callgraph.DirectionOutgoing,
			Limits:    callgraph.DefaultHierarchyLimits(),
		})
	require.NoError(t, err)

	var ids []string
	for _, n := range res.Nodes {
		ids = append(ids, n.SymbolID)
	}
	assert.Contains(t, ids, "M:example.com/shop/store.(DB).write")
	assert.NotContains(t, ids, "fmt.Println")
}

func TestResolveAnchor(t *testing.T) {
	x := newExtractor(t, shopTree(t), true)
	placeID := "M:example.com/shop.(Service).Place"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"canonical id", placeID, placeID},
		{"display", "shop.(*Service).Place", placeID},
		{"bare name", "Place", placeID},
		{"type and method", "Service.Place", placeID},
		{"package qualified", "shop.Service.Place", placeID},
		{"package function", "store.Open", "F:example.com/shop/store.Open"},
		{"file and line", "order.go:" + strconv.Itoa(lineOf(t, orderSrc, "fmt.Println")), placeID},
		{"path suffix", "db.go:" + strconv.Itoa(lineOf(t, storeSrc, "d.write")), "M:example.com/shop/store.(DB).Save"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := x.ResolveAnchor(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.DocID)
		})
	}
}

func TestResolveAnchor_Errors(t *testing.T) {
	x := newExtractor(t, shopTree(t), true)

	t.Run("ambiguous", func(t *testing.T) {
		_, err := x.ResolveAnchor("Close")
		var amb *AmbiguousSymbolError
		require.True(t, errors.As(err, &amb))
		assert.Len(t, amb.Matches, 2)
		assert.ErrorIs(t, err, ErrSymbolAmbiguous)
	})

	t.Run("not found with suggestions", func(t *testing.T) {
		_, err := x.ResolveAnchor("sav")
		var nf *SymbolNotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, []string{"store.(*DB).Save"}, nf.Suggestions)
		assert.ErrorIs(t, err, ErrSymbolNotFound)
	})

	t.Run("line outside any function", func(t *testing.T) {
		_, err := x.ResolveAnchor("order.go:1")
		assert.ErrorIs(t, err, ErrNotAMethod)
	})

	t.Run("file outside corpus", func(t *testing.T) {
		_, err := x.ResolveAnchor("nope.go:3")
		assert.ErrorIs(t, err, ErrFileNotInCorpus)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := x.ResolveAnchor("  ")
		assert.ErrorIs(t, err, ErrSymbolNotFound)
	})
}

func TestParseFileLine(t *testing.T) {
	tests := []struct {
		input string
		file  string
		line  int
		ok    bool
	}{
		{"a/b.go:12", "a/b.go", 12, true},
		{"b.go:0", "", 0, false},
		{"b.go:x", "", 0, false},
		{"M:pkg.Run", "", 0, false},
		{"b.go", "", 0, false},
	}
	for _, tt := range tests {
		file, line, ok := parseFileLine(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.file, file, tt.input)
		assert.Equal(t, tt.line, line, tt.input)
	}
}
