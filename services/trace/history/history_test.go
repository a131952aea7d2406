// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore("", nil)
	require.NoError(t, err)
	s.now = fixedClock()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemory(t *testing.T, capacity int) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(capacity)
	s.now = fixedClock()
	return s
}

func hierarchyRecord(anchor string) *QueryRecord {
	return &QueryRecord{
		Kind:      KindHierarchy,
		Anchors:   []string{anchor},
		Params:    QueryParams{ProjectRoot: "/src", Direction: "incoming", MaxDepth: 2, MaxNodes: 150, MaxEdges: 400},
		NodeCount: 3,
		EdgeCount: 2,
	}
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"badger": func(t *testing.T) Store { return newBadger(t) },
		"memory": func(t *testing.T) Store { return newMemory(t, 10) },
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("record assigns id and time", func(t *testing.T) {
				s := open(t)
				r := hierarchyRecord("M:a.Run")
				require.NoError(t, s.Record(ctx, r))
				assert.NotEmpty(t, r.ID)
				assert.Equal(t, base.Add(time.Second).UnixMilli(), r.CreatedAtMilli)

				got, err := s.Get(ctx, r.ID)
				require.NoError(t, err)
				assert.Equal(t, *r, *got)
			})

			t.Run("list newest first", func(t *testing.T) {
				s := open(t)
				for _, a := range []string{"first", "second", "third"} {
					require.NoError(t, s.Record(ctx, hierarchyRecord(a)))
				}
				list, err := s.List(ctx, 2)
				require.NoError(t, err)
				require.Len(t, list, 2)
				assert.Equal(t, []string{"third"}, list[0].Anchors)
				assert.Equal(t, []string{"second"}, list[1].Anchors)
			})

			t.Run("get missing", func(t *testing.T) {
				s := open(t)
				_, err := s.Get(ctx, "nope")
				assert.ErrorIs(t, err, ErrRecordNotFound)
			})

			t.Run("rejects bad records", func(t *testing.T) {
				s := open(t)
				assert.ErrorIs(t, s.Record(ctx, nil), ErrNilRecord)
				assert.ErrorIs(t, s.Record(ctx, &QueryRecord{Kind: "other"}), ErrInvalidKind)
			})
		})
	}
}

func TestBadgerStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := newBadger(t)

	var ids []string
	for _, a := range []string{"a", "b", "c", "d"} {
		r := hierarchyRecord(a)
		require.NoError(t, s.Record(ctx, r))
		ids = append(ids, r.ID)
	}

	// Records were created at base+1s .. base+4s.
	removed, err := s.Prune(ctx, base.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"d"}, list[0].Anchors)

	_, err = s.Get(ctx, ids[0])
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = s.Get(ctx, ids[3])
	assert.NoError(t, err)

	removed, err = s.Prune(ctx, base)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestBadgerStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(dir, nil)
	require.NoError(t, err)
	r := &QueryRecord{Kind: KindPath, Anchors: []string{"M:a", "M:b"}, Found: true}
	require.NoError(t, s.Record(ctx, r))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, []string{"M:a", "M:b"}, got.Anchors)
}

func TestMemoryStore_DropsOldest(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t, 2)

	first := hierarchyRecord("a")
	require.NoError(t, s.Record(ctx, first))
	require.NoError(t, s.Record(ctx, hierarchyRecord("b")))
	require.NoError(t, s.Record(ctx, hierarchyRecord("c")))

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"c"}, list[0].Anchors)
	assert.Equal(t, []string{"b"}, list[1].Anchors)

	_, err = s.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryStore_ListIsCopy(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t, 4)
	require.NoError(t, s.Record(ctx, hierarchyRecord("a")))

	list, err := s.List(ctx, 1)
	require.NoError(t, err)
	list[0].Anchors[0] = "mutated"

	list, err = s.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, list[0].Anchors)
}

func TestSummarize(t *testing.T) {
	records := []QueryRecord{
		{Kind: KindHierarchy, Anchors: []string{"M:a"}, Truncated: true, DurationMicro: 100, CreatedAtMilli: 3000},
		{Kind: KindPath, Anchors: []string{"M:a", "M:b"}, Found: true, DurationMicro: 200, CreatedAtMilli: 2000},
		{Kind: KindPath, Anchors: []string{"M:c", "M:c"}, GraphTruncated: true, DurationMicro: 300, CreatedAtMilli: 1000},
	}

	s := Summarize(records, 2)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Hierarchy)
	assert.Equal(t, 2, s.Path)
	assert.Equal(t, 1, s.PathsFound)
	assert.Equal(t, 1, s.Truncated)
	assert.Equal(t, 1, s.GraphTruncated)
	assert.Equal(t, 200*time.Microsecond, s.MeanDuration)
	assert.Equal(t, time.UnixMilli(1000), s.Since)
	assert.Equal(t, []AnchorCount{{"M:a", 2}, {"M:b", 1}}, s.TopAnchors)

	empty := Summarize(nil, 5)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.MeanDuration)
	assert.Empty(t, empty.TopAnchors)
}
