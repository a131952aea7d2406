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
	"fmt"
	"sync"
	"time"
)

// DefaultMemoryCapacity is the number of records a MemoryStore keeps.
const DefaultMemoryCapacity = 256

// MemoryStore keeps the most recent records in a bounded ring buffer.
// Older records are dropped silently.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	mu  sync.RWMutex
	buf *ringBuffer[QueryRecord]
	now func() time.Time
}

// NewMemoryStore creates a store holding up to capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{buf: newRingBuffer[QueryRecord](capacity), now: time.Now}
}

// Record saves r.
func (s *MemoryStore) Record(ctx context.Context, r *QueryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.prepare(s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.push(cloneRecord(*r))
	return nil
}

// Get returns a record by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*QueryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.buf.find(func(r QueryRecord) bool { return r.ID == id })
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	rec = cloneRecord(rec)
	return &rec, nil
}

// List returns up to limit records, newest first.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]QueryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.buf.last(limit)
	for i := range out {
		out[i] = cloneRecord(out[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneRecord(r QueryRecord) QueryRecord {
	r.Anchors = append([]string(nil), r.Anchors...)
	return r
}
