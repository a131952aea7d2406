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

// ringBuffer is a fixed-size circular buffer that overwrites its oldest
// item when full.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type ringBuffer[T any] struct {
	data  []T
	head  int // next write position
	count int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ringBuffer[T]{data: make([]T, capacity)}
}

// push adds an item, overwriting the oldest one when full.
func (r *ringBuffer[T]) push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// last returns up to n items, newest first.
func (r *ringBuffer[T]) last(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}
	n = min(n, r.count)
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := r.head - 1 - i
		if idx < 0 {
			idx += len(r.data)
		}
		out[i] = r.data[idx]
	}
	return out
}

// find returns the newest item matching pred.
func (r *ringBuffer[T]) find(pred func(T) bool) (T, bool) {
	for _, item := range r.last(r.count) {
		if pred(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}
