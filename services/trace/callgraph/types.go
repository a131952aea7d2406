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
	"fmt"
	"strings"
)

// CallKind classifies how a call site invokes its callee.
type CallKind int

const (
	// CallKindOrdinary is a plain function or method invocation.
	CallKindOrdinary CallKind = iota

	// CallKindObjectCreation is an explicit construction of a value.
	CallKindObjectCreation

	// CallKindImplicitObjectCreation is a construction whose type is implied.
	CallKindImplicitObjectCreation

	// CallKindConstructorInitializer is a constructor chaining to another.
	CallKindConstructorInitializer
)

var callKindNames = [...]string{
	CallKindOrdinary:               "ordinary",
	CallKindObjectCreation:         "object_creation",
	CallKindImplicitObjectCreation: "implicit_object_creation",
	CallKindConstructorInitializer: "constructor_initializer",
}

// String returns the snake_case name of the call kind.
func (k CallKind) String() string {
	if k >= 0 && int(k) < len(callKindNames) {
		return callKindNames[k]
	}
	return fmt.Sprintf("call_kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k CallKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CallKind) UnmarshalText(text []byte) error {
	for i, name := range callKindNames {
		if name == string(text) {
			*k = CallKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown call kind %q", text)
}

// IsObjectCreation reports whether the kind constructs a value rather than
// invoking an existing method.
func (k CallKind) IsObjectCreation() bool {
	return k != CallKindOrdinary
}

// Direction selects which edges a hierarchy query follows.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionBoth     Direction = "both"
)

// ParseDirection parses a direction name, case-insensitively.
//
// Outputs:
//
//	Direction - The parsed direction.
//	error - ErrInvalidDirection for anything other than incoming, outgoing, both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionIncoming:
		return DirectionIncoming, nil
	case DirectionOutgoing:
		return DirectionOutgoing, nil
	case DirectionBoth:
		return DirectionBoth, nil
	}
	return "", fmt.Errorf("%w: %q (want incoming, outgoing or both)", ErrInvalidDirection, s)
}

// CallSite is one caller→callee relationship reported by extraction.
type CallSite struct {
	Caller MethodRef
	Callee MethodRef
	Kind   CallKind

	// Span is the position of the call expression.
	Span Location

	// Snippet is the trimmed source line of the call, if available.
	Snippet string
}

// CallSiteSource yields the call sites of one source unit.
//
// Units are identified by their corpus-relative path. Implementations are
// expected to honor IncludeObjectCreations themselves when they can; the
// builder filters again regardless. A source that stops early returns the
// sites it kept together with an error wrapping ErrUnitTruncated; the
// builder uses those sites and marks the unit truncated.
type CallSiteSource interface {
	CallSites(ctx context.Context, unitPath string) ([]CallSite, error)
}

// Node is a method in the call graph.
type Node struct {
	SymbolID       string     `json:"symbol_id"`
	Display        string     `json:"display"`
	SymbolKind     SymbolKind `json:"symbol_kind"`
	MethodKind     MethodKind `json:"method_kind"`
	ContainingType string     `json:"containing_type,omitempty"`

	// IsExternal is true while no in-source declaration is known.
	IsExternal bool `json:"is_external"`

	// Location is the declaration position. Set at most once.
	Location *Location `json:"location,omitempty"`

	// identity is what Equal compares when references are merged.
	identity MethodIdentity
}

// Edge is a single call site between two nodes.
type Edge struct {
	FromSymbolID string   `json:"from_symbol_id"`
	ToSymbolID   string   `json:"to_symbol_id"`
	CallKind     CallKind `json:"call_kind"`
	FilePath     string   `json:"file_path"`
	Line         int      `json:"line"`
	Column       int      `json:"column"`
	Snippet      string   `json:"snippet,omitempty"`
}

// edgeKey is the deduplication key of an edge.
type edgeKey struct {
	from, to, file string
	line, column   int
	kind           CallKind
}

// key returns the deduplication key of the edge.
func (e *Edge) key() edgeKey {
	return edgeKey{
		from:   e.FromSymbolID,
		to:     e.ToSymbolID,
		file:   e.FilePath,
		line:   e.Line,
		column: e.Column,
		kind:   e.CallKind,
	}
}

// Other returns the endpoint of the edge that is not id. For a self-loop it
// returns id.
func (e *Edge) Other(id string) string {
	if e.FromSymbolID == id {
		return e.ToSymbolID
	}
	return e.FromSymbolID
}

// String returns a compact representation for logs.
func (e *Edge) String() string {
	return fmt.Sprintf("%s -[%s]-> %s @ %s:%d:%d", e.FromSymbolID, e.CallKind, e.ToSymbolID, e.FilePath, e.Line, e.Column)
}

// lessByPosition orders edges by (file, line, column) with the remaining
// key fields as tie-breakers.
func lessByPosition(a, b *Edge) bool {
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	if a.Column != b.Column {
		return a.Column < b.Column
	}
	if a.FromSymbolID != b.FromSymbolID {
		return a.FromSymbolID < b.FromSymbolID
	}
	if a.ToSymbolID != b.ToSymbolID {
		return a.ToSymbolID < b.ToSymbolID
	}
	return a.CallKind < b.CallKind
}
