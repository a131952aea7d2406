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

import "strings"

// SymbolKind is the kind of symbol a node represents.
type SymbolKind string

const (
	SymbolKindMethod   SymbolKind = "method"
	SymbolKindFunction SymbolKind = "function"
)

// MethodKind distinguishes ordinary methods from constructors, accessors and
// other special forms.
type MethodKind string

const (
	MethodKindOrdinary          MethodKind = "ordinary"
	MethodKindConstructor       MethodKind = "constructor"
	MethodKindAccessor          MethodKind = "accessor"
	MethodKindStaticConstructor MethodKind = "static_constructor"
	MethodKindLocalFunction     MethodKind = "local_function"
)

// Location is a position in a source file. Line and Column are 1-based.
type Location struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// IsZero reports whether the location carries no file.
func (l Location) IsZero() bool {
	return l.FilePath == ""
}

// MethodRef is a method as reported by call-site extraction.
//
// DocID and DefinitionDocID are canonical documentation-style ids. When the
// reference is a generic instantiation or a reduced form of another method,
// the Definition fields describe the original declaration.
type MethodRef struct {
	// DocID is the canonical id of this method, if the extractor has one.
	DocID string `json:"doc_id,omitempty"`

	// DefinitionDocID is the canonical id of the original definition.
	DefinitionDocID string `json:"definition_doc_id,omitempty"`

	// Display is the fully-qualified display string (e.g. "pkg.(*T).Run").
	Display string `json:"display"`

	// DefinitionDisplay is the display string of the original definition.
	DefinitionDisplay string `json:"definition_display,omitempty"`

	SymbolKind     SymbolKind `json:"symbol_kind"`
	MethodKind     MethodKind `json:"method_kind"`
	ContainingType string     `json:"containing_type,omitempty"`

	// InSource is true when the method has a declaration in the corpus.
	InSource bool `json:"in_source"`

	// Declaration is the declaration position. Nil when not in source.
	Declaration *Location `json:"declaration,omitempty"`
}

// MethodIdentity uniquely identifies a method across the corpus.
//
// ID is what the graph keys nodes by. Canonical identities come from a
// documentation id and are only ever equal to the same id; display-only
// identities are matched by their normalized display string.
type MethodIdentity struct {
	ID string

	// Definition is the normalized original-definition form: the canonical
	// id when there is one, else the display form.
	Definition string

	// Display is the display string with generic type arguments removed.
	Display string

	// Canonical is true when Definition was derived from a documentation id.
	Canonical bool
}

// Identify derives the identity of a method reference.
//
// Description:
//
//	Prefers the canonical id of the original definition, then the canonical
//	id of the reference, then the definition display string, then the
//	display string. Generic type arguments are removed from whichever form
//	wins, so an instantiation and its open definition produce the same ID.
//
// Outputs:
//
//	MethodIdentity - Never has an empty ID when err is nil.
//	error - ErrUnresolvedMethod when the reference carries nothing usable.
func Identify(ref MethodRef) (MethodIdentity, error) {
	display := normalizeDefinition(firstNonEmpty(ref.DefinitionDisplay, ref.Display))
	if canonical := normalizeDefinition(firstNonEmpty(ref.DefinitionDocID, ref.DocID)); canonical != "" {
		return MethodIdentity{ID: canonical, Definition: canonical, Display: display, Canonical: true}, nil
	}
	if display == "" {
		return MethodIdentity{}, ErrUnresolvedMethod
	}
	return MethodIdentity{ID: display, Definition: display, Display: display}, nil
}

// Equal reports whether two identities refer to the same method.
//
// Matching ids are always equal. Two canonical identities are equal only
// when their definitions match, so same-named methods of different packages
// stay apart. When either side has no canonical id the display forms decide.
func Equal(a, b MethodIdentity) bool {
	switch {
	case a.ID != "" && a.ID == b.ID:
		return true
	case a.Canonical && b.Canonical:
		return a.Definition != "" && a.Definition == b.Definition
	default:
		return a.Display != "" && a.Display == b.Display
	}
}

// normalizeDefinition strips generic type arguments from a display or id so
// "pkg.Map[int]" and "pkg.Map[string]" normalize to "pkg.Map".
func normalizeDefinition(s string) string {
	if !strings.ContainsRune(s, '[') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
