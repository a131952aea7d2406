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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Query limit defaults and accepted ranges.
const (
	DefaultHierarchyMaxDepth = 2
	DefaultHierarchyMaxNodes = 150
	DefaultHierarchyMaxEdges = 400

	DefaultPathMaxDepth  = 8
	DefaultPathMaxNodes  = 2000
	DefaultMaxGraphEdges = 30000

	MinDepth = 1
	MaxDepth = 40
	MinNodes = 1
	MaxNodes = 50000
	MinEdges = 1
	MaxEdges = 200000
)

// limitValidate is the validator instance for query limits.
var limitValidate *validator.Validate

func init() {
	limitValidate = validator.New()
	limitValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// HierarchyLimits bounds a hierarchy query.
type HierarchyLimits struct {
	MaxDepth int `json:"max_depth" yaml:"max_depth" validate:"min=1,max=40"`
	MaxNodes int `json:"max_nodes" yaml:"max_nodes" validate:"min=1,max=50000"`
	MaxEdges int `json:"max_edges" yaml:"max_edges" validate:"min=1,max=200000"`
}

// DefaultHierarchyLimits returns the default hierarchy limits.
func DefaultHierarchyLimits() HierarchyLimits {
	return HierarchyLimits{
		MaxDepth: DefaultHierarchyMaxDepth,
		MaxNodes: DefaultHierarchyMaxNodes,
		MaxEdges: DefaultHierarchyMaxEdges,
	}
}

// Validate rejects out-of-range limits with a *LimitError.
func (l HierarchyLimits) Validate() error {
	return validateLimits(l)
}

// PathLimits bounds a path query and the graph built for it.
type PathLimits struct {
	MaxDepth      int `json:"max_depth" yaml:"max_depth" validate:"min=1,max=40"`
	MaxNodes      int `json:"max_nodes" yaml:"max_nodes" validate:"min=1,max=50000"`
	MaxGraphEdges int `json:"max_graph_edges" yaml:"max_graph_edges" validate:"min=1,max=200000"`
}

// DefaultPathLimits returns the default path limits.
func DefaultPathLimits() PathLimits {
	return PathLimits{
		MaxDepth:      DefaultPathMaxDepth,
		MaxNodes:      DefaultPathMaxNodes,
		MaxGraphEdges: DefaultMaxGraphEdges,
	}
}

// Validate rejects out-of-range limits with a *LimitError.
func (l PathLimits) Validate() error {
	return validateLimits(l)
}

// ValidateGraphEdges checks a builder edge ceiling.
func ValidateGraphEdges(n int) error {
	if n < MinEdges || n > MaxEdges {
		return &LimitError{Field: "max_graph_edges", Value: n, Min: MinEdges, Max: MaxEdges}
	}
	return nil
}

// validateLimits runs struct validation and converts the first failure into
// a *LimitError carrying the field's accepted range.
func validateLimits(v any) error {
	err := limitValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidLimit, err)
	}
	fe := verrs[0]
	value, _ := fe.Value().(int)
	lo, hi := limitRange(fe.Field())
	return &LimitError{Field: fe.Field(), Value: value, Min: lo, Max: hi}
}

func limitRange(field string) (int, int) {
	switch field {
	case "max_depth":
		return MinDepth, MaxDepth
	case "max_nodes":
		return MinNodes, MaxNodes
	default:
		return MinEdges, MaxEdges
	}
}
