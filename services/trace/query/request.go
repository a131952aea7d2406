// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"strings"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/history"
)

// HierarchyRequest asks for the call hierarchy around one method.
//
// Zero limits take the service defaults. Nil booleans take the service
// defaults too.
type HierarchyRequest struct {
	ProjectRoot            string `json:"project_root"`
	Anchor                 string `json:"anchor"`
	Direction              string `json:"direction"`
	MaxDepth               int    `json:"max_depth"`
	MaxNodes               int    `json:"max_nodes"`
	MaxEdges               int    `json:"max_edges"`
	MaxGraphEdges          int    `json:"max_graph_edges"`
	IncludeExternal        *bool  `json:"include_external"`
	IncludeObjectCreations *bool  `json:"include_object_creations"`
}

// PathRequest asks for the shortest call path between two methods.
type PathRequest struct {
	ProjectRoot            string `json:"project_root"`
	Source                 string `json:"source"`
	Target                 string `json:"target"`
	MaxDepth               int    `json:"max_depth"`
	MaxNodes               int    `json:"max_nodes"`
	MaxGraphEdges          int    `json:"max_graph_edges"`
	IncludeExternal        *bool  `json:"include_external"`
	IncludeObjectCreations *bool  `json:"include_object_creations"`
}

// buildParams is the resolved graph construction setup for one query.
type buildParams struct {
	root          string
	external      bool
	objects       bool
	maxGraphEdges int
	trackIncoming bool
}

type hierarchyParams struct {
	buildParams
	anchor    string
	direction callgraph.Direction
	limits    callgraph.HierarchyLimits
}

type pathParams struct {
	buildParams
	source string
	target string
	limits callgraph.PathLimits
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// hierarchyParams validates req against the defaults. Nothing is loaded
// or built until every input has been accepted.
func (s *Service) hierarchyParams(req HierarchyRequest) (hierarchyParams, error) {
	root, err := s.validateProjectRoot(req.ProjectRoot)
	if err != nil {
		return hierarchyParams{}, err
	}
	anchor := strings.TrimSpace(req.Anchor)
	if anchor == "" {
		return hierarchyParams{}, callgraph.ErrEmptyAnchor
	}
	dirName := req.Direction
	if dirName == "" {
		dirName = string(callgraph.DirectionIncoming)
	}
	dir, err := callgraph.ParseDirection(dirName)
	if err != nil {
		return hierarchyParams{}, err
	}

	def := s.config.Hierarchy
	limits := callgraph.HierarchyLimits{
		MaxDepth: orDefault(req.MaxDepth, def.MaxDepth),
		MaxNodes: orDefault(req.MaxNodes, def.MaxNodes),
		MaxEdges: orDefault(req.MaxEdges, def.MaxEdges),
	}
	if err := limits.Validate(); err != nil {
		return hierarchyParams{}, err
	}
	graphEdges := orDefault(req.MaxGraphEdges, s.config.GraphEdges)
	if err := callgraph.ValidateGraphEdges(graphEdges); err != nil {
		return hierarchyParams{}, err
	}

	return hierarchyParams{
		buildParams: buildParams{
			root:          root,
			external:      boolOr(req.IncludeExternal, s.config.IncludeExternal),
			objects:       boolOr(req.IncludeObjectCreations, s.config.IncludeObjectCreations),
			maxGraphEdges: graphEdges,
			trackIncoming: true,
		},
		anchor:    anchor,
		direction: dir,
		limits:    limits,
	}, nil
}

func (s *Service) pathParams(req PathRequest) (pathParams, error) {
	root, err := s.validateProjectRoot(req.ProjectRoot)
	if err != nil {
		return pathParams{}, err
	}
	source := strings.TrimSpace(req.Source)
	target := strings.TrimSpace(req.Target)
	if source == "" || target == "" {
		return pathParams{}, callgraph.ErrEmptyAnchor
	}

	def := s.config.Path
	limits := callgraph.PathLimits{
		MaxDepth:      orDefault(req.MaxDepth, def.MaxDepth),
		MaxNodes:      orDefault(req.MaxNodes, def.MaxNodes),
		MaxGraphEdges: orDefault(req.MaxGraphEdges, def.MaxGraphEdges),
	}
	if err := limits.Validate(); err != nil {
		return pathParams{}, err
	}

	return pathParams{
		buildParams: buildParams{
			root:          root,
			external:      boolOr(req.IncludeExternal, s.config.IncludeExternal),
			objects:       boolOr(req.IncludeObjectCreations, s.config.IncludeObjectCreations),
			maxGraphEdges: limits.MaxGraphEdges,
		},
		source: source,
		target: target,
		limits: limits,
	}, nil
}

func (p buildParams) queryParams() history.QueryParams {
	return history.QueryParams{
		ProjectRoot:            p.root,
		MaxGraphEdges:          p.maxGraphEdges,
		IncludeExternal:        p.external,
		IncludeObjectCreations: p.objects,
	}
}
