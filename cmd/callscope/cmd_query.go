// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/pkg/ux"
	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/query"
)

// exactArgs wraps cobra.ExactArgs so arity mistakes exit with ExitUsage.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func (a *app) newHierarchyCmd() *cobra.Command {
	var (
		direction     string
		depth         int
		maxNodes      int
		maxEdges      int
		maxGraphEdges int
	)

	cmd := &cobra.Command{
		Use:   "hierarchy SYMBOL",
		Short: "Show the callers or callees of a method",
		Long: `Expand the call hierarchy around SYMBOL level by level.

Directions:
  incoming  - methods that call SYMBOL (default)
  outgoing  - methods SYMBOL calls
  both      - both at once

Limits left unset take the configured defaults. Results that hit a limit are
marked truncated rather than failing.

Examples:
  callscope hierarchy Place
  callscope hierarchy shop.Service.Place --direction outgoing --depth 4
  callscope hierarchy order.go:42 --direction both --json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if depth, err = limitFlag(cmd, "depth", "max_depth", depth, callgraph.MinDepth, callgraph.MaxDepth); err != nil {
				return err
			}
			if maxNodes, err = limitFlag(cmd, "max-nodes", "max_nodes", maxNodes, callgraph.MinNodes, callgraph.MaxNodes); err != nil {
				return err
			}
			if maxEdges, err = limitFlag(cmd, "max-edges", "max_edges", maxEdges, callgraph.MinEdges, callgraph.MaxEdges); err != nil {
				return err
			}
			if maxGraphEdges, err = limitFlag(cmd, "max-graph-edges", "max_graph_edges", maxGraphEdges, callgraph.MinEdges, callgraph.MaxEdges); err != nil {
				return err
			}
			if err := a.initTelemetry(cmd.Context(), false); err != nil {
				return err
			}

			report, err := a.service(cmd.Context(), nil).Hierarchy(cmd.Context(), query.HierarchyRequest{
				ProjectRoot:   a.root,
				Anchor:        args[0],
				Direction:     direction,
				MaxDepth:      depth,
				MaxNodes:      maxNodes,
				MaxEdges:      maxEdges,
				MaxGraphEdges: maxGraphEdges,
			})
			if err != nil {
				return err
			}
			return a.emit(report, func(p *ux.Printer) { renderHierarchy(p, report) })
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&direction, "direction", "d", string(callgraph.DirectionIncoming), "incoming, outgoing or both")
	flags.IntVar(&depth, "depth", 0, "maximum depth to expand")
	flags.IntVar(&maxNodes, "max-nodes", 0, "maximum methods in the result")
	flags.IntVar(&maxEdges, "max-edges", 0, "maximum calls in the result")
	flags.IntVar(&maxGraphEdges, "max-graph-edges", 0, "maximum calls kept while building the graph")
	return cmd
}

func (a *app) newPathCmd() *cobra.Command {
	var (
		depth         int
		maxNodes      int
		maxGraphEdges int
	)

	cmd := &cobra.Command{
		Use:   "path FROM TO",
		Short: "Find the shortest call path between two methods",
		Long: `Find the shortest chain of calls that leads from FROM to TO.

Not finding a path is a normal result and exits 0. When a limit cut the
search short the output says so, since a longer path may still exist.

Examples:
  callscope path main.main store.Open
  callscope path Service.Place DB.write --depth 12`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if depth, err = limitFlag(cmd, "depth", "max_depth", depth, callgraph.MinDepth, callgraph.MaxDepth); err != nil {
				return err
			}
			if maxNodes, err = limitFlag(cmd, "max-nodes", "max_nodes", maxNodes, callgraph.MinNodes, callgraph.MaxNodes); err != nil {
				return err
			}
			if maxGraphEdges, err = limitFlag(cmd, "max-graph-edges", "max_graph_edges", maxGraphEdges, callgraph.MinEdges, callgraph.MaxEdges); err != nil {
				return err
			}
			if err := a.initTelemetry(cmd.Context(), false); err != nil {
				return err
			}

			report, err := a.service(cmd.Context(), nil).Path(cmd.Context(), query.PathRequest{
				ProjectRoot:   a.root,
				Source:        args[0],
				Target:        args[1],
				MaxDepth:      depth,
				MaxNodes:      maxNodes,
				MaxGraphEdges: maxGraphEdges,
			})
			if err != nil {
				return err
			}
			return a.emit(report, func(p *ux.Printer) { renderPath(p, report) })
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&depth, "depth", 0, "maximum path length in calls")
	flags.IntVar(&maxNodes, "max-nodes", 0, "maximum methods to visit")
	flags.IntVar(&maxGraphEdges, "max-graph-edges", 0, "maximum calls kept while building the graph")
	return cmd
}
