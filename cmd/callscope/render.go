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
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/callscope/pkg/ux"
	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/history"
)

func location(p *ux.Printer, n callgraph.NodeView) string {
	if n.Location == nil {
		if n.IsExternal {
			return p.MutedText("(external)")
		}
		return ""
	}
	return p.MutedText(fmt.Sprintf("%s:%d", n.Location.FilePath, n.Location.Line))
}

func nodeLine(p *ux.Printer, n callgraph.NodeView) string {
	if loc := location(p, n); loc != "" {
		return n.Display + "  " + loc
	}
	return n.Display
}

func renderCaveats(p *ux.Printer, caveats []string) {
	for _, c := range caveats {
		p.Warning(c)
	}
}

func graphLine(p *ux.Printer, g callgraph.GraphStats) {
	p.Muted(fmt.Sprintf("graph: %d methods, %d calls, %d source files",
		g.NodeCount, g.EdgeCount, g.ScannedUnitCount))
}

// renderHierarchy prints the hierarchy one level at a time.
func renderHierarchy(p *ux.Printer, r *callgraph.HierarchyReport) {
	p.Title(fmt.Sprintf("%s %s calls of %s", ux.IconAnchor, r.Direction, r.Anchor.Display))

	byID := make(map[string]callgraph.NodeView, len(r.Nodes))
	for _, n := range r.Nodes {
		byID[n.SymbolID] = n
	}
	for _, level := range r.Levels {
		if level.Depth == 0 {
			continue
		}
		p.Line("%s", p.BoldText(fmt.Sprintf("depth %d", level.Depth)))
		for _, id := range level.NodeIDs {
			p.Bullet(1, nodeLine(p, byID[id]))
		}
	}
	if len(r.Nodes) <= 1 {
		p.Muted("no calls found")
	}

	p.Line("")
	p.Line("%d methods, %d calls", len(r.Nodes), len(r.Edges))
	graphLine(p, r.Graph)
	renderCaveats(p, r.Caveats)
}

// renderPath prints the call chain, one call per line.
func renderPath(p *ux.Printer, r *callgraph.PathReport) {
	if !r.Found {
		p.Warning(fmt.Sprintf("no call path from %s to %s", r.Source.Display, r.Target.Display))
		p.Muted(fmt.Sprintf("visited %d methods, explored %d calls", r.VisitedCount, r.ExploredEdgeCount))
		graphLine(p, r.Graph)
		renderCaveats(p, r.Caveats)
		return
	}

	p.Title(fmt.Sprintf("%s call path from %s to %s", ux.IconAnchor, r.Source.Display, r.Target.Display))
	for i, n := range r.PathNodes {
		p.Line("%s%s", strings.Repeat("  ", i), nodeLine(p, n))
		if i < len(r.PathEdges) {
			e := r.PathEdges[i]
			p.Line("%s%s", strings.Repeat("  ", i+1),
				p.MutedText(fmt.Sprintf("%s %s at %s:%d", ux.IconArrow, e.CallKind, e.FilePath, e.Line)))
		}
	}
	p.Line("")
	p.Success(fmt.Sprintf("%d calls", len(r.PathEdges)))
	graphLine(p, r.Graph)
	renderCaveats(p, r.Caveats)
}

func renderHistory(p *ux.Printer, records []history.QueryRecord) {
	if len(records) == 0 {
		p.Muted("no queries recorded")
		return
	}
	for _, r := range records {
		var outcome string
		switch {
		case r.Kind == history.KindPath && r.Found:
			outcome = fmt.Sprintf("found, %d calls", r.EdgeCount)
		case r.Kind == history.KindPath:
			outcome = "no path"
		default:
			outcome = fmt.Sprintf("%d methods, %d calls", r.NodeCount, r.EdgeCount)
		}
		if r.Truncated || r.GraphTruncated {
			outcome += ", truncated"
		}
		p.Line("%s  %s  %-9s  %s  %s",
			p.MutedText(r.CreatedAt().Local().Format(time.DateTime)),
			p.MutedText(r.ID),
			r.Kind,
			strings.Join(r.Anchors, " "+string(ux.IconArrow)+" "),
			p.MutedText(outcome))
	}
}

func renderRecord(p *ux.Printer, r *history.QueryRecord) {
	lines := []string{
		fmt.Sprintf("id:         %s", r.ID),
		fmt.Sprintf("kind:       %s", r.Kind),
		fmt.Sprintf("anchors:    %s", strings.Join(r.Anchors, " "+string(ux.IconArrow)+" ")),
		fmt.Sprintf("root:       %s", r.Params.ProjectRoot),
		fmt.Sprintf("limits:     depth %d, nodes %d, graph edges %d", r.Params.MaxDepth, r.Params.MaxNodes, r.Params.MaxGraphEdges),
		fmt.Sprintf("result:     %d methods, %d calls", r.NodeCount, r.EdgeCount),
		fmt.Sprintf("duration:   %s", (time.Duration(r.DurationMicro) * time.Microsecond).Round(time.Millisecond)),
		fmt.Sprintf("recorded:   %s", r.CreatedAt().Local().Format(time.DateTime)),
	}
	if r.Params.Direction != "" {
		lines = append(lines, fmt.Sprintf("direction:  %s", r.Params.Direction))
	}
	if r.Kind == history.KindPath {
		lines = append(lines, fmt.Sprintf("found:      %t", r.Found))
	}
	if r.Truncated || r.GraphTruncated {
		lines = append(lines, fmt.Sprintf("truncated:  %t (graph %t)", r.Truncated, r.GraphTruncated))
	}
	p.Box("Query "+r.ID, lines...)
}

func renderSummary(p *ux.Printer, s history.Summary) {
	lines := []string{
		fmt.Sprintf("queries:          %d (%d hierarchy, %d path)", s.Total, s.Hierarchy, s.Path),
		fmt.Sprintf("paths found:      %d", s.PathsFound),
		fmt.Sprintf("truncated:        %d (%d by graph size)", s.Truncated, s.GraphTruncated),
		fmt.Sprintf("mean duration:    %s", s.MeanDuration.Round(time.Millisecond)),
	}
	if !s.Since.IsZero() {
		lines = append(lines, fmt.Sprintf("since:            %s", s.Since.Local().Format(time.DateTime)))
	}
	p.Box("Query history", lines...)
	if len(s.TopAnchors) > 0 {
		p.Line("%s", p.BoldText("most queried"))
		for _, a := range s.TopAnchors {
			p.Bullet(1, fmt.Sprintf("%s  %s", a.Anchor, p.MutedText(fmt.Sprintf("x%d", a.Count))))
		}
	}
}
