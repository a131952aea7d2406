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
	"github.com/AleutianAI/callscope/services/trace/history"
)

func (a *app) newHistoryCmd() *cobra.Command {
	var (
		limit   int
		summary bool
		top     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent queries",
		Long: `List recent hierarchy and path queries, newest first.

History is kept in --history-dir (default ~/.callscope/history). With
--summary the listed records are aggregated instead. Use "history show ID"
for the full record of one query.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return usagef("--limit must be positive, got %d", limit)
			}
			records, err := a.service(cmd.Context(), nil).History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if summary {
				s := history.Summarize(records, top)
				return a.emit(s, func(p *ux.Printer) { renderSummary(p, s) })
			}
			return a.emit(records, func(p *ux.Printer) { renderHistory(p, records) })
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&limit, "limit", history.DefaultListLimit, "maximum records to list")
	flags.BoolVar(&summary, "summary", false, "aggregate the records")
	flags.IntVar(&top, "top", 5, "anchors to show in the summary")

	cmd.AddCommand(a.newHistoryShowCmd())
	return cmd
}

func (a *app) newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one recorded query",
		Long: `Show the parameters and outcome of one recorded query.

IDs are listed by "callscope history".`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.service(cmd.Context(), nil).HistoryRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(rec, func(p *ux.Printer) { renderRecord(p, rec) })
		},
	}
}
