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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/pkg/logging"
	"github.com/AleutianAI/callscope/pkg/ux"
	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/config"
	"github.com/AleutianAI/callscope/services/trace/extract"
	"github.com/AleutianAI/callscope/services/trace/history"
	"github.com/AleutianAI/callscope/services/trace/query"
	"github.com/AleutianAI/callscope/services/trace/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// globalOptions holds the persistent flags.
type globalOptions struct {
	root              string
	configPath        string
	json              bool
	includeExternal   bool
	noObjectCreations bool
	logLevel          string
	logFormat         string
	logDir            string
	historyDir        string
}

// app carries the state shared by all commands for one invocation.
type app struct {
	opts   globalOptions
	stdout io.Writer
	stderr io.Writer

	root   string
	cfg    config.Config
	logger *logging.Logger
	store  history.Store

	telemetryShutdown func(context.Context) error
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	a.close()
	if err != nil {
		a.reportError(err)
	}
	return exitCode(err)
}

func (a *app) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callscope",
		Short: "Explore who calls what in a Go project",
		Long: `callscope builds a call graph of a Go project and answers two questions:

  hierarchy  - which methods call, or are called by, a method
  path       - the shortest chain of calls from one method to another

Symbols can be given as a name ("Place"), a qualified name ("Service.Place",
"shop.Service.Place"), a canonical id ("M:example.com/shop.(Service).Place")
or a file and line inside the method ("order.go:42").

Examples:
  callscope hierarchy Service.Place --direction incoming --depth 3
  callscope path main.main store.Open
  callscope serve --port 8088`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usagef("unknown command %q for \"callscope\"", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.opts.root, "root", ".", "project root to analyze")
	flags.StringVar(&a.opts.configPath, "config", "", "config file (default: <root>/.callscope.yaml or ~/.callscope/config.yaml)")
	flags.BoolVar(&a.opts.json, "json", false, "print JSON even on a terminal")
	flags.BoolVar(&a.opts.includeExternal, "include-external", false, "keep calls to methods outside the project")
	flags.BoolVar(&a.opts.noObjectCreations, "no-object-creations", false, "drop constructor and composite literal calls")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.opts.logFormat, "log-format", "", "stderr log format: text or json")
	flags.StringVar(&a.opts.logDir, "log-dir", "", "also write daily JSON log files to this directory")
	flags.StringVar(&a.opts.historyDir, "history-dir", "", "query history directory; empty keeps history in memory")

	cmd.AddCommand(
		a.newHierarchyCmd(),
		a.newPathCmd(),
		a.newHistoryCmd(),
		a.newServeCmd(),
		a.newConfigCmd(),
	)
	return cmd
}

// setup loads configuration and applies flag overrides.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	root, err := filepath.Abs(a.opts.root)
	if err != nil {
		return usagef("resolve --root: %v", err)
	}
	a.root = root

	path := a.opts.configPath
	if path == "" {
		path = config.Discover(root)
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			return &usageError{err: err}
		}
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.opts.logFormat
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = a.opts.logDir
	}
	if flags.Changed("include-external") {
		cfg.Corpus.IncludeExternal = a.opts.includeExternal
	}
	if flags.Changed("no-object-creations") {
		cfg.Corpus.IncludeObjectCreations = !a.opts.noObjectCreations
	}
	if flags.Changed("history-dir") {
		cfg.History.Dir = a.opts.historyDir
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return &usageError{err: err}
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return usagef("log format must be text or json, got %q", cfg.LogFormat)
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		Service: "callscope",
		Output:  a.stderr,
		JSON:    cfg.LogFormat == "json",
		LogDir:  cfg.LogDir,
	})
	a.logger.Debug("configuration loaded",
		slog.String("config_file", path),
		slog.String("root", root),
	)
	return nil
}

// service builds the query service with the history store opened.
func (a *app) service(ctx context.Context, allowedRoots []string) *query.Service {
	opts := []query.Option{query.WithLogger(a.logger.Slog())}
	if store := a.openHistory(ctx); store != nil {
		opts = append(opts, query.WithHistory(store))
	}
	return query.NewService(query.ServiceConfig{
		Hierarchy:              a.cfg.Limits.Hierarchy,
		Path:                   a.cfg.Limits.Path,
		GraphEdges:             a.cfg.Limits.GraphEdges,
		IncludeExternal:        a.cfg.Corpus.IncludeExternal,
		IncludeObjectCreations: a.cfg.Corpus.IncludeObjectCreations,
		Corpus: extract.CorpusOptions{
			IncludeTests: a.cfg.Corpus.IncludeTests,
			Exclude:      a.cfg.Corpus.Exclude,
			MaxFileSize:  a.cfg.Corpus.MaxFileSize,
			Concurrency:  a.cfg.Corpus.Concurrency,
		},
		AllowedRoots: allowedRoots,
	}, opts...)
}

// openHistory opens the configured store. History is best effort: a store
// that cannot be opened is logged and skipped.
func (a *app) openHistory(ctx context.Context) history.Store {
	h := a.cfg.History
	if !h.Enabled {
		return nil
	}
	if h.Dir == "" {
		a.store = history.NewMemoryStore(h.MemoryCapacity)
		return a.store
	}

	store, err := history.OpenBadgerStore(h.Dir, a.logger.Slog())
	if err != nil {
		a.logger.Warn("query history unavailable",
			slog.String("dir", h.Dir),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if h.Retention > 0 {
		if _, err := store.Prune(ctx, time.Now().Add(-h.Retention)); err != nil {
			a.logger.Warn("history prune failed", slog.String("error", err.Error()))
		}
	}
	a.store = store
	return store
}

// initTelemetry starts the configured exporters. Metrics are exported only
// by long-running commands.
func (a *app) initTelemetry(ctx context.Context, withMetrics bool) error {
	tel := a.cfg.TelemetryOptions()
	tel.ServiceVersion = version
	tel.Output = a.stderr
	if !withMetrics {
		tel.MetricExporter = telemetry.ExporterNone
	}
	if tel.TraceExporter == telemetry.ExporterNone && tel.MetricExporter == telemetry.ExporterNone {
		return nil
	}
	shutdown, err := telemetry.Init(ctx, tel)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetryShutdown = shutdown
	return nil
}

func (a *app) close() {
	if a.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.telemetryShutdown(ctx); err != nil && a.logger != nil {
			a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
		cancel()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("history close failed", slog.String("error", err.Error()))
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// jsonOutput reports whether results are printed as JSON.
func (a *app) jsonOutput() bool {
	return a.opts.json || !ux.IsTerminal(a.stdout)
}

// emit prints v as indented JSON or through render.
func (a *app) emit(v any, render func(p *ux.Printer)) error {
	if a.jsonOutput() {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render(ux.NewPrinter(a.stdout))
	return nil
}

// reportError prints err to stderr with any candidate lists it carries.
func (a *app) reportError(err error) {
	p := ux.NewPrinter(a.stderr)
	p.Error(err.Error())

	var ambiguous *extract.AmbiguousSymbolError
	if errors.As(err, &ambiguous) {
		for _, m := range ambiguous.Matches {
			p.Bullet(1, fmt.Sprintf("%s  %s", m.ID, p.MutedText(fmt.Sprintf("%s:%d", m.FilePath, m.Line))))
		}
	}
	var ue *usageError
	if errors.As(err, &ue) {
		p.Muted("Run 'callscope --help' for usage.")
	}
}

// limitFlag returns the value of a limit flag. Unset flags return zero so
// the configured default applies; an explicit zero is rejected.
func limitFlag(cmd *cobra.Command, name, field string, value, lo, hi int) (int, error) {
	if cmd.Flags().Changed(name) && value == 0 {
		return 0, &callgraph.LimitError{Field: field, Value: value, Min: lo, Max: hi}
	}
	return value, nil
}
