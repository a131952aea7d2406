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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/callscope/pkg/logging"
	"github.com/AleutianAI/callscope/services/trace/api"
	"github.com/AleutianAI/callscope/services/trace/telemetry"
)

func (a *app) newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve call graph queries over HTTP",
		Long: `Start the HTTP API.

Endpoints:
  POST /v1/callgraph/hierarchy
  POST /v1/callgraph/path
  GET  /v1/callgraph/history
  GET  /v1/health
  GET  /metrics (Prometheus exporter only)

Requests name their own project_root. Set server.allowed_roots in the config
file to restrict which directories may be analyzed.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				if port < 1 || port > 65535 {
					return usagef("--port must be between 1 and 65535, got %d", port)
				}
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&host, "host", "", "listen host (default from config, 127.0.0.1)")
	flags.IntVar(&port, "port", 0, "listen port (default from config, 8088)")
	return cmd
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (a *app) serve(ctx context.Context) error {
	if err := a.initTelemetry(ctx, true); err != nil {
		return err
	}
	if level, _ := logging.ParseLevel(a.cfg.LogLevel); level != logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("callscope.http"))
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}

	logger := a.logger.Slog()
	svc := a.service(ctx, a.cfg.Server.AllowedRoots)
	router := api.NewRouter(api.NewHandlers(svc, logger, version), api.RouterConfig{
		ServiceName:    "callscope",
		RateLimit:      a.cfg.Server.RateLimit,
		RateBurst:      a.cfg.Server.RateBurst,
		Metrics:        metrics,
		MetricsHandler: telemetry.MetricsHandler(),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("callscope server listening",
		slog.String("addr", srv.Addr),
		slog.Int("allowed_roots", len(a.cfg.Server.AllowedRoots)),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
