// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for callscope.
//
// Init installs the global TracerProvider and MeterProvider. Packages then
// use otel.Tracer and otel.Meter directly; the call graph engine registers
// its own instruments under "callscope.callgraph".
//
// # Trace Backend (default: none)
//
// "otlp" exports over gRPC to OTLPEndpoint, "stdout" pretty-prints spans.
//
// # Metrics Backend (default: prometheus)
//
// "prometheus" registers with a private Prometheus registry and exposes
// MetricsHandler for the /metrics route. "stdout" prints periodically.
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - CALLSCOPE_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
package telemetry
