// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "failing")
	RecordError(span, errors.New("boom"))
	span.End()

	_, ok := tp.Tracer("test").Start(context.Background(), "fine")
	RecordError(ok, nil)
	ok.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("failing span status = %v, want Error", spans[0].Status().Code)
	}
	if len(spans[0].Events()) != 1 {
		t.Errorf("failing span events = %d, want 1", len(spans[0].Events()))
	}
	if spans[1].Status().Code != codes.Unset {
		t.Errorf("fine span status = %v, want Unset", spans[1].Status().Code)
	}
}

func TestTraceID_NoSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID = %q, want empty", got)
	}
}
