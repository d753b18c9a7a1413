package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwrk-planet/messenger/pkg/logger"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestContextHandler_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "demo",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	slog.InfoContext(ctx, "with trace")
	span.End()

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON, got: %s, err=%v", buf.String(), err)
	}
	if m["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("trace_id mismatch in log: %v", m)
	}
	if m["span_id"] == nil {
		t.Fatalf("span_id missing in log: %v", m)
	}
}

func TestWith_PropagatesContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Output:  &buf,
	})

	ctx := logger.With(context.Background(), slog.String("req_id", "r-1"))
	ctx = logger.With(ctx, slog.Int64("user_id", 7))
	slog.InfoContext(ctx, "handled")

	out := buf.String()
	if !strings.Contains(out, "req_id=r-1") || !strings.Contains(out, "user_id=7") {
		t.Fatalf("context attrs missing: %s", out)
	}
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	if attrs := logger.AttrsFromCtx(context.Background()); attrs != nil {
		t.Fatalf("expected no attrs without span, got %v", attrs)
	}
}
