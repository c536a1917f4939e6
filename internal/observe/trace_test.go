package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test and returns its exporter.
func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestStartSpan_RecordsThroughGlobalProvider(t *testing.T) {
	exp := withTestTracer(t)

	ctx, span := StartSpan(context.Background(), "session.connect")
	if CorrelationID(ctx) == "" {
		t.Error("no trace ID on the span context")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "session.connect" {
		t.Fatalf("spans = %+v, want one session.connect span", spans)
	}
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}

	withTestTracer(t)
	ctx, span := StartSpan(context.Background(), "capability.dispatch")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("trace ID length = %d, want 32 hex chars", len(cid))
	}
	for _, c := range cid {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("trace ID %q contains non-hex character %q", cid, c)
		}
	}
}

func TestLogger_CarriesSpanIdentity(t *testing.T) {
	withTestTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := StartSpan(context.Background(), "live.send")
	defer span.End()

	Logger(ctx).Info("tool result sent")
	if out := buf.String(); !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing span identity: %s", out)
	}

	// Without a span the logger stays plain.
	buf.Reset()
	Logger(context.Background()).Info("engine idle")
	if out := buf.String(); strings.Contains(out, "trace_id=") {
		t.Errorf("span-less log line carries a trace_id: %s", out)
	}
}
