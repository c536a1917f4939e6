package observe

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusTap wraps [http.ResponseWriter] to remember the status code the
// downstream handler wrote.
type statusTap struct {
	http.ResponseWriter
	status int
}

func (t *statusTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the engine's sidecar mux (/metrics and the health
// probes): it joins any incoming W3C trace context, wraps the request in a
// server span, echoes the trace ID back as X-Correlation-ID, and records
// the latency histogram tagged with method, path, and status.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			tap := &statusTap{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(tap, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", r.URL.Path),
					attribute.Int("status", tap.status),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(tap.status))

			// The sidecar is scraped continuously; keep request logs quiet.
			Logger(ctx).Debug("http request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", tap.status,
				"elapsed", elapsed,
			)
		})
	}
}
