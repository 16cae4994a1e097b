package api

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/trajectory-simulator/internal/logging"
	"github.com/signalsfoundry/trajectory-simulator/internal/observability"
)

const (
	tracerName      = "github.com/signalsfoundry/trajectory-simulator/internal/api"
	requestIDHeader = "X-Request-Id"
)

// requestID ensures every request carries an ID, taken from X-Request-Id
// when the client sends one, and attaches a request-scoped logger. The ID
// doubles as the run ID of single-run endpoints.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRunID(ctx, incoming)
		}
		ctx, id := logging.EnsureRunID(ctx)
		w.Header().Set(requestIDHeader, id)

		reqLog := s.log.With(
			logging.String("request_id", id),
			logging.String("method", r.Method),
			logging.String("route", observability.RouteTemplate(r)),
		)
		ctx = logging.ContextWithLogger(ctx, reqLog)

		start := time.Now()
		rw := &responseRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		reqLog.Debug(ctx, "request handled",
			logging.Int("status", rw.code),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

// tracing starts a server span per request, continuing any trace propagated
// in the request headers.
func (s *Server) tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		route := observability.RouteTemplate(r)

		ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", r.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("request_id", logging.RunIDFromContext(ctx)),
			),
		)
		defer span.End()

		rw := &responseRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rw.code))
		if rw.code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.code))
		}
	})
}

type responseRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *responseRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
