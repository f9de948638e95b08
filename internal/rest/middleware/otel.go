// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenflow/internal/appcontext"
	"github.com/pbinitiative/zenflow/internal/config"
	otelint "github.com/pbinitiative/zenflow/internal/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type respWriterWrapper struct {
	http.ResponseWriter

	written     int64
	statusCode  int
	wroteHeader bool
}

func (w *respWriterWrapper) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *respWriterWrapper) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Opentelemetry returns middleware that will trace and meter incoming requests.
// Spans are named after the matched chi route pattern.
func Opentelemetry(conf config.Config) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := getTransferHeadersCtx(r.Context(), r, conf.Tracing.TransferHeaders)
			span := trace.SpanFromContext(ctx)
			span.SetAttributes(getTransferHeaderAttributes(r, conf.Tracing.TransferHeaders)...)
			if requestId, ok := appcontext.RequestIdFromContext(ctx); ok {
				span.SetAttributes(attribute.String(otelint.AttributeRequestId, requestId))
			}

			rww := &respWriterWrapper{ResponseWriter: w}
			startTime := time.Now()
			next.ServeHTTP(rww, r.WithContext(ctx))
			if rww.statusCode == 0 {
				rww.statusCode = http.StatusOK
			}

			routePattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				routePattern = rctx.RoutePattern()
			}
			span.SetName(r.Method + " " + routePattern)
			span.SetAttributes(semconv.HTTPRouteKey.String(routePattern))
			if rww.written > 0 {
				span.SetAttributes(otelint.WroteBytesKey.Int64(rww.written))
			}
			setAfterServeMetrics(routePattern, r, rww, startTime)
		})
		return otelhttp.NewHandler(inner, "request",
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithServerName(conf.Tracing.Name),
		)
	}
}

func setAfterServeMetrics(routePattern string, r *http.Request, rww *respWriterWrapper, startTime time.Time) {
	tags := metric.WithAttributes(
		attribute.String("path", routePattern),
		attribute.String("method", r.Method),
		attribute.Int("status", rww.statusCode),
	)
	otelint.RequestTotal.Add(r.Context(), 1)
	otelint.RequestUriTotal.Add(r.Context(), 1, tags)
	if r.ContentLength >= 0 {
		otelint.RequestBodySize.Add(r.Context(), float64(r.ContentLength), tags)
	}
	if rww.written > 0 {
		otelint.ResponseBodySize.Add(r.Context(), float64(rww.written), tags)
	}
	otelint.RequestDuration.Record(r.Context(), float64(time.Since(startTime).Milliseconds()), tags)
}

func getTransferHeadersCtx(ctx context.Context, r *http.Request, transferHeaders []string) context.Context {
	for _, header := range transferHeaders {
		ctx = context.WithValue(ctx, otelint.TransferHeaderKey(header), r.Header.Get(header))
	}
	return ctx
}

func getTransferHeaderAttributes(r *http.Request, transferHeaders []string) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, len(transferHeaders))
	for i, header := range transferHeaders {
		attributes[i] = attribute.String(header, r.Header.Get(header))
	}
	return attributes
}
