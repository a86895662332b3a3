package obs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/obs"
)

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("grocer", []float64{10, 1}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
	}

	require.Equal(t, float64(2), testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/orders/{id}", "204")))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("grocer", nil, registry)
	second := obs.NewHTTPMetrics("grocer", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestDomainMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("grocer", registry)

	before := testutil.ToFloat64(obs.CheckoutQuotesTotal.WithLabelValues("preview", "ok"))
	obs.ObserveQuote("preview", "ok")
	require.Equal(t, before+1, testutil.ToFloat64(obs.CheckoutQuotesTotal.WithLabelValues("preview", "ok")))

	obs.ObserveOrderTotal(61.96)
	require.NotZero(t, testutil.CollectAndCount(obs.OrderTotalGBP))
}

func TestRoutePattern(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/somewhere", nil)
	require.Equal(t, "unmatched", obs.RoutePattern(req))

	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/orders/{id}"))
	require.Equal(t, "/api/v1/orders/{id}", obs.RoutePattern(req))
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 10, 2.5}, obs.ParseBucketsCSV("5, 10,,abc,-1,2.5"))
	require.Nil(t, obs.ParseBucketsCSV(""))
}

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithCustomerID(req.Context(), "cust-1")))
		})
	})
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Post("/api/v1/checkout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "/api/v1/checkout", line["route"])
	require.Equal(t, "cust-1", line["customer_id"])
	require.Equal(t, "198.51.100.7", line["client_ip"])
	require.EqualValues(t, 429, line["status"])
}

func TestTracingMiddlewareContinuesIncomingTrace(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{ServiceName: "grocer-test", Exporter: "none"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	var seen trace.SpanContext
	r := chi.NewRouter()
	r.Use(obs.TracingMiddleware)
	r.Get("/api/v1/products", func(_ http.ResponseWriter, req *http.Request) {
		seen = trace.SpanContextFromContext(req.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, seen.IsValid())
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen.TraceID().String())
}

func TestNewTracerProviderRejectsUnknownExporter(t *testing.T) {
	_, err := obs.NewTracerProvider(context.Background(), obs.TracingConfig{Exporter: "zipkin"})
	require.Error(t, err)
}
