// Package telemetry unifies OpenTelemetry tracing (Google Cloud) and Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
)

// --- CUSTOM METRIC DEFINITIONS ---

var (
	webhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of processed deliveries, labeled by platform and status.",
		},
		[]string{"platform", "status"},
	)

	webhookRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_security_rejections_total",
			Help: "Total number of deliveries rejected by the security gate, labeled by reason.",
		},
		[]string{"reason"},
	)

	webhookDeliveryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Histogram of end-to-end delivery processing latencies, labeled by platform.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"platform"},
	)

	webhookPostsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_posts_upserted_total",
			Help: "Total number of canonical posts written, labeled by platform.",
		},
		[]string{"platform"},
	)

	webhookReplayRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_replay_runs_total",
			Help: "Total number of replay consumer passes, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	webhookHealthLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_health_level",
			Help: "Current health level (0 healthy, 1 degraded, 2 unhealthy, 3 critical).",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

var (
	initOnce  sync.Once
	traceProv *sdktrace.TracerProvider
	meterProv *metric.MeterProvider
	initErr   error
)

// --- INITIALIZATION ---

// InitTelemetry sets up Tracing (Google Cloud) and Metrics (Prometheus).
func InitTelemetry(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, *metric.MeterProvider, error) {
	initOnce.Do(func() {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(cfg.Telemetry.ServiceName),
				semconv.ServiceVersion(cfg.Telemetry.Version),
				semconv.CloudRegion(cfg.Telemetry.Region),
			),
		)
		if err != nil {
			initErr = fmt.Errorf("failed to create resource: %w", err)
			return
		}

		var traceExporter sdktrace.SpanExporter
		if cfg.Telemetry.ProjectID != "" {
			traceExporter, err = texporter.New(texporter.WithProjectID(cfg.Telemetry.ProjectID))
			if err != nil {
				initErr = fmt.Errorf("failed to create google trace exporter: %w", err)
				return
			}
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		}
		if traceExporter != nil {
			opts = append(opts, sdktrace.WithBatcher(traceExporter))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		)

		// Bridge OTel metrics onto the same registry promauto uses so both
		// appear on one /metrics endpoint.
		promExporter, err := otelprom.New(
			otelprom.WithRegisterer(prometheus.DefaultRegisterer),
		)
		if err != nil {
			initErr = fmt.Errorf("failed to create prometheus exporter: %w", err)
			return
		}

		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(promExporter),
		)
		otel.SetMeterProvider(mp)
		traceProv = tp
		meterProv = mp
	})
	return traceProv, meterProv, initErr
}

// --- HTTP HANDLER & MIDDLEWARE ---

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// --- HELPER FUNCTIONS ---

// ObserveDelivery records metrics for one processed delivery.
func ObserveDelivery(platform string, status string, duration time.Duration) {
	webhookDeliveriesTotal.WithLabelValues(platform, status).Inc()
	webhookDeliveryDurationSeconds.WithLabelValues(platform).Observe(duration.Seconds())
}

// ObserveRejection records a security gate rejection.
func ObserveRejection(reason string) {
	webhookRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObservePostsUpserted records canonical posts written for a platform.
func ObservePostsUpserted(platform string, count int) {
	if count > 0 {
		webhookPostsUpsertedTotal.WithLabelValues(platform).Add(float64(count))
	}
}

// ObserveReplayRun records one replay consumer pass.
func ObserveReplayRun(outcome string) {
	webhookReplayRunsTotal.WithLabelValues(outcome).Inc()
}

// SetHealthLevel publishes the monitor's current health level.
func SetHealthLevel(level int) {
	webhookHealthLevel.Set(float64(level))
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
