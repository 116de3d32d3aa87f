package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "answerlake_build_info",
			Help: "Build information of the AnswerLake API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerlake_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "answerlake_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "answerlake_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerlake_analyses_total",
			Help: "Total number of analysis requests by final status",
		},
		[]string{"status"},
	)

	AnalysisAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "answerlake_analysis_attempts",
			Help:    "Generation attempts consumed per analysis, by stage",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
		},
		[]string{"stage"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answerlake_analysis_duration_seconds",
			Help:    "End to end analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	GenerationTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "answerlake_generation_calls_total",
			Help: "Total model generation calls issued across all analyses",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}
