package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total number of RPC procedure calls.",
		},
		[]string{"procedure", "code"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Read-through cache lookups by result (hit, miss, error).",
		},
		[]string{"cache", "result"},
	)

	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Total number of third-party API calls.",
		},
		[]string{"provider", "status"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Duration of third-party API calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"provider"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "messaging",
			Name:      "messages_total",
			Help:      "Outbound WhatsApp and email messages by outcome.",
		},
		[]string{"channel", "success"},
	)

	ordersTransitioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions.",
		},
		[]string{"status"},
	)

	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "notify",
			Name:      "websocket_clients",
			Help:      "Open order feed connections.",
		},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		rpcCalls,
		cacheLookups,
		upstreamCalls,
		upstreamDuration,
		messagesSent,
		ordersTransitioned,
		websocketClients,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRPC counts one procedure call by result code ("OK" on success).
func RecordRPC(procedure, code string) {
	if code == "" {
		code = "OK"
	}
	rpcCalls.WithLabelValues(procedure, code).Inc()
}

// RecordCache counts a cache lookup. result is hit, miss or error.
func RecordCache(cache, result string) {
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordUpstream records one third-party API attempt.
func RecordUpstream(provider, status string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	upstreamCalls.WithLabelValues(provider, status).Inc()
	upstreamDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordMessage records an outbound message outcome.
func RecordMessage(channel string, success bool) {
	messagesSent.WithLabelValues(channel, strconv.FormatBool(success)).Inc()
}

// RecordOrderStatus counts orders entering status.
func RecordOrderStatus(status string, n int) {
	ordersTransitioned.WithLabelValues(status).Add(float64(n))
}

// SetWebsocketClients sets the number of open order feed connections.
func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}

// RecordJobRun records metrics for a scheduled job run.
func RecordJobRun(job string, duration time.Duration, success bool) {
	if job == "" {
		job = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// canonicalPath collapses ids out of the path so label cardinality stays
// bounded: /rpc/<procedure> keeps the procedure, everything else keeps its
// first segment.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "rpc":
		if len(parts) > 1 {
			return "/rpc/" + parts[1]
		}
		return "/rpc"
	case "api", "webhooks":
		if len(parts) > 1 {
			return "/" + parts[0] + "/" + parts[1]
		}
	}
	return "/" + parts[0]
}
