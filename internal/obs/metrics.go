package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client-operation metrics. Every session or banking operation reports its
// outcome exactly once.
var (
	opTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafra_op_total",
			Help: "Total client operations by outcome.",
		},
		[]string{"op", "result"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wafra_op_duration_seconds",
			Help:    "Client operation latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	opTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wafra_op_timeouts_total",
			Help: "Operations that hit their local deadline.",
		},
		[]string{"op"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests (sandbox server).",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests (sandbox server).",
		},
		[]string{"method", "path", "status"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(opTotal, opDuration, opTimeouts, httpInFlight, httpRequestsTotal)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOp records one finished operation.
func ObserveOp(op, result string, elapsed time.Duration) {
	opTotal.WithLabelValues(op, result).Inc()
	opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if result == "timeout" {
		opTimeouts.WithLabelValues(op).Inc()
	}
}

// Instrument wraps an HTTP handler with request counting, used by the sandbox.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.code)).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
