package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindRequest = "request"
	kindStream  = "stream"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests served, by route and caller kind",
		},
		[]string{"method", "route", "status", "caller"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Latency of non-streaming HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "caller"},
	)

	httpInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_http_in_flight",
			Help: "Requests currently being served, event streams counted apart",
		},
		[]string{"kind"},
	)
)

// PrometheusMetrics counts requests per route pattern, so session and
// product ids never become label values. An event stream lives as long as
// the page does; it is counted but kept out of the latency histogram.
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			kind := kindRequest
			if isEventStream(r) {
				kind = kindStream
			}
			inFlight := httpInFlight.WithLabelValues(kind)
			inFlight.Inc()
			defer inFlight.Dec()

			sw := wrapWriter(w)
			next.ServeHTTP(sw, r)

			route, caller := routePattern(r), callerKind(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status), caller).Inc()
			if kind == kindRequest {
				httpRequestDuration.WithLabelValues(r.Method, route, caller).Observe(time.Since(start).Seconds())
			}
		})
	}
}
