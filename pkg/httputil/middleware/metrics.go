package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/edgeflare/pgbridge/pkg/metrics"
)

// Metrics records request counts and latencies in the pgbridge Prometheus
// collectors.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewResponseRecorder(w)

		next.ServeHTTP(rec, r)

		metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		metrics.Requests.WithLabelValues(r.Method, strconv.Itoa(rec.StatusCode)).Inc()
	})
}
