package middleware

import (
	"net/http"
	"time"

	"github.com/Harshitk-cp/dissent/internal/metrics"
)

// Metrics records every request's method, status class and latency.
func Metrics(c *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			c.HTTPRequest(r.Method, rw.statusCode, time.Since(start))
		})
	}
}
