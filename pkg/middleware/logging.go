// Package middleware provides HTTP middleware shared by all handlers.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/metrics"
)

// RequestLogger returns middleware that logs each request and records its
// latency. A nil logger disables logging but still records metrics.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, strconv.Itoa(wrapped.status)).
				Observe(elapsed.Seconds())

			if logger == nil {
				return
			}
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.status),
				zap.Duration("duration", elapsed),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// statusRecorder captures the response status and suppresses duplicate
// WriteHeader calls so a buggy handler doesn't trigger the net/http
// "superfluous WriteHeader" warning.
type statusRecorder struct {
	http.ResponseWriter
	status        int
	headerWritten bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.headerWritten {
		return
	}
	sr.status = code
	sr.headerWritten = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.headerWritten {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}
