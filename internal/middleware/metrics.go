package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/internal/metrics"
)

// StatusRecorder captures the response status code. Only the first
// WriteHeader call takes effect.
type StatusRecorder struct {
	http.ResponseWriter
	StatusCode int
	written    bool
}

// NewStatusRecorder creates a StatusRecorder defaulting to 200 OK
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader records code and forwards it once
func (r *StatusRecorder) WriteHeader(code int) {
	if !r.written {
		r.StatusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

// Write forwards b, sending an implicit 200 first if needed
func (r *StatusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Instrument records request metrics and writes one access log line per
// request.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := metrics.TrackInFlight()
		defer done()

		rec := NewStatusRecorder(w)
		start := time.Now()

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		path := routeLabel(r.URL.Path)
		metrics.ObserveHTTP(r.Method, path, rec.StatusCode, elapsed)

		if path == "/metrics" || path == "/health" {
			return
		}
		logger.Info(r.Context(), "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// routeLabel keeps metric label cardinality bounded
func routeLabel(path string) string {
	switch {
	case path == "/health", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/wallets/sign/"):
		return "/wallets/sign/{variant}"
	default:
		return "other"
	}
}
