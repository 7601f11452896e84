package webapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/spboyer/evalforge/internal/auth"
	"github.com/spboyer/evalforge/internal/metrics"
)

// requireAuth rejects requests without a bearer token the verifier accepts.
func (h *Handlers) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.verifier.Verify(auth.BearerToken(r)); err != nil {
			h.logger.Debug("rejected request", "method", r.Method, "path", r.URL.Path, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="evalforge"`)
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// ObserveMiddleware logs each request and records it in rec, labelled by the
// matched mux pattern. rec may be nil.
func ObserveMiddleware(next http.Handler, logger *slog.Logger, rec *metrics.Recorder) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(sr, r)

		status := sr.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		rec.HTTPRequest(r.Method, route, status, elapsed)

		attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "duration", elapsed}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", attrs...)
		} else {
			logger.Debug("request", attrs...)
		}
	})
}

// GzipMiddleware compresses responses for clients that accept gzip.
func GzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
