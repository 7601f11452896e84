package webapi

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spboyer/evalforge/internal/metrics"
	"github.com/spboyer/evalforge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveMiddlewareRecordsPattern(t *testing.T) {
	rec := metrics.NewRecorder()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(Deps{Store: store.NewMemory(), Logger: logger}))
	h := ObserveMiddleware(mux, logger, rec)

	for _, path := range []string{"/questions/1", "/questions/2"} {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(rec.HTTPRequestCounter.WithLabelValues(http.MethodDelete, "DELETE /questions/{id}", "401"))
	assert.Equal(t, 2.0, got)
	assert.Contains(t, logs.String(), "status=401")
}

func TestObserveMiddlewareUnmatchedAndErrors(t *testing.T) {
	rec := metrics.NewRecorder()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	boom := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusInternalServerError, "boom")
	})
	ObserveMiddleware(boom, logger, rec).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.HTTPRequestCounter.WithLabelValues(http.MethodGet, "unmatched", "500")))
	assert.Contains(t, logs.String(), "request failed")
}

func TestObserveMiddlewareNilRecorder(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	out := httptest.NewRecorder()
	ObserveMiddleware(ok, nil, nil).ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, out.Code)
}

func TestGzipMiddleware(t *testing.T) {
	payload := strings.Repeat(`{"text":"Which port does HTTPS use?"}`, 200)
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}))

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)

	require.Equal(t, "gzip", out.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(out.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))

	plain := httptest.NewRecorder()
	h.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/questions", nil))
	assert.Empty(t, plain.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, plain.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantHeader string
		wantCode   int
	}{
		{"no allowed origins", nil, "http://evil.test", http.MethodGet, "", http.StatusOK},
		{"allowed origin", []string{"http://localhost:3000"}, "http://localhost:3000", http.MethodGet, "http://localhost:3000", http.StatusOK},
		{"disallowed origin", []string{"http://localhost:3000"}, "http://evil.test", http.MethodGet, "", http.StatusOK},
		{"wildcard", []string{"*"}, "http://any.test", http.MethodGet, "http://any.test", http.StatusOK},
		{"preflight", []string{"http://localhost:3000"}, "http://localhost:3000", http.MethodOptions, "http://localhost:3000", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/questions", nil)
			req.Header.Set("Origin", tt.origin)
			out := httptest.NewRecorder()
			CORSMiddleware(inner, tt.allowed...).ServeHTTP(out, req)

			if out.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, out.Code)
			}
			if got := out.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.wantHeader, got)
			}
		})
	}
}
