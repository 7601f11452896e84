package webserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spboyer/evalforge/internal/auth"
	"github.com/spboyer/evalforge/internal/store"
	"github.com/spboyer/evalforge/internal/webapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, origins ...string) http.Handler {
	t.Helper()
	srv, err := New(Config{
		AllowedOrigins: origins,
		API: webapi.Deps{
			Store:    store.NewMemory(),
			Verifier: auth.NewStatic(auth.Credentials{}, ""),
		},
	})
	require.NoError(t, err)
	return srv.Handler()
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	srv, err := New(Config{API: webapi.Deps{Store: store.NewMemory()}})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8000", srv.Addr())
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]string
		err := json.Unmarshal(rec.Body.Bytes(), &body)
		require.NoError(t, err)
		assert.Equal(t, "ok", body["status"])
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	handler := newTestServer(t)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/kus", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `evalforge_http_requests_total{method="GET",route="GET /health",status_code="200"} 1`)
	assert.Contains(t, body, `evalforge_http_requests_total{method="GET",route="GET /kus",status_code="401"} 1`)
}

func TestEndToEndEvaluation(t *testing.T) {
	handler := newTestServer(t)
	token := "Bearer " + auth.DefaultAccessToken

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, post("/api/questions", `{"text":"Sample?","options":["yes","no"],"correct":"yes","ku":"Networking"}`).Code)
	require.Equal(t, http.StatusOK, post("/api/models", `{"name":"m1","type":"local"}`).Code)

	rec := post("/api/evaluations", `{"model_ids":[1],"question_scope":["Networking"],"question_count":1,"mode":"auto"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ev struct {
		ID     string `json:"evaluation_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "completed", ev.Status)

	metricsRec := httptest.NewRecorder()
	handler.ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsRec.Body.String(), `evalforge_evaluations_total{status="completed"} 1`)
	assert.Contains(t, metricsRec.Body.String(), `evalforge_answers_total{model="m1",outcome="correct"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestServer(t, "http://localhost:3000")

	req := httptest.NewRequest(http.MethodOptions, "/api/questions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, err := New(Config{API: webapi.Deps{Store: store.NewMemory()}})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close() //nolint:errcheck
	assert.Contains(t, string(body), `"status":"ok"`)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeListenerFailureShutsDown(t *testing.T) {
	srv, err := New(Config{API: webapi.Deps{Store: store.NewMemory()}})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background(), ln) }()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.NotErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after listener failure")
	}

	// The shutdown path ran even though the caller's context is still live.
	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln2.Close() //nolint:errcheck
	assert.ErrorIs(t, srv.srv.Serve(ln2), http.ErrServerClosed)
}
