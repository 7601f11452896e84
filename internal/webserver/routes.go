package webserver

import (
	"net/http"

	"github.com/spboyer/evalforge/internal/webapi"
)

// newHandler assembles the API routes, /metrics and the middleware chain.
// Requests pass through observation, CORS and gzip before reaching the mux.
func newHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	webapi.RegisterRoutes(mux, webapi.NewHandlers(cfg.API))
	mux.Handle("GET /metrics", cfg.Metrics.Handler())

	var h http.Handler = mux
	h = webapi.GzipMiddleware(h)
	h = webapi.CORSMiddleware(h, cfg.AllowedOrigins...)
	h = webapi.ObserveMiddleware(h, cfg.Logger, cfg.Metrics)
	return h
}
