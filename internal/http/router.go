package httpx

import (
	"net/http"

	"log/slog"

	"realtime-scene/internal/app"
	"realtime-scene/internal/store"
	"realtime-scene/internal/ws"
	"realtime-scene/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, db *store.Postgres) http.Handler {
	mw := NewMiddleware(cfg)
	api := &ProjectsAPI{Store: db, Log: logger}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Project persistence (save/load/list, decoupled from the live path)
	mux.Handle("POST /api/save_project", http.HandlerFunc(api.Save))
	mux.Handle("GET /api/load_project", http.HandlerFunc(api.Load))
	mux.Handle("GET /api/list_projects", http.HandlerFunc(api.List))

	// Viewer assets
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
