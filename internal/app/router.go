package app

import (
	"log/slog"
	"net/http"

	"github.com/mandalnilabja/chatgate/internal/transport/http/handler"
	"github.com/mandalnilabja/chatgate/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures the HTTP router behavior.
type RouterOptions struct {
	Logger *slog.Logger
	// Metrics serves the Prometheus handler at /metrics; nil uses the default registry.
	Metrics http.Handler
}

// NewRouter creates and configures the HTTP router with all application routes.
// Returns an http.Handler with middleware applied.
func NewRouter(repo *handler.Repo, opts *RouterOptions) http.Handler {
	if opts == nil {
		opts = &RouterOptions{}
	}
	mux := http.NewServeMux()

	// Chat stream
	mux.HandleFunc("POST /chat", repo.Chat.Chat)
	mux.HandleFunc("POST /api/chat", repo.Chat.Chat)

	// Usage, catalog and logs
	mux.HandleFunc("GET /api/usage", repo.Admin.GetUsage)
	mux.HandleFunc("GET /api/usage/daily", repo.Admin.GetDailyUsage)
	mux.HandleFunc("GET /api/models", repo.Admin.GetModels)
	mux.HandleFunc("GET /api/logs", repo.Admin.GetRequestLogs)

	// Infra
	mux.HandleFunc("GET /api/health", repo.Infra.HealthCheck)
	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	mux.Handle("GET /metrics", metricsHandler)

	// Root returns JSON status
	mux.HandleFunc("GET /{$}", repo.Infra.RootStatus)

	// Apply middleware chain (order: outer to inner)
	var h http.Handler = mux

	if opts.Logger != nil {
		h = middleware.RequestLogger(opts.Logger)(h)
	}
	h = middleware.RequestID(h)
	h = middleware.CORS(h)

	return h
}
