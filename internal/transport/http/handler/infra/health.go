package infra

import (
	"context"
	"net/http"
	"time"

	"github.com/mandalnilabja/chatgate/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/chatgate/internal/version"
)

const pingTimeout = 2 * time.Second

// RootStatus returns JSON status and version information at /.
func (h *Handlers) RootStatus(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, map[string]any{
		"name":    "chatgate",
		"version": version.Version,
		"status":  "running",
		"chat":    "/chat",
		"api":     "/api",
		"metrics": "/metrics",
	}, http.StatusOK)
}

// HealthCheck returns the application health, the usage store reachability
// and attachment cache statistics.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":         "active",
		"app":            "chatgate",
		"uptime_seconds": int64(time.Since(h.StartTime).Seconds()),
	}
	status := http.StatusOK

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			response["status"] = "degraded"
			response["store_error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	if h.Cache != nil && h.Cache.Metrics != nil {
		m := h.Cache.Metrics
		response["attachment_cache"] = map[string]any{
			"hits":     m.Hits(),
			"misses":   m.Misses(),
			"ratio":    m.Ratio(),
			"cost_mb":  float64(m.CostAdded()-m.CostEvicted()) / (1 << 20),
			"keys":     m.KeysAdded() - m.KeysEvicted(),
			"rejected": m.SetsRejected(),
		}
	}

	shared.WriteJSON(w, response, status)
}
