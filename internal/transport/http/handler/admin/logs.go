package admin

import (
	"net/http"
	"strconv"

	"github.com/mandalnilabja/chatgate/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/chatgate/internal/types"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// GetRequestLogs handles GET /api/logs.
func (h *Handlers) GetRequestLogs(w http.ResponseWriter, r *http.Request) {
	filter := parseLogFilter(r)

	logs, err := h.Logs.GetRequestLogs(r.Context(), filter)
	if err != nil {
		shared.WriteJSONError(w, "Failed to get request logs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []*types.RequestLog{}
	}

	shared.WriteJSON(w, map[string]any{
		"logs":   logs,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}, http.StatusOK)
}

// parseLogFilter creates a LogFilter from query parameters.
func parseLogFilter(r *http.Request) types.LogFilter {
	filter := types.LogFilter{Limit: defaultLogLimit}

	q := r.URL.Query()
	if v := q.Get("model"); v != "" {
		filter.Model = v
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = min(limit, maxLogLimit)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	return filter
}
