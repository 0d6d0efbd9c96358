package admin

import (
	"net/http"
	"sort"

	"github.com/mandalnilabja/chatgate/internal/transport/http/handler/shared"
)

// usageResponse is the body of GET /api/usage. Limit is null for models without a limit.
type usageResponse struct {
	TotalCost float64  `json:"total_cost"`
	Limit     *float64 `json:"limit"`
}

// dailyEntry is one day of the current month.
type dailyEntry struct {
	Date         string  `json:"date"`
	CostUSD      float64 `json:"cost_usd"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
}

// GetUsage handles GET /api/usage?modelId=.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("modelId")
	if modelID == "" {
		shared.WriteJSONError(w, "modelId is required", http.StatusBadRequest)
		return
	}

	rec, err := h.Usage.Current(r.Context(), modelID)
	if err != nil {
		shared.WriteJSONError(w, "Failed to get usage: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := usageResponse{TotalCost: rec.TotalCostUSD}
	if limit, ok := h.Catalog.MonthlyLimit(modelID); ok {
		resp.Limit = &limit
	}
	shared.WriteJSON(w, resp, http.StatusOK)
}

// GetDailyUsage handles GET /api/usage/daily?modelId=.
// Days are returned in ascending order.
func (h *Handlers) GetDailyUsage(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("modelId")
	if modelID == "" {
		shared.WriteJSONError(w, "modelId is required", http.StatusBadRequest)
		return
	}

	rec, err := h.Usage.Current(r.Context(), modelID)
	if err != nil {
		shared.WriteJSONError(w, "Failed to get daily usage: "+err.Error(), http.StatusInternalServerError)
		return
	}

	days := make([]string, 0, len(rec.DailyCosts))
	for day := range rec.DailyCosts {
		days = append(days, day)
	}
	sort.Strings(days)

	daily := make([]dailyEntry, 0, len(days))
	for _, day := range days {
		daily = append(daily, dailyEntry{
			Date:         day,
			CostUSD:      rec.DailyCosts[day],
			InputTokens:  rec.DailyInputTokens[day],
			OutputTokens: rec.DailyOutputTokens[day],
		})
	}

	shared.WriteJSON(w, map[string]any{
		"model_id":            modelID,
		"year_month":          rec.YearMonth,
		"total_cost":          rec.TotalCostUSD,
		"total_input_tokens":  rec.TotalInputTokens,
		"total_output_tokens": rec.TotalOutputTokens,
		"last_updated":        rec.LastUpdated,
		"daily_usage":         daily,
	}, http.StatusOK)
}
