package admin

import (
	"net/http"

	"github.com/mandalnilabja/chatgate/internal/transport/http/handler/shared"
)

// GetModels handles GET /api/models.
func (h *Handlers) GetModels(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, map[string]any{
		"models": h.Catalog.Models(),
	}, http.StatusOK)
}
