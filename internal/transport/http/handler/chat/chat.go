// Package chat serves the streaming chat endpoint.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// MaxBodyBytes bounds the request body. Attachments travel as URIs, so the body is mostly text.
const MaxBodyBytes = 32 << 20

// Dispatcher runs one chat request against the response writer.
type Dispatcher interface {
	Handle(ctx context.Context, req *types.ChatRequest, w http.ResponseWriter) error
}

// Handlers holds the dependencies for the chat handler.
type Handlers struct {
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// New creates the chat handlers.
func New(d Dispatcher, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{Dispatcher: d, Logger: logger}
}

// Chat handles POST /chat. Errors before the stream starts are JSON bodies
// with a 4xx/5xx status; later errors are reported inside the stream.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			types.WriteError(w, &types.GatewayError{
				Kind:    types.ErrInvalidRequest,
				Message: "request body too large",
				Status:  http.StatusRequestEntityTooLarge,
			})
			return
		}
		types.WriteError(w, types.NewInvalidRequest("invalid request body: "+err.Error()))
		return
	}

	if err := h.Dispatcher.Handle(r.Context(), &req, w); err != nil {
		if types.StatusFor(err) >= http.StatusInternalServerError {
			h.Logger.Error("chat request failed", "model", req.ModelID, "error", err)
		}
		types.WriteError(w, err)
	}
}
