package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the gateway error taxonomy.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnsupportedModel   = errors.New("unsupported model")
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
	ErrUpstream           = errors.New("upstream provider error")
	ErrAttachment         = errors.New("attachment resolution error")
)

// GatewayError is an error with a client-facing message and an HTTP status.
type GatewayError struct {
	Kind    error
	Message string
	Status  int
}

func (e *GatewayError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match the sentinel kind.
func (e *GatewayError) Unwrap() error {
	return e.Kind
}

// NewInvalidRequest creates a 400 invalid request error.
func NewInvalidRequest(message string) *GatewayError {
	return &GatewayError{Kind: ErrInvalidRequest, Message: message, Status: http.StatusBadRequest}
}

// NewUnsupportedModel creates a 400 unsupported model error.
func NewUnsupportedModel(modelID string) *GatewayError {
	return &GatewayError{
		Kind:    ErrUnsupportedModel,
		Message: fmt.Sprintf("Model %s not supported yet.", modelID),
		Status:  http.StatusBadRequest,
	}
}

// NewUsageLimitExceeded creates a 429 error naming the model and its monthly limit.
func NewUsageLimitExceeded(modelID string, limitUSD float64) *GatewayError {
	return &GatewayError{
		Kind:    ErrUsageLimitExceeded,
		Message: fmt.Sprintf("Monthly usage limit of %g for %s has been reached.", limitUSD, modelID),
		Status:  http.StatusTooManyRequests,
	}
}

// UpstreamError is a failed call to a provider API.
type UpstreamError struct {
	Provider string
	Status   int // 0 when the failure happened before a response was received
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Is matches ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusFor maps an error to the HTTP status used before streaming begins.
func StatusFor(err error) int {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Status
	}
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnsupportedModel):
		return http.StatusBadRequest
	case errors.Is(err, ErrUsageLimitExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON body of a non-streaming error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes err as {"error": "..."} with the status from StatusFor.
// Unexpected errors are reported with their own message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if message == "" {
		message = "An internal server error occurred."
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: message})
}
