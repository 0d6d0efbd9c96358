// Package responses implements the OpenAI Responses API family (gpt-5 models).
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/mandalnilabja/chatgate/internal/metrics"
	"github.com/mandalnilabja/chatgate/internal/provider"
	"github.com/mandalnilabja/chatgate/internal/provider/sse"
	"github.com/mandalnilabja/chatgate/internal/types"
)

const (
	providerName = "openai-responses"

	// FallbackModel is retried once when the requested model rejects image input.
	FallbackModel = "gpt-4o"

	defaultEffort    = "low"
	defaultVerbosity = "low"
	effortNone       = "none"
)

var visionFailure = regexp.MustCompile(`(?i)image|input_image|vision|unsupported|not supported|unrecognized`)

// Config configures the adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

// Adapter streams from the Responses API.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates the Responses API adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
	if a.client == nil {
		a.client = provider.NewHTTPClient()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Family returns provider.FamilyOpenAIResponses.
func (a *Adapter) Family() provider.Family {
	return provider.FamilyOpenAIResponses
}

type responsesRequest struct {
	Model        string       `json:"model"`
	Input        []inputItem  `json:"input"`
	Instructions string       `json:"instructions,omitempty"`
	Reasoning    *reasoning   `json:"reasoning,omitempty"`
	Text         *textOptions `json:"text,omitempty"`
	Tools        []tool       `json:"tools,omitempty"`
	Stream       bool         `json:"stream"`
}

type inputItem struct {
	Role    string      `json:"role"`
	Content []inputPart `json:"content"`
}

type inputPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

type reasoning struct {
	Effort string `json:"effort"`
}

type textOptions struct {
	Verbosity string `json:"verbosity"`
}

type tool struct {
	Type string `json:"type"`
}

type streamEvent struct {
	Type     string `json:"type"`
	Delta    string `json:"delta"`
	Message  string `json:"message"`
	Response *struct {
		Usage *usage `json:"usage"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type usage struct {
	InputTokens      *int `json:"input_tokens"`
	OutputTokens     *int `json:"output_tokens"`
	InputTextTokens  *int `json:"input_text_tokens"`
	OutputTextTokens *int `json:"output_text_tokens"`
}

// tokens returns the input and output counts, preferring the totals over the text-only fields.
func (u *usage) tokens() (int, int) {
	return firstOf(u.InputTokens, u.InputTextTokens), firstOf(u.OutputTokens, u.OutputTextTokens)
}

func firstOf(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func buildInput(messages []types.NormalizedMessage) []inputItem {
	items := make([]inputItem, 0, len(messages))
	for _, m := range messages {
		if m.Role != types.RoleUser {
			items = append(items, inputItem{
				Role:    types.RoleAssistant,
				Content: []inputPart{{Type: "output_text", Text: m.Text()}},
			})
			continue
		}
		parts := make([]inputPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case types.PartImage:
				parts = append(parts, inputPart{Type: "input_image", ImageURL: p.DataURL(), Detail: "auto"})
			case types.PartPDF:
				parts = append(parts, inputPart{Type: "input_file", Filename: "document.pdf", FileData: p.DataURL()})
			default:
				parts = append(parts, inputPart{Type: "input_text", Text: p.Text})
			}
		}
		items = append(items, inputItem{Role: types.RoleUser, Content: parts})
	}
	return items
}

func (a *Adapter) buildRequest(req *provider.Request, model string) responsesRequest {
	effort := req.Config.ReasoningEffort
	if effort == "" {
		effort = defaultEffort
	}
	verbosity := req.Config.Verbosity
	if verbosity == "" {
		verbosity = defaultVerbosity
	}

	body := responsesRequest{
		Model:        model,
		Input:        buildInput(req.Messages),
		Instructions: req.SystemPrompt,
		Text:         &textOptions{Verbosity: verbosity},
		Stream:       true,
	}
	if effort != effortNone {
		body.Reasoning = &reasoning{Effort: effort}
	}
	if req.Config.Grounding {
		body.Tools = []tool{{Type: "web_search"}}
	}
	return body
}

// Stream sends the request and yields its events. When the first attempt fails
// before any text because the model rejects image input, it is retried once on FallbackModel.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) iter.Seq[types.Event] {
	return func(yield func(types.Event) bool) {
		model := req.Model()
		emitted, ok, err := a.attempt(ctx, req, model, yield)
		if !ok || err == nil {
			return
		}

		if !emitted && a.shouldFallback(req, model, err) {
			a.logger.Warn("model rejected image input, retrying with fallback model",
				"model", model, "fallback", FallbackModel, "error", err)
			metrics.VisionFallbackTotal.WithLabelValues(req.ModelID).Inc()
			_, ok, err = a.attempt(ctx, req, FallbackModel, yield)
			if !ok || err == nil {
				return
			}
		}
		yield(types.ErrorEvent(err))
	}
}

func (a *Adapter) shouldFallback(req *provider.Request, model string, err error) bool {
	if model == FallbackModel || !req.HasImage() || errors.Is(err, context.Canceled) {
		return false
	}
	message := err.Error()
	var upErr *types.UpstreamError
	if errors.As(err, &upErr) {
		message = upErr.Message
	}
	return visionFailure.MatchString(message)
}

// attempt runs one upstream call. It yields text, usage and the finish event itself
// and returns a failure to the caller so it can decide whether to retry.
// ok is false once the consumer has stopped.
func (a *Adapter) attempt(ctx context.Context, req *provider.Request, model string, yield func(types.Event) bool) (emitted, ok bool, err error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.apiKey)
	header.Set("Accept", "text/event-stream")

	resp, err := provider.PostJSON(ctx, a.client, providerName, a.baseURL+"/responses", header, a.buildRequest(req, model))
	if err != nil {
		return false, true, err
	}
	defer resp.Body.Close()

	reader := sse.NewReader(resp.Body)
	for reader.Next() {
		var ev streamEvent
		if err := json.Unmarshal(reader.Data(), &ev); err != nil {
			a.logger.Debug("skipping malformed event", "error", err)
			continue
		}

		switch ev.Type {
		case "response.output_text.delta":
			if ev.Delta == "" {
				continue
			}
			emitted = true
			if !yield(types.TextDelta(ev.Delta)) {
				return emitted, false, nil
			}
		case "response.completed":
			if ev.Response != nil && ev.Response.Usage != nil {
				in, out := ev.Response.Usage.tokens()
				if !yield(types.UsageReport(in, out)) {
					return emitted, false, nil
				}
			}
		case "response.failed":
			message := "response failed"
			if ev.Response != nil && ev.Response.Error != nil {
				message = ev.Response.Error.Message
			}
			return emitted, true, &types.UpstreamError{Provider: providerName, Message: message}
		case "response.error", "error":
			message := ev.Message
			if ev.Error != nil && ev.Error.Message != "" {
				message = ev.Error.Message
			}
			if message == "" {
				message = "error"
			}
			return emitted, true, &types.UpstreamError{Provider: providerName, Message: message}
		}
	}
	if err := reader.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return emitted, true, &types.UpstreamError{Provider: providerName, Message: "stream interrupted", Err: err}
	}

	return emitted, yield(types.FinishEvent(types.FinishStop)), nil
}

var _ provider.Adapter = (*Adapter)(nil)
