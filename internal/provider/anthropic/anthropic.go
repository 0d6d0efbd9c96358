// Package anthropic implements the Claude Messages API families.
package anthropic

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mandalnilabja/chatgate/internal/preprocess"
	"github.com/mandalnilabja/chatgate/internal/provider"
	"github.com/mandalnilabja/chatgate/internal/provider/sse"
	"github.com/mandalnilabja/chatgate/internal/types"
)

const (
	providerName = "anthropic"
	apiVersion   = "2023-06-01"

	// DefaultSystemPrompt is sent when the request has none.
	DefaultSystemPrompt = "You are a helpful assistant."

	// Sonnet45Model is the pinned upstream model of the sonnet-4-5 family.
	Sonnet45Model = "claude-sonnet-4-5-20250929"
)

// profile holds the per-family defaults.
type profile struct {
	family        provider.Family
	upstreamModel string
	maxTokens     int
	temperature   *float64
}

var (
	generic = profile{
		family:    provider.FamilyAnthropic,
		maxTokens: 4096,
	}
	sonnet45Temperature = 0.6
	sonnet45            = profile{
		family:        provider.FamilyAnthropicSonnet45,
		upstreamModel: Sonnet45Model,
		maxTokens:     64000,
		temperature:   &sonnet45Temperature,
	}
)

// Config configures the adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

// Adapter streams from the Messages API.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	profile profile
}

// New creates the adapter for the generic claude family.
func New(cfg Config) *Adapter {
	return newAdapter(cfg, generic)
}

// NewSonnet45 creates the adapter for claude-sonnet-4-5.
func NewSonnet45(cfg Config) *Adapter {
	return newAdapter(cfg, sonnet45)
}

func newAdapter(cfg Config, p profile) *Adapter {
	a := &Adapter{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.Client,
		logger:  cfg.Logger,
		profile: p,
	}
	if a.client == nil {
		a.client = provider.NewHTTPClient()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Family returns the family this adapter was created for.
func (a *Adapter) Family() provider.Family {
	return a.profile.family
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type block struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *source `json:"source,omitempty"`
}

type source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// imageMediaType picks the media type Anthropic expects for an image:
// the payload signature first, then the declared type, then png.
func imageMediaType(p types.Part) string {
	switch sniffed := preprocess.SniffBase64(p.Data); sniffed {
	case preprocess.MIMEJPEG, preprocess.MIMEPNG, preprocess.MIMEGIF, preprocess.MIMEWebP:
		return sniffed
	}
	switch p.MIMEType {
	case preprocess.MIMEJPEG, preprocess.MIMEPNG, preprocess.MIMEGIF, preprocess.MIMEWebP:
		return p.MIMEType
	}
	return preprocess.MIMEPNG
}

func buildMessages(messages []types.NormalizedMessage) []message {
	out := make([]message, 0, len(messages))
	for _, m := range messages {
		blocks := make([]block, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case types.PartImage:
				blocks = append(blocks, block{Type: "image", Source: &source{
					Type: "base64", MediaType: imageMediaType(p), Data: p.Data,
				}})
			case types.PartPDF:
				blocks = append(blocks, block{Type: "document", Source: &source{
					Type: "base64", MediaType: preprocess.MIMEPDF, Data: p.Data,
				}})
			default:
				// The API rejects empty text blocks.
				if p.Text == "" {
					continue
				}
				blocks = append(blocks, block{Type: "text", Text: p.Text})
			}
		}
		if len(blocks) == 0 {
			blocks = append(blocks, block{Type: "text", Text: " "})
		}
		out = append(out, message{Role: m.Role, Content: blocks})
	}
	return out
}

func (a *Adapter) buildRequest(req *provider.Request) messagesRequest {
	model := req.UpstreamModel
	if model == "" {
		model = a.profile.upstreamModel
	}
	if model == "" {
		model = req.ModelID
	}

	maxTokens := a.profile.maxTokens
	if req.Config.MaxTokens != nil {
		maxTokens = *req.Config.MaxTokens
	}
	temperature := req.Config.Temperature
	if temperature == nil {
		temperature = a.profile.temperature
	}
	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	return messagesRequest{
		Model:       model,
		System:      system,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      true,
	}
}

// Stream sends the request and yields text deltas, the usage from
// message_start and message_delta, and a terminal event.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) iter.Seq[types.Event] {
	return func(yield func(types.Event) bool) {
		header := http.Header{}
		header.Set("x-api-key", a.apiKey)
		header.Set("anthropic-version", apiVersion)
		header.Set("Accept", "text/event-stream")

		resp, err := provider.PostJSON(ctx, a.client, providerName, a.baseURL+"/v1/messages", header, a.buildRequest(req))
		if err != nil {
			yield(types.ErrorEvent(err))
			return
		}
		defer resp.Body.Close()

		var (
			inputTokens, outputTokens int
			started                   bool
		)
		reader := sse.NewReader(resp.Body)
		for reader.Next() {
			var ev streamEvent
			if err := json.Unmarshal(reader.Data(), &ev); err != nil {
				a.logger.Debug("skipping malformed event", "error", err)
				continue
			}

			switch ev.Type {
			case "message_start":
				started = true
				if ev.Message != nil {
					inputTokens = ev.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if ev.Delta == nil || ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
					continue
				}
				if !yield(types.TextDelta(ev.Delta.Text)) {
					return
				}
			case "message_delta":
				if ev.Usage != nil {
					outputTokens = ev.Usage.OutputTokens
				}
			case "error":
				message := "stream error"
				if ev.Error != nil {
					message = ev.Error.Message
				}
				yield(types.ErrorEvent(&types.UpstreamError{Provider: providerName, Message: message}))
				return
			}
		}
		if err := reader.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			yield(types.ErrorEvent(&types.UpstreamError{Provider: providerName, Message: "stream interrupted", Err: err}))
			return
		}

		if started && !yield(types.UsageReport(inputTokens, outputTokens)) {
			return
		}
		yield(types.FinishEvent(types.FinishStop))
	}
}

var _ provider.Adapter = (*Adapter)(nil)
