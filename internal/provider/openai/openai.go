// Package openai implements the chat-completions family (gpt-4.x, o-series).
//
// The upstream stream carries no usage here, so token counts are computed
// locally with the cl100k_base tokenizer over the input transcript and the
// accumulated output.
package openai

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mandalnilabja/chatgate/internal/provider"
	"github.com/mandalnilabja/chatgate/internal/provider/sse"
	"github.com/mandalnilabja/chatgate/internal/tokenizer"
	"github.com/mandalnilabja/chatgate/internal/types"
)

const (
	providerName = "openai"
	pdfFilename  = "document.pdf"
)

// Config configures the adapter.
type Config struct {
	APIKey    string
	BaseURL   string
	Client    *http.Client
	Tokenizer tokenizer.Tokenizer
	Logger    *slog.Logger
}

// Adapter streams chat completions.
type Adapter struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	tokenizer tokenizer.Tokenizer
	logger    *slog.Logger
}

// New creates the chat-completions adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    cfg.Client,
		tokenizer: cfg.Tokenizer,
		logger:    cfg.Logger,
	}
	if a.client == nil {
		a.client = provider.NewHTTPClient()
	}
	if a.tokenizer == nil {
		a.tokenizer = tokenizer.New(tokenizer.EncodingCL100kBase)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Family returns provider.FamilyOpenAIChat.
func (a *Adapter) Family() provider.Family {
	return provider.FamilyOpenAIChat
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildMessages converts normalized messages into chat-completions messages.
// User parts keep their media; assistant turns are flattened to text.
func buildMessages(systemPrompt string, messages []types.NormalizedMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		if m.Role != types.RoleUser {
			out = append(out, chatMessage{Role: types.RoleAssistant, Content: m.Text()})
			continue
		}
		if len(m.Parts) == 1 && m.Parts[0].Type == types.PartText {
			out = append(out, chatMessage{Role: types.RoleUser, Content: m.Parts[0].Text})
			continue
		}
		parts := make([]contentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case types.PartImage:
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: p.DataURL()}})
			case types.PartPDF:
				parts = append(parts, contentPart{Type: "file", File: &filePart{Filename: pdfFilename, FileData: p.DataURL()}})
			default:
				text := p.Text
				parts = append(parts, contentPart{Type: "text", Text: &text})
			}
		}
		out = append(out, chatMessage{Role: types.RoleUser, Content: parts})
	}
	return out
}

// Stream sends the request and yields text deltas, a tokenizer-computed usage
// report and a terminal event.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) iter.Seq[types.Event] {
	return func(yield func(types.Event) bool) {
		body := chatRequest{
			Model:       req.Model(),
			Messages:    buildMessages(req.SystemPrompt, req.Messages),
			Temperature: req.Config.Temperature,
			MaxTokens:   req.Config.MaxTokens,
			Stream:      true,
		}
		header := http.Header{}
		header.Set("Authorization", "Bearer "+a.apiKey)
		header.Set("Accept", "text/event-stream")

		resp, err := provider.PostJSON(ctx, a.client, providerName, a.baseURL+"/chat/completions", header, body)
		if err != nil {
			yield(types.ErrorEvent(err))
			return
		}
		defer resp.Body.Close()

		var output strings.Builder
		reader := sse.NewReader(resp.Body)
		for reader.Next() {
			var c chunk
			if err := json.Unmarshal(reader.Data(), &c); err != nil {
				a.logger.Debug("skipping malformed chunk", "error", err)
				continue
			}
			if c.Error != nil {
				yield(types.ErrorEvent(&types.UpstreamError{Provider: providerName, Message: c.Error.Message}))
				return
			}
			for _, choice := range c.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				output.WriteString(choice.Delta.Content)
				if !yield(types.TextDelta(choice.Delta.Content)) {
					return
				}
			}
		}
		if err := reader.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			yield(types.ErrorEvent(&types.UpstreamError{Provider: providerName, Message: "stream interrupted", Err: err}))
			return
		}

		if in, out, err := a.countUsage(req, output.String()); err != nil {
			a.logger.Warn("token counting failed, usage not reported", "model", req.ModelID, "error", err)
		} else if !yield(types.UsageReport(in, out)) {
			return
		}
		yield(types.FinishEvent(types.FinishStop))
	}
}

func (a *Adapter) countUsage(req *provider.Request, output string) (int, int, error) {
	in, err := a.tokenizer.CountTranscript(req.Messages)
	if err != nil {
		return 0, 0, err
	}
	out, err := a.tokenizer.CountTokens(output)
	if err != nil {
		return 0, 0, err
	}
	return in, out, nil
}

var _ provider.Adapter = (*Adapter)(nil)
