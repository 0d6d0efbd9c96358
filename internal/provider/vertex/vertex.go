// Package vertex implements the Gemini families on Vertex AI.
package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/mandalnilabja/chatgate/internal/provider"
	"github.com/mandalnilabja/chatgate/internal/provider/sse"
	"github.com/mandalnilabja/chatgate/internal/types"
)

const (
	providerName   = "vertex"
	globalLocation = "global"

	defaultMaxTokens     = 65536
	defaultThinkingLevel = "high"
)

// ErrNoCredentials is returned when no token source is configured.
var ErrNoCredentials = errors.New("vertex credentials not configured")

// profile holds the per-family request shape.
type profile struct {
	family      provider.Family
	temperature float64
	global      bool // call the global endpoint instead of the regional one
	thinking    bool // send thinkingConfig and the google_search tool
	adjustments bool // apply the length heuristic and the token floor
}

var (
	standard = profile{family: provider.FamilyGemini, temperature: 0.6, adjustments: true}
	gemini3  = profile{family: provider.FamilyGemini3, temperature: 1.0, global: true, thinking: true}
)

// Config configures the adapter.
type Config struct {
	ProjectID   string
	Location    string
	TokenSource oauth2.TokenSource

	// BaseURL replaces the scheme and host of the endpoint.
	BaseURL string

	Client *http.Client
	Logger *slog.Logger
}

// Adapter streams from streamGenerateContent.
type Adapter struct {
	projectID string
	location  string
	baseURL   string
	client    *http.Client
	logger    *slog.Logger
	profile   profile
}

// New creates the adapter for the gemini-2.x family.
func New(cfg Config) *Adapter {
	return newAdapter(cfg, standard)
}

// NewGemini3 creates the adapter for gemini-3 models.
func NewGemini3(cfg Config) *Adapter {
	return newAdapter(cfg, gemini3)
}

func newAdapter(cfg Config, p profile) *Adapter {
	a := &Adapter{
		projectID: cfg.ProjectID,
		location:  cfg.Location,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		logger:    cfg.Logger,
		profile:   p,
	}
	if p.global {
		a.location = globalLocation
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	base := cfg.Client
	if base == nil {
		base = provider.NewHTTPClient()
	}
	if cfg.TokenSource != nil {
		a.client = &http.Client{
			Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource), Base: base.Transport},
			Timeout:   base.Timeout,
		}
	}
	return a
}

// Family returns the family this adapter was created for.
func (a *Adapter) Family() provider.Family {
	return a.profile.family
}

// Prepare applies the length heuristic and the minimum token floor to the standard family.
func (a *Adapter) Prepare(req *provider.Request) error {
	if !a.profile.adjustments {
		return nil
	}
	adj, err := AdjustForLength(req.LastUserPrompt, req.SystemPrompt, req.Config.MaxTokens)
	if err != nil {
		return err
	}
	req.SystemPrompt = adj.SystemPrompt
	req.Config.MaxTokens = applyFloor(adj.MaxTokens)
	return nil
}

func (a *Adapter) endpoint(model string) string {
	base := a.baseURL
	if base == "" {
		if a.location == globalLocation {
			base = "https://aiplatform.googleapis.com"
		} else {
			base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", a.location)
		}
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:streamGenerateContent?alt=sse",
		base, a.projectID, a.location, model)
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig  `json:"generationConfig"`
	Tools             []json.RawMessage `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64         `json:"temperature"`
	MaxOutputTokens int             `json:"maxOutputTokens"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingLevel string `json:"thinkingLevel"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

var (
	searchRetrievalTool = json.RawMessage(`{"googleSearchRetrieval":{}}`)
	googleSearchTool    = json.RawMessage(`{"google_search":{}}`)
)

func buildContents(messages []types.NormalizedMessage) []content {
	out := make([]content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role != types.RoleUser {
			role = "model"
		}
		parts := make([]part, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case types.PartImage, types.PartPDF:
				parts = append(parts, part{InlineData: &inlineData{MIMEType: p.MIMEType, Data: p.Data}})
			default:
				if p.Text != "" {
					parts = append(parts, part{Text: p.Text})
				}
			}
		}
		if len(parts) == 0 {
			parts = append(parts, part{Text: " "})
		}
		out = append(out, content{Role: role, Parts: parts})
	}
	return out
}

func (a *Adapter) buildRequest(req *provider.Request) generateRequest {
	cfg := generationConfig{
		Temperature:     a.profile.temperature,
		MaxOutputTokens: defaultMaxTokens,
	}
	if req.Config.Temperature != nil {
		cfg.Temperature = *req.Config.Temperature
	}
	if req.Config.MaxTokens != nil {
		cfg.MaxOutputTokens = *req.Config.MaxTokens
	}

	body := generateRequest{Contents: buildContents(req.Messages)}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}

	if a.profile.thinking {
		level := req.Config.ThinkingLevel
		if level == "" {
			level = defaultThinkingLevel
		}
		cfg.ThinkingConfig = &thinkingConfig{ThinkingLevel: level}
	}
	if req.Config.Grounding {
		if a.profile.thinking {
			body.Tools = []json.RawMessage{googleSearchTool}
		} else {
			body.Tools = []json.RawMessage{searchRetrievalTool}
		}
	}

	body.GenerationConfig = cfg
	return body
}

// Stream sends the request and yields text deltas (thought parts are skipped),
// the last usageMetadata seen and a terminal event.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) iter.Seq[types.Event] {
	return func(yield func(types.Event) bool) {
		if a.client == nil {
			yield(types.ErrorEvent(&types.UpstreamError{Provider: providerName, Message: ErrNoCredentials.Error(), Err: ErrNoCredentials}))
			return
		}

		header := http.Header{}
		header.Set("Accept", "text/event-stream")

		resp, err := provider.PostJSON(ctx, a.client, providerName, a.endpoint(req.Model()), header, a.buildRequest(req))
		if err != nil {
			yield(types.ErrorEvent(err))
			return
		}
		defer resp.Body.Close()

		var inputTokens, outputTokens int
		reader := sse.NewReader(resp.Body)
		for reader.Next() {
			var chunk generateResponse
			if err := json.Unmarshal(reader.Data(), &chunk); err != nil {
				a.logger.Debug("skipping malformed chunk", "error", err)
				continue
			}
			if chunk.Error != nil {
				yield(types.ErrorEvent(&types.UpstreamError{Provider: providerName, Message: chunk.Error.Message}))
				return
			}
			if chunk.UsageMetadata != nil {
				inputTokens = chunk.UsageMetadata.PromptTokenCount
				outputTokens = chunk.UsageMetadata.CandidatesTokenCount
			}
			if len(chunk.Candidates) == 0 {
				continue
			}
			for _, p := range chunk.Candidates[0].Content.Parts {
				if p.Thought || p.Text == "" {
					continue
				}
				if !yield(types.TextDelta(p.Text)) {
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

		if (inputTokens > 0 || outputTokens > 0) && !yield(types.UsageReport(inputTokens, outputTokens)) {
			return
		}
		yield(types.FinishEvent(types.FinishStop))
	}
}

var (
	_ provider.Adapter  = (*Adapter)(nil)
	_ provider.Preparer = (*Adapter)(nil)
)
