// Package provider defines the adapter contract shared by the upstream LLM families
// and the dispatch table that maps model ids onto them.
package provider

import (
	"context"
	"iter"
	"net/http"
	"strings"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Family identifies an adapter implementation.
type Family string

// Supported families.
const (
	FamilyOpenAIChat        Family = "openai-chat"
	FamilyOpenAIResponses   Family = "openai-responses"
	FamilyAnthropic         Family = "anthropic"
	FamilyAnthropicSonnet45 Family = "anthropic-sonnet45"
	FamilyGemini            Family = "gemini"
	FamilyGemini3           Family = "gemini3"
)

// Adapter streams a chat completion from one upstream family.
//
// Every sequence yields zero or more text deltas, at most one usage report
// and exactly one terminal event (error or finish). The upstream call is
// bound to ctx, so cancelling it aborts the request.
type Adapter interface {
	Family() Family
	Stream(ctx context.Context, req *Request) iter.Seq[types.Event]
}

// Preparer is implemented by adapters that adjust or reject a request before streaming.
// A returned error is reported to the client as a 400.
type Preparer interface {
	Prepare(req *Request) error
}

// Request is the provider-neutral form of a chat request.
type Request struct {
	ModelID       string
	UpstreamModel string // catalog override; adapters fall back to ModelID
	Messages      []types.NormalizedMessage
	SystemPrompt  string

	// LastUserPrompt is the final message text as sent by the client,
	// before any file preamble was added.
	LastUserPrompt string

	Config GenerationConfig
}

// GenerationConfig holds the optional generation knobs. Nil and empty values
// mean "use the family default".
type GenerationConfig struct {
	Temperature     *float64
	MaxTokens       *int
	ReasoningEffort string
	Verbosity       string
	ThinkingLevel   string
	Grounding       bool
}

// Model returns the model name to send upstream.
func (r *Request) Model() string {
	if r.UpstreamModel != "" {
		return r.UpstreamModel
	}
	return r.ModelID
}

// HasImage reports whether any message carries an image part.
func (r *Request) HasImage() bool {
	for _, m := range r.Messages {
		if m.HasImage() {
			return true
		}
	}
	return false
}

// Resolve maps a model id to its family. The order of the checks matters:
// gpt-5 before the other gpt models, the sonnet-4-5 literal before the claude
// prefix, gemini-3 before gemini.
func Resolve(modelID string) (Family, error) {
	switch {
	case strings.HasPrefix(modelID, "gpt-5"):
		return FamilyOpenAIResponses, nil
	case strings.HasPrefix(modelID, "gpt"), strings.HasPrefix(modelID, "o"):
		return FamilyOpenAIChat, nil
	case modelID == "claude-sonnet-4-5":
		return FamilyAnthropicSonnet45, nil
	case strings.HasPrefix(modelID, "claude"):
		return FamilyAnthropic, nil
	case strings.HasPrefix(modelID, "gemini-3"):
		return FamilyGemini3, nil
	case strings.HasPrefix(modelID, "gemini"):
		return FamilyGemini, nil
	}
	return "", types.NewUnsupportedModel(modelID)
}

// ResolveName is Resolve for callers that work with plain strings, such as catalog validation.
func ResolveName(modelID string) (string, error) {
	family, err := Resolve(modelID)
	return string(family), err
}

// Registry holds one adapter per family.
type Registry struct {
	adapters map[Family]Adapter
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Family]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Family()] = a
	}
	return r
}

// Get returns the adapter for a family.
func (r *Registry) Get(family Family) (Adapter, bool) {
	a, ok := r.adapters[family]
	return a, ok
}

// NewHTTPClient returns the client used for upstream calls.
// Compression is disabled so streamed bodies are delivered as they arrive.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			DisableCompression: true,
		},
	}
}
