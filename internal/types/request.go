package types

// Temperature presets accepted in ChatRequest.TemperaturePreset.
const (
	PresetPrecise  = "precise"
	PresetBalanced = "balanced"
	PresetCreative = "creative"
)

// presetTemperatures maps presets to numeric temperatures.
var presetTemperatures = map[string]float64{
	PresetPrecise:  0.2,
	PresetBalanced: 0.6,
	PresetCreative: 1.0,
}

// PresetTemperature returns the temperature for a preset.
// ok is false for an empty or unknown preset.
func PresetTemperature(preset string) (float64, bool) {
	t, ok := presetTemperatures[preset]
	return t, ok
}

// ChatRequest is the inbound body of POST /chat.
type ChatRequest struct {
	Messages     []Message `json:"messages"`
	ModelID      string    `json:"modelId"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`

	// Generation knobs
	TemperaturePreset string `json:"temperaturePreset,omitempty"`
	MaxTokens         *int   `json:"maxTokens,omitempty"`

	// Attachments
	ImageURIs    []string      `json:"imageUris,omitempty"`
	PDFURIs      []string      `json:"pdfUris,omitempty"`
	FileContents []FileContent `json:"fileContents,omitempty"`

	// Provider-specific flags
	ReasoningEffort        string `json:"gpt5ReasoningEffort,omitempty"` // none, minimal, low, medium, high
	Verbosity              string `json:"gpt5Verbosity,omitempty"`       // low, medium, high
	GPT5GroundingEnabled   bool   `json:"gpt5GroundingEnabled,omitempty"`
	GeminiGroundingEnabled bool   `json:"geminiGroundingEnabled,omitempty"`
	ThinkingLevel          string `json:"gemini3ThinkingLevel,omitempty"` // low, high
}

// FileContent is text already extracted from an uploaded non-image file.
type FileContent struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Attachments groups the attachment references of a request.
type Attachments struct {
	ImageURIs    []string
	PDFURIs      []string
	FileContents []FileContent
}

// Attachments returns the attachment references of the request.
func (r *ChatRequest) Attachments() Attachments {
	return Attachments{
		ImageURIs:    r.ImageURIs,
		PDFURIs:      r.PDFURIs,
		FileContents: r.FileContents,
	}
}

// Validate checks the required fields.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 || r.ModelID == "" {
		return NewInvalidRequest("messages and modelId are required")
	}
	for _, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return NewInvalidRequest("unsupported message role: " + m.Role)
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return NewInvalidRequest("maxTokens must be positive")
	}
	return nil
}

// LastMessageText returns the text of the final message as sent by the client.
func (r *ChatRequest) LastMessageText() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content.String()
}
