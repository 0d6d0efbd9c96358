// Package types provides the request, message, event and usage types shared by the gateway.
package types

import (
	"encoding/json"
	"errors"
	"strings"
)

// Role constants for message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part type constants
const (
	PartText  = "text"
	PartImage = "image"
	PartPDF   = "pdf"
)

// Message is a chat message as received from the client.
// Content can be a string or an array of ContentPart.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content represents message content that can be a string or array of parts.
type Content struct {
	Text  string        // Simple string content
	Parts []ContentPart // Multimodal content parts
}

// ContentPart is a single part of multimodal content.
// Image and PDF parts carry either a blob URI or a data: URL.
type ContentPart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
	PDF   string `json:"pdf,omitempty"`
}

// MarshalJSON outputs a string if no parts are set, an array otherwise.
func (c Content) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts both string and array formats.
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Parts = nil
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		c.Parts = parts
		c.Text = ""
		return nil
	}

	if string(data) == "null" {
		return nil
	}
	return errors.New("content must be a string or an array of parts")
}

// String returns the text content, joining text parts with newlines if multimodal.
func (c Content) String() string {
	if len(c.Parts) == 0 {
		return c.Text
	}
	texts := make([]string, 0, len(c.Parts))
	for _, part := range c.Parts {
		if part.Type == PartText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// NewTextMessage creates a simple text message.
func NewTextMessage(role, content string) Message {
	return Message{
		Role:    role,
		Content: Content{Text: content},
	}
}

// NormalizedMessage is a message after attachment resolution.
// Media parts hold inline base64 data with a detected MIME type; never a URI.
type NormalizedMessage struct {
	Role  string
	Parts []Part
}

// Part is a provider-neutral content part.
type Part struct {
	Type     string // PartText, PartImage or PartPDF
	Text     string
	MIMEType string
	Data     string // base64, no data: prefix
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// DataURL renders a media part as a data: URL.
func (p Part) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + p.Data
}

// Text joins all text parts of the message with newlines.
func (m NormalizedMessage) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, part := range m.Parts {
		if part.Type == PartText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasImage reports whether any part is an image.
func (m NormalizedMessage) HasImage() bool {
	for _, part := range m.Parts {
		if part.Type == PartImage {
			return true
		}
	}
	return false
}
