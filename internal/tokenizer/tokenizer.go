// Package tokenizer provides token counting for providers that do not report usage.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Tokenizer counts tokens for chat transcripts.
type Tokenizer interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) (int, error)

	// CountTranscript counts tokens of the flattened message transcript.
	CountTranscript(messages []types.NormalizedMessage) (int, error)
}

// EncodingCL100kBase is the tiktoken encoding used for every model.
const EncodingCL100kBase = "cl100k_base"

// TiktokenTokenizer implements Tokenizer with one tiktoken encoding.
// The encoding is loaded on first use.
type TiktokenTokenizer struct {
	encoding string
	load     func() (*tiktoken.Tiktoken, error)
}

// New creates a TiktokenTokenizer for the named encoding.
func New(encoding string) *TiktokenTokenizer {
	return &TiktokenTokenizer{
		encoding: encoding,
		load: sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
			return tiktoken.GetEncoding(encoding)
		}),
	}
}

// Encoding returns the encoding name.
func (t *TiktokenTokenizer) Encoding() string { return t.encoding }

// CountTokens counts tokens in a text string.
func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	enc, err := t.load()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
