package tokenizer

import (
	"strings"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Transcript flattens messages into the text that is counted as input:
// text parts joined with "\n" within a message, messages joined with "\n".
// Media parts and the system prompt are not part of the transcript.
func Transcript(messages []types.NormalizedMessage) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, msg.Text())
	}
	return strings.Join(lines, "\n")
}

// CountTranscript counts tokens of the flattened message transcript.
func (t *TiktokenTokenizer) CountTranscript(messages []types.NormalizedMessage) (int, error) {
	return t.CountTokens(Transcript(messages))
}
