package stream

import (
	"encoding/json"
	"fmt"
)

// Frame is one decoded line of an encoded stream.
type Frame struct {
	Tag          byte
	Text         string // text and error frames
	FinishReason string // finish frames
}

// Decode parses a single frame. The trailing newline is optional.
func Decode(line []byte) (Frame, error) {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if len(line) < 3 || line[1] != ':' {
		return Frame{}, fmt.Errorf("stream: malformed frame %q", line)
	}

	f := Frame{Tag: line[0]}
	payload := line[2:]
	switch f.Tag {
	case TagText, TagError:
		if err := json.Unmarshal(payload, &f.Text); err != nil {
			return Frame{}, fmt.Errorf("stream: decode %c frame: %w", f.Tag, err)
		}
	case TagStepFinish, TagMessageFinish:
		var p finishPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Frame{}, fmt.Errorf("stream: decode %c frame: %w", f.Tag, err)
		}
		f.FinishReason = p.FinishReason
	default:
		return Frame{}, fmt.Errorf("stream: unknown frame tag %q", f.Tag)
	}
	return f, nil
}
