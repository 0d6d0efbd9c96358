// Package stream encodes normalized events into the line-framed chat protocol.
//
// Frames, one per line:
//
//	0:"<text>"                     text chunk
//	3:"<message>"                  error
//	e:{"finishReason":"stop"}      step finish
//	d:{"finishReason":"stop"}      message finish
package stream

import (
	"encoding/json"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Frame type tags.
const (
	TagText          = '0'
	TagError         = '3'
	TagStepFinish    = 'e'
	TagMessageFinish = 'd'
)

// ContentType is the response content type of an encoded stream.
const ContentType = "text/plain; charset=utf-8"

type finishPayload struct {
	FinishReason string `json:"finishReason"`
}

// Encode serializes one event into its frames.
// A usage event produces no frames; a finish event produces a step and a message frame.
func Encode(ev types.Event) []byte {
	switch ev.Kind {
	case types.EventText:
		return frame(TagText, ev.Text)
	case types.EventError:
		return frame(TagError, errorText(ev))
	case types.EventFinish:
		reason := ev.Reason
		if reason == "" {
			reason = types.FinishStop
		}
		p := finishPayload{FinishReason: reason}
		return append(frame(TagStepFinish, p), frame(TagMessageFinish, p)...)
	default:
		return nil
	}
}

// errorText prefers the client-facing text set on the event over the raw error.
func errorText(ev types.Event) string {
	if ev.Text != "" {
		return ev.Text
	}
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return "unknown error"
}

func frame(tag byte, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Only strings and finishPayload reach here.
		data = []byte(`""`)
	}
	out := make([]byte, 0, len(data)+3)
	out = append(out, tag, ':')
	out = append(out, data...)
	return append(out, '\n')
}
