// Package sse reads the server-sent event streams returned by the upstream providers.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

const (
	initialBuffer = 64 * 1024
	maxLine       = 1024 * 1024
)

var doneMarker = []byte("[DONE]")

// Reader yields the data payload of each event in an SSE stream.
// Multi-line data fields are joined with "\n". The OpenAI "[DONE]" marker ends the stream.
type Reader struct {
	scanner *bufio.Scanner
	event   string
	data    []byte
	err     error
	done    bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialBuffer), maxLine)
	return &Reader{scanner: scanner}
}

// Next advances to the next event with a data payload.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}
	r.event = ""
	var data [][]byte

	for r.scanner.Scan() {
		line := r.scanner.Bytes()

		if len(line) == 0 {
			if len(data) == 0 {
				r.event = ""
				continue
			}
			return r.dispatch(data)
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			r.event = string(value)
		case "data":
			data = append(data, bytes.Clone(value))
		}
	}

	r.err = r.scanner.Err()
	if len(data) > 0 && r.err == nil {
		return r.dispatch(data)
	}
	r.done = true
	return false
}

func (r *Reader) dispatch(data [][]byte) bool {
	payload := bytes.Join(data, []byte("\n"))
	if bytes.Equal(payload, doneMarker) {
		r.done = true
		return false
	}
	r.data = payload
	return true
}

// Event returns the event name of the current event, or "".
func (r *Reader) Event() string {
	return r.event
}

// Data returns the data payload of the current event.
func (r *Reader) Data() []byte {
	return r.data
}

// Err returns the first read error, if any.
func (r *Reader) Err() error {
	return r.err
}
