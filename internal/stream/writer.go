package stream

import (
	"errors"
	"io"
	"net/http"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// Ordering errors returned by Writer.Write.
var (
	ErrAfterTerminal  = errors.New("stream: event after terminal event")
	ErrDuplicateUsage = errors.New("stream: more than one usage report")
)

// Writer writes encoded events to a response in order and flushes after each one.
// It rejects events that break the ordering invariant: at most one usage report
// and nothing after the terminal event. An error event is followed by finish
// frames carrying reason "error".
type Writer struct {
	w       io.Writer
	flusher http.Flusher

	usageSeen bool
	done      bool
}

// NewWriter wraps w. Flushing is enabled when w implements http.Flusher.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Write encodes ev and writes it immediately.
func (sw *Writer) Write(ev types.Event) error {
	if sw.done {
		return ErrAfterTerminal
	}
	if ev.Kind == types.EventUsage {
		if sw.usageSeen {
			return ErrDuplicateUsage
		}
		sw.usageSeen = true
		return nil
	}

	data := Encode(ev)
	if ev.Kind == types.EventError {
		data = append(data, Encode(types.FinishEvent(types.FinishError))...)
	}
	if ev.IsTerminal() {
		sw.done = true
	}
	if len(data) == 0 {
		return nil
	}

	if _, err := sw.w.Write(data); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// Done reports whether a terminal event has been written.
func (sw *Writer) Done() bool {
	return sw.done
}
