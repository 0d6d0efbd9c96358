package types

// EventKind tags a normalized stream event.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventUsage
	EventError
	EventFinish
)

// Finish reasons carried by EventFinish.
const (
	FinishStop  = "stop"
	FinishError = "error"
)

// Event is a normalized event produced by a provider adapter.
// A well-formed sequence is zero or more EventText, at most one EventUsage,
// and exactly one terminal EventFinish or EventError.
type Event struct {
	Kind         EventKind
	Text         string // EventText
	InputTokens  int    // EventUsage
	OutputTokens int    // EventUsage
	Err          error  // EventError
	Reason       string // EventFinish
}

// TextDelta creates a text event.
func TextDelta(text string) Event {
	return Event{Kind: EventText, Text: text}
}

// UsageReport creates a usage event.
func UsageReport(inputTokens, outputTokens int) Event {
	return Event{Kind: EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
}

// ErrorEvent creates a terminal error event.
func ErrorEvent(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// FinishEvent creates a terminal finish event.
func FinishEvent(reason string) Event {
	if reason == "" {
		reason = FinishStop
	}
	return Event{Kind: EventFinish, Reason: reason}
}

// IsTerminal reports whether no event may follow e.
func (e Event) IsTerminal() bool {
	return e.Kind == EventFinish || e.Kind == EventError
}

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventUsage:
		return "usage"
	case EventError:
		return "error"
	case EventFinish:
		return "finish"
	default:
		return "unknown"
	}
}
