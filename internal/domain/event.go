package domain

// EventType enumerates the stream events surfaced for one attempt.
type EventType string

const (
	EventProgress       EventType = "progress"
	EventLog            EventType = "log"
	EventDone           EventType = "done"
	EventError          EventType = "error"
	EventTransportError EventType = "transport_error"
)

// FailureKind is the structured failure category a job boundary may attach to
// an error. An empty kind means the boundary did not say.
type FailureKind string

const (
	FailureKindUnknown      FailureKind = ""
	FailureKindNonRetryable FailureKind = "non_retryable"
	FailureKindOutOfMemory  FailureKind = "out_of_memory"
	FailureKindGeneric      FailureKind = "generic"
)

// ParseFailureKind maps wire spellings onto a known kind. Unrecognized values
// become FailureKindUnknown so that text matching takes over.
func ParseFailureKind(s string) FailureKind {
	switch FailureKind(s) {
	case FailureKindNonRetryable, FailureKindOutOfMemory, FailureKindGeneric:
		return FailureKind(s)
	case "oom":
		return FailureKindOutOfMemory
	default:
		return FailureKindUnknown
	}
}

// StreamEvent is a tagged variant; which fields are meaningful depends on Type.
//
//	Progress:       Value (0..100)
//	Log:            Text
//	Done:           Path
//	Error:          Text, Trace, Kind
//	TransportError: Err
type StreamEvent struct {
	Type  EventType
	Value int
	Text  string
	Path  string
	Trace string
	Kind  FailureKind
	Err   error
}

// IsTerminal reports whether the event ends an attempt.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func ProgressEvent(v int) StreamEvent {
	return StreamEvent{Type: EventProgress, Value: min(max(v, 0), 100)}
}

func LogEvent(text string) StreamEvent {
	return StreamEvent{Type: EventLog, Text: text}
}

func DoneEvent(path string) StreamEvent {
	return StreamEvent{Type: EventDone, Path: path}
}

func ErrorEvent(text, trace string, kind FailureKind) StreamEvent {
	return StreamEvent{Type: EventError, Text: text, Trace: trace, Kind: kind}
}

func TransportErrorEvent(err error) StreamEvent {
	return StreamEvent{Type: EventTransportError, Err: err}
}

// Failure is what the attempt loop knows about a failed attempt.
type Failure struct {
	Kind  FailureKind
	Text  string
	Trace string
}

// Message is the user-facing error text for the failure.
func (f Failure) Message() string {
	if f.Text != "" {
		return f.Text
	}
	if f.Trace != "" {
		return f.Trace
	}
	return "unknown error"
}
