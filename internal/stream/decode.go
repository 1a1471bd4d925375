package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"aistudio/internal/domain"
)

const maxFrameBytes = 4 << 20

// wireEvent is the JSON shape the generation server pushes per frame.
type wireEvent struct {
	Type   string   `json:"type"`
	Value  *float64 `json:"value,omitempty"`
	Text   string   `json:"text,omitempty"`
	Path   string   `json:"path,omitempty"`
	Trace  string   `json:"trace,omitempty"`
	Detail string   `json:"detail,omitempty"`
	Kind   string   `json:"kind,omitempty"`
}

// errIgnoredFrame marks frames that carry no event for the caller, like the
// server's sse_open and sse_closed markers.
var errIgnoredFrame = errors.New("stream: ignored frame")

// decodeEvent converts one frame payload into an event.
func decodeEvent(data string) (domain.StreamEvent, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return domain.StreamEvent{}, fmt.Errorf("stream: decode event: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(w.Type)) {
	case "progress":
		if w.Value == nil {
			return domain.StreamEvent{}, errors.New("stream: progress event without value")
		}
		return domain.ProgressEvent(int(math.Round(*w.Value))), nil
	case "log":
		return domain.LogEvent(w.Text), nil
	case "done":
		return domain.DoneEvent(w.Path), nil
	case "error":
		trace := w.Trace
		if trace == "" {
			trace = w.Detail
		}
		return domain.ErrorEvent(w.Text, trace, domain.ParseFailureKind(w.Kind)), nil
	case "sse_open", "sse_closed", "connected", "":
		return domain.StreamEvent{}, errIgnoredFrame
	default:
		return domain.StreamEvent{}, fmt.Errorf("stream: unknown event type %q", w.Type)
	}
}

// frameReader splits a text/event-stream body into data payloads.
type frameReader struct {
	scanner *bufio.Scanner
	data    []string
}

func newFrameReader(r io.Reader) *frameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &frameReader{scanner: sc}
}

// Next returns the next data payload. It returns io.EOF when the body ends
// cleanly and the scanner error otherwise.
func (f *frameReader) Next() (string, error) {
	for f.scanner.Scan() {
		line := strings.TrimRight(f.scanner.Text(), "\r")
		switch {
		case line == "":
			if len(f.data) == 0 {
				continue
			}
			payload := strings.Join(f.data, "\n")
			f.data = f.data[:0]
			return payload, nil
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "data:"):
			f.data = append(f.data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: carry nothing we use
		}
	}
	if err := f.scanner.Err(); err != nil {
		return "", err
	}
	if len(f.data) > 0 {
		payload := strings.Join(f.data, "\n")
		f.data = nil
		return payload, nil
	}
	return "", io.EOF
}
