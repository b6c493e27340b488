package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/safelift-feed/internal/model"
)

// Text payloads of the heartbeat exchange.
const (
	ProbePayload = "ping"
	ReplyPayload = "pong"
)

// ErrMalformedFrame is wrapped by every decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// maxSnippet bounds how much of a bad payload is kept for logging.
const maxSnippet = 128

// MalformedError describes a frame that could not be decoded.
type MalformedError struct {
	Reason  string
	Snippet string
	Err     error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedFrame, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedFrame, e.Reason)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *MalformedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedFrame, e.Err}
	}
	return []error{ErrMalformedFrame}
}

// Frame is a decoded inbound frame: Control or EventFrame.
type Frame interface {
	frame()
}

// ControlKind identifies a control frame.
type ControlKind int

const (
	ControlPong ControlKind = iota + 1
	ControlPing
)

func (k ControlKind) String() string {
	switch k {
	case ControlPong:
		return "pong"
	case ControlPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Control is a heartbeat frame.
type Control struct {
	Kind ControlKind
}

// EventFrame carries a validated safety event.
type EventFrame struct {
	Event model.Event
}

func (Control) frame()    {}
func (EventFrame) frame() {}

// envelope is the broadcaster's typed wrapper. ID and Severity are only
// probed: their presence marks the object as a bare event.
type envelope struct {
	Type     *string         `json:"type"`
	Data     json.RawMessage `json:"data"`
	ID       json.RawMessage `json:"id"`
	Severity json.RawMessage `json:"severity"`
}

// carriesEvent reports whether the object has event fields of its own.
func (e envelope) carriesEvent() bool {
	return len(e.ID) > 0 || len(e.Severity) > 0
}

// Decode classifies a single text frame.
func Decode(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, malformed("empty frame", data, nil)
	}

	switch string(trimmed) {
	case ReplyPayload:
		return Control{Kind: ControlPong}, nil
	case ProbePayload:
		return Control{Kind: ControlPing}, nil
	}

	if trimmed[0] != '{' {
		return nil, malformed("not a JSON object", data, nil)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, malformed("invalid JSON", data, err)
	}

	// An event's type is free-form, so "ping" or "event" only mean control
	// or envelope when the object is not itself an event.
	body := trimmed
	if env.Type != nil && !env.carriesEvent() {
		switch *env.Type {
		case ReplyPayload:
			return Control{Kind: ControlPong}, nil
		case ProbePayload:
			return Control{Kind: ControlPing}, nil
		case "event":
			if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
				return nil, malformed("event envelope without data", data, nil)
			}
			body = env.Data
		}
	}

	var event model.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, malformed("invalid event", data, err)
	}
	if err := event.Validate(); err != nil {
		return nil, malformed("invalid event", data, err)
	}

	return EventFrame{Event: event}, nil
}

// KindOf names a frame for logs and metrics.
func KindOf(f Frame) string {
	switch v := f.(type) {
	case Control:
		return v.Kind.String()
	case EventFrame:
		return "event"
	default:
		return "unknown"
	}
}

func malformed(reason string, data []byte, err error) *MalformedError {
	snippet := data
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return &MalformedError{Reason: reason, Snippet: string(snippet), Err: err}
}
