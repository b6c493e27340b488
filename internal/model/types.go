package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Severity
// -----------------------------------------------------------------------------

// Severity is the risk level of a safety event (1-5).
type Severity int

const (
	SeverityLow      Severity = 1
	SeverityMinor    Severity = 2
	SeverityModerate Severity = 3
	SeverityHigh     Severity = 4
	SeverityCritical Severity = 5
)

// MinSeverity and MaxSeverity bound the valid range.
const (
	MinSeverity = SeverityLow
	MaxSeverity = SeverityCritical
)

// Valid reports whether s is within 1-5.
func (s Severity) Valid() bool {
	return s >= MinSeverity && s <= MaxSeverity
}

// IsCritical matches the backend's /events/critical filter (severity >= 4).
func (s Severity) IsCritical() bool {
	return s >= SeverityHigh
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Event is a safety event as stored and broadcast by the backend.
type Event struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       string         `json:"type"`     // e.g. "speed_violation", "impact"
	Severity   Severity       `json:"severity"` // 1-5
	Source     string         `json:"source"`   // camera or sensor identifier
	Metadata   map[string]any `json:"metadata"`
	ForkliftID *int64         `json:"forklift_id,omitempty"`
}

// eventJSON is the wire shape of Event with a raw timestamp.
type eventJSON struct {
	ID         int64          `json:"id"`
	Timestamp  string         `json:"timestamp"`
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata"`
	ForkliftID *int64         `json:"forklift_id,omitempty"`
}

// UnmarshalJSON accepts RFC 3339 and zone-less ISO-8601 timestamps.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var ts time.Time
	if w.Timestamp != "" {
		parsed, err := ParseTimestamp(w.Timestamp)
		if err != nil {
			return err
		}
		ts = parsed
	}

	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	*e = Event{
		ID:         w.ID,
		Timestamp:  ts,
		Type:       w.Type,
		Severity:   w.Severity,
		Source:     w.Source,
		Metadata:   metadata,
		ForkliftID: w.ForkliftID,
	}
	return nil
}

// Validate checks the fields every consumer relies on.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("event %d: type is required", e.ID)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("event %d: severity %d out of range 1-5", e.ID, int(e.Severity))
	}
	return nil
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999", // Python isoformat() of a naive datetime
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// NewEvent is the request body for POST /api/events.
type NewEvent struct {
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ForkliftID *int64         `json:"forklift_id,omitempty"`
}

// Validate mirrors the backend's EventCreate schema.
func (n NewEvent) Validate() error {
	if strings.TrimSpace(n.Type) == "" {
		return fmt.Errorf("type is required")
	}
	if !n.Severity.Valid() {
		return fmt.Errorf("severity %d out of range 1-5", int(n.Severity))
	}
	if strings.TrimSpace(n.Source) == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// MaxListLimit is the backend's cap on a single page.
const MaxListLimit = 1000

// EventFilter configures GET /api/events. Zero values are omitted.
type EventFilter struct {
	Severity Severity
	Type     string
	Source   string
	Limit    int
	Skip     int
}
