package events

import "time"

// Event is the envelope that flows through the event bus. Every change
// the pipeline produces (match created/updated/removed, session state)
// is wrapped in one.
type Event struct {
	Type      EventType
	Operator  string
	MatchID   string
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// Snapshot store changes
	EventMatchChange EventType = "match_change"
	// Feed session lifecycle
	EventSessionStatus EventType = "session_status"
)
