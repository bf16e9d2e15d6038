package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/calebward/oddsfeed/internal/events"
)

// Envelope is the wire format for events sent over the fanout WebSocket.
type Envelope struct {
	Type      string          `json:"type"`
	Operator  string          `json:"operator,omitempty"`
	MatchID   string          `json:"match_id,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      string(evt.Type),
		Operator:  evt.Operator,
		MatchID:   evt.MatchID,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		Type:      events.EventType(env.Type),
		Operator:  env.Operator,
		MatchID:   env.MatchID,
		Timestamp: env.Timestamp,
	}

	switch evt.Type {
	case events.EventMatchChange:
		var mc events.MatchChangeEvent
		if err := json.Unmarshal(env.Payload, &mc); err != nil {
			return evt, fmt.Errorf("unmarshal match_change: %w", err)
		}
		evt.Payload = mc
	case events.EventSessionStatus:
		var ss events.SessionStatusEvent
		if err := json.Unmarshal(env.Payload, &ss); err != nil {
			return evt, fmt.Errorf("unmarshal session_status: %w", err)
		}
		evt.Payload = ss
	default:
		return evt, fmt.Errorf("unknown event type: %s", env.Type)
	}

	return evt, nil
}
