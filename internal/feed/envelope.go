package feed

import (
	"encoding/json"
	"fmt"
)

// Envelope is one protocol-level message on the subscription channel,
// in the graphql-ws dialect the esports books speak: a type
// discriminator, an optional subscription id, and an opaque payload.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope types. Client → server: connection_init, subscribe.
// Server → client: the rest.
const (
	TypeConnectionInit  = "connection_init"
	TypeConnectionAck   = "connection_ack"
	TypeConnectionError = "connection_error"
	TypeSubscribe       = "subscribe"
	TypeNext            = "next"
	TypeError           = "error"
	TypeComplete        = "complete"
	TypePing            = "ping"
	TypePong            = "pong"
)

func connectionInit(token string) ([]byte, error) {
	payload := map[string]any{
		"headers": map[string]string{
			"Authorization": "Bearer " + token,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: TypeConnectionInit, Payload: raw})
}

func subscribeEnvelope(id string, payload []byte) ([]byte, error) {
	return json.Marshal(Envelope{ID: id, Type: TypeSubscribe, Payload: payload})
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &ProtocolError{Envelope: "malformed", Reason: err.Error()}
	}
	if env.Type == "" {
		return Envelope{}, &ProtocolError{Envelope: "malformed", Reason: "missing type discriminator"}
	}
	return env, nil
}

// errorPayloadMessage extracts a human-readable message from an error
// or connection_error payload, tolerating both object and array shapes.
func errorPayloadMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var arr []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return arr[0].Message
	}
	return fmt.Sprintf("%.120s", string(raw))
}
