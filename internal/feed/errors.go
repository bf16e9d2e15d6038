package feed

import (
	"errors"
	"fmt"
)

// ErrAuthExhausted is terminal for a session: the credential kept being
// rejected past the configured attempt budget. A transient network blip
// never produces it — only repeated auth failures do.
var ErrAuthExhausted = errors.New("auth attempts exhausted")

// ErrAllTopicsComplete signals the server completed every subscription,
// which the session treats as a degraded connection worth redialing.
var ErrAllTopicsComplete = errors.New("all topics completed")

// ProtocolError marks a malformed or unexpected envelope. Recoverable:
// the session logs it, counts it, and stays in the receive loop.
type ProtocolError struct {
	Envelope string // envelope type, or "malformed" when undecodable
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Envelope, e.Reason)
}
