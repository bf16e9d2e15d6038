package feed

import (
	"context"

	"github.com/calebward/oddsfeed/internal/core/model"
)

// Transport is a connected, framed bidirectional message channel. The
// session owns protocol envelopes only; TLS, cookies, and reconnection
// mechanics live behind the Dialer.
type Transport interface {
	// Send writes one framed message.
	Send(ctx context.Context, data []byte) error
	// Receive blocks for the next framed message. It must return once
	// the transport is closed or ctx is cancelled.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a fresh transport using a bearer credential. Each call
// must return an independent connection; the session guarantees it holds
// at most one open transport at a time.
type Dialer interface {
	Dial(ctx context.Context, token string) (Transport, error)
}

// Authenticator obtains a bearer credential for one operator. Any
// failure is treated the same by the session: retry with backoff until
// the attempt budget runs out.
type Authenticator interface {
	Credential(ctx context.Context) (string, error)
	// Invalidate discards any cached credential after the server
	// rejects it, forcing a fresh fetch on the next attempt.
	Invalidate()
}

// UpdateSink receives the normalized mutations decoded from one data
// envelope. Called synchronously on the session's receive loop.
type UpdateSink func(updates []model.MatchUpdate)
