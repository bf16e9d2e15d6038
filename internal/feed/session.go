package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebward/oddsfeed/internal/adapters"
	"github.com/calebward/oddsfeed/internal/events"
	"github.com/calebward/oddsfeed/internal/feed/rawstore"
	"github.com/calebward/oddsfeed/internal/telemetry"
)

// State is the session lifecycle position. Transitions:
//
//	DISCONNECTED → AUTHENTICATING → CONNECTING → HANDSHAKING →
//	SUBSCRIBED → STREAMING ⇄ DEGRADED, any → CLOSED (terminal).
type State string

const (
	StateDisconnected   State = "disconnected"
	StateAuthenticating State = "authenticating"
	StateConnecting     State = "connecting"
	StateHandshaking    State = "handshaking"
	StateSubscribed     State = "subscribed"
	StateStreaming      State = "streaming"
	StateDegraded       State = "degraded"
	StateClosed         State = "closed"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultStopGrace        = 5 * time.Second
)

// Topic is one subscription: a caller-assigned name and the already-built
// subscribe payload (the session does not own vendor query text).
type Topic struct {
	Name    string
	Payload []byte
}

// Config tunes one session. Zero durations get defaults.
type Config struct {
	Operator         string
	Topics           []Topic
	AuthBackoff      BackoffConfig
	ConnectBackoff   BackoffConfig // MaxAttempts is ignored: network blips retry forever
	HandshakeTimeout time.Duration
	StopGrace        time.Duration
}

func (c *Config) fill() {
	if c.AuthBackoff == (BackoffConfig{}) {
		c.AuthBackoff = DefaultBackoff()
	}
	if c.ConnectBackoff.Base == 0 {
		c.ConnectBackoff = BackoffConfig{Base: 1 * time.Second, Cap: 30 * time.Second}
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.StopGrace == 0 {
		c.StopGrace = defaultStopGrace
	}
}

// Session owns one logical feed connection for one operator: credential
// acquisition, transport handshake, subscriptions, the receive loop, and
// recovery. At most one transport is open at any time; reconnecting
// never duplicates subscriptions because every connection subscribes
// from a fresh correlation map.
//
// Entity-level translation failures never terminate a session; only
// auth, handshake, and transport failures do — and of those, only an
// exhausted auth budget is terminal.
type Session struct {
	cfg     Config
	auth    Authenticator
	dialer  Dialer
	adapter adapters.Adapter
	sink    UpdateSink
	bus     *events.Bus
	archive *rawstore.Store // optional raw envelope archive

	mu        sync.Mutex
	state     State
	transport Transport
	cancel    context.CancelFunc
	err       error // terminal error, set before CLOSED

	done chan struct{}
}

func NewSession(cfg Config, auth Authenticator, dialer Dialer, adapter adapters.Adapter, sink UpdateSink, bus *events.Bus, archive *rawstore.Store) *Session {
	cfg.fill()
	return &Session{
		cfg:     cfg,
		auth:    auth,
		dialer:  dialer,
		adapter: adapter,
		sink:    sink,
		bus:     bus,
		archive: archive,
		state:   StateDisconnected,
		done:    make(chan struct{}),
	}
}

// Start launches the session loop. The session runs until Stop, ctx
// cancellation, or auth exhaustion.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	telemetry.Metrics.OpenSessions.Inc()
	go func() {
		defer telemetry.Metrics.OpenSessions.Dec()
		s.run(runCtx)
	}()
}

// Stop is terminal: it cancels in-flight retries, unblocks any pending
// read by closing the transport, and waits for the loop to reach CLOSED
// within the configured grace period.
func (s *Session) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	tr := s.transport
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tr != nil {
		tr.Close()
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(s.cfg.StopGrace):
		return fmt.Errorf("session %s: stop grace %s exceeded", s.cfg.Operator, s.cfg.StopGrace)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error once the session is CLOSED, nil for a
// clean stop.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done closes when the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateClosed, "")

	connAttempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		token, err := s.authenticate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Auth exhausted: terminal for this session. Other operators
			// keep streaming; this one degrades to stale/absent data.
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			telemetry.Errorf("feed[%s]: %v", s.cfg.Operator, err)
			return
		}

		streamStart := time.Now()
		err = s.connectAndStream(ctx, token)
		if ctx.Err() != nil {
			return
		}

		// A connection that held for a while resets the backoff ladder.
		if time.Since(streamStart) > time.Minute {
			connAttempt = 0
		}

		s.setState(StateDegraded, err.Error())
		telemetry.Metrics.SessionReconnects.Inc()

		wait := s.cfg.ConnectBackoff.delay(connAttempt)
		connAttempt++
		telemetry.Warnf("feed[%s]: connection lost (attempt %d): %v — reconnecting in %s",
			s.cfg.Operator, connAttempt, err, wait.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		s.setState(StateDisconnected, "")
	}
}

// authenticate obtains a bearer credential, retrying with full-jitter
// backoff up to the configured attempt budget.
func (s *Session) authenticate(ctx context.Context) (string, error) {
	s.setState(StateAuthenticating, "")

	b := s.cfg.AuthBackoff
	for attempt := 0; ; attempt++ {
		token, err := s.auth.Credential(ctx)
		if err == nil {
			return token, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		telemetry.Metrics.AuthFailures.Inc()
		if b.MaxAttempts > 0 && attempt+1 >= b.MaxAttempts {
			return "", fmt.Errorf("%w after %d attempts: %v", ErrAuthExhausted, attempt+1, err)
		}

		wait := b.delay(attempt)
		telemetry.Warnf("feed[%s]: auth failed (attempt %d): %v — retrying in %s",
			s.cfg.Operator, attempt+1, err, wait.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// connectAndStream runs one full connection: dial, handshake, subscribe,
// then the receive loop. Always returns a non-nil error describing why
// the connection ended (unless ctx was cancelled).
func (s *Session) connectAndStream(ctx context.Context, token string) error {
	s.setState(StateConnecting, "")

	tr, err := s.dialer.Dial(ctx, token)
	if err != nil {
		// A rejected credential must not be reused on the next attempt.
		s.auth.Invalidate()
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.transport = tr
	s.mu.Unlock()
	defer func() {
		tr.Close()
		s.mu.Lock()
		s.transport = nil
		s.mu.Unlock()
	}()

	if err := s.handshake(ctx, tr, token); err != nil {
		return err
	}

	subs, err := s.subscribeAll(ctx, tr)
	if err != nil {
		return err
	}

	s.setState(StateStreaming, "")
	telemetry.Infof("feed[%s]: streaming %d topics", s.cfg.Operator, len(subs))

	return s.receiveLoop(ctx, tr, subs)
}

func (s *Session) handshake(ctx context.Context, tr Transport, token string) error {
	s.setState(StateHandshaking, "")

	init, err := connectionInit(token)
	if err != nil {
		return fmt.Errorf("build connection_init: %w", err)
	}
	if err := tr.Send(ctx, init); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	for {
		raw, err := tr.Receive(hctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("handshake: no ack within %s", s.cfg.HandshakeTimeout)
			}
			return fmt.Errorf("handshake read: %w", err)
		}

		env, err := decodeEnvelope(raw)
		if err != nil {
			telemetry.Metrics.ProtocolErrors.Inc()
			telemetry.Warnf("feed[%s]: handshake: %v", s.cfg.Operator, err)
			continue
		}

		switch env.Type {
		case TypeConnectionAck:
			return nil
		case TypeConnectionError:
			s.auth.Invalidate()
			return fmt.Errorf("handshake rejected: %s", errorPayloadMessage(env.Payload))
		default:
			// Servers may push keepalives before the ack; ignore them.
			continue
		}
	}
}

// subscribeAll sends one subscribe envelope per topic and returns the
// correlation map. Ids are fresh per connection, so a reconnect can
// never double-subscribe on the new transport.
func (s *Session) subscribeAll(ctx context.Context, tr Transport) (map[string]Topic, error) {
	s.setState(StateSubscribed, "")

	subs := make(map[string]Topic, len(s.cfg.Topics))
	for _, topic := range s.cfg.Topics {
		id := uuid.NewString()
		env, err := subscribeEnvelope(id, topic.Payload)
		if err != nil {
			return nil, fmt.Errorf("build subscribe %q: %w", topic.Name, err)
		}
		if err := tr.Send(ctx, env); err != nil {
			return nil, fmt.Errorf("subscribe %q: %w", topic.Name, err)
		}
		subs[id] = topic
		telemetry.Debugf("feed[%s]: subscribed topic=%s sid=%s", s.cfg.Operator, topic.Name, id)
	}
	return subs, nil
}

func (s *Session) receiveLoop(ctx context.Context, tr Transport, subs map[string]Topic) error {
	for {
		raw, err := tr.Receive(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		telemetry.Metrics.EnvelopesReceived.Inc()

		env, err := decodeEnvelope(raw)
		if err != nil {
			telemetry.Metrics.ProtocolErrors.Inc()
			telemetry.Warnf("feed[%s]: %v", s.cfg.Operator, err)
			continue
		}

		switch env.Type {
		case TypeNext:
			if s.archive != nil {
				s.archive.Insert(s.cfg.Operator, env.Type, raw)
			}
			s.handleData(env)

		case TypeError:
			// Per-subscription error: drop the topic and re-subscribe it
			// under a fresh id; the connection itself stays up.
			topic, ok := subs[env.ID]
			if !ok {
				telemetry.Metrics.ProtocolErrors.Inc()
				continue
			}
			delete(subs, env.ID)
			telemetry.Warnf("feed[%s]: topic %s errored: %s — re-subscribing",
				s.cfg.Operator, topic.Name, errorPayloadMessage(env.Payload))

			id := uuid.NewString()
			sub, err := subscribeEnvelope(id, topic.Payload)
			if err == nil {
				err = tr.Send(ctx, sub)
			}
			if err != nil {
				return fmt.Errorf("re-subscribe %q: %w", topic.Name, err)
			}
			subs[id] = topic

		case TypeComplete:
			topic, ok := subs[env.ID]
			if !ok {
				continue
			}
			delete(subs, env.ID)
			telemetry.Infof("feed[%s]: topic %s completed", s.cfg.Operator, topic.Name)
			if len(subs) == 0 {
				return ErrAllTopicsComplete
			}

		case TypePing:
			pong, _ := json.Marshal(Envelope{Type: TypePong})
			if err := tr.Send(ctx, pong); err != nil {
				return fmt.Errorf("pong: %w", err)
			}

		case TypeConnectionError:
			return fmt.Errorf("connection error: %s", errorPayloadMessage(env.Payload))

		default:
			telemetry.Metrics.ProtocolErrors.Inc()
			telemetry.Debugf("feed[%s]: unexpected envelope type %q", s.cfg.Operator, env.Type)
		}
	}
}

// handleData forwards one data envelope through the payload adapter.
// Translation failures are logged and skipped; the session keeps
// streaming regardless.
func (s *Session) handleData(env Envelope) {
	updates, err := s.adapter.Translate(env.Payload)
	if err != nil {
		telemetry.Metrics.ProtocolErrors.Inc()
		telemetry.Warnf("feed[%s]: translate: %v", s.cfg.Operator, err)
		return
	}
	if len(updates) == 0 {
		return
	}
	s.sink(updates)
}

func (s *Session) setState(st State, reason string) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	if prev == st {
		return
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.EventSessionStatus,
			Operator:  s.cfg.Operator,
			Timestamp: time.Now(),
			Payload: events.SessionStatusEvent{
				Operator: s.cfg.Operator,
				State:    string(st),
				Reason:   reason,
			},
		})
	}
}
