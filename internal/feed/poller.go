package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/calebward/oddsfeed/internal/adapters"
	"github.com/calebward/oddsfeed/internal/events"
	"github.com/calebward/oddsfeed/internal/feed/rawstore"
	"github.com/calebward/oddsfeed/internal/telemetry"
)

// PollConfig tunes a polled REST feed. Interval paces the loop; Burst
// bounds how many requests may fire back-to-back after a stall.
type PollConfig struct {
	Operator string
	URLs     []string
	Interval time.Duration
	Burst    int
}

func (c *PollConfig) fill() {
	if c.Interval == 0 {
		c.Interval = 5 * time.Second
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
}

// Poller drives operators that expose snapshots over plain REST instead
// of a subscription channel. Each cycle fetches every configured URL,
// translates the body through the adapter, and forwards the updates.
// Fetch and translation failures are logged and skipped; the loop never
// terminates on them.
type Poller struct {
	cfg     PollConfig
	client  *http.Client
	limiter *rate.Limiter
	adapter adapters.Adapter
	sink    UpdateSink
	bus     *events.Bus
	archive *rawstore.Store // optional raw response archive

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(cfg PollConfig, adapter adapters.Adapter, sink UpdateSink, bus *events.Bus, archive *rawstore.Store) *Poller {
	cfg.fill()
	return &Poller{
		cfg:     cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst),
		adapter: adapter,
		sink:    sink,
		bus:     bus,
		archive: archive,
		done:    make(chan struct{}),
	}
}

func (p *Poller) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	telemetry.Metrics.OpenSessions.Inc()
	go func() {
		defer telemetry.Metrics.OpenSessions.Dec()
		defer close(p.done)
		p.run(runCtx)
	}()
}

func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(defaultStopGrace):
		return fmt.Errorf("poller %s: stop grace exceeded", p.cfg.Operator)
	}
}

func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) run(ctx context.Context) {
	p.publishState(StateStreaming, "")
	defer p.publishState(StateClosed, "")

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		for _, url := range p.cfg.URLs {
			if ctx.Err() != nil {
				return
			}
			p.pollOnce(ctx, url)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		telemetry.Warnf("poll[%s]: build request: %v", p.cfg.Operator, err)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		telemetry.Warnf("poll[%s]: fetch %s: %v", p.cfg.Operator, url, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.Warnf("poll[%s]: fetch %s: status %d", p.cfg.Operator, url, resp.StatusCode)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		telemetry.Warnf("poll[%s]: read %s: %v", p.cfg.Operator, url, err)
		return
	}
	telemetry.Metrics.EnvelopesReceived.Inc()
	if p.archive != nil {
		p.archive.Insert(p.cfg.Operator, "poll", body)
	}

	updates, err := p.adapter.Translate(body)
	if err != nil {
		telemetry.Metrics.ProtocolErrors.Inc()
		telemetry.Warnf("poll[%s]: translate: %v", p.cfg.Operator, err)
		return
	}
	if len(updates) > 0 {
		p.sink(updates)
	}
}

func (p *Poller) publishState(st State, reason string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{
		Type:      events.EventSessionStatus,
		Operator:  p.cfg.Operator,
		Timestamp: time.Now(),
		Payload: events.SessionStatusEvent{
			Operator: p.cfg.Operator,
			State:    string(st),
			Reason:   reason,
		},
	})
}
