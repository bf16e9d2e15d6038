// Package supervisor owns the full ingestion pipeline: one feed session
// or poller per configured operator, the shared snapshot store, and the
// staleness sweep. It is the single consumer of adapter output and the
// single producer of match change events.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebward/oddsfeed/internal/adapters"
	"github.com/calebward/oddsfeed/internal/config"
	"github.com/calebward/oddsfeed/internal/core/model"
	"github.com/calebward/oddsfeed/internal/core/store"
	"github.com/calebward/oddsfeed/internal/events"
	"github.com/calebward/oddsfeed/internal/feed"
	"github.com/calebward/oddsfeed/internal/feed/rawstore"
	"github.com/calebward/oddsfeed/internal/telemetry"
)

// runner is the common surface of websocket sessions and REST pollers.
type runner interface {
	Start(ctx context.Context)
	Stop() error
	Done() <-chan struct{}
}

type Supervisor struct {
	cfg     *config.Config
	store   *store.Store
	bus     *events.Bus
	archive *rawstore.Store

	runners map[string]runner // operator name -> session/poller

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// New wires one runner per operator in the roster. Unknown adapters and
// malformed specs fail construction: a roster typo should stop the
// process at boot, not surface as a silent dead feed.
func New(cfg *config.Config, ops config.Operators, st *store.Store, bus *events.Bus, archive *rawstore.Store) (*Supervisor, error) {
	s := &Supervisor{
		cfg:     cfg,
		store:   st,
		bus:     bus,
		archive: archive,
		runners: make(map[string]runner, len(ops.Operators)),
	}

	for _, spec := range ops.Operators {
		adapter, err := adapters.New(spec.AdapterName())
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", spec.Name, err)
		}
		sink := s.sinkFor(spec.Name, adapter)

		switch spec.Kind {
		case config.KindWebsocket:
			topics, err := buildTopics(spec.Topics)
			if err != nil {
				return nil, fmt.Errorf("operator %q: %w", spec.Name, err)
			}
			session := feed.NewSession(feed.Config{
				Operator: spec.Name,
				Topics:   topics,
				AuthBackoff: feed.BackoffConfig{
					Base:        cfg.BackoffBase,
					Cap:         cfg.BackoffCap,
					MaxAttempts: cfg.AuthMaxAttempts,
				},
				ConnectBackoff: feed.BackoffConfig{
					Base: cfg.BackoffBase,
					Cap:  cfg.BackoffCap,
				},
				HandshakeTimeout: cfg.HandshakeTimeout,
			},
				feed.NewTokenProvider(spec.AuthURL),
				&feed.WSDialer{URL: spec.URL},
				adapter, sink, bus, archive)
			s.runners[spec.Name] = session

		case config.KindPoll:
			poller := feed.NewPoller(feed.PollConfig{
				Operator: spec.Name,
				URLs:     spec.URLs,
				Interval: spec.PollInterval(),
			}, adapter, sink, bus, archive)
			s.runners[spec.Name] = poller
		}
	}
	return s, nil
}

func buildTopics(specs []config.TopicSpec) ([]feed.Topic, error) {
	topics := make([]feed.Topic, 0, len(specs))
	for _, ts := range specs {
		if ts.Query == "" {
			return nil, fmt.Errorf("topic %q: empty query", ts.Name)
		}
		payload, err := json.Marshal(map[string]any{
			"query":     ts.Query,
			"variables": map[string]any{},
		})
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", ts.Name, err)
		}
		topics = append(topics, feed.Topic{Name: ts.Name, Payload: payload})
	}
	return topics, nil
}

// Start launches every runner plus the staleness sweep.
func (s *Supervisor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.started = true
	s.mu.Unlock()

	for name, r := range s.runners {
		telemetry.Infof("supervisor: starting feed %s", name)
		r.Start(runCtx)
	}
	go s.sweepLoop(runCtx)
}

// Stop shuts every runner down concurrently and waits for all of them.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	var g errgroup.Group
	for name, r := range s.runners {
		name, r := name, r
		g.Go(func() error {
			if err := r.Stop(); err != nil {
				return fmt.Errorf("stop %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// sinkFor builds the update sink one operator's feed delivers into.
// Everything an adapter emits lands in the store through here, and
// every observable change leaves as a bus event.
func (s *Supervisor) sinkFor(operator string, adapter adapters.Adapter) feed.UpdateSink {
	return func(updates []model.MatchUpdate) {
		for _, u := range updates {
			if u.Operator == "" {
				u.Operator = operator
			}
			res, err := s.store.Apply(u)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					// An update for a match we never created or already
					// swept. Forget the id so the adapter announces the
					// match again on its next sighting.
					if adapter != nil {
						adapter.Forget(u.MatchID)
					}
					telemetry.Debugf("%s: update for unknown match %s dropped", operator, u.MatchID)
				} else {
					telemetry.Warnf("%s: apply %s: %v", operator, u.MatchID, err)
				}
				continue
			}
			for _, warn := range res.Warns {
				if errors.Is(warn, model.ErrUnknownStatus) {
					telemetry.Metrics.UnknownStatuses.Inc()
				}
				telemetry.Warnf("%s: match %s: %v", operator, u.MatchID, warn)
			}
			s.publishChange(operator, u.MatchID, res)
		}
	}
}

func (s *Supervisor) publishChange(operator, matchID string, res store.Result) {
	kind := events.ChangeUpdated
	switch {
	case res.Created:
		kind = events.ChangeCreated
	case res.Removed:
		kind = events.ChangeRemoved
	default:
		if len(res.Changed) == 0 {
			return
		}
	}
	s.bus.Publish(events.Event{
		Type:      events.EventMatchChange,
		Operator:  operator,
		MatchID:   matchID,
		Timestamp: time.Now(),
		Payload: events.MatchChangeEvent{
			Operator:      operator,
			MatchID:       matchID,
			Kind:          kind,
			ChangedFields: res.Changed,
		},
	})
}

func (s *Supervisor) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := s.store.SweepStale(s.cfg.StaleTTL, now)
			for _, key := range removed {
				telemetry.Infof("sweep: removed stale match %s/%s", key.Operator, key.MatchID)
				s.bus.Publish(events.Event{
					Type:      events.EventMatchChange,
					Operator:  key.Operator,
					MatchID:   key.MatchID,
					Timestamp: now,
					Payload: events.MatchChangeEvent{
						Operator: key.Operator,
						MatchID:  key.MatchID,
						Kind:     events.ChangeRemoved,
					},
				})
			}
		}
	}
}

// Match returns a deep copy of one match snapshot.
func (s *Supervisor) Match(operator, matchID string) (*model.Match, bool) {
	return s.store.Get(operator, matchID)
}

// Matches lists snapshots passing the filter, ordered by start time.
func (s *Supervisor) Matches(f store.Filter) []*model.Match {
	return s.store.List(f)
}
