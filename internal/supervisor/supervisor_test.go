package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calebward/oddsfeed/internal/adapters"
	_ "github.com/calebward/oddsfeed/internal/adapters/pinnacle"
	"github.com/calebward/oddsfeed/internal/config"
	"github.com/calebward/oddsfeed/internal/core/model"
	"github.com/calebward/oddsfeed/internal/core/store"
	"github.com/calebward/oddsfeed/internal/events"
)

func testConfig() *config.Config {
	return &config.Config{
		AuthMaxAttempts:  3,
		BackoffBase:      time.Millisecond,
		BackoffCap:       time.Millisecond,
		HandshakeTimeout: time.Second,
		StaleTTL:         10 * time.Minute,
		SweepInterval:    10 * time.Millisecond,
	}
}

func newTestSupervisor(t *testing.T) (*Supervisor, *store.Store, *events.Bus) {
	t.Helper()
	st := store.New()
	bus := events.NewBus()
	s, err := New(testConfig(), config.Operators{}, st, bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s, st, bus
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []events.MatchChangeEvent
}

func (r *changeRecorder) attach(bus *events.Bus) {
	bus.Subscribe(events.EventMatchChange, func(e events.Event) error {
		r.mu.Lock()
		r.changes = append(r.changes, e.Payload.(events.MatchChangeEvent))
		r.mu.Unlock()
		return nil
	})
}

func (r *changeRecorder) kinds() []events.ChangeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.ChangeKind
	for _, c := range r.changes {
		out = append(out, c.Kind)
	}
	return out
}

// Runs the pinnacle documents end to end: matchup announcement, then
// American prices, checking converted decimals and outcome order in the
// stored snapshot.
func TestPipelineAppliesVendorDocuments(t *testing.T) {
	s, st, bus := newTestSupervisor(t)
	rec := &changeRecorder{}
	rec.attach(bus)

	adapter, err := adapters.New("pinnacle")
	if err != nil {
		t.Fatal(err)
	}
	sink := s.sinkFor("pinnacle", adapter)

	matchups := `[{"id": 900, "status": "started", "startTime": "2026-08-29T20:00:00Z",
	  "participants": [
	    {"id": 1, "name": "Team Liquid", "alignment": "home"},
	    {"id": 2, "name": "Team Spirit", "alignment": "away"}],
	  "league": {"id": 5, "name": "The International"}}]`
	updates, err := adapter.Translate([]byte(matchups))
	if err != nil {
		t.Fatal(err)
	}
	sink(updates)

	markets := `[{"matchupId": 900, "type": "moneyline", "period": 0, "prices": [
	  {"designation": "home", "price": -150},
	  {"designation": "away", "price": 130}]}]`
	updates, err = adapter.Translate([]byte(markets))
	if err != nil {
		t.Fatal(err)
	}
	sink(updates)

	m, ok := st.Get("pinnacle", "900")
	if !ok {
		t.Fatal("match not stored")
	}
	if m.Home.Name != "Team Liquid" || m.Away.Name != "Team Spirit" {
		t.Fatalf("teams = %q / %q", m.Home.Name, m.Away.Name)
	}
	if len(m.Markets) != 1 {
		t.Fatalf("markets = %d", len(m.Markets))
	}
	outs := m.Markets[0].Outcomes
	if len(outs) != 2 {
		t.Fatalf("outcomes = %d", len(outs))
	}
	if outs[0].Price != 1.67 || outs[1].Price != 2.30 {
		t.Fatalf("prices = %v / %v, want 1.67 / 2.30", outs[0].Price, outs[1].Price)
	}

	kinds := rec.kinds()
	if len(kinds) != 2 || kinds[0] != events.ChangeCreated || kinds[1] != events.ChangeUpdated {
		t.Fatalf("change kinds = %v", kinds)
	}
}

func TestSinkDropsUnknownMatchUpdates(t *testing.T) {
	s, st, bus := newTestSupervisor(t)
	rec := &changeRecorder{}
	rec.attach(bus)

	status := model.MatchLive
	s.sinkFor("ggbet", nil)([]model.MatchUpdate{{
		Operator: "ggbet",
		MatchID:  "ghost",
		Status:   &status,
	}})

	if st.Count() != 0 {
		t.Fatal("unknown-match merge must not create anything")
	}
	if len(rec.kinds()) != 0 {
		t.Fatalf("no events expected, got %v", rec.kinds())
	}
}

// A match evicted by the staleness sweep must come back as a fresh
// create on a later sighting, not stay lost as unknown-match merges.
func TestResightAfterSweepRecreates(t *testing.T) {
	s, st, _ := newTestSupervisor(t)

	adapter, err := adapters.New("pinnacle")
	if err != nil {
		t.Fatal(err)
	}
	sink := s.sinkFor("pinnacle", adapter)

	matchups := `[{"id": 900, "status": "pending", "startTime": "2026-08-29T20:00:00Z",
	  "participants": [
	    {"id": 1, "name": "Team Liquid", "alignment": "home"},
	    {"id": 2, "name": "Team Spirit", "alignment": "away"}]}]`

	updates, err := adapter.Translate([]byte(matchups))
	if err != nil {
		t.Fatal(err)
	}
	sink(updates)
	if _, ok := st.Get("pinnacle", "900"); !ok {
		t.Fatal("match not stored")
	}

	if removed := st.SweepStale(time.Millisecond, time.Now().Add(time.Hour)); len(removed) != 1 {
		t.Fatalf("swept %d matches, want 1", len(removed))
	}

	// First post-sweep sighting drops as an unknown merge and resets the
	// adapter; the one after that must recreate the match.
	for i := 0; i < 2; i++ {
		updates, err = adapter.Translate([]byte(matchups))
		if err != nil {
			t.Fatal(err)
		}
		sink(updates)
	}
	if _, ok := st.Get("pinnacle", "900"); !ok {
		t.Fatal("match absent after post-sweep sightings")
	}
}

func TestSweepPublishesRemovals(t *testing.T) {
	cfg := testConfig()
	cfg.StaleTTL = time.Millisecond
	st := store.New()
	bus := events.NewBus()
	s, err := New(cfg, config.Operators{}, st, bus, nil)
	if err != nil {
		t.Fatal(err)
	}

	removed := make(chan events.MatchChangeEvent, 1)
	bus.Subscribe(events.EventMatchChange, func(e events.Event) error {
		c := e.Payload.(events.MatchChangeEvent)
		if c.Kind == events.ChangeRemoved {
			select {
			case removed <- c:
			default:
			}
		}
		return nil
	})

	if _, err := st.Apply(model.MatchUpdate{
		Operator: "kambi",
		MatchID:  "old",
		Create: &model.MatchInfo{
			Title:  "A vs B",
			Status: model.MatchFinished,
			Home:   model.Team{Name: "A"},
			Away:   model.Team{Name: "B"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	select {
	case c := <-removed:
		if c.Operator != "kambi" || c.MatchID != "old" {
			t.Fatalf("removed = %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale match was never swept")
	}
	if st.Count() != 0 {
		t.Fatal("stale match still stored")
	}
}

func TestNewRejectsUnknownAdapter(t *testing.T) {
	ops := config.Operators{Operators: []config.OperatorSpec{{
		Name: "mystery",
		Kind: config.KindPoll,
		URLs: []string{"https://example.test"},
	}}}
	if _, err := New(testConfig(), ops, store.New(), events.NewBus(), nil); err == nil {
		t.Fatal("unknown adapter must fail construction")
	}
}
