package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calebward/oddsfeed/internal/core/model"
)

func ptr[T any](v T) *T { return &v }

func createUpdate(op, id string, status model.MatchStatus) model.MatchUpdate {
	return model.MatchUpdate{
		Operator: op,
		MatchID:  id,
		Create: &model.MatchInfo{
			Title:     "A vs B",
			StartTime: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
			Status:    status,
			Home:      model.Team{ID: "h", Name: "A"},
			Away:      model.Team{ID: "a", Name: "B"},
		},
		Markets: []model.MarketUpsert{{
			ID:   "winner",
			Name: ptr("Winner"),
			Outcomes: []model.OutcomeUpsert{
				{ID: "o-a", Name: ptr("A"), Price: ptr(1.67)},
				{ID: "o-b", Name: ptr("B"), Price: ptr(2.30)},
			},
		}},
	}
}

func TestApplyCreatesThenMerges(t *testing.T) {
	s := New()

	res, err := s.Apply(createUpdate("ggbet", "m1", model.MatchScheduled))
	if err != nil {
		t.Fatalf("Apply create: %v", err)
	}
	if !res.Created {
		t.Error("expected Created")
	}

	res, err = s.Apply(model.MatchUpdate{
		Operator: "ggbet", MatchID: "m1",
		Markets: []model.MarketUpsert{{
			ID:       "winner",
			Outcomes: []model.OutcomeUpsert{{ID: "o-a", Price: ptr(1.80)}},
		}},
	})
	if err != nil {
		t.Fatalf("Apply merge: %v", err)
	}
	if res.Created {
		t.Error("merge reported Created")
	}

	m, ok := s.Get("ggbet", "m1")
	if !ok {
		t.Fatal("match missing")
	}
	mk, _ := m.Market("winner")
	if mk.Outcomes[0].Price != 1.80 || mk.Outcomes[1].Price != 2.30 {
		t.Errorf("prices = %v / %v", mk.Outcomes[0].Price, mk.Outcomes[1].Price)
	}
}

func TestApplyUnknownMatchWithoutCreate(t *testing.T) {
	s := New()
	_, err := s.Apply(model.MatchUpdate{Operator: "ggbet", MatchID: "nope", Score: ptr("1:0")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateCreateDowngradesToMerge(t *testing.T) {
	s := New()
	s.Apply(createUpdate("ggbet", "m1", model.MatchScheduled))

	u := createUpdate("ggbet", "m1", model.MatchLive)
	res, err := s.Apply(u)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	found := false
	for _, w := range res.Warns {
		if errors.Is(w, model.ErrDuplicateMatch) {
			found = true
		}
	}
	if !found {
		t.Errorf("warns = %v, want ErrDuplicateMatch", res.Warns)
	}

	m, _ := s.Get("ggbet", "m1")
	if m.Status != model.MatchLive {
		t.Errorf("status = %q, duplicate snapshot not merged", m.Status)
	}
}

func TestOperatorNamespacesAreIndependent(t *testing.T) {
	s := New()
	s.Apply(createUpdate("ggbet", "m1", model.MatchScheduled))
	s.Apply(createUpdate("kambi", "m1", model.MatchLive))

	if s.Count() != 2 {
		t.Fatalf("Count = %d, want 2", s.Count())
	}
	g, _ := s.Get("ggbet", "m1")
	k, _ := s.Get("kambi", "m1")
	if g.Status == k.Status {
		t.Error("operator namespaces collided")
	}
}

func TestListIsPointInTime(t *testing.T) {
	s := New()
	s.Apply(createUpdate("ggbet", "m1", model.MatchScheduled))

	list := s.List(Filter{})
	if len(list) != 1 {
		t.Fatalf("List = %d entries", len(list))
	}

	s.Apply(model.MatchUpdate{Operator: "ggbet", MatchID: "m1", Score: ptr("2:1")})
	if list[0].Score != "" {
		t.Errorf("listed snapshot mutated by later apply: %q", list[0].Score)
	}
}

func TestListFilters(t *testing.T) {
	s := New()
	s.Apply(createUpdate("ggbet", "m1", model.MatchScheduled))
	s.Apply(createUpdate("ggbet", "m2", model.MatchLive))
	s.Apply(createUpdate("kambi", "m3", model.MatchLive))

	if got := len(s.List(Filter{Operator: "ggbet"})); got != 2 {
		t.Errorf("operator filter: %d, want 2", got)
	}
	if got := len(s.List(Filter{Status: model.MatchLive})); got != 2 {
		t.Errorf("status filter: %d, want 2", got)
	}
	if got := len(s.List(Filter{Operator: "kambi", Status: model.MatchLive})); got != 1 {
		t.Errorf("combined filter: %d, want 1", got)
	}
}

func TestSweepStaleSkipsLive(t *testing.T) {
	s := New()
	s.Apply(createUpdate("ggbet", "old", model.MatchScheduled))
	s.Apply(createUpdate("ggbet", "live", model.MatchLive))

	removed := s.SweepStale(10*time.Minute, time.Now().Add(11*time.Minute))
	if len(removed) != 1 || removed[0].MatchID != "old" {
		t.Fatalf("removed = %v, want [old]", removed)
	}
	if _, ok := s.Get("ggbet", "live"); !ok {
		t.Error("live match swept")
	}
	if _, ok := s.Get("ggbet", "old"); ok {
		t.Error("stale match still present")
	}
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s := New()
	s.Apply(createUpdate("ggbet", "m1", model.MatchLive))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			price := 1.5 + float64(i%100)/100
			s.Apply(model.MatchUpdate{
				Operator: "ggbet", MatchID: "m1",
				Markets: []model.MarketUpsert{{
					ID:       "winner",
					Outcomes: []model.OutcomeUpsert{{ID: "o-a", Price: &price}},
				}},
			})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if m, ok := s.Get("ggbet", "m1"); ok {
					mk, _ := m.Market("winner")
					if mk != nil && len(mk.Outcomes) > 0 && mk.Outcomes[0].Price < 1.0 {
						t.Error("observed half-applied price")
						return
					}
				}
				s.List(Filter{Operator: "ggbet"})
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}
