package model

import (
	"errors"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func newTestMatch(t *testing.T) *Match {
	t.Helper()
	m, err := New("ggbet", "match-1", MatchInfo{
		Title:     "Liquid vs NaVi",
		StartTime: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		Status:    MatchScheduled,
		Home:      Team{ID: "t1", Name: "Team Liquid"},
		Away:      Team{ID: "t2", Name: "Natus Vincere"},
		Tournament: &Tournament{
			ID:          "tr-9",
			Name:        "BLAST Premier",
			CountryCode: "DK",
		},
		BestOf: 3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewAssignsSides(t *testing.T) {
	m := newTestMatch(t)
	if m.Home.Side != SideHome || m.Away.Side != SideAway {
		t.Errorf("sides not assigned: home=%q away=%q", m.Home.Side, m.Away.Side)
	}
}

func TestPartialOutcomeMergeLeavesOtherFields(t *testing.T) {
	m := newTestMatch(t)

	_, warns := m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID:   "mk-1",
		Name: ptr("Winner"),
		Outcomes: []OutcomeUpsert{
			{ID: "o1", Name: ptr("Team Liquid"), Price: ptr(1.67)},
		},
	}}})
	if len(warns) != 0 {
		t.Fatalf("unexpected warns: %v", warns)
	}

	// Status-only update must not touch price or name.
	m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID: "mk-1",
		Outcomes: []OutcomeUpsert{
			{ID: "o1", Status: ptr(OutcomeSuspended)},
		},
	}}})
	mk, _ := m.Market("mk-1")
	o := mk.Outcomes[0]
	if o.Price != 1.67 || o.Name != "Team Liquid" {
		t.Errorf("status merge touched other fields: price=%v name=%q", o.Price, o.Name)
	}
	if o.Status != OutcomeSuspended {
		t.Errorf("status = %q, want suspended", o.Status)
	}

	// Price-only update must not touch status.
	m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID: "mk-1",
		Outcomes: []OutcomeUpsert{
			{ID: "o1", Price: ptr(1.95)},
		},
	}}})
	if o.Price != 1.95 {
		t.Errorf("price = %v, want 1.95", o.Price)
	}
	if o.Status != OutcomeSuspended {
		t.Errorf("price merge touched status: %q", o.Status)
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	m := newTestMatch(t)

	for _, id := range []string{"o1", "o2", "o3"} {
		m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
			ID:       "mk-1",
			Outcomes: []OutcomeUpsert{{ID: id, Price: ptr(2.0)}},
		}}})
	}

	// Merging unrelated fields in a different order must not reorder.
	m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID: "mk-1",
		Outcomes: []OutcomeUpsert{
			{ID: "o3", Status: ptr(OutcomeSuspended)},
			{ID: "o1", Price: ptr(2.5)},
		},
	}}})

	mk, _ := m.Market("mk-1")
	got := []string{}
	for _, o := range mk.Outcomes {
		got = append(got, o.ID)
	}
	want := []string{"o1", "o2", "o3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("outcome order = %v, want %v", got, want)
		}
	}
}

func TestMarketOrderPreservedAndRemovable(t *testing.T) {
	m := newTestMatch(t)
	for _, id := range []string{"mk-a", "mk-b", "mk-c"} {
		m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
			ID:       id,
			Outcomes: []OutcomeUpsert{{ID: id + "-o", Price: ptr(1.5)}},
		}}})
	}
	m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{ID: "mk-b", Remove: true}}})

	if len(m.Markets) != 2 || m.Markets[0].ID != "mk-a" || m.Markets[1].ID != "mk-c" {
		ids := []string{}
		for _, mk := range m.Markets {
			ids = append(ids, mk.ID)
		}
		t.Fatalf("markets after removal = %v", ids)
	}
	if _, ok := m.Market("mk-c"); !ok {
		t.Error("index not rebuilt after removal")
	}
}

func TestUnknownStatusSkipsFieldOnly(t *testing.T) {
	m := newTestMatch(t)
	m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID:       "mk-1",
		Outcomes: []OutcomeUpsert{{ID: "o1", Price: ptr(1.8)}},
	}}})

	_, warns := m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID: "mk-1",
		Outcomes: []OutcomeUpsert{
			{ID: "o1", Price: ptr(1.9), Status: ptr(OutcomeStatus("mystery"))},
		},
	}}})
	if len(warns) != 1 || !errors.Is(warns[0], ErrUnknownStatus) {
		t.Fatalf("warns = %v, want one ErrUnknownStatus", warns)
	}

	mk, _ := m.Market("mk-1")
	o := mk.Outcomes[0]
	if o.Price != 1.9 {
		t.Errorf("price not applied alongside unknown status: %v", o.Price)
	}
	if o.Status != OutcomeOpen {
		t.Errorf("status changed on unknown value: %q", o.Status)
	}
}

func TestSubUnitPriceRejectedPerEntity(t *testing.T) {
	m := newTestMatch(t)
	_, warns := m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID: "mk-1",
		Outcomes: []OutcomeUpsert{
			{ID: "bad", Price: ptr(0.85)},
			{ID: "good", Price: ptr(2.10)},
		},
	}}})
	if len(warns) != 1 || !errors.Is(warns[0], ErrMalformedEntity) {
		t.Fatalf("warns = %v, want one ErrMalformedEntity", warns)
	}
	mk, _ := m.Market("mk-1")
	if len(mk.Outcomes) != 1 || mk.Outcomes[0].ID != "good" {
		t.Errorf("bad outcome not isolated: %+v", mk.Outcomes)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := newTestMatch(t)
	m.ApplyUpdate(MatchUpdate{Markets: []MarketUpsert{{
		ID:       "mk-1",
		Outcomes: []OutcomeUpsert{{ID: "o1", Price: ptr(1.5), Line: ptr(2.5)}},
	}}})

	c := m.Clone()
	m.ApplyUpdate(MatchUpdate{
		Score: ptr("1:0"),
		Markets: []MarketUpsert{{
			ID:       "mk-1",
			Outcomes: []OutcomeUpsert{{ID: "o1", Price: ptr(3.0), Line: ptr(3.5)}},
		}},
	})

	if c.Score != "" {
		t.Errorf("clone score mutated: %q", c.Score)
	}
	mk, _ := c.Market("mk-1")
	if mk.Outcomes[0].Price != 1.5 || *mk.Outcomes[0].Line != 2.5 {
		t.Errorf("clone outcome mutated: %+v", mk.Outcomes[0])
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"  Natus   Vincere ": "natus vincere",
		"Virtus.pro":         "virtus.pro",
		"Berlín Ésports":     "berlin esports",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
