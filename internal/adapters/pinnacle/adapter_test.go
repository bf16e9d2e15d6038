package pinnacle

import (
	"testing"

	"github.com/calebward/oddsfeed/internal/core/model"
)

const matchupDoc = `[
  {
    "id": 777,
    "startTime": "2026-08-29T20:00:00Z",
    "status": "started",
    "participants": [
      {"id": 1, "name": "Team Liquid", "alignment": "home"},
      {"id": 2, "name": "Team Spirit", "alignment": "away"}
    ],
    "league": {"id": 12, "name": "The International"}
  }
]`

const marketDoc = `[
  {
    "matchupId": 777,
    "type": "moneyline",
    "period": 0,
    "prices": [
      {"designation": "home", "price": -150},
      {"designation": "away", "price": 130}
    ]
  },
  {
    "matchupId": 777,
    "type": "spread",
    "period": 1,
    "prices": [
      {"designation": "home", "price": -110, "points": -1.5},
      {"designation": "away", "price": -110, "points": 1.5}
    ]
  }
]`

func TestTranslateMatchupsThenMarkets(t *testing.T) {
	a := &Adapter{}

	updates, err := a.Translate([]byte(matchupDoc))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	u := updates[0]
	if u.MatchID != "777" || u.Create == nil {
		t.Fatalf("update = %+v", u)
	}
	if u.Create.Home.Name != "Team Liquid" || u.Create.Away.Name != "Team Spirit" {
		t.Fatalf("teams = %q / %q", u.Create.Home.Name, u.Create.Away.Name)
	}
	if u.Create.Status != model.MatchLive {
		t.Fatalf("status = %s", u.Create.Status)
	}

	updates, err = a.Translate([]byte(marketDoc))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d market updates, want 1", len(updates))
	}
	mkts := updates[0].Markets
	if len(mkts) != 2 {
		t.Fatalf("markets = %d, want 2", len(mkts))
	}

	money := mkts[0]
	if money.ID != "moneyline:0" {
		t.Fatalf("market id = %q", money.ID)
	}
	if got := *money.Outcomes[0].Price; got != 1.67 {
		t.Fatalf("-150 -> %v, want 1.67", got)
	}
	if got := *money.Outcomes[1].Price; got != 2.30 {
		t.Fatalf("+130 -> %v, want 2.30", got)
	}

	spread := mkts[1]
	if got := *spread.Outcomes[0].Price; got != 1.91 {
		t.Fatalf("-110 -> %v, want 1.91", got)
	}
	if got := *spread.Outcomes[0].Line; got != -1.5 {
		t.Fatalf("points -> %v, want -1.5", got)
	}
	if spread.Specifiers["period"] != "1" {
		t.Fatalf("specifiers = %v", spread.Specifiers)
	}
}

func TestTranslateMarketsForUnknownMatchupDropped(t *testing.T) {
	a := &Adapter{}
	updates, err := a.Translate([]byte(marketDoc))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 0 {
		t.Fatalf("markets without an announced matchup should drop, got %+v", updates)
	}
}

func TestTranslatePositionalFallback(t *testing.T) {
	doc := `[
	  {"id": 778, "status": "pending", "participants": [
	    {"id": 3, "name": "OG"},
	    {"id": 4, "name": "Gaimin Gladiators"}
	  ]}
	]`
	a := &Adapter{}
	updates, err := a.Translate([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	u := updates[0]
	if u.Create.Home.Name != "OG" || u.Create.Away.Name != "Gaimin Gladiators" {
		t.Fatalf("positional fallback broken: %q / %q", u.Create.Home.Name, u.Create.Away.Name)
	}
}

func TestTranslateCompletedMatchup(t *testing.T) {
	a := &Adapter{}
	if _, err := a.Translate([]byte(matchupDoc)); err != nil {
		t.Fatal(err)
	}
	done := `[{"id": 777, "status": "completed", "participants": [
	  {"id": 1, "name": "Team Liquid", "alignment": "home"},
	  {"id": 2, "name": "Team Spirit", "alignment": "away"}]}]`
	updates, err := a.Translate([]byte(done))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || !updates[0].Remove {
		t.Fatalf("completed matchup should remove, got %+v", updates)
	}
}

func TestTranslateZeroPriceSkipped(t *testing.T) {
	a := &Adapter{}
	if _, err := a.Translate([]byte(matchupDoc)); err != nil {
		t.Fatal(err)
	}
	doc := `[{"matchupId": 777, "type": "moneyline", "period": 0, "prices": [
	  {"designation": "home", "price": 0},
	  {"designation": "away", "price": 130}]}]`
	updates, err := a.Translate([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	outs := updates[0].Markets[0].Outcomes
	if len(outs) != 1 || outs[0].ID != "away" {
		t.Fatalf("zero price must drop its outcome alone: %+v", outs)
	}
}
