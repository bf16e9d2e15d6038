// Package model holds the normalized odds entities every vendor payload
// maps into, plus the mutation operations that keep them consistent.
// Construction and merging go through ApplyUpdate so invariants (prices
// >= 1.0, stable insertion order, status vocabulary) are enforced at one
// boundary instead of at every adapter.
package model

import "time"

type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchLive      MatchStatus = "live"
	MatchFinished  MatchStatus = "finished"
)

type MarketStatus string

const (
	MarketOpen      MarketStatus = "open"
	MarketSuspended MarketStatus = "suspended"
	MarketClosed    MarketStatus = "closed"
	MarketSettled   MarketStatus = "settled"
)

type OutcomeStatus string

const (
	OutcomeOpen      OutcomeStatus = "open"
	OutcomeSuspended OutcomeStatus = "suspended"
	OutcomeClosed    OutcomeStatus = "closed"
	OutcomeSettled   OutcomeStatus = "settled"
)

// Team is one side of a match. Immutable once set: a feed that redefines
// participants replaces the whole value.
type Team struct {
	ID   string
	Name string
	Logo string
	Side Side
}

// Tournament is shared by reference across matches of the same event
// series and does not change for the lifetime of a match.
type Tournament struct {
	ID          string
	Name        string
	CountryCode string
	StartDate   time.Time
	EndDate     time.Time
	Logo        string
}

// Outcome is a single priced selection. Price is decimal odds, already
// converted by the odds codec — never a raw vendor encoding.
type Outcome struct {
	ID            string
	Name          string
	Price         float64
	Line          *float64 // handicap/total line, nil when not a line market
	CompetitorIDs []string
	Status        OutcomeStatus
}

// Market holds an ordered set of outcomes. Insertion order is display
// order and is preserved across merges; outcome identities are stable.
type Market struct {
	ID         string
	Name       string
	Status     MarketStatus
	Specifiers map[string]string // variant attributes, e.g. "map" -> "2"
	Outcomes   []*Outcome

	outcomeIdx map[string]int
}

// Match is the unit of storage: one event in one operator's namespace.
// Identities are never compared across operators.
type Match struct {
	Operator   string
	ID         string
	Title      string
	StartTime  time.Time
	Status     MatchStatus
	Home       Team
	Away       Team
	Tournament *Tournament
	Markets    []*Market
	Score      string
	BestOf     int
	UpdatedAt  time.Time

	marketIdx map[string]int
}

func (m *Market) outcome(id string) (*Outcome, bool) {
	if m.outcomeIdx == nil {
		return nil, false
	}
	i, ok := m.outcomeIdx[id]
	if !ok {
		return nil, false
	}
	return m.Outcomes[i], true
}

func (m *Match) Market(id string) (*Market, bool) {
	if m.marketIdx == nil {
		return nil, false
	}
	i, ok := m.marketIdx[id]
	if !ok {
		return nil, false
	}
	return m.Markets[i], true
}

// Clone returns a deep copy. Readers of the snapshot store get clones so
// a concurrently applied update can never be observed half-way.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	if m.Tournament != nil {
		t := *m.Tournament
		out.Tournament = &t
	}
	out.Markets = make([]*Market, len(m.Markets))
	out.marketIdx = make(map[string]int, len(m.Markets))
	for i, mk := range m.Markets {
		out.Markets[i] = mk.clone()
		out.marketIdx[mk.ID] = i
	}
	return &out
}

func (mk *Market) clone() *Market {
	out := *mk
	if mk.Specifiers != nil {
		out.Specifiers = make(map[string]string, len(mk.Specifiers))
		for k, v := range mk.Specifiers {
			out.Specifiers[k] = v
		}
	}
	out.Outcomes = make([]*Outcome, len(mk.Outcomes))
	out.outcomeIdx = make(map[string]int, len(mk.Outcomes))
	for i, o := range mk.Outcomes {
		oc := *o
		if o.Line != nil {
			l := *o.Line
			oc.Line = &l
		}
		oc.CompetitorIDs = append([]string(nil), o.CompetitorIDs...)
		out.Outcomes[i] = &oc
		out.outcomeIdx[o.ID] = i
	}
	return &out
}
