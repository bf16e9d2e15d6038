package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateMatch is returned when a create reaches a match id that
	// already exists. Non-fatal: the caller logs it and merges instead.
	ErrDuplicateMatch = errors.New("duplicate match")

	// ErrUnknownStatus is returned for a status outside the defined set.
	// Vendors grow their schemas; an unknown status skips the field and
	// is surfaced as a metric, never a session failure.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrMalformedEntity marks an entity update that cannot be applied
	// (missing id, price below 1.0). Scope is the single entity.
	ErrMalformedEntity = errors.New("malformed entity")
)

// MatchInfo is the full definition used when a match is first sighted.
type MatchInfo struct {
	Title      string
	StartTime  time.Time
	Status     MatchStatus
	Home       Team
	Away       Team
	Tournament *Tournament
	Score      string
	BestOf     int
}

// OutcomeUpsert creates or merges one outcome. Nil pointer fields are
// absent from the vendor payload and leave the current value untouched.
type OutcomeUpsert struct {
	ID            string
	Name          *string
	Price         *float64 // decimal odds, pre-converted by the codec
	Line          *float64
	CompetitorIDs []string
	Status        *OutcomeStatus
	Remove        bool
}

// MarketUpsert creates or merges one market and its outcomes.
type MarketUpsert struct {
	ID         string
	Name       *string
	Status     *MarketStatus
	Specifiers map[string]string
	Outcomes   []OutcomeUpsert
	Remove     bool
}

// MatchUpdate is the unit a payload adapter emits: every change to a
// single match decoded from one envelope. Absent fields merge to nothing.
type MatchUpdate struct {
	Operator string
	MatchID  string

	// Create carries the full definition; set when the payload describes
	// a match not necessarily seen before.
	Create *MatchUpdateCreate

	// Remove marks the match settled/removed by the feed.
	Remove bool

	Title     *string
	StartTime *time.Time
	Status    *MatchStatus
	Score     *string
	BestOf    *int
	// Teams replaces both participants wholesale; feeds never patch one side.
	Teams   *TeamPair
	Markets []MarketUpsert
}

type MatchUpdateCreate = MatchInfo

type TeamPair struct {
	Home Team
	Away Team
}

// New constructs a match from its first-sighting definition.
func New(operator, id string, info MatchInfo) (*Match, error) {
	if operator == "" || id == "" {
		return nil, fmt.Errorf("match %q/%q: %w", operator, id, ErrMalformedEntity)
	}
	status := info.Status
	if status == "" {
		status = MatchScheduled
	}
	if !validMatchStatus(status) {
		return nil, fmt.Errorf("match status %q: %w", status, ErrUnknownStatus)
	}
	home, away := info.Home, info.Away
	home.Side, away.Side = SideHome, SideAway
	return &Match{
		Operator:   operator,
		ID:         id,
		Title:      info.Title,
		StartTime:  info.StartTime,
		Status:     status,
		Home:       home,
		Away:       away,
		Tournament: info.Tournament,
		Score:      info.Score,
		BestOf:     info.BestOf,
		marketIdx:  make(map[string]int),
	}, nil
}

// ApplyUpdate merges an update into the match. Fields absent from the
// update are never nulled out. Returns the coarse names of changed
// fields plus per-entity warnings (unknown statuses, malformed outcomes)
// that skipped their entity without aborting the rest.
func (m *Match) ApplyUpdate(u MatchUpdate) (changed []string, warns []error) {
	if u.Title != nil && *u.Title != m.Title {
		m.Title = *u.Title
		changed = append(changed, "title")
	}
	if u.StartTime != nil && !u.StartTime.Equal(m.StartTime) {
		m.StartTime = *u.StartTime
		changed = append(changed, "start_time")
	}
	if u.Status != nil {
		if !validMatchStatus(*u.Status) {
			warns = append(warns, fmt.Errorf("match status %q: %w", *u.Status, ErrUnknownStatus))
		} else if *u.Status != m.Status {
			m.Status = *u.Status
			changed = append(changed, "status")
		}
	}
	if u.Score != nil && *u.Score != m.Score {
		m.Score = *u.Score
		changed = append(changed, "score")
	}
	if u.BestOf != nil && *u.BestOf != m.BestOf {
		m.BestOf = *u.BestOf
		changed = append(changed, "best_of")
	}
	if u.Teams != nil {
		home, away := u.Teams.Home, u.Teams.Away
		home.Side, away.Side = SideHome, SideAway
		if home != m.Home || away != m.Away {
			m.Home, m.Away = home, away
			changed = append(changed, "teams")
		}
	}

	for _, mu := range u.Markets {
		ch, ws := m.upsertMarket(mu)
		warns = append(warns, ws...)
		if ch {
			changed = append(changed, "market:"+mu.ID)
		}
	}
	return changed, warns
}

func (m *Match) upsertMarket(mu MarketUpsert) (changed bool, warns []error) {
	if mu.ID == "" {
		return false, []error{fmt.Errorf("market with empty id: %w", ErrMalformedEntity)}
	}

	if mu.Remove {
		if m.marketIdx == nil {
			return false, nil
		}
		i, ok := m.marketIdx[mu.ID]
		if !ok {
			return false, nil
		}
		m.Markets = append(m.Markets[:i], m.Markets[i+1:]...)
		delete(m.marketIdx, mu.ID)
		for j := i; j < len(m.Markets); j++ {
			m.marketIdx[m.Markets[j].ID] = j
		}
		return true, nil
	}

	mk, ok := m.Market(mu.ID)
	if !ok {
		mk = &Market{ID: mu.ID, Status: MarketOpen, outcomeIdx: make(map[string]int)}
		if m.marketIdx == nil {
			m.marketIdx = make(map[string]int)
		}
		m.marketIdx[mu.ID] = len(m.Markets)
		m.Markets = append(m.Markets, mk)
		changed = true
	}

	if mu.Name != nil && *mu.Name != mk.Name {
		mk.Name = *mu.Name
		changed = true
	}
	if mu.Status != nil {
		if !validMarketStatus(*mu.Status) {
			warns = append(warns, fmt.Errorf("market %s status %q: %w", mu.ID, *mu.Status, ErrUnknownStatus))
		} else if *mu.Status != mk.Status {
			mk.Status = *mu.Status
			changed = true
		}
	}
	for k, v := range mu.Specifiers {
		if mk.Specifiers == nil {
			mk.Specifiers = make(map[string]string)
		}
		if mk.Specifiers[k] != v {
			mk.Specifiers[k] = v
			changed = true
		}
	}

	for _, ou := range mu.Outcomes {
		ch, err := mk.upsertOutcome(ou)
		if err != nil {
			warns = append(warns, err)
		}
		changed = changed || ch
	}
	return changed, warns
}

func (mk *Market) upsertOutcome(ou OutcomeUpsert) (changed bool, err error) {
	if ou.ID == "" {
		return false, fmt.Errorf("market %s: outcome with empty id: %w", mk.ID, ErrMalformedEntity)
	}

	if ou.Remove {
		if mk.outcomeIdx == nil {
			return false, nil
		}
		i, ok := mk.outcomeIdx[ou.ID]
		if !ok {
			return false, nil
		}
		mk.Outcomes = append(mk.Outcomes[:i], mk.Outcomes[i+1:]...)
		delete(mk.outcomeIdx, ou.ID)
		for j := i; j < len(mk.Outcomes); j++ {
			mk.outcomeIdx[mk.Outcomes[j].ID] = j
		}
		return true, nil
	}

	if ou.Price != nil && *ou.Price < 1.0 {
		return false, fmt.Errorf("market %s outcome %s price %v: %w",
			mk.ID, ou.ID, *ou.Price, ErrMalformedEntity)
	}
	if ou.Status != nil && !validOutcomeStatus(*ou.Status) {
		// The rest of the outcome still applies; only the status is dropped.
		err = fmt.Errorf("market %s outcome %s status %q: %w", mk.ID, ou.ID, *ou.Status, ErrUnknownStatus)
		ou.Status = nil
	}

	o, ok := mk.outcome(ou.ID)
	if !ok {
		if ou.Price == nil {
			return false, fmt.Errorf("market %s outcome %s created without price: %w",
				mk.ID, ou.ID, ErrMalformedEntity)
		}
		o = &Outcome{ID: ou.ID, Status: OutcomeOpen}
		if mk.outcomeIdx == nil {
			mk.outcomeIdx = make(map[string]int)
		}
		mk.outcomeIdx[ou.ID] = len(mk.Outcomes)
		mk.Outcomes = append(mk.Outcomes, o)
		changed = true
	}

	if ou.Name != nil && *ou.Name != o.Name {
		o.Name = *ou.Name
		changed = true
	}
	if ou.Price != nil && *ou.Price != o.Price {
		o.Price = *ou.Price
		changed = true
	}
	if ou.Line != nil && (o.Line == nil || *o.Line != *ou.Line) {
		l := *ou.Line
		o.Line = &l
		changed = true
	}
	if ou.CompetitorIDs != nil {
		o.CompetitorIDs = append([]string(nil), ou.CompetitorIDs...)
		changed = true
	}
	if ou.Status != nil && *ou.Status != o.Status {
		o.Status = *ou.Status
		changed = true
	}
	return changed, err
}

func validMatchStatus(s MatchStatus) bool {
	switch s {
	case MatchScheduled, MatchLive, MatchFinished:
		return true
	}
	return false
}

func validMarketStatus(s MarketStatus) bool {
	switch s {
	case MarketOpen, MarketSuspended, MarketClosed, MarketSettled:
		return true
	}
	return false
}

func validOutcomeStatus(s OutcomeStatus) bool {
	switch s {
	case OutcomeOpen, OutcomeSuspended, OutcomeClosed, OutcomeSettled:
		return true
	}
	return false
}
