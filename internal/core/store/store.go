// Package store is the in-memory snapshot of all matches across
// operators. All mutation funnels through Apply; readers get deep copies
// and never block writers or observe a half-applied update.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/calebward/oddsfeed/internal/core/model"
	"github.com/calebward/oddsfeed/internal/telemetry"
)

// Key uniquely identifies a match. Identities are operator-scoped;
// the same id from two operators is two different matches.
type Key struct {
	Operator string
	MatchID  string
}

// ErrNotFound is returned for updates addressing a match that was never
// created (and lookups that miss).
var ErrNotFound = errors.New("match not found")

// Result reports what one Apply did to the snapshot.
type Result struct {
	Created bool
	Removed bool
	Changed []string
	Warns   []error
}

// Filter selects matches for List. Zero fields match everything.
type Filter struct {
	Operator     string
	Status       model.MatchStatus
	TournamentID string
}

// Store maps (operator, match id) to the current match snapshot.
// The RWMutex protects both the map and the match contents: matches are
// mutated only inside Apply while the write lock is held, so one match's
// update is atomic as a unit. Cross-match atomicity is not provided.
type Store struct {
	mu      sync.RWMutex
	matches map[Key]*model.Match
}

func New() *Store {
	return &Store{matches: make(map[Key]*model.Match)}
}

// Get returns a deep copy of one match.
func (s *Store) Get(operator, matchID string) (*model.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[Key{Operator: operator, MatchID: matchID}]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// List returns deep copies of all matches passing the filter, ordered by
// start time then id. The result is a point-in-time snapshot: callers
// can iterate it freely while writers keep applying updates.
func (s *Store) List(f Filter) []*model.Match {
	s.mu.RLock()
	out := make([]*model.Match, 0, len(s.matches))
	for _, m := range s.matches {
		if f.Operator != "" && m.Operator != f.Operator {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.TournamentID != "" && (m.Tournament == nil || m.Tournament.ID != f.TournamentID) {
			continue
		}
		out = append(out, m.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		if out[i].Operator != out[j].Operator {
			return out[i].Operator < out[j].Operator
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// Apply is the sole write path. It creates the match when the update
// carries a first-sighting definition, merges present fields otherwise,
// and removes the match when the feed marked it settled.
//
// A create hitting an existing id is vendor schema drift, not a failure:
// it is downgraded to a merge and surfaced via Result.Warns and the
// duplicate-match counter.
func (s *Store) Apply(u model.MatchUpdate) (Result, error) {
	start := time.Now()
	defer func() { telemetry.Metrics.ApplyLatency.Record(time.Since(start)) }()

	key := Key{Operator: u.Operator, MatchID: u.MatchID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Remove {
		if _, ok := s.matches[key]; !ok {
			return Result{}, ErrNotFound
		}
		delete(s.matches, key)
		telemetry.Metrics.ActiveMatches.Set(int64(len(s.matches)))
		return Result{Removed: true, Changed: []string{"removed"}}, nil
	}

	m, exists := s.matches[key]
	var res Result

	switch {
	case !exists && u.Create == nil:
		return Result{}, ErrNotFound

	case !exists:
		created, err := model.New(u.Operator, u.MatchID, *u.Create)
		if err != nil {
			return Result{}, err
		}
		s.matches[key] = created
		m = created
		res.Created = true
		res.Changed = append(res.Changed, "created")

	case u.Create != nil:
		// Duplicate create: keep the existing match, fold the definition
		// into the merge so the fresh snapshot still wins field by field.
		res.Warns = append(res.Warns, model.ErrDuplicateMatch)
		telemetry.Metrics.DuplicateMatches.Inc()
		foldCreateIntoUpdate(&u)
	}

	changed, warns := m.ApplyUpdate(u)
	res.Changed = append(res.Changed, changed...)
	res.Warns = append(res.Warns, warns...)
	m.UpdatedAt = time.Now()

	telemetry.Metrics.UpdatesApplied.Inc()
	telemetry.Metrics.ActiveMatches.Set(int64(len(s.matches)))
	return res, nil
}

// Remove deletes a match outside the feed path (staleness sweep).
func (s *Store) Remove(operator, matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key{Operator: operator, MatchID: matchID}
	if _, ok := s.matches[key]; !ok {
		return false
	}
	delete(s.matches, key)
	telemetry.Metrics.ActiveMatches.Set(int64(len(s.matches)))
	return true
}

// SweepStale removes matches with no update for at least ttl, skipping
// live matches (a live feed can legitimately go quiet between maps).
// Returns the removed keys so the caller can emit change events.
func (s *Store) SweepStale(ttl time.Duration, now time.Time) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Key
	for key, m := range s.matches {
		if m.Status == model.MatchLive {
			continue
		}
		if now.Sub(m.UpdatedAt) >= ttl {
			delete(s.matches, key)
			removed = append(removed, key)
		}
	}
	if len(removed) > 0 {
		telemetry.Metrics.MatchesSwept.Add(int64(len(removed)))
		telemetry.Metrics.ActiveMatches.Set(int64(len(s.matches)))
	}
	return removed
}

func foldCreateIntoUpdate(u *model.MatchUpdate) {
	c := u.Create
	u.Create = nil
	if u.Title == nil && c.Title != "" {
		u.Title = &c.Title
	}
	if u.StartTime == nil && !c.StartTime.IsZero() {
		u.StartTime = &c.StartTime
	}
	if u.Status == nil && c.Status != "" {
		u.Status = &c.Status
	}
	if u.Score == nil && c.Score != "" {
		u.Score = &c.Score
	}
	if u.BestOf == nil && c.BestOf != 0 {
		u.BestOf = &c.BestOf
	}
	if u.Teams == nil && (c.Home.Name != "" || c.Away.Name != "") {
		u.Teams = &model.TeamPair{Home: c.Home, Away: c.Away}
	}
	// Tournament stays immutable for the match lifetime.
}
