// Package ggbet translates the GG.bet graphql-ws match subscription
// into normalized updates. Prices arrive as decimal odds already; they
// are still validated through the codec before entering the model.
package ggbet

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/calebward/oddsfeed/internal/adapters"
	"github.com/calebward/oddsfeed/internal/core/model"
	"github.com/calebward/oddsfeed/internal/core/odds"
	"github.com/calebward/oddsfeed/internal/telemetry"
)

const Operator = "ggbet"

func init() {
	adapters.Register(Operator, func() adapters.Adapter { return &Adapter{} })
}

// Adapter tracks which match ids it has already announced so only the
// first sighting carries a create definition; every later snapshot is
// folded into a field-wise merge.
type Adapter struct {
	seen map[string]bool
}

func (a *Adapter) Operator() string { return Operator }

func (a *Adapter) Forget(matchID string) { delete(a.seen, matchID) }

// Translate decodes one subscription payload. The data root carries
// either a single match or a batch; both shapes occur on the wire.
func (a *Adapter) Translate(raw []byte) ([]model.MatchUpdate, error) {
	var body struct {
		Data struct {
			Matches json.RawMessage `json:"matches"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("ggbet payload: %w", err)
	}
	if len(body.Data.Matches) == 0 {
		return nil, nil
	}

	var events []wsMatch
	if body.Data.Matches[0] == '[' {
		if err := json.Unmarshal(body.Data.Matches, &events); err != nil {
			return nil, fmt.Errorf("ggbet match batch: %w", err)
		}
	} else {
		var one wsMatch
		if err := json.Unmarshal(body.Data.Matches, &one); err != nil {
			return nil, fmt.Errorf("ggbet match: %w", err)
		}
		events = []wsMatch{one}
	}

	if a.seen == nil {
		a.seen = make(map[string]bool)
	}

	var updates []model.MatchUpdate
	for _, ev := range events {
		u, ok := a.translateMatch(ev)
		if !ok {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		updates = append(updates, u)
	}
	return updates, nil
}

type wsMatch struct {
	ID      string     `json:"id"`
	Fixture wsFixture  `json:"fixture"`
	Markets []wsMarket `json:"markets"`
	Meta    []wsMeta   `json:"meta"`
}

type wsFixture struct {
	Title       string         `json:"title"`
	StartTime   string         `json:"startTime"`
	Status      string         `json:"status"`
	Score       string         `json:"score"`
	Competitors []wsCompetitor `json:"competitors"`
	Tournament  *wsTournament  `json:"tournament"`
}

type wsCompetitor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Logo     string `json:"logo"`
	HomeAway string `json:"homeAway"` // "HOME" or "AWAY"
}

type wsTournament struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
	DateStart   string `json:"dateStart"`
	DateEnd     string `json:"dateEnd"`
	Logo        string `json:"logo"`
}

type wsMarket struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Status     string        `json:"status"`
	Odds       []wsOdd       `json:"odds"`
	Specifiers []wsSpecifier `json:"specifiers"`
}

type wsOdd struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Value         float64  `json:"value"`
	IsActive      bool     `json:"isActive"`
	Status        string   `json:"status"`
	CompetitorIDs []string `json:"competitorIds"`
}

type wsSpecifier struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wsMeta struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (a *Adapter) translateMatch(ev wsMatch) (model.MatchUpdate, bool) {
	if ev.ID == "" {
		return model.MatchUpdate{}, false
	}

	u := model.MatchUpdate{Operator: Operator, MatchID: ev.ID}
	status := mapMatchStatus(ev.Fixture.Status)

	if status == model.MatchFinished {
		if !a.seen[ev.ID] {
			return model.MatchUpdate{}, false
		}
		delete(a.seen, ev.ID)
		u.Remove = true
		return u, true
	}

	home, away, ok := splitCompetitors(ev.Fixture.Competitors)
	if !ok {
		telemetry.Warnf("ggbet: match %s: competitors missing HOME/AWAY split", ev.ID)
		return model.MatchUpdate{}, false
	}

	if !a.seen[ev.ID] {
		a.seen[ev.ID] = true
		info := model.MatchInfo{
			Title:     ev.Fixture.Title,
			StartTime: parseTime(ev.Fixture.StartTime),
			Status:    status,
			Home:      home,
			Away:      away,
			Score:     ev.Fixture.Score,
		}
		if t := ev.Fixture.Tournament; t != nil {
			info.Tournament = &model.Tournament{
				ID:          t.ID,
				Name:        t.Name,
				CountryCode: t.CountryCode,
				StartDate:   parseTime(t.DateStart),
				EndDate:     parseTime(t.DateEnd),
				Logo:        t.Logo,
			}
		}
		for _, meta := range ev.Meta {
			if meta.Name == "bo" {
				if bo, err := strconv.Atoi(meta.Value); err == nil {
					info.BestOf = bo
				}
			}
		}
		u.Create = &info
	} else {
		title := ev.Fixture.Title
		score := ev.Fixture.Score
		u.Title = &title
		u.Status = &status
		u.Score = &score
		if st := parseTime(ev.Fixture.StartTime); !st.IsZero() {
			u.StartTime = &st
		}
		u.Teams = &model.TeamPair{Home: home, Away: away}
	}

	for _, mk := range ev.Markets {
		mu, ok := translateMarket(ev.ID, mk)
		if !ok {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		u.Markets = append(u.Markets, mu)
	}
	return u, true
}

func splitCompetitors(cs []wsCompetitor) (home, away model.Team, ok bool) {
	var haveHome, haveAway bool
	for _, c := range cs {
		t := model.Team{ID: c.ID, Name: c.Name, Logo: c.Logo}
		switch c.HomeAway {
		case "HOME":
			home, haveHome = t, true
		case "AWAY":
			away, haveAway = t, true
		}
	}
	return home, away, haveHome && haveAway
}

func translateMarket(matchID string, mk wsMarket) (model.MarketUpsert, bool) {
	if mk.ID == "" {
		return model.MarketUpsert{}, false
	}
	name := mk.Name
	status := mapMarketStatus(mk.Status)
	mu := model.MarketUpsert{
		ID:     mk.ID,
		Name:   &name,
		Status: &status,
	}
	for _, sp := range mk.Specifiers {
		if mu.Specifiers == nil {
			mu.Specifiers = make(map[string]string, len(mk.Specifiers))
		}
		mu.Specifiers[sp.Name] = sp.Value
	}
	for _, odd := range mk.Odds {
		if odd.ID == "" {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		price, err := odds.CheckDecimal(odd.Value)
		if err != nil {
			telemetry.Metrics.EntitiesSkipped.Inc()
			telemetry.Warnf("ggbet: match %s market %s odd %s: %v", matchID, mk.ID, odd.ID, err)
			continue
		}
		oname := odd.Name
		ostatus := mapOutcomeStatus(odd.Status, odd.IsActive)
		mu.Outcomes = append(mu.Outcomes, model.OutcomeUpsert{
			ID:            odd.ID,
			Name:          &oname,
			Price:         &price,
			CompetitorIDs: odd.CompetitorIDs,
			Status:        &ostatus,
		})
	}
	return mu, true
}

func mapMatchStatus(s string) model.MatchStatus {
	switch s {
	case "NOT_STARTED", "PLANNED", "SCHEDULED":
		return model.MatchScheduled
	case "LIVE", "IN_PROGRESS", "STARTED":
		return model.MatchLive
	case "ENDED", "FINISHED", "CLOSED":
		return model.MatchFinished
	}
	// Passed through unmapped; the model records the unknown status.
	return model.MatchStatus(s)
}

func mapMarketStatus(s string) model.MarketStatus {
	switch s {
	case "ACTIVE", "OPEN":
		return model.MarketOpen
	case "SUSPENDED":
		return model.MarketSuspended
	case "DEACTIVATED", "CLOSED":
		return model.MarketClosed
	case "RESULTED", "SETTLED":
		return model.MarketSettled
	}
	return model.MarketStatus(s)
}

func mapOutcomeStatus(s string, active bool) model.OutcomeStatus {
	if !active {
		return model.OutcomeSuspended
	}
	switch s {
	case "ACTIVE", "OPEN":
		return model.OutcomeOpen
	case "SUSPENDED":
		return model.OutcomeSuspended
	case "DEACTIVATED", "CLOSED":
		return model.OutcomeClosed
	case "RESULTED", "SETTLED":
		return model.OutcomeSettled
	}
	return model.OutcomeStatus(s)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
