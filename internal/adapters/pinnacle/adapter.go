// Package pinnacle translates the Pinnacle guest API. Two document
// kinds flow through one adapter: the league matchup list and the
// per-matchup straight-market list, distinguished by shape since the
// API serves both from the same polling cycle.
package pinnacle

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

const Operator = "pinnacle"

func init() {
	adapters.Register(Operator, func() adapters.Adapter { return &Adapter{} })
}

type Adapter struct {
	seen map[string]bool
}

func (a *Adapter) Operator() string { return Operator }

func (a *Adapter) Forget(matchID string) { delete(a.seen, matchID) }

func (a *Adapter) Translate(raw []byte) ([]model.MatchUpdate, error) {
	var probe []json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("pinnacle document: %w", err)
	}
	if len(probe) == 0 {
		return nil, nil
	}
	if a.seen == nil {
		a.seen = make(map[string]bool)
	}

	// Matchup objects carry participants; market objects carry prices.
	var kind struct {
		Participants []json.RawMessage `json:"participants"`
		Prices       []json.RawMessage `json:"prices"`
	}
	if err := json.Unmarshal(probe[0], &kind); err != nil {
		return nil, fmt.Errorf("pinnacle document: %w", err)
	}

	switch {
	case kind.Participants != nil:
		var matchups []pMatchup
		if err := json.Unmarshal(raw, &matchups); err != nil {
			return nil, fmt.Errorf("pinnacle matchups: %w", err)
		}
		return a.translateMatchups(matchups), nil
	case kind.Prices != nil:
		var markets []pMarket
		if err := json.Unmarshal(raw, &markets); err != nil {
			return nil, fmt.Errorf("pinnacle markets: %w", err)
		}
		return a.translateMarkets(markets), nil
	}
	return nil, fmt.Errorf("pinnacle document: unrecognized element shape")
}

type pMatchup struct {
	ID           int64          `json:"id"`
	MatchupID    int64          `json:"matchupId"`
	StartTime    string         `json:"startTime"`
	Status       string         `json:"status"` // started, pending, completed
	Participants []pParticipant `json:"participants"`
	League       *struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"league"`
}

type pParticipant struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Alignment string `json:"alignment"` // "home" or "away"
}

type pMarket struct {
	MatchupID int64       `json:"matchupId"`
	Type      string      `json:"type"` // moneyline, spread, total
	Period    json.Number `json:"period"`
	Status    string      `json:"status"`
	Prices    []pPrice    `json:"prices"`
}

type pPrice struct {
	Designation string   `json:"designation"` // "home", "away", "over", "under"
	Price       int      `json:"price"`       // American
	Points      *float64 `json:"points"`
}

func (a *Adapter) translateMatchups(matchups []pMatchup) []model.MatchUpdate {
	var updates []model.MatchUpdate
	for _, m := range matchups {
		id := m.ID
		if id == 0 {
			id = m.MatchupID
		}
		if id == 0 {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		matchID := strconv.FormatInt(id, 10)

		u := model.MatchUpdate{Operator: Operator, MatchID: matchID}
		status := mapMatchupStatus(m.Status)

		if status == model.MatchFinished {
			if !a.seen[matchID] {
				continue
			}
			delete(a.seen, matchID)
			u.Remove = true
			updates = append(updates, u)
			continue
		}

		home, away, ok := splitParticipants(m.Participants)
		if !ok {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}

		if !a.seen[matchID] {
			a.seen[matchID] = true
			u.Create = &model.MatchInfo{
				Title:     home.Name + " vs " + away.Name,
				StartTime: parseTime(m.StartTime),
				Status:    status,
				Home:      home,
				Away:      away,
			}
			if m.League != nil {
				u.Create.Tournament = &model.Tournament{
					ID:   strconv.FormatInt(m.League.ID, 10),
					Name: m.League.Name,
				}
			}
		} else {
			u.Status = &status
			u.Teams = &model.TeamPair{Home: home, Away: away}
		}
		updates = append(updates, u)
	}
	return updates
}

func (a *Adapter) translateMarkets(markets []pMarket) []model.MatchUpdate {
	byMatch := make(map[string][]model.MarketUpsert)
	var order []string

	for _, mk := range markets {
		if mk.MatchupID == 0 {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		matchID := strconv.FormatInt(mk.MatchupID, 10)
		if !a.seen[matchID] {
			// Markets for a matchup this poll cycle never announced.
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		mu, ok := translateMarket(mk)
		if !ok {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		if _, seen := byMatch[matchID]; !seen {
			order = append(order, matchID)
		}
		byMatch[matchID] = append(byMatch[matchID], mu)
	}

	var updates []model.MatchUpdate
	for _, matchID := range order {
		updates = append(updates, model.MatchUpdate{
			Operator: Operator,
			MatchID:  matchID,
			Markets:  byMatch[matchID],
		})
	}
	return updates
}

func translateMarket(mk pMarket) (model.MarketUpsert, bool) {
	if mk.Type == "" || len(mk.Prices) == 0 {
		return model.MarketUpsert{}, false
	}

	period := mk.Period.String()
	if period == "" {
		period = "0"
	}
	id := mk.Type + ":" + period
	name := marketName(mk.Type, period)
	status := model.MarketOpen
	if mk.Status == "suspended" {
		status = model.MarketSuspended
	}

	mu := model.MarketUpsert{
		ID:         id,
		Name:       &name,
		Status:     &status,
		Specifiers: map[string]string{"period": period},
	}
	for _, p := range mk.Prices {
		if p.Designation == "" {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		price, err := odds.AmericanToDecimal(p.Price)
		if err != nil {
			telemetry.Metrics.EntitiesSkipped.Inc()
			telemetry.Warnf("pinnacle: market %s %s: %v", id, p.Designation, err)
			continue
		}
		oname := p.Designation
		ostatus := model.OutcomeOpen
		ou := model.OutcomeUpsert{
			ID:     p.Designation,
			Name:   &oname,
			Price:  &price,
			Status: &ostatus,
		}
		if p.Points != nil {
			line := *p.Points
			ou.Line = &line
		}
		mu.Outcomes = append(mu.Outcomes, ou)
	}
	if len(mu.Outcomes) == 0 {
		return model.MarketUpsert{}, false
	}
	return mu, true
}

// splitParticipants prefers the explicit alignment discriminator; when
// the feed omits it the positional order stands in, matching how the
// book renders untagged participants.
func splitParticipants(ps []pParticipant) (home, away model.Team, ok bool) {
	var haveHome, haveAway bool
	for _, p := range ps {
		t := model.Team{ID: strconv.FormatInt(p.ID, 10), Name: p.Name}
		switch p.Alignment {
		case "home":
			home, haveHome = t, true
		case "away":
			away, haveAway = t, true
		}
	}
	if haveHome && haveAway {
		return home, away, true
	}
	if len(ps) >= 2 && ps[0].Name != "" && ps[1].Name != "" {
		home = model.Team{ID: strconv.FormatInt(ps[0].ID, 10), Name: ps[0].Name}
		away = model.Team{ID: strconv.FormatInt(ps[1].ID, 10), Name: ps[1].Name}
		return home, away, true
	}
	return model.Team{}, model.Team{}, false
}

func marketName(typ, period string) string {
	base := typ
	switch typ {
	case "moneyline":
		base = "Match Winner"
	case "spread":
		base = "Handicap"
	case "total":
		base = "Total"
	}
	if period != "0" {
		return base + " (Map " + period + ")"
	}
	return base
}

func mapMatchupStatus(s string) model.MatchStatus {
	switch s {
	case "pending", "unavailable", "":
		return model.MatchScheduled
	case "started", "live":
		return model.MatchLive
	case "completed", "settled", "cancelled":
		return model.MatchFinished
	}
	return model.MatchStatus(s)
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
