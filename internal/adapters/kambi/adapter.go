// Package kambi translates Kambi offering-API documents (BetMGM and the
// other Kambi-network books). Odds and handicap lines arrive scaled by
// 1000; some outcomes only carry an American price.
package kambi

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

const Operator = "kambi"

func init() {
	adapters.Register(Operator, func() adapters.Adapter { return &Adapter{} })
}

type Adapter struct {
	seen map[string]bool
}

func (a *Adapter) Operator() string { return Operator }

func (a *Adapter) Forget(matchID string) { delete(a.seen, matchID) }

// Translate decodes one betoffer document: the event list plus the
// betOffers priced against those events.
func (a *Adapter) Translate(raw []byte) ([]model.MatchUpdate, error) {
	var doc struct {
		Events    []kEvent    `json:"events"`
		BetOffers []kBetOffer `json:"betOffers"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("kambi document: %w", err)
	}
	if a.seen == nil {
		a.seen = make(map[string]bool)
	}

	offersByEvent := make(map[string][]kBetOffer)
	for _, bo := range doc.BetOffers {
		id := bo.EventID.String()
		offersByEvent[id] = append(offersByEvent[id], bo)
	}

	var updates []model.MatchUpdate
	for _, ev := range doc.Events {
		u, ok := a.translateEvent(ev, offersByEvent[ev.ID.String()])
		if !ok {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		updates = append(updates, u)
	}
	return updates, nil
}

type kEvent struct {
	ID           json.Number     `json:"id"`
	Name         string          `json:"name"`
	Start        json.RawMessage `json:"start"` // epoch millis or RFC3339 string
	State        string          `json:"state"` // NOT_STARTED, STARTED, FINISHED
	HomeName     string          `json:"homeName"`
	AwayName     string          `json:"awayName"`
	Group        string          `json:"group"`
	GroupID      json.Number     `json:"groupId"`
	Sport        string          `json:"sport"`
	Participants []kParticipant  `json:"participants"`
	LiveData     *kLiveData      `json:"liveData"`
}

type kParticipant struct {
	ParticipantID json.Number `json:"participantId"`
	Name          string      `json:"name"`
	Home          bool        `json:"home"`
}

type kLiveData struct {
	Score *struct {
		Home string `json:"home"`
		Away string `json:"away"`
		Info string `json:"info"`
	} `json:"score"`
}

type kBetOffer struct {
	ID        json.Number `json:"id"`
	EventID   json.Number `json:"eventId"`
	Suspended bool        `json:"suspended"`
	Criterion struct {
		Label        string `json:"label"`
		EnglishLabel string `json:"englishLabel"`
	} `json:"criterion"`
	Outcomes []kOutcome `json:"outcomes"`
}

type kOutcome struct {
	ID            json.Number `json:"id"`
	Odds          *int        `json:"odds"` // decimal odds * 1000
	OddsAmerican  string      `json:"oddsAmerican"`
	Label         string      `json:"label"`
	EnglishLabel  string      `json:"englishLabel"`
	Line          *int        `json:"line"` // handicap * 1000
	ParticipantID json.Number `json:"participantId"`
	Status        string      `json:"status"` // OPEN, SUSPENDED, CLOSED, SETTLED
}

func (a *Adapter) translateEvent(ev kEvent, offers []kBetOffer) (model.MatchUpdate, bool) {
	id := ev.ID.String()
	if id == "" || id == "0" {
		return model.MatchUpdate{}, false
	}

	u := model.MatchUpdate{Operator: Operator, MatchID: id}
	status := mapEventState(ev.State)

	if status == model.MatchFinished {
		if !a.seen[id] {
			return model.MatchUpdate{}, false
		}
		delete(a.seen, id)
		u.Remove = true
		return u, true
	}

	home, away := splitParticipants(ev)
	score := formatScore(ev.LiveData)

	if !a.seen[id] {
		a.seen[id] = true
		u.Create = &model.MatchInfo{
			Title:     ev.Name,
			StartTime: parseStart(ev.Start),
			Status:    status,
			Home:      home,
			Away:      away,
			Score:     score,
		}
		if ev.Group != "" {
			u.Create.Tournament = &model.Tournament{
				ID:   ev.GroupID.String(),
				Name: ev.Group,
			}
		}
	} else {
		title := ev.Name
		u.Title = &title
		u.Status = &status
		if score != "" {
			u.Score = &score
		}
	}

	for _, bo := range offers {
		mu, ok := translateOffer(bo)
		if !ok {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		u.Markets = append(u.Markets, mu)
	}
	return u, true
}

// splitParticipants assigns sides by the home flag when present. Some
// offering responses omit it; then the participant whose normalized
// name matches homeName takes the home slot. When neither discriminator
// matches anything the listing order stands in: first home, second away.
func splitParticipants(ev kEvent) (home, away model.Team) {
	home = model.Team{Name: ev.HomeName}
	away = model.Team{Name: ev.AwayName}

	homeName := model.NormalizeName(ev.HomeName)
	homeIdx := -1
	for i, p := range ev.Participants {
		if p.Home || (homeName != "" && model.NormalizeName(p.Name) == homeName) {
			homeIdx = i
			break
		}
	}

	switch {
	case homeIdx >= 0:
		p := ev.Participants[homeIdx]
		home = model.Team{ID: p.ParticipantID.String(), Name: p.Name}
		for i, q := range ev.Participants {
			if i == homeIdx {
				continue
			}
			away = model.Team{ID: q.ParticipantID.String(), Name: q.Name}
			break
		}
	case len(ev.Participants) >= 2:
		telemetry.Warnf("kambi: event %s: no home discriminator, using listing order", ev.ID.String())
		p0, p1 := ev.Participants[0], ev.Participants[1]
		home = model.Team{ID: p0.ParticipantID.String(), Name: p0.Name}
		away = model.Team{ID: p1.ParticipantID.String(), Name: p1.Name}
	}
	return home, away
}

func translateOffer(bo kBetOffer) (model.MarketUpsert, bool) {
	id := bo.ID.String()
	if id == "" || id == "0" {
		return model.MarketUpsert{}, false
	}

	name := bo.Criterion.EnglishLabel
	if name == "" {
		name = bo.Criterion.Label
	}
	status := model.MarketOpen
	if bo.Suspended {
		status = model.MarketSuspended
	}

	mu := model.MarketUpsert{ID: id, Name: &name, Status: &status}
	for _, oc := range bo.Outcomes {
		ou, ok := translateOutcome(id, oc)
		if !ok {
			telemetry.Metrics.EntitiesSkipped.Inc()
			continue
		}
		mu.Outcomes = append(mu.Outcomes, ou)
	}
	return mu, true
}

func translateOutcome(offerID string, oc kOutcome) (model.OutcomeUpsert, bool) {
	id := oc.ID.String()
	if id == "" || id == "0" {
		return model.OutcomeUpsert{}, false
	}

	price, err := outcomePrice(oc)
	if err != nil {
		telemetry.Warnf("kambi: offer %s outcome %s: %v", offerID, id, err)
		return model.OutcomeUpsert{}, false
	}

	name := oc.EnglishLabel
	if name == "" {
		name = oc.Label
	}
	status := mapOutcomeStatus(oc.Status)

	ou := model.OutcomeUpsert{
		ID:     id,
		Name:   &name,
		Price:  &price,
		Status: &status,
	}
	if oc.Line != nil {
		line, err := odds.ScaledToLine(*oc.Line, odds.DefaultScale)
		if err != nil {
			telemetry.Warnf("kambi: offer %s outcome %s line: %v", offerID, id, err)
		} else {
			ou.Line = &line
		}
	}
	if pid := oc.ParticipantID.String(); pid != "" && pid != "0" {
		ou.CompetitorIDs = []string{pid}
	}
	return ou, true
}

// outcomePrice prefers the scaled decimal field and falls back to the
// American price when the decimal is absent.
func outcomePrice(oc kOutcome) (float64, error) {
	if oc.Odds != nil {
		return odds.ScaledToDecimal(*oc.Odds, odds.DefaultScale)
	}
	if oc.OddsAmerican != "" {
		american, err := strconv.Atoi(oc.OddsAmerican)
		if err != nil {
			return 0, fmt.Errorf("american price %q: %w", oc.OddsAmerican, odds.ErrMalformedPrice)
		}
		return odds.AmericanToDecimal(american)
	}
	return 0, fmt.Errorf("no price: %w", odds.ErrMalformedPrice)
}

func mapEventState(s string) model.MatchStatus {
	switch s {
	case "NOT_STARTED":
		return model.MatchScheduled
	case "STARTED":
		return model.MatchLive
	case "FINISHED":
		return model.MatchFinished
	}
	return model.MatchStatus(s)
}

func mapOutcomeStatus(s string) model.OutcomeStatus {
	switch s {
	case "OPEN":
		return model.OutcomeOpen
	case "SUSPENDED":
		return model.OutcomeSuspended
	case "CLOSED":
		return model.OutcomeClosed
	case "SETTLED":
		return model.OutcomeSettled
	case "":
		return model.OutcomeOpen
	}
	return model.OutcomeStatus(s)
}

// parseStart accepts both encodings Kambi uses: epoch milliseconds in
// the listing API and RFC3339 in the offering API.
func parseStart(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatScore(ld *kLiveData) string {
	if ld == nil || ld.Score == nil {
		return ""
	}
	return ld.Score.Home + "-" + ld.Score.Away
}
