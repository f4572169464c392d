package predictor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/models"
)

const (
	h2hLimit      = 5
	defaultRating = 1000
	xgPerShot     = 0.105
	hierarchyDays = 730
	batchSchedule = 20
)

// teamState is a team's rolling form as of its latest recorded match.
type teamState struct {
	played       time.Time
	elo          float64
	form5        float64
	recentPoints float64
	momentum     float64
	avgGoals     float64
	avgConceded  float64
	avgShots     float64
	avgCorners   float64
	restDays     float64
}

// latest reads the team's own side of the last history row it appears in
// that was played strictly before asOf. Rest days count from that match to asOf.
func (p *Predictor) latest(history []features.Row, team string, asOf time.Time) (*teamState, error) {
	for i := len(history) - 1; i >= 0; i-- {
		r := &history[i]
		if !r.Match.Date.Before(asOf) {
			continue
		}
		var side features.Side
		switch team {
		case r.Match.HomeTeam:
			side = features.SideHome
		case r.Match.AwayTeam:
			side = features.SideAway
		default:
			continue
		}

		st := &teamState{
			played:       r.Match.Date,
			elo:          r.Value(side.EloColumn()),
			form5:        r.Value(side.Form5Column()),
			recentPoints: r.Value(side.Aggregate(features.AggRecentPoints)),
			momentum:     r.Value(side.Aggregate(features.AggMomentum)),
			avgGoals:     r.Value(side.Aggregate(features.AggAvgGoals)),
			avgConceded:  r.Value(side.Aggregate(features.AggAvgConceded)),
			avgShots:     r.Value(side.Aggregate(features.AggAvgShots)),
			avgCorners:   r.Value(side.Aggregate(features.AggAvgCorners)),
			restDays:     float64(p.generator.RestDefault),
		}
		if days := math.Floor(asOf.Sub(r.Match.Date).Hours() / 24); days >= 0 {
			st.restDays = math.Min(days, float64(p.generator.RestCap))
		}
		return st, nil
	}
	return nil, fmt.Errorf("%s %w", team, ErrTeamNotFound)
}

// buildRow assembles the full named vector. Unavailable fields become 0.
func buildRow(h, a *teamState, odds Odds) features.Row {
	hElo, aElo := orZero(h.elo), orZero(a.elo)
	v := map[string]float64{
		features.HomeElo:          hElo,
		features.AwayElo:          aElo,
		features.EloDifference:    hElo - aElo,
		features.EloAdvantage:     features.EloAdvantageOf(hElo, aElo),
		features.Form5Home:        orZero(h.form5),
		features.Form5Away:        orZero(a.form5),
		features.HomeRecentPoints: orZero(h.recentPoints),
		features.AwayRecentPoints: orZero(a.recentPoints),
		features.HomeMomentum:     orZero(h.momentum),
		features.AwayMomentum:     orZero(a.momentum),
		features.HomeAvgGoals:     orZero(h.avgGoals),
		features.AwayAvgGoals:     orZero(a.avgGoals),
		features.HomeAvgConceded:  orZero(h.avgConceded),
		features.AwayAvgConceded:  orZero(a.avgConceded),
		features.HomeAvgShots:     orZero(h.avgShots),
		features.AwayAvgShots:     orZero(a.avgShots),
		features.HomeAvgCorners:   orZero(h.avgCorners),
		features.AwayAvgCorners:   orZero(a.avgCorners),
		features.HomeRestDays:     h.restDays,
		features.AwayRestDays:     a.restDays,
	}
	for col, val := range features.MarketValues(odds.Home, odds.Draw, odds.Away) {
		v[col] = val
	}
	return features.Row{Values: v}
}

func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func reportCard(name string, st *teamState) *models.TeamReport {
	rating := defaultRating
	if !math.IsNaN(st.elo) {
		rating = int(st.elo)
	}
	trend := round((orZero(st.avgGoals)-orZero(st.avgConceded))*5, 1)
	gd := fmt.Sprintf("%.1f", trend)
	if trend > 0 {
		gd = "+" + gd
	}
	return &models.TeamReport{
		Name:    name,
		Rating:  rating,
		PPG:     round(orZero(st.form5)/5, 2),
		GDTrend: gd,
		XG:      round(orZero(st.avgShots)*xgPerShot, 2),
		Form:    orZero(st.form5),
	}
}

// headToHead lists the most recent meetings in either orientation, newest first.
// matches must be in date order.
func headToHead(matches []models.Match, home, away string, limit int) []models.HeadToHead {
	out := []models.HeadToHead{}
	for i := len(matches) - 1; i >= 0 && len(out) < limit; i-- {
		m := &matches[i]
		if !(m.HomeTeam == home && m.AwayTeam == away) && !(m.HomeTeam == away && m.AwayTeam == home) {
			continue
		}
		winner := "Draw"
		switch m.Result {
		case models.ResultHome:
			winner = m.HomeTeam
		case models.ResultAway:
			winner = m.AwayTeam
		}
		out = append(out, models.HeadToHead{
			Date:   m.Date.Format("2006-01-02"),
			Score:  fmt.Sprintf("%d-%d", m.FTHome, m.FTAway),
			Winner: winner,
		})
	}
	return out
}

// TeamReport returns the report card for one team.
func (p *Predictor) TeamReport(ctx context.Context, team string) (*models.TeamReport, error) {
	history, _, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	st, err := p.latest(history, team, p.now())
	if err != nil {
		return nil, err
	}
	return reportCard(team, st), nil
}

// HeadToHead returns the last meetings between two teams.
func (p *Predictor) HeadToHead(ctx context.Context, home, away string) ([]models.HeadToHead, error) {
	_, matches, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return headToHead(matches, home, away, h2hLimit), nil
}

// League names a division code.
type League struct {
	Country string
	Name    string
}

var divisions = map[string]League{
	"E0":  {"England", "Premier League"},
	"E1":  {"England", "Championship"},
	"SP1": {"Spain", "La Liga"},
	"D1":  {"Germany", "Bundesliga"},
	"I1":  {"Italy", "Serie A"},
	"F1":  {"France", "Ligue 1"},
	"N1":  {"Netherlands", "Eredivisie"},
	"P1":  {"Portugal", "Liga NOS"},
	"SC0": {"Scotland", "Premiership"},
}

// LeagueOf resolves a division code; unknown codes are grouped as International.
func LeagueOf(division string) League {
	if l, ok := divisions[division]; ok {
		return l
	}
	if division == "" {
		return League{"International", "Other"}
	}
	return League{"International", division}
}

// Hierarchy maps country to league to sorted team names.
type Hierarchy map[string]map[string][]string

// Hierarchy groups the teams seen in the last two years by league. When nothing
// is that recent, the whole history is used.
func (p *Predictor) Hierarchy(ctx context.Context) (Hierarchy, error) {
	_, matches, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return buildHierarchy(matches, p.now().AddDate(0, 0, -hierarchyDays)), nil
}

func buildHierarchy(matches []models.Match, since time.Time) Hierarchy {
	recent := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if !m.Date.Before(since) {
			recent = append(recent, m)
		}
	}
	if len(recent) == 0 {
		recent = matches
	}

	teams := make(map[League]map[string]struct{})
	for _, m := range recent {
		l := LeagueOf(m.Division)
		if teams[l] == nil {
			teams[l] = make(map[string]struct{})
		}
		teams[l][m.HomeTeam] = struct{}{}
		teams[l][m.AwayTeam] = struct{}{}
	}

	h := make(Hierarchy)
	for l, set := range teams {
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		sort.Strings(names)
		if h[l.Country] == nil {
			h[l.Country] = make(map[string][]string)
		}
		h[l.Country][l.Name] = names
	}
	return h
}

// Upcoming returns up to count scheduled fixtures from today on.
func (p *Predictor) Upcoming(count int) ([]models.Fixture, error) {
	return dataset.LoadFixtures(p.upcomingPath, p.now(), count)
}

// PremiumBatch predicts upcoming fixtures at premium tier and returns the first
// count that succeed. count <= 0 uses the configured batch size.
func (p *Predictor) PremiumBatch(ctx context.Context, count int) ([]*models.Prediction, error) {
	if count <= 0 {
		count = p.batchMax
	}
	fixtures, err := p.Upcoming(max(batchSchedule, count))
	if err != nil {
		return nil, err
	}

	out := make([]*models.Prediction, 0, count)
	for _, fx := range fixtures {
		if len(out) >= count {
			break
		}
		req := Request{Home: fx.Home, Away: fx.Away, Tier: models.TierPremium}
		if at, err := time.Parse("2006-01-02", fx.Date); err == nil {
			req.Date = at
		}
		pred := p.Predict(ctx, req)
		if pred.Failed() {
			logger.Debug("Skipping fixture %s vs %s: %s", fx.Home, fx.Away, pred.Error)
			continue
		}
		out = append(out, pred)
	}
	return out, nil
}
