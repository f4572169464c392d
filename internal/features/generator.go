package features

import (
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/scorepulse/internal/models"
	"gonum.org/v1/gonum/stat"
)

// Row is one featurized match. Values holds every generated column; a column that
// could not be computed (no history, missing odds) is present with a NaN value.
// Labelers add target columns to the same map.
type Row struct {
	Match  models.Match
	Values map[string]float64
}

// Get returns a column value and whether the column exists at all.
func (r *Row) Get(col string) (float64, bool) {
	v, ok := r.Values[col]
	return v, ok
}

// Value returns a column value, or NaN when the column is absent.
func (r *Row) Value(col string) float64 {
	if v, ok := r.Values[col]; ok {
		return v
	}
	return math.NaN()
}

// Complete reports whether every listed column exists and is finite.
func (r *Row) Complete(cols []string) bool {
	for _, c := range cols {
		v, ok := r.Values[c]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Generator computes rolling per-team statistics and market-derived ratios.
type Generator struct {
	Window      int // prior matches per team
	RestDefault int // rest days when a team has no prior match
	RestCap     int // upper bound on rest days
}

// NewGenerator returns a generator with the standard five-match window.
func NewGenerator() *Generator {
	return &Generator{Window: 5, RestDefault: 7, RestCap: 14}
}

// teamEntry is one team's view of one match.
type teamEntry struct {
	match        int
	side         Side
	date         time.Time
	goalsFor     float64
	goalsAgainst float64
	points       float64
	shots        float64
	corners      float64
}

// teamStats are a team's rolling aggregates as of strictly before a match date.
type teamStats struct {
	avgGoals    float64
	avgConceded float64
	points      float64
	avgShots    float64
	avgCorners  float64
	restDays    float64
}

// Generate featurizes matches. Input is sorted by date (stable, so insertion order
// breaks ties) and the returned rows follow that order.
func (g *Generator) Generate(matches []models.Match) []Row {
	sorted := make([]models.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	// Team-centric view, keyed back to the match by index
	byTeam := make(map[string][]teamEntry)
	for i := range sorted {
		m := &sorted[i]
		hp, ap := points(m.Result)
		byTeam[m.HomeTeam] = append(byTeam[m.HomeTeam], teamEntry{
			match: i, side: SideHome, date: m.Date,
			goalsFor: float64(m.FTHome), goalsAgainst: float64(m.FTAway),
			points: hp, shots: m.HomeShots, corners: m.HomeCorners,
		})
		byTeam[m.AwayTeam] = append(byTeam[m.AwayTeam], teamEntry{
			match: i, side: SideAway, date: m.Date,
			goalsFor: float64(m.FTAway), goalsAgainst: float64(m.FTHome),
			points: ap, shots: m.AwayShots, corners: m.AwayCorners,
		})
	}

	home := make([]teamStats, len(sorted))
	away := make([]teamStats, len(sorted))
	for _, entries := range byTeam {
		for k := range entries {
			st := g.rolling(entries, k)
			if entries[k].side == SideHome {
				home[entries[k].match] = st
			} else {
				away[entries[k].match] = st
			}
		}
	}

	rows := make([]Row, len(sorted))
	for i := range sorted {
		rows[i] = g.row(sorted[i], home[i], away[i])
	}
	return rows
}

// rolling aggregates the window that ends before entries[k]. Entries sharing the
// current date are excluded along with everything after them.
func (g *Generator) rolling(entries []teamEntry, k int) teamStats {
	cur := entries[k].date
	end := k
	for end > 0 && !entries[end-1].date.Before(cur) {
		end--
	}
	start := max(0, end-g.Window)
	window := entries[start:end]

	st := teamStats{
		avgGoals:    math.NaN(),
		avgConceded: math.NaN(),
		points:      math.NaN(),
		avgShots:    math.NaN(),
		avgCorners:  math.NaN(),
		restDays:    float64(g.RestDefault),
	}
	if len(window) == 0 {
		return st
	}

	goals := make([]float64, len(window))
	conceded := make([]float64, len(window))
	var pts float64
	var shots, corners []float64
	for i, e := range window {
		goals[i] = e.goalsFor
		conceded[i] = e.goalsAgainst
		pts += e.points
		if !math.IsNaN(e.shots) {
			shots = append(shots, e.shots)
		}
		if !math.IsNaN(e.corners) {
			corners = append(corners, e.corners)
		}
	}
	st.avgGoals = stat.Mean(goals, nil)
	st.avgConceded = stat.Mean(conceded, nil)
	st.points = pts
	if len(shots) > 0 {
		st.avgShots = stat.Mean(shots, nil)
	}
	if len(corners) > 0 {
		st.avgCorners = stat.Mean(corners, nil)
	}

	last := window[len(window)-1].date
	days := math.Floor(cur.Sub(last).Hours() / 24)
	st.restDays = math.Min(days, float64(g.RestCap))
	return st
}

func (g *Generator) row(m models.Match, h, a teamStats) Row {
	v := make(map[string]float64, len(Names)+len(Extra))

	v[HomeElo] = m.HomeElo
	v[AwayElo] = m.AwayElo
	v[EloDifference] = m.HomeElo - m.AwayElo
	v[EloAdvantage] = EloAdvantageOf(m.HomeElo, m.AwayElo)

	v[HomeAvgGoals], v[AwayAvgGoals] = h.avgGoals, a.avgGoals
	v[HomeAvgConceded], v[AwayAvgConceded] = h.avgConceded, a.avgConceded
	v[HomeRecentPoints], v[AwayRecentPoints] = h.points, a.points
	v[HomeAvgShots], v[AwayAvgShots] = h.avgShots, a.avgShots
	v[HomeAvgCorners], v[AwayAvgCorners] = h.avgCorners, a.avgCorners
	v[HomeRestDays], v[AwayRestDays] = h.restDays, a.restDays

	// Feeds without form columns fall back to the leakage-safe rolling points sum
	form5Home := m.Form5Home
	if math.IsNaN(form5Home) {
		form5Home = h.points
	}
	form5Away := m.Form5Away
	if math.IsNaN(form5Away) {
		form5Away = a.points
	}
	v[Form5Home] = form5Home
	v[Form5Away] = form5Away
	v[HomeMomentum] = Momentum(m.Form3Home, form5Home)
	v[AwayMomentum] = Momentum(m.Form3Away, form5Away)

	for col, val := range MarketValues(m.OddHome, m.OddDraw, m.OddAway) {
		v[col] = val
	}

	return Row{Match: m, Values: v}
}

// points returns (home, away) league points for a result code.
func points(result string) (float64, float64) {
	switch result {
	case models.ResultHome:
		return 3, 0
	case models.ResultDraw:
		return 1, 1
	default:
		return 0, 3
	}
}

// EloAdvantageOf is (home - away) / (home + away), or 0 when undefined.
func EloAdvantageOf(home, away float64) float64 {
	adv := (home - away) / (home + away)
	if math.IsNaN(adv) || math.IsInf(adv, 0) {
		return 0
	}
	return adv
}

// Momentum is Form3 - (Form5 - Form3), or 0 when the short-window form is absent.
func Momentum(form3, form5 float64) float64 {
	if math.IsNaN(form3) || math.IsNaN(form5) {
		return 0
	}
	return form3 - (form5 - form3)
}

// ImpliedProb converts decimal odds to a probability. Zero, infinite or missing odds
// yield NaN so downstream filtering can drop the row.
func ImpliedProb(odds float64) float64 {
	p := 1 / odds
	if math.IsInf(p, 0) || math.IsNaN(p) || p == 0 {
		return math.NaN()
	}
	return p
}

// Margin is the bookmaker overround: the sum of implied probabilities minus one.
func Margin(home, draw, away float64) float64 {
	return home + draw + away - 1
}

// MarketValues derives the odds-based columns for a fixture.
func MarketValues(oddHome, oddDraw, oddAway float64) map[string]float64 {
	ph, pd, pa := ImpliedProb(oddHome), ImpliedProb(oddDraw), ImpliedProb(oddAway)
	return map[string]float64{
		OddHome:         oddHome,
		OddDraw:         oddDraw,
		OddAway:         oddAway,
		ImpliedProbHome: ph,
		ImpliedProbDraw: pd,
		ImpliedProbAway: pa,
		MarketMargin:    Margin(ph, pd, pa),
	}
}
