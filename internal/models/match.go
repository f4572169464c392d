// Package models defines the core domain entities for the scorepulse application.
// These models represent completed matches, prediction records, and model health reports.
// Matches include built-in validation to ensure data integrity before they reach the store.
//
// Numeric match statistics use NaN for "not recorded". Goals and the result code are
// always present on a stored match; rows without them never make it past import.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Result codes for the full-time outcome.
const (
	ResultHome = "H"
	ResultDraw = "D"
	ResultAway = "A"
)

// Match represents a single completed fixture from the historical match log.
type Match struct {
	ID       int64     `json:"id,omitempty"` // Store row id, insertion order within a date
	Date     time.Time `json:"date"`
	Division string    `json:"division,omitempty"`
	HomeTeam string    `json:"home_team"`
	AwayTeam string    `json:"away_team"`
	FTHome   int       `json:"ft_home"`
	FTAway   int       `json:"ft_away"`
	Result   string    `json:"result"` // H, D or A

	HomeShots   float64 `json:"-"`
	AwayShots   float64 `json:"-"`
	HomeCorners float64 `json:"-"`
	AwayCorners float64 `json:"-"`
	HomeElo     float64 `json:"-"`
	AwayElo     float64 `json:"-"`
	OddHome     float64 `json:"-"`
	OddDraw     float64 `json:"-"`
	OddAway     float64 `json:"-"`

	// Pre-match form columns carried by some feeds. NaN when the feed has none.
	Form3Home float64 `json:"-"`
	Form5Home float64 `json:"-"`
	Form3Away float64 `json:"-"`
	Form5Away float64 `json:"-"`
}

// NewMatch returns a match with every optional statistic set to NaN.
func NewMatch(date time.Time, home, away string) Match {
	nan := math.NaN()
	return Match{
		Date:        date,
		HomeTeam:    home,
		AwayTeam:    away,
		HomeShots:   nan,
		AwayShots:   nan,
		HomeCorners: nan,
		AwayCorners: nan,
		HomeElo:     nan,
		AwayElo:     nan,
		OddHome:     nan,
		OddDraw:     nan,
		OddAway:     nan,
		Form3Home:   nan,
		Form5Home:   nan,
		Form3Away:   nan,
		Form5Away:   nan,
	}
}

// Key identifies a fixture. Later imports of the same key replace earlier ones.
func (m *Match) Key() string {
	return m.Date.Format("2006-01-02") + "|" + m.HomeTeam + "|" + m.AwayTeam
}

// TotalGoals returns the combined full-time goals.
func (m *Match) TotalGoals() int {
	return m.FTHome + m.FTAway
}

// Winner returns the winning team name or "Draw".
func (m *Match) Winner() string {
	switch m.Result {
	case ResultHome:
		return m.HomeTeam
	case ResultAway:
		return m.AwayTeam
	default:
		return "Draw"
	}
}

// Involves reports whether team played in the match.
func (m *Match) Involves(team string) bool {
	return m.HomeTeam == team || m.AwayTeam == team
}

// ResultFromGoals returns the result code implied by a scoreline.
func ResultFromGoals(home, away int) string {
	switch {
	case home > away:
		return ResultHome
	case home < away:
		return ResultAway
	default:
		return ResultDraw
	}
}

// NormalizeResult upper-cases and trims a raw result code. Unknown codes come back empty.
func NormalizeResult(raw string) string {
	switch r := strings.ToUpper(strings.TrimSpace(raw)); r {
	case ResultHome, ResultDraw, ResultAway:
		return r
	default:
		return ""
	}
}

// Validate checks that all match fields are valid.
func (m *Match) Validate() error {
	if m.Date.IsZero() {
		return errors.New("match date must not be empty")
	}
	if strings.TrimSpace(m.HomeTeam) == "" {
		return errors.New("home team must not be empty")
	}
	if strings.TrimSpace(m.AwayTeam) == "" {
		return errors.New("away team must not be empty")
	}
	if m.HomeTeam == m.AwayTeam {
		return fmt.Errorf("home and away team are both %q", m.HomeTeam)
	}
	if m.FTHome < 0 || m.FTAway < 0 {
		return errors.New("goals must not be negative")
	}
	if NormalizeResult(m.Result) == "" {
		return fmt.Errorf("unknown result code %q", m.Result)
	}
	if want := ResultFromGoals(m.FTHome, m.FTAway); m.Result != want {
		return fmt.Errorf("result %s contradicts score %d-%d", m.Result, m.FTHome, m.FTAway)
	}
	return nil
}
