// Package features turns the chronological match log into point-in-time feature rows.
//
// Every rolling statistic for a row is computed from matches played strictly before
// the row's date. The same derivations (Elo ratios, momentum, implied probabilities)
// are exported so live inference builds vectors exactly the way training did.
package features

// Column names produced by the generator.
const (
	HomeElo          = "HomeElo"
	AwayElo          = "AwayElo"
	EloDifference    = "EloDifference"
	EloAdvantage     = "EloAdvantage"
	Form5Home        = "Form5Home"
	Form5Away        = "Form5Away"
	HomeRecentPoints = "Home_RecentPoints"
	AwayRecentPoints = "Away_RecentPoints"
	HomeMomentum     = "Home_Momentum"
	AwayMomentum     = "Away_Momentum"
	HomeAvgGoals     = "Home_AvgGoals"
	AwayAvgGoals     = "Away_AvgGoals"
	HomeAvgConceded  = "Home_AvgConceded"
	AwayAvgConceded  = "Away_AvgConceded"
	HomeAvgShots     = "Home_AvgShots"
	AwayAvgShots     = "Away_AvgShots"
	HomeAvgCorners   = "Home_AvgCorners"
	AwayAvgCorners   = "Away_AvgCorners"
	HomeRestDays     = "Home_RestDays"
	AwayRestDays     = "Away_RestDays"
	OddHome          = "OddHome"
	OddDraw          = "OddDraw"
	OddAway          = "OddAway"
	ImpliedProbHome  = "ImpliedProbHome"
	ImpliedProbAway  = "ImpliedProbAway"
	MarketMargin     = "MarketMargin"
	ImpliedProbDraw  = "ImpliedProbDraw"
)

// Names is the model input vector, in order. It is identical at training,
// validation, test and inference time.
var Names = []string{
	HomeElo, AwayElo,
	EloDifference, EloAdvantage,
	Form5Home, Form5Away,
	HomeRecentPoints, AwayRecentPoints,
	HomeMomentum, AwayMomentum,
	HomeAvgGoals, AwayAvgGoals,
	HomeAvgConceded, AwayAvgConceded,
	HomeAvgShots, AwayAvgShots,
	HomeAvgCorners, AwayAvgCorners,
	HomeRestDays, AwayRestDays,
	OddHome, OddDraw, OddAway,
	ImpliedProbHome, ImpliedProbAway, MarketMargin,
}

// Extra lists generated columns that are persisted but not part of the vector.
var Extra = []string{ImpliedProbDraw}

// Side selects the home or away half of a row.
type Side int

const (
	SideHome Side = iota
	SideAway
)

// Prefix returns the column prefix used for per-team aggregates.
func (s Side) Prefix() string {
	if s == SideHome {
		return "Home_"
	}
	return "Away_"
}

func (s Side) String() string {
	if s == SideHome {
		return "Home"
	}
	return "Away"
}

// EloColumn is the Elo column for this side of the row.
func (s Side) EloColumn() string {
	if s == SideHome {
		return HomeElo
	}
	return AwayElo
}

// Form5Column is the five-match form column for this side of the row.
func (s Side) Form5Column() string {
	if s == SideHome {
		return Form5Home
	}
	return Form5Away
}

// Aggregate returns the per-team column for a rolling aggregate such as "AvgGoals".
func (s Side) Aggregate(name string) string {
	return s.Prefix() + name
}

// Per-team aggregate suffixes.
const (
	AggAvgGoals     = "AvgGoals"
	AggAvgConceded  = "AvgConceded"
	AggRecentPoints = "RecentPoints"
	AggAvgShots     = "AvgShots"
	AggAvgCorners   = "AvgCorners"
	AggRestDays     = "RestDays"
	AggMomentum     = "Momentum"
)

// Aggregates lists the per-team columns carried on each side of a row.
var Aggregates = []string{
	AggAvgGoals, AggAvgConceded, AggRecentPoints, AggAvgShots, AggAvgCorners, AggRestDays, AggMomentum,
}
