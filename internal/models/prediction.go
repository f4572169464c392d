package models

import "time"

// Tier selects the model family and the extra markets returned with a prediction.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier maps user input onto a tier. "gold" is accepted as an alias of premium.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "", "free":
		return TierFree, true
	case "premium", "gold":
		return TierPremium, true
	default:
		return "", false
	}
}

// Confidence labels.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// WinProb holds outcome probabilities in percent, rounded to one decimal.
type WinProb struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Max returns the largest of the three probabilities.
func (w WinProb) Max() float64 {
	return max(w.Home, w.Draw, w.Away)
}

// Scoreline is a predicted final score.
type Scoreline struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Confidence describes how decisive the outcome probabilities are.
type Confidence struct {
	Label string `json:"label"`
	Tier  Tier   `json:"tier"`
}

// TeamReport summarizes a team's latest rolling form.
type TeamReport struct {
	Name    string  `json:"name"`
	Rating  int     `json:"rating"`
	PPG     float64 `json:"ppg"`
	GDTrend string  `json:"gd_trend"`
	XG      float64 `json:"xg"`
	Form    float64 `json:"form"`
}

// HeadToHead is one previous meeting between two teams.
type HeadToHead struct {
	Date   string `json:"date"`
	Score  string `json:"score"`
	Winner string `json:"winner"`
}

// Fixture is an upcoming match from the schedule file.
type Fixture struct {
	Date   string `json:"date"`
	Home   string `json:"home"`
	Away   string `json:"away"`
	League string `json:"league"`
}

// Prediction is the record returned by the inference facade. When Error is set the
// remaining outcome fields are empty.
type Prediction struct {
	Home       string       `json:"home"`
	Away       string       `json:"away"`
	Tier       Tier         `json:"tier"`
	ModelUsed  string       `json:"model_used,omitempty"`
	WinProb    *WinProb     `json:"win_prob,omitempty"`
	TotalGoals float64      `json:"total_goals,omitempty"`
	Score      *Scoreline   `json:"score,omitempty"`
	Confidence *Confidence  `json:"confidence,omitempty"`
	BTTS       *float64     `json:"btts,omitempty"`
	Over25     *float64     `json:"over25,omitempty"`
	HomeReport *TeamReport  `json:"home_report,omitempty"`
	AwayReport *TeamReport  `json:"away_report,omitempty"`
	H2H        []HeadToHead `json:"h2h,omitempty"`
	Error      string       `json:"error,omitempty"`
	ErrorCode  string       `json:"error_code,omitempty"`
}

// Error codes set alongside Prediction.Error.
const (
	CodeTeamNotFound  = "TEAM_NOT_FOUND"
	CodeEngineOffline = "ENGINE_OFFLINE"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeInternal      = "INTERNAL"
)

// Failed reports whether the prediction carries an error instead of outcomes.
func (p *Prediction) Failed() bool {
	return p.Error != ""
}

// TrainingMetric is one validation metric recorded for a trained model.
type TrainingMetric struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	Algorithm string    `json:"algorithm"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
