package dataset

import (
	"fmt"

	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/models"
)

// Target is a prediction target.
type Target string

const (
	TargetWLD        Target = "WLD"
	TargetOver25     Target = "Over25"
	TargetBTTS       Target = "BTTS"
	TargetTotalGoals Target = "TotalGoals"
)

// Targets lists every target in training order.
var Targets = []Target{TargetWLD, TargetOver25, TargetBTTS, TargetTotalGoals}

// ParseTarget resolves a logical target name.
func ParseTarget(s string) (Target, error) {
	for _, t := range Targets {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown target %q", s)
}

// Column returns the row column holding the target label.
func (t Target) Column() string {
	switch t {
	case TargetWLD:
		return "Target_WLD"
	case TargetOver25:
		return "Target_Over25"
	case TargetBTTS:
		return "Target_BTTS"
	case TargetTotalGoals:
		return "Target_Goals"
	default:
		return "Target_" + string(t)
	}
}

// Regression reports whether the target is a continuous quantity.
func (t Target) Regression() bool {
	return t == TargetTotalGoals
}

// TargetColumns lists the label columns for every target.
func TargetColumns() []string {
	cols := make([]string, len(Targets))
	for i, t := range Targets {
		cols[i] = t.Column()
	}
	return cols
}

// WLD class labels.
const (
	ClassAway = 0
	ClassDraw = 1
	ClassHome = 2
)

var resultClass = map[string]float64{
	models.ResultHome: ClassHome,
	models.ResultDraw: ClassDraw,
	models.ResultAway: ClassAway,
}

// Label appends the four target columns to each row. Rows whose result code does
// not map to a class are excluded.
func Label(rows []features.Row) []features.Row {
	out := make([]features.Row, 0, len(rows))
	for _, r := range rows {
		cls, ok := resultClass[r.Match.Result]
		if !ok {
			continue
		}
		total := float64(r.Match.FTHome + r.Match.FTAway)
		r.Values[TargetWLD.Column()] = cls
		r.Values[TargetTotalGoals.Column()] = total
		r.Values[TargetOver25.Column()] = boolLabel(total > 2.5)
		r.Values[TargetBTTS.Column()] = boolLabel(r.Match.FTHome > 0 && r.Match.FTAway > 0)
		out = append(out, r)
	}
	return out
}

// DropIncomplete removes rows with any missing feature or target. It returns the
// kept rows and the number dropped.
func DropIncomplete(rows []features.Row) ([]features.Row, int) {
	cols := append(append([]string{}, features.Names...), TargetColumns()...)
	out := make([]features.Row, 0, len(rows))
	for _, r := range rows {
		if r.Complete(cols) {
			out = append(out, r)
		}
	}
	return out, len(rows) - len(out)
}

func boolLabel(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
