package predictor

import (
	"math"

	"github.com/rewired-gh/scorepulse/internal/models"
)

// NearTieMargin is the spread, in percentage points, between the most and least
// likely outcome below which a fixture is treated as a three-way toss-up.
const NearTieMargin = 2.0

// Reconcile turns outcome probabilities and expected goals into a scoreline
// whose winner agrees with the probabilities: a strictly most likely side always
// scores strictly more. Draw favourites and near-ties get an even split.
func Reconcile(wp models.WinProb, totalGoals float64) models.Scoreline {
	base := int(math.RoundToEven(totalGoals))
	spread := wp.Max() - min(wp.Home, wp.Draw, wp.Away)

	switch {
	case spread < NearTieMargin:
	case wp.Home > wp.Away && wp.Home > wp.Draw:
		w, l := winnerSplit(base)
		return models.Scoreline{Home: w, Away: l}
	case wp.Away > wp.Home && wp.Away > wp.Draw:
		w, l := winnerSplit(base)
		return models.Scoreline{Home: l, Away: w}
	}
	n := max(1, base/2)
	return models.Scoreline{Home: n, Away: n}
}

func winnerSplit(base int) (int, int) {
	w := max(1, int(float64(base)*0.6)+1)
	l := max(0, base-w)
	if w <= l {
		w = l + 1
	}
	return w, l
}

// ConfidenceLabel grades the largest outcome probability.
func ConfidenceLabel(wp models.WinProb) string {
	top := wp.Max()
	switch {
	case top > 60:
		return models.ConfidenceHigh
	case top > 45:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
