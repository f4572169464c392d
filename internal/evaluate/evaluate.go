// Package evaluate scores persisted models against the held-out test split.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/model"
	"github.com/rewired-gh/scorepulse/internal/scaler"
)

// DefaultStake is the flat stake used by the ROI simulation.
const DefaultStake = 10.0

// ClassMetrics is one row of a classification report.
type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is the evaluation of one target's model.
type Report struct {
	Target   dataset.Target
	Kind     model.Kind
	Rows     int
	Accuracy float64
	Classes  []ClassMetrics
	// Confusion[i][j] counts rows of true class i predicted as class j
	Confusion [][]int
	MAE       float64
	RMSE      float64
	ROI       *ROI
}

// ROI is a flat-stake betting simulation on the WLD predictions.
type ROI struct {
	Bets     int
	Wins     int
	Losses   int
	Stake    float64
	Profit   float64
	Percent  float64
	Bankroll []float64 // running profit after each bet
}

// WinRate is the fraction of winning bets.
func (r *ROI) WinRate() float64 {
	if r.Bets == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Bets)
}

// ClassLabels names the classes of each classification target.
func ClassLabels(target dataset.Target) []string {
	switch target {
	case dataset.TargetWLD:
		return []string{"Away", "Draw", "Home"}
	case dataset.TargetBTTS:
		return []string{"No", "Yes"}
	case dataset.TargetOver25:
		return []string{"Under", "Over"}
	default:
		return nil
	}
}

// Classification computes accuracy, per-class precision/recall/F1 and the
// confusion matrix. Classes with no predictions get precision 0.
func Classification(pred, truth []float64, labels []string) *Report {
	k := len(labels)
	for _, v := range append(append([]float64{}, pred...), truth...) {
		k = max(k, int(v)+1)
	}
	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	correct := 0
	for i := range truth {
		t, p := int(truth[i]), int(pred[i])
		cm[t][p]++
		if t == p {
			correct++
		}
	}

	r := &Report{Rows: len(truth), Confusion: cm}
	if len(truth) > 0 {
		r.Accuracy = float64(correct) / float64(len(truth))
	}
	for c := 0; c < k; c++ {
		var predicted, actual int
		for j := 0; j < k; j++ {
			predicted += cm[j][c]
			actual += cm[c][j]
		}
		m := ClassMetrics{Label: fmt.Sprintf("%d", c), Support: actual}
		if c < len(labels) {
			m.Label = labels[c]
		}
		if predicted > 0 {
			m.Precision = float64(cm[c][c]) / float64(predicted)
		}
		if actual > 0 {
			m.Recall = float64(cm[c][c]) / float64(actual)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
	}
	return r
}

// Regression computes MAE and RMSE.
func Regression(pred, truth []float64) *Report {
	r := &Report{Rows: len(truth)}
	if len(truth) == 0 {
		return r
	}
	var abs, sq float64
	for i := range truth {
		d := pred[i] - truth[i]
		abs += math.Abs(d)
		sq += d * d
	}
	r.MAE = abs / float64(len(truth))
	r.RMSE = math.Sqrt(sq / float64(len(truth)))
	return r
}

// oddsFor returns the decimal odds of the predicted WLD class.
func oddsFor(row features.Row, class int) float64 {
	switch class {
	case dataset.ClassHome:
		return row.Value(features.OddHome)
	case dataset.ClassDraw:
		return row.Value(features.OddDraw)
	default:
		return row.Value(features.OddAway)
	}
}

// SimulateROI places a flat stake on every predicted outcome. A correct pick
// returns (odds - 1) * stake; a wrong pick loses the stake.
func SimulateROI(rows []features.Row, pred []float64, stake float64) *ROI {
	r := &ROI{Stake: stake}
	col := dataset.TargetWLD.Column()
	for i, row := range rows {
		actual := row.Value(col)
		if math.IsNaN(actual) {
			continue
		}
		r.Bets++
		if pred[i] == actual {
			r.Wins++
			r.Profit += (oddsFor(row, int(pred[i])) - 1) * stake
		} else {
			r.Losses++
			r.Profit -= stake
		}
		r.Bankroll = append(r.Bankroll, r.Profit)
	}
	if r.Bets > 0 {
		r.Percent = r.Profit / (float64(r.Bets) * stake) * 100
	}
	return r
}

// Evaluator loads the persisted scaler and models and scores the test split.
type Evaluator struct {
	ModelsDir   string
	SplitsDir   string
	Kind        model.Kind
	Transformer *scaler.Transformer
	Stake       float64
}

// Run evaluates every target. Targets without a model artifact are skipped
// with a warning; a missing scaler or test split is an error.
func (e *Evaluator) Run() ([]*Report, error) {
	test, err := dataset.ReadSplit(e.SplitsDir, dataset.SplitTest)
	if err != nil {
		return nil, fmt.Errorf("test data not found, train first: %w", err)
	}
	if len(test) == 0 {
		return nil, errors.New("test split is empty")
	}
	stake := e.Stake
	if stake <= 0 {
		stake = DefaultStake
	}

	var reports []*Report
	for _, target := range dataset.Targets {
		path := artifact.ModelPath(e.ModelsDir, string(target), string(e.Kind))
		m, err := model.Open(path)
		if err != nil {
			if errors.Is(err, model.ErrArtifactNotFound) {
				logger.Warn("Model for %s not found at %s, skipping", target, path)
				continue
			}
			return nil, err
		}

		X, y, err := e.Transformer.Transform(test, target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}
		pred, err := m.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}

		var r *Report
		if target.Regression() {
			r = Regression(pred, y)
		} else {
			r = Classification(pred, y, ClassLabels(target))
		}
		r.Target, r.Kind = target, e.Kind
		if target == dataset.TargetWLD {
			r.ROI = SimulateROI(test, pred, stake)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Format renders a report as plain text.
func (r *Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "EVALUATION REPORT: %s (%s, %d rows)\n", r.Target, r.Kind, r.Rows)
	if r.Target.Regression() {
		fmt.Fprintf(&b, "  MAE:  %.4f goals\n", r.MAE)
		fmt.Fprintf(&b, "  RMSE: %.4f goals\n", r.RMSE)
		return b.String()
	}

	fmt.Fprintf(&b, "  Accuracy: %.2f%%\n", r.Accuracy*100)
	fmt.Fprintf(&b, "  %-8s %9s %9s %9s %8s\n", "class", "precision", "recall", "f1", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "  %-8s %9.2f %9.2f %9.2f %8d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("  Confusion matrix (rows true, columns predicted):\n")
	for _, row := range r.Confusion {
		b.WriteString("   ")
		for _, v := range row {
			fmt.Fprintf(&b, " %5d", v)
		}
		b.WriteString("\n")
	}
	if r.ROI != nil {
		fmt.Fprintf(&b, "  Bets: %d  Wins: %d  Losses: %d  Win rate: %.1f%%\n",
			r.ROI.Bets, r.ROI.Wins, r.ROI.Losses, r.ROI.WinRate()*100)
		fmt.Fprintf(&b, "  Net profit: %.2f  ROI: %.2f%%\n", r.ROI.Profit, r.ROI.Percent)
	}
	return b.String()
}
