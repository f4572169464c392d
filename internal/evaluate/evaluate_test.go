package evaluate

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/model"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/storage"
	"github.com/rewired-gh/scorepulse/internal/testutil"
	"github.com/rewired-gh/scorepulse/internal/training"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestClassification(t *testing.T) {
	truth := []float64{2, 2, 1, 0, 0, 2}
	pred := []float64{2, 1, 1, 0, 2, 2}
	r := Classification(pred, truth, ClassLabels(dataset.TargetWLD))

	if !approx(r.Accuracy, 4.0/6) {
		t.Errorf("accuracy %v", r.Accuracy)
	}
	want := [][]int{{1, 0, 1}, {0, 1, 0}, {0, 1, 2}}
	for i := range want {
		for j := range want[i] {
			if r.Confusion[i][j] != want[i][j] {
				t.Fatalf("confusion[%d][%d] = %d, want %d", i, j, r.Confusion[i][j], want[i][j])
			}
		}
	}
	home := r.Classes[2]
	if home.Label != "Home" || home.Support != 3 || !approx(home.Precision, 2.0/3) || !approx(home.Recall, 2.0/3) {
		t.Errorf("unexpected home metrics %+v", home)
	}
	draw := r.Classes[1]
	if !approx(draw.Precision, 0.5) || !approx(draw.Recall, 1) || !approx(draw.F1, 2.0/3) {
		t.Errorf("unexpected draw metrics %+v", draw)
	}
}

func TestClassification_NoPredictionsForClass(t *testing.T) {
	r := Classification([]float64{0, 0}, []float64{0, 1}, ClassLabels(dataset.TargetBTTS))
	if r.Classes[1].Precision != 0 || r.Classes[1].F1 != 0 {
		t.Errorf("class never predicted should score 0, got %+v", r.Classes[1])
	}
}

func TestRegression(t *testing.T) {
	r := Regression([]float64{2, 3, 1}, []float64{1, 3, 3})
	if !approx(r.MAE, 1) || !approx(r.RMSE, math.Sqrt(5.0/3)) {
		t.Errorf("MAE %v RMSE %v", r.MAE, r.RMSE)
	}
}

func roiRow(result float64, home, draw, away float64) features.Row {
	return features.Row{
		Match: models.NewMatch(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "H", "A"),
		Values: map[string]float64{
			features.OddHome:           home,
			features.OddDraw:           draw,
			features.OddAway:           away,
			dataset.TargetWLD.Column(): result,
		},
	}
}

func TestSimulateROI(t *testing.T) {
	rows := []features.Row{
		roiRow(dataset.ClassHome, 2.0, 3.0, 4.0), // home pick wins at 2.0
		roiRow(dataset.ClassDraw, 2.0, 3.5, 4.0), // draw pick wins at 3.5
		roiRow(dataset.ClassAway, 2.0, 3.0, 5.0), // home pick loses
	}
	pred := []float64{dataset.ClassHome, dataset.ClassDraw, dataset.ClassHome}

	r := SimulateROI(rows, pred, 10)
	if r.Bets != 3 || r.Wins != 2 || r.Losses != 1 {
		t.Fatalf("unexpected counts %+v", r)
	}
	// +10 +25 -10
	if !approx(r.Profit, 25) {
		t.Errorf("profit %v, want 25", r.Profit)
	}
	if !approx(r.Percent, 25.0/30*100) {
		t.Errorf("roi %v", r.Percent)
	}
	if len(r.Bankroll) != 3 || !approx(r.Bankroll[0], 10) || !approx(r.Bankroll[1], 35) {
		t.Errorf("bankroll %v", r.Bankroll)
	}
}

func TestEvaluator_Run(t *testing.T) {
	cfg := testutil.Config(t)
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.UpsertMatches(context.Background(), testutil.League(40, 3)); err != nil {
		t.Fatal(err)
	}

	tr := scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir))
	trainer, err := training.New(cfg, store, tr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := trainer.Run(context.Background(), training.Options{}); err != nil {
		t.Fatalf("training failed: %v", err)
	}

	ev := &Evaluator{
		ModelsDir:   cfg.Artifacts.ModelsDir,
		SplitsDir:   cfg.Data.SplitsDir,
		Kind:        model.KindForest,
		Transformer: scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir)),
	}
	reports, err := ev.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(reports) != len(dataset.Targets) {
		t.Fatalf("expected %d reports, got %d", len(dataset.Targets), len(reports))
	}
	for _, r := range reports {
		if r.Target == dataset.TargetWLD && (r.ROI == nil || r.ROI.Bets != r.Rows) {
			t.Errorf("WLD report should carry an ROI over every row: %+v", r.ROI)
		}
		if !strings.Contains(r.Format(), string(r.Target)) {
			t.Errorf("formatted report misses target name")
		}
	}

	// Kinds that were never trained are skipped
	ev.Kind = model.KindNeural
	reports, err = ev.Run()
	if err != nil || len(reports) != 0 {
		t.Errorf("expected no reports for untrained kind, got %d (%v)", len(reports), err)
	}
}
