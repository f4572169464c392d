package training

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/model"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/storage"
	"github.com/rewired-gh/scorepulse/internal/testutil"
)

func mustStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seededStore(t *testing.T) *storage.Storage {
	t.Helper()
	s := mustStorage(t)
	if _, err := s.UpsertMatches(context.Background(), testutil.League(40, 1)); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return s
}

type failingStore struct{}

func (failingStore) Matches(context.Context) ([]models.Match, error) {
	return nil, errors.New("store unavailable")
}

func (failingStore) RecordMetric(context.Context, models.TrainingMetric) error { return nil }

func TestTimeSeriesSplit(t *testing.T) {
	folds, err := TimeSeriesSplit(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	wantTrain := []int{4, 6, 8}
	if len(folds) != 3 {
		t.Fatalf("expected 3 folds, got %d", len(folds))
	}
	for i, f := range folds {
		if len(f.Train) != wantTrain[i] || len(f.Test) != 2 {
			t.Errorf("fold %d: train %d test %d", i, len(f.Train), len(f.Test))
		}
		if f.Test[0] != len(f.Train) {
			t.Errorf("fold %d: test block does not follow training prefix", i)
		}
	}

	if _, err := TimeSeriesSplit(3, 3); err == nil {
		t.Error("expected error when rows are too few")
	}
	if _, err := TimeSeriesSplit(10, 1); err == nil {
		t.Error("expected error for a single split")
	}
}

func TestSample(t *testing.T) {
	grid := Grid(model.KindForest)
	a := Sample(grid, 5, 42)
	b := Sample(grid, 5, 42)
	if len(a) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(a))
	}
	seen := make(map[string]bool)
	for i := range a {
		if a[i].String() != b[i].String() {
			t.Error("sampling is not deterministic")
		}
		if seen[a[i].String()] {
			t.Errorf("duplicate candidate %s", a[i])
		}
		seen[a[i].String()] = true
	}

	small := []Param{{Name: "x", Values: []float64{1, 2}}}
	if got := Sample(small, 10, 42); len(got) != 2 {
		t.Errorf("expected sampling capped at grid size, got %d", len(got))
	}
}

func TestApply(t *testing.T) {
	cfg, err := Apply(model.KindBoost, Candidate{"learning_rate": 0.05, "max_depth": 5}, 7)
	if err != nil {
		t.Fatal(err)
	}
	bc := cfg.(model.BoostConfig)
	if bc.LearningRate != 0.05 || bc.MaxDepth != 5 || bc.NEstimators != 100 || bc.Seed != 7 {
		t.Errorf("unexpected config: %+v", bc)
	}
	if Tunable(model.KindLinear) || Tunable(model.KindNeural) {
		t.Error("only rf and gb have search spaces")
	}
	if _, err := Apply("xgb", nil, 1); !errors.Is(err, model.ErrUnsupportedModel) {
		t.Errorf("expected ErrUnsupportedModel, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	if got := Accuracy([]float64{1, 0, 2, 2}, []float64{1, 1, 2, 0}); got != 0.5 {
		t.Errorf("Accuracy = %v, want 0.5", got)
	}
	if got := MSE([]float64{1, 3}, []float64{2, 1}); got != 2.5 {
		t.Errorf("MSE = %v, want 2.5", got)
	}
}

func TestSearch(t *testing.T) {
	X := make([][]float64, 60)
	y := make([]float64, 60)
	for i := range X {
		X[i] = []float64{float64(i % 10), float64(i % 3)}
		if i%10 >= 5 {
			y[i] = 1
		}
	}
	res, err := Search(context.Background(), model.KindBoost, model.Classification, X, y, 2, 3, 42)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Tried != 2 || res.Best == nil || res.Config == nil {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.BestScore < 0.9 {
		t.Errorf("expected near-perfect CV accuracy on a threshold rule, got %.2f", res.BestScore)
	}

	if _, err := Search(context.Background(), model.KindNeural, model.Classification, X, y, 2, 3, 42); err == nil {
		t.Error("expected error for a kind without a search space")
	}
}

func TestRun(t *testing.T) {
	cfg := testutil.Config(t)
	store := seededStore(t)
	tr := scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir))
	trainer, err := New(cfg, store, tr)
	if err != nil {
		t.Fatal(err)
	}

	var steps int
	res, err := trainer.Run(context.Background(), Options{Progress: func(string, int) { steps++ }})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := uuid.Parse(res.RunID); err != nil {
		t.Errorf("run id is not a UUID: %q", res.RunID)
	}
	if steps == 0 {
		t.Error("progress callback never called")
	}
	if res.Splits[0] == 0 || res.Splits[1] == 0 {
		t.Errorf("unexpected split sizes %v", res.Splits)
	}

	if !dataset.SplitsExist(cfg.Data.SplitsDir) {
		t.Error("split files not written")
	}
	if !artifact.Exists(artifact.ScalerPath(cfg.Artifacts.ModelsDir)) {
		t.Error("scaler not persisted")
	}
	for _, target := range dataset.Targets {
		path := artifact.ModelPath(cfg.Artifacts.ModelsDir, string(target), "rf")
		m, err := model.Open(path)
		if err != nil {
			t.Fatalf("model for %s not loadable: %v", target, err)
		}
		if (m.Mode() == model.Regression) != target.Regression() {
			t.Errorf("%s saved with mode %s", target, m.Mode())
		}
	}

	if len(res.Metrics) != len(dataset.Targets) {
		t.Fatalf("expected %d metrics, got %d", len(dataset.Targets), len(res.Metrics))
	}
	recorded, err := store.RecentMetrics(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != len(dataset.Targets) {
		t.Errorf("expected %d recorded metrics, got %d", len(dataset.Targets), len(recorded))
	}
	for _, m := range res.Metrics {
		want := MetricAccuracy
		if m.Target == string(dataset.TargetTotalGoals) {
			want = MetricMSE
		}
		if m.Metric != want || m.RunID != res.RunID {
			t.Errorf("unexpected metric %+v", m)
		}
	}
}

func TestRun_ReusesSplits(t *testing.T) {
	cfg := testutil.Config(t)
	tr := scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir))
	first, err := New(cfg, seededStore(t), tr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.PrepareSplits(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	// Existing splits are read from disk without touching the store
	second, err := New(cfg, failingStore{}, tr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := second.PrepareSplits(context.Background(), false); err != nil {
		t.Errorf("expected persisted splits to be reused, got %v", err)
	}
	if _, err := second.PrepareSplits(context.Background(), true); err == nil {
		t.Error("rebuild must read the store")
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	cfg := testutil.Config(t)
	trainer, err := New(cfg, failingStore{}, scaler.NewTransformer(filepath.Join(t.TempDir(), "s.json")))
	if err != nil {
		t.Fatal(err)
	}
	trainer.mu.Lock()
	defer trainer.mu.Unlock()
	if _, err := trainer.Run(context.Background(), Options{}); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
}

func TestRun_EmptyStore(t *testing.T) {
	cfg := testutil.Config(t)
	trainer, err := New(cfg, mustStorage(t), scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := trainer.Run(context.Background(), Options{}); err == nil {
		t.Error("expected error for an empty training split")
	}
}

func TestNew_UnknownAlgorithm(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Training.Algorithms = []string{"rf", "xgboost"}
	if _, err := New(cfg, failingStore{}, nil); !errors.Is(err, model.ErrUnsupportedModel) {
		t.Errorf("expected ErrUnsupportedModel, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	cfg := testutil.Config(t)
	trainer, err := New(cfg, seededStore(t), scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir)))
	if err != nil {
		t.Fatal(err)
	}
	tour, err := trainer.Compare(context.Background(), nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(tour.Entries) != len(dataset.Targets)*len(model.Kinds) {
		t.Errorf("expected %d entries, got %d", len(dataset.Targets)*len(model.Kinds), len(tour.Entries))
	}
	if len(tour.Winners) != len(dataset.Targets) || len(tour.Saved) != len(dataset.Targets) {
		t.Fatalf("expected one winner per target, got %d winners / %d saved", len(tour.Winners), len(tour.Saved))
	}
	for _, path := range tour.Saved {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("winner artifact missing: %v", err)
		}
	}
	for target, w := range tour.Winners {
		for _, e := range tour.Entries {
			if e.Target == target && e.Err == nil && better(w.Metric, e.Score, w.Score) {
				t.Errorf("%s: %s beats declared winner %s", target, e.Kind, w.Kind)
			}
		}
	}
}
