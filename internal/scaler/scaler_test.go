package scaler

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/models"
)

func makeRows(n int) []features.Row {
	rows := make([]features.Row, n)
	for i := range rows {
		v := make(map[string]float64, len(features.Names)+1)
		for j, name := range features.Names {
			v[name] = float64(i*(j+1)) + 0.5*float64(j)
		}
		// constant column
		v[features.MarketMargin] = 0.05
		v[dataset.TargetWLD.Column()] = float64(i % 3)
		rows[i] = features.Row{
			Match:  models.NewMatch(time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), "H", "A"),
			Values: v,
		}
	}
	return rows
}

func TestFit_PopulationStd(t *testing.T) {
	s := Fit([]string{"a", "b"}, [][]float64{{1, 5}, {3, 5}})
	if s.Mean[0] != 2 || s.Scale[0] != 1 {
		t.Errorf("expected mean 2 scale 1, got %v %v", s.Mean[0], s.Scale[0])
	}
	if s.Scale[1] != 1 {
		t.Errorf("constant feature should get scale 1, got %v", s.Scale[1])
	}
}

func TestTransform_RoundTripThroughFreshHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	rows := makeRows(20)

	fit := NewTransformer(path)
	X1, y1, err := fit.FitAndTransform(rows, dataset.TargetWLD)
	if err != nil {
		t.Fatalf("FitAndTransform failed: %v", err)
	}
	if fit.State() != Loaded {
		t.Error("fitting should leave the handle loaded")
	}

	fresh := NewTransformer(path)
	if fresh.State() != Unloaded {
		t.Fatal("new handle should start unloaded")
	}
	X2, y2, err := fresh.Transform(rows, dataset.TargetWLD)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if fresh.State() != Loaded {
		t.Error("Transform should load the artifact")
	}
	for i := range X1 {
		if y1[i] != y2[i] {
			t.Fatalf("target %d differs", i)
		}
		for j := range X1[i] {
			if math.Abs(X1[i][j]-X2[i][j]) > 1e-12 {
				t.Fatalf("X[%d][%d] differs: %v vs %v", i, j, X1[i][j], X2[i][j])
			}
		}
	}
}

func TestTransform_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	rows := makeRows(10)
	tr := NewTransformer(path)
	if _, _, err := tr.FitAndTransform(rows, ""); err != nil {
		t.Fatal(err)
	}

	a, y, err := tr.Transform(rows[:3], "")
	if err != nil {
		t.Fatal(err)
	}
	if y != nil {
		t.Error("no target requested, expected nil vector")
	}
	b, _, err := tr.Transform(rows[:3], "")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("repeated transform differs at %d,%d", i, j)
			}
		}
	}
}

func TestTransform_DoesNotRefit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	tr := NewTransformer(path)
	if _, _, err := tr.FitAndTransform(makeRows(10), ""); err != nil {
		t.Fatal(err)
	}
	// A single row would standardize to all zeros if it were refitted
	X, _, err := tr.Transform(makeRows(10)[9:], "")
	if err != nil {
		t.Fatal(err)
	}
	if X[0][0] == 0 {
		t.Error("transform appears to have refitted on its input")
	}
}

func TestTransform_NotFitted(t *testing.T) {
	tr := NewTransformer(filepath.Join(t.TempDir(), "scaler.json"))
	_, _, err := tr.Transform(makeRows(2), "")
	if !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
	if !strings.Contains(err.Error(), "must train first") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestFitAndTransform_MissingFeatures(t *testing.T) {
	rows := makeRows(3)
	delete(rows[1].Values, features.HomeAvgShots)
	rows[2].Values[features.OddDraw] = math.NaN()

	tr := NewTransformer(filepath.Join(t.TempDir(), "scaler.json"))
	_, _, err := tr.FitAndTransform(rows, dataset.TargetWLD)
	if !errors.Is(err, ErrMissingFeatures) {
		t.Fatalf("expected ErrMissingFeatures, got %v", err)
	}
	for _, name := range []string{features.HomeAvgShots, features.OddDraw} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should list %s: %v", name, err)
		}
	}
	if tr.State() != Unloaded {
		t.Error("failed fit must not load a scaler")
	}
}

func TestTransform_MissingTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	tr := NewTransformer(path)
	if _, _, err := tr.FitAndTransform(makeRows(4), ""); err != nil {
		t.Fatal(err)
	}
	_, _, err := tr.Transform(makeRows(4), dataset.TargetBTTS)
	if !errors.Is(err, ErrMissingTarget) {
		t.Fatalf("expected ErrMissingTarget, got %v", err)
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	tr := NewTransformer(path)
	if _, _, err := tr.FitAndTransform(makeRows(5), ""); err != nil {
		t.Fatal(err)
	}
	v1, err := tr.Version()
	if err != nil {
		t.Fatal(err)
	}
	tr.Reset()
	if tr.State() != Unloaded {
		t.Fatal("Reset should unload")
	}
	v2, err := tr.Version()
	if err != nil || v1 != v2 {
		t.Errorf("reloaded version mismatch: %q vs %q (%v)", v1, v2, err)
	}
}
