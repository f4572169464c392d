// Package training drives the batch pipeline: featurize, label, split, scale,
// optionally tune, fit one model per target and algorithm, and record metrics.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/metrics"
	"github.com/rewired-gh/scorepulse/internal/model"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/scaler"
)

// ErrRunning is returned when a run is requested while another is in progress.
var ErrRunning = errors.New("training already running")

// Metric names recorded per model.
const (
	MetricAccuracy = "accuracy"
	MetricMSE      = "mse"
)

// Store is the part of the match store the trainer uses.
type Store interface {
	Matches(ctx context.Context) ([]models.Match, error)
	RecordMetric(ctx context.Context, m models.TrainingMetric) error
}

// ProgressFunc receives a step description and a completion percentage.
type ProgressFunc func(step string, percent int)

// Options controls one training run.
type Options struct {
	Tune     bool // randomized search for tunable kinds
	Rebuild  bool // regenerate split files from the store
	Progress ProgressFunc
}

// Result summarizes a run.
type Result struct {
	RunID    string
	Splits   [3]int
	Metrics  []models.TrainingMetric
	Saved    []string
	Duration time.Duration
}

// Trainer owns the fit path. It is the only writer of the scaler and model
// artifacts; runs are serialized.
type Trainer struct {
	store       Store
	transformer *scaler.Transformer
	generator   *features.Generator

	splitsDir string
	modelsDir string
	trainFrac float64
	valFrac   float64
	kinds     []model.Kind
	tuneIter  int
	cvSplits  int
	seed      int64

	mu  sync.Mutex
	now func() time.Time
}

// New builds a trainer from configuration.
func New(cfg *config.Config, store Store, transformer *scaler.Transformer) (*Trainer, error) {
	kinds := make([]model.Kind, 0, len(cfg.Training.Algorithms))
	for _, a := range cfg.Training.Algorithms {
		k, err := model.ParseKind(a)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return &Trainer{
		store:       store,
		transformer: transformer,
		generator: &features.Generator{
			Window:      cfg.Features.Window,
			RestDefault: cfg.Features.RestDefault,
			RestCap:     cfg.Features.RestCap,
		},
		splitsDir: cfg.Data.SplitsDir,
		modelsDir: cfg.Artifacts.ModelsDir,
		trainFrac: cfg.Split.TrainFraction,
		valFrac:   cfg.Split.ValFraction,
		kinds:     kinds,
		tuneIter:  cfg.Training.TuneIterations,
		cvSplits:  cfg.Training.CVSplits,
		seed:      cfg.Training.Seed,
		now:       time.Now,
	}, nil
}

// Kinds returns the configured algorithms.
func (t *Trainer) Kinds() []model.Kind {
	return t.kinds
}

// PrepareSplits returns the persisted splits, regenerating them from the store
// when they are missing or rebuild is set.
func (t *Trainer) PrepareSplits(ctx context.Context, rebuild bool) (*dataset.Splits, error) {
	if !rebuild && dataset.SplitsExist(t.splitsDir) {
		return dataset.ReadSplits(t.splitsDir)
	}

	matches, err := t.store.Matches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}
	rows, st := dataset.Prepare(matches, t.generator)
	logger.Info("Prepared %d rows from %d matches (%d unlabeled, %d incomplete dropped)",
		st.Output, st.Input, st.Unlabeled, st.Incomplete)

	splits, err := dataset.Split(rows, t.trainFrac, t.valFrac)
	if err != nil {
		return nil, err
	}
	if err := dataset.WriteSplits(t.splitsDir, splits); err != nil {
		return nil, err
	}
	logger.Info("Wrote splits: train=%d val=%d test=%d", len(splits.Train), len(splits.Val), len(splits.Test))
	return splits, nil
}

// Run trains every target with every configured algorithm.
func (t *Trainer) Run(ctx context.Context, opts Options) (*Result, error) {
	if !t.mu.TryLock() {
		return nil, ErrRunning
	}
	defer t.mu.Unlock()

	res, err := t.run(ctx, opts)
	if err != nil {
		metrics.TrainingRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TrainingRuns.WithLabelValues("ok").Inc()
	return res, nil
}

func (t *Trainer) run(ctx context.Context, opts Options) (*Result, error) {
	start := t.now()
	progress := opts.Progress
	if progress == nil {
		progress = func(string, int) {}
	}

	progress("Preparing splits", 5)
	splits, err := t.PrepareSplits(ctx, opts.Rebuild)
	if err != nil {
		return nil, err
	}
	if len(splits.Train) == 0 {
		return nil, errors.New("training split is empty")
	}

	res := &Result{
		RunID:  uuid.NewString(),
		Splits: [3]int{len(splits.Train), len(splits.Val), len(splits.Test)},
	}
	logger.Info("Training run %s started (tune=%v, algorithms=%v)", res.RunID, opts.Tune, t.kinds)

	total := len(dataset.Targets) * len(t.kinds)
	done := 0
	for _, target := range dataset.Targets {
		data, err := t.scale(splits, target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}

		for _, kind := range t.kinds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			progress(fmt.Sprintf("Training %s (%s)", target, kind), 10+80*done/total)

			fitted, err := t.fit(ctx, kind, target, data, opts.Tune)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", target, kind, err)
			}
			path := artifact.ModelPath(t.modelsDir, string(target), string(kind))
			if err := fitted.model.Save(path); err != nil {
				return nil, fmt.Errorf("failed to save %s/%s: %w", target, kind, err)
			}
			res.Saved = append(res.Saved, path)

			if m, ok := t.record(ctx, res.RunID, target, kind, fitted.score); ok {
				res.Metrics = append(res.Metrics, m)
			}
			done++
		}
	}

	res.Duration = t.now().Sub(start)
	progress("Training complete", 100)
	logger.Info("Training run %s finished in %s (%d models)", res.RunID, res.Duration.Round(time.Second), len(res.Saved))
	return res, nil
}

// scaled is one target's train and validation matrices.
type scaled struct {
	mode   model.Mode
	trainX [][]float64
	trainY []float64
	valX   [][]float64
	valY   []float64
}

// scale transforms both splits for a target. The scaler is fitted on the WLD
// pass only; every other target reuses it.
func (t *Trainer) scale(splits *dataset.Splits, target dataset.Target) (*scaled, error) {
	s := &scaled{mode: modeFor(target)}
	var err error
	if target == dataset.TargetWLD {
		s.trainX, s.trainY, err = t.transformer.FitAndTransform(splits.Train, target)
	} else {
		s.trainX, s.trainY, err = t.transformer.Transform(splits.Train, target)
	}
	if err != nil {
		return nil, err
	}
	if len(splits.Val) > 0 {
		if s.valX, s.valY, err = t.transformer.Transform(splits.Val, target); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type fitResult struct {
	model model.Model
	score float64 // validation accuracy or MSE, NaN without a validation split
}

func (t *Trainer) fit(ctx context.Context, kind model.Kind, target dataset.Target, data *scaled, tune bool) (*fitResult, error) {
	cfg, err := Apply(kind, nil, t.seed)
	if err != nil {
		return nil, err
	}
	if tune && Tunable(kind) {
		sr, err := Search(ctx, kind, data.mode, data.trainX, data.trainY, t.tuneIter, t.cvSplits, t.seed)
		if err != nil {
			logger.Warn("Tuning %s/%s failed, using defaults: %v", target, kind, err)
		} else {
			logger.Info("Best params for %s/%s: %s (cv score %.4f over %d candidates)", target, kind, sr.Best, sr.BestScore, sr.Tried)
			cfg = sr.Config
		}
	}

	m, err := model.New(kind, data.mode, cfg)
	if err != nil {
		return nil, err
	}
	if err := m.Train(data.trainX, data.trainY); err != nil {
		return nil, err
	}

	score := math.NaN()
	if len(data.valX) > 0 {
		pred, err := m.Predict(data.valX)
		if err != nil {
			return nil, err
		}
		if data.mode == model.Classification {
			score = Accuracy(pred, data.valY)
		} else {
			score = MSE(pred, data.valY)
		}
	}
	return &fitResult{model: m, score: score}, nil
}

func (t *Trainer) record(ctx context.Context, runID string, target dataset.Target, kind model.Kind, score float64) (models.TrainingMetric, bool) {
	if math.IsNaN(score) {
		logger.Warn("No validation rows, %s/%s has no metric", target, kind)
		return models.TrainingMetric{}, false
	}
	name := MetricAccuracy
	if target.Regression() {
		name = MetricMSE
	}
	logger.Info("%s/%s validation %s: %.4f", target, kind, name, score)
	metrics.TrainingMetric.WithLabelValues(string(target), string(kind), name).Set(score)

	m := models.TrainingMetric{
		RunID:     runID,
		Target:    string(target),
		Algorithm: string(kind),
		Metric:    name,
		Value:     score,
		CreatedAt: t.now().UTC(),
	}
	if err := t.store.RecordMetric(ctx, m); err != nil {
		logger.Warn("Failed to record metric for %s/%s: %v", target, kind, err)
	}
	return m, true
}

func modeFor(target dataset.Target) model.Mode {
	if target.Regression() {
		return model.Regression
	}
	return model.Classification
}
