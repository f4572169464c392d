package training

import (
	"context"
	"fmt"
	"math"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/model"
)

// Entry is one contestant's validation result.
type Entry struct {
	Target dataset.Target
	Kind   model.Kind
	Metric string
	Score  float64
	Err    error
}

// Tournament is the outcome of Compare.
type Tournament struct {
	Entries []Entry
	Winners map[dataset.Target]Entry
	Saved   []string
}

// better reports whether a beats b under the metric's direction.
func better(metric string, a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	if metric == MetricMSE {
		return a < b
	}
	return a > b
}

// Compare trains every algorithm kind for every target on the training split,
// scores each on the validation split and saves only the winner per target.
func (t *Trainer) Compare(ctx context.Context, progress ProgressFunc) (*Tournament, error) {
	if !t.mu.TryLock() {
		return nil, ErrRunning
	}
	defer t.mu.Unlock()
	if progress == nil {
		progress = func(string, int) {}
	}

	splits, err := t.PrepareSplits(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(splits.Val) == 0 {
		return nil, fmt.Errorf("validation split is empty")
	}

	tour := &Tournament{Winners: make(map[dataset.Target]Entry)}
	total := len(dataset.Targets) * len(model.Kinds)
	done := 0
	for _, target := range dataset.Targets {
		data, err := t.scale(splits, target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}
		metric := MetricAccuracy
		if target.Regression() {
			metric = MetricMSE
		}

		var best model.Model
		for _, kind := range model.Kinds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			progress(fmt.Sprintf("Comparing %s (%s)", target, kind), 100*done/total)
			done++

			e := Entry{Target: target, Kind: kind, Metric: metric, Score: math.NaN()}
			fitted, err := t.fit(ctx, kind, target, data, false)
			if err != nil {
				e.Err = err
				logger.Warn("%s/%s failed: %v", target, kind, err)
				tour.Entries = append(tour.Entries, e)
				continue
			}
			e.Score = fitted.score
			tour.Entries = append(tour.Entries, e)

			w, ok := tour.Winners[target]
			if !ok || better(metric, e.Score, w.Score) {
				tour.Winners[target] = e
				best = fitted.model
			}
		}

		if best == nil {
			logger.Warn("No contestant finished for %s", target)
			continue
		}
		w := tour.Winners[target]
		path := artifact.ModelPath(t.modelsDir, string(target), string(w.Kind))
		if err := best.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save winner for %s: %w", target, err)
		}
		tour.Saved = append(tour.Saved, path)
		logger.Info("Winner for %s: %s (%s %.4f)", target, w.Kind, metric, w.Score)
	}
	progress("Comparison complete", 100)
	return tour, nil
}
