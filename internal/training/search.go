package training

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/rewired-gh/scorepulse/internal/model"
	"golang.org/x/sync/errgroup"
)

// Fold is one time-ordered cross-validation split, as row indices.
type Fold struct {
	Train []int
	Test  []int
}

// TimeSeriesSplit returns expanding-window folds: each test block follows its
// training prefix and the blocks tile the tail of the data. With n rows and k
// splits the test size is n/(k+1).
func TimeSeriesSplit(n, splits int) ([]Fold, error) {
	if splits < 2 {
		return nil, fmt.Errorf("need at least 2 splits, got %d", splits)
	}
	testSize := n / (splits + 1)
	if testSize == 0 {
		return nil, fmt.Errorf("cannot make %d splits from %d rows", splits, n)
	}
	folds := make([]Fold, 0, splits)
	for start := n - splits*testSize; start < n; start += testSize {
		f := Fold{Train: indexRange(0, start), Test: indexRange(start, start+testSize)}
		folds = append(folds, f)
	}
	return folds, nil
}

func indexRange(from, to int) []int {
	out := make([]int, to-from)
	for i := range out {
		out[i] = from + i
	}
	return out
}

// Param is one searchable hyperparameter.
type Param struct {
	Name   string
	Values []float64
}

// Grid returns the search space for a tunable kind, or nil when the kind trains
// with its defaults only. A max_depth of 0 means unlimited.
func Grid(kind model.Kind) []Param {
	switch kind {
	case model.KindForest:
		return []Param{
			{"n_estimators", []float64{100, 200, 300, 500}},
			{"max_depth", []float64{0, 10, 20, 30}},
			{"min_samples_split", []float64{2, 5, 10}},
			{"min_samples_leaf", []float64{1, 2, 4}},
		}
	case model.KindBoost:
		return []Param{
			{"n_estimators", []float64{100, 200, 300}},
			{"learning_rate", []float64{0.01, 0.05, 0.1, 0.2}},
			{"max_depth", []float64{3, 5, 7}},
			{"subsample", []float64{0.8, 0.9, 1.0}},
		}
	default:
		return nil
	}
}

// Tunable reports whether a kind has a search space.
func Tunable(kind model.Kind) bool {
	return Grid(kind) != nil
}

// Candidate is one sampled parameter set.
type Candidate map[string]float64

func (c Candidate) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, c[k])
	}
	return strings.Join(parts, " ")
}

// Sample draws up to n distinct grid points with a seeded source.
func Sample(grid []Param, n int, seed int64) []Candidate {
	total := 1
	for _, p := range grid {
		total *= len(p.Values)
	}
	n = min(n, total)
	rng := rand.New(rand.NewSource(seed))
	picks := rng.Perm(total)[:n]

	out := make([]Candidate, n)
	for i, pick := range picks {
		c := make(Candidate, len(grid))
		for _, p := range grid {
			c[p.Name] = p.Values[pick%len(p.Values)]
			pick /= len(p.Values)
		}
		out[i] = c
	}
	return out
}

// Apply builds a typed config from defaults overridden by a candidate.
func Apply(kind model.Kind, c Candidate, seed int64) (model.Config, error) {
	switch kind {
	case model.KindForest:
		cfg := model.DefaultForestConfig()
		cfg.Seed = seed
		if v, ok := c["n_estimators"]; ok {
			cfg.NEstimators = int(v)
		}
		if v, ok := c["max_depth"]; ok {
			cfg.MaxDepth = int(v)
		}
		if v, ok := c["min_samples_split"]; ok {
			cfg.MinSamplesSplit = int(v)
		}
		if v, ok := c["min_samples_leaf"]; ok {
			cfg.MinSamplesLeaf = int(v)
		}
		return cfg, nil
	case model.KindBoost:
		cfg := model.DefaultBoostConfig()
		cfg.Seed = seed
		if v, ok := c["n_estimators"]; ok {
			cfg.NEstimators = int(v)
		}
		if v, ok := c["learning_rate"]; ok {
			cfg.LearningRate = v
		}
		if v, ok := c["max_depth"]; ok {
			cfg.MaxDepth = int(v)
		}
		if v, ok := c["subsample"]; ok {
			cfg.Subsample = v
		}
		return cfg, nil
	case model.KindLinear:
		cfg := model.DefaultLinearConfig()
		cfg.Seed = seed
		return cfg, nil
	case model.KindNeural:
		cfg := model.DefaultNeuralConfig()
		cfg.Seed = seed
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedModel, kind)
	}
}

// SearchResult is the outcome of a randomized search.
type SearchResult struct {
	Best      Candidate
	BestScore float64 // mean CV accuracy, or negative mean CV MSE
	Config    model.Config
	Tried     int
}

// Search runs a randomized search over kind's grid with time-ordered CV and
// returns the candidate with the best mean fold score. Folds of one candidate
// are fitted concurrently.
func Search(ctx context.Context, kind model.Kind, mode model.Mode, X [][]float64, y []float64, iterations, splits int, seed int64) (*SearchResult, error) {
	grid := Grid(kind)
	if grid == nil {
		return nil, fmt.Errorf("%s has no search space", kind)
	}
	folds, err := TimeSeriesSplit(len(X), splits)
	if err != nil {
		return nil, err
	}

	res := &SearchResult{}
	for _, cand := range Sample(grid, iterations, seed) {
		cfg, err := Apply(kind, cand, seed)
		if err != nil {
			return nil, err
		}
		scores := make([]float64, len(folds))
		g, gctx := errgroup.WithContext(ctx)
		for i, fold := range folds {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				s, err := foldScore(kind, mode, cfg, X, y, fold)
				scores[i] = s
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", cand, err)
		}

		var mean float64
		for _, s := range scores {
			mean += s
		}
		mean /= float64(len(scores))
		res.Tried++
		if res.Best == nil || mean > res.BestScore {
			res.Best, res.BestScore, res.Config = cand, mean, cfg
		}
	}
	return res, nil
}

func foldScore(kind model.Kind, mode model.Mode, cfg model.Config, X [][]float64, y []float64, fold Fold) (float64, error) {
	m, err := model.New(kind, mode, cfg)
	if err != nil {
		return 0, err
	}
	if err := m.Train(pick(X, fold.Train), pickValues(y, fold.Train)); err != nil {
		return 0, err
	}
	pred, err := m.Predict(pick(X, fold.Test))
	if err != nil {
		return 0, err
	}
	truth := pickValues(y, fold.Test)
	if mode == model.Classification {
		return Accuracy(pred, truth), nil
	}
	return -MSE(pred, truth), nil
}

func pick(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func pickValues(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

// Accuracy is the fraction of exact matches.
func Accuracy(pred, truth []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	var ok int
	for i := range truth {
		if pred[i] == truth[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(truth))
}

// MSE is the mean squared error.
func MSE(pred, truth []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	var sum float64
	for i := range truth {
		d := pred[i] - truth[i]
		sum += d * d
	}
	return sum / float64(len(truth))
}
