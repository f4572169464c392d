package model

import (
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestConfig configures the bagged tree ensemble.
type ForestConfig struct {
	NEstimators     int   `json:"n_estimators"`      // default 200
	MaxDepth        int   `json:"max_depth"`         // default 10, 0 for unlimited
	MinSamplesSplit int   `json:"min_samples_split"` // default 2
	MinSamplesLeaf  int   `json:"min_samples_leaf"`  // default 1
	MaxFeatures     int   `json:"max_features"`      // 0: sqrt(p) for classification, p for regression
	Seed            int64 `json:"seed"`
}

// DefaultForestConfig returns the forest defaults.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NEstimators:     200,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            DefaultSeed,
	}
}

func (ForestConfig) kind() Kind { return KindForest }

// Forest is a random forest: bootstrap-sampled CART trees with per-split feature
// subsampling, averaged at prediction time.
type Forest struct {
	base
	cfg   ForestConfig
	trees []tree
}

func newForest(mode Mode, cfg ForestConfig) *Forest {
	return &Forest{base: base{kind: KindForest, mode: mode}, cfg: cfg}
}

// Train fits NEstimators trees. Each tree draws from its own source derived from
// the seed, so the result does not depend on scheduling.
func (f *Forest) Train(X [][]float64, y []float64) error {
	if err := f.prepare(X, y); err != nil {
		return err
	}
	maxFeatures := f.cfg.MaxFeatures
	if maxFeatures <= 0 && f.mode == Classification {
		maxFeatures = sqrtFeatures(f.features)
	}

	trees := make([]tree, max(1, f.cfg.NEstimators))
	g := errgroup.Group{}
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(f.cfg.Seed + int64(t)))
			idx := make([]int, len(X))
			for i := range idx {
				idx[i] = rng.Intn(len(X))
			}
			b := &treeBuilder{
				maxDepth:    f.cfg.MaxDepth,
				minSplit:    max(2, f.cfg.MinSamplesSplit),
				minLeaf:     max(1, f.cfg.MinSamplesLeaf),
				maxFeatures: maxFeatures,
				classes:     f.classes,
				rng:         rng,
				X:           X,
				y:           y,
			}
			trees[t] = b.build(idx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.trees = trees
	f.trained = true
	return nil
}

func (f *Forest) average(x []float64) []float64 {
	width := max(1, f.classes)
	out := make([]float64, width)
	for i := range f.trees {
		v := f.trees[i].predict(x)
		for j := range out {
			out[j] += v[j]
		}
	}
	for j := range out {
		out[j] /= float64(len(f.trees))
	}
	return out
}

func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	if err := f.check(X); err != nil {
		return nil, err
	}
	if f.mode == Classification {
		proba, _ := f.PredictProba(X)
		return labels(proba), nil
	}
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = f.average(x)[0]
	}
	return out, nil
}

func (f *Forest) PredictProba(X [][]float64) ([][]float64, error) {
	if f.mode == Regression {
		return nil, ErrProbaRegression
	}
	if err := f.check(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = f.average(x)
	}
	return out, nil
}

func (f *Forest) Save(path string) error {
	return f.save(path, f.cfg, f.trees)
}

func (f *Forest) Load(path string) error {
	return f.load(path, &f.cfg, &f.trees)
}
