package model

import (
	"math"
	"math/rand"
)

// BoostConfig configures gradient boosted trees.
type BoostConfig struct {
	NEstimators    int     `json:"n_estimators"`  // default 100
	LearningRate   float64 `json:"learning_rate"` // default 0.1
	MaxDepth       int     `json:"max_depth"`     // default 3
	Subsample      float64 `json:"subsample"`     // default 1.0
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Seed           int64   `json:"seed"`
}

// DefaultBoostConfig returns the boosting defaults.
func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		NEstimators:    100,
		LearningRate:   0.1,
		MaxDepth:       3,
		Subsample:      1.0,
		MinSamplesLeaf: 1,
		Seed:           DefaultSeed,
	}
}

func (BoostConfig) kind() Kind { return KindBoost }

// Boost is stagewise additive trees. Regression fits least squares residuals;
// binary classification fits the logistic deviance with one tree per stage and
// multiclass fits the softmax deviance with one tree per class per stage.
type Boost struct {
	base
	cfg   BoostConfig
	state boostState
}

type boostState struct {
	Init   []float64 `json:"init"`
	Stages [][]tree  `json:"stages"`
}

func newBoost(mode Mode, cfg BoostConfig) *Boost {
	return &Boost{base: base{kind: KindBoost, mode: mode}, cfg: cfg}
}

// outputs is the number of raw scores per row.
func (b *Boost) outputs() int {
	if b.mode == Regression || b.classes == 2 {
		return 1
	}
	return b.classes
}

func (b *Boost) Train(X [][]float64, y []float64) error {
	if err := b.prepare(X, y); err != nil {
		return err
	}
	n := len(X)
	k := b.outputs()
	rng := rand.New(rand.NewSource(b.cfg.Seed))

	initial := b.initialScores(y)
	raw := make([][]float64, n)
	for i := range raw {
		raw[i] = append([]float64(nil), initial...)
	}

	residual := make([]float64, n)
	hess := make([]float64, n)
	proba := make([]float64, max(k, 2))
	stages := make([][]tree, 0, b.cfg.NEstimators)

	for s := 0; s < b.cfg.NEstimators; s++ {
		idx := b.sample(rng, n)
		stage := make([]tree, k)
		for c := 0; c < k; c++ {
			for i := range X {
				residual[i], hess[i] = b.gradient(raw[i], y[i], c, proba)
			}
			builder := &treeBuilder{
				maxDepth: b.cfg.MaxDepth,
				minSplit: 2,
				minLeaf:  max(1, b.cfg.MinSamplesLeaf),
				rng:      rng,
				X:        X,
				y:        residual,
			}
			t := builder.build(idx)
			if b.mode == Classification {
				newtonLeaves(&t, X, idx, residual, hess, k)
			}
			stage[c] = t
		}
		// Scores update after all class trees of a stage are fitted
		for i, x := range X {
			for c := 0; c < k; c++ {
				raw[i][c] += b.cfg.LearningRate * stage[c].predict(x)[0]
			}
		}
		stages = append(stages, stage)
	}

	b.state = boostState{Init: initial, Stages: stages}
	b.trained = true
	return nil
}

func (b *Boost) initialScores(y []float64) []float64 {
	n := float64(len(y))
	switch {
	case b.mode == Regression:
		var sum float64
		for _, v := range y {
			sum += v
		}
		return []float64{sum / n}
	case b.classes == 2:
		var pos float64
		for _, v := range y {
			pos += v
		}
		p := math.Min(math.Max(pos/n, 1e-6), 1-1e-6)
		return []float64{math.Log(p / (1 - p))}
	default:
		counts := make([]float64, b.classes)
		for _, v := range y {
			counts[int(v)]++
		}
		scores := make([]float64, b.classes)
		for c := range scores {
			scores[c] = math.Log(math.Max(counts[c]/n, 1e-6))
		}
		return scores
	}
}

// gradient returns the negative gradient and the hessian of the loss for one row
// and output c.
func (b *Boost) gradient(raw []float64, y float64, c int, proba []float64) (float64, float64) {
	switch {
	case b.mode == Regression:
		return y - raw[0], 1
	case b.classes == 2:
		p := sigmoid(raw[0])
		return y - p, p * (1 - p)
	default:
		softmax(raw, proba[:len(raw)])
		target := 0.0
		if int(y) == c {
			target = 1
		}
		p := proba[c]
		return target - p, p * (1 - p)
	}
}

// sample draws the rows for one stage, without replacement when Subsample < 1.
func (b *Boost) sample(rng *rand.Rand, n int) []int {
	if b.cfg.Subsample <= 0 || b.cfg.Subsample >= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	size := max(1, int(float64(n)*b.cfg.Subsample))
	return rng.Perm(n)[:size]
}

// newtonLeaves replaces leaf means with a single Newton step on the deviance.
func newtonLeaves(t *tree, X [][]float64, idx []int, residual, hess []float64, k int) {
	num := make(map[int]float64)
	den := make(map[int]float64)
	for _, i := range idx {
		l := t.leaf(X[i])
		num[l] += residual[i]
		den[l] += hess[i]
	}
	scale := 1.0
	if k > 1 {
		scale = float64(k-1) / float64(k)
	}
	for l, d := range den {
		v := 0.0
		if math.Abs(d) > 1e-150 {
			v = scale * num[l] / d
		}
		t.Nodes[l].Value = []float64{v}
	}
}

func (b *Boost) raw(x []float64) []float64 {
	out := append([]float64(nil), b.state.Init...)
	for _, stage := range b.state.Stages {
		for c := range stage {
			out[c] += b.cfg.LearningRate * stage[c].predict(x)[0]
		}
	}
	return out
}

func (b *Boost) Predict(X [][]float64) ([]float64, error) {
	if err := b.check(X); err != nil {
		return nil, err
	}
	if b.mode == Classification {
		proba, _ := b.PredictProba(X)
		return labels(proba), nil
	}
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = b.raw(x)[0]
	}
	return out, nil
}

func (b *Boost) PredictProba(X [][]float64) ([][]float64, error) {
	if b.mode == Regression {
		return nil, ErrProbaRegression
	}
	if err := b.check(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		r := b.raw(x)
		p := make([]float64, b.classes)
		if b.classes == 2 {
			p[1] = sigmoid(r[0])
			p[0] = 1 - p[1]
		} else {
			softmax(r, p)
		}
		out[i] = p
	}
	return out, nil
}

func (b *Boost) Save(path string) error {
	return b.save(path, b.cfg, b.state)
}

func (b *Boost) Load(path string) error {
	return b.load(path, &b.cfg, &b.state)
}
