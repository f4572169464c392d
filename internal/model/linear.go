package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// LinearConfig configures the stochastic gradient linear models.
type LinearConfig struct {
	Alpha   float64 `json:"alpha"`    // L2 penalty, default 0.0001
	MaxIter int     `json:"max_iter"` // epochs, default 1000
	Tol     float64 `json:"tol"`      // stop when the epoch loss improves by less, default 1e-3
	Eta0    float64 `json:"eta0"`     // initial step, default 0.01
	Seed    int64   `json:"seed"`
}

// DefaultLinearConfig returns the linear model defaults.
func DefaultLinearConfig() LinearConfig {
	return LinearConfig{
		Alpha:   0.0001,
		MaxIter: 1000,
		Tol:     1e-3,
		Eta0:    0.01,
		Seed:    DefaultSeed,
	}
}

func (LinearConfig) kind() Kind { return KindLinear }

// noImprovementEpochs is how many consecutive epochs may miss Tol before stopping.
const noImprovementEpochs = 5

// Linear is a linear SVM in classification mode (one-vs-rest hinge loss, with
// sigmoid calibration of each decision function) and plain least squares in
// regression mode.
type Linear struct {
	base
	cfg   LinearConfig
	state linearState
}

// linearUnit is one decision function with its sigmoid calibration
// p = 1 / (1 + exp(A*f + B)).
type linearUnit struct {
	Weights []float64 `json:"w"`
	Bias    float64   `json:"b"`
	A       float64   `json:"a,omitempty"`
	B       float64   `json:"b_cal,omitempty"`
}

type linearState struct {
	Units []linearUnit `json:"units"`
}

func newLinear(mode Mode, cfg LinearConfig) *Linear {
	return &Linear{base: base{kind: KindLinear, mode: mode}, cfg: cfg}
}

func (l *Linear) Train(X [][]float64, y []float64) error {
	if err := l.prepare(X, y); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(l.cfg.Seed))

	if l.mode == Regression {
		l.state = linearState{Units: []linearUnit{l.fit(X, y, rng, squaredLoss)}}
		l.trained = true
		return nil
	}

	// Binary problems need one decision function; multiclass needs one per class
	units := l.classes
	if units == 2 {
		units = 1
	}
	l.state.Units = make([]linearUnit, units)
	target := make([]float64, len(y))
	for u := 0; u < units; u++ {
		positive := float64(u)
		if units == 1 {
			positive = 1
		}
		for i, v := range y {
			if v == positive {
				target[i] = 1
			} else {
				target[i] = -1
			}
		}
		unit := l.fit(X, target, rng, hingeLoss)
		decisions := make([]float64, len(X))
		for i, x := range X {
			decisions[i] = unit.decision(x)
		}
		unit.A, unit.B = plattScale(decisions, target)
		l.state.Units[u] = unit
	}
	l.trained = true
	return nil
}

type lossFunc func(pred, y float64) (loss, dloss float64)

func hingeLoss(pred, y float64) (float64, float64) {
	z := pred * y
	if z < 1 {
		return 1 - z, -y
	}
	return 0, 0
}

func squaredLoss(pred, y float64) (float64, float64) {
	d := pred - y
	return 0.5 * d * d, d
}

// fit runs epochs of shuffled SGD with an inverse scaling step size.
func (l *Linear) fit(X [][]float64, y []float64, rng *rand.Rand, loss lossFunc) linearUnit {
	unit := linearUnit{Weights: make([]float64, l.features)}
	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	best := math.Inf(1)
	stale := 0
	t := 1.0
	for epoch := 0; epoch < max(1, l.cfg.MaxIter); epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		var total float64
		for _, i := range order {
			eta := l.cfg.Eta0 / math.Pow(t, 0.25)
			pred := unit.decision(X[i])
			lv, dl := loss(pred, y[i])
			total += lv
			floats.Scale(1-eta*l.cfg.Alpha, unit.Weights)
			if dl != 0 {
				floats.AddScaled(unit.Weights, -eta*dl, X[i])
				unit.Bias -= eta * dl
			}
			t++
		}
		total /= float64(len(order))
		if total > best-l.cfg.Tol {
			stale++
			if stale >= noImprovementEpochs {
				break
			}
		} else {
			stale = 0
		}
		best = math.Min(best, total)
	}
	return unit
}

func (u *linearUnit) decision(x []float64) float64 {
	return floats.Dot(u.Weights, x) + u.Bias
}

func (u *linearUnit) calibrated(x []float64) float64 {
	return 1 / (1 + math.Exp(u.A*u.decision(x)+u.B))
}

// plattScale fits (A, B) for p = 1 / (1 + exp(A*f + B)) by Newton's method with
// backtracking on regularized targets. labels are +1 / -1.
func plattScale(decisions, labels []float64) (float64, float64) {
	var prior1, prior0 float64
	for _, v := range labels {
		if v > 0 {
			prior1++
		} else {
			prior0++
		}
	}
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	t := make([]float64, len(labels))
	for i, v := range labels {
		if v > 0 {
			t[i] = hiTarget
		} else {
			t[i] = loTarget
		}
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	objective := func(a, b float64) float64 {
		var f float64
		for i, d := range decisions {
			fApB := d*a + b
			if fApB >= 0 {
				f += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, d := range decisions {
			fApB := d*a + b
			var p, q float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
				q = 1 / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
				q = math.Exp(fApB) / (1 + math.Exp(fApB))
			}
			d2 := p * q
			h11 += d * d * d2
			h22 += d2
			h21 += d * d2
			d1 := t[i] - p
			g1 += d * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			na, nb := a+step*dA, b+step*dB
			nf := objective(na, nb)
			if nf < fval+0.0001*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

func (l *Linear) Predict(X [][]float64) ([]float64, error) {
	if err := l.check(X); err != nil {
		return nil, err
	}
	if l.mode == Classification {
		proba, _ := l.PredictProba(X)
		return labels(proba), nil
	}
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = l.state.Units[0].decision(x)
	}
	return out, nil
}

// PredictProba returns calibrated probabilities. Multiclass rows are the
// one-vs-rest calibrated scores normalized to sum to one.
func (l *Linear) PredictProba(X [][]float64) ([][]float64, error) {
	if l.mode == Regression {
		return nil, ErrProbaRegression
	}
	if err := l.check(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		p := make([]float64, l.classes)
		if len(l.state.Units) == 1 {
			p[1] = l.state.Units[0].calibrated(x)
			p[0] = 1 - p[1]
		} else {
			for c := range l.state.Units {
				p[c] = l.state.Units[c].calibrated(x)
			}
			if sum := floats.Sum(p); sum > 0 {
				floats.Scale(1/sum, p)
			} else {
				for c := range p {
					p[c] = 1 / float64(len(p))
				}
			}
		}
		out[i] = p
	}
	return out, nil
}

func (l *Linear) Save(path string) error {
	return l.save(path, l.cfg, l.state)
}

func (l *Linear) Load(path string) error {
	return l.load(path, &l.cfg, &l.state)
}
