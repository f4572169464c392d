package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// NeuralConfig configures the feed-forward network.
type NeuralConfig struct {
	Hidden       []int   `json:"hidden"`        // default [128, 64]
	Epochs       int     `json:"epochs"`        // default 30
	BatchSize    int     `json:"batch_size"`    // default 64
	LearningRate float64 `json:"learning_rate"` // Adam step, default 0.001
	Seed         int64   `json:"seed"`
}

// DefaultNeuralConfig returns the network defaults.
func DefaultNeuralConfig() NeuralConfig {
	return NeuralConfig{
		Hidden:       []int{128, 64},
		Epochs:       30,
		BatchSize:    64,
		LearningRate: 0.001,
		Seed:         DefaultSeed,
	}
}

func (NeuralConfig) kind() Kind { return KindNeural }

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// Neural is a ReLU multilayer perceptron trained with Adam on mini-batches.
// Classification uses a softmax output with cross-entropy; regression a single
// linear output with squared error.
type Neural struct {
	base
	cfg    NeuralConfig
	layers []*layer
}

type layer struct {
	w *mat.Dense // in x out
	b []float64

	// Adam moments
	mw, vw *mat.Dense
	mb, vb []float64
}

// layerState is the serialized form of one layer, weights in row-major order.
type layerState struct {
	In  int       `json:"in"`
	Out int       `json:"out"`
	W   []float64 `json:"w"`
	B   []float64 `json:"b"`
}

func newNeural(mode Mode, cfg NeuralConfig) *Neural {
	return &Neural{base: base{kind: KindNeural, mode: mode}, cfg: cfg}
}

func (n *Neural) outputs() int {
	if n.mode == Regression {
		return 1
	}
	return n.classes
}

func (n *Neural) Train(X [][]float64, y []float64) error {
	if err := n.prepare(X, y); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(n.cfg.Seed))

	sizes := append([]int{n.features}, n.cfg.Hidden...)
	sizes = append(sizes, n.outputs())
	n.layers = make([]*layer, len(sizes)-1)
	for i := range n.layers {
		n.layers[i] = newLayer(sizes[i], sizes[i+1], rng)
	}
	if n.mode == Regression {
		var mean float64
		for _, v := range y {
			mean += v
		}
		n.layers[len(n.layers)-1].b[0] = mean / float64(len(y))
	}

	batch := max(1, n.cfg.BatchSize)
	order := rng.Perm(len(X))
	step := 0
	for epoch := 0; epoch < n.cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < len(order); start += batch {
			end := min(start+batch, len(order))
			step++
			n.step(X, y, order[start:end], step)
		}
	}
	n.trained = true
	return nil
}

func newLayer(in, out int, rng *rand.Rand) *layer {
	// He uniform initialization for ReLU inputs
	limit := math.Sqrt(6 / float64(in))
	w := mat.NewDense(in, out, nil)
	for i := 0; i < in; i++ {
		for j := 0; j < out; j++ {
			w.Set(i, j, (rng.Float64()*2-1)*limit)
		}
	}
	return &layer{
		w:  w,
		b:  make([]float64, out),
		mw: mat.NewDense(in, out, nil),
		vw: mat.NewDense(in, out, nil),
		mb: make([]float64, out),
		vb: make([]float64, out),
	}
}

// forward returns the pre-activation and activation of every layer. The last
// activation is the raw output (logits or the regression estimate).
func (n *Neural) forward(input *mat.Dense) ([]*mat.Dense, []*mat.Dense) {
	acts := []*mat.Dense{input}
	pres := make([]*mat.Dense, len(n.layers))
	cur := input
	for i, l := range n.layers {
		rows, _ := cur.Dims()
		_, out := l.w.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(cur, l.w)
		for r := 0; r < rows; r++ {
			for c := 0; c < out; c++ {
				z.Set(r, c, z.At(r, c)+l.b[c])
			}
		}
		pres[i] = z
		a := z
		if i < len(n.layers)-1 {
			a = mat.DenseCopyOf(z)
			a.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, a)
		}
		acts = append(acts, a)
		cur = a
	}
	return pres, acts
}

// step runs one Adam update on the rows in batch.
func (n *Neural) step(X [][]float64, y []float64, batch []int, t int) {
	size := len(batch)
	input := mat.NewDense(size, n.features, nil)
	for r, i := range batch {
		input.SetRow(r, X[i])
	}
	pres, acts := n.forward(input)

	// Output gradient of the mean loss
	out := acts[len(acts)-1]
	_, width := out.Dims()
	delta := mat.NewDense(size, width, nil)
	proba := make([]float64, width)
	for r, i := range batch {
		if n.mode == Regression {
			delta.Set(r, 0, (out.At(r, 0)-y[i])/float64(size))
			continue
		}
		softmax(out.RawRowView(r), proba)
		for c := range proba {
			g := proba[c]
			if c == int(y[i]) {
				g--
			}
			delta.Set(r, c, g/float64(size))
		}
	}

	for li := len(n.layers) - 1; li >= 0; li-- {
		l := n.layers[li]
		in, outDim := l.w.Dims()

		grad := mat.NewDense(in, outDim, nil)
		grad.Mul(acts[li].T(), delta)
		gb := make([]float64, outDim)
		for r := 0; r < size; r++ {
			for c := 0; c < outDim; c++ {
				gb[c] += delta.At(r, c)
			}
		}

		if li > 0 {
			prev := mat.NewDense(size, in, nil)
			prev.Mul(delta, l.w.T())
			z := pres[li-1]
			prev.Apply(func(r, c int, v float64) float64 {
				if z.At(r, c) <= 0 {
					return 0
				}
				return v
			}, prev)
			delta = prev
		}

		n.adam(l, grad, gb, t)
	}
}

func (n *Neural) adam(l *layer, grad *mat.Dense, gb []float64, t int) {
	lr := n.cfg.LearningRate
	c1 := 1 - math.Pow(adamBeta1, float64(t))
	c2 := 1 - math.Pow(adamBeta2, float64(t))

	rows, cols := grad.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g := grad.At(i, j)
			m := adamBeta1*l.mw.At(i, j) + (1-adamBeta1)*g
			v := adamBeta2*l.vw.At(i, j) + (1-adamBeta2)*g*g
			l.mw.Set(i, j, m)
			l.vw.Set(i, j, v)
			l.w.Set(i, j, l.w.At(i, j)-lr*(m/c1)/(math.Sqrt(v/c2)+adamEps))
		}
	}
	for j, g := range gb {
		l.mb[j] = adamBeta1*l.mb[j] + (1-adamBeta1)*g
		l.vb[j] = adamBeta2*l.vb[j] + (1-adamBeta2)*g*g
		l.b[j] -= lr * (l.mb[j] / c1) / (math.Sqrt(l.vb[j]/c2) + adamEps)
	}
}

func (n *Neural) output(X [][]float64) *mat.Dense {
	input := mat.NewDense(len(X), n.features, nil)
	for r, x := range X {
		input.SetRow(r, x)
	}
	_, acts := n.forward(input)
	return acts[len(acts)-1]
}

func (n *Neural) Predict(X [][]float64) ([]float64, error) {
	if err := n.check(X); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return []float64{}, nil
	}
	if n.mode == Classification {
		proba, _ := n.PredictProba(X)
		return labels(proba), nil
	}
	out := n.output(X)
	res := make([]float64, len(X))
	for i := range res {
		res[i] = out.At(i, 0)
	}
	return res, nil
}

func (n *Neural) PredictProba(X [][]float64) ([][]float64, error) {
	if n.mode == Regression {
		return nil, ErrProbaRegression
	}
	if err := n.check(X); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return [][]float64{}, nil
	}
	out := n.output(X)
	res := make([][]float64, len(X))
	for i := range res {
		p := make([]float64, n.classes)
		softmax(out.RawRowView(i), p)
		res[i] = p
	}
	return res, nil
}

func (n *Neural) Save(path string) error {
	states := make([]layerState, len(n.layers))
	for i, l := range n.layers {
		in, out := l.w.Dims()
		states[i] = layerState{
			In:  in,
			Out: out,
			W:   append([]float64(nil), l.w.RawMatrix().Data...),
			B:   l.b,
		}
	}
	return n.save(path, n.cfg, states)
}

func (n *Neural) Load(path string) error {
	var states []layerState
	if err := n.load(path, &n.cfg, &states); err != nil {
		return err
	}
	n.layers = make([]*layer, len(states))
	for i, s := range states {
		if s.In <= 0 || s.Out <= 0 || len(s.W) != s.In*s.Out || len(s.B) != s.Out {
			return fmt.Errorf("layer %d has inconsistent shape", i)
		}
		n.layers[i] = &layer{
			w:  mat.NewDense(s.In, s.Out, s.W),
			b:  s.B,
			mw: mat.NewDense(s.In, s.Out, nil),
			vw: mat.NewDense(s.In, s.Out, nil),
			mb: make([]float64, s.Out),
			vb: make([]float64, s.Out),
		}
	}
	return nil
}
