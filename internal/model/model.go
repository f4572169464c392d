// Package model defines the uniform learner interface and the four algorithm
// families behind it. Every implementation is deterministic for a given seed and
// persists itself as a JSON envelope that records its kind and mode.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rewired-gh/scorepulse/internal/artifact"
)

var (
	// ErrUnsupportedModel is returned for an unknown algorithm key.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrProbaRegression is returned by PredictProba on a regression model.
	ErrProbaRegression = errors.New("probabilities not supported for regression")
	// ErrArtifactNotFound is returned when a model artifact does not exist.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrNotTrained is returned when predicting with an untrained model.
	ErrNotTrained = errors.New("model not trained")
)

// DefaultSeed seeds every random source unless a config overrides it.
const DefaultSeed int64 = 42

// Kind is an algorithm key.
type Kind string

const (
	KindForest Kind = "rf"
	KindBoost  Kind = "gb"
	KindLinear Kind = "svm"
	KindNeural Kind = "nn"
)

// Kinds lists every selectable algorithm.
var Kinds = []Kind{KindForest, KindBoost, KindLinear, KindNeural}

// ParseKind resolves an algorithm key.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, s)
}

// Mode selects classification or regression.
type Mode string

const (
	Classification Mode = "classification"
	Regression     Mode = "regression"
)

// Model is a trainable, persistable learner.
type Model interface {
	Kind() Kind
	Mode() Mode
	Train(X [][]float64, y []float64) error
	// Predict returns class labels in classification mode and estimates in
	// regression mode.
	Predict(X [][]float64) ([]float64, error)
	// PredictProba returns one probability per class, columns ordered by class
	// label. Regression models return ErrProbaRegression.
	PredictProba(X [][]float64) ([][]float64, error)
	Save(path string) error
	Load(path string) error
}

// Config is a typed hyperparameter set. Only the configs in this package
// implement it.
type Config interface {
	kind() Kind
}

// DefaultConfig returns the documented defaults for a kind.
func DefaultConfig(kind Kind) (Config, error) {
	switch kind {
	case KindForest:
		return DefaultForestConfig(), nil
	case KindBoost:
		return DefaultBoostConfig(), nil
	case KindLinear:
		return DefaultLinearConfig(), nil
	case KindNeural:
		return DefaultNeuralConfig(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, kind)
	}
}

// New constructs an untrained model. A nil cfg selects the kind's defaults.
func New(kind Kind, mode Mode, cfg Config) (Model, error) {
	if mode != Classification && mode != Regression {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	if cfg == nil {
		var err error
		if cfg, err = DefaultConfig(kind); err != nil {
			return nil, err
		}
	}
	if cfg.kind() != kind {
		return nil, fmt.Errorf("config for %s passed to %s", cfg.kind(), kind)
	}

	switch kind {
	case KindForest:
		return newForest(mode, cfg.(ForestConfig)), nil
	case KindBoost:
		return newBoost(mode, cfg.(BoostConfig)), nil
	case KindLinear:
		return newLinear(mode, cfg.(LinearConfig)), nil
	case KindNeural:
		return newNeural(mode, cfg.(NeuralConfig)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, kind)
	}
}

// Open loads a persisted model of whatever kind and mode the artifact records.
func Open(path string) (Model, error) {
	env, err := readEnvelope(path)
	if err != nil {
		return nil, err
	}
	m, err := New(env.Kind, env.Mode, nil)
	if err != nil {
		return nil, err
	}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// envelope is the on-disk model format.
type envelope struct {
	Kind     Kind            `json:"kind"`
	Mode     Mode            `json:"mode"`
	Classes  int             `json:"classes"`
	Features int             `json:"features"`
	Config   json.RawMessage `json:"config"`
	Payload  json.RawMessage `json:"payload"`
}

// base holds the state every implementation shares.
type base struct {
	kind     Kind
	mode     Mode
	classes  int
	features int
	trained  bool
}

func (b *base) Kind() Kind { return b.kind }
func (b *base) Mode() Mode { return b.mode }

// prepare validates training input and records shape. Classification labels
// must be non-negative integers; classes are 0..max(y), at least two.
func (b *base) prepare(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("no training rows")
	}
	if len(X) != len(y) {
		return fmt.Errorf("row count %d does not match target count %d", len(X), len(y))
	}
	b.features = len(X[0])
	for i, x := range X {
		if len(x) != b.features {
			return fmt.Errorf("row %d has %d features, want %d", i, len(x), b.features)
		}
	}
	if b.mode == Regression {
		b.classes = 0
		return nil
	}
	top := 0
	for i, v := range y {
		if v < 0 || v != math.Trunc(v) {
			return fmt.Errorf("row %d: class label %v is not a non-negative integer", i, v)
		}
		top = max(top, int(v))
	}
	b.classes = max(top+1, 2)
	return nil
}

// check validates prediction input.
func (b *base) check(X [][]float64) error {
	if !b.trained {
		return ErrNotTrained
	}
	for i, x := range X {
		if len(x) != b.features {
			return fmt.Errorf("row %d has %d features, want %d", i, len(x), b.features)
		}
	}
	return nil
}

func (b *base) save(path string, cfg Config, payload any) error {
	if !b.trained {
		return ErrNotTrained
	}
	c, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	return artifact.WriteJSON(path, envelope{
		Kind:     b.kind,
		Mode:     b.mode,
		Classes:  b.classes,
		Features: b.features,
		Config:   c,
		Payload:  p,
	})
}

func (b *base) load(path string, cfg any, payload any) error {
	env, err := readEnvelope(path)
	if err != nil {
		return err
	}
	if env.Kind != b.kind {
		return fmt.Errorf("artifact %s holds a %s model, not %s", path, env.Kind, b.kind)
	}
	if len(env.Config) > 0 {
		if err := json.Unmarshal(env.Config, cfg); err != nil {
			return fmt.Errorf("failed to decode config: %w", err)
		}
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}
	b.mode = env.Mode
	b.classes = env.Classes
	b.features = env.Features
	b.trained = true
	return nil
}

func readEnvelope(path string) (*envelope, error) {
	var env envelope
	if err := artifact.ReadJSON(path, &env); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, err
	}
	return &env, nil
}

// argmax returns the index of the largest value, lowest index on ties.
func argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

// labels converts probability rows into class labels.
func labels(proba [][]float64) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		out[i] = float64(argmax(p))
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softmax writes the normalized exponentials of z into out.
func softmax(z, out []float64) {
	top := z[0]
	for _, v := range z[1:] {
		top = math.Max(top, v)
	}
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}
