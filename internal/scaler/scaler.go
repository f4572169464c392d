// Package scaler standardizes feature vectors. The transform is fitted once on the
// training split, persisted as an artifact and reapplied unchanged everywhere else.
package scaler

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/features"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNotFitted is returned when a transform is requested before any scaler
	// has been fitted and persisted.
	ErrNotFitted = errors.New("scaler not fitted: must train first")
	// ErrMissingFeatures is returned when input rows lack feature columns.
	ErrMissingFeatures = errors.New("missing features")
	// ErrMissingTarget is returned when a requested target column is absent.
	ErrMissingTarget = errors.New("missing target")
)

// Scaler is the persisted standardization: (x - Mean[i]) / Scale[i] per feature.
type Scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	FittedAt time.Time `json:"fitted_at"`
	Rows     int       `json:"rows"`
}

// Fit computes per-feature mean and population standard deviation. A constant
// feature gets scale 1.
func Fit(names []string, X [][]float64) *Scaler {
	s := &Scaler{
		Features: append([]string{}, names...),
		Mean:     make([]float64, len(names)),
		Scale:    make([]float64, len(names)),
		Rows:     len(X),
	}
	col := make([]float64, len(X))
	for j := range names {
		for i := range X {
			col[i] = X[i][j]
		}
		if len(X) == 0 {
			s.Scale[j] = 1
			continue
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
	return s
}

// Apply returns a standardized copy of X.
func (s *Scaler) Apply(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		row := make([]float64, len(x))
		for j, v := range x {
			row[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = row
	}
	return out
}

// Version identifies the fitted artifact.
func (s *Scaler) Version() string {
	return fmt.Sprintf("%d", s.FittedAt.UnixNano())
}

// State is the transformer's artifact state.
type State int

const (
	Unloaded State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "unloaded"
}

// Transformer is the handle to the scaler artifact. Only FitAndTransform fits;
// Transform loads the persisted artifact on first use and never refits.
type Transformer struct {
	path  string
	names []string

	mu     sync.RWMutex
	state  State
	scaler *Scaler
}

// NewTransformer returns an unloaded handle for the artifact at path using the
// standard feature vector.
func NewTransformer(path string) *Transformer {
	return &Transformer{path: path, names: features.Names}
}

// State reports whether a scaler is currently held in memory.
func (t *Transformer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Path returns the artifact location.
func (t *Transformer) Path() string {
	return t.path
}

// Features returns the ordered feature names the transformer expects.
func (t *Transformer) Features() []string {
	return t.names
}

// FitAndTransform validates rows, fits the scaler on exactly these rows, persists
// it and returns the scaled matrix and the target vector. target may be empty.
func (t *Transformer) FitAndTransform(rows []features.Row, target dataset.Target) ([][]float64, []float64, error) {
	X, y, err := t.extract(rows, target)
	if err != nil {
		return nil, nil, err
	}

	s := Fit(t.names, X)
	s.FittedAt = time.Now().UTC()
	if err := artifact.WriteJSON(t.path, s); err != nil {
		return nil, nil, fmt.Errorf("failed to persist scaler: %w", err)
	}

	t.mu.Lock()
	t.scaler = s
	t.state = Loaded
	t.mu.Unlock()

	return s.Apply(X), y, nil
}

// Transform applies the persisted scaler without refitting. target may be empty,
// in which case the returned target vector is nil.
func (t *Transformer) Transform(rows []features.Row, target dataset.Target) ([][]float64, []float64, error) {
	s, err := t.ensureLoaded()
	if err != nil {
		return nil, nil, err
	}
	X, y, err := t.extract(rows, target)
	if err != nil {
		return nil, nil, err
	}
	return s.Apply(X), y, nil
}

// Version returns the loaded artifact's version, loading it if necessary.
func (t *Transformer) Version() (string, error) {
	s, err := t.ensureLoaded()
	if err != nil {
		return "", err
	}
	return s.Version(), nil
}

// Reset drops the in-memory scaler so the next Transform reloads the artifact.
func (t *Transformer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scaler = nil
	t.state = Unloaded
}

func (t *Transformer) ensureLoaded() (*Scaler, error) {
	t.mu.RLock()
	if t.state == Loaded {
		s := t.scaler
		t.mu.RUnlock()
		return s, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Loaded {
		return t.scaler, nil
	}

	var s Scaler
	if err := artifact.ReadJSON(t.path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFitted
		}
		return nil, fmt.Errorf("failed to load scaler: %w", err)
	}
	if !slices.Equal(s.Features, t.names) || len(s.Mean) != len(s.Features) || len(s.Scale) != len(s.Features) {
		return nil, fmt.Errorf("scaler artifact does not match the feature vector: %w", ErrNotFitted)
	}
	t.scaler = &s
	t.state = Loaded
	return t.scaler, nil
}

func (t *Transformer) extract(rows []features.Row, target dataset.Target) ([][]float64, []float64, error) {
	var missing []string
	for _, name := range t.names {
		for i := range rows {
			v, ok := rows[i].Get(name)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				missing = append(missing, name)
				break
			}
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingFeatures, strings.Join(missing, ", "))
	}

	X := make([][]float64, len(rows))
	for i := range rows {
		x := make([]float64, len(t.names))
		for j, name := range t.names {
			x[j] = rows[i].Values[name]
		}
		X[i] = x
	}

	if target == "" {
		return X, nil, nil
	}
	col := target.Column()
	y := make([]float64, len(rows))
	for i := range rows {
		v, ok := rows[i].Get(col)
		if !ok || math.IsNaN(v) {
			return nil, nil, fmt.Errorf("%w: %s in row %d", ErrMissingTarget, col, i)
		}
		y[i] = v
	}
	return X, y, nil
}
