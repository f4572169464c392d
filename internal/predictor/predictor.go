// Package predictor is the inference facade: it builds a live feature vector for a
// fixture from the latest rolling statistics of both teams, scores it with the
// persisted scaler and models, and reconciles the outputs into one record.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

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

var (
	// ErrTeamNotFound is wrapped with the team name: "Arsenal not found".
	ErrTeamNotFound = errors.New("not found")
	// ErrEngineOffline means no fitted scaler or outcome model is available.
	ErrEngineOffline = errors.New("engine offline: models must be trained first")
	// ErrInvalidOdds rejects caller-supplied odds that cannot be converted.
	ErrInvalidOdds = errors.New("odds must be greater than 1")
)

// DefaultGoals is the expected total used when no goals model is available.
const DefaultGoals = 2.5

// Goal estimates are clamped to this range.
const (
	minGoals = 0.5
	maxGoals = 6.0
)

// Odds are decimal market odds for a fixture.
type Odds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// DefaultOdds are used when the caller has no market prices.
var DefaultOdds = Odds{Home: 2.5, Draw: 3.1, Away: 2.8}

// Valid reports whether every price can be turned into a probability.
func (o Odds) Valid() bool {
	return validPrice(o.Home) && validPrice(o.Draw) && validPrice(o.Away)
}

func validPrice(v float64) bool {
	return v > 1 && !math.IsInf(v, 0)
}

// Request is one prediction query.
type Request struct {
	Home string
	Away string
	Tier models.Tier
	Odds *Odds     // nil uses DefaultOdds
	Date time.Time // zero means now; used for rest days
}

// Store is the read side of the match store.
type Store interface {
	Matches(ctx context.Context) ([]models.Match, error)
}

// Cache stores finished prediction records. Implementations must be safe for
// concurrent use; their errors are logged and never fail a request.
type Cache interface {
	Get(ctx context.Context, key string) (*models.Prediction, bool, error)
	Set(ctx context.Context, key string, p *models.Prediction) error
}

// Predictor answers prediction queries. History is loaded from the store on first
// use and after Refresh; models are opened lazily and kept until Reload.
type Predictor struct {
	store        Store
	transformer  *scaler.Transformer
	generator    *features.Generator
	modelsDir    string
	upcomingPath string
	batchMax     int
	cache        Cache
	now          func() time.Time

	mu      sync.RWMutex
	loaded  bool
	history []features.Row
	matches []models.Match

	modelMu sync.Mutex
	models  map[string]model.Model
}

// New builds a predictor. cache may be nil.
func New(cfg *config.Config, store Store, transformer *scaler.Transformer, cache Cache) *Predictor {
	return &Predictor{
		store:       store,
		transformer: transformer,
		generator: &features.Generator{
			Window:      cfg.Features.Window,
			RestDefault: cfg.Features.RestDefault,
			RestCap:     cfg.Features.RestCap,
		},
		modelsDir:    cfg.Artifacts.ModelsDir,
		upcomingPath: cfg.Data.UpcomingCSV,
		batchMax:     cfg.Monitor.PremiumBatchMax,
		cache:        cache,
		now:          time.Now,
		models:       make(map[string]model.Model),
	}
}

// Refresh re-reads the match store and rebuilds the featurized history.
func (p *Predictor) Refresh(ctx context.Context) error {
	matches, err := p.store.Matches(ctx)
	if err != nil {
		return fmt.Errorf("failed to load match history: %w", err)
	}
	rows := p.generator.Generate(matches)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches = matches
	p.history = rows
	p.loaded = true
	logger.Debug("Predictor history refreshed: %d matches", len(matches))
	return nil
}

// Reload drops every opened model and the loaded scaler so the next request
// reads the artifacts written by a new training run.
func (p *Predictor) Reload() {
	p.modelMu.Lock()
	p.models = make(map[string]model.Model)
	p.modelMu.Unlock()
	p.transformer.Reset()
}

func (p *Predictor) snapshot(ctx context.Context) ([]features.Row, []models.Match, error) {
	p.mu.RLock()
	if p.loaded {
		defer p.mu.RUnlock()
		return p.history, p.matches, nil
	}
	p.mu.RUnlock()

	if err := p.Refresh(ctx); err != nil {
		return nil, nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history, p.matches, nil
}

// Predict runs the full pipeline. It never returns an error: failures are
// reported in the record's Error field.
func (p *Predictor) Predict(ctx context.Context, req Request) *models.Prediction {
	start := p.now()
	if req.Tier == "" {
		req.Tier = models.TierFree
	}

	key := ""
	if p.cache != nil {
		key = p.cacheKey(req)
		if key != "" {
			cached, ok, err := p.cache.Get(ctx, key)
			switch {
			case err != nil:
				logger.Warn("Prediction cache read failed: %v", err)
				metrics.CacheLookups.WithLabelValues("error").Inc()
			case ok:
				metrics.CacheLookups.WithLabelValues("hit").Inc()
				metrics.PredictionsTotal.WithLabelValues(string(req.Tier), metrics.OutcomeOK).Inc()
				return cached
			default:
				metrics.CacheLookups.WithLabelValues("miss").Inc()
			}
		}
	}

	pred, err := p.predict(ctx, req)
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome, code := metrics.OutcomeError, models.CodeInternal
		switch {
		case errors.Is(err, ErrTeamNotFound):
			outcome, code = metrics.OutcomeTeamNotFound, models.CodeTeamNotFound
		case errors.Is(err, ErrEngineOffline):
			outcome, code = metrics.OutcomeOffline, models.CodeEngineOffline
		case errors.Is(err, ErrInvalidOdds):
			code = models.CodeInvalidInput
		default:
			logger.Error("Prediction %s vs %s failed: %v", req.Home, req.Away, err)
		}
		metrics.PredictionsTotal.WithLabelValues(string(req.Tier), outcome).Inc()
		return &models.Prediction{Home: req.Home, Away: req.Away, Tier: req.Tier, Error: err.Error(), ErrorCode: code}
	}
	metrics.PredictionsTotal.WithLabelValues(string(req.Tier), metrics.OutcomeOK).Inc()

	if key != "" {
		if err := p.cache.Set(ctx, key, pred); err != nil {
			logger.Warn("Prediction cache write failed: %v", err)
		}
	}
	return pred
}

// cacheKey is empty when the scaler is not available, so offline answers are
// never cached.
func (p *Predictor) cacheKey(req Request) string {
	version, err := p.transformer.Version()
	if err != nil {
		return ""
	}
	odds := DefaultOdds
	if req.Odds != nil {
		odds = *req.Odds
	}
	asOf := ""
	if !req.Date.IsZero() {
		asOf = req.Date.Format(time.DateOnly)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%.2f/%.2f/%.2f|%s",
		version, req.Home, req.Away, req.Tier, odds.Home, odds.Draw, odds.Away, asOf)
}

func (p *Predictor) predict(ctx context.Context, req Request) (*models.Prediction, error) {
	odds := DefaultOdds
	if req.Odds != nil {
		odds = *req.Odds
	}
	if !odds.Valid() {
		return nil, ErrInvalidOdds
	}
	asOf := req.Date
	if asOf.IsZero() {
		asOf = p.now()
	}

	// GATHER_HISTORY
	history, matches, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	home, err := p.latest(history, req.Home, asOf)
	if err != nil {
		return nil, err
	}
	away, err := p.latest(history, req.Away, asOf)
	if err != nil {
		return nil, err
	}

	// BUILD_VECTOR
	row := buildRow(home, away, odds)

	// SCALE
	X, _, err := p.transformer.Transform([]features.Row{row}, "")
	if err != nil {
		if errors.Is(err, scaler.ErrNotFitted) {
			return nil, ErrEngineOffline
		}
		return nil, fmt.Errorf("failed to scale features: %w", err)
	}

	// SCORE
	wldModel, err := p.preferred(dataset.TargetWLD, req.Tier)
	if err != nil {
		return nil, err
	}
	if wldModel == nil {
		return nil, ErrEngineOffline
	}
	proba, err := wldModel.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("failed to score outcome: %w", err)
	}
	wp := winProb(proba[0])

	goals := DefaultGoals
	goalsModel, err := p.preferred(dataset.TargetTotalGoals, req.Tier)
	if err != nil {
		return nil, err
	}
	if goalsModel != nil {
		est, err := goalsModel.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("failed to score goals: %w", err)
		}
		goals = est[0]
	} else {
		logger.Warn("No total goals model available, using %.1f", DefaultGoals)
	}
	goals = round(math.Max(minGoals, math.Min(goals, maxGoals)), 2)

	// RECONCILE_SCORE
	score := Reconcile(wp, goals)

	// RESPOND
	pred := &models.Prediction{
		Home:       req.Home,
		Away:       req.Away,
		Tier:       req.Tier,
		ModelUsed:  strings.ToUpper(string(wldModel.Kind())),
		WinProb:    &wp,
		TotalGoals: goals,
		Score:      &score,
		Confidence: &models.Confidence{Label: ConfidenceLabel(wp), Tier: req.Tier},
		HomeReport: reportCard(req.Home, home),
		AwayReport: reportCard(req.Away, away),
		H2H:        headToHead(matches, req.Home, req.Away, h2hLimit),
	}

	if req.Tier == models.TierPremium {
		pred.BTTS, err = p.flag(dataset.TargetBTTS, X)
		if err != nil {
			return nil, err
		}
		pred.Over25, err = p.flag(dataset.TargetOver25, X)
		if err != nil {
			return nil, err
		}
	}
	return pred, nil
}

// preferred returns the tier's model for a target: gb for premium falling back
// to rf, rf otherwise. A nil model means no artifact exists.
func (p *Predictor) preferred(target dataset.Target, tier models.Tier) (model.Model, error) {
	kinds := []model.Kind{model.KindForest}
	if tier == models.TierPremium {
		kinds = []model.Kind{model.KindBoost, model.KindForest}
	}
	for _, k := range kinds {
		m, err := p.model(target, k)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, nil
}

// flag returns the positive-class probability in percent, or nil without a model.
func (p *Predictor) flag(target dataset.Target, X [][]float64) (*float64, error) {
	m, err := p.model(target, model.KindForest)
	if err != nil || m == nil {
		return nil, err
	}
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("failed to score %s: %w", target, err)
	}
	if len(proba[0]) < 2 {
		return nil, nil
	}
	v := round(proba[0][1]*100, 1)
	return &v, nil
}

func (p *Predictor) model(target dataset.Target, kind model.Kind) (model.Model, error) {
	path := artifact.ModelPath(p.modelsDir, string(target), string(kind))

	p.modelMu.Lock()
	defer p.modelMu.Unlock()
	if m, ok := p.models[path]; ok {
		return m, nil
	}
	m, err := model.Open(path)
	if err != nil {
		if errors.Is(err, model.ErrArtifactNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s model: %w", target, err)
	}
	p.models[path] = m
	return m, nil
}

// winProb maps class probabilities (0 away, 1 draw, 2 home) to percentages.
func winProb(proba []float64) models.WinProb {
	at := func(i int) float64 {
		if i < len(proba) {
			return round(proba[i]*100, 1)
		}
		return 0
	}
	return models.WinProb{
		Home: at(dataset.ClassHome),
		Draw: at(dataset.ClassDraw),
		Away: at(dataset.ClassAway),
	}
}

// round rounds half to even at the given number of decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*p) / p
}
