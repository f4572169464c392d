// Package monitor keeps the deployed models healthy.
//
// HealthCheck scores every persisted model against the validation split and raises
// an alert when accuracy falls below (or MSE rises above) the configured threshold.
// RunCycle is the weekly maintenance job: import new results, back up the store,
// retrain when enough new matches have arrived, then check health and notify.
//
// Alerts are deduplicated with a cooldown so an unchanged degradation is reported
// once per window rather than on every cycle.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/model"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/training"
)

// ErrCycleRunning is returned when maintenance is requested while a cycle runs.
var ErrCycleRunning = errors.New("maintenance cycle already running")

// Store is the part of the match store maintenance needs.
type Store interface {
	UpsertMatches(ctx context.Context, matches []models.Match) (int, error)
	CountSince(ctx context.Context, t time.Time) (int, error)
	LastTrainingTime(ctx context.Context) (time.Time, error)
	Backup(ctx context.Context, path string) error
}

// Trainer runs the training pipeline.
type Trainer interface {
	Run(ctx context.Context, opts training.Options) (*training.Result, error)
}

// Notifier delivers alerts to operators.
type Notifier interface {
	SendAlerts(alerts []models.ModelAlert) error
}

// Refresher is told when the match store or the artifacts changed.
type Refresher interface {
	Refresh(ctx context.Context) error
	Reload()
}

// notifiedRecord tracks a previously sent alert for cooldown deduplication.
type notifiedRecord struct {
	Value  float64
	SentAt time.Time
}

// Monitor runs health checks and maintenance cycles.
type Monitor struct {
	store       Store
	trainer     Trainer
	transformer *scaler.Transformer
	notifier    Notifier
	refresher   Refresher

	incomingDir   string
	splitsDir     string
	modelsDir     string
	logsDir       string
	backupDir     string
	backupOnCycle bool
	minNewMatches int
	cooldown      time.Duration
	kind          model.Kind
	thresholds    map[dataset.Target]float64

	running sync.Mutex

	mu             sync.Mutex
	notifiedAlerts map[string]notifiedRecord // key = target/metric
	lastReport     *models.HealthReport

	now func() time.Time
}

// New creates a monitor. notifier and refresher may be nil.
func New(cfg *config.Config, store Store, trainer Trainer, transformer *scaler.Transformer, notifier Notifier, refresher Refresher) *Monitor {
	kind := model.KindForest
	if len(cfg.Training.Algorithms) > 0 {
		if k, err := model.ParseKind(cfg.Training.Algorithms[0]); err == nil {
			kind = k
		}
	}
	return &Monitor{
		store:         store,
		trainer:       trainer,
		transformer:   transformer,
		notifier:      notifier,
		refresher:     refresher,
		incomingDir:   cfg.Data.IncomingDir,
		splitsDir:     cfg.Data.SplitsDir,
		modelsDir:     cfg.Artifacts.ModelsDir,
		logsDir:       cfg.Artifacts.LogsDir,
		backupDir:     cfg.Storage.BackupDir,
		backupOnCycle: cfg.Monitor.BackupOnCycle,
		minNewMatches: cfg.Monitor.MinNewMatches,
		cooldown:      cfg.Monitor.AlertCooldown,
		kind:          kind,
		thresholds: map[dataset.Target]float64{
			dataset.TargetWLD:        cfg.Monitor.WLDAccuracy,
			dataset.TargetBTTS:       cfg.Monitor.BTTSAccuracy,
			dataset.TargetOver25:     cfg.Monitor.Over25Accuracy,
			dataset.TargetTotalGoals: cfg.Monitor.TotalGoalsMSE,
		},
		notifiedAlerts: make(map[string]notifiedRecord),
		now:            time.Now,
	}
}

func alertKey(a models.ModelAlert) string {
	return a.Target + "/" + a.Metric
}

// FilterRecentlySent drops alerts that were already sent within the cooldown,
// unless the metric has degraded further since. Returns a non-nil slice.
func (m *Monitor) FilterRecentlySent(alerts []models.ModelAlert) []models.ModelAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	result := []models.ModelAlert{}
	for _, a := range alerts {
		rec, exists := m.notifiedAlerts[alertKey(a)]
		if exists && now.Sub(rec.SentAt) < m.cooldown && !worse(a, rec.Value) {
			continue
		}
		result = append(result, a)
	}
	return result
}

// RecordNotified marks alerts as sent now. Call after a successful delivery.
func (m *Monitor) RecordNotified(alerts []models.ModelAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, a := range alerts {
		m.notifiedAlerts[alertKey(a)] = notifiedRecord{Value: a.Value, SentAt: now}
	}
}

// worse reports whether an alert's value moved further past its threshold than
// the previously sent value.
func worse(a models.ModelAlert, previous float64) bool {
	if a.Metric == training.MetricMSE {
		return a.Value > previous
	}
	return a.Value < previous
}

// LastReport returns the most recent health report, reading the status file when
// no check has run in this process.
func (m *Monitor) LastReport() (*models.HealthReport, error) {
	m.mu.Lock()
	r := m.lastReport
	m.mu.Unlock()
	if r != nil {
		return r, nil
	}
	return ReadStatus(StatusPath(m.logsDir))
}

// JobStatus returns the state of the latest maintenance job.
func (m *Monitor) JobStatus() (*models.JobStatus, error) {
	return ReadJob(JobPath(m.logsDir))
}
