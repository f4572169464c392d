package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/metrics"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/training"
)

// IncomingFile is the drop-in file picked up by each maintenance cycle.
const IncomingFile = "weekly_update.csv"

// CycleResult summarizes one maintenance cycle.
type CycleResult struct {
	JobID     string
	Imported  int
	Retrained bool
	Reason    string // why retraining ran or was skipped
	Health    *models.HealthReport
	Notified  int
}

// RunCycle runs one maintenance cycle synchronously.
func (m *Monitor) RunCycle(ctx context.Context, force bool) (*CycleResult, error) {
	if !m.running.TryLock() {
		return nil, ErrCycleRunning
	}
	defer m.running.Unlock()
	return m.cycle(ctx, uuid.NewString(), force)
}

// Start launches a cycle in the background and returns its job id. The job
// status file tracks its progress.
func (m *Monitor) Start(ctx context.Context, force bool) (string, error) {
	if !m.running.TryLock() {
		return "", ErrCycleRunning
	}
	id := uuid.NewString()
	go func() {
		defer m.running.Unlock()
		if _, err := m.cycle(ctx, id, force); err != nil {
			logger.Error("Background maintenance cycle %s failed: %v", id, err)
		}
	}()
	return id, nil
}

func (m *Monitor) cycle(ctx context.Context, id string, force bool) (*CycleResult, error) {
	start := m.now()
	job := newJob(JobPath(m.logsDir), id, "Starting maintenance", m.now)
	res := &CycleResult{JobID: id}

	err := m.runSteps(ctx, job, res, force)
	job.Complete(err == nil)
	if err != nil {
		return res, err
	}
	logger.Info("Maintenance cycle %s completed in %v", id, m.now().Sub(start))
	return res, nil
}

func (m *Monitor) runSteps(ctx context.Context, job *Job, res *CycleResult, force bool) error {
	// 1. Import
	job.Log("Checking for new match data", 5)
	imported, err := m.importIncoming(ctx)
	if err != nil {
		job.Log(fmt.Sprintf("Import failed: %v", err), -1)
		return err
	}
	res.Imported = imported
	if imported > 0 {
		job.Log(fmt.Sprintf("Imported %d matches", imported), 10)
		if m.refresher != nil {
			if err := m.refresher.Refresh(ctx); err != nil {
				logger.Warn("Failed to refresh predictor history: %v", err)
			}
		}
	} else {
		job.Log("No "+IncomingFile+" found, skipping import", 10)
	}

	// 2. Backup
	if m.backupOnCycle {
		path := filepath.Join(m.backupDir, fmt.Sprintf("scorepulse_%s.db", m.now().Format("20060102_150405")))
		if err := m.store.Backup(ctx, path); err != nil {
			logger.Warn("Store backup failed: %v", err)
		} else {
			job.Log("Store backed up to "+filepath.Base(path), 15)
		}
	}

	// 3. Retrain when needed
	retrain, reason, err := m.needsRetrain(ctx, force)
	if err != nil {
		job.Log(fmt.Sprintf("Retrain check failed: %v", err), -1)
		return err
	}
	res.Reason = reason
	if retrain {
		job.Log("Retraining: "+reason, 20)
		progress := func(step string, pct int) {
			job.Log(step, 20+pct*70/100)
		}
		tr, err := m.trainer.Run(ctx, training.Options{Rebuild: true, Progress: progress})
		if err != nil {
			job.Log(fmt.Sprintf("Retraining failed: %v", err), -1)
			return fmt.Errorf("retraining failed: %w", err)
		}
		res.Retrained = true
		job.Log(fmt.Sprintf("Retraining complete: %d models saved", len(tr.Saved)), 90)
		if m.refresher != nil {
			m.refresher.Reload()
		}
	} else {
		job.Log("Skipping retraining: "+reason, 90)
	}

	// 4. Health
	job.Log("Performing system diagnostics", 92)
	report, err := m.HealthCheck(ctx)
	if err != nil {
		job.Log(fmt.Sprintf("Health check failed: %v", err), -1)
		return err
	}
	res.Health = report
	job.Log("System status: "+report.Status, 96)

	// 5. Notify
	fresh := m.FilterRecentlySent(report.ActiveAlerts)
	if len(fresh) > 0 && m.notifier != nil {
		if err := m.notifier.SendAlerts(fresh); err != nil {
			logger.Error("Failed to send alerts: %v", err)
		} else {
			m.RecordNotified(fresh)
			res.Notified = len(fresh)
		}
	}
	return nil
}

// importIncoming loads the drop-in file into the store and renames it so it is
// not imported twice. A missing file imports nothing.
func (m *Monitor) importIncoming(ctx context.Context) (int, error) {
	path := filepath.Join(m.incomingDir, IncomingFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	lr, err := dataset.LoadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", IncomingFile, err)
	}
	n, err := m.store.UpsertMatches(ctx, lr.Matches)
	if err != nil {
		return 0, fmt.Errorf("failed to store imported matches: %w", err)
	}
	metrics.MatchesImported.Add(float64(n))

	done := filepath.Join(m.incomingDir, fmt.Sprintf("processed_%s.csv", m.now().Format("20060102")))
	if err := os.Rename(path, done); err != nil {
		return n, fmt.Errorf("failed to archive %s: %w", IncomingFile, err)
	}
	return n, nil
}

// needsRetrain decides whether the cycle retrains and why.
func (m *Monitor) needsRetrain(ctx context.Context, force bool) (bool, string, error) {
	if force {
		return true, "forced", nil
	}
	if !artifact.Exists(m.transformer.Path()) ||
		!artifact.Exists(artifact.ModelPath(m.modelsDir, string(dataset.TargetWLD), string(m.kind))) {
		return true, "models missing", nil
	}
	last, err := m.store.LastTrainingTime(ctx)
	if err != nil {
		return false, "", err
	}
	if last.IsZero() {
		return true, "no recorded training run", nil
	}
	n, err := m.store.CountSince(ctx, last)
	if err != nil {
		return false, "", err
	}
	if n >= m.minNewMatches {
		return true, fmt.Sprintf("%d new matches since %s", n, last.Format(time.DateOnly)), nil
	}
	return false, fmt.Sprintf("only %d new matches (need %d)", n, m.minNewMatches), nil
}
