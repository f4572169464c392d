package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/metrics"
	"github.com/rewired-gh/scorepulse/internal/model"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/training"
)

// StatusPath returns the health status file location.
func StatusPath(logsDir string) string {
	return filepath.Join(logsDir, "system_status.json")
}

// ReadStatus reads a health status file.
func ReadStatus(path string) (*models.HealthReport, error) {
	var r models.HealthReport
	if err := artifact.ReadJSON(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// HealthCheck scores each persisted model on the validation split and writes the
// status file. Targets without a model are skipped.
func (m *Monitor) HealthCheck(ctx context.Context) (*models.HealthReport, error) {
	logger.Info("Running model health check (%s)", m.kind)
	val, err := dataset.ReadSplit(m.splitsDir, dataset.SplitVal)
	if err != nil {
		return nil, fmt.Errorf("no validation data for monitoring: %w", err)
	}

	report := &models.HealthReport{
		LastCheck:    m.now(),
		ActiveAlerts: []models.ModelAlert{},
		Metrics:      make(map[string]float64),
	}
	for _, target := range dataset.Targets {
		threshold, ok := m.thresholds[target]
		if !ok {
			continue
		}
		report.ModelsMonitored = append(report.ModelsMonitored, string(target))
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, metric, err := m.score(val, target)
		if err != nil {
			if errors.Is(err, model.ErrArtifactNotFound) || errors.Is(err, scaler.ErrNotFitted) {
				logger.Warn("%s: model missing, skipping", target)
				continue
			}
			logger.Error("Failed to evaluate %s: %v", target, err)
			continue
		}
		report.Metrics[string(target)] = value

		var alert *models.ModelAlert
		if metric == training.MetricMSE {
			if value > threshold {
				alert = &models.ModelAlert{
					Target: string(target), Metric: metric, Value: value, Threshold: threshold,
					Message: fmt.Sprintf("%s: MSE %.2f is above threshold %.2f", target, value, threshold),
				}
			}
		} else if value < threshold {
			alert = &models.ModelAlert{
				Target: string(target), Metric: metric, Value: value, Threshold: threshold,
				Message: fmt.Sprintf("%s: Accuracy %.2f%% is below threshold %.2f%%", target, value*100, threshold*100),
			}
		}

		if alert != nil {
			logger.Warn("%s", alert.Message)
			report.ActiveAlerts = append(report.ActiveAlerts, *alert)
			metrics.ModelHealth.WithLabelValues(string(target)).Set(0)
		} else {
			logger.Info("%s: %s %.4f (healthy)", target, metric, value)
			metrics.ModelHealth.WithLabelValues(string(target)).Set(1)
		}
	}

	report.Status = models.StatusHealthy
	if !report.Healthy() {
		report.Status = models.StatusCritical
	}
	if err := artifact.WriteJSON(StatusPath(m.logsDir), report); err != nil {
		return nil, fmt.Errorf("failed to write status file: %w", err)
	}

	m.mu.Lock()
	m.lastReport = report
	m.mu.Unlock()
	return report, nil
}

func (m *Monitor) score(val []features.Row, target dataset.Target) (float64, string, error) {
	mdl, err := model.Open(artifact.ModelPath(m.modelsDir, string(target), string(m.kind)))
	if err != nil {
		return 0, "", err
	}
	X, y, err := m.transformer.Transform(val, target)
	if err != nil {
		return 0, "", err
	}
	pred, err := mdl.Predict(X)
	if err != nil {
		return 0, "", err
	}
	if target.Regression() {
		return training.MSE(pred, y), training.MetricMSE, nil
	}
	return training.Accuracy(pred, y), training.MetricAccuracy, nil
}
