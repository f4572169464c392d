// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorepulse_predictions_total",
		Help: "Total number of prediction requests by tier and outcome",
	}, []string{"tier", "outcome"})

	PredictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scorepulse_prediction_duration_seconds",
		Help:    "Duration of single-match predictions",
		Buckets: prometheus.DefBuckets,
	})

	TrainingMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scorepulse_training_metric",
		Help: "Latest validation metric per target and algorithm",
	}, []string{"target", "algorithm", "metric"})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorepulse_training_runs_total",
		Help: "Total number of training runs by status",
	}, []string{"status"})

	ModelHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scorepulse_model_health",
		Help: "Model health per target (1 healthy, 0 critical)",
	}, []string{"target"})

	MatchesImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorepulse_matches_imported_total",
		Help: "Total number of match rows written to the store",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorepulse_cache_lookups_total",
		Help: "Prediction cache lookups by result",
	}, []string{"result"})
)

// Outcome labels for PredictionsTotal.
const (
	OutcomeOK           = "ok"
	OutcomeTeamNotFound = "team_not_found"
	OutcomeOffline      = "engine_offline"
	OutcomeError        = "error"
)
