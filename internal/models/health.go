package models

import (
	"errors"
	"time"
)

// System health states written to the status file.
const (
	StatusHealthy  = "HEALTHY"
	StatusCritical = "CRITICAL"
)

// Job states for background maintenance runs.
const (
	JobIdle      = "idle"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobError     = "error"
)

// ModelAlert is raised when a model's validation metric crosses its threshold.
type ModelAlert struct {
	Target    string  `json:"target"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// HealthReport is the result of one health check.
type HealthReport struct {
	LastCheck       time.Time          `json:"last_check"`
	Status          string             `json:"status"`
	ActiveAlerts    []ModelAlert       `json:"active_alerts"`
	ModelsMonitored []string           `json:"models_monitored"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// Healthy reports whether no alerts are active.
func (r *HealthReport) Healthy() bool {
	return len(r.ActiveAlerts) == 0
}

// JobStatus mirrors the progress of a background maintenance run.
type JobStatus struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Step      string    `json:"step"`
	Progress  int       `json:"progress"`
	Logs      []string  `json:"logs"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the job status is consistent.
func (j *JobStatus) Validate() error {
	if j.ID == "" {
		return errors.New("job ID must not be empty")
	}
	switch j.Status {
	case JobIdle, JobRunning, JobCompleted, JobError:
	default:
		return errors.New("job status must be idle, running, completed or error")
	}
	if j.Progress < 0 || j.Progress > 100 {
		return errors.New("job progress must be between 0 and 100")
	}
	if !j.UpdatedAt.IsZero() && j.UpdatedAt.Before(j.StartedAt) {
		return errors.New("updated at must be >= started at")
	}
	return nil
}
