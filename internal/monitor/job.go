package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/models"
)

// JobPath returns the active job status file location.
func JobPath(logsDir string) string {
	return filepath.Join(logsDir, "active_job.json")
}

// ReadJob reads the job status file. A missing file means no job has run.
func ReadJob(path string) (*models.JobStatus, error) {
	var st models.JobStatus
	if err := artifact.ReadJSON(path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &models.JobStatus{Status: models.JobIdle, Logs: []string{}}, nil
		}
		return nil, err
	}
	return &st, nil
}

// Job mirrors the progress of one maintenance run into the status file.
// Write failures are logged and do not interrupt the run.
type Job struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	status models.JobStatus
}

func newJob(path, id, step string, now func() time.Time) *Job {
	t := now()
	j := &Job{
		path: path,
		now:  now,
		status: models.JobStatus{
			ID:        id,
			Status:    models.JobRunning,
			Step:      step,
			Logs:      []string{},
			StartedAt: t,
			UpdatedAt: t,
		},
	}
	j.write()
	return j
}

// Log appends a timestamped line. A negative progress keeps the current value.
func (j *Job) Log(msg string, progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t := j.now()
	j.status.Logs = append(j.status.Logs, fmt.Sprintf("[%s] %s", t.Format("15:04:05"), msg))
	j.status.Step = msg
	if progress >= 0 {
		j.status.Progress = min(progress, 100)
	}
	j.status.UpdatedAt = t
	logger.Info("[job %s] %s", j.status.ID, msg)
	j.writeLocked()
}

// Complete marks the job finished.
func (j *Job) Complete(success bool) {
	if success {
		j.Log("Task completed successfully.", 100)
	} else {
		j.Log("Task failed.", -1)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.Status = models.JobCompleted
	if !success {
		j.status.Status = models.JobError
	}
	j.status.Progress = 100
	j.writeLocked()
}

// Status returns a copy of the current status.
func (j *Job) Status() models.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := j.status
	st.Logs = append([]string(nil), j.status.Logs...)
	return st
}

func (j *Job) write() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.writeLocked()
}

func (j *Job) writeLocked() {
	if err := j.status.Validate(); err != nil {
		logger.Warn("Invalid job status: %v", err)
		return
	}
	if err := artifact.WriteJSON(j.path, j.status); err != nil {
		logger.Warn("Failed to write job status: %v", err)
	}
}
