package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/storage"
	"github.com/rewired-gh/scorepulse/internal/testutil"
	"github.com/rewired-gh/scorepulse/internal/training"
)

func mustStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.UpsertMatches(context.Background(), testutil.League(40, 1)); err != nil {
		t.Fatalf("failed to seed storage: %v", err)
	}
	return s
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent [][]models.ModelAlert
}

func (f *fakeNotifier) SendAlerts(alerts []models.ModelAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, alerts)
	return nil
}

type fakeRefresher struct {
	refreshed int
	reloaded  int
}

func (f *fakeRefresher) Refresh(context.Context) error { f.refreshed++; return nil }
func (f *fakeRefresher) Reload()                       { f.reloaded++ }

type failingTrainer struct{}

func (failingTrainer) Run(context.Context, training.Options) (*training.Result, error) {
	return nil, errors.New("out of memory")
}

// setup returns a monitor wired to a real trainer. Only the total goals threshold
// can fire.
func setup(t *testing.T) (*Monitor, *config.Config, *storage.Storage, *fakeNotifier, *fakeRefresher) {
	t.Helper()
	cfg := testutil.Config(t)
	cfg.Monitor.WLDAccuracy = 0
	cfg.Monitor.BTTSAccuracy = 0
	cfg.Monitor.Over25Accuracy = 0
	cfg.Monitor.TotalGoalsMSE = 0.0001

	store := mustStorage(t)
	tr := scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir))
	trainer, err := training.New(cfg, store, tr)
	if err != nil {
		t.Fatal(err)
	}
	n := &fakeNotifier{}
	r := &fakeRefresher{}
	return New(cfg, store, trainer, tr, n, r), cfg, store, n, r
}

func alert(target, metric string, value float64) models.ModelAlert {
	return models.ModelAlert{Target: target, Metric: metric, Value: value}
}

func TestFilterRecentlySent(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Monitor.AlertCooldown = time.Hour
	m := New(cfg, nil, nil, nil, nil, nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	first := []models.ModelAlert{
		alert("WLD", training.MetricAccuracy, 0.45),
		alert("TotalGoals", training.MetricMSE, 2.5),
	}
	if got := m.FilterRecentlySent(first); len(got) != 2 {
		t.Fatalf("nothing sent yet, expected 2 alerts, got %d", len(got))
	}
	m.RecordNotified(first)

	tests := []struct {
		name    string
		after   time.Duration
		alerts  []models.ModelAlert
		wantLen int
	}{
		{"unchanged within cooldown", 10 * time.Minute, first, 0},
		{"accuracy dropped further", 10 * time.Minute, []models.ModelAlert{alert("WLD", training.MetricAccuracy, 0.40)}, 1},
		{"accuracy recovered a little", 10 * time.Minute, []models.ModelAlert{alert("WLD", training.MetricAccuracy, 0.47)}, 0},
		{"mse grew", 10 * time.Minute, []models.ModelAlert{alert("TotalGoals", training.MetricMSE, 3.1)}, 1},
		{"new target", 10 * time.Minute, []models.ModelAlert{alert("BTTS", training.MetricAccuracy, 0.5)}, 1},
		{"cooldown expired", 2 * time.Hour, first, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.now = func() time.Time { return now.Add(tt.after) }
			if got := m.FilterRecentlySent(tt.alerts); len(got) != tt.wantLen {
				t.Errorf("got %d alerts, want %d", len(got), tt.wantLen)
			}
		})
	}

	if got := m.FilterRecentlySent(nil); got == nil {
		t.Error("expected a non-nil slice")
	}
}

func TestHealthCheck(t *testing.T) {
	m, cfg, _, _, _ := setup(t)
	ctx := context.Background()

	if _, err := m.HealthCheck(ctx); err == nil {
		t.Error("expected error without a validation split")
	}

	if _, err := m.RunCycle(ctx, true); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	report, err := m.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if report.Status != models.StatusCritical {
		t.Errorf("expected CRITICAL, got %s", report.Status)
	}
	if len(report.ModelsMonitored) != 4 || len(report.Metrics) != 4 {
		t.Errorf("expected 4 monitored models, got %v / %v", report.ModelsMonitored, report.Metrics)
	}
	if len(report.ActiveAlerts) != 1 || report.ActiveAlerts[0].Target != "TotalGoals" {
		t.Fatalf("expected one TotalGoals alert, got %+v", report.ActiveAlerts)
	}
	if !strings.Contains(report.ActiveAlerts[0].Message, "above threshold") {
		t.Errorf("unexpected message %q", report.ActiveAlerts[0].Message)
	}

	onDisk, err := ReadStatus(StatusPath(cfg.Artifacts.LogsDir))
	if err != nil {
		t.Fatalf("status file not readable: %v", err)
	}
	if onDisk.Status != report.Status || len(onDisk.ActiveAlerts) != 1 {
		t.Errorf("status file mismatch: %+v", onDisk)
	}
	last, err := m.LastReport()
	if err != nil || last != report {
		t.Error("LastReport should return the latest in-memory report")
	}
}

func TestHealthCheck_SkipsMissingModels(t *testing.T) {
	m, cfg, store, _, _ := setup(t)
	trainer, err := training.New(cfg, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := trainer.PrepareSplits(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	report, err := m.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if report.Status != models.StatusHealthy || len(report.Metrics) != 0 {
		t.Errorf("expected healthy report with no metrics, got %+v", report)
	}
}

func writeIncoming(t *testing.T, dir string) {
	t.Helper()
	csv := "MatchDate,HomeTeam,AwayTeam,FTHome,FTAway,FTResult,HomeShots,AwayShots,HomeCorners,AwayCorners,HomeElo,AwayElo,OddHome,OddDraw,OddAway\n" +
		"2023-06-03,Arsenal,Chelsea,2,1,H,12,8,6,3,1800,1750,1.9,3.5,4.0\n" +
		"2023-06-03,Leeds,Wolves,0,0,D,7,9,4,5,1600,1580,2.6,3.1,2.8\n"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, IncomingFile), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunCycle(t *testing.T) {
	m, cfg, _, notifier, refresher := setup(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	writeIncoming(t, cfg.Data.IncomingDir)

	res, err := m.RunCycle(ctx, false)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if res.Imported != 2 {
		t.Errorf("expected 2 imported matches, got %d", res.Imported)
	}
	if _, err := os.Stat(filepath.Join(cfg.Data.IncomingDir, "processed_20240304.csv")); err != nil {
		t.Errorf("incoming file not archived: %v", err)
	}
	if !res.Retrained || res.Reason != "models missing" {
		t.Errorf("expected retrain for missing models, got %v (%s)", res.Retrained, res.Reason)
	}
	if refresher.refreshed != 1 || refresher.reloaded != 1 {
		t.Errorf("predictor not refreshed/reloaded: %+v", refresher)
	}
	if res.Notified != 1 || len(notifier.sent) != 1 {
		t.Errorf("expected one alert notification, got %d", res.Notified)
	}
	backups, _ := os.ReadDir(cfg.Storage.BackupDir)
	if len(backups) != 1 {
		t.Errorf("expected one backup, got %d", len(backups))
	}

	job, err := ReadJob(JobPath(cfg.Artifacts.LogsDir))
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != res.JobID || job.Status != models.JobCompleted || job.Progress != 100 || len(job.Logs) == 0 {
		t.Errorf("unexpected job status %+v", job)
	}

	// Nothing new: no retraining, and the unchanged alert is suppressed
	res, err = m.RunCycle(ctx, false)
	if err != nil {
		t.Fatalf("second RunCycle failed: %v", err)
	}
	if res.Retrained || res.Imported != 0 {
		t.Errorf("expected no import and no retrain, got %+v", res)
	}
	if !strings.HasPrefix(res.Reason, "only 0 new matches") {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if res.Notified != 0 || len(notifier.sent) != 1 {
		t.Error("repeated alert should be suppressed by the cooldown")
	}
}

func TestRunCycle_TrainingFails(t *testing.T) {
	cfg := testutil.Config(t)
	store := mustStorage(t)
	m := New(cfg, store, failingTrainer{}, scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir)), nil, nil)

	if _, err := m.RunCycle(context.Background(), true); err == nil {
		t.Fatal("expected training failure")
	}
	job, err := ReadJob(JobPath(cfg.Artifacts.LogsDir))
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobError {
		t.Errorf("expected error status, got %s", job.Status)
	}
}

func TestRunCycle_AlreadyRunning(t *testing.T) {
	cfg := testutil.Config(t)
	m := New(cfg, mustStorage(t), failingTrainer{}, nil, nil, nil)
	m.running.Lock()
	defer m.running.Unlock()

	if _, err := m.RunCycle(context.Background(), true); !errors.Is(err, ErrCycleRunning) {
		t.Errorf("expected ErrCycleRunning, got %v", err)
	}
	if _, err := m.Start(context.Background(), true); !errors.Is(err, ErrCycleRunning) {
		t.Errorf("expected ErrCycleRunning from Start, got %v", err)
	}
}

func TestReadJob_Missing(t *testing.T) {
	job, err := ReadJob(filepath.Join(t.TempDir(), "active_job.json"))
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobIdle {
		t.Errorf("expected idle, got %s", job.Status)
	}
}

func TestJob_Progress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_job.json")
	clock := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	j := newJob(path, "job-1", "start", func() time.Time { return clock })

	j.Log("Importing", 10)
	j.Log("Still importing", -1)
	if st := j.Status(); st.Progress != 10 || len(st.Logs) != 2 || st.Logs[0] != "[09:30:00] Importing" {
		t.Errorf("unexpected status %+v", st)
	}
	j.Complete(true)

	onDisk, err := ReadJob(path)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.Status != models.JobCompleted || onDisk.Progress != 100 {
		t.Errorf("unexpected persisted status %+v", onDisk)
	}
}
