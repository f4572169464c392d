package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/scorepulse/internal/models"
)

func mustStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func match(day int, home, away string, hg, ag int) models.Match {
	m := models.NewMatch(time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC), home, away)
	m.FTHome, m.FTAway = hg, ag
	m.Result = models.ResultFromGoals(hg, ag)
	m.HomeElo, m.AwayElo = 1600, 1550
	m.OddHome, m.OddDraw, m.OddAway = 2.1, 3.3, 3.6
	return m
}

func TestStorage_UpsertAndOrder(t *testing.T) {
	s := mustStorage(t)
	ctx := context.Background()

	in := []models.Match{
		match(5, "Arsenal", "Chelsea", 2, 1),
		match(1, "Liverpool", "Everton", 0, 0),
		match(3, "Chelsea", "Liverpool", 1, 3),
	}
	n, err := s.UpsertMatches(ctx, in)
	if err != nil {
		t.Fatalf("UpsertMatches failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows written, got %d", n)
	}

	got, err := s.Matches(ctx)
	if err != nil {
		t.Fatalf("Matches failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Date.Before(got[i-1].Date) {
			t.Errorf("matches not ordered by date at %d", i)
		}
	}
	if got[0].HomeTeam != "Liverpool" || got[0].Result != models.ResultDraw {
		t.Errorf("unexpected first match: %+v", got[0])
	}
	if got[2].HomeElo != 1600 || got[2].OddAway != 3.6 {
		t.Errorf("numeric columns not restored: %+v", got[2])
	}
}

func TestStorage_DuplicateKeepsLatest(t *testing.T) {
	s := mustStorage(t)
	ctx := context.Background()

	if _, err := s.UpsertMatches(ctx, []models.Match{match(2, "Ajax", "PSV", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	corrected := match(2, "Ajax", "PSV", 1, 1)
	if _, err := s.UpsertMatches(ctx, []models.Match{corrected}); err != nil {
		t.Fatal(err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 match after duplicate import, got %d", count)
	}
	got, _ := s.Matches(ctx)
	if got[0].FTAway != 1 || got[0].Result != models.ResultDraw {
		t.Errorf("expected latest import to win, got %d-%d %s", got[0].FTHome, got[0].FTAway, got[0].Result)
	}
}

func TestStorage_NaNRoundTrip(t *testing.T) {
	s := mustStorage(t)
	ctx := context.Background()

	m := match(4, "Porto", "Benfica", 2, 2)
	m.HomeShots = math.NaN()
	m.AwayShots = 11
	if _, err := s.UpsertMatches(ctx, []models.Match{m}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Matches(ctx)
	if !math.IsNaN(got[0].HomeShots) {
		t.Errorf("expected NaN home shots, got %v", got[0].HomeShots)
	}
	if got[0].AwayShots != 11 {
		t.Errorf("expected 11 away shots, got %v", got[0].AwayShots)
	}
	if !math.IsNaN(got[0].Form5Home) {
		t.Errorf("expected NaN form, got %v", got[0].Form5Home)
	}
}

func TestStorage_RejectsInvalid(t *testing.T) {
	s := mustStorage(t)
	bad := match(1, "Inter", "Milan", 2, 0)
	bad.Result = models.ResultAway
	if _, err := s.UpsertMatches(context.Background(), []models.Match{bad}); err == nil {
		t.Fatal("expected validation error")
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("invalid batch should not be written, got %d rows", n)
	}
}

func TestStorage_CountSince(t *testing.T) {
	s := mustStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if _, err := s.UpsertMatches(ctx, []models.Match{match(1, "A", "B", 1, 0), match(2, "C", "D", 0, 1)}); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := s.UpsertMatches(ctx, []models.Match{match(3, "E", "F", 1, 1)}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountSince(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 new match, got %d", n)
	}
}

func TestStorage_Metrics(t *testing.T) {
	s := mustStorage(t)
	ctx := context.Background()

	last, err := s.LastTrainingTime(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsZero() {
		t.Errorf("expected zero time before any training, got %v", last)
	}

	t1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	for _, m := range []models.TrainingMetric{
		{RunID: "r1", Target: "WLD", Algorithm: "rf", Metric: "accuracy", Value: 0.51, CreatedAt: t1},
		{RunID: "r2", Target: "TotalGoals", Algorithm: "rf", Metric: "mse", Value: 1.7, CreatedAt: t2},
	} {
		if err := s.RecordMetric(ctx, m); err != nil {
			t.Fatalf("RecordMetric failed: %v", err)
		}
	}
	if err := s.RecordMetric(ctx, models.TrainingMetric{RunID: "r3", Target: "WLD", Metric: "accuracy", Value: math.NaN()}); err == nil {
		t.Error("expected error for NaN metric")
	}

	recent, err := s.RecentMetrics(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].RunID != "r2" {
		t.Errorf("unexpected recent metrics: %+v", recent)
	}

	last, _ = s.LastTrainingTime(ctx)
	if !last.Equal(t2) {
		t.Errorf("expected last training %v, got %v", t2, last)
	}
}

func TestStorage_Backup(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "matches.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, err := s.UpsertMatches(ctx, []models.Match{match(1, "Celtic", "Rangers", 3, 0)}); err != nil {
		t.Fatal(err)
	}

	backupPath := filepath.Join(dir, "backups", "matches_backup.db")
	if err := s.Backup(ctx, backupPath); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	// Second backup overwrites the first
	if err := s.Backup(ctx, backupPath); err != nil {
		t.Fatalf("second Backup failed: %v", err)
	}

	restored, err := New(backupPath)
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()
	n, err := restored.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 match in backup, got %d", n)
	}
}
