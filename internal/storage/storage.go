// Package storage provides the SQLite-backed match store and training metric history.
//
// The matches table is the raw match log the pipeline reads from. Imports upsert on
// (match_date, home_team, away_team) so a re-imported fixture replaces the earlier
// row instead of duplicating it. Missing statistics are stored as NULL and come back
// as NaN.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/scorepulse/internal/models"
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	match_date   TEXT    NOT NULL,
	division     TEXT    NOT NULL DEFAULT '',
	home_team    TEXT    NOT NULL,
	away_team    TEXT    NOT NULL,
	ft_home      INTEGER NOT NULL,
	ft_away      INTEGER NOT NULL,
	ft_result    TEXT    NOT NULL,
	home_shots   REAL,
	away_shots   REAL,
	home_corners REAL,
	away_corners REAL,
	home_elo     REAL,
	away_elo     REAL,
	odd_home     REAL,
	odd_draw     REAL,
	odd_away     REAL,
	form3_home   REAL,
	form5_home   REAL,
	form3_away   REAL,
	form5_away   REAL,
	imported_at  INTEGER NOT NULL,
	UNIQUE (match_date, home_team, away_team)
);
CREATE INDEX IF NOT EXISTS idx_matches_date ON matches (match_date, id);
CREATE INDEX IF NOT EXISTS idx_matches_imported ON matches (imported_at);

CREATE TABLE IF NOT EXISTS training_metrics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT    NOT NULL,
	target     TEXT    NOT NULL,
	algorithm  TEXT    NOT NULL,
	metric     TEXT    NOT NULL,
	value      REAL    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_created ON training_metrics (created_at);
`

const upsertMatch = `
INSERT INTO matches (
	match_date, division, home_team, away_team, ft_home, ft_away, ft_result,
	home_shots, away_shots, home_corners, away_corners, home_elo, away_elo,
	odd_home, odd_draw, odd_away, form3_home, form5_home, form3_away, form5_away,
	imported_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_date, home_team, away_team) DO UPDATE SET
	division = excluded.division,
	ft_home = excluded.ft_home,
	ft_away = excluded.ft_away,
	ft_result = excluded.ft_result,
	home_shots = excluded.home_shots,
	away_shots = excluded.away_shots,
	home_corners = excluded.home_corners,
	away_corners = excluded.away_corners,
	home_elo = excluded.home_elo,
	away_elo = excluded.away_elo,
	odd_home = excluded.odd_home,
	odd_draw = excluded.odd_draw,
	odd_away = excluded.odd_away,
	form3_home = excluded.form3_home,
	form5_home = excluded.form5_home,
	form3_away = excluded.form3_away,
	form5_away = excluded.form5_away,
	imported_at = excluded.imported_at`

const selectMatches = `
SELECT id, match_date, division, home_team, away_team, ft_home, ft_away, ft_result,
	home_shots, away_shots, home_corners, away_corners, home_elo, away_elo,
	odd_home, odd_draw, odd_away, form3_home, form5_home, form3_away, form5_away
FROM matches
ORDER BY match_date, id`

// Storage is the SQLite match store. It is safe for concurrent use.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the store at dbPath. Use ":memory:" for a throwaway store.
func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db, now: time.Now}, nil
}

// Close releases the underlying database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// UpsertMatches validates and writes matches in one transaction. Later rows with the
// same key replace earlier ones. Returns the number of rows written.
func (s *Storage) UpsertMatches(ctx context.Context, matches []models.Match) (int, error) {
	for i := range matches {
		if err := matches[i].Validate(); err != nil {
			return 0, fmt.Errorf("invalid match %s: %w", matches[i].Key(), err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertMatch)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	importedAt := s.now().UnixNano()
	for i := range matches {
		m := &matches[i]
		if _, err := stmt.ExecContext(ctx,
			m.Date.Format(dateLayout), m.Division, m.HomeTeam, m.AwayTeam,
			m.FTHome, m.FTAway, m.Result,
			nullable(m.HomeShots), nullable(m.AwayShots),
			nullable(m.HomeCorners), nullable(m.AwayCorners),
			nullable(m.HomeElo), nullable(m.AwayElo),
			nullable(m.OddHome), nullable(m.OddDraw), nullable(m.OddAway),
			nullable(m.Form3Home), nullable(m.Form5Home),
			nullable(m.Form3Away), nullable(m.Form5Away),
			importedAt,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert match %s: %w", m.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit matches: %w", err)
	}
	return len(matches), nil
}

// Matches returns every stored match ordered by date, then insertion order.
func (s *Storage) Matches(ctx context.Context) ([]models.Match, error) {
	rows, err := s.db.QueryContext(ctx, selectMatches)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var result []models.Match
	for rows.Next() {
		var (
			m       models.Match
			date    string
			numeric [13]sql.NullFloat64
		)
		if err := rows.Scan(
			&m.ID, &date, &m.Division, &m.HomeTeam, &m.AwayTeam, &m.FTHome, &m.FTAway, &m.Result,
			&numeric[0], &numeric[1], &numeric[2], &numeric[3], &numeric[4], &numeric[5],
			&numeric[6], &numeric[7], &numeric[8], &numeric[9], &numeric[10], &numeric[11], &numeric[12],
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}

		m.Date, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("corrupt match date %q: %w", date, err)
		}
		targets := []*float64{
			&m.HomeShots, &m.AwayShots, &m.HomeCorners, &m.AwayCorners,
			&m.HomeElo, &m.AwayElo, &m.OddHome, &m.OddDraw, &m.OddAway,
			&m.Form3Home, &m.Form5Home, &m.Form3Away, &m.Form5Away,
		}
		for i, dst := range targets {
			*dst = fromNullable(numeric[i])
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return result, nil
}

// Count returns the number of stored matches.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return n, nil
}

// CountSince returns the number of matches imported after t.
func (s *Storage) CountSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE imported_at > ?`, t.UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count new matches: %w", err)
	}
	return n, nil
}

// Backup writes a consistent copy of the database to path.
func (s *Storage) Backup(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old backup: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	return nil
}

// RecordMetric appends a validation metric to the training history.
func (s *Storage) RecordMetric(ctx context.Context, m models.TrainingMetric) error {
	if m.RunID == "" || m.Target == "" || m.Metric == "" {
		return errors.New("metric requires run id, target and metric name")
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("metric %s/%s is not finite", m.Target, m.Metric)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_metrics (run_id, target, algorithm, metric, value, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Target, m.Algorithm, m.Metric, m.Value, m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}
	return nil
}

// RecentMetrics returns up to limit metrics, newest first.
func (s *Storage) RecentMetrics(ctx context.Context, limit int) ([]models.TrainingMetric, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, target, algorithm, metric, value, created_at
		 FROM training_metrics ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var result []models.TrainingMetric
	for rows.Next() {
		var (
			m       models.TrainingMetric
			created int64
		)
		if err := rows.Scan(&m.RunID, &m.Target, &m.Algorithm, &m.Metric, &m.Value, &created); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.CreatedAt = time.Unix(0, created)
		result = append(result, m)
	}
	return result, rows.Err()
}

// LastTrainingTime returns when the most recent metric was recorded, or the zero
// time when no training has been recorded.
func (s *Storage) LastTrainingTime(ctx context.Context) (time.Time, error) {
	var created sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM training_metrics`).Scan(&created); err != nil {
		return time.Time{}, fmt.Errorf("failed to query last training: %w", err)
	}
	if !created.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, created.Int64), nil
}

func nullable(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func fromNullable(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}
