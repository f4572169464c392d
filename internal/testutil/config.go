package testutil

import (
	"path/filepath"
	"testing"

	"github.com/rewired-gh/scorepulse/internal/config"
)

// Config returns the default configuration with every path under a fresh
// temporary directory and fast training settings.
func Config(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	dir := t.TempDir()
	cfg.Data.RawCSV = filepath.Join(dir, "raw", "Matches.csv")
	cfg.Data.IncomingDir = filepath.Join(dir, "incoming")
	cfg.Data.SplitsDir = filepath.Join(dir, "processed")
	cfg.Data.UpcomingCSV = filepath.Join(dir, "raw", "upcoming.csv")
	cfg.Storage.DBPath = ":memory:"
	cfg.Storage.BackupDir = filepath.Join(dir, "backups")
	cfg.Artifacts.ModelsDir = filepath.Join(dir, "models")
	cfg.Artifacts.LogsDir = filepath.Join(dir, "logs")
	cfg.Training.Algorithms = []string{"rf"}
	return cfg
}
