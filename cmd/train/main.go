package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/storage"
	"github.com/rewired-gh/scorepulse/internal/training"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	tune       = flag.Bool("tune", false, "Run randomized hyperparameter search for tunable algorithms")
	rebuild    = flag.Bool("rebuild", false, "Regenerate split files from the match store")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Seed an empty store from the raw CSV
	n, err := store.Count(ctx)
	if err != nil {
		logger.Fatal("Failed to count matches: %v", err)
	}
	if n == 0 {
		lr, err := dataset.LoadFile(cfg.Data.RawCSV)
		if err != nil {
			logger.Fatal("Match store is empty and raw data could not be loaded: %v", err)
		}
		if _, err := store.UpsertMatches(ctx, lr.Matches); err != nil {
			logger.Fatal("Failed to import raw data: %v", err)
		}
		logger.Info("Imported %d matches from %s (%d dropped, %d duplicates)",
			len(lr.Matches), cfg.Data.RawCSV, lr.DroppedMissing+lr.DroppedInconsistent, lr.Duplicates)
	}

	transformer := scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir))
	trainer, err := training.New(cfg, store, transformer)
	if err != nil {
		logger.Fatal("Failed to initialize trainer: %v", err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("TRAINING PIPELINE (algorithms: %s, tune: %v)\n", strings.Join(cfg.Training.Algorithms, ", "), *tune || cfg.Training.Tune)
	fmt.Println(strings.Repeat("=", 80))

	res, err := trainer.Run(ctx, training.Options{
		Tune:    *tune || cfg.Training.Tune,
		Rebuild: *rebuild,
		Progress: func(step string, percent int) {
			fmt.Printf("[%3d%%] %s\n", percent, step)
		},
	})
	if err != nil {
		logger.Fatal("Training failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("Run %s finished in %v\n", res.RunID, res.Duration.Round(1e6))
	fmt.Printf("Splits: train %d, val %d, test %d\n", res.Splits[0], res.Splits[1], res.Splits[2])
	fmt.Println(strings.Repeat("-", 80))
	for _, m := range res.Metrics {
		fmt.Printf("  %-12s %-4s %-9s %.4f\n", m.Target, m.Algorithm, m.Metric, m.Value)
	}
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("%d artifacts saved to %s\n", len(res.Saved), cfg.Artifacts.ModelsDir)
}
