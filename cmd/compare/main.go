package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/storage"
	"github.com/rewired-gh/scorepulse/internal/training"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

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

	transformer := scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir))
	trainer, err := training.New(cfg, store, transformer)
	if err != nil {
		logger.Fatal("Failed to initialize trainer: %v", err)
	}

	printBanner("MODEL TOURNAMENT - every algorithm, every target")

	fmt.Println("\nSTEP 1: Training contestants...")
	printRule()
	tour, err := trainer.Compare(ctx, func(step string, percent int) {
		fmt.Printf("  [%3d%%] %s\n", percent, step)
	})
	if err != nil {
		logger.Fatal("Comparison failed: %v", err)
	}

	fmt.Println("\nSTEP 2: Validation scores")
	printRule()
	printEntries(tour.Entries)

	fmt.Println("\nSTEP 3: Winners")
	printRule()
	printWinners(tour)

	printBanner("TOURNAMENT COMPLETE")
}
