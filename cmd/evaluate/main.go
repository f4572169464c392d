package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/evaluate"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/model"
	"github.com/rewired-gh/scorepulse/internal/scaler"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	algorithm  = flag.String("algorithm", "", "Algorithm to evaluate (default: first configured)")
	stake      = flag.Float64("stake", evaluate.DefaultStake, "Flat stake for the ROI simulation")
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

	name := *algorithm
	if name == "" {
		name = cfg.Training.Algorithms[0]
	}
	kind, err := model.ParseKind(name)
	if err != nil {
		logger.Fatal("Invalid algorithm: %v", err)
	}

	ev := &evaluate.Evaluator{
		ModelsDir:   cfg.Artifacts.ModelsDir,
		SplitsDir:   cfg.Data.SplitsDir,
		Kind:        kind,
		Transformer: scaler.NewTransformer(artifact.ScalerPath(cfg.Artifacts.ModelsDir)),
		Stake:       *stake,
	}
	reports, err := ev.Run()
	if err != nil {
		logger.Fatal("Evaluation failed: %v", err)
	}
	if len(reports) == 0 {
		logger.Fatal("No %s models found in %s, train first", kind, cfg.Artifacts.ModelsDir)
	}

	for _, r := range reports {
		fmt.Println(strings.Repeat("=", 80))
		fmt.Print(r.Format())
	}
	fmt.Println(strings.Repeat("=", 80))
}
