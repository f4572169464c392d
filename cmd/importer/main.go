package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/fetch"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/metrics"
	"github.com/rewired-gh/scorepulse/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	file       = flag.String("file", "", "Match CSV to import (default: data.raw_csv)")
	url        = flag.String("url", "", "Download the match CSV from this URL instead of a file")
	remote     = flag.Bool("remote", false, "Download from data.source_url")
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

	var (
		lr     *dataset.LoadResult
		source string
	)
	switch {
	case *url != "" || *remote:
		source = *url
		if source == "" {
			source = cfg.Data.SourceURL
		}
		client := fetch.NewClient(source, cfg.Data.Timeout, cfg.Data.MaxRetries)
		lr, err = client.FetchURL(ctx, source)
	default:
		source = *file
		if source == "" {
			source = cfg.Data.RawCSV
		}
		lr, err = dataset.LoadFile(source)
	}
	if err != nil {
		logger.Fatal("Failed to load %s: %v", source, err)
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	n, err := store.UpsertMatches(ctx, lr.Matches)
	if err != nil {
		logger.Fatal("Failed to store matches: %v", err)
	}
	metrics.MatchesImported.Add(float64(n))
	total, err := store.Count(ctx)
	if err != nil {
		logger.Fatal("Failed to count matches: %v", err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("IMPORT COMPLETE - %s\n", source)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("  Rows read:             %d\n", lr.Rows)
	fmt.Printf("  Missing goals/result:  %d\n", lr.DroppedMissing)
	fmt.Printf("  Result contradicts FT: %d\n", lr.DroppedInconsistent)
	fmt.Printf("  Duplicates replaced:   %d\n", lr.Duplicates)
	fmt.Printf("  Matches written:       %d\n", n)
	fmt.Printf("  Store total:           %d\n", total)
}
