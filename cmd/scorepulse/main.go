package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/scorepulse/internal/api"
	"github.com/rewired-gh/scorepulse/internal/artifact"
	"github.com/rewired-gh/scorepulse/internal/cache"
	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/fetch"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/monitor"
	"github.com/rewired-gh/scorepulse/internal/predictor"
	"github.com/rewired-gh/scorepulse/internal/scaler"
	"github.com/rewired-gh/scorepulse/internal/storage"
	"github.com/rewired-gh/scorepulse/internal/telegram"
	"github.com/rewired-gh/scorepulse/internal/training"
)

var version = "dev"

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scalerPath := artifact.ScalerPath(cfg.Artifacts.ModelsDir)
	if err := artifact.Clean(scalerPath); err != nil {
		logger.Warn("Failed to remove stale scaler temp file: %v", err)
	}
	transformer := scaler.NewTransformer(scalerPath)

	// Optional prediction cache
	var predCache predictor.Cache
	if cfg.Redis.Enabled {
		rc, err := cache.Open(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, predictions will not be cached: %v", err)
		} else {
			defer rc.Close()
			predCache = rc
			logger.Info("Prediction cache connected to %s", cfg.Redis.Addr)
		}
	}

	pred := predictor.New(cfg, store, transformer, predCache)
	if err := pred.Refresh(ctx); err != nil {
		logger.Warn("Failed to load match history: %v", err)
	}

	trainer, err := training.New(cfg, store, transformer)
	if err != nil {
		logger.Fatal("Failed to initialize trainer: %v", err)
	}

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	var notifier monitor.Notifier
	if telegramClient != nil {
		notifier = telegramClient
	}
	mon := monitor.New(cfg, store, trainer, transformer, notifier, pred)

	if telegramClient != nil {
		telegramClient.Attach(pred, mon, cfg.Monitor.PremiumBatchMax)
		telegramClient.ListenForCommands(ctx)
	}

	handler := api.New(api.Config{
		Predictor:   pred,
		Maintenance: mon,
		Logger:      logger.L(),
		AdminToken:  cfg.Server.AdminToken,
		CORSOrigins: cfg.Server.CORSOrigins,
		EnableMCP:   cfg.Server.EnableMCP,
		Version:     version,
		BaseContext: ctx,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, cleaning up...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Monitor.Enabled {
		feed := fetch.NewClient(cfg.Data.SourceURL, cfg.Data.Timeout, cfg.Data.MaxRetries)
		g.Go(func() error {
			runMaintenance(gctx, cfg, mon, feed, telegramClient)
			return nil
		})
	} else {
		logger.Info("Scheduled maintenance disabled")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error: %v", err)
		return
	}
	logger.Info("Service stopped")
}

// runMaintenance runs a cycle immediately and then on every tick until ctx is done.
func runMaintenance(ctx context.Context, cfg *config.Config, mon *monitor.Monitor, feed *fetch.Client, telegramClient *telegram.Client) {
	logger.Info("Starting maintenance scheduler (interval: %v, min_new_matches: %d)",
		cfg.Monitor.Interval, cfg.Monitor.MinNewMatches)

	ticker := time.NewTicker(cfg.Monitor.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if errors.Is(err, monitor.ErrCycleRunning) {
			logger.Info("Skipping scheduled cycle: %v", err)
			return
		}
		if err != nil {
			consecutiveFailures++
			logger.Error("Maintenance cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	cycle := func() error {
		if cfg.Data.SourceURL != "" {
			path := filepath.Join(cfg.Data.IncomingDir, monitor.IncomingFile)
			if _, err := feed.Download(ctx, path); err != nil {
				logger.Warn("Failed to download match feed: %v", err)
			}
		}
		res, err := mon.RunCycle(ctx, false)
		if err != nil {
			return err
		}
		logger.Info("Cycle %s: imported %d, retrained %v (%s), status %s, %d alerts sent",
			res.JobID, res.Imported, res.Retrained, res.Reason, res.Health.Status, res.Notified)
		return nil
	}

	// Run initial cycle immediately
	logger.Debug("Running initial maintenance cycle")
	handleCycleResult(cycle())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("Starting scheduled maintenance cycle")
			handleCycleResult(cycle())
		}
	}
}
