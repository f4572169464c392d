package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Split     SplitConfig     `mapstructure:"split"`
	Training  TrainingConfig  `mapstructure:"training"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DataConfig holds input file locations and the remote match feed
type DataConfig struct {
	RawCSV      string        `mapstructure:"raw_csv"`
	IncomingDir string        `mapstructure:"incoming_dir"`
	SplitsDir   string        `mapstructure:"splits_dir"`
	UpcomingCSV string        `mapstructure:"upcoming_csv"`
	SourceURL   string        `mapstructure:"source_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// StorageConfig holds match store configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	BackupDir string `mapstructure:"backup_dir"`
}

// ArtifactsConfig holds locations for fitted models and status files
type ArtifactsConfig struct {
	ModelsDir string `mapstructure:"models_dir"`
	LogsDir   string `mapstructure:"logs_dir"`
}

// FeaturesConfig holds rolling window parameters
type FeaturesConfig struct {
	Window      int `mapstructure:"window"`
	RestDefault int `mapstructure:"rest_default"`
	RestCap     int `mapstructure:"rest_cap"`
}

// SplitConfig holds chronological split fractions
type SplitConfig struct {
	TrainFraction float64 `mapstructure:"train_fraction"`
	ValFraction   float64 `mapstructure:"val_fraction"`
}

// TrainingConfig holds model training configuration
type TrainingConfig struct {
	Algorithms     []string `mapstructure:"algorithms"`
	Tune           bool     `mapstructure:"tune"`
	TuneIterations int      `mapstructure:"tune_iterations"`
	CVSplits       int      `mapstructure:"cv_splits"`
	Seed           int64    `mapstructure:"seed"`
}

// MonitorConfig holds health monitoring and maintenance configuration
type MonitorConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	MinNewMatches   int           `mapstructure:"min_new_matches"`
	AlertCooldown   time.Duration `mapstructure:"alert_cooldown"`
	WLDAccuracy     float64       `mapstructure:"wld_accuracy"`
	BTTSAccuracy    float64       `mapstructure:"btts_accuracy"`
	Over25Accuracy  float64       `mapstructure:"over25_accuracy"`
	TotalGoalsMSE   float64       `mapstructure:"total_goals_mse"`
	BackupOnCycle   bool          `mapstructure:"backup_on_cycle"`
	PremiumBatchMax int           `mapstructure:"premium_batch_max"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	AdminToken   string        `mapstructure:"admin_token"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnableMCP    bool          `mapstructure:"enable_mcp"`
}

// RedisConfig holds the optional prediction cache configuration
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable override, e.g. SCORE_PULSE_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("SCORE_PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.raw_csv", "./data/raw/Matches.csv")
	v.SetDefault("data.incoming_dir", "./data/incoming")
	v.SetDefault("data.splits_dir", "./data/processed")
	v.SetDefault("data.upcoming_csv", "./data/raw/upcoming.csv")
	v.SetDefault("data.source_url", "")
	v.SetDefault("data.timeout", "30s")
	v.SetDefault("data.max_retries", 3)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/scorepulse.db")
	v.SetDefault("storage.backup_dir", "./data/backups")

	// Artifact defaults
	v.SetDefault("artifacts.models_dir", "./models")
	v.SetDefault("artifacts.logs_dir", "./logs")

	// Feature defaults
	v.SetDefault("features.window", 5)
	v.SetDefault("features.rest_default", 7)
	v.SetDefault("features.rest_cap", 14)

	// Split defaults
	v.SetDefault("split.train_fraction", 0.80)
	v.SetDefault("split.val_fraction", 0.10)

	// Training defaults
	v.SetDefault("training.algorithms", []string{"rf", "gb"})
	v.SetDefault("training.tune", false)
	v.SetDefault("training.tune_iterations", 5)
	v.SetDefault("training.cv_splits", 3)
	v.SetDefault("training.seed", 42)

	// Monitor defaults
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "168h")
	v.SetDefault("monitor.min_new_matches", 500)
	v.SetDefault("monitor.alert_cooldown", "24h")
	v.SetDefault("monitor.wld_accuracy", 0.48)
	v.SetDefault("monitor.btts_accuracy", 0.52)
	v.SetDefault("monitor.over25_accuracy", 0.52)
	v.SetDefault("monitor.total_goals_mse", 2.0)
	v.SetDefault("monitor.backup_on_cycle", true)
	v.SetDefault("monitor.premium_batch_max", 10)

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.enable_mcp", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Data config
	if c.Data.RawCSV == "" {
		return fmt.Errorf("data.raw_csv is required")
	}
	if c.Data.SplitsDir == "" {
		return fmt.Errorf("data.splits_dir is required")
	}
	if c.Data.Timeout <= 0 {
		return fmt.Errorf("data.timeout must be positive")
	}
	if c.Data.MaxRetries < 1 {
		return fmt.Errorf("data.max_retries must be at least 1")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Artifacts config
	if c.Artifacts.ModelsDir == "" {
		return fmt.Errorf("artifacts.models_dir is required")
	}
	if c.Artifacts.LogsDir == "" {
		return fmt.Errorf("artifacts.logs_dir is required")
	}

	// Validate Features config
	if c.Features.Window < 1 {
		return fmt.Errorf("features.window must be at least 1")
	}
	if c.Features.RestDefault < 0 || c.Features.RestCap < 1 {
		return fmt.Errorf("features.rest_default must be >= 0 and features.rest_cap >= 1")
	}

	// Validate Split config
	if c.Split.TrainFraction <= 0 || c.Split.ValFraction <= 0 {
		return fmt.Errorf("split fractions must be positive")
	}
	if c.Split.TrainFraction+c.Split.ValFraction >= 1.0 {
		return fmt.Errorf("split.train_fraction + split.val_fraction must be below 1.0")
	}

	// Validate Training config
	if len(c.Training.Algorithms) == 0 {
		return fmt.Errorf("training.algorithms must contain at least one algorithm")
	}
	validAlgorithms := map[string]bool{"rf": true, "gb": true, "svm": true, "nn": true}
	for _, a := range c.Training.Algorithms {
		if !validAlgorithms[a] {
			return fmt.Errorf("training.algorithms: unsupported algorithm %q", a)
		}
	}
	if c.Training.TuneIterations < 1 {
		return fmt.Errorf("training.tune_iterations must be at least 1")
	}
	if c.Training.CVSplits < 2 {
		return fmt.Errorf("training.cv_splits must be at least 2")
	}

	// Validate Monitor config
	if c.Monitor.Enabled && c.Monitor.Interval < 1*time.Minute {
		return fmt.Errorf("monitor.interval must be at least 1 minute")
	}
	if c.Monitor.MinNewMatches < 0 {
		return fmt.Errorf("monitor.min_new_matches must not be negative")
	}
	for name, acc := range map[string]float64{
		"monitor.wld_accuracy":    c.Monitor.WLDAccuracy,
		"monitor.btts_accuracy":   c.Monitor.BTTSAccuracy,
		"monitor.over25_accuracy": c.Monitor.Over25Accuracy,
	} {
		if acc < 0.0 || acc > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}
	if c.Monitor.TotalGoalsMSE <= 0 {
		return fmt.Errorf("monitor.total_goals_mse must be positive")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// Validate Redis config
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if c.Redis.TTL <= 0 {
			return fmt.Errorf("redis.ttl must be positive when redis is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
