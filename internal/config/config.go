// Package config loads the bot configuration from defaults, an optional
// YAML file, a .env file and environment variables, and validates it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Infobus   InfobusConfig   `mapstructure:"infobus"`
	Checker   CheckerConfig   `mapstructure:"checker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Commands  CommandsConfig  `mapstructure:"commands"`
	Points    []PointConfig   `mapstructure:"points" validate:"dive"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON   bool   `mapstructure:"json"`
	ToFile bool   `mapstructure:"to_file"`
	File   string `mapstructure:"file" validate:"required_if=ToFile true"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	// BotInfo is filled from getMe at startup.
	BotInfo *models.User `mapstructure:"-"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// InfobusConfig configures the infobus.eu client and its route cache.
type InfobusConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"min=1s,max=5m"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"min=1,max=10"`
	BackoffBase  time.Duration `mapstructure:"backoff_base" validate:"min=0,max=1m"`
	ClockSkew    time.Duration `mapstructure:"clock_skew" validate:"min=0"`
	ScreenWidth  int           `mapstructure:"screen_width" validate:"min=1"`
	ScreenHeight int           `mapstructure:"screen_height" validate:"min=1"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"min=0"`
	CacheSize    int           `mapstructure:"cache_size" validate:"min=0"`
}

type CheckerConfig struct {
	IntervalSec    int `mapstructure:"interval_sec" validate:"min=1"`
	ReportEverySec int `mapstructure:"report_every_sec" validate:"min=0"`
	Concurrency    int `mapstructure:"concurrency" validate:"min=1,max=32"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig schedules a task either by cron expression (with seconds) or
// by fixed interval. Interval wins when both are set.
type TaskConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Schedule         string        `mapstructure:"schedule"`
	Interval         time.Duration `mapstructure:"interval" validate:"min=0"`
	StartImmediately bool          `mapstructure:"start_immediately"`
}

// PointConfig adds or replaces a point in the directory.
type PointConfig struct {
	Key     string   `mapstructure:"key" validate:"required"`
	ID      string   `mapstructure:"id" validate:"required,numeric"`
	Name    string   `mapstructure:"name" validate:"required"`
	Aliases []string `mapstructure:"aliases"`
}

// envBindings maps config keys to the environment variables that set them.
// The first variable found wins.
var envBindings = map[string][]string{
	"telegram.token":           {"TELEGRAM_BOT_TOKEN"},
	"checker.interval_sec":     {"CHECK_EVERY_SEC"},
	"checker.report_every_sec": {"REPORT_EVERY_SEC"},
	"database.path":            {"SUBS_DB", "SUBS_JSON"},
	"infobus.base_url":         {"INFOBUS_BASE_URL"},
	"infobus.user_agent":       {"INFOBUS_USER_AGENT"},
	"logger.level":             {"LOG_LEVEL"},
	"logger.json":              {"LOG_JSON"},
	"logger.to_file":           {"LOG_TO_FILE"},
	"logger.file":              {"LOG_FILE"},
}

// LoadConfig builds the configuration. A missing config file or .env file
// is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	normalize(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Logger.Level = strings.ToLower(strings.TrimSpace(cfg.Logger.Level))
	if cfg.Logger.Level == "warning" {
		cfg.Logger.Level = "warn"
	}
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)

	if cfg.Scheduler.Tasks == nil {
		cfg.Scheduler.Tasks = map[string]TaskConfig{}
	}
	checker, ok := cfg.Scheduler.Tasks[TaskChecker]
	if !ok {
		checker = TaskConfig{Enabled: true, StartImmediately: true}
	}
	if checker.Interval == 0 && checker.Schedule == "" {
		checker.Interval = time.Duration(cfg.Checker.IntervalSec) * time.Second
	}
	cfg.Scheduler.Tasks[TaskChecker] = checker
}
