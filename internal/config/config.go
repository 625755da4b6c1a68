// Package config loads the sync service configuration from a yaml file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTrackerCollection is the key prefix for processed-message records.
	DefaultTrackerCollection = "processedTelegramMessages"
	// DefaultScheduleTimezone is the TZ database name used for the schedule.
	DefaultScheduleTimezone = "UTC"
	// DefaultSchedule runs the sync once a day at 09:00.
	DefaultSchedule = "0 9 * * *"
	// DefaultWindowDays is the trailing intake window.
	DefaultWindowDays = 3
	// DefaultTelegramTokenSecretName is the short secret name for the bot token.
	DefaultTelegramTokenSecretName = "TELEGRAM_BOT_TOKEN"
	// DefaultNodeBBTokenSecretName is the short secret name for the forum API token.
	DefaultNodeBBTokenSecretName = "NODEBB_API_USER_TOKEN"

	defaultServerAddress       = ":8090"
	defaultReadTimeoutSeconds  = 10
	defaultWriteTimeoutSeconds = 30
)

type Config struct {
	LogLevel   string         `yaml:"log_level"`  // debug|info|warn|error
	Production bool           `yaml:"production"` // production mode (real secret store, JSON logs)
	Telegram   TelegramConfig `yaml:"telegram"`
	NodeBB     NodeBBConfig   `yaml:"nodebb"`
	Secrets    SecretsConfig  `yaml:"secrets"`
	Tracker    TrackerConfig  `yaml:"tracker"`
	Redis      RedisConfig    `yaml:"redis"`
	Sync       SyncConfig     `yaml:"sync"`
	Server     ServerConfig   `yaml:"server"`
}

type TelegramConfig struct {
	ChatID   int64    `yaml:"chat_id"`  // target chat/group id (required)
	Hashtags []string `yaml:"hashtags"` // target hashtags, lowercased, without '#'
	Token    string   `yaml:"token"`    // direct bot token; skips the secret store when set
}

type NodeBBConfig struct {
	URL        string `yaml:"url"`         // forum base URL (required)
	CategoryID string `yaml:"category_id"` // destination category id (required)
	BotUID     string `yaml:"bot_uid"`     // optional bot user id
	Token      string `yaml:"token"`       // direct API token; skips the secret store when set
}

type SecretsConfig struct {
	GCPProjectID            string `yaml:"gcp_project_id"`
	TelegramTokenSecretName string `yaml:"telegram_token_secret_name"`
	NodeBBTokenSecretName   string `yaml:"nodebb_token_secret_name"`
}

type TrackerConfig struct {
	Collection string `yaml:"collection"` // key prefix for processed-message records
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SyncConfig struct {
	Schedule   string `yaml:"schedule"`     // cron spec
	Timezone   string `yaml:"timezone"`     // TZ database name
	WindowDays int    `yaml:"window_days"`  // trailing intake window
	RunOnStart bool   `yaml:"run_on_start"` // run a sync immediately at startup
}

type ServerConfig struct {
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	WebhookSecret string        `yaml:"webhook_secret"` // shared secret for the Telegram webhook
}

// normalizeHashtags normalizes the target hashtag set the way qualification
// expects it: lowercased, trimmed, without a leading '#', empties dropped.
func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required")
	}
	if c.NodeBB.URL == "" {
		return errors.New("nodebb.url is required")
	}
	if c.NodeBB.CategoryID == "" {
		return errors.New("nodebb.category_id is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Sync.WindowDays <= 0 {
		return fmt.Errorf("sync.window_days must be positive, got %d", c.Sync.WindowDays)
	}
	return nil
}

// setDefaults sets default values for configuration fields.
func setDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Secrets.TelegramTokenSecretName == "" {
		cfg.Secrets.TelegramTokenSecretName = DefaultTelegramTokenSecretName
	}
	if cfg.Secrets.NodeBBTokenSecretName == "" {
		cfg.Secrets.NodeBBTokenSecretName = DefaultNodeBBTokenSecretName
	}
	if cfg.Tracker.Collection == "" {
		cfg.Tracker.Collection = DefaultTrackerCollection
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = DefaultSchedule
	}
	if cfg.Sync.Timezone == "" {
		cfg.Sync.Timezone = DefaultScheduleTimezone
	}
	if cfg.Sync.WindowDays == 0 {
		cfg.Sync.WindowDays = DefaultWindowDays
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = defaultReadTimeoutSeconds * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeoutSeconds * time.Second
	}
}

// overrideWithEnvVars overrides configuration with environment variables.
func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("TARGET_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("TARGET_HASHTAGS"); v != "" {
		cfg.Telegram.Hashtags = strings.Split(v, ",")
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("NODEBB_URL"); v != "" {
		cfg.NodeBB.URL = v
	}
	if v := os.Getenv("NODEBB_CATEGORY_ID"); v != "" {
		cfg.NodeBB.CategoryID = v
	}
	if v := os.Getenv("NODEBB_BOT_UID"); v != "" {
		cfg.NodeBB.BotUID = v
	}
	if v := os.Getenv("NODEBB_API_USER_TOKEN"); v != "" {
		cfg.NodeBB.Token = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN_SECRET_NAME"); v != "" {
		cfg.Secrets.TelegramTokenSecretName = v
	}
	if v := os.Getenv("NODEBB_API_USER_TOKEN_SECRET_NAME"); v != "" {
		cfg.Secrets.NodeBBTokenSecretName = v
	}
	if v := firstEnv("GCLOUD_PROJECT", "GCP_PROJECT"); v != "" {
		cfg.Secrets.GCPProjectID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRACKER_COLLECTION"); v != "" {
		cfg.Tracker.Collection = v
	}
	if v := os.Getenv("SCHEDULE_TIMEZONE"); v != "" {
		cfg.Sync.Timezone = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		applyRedisURL(&cfg.Redis, v)
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Server.WebhookSecret = v
	}
	if v := firstEnv("NODE_ENV", "APP_ENV"); v != "" {
		cfg.Production = strings.EqualFold(v, "production")
	}
}

// applyRedisURL accepts either a bare host:port or a full
// redis://[user:pass@]host:port[/db] URL.
func applyRedisURL(rc *RedisConfig, v string) {
	if !strings.Contains(v, "://") {
		rc.Addr = v
		return
	}
	opt, err := redis.ParseURL(v)
	if err != nil {
		return
	}
	rc.Addr = opt.Addr
	rc.Password = opt.Password
	rc.DB = opt.DB
}

// Load reads, defaults, env-overrides and validates the configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Environment-only deployments run without a config file.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	cfg.Telegram.Hashtags = normalizeHashtags(cfg.Telegram.Hashtags)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
