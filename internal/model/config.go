package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DispatcherConfig controls the due-notification poll loop.
type DispatcherConfig struct {
	// PollIntervalSec is how often (in seconds) pending rows are polled.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// SchedulerConfig holds reminder computation settings.
type SchedulerConfig struct {
	// DefaultTimezone is used when neither the user nor their
	// preferences name a zone.
	DefaultTimezone string `mapstructure:"default_timezone" yaml:"default_timezone"`

	// MorningHour is the local hour of "morning-of" reminders.
	MorningHour int `mapstructure:"morning_hour" yaml:"morning_hour"`
}

// RedisConfig configures the live-socket publisher.
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	URL           string `mapstructure:"url" yaml:"url"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
}

// PushConfig configures the mobile push gateway.
type PushConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// CredentialKey names the keyring entry holding the gateway token.
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`
}

// MetricsConfig configures the Prometheus endpoint served by "serve".
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" yaml:"dispatcher"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Push       PushConfig       `mapstructure:"push" yaml:"push"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/journalmate/notify.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "notify.yaml")
	}
	return filepath.Join(home, ".config", "journalmate", "notify.yaml")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "journalmate.db")
	}
	return filepath.Join(home, ".local", "share", "journalmate", "notify.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database:   DatabaseConfig{Path: defaultDatabasePath()},
		Dispatcher: DispatcherConfig{PollIntervalSec: 300},
		Scheduler: SchedulerConfig{
			DefaultTimezone: "UTC",
			MorningHour:     8,
		},
		Redis: RedisConfig{
			URL:           "redis://localhost:6379/0",
			ChannelPrefix: "user-notifications",
		},
		Push: PushConfig{
			CredentialKey: "push-gateway-token",
		},
		Metrics: MetricsConfig{Addr: ":9102"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with JOURNALMATE_ override file values.
// If the file does not exist, defaults (plus environment) are returned.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JOURNALMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv can see every key during Unmarshal.
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("dispatcher.poll_interval_sec", def.Dispatcher.PollIntervalSec)
	v.SetDefault("scheduler.default_timezone", def.Scheduler.DefaultTimezone)
	v.SetDefault("scheduler.morning_hour", def.Scheduler.MorningHour)
	v.SetDefault("redis.enabled", def.Redis.Enabled)
	v.SetDefault("redis.url", def.Redis.URL)
	v.SetDefault("redis.channel_prefix", def.Redis.ChannelPrefix)
	v.SetDefault("push.enabled", def.Push.Enabled)
	v.SetDefault("push.base_url", def.Push.BaseURL)
	v.SetDefault("push.credential_key", def.Push.CredentialKey)
	v.SetDefault("metrics.addr", def.Metrics.Addr)
	v.SetDefault("log.level", def.Log.Level)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Dispatcher.PollIntervalSec <= 0 {
		cfg.Dispatcher.PollIntervalSec = def.Dispatcher.PollIntervalSec
	}
	if cfg.Scheduler.MorningHour < 0 || cfg.Scheduler.MorningHour > 23 {
		cfg.Scheduler.MorningHour = def.Scheduler.MorningHour
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("dispatcher", cfg.Dispatcher)
	v.Set("scheduler", cfg.Scheduler)
	v.Set("redis", cfg.Redis)
	v.Set("push", cfg.Push)
	v.Set("metrics", cfg.Metrics)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
