package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig defines listener ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines the aggregate and backup storage backends
type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Bolt   BoltConfig   `mapstructure:"bolt"`
	Backup BackupConfig `mapstructure:"backup"`
}

// RedisConfig defines the Redis aggregate store connection
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// BoltConfig defines the bbolt aggregate store (storage.type = bolt)
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// BackupConfig defines the local backup store
type BackupConfig struct {
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
}

// TrackingConfig defines session tracking behaviour
type TrackingConfig struct {
	RetentionDays      int    `mapstructure:"retention_days"`
	CheckpointInterval string `mapstructure:"checkpoint_interval"`
	HostnameCacheSize  int    `mapstructure:"hostname_cache_size"`
}

// AlertsConfig defines the daily limit alerting
type AlertsConfig struct {
	Interval          string `mapstructure:"interval"`
	ScheduleMinutes   int    `mapstructure:"schedule_minutes"`
	DefaultDailyLimit string `mapstructure:"default_daily_limit"`
	DefaultEnabled    bool   `mapstructure:"default_enabled"`
	Notifier          string `mapstructure:"notifier"`
	AppName           string `mapstructure:"app_name"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch loads configuration and invokes onChange with the re-read
// configuration whenever the file is modified. Invalid edits are reported to
// onError and the previous configuration stays in effect.
func Watch(configPath string, onChange func(*Config), onError func(error)) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		updated, err := decode(v)
		if err != nil {
			onError(fmt.Errorf("reload %s: %w", e.Name, err))
			return
		}
		onChange(updated)
	})
	v.WatchConfig()

	return cfg, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("SITETIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration produced by defaults alone.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Keys returns every configuration key that has a default, which is every
// key the application reads.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 7411)
	v.SetDefault("server.metrics_port", 9411)

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "sitetime")
	v.SetDefault("storage.bolt.path", "/var/lib/sitetime/aggregate.bolt")
	v.SetDefault("storage.backup.path", "/var/lib/sitetime/backup.bolt")
	v.SetDefault("storage.backup.key", "siteTimeTrackerBackup")

	// Tracking defaults
	v.SetDefault("tracking.retention_days", 7)
	v.SetDefault("tracking.checkpoint_interval", "30s")
	v.SetDefault("tracking.hostname_cache_size", 512)

	// Alert defaults
	v.SetDefault("alerts.interval", "30s")
	v.SetDefault("alerts.schedule_minutes", 1)
	v.SetDefault("alerts.default_daily_limit", "1h")
	v.SetDefault("alerts.default_enabled", true)
	v.SetDefault("alerts.notifier", "log")
	v.SetDefault("alerts.app_name", "Site Time Tracker")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "redis"
	case "redis", "bolt":
	default:
		return fmt.Errorf("unsupported storage type: %s (must be redis or bolt)", cfg.Storage.Type)
	}

	if cfg.Storage.Type == "bolt" && cfg.Storage.Bolt.Path == "" {
		return fmt.Errorf("storage.bolt.path is required for bolt storage")
	}
	if cfg.Storage.Backup.Path == "" {
		return fmt.Errorf("storage.backup.path is required")
	}
	if cfg.Storage.Backup.Key == "" {
		return fmt.Errorf("storage.backup.key is required")
	}

	if cfg.Tracking.RetentionDays < 1 {
		return fmt.Errorf("tracking.retention_days must be at least 1, got %d", cfg.Tracking.RetentionDays)
	}
	if _, err := time.ParseDuration(cfg.Tracking.CheckpointInterval); err != nil {
		return fmt.Errorf("invalid tracking.checkpoint_interval: %w", err)
	}

	if d, err := time.ParseDuration(cfg.Alerts.Interval); err != nil || d <= 0 {
		return fmt.Errorf("invalid alerts.interval: %q", cfg.Alerts.Interval)
	}
	if cfg.Alerts.ScheduleMinutes < 1 {
		return fmt.Errorf("alerts.schedule_minutes must be a whole number of minutes >= 1, got %d", cfg.Alerts.ScheduleMinutes)
	}
	if d, err := time.ParseDuration(cfg.Alerts.DefaultDailyLimit); err != nil || d < 0 {
		return fmt.Errorf("invalid alerts.default_daily_limit: %q", cfg.Alerts.DefaultDailyLimit)
	}
	switch cfg.Alerts.Notifier {
	case "desktop", "log":
	default:
		return fmt.Errorf("unsupported alerts.notifier: %s (must be desktop or log)", cfg.Alerts.Notifier)
	}

	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
