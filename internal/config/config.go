// ABOUTME: Health-ingest configuration loaded through viper.
// ABOUTME: JSON file under XDG_CONFIG_HOME, HEALTH_INGEST_* env overrides, and the storage factory.

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harperreed/health-ingest/internal/chunk"
	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/spool"
	"github.com/harperreed/health-ingest/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. HEALTH_INGEST_BACKEND.
const EnvPrefix = "HEALTH_INGEST"

// Config stores health-ingest configuration.
type Config struct {
	// Backend selects the store: "sqlite" (default) or "postgres".
	Backend string `mapstructure:"backend" json:"backend,omitempty"`

	// DataDir holds health.db for the sqlite backend. Supports ~ expansion.
	DataDir string `mapstructure:"data_dir" json:"data_dir,omitempty"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `mapstructure:"database_url" json:"database_url,omitempty"`

	// ParamCeiling overrides the store's bound parameter limit when non-zero.
	ParamCeiling int     `mapstructure:"param_ceiling" json:"param_ceiling,omitempty"`
	SafetyMargin float64 `mapstructure:"safety_margin" json:"safety_margin,omitempty"`

	IngestTimeout time.Duration `mapstructure:"ingest_timeout" json:"ingest_timeout,omitempty"`

	Retry RetryConfig `mapstructure:"retry" json:"retry"`
	HTTP  HTTPConfig  `mapstructure:"http" json:"http"`
	MQTT  MQTTConfig  `mapstructure:"mqtt" json:"mqtt"`
	Spool SpoolConfig `mapstructure:"spool" json:"spool"`
	Log   LogConfig   `mapstructure:"log" json:"log"`
}

type RetryConfig struct {
	Attempts       uint          `mapstructure:"attempts" json:"attempts,omitempty"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" json:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" json:"max_backoff,omitempty"`
}

type HTTPConfig struct {
	Addr         string `mapstructure:"addr" json:"addr,omitempty"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" json:"max_body_bytes,omitempty"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker" json:"broker,omitempty"`
	Topic    string `mapstructure:"topic" json:"topic,omitempty"`
	ClientID string `mapstructure:"client_id" json:"client_id,omitempty"`
	QoS      byte   `mapstructure:"qos" json:"qos,omitempty"`
}

// SpoolConfig locates the queue for MQTT messages that hit a storage fault.
type SpoolConfig struct {
	Dir      string        `mapstructure:"dir" json:"dir,omitempty"`
	Interval time.Duration `mapstructure:"interval" json:"interval,omitempty"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development" json:"development,omitempty"`
	Level       string `mapstructure:"level" json:"level,omitempty"`
}

func setDefaults(v *viper.Viper) {
	ic := ingest.DefaultConfig()
	v.SetDefault("backend", "sqlite")
	v.SetDefault("data_dir", "")
	v.SetDefault("database_url", "")
	v.SetDefault("param_ceiling", 0)
	v.SetDefault("safety_margin", chunk.DefaultSafetyMargin)
	v.SetDefault("ingest_timeout", ic.Timeout)
	v.SetDefault("retry.attempts", ic.Retry.Attempts)
	v.SetDefault("retry.initial_backoff", ic.Retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", ic.Retry.MaxBackoff)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", int64(50<<20))
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "health/export")
	v.SetDefault("mqtt.client_id", "health-ingest")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("spool.dir", "")
	v.SetDefault("spool.interval", spool.DefaultInterval)
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return "sqlite"
	}
	return strings.ToLower(c.Backend)
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetSpoolDir returns the spool directory, defaulting to spool/ under the data directory.
func (c *Config) GetSpoolDir() string {
	if c.Spool.Dir == "" {
		return filepath.Join(c.GetDataDir(), "spool")
	}
	return ExpandPath(c.Spool.Dir)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.GetBackend() {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("postgres backend requires database_url")
		}
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}
	if c.SafetyMargin <= 0 || c.SafetyMargin > 1 {
		return fmt.Errorf("safety_margin must be in (0, 1], got %v", c.SafetyMargin)
	}
	if c.ParamCeiling < 0 {
		return fmt.Errorf("param_ceiling must not be negative, got %d", c.ParamCeiling)
	}
	return nil
}

// OpenStorage opens the configured store.
func (c *Config) OpenStorage(ctx context.Context, opts ...storage.Option) (*storage.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts = append([]storage.Option{storage.WithSafetyMargin(c.SafetyMargin)}, opts...)
	if c.ParamCeiling > 0 {
		opts = append(opts, storage.WithParamCeiling(c.ParamCeiling))
	}

	switch c.GetBackend() {
	case "postgres":
		return storage.OpenPostgres(ctx, c.DatabaseURL, opts...)
	default:
		return storage.Open(filepath.Join(c.GetDataDir(), "health.db"), opts...)
	}
}

// IngestConfig returns the coordinator settings.
func (c *Config) IngestConfig() ingest.Config {
	return ingest.Config{
		Timeout: c.IngestTimeout,
		Retry: ingest.RetryPolicy{
			Attempts:       c.Retry.Attempts,
			InitialBackoff: c.Retry.InitialBackoff,
			MaxBackoff:     c.Retry.MaxBackoff,
		},
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "health-ingest", "config.json")
}

// Load reads the config file if present, then applies environment
// overrides on top of the defaults.
func Load() (*Config, error) {
	return LoadFile(GetConfigPath())
}

// LoadFile is Load with an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
