package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Cloud      CloudConfig      `yaml:"cloud"`
	Printer    PrinterConfig    `yaml:"printer"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	PrintQueue PrintQueueConfig `yaml:"print_queue"`
	Sync       SyncConfig       `yaml:"sync"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the local HTTP surface configuration.
type ServerConfig struct {
	Port                  int     `yaml:"port"`
	RateLimitPerSec       float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst        int     `yaml:"rate_limit_burst"`
	DiscoveryCacheSeconds int     `yaml:"discovery_cache_seconds"`
}

// StorageConfig locates the private data directory of the gateway.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ConfigFile is the JSON file holding pairing credentials and printers.
func (s StorageConfig) ConfigFile() string {
	return filepath.Join(s.DataDir, "config.json")
}

// OutboxFile is the JSON-Lines event outbox.
func (s StorageConfig) OutboxFile() string {
	return filepath.Join(s.DataDir, "outbox.jsonl")
}

// JobsDSN is the SQLite database backing the print-job queue.
func (s StorageConfig) JobsDSN() string {
	return filepath.Join(s.DataDir, "jobs.db")
}

// CloudConfig holds the cloud endpoint settings.
type CloudConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// PrinterConfig holds the raw TCP transport settings.
type PrinterConfig struct {
	DefaultPort   int           `yaml:"default_port"`
	SendTimeoutMs int           `yaml:"send_timeout_ms"`
	SendTimeout   time.Duration `yaml:"-"`
}

// DiscoveryConfig holds the defaults for LAN printer discovery.
type DiscoveryConfig struct {
	Port        int `yaml:"port"`
	TimeoutMs   int `yaml:"timeout_ms"`
	Concurrency int `yaml:"concurrency"`
}

// PrintQueueConfig configures the durable print-job worker pool.
type PrintQueueConfig struct {
	Enabled             bool `yaml:"enabled"`
	Workers             int  `yaml:"workers"`
	MaxAttempts         int  `yaml:"max_attempts"`
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
	RetentionHours      int  `yaml:"retention_hours"`
}

// SyncConfig configures the outbox push.
type SyncConfig struct {
	PushIntervalSeconds int `yaml:"push_interval_seconds"`
	BatchSize           int `yaml:"batch_size"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigureZerolog applies the level and output format to the global logger.
func (c *LogConfig) ConfigureZerolog() {
	level := zerolog.InfoLevel
	switch strings.ToLower(c.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	if strings.ToLower(c.Format) != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}
}

// Load reads the configuration from the given path. A missing file is not an
// error: defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn().Str("config_path", path).Msg("config file not found, using defaults")
		case err != nil:
			return nil, err
		default:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("EDGE_CLOUD_BASE_URL")); v != "" {
		c.Cloud.BaseURL = v
	}
	if v := strings.TrimSpace(getenv("EDGE_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			c.Server.Port = port
		} else {
			log.Warn().Str("EDGE_PORT", v).Msg("ignoring invalid port override")
		}
	}
	if v := strings.TrimSpace(getenv("EDGE_DATA_DIR")); v != "" {
		c.Storage.DataDir = v
	}
	if v := strings.TrimSpace(getenv("EDGE_LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8787
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 20
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 10
	}
	if c.Server.DiscoveryCacheSeconds < 0 {
		c.Server.DiscoveryCacheSeconds = 0
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./.edge-data"
	}

	c.Cloud.BaseURL = strings.TrimRight(strings.TrimSpace(c.Cloud.BaseURL), "/")
	if c.Cloud.TimeoutSeconds <= 0 {
		c.Cloud.TimeoutSeconds = 15
	}
	c.Cloud.Timeout = time.Duration(c.Cloud.TimeoutSeconds) * time.Second

	if c.Printer.DefaultPort <= 0 {
		c.Printer.DefaultPort = 9100
	}
	if c.Printer.SendTimeoutMs <= 0 {
		c.Printer.SendTimeoutMs = 4000
	}
	c.Printer.SendTimeout = time.Duration(c.Printer.SendTimeoutMs) * time.Millisecond

	if c.Discovery.Port <= 0 {
		c.Discovery.Port = 9100
	}
	if c.Discovery.TimeoutMs <= 0 {
		c.Discovery.TimeoutMs = 300
	}
	if c.Discovery.Concurrency <= 0 {
		c.Discovery.Concurrency = 64
	}

	if c.PrintQueue.Workers <= 0 {
		c.PrintQueue.Workers = 2
	}
	if c.PrintQueue.MaxAttempts <= 0 {
		c.PrintQueue.MaxAttempts = 5
	}
	if c.PrintQueue.PollIntervalSeconds <= 0 {
		c.PrintQueue.PollIntervalSeconds = 2
	}
	if c.PrintQueue.RetentionHours <= 0 {
		c.PrintQueue.RetentionHours = 72
	}

	if c.Sync.BatchSize <= 0 || c.Sync.BatchSize > 500 {
		c.Sync.BatchSize = 500
	}
	if c.Sync.PushIntervalSeconds < 0 {
		c.Sync.PushIntervalSeconds = 0
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}
