package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the posctl configuration, merged from file, POS_* environment
// variables and flags.
type Config struct {
	Cloud struct {
		URL            string `mapstructure:"url"`
		Token          string `mapstructure:"token"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"cloud"`
	Gateway struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"gateway"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	Restaurant struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"restaurant"`
	User struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"user"`
	Sync struct {
		IntervalSeconds int `mapstructure:"interval_seconds"`
	} `mapstructure:"sync"`
	Output   string `mapstructure:"output"`
	LogLevel string `mapstructure:"log_level"`
}

// CloudTimeout is the per-request cloud timeout.
func (c *Config) CloudTimeout() time.Duration {
	return time.Duration(c.Cloud.TimeoutSeconds) * time.Second
}

// SyncInterval is the connectivity probe period of sync --watch.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cloud.timeout_seconds", 15)
	v.SetDefault("db.dsn", "./.pos-data/orders.db")
	v.SetDefault("sync.interval_seconds", 15)
	v.SetDefault("output", "text")
	v.SetDefault("log_level", "warn")
}

// LoadConfig reads cfgFile, or posctl.yaml from the working directory and
// $HOME/.posctl when cfgFile is empty. A missing default file is not an error.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("posctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.posctl")
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Cloud.TimeoutSeconds <= 0 {
		cfg.Cloud.TimeoutSeconds = 15
	}
	cfg.Cloud.URL = strings.TrimRight(strings.TrimSpace(cfg.Cloud.URL), "/")
	cfg.Gateway.URL = strings.TrimRight(strings.TrimSpace(cfg.Gateway.URL), "/")
	return &cfg, nil
}
