// Package config loads the gateway's own settings (listeners, definition
// source, async tuning) from a file and the environment. The definitions the
// gateway serves are not configured here; they come from the registry source
// this package points at.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
	BaseURL    string `mapstructure:"baseURL"`
}

// DefinitionsConfig selects where database/query/endpoint definitions are
// loaded from: YAML files on disk or the relational store.
type DefinitionsConfig struct {
	Source     string   `mapstructure:"source"` // file or postgres
	Paths      []string `mapstructure:"paths"`
	ConnString string   `mapstructure:"connString"`
	Schema     string   `mapstructure:"schema"`
	Watch      bool     `mapstructure:"watch"`
}

type AsyncConfig struct {
	Workers    int64         `mapstructure:"workers"`
	JobTimeout time.Duration `mapstructure:"jobTimeout"`
	JobTTL     time.Duration `mapstructure:"jobTTL"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listenAddr"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
	Async       AsyncConfig       `mapstructure:"async"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("server.baseURL", "")
	v.SetDefault("definitions.source", "file")
	v.SetDefault("definitions.paths", []string{"definitions"})
	v.SetDefault("definitions.schema", "sqlgate")
	v.SetDefault("definitions.watch", false)
	v.SetDefault("async.workers", 8)
	v.SetDefault("async.jobTimeout", time.Minute)
	v.SetDefault("async.jobTTL", 15*time.Minute)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listenAddr", ":9100")
}

// Load reads cfgFile (or the default search path when empty), layers
// SQLGATE_* environment variables on top, and unmarshals the result.
// Command-line flags passed in flags take precedence over both when set;
// unset flags never shadow file or default values.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("sqlgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sqlgate")
	}

	v.SetEnvPrefix("SQLGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file on the default search path is fine; an explicitly
		// named file that cannot be read is not.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Definitions.Source {
	case "file":
		if len(c.Definitions.Paths) == 0 {
			return fmt.Errorf("definitions.paths must name at least one file or directory")
		}
	case "postgres":
		if c.Definitions.ConnString == "" {
			return fmt.Errorf("definitions.connString is required for the postgres source")
		}
	default:
		return fmt.Errorf("definitions.source must be file or postgres, got %q", c.Definitions.Source)
	}
	return nil
}
