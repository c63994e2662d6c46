// Package config loads the boresync configuration.
//
// Settings come from (highest precedence first) environment variables
// prefixed BORESYNC_, a config file, and built-in defaults. The config
// file is optional; every setting has a usable default.
package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the resolved application configuration.
type Config struct {
	// Root is the directory holding the project trees.
	Root string `mapstructure:"root"`

	// DBPath is the SQLite database file.
	DBPath string `mapstructure:"db_path"`

	// LogFile receives rotated daemon logs; empty means stderr only.
	LogFile string `mapstructure:"log_file"`

	// DashboardAddr is the listen address of the WebSocket dashboard.
	DashboardAddr string `mapstructure:"dashboard_addr"`

	Watch WatchConfig `mapstructure:"watch"`
}

// WatchConfig tunes the background watcher.
type WatchConfig struct {
	// Debounce is how long to wait after a file change before
	// reconciling the affected project.
	Debounce time.Duration `mapstructure:"debounce"`

	// ResyncInterval is how often the full reconciliation runs.
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".boresync")
	return &Config{
		Root:          filepath.Join(base, "data"),
		DBPath:        filepath.Join(base, "boresync.db"),
		DashboardAddr: ":8080",
		Watch: WatchConfig{
			Debounce:       200 * time.Millisecond,
			ResyncInterval: 30 * time.Second,
		},
	}
}

// Load resolves the configuration. If file is non-empty it must exist
// and parse; otherwise boresync.yaml is searched for in the current
// directory and ~/.boresync, and silently skipped when absent.
func Load(file string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("root", defaults.Root)
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("dashboard_addr", defaults.DashboardAddr)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("watch.resync_interval", defaults.Watch.ResyncInterval)

	v.SetEnvPrefix("boresync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("boresync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".boresync"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Watch.Debounce <= 0 {
		return nil, fmt.Errorf("watch.debounce must be positive (got %v)", cfg.Watch.Debounce)
	}
	if cfg.Watch.ResyncInterval <= 0 {
		return nil, fmt.Errorf("watch.resync_interval must be positive (got %v)", cfg.Watch.ResyncInterval)
	}

	return &cfg, nil
}

// NewLogger builds the application logger with the given bracket prefix.
// With a log file configured, output goes to both stderr and a rotated
// file; otherwise stderr only.
func (c *Config) NewLogger(prefix string) *log.Logger {
	if c.LogFile == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}

	rotated := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	return log.New(io.MultiWriter(os.Stderr, rotated), prefix, log.LstdFlags)
}
