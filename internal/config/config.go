// Package config loads drivesync configuration from file, environment,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tunables for the sync daemon and CLI.
type Config struct {
	// Engine settings control the rclone subprocess layer.
	Engine EngineConfig `mapstructure:"engine"`

	// Monitor settings control the cloud polling loop.
	Monitor MonitorConfig `mapstructure:"monitor"`

	// Registry settings control the job store.
	Registry RegistryConfig `mapstructure:"registry"`

	// Watcher settings control the local filesystem watcher.
	Watcher WatcherConfig `mapstructure:"watcher"`

	// Sync settings control job defaults.
	Sync SyncConfig `mapstructure:"sync"`

	// Logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
}

type EngineConfig struct {
	Binary    string `mapstructure:"binary"`
	Remote    string `mapstructure:"remote"`
	PortBase  int    `mapstructure:"port_base"`
	PortCount int    `mapstructure:"port_count"`
}

type MonitorConfig struct {
	ScanInterval   time.Duration `mapstructure:"scan_interval"`
	MinJobInterval time.Duration `mapstructure:"min_job_interval"`
	BatchThreshold int           `mapstructure:"batch_threshold"`
}

type RegistryConfig struct {
	ExportDebounce time.Duration `mapstructure:"export_debounce"`
}

type WatcherConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type SyncConfig struct {
	DefaultRoot string `mapstructure:"default_root"`
}

type LoggingConfig struct {
	Debug bool   `mapstructure:"debug"`
	Dir   string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	cache, _ := os.UserCacheDir()
	return &Config{
		Engine: EngineConfig{
			Binary:    "rclone",
			Remote:    "drive",
			PortBase:  5572,
			PortCount: 29,
		},
		Monitor: MonitorConfig{
			ScanInterval:   60 * time.Second,
			MinJobInterval: 30 * time.Second,
			BatchThreshold: 5,
		},
		Registry: RegistryConfig{
			ExportDebounce: 30 * time.Second,
		},
		Watcher: WatcherConfig{
			Debounce: 2 * time.Second,
		},
		Sync: SyncConfig{
			DefaultRoot: filepath.Join(home, "DriveSync"),
		},
		Logging: LoggingConfig{
			Dir: filepath.Join(cache, "drivesync"),
		},
	}
}

// ConfigDir returns the directory holding drivesync state files
// (registry, device identity, config file).
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(base, "drivesync"), nil
}

// Load reads configuration from the given file path (optional), the
// DRIVESYNC_* environment, and defaults. An empty path looks for
// config.yaml in the drivesync config directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DRIVESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		dir, err := ConfigDir()
		if err == nil {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(dir)
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("reading config: %w", err)
				}
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.Binary == "" {
		return fmt.Errorf("engine.binary must not be empty")
	}
	if c.Engine.Remote == "" {
		return fmt.Errorf("engine.remote must not be empty")
	}
	if c.Engine.PortCount <= 0 {
		return fmt.Errorf("engine.port_count must be positive, got %d", c.Engine.PortCount)
	}
	if c.Monitor.ScanInterval <= 0 {
		return fmt.Errorf("monitor.scan_interval must be positive, got %s", c.Monitor.ScanInterval)
	}
	if c.Monitor.MinJobInterval <= 0 {
		return fmt.Errorf("monitor.min_job_interval must be positive, got %s", c.Monitor.MinJobInterval)
	}
	if c.Monitor.BatchThreshold < 1 {
		return fmt.Errorf("monitor.batch_threshold must be at least 1, got %d", c.Monitor.BatchThreshold)
	}
	if c.Registry.ExportDebounce < 0 {
		return fmt.Errorf("registry.export_debounce must not be negative, got %s", c.Registry.ExportDebounce)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("engine.binary", d.Engine.Binary)
	v.SetDefault("engine.remote", d.Engine.Remote)
	v.SetDefault("engine.port_base", d.Engine.PortBase)
	v.SetDefault("engine.port_count", d.Engine.PortCount)
	v.SetDefault("monitor.scan_interval", d.Monitor.ScanInterval)
	v.SetDefault("monitor.min_job_interval", d.Monitor.MinJobInterval)
	v.SetDefault("monitor.batch_threshold", d.Monitor.BatchThreshold)
	v.SetDefault("registry.export_debounce", d.Registry.ExportDebounce)
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("sync.default_root", d.Sync.DefaultRoot)
	v.SetDefault("logging.debug", d.Logging.Debug)
	v.SetDefault("logging.dir", d.Logging.Dir)
}
