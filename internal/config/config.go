// Package config loads and validates the registry configuration from YAML,
// with environment expansion and .env support.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
)

// Config represents the application configuration
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Queue     QueueConfig     `yaml:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig configures the catalog database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig configures the rebuild-job queue connection.
type QueueConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// SchedulerConfig configures the periodic staleness scan.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// ScanInterval is how often the staleness scan runs.
	ScanInterval time.Duration `yaml:"scan_interval,omitempty"`
	// Cutoff is the nightly toolchain date in YYYY-MM-DD form; releases last
	// documented with an older nightly are considered stale.
	Cutoff string `yaml:"cutoff"`
	// BatchLimit bounds how many releases one scan may queue.
	BatchLimit int `yaml:"batch_limit,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// CutoffDate parses the configured cutoff nightly date.
func (s SchedulerConfig) CutoffDate() (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s.Cutoff, time.UTC)
	if err != nil {
		return time.Time{}, errors.WrapError(err, errors.CategoryConfig,
			fmt.Sprintf("invalid cutoff date %q, want YYYY-MM-DD", s.Cutoff)).Build()
	}
	return t, nil
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// .env files supplement the environment but never override it.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath)).Build()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").Build()
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Build()
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = "docregistry.db"
	}
	if c.Queue.Enabled {
		if c.Queue.Stream == "" {
			c.Queue.Stream = "REBUILD_JOBS"
		}
		if c.Queue.Subject == "" {
			c.Queue.Subject = "rebuild.jobs"
		}
	}
	if c.Scheduler.ScanInterval == 0 {
		c.Scheduler.ScanInterval = time.Hour
	}
	if c.Scheduler.BatchLimit == 0 {
		c.Scheduler.BatchLimit = 100
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for errors that would only surface later
// at runtime.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return errors.ConfigError("store path cannot be empty").Build()
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		return errors.ConfigError("queue URL is required when the queue is enabled").Build()
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.Cutoff == "" {
			return errors.ConfigError("scheduler cutoff date is required when the scheduler is enabled").Build()
		}
		if _, err := c.Scheduler.CutoffDate(); err != nil {
			return err
		}
		if c.Scheduler.ScanInterval < time.Minute {
			return errors.ConfigError("scheduler scan interval must be at least one minute").Build()
		}
		if c.Scheduler.BatchLimit <= 0 {
			return errors.ConfigError("scheduler batch limit must be positive").Build()
		}
		if !c.Queue.Enabled {
			return errors.ConfigError("scheduler requires the queue to be enabled").Build()
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown log level: %s", c.Logging.Level)).Build()
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown log format: %s", c.Logging.Format)).Build()
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}

	exampleConfig := Config{
		Store: StoreConfig{Path: "docregistry.db"},
		Queue: QueueConfig{
			Enabled: true,
			URL:     "nats://localhost:4222",
			Stream:  "REBUILD_JOBS",
			Subject: "rebuild.jobs",
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			ScanInterval: time.Hour,
			Cutoff:       catalog.FormatNightlyDate(time.Now().UTC().AddDate(0, -6, 0)),
			BatchLimit:   100,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to marshal config").Build()
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to write config file").Build()
	}
	return nil
}
