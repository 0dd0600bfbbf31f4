// Package config provides configuration management for the marathon-cloud CLI.
//
// Values are layered from defaults, an optional YAML file, MARATHON_CLOUD_
// environment variables and explicitly set command-line flags, in that
// order of increasing precedence.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	APIKey           string        `koanf:"api_key"`
	BaseURL          string        `koanf:"base_url"`
	APIVersion       string        `koanf:"api_version"`
	Concurrency      int           `koanf:"concurrency"`
	PollInterval     time.Duration `koanf:"poll_interval"`
	MaxWait          time.Duration `koanf:"max_wait"`
	DownloadAttempts int           `koanf:"download_attempts"`
	RetryDelay       time.Duration `koanf:"retry_delay"`
	Format           string        `koanf:"format"`
	NoProgressBars   bool          `koanf:"no_progress_bars"`
	Verbose          int           `koanf:"verbose"`
	LogFormat        string        `koanf:"log_format"`
}

// Default configuration values.
const (
	DefaultBaseURL          = "https://cloud.marathonlabs.io/api"
	DefaultAPIVersion       = "v2"
	DefaultPollInterval     = 5 * time.Second
	DefaultDownloadAttempts = 3
	DefaultFormat           = "auto" // TTY=standard, non-TTY=plain
	DefaultLogFormat        = "text"
	EnvPrefix               = "MARATHON_CLOUD_"
)

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		APIVersion:       DefaultAPIVersion,
		PollInterval:     DefaultPollInterval,
		DownloadAttempts: DefaultDownloadAttempts,
		Format:           DefaultFormat,
		LogFormat:        DefaultLogFormat,
	}
}
