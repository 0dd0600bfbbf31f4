package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no key was configured.
var ErrMissingAPIKey = errors.New("api key is required\nHint: pass --api-key or set MARATHON_CLOUD_API_KEY")

// Formats lists accepted values of the format option.
var Formats = []string{"auto", "standard", "plain", "json", "yaml"}

// Validate checks if the configuration is valid. The API key is checked
// separately so commands like version work without one.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q: expected an absolute URL", c.BaseURL)
	}
	if c.APIVersion != "v1" && c.APIVersion != "v2" {
		return fmt.Errorf("invalid api_version %q: expected v1 or v2", c.APIVersion)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxWait < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("max_wait and retry_delay must not be negative")
	}
	if c.DownloadAttempts < 1 {
		return fmt.Errorf("download_attempts must be at least 1, got %d", c.DownloadAttempts)
	}
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("invalid format %q: expected one of %v", c.Format, Formats)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q: expected text or json", c.LogFormat)
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when no key is configured.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
