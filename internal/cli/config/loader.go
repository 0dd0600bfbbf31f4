package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type (
	loggerKey struct{}
	configKey struct{}
)

var (
	k              = koanf.New(".")
	configFileUsed string
)

// configFileNames are looked up in the working directory, first match wins.
var configFileNames = []string{"marathon-cloud.yaml", "marathon-cloud.yml"}

// renamedFlags maps flags whose config key is not the snake-cased flag name.
var renamedFlags = map[string]string{
	"attempts": "download_attempts",
}

// ResetConfig discards loaded state. Tests call it between loads.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// LoadConfig layers defaults, the config file, MARATHON_CLOUD_* variables
// and changed flags, later layers overriding earlier ones.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	configFileUsed = locateConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFileUsed, err)
		}
	}

	// MARATHON_CLOUD_POLL_INTERVAL -> poll_interval
	envKey := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg, err := decode()
	if err != nil {
		return nil, err
	}
	cfg.APIKey = expandEnvVars(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultValues() map[string]any {
	def := Default()
	return map[string]any{
		"base_url":          def.BaseURL,
		"api_version":       def.APIVersion,
		"concurrency":       0,
		"poll_interval":     def.PollInterval.String(),
		"max_wait":          "0s",
		"download_attempts": def.DownloadAttempts,
		"retry_delay":       "0s",
		"format":            def.Format,
		"no_progress_bars":  false,
		"verbose":           0,
		"log_format":        def.LogFormat,
	}
}

func locateConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// flagKey keeps flag defaults out of the config so they do not shadow the
// file and environment layers.
func flagKey(flags *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if !f.Changed {
			return "", nil
		}
		key, ok := renamedFlags[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		return key, posflag.FlagVal(flags, f)
	}
}

func decode() (*Config, error) {
	cfg := &Config{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// GetConfigFileUsed returns the config file read by the last load, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key under which the root command stores
// its *slog.Logger.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger returns the logger stored under LoggerKey, or a discard logger.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the config stored by WithConfig, or defaults.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return Default()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars substitutes ${NAME} references. Unset names are left as is.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
			return v
		}
		return ref
	})
}
