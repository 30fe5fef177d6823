// Package config loads client configuration from defaults, a YAML file,
// environment variables and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/fruitsalade/filebrowser/pkg/policy"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "FILEBROWSER_"

// Defaults.
const (
	DefaultBaseURL           = "http://localhost:3000"
	DefaultTimeout           = 30 * time.Second
	DefaultRetryAttempts     = 1
	DefaultUploadConcurrency = 4
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
)

// Config holds all client configuration.
type Config struct {
	// Store
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	RetryAttempts int           `koanf:"retry_attempts"`

	// Upload policy
	MaxFileSize       int64    `koanf:"max_file_size"`
	AllowedTypes      []string `koanf:"allowed_types"`
	UploadConcurrency int      `koanf:"upload_concurrency"`

	// Auth
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	Token     string `koanf:"token"`
	TokenFile string `koanf:"token_file"`

	// Logging and metrics
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`

	// FileUsed is the config file that was read, if any.
	FileUsed string `koanf:"-"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"base_url":           DefaultBaseURL,
		"timeout":            DefaultTimeout,
		"retry_attempts":     DefaultRetryAttempts,
		"max_file_size":      policy.DefaultMaxFileSize,
		"allowed_types":      policy.DefaultAllowedTypes,
		"upload_concurrency": DefaultUploadConcurrency,
		"log_level":          DefaultLogLevel,
		"log_format":         DefaultLogFormat,
	}
}

// DefaultFilePath returns the per-user config file location.
func DefaultFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "filebrowser", "config.yaml")
}

// findConfigFile returns the file to load: the explicit path, then
// filebrowser.yaml or filebrowser.yml in the working directory, then the
// per-user file. Returns "" if none exists.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := []string{"filebrowser.yaml", "filebrowser.yml"}
	if p := DefaultFilePath(); p != "" {
		candidates = append(candidates, p)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load reads configuration. Precedence (highest to lowest): flags that were
// explicitly set > FILEBROWSER_* env vars > config file > defaults.
// Flag names are kebab-case versions of the keys (--base-url -> base_url).
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// FILEBROWSER_BASE_URL -> base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = used
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.AllowedTypes = splitList(cfg.AllowedTypes)
	return &cfg, nil
}

// splitList expands comma-separated items, as given by an env var, and
// drops blanks.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}
	if len(c.AllowedTypes) == 0 {
		return fmt.Errorf("allowed_types must not be empty")
	}
	if c.UploadConcurrency < 1 {
		return fmt.Errorf("upload_concurrency must be at least 1")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}
