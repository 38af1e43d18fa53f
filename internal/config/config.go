// Package config loads the herdctl configuration. Values come from the YAML config
// file, then from a .env file in the working directory, then from HERD_* variables
// in the environment; each layer overrides the one before it.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/herdbook/herdbook/internal/common/httpclient"
	"github.com/herdbook/herdbook/internal/session"
)

const (
	// DefaultConfigFile is the config file name inside the herdctl config directory.
	DefaultConfigFile = "config.yaml"
	DefaultDotEnvFile = ".env"
	DefaultStaleTime  = 30 * time.Second
	DefaultLogLevel   = "warn"
	appDir            = "herdctl"
)

// Config is the CLI configuration.
type Config struct {
	APIURL    string        `yaml:"api_url" env:"HERD_API_URL, overwrite"`
	LoginPath string        `yaml:"login_path,omitempty" env:"HERD_LOGIN_PATH, overwrite"`
	StaleTime time.Duration `yaml:"stale_time" env:"HERD_STALE_TIME, overwrite"`
	LogLevel  string        `yaml:"log_level,omitempty" env:"HERD_LOG_LEVEL, overwrite"`
}

// Default returns the configuration used for keys that no layer sets.
func Default() Config {
	return Config{
		LoginPath: httpclient.DefaultLoginPath,
		StaleTime: DefaultStaleTime,
		LogLevel:  DefaultLogLevel,
	}
}

// DefaultPath returns the config file path under the user's config directory,
// e.g. ~/.config/herdctl/config.yaml on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, appDir, DefaultConfigFile), nil
}

// SessionPath is where the session token is kept for the config file at path.
func SessionPath(path string) string {
	return filepath.Join(filepath.Dir(path), session.DefaultSessionFile)
}

// Load reads the config file at path, which may be missing, and applies .env and
// environment overrides. The result is not validated.
func Load(ctx context.Context, path string) (Config, error) {
	return load(ctx, path, DefaultDotEnvFile, nil)
}

// ReadFile reads only the config file at path over the defaults. A missing file
// yields the defaults.
func ReadFile(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("unable to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse config file: %w", err)
	}
	return cfg, nil
}

func load(ctx context.Context, path, dotenvPath string, lookup envconfig.Lookuper) (Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if lookup == nil {
		lookup = envconfig.OsLookuper()
	}
	if dotenvPath != "" {
		vars, err := godotenv.Read(dotenvPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("unable to read %s: %w", dotenvPath, err)
		}
		if len(vars) > 0 {
			lookup = envconfig.MultiLookuper(lookup, envconfig.MapLookuper(vars))
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup,
	}); err != nil {
		return cfg, fmt.Errorf("invalid environment configuration: %w", err)
	}

	cfg.APIURL = NormalizeURL(cfg.APIURL)
	return cfg, nil
}

// Validate checks that the configuration can be used to reach the API.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required; set it with \"herdctl config set --api-url URL\"")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("api_url %q is not a valid URL", c.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api_url %q must start with http:// or https://", c.APIURL)
	}
	if c.StaleTime < 0 {
		return errors.New("stale_time cannot be negative")
	}
	if c.LoginPath != "" && !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("login_path %q must start with /", c.LoginPath)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q is not a valid level", c.LogLevel)
	}
	return nil
}

// Write saves the configuration to path, creating its directory.
func (c *Config) Write(path string) error {
	if path == "" {
		return errors.New("file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("unable to generate configuration: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

// NormalizeURL trims trailing slashes and adds https:// when no scheme is given.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = strings.TrimRight(s, "/")
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return s
}
