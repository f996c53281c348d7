package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides. Nested keys
// use a double underscore: OPSDASH_SESSION__TTL_HOURS -> session.ttl_hours.
const EnvPrefix = "OPSDASH_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (OPSDASH_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error; variables that are already
// set are left untouched.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("accessing env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen is required")
	}
	if err := validateHTTPURL("backend_url", c.BackendURL, true); err != nil {
		return err
	}
	if err := validateHTTPURL("alt_backend_url", c.AltBackendURL, false); err != nil {
		return err
	}
	if err := validateHTTPURL("grafana_url", c.GrafanaURL, true); err != nil {
		return err
	}
	if err := validateHTTPURL("netron_url", c.NetronURL, false); err != nil {
		return err
	}
	if err := validateHTTPURL("agents.install_base", c.Agents.InstallBase, false); err != nil {
		return err
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Session.CookieName == "" {
		return errors.New("session.cookie_name is required")
	}
	if c.Session.TTLHours <= 0 {
		return errors.New("session.ttl_hours must be positive")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return errors.New("request_timeout_seconds must be positive")
	}
	if c.RouteTimeoutSeconds <= 0 {
		return errors.New("route_timeout_seconds must be positive")
	}
	if c.DNSCacheTTLMinutes < 0 {
		return errors.New("dns_cache_ttl_minutes must be non-negative")
	}
	if len(c.Agents.PlaceholderVersions) == 0 {
		return errors.New("agents.placeholder_versions must not be empty")
	}
	if c.Agents.MaxUploadMB <= 0 {
		return errors.New("agents.max_upload_mb must be positive")
	}
	if c.Logs.FollowIntervalSeconds <= 0 {
		return errors.New("logs.follow_interval_seconds must be positive")
	}
	return nil
}

func validateHTTPURL(key, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", key, raw)
	}
	return nil
}

// SessionTTL returns the browser session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// RequestTimeout returns the per-request timeout for backend calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RouteTimeout bounds a dashboard request, backend calls included.
func (c *Config) RouteTimeout() time.Duration {
	return time.Duration(c.RouteTimeoutSeconds) * time.Second
}

// FollowInterval returns the poll interval of the live log follower.
func (c *Config) FollowInterval() time.Duration {
	return time.Duration(c.Logs.FollowIntervalSeconds) * time.Second
}

// MaxUploadBytes returns the agent bundle size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Agents.MaxUploadMB) << 20
}

// InstallBase returns the origin used in the agent install command,
// falling back to the backend URL.
func (c *Config) InstallBase() string {
	if c.Agents.InstallBase != "" {
		return strings.TrimRight(c.Agents.InstallBase, "/")
	}
	return strings.TrimRight(c.BackendURL, "/")
}
