package config

// Config is the top-level opsdash configuration, corresponding to .opsdash.yml.
type Config struct {
	Listen                string        `yaml:"listen" koanf:"listen"`
	BackendURL            string        `yaml:"backend_url" koanf:"backend_url"`
	AltBackendURL         string        `yaml:"alt_backend_url" koanf:"alt_backend_url"`
	GrafanaURL            string        `yaml:"grafana_url" koanf:"grafana_url"`
	NetronURL             string        `yaml:"netron_url" koanf:"netron_url"`
	DataDir               string        `yaml:"data_dir" koanf:"data_dir"`
	RequestTimeoutSeconds int           `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
	RouteTimeoutSeconds   int           `yaml:"route_timeout_seconds" koanf:"route_timeout_seconds"`
	DNSCacheTTLMinutes    int           `yaml:"dns_cache_ttl_minutes" koanf:"dns_cache_ttl_minutes"`
	Session               SessionConfig `yaml:"session" koanf:"session"`
	Log                   LogConfig     `yaml:"log" koanf:"log"`
	Agents                AgentsConfig  `yaml:"agents" koanf:"agents"`
	Logs                  LogsConfig    `yaml:"logs" koanf:"logs"`
	CORS                  CORSConfig    `yaml:"cors" koanf:"cors"`
}

// SessionConfig controls the browser session cookie.
type SessionConfig struct {
	CookieName   string `yaml:"cookie_name" koanf:"cookie_name"`
	TTLHours     int    `yaml:"ttl_hours" koanf:"ttl_hours"`
	SecureCookie bool   `yaml:"secure_cookie" koanf:"secure_cookie"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// AgentsConfig holds agent version manager settings.
type AgentsConfig struct {
	PlaceholderVersions []string `yaml:"placeholder_versions" koanf:"placeholder_versions"`
	PlaceholderDefault  string   `yaml:"placeholder_default" koanf:"placeholder_default"`
	InstallBase         string   `yaml:"install_base" koanf:"install_base"`
	InstallToken        string   `yaml:"install_token" koanf:"install_token"`
	MaxUploadMB         int      `yaml:"max_upload_mb" koanf:"max_upload_mb"`
}

// LogsConfig controls the live run log follower.
type LogsConfig struct {
	FollowIntervalSeconds int `yaml:"follow_interval_seconds" koanf:"follow_interval_seconds"`
}

// CORSConfig holds CORS settings for the HTTP server.
type CORSConfig struct {
	AllowAll bool `yaml:"allow_all" koanf:"allow_all"`
}
