package config

// Default values used when neither the config file nor the environment set a key.
const (
	DefaultListen         = ":8080"
	DefaultBackendURL     = "http://localhost:8000"
	DefaultGrafanaURL     = "http://localhost:3000"
	DefaultNetronURL      = "https://netron.app"
	DefaultDataDir        = ".opsdash"
	DefaultCookieName     = "os_session"
	DefaultConfigFile     = ".opsdash.yml"
	DefaultInstallToken   = "<TOKEN>"
	defaultSessionTTL     = 24
	defaultRequestTimeout = 15
	defaultRouteTimeout   = 60
	defaultDNSCacheTTL    = 5
	defaultMaxUploadMB    = 64
	defaultFollowInterval = 2
)

// DefaultPlaceholderVersions are shown when no backend returns any agent version.
var DefaultPlaceholderVersions = []string{"v0.1", "v0.2"}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:                DefaultListen,
		BackendURL:            DefaultBackendURL,
		GrafanaURL:            DefaultGrafanaURL,
		NetronURL:             DefaultNetronURL,
		DataDir:               DefaultDataDir,
		RequestTimeoutSeconds: defaultRequestTimeout,
		RouteTimeoutSeconds:   defaultRouteTimeout,
		DNSCacheTTLMinutes:    defaultDNSCacheTTL,
		Session: SessionConfig{
			CookieName: DefaultCookieName,
			TTLHours:   defaultSessionTTL,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Agents: AgentsConfig{
			PlaceholderVersions: append([]string(nil), DefaultPlaceholderVersions...),
			PlaceholderDefault:  "v0.2",
			InstallToken:        DefaultInstallToken,
			MaxUploadMB:         defaultMaxUploadMB,
		},
		Logs: LogsConfig{
			FollowIntervalSeconds: defaultFollowInterval,
		},
	}
}
