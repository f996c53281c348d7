package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/opsdash/internal/agents"
	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/auth"
	"github.com/ziadkadry99/opsdash/internal/config"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `opsdash init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	apiclient.SetDNSCacheTTL(time.Duration(cfg.DNSCacheTTLMinutes) * time.Minute)
	return cfg, nil
}

// logLevel is the configured log level, or debug under -v.
func logLevel(cfg *config.Config) string {
	if verbose {
		return "debug"
	}
	return cfg.Log.Level
}

// newClient returns an unauthenticated client for the configured backend.
func newClient(cfg *config.Config) *apiclient.Client {
	return apiclient.New(cfg.BackendURL, apiclient.WithTimeout(cfg.RequestTimeout()))
}

// authedClient returns a client carrying the stored CLI token.
func authedClient(cfg *config.Config) (*apiclient.Client, error) {
	token, err := auth.Token(cfg.BackendURL)
	if err != nil {
		return nil, err
	}
	return newClient(cfg).WithToken(token), nil
}

// chainConfig maps the agents settings onto the fallback chain.
func chainConfig(cfg *config.Config) agents.ChainConfig {
	return agents.ChainConfig{
		AltOrigin:           cfg.AltBackendURL,
		PlaceholderVersions: cfg.Agents.PlaceholderVersions,
		PlaceholderDefault:  cfg.Agents.PlaceholderDefault,
	}
}

// describeError turns backend errors into one-line CLI messages.
func describeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apiclient.ErrUnauthorized):
		return fmt.Errorf("%w (try 'opsdash login')", err)
	case errors.Is(err, apiclient.ErrNetwork):
		return fmt.Errorf("backend unreachable: %w", err)
	default:
		return err
	}
}
