package config

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// wizardPrompt abstracts promptui.Prompt so the wizard can be driven in tests.
type wizardPrompt interface {
	Run() (string, error)
}

// promptFactory builds the prompt for one wizard question.
type promptFactory func(label, def string, validate promptui.ValidateFunc) wizardPrompt

func newPrompt(label, def string, validate promptui.ValidateFunc) wizardPrompt {
	return &promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: validate,
	}
}

// RunWizard runs an interactive configuration wizard and saves the
// result to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to opsdash! Let's point the dashboard at your backend.")
	fmt.Println()

	cfg, err := runWizard(newPrompt)
	if err != nil {
		return nil, err
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func runWizard(prompt promptFactory) (*Config, error) {
	cfg := DefaultConfig()

	urlCheck := func(key string, required bool) promptui.ValidateFunc {
		return func(s string) error {
			return validateHTTPURL(key, strings.TrimSpace(s), required)
		}
	}

	questions := []struct {
		label    string
		def      string
		validate promptui.ValidateFunc
		set      func(string)
	}{
		{"Listen address", cfg.Listen, nil, func(s string) { cfg.Listen = s }},
		{"Backend API URL", cfg.BackendURL, urlCheck("backend_url", true), func(s string) { cfg.BackendURL = s }},
		{"Alternate backend URL (blank to disable)", "", urlCheck("alt_backend_url", false), func(s string) { cfg.AltBackendURL = s }},
		{"Grafana URL", cfg.GrafanaURL, urlCheck("grafana_url", true), func(s string) { cfg.GrafanaURL = s }},
		{"Placeholder agent versions (comma-separated)", strings.Join(cfg.Agents.PlaceholderVersions, ","), nil, func(s string) {
			if versions := splitAndTrim(s); len(versions) > 0 {
				cfg.Agents.PlaceholderVersions = versions
			}
		}},
	}

	for _, q := range questions {
		answer, err := prompt(q.label, q.def, q.validate).Run()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToLower(q.label), err)
		}
		q.set(strings.TrimSpace(answer))
	}

	versions := cfg.Agents.PlaceholderVersions
	cfg.Agents.PlaceholderDefault = versions[len(versions)-1]

	return cfg, cfg.Validate()
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		token := strings.TrimSpace(part)
		if token != "" {
			result = append(result, token)
		}
	}
	return result
}
