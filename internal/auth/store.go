package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
)

// TokenEnv overrides the stored token for CLI commands.
const TokenEnv = "OPSDASH_TOKEN"

// ErrNotLoggedIn is returned when no token is stored for a backend.
var ErrNotLoggedIn = errors.New("not logged in; run 'opsdash login'")

// Credentials is the CLI login state.
type Credentials struct {
	Backend string             `json:"backend"`
	Token   string             `json:"token"`
	User    *apiclient.Profile `json:"user,omitempty"`
	SavedAt time.Time          `json:"saved_at"`
}

// homeDir is swapped in tests.
var homeDir = os.UserHomeDir

// CredentialPath returns the path to the credentials file (~/.opsdash/credentials.json).
func CredentialPath() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".opsdash", "credentials.json"), nil
}

// Load reads credentials from ~/.opsdash/credentials.json.
// Returns empty credentials if the file doesn't exist.
func Load() (*Credentials, error) {
	path, err := CredentialPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return &creds, nil
}

// Save writes credentials to ~/.opsdash/credentials.json with restricted permissions.
func Save(creds *Credentials) error {
	path, err := CredentialPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling credentials: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// Clear removes the credentials file. A missing file is not an error.
func Clear() error {
	path, err := CredentialPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// Token returns the bearer token to use against backend.
// It checks the environment variable first, then falls back to stored
// credentials, which only apply to the backend they were issued by.
func Token(backend string) (string, error) {
	// Priority 1: Environment variable.
	if tok := os.Getenv(TokenEnv); tok != "" {
		return tok, nil
	}

	// Priority 2: Stored credentials.
	creds, err := Load()
	if err != nil {
		return "", err
	}
	if creds.Token == "" || !sameBackend(creds.Backend, backend) {
		return "", ErrNotLoggedIn
	}
	return creds.Token, nil
}

func sameBackend(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
