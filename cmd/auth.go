package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/opsdash/internal/auth"
)

// passwordEnv lets scripts log in without a prompt.
const passwordEnv = "OPSDASH_PASSWORD"

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the backend and store the token",
	Long: `Exchanges your email and password for a bearer token.

The token is stored in ~/.opsdash/credentials.json and used by the
agents and mcp commands. OPSDASH_TOKEN overrides the stored token.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.Clear(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user the stored token belongs to",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (prompted when empty)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	email := strings.TrimSpace(loginEmail)
	if email == "" {
		prompt := promptui.Prompt{
			Label: "Email",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("email is required")
				}
				return nil
			},
		}
		if email, err = prompt.Run(); err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
		email = strings.TrimSpace(email)
	}

	password := os.Getenv(passwordEnv)
	if password == "" {
		prompt := promptui.Prompt{Label: "Password", Mask: '*'}
		if password, err = prompt.Run(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	ctx := cmd.Context()
	client := newClient(cfg)
	token, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", describeError(err))
	}

	creds := &auth.Credentials{Backend: cfg.BackendURL, Token: token}
	if profile, err := client.WithToken(token).Me(ctx); err == nil {
		creds.User = profile
	} else {
		fmt.Fprintf(os.Stderr, "Warning: could not load profile: %v\n", err)
	}
	if err := auth.Save(creds); err != nil {
		return err
	}

	path, _ := auth.CredentialPath()
	fmt.Printf("Logged in to %s. Token stored in %s\n", cfg.BackendURL, path)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := authedClient(cfg)
	if err != nil {
		return err
	}

	profile, err := client.Me(cmd.Context())
	if err != nil {
		return describeError(err)
	}
	fmt.Printf("Name:    %s\n", profile.Name)
	fmt.Printf("Email:   %s\n", profile.Email)
	fmt.Printf("ID:      %d\n", profile.ID)
	fmt.Printf("Tenant:  %s\n", profile.Tenant)
	if profile.Role != "" {
		fmt.Printf("Role:    %s\n", profile.Role)
	}
	return nil
}
