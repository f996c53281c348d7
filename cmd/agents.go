package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/opsdash/internal/agents"
	"github.com/ziadkadry99/opsdash/internal/progress"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agent versions",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent versions and the default",
	Args:  cobra.NoArgs,
	RunE:  runAgentsList,
}

var agentsSetDefaultCmd = &cobra.Command{
	Use:   "set-default <version>",
	Short: "Make a version the default",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsSetDefault,
}

var agentsUploadCmd = &cobra.Command{
	Use:   "upload <version> <bundle.zip>",
	Short: "Upload an agent bundle",
	Long: `Uploads a zip bundle as a new agent version.

The bundle is checked locally first: it must be a zip archive within
the configured size limit that contains agent.py.`,
	Args: cobra.ExactArgs(2),
	RunE: runAgentsUpload,
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <version>",
	Short: "Uninstall an agent version",
	Long:  `Uninstalls an agent version after asking for confirmation. Pass --yes to skip the prompt.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsDelete,
}

var agentsDeleteYes bool

// confirmPrompt asks a yes/no question; swapped out in tests.
var confirmPrompt = func(label string) (bool, error) {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// confirmDelete reports whether version may be uninstalled.
func confirmDelete(version string) (bool, error) {
	if agentsDeleteYes {
		return true, nil
	}
	return confirmPrompt(fmt.Sprintf("Uninstall agent version %s", version))
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsSetDefaultCmd)
	agentsCmd.AddCommand(agentsUploadCmd)
	agentsCmd.AddCommand(agentsDeleteCmd)

	agentsDeleteCmd.Flags().BoolVarP(&agentsDeleteYes, "yes", "y", false, "skip the confirmation prompt")
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := authedClient(cfg)
	if err != nil {
		// Listing works anonymously through the fallback chain.
		client = newClient(cfg)
	}

	listing, attempts, err := agents.NewChain(client, chainConfig(cfg)).Resolve(cmd.Context())
	if err != nil {
		return describeError(err)
	}
	for _, a := range attempts {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Source, a.Err)
	}

	fmt.Printf("Source: %s\n\n", listing.Source)
	fmt.Printf("%-16s %-8s %s\n", "VERSION", "DEFAULT", "EXPORTERS")
	for _, row := range agents.Rows(listing) {
		def := ""
		if row.IsDefault {
			def = "yes"
		}
		exporters := make([]string, 0, len(row.Exporters))
		for _, e := range row.Exporters {
			exporters = append(exporters, e.String())
		}
		fmt.Printf("%-16s %-8s %s\n", row.Version, def, strings.Join(exporters, ", "))
	}
	return nil
}

func runAgentsSetDefault(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	version, err := agents.ValidateVersion(args[0])
	if err != nil {
		return err
	}
	client, err := authedClient(cfg)
	if err != nil {
		return err
	}
	if err := client.SetDefaultVersion(cmd.Context(), version); err != nil {
		return describeError(err)
	}
	fmt.Printf("Default agent version set to %s\n", version)
	return nil
}

func runAgentsUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	version, err := agents.ValidateVersion(args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("opening bundle: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}
	if err := agents.ValidateArchive(f, info.Size(), cfg.MaxUploadBytes()); err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}

	client, err := authedClient(cfg)
	if err != nil {
		return err
	}

	rep := progress.NewReporter()
	rep.Start(info.Size(), "Uploading "+filepath.Base(args[1]))
	err = client.UploadVersion(cmd.Context(), version, filepath.Base(args[1]), progress.Reader(f, rep))
	rep.Finish()
	if err != nil {
		return describeError(err)
	}
	fmt.Printf("Agent version %s uploaded\n", version)
	return nil
}

func runAgentsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	version, err := agents.ValidateVersion(args[0])
	if err != nil {
		return err
	}
	ok, err := confirmDelete(version)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}
	client, err := authedClient(cfg)
	if err != nil {
		return err
	}
	if err := client.DeleteVersion(cmd.Context(), version); err != nil {
		return describeError(err)
	}
	fmt.Printf("Agent version %s uninstalled\n", version)
	return nil
}
