package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/opsdash/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing read-only run and agent tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client, err := authedClient(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v; tools will call the backend anonymously.\n", err)
			client = newClient(cfg)
		}

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "opsdash MCP server started on stdio (backend=%s)\n", cfg.BackendURL)

		srv := mcpserver.NewServer(client, chainConfig(cfg), time.Local)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
