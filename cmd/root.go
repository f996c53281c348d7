package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/opsdash/internal/config"
	"github.com/ziadkadry99/opsdash/internal/logging"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "opsdash",
	Short: "Operations dashboard for training runs, agents and monitoring",
	Long: `opsdash serves a server-rendered operations dashboard in front of the
platform API: training runs with metrics and logs, agent version
management and embedded Grafana panels. The same client powers the
CLI commands and an MCP server for AI agents.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		level := "warn"
		if verbose {
			level = "debug"
		}
		logging.Init(logging.Config{Level: level, Format: "auto"})
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
