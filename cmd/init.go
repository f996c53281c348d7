package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/opsdash/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize opsdash configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to point opsdash at your backend and generates a .opsdash.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
