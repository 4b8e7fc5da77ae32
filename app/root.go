// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "accessgate",
	Short: "accessgate is a role and context aware authorization engine",
	Long: `accessgate decides whether an actor may perform an action, combining a role
capability table, role hierarchy, ownership and assignment rules, time limited
dynamic grants and an admin override. Every decision is cached and audited.`,
	Args:          cobra.OnlyValidArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./etc/", "Directory holding main.toml")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
