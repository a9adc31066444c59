// Package commands defines the exportd CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "exportd",
		Short: "Workstation agent for ERP report exports",
	}

	rootCmd.AddCommand(
		NewStartCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
