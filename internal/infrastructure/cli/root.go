// Package cli wires the command-line surface of the sync tool.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "fattail-sync",
	Version: Version,
	Short:   "Reconcile order-management campaigns into collaboration workspaces",
	Long: `fattail-sync reads a saved report from the order-management system and
drives the workspace system into agreement with it: one account per
client, one workspace per campaign, one milestone per drop, with the
tasklists and role assignments each placement calls for.`,
}

// Execute is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	return RootCmd.Execute()
}
