// Package cmd contains the heirloom CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "heirloom",
	Short: "Heirloom - persona chat grounded in personal writings",
	Long: `Heirloom serves tier-scoped conversations with personal portraits.
Each portrait is grounded in its subject's own writings: documents are
chunked, embedded, and retrieved per message to keep responses anchored
in what the person actually said.

Run 'heirloom serve' to start the HTTP API, or 'heirloom ingest' to load
documents into a portrait's knowledge base.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
