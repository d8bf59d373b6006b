// Package main provides the entry point for the torsearch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for torsearch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torsearch",
		Short: "Anonymized web search through Tor",
		Long: `torsearch routes web searches through the Tor network so that neither
the search backends nor network observers can link queries to you.
Results from multiple backends (DuckDuckGo, SearxNG, Ahmia) are merged,
deduplicated, and ranked; pages behind the results can then be fetched
by their result number, also through Tor.

By default, torsearch starts an embedded Tor daemon automatically.
Use --external-tor to use an existing Tor proxy instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
