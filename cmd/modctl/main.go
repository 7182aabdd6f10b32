// modctl lists and resolves rating disputes from the command line.
//
// Usage:
//
//	modctl list --status pending
//	modctl show <dispute-id>
//	modctl approve <dispute-id>
//	modctl reject <dispute-id> -o json
//
// API_URL and API_TOKEN (a moderator token) are read from the environment
// or a .env file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd(newConsole).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(factory consoleFactory) *cobra.Command {
	opts := &rootOptions{factory: factory}
	rootCmd := &cobra.Command{
		Use:           "modctl",
		Short:         "Review and resolve rating disputes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(listCmd(opts))
	rootCmd.AddCommand(showCmd(opts))
	rootCmd.AddCommand(resolveCmd(opts, "approve"))
	rootCmd.AddCommand(resolveCmd(opts, "reject"))
	return rootCmd
}
