// Package commands provides the gateway-client CLI's subcommands.
package commands

import (
	"github.com/spf13/cobra"
)

var controlBaseURL string

var rootCmd = &cobra.Command{
	Use:   "gateway-client",
	Short: "Reference client for the session gateway",
	Long: `gateway-client drives a session gateway connection from the
command line: starting and attaching to assistant sessions, or
attaching a raw terminal to a PTY session.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controlBaseURL, "server", "http://localhost:8765", "gateway control-plane base URL")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(ptyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
