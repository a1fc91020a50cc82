// Hmochat answers questions about Israeli HMO services after collecting the
// member's details.
//
// Usage:
//
//	# Start the API server
//	hmochat serve
//
//	# Talk to a running server
//	hmochat chat --server http://localhost:8000
//
//	# Inspect the knowledge index
//	hmochat stats
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	serverURL  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hmochat",
		Short: "HMO services chatbot",
		Long: `hmochat runs a two-phase chatbot: it first collects the member's details,
then answers questions about their HMO services from a knowledge index.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/hmochat/config.yaml)")
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "hmochat server URL")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hmochat by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
