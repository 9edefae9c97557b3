// Package main implements prismactl, the command-line client for the
// prismatad HTTP API.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL of the prismatad HTTP server
	serverURL string
	// timeout bounds each request; task execution can be slow
	timeout time.Duration
	// version is set via ldflags during build
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prismactl",
	Short: "CLI for the prismata task orchestration daemon",
	Long: `prismactl runs tasks against a prismatad server and inspects the
operations and history it tracks.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8420", "prismatad server URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")
	rootCmd.AddCommand(runCmd, cancelCmd, opsCmd, historyCmd, healthCmd)
}
