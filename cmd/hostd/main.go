// Package main is the hostd entry point: a local emulator for a
// serverless edge-runtime platform, exposing the loopback HTTP surface for
// its storage simulators and supervising the child runtime process that
// actually executes worker code.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localdev/hostd/internal/logging"
)

var (
	// Version is set via ldflags during build.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hostd",
	Short:   "Local emulator for a serverless edge-runtime platform",
	Long:    "hostd starts the orchestrator, loopback storage simulators, and proxy bridge that together emulate a serverless edge-runtime platform on a developer machine.",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log output format (json, console)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	format, _ := rootCmd.PersistentFlags().GetString("log-format")
	logging.Init(logging.Config{Level: level, Format: format})
}
