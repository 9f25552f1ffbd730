// Package main is the entry point for the fermentbridge CLI.
//
// Usage:
//
//	fermentbridge serve -c fermentations.yaml    # Start polling
//	fermentbridge serve --once                   # Run a single cycle and exit
//	fermentbridge validate -c fermentations.yaml # Validate the device file
//	fermentbridge version                        # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "fermentbridge",
	Short: "Copies Brewblox fermentation readings to Brewfather",
	Long: `fermentbridge periodically reads the latest fermentation readings from
the Brewblox history service and submits them to a Brewfather custom stream.

Quick start:
  1. Create a device file (fermentations.yaml)
  2. Run: fermentbridge validate -c fermentations.yaml
  3. Run: fermentbridge serve -c fermentations.yaml

Example device file:
  settings:
    brewfather_url: https://log.brewfather.net/stream?id=${BREWFATHER_STREAM_ID}
  fermentations:
    - name: Red
      sensors:
        temp:
          service: tilt
          sensor: Red
          service_type: tilt

Startup settings are read from flags, FERMENTBRIDGE_* environment variables,
an optional settings file (--settings) and a .env file, in that order.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this fermentbridge binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "fermentbridge %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to the device file (default fermentations.yaml)")
	flags.String("settings", "", "path to an optional settings file (yaml, json or toml)")
	flags.String("env-file", ".env", "path to a .env file; ignored when missing")
	flags.String("log-level", "", "log level: debug, info, warn or error (default info)")

	rootCmd.AddCommand(versionCmd)
}
