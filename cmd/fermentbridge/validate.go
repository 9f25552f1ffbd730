package main

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/fermentbridge"
	"github.com/jpalmerr/fermentbridge/config"
)

// validateCmd validates the device file without polling.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the device file",
	Long: `Validate the fermentbridge device file without polling.

This command parses the YAML, expands environment variables, compiles the
sensor declarations and prints the metric resolved for every field. Fields
whose sensor has no known metric are left out. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Device file is valid
  1 - Device file is invalid (error details printed to stderr)

Example:
  fermentbridge validate -c fermentations.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().String("brewfather-url", "", "logging API URL, overrides settings.brewfather_url")
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(s.LogLevel)
	if err != nil {
		return err
	}

	cfg, err := config.Load(s.MetricsConfigFile)
	if err != nil {
		return err
	}

	destinationURL, err := cfg.DestinationURL(s.BrewfatherURL)
	if err != nil {
		return err
	}

	table, err := config.BuildMappingTable(cfg, logger)
	if err != nil {
		return err
	}

	printTable(cmd.OutOrStdout(), destinationURL, table)
	return nil
}

// printTable writes the compiled devices. Only the destination host is
// printed; the stream URL carries a secret ID.
func printTable(w io.Writer, destinationURL string, table fermentbridge.MappingTable) {
	host := destinationURL
	if u, err := url.Parse(destinationURL); err == nil {
		host = u.Host
	}

	fmt.Fprintf(w, "Config is valid!\n")
	fmt.Fprintf(w, "  Destination: %s\n", host)
	fmt.Fprintf(w, "  Devices:     %d\n", table.Len())

	for _, d := range table.Devices() {
		fmt.Fprintf(w, "\n  %s (temp %s, gravity %s)\n", d.Name(), d.TempUnit(), d.GravityUnit())
		mapped := 0
		for _, f := range fermentbridge.Fields {
			if metric, ok := d.Metric(f); ok {
				fmt.Fprintf(w, "    %-9s %s\n", f, metric)
				mapped++
			}
		}
		if mapped == 0 {
			fmt.Fprintf(w, "    (no fields mapped)\n")
		}
	}
}
