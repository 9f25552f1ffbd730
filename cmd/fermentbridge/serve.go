package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/fermentbridge"
	"github.com/jpalmerr/fermentbridge/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts polling.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling and submitting",
	Long: `Start the fermentbridge service.

The service will:
  - Load and compile the device file
  - Run a polling cycle immediately, then every poll interval (minimum 900s)
  - Optionally serve /api/status, /api/sse, /metrics and /healthz
  - Optionally publish remapped values to an MQTT event bus

A poll interval of 0 disables polling: the command exits cleanly without
running a cycle. The service runs until interrupted (Ctrl+C) or SIGTERM.

Example:
  fermentbridge serve -c fermentations.yaml
  fermentbridge serve -c fermentations.yaml --listen-address :8080
  fermentbridge serve --once --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("history-host", "", "history service base URL (default http://history)")
	flags.Int("history-port", 0, "history service port (default 5000)")
	flags.String("brewfather-url", "", "logging API URL, overrides settings.brewfather_url")
	flags.Float64("poll-interval", 0, "seconds between cycles; 0 or less disables polling (default 900)")
	flags.String("name", "", "service name (default fermentbridge)")
	flags.Float64("request-timeout", 0, "timeout of each outbound request in seconds (default 10)")
	flags.String("listen-address", "", "status server address, e.g. :8080 (disabled when empty)")
	flags.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://eventbus:1883 (disabled when empty)")
	flags.String("mqtt-topic", "", "MQTT topic (default brewcast/history)")
	flags.Bool("once", false, "run a single cycle and exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(s.LogLevel)
	if err != nil {
		return err
	}

	b, err := buildBridge(s, logger)
	if err != nil {
		return err
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once, _ := cmd.Flags().GetBool("once"); once {
		return runOnce(ctx, b, logger)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- b.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("bridge error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("bridge error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// buildBridge loads the device file named by s and creates the bridge.
// Device file errors are fatal: no bridge is created from a partial table.
func buildBridge(s config.Settings, logger *slog.Logger) (*fermentbridge.Bridge, error) {
	cfg, err := config.Load(s.MetricsConfigFile)
	if err != nil {
		return nil, err
	}

	destinationURL, err := cfg.DestinationURL(s.BrewfatherURL)
	if err != nil {
		return nil, err
	}

	table, err := config.BuildMappingTable(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("device file loaded",
		"path", s.MetricsConfigFile,
		"devices", table.Len(),
	)

	opts := []fermentbridge.Option{
		fermentbridge.WithMappingTable(table),
		fermentbridge.WithMetricsURL(s.MetricsURL()),
		fermentbridge.WithDestinationURL(destinationURL),
		fermentbridge.WithPollInterval(s.PollIntervalDuration()),
		fermentbridge.WithRequestTimeout(s.RequestTimeoutDuration()),
		fermentbridge.WithName(s.Name),
		fermentbridge.WithLogger(logger),
	}
	if s.ListenAddress != "" {
		opts = append(opts, fermentbridge.WithStatusAddr(s.ListenAddress))
	}
	if s.MQTTBroker != "" {
		opts = append(opts, fermentbridge.WithEventBus(s.MQTTBroker, s.MQTTTopic))
	}

	b, err := fermentbridge.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}
	return b, nil
}

// runOnce runs a single cycle. It fails when any device failed; throttled
// devices are not failures.
func runOnce(ctx context.Context, b *fermentbridge.Bridge, logger *slog.Logger) error {
	results := b.RunOnce(ctx)

	failed := 0
	for _, r := range results {
		if r.Outcome == fermentbridge.OutcomeFailed {
			failed++
		}
	}

	logger.Info("cycle complete", "devices", len(results), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d devices failed", failed, len(results))
	}
	return nil
}
