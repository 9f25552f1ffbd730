package fermentbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// bridgeConfig holds mutable state during Bridge construction.
type bridgeConfig struct {
	name            string
	table           MappingTable
	tableSet        bool
	metricsURL      string
	destinationURL  string
	pollInterval    time.Duration
	requestTimeout  time.Duration
	statusAddr      string
	mqttBroker      string
	mqttTopic       string
	logger          *slog.Logger
	resultCallbacks []func(CycleResult)
}

// Option is a function that configures a [Bridge] during construction.
//
// Options return an error if validation fails.
type Option func(*bridgeConfig) error

// WithMappingTable sets the compiled device mappings to poll. Required.
//
// Returns an error if the table is empty.
func WithMappingTable(table MappingTable) Option {
	return func(cfg *bridgeConfig) error {
		if table.Len() == 0 {
			return errors.New("mapping table must contain at least one device")
		}
		cfg.table = table
		cfg.tableSet = true
		return nil
	}
}

// WithMetricsURL sets the history API metrics URL. Required.
//
// Example:
//
//	fermentbridge.WithMetricsURL(fermentbridge.MetricsURL("http://history", 5000))
func WithMetricsURL(rawURL string) Option {
	return func(cfg *bridgeConfig) error {
		if err := validateHTTPURL(rawURL); err != nil {
			return fmt.Errorf("metrics url: %w", err)
		}
		cfg.metricsURL = rawURL
		return nil
	}
}

// WithDestinationURL sets the logging API URL that payloads are POSTed to.
// Required.
func WithDestinationURL(rawURL string) Option {
	return func(cfg *bridgeConfig) error {
		if err := validateHTTPURL(rawURL); err != nil {
			return fmt.Errorf("destination url: %w", err)
		}
		cfg.destinationURL = rawURL
		return nil
	}
}

// WithPollInterval sets the time between polling cycles.
//
// Intervals below [MinPollInterval] are raised to it, since the logging API
// drops points sent more often. Zero or a negative interval disables
// polling: [Bridge.Start] returns immediately without running a cycle.
// Defaults to [MinPollInterval].
func WithPollInterval(d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		cfg.pollInterval = d
		return nil
	}
}

// WithRequestTimeout sets the timeout of each outbound HTTP request.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithName sets the service display name. It is used as the HTTP User-Agent,
// the MQTT client ID and the event bus history key.
func WithName(name string) Option {
	return func(cfg *bridgeConfig) error {
		if name == "" {
			return errors.New("name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *bridgeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithResultCallback registers a function called with every device result.
//
// Callbacks run synchronously, in registration order, on the goroutine that
// consumes cycle results; they must not block. Panics are recovered and
// logged. Nil callbacks are silently ignored.
func WithResultCallback(cb func(CycleResult)) Option {
	return func(cfg *bridgeConfig) error {
		if cb == nil {
			return nil
		}
		cfg.resultCallbacks = append(cfg.resultCallbacks, cb)
		return nil
	}
}

// WithStatusAddr enables the status server on addr (e.g. ":8080"), serving
// /api/status, /api/sse, /metrics and /healthz. Disabled by default.
func WithStatusAddr(addr string) Option {
	return func(cfg *bridgeConfig) error {
		cfg.statusAddr = addr
		return nil
	}
}

// WithEventBus publishes the values of every device cycle to an MQTT
// broker. An empty topic selects "brewcast/history". Disabled by default.
func WithEventBus(brokerURL, topic string) Option {
	return func(cfg *bridgeConfig) error {
		if brokerURL == "" {
			return errors.New("event bus broker url cannot be empty")
		}
		cfg.mqttBroker = brokerURL
		cfg.mqttTopic = topic
		return nil
	}
}

func validateHTTPURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}
