package fermentbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/fermentbridge/internal/eventbus"
	"github.com/jpalmerr/fermentbridge/internal/metrics"
	"github.com/jpalmerr/fermentbridge/internal/poller"
	"github.com/jpalmerr/fermentbridge/internal/server"
	"github.com/jpalmerr/fermentbridge/internal/store"
)

// MinPollInterval is the shortest interval between polling cycles. The
// logging API ignores points sent more often than this.
const MinPollInterval = 900 * time.Second

const (
	defaultName           = "fermentbridge"
	defaultRequestTimeout = 10 * time.Second
	metricsPath           = "/history/timeseries/metrics"
)

// EffectivePollInterval returns the interval actually used for a configured
// interval d, and whether polling is enabled at all.
//
// Zero or a negative d disables polling. Intervals below [MinPollInterval]
// are raised to it.
func EffectivePollInterval(d time.Duration) (time.Duration, bool) {
	if d <= 0 {
		return 0, false
	}
	if d < MinPollInterval {
		return MinPollInterval, true
	}
	return d, true
}

// MetricsURL builds the history API metrics URL from a base host (including
// scheme) and port.
func MetricsURL(host string, port int) string {
	return fmt.Sprintf("%s:%d%s", host, port, metricsPath)
}

// Bridge periodically copies the latest history metrics of every configured
// device to the logging API.
//
// A Bridge is created using [New] with functional options and started with
// [Bridge.Start]. The typical lifecycle is:
//
//	b, err := fermentbridge.New(
//	    fermentbridge.WithMappingTable(table),
//	    fermentbridge.WithMetricsURL(fermentbridge.MetricsURL("http://history", 5000)),
//	    fermentbridge.WithDestinationURL(streamURL),
//	)
//	if err != nil {
//	    slog.Error("failed to create bridge", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Bridge struct {
	name            string
	table           MappingTable
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

// New creates a new [Bridge] with the given options.
//
// [WithMappingTable], [WithMetricsURL] and [WithDestinationURL] are required.
// Other options have defaults:
//   - Poll interval: [MinPollInterval]
//   - Request timeout: 10 seconds
//   - Name: "fermentbridge"
//
// Returns an error if a required option is missing or any option is invalid.
func New(opts ...Option) (*Bridge, error) {
	cfg := &bridgeConfig{
		name:           defaultName,
		pollInterval:   MinPollInterval,
		requestTimeout: defaultRequestTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if !cfg.tableSet {
		return nil, errors.New("a mapping table is required")
	}
	if cfg.metricsURL == "" {
		return nil, errors.New("a metrics url is required")
	}
	if cfg.destinationURL == "" {
		return nil, errors.New("a destination url is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		name:            cfg.name,
		table:           cfg.table,
		metricsURL:      cfg.metricsURL,
		destinationURL:  cfg.destinationURL,
		pollInterval:    cfg.pollInterval,
		requestTimeout:  cfg.requestTimeout,
		statusAddr:      cfg.statusAddr,
		mqttBroker:      cfg.mqttBroker,
		mqttTopic:       cfg.mqttTopic,
		logger:          logger,
		resultCallbacks: cfg.resultCallbacks,
	}, nil
}

// Start polls all devices until ctx is cancelled.
//
// A cycle runs immediately; the next one starts one poll interval after the
// previous cycle completed. If polling is disabled (see
// [EffectivePollInterval]) Start logs and returns nil without polling.
//
// When configured, the status server and the event bus connection live for
// the duration of Start.
//
// Returns nil on graceful shutdown. Returns an error if the status server
// cannot bind or the event bus broker cannot be reached.
func (b *Bridge) Start(ctx context.Context) error {
	interval, enabled := EffectivePollInterval(b.pollInterval)
	if !enabled {
		b.logger.Info("polling disabled", "poll_interval", b.pollInterval.String())
		return nil
	}
	if interval != b.pollInterval {
		b.logger.Warn("poll interval raised to minimum",
			"configured", b.pollInterval.String(),
			"effective", interval.String(),
		)
	}

	b.logger.Info("fermentbridge starting",
		"name", b.name,
		"device_count", b.table.Len(),
		"interval", interval.String(),
	)

	if ctx.Err() != nil {
		return nil
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return err
	}

	var publisher *eventbus.Publisher
	if b.mqttBroker != "" {
		publisher, err = eventbus.Connect(b.mqttBroker, b.name, b.mqttTopic, b.name, b.logger)
		if err != nil {
			return fmt.Errorf("failed to connect event bus: %w", err)
		}
	}

	client := poller.NewClient(b.name)
	statusStore := store.NewMemoryStore()

	scheduler := poller.NewScheduler(
		b.toPollerDevices(),
		interval,
		client.FetchFunc(b.metricsURL, b.requestTimeout),
		client.SubmitFunc(b.destinationURL, b.requestTimeout),
		b.logger,
	)
	scheduler.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range scheduler.Results() {
			b.handleResult(result, statusStore, collector, publisher)
		}
	}()

	cleanup := func() {
		scheduler.Stop()
		wg.Wait()
		client.Close()
		publisher.Close()
	}

	if b.statusAddr != "" {
		httpServer := server.NewServer(statusStore, b.statusAddr, metrics.Handler(registry), b.logger)
		if err := httpServer.Start(ctx); err != nil {
			cleanup()
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	<-ctx.Done()
	cleanup()
	b.logger.Info("fermentbridge stopped")
	return nil
}

// RunOnce runs a single polling cycle over all devices and returns one
// result per device. It ignores the poll interval, so it also works when
// polling is disabled. Result callbacks are invoked for every result; the
// status server, metrics and event bus are not involved.
func (b *Bridge) RunOnce(ctx context.Context) []CycleResult {
	client := poller.NewClient(b.name)
	defer client.Close()

	results := poller.RunOnce(
		ctx,
		b.toPollerDevices(),
		client.FetchFunc(b.metricsURL, b.requestTimeout),
		client.SubmitFunc(b.destinationURL, b.requestTimeout),
		b.logger,
	)

	out := make([]CycleResult, len(results))
	for i, r := range results {
		out[i] = pollerResultToPublicResult(r)
		for _, cb := range b.resultCallbacks {
			invokeCallbackSafe(cb, pollerResultToPublicResult(r), b.logger)
		}
	}
	return out
}

// handleResult fans a cycle result out to the store, metrics, event bus and
// callbacks, in that order.
func (b *Bridge) handleResult(result poller.CycleResult, st store.Store, collector *metrics.Collector, publisher *eventbus.Publisher) {
	st.Update(pollerResultToDeviceStatus(result))
	collector.Observe(result.Device, result.Outcome, result.Duration, result.Payload, result.StartedAt.Add(result.Duration))

	if publisher != nil {
		if err := publisher.Publish(result.Device, fieldValues(result.Payload)); err != nil {
			b.logger.Warn("event bus publish failed", "device", result.Device, "error", err.Error())
		}
	}

	for _, cb := range b.resultCallbacks {
		invokeCallbackSafe(cb, pollerResultToPublicResult(result), b.logger)
	}
}

// toPollerDevices converts the mapping table to poller devices.
func (b *Bridge) toPollerDevices() []poller.Device {
	devices := b.table.Devices()
	result := make([]poller.Device, len(devices))

	for i, d := range devices {
		fields := make(map[string]string)
		for f, metric := range d.Fields() {
			fields[f.String()] = metric
		}
		result[i] = poller.Device{
			Name:        d.Name(),
			Fields:      fields,
			Metrics:     d.Metrics(),
			TempUnit:    string(d.TempUnit()),
			GravityUnit: string(d.GravityUnit()),
		}
	}

	return result
}

// MappingTable returns the compiled device mappings.
func (b *Bridge) MappingTable() MappingTable {
	return b.table
}

// PollInterval returns the interval between cycles after the minimum is
// applied. It returns 0 when polling is disabled.
func (b *Bridge) PollInterval() time.Duration {
	d, _ := EffectivePollInterval(b.pollInterval)
	return d
}

// Name returns the service display name.
func (b *Bridge) Name() string {
	return b.name
}

// fieldValues returns the logical field values of a payload, without the
// name and unit labels.
func fieldValues(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case "name", "temp_unit", "gravity_unit":
			continue
		}
		out[k] = v
	}
	return out
}

func pollerResultToDeviceStatus(pr poller.CycleResult) store.DeviceStatus {
	var errStr *string
	if pr.Error != nil {
		s := pr.Error.Error()
		errStr = &s
	}

	var submittedAt *time.Time
	if pr.Outcome == poller.OutcomeSubmitted {
		at := pr.StartedAt.Add(pr.Duration)
		submittedAt = &at
	}

	return store.DeviceStatus{
		Device:          pr.Device,
		Outcome:         pr.Outcome,
		CycleID:         pr.CycleID,
		Payload:         copyMap(pr.Payload),
		DurationMs:      pr.Duration.Milliseconds(),
		CheckedAt:       pr.StartedAt,
		LastSubmittedAt: submittedAt,
		Error:           errStr,
	}
}

// pollerResultToPublicResult converts an internal poller result to the
// public type. Mutable fields are copied.
func pollerResultToPublicResult(pr poller.CycleResult) CycleResult {
	var values map[string]any
	if pr.Values != nil {
		values = make(map[string]any, len(pr.Values))
		for _, v := range pr.Values {
			values[v.Metric] = v.Value
		}
	}

	return CycleResult{
		CycleID:   pr.CycleID,
		Device:    pr.Device,
		Outcome:   Outcome(pr.Outcome),
		Values:    values,
		Payload:   copyMap(pr.Payload),
		Response:  copyBytes(pr.Response),
		Error:     pr.Error,
		StartedAt: pr.StartedAt,
		Duration:  pr.Duration,
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// invokeCallbackSafe calls a result callback with panic recovery.
func invokeCallbackSafe(cb func(CycleResult), result CycleResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("result callback panicked",
				"panic", r,
				"device", result.Device,
			)
		}
	}()
	cb(result)
}
