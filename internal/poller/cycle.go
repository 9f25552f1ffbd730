package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Outcome values of a device cycle.
const (
	OutcomeSubmitted = "submitted"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// destination result tokens
const (
	resultSuccess = "success"
	resultIgnored = "ignored"
	// the logging API started answering "OK" where it used to say "ignored"
	resultIgnoredLegacy = "OK"
)

// Device is the poller-internal view of one compiled device mapping.
type Device struct {
	// Name is the device name, sent as the "name" payload field.
	Name string

	// Fields maps logical field names to metric identifiers.
	// Unmapped fields are absent.
	Fields map[string]string

	// Metrics holds the distinct metric identifiers of Fields.
	Metrics []string

	// TempUnit and GravityUnit are attached to every payload.
	TempUnit    string
	GravityUnit string
}

// MetricValue is one {metric, value} pair returned by the history API.
// Value is nil when the API has no data for the metric.
type MetricValue struct {
	Metric string `json:"metric"`
	Value  any    `json:"value"`
}

// FetchFunc requests the latest values of the given metrics.
type FetchFunc func(ctx context.Context, metrics []string) ([]MetricValue, error)

// SubmitFunc sends a payload to the logging API and returns the raw
// response body.
type SubmitFunc func(ctx context.Context, payload map[string]any) ([]byte, error)

// CycleResult holds the outcome of one device in one polling cycle.
type CycleResult struct {
	// CycleID is shared by all device results of the same cycle.
	CycleID string

	// Device is the device name.
	Device string

	// Outcome is one of OutcomeSubmitted, OutcomeIgnored or OutcomeFailed.
	Outcome string

	// Values are the raw values returned by the history API.
	Values []MetricValue

	// Payload is the payload that was (or would have been) submitted.
	// nil when the fetch failed.
	Payload map[string]any

	// Response is the raw logging API response body.
	Response []byte

	// Error describes a failed or ignored cycle. nil when submitted.
	Error error

	// StartedAt is when processing of the device began.
	StartedAt time.Time

	// Duration is the time taken to fetch and submit.
	Duration time.Duration
}

// RunOnce runs one polling cycle over devices, sequentially and in order.
//
// Each device is fetched, remapped, filtered and submitted independently:
// a failure (or panic) for one device is recorded in its [CycleResult] and
// never prevents the remaining devices from being processed. The context is
// checked between devices; devices not reached before cancellation produce
// no result.
func RunOnce(ctx context.Context, devices []Device, fetch FetchFunc, submit SubmitFunc, logger *slog.Logger) []CycleResult {
	cycleID := uuid.NewString()
	results := make([]CycleResult, 0, len(devices))

	for _, dev := range devices {
		if ctx.Err() != nil {
			logger.Debug("cycle cancelled", "cycle_id", cycleID, "processed", len(results), "devices", len(devices))
			break
		}

		result := safeRunDevice(ctx, dev, fetch, submit, logger)
		result.CycleID = cycleID
		logResult(logger, result)
		results = append(results, result)
	}

	return results
}

// safeRunDevice runs a device with panic recovery. A panic is logged with a
// correlation ID and reported as a failed result.
func safeRunDevice(ctx context.Context, dev Device, fetch FetchFunc, submit SubmitFunc, logger *slog.Logger) (result CycleResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			logger.Error("device cycle panic",
				"device", dev.Name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			result = CycleResult{
				Device:    dev.Name,
				Outcome:   OutcomeFailed,
				Error:     fmt.Errorf("device cycle panic (correlation_id: %s)", correlationID),
				StartedAt: start,
				Duration:  time.Since(start),
			}
		}
	}()

	result = runDevice(ctx, dev, fetch, submit, logger)
	result.StartedAt = start
	result.Duration = time.Since(start)
	return result
}

func runDevice(ctx context.Context, dev Device, fetch FetchFunc, submit SubmitFunc, logger *slog.Logger) CycleResult {
	result := CycleResult{Device: dev.Name, Outcome: OutcomeFailed}

	if len(dev.Metrics) == 0 {
		result.Error = &UpstreamFetchError{Device: dev.Name, Err: errors.New("no fields mapped")}
		return result
	}

	logger.Debug("fetching metrics", "device", dev.Name, "fields", dev.Metrics)
	values, err := fetch(ctx, dev.Metrics)
	if err != nil {
		result.Error = &UpstreamFetchError{Device: dev.Name, Err: err}
		return result
	}
	result.Values = values
	logger.Debug("metrics returned", "device", dev.Name, "values", values)

	payload := dropNulls(buildPayload(dev, values))
	result.Payload = payload

	logger.Debug("submitting payload", "device", dev.Name, "payload", payload)
	body, err := submit(ctx, payload)
	result.Response = body
	if err != nil {
		result.Error = &DownstreamSubmitError{Device: dev.Name, Err: err}
		return result
	}

	result.Outcome, result.Error = classifyResponse(dev.Name, body)
	return result
}

// buildPayload reverse-matches returned metrics to logical fields and adds
// the device name and units.
func buildPayload(dev Device, values []MetricValue) map[string]any {
	payload := make(map[string]any, len(dev.Fields)+3)
	for _, v := range values {
		for field, metric := range dev.Fields {
			if metric == v.Metric {
				payload[field] = v.Value
			}
		}
	}

	payload["name"] = dev.Name
	payload["temp_unit"] = dev.TempUnit
	payload["gravity_unit"] = dev.GravityUnit
	return payload
}

// dropNulls removes keys with nil values; the logging API never receives
// null fields.
func dropNulls(payload map[string]any) map[string]any {
	for k, v := range payload {
		if v == nil {
			delete(payload, k)
		}
	}
	return payload
}

// classifyResponse maps the logging API's result token to an outcome.
// The body is parsed as JSON regardless of its declared content type.
func classifyResponse(device string, body []byte) (string, error) {
	var resp struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return OutcomeFailed, &UnrecognizedResultError{Device: device, Body: body}
	}

	switch resp.Result {
	case resultSuccess:
		return OutcomeSubmitted, nil
	case resultIgnored, resultIgnoredLegacy:
		return OutcomeIgnored, ErrThrottled
	default:
		return OutcomeFailed, &UnrecognizedResultError{Device: device, Result: resp.Result, Body: body}
	}
}

func logResult(logger *slog.Logger, r CycleResult) {
	attrs := []any{
		"device", r.Device,
		"outcome", r.Outcome,
		"cycle_id", r.CycleID,
		"duration_ms", r.Duration.Milliseconds(),
	}

	switch r.Outcome {
	case OutcomeSubmitted:
		logger.Info("data submitted", attrs...)
	case OutcomeIgnored:
		logger.Warn("data submission ignored", append(attrs, "error", r.Error.Error())...)
	default:
		if r.Error != nil {
			attrs = append(attrs, "error", r.Error.Error())
		}
		logger.Warn("device cycle failed", attrs...)
	}
}
