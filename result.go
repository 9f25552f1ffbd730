package fermentbridge

import (
	"time"

	"github.com/jpalmerr/fermentbridge/internal/poller"
)

// Outcome classifies how a device fared in one polling cycle.
type Outcome string

const (
	// OutcomeSubmitted indicates the logging API accepted the point.
	OutcomeSubmitted Outcome = "submitted"

	// OutcomeIgnored indicates the logging API dropped the point because the
	// minimum interval between points had not elapsed.
	OutcomeIgnored Outcome = "ignored"

	// OutcomeFailed indicates the fetch or the submission failed, or the
	// logging API answered with an unknown result.
	OutcomeFailed Outcome = "failed"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// Error types reported in [CycleResult.Error]. Use errors.As to inspect them.
type (
	// UpstreamFetchError reports a failed request to the history API.
	// The device was skipped for the cycle and nothing was submitted.
	UpstreamFetchError = poller.UpstreamFetchError

	// DownstreamSubmitError reports a failed request to the logging API.
	DownstreamSubmitError = poller.DownstreamSubmitError

	// UnrecognizedResultError reports an unexpected logging API response;
	// its Body field holds the raw response.
	UnrecognizedResultError = poller.UnrecognizedResultError
)

// ErrThrottled is reported with [OutcomeIgnored]. It is a warning: the next
// scheduled cycle submits again.
var ErrThrottled = poller.ErrThrottled

// CycleResult holds the outcome of one device in one polling cycle.
//
// CycleResult is transient: it is handed to result callbacks and the status
// server and is never persisted.
type CycleResult struct {
	// CycleID is shared by all device results of the same cycle.
	CycleID string

	// Device is the device name.
	Device string

	// Outcome is the classified result of the cycle.
	Outcome Outcome

	// Values maps each fetched metric identifier to its raw value.
	// nil when the fetch failed.
	Values map[string]any

	// Payload is the payload that was submitted, keyed by logical field
	// plus name, temp_unit and gravity_unit. nil when the fetch failed.
	Payload map[string]any

	// Response is the raw logging API response body.
	Response []byte

	// Error describes a failed or ignored cycle; nil when submitted.
	Error error

	// StartedAt is when processing of the device began.
	StartedAt time.Time

	// Duration is the time taken to fetch and submit.
	Duration time.Duration
}
