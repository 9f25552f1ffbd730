package poller

import (
	"errors"
	"fmt"
)

// ErrThrottled is reported when the logging API accepted the request but
// dropped the point because the minimum interval between points had not
// elapsed. It is a warning, not a failure.
var ErrThrottled = errors.New("submission ignored by destination (leave at least 900 seconds between logging)")

// UpstreamFetchError reports a failed request to the history metrics API.
type UpstreamFetchError struct {
	Device string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("device %q: fetch metrics: %v", e.Device, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// DownstreamSubmitError reports a failed request to the logging API.
type DownstreamSubmitError struct {
	Device string
	Err    error
}

func (e *DownstreamSubmitError) Error() string {
	return fmt.Sprintf("device %q: submit: %v", e.Device, e.Err)
}

func (e *DownstreamSubmitError) Unwrap() error {
	return e.Err
}

// UnrecognizedResultError reports a logging API response whose result field
// is missing or unknown. Body holds the raw response.
type UnrecognizedResultError struct {
	Device string
	Result string
	Body   []byte
}

func (e *UnrecognizedResultError) Error() string {
	return fmt.Sprintf("device %q: unrecognized submit result %q: %s", e.Device, e.Result, e.Body)
}
