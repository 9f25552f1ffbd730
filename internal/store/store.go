package store

import "time"

// DeviceStatus represents the last cycle of a device in storage.
//
// DeviceStatus is optimized for JSON serialization (used by the status API
// and SSE stream). It is decoupled from the poller's internal types.
type DeviceStatus struct {
	// Device is the device name.
	Device string `json:"device"`

	// Outcome is "submitted", "ignored" or "failed".
	Outcome string `json:"outcome"`

	// CycleID identifies the cycle that produced this status.
	CycleID string `json:"cycle_id"`

	// Payload is the last payload sent (or prepared) for the device.
	Payload map[string]any `json:"payload,omitempty"`

	// DurationMs is the time taken by the device's fetch and submit.
	DurationMs int64 `json:"duration_ms"`

	// CheckedAt is when the cycle processed the device.
	CheckedAt time.Time `json:"checked_at"`

	// LastSubmittedAt is when the device last had a point accepted.
	// nil if no point has been accepted since startup.
	LastSubmittedAt *time.Time `json:"last_submitted_at"`

	// Error contains the error message of a failed or ignored cycle.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to device statuses.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a new status and notifies all subscribers.
	// The status is keyed by Device, replacing the previous value.
	Update(status DeviceStatus)

	// GetAll returns the current status of every device, sorted by name.
	GetAll() []DeviceStatus

	// Subscribe returns a channel that receives status updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan DeviceStatus

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan DeviceStatus)
}
