package store

import (
	"sort"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Statuses are keyed by device name, with new statuses replacing previous
// values. LastSubmittedAt is carried over from the previous status when the
// new one does not set it, so a throttled or failed cycle does not hide
// when the device last got a point through.
type MemoryStore struct {
	mu          sync.RWMutex
	statuses    map[string]DeviceStatus
	subscribers map[chan DeviceStatus]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses:    make(map[string]DeviceStatus),
		subscribers: make(map[chan DeviceStatus]struct{}),
	}
}

// Update stores a [DeviceStatus] and notifies all subscribers.
func (m *MemoryStore) Update(status DeviceStatus) {
	m.mu.Lock()
	if status.LastSubmittedAt == nil {
		if prev, ok := m.statuses[status.Device]; ok {
			status.LastSubmittedAt = prev.LastSubmittedAt
		}
	}
	m.statuses[status.Device] = status
	m.mu.Unlock()

	m.notifySubscribers(status)
}

// GetAll returns a snapshot of all stored statuses, sorted by device name.
//
// The returned slice is a copy; modifications do not affect the store.
func (m *MemoryStore) GetAll() []DeviceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]DeviceStatus, 0, len(m.statuses))
	for _, status := range m.statuses {
		results = append(results, status)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Device < results[j].Device
	})
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving
// updates. If the channel's buffer fills, new updates are dropped for this
// subscriber.
func (m *MemoryStore) Subscribe() <-chan DeviceStatus {
	ch := make(chan DeviceStatus, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan DeviceStatus) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the status to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(status DeviceStatus) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- status:
		default:
			// subscriber is slow, drop the message
		}
	}
}
