// Package store keeps the latest cycle status of each device in memory.
//
// This package is internal to fermentbridge. Only the most recent status per
// device is kept; nothing is persisted and no history is retained. A
// publish-subscribe mechanism feeds live updates to the status server.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [DeviceStatus]: Storage representation of a device's last cycle
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the polling loop).
package store
