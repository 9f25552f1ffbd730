// Package poller runs the fetch, remap and submit cycle of the bridge.
//
// This package is internal to fermentbridge. The main components are:
//
//   - [Client]: HTTP client wrapper for the two JSON POST calls
//   - [RunOnce]: One polling cycle over all devices, isolated per device
//   - [Scheduler]: Runs cycles at a fixed interval until stopped
//   - [CycleResult]: Outcome of one device in one cycle
//
// Users of the fermentbridge library should not need to interact with this
// package directly. Configuration is done through the main package.
package poller
