// Package metrics provides Prometheus metrics for monitoring the event feed.
//
// Key metrics:
//   - WebSocket connection state, sessions opened and reconnect attempts
//   - Inbound frames by kind and decode failures
//   - Listener deliveries and isolated listener failures
//   - Archive inserts and relay publishes
//
// Components accept a Collector and default to Nop when none is given.
package metrics
