// Package poller implements the auto-refresh component.
//
// The Refresher:
//   - Lists the newest events over REST every refresh interval
//   - Drops ids already seen on either the push stream or a previous cycle
//   - Hands the remaining events, oldest first, to a batch handler
package poller
