// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one WebSocket session to the event broadcaster
//   - Sends a "ping" text frame every heartbeat interval while open
//   - Closes sessions that stop answering (liveness timeout)
//   - Reconnects after involuntary closes with a constant delay and a bounded budget
//   - Decodes inbound frames and hands events to a dispatch.Dispatcher
//
// A Manager is created once by the owning process and passed to whoever
// needs it. Public operations never block on I/O; Shutdown waits for the
// session goroutine to finish.
package connection
