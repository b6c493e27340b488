// Package writer archives safety events to PostgreSQL.
//
// EventWriter is a dispatch listener: HandleEvent only enqueues into a
// GrowableBuffer, and a background loop batch-inserts into safety_events
// with ON CONFLICT (id) DO NOTHING. The archive is append-only; an event
// seen on both the push stream and a refresh is stored once.
package writer
