// Package database opens the PostgreSQL pool used by the event archive and
// creates the safety_events table it writes to.
package database
