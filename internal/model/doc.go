// Package model defines shared data types used across the SafeLift event feed.
//
// All types mirror the backend's event schema (GET/POST /api/events and the
// /ws/events broadcast).
//
// Conventions:
//   - Severity: ordinal 1-5, 4 and above is critical
//   - Timestamps: time.Time in UTC; zone-less ISO-8601 from the backend is read as UTC
//   - IDs: int64 primary keys assigned by the backend
//   - Metadata: free-form JSON object, never nil after decoding
package model
