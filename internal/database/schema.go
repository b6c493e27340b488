package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// EventsTable is the archive table written by the event writer.
const EventsTable = "safety_events"

// Execer runs a statement. *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS safety_events (
		id          BIGINT PRIMARY KEY,
		ts          TIMESTAMPTZ,
		type        TEXT NOT NULL,
		severity    SMALLINT NOT NULL CHECK (severity BETWEEN 1 AND 5),
		source      TEXT NOT NULL,
		metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
		forklift_id BIGINT,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS safety_events_ts_idx ON safety_events (ts DESC)`,
	`CREATE INDEX IF NOT EXISTS safety_events_critical_idx ON safety_events (ts DESC) WHERE severity >= 4`,
	`CREATE INDEX IF NOT EXISTS safety_events_forklift_idx ON safety_events (forklift_id) WHERE forklift_id IS NOT NULL`,
}

// EnsureSchema creates the archive table and its indexes if missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
